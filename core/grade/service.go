package grade

import (
	"context"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/miescuela/core"
	"github.com/trezcool/miescuela/core/grid"
)

var (
	// errors
	ErrNotFound       = errors.New("not found")
	ErrDuplicateGrade = errors.New("a grade of this type already exists for this student and date")

	nowFunc = time.Now // mockable
)

type (
	Repository interface {
		QueryCourses(ctx context.Context, exec ...core.DBExecutor) ([]Course, error)
		GetCourse(ctx context.Context, id string, exec ...core.DBExecutor) (Course, error)
		CreateCourse(ctx context.Context, course Course, exec ...core.DBExecutor) (Course, error)

		QuerySubjects(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]Subject, error)
		GetSubject(ctx context.Context, id string, exec ...core.DBExecutor) (Subject, error)
		CreateSubject(ctx context.Context, subject Subject, exec ...core.DBExecutor) (Subject, error)

		QueryStudents(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]Student, error)
		GetStudent(ctx context.Context, id string, exec ...core.DBExecutor) (Student, error)
		CreateStudent(ctx context.Context, student Student, exec ...core.DBExecutor) (Student, error)

		QueryGradeTypes(ctx context.Context, exec ...core.DBExecutor) ([]GradeType, error)
		CreateGradeType(ctx context.Context, gt GradeType, exec ...core.DBExecutor) (GradeType, error)

		QueryGrades(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Grade, error)
		// ApplyChanges writes cs atomically: either every change is stored or none is.
		ApplyChanges(ctx context.Context, cs ChangeSet) error
	}

	Service struct {
		repo    Repository
		mailSvc core.EmailService
		conf    *core.Config
		logger  core.Logger
		scale   grid.Scale
	}
)

func NewService(repo Repository, mailSvc core.EmailService, conf *core.Config, logger core.Logger) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(mailSvc, "mailSvc"),
		vala.IsNotNil(conf, "conf"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	scale := grid.Scale{Min: conf.Grades.MinValue, Max: conf.Grades.MaxValue}
	if scale.Max <= scale.Min {
		scale = grid.DefaultScale
	}
	return &Service{repo: repo, mailSvc: mailSvc, conf: conf, logger: logger, scale: scale}
}

func (svc *Service) Scale() grid.Scale { return svc.scale }

func (svc *Service) Courses(ctx context.Context) ([]Course, error) {
	return svc.repo.QueryCourses(ctx)
}

func (svc *Service) Subjects(ctx context.Context, courseID string) ([]Subject, error) {
	return svc.repo.QuerySubjects(ctx, courseID)
}

func (svc *Service) Students(ctx context.Context, courseID string) ([]Student, error) {
	if _, err := svc.repo.GetCourse(ctx, courseID); err != nil {
		return nil, err
	}
	return svc.repo.QueryStudents(ctx, courseID)
}

func (svc *Service) GradeTypes(ctx context.Context) ([]GradeType, error) {
	return svc.repo.QueryGradeTypes(ctx)
}

func (svc *Service) Grades(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]Grade, error) {
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "date", Ascending: true}}
	}
	return svc.repo.QueryGrades(ctx, filter, ordering)
}

// changeSet converts a saved sheet batch into grade writes.
// Mutations without a date are dated today.
func changeSet(batch grid.Batch, now time.Time) ChangeSet {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	toGrade := func(m grid.Mutation) Grade {
		g := Grade{
			ID:          m.ID,
			StudentID:   m.Entity,
			SubjectID:   m.Fields["subject_id"],
			GradeTypeID: m.Category,
			Date:        m.Date,
			Value:       m.Value,
			UpdatedAt:   now,
		}
		if g.StudentID == "" {
			g.StudentID = m.Fields["student_id"]
		}
		if g.Date.IsZero() {
			g.Date = today
		}
		if teacherID := m.Fields["teacher_id"]; teacherID != "" {
			g.TeacherID = null.StringFrom(teacherID)
		}
		// course sheets never touch notes; a null value keeps the stored one
		if notes, ok := m.Fields["notes"]; ok {
			g.Notes = null.StringFrom(notes)
		}
		return g
	}

	cs := ChangeSet{
		Updated: make([]Grade, 0, len(batch.Updated)),
		Created: make([]Grade, 0, len(batch.Added)),
		Deleted: make([]string, 0, len(batch.Deleted)),
	}
	for _, m := range batch.Updated {
		cs.Updated = append(cs.Updated, toGrade(m))
	}
	for _, m := range batch.Added {
		g := toGrade(m)
		g.CreatedAt = now
		cs.Created = append(cs.Created, g)
	}
	for _, m := range batch.Deleted {
		cs.Deleted = append(cs.Deleted, m.ID)
	}
	return cs
}
