package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/miescuela/core"
	"github.com/trezcool/miescuela/core/grade"
)

type gradeRepository struct {
	db *gradeTables
}

var _ grade.Repository = (*gradeRepository)(nil) // interface compliance check

func NewGradeRepository(db *DB) *gradeRepository {
	return &gradeRepository{db: db.grades}
}

func newID(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}

func (repo *gradeRepository) QueryCourses(context.Context, ...core.DBExecutor) ([]grade.Course, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	courses := make([]grade.Course, 0, len(repo.db.courses))
	for _, c := range repo.db.courses {
		courses = append(courses, c)
	}
	sort.Slice(courses, func(i, j int) bool {
		if courses[i].Year != courses[j].Year {
			return courses[i].Year < courses[j].Year
		}
		return courses[i].Division < courses[j].Division
	})
	return courses, nil
}

func (repo *gradeRepository) GetCourse(_ context.Context, id string, _ ...core.DBExecutor) (grade.Course, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if c, ok := repo.db.courses[id]; ok {
		return c, nil
	}
	return grade.Course{}, errors.Wrapf(grade.ErrNotFound, "course %q", id)
}

func (repo *gradeRepository) CreateCourse(_ context.Context, course grade.Course, _ ...core.DBExecutor) (grade.Course, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, c := range repo.db.courses {
		if c.Year == course.Year && c.Division == course.Division {
			return grade.Course{}, core.NewConflictError(errors.Errorf("course %d%s already exists", course.Year, course.Division))
		}
	}
	course.ID = newID(course.ID)
	repo.db.courses[course.ID] = course
	return course, nil
}

func (repo *gradeRepository) QuerySubjects(_ context.Context, courseID string, _ ...core.DBExecutor) ([]grade.Subject, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	subjects := make([]grade.Subject, 0)
	for _, s := range repo.db.subjects {
		if courseID == "" || s.CourseID == courseID {
			subjects = append(subjects, s)
		}
	}
	sort.Slice(subjects, func(i, j int) bool { return subjects[i].Name < subjects[j].Name })
	return subjects, nil
}

func (repo *gradeRepository) GetSubject(_ context.Context, id string, _ ...core.DBExecutor) (grade.Subject, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if s, ok := repo.db.subjects[id]; ok {
		return s, nil
	}
	return grade.Subject{}, errors.Wrapf(grade.ErrNotFound, "subject %q", id)
}

func (repo *gradeRepository) CreateSubject(_ context.Context, subject grade.Subject, _ ...core.DBExecutor) (grade.Subject, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.courses[subject.CourseID]; !ok {
		return grade.Subject{}, errors.Wrapf(grade.ErrNotFound, "course %q", subject.CourseID)
	}
	for _, s := range repo.db.subjects {
		if s.CourseID == subject.CourseID && s.Name == subject.Name {
			return grade.Subject{}, core.NewConflictError(errors.Errorf("subject %q already exists", subject.Name))
		}
	}
	subject.ID = newID(subject.ID)
	repo.db.subjects[subject.ID] = subject
	return subject, nil
}

func (repo *gradeRepository) QueryStudents(_ context.Context, courseID string, _ ...core.DBExecutor) ([]grade.Student, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	students := make([]grade.Student, 0)
	for _, s := range repo.db.students {
		if courseID == "" || s.CourseID == courseID {
			students = append(students, s)
		}
	}
	sort.Slice(students, func(i, j int) bool {
		if students[i].LastName != students[j].LastName {
			return students[i].LastName < students[j].LastName
		}
		return students[i].FirstName < students[j].FirstName
	})
	return students, nil
}

func (repo *gradeRepository) GetStudent(_ context.Context, id string, _ ...core.DBExecutor) (grade.Student, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if s, ok := repo.db.students[id]; ok {
		return s, nil
	}
	return grade.Student{}, errors.Wrapf(grade.ErrNotFound, "student %q", id)
}

func (repo *gradeRepository) CreateStudent(_ context.Context, student grade.Student, _ ...core.DBExecutor) (grade.Student, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	student.ID = newID(student.ID)
	repo.db.students[student.ID] = student
	return student, nil
}

func (repo *gradeRepository) QueryGradeTypes(context.Context, ...core.DBExecutor) ([]grade.GradeType, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	types := make([]grade.GradeType, 0, len(repo.db.gradeTypes))
	for _, gt := range repo.db.gradeTypes {
		types = append(types, gt)
	}
	sort.Slice(types, func(i, j int) bool { return types[i].Name < types[j].Name })
	return types, nil
}

func (repo *gradeRepository) CreateGradeType(_ context.Context, gt grade.GradeType, _ ...core.DBExecutor) (grade.GradeType, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, t := range repo.db.gradeTypes {
		if strings.EqualFold(t.Name, gt.Name) {
			return grade.GradeType{}, core.NewConflictError(errors.Errorf("grade type %q already exists", gt.Name))
		}
	}
	gt.ID = newID(gt.ID)
	repo.db.gradeTypes[gt.ID] = gt
	return gt, nil
}

func (repo *gradeRepository) QueryGrades(_ context.Context, filter grade.QueryFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]grade.Grade, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	grades := make([]grade.Grade, 0)
	for _, g := range repo.db.grades {
		if filter.StudentID != "" && g.StudentID != filter.StudentID {
			continue
		}
		if filter.SubjectID != "" && g.SubjectID != filter.SubjectID {
			continue
		}
		if filter.CourseID != "" && repo.db.students[g.StudentID].CourseID != filter.CourseID {
			continue
		}
		grades = append(grades, g)
	}

	sort.Slice(grades, func(i, j int) bool {
		a, b := grades[i], grades[j]
		for _, ord := range ordering {
			var less, greater bool
			switch ord.Field {
			case "date":
				less, greater = a.Date.Before(b.Date), a.Date.After(b.Date)
			case "value":
				less, greater = a.Value < b.Value, a.Value > b.Value
			case "created_at":
				less, greater = a.CreatedAt.Before(b.CreatedAt), a.CreatedAt.After(b.CreatedAt)
			default:
				continue
			}
			if less || greater {
				return less == ord.Ascending
			}
		}
		return a.ID < b.ID
	})
	return grades, nil
}

// ApplyChanges validates the whole change set before writing any of it.
func (repo *gradeRepository) ApplyChanges(_ context.Context, cs grade.ChangeSet) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	next := make(map[string]grade.Grade, len(repo.db.grades)+len(cs.Created))
	for id, g := range repo.db.grades {
		next[id] = g
	}

	for _, id := range cs.Deleted {
		if _, ok := next[id]; !ok {
			return errors.Wrapf(grade.ErrNotFound, "grade %q", id)
		}
		delete(next, id)
	}
	for _, g := range cs.Updated {
		orig, ok := next[g.ID]
		if !ok {
			return errors.Wrapf(grade.ErrNotFound, "grade %q", g.ID)
		}
		if !g.Notes.Valid {
			g.Notes = orig.Notes
		}
		if g.StudentID == "" {
			g.StudentID = orig.StudentID
		}
		if g.SubjectID == "" {
			g.SubjectID = orig.SubjectID
		}
		g.CreatedAt = orig.CreatedAt
		next[g.ID] = g
	}
	for _, g := range cs.Created {
		if _, ok := repo.db.students[g.StudentID]; !ok {
			return errors.Wrapf(grade.ErrNotFound, "student %q", g.StudentID)
		}
		g.ID = newID(g.ID)
		next[g.ID] = g
	}

	type uniqueKey struct {
		student, subject, gradeType, date string
	}
	seen := make(map[uniqueKey]bool, len(next))
	for _, g := range next {
		key := uniqueKey{g.StudentID, g.SubjectID, g.GradeTypeID, core.FormatDate(g.Date)}
		if seen[key] {
			return core.NewConflictError(grade.ErrDuplicateGrade)
		}
		seen[key] = true
	}

	repo.db.grades = next
	return nil
}
