package grade_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/miescuela/core"
	"github.com/trezcool/miescuela/core/grade"
	"github.com/trezcool/miescuela/core/grid"
	"github.com/trezcool/miescuela/core/user"
	inmemdb "github.com/trezcool/miescuela/storage/database/inmem"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

type mailRecorder struct {
	mu   sync.Mutex
	sent []*core.EmailMessage
}

func (m *mailRecorder) SendMessages(messages ...*core.EmailMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, messages...)
}

type fixture struct {
	svc     *grade.Service
	repo    grade.Repository
	mail    *mailRecorder
	teacher user.User
	course  grade.Course
	math    grade.Subject
	ana     grade.Student
	beto    grade.Student
	carla   grade.Student
	exam    grade.GradeType
	oral    grade.GradeType
	g1      grade.Grade
}

func date(s string) time.Time {
	t, _ := core.ParseDate(s)
	return t
}

func newFixture(t *testing.T, withGrades bool) *fixture {
	t.Helper()
	ctx := context.Background()
	repo := inmemdb.NewGradeRepository(inmemdb.NewDB())
	f := &fixture{repo: repo, mail: new(mailRecorder)}

	var err error
	f.course, err = repo.CreateCourse(ctx, grade.Course{Name: "1st A", Year: 1, Division: "A"})
	require.NoError(t, err)
	f.math, err = repo.CreateSubject(ctx, grade.Subject{Name: "Math", CourseID: f.course.ID})
	require.NoError(t, err)
	f.ana, err = repo.CreateStudent(ctx, grade.Student{FirstName: "Ana", LastName: "Garcia", CourseID: f.course.ID, IsActive: true})
	require.NoError(t, err)
	f.beto, err = repo.CreateStudent(ctx, grade.Student{FirstName: "Beto", LastName: "Diaz", CourseID: f.course.ID, IsActive: true})
	require.NoError(t, err)
	f.carla, err = repo.CreateStudent(ctx, grade.Student{FirstName: "Carla", LastName: "Ruiz", CourseID: f.course.ID})
	require.NoError(t, err)
	f.exam, err = repo.CreateGradeType(ctx, grade.GradeType{Name: "Exam"})
	require.NoError(t, err)
	f.oral, err = repo.CreateGradeType(ctx, grade.GradeType{Name: "Oral"})
	require.NoError(t, err)

	if withGrades {
		now := time.Now().UTC()
		g1 := grade.Grade{StudentID: f.ana.ID, SubjectID: f.math.ID, GradeTypeID: f.exam.ID, Date: date("2024-03-01"), Value: 8, CreatedAt: now, UpdatedAt: now}
		g2 := grade.Grade{StudentID: f.beto.ID, SubjectID: f.math.ID, GradeTypeID: f.exam.ID, Date: date("2024-03-01"), Value: 6, Notes: null.StringFrom("late"), CreatedAt: now, UpdatedAt: now}
		require.NoError(t, repo.ApplyChanges(ctx, grade.ChangeSet{Created: []grade.Grade{g1, g2}}))
		grades, err := repo.QueryGrades(ctx, grade.QueryFilter{StudentID: f.ana.ID}, nil)
		require.NoError(t, err)
		require.Len(t, grades, 1)
		f.g1 = grades[0]
	}

	f.teacher = user.User{ID: "t1", Name: "Tere Sosa", Email: "tere@test.test", Roles: []string{user.RoleTeacher}}
	conf := &core.Config{AppName: "MiEscuela", Grades: core.GradesConfig{MinValue: 0, MaxValue: 10, NotifyOnSave: true}}
	f.svc = grade.NewService(repo, f.mail, conf, nopLogger{})
	return f
}

func rowByEntity(t *testing.T, v grid.View, entity string) grid.RowView {
	t.Helper()
	for _, r := range v.Rows {
		if r.Entity == entity {
			return r
		}
	}
	t.Fatalf("row of %q not found", entity)
	return grid.RowView{}
}

func TestService_OpenCourseSheet(t *testing.T) {
	f := newFixture(t, true)
	sh, err := f.svc.OpenCourseSheet(context.Background(), f.teacher, f.course.ID, f.math.ID)
	require.NoError(t, err)

	v := sh.View()
	assert.Equal(t, "1st A - Math", v.Title)
	assert.Equal(t, grade.CourseSheet, v.Kind)
	assert.True(t, v.Grid.Editable)
	require.Len(t, v.Grid.Columns, 2)
	assert.Equal(t, grid.KindIdentity, v.Grid.Columns[0].Kind)
	assert.Equal(t, "Student", v.Grid.Columns[0].Label)
	assert.Equal(t, grid.CategoryKey(f.exam.ID, "2024-03-01"), v.Grid.Columns[1].Key)
	assert.Equal(t, "Exam", v.Grid.Columns[1].Label)

	require.Len(t, v.Grid.Rows, 2)
	assert.Equal(t, "Diaz, Beto", v.Grid.Rows[0].Label)
	assert.Equal(t, "Garcia, Ana", v.Grid.Rows[1].Label)
	assert.Equal(t, "8", v.Grid.Rows[1].Cells[1].Value)

	t.Run("read only for preceptors", func(t *testing.T) {
		preceptor := user.User{ID: "p1", Roles: []string{user.RolePreceptor}}
		sh, err := f.svc.OpenCourseSheet(context.Background(), preceptor, f.course.ID, f.math.ID)
		require.NoError(t, err)
		assert.False(t, sh.View().Grid.Editable)
	})

	t.Run("subject of another course", func(t *testing.T) {
		other, err := f.repo.CreateCourse(context.Background(), grade.Course{Name: "2nd A", Year: 2, Division: "A"})
		require.NoError(t, err)
		_, err = f.svc.OpenCourseSheet(context.Background(), f.teacher, other.ID, f.math.ID)
		require.IsType(t, &core.ValidationError{}, errors.Cause(err))
	})

	t.Run("unknown course", func(t *testing.T) {
		_, err := f.svc.OpenCourseSheet(context.Background(), f.teacher, "nope", f.math.ID)
		assert.Equal(t, grade.ErrNotFound, errors.Cause(err))
	})
}

func TestService_SaveSheet_course(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	sh, err := f.svc.OpenCourseSheet(ctx, f.teacher, f.course.ID, f.math.ID)
	require.NoError(t, err)

	examKey := grid.CategoryKey(f.exam.ID, "2024-03-01")
	var oralKey string
	require.NoError(t, sh.With(func(g *grid.Grid) error {
		var err error
		if oralKey, err = g.AddColumn(grid.Column{Label: "oral", Date: "2024-03-08"}); err != nil {
			return err
		}
		if err = g.ToggleRowEdit(f.ana.ID); err != nil {
			return err
		}
		if err = g.UpdateCell("9", f.ana.ID, examKey); err != nil {
			return err
		}
		if err = g.UpdateCell("7,5", f.ana.ID, oralKey); err != nil {
			return err
		}
		return g.ToggleRowEdit(f.ana.ID)
	}))

	saved, err := f.svc.SaveSheet(ctx, sh)
	require.NoError(t, err)
	require.True(t, saved)

	grades, err := f.svc.Grades(ctx, grade.QueryFilter{StudentID: f.ana.ID, SubjectID: f.math.ID})
	require.NoError(t, err)
	require.Len(t, grades, 2)
	assert.Equal(t, f.g1.ID, grades[0].ID)
	assert.Equal(t, 9.0, grades[0].Value)
	assert.Equal(t, f.oral.ID, grades[1].GradeTypeID)
	assert.Equal(t, date("2024-03-08"), grades[1].Date)
	assert.Equal(t, 7.5, grades[1].Value)
	assert.Equal(t, null.StringFrom("t1"), grades[1].TeacherID)
	assert.False(t, grades[1].Notes.Valid)

	beto, err := f.svc.Grades(ctx, grade.QueryFilter{StudentID: f.beto.ID})
	require.NoError(t, err)
	require.Len(t, beto, 1)
	assert.Equal(t, null.StringFrom("late"), beto[0].Notes)

	v := sh.View().Grid
	assert.False(t, v.HasChanges)
	require.Len(t, v.Columns, 3)
	assert.False(t, v.Columns[2].Added)
	assert.Equal(t, "7.5", rowByEntity(t, v, f.ana.ID).Cells[2].Value)

	require.Len(t, f.mail.sent, 1)
	msg := f.mail.sent[0]
	assert.Equal(t, "grades_saved", msg.TemplateName)
	assert.Equal(t, "tere@test.test", msg.To[0].Address)
	assert.Equal(t, "Grades saved: 1st A - Math", msg.Subject)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "1st_A_-_Math.xlsx", msg.Attachments[0].Filename)

	t.Run("nothing to save", func(t *testing.T) {
		saved, err := f.svc.SaveSheet(ctx, sh)
		require.NoError(t, err)
		assert.False(t, saved)
		assert.Len(t, f.mail.sent, 1)
	})
}

func TestService_SaveSheet_invalidRow(t *testing.T) {
	f := newFixture(t, true)
	sh, err := f.svc.OpenCourseSheet(context.Background(), f.teacher, f.course.ID, f.math.ID)
	require.NoError(t, err)

	examKey := grid.CategoryKey(f.exam.ID, "2024-03-01")
	require.NoError(t, sh.With(func(g *grid.Grid) error {
		if err := g.ToggleRowEdit(f.beto.ID); err != nil {
			return err
		}
		return g.UpdateCell("11", f.beto.ID, examKey)
	}))

	saved, err := f.svc.SaveSheet(context.Background(), sh)
	assert.False(t, saved)
	require.IsType(t, &grid.RowError{}, err)
	assert.Equal(t, "Diaz, Beto, Exam (2024-03-01): value must be between 0 and 10", err.Error())

	v := sh.View()
	assert.Equal(t, []string{err.Error()}, v.Notices)
	assert.Equal(t, f.beto.ID, v.Focus)
	assert.Equal(t, grid.StateEditing, rowByEntity(t, v.Grid, f.beto.ID).State)
	assert.Empty(t, sh.View().Notices)
	assert.Empty(t, f.mail.sent)
}

func TestService_OpenCourseSheet_empty(t *testing.T) {
	f := newFixture(t, false)
	sh, err := f.svc.OpenCourseSheet(context.Background(), f.teacher, f.course.ID, f.math.ID)
	require.NoError(t, err)

	require.NoError(t, sh.With(func(g *grid.Grid) error {
		_, err := g.AddColumn(grid.Column{Category: f.exam.ID, Date: "2024-04-01"})
		return err
	}))

	v := sh.View().Grid
	require.Len(t, v.Rows, 2)
	assert.ElementsMatch(t, []string{f.ana.ID, f.beto.ID}, []string{v.Rows[0].Entity, v.Rows[1].Entity})
	for _, r := range v.Rows {
		assert.Equal(t, grid.StateEditing, r.State)
	}
}

func TestService_SaveSheet_student(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	sh, err := f.svc.OpenStudentSheet(ctx, f.teacher, f.beto.ID, f.math.ID)
	require.NoError(t, err)

	v := sh.View()
	assert.Equal(t, "Diaz, Beto - Math", v.Title)
	require.Len(t, v.Grid.Rows, 1)
	assert.Equal(t, []string{"Exam", "2024-03-01", "6", "late"}, cellValues(v.Grid.Rows[0]))

	require.NoError(t, sh.With(func(g *grid.Grid) error {
		key, err := g.AddRow()
		if err != nil {
			return err
		}
		for col, val := range map[string]string{"grade_type": "Oral", "date": "2024-03-15", "value": "10", "notes": "great"} {
			if err = g.UpdateCell(val, key, col); err != nil {
				return err
			}
		}
		if err = g.RequestRowDeletion(0); err != nil {
			return err
		}
		return g.ConfirmDeletion()
	}))

	saved, err := f.svc.SaveSheet(ctx, sh)
	require.NoError(t, err)
	require.True(t, saved)

	grades, err := f.svc.Grades(ctx, grade.QueryFilter{StudentID: f.beto.ID})
	require.NoError(t, err)
	require.Len(t, grades, 1)
	assert.Equal(t, f.oral.ID, grades[0].GradeTypeID)
	assert.Equal(t, 10.0, grades[0].Value)
	assert.Equal(t, null.StringFrom("great"), grades[0].Notes)

	v = sh.View()
	require.Len(t, v.Grid.Rows, 1)
	assert.Equal(t, grades[0].ID, v.Grid.Rows[0].Key)
	assert.Equal(t, []string{"Oral", "2024-03-15", "10", "great"}, cellValues(v.Grid.Rows[0]))
}

func TestService_SaveSheet_duplicateGrade(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	sh, err := f.svc.OpenStudentSheet(ctx, f.teacher, f.ana.ID, f.math.ID)
	require.NoError(t, err)

	require.NoError(t, sh.With(func(g *grid.Grid) error {
		key, err := g.AddRow()
		if err != nil {
			return err
		}
		for col, val := range map[string]string{"grade_type": "exam", "date": "2024-03-01", "value": "4"} {
			if err = g.UpdateCell(val, key, col); err != nil {
				return err
			}
		}
		return nil
	}))

	saved, err := f.svc.SaveSheet(ctx, sh)
	assert.False(t, saved)
	require.IsType(t, &core.ConflictError{}, errors.Cause(err))
	assert.True(t, sh.View().Grid.HasChanges)

	grades, err := f.svc.Grades(ctx, grade.QueryFilter{StudentID: f.ana.ID})
	require.NoError(t, err)
	assert.Len(t, grades, 1)
}

// reloadFailRepo fails every subject lookup once a change set has been applied.
type reloadFailRepo struct {
	grade.Repository
	applied bool
}

func (r *reloadFailRepo) ApplyChanges(ctx context.Context, cs grade.ChangeSet) error {
	if err := r.Repository.ApplyChanges(ctx, cs); err != nil {
		return err
	}
	r.applied = true
	return nil
}

func (r *reloadFailRepo) GetSubject(ctx context.Context, id string, exec ...core.DBExecutor) (grade.Subject, error) {
	if r.applied {
		return grade.Subject{}, errors.New("connection reset")
	}
	return r.Repository.GetSubject(ctx, id, exec...)
}

func TestService_SaveSheet_reloadFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	repo := &reloadFailRepo{Repository: f.repo}
	conf := &core.Config{Grades: core.GradesConfig{MinValue: 0, MaxValue: 10}}
	svc := grade.NewService(repo, f.mail, conf, nopLogger{})

	sh, err := svc.OpenCourseSheet(ctx, f.teacher, f.course.ID, f.math.ID)
	require.NoError(t, err)
	require.NoError(t, sh.With(func(g *grid.Grid) error {
		key, err := g.AddColumn(grid.Column{Label: "oral", Date: "2024-03-08"})
		if err != nil {
			return err
		}
		if err = g.ToggleRowEdit(f.ana.ID); err != nil {
			return err
		}
		return g.UpdateCell("7", f.ana.ID, key)
	}))

	saved, err := svc.SaveSheet(ctx, sh)
	assert.True(t, saved)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reloading sheet")

	v := sh.View()
	assert.Empty(t, v.Grid.Rows)
	assert.False(t, v.Grid.HasChanges)
	assert.False(t, v.Grid.Editable)
	assert.NotEmpty(t, v.Notices)

	saved, err = svc.SaveSheet(ctx, sh)
	require.NoError(t, err)
	assert.False(t, saved)

	grades, err := f.svc.Grades(ctx, grade.QueryFilter{StudentID: f.ana.ID, SubjectID: f.math.ID})
	require.NoError(t, err)
	assert.Len(t, grades, 2)
}

func TestService_OpenStudentSheet_inactive(t *testing.T) {
	f := newFixture(t, false)
	sh, err := f.svc.OpenStudentSheet(context.Background(), f.teacher, f.carla.ID, f.math.ID)
	require.NoError(t, err)
	assert.False(t, sh.View().Grid.Editable)
}

func TestService_ExportSheet(t *testing.T) {
	f := newFixture(t, true)
	sh, err := f.svc.OpenCourseSheet(context.Background(), f.teacher, f.course.ID, f.math.ID)
	require.NoError(t, err)

	buf, err := f.svc.ExportSheet(sh)
	require.NoError(t, err)

	wb, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	defer func() { _ = wb.Close() }()

	rows, err := wb.GetRows("Grades")
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"Student", "Exam (2024-03-01)"},
		{"Diaz, Beto", "6"},
		{"Garcia, Ana", "8"},
	}, rows)
}

func TestSheetRequest_Validate(t *testing.T) {
	validate := validator.New()
	tests := []struct {
		name    string
		req     grade.SheetRequest
		wantErr bool
	}{
		{name: "course", req: grade.SheetRequest{Kind: grade.CourseSheet, CourseID: " c1 ", SubjectID: "s1"}},
		{name: "student", req: grade.SheetRequest{Kind: grade.StudentSheet, StudentID: "st1", SubjectID: "s1"}},
		{name: "unknown kind", req: grade.SheetRequest{Kind: "school", SubjectID: "s1"}, wantErr: true},
		{name: "no subject", req: grade.SheetRequest{Kind: grade.CourseSheet, CourseID: "c1"}, wantErr: true},
		{name: "course sheet without course", req: grade.SheetRequest{Kind: grade.CourseSheet, SubjectID: "s1"}, wantErr: true},
		{name: "student sheet without student", req: grade.SheetRequest{Kind: grade.StudentSheet, SubjectID: "s1"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate(validate)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func cellValues(r grid.RowView) []string {
	values := make([]string, 0, len(r.Cells))
	for _, c := range r.Cells {
		values = append(values, c.Value)
	}
	return values
}
