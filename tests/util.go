package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trezcool/miescuela/core"
	"github.com/trezcool/miescuela/core/grade"
	"github.com/trezcool/miescuela/core/user"
)

// NopLogger discards every event.
type NopLogger struct{}

func (NopLogger) Debug(string, ...interface{}) {}
func (NopLogger) Info(string, ...interface{})  {}
func (NopLogger) Warn(string, ...interface{})  {}
func (NopLogger) Error(string, ...interface{}) {}
func (NopLogger) Fatal(string, ...interface{}) {}

var _ core.Logger = NopLogger{}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	usr.SetActive(isActive)
	if pwd != "" {
		require.NoError(t, usr.SetPassword(pwd), "createUser() failed")
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	require.NoError(t, err, "createUser() failed")
	return usr
}

// School is a small course with one subject, two grade types and three students (Carla is inactive).
type School struct {
	Course   grade.Course
	Math     grade.Subject
	Ana      grade.Student
	Beto     grade.Student
	Carla    grade.Student
	Exam     grade.GradeType
	Oral     grade.GradeType
	ExamDate time.Time
}

// SeedSchool creates a School and grades Ana (8) and Beto (6) on an exam.
func SeedSchool(t *testing.T, repo grade.Repository) School {
	t.Helper()
	ctx := context.Background()
	var (
		s   School
		err error
	)
	s.Course, err = repo.CreateCourse(ctx, grade.Course{Name: "1st A", Year: 1, Division: "A"})
	require.NoError(t, err)
	s.Math, err = repo.CreateSubject(ctx, grade.Subject{Name: "Math", CourseID: s.Course.ID})
	require.NoError(t, err)
	s.Ana, err = repo.CreateStudent(ctx, grade.Student{FirstName: "Ana", LastName: "Garcia", CourseID: s.Course.ID, IsActive: true})
	require.NoError(t, err)
	s.Beto, err = repo.CreateStudent(ctx, grade.Student{FirstName: "Beto", LastName: "Diaz", CourseID: s.Course.ID, IsActive: true})
	require.NoError(t, err)
	s.Carla, err = repo.CreateStudent(ctx, grade.Student{FirstName: "Carla", LastName: "Ruiz", CourseID: s.Course.ID})
	require.NoError(t, err)
	s.Exam, err = repo.CreateGradeType(ctx, grade.GradeType{Name: "Exam"})
	require.NoError(t, err)
	s.Oral, err = repo.CreateGradeType(ctx, grade.GradeType{Name: "Oral"})
	require.NoError(t, err)

	s.ExamDate, err = core.ParseDate("2024-03-01")
	require.NoError(t, err)
	now := time.Now().UTC()
	require.NoError(t, repo.ApplyChanges(ctx, grade.ChangeSet{Created: []grade.Grade{
		{StudentID: s.Ana.ID, SubjectID: s.Math.ID, GradeTypeID: s.Exam.ID, Date: s.ExamDate, Value: 8, CreatedAt: now, UpdatedAt: now},
		{StudentID: s.Beto.ID, SubjectID: s.Math.ID, GradeTypeID: s.Exam.ID, Date: s.ExamDate, Value: 6, CreatedAt: now, UpdatedAt: now},
	}}))
	return s
}
