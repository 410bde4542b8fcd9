package main

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/miescuela/core"
	"github.com/trezcool/miescuela/core/grade"
	"github.com/trezcool/miescuela/core/user"
)

const (
	demoUsername = "demo"
	demoCourse   = "course-1a"
	demoSubject  = "subject-math-1a"
)

var demoStudents = []grade.Student{
	{ID: "student-ana", FirstName: "Ana", LastName: "Garcia", IsActive: true},
	{ID: "student-beto", FirstName: "Beto", LastName: "Diaz", IsActive: true},
	{ID: "student-carla", FirstName: "Carla", LastName: "Ruiz", IsActive: true},
	{ID: "student-dario", FirstName: "Dario", LastName: "Lopez"},
}

// seedDemo fills empty repositories with a course the demo teacher can grade.
func seedDemo(ctx context.Context, usrRepo user.Repository, gradeRepo grade.Repository) error {
	now := time.Now().UTC()

	teacher := user.User{
		Name:      "Demo Teacher",
		Username:  demoUsername,
		Email:     "demo@miescuela.test",
		Roles:     []string{user.RoleTeacher},
		CreatedAt: now,
		UpdatedAt: now,
	}
	teacher.SetActive(true)
	teacher, err := usrRepo.CreateUser(ctx, teacher)
	if err != nil {
		return errors.Wrap(err, "creating demo teacher")
	}

	if _, err = gradeRepo.CreateCourse(ctx, grade.Course{ID: demoCourse, Name: "1st A", Year: 1, Division: "A"}); err != nil {
		return errors.Wrap(err, "creating demo course")
	}
	if _, err = gradeRepo.CreateSubject(ctx, grade.Subject{ID: demoSubject, Name: "Math", CourseID: demoCourse}); err != nil {
		return errors.Wrap(err, "creating demo subject")
	}
	for _, st := range demoStudents {
		st.CourseID = demoCourse
		if _, err = gradeRepo.CreateStudent(ctx, st); err != nil {
			return errors.Wrapf(err, "creating demo student %q", st.FullName())
		}
	}

	exam, err := gradeRepo.CreateGradeType(ctx, grade.GradeType{ID: "type-exam", Name: "Exam"})
	if err != nil {
		return errors.Wrap(err, "creating grade types")
	}
	if _, err = gradeRepo.CreateGradeType(ctx, grade.GradeType{ID: "type-oral", Name: "Oral"}); err != nil {
		return errors.Wrap(err, "creating grade types")
	}

	examDate, err := core.ParseDate("2024-03-01")
	if err != nil {
		return err
	}
	teacherID := null.StringFrom(teacher.ID)
	cs := grade.ChangeSet{Created: []grade.Grade{
		{StudentID: "student-ana", SubjectID: demoSubject, GradeTypeID: exam.ID, Date: examDate, Value: 8, TeacherID: teacherID, CreatedAt: now, UpdatedAt: now},
		{StudentID: "student-beto", SubjectID: demoSubject, GradeTypeID: exam.ID, Date: examDate, Value: 6.5, TeacherID: teacherID, CreatedAt: now, UpdatedAt: now},
		{StudentID: "student-dario", SubjectID: demoSubject, GradeTypeID: exam.ID, Date: examDate, Value: 4, Notes: null.StringFrom("left in April"), TeacherID: teacherID, CreatedAt: now, UpdatedAt: now},
	}}
	return errors.Wrap(gradeRepo.ApplyChanges(ctx, cs), "creating demo grades")
}
