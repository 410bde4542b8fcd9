package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/trezcool/miescuela/core"
	"github.com/trezcool/miescuela/core/grade"
)

type (
	seedStudent struct {
		FirstName string `yaml:"first_name"`
		LastName  string `yaml:"last_name"`
		Inactive  bool   `yaml:"inactive"`
	}

	seedCourse struct {
		Name     string        `yaml:"name"`
		Year     int           `yaml:"year"`
		Division string        `yaml:"division"`
		Subjects []string      `yaml:"subjects"`
		Students []seedStudent `yaml:"students"`
	}

	// catalog is the layout of seed files.
	catalog struct {
		GradeTypes []string     `yaml:"grade_types"`
		Courses    []seedCourse `yaml:"courses"`
	}

	seedStats struct {
		gradeTypes, courses, subjects, students int
	}
)

func loadCatalog(path string) (catalog, error) {
	var cat catalog
	data, err := os.ReadFile(path)
	if err != nil {
		return cat, errors.Wrap(err, "reading catalog")
	}
	if err = yaml.Unmarshal(data, &cat); err != nil {
		return cat, errors.Wrap(err, "parsing catalog")
	}
	return cat, nil
}

// seed creates the catalog entries of the file at path that do not exist yet.
// Entries are matched by name, case insensitively, so seeding twice is harmless.
func (cli *commandLine) seed(path string) error {
	cat, err := loadCatalog(path)
	if err != nil {
		return err
	}
	ctx := context.Background()
	var stats seedStats

	gradeTypes, err := cli.gradeRepo.QueryGradeTypes(ctx)
	if err != nil {
		return errors.Wrap(err, "querying grade types")
	}
	for _, name := range cat.GradeTypes {
		if name = core.CleanString(name); name == "" || hasGradeType(gradeTypes, name) {
			continue
		}
		gt, err := cli.gradeRepo.CreateGradeType(ctx, grade.GradeType{Name: name})
		if err != nil {
			return errors.Wrapf(err, "creating grade type %q", name)
		}
		gradeTypes = append(gradeTypes, gt)
		stats.gradeTypes++
	}

	courses, err := cli.gradeRepo.QueryCourses(ctx)
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	for _, sc := range cat.Courses {
		course, created, err := cli.seedCourse(ctx, courses, sc)
		if err != nil {
			return err
		}
		if created {
			courses = append(courses, course)
			stats.courses++
		}
		if err = cli.seedCourseMembers(ctx, course, sc, &stats); err != nil {
			return err
		}
	}

	cli.logger.Info(fmt.Sprintf("seeded %d grade types, %d courses, %d subjects, %d students",
		stats.gradeTypes, stats.courses, stats.subjects, stats.students))
	return nil
}

func (cli *commandLine) seedCourse(ctx context.Context, courses []grade.Course, sc seedCourse) (grade.Course, bool, error) {
	name := core.CleanString(sc.Name)
	if name == "" {
		return grade.Course{}, false, errors.New("course without a name")
	}
	for _, c := range courses {
		if strings.EqualFold(c.Name, name) {
			return c, false, nil
		}
	}
	course, err := cli.gradeRepo.CreateCourse(ctx, grade.Course{Name: name, Year: sc.Year, Division: core.CleanString(sc.Division)})
	if err != nil {
		return grade.Course{}, false, errors.Wrapf(err, "creating course %q", name)
	}
	return course, true, nil
}

func (cli *commandLine) seedCourseMembers(ctx context.Context, course grade.Course, sc seedCourse, stats *seedStats) error {
	subjects, err := cli.gradeRepo.QuerySubjects(ctx, course.ID)
	if err != nil {
		return errors.Wrap(err, "querying subjects")
	}
	for _, name := range sc.Subjects {
		if name = core.CleanString(name); name == "" || hasSubject(subjects, name) {
			continue
		}
		subject, err := cli.gradeRepo.CreateSubject(ctx, grade.Subject{Name: name, CourseID: course.ID})
		if err != nil {
			return errors.Wrapf(err, "creating subject %q", name)
		}
		subjects = append(subjects, subject)
		stats.subjects++
	}

	students, err := cli.gradeRepo.QueryStudents(ctx, course.ID)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	for _, ss := range sc.Students {
		st := grade.Student{
			FirstName: core.CleanString(ss.FirstName),
			LastName:  core.CleanString(ss.LastName),
			CourseID:  course.ID,
			IsActive:  !ss.Inactive,
		}
		if (st.FirstName == "" && st.LastName == "") || hasStudent(students, st) {
			continue
		}
		created, err := cli.gradeRepo.CreateStudent(ctx, st)
		if err != nil {
			return errors.Wrapf(err, "creating student %q", st.FullName())
		}
		students = append(students, created)
		stats.students++
	}
	return nil
}

func hasGradeType(types []grade.GradeType, name string) bool {
	for _, gt := range types {
		if strings.EqualFold(gt.Name, name) {
			return true
		}
	}
	return false
}

func hasSubject(subjects []grade.Subject, name string) bool {
	for _, s := range subjects {
		if strings.EqualFold(s.Name, name) {
			return true
		}
	}
	return false
}

func hasStudent(students []grade.Student, st grade.Student) bool {
	for _, s := range students {
		if strings.EqualFold(s.FullName(), st.FullName()) {
			return true
		}
	}
	return false
}
