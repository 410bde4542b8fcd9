package grade

import (
	"strings"
	"time"

	"github.com/volatiletech/null/v8"
)

type Course struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Year     int    `json:"year" yaml:"year"`
	Division string `json:"division" yaml:"division"`
}

type Subject struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	CourseID string `json:"course_id" yaml:"course_id"`
}

type Student struct {
	ID        string `json:"id" yaml:"id"`
	FirstName string `json:"first_name" yaml:"first_name"`
	LastName  string `json:"last_name" yaml:"last_name"`
	CourseID  string `json:"course_id" yaml:"course_id"`
	IsActive  bool   `json:"is_active" yaml:"is_active"`
}

// FullName is "Last, First", the order sheets list students in.
func (s Student) FullName() string {
	switch {
	case s.LastName == "":
		return s.FirstName
	case s.FirstName == "":
		return s.LastName
	}
	return s.LastName + ", " + s.FirstName
}

type GradeType struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

type Grade struct {
	ID          string      `json:"id"`
	StudentID   string      `json:"student_id"`
	SubjectID   string      `json:"subject_id"`
	GradeTypeID string      `json:"grade_type_id"`
	Date        time.Time   `json:"date"` // UTC, day precision
	Value       float64     `json:"value"`
	Notes       null.String `json:"notes"`
	TeacherID   null.String `json:"teacher_id"`
	CreatedAt   time.Time   `json:"created_at"` // UTC
	UpdatedAt   time.Time   `json:"updated_at"` // UTC
}

// QueryFilter narrows grade queries; empty fields are ignored.
type QueryFilter struct {
	StudentID string `query:"student"`
	SubjectID string `query:"subject"`
	CourseID  string `query:"course"`
}

func (f QueryFilter) IsZero() bool {
	return f.StudentID == "" && f.SubjectID == "" && f.CourseID == ""
}

// ChangeSet is the set of grade writes produced by one sheet save.
type ChangeSet struct {
	Updated []Grade
	Created []Grade
	Deleted []string
}

func (cs ChangeSet) Len() int { return len(cs.Updated) + len(cs.Created) + len(cs.Deleted) }

// lessStudent orders students the way sheets list them.
func lessStudent(a, b Student) bool {
	la, lb := strings.ToLower(a.FullName()), strings.ToLower(b.FullName())
	if la != lb {
		return la < lb
	}
	return a.ID < b.ID
}
