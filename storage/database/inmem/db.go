// Package inmemdb holds map backed repositories used by tests and the terminal editor's demo mode.
package inmemdb

import (
	"sync"

	"github.com/trezcool/miescuela/core/grade"
	"github.com/trezcool/miescuela/core/user"
)

type (
	userTable struct {
		mutex sync.RWMutex
		table map[string]*user.User
	}

	// gradeTables share one lock so ApplyChanges can be atomic.
	gradeTables struct {
		mutex      sync.RWMutex
		courses    map[string]grade.Course
		subjects   map[string]grade.Subject
		students   map[string]grade.Student
		gradeTypes map[string]grade.GradeType
		grades     map[string]grade.Grade
	}

	DB struct {
		user   *userTable
		grades *gradeTables
	}
)

func NewDB() *DB {
	return &DB{
		user: &userTable{table: make(map[string]*user.User)},
		grades: &gradeTables{
			courses:    make(map[string]grade.Course),
			subjects:   make(map[string]grade.Subject),
			students:   make(map[string]grade.Student),
			gradeTypes: make(map[string]grade.GradeType),
			grades:     make(map[string]grade.Grade),
		},
	}
}
