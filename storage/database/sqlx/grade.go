package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/strmangle"

	"github.com/trezcool/miescuela/core"
	"github.com/trezcool/miescuela/core/grade"
	"github.com/trezcool/miescuela/storage/database"
)

var (
	gradeColumns = []string{
		"id", "student_id", "subject_id", "grade_type_id", "date", "value", "notes", "teacher_id", "created_at", "updated_at",
	}
	gradeOrderings = map[string]string{
		"date":       `g."date"`,
		"value":      `g."value"`,
		"created_at": `g."created_at"`,
		"student":    `g."student_id"`,
	}
)

type (
	courseRow struct {
		ID       string `db:"id"`
		Name     string `db:"name"`
		Year     int    `db:"year"`
		Division string `db:"division"`
	}

	subjectRow struct {
		ID       string `db:"id"`
		Name     string `db:"name"`
		CourseID string `db:"course_id"`
	}

	studentRow struct {
		ID        string      `db:"id"`
		FirstName string      `db:"first_name"`
		LastName  string      `db:"last_name"`
		CourseID  null.String `db:"course_id"`
		IsActive  bool        `db:"is_active"`
	}

	gradeTypeRow struct {
		ID   string `db:"id"`
		Name string `db:"name"`
	}

	gradeRow struct {
		ID          string      `db:"id"`
		StudentID   string      `db:"student_id"`
		SubjectID   string      `db:"subject_id"`
		GradeTypeID string      `db:"grade_type_id"`
		Date        time.Time   `db:"date"`
		Value       float64     `db:"value"`
		Notes       null.String `db:"notes"`
		TeacherID   null.String `db:"teacher_id"`
		CreatedAt   time.Time   `db:"created_at"`
		UpdatedAt   time.Time   `db:"updated_at"`
	}
)

func (r studentRow) student() grade.Student {
	return grade.Student{ID: r.ID, FirstName: r.FirstName, LastName: r.LastName, CourseID: r.CourseID.String, IsActive: r.IsActive}
}

func (r gradeRow) grade() grade.Grade {
	return grade.Grade{
		ID:          r.ID,
		StudentID:   r.StudentID,
		SubjectID:   r.SubjectID,
		GradeTypeID: r.GradeTypeID,
		Date:        time.Date(r.Date.Year(), r.Date.Month(), r.Date.Day(), 0, 0, 0, 0, time.UTC),
		Value:       r.Value,
		Notes:       r.Notes,
		TeacherID:   r.TeacherID,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

type gradeRepository struct {
	db *sqlx.DB
}

var _ grade.Repository = (*gradeRepository)(nil) // interface compliance check

func NewGradeRepository(db *sqlx.DB) *gradeRepository {
	return &gradeRepository{db: db}
}

func (repo gradeRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 {
		return svcExec[0]
	}
	return repo.db
}

func (repo gradeRepository) rows(ctx context.Context, exec core.DBExecutor, q string, args ...interface{}) (*sqlx.Rows, error) {
	rows, err := exec.QueryContext(ctx, repo.db.Rebind(q), args...)
	if err != nil {
		return nil, err
	}
	return &sqlx.Rows{Rows: rows, Mapper: repo.db.Mapper}, nil
}

// selectAll scans every row of the query into dest, a pointer to a slice of db tagged structs.
func (repo gradeRepository) selectAll(ctx context.Context, exec core.DBExecutor, dest interface{}, q string, args ...interface{}) error {
	rows, err := repo.rows(ctx, exec, q, args...)
	if err != nil {
		return err
	}
	return sqlx.StructScan(rows, dest)
}

// get scans the first row of the query into dest; without rows it returns grade.ErrNotFound.
func (repo gradeRepository) get(ctx context.Context, exec core.DBExecutor, dest interface{}, what string, q string, args ...interface{}) error {
	rows, err := repo.rows(ctx, exec, q, args...)
	if err != nil {
		return errors.Wrapf(err, "getting %s", what)
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		if err = rows.Err(); err != nil {
			return errors.Wrapf(err, "getting %s", what)
		}
		return errors.Wrap(grade.ErrNotFound, what)
	}
	return errors.Wrapf(rows.StructScan(dest), "scanning %s", what)
}

// insert writes one row and maps unique violations to conflicts.
func (repo gradeRepository) insert(ctx context.Context, exec core.DBExecutor, table string, columns []string, values ...interface{}) error {
	q := fmt.Sprintf(`INSERT INTO "%s" (%s) VALUES (%s)`,
		table,
		strings.Join(strmangle.IdentQuoteSlice('"', '"', columns), ", "),
		strmangle.Placeholders(true, len(columns), 1, 1),
	)
	if _, err := exec.ExecContext(ctx, q, values...); err != nil {
		if database.IsUniqueViolation(err) {
			return core.NewConflictError(errors.Errorf("%s already exists", table))
		}
		return errors.Wrapf(err, "inserting %s", table)
	}
	return nil
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func newID(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}

func (repo gradeRepository) QueryCourses(ctx context.Context, exec ...core.DBExecutor) ([]grade.Course, error) {
	var rows []courseRow
	q := `SELECT "id", "name", "year", "division" FROM "course" ORDER BY "year", "division"`
	if err := repo.selectAll(ctx, repo.getExec(exec), &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying courses")
	}
	courses := make([]grade.Course, 0, len(rows))
	for _, r := range rows {
		courses = append(courses, grade.Course(r))
	}
	return courses, nil
}

func (repo gradeRepository) GetCourse(ctx context.Context, id string, exec ...core.DBExecutor) (grade.Course, error) {
	if !validID(id) {
		return grade.Course{}, errors.Wrapf(grade.ErrNotFound, "course %q", id)
	}
	var r courseRow
	q := `SELECT "id", "name", "year", "division" FROM "course" WHERE "id" = ?`
	if err := repo.get(ctx, repo.getExec(exec), &r, "course", q, id); err != nil {
		return grade.Course{}, err
	}
	return grade.Course(r), nil
}

func (repo gradeRepository) CreateCourse(ctx context.Context, course grade.Course, exec ...core.DBExecutor) (grade.Course, error) {
	course.ID = newID(course.ID)
	err := repo.insert(ctx, repo.getExec(exec), "course", []string{"id", "name", "year", "division"},
		course.ID, course.Name, course.Year, course.Division)
	if err != nil {
		return grade.Course{}, err
	}
	return course, nil
}

func (repo gradeRepository) QuerySubjects(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]grade.Subject, error) {
	var (
		rows []subjectRow
		args []interface{}
	)
	q := `SELECT "id", "name", "course_id" FROM "subject"`
	if courseID != "" {
		if !validID(courseID) {
			return []grade.Subject{}, nil
		}
		q += ` WHERE "course_id" = ?`
		args = append(args, courseID)
	}
	q += ` ORDER BY "name"`
	if err := repo.selectAll(ctx, repo.getExec(exec), &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying subjects")
	}
	subjects := make([]grade.Subject, 0, len(rows))
	for _, r := range rows {
		subjects = append(subjects, grade.Subject(r))
	}
	return subjects, nil
}

func (repo gradeRepository) GetSubject(ctx context.Context, id string, exec ...core.DBExecutor) (grade.Subject, error) {
	if !validID(id) {
		return grade.Subject{}, errors.Wrapf(grade.ErrNotFound, "subject %q", id)
	}
	var r subjectRow
	q := `SELECT "id", "name", "course_id" FROM "subject" WHERE "id" = ?`
	if err := repo.get(ctx, repo.getExec(exec), &r, "subject", q, id); err != nil {
		return grade.Subject{}, err
	}
	return grade.Subject(r), nil
}

func (repo gradeRepository) CreateSubject(ctx context.Context, subject grade.Subject, exec ...core.DBExecutor) (grade.Subject, error) {
	subject.ID = newID(subject.ID)
	err := repo.insert(ctx, repo.getExec(exec), "subject", []string{"id", "name", "course_id"},
		subject.ID, subject.Name, subject.CourseID)
	if err != nil {
		return grade.Subject{}, err
	}
	return subject, nil
}

func (repo gradeRepository) QueryStudents(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]grade.Student, error) {
	var (
		rows []studentRow
		args []interface{}
	)
	q := `SELECT "id", "first_name", "last_name", "course_id", "is_active" FROM "student"`
	if courseID != "" {
		if !validID(courseID) {
			return []grade.Student{}, nil
		}
		q += ` WHERE "course_id" = ?`
		args = append(args, courseID)
	}
	q += ` ORDER BY "last_name", "first_name"`
	if err := repo.selectAll(ctx, repo.getExec(exec), &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	students := make([]grade.Student, 0, len(rows))
	for _, r := range rows {
		students = append(students, r.student())
	}
	return students, nil
}

func (repo gradeRepository) GetStudent(ctx context.Context, id string, exec ...core.DBExecutor) (grade.Student, error) {
	if !validID(id) {
		return grade.Student{}, errors.Wrapf(grade.ErrNotFound, "student %q", id)
	}
	var r studentRow
	q := `SELECT "id", "first_name", "last_name", "course_id", "is_active" FROM "student" WHERE "id" = ?`
	if err := repo.get(ctx, repo.getExec(exec), &r, "student", q, id); err != nil {
		return grade.Student{}, err
	}
	return r.student(), nil
}

func (repo gradeRepository) CreateStudent(ctx context.Context, student grade.Student, exec ...core.DBExecutor) (grade.Student, error) {
	student.ID = newID(student.ID)
	err := repo.insert(ctx, repo.getExec(exec), "student", []string{"id", "first_name", "last_name", "course_id", "is_active"},
		student.ID, student.FirstName, student.LastName, null.NewString(student.CourseID, student.CourseID != ""), student.IsActive)
	if err != nil {
		return grade.Student{}, err
	}
	return student, nil
}

func (repo gradeRepository) QueryGradeTypes(ctx context.Context, exec ...core.DBExecutor) ([]grade.GradeType, error) {
	var rows []gradeTypeRow
	if err := repo.selectAll(ctx, repo.getExec(exec), &rows, `SELECT "id", "name" FROM "grade_type" ORDER BY "name"`); err != nil {
		return nil, errors.Wrap(err, "querying grade types")
	}
	types := make([]grade.GradeType, 0, len(rows))
	for _, r := range rows {
		types = append(types, grade.GradeType(r))
	}
	return types, nil
}

func (repo gradeRepository) CreateGradeType(ctx context.Context, gt grade.GradeType, exec ...core.DBExecutor) (grade.GradeType, error) {
	gt.ID = newID(gt.ID)
	if err := repo.insert(ctx, repo.getExec(exec), "grade_type", []string{"id", "name"}, gt.ID, gt.Name); err != nil {
		return grade.GradeType{}, err
	}
	return gt, nil
}

func (repo gradeRepository) QueryGrades(ctx context.Context, filter grade.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]grade.Grade, error) {
	var (
		where []string
		args  []interface{}
	)
	for _, f := range []struct {
		value, clause string
	}{
		{filter.StudentID, `g."student_id" = ?`},
		{filter.SubjectID, `g."subject_id" = ?`},
		{filter.CourseID, `g."student_id" IN (SELECT "id" FROM "student" WHERE "course_id" = ?)`},
	} {
		if f.value == "" {
			continue
		}
		if !validID(f.value) {
			return []grade.Grade{}, nil
		}
		where = append(where, f.clause)
		args = append(args, f.value)
	}

	cols := make([]string, 0, len(gradeColumns))
	for _, col := range gradeColumns {
		cols = append(cols, `g."`+col+`"`)
	}
	q := fmt.Sprintf(`SELECT %s FROM "grade" g`, strings.Join(cols, ", "))
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY " + core.OrderByClause(ordering, gradeOrderings, `g."date" ASC`) + `, g."id" ASC`

	var rows []gradeRow
	if err := repo.selectAll(ctx, repo.getExec(exec), &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying grades")
	}
	grades := make([]grade.Grade, 0, len(rows))
	for _, r := range rows {
		grades = append(grades, r.grade())
	}
	return grades, nil
}

// ApplyChanges deletes, updates then inserts in one transaction.
// A null Notes leaves the stored notes untouched.
func (repo gradeRepository) ApplyChanges(ctx context.Context, cs grade.ChangeSet) error {
	return database.WithTx(ctx, repo.db, func(tx *sql.Tx) error {
		if len(cs.Deleted) > 0 {
			q, args, err := sqlx.In(`DELETE FROM "grade" WHERE "id" IN (?)`, cs.Deleted)
			if err != nil {
				return errors.Wrap(err, "deleting grades")
			}
			res, err := tx.ExecContext(ctx, repo.db.Rebind(q), args...)
			if err != nil {
				return errors.Wrap(err, "deleting grades")
			}
			if n, err := res.RowsAffected(); err == nil && int(n) != len(cs.Deleted) {
				return errors.Wrap(grade.ErrNotFound, "deleting grades")
			}
		}

		for _, g := range cs.Updated {
			res, err := tx.ExecContext(ctx, `
				UPDATE "grade" SET
					"grade_type_id" = $2,
					"date" = $3,
					"value" = $4,
					"notes" = COALESCE($5, "notes"),
					"teacher_id" = COALESCE($6, "teacher_id"),
					"updated_at" = $7
				WHERE "id" = $1`,
				g.ID, g.GradeTypeID, g.Date, g.Value, g.Notes, g.TeacherID, g.UpdatedAt,
			)
			if err != nil {
				if database.IsUniqueViolation(err) {
					return core.NewConflictError(grade.ErrDuplicateGrade)
				}
				return errors.Wrapf(err, "updating grade %s", g.ID)
			}
			if n, err := res.RowsAffected(); err == nil && n == 0 {
				return errors.Wrapf(grade.ErrNotFound, "grade %q", g.ID)
			}
		}

		for _, g := range cs.Created {
			g.ID = newID(g.ID)
			err := repo.insert(ctx, tx, "grade", gradeColumns,
				g.ID, g.StudentID, g.SubjectID, g.GradeTypeID, g.Date, g.Value, g.Notes, g.TeacherID, g.CreatedAt, g.UpdatedAt)
			if err != nil {
				if _, ok := errors.Cause(err).(*core.ConflictError); ok {
					return core.NewConflictError(grade.ErrDuplicateGrade)
				}
				return err
			}
		}
		return nil
	})
}
