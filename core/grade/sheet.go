package grade

import (
	"context"
	"fmt"
	"net/mail"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/miescuela/core"
	"github.com/trezcool/miescuela/core/grid"
	"github.com/trezcool/miescuela/core/user"
)

type SheetKind string

const (
	// CourseSheet lists the students of a course against (grade type, date) columns.
	CourseSheet SheetKind = "course"
	// StudentSheet lists the grades of one student, one per row.
	StudentSheet SheetKind = "student"
)

const gradesSavedTemplate = "grades_saved"

type SheetRequest struct {
	Kind      SheetKind `json:"kind" validate:"required,oneof=course student"`
	SubjectID string    `json:"subject_id" validate:"required"`
	CourseID  string    `json:"course_id"`
	StudentID string    `json:"student_id"`
}

func (req *SheetRequest) Validate(validate *validator.Validate) error {
	req.SubjectID = core.CleanString(req.SubjectID)
	req.CourseID = core.CleanString(req.CourseID)
	req.StudentID = core.CleanString(req.StudentID)

	if err := validate.Struct(req); err != nil {
		return err
	}
	switch {
	case req.Kind == CourseSheet && req.CourseID == "":
		return core.NewValidationError(nil, core.FieldError{Field: "course_id", Error: "course_id is required for course sheets"})
	case req.Kind == StudentSheet && req.StudentID == "":
		return core.NewValidationError(nil, core.FieldError{Field: "student_id", Error: "student_id is required for student sheets"})
	}
	return nil
}

// Sheet is an open grade sheet: a grid bound to its owner and the data it was loaded from.
// Every grid access goes through With, which serialises callers.
type Sheet struct {
	ID      string
	Title   string
	Request SheetRequest
	Owner   user.User

	mu       sync.Mutex
	grid     *grid.Grid
	lastUsed time.Time
	notices  []string
	focus    string
	saved    ChangeSet
}

// SheetView is a snapshot of a sheet plus the messages reported since the previous snapshot.
type SheetView struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	Kind    SheetKind `json:"kind"`
	Grid    grid.View `json:"grid"`
	Notices []string  `json:"notices,omitempty"`
	Focus   string    `json:"focus,omitempty"`
}

// With runs fn with exclusive access to the sheet's grid.
func (sh *Sheet) With(fn func(g *grid.Grid) error) error {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.lastUsed = nowFunc()
	return fn(sh.grid)
}

// View snapshots the sheet and drains its notices.
func (sh *Sheet) View() SheetView {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.view()
}

func (sh *Sheet) view() SheetView {
	v := SheetView{
		ID:      sh.ID,
		Title:   sh.Title,
		Kind:    sh.Request.Kind,
		Grid:    sh.grid.View(),
		Notices: sh.notices,
		Focus:   sh.focus,
	}
	sh.notices = nil
	sh.focus = ""
	return v
}

func (sh *Sheet) idleSince(now time.Time) time.Duration {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return now.Sub(sh.lastUsed)
}

// OpenSheet loads the sheet req describes on behalf of owner.
func (svc *Service) OpenSheet(ctx context.Context, owner user.User, req SheetRequest) (*Sheet, error) {
	switch req.Kind {
	case CourseSheet:
		return svc.OpenCourseSheet(ctx, owner, req.CourseID, req.SubjectID)
	case StudentSheet:
		return svc.OpenStudentSheet(ctx, owner, req.StudentID, req.SubjectID)
	}
	return nil, core.NewValidationError(nil, core.FieldError{Field: "kind", Error: fmt.Sprintf("unknown sheet kind %q", req.Kind)})
}

func (svc *Service) OpenCourseSheet(ctx context.Context, owner user.User, courseID, subjectID string) (*Sheet, error) {
	return svc.open(ctx, owner, SheetRequest{Kind: CourseSheet, CourseID: courseID, SubjectID: subjectID})
}

func (svc *Service) OpenStudentSheet(ctx context.Context, owner user.User, studentID, subjectID string) (*Sheet, error) {
	return svc.open(ctx, owner, SheetRequest{Kind: StudentSheet, StudentID: studentID, SubjectID: subjectID})
}

func (svc *Service) open(ctx context.Context, owner user.User, req SheetRequest) (*Sheet, error) {
	sh := &Sheet{Request: req, Owner: owner, lastUsed: nowFunc()}
	sh.grid = grid.New(grid.Callbacks{
		OnSave: func(ctx context.Context, batch grid.Batch) error {
			cs := changeSet(batch, nowFunc().UTC())
			if err := svc.repo.ApplyChanges(ctx, cs); err != nil {
				return err
			}
			sh.saved = cs
			return nil
		},
		OnError: func(msg string) { sh.notices = append(sh.notices, msg) },
		OnFocus: func(row string) { sh.focus = row },
	})

	title, in, err := svc.sheetInput(ctx, owner, req)
	if err != nil {
		return nil, err
	}
	if err = sh.grid.Load(in); err != nil {
		return nil, errors.Wrap(err, "loading sheet")
	}
	sh.Title = title
	return sh, nil
}

// SaveSheet saves the sheet's changes, reloads its baseline from storage and,
// when enabled, emails a summary of the save to the owner.
// When the reload fails after a successful save the sheet is emptied and has to be reopened.
func (svc *Service) SaveSheet(ctx context.Context, sh *Sheet) (bool, error) {
	var (
		saved bool
		cs    ChangeSet
	)
	err := sh.With(func(g *grid.Grid) error {
		var err error
		if saved, err = g.Save(ctx); err != nil || !saved {
			return err
		}
		cs = sh.saved
		sh.saved = ChangeSet{}

		_, in, err := svc.sheetInput(ctx, sh.Owner, sh.Request)
		if err == nil {
			err = g.Load(in)
		}
		if err != nil {
			// the saved baseline is stale: leave nothing that could be saved twice
			_ = g.Load(grid.Input{})
			sh.notices = append(sh.notices, "grades were saved but the sheet could not be reloaded, reopen it")
			return errors.Wrap(err, "reloading sheet")
		}
		return nil
	})
	if err != nil {
		return saved, err
	}
	if saved {
		svc.notifySaved(sh, cs)
	}
	return saved, nil
}

// Reload discards the sheet's pending changes and loads fresh data.
func (svc *Service) Reload(ctx context.Context, sh *Sheet) error {
	_, in, err := svc.sheetInput(ctx, sh.Owner, sh.Request)
	if err != nil {
		return err
	}
	return sh.With(func(g *grid.Grid) error { return g.Load(in) })
}

type savedSummary struct {
	TeacherName string
	SheetTitle  string
	Updated     int
	Added       int
	Deleted     int
}

func (svc *Service) notifySaved(sh *Sheet, cs ChangeSet) {
	if !svc.conf.Grades.NotifyOnSave || sh.Owner.Email == "" {
		return
	}

	msg := &core.EmailMessage{
		To:           []mail.Address{sh.Owner.MailAddress()},
		Subject:      "Grades saved: " + sh.Title,
		TemplateName: gradesSavedTemplate,
		TemplateData: savedSummary{
			TeacherName: sh.Owner.DisplayName(),
			SheetTitle:  sh.Title,
			Updated:     len(cs.Updated),
			Added:       len(cs.Created),
			Deleted:     len(cs.Deleted),
		},
	}
	if buf, err := svc.ExportSheet(sh); err != nil {
		svc.logger.Error(fmt.Sprintf("grade.notifySaved: exporting %s: %v", sh.ID, err), err, sh.Owner)
	} else if err = msg.Attach(buf, exportFilename(sh.Title), xlsxContentType); err != nil {
		svc.logger.Error(fmt.Sprintf("grade.notifySaved: attaching %s: %v", sh.ID, err), err, sh.Owner)
	}
	svc.mailSvc.SendMessages(msg)
}

func (svc *Service) sheetInput(ctx context.Context, owner user.User, req SheetRequest) (string, grid.Input, error) {
	subject, err := svc.repo.GetSubject(ctx, req.SubjectID)
	if err != nil {
		return "", grid.Input{}, errors.Wrap(err, "getting subject")
	}
	gradeTypes, err := svc.repo.QueryGradeTypes(ctx)
	if err != nil {
		return "", grid.Input{}, errors.Wrap(err, "querying grade types")
	}
	categories := make(map[string]string, len(gradeTypes))
	for _, gt := range gradeTypes {
		categories[gt.ID] = gt.Name
	}

	if req.Kind == StudentSheet {
		return svc.studentInput(ctx, owner, req.StudentID, subject, categories)
	}
	return svc.courseInput(ctx, owner, req.CourseID, subject, categories)
}

func canEditGrades(owner user.User) bool {
	return owner.IsTeacher() || owner.IsAdmin()
}

func formatGradeValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (svc *Service) courseInput(ctx context.Context, owner user.User, courseID string, subject Subject, categories map[string]string) (string, grid.Input, error) {
	course, err := svc.repo.GetCourse(ctx, courseID)
	if err != nil {
		return "", grid.Input{}, errors.Wrap(err, "getting course")
	}
	if subject.CourseID != course.ID {
		return "", grid.Input{}, core.NewValidationError(nil, core.FieldError{
			Field: "subject_id",
			Error: fmt.Sprintf("subject %q is not taught in %s", subject.Name, course.Name),
		})
	}

	students, err := svc.repo.QueryStudents(ctx, course.ID)
	if err != nil {
		return "", grid.Input{}, errors.Wrap(err, "querying students")
	}
	sort.Slice(students, func(i, j int) bool { return lessStudent(students[i], students[j]) })

	grades, err := svc.repo.QueryGrades(ctx, QueryFilter{CourseID: course.ID, SubjectID: subject.ID}, []core.DBOrdering{{Field: "date", Ascending: true}})
	if err != nil {
		return "", grid.Input{}, errors.Wrap(err, "querying grades")
	}

	graded := make(map[string]bool)
	observations := make([]grid.Observation, 0, len(grades))
	columns := make([]grid.Column, 0)
	seen := make(map[string]bool)
	for _, g := range grades {
		graded[g.StudentID] = true
		date := core.FormatDate(g.Date)
		observations = append(observations, grid.Observation{
			ID:       g.ID,
			Entity:   g.StudentID,
			Category: g.GradeTypeID,
			Date:     date,
			Value:    formatGradeValue(g.Value),
		})
		if key := grid.CategoryKey(g.GradeTypeID, date); !seen[key] {
			seen[key] = true
			columns = append(columns, grid.CategoryColumn(g.GradeTypeID, categories[g.GradeTypeID], date))
		}
	}
	sort.SliceStable(columns, func(i, j int) bool {
		if columns[i].Date != columns[j].Date {
			return columns[i].Date < columns[j].Date
		}
		return columns[i].Label < columns[j].Label
	})

	var (
		options  = make([]grid.Entity, 0, len(students))
		entities = make([]grid.Entity, 0, len(graded))
		current  = make([]string, 0, len(students))
	)
	for _, st := range students {
		options = append(options, grid.Entity{ID: st.ID, Name: st.FullName()})
		if st.IsActive {
			current = append(current, st.ID)
		}
		if graded[st.ID] {
			entities = append(entities, grid.Entity{ID: st.ID, Name: st.FullName(), Disabled: !st.IsActive})
		}
	}

	title := fmt.Sprintf("%s - %s", course.Name, subject.Name)
	return title, grid.Input{
		Mode:          grid.EntityCentric,
		IdentityLabel: "Student",
		Entities:      entities,
		Columns:       columns,
		Observations:  observations,
		Defaults: map[string]string{
			"subject_id": subject.ID,
			"course_id":  course.ID,
			"teacher_id": owner.ID,
		},
		Options: grid.Options{
			Entities:        options,
			CurrentEntities: current,
			Categories:      categories,
			Scale:           svc.scale,
		},
		Editable: canEditGrades(owner),
	}, nil
}

func (svc *Service) studentInput(ctx context.Context, owner user.User, studentID string, subject Subject, categories map[string]string) (string, grid.Input, error) {
	student, err := svc.repo.GetStudent(ctx, studentID)
	if err != nil {
		return "", grid.Input{}, errors.Wrap(err, "getting student")
	}

	grades, err := svc.repo.QueryGrades(ctx, QueryFilter{StudentID: student.ID, SubjectID: subject.ID}, []core.DBOrdering{{Field: "date", Ascending: true}})
	if err != nil {
		return "", grid.Input{}, errors.Wrap(err, "querying grades")
	}
	records := make([]grid.Record, 0, len(grades))
	for _, g := range grades {
		gradeType := categories[g.GradeTypeID]
		if gradeType == "" {
			gradeType = g.GradeTypeID
		}
		records = append(records, grid.Record{
			ID: g.ID,
			Values: map[string]string{
				"grade_type": gradeType,
				"date":       core.FormatDate(g.Date),
				"value":      formatGradeValue(g.Value),
				"notes":      g.Notes.String,
			},
		})
	}

	title := fmt.Sprintf("%s - %s", student.FullName(), subject.Name)
	return title, grid.Input{
		Mode: grid.RecordCentric,
		Columns: []grid.Column{
			{Key: "grade_type", Kind: grid.KindField, Label: "Type", Field: "grade_type_id", Type: grid.FieldCategory, Required: true, Editable: true},
			{Key: "date", Kind: grid.KindField, Label: "Date", Type: grid.FieldDate, Required: true, Editable: true},
			{Key: "value", Kind: grid.KindField, Label: "Value", Type: grid.FieldNumber, Required: true, Editable: true},
			{Key: "notes", Kind: grid.KindField, Label: "Notes", Editable: true},
		},
		Records: records,
		Defaults: map[string]string{
			"student_id": student.ID,
			"subject_id": subject.ID,
			"teacher_id": owner.ID,
		},
		Options: grid.Options{
			Categories: categories,
			Scale:      svc.scale,
		},
		Editable: canEditGrades(owner) && student.IsActive,
	}, nil
}
