// Command sheet edits a grade sheet in the terminal.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/trezcool/miescuela/core"
	"github.com/trezcool/miescuela/core/grade"
	"github.com/trezcool/miescuela/core/user"
	emailsvc "github.com/trezcool/miescuela/services/email"
	logsvc "github.com/trezcool/miescuela/services/logger"
	"github.com/trezcool/miescuela/storage/database"
	inmemdb "github.com/trezcool/miescuela/storage/database/inmem"
	boiledrepos "github.com/trezcool/miescuela/storage/database/sqlboiler"
	sqlxrepos "github.com/trezcool/miescuela/storage/database/sqlx"
)

type options struct {
	demo      bool
	username  string
	courseID  string
	subjectID string
	studentID string
	exportDir string
	logFile   string
}

// sheetRequest describes the sheet opts point at; a student flag selects a student sheet.
func (opts options) sheetRequest() grade.SheetRequest {
	if opts.studentID != "" {
		return grade.SheetRequest{Kind: grade.StudentSheet, StudentID: opts.studentID, SubjectID: opts.subjectID}
	}
	return grade.SheetRequest{Kind: grade.CourseSheet, CourseID: opts.courseID, SubjectID: opts.subjectID}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "sheet",
		Short: "Edit a grade sheet in the terminal",
		Long: `sheet opens the grades of a course (or of one student) for a subject
and lets you edit, add and delete them before saving them back in one go.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&opts.demo, "demo", false, "run against an in-memory demo school")
	flags.StringVarP(&opts.username, "user", "u", "", "username or email of the sheet owner")
	flags.StringVar(&opts.courseID, "course", "", "course id (course sheets)")
	flags.StringVar(&opts.subjectID, "subject", "", "subject id")
	flags.StringVar(&opts.studentID, "student", "", "student id (student sheets)")
	flags.StringVar(&opts.exportDir, "export-dir", ".", "directory xlsx exports are written to")
	flags.StringVar(&opts.logFile, "log", "", "append log output to this file")
	return cmd
}

func run(ctx context.Context, opts options) error {
	if ctx == nil {
		ctx = context.Background()
	}
	conf := core.NewConfig()

	// the alt screen owns stdout: log to a file or nowhere
	var out io.Writer = io.Discard
	if opts.logFile != "" {
		f, err := tea.LogToFile(opts.logFile, "")
		if err != nil {
			return errors.Wrap(err, "opening log file")
		}
		defer f.Close()
		out = f
	}
	std := log.New(out, "SHEET : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(std, conf)

	var (
		usrRepo   user.Repository
		gradeRepo grade.Repository
	)
	if opts.demo {
		db := inmemdb.NewDB()
		usrRepo, gradeRepo = inmemdb.NewUserRepository(db), inmemdb.NewGradeRepository(db)
		if err := seedDemo(ctx, usrRepo, gradeRepo); err != nil {
			return err
		}
		opts.applyDemoDefaults()
	} else {
		db, err := database.Open(conf)
		if err != nil {
			return errors.Wrap(err, "opening database")
		}
		defer db.Close()
		if err = db.PingContext(ctx); err != nil {
			return errors.Wrap(err, "connecting to database")
		}
		usrRepo = boiledrepos.NewUserRepository(db)
		gradeRepo = sqlxrepos.NewGradeRepository(sqlx.NewDb(db, database.DriverName(conf)))
	}

	if opts.username == "" {
		return errors.New("--user is required")
	}
	owner, err := user.NewService(usrRepo).GetByUsernameOrEmail(opts.username)
	if err != nil {
		return errors.Wrapf(err, "looking up %q", opts.username)
	}

	req := opts.sheetRequest()
	if err = req.Validate(validator.New()); err != nil {
		return err
	}

	svc := grade.NewService(gradeRepo, emailsvc.NewConsoleService(std, logger, conf), conf, logger)
	sh, err := svc.OpenSheet(ctx, owner, req)
	if err != nil {
		logger.Error(fmt.Sprintf("sheet.run: %v", err), err, owner)
		return err
	}
	logger.Info(fmt.Sprintf("opened %q for %s", sh.Title, owner.Username))

	_, err = tea.NewProgram(newModel(ctx, svc, sh, opts.exportDir), tea.WithAltScreen()).Run()
	return err
}

func (opts *options) applyDemoDefaults() {
	if opts.username == "" {
		opts.username = demoUsername
	}
	if opts.subjectID == "" {
		opts.subjectID = demoSubject
	}
	if opts.courseID == "" && opts.studentID == "" {
		opts.courseID = demoCourse
	}
}
