package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/miescuela/core/grade"
	"github.com/trezcool/miescuela/core/user"
	inmemdb "github.com/trezcool/miescuela/storage/database/inmem"
	testutil "github.com/trezcool/miescuela/tests"
)

var (
	usrRepo   user.Repository
	gradeRepo grade.Repository
)

func setup(t *testing.T) *commandLine {
	t.Helper()
	db := inmemdb.NewDB()
	usrRepo = inmemdb.NewUserRepository(db)
	gradeRepo = inmemdb.NewGradeRepository(db)

	return &commandLine{
		usrRepo:   usrRepo,
		gradeRepo: gradeRepo,
		logger:    testutil.NopLogger{},
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func mockPassword(pwd string) {
	readPasswordFunc = func(fd int) ([]byte, error) {
		return []byte(pwd), nil
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	var ran []string
	gooseRunFunc = func(command string, db *sql.DB, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to":
			if len(args) == 0 {
				return fmt.Errorf("up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		case "down-to":
			if len(args) == 0 {
				return fmt.Errorf("down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		ran = append(ran, command)
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "grade_notes", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			if err := cli.run(args); err != nil {
				if tt.wantErr != nil {
					if err != tt.wantErr {
						t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
					}
				} else if tt.wantErrStr != "" {
					if err.Error() != tt.wantErrStr {
						t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", err.Error(), tt.wantErrStr)
					}
				} else {
					t.Errorf("cli.run() unexpected error = %v", err)
				}
			} else if tt.wantErr != nil || tt.wantErrStr != "" {
				t.Errorf("cli.run() expected an error")
			}
		})
	}
	if len(ran) != 11 {
		t.Errorf("goose ran %d commands, want 11", len(ran))
	}
}

func Test_commandLine_addUser(t *testing.T) {
	cli := setup(t)
	existing := testutil.CreateUser(t, usrRepo, "Old Name", "tere", "tere@test.test", "Str0ng&Secret", []string{user.RoleTeacher}, false)

	type extra struct {
		pwd string
	}
	tests := []struct {
		cliTest
		wantRoles []string
		wantName  string
	}{
		{cliTest: cliTest{name: "no args", args: []string{"adduser"}, wantErr: errHelp}},
		{cliTest: cliTest{name: "no password", args: []string{"adduser", "-username", "pablo"}, wantErr: errHelp}},
		{cliTest: cliTest{name: "unknown role", args: []string{"adduser", "-username", "pablo", "-roles", "janitor:"}, extra: extra{pwd: "pwd"}, wantErrStr: "\"janitor:\": no such role"}},
		{
			cliTest:   cliTest{name: "new preceptor", args: []string{"adduser", "-username", "Pablo", "-email", "pablo@test.test", "-name", "Pablo Paz", "-roles", "preceptor:"}, extra: extra{pwd: "pwd"}},
			wantRoles: []string{user.RolePreceptor},
			wantName:  "Pablo Paz",
		},
		{
			cliTest:   cliTest{name: "new admin by email", args: []string{"adduser", "-email", "boss@test.test", "-admin"}, extra: extra{pwd: "pwd"}},
			wantRoles: []string{user.RoleAdminPrincipal},
		},
		{
			cliTest:   cliTest{name: "existing user", args: []string{"adduser", "-username", "tere", "-name", "Tere Sosa", "-roles", "teacher:, preceptor:"}, extra: extra{pwd: "N3w&Secret"}},
			wantRoles: []string{user.RoleTeacher, user.RolePreceptor},
			wantName:  "Tere Sosa",
		},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		pwd := ""
		if e, ok := tt.extra.(extra); ok {
			pwd = e.pwd
		}
		mockPassword(pwd)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			if tt.wantErrStr != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantErrStr, err.Error())
				return
			}
			require.NoError(t, err)
		})
	}

	t.Run("users saved", func(t *testing.T) {
		ctx := context.Background()
		pablo, err := usrRepo.GetUser(ctx, user.GetFilter{Username: "pablo"})
		require.NoError(t, err)
		assert.Equal(t, "Pablo Paz", pablo.Name)
		assert.Equal(t, []string{user.RolePreceptor}, pablo.Roles)
		assert.NoError(t, pablo.CheckPassword("pwd"))

		boss, err := usrRepo.GetUser(ctx, user.GetFilter{Email: "boss@test.test"})
		require.NoError(t, err)
		assert.True(t, boss.IsAdmin())

		tere, err := usrRepo.GetUser(ctx, user.GetFilter{ID: existing.ID})
		require.NoError(t, err)
		assert.Equal(t, "Tere Sosa", tere.Name)
		assert.Equal(t, []string{user.RoleTeacher, user.RolePreceptor}, tere.Roles)
		assert.True(t, tere.Active())
		assert.NoError(t, tere.CheckPassword("N3w&Secret"))
	})
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t)

	usr := testutil.CreateUser(t, usrRepo, "User", "awe", "awe@test.cd", "mdr", nil, true)
	testutil.CreateUser(t, usrRepo, "Gone", "gone", "gone@test.cd", "mdr", nil, false)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, extra: extra{pwd: "lol"}, wantErr: user.ErrNotFound},
		{name: "deactivated user", args: []string{"resetpassword", "-username", "gone"}, extra: extra{pwd: "lol"}, wantErr: errUserInactive},
		{name: "reset with username", args: []string{"resetpassword", "-username", usr.Username}, extra: extra{pwd: "lol"}},
		{name: "reset with email", args: []string{"resetpassword", "-username", usr.Email}, extra: extra{pwd: "lmao"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		readPasswordFunc = func(fd int) ([]byte, error) {
			if extra, ok := tt.extra.(extra); ok {
				return []byte(extra.pwd), nil
			}
			return nil, nil
		}

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if err == nil {
				refreshedUsr, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
				if err != nil {
					t.Fatalf("GetUserByID() failed, %v", err)
				}
				if bytes.Equal(refreshedUsr.PasswordHash, usr.PasswordHash) {
					t.Error("failed to update new password")
				}
			} else if errors.Cause(err) != tt.wantErr {
				t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

const catalogYAML = `
grade_types: [Exam, Oral, exam]
courses:
  - name: 1st A
    year: 1
    division: A
    subjects: [Math, Language]
    students:
      - {first_name: Ana, last_name: Garcia}
      - {first_name: Beto, last_name: Diaz}
      - {first_name: Carla, last_name: Ruiz, inactive: true}
  - name: 2nd A
    year: 2
    division: A
    subjects: [Math]
`

func Test_commandLine_seed(t *testing.T) {
	cli := setup(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(catalogYAML), 0o600))

	t.Run("usage", func(t *testing.T) {
		assert.Equal(t, errHelp, cli.run([]string{"admin", "seed"}))
	})

	t.Run("missing file", func(t *testing.T) {
		err := cli.run([]string{"admin", "seed", "-file", filepath.Join(t.TempDir(), "nope.yaml")})
		require.Error(t, err)
		assert.True(t, os.IsNotExist(errors.Cause(err)))
	})

	// seeding twice creates everything once
	for i := 0; i < 2; i++ {
		require.NoError(t, cli.run([]string{"admin", "seed", "-file", path}))
	}

	types, err := gradeRepo.QueryGradeTypes(ctx)
	require.NoError(t, err)
	assert.Len(t, types, 2)

	courses, err := gradeRepo.QueryCourses(ctx)
	require.NoError(t, err)
	require.Len(t, courses, 2)

	for _, c := range courses {
		subjects, err := gradeRepo.QuerySubjects(ctx, c.ID)
		require.NoError(t, err)
		students, err := gradeRepo.QueryStudents(ctx, c.ID)
		require.NoError(t, err)

		switch c.Name {
		case "1st A":
			assert.Equal(t, 1, c.Year)
			assert.Len(t, subjects, 2)
			require.Len(t, students, 3)
			active := 0
			for _, st := range students {
				if st.IsActive {
					active++
				}
			}
			assert.Equal(t, 2, active)
		case "2nd A":
			assert.Len(t, subjects, 1)
			assert.Empty(t, students)
		default:
			t.Errorf("unexpected course %q", c.Name)
		}
	}
}
