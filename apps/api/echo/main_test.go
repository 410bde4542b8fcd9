package echoapi_test

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/miescuela/apps/api/echo"
	"github.com/trezcool/miescuela/core"
	"github.com/trezcool/miescuela/core/grade"
	"github.com/trezcool/miescuela/core/user"
	"github.com/trezcool/miescuela/services/authz"
	emailsvc "github.com/trezcool/miescuela/services/email"
	inmemdb "github.com/trezcool/miescuela/storage/database/inmem"
	testutil "github.com/trezcool/miescuela/tests"
)

const testPassword = "Str0ng&Secret"

type testEnv struct {
	app       *echoapi.Server
	conf      *core.Config
	usrRepo   user.Repository
	gradeRepo grade.Repository
	sessions  *grade.Sessions
	school    testutil.School

	teacher   user.User
	preceptor user.User
	student   user.User
	admin     user.User
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	conf := &core.Config{
		AppName:   "MiEscuela",
		TestMode:  true,
		SecretKey: "test-secret",
		Server: core.ServerConfig{
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: time.Hour,
		},
		Grades: core.GradesConfig{MinValue: 0, MaxValue: 10, SessionTTL: time.Hour},
	}

	db := inmemdb.NewDB()
	env := &testEnv{
		conf:      conf,
		usrRepo:   inmemdb.NewUserRepository(db),
		gradeRepo: inmemdb.NewGradeRepository(db),
		sessions:  grade.NewSessions(conf.Grades.SessionTTL),
	}
	env.school = testutil.SeedSchool(t, env.gradeRepo)

	env.teacher = testutil.CreateUser(t, env.usrRepo, "Tere Sosa", "tere", "tere@test.test", testPassword, []string{user.RoleTeacher}, true)
	env.preceptor = testutil.CreateUser(t, env.usrRepo, "Pablo Paz", "pablo", "pablo@test.test", testPassword, []string{user.RolePreceptor}, true)
	env.student = testutil.CreateUser(t, env.usrRepo, "Ana Garcia", "ana", "ana@test.test", testPassword, []string{user.RoleStudent}, true)
	env.admin = testutil.CreateUser(t, env.usrRepo, "Admin", "admin", "admin@test.test", testPassword, []string{user.RoleAdmin}, true)

	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	authorizer, err := authz.NewAuthorizer(conf)
	require.NoError(t, err)

	logger := testutil.NopLogger{}
	env.app = echoapi.NewServer(echoapi.Deps{
		Conf:       conf,
		Logger:     logger,
		Validate:   validate,
		Translator: translator,
		UserSvc:    user.NewService(env.usrRepo),
		GradeSvc:   grade.NewService(env.gradeRepo, emailsvc.NewConsoleServiceMock(logger, conf), conf, logger),
		Sessions:   env.sessions,
		Authz:      authorizer,
	})
	return env
}

func (env *testEnv) token(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := echoapi.GenerateToken(env.conf, echoapi.GetUserClaims(env.conf, usr))
	require.NoError(t, err)
	return token
}

// do sends a JSON request and returns the recorded response.
func (env *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	env.app.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

type httpErr struct {
	Error string `json:"error"`
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var e httpErr
	decode(t, rec, &e)
	return e.Error
}

func requireCode(t *testing.T, rec *httptest.ResponseRecorder, code int) {
	t.Helper()
	require.Equal(t, code, rec.Code, rec.Body.String())
}
