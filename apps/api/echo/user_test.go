package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/miescuela/apps/api/echo"
	"github.com/trezcool/miescuela/core/user"
	testutil "github.com/trezcool/miescuela/tests"
)

func Test_userApi_login(t *testing.T) {
	env := setup(t)
	testutil.CreateUser(t, env.usrRepo, "Old Timer", "oldtimer", "old@test.test", testPassword, []string{user.RoleTeacher}, false)

	tests := []struct {
		name     string
		body     echoapi.LoginRequest
		wantCode int
		wantErr  string
	}{
		{"username", echoapi.LoginRequest{Username: "TERE", Password: testPassword}, http.StatusOK, ""},
		{"email", echoapi.LoginRequest{Username: "tere@test.test", Password: testPassword}, http.StatusOK, ""},
		{"wrong password", echoapi.LoginRequest{Username: "tere", Password: "nope"}, http.StatusBadRequest, "authentication failed"},
		{"unknown user", echoapi.LoginRequest{Username: "ghost", Password: testPassword}, http.StatusBadRequest, "authentication failed"},
		{"deactivated", echoapi.LoginRequest{Username: "oldtimer", Password: testPassword}, http.StatusForbidden, "account deactivated"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/v1/users/login", "", tc.body)
			requireCode(t, rec, tc.wantCode)
			if tc.wantErr != "" {
				assert.Equal(t, tc.wantErr, errorOf(t, rec))
				return
			}
			var res echoapi.LoginResponse
			decode(t, rec, &res)
			assert.NotEmpty(t, res.Token)

			rec = env.do(t, http.MethodGet, "/v1/users/me", res.Token, nil)
			requireCode(t, rec, http.StatusOK)
			var me user.User
			decode(t, rec, &me)
			assert.Equal(t, env.teacher.ID, me.ID)
			assert.False(t, me.LastLogin.IsZero())
		})
	}

	t.Run("missing fields", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/v1/users/login", "", echoapi.LoginRequest{})
		requireCode(t, rec, http.StatusBadRequest)
		var fields map[string]string
		decode(t, rec, &fields)
		assert.Equal(t, map[string]string{
			"username": "this field is required",
			"password": "this field is required",
		}, fields)
	})
}

func Test_userApi_me(t *testing.T) {
	env := setup(t)

	t.Run("auth required", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/v1/users/me", "", nil)
		requireCode(t, rec, http.StatusUnauthorized)
		assert.Equal(t, "missing or malformed jwt", errorOf(t, rec))
	})

	t.Run("unknown token user", func(t *testing.T) {
		ghost := user.User{ID: "ghost", Roles: []string{user.RoleTeacher}}
		rec := env.do(t, http.MethodGet, "/v1/users/me", env.token(t, ghost), nil)
		requireCode(t, rec, http.StatusUnauthorized)
	})

	t.Run("ok", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/v1/users/me", env.token(t, env.preceptor), nil)
		requireCode(t, rec, http.StatusOK)
		var me user.User
		decode(t, rec, &me)
		assert.Equal(t, env.preceptor.Username, me.Username)
		assert.Empty(t, me.PasswordHash)
	})
}

func Test_userApi_refreshToken(t *testing.T) {
	env := setup(t)

	rec := env.do(t, http.MethodPost, "/v1/users/token-refresh", env.token(t, env.teacher), nil)
	requireCode(t, rec, http.StatusOK)
	var res echoapi.LoginResponse
	decode(t, rec, &res)
	require.NotEmpty(t, res.Token)

	rec = env.do(t, http.MethodGet, "/v1/users/me", res.Token, nil)
	requireCode(t, rec, http.StatusOK)
}

func Test_userApi_register(t *testing.T) {
	env := setup(t)
	newUser := func(roles ...string) user.NewUser {
		return user.NewUser{
			Name:            "Nora Diaz",
			Username:        "nora",
			Email:           "nora@test.test",
			Password:        "Zq9!mkP2x",
			PasswordConfirm: "Zq9!mkP2x",
			Roles:           roles,
		}
	}

	t.Run("admin required", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/v1/users/register", env.token(t, env.teacher), newUser(user.RoleTeacher))
		requireCode(t, rec, http.StatusForbidden)
		assert.Equal(t, "permission denied", errorOf(t, rec))
	})

	t.Run("cannot grant a higher role", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/v1/users/register", env.token(t, env.admin), newUser(user.RoleAdminPrincipal))
		requireCode(t, rec, http.StatusBadRequest)
		var fields map[string]string
		decode(t, rec, &fields)
		assert.Equal(t, "not enough rights to set these roles", fields["roles"])
	})

	t.Run("ok", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/v1/users/register", env.token(t, env.admin), newUser(user.RoleTeacher))
		requireCode(t, rec, http.StatusCreated)
		var created user.User
		decode(t, rec, &created)
		assert.NotEmpty(t, created.ID)
		assert.Equal(t, []string{user.RoleTeacher}, created.Roles)

		rec = env.do(t, http.MethodPost, "/v1/users/login", "", echoapi.LoginRequest{Username: "nora", Password: "Zq9!mkP2x"})
		requireCode(t, rec, http.StatusOK)
	})
}
