package user

import (
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/miescuela/core"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

func Test_passwordPolicyTag(t *testing.T) {
	LoadCommonPasswords(nopLogger{})

	tests := []struct {
		name string
		pwd  string
		want string
	}{
		{name: "too short", pwd: "Sh0rt!", want: pwdMinLenTag},
		{name: "whitespace", pwd: "has Space1!", want: pwdNoSpaceTag},
		{name: "all numeric", pwd: "12345678", want: pwdNotAllNumTag},
		{name: "not complex", pwd: "password", want: pwdComplexityTag},
		{name: "similar to name", pwd: "Anagarcia1!", want: pwdAttrSimTag},
		{name: "common", pwd: "P@ssw0rd", want: pwdNoCommonTag},
		{name: "valid", pwd: "Tr1cky-Falcon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, passwordPolicyTag(tt.pwd, "Ana Garcia", "ana", "ana@test.test"))
		})
	}
}

type uniqueSvc struct {
	*Service
	err error
}

func (svc uniqueSvc) CheckUniqueness(string, string, ...User) error { return svc.err }

func TestNewUser_Validate(t *testing.T) {
	LoadCommonPasswords(nopLogger{})
	validate := validator.New()
	english := en.New()
	translator, _ := ut.New(english, english).GetTranslator("en")
	core.InitValidators(validate, translator)
	InitValidators(validate, translator)

	tests := []struct {
		name       string
		nu         NewUser
		svcErr     error
		wantFields []string
	}{
		{
			name: "valid",
			nu: NewUser{
				Name: " Ana Garcia ", Username: "AGarcia", Password: "Tr1cky-Falcon",
				PasswordConfirm: "Tr1cky-Falcon", Roles: []string{RoleTeacher},
			},
		},
		{
			name:       "no username nor email",
			nu:         NewUser{Name: "Ana", Password: "Tr1cky-Falcon", PasswordConfirm: "Tr1cky-Falcon"},
			wantFields: []string{"username", "email"},
		},
		{
			name: "unknown role",
			nu: NewUser{
				Name: "Ana", Email: "ana@test.test", Password: "Tr1cky-Falcon",
				PasswordConfirm: "Tr1cky-Falcon", Roles: []string{"janitor:"},
			},
			wantFields: []string{"roles"},
		},
		{
			name: "weak password",
			nu: NewUser{
				Name: "Ana", Email: "ana@test.test", Password: "password", PasswordConfirm: "password",
			},
			wantFields: []string{"password"},
		},
		{
			name: "passwords mismatch",
			nu: NewUser{
				Name: "Ana", Email: "ana@test.test", Password: "Tr1cky-Falcon", PasswordConfirm: "Tr1cky-Falcon!",
			},
			wantFields: []string{"password_confirm"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.nu.Validate(validate, uniqueSvc{err: tt.svcErr})
			if tt.wantFields == nil {
				require.NoError(t, err)
				return
			}
			require.IsType(t, validator.ValidationErrors{}, err)
			var fields []string
			for _, fe := range err.(validator.ValidationErrors) {
				fields = append(fields, fe.Field())
			}
			assert.ElementsMatch(t, tt.wantFields, fields)
		})
	}

	t.Run("cleans input", func(t *testing.T) {
		nu := NewUser{Name: " Ana ", Username: " AGarcia ", Email: " ANA@Test.Test ", Password: "Tr1cky-Falcon", PasswordConfirm: "Tr1cky-Falcon"}
		require.NoError(t, nu.Validate(validate, uniqueSvc{}))
		assert.Equal(t, "Ana", nu.Name)
		assert.Equal(t, "agarcia", nu.Username)
		assert.Equal(t, "ana@test.test", nu.Email)
	})

	t.Run("duplicate user", func(t *testing.T) {
		nu := NewUser{Name: "Ana", Username: "agarcia", Password: "Tr1cky-Falcon", PasswordConfirm: "Tr1cky-Falcon"}
		err := nu.Validate(validate, uniqueSvc{err: ErrUserExists})
		assert.Equal(t, ErrUserExists, err)
	})
}
