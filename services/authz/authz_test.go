package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/miescuela/core"
	"github.com/trezcool/miescuela/core/user"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		raw     string
		want    Mode
		wantErr bool
	}{
		{"", ModeEnforce, false},
		{"enforce", ModeEnforce, false},
		{" Disabled ", ModeDisabled, false},
		{"shadow", "", true},
	}
	for _, tc := range tests {
		t.Run(tc.raw, func(t *testing.T) {
			got, err := ParseMode(tc.raw)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestAuthorizer_Authorize(t *testing.T) {
	a, err := NewAuthorizer(&core.Config{})
	require.NoError(t, err)
	assert.Equal(t, ModeEnforce, a.Mode())

	withRoles := func(roles ...string) user.User {
		usr := user.User{ID: "u", Roles: roles}
		usr.SetActive(true)
		return usr
	}
	inactive := withRoles(user.RoleTeacher)
	inactive.SetActive(false)

	tests := []struct {
		name string
		usr  user.User
		obj  string
		act  string
		want bool
	}{
		{"teacher edits sheet", withRoles(user.RoleTeacher), ObjSheet, ActEdit, true},
		{"teacher saves sheet", withRoles(user.RoleTeacher), ObjSheet, ActSave, true},
		{"principal inherits admin", withRoles(user.RoleAdminPrincipal), ObjSheet, ActSave, true},
		{"admin reads grades", withRoles(user.RoleAdmin), ObjGrades, ActRead, true},
		{"preceptor opens sheet", withRoles(user.RolePreceptor), ObjSheet, ActOpen, true},
		{"preceptor exports sheet", withRoles(user.RolePreceptor), ObjSheet, ActExport, true},
		{"preceptor cannot edit", withRoles(user.RolePreceptor), ObjSheet, ActEdit, false},
		{"preceptor cannot save", withRoles(user.RolePreceptor), ObjSheet, ActSave, false},
		{"student cannot open", withRoles(user.RoleStudent), ObjSheet, ActOpen, false},
		{"student cannot read catalog", withRoles(user.RoleStudent), ObjCatalog, ActRead, false},
		{"any role may allow", withRoles(user.RoleStudent, user.RolePreceptor), ObjCatalog, ActRead, true},
		{"no roles", withRoles(), ObjCatalog, ActRead, false},
		{"inactive teacher", inactive, ObjSheet, ActOpen, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := a.Authorize(tc.usr, tc.obj, tc.act)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	t.Run("Check", func(t *testing.T) {
		assert.NoError(t, a.Check(withRoles(user.RoleTeacher), ObjSheet, ActOpen))
		assert.Equal(t, ErrForbidden, a.Check(withRoles(user.RoleStudent), ObjSheet, ActOpen))
	})
}

func TestAuthorizer_disabled(t *testing.T) {
	a, err := NewAuthorizer(&core.Config{Authz: core.AuthzConfig{Mode: "disabled"}})
	require.NoError(t, err)
	ok, err := a.Authorize(user.User{Roles: []string{user.RoleStudent}}, ObjSheet, ActSave)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = NewAuthorizer(&core.Config{Authz: core.AuthzConfig{Mode: "nope"}})
	assert.Error(t, err)
}
