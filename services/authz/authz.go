// Package authz decides which roles may run which grade sheet operations.
// The casbin model and policy are embedded in appfs under authz/.
package authz

import (
	"io/fs"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	stringadapter "github.com/casbin/casbin/v2/persist/string-adapter"
	"github.com/pkg/errors"

	"github.com/trezcool/miescuela/core"
	"github.com/trezcool/miescuela/core/user"
	appfs "github.com/trezcool/miescuela/fs"
)

type Mode string

const (
	ModeEnforce  Mode = "enforce"
	ModeDisabled Mode = "disabled"
)

// Objects
const (
	ObjCatalog = "catalog"
	ObjGrades  = "grades"
	ObjSheet   = "sheet"
)

// Actions
const (
	ActRead   = "read"
	ActOpen   = "open"
	ActEdit   = "edit"
	ActSave   = "save"
	ActExport = "export"
	ActClose  = "close"
)

var ErrForbidden = errors.New("you do not have permission to perform this action")

func ParseMode(raw string) (Mode, error) {
	raw = core.CleanString(raw, true /* lower */)
	switch Mode(raw) {
	case "":
		return ModeEnforce, nil
	case ModeEnforce, ModeDisabled:
		return Mode(raw), nil
	default:
		return "", errors.Errorf("authz: invalid mode %q (expected enforce|disabled)", raw)
	}
}

type Authorizer struct {
	enforcer *casbin.Enforcer
	mode     Mode
}

func NewAuthorizer(conf *core.Config) (*Authorizer, error) {
	mode, err := ParseMode(conf.Authz.Mode)
	if err != nil {
		return nil, err
	}
	modelText, err := fs.ReadFile(appfs.FS, "authz/model.conf")
	if err != nil {
		return nil, errors.Wrap(err, "reading authz model")
	}
	policyText, err := fs.ReadFile(appfs.FS, "authz/policy.csv")
	if err != nil {
		return nil, errors.Wrap(err, "reading authz policy")
	}
	return newAuthorizer(string(modelText), string(policyText), mode)
}

func newAuthorizer(modelText, policyText string, mode Mode) (*Authorizer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, errors.Wrap(err, "parsing authz model")
	}
	enforcer, err := casbin.NewEnforcer(m, stringadapter.NewAdapter(stripComments(policyText)))
	if err != nil {
		return nil, errors.Wrap(err, "loading authz policy")
	}
	return &Authorizer{enforcer: enforcer, mode: mode}, nil
}

func stripComments(policy string) string {
	lines := strings.Split(policy, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

func (a *Authorizer) Mode() Mode { return a.mode }

// Authorize reports whether any of usr's roles allows act on obj.
// Inactive users are never allowed while enforcing.
func (a *Authorizer) Authorize(usr user.User, obj, act string) (bool, error) {
	if a.mode == ModeDisabled {
		return true, nil
	}
	if !usr.Active() {
		return false, nil
	}
	for _, role := range usr.Roles {
		ok, err := a.enforcer.Enforce(role, obj, act)
		if err != nil {
			return false, errors.Wrapf(err, "enforcing %s %s %s", role, obj, act)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// Check is Authorize returning ErrForbidden when denied.
func (a *Authorizer) Check(usr user.User, obj, act string) error {
	ok, err := a.Authorize(usr, obj, act)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}
