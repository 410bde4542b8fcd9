package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/miescuela/core"
	"github.com/trezcool/miescuela/core/user"
)

var errUserInactive = errors.New("account is deactivated, reactivate it with adduser")

// resetPassword sets the password of the active account matching uname (a username or an email).
func (cli *commandLine) resetPassword(uname, pwd string) error {
	ctx := context.Background()
	uname = core.CleanString(uname, true /* lower */)

	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: []string{uname}})
	if err != nil {
		return errors.Wrapf(err, "looking up %q", uname)
	}
	if !usr.Active() {
		return errors.Wrapf(errUserInactive, "%q", usr.Username)
	}
	if err = usr.SetPassword(pwd); err != nil {
		return err
	}
	usr.UpdatedAt = time.Now().UTC()
	if usr, err = cli.usrRepo.UpdateUser(ctx, usr); err != nil {
		return errors.Wrapf(err, "saving %q", usr.Username)
	}
	cli.logger.Info(fmt.Sprintf("password reset for %s", usr.Username))
	return nil
}
