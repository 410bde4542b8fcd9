package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/miescuela/core/grade"
	"github.com/trezcool/miescuela/core/user"
	"github.com/trezcool/miescuela/services/authz"
)

// permissionMiddleware lets the request through when the context user may run act on obj.
func permissionMiddleware(authorizer *authz.Authorizer, svc user.ServiceInterface, obj, act string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx, svc)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}
			ok, err := authorizer.Authorize(usr, obj, act)
			if err != nil {
				return errors.Wrap(err, "authorizing")
			}
			if !ok {
				return errHttpForbidden
			}
			return next(ctx)
		}
	}
}

// sheetMiddleware loads the context user's sheet named by the :id param.
func sheetMiddleware(sessions *grade.Sessions, svc user.ServiceInterface) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx, svc)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}
			sh, err := sessions.Get(ctx.Param("id"), usr.ID)
			if err != nil {
				return err
			}
			ctx.Set(contextSheetKey, sh)
			return next(ctx)
		}
	}
}

func getContextSheet(ctx echo.Context) (*grade.Sheet, error) {
	if sh, ok := ctx.Get(contextSheetKey).(*grade.Sheet); ok {
		return sh, nil
	}
	return nil, grade.ErrSheetNotFound
}
