package echoapi

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/miescuela/core"
	"github.com/trezcool/miescuela/core/grade"
	"github.com/trezcool/miescuela/core/grid"
	"github.com/trezcool/miescuela/core/user"
	"github.com/trezcool/miescuela/services/authz"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type sheetApi struct {
	svc      *grade.Service
	sessions *grade.Sessions
	userSvc  user.ServiceInterface
	validate *validator.Validate
	logger   core.Logger
}

func registerSheetAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps Deps) {
	api := sheetApi{
		svc:      deps.GradeSvc,
		sessions: deps.Sessions,
		userSvc:  deps.UserSvc,
		validate: deps.Validate,
		logger:   deps.Logger,
	}
	can := func(act string) echo.MiddlewareFunc {
		return permissionMiddleware(deps.Authz, deps.UserSvc, authz.ObjSheet, act)
	}

	sg := g.Group("/sheets", jwt)
	sg.POST("", api.open, can(authz.ActOpen))

	// detail endpoints
	dg := sg.Group("/:id", sheetMiddleware(api.sessions, api.userSvc))
	dg.GET("", api.retrieve, can(authz.ActRead))
	dg.DELETE("", api.close, can(authz.ActClose))
	dg.GET("/export", api.export, can(authz.ActExport))
	dg.POST("/save", api.save, can(authz.ActSave))

	edit := can(authz.ActEdit)
	dg.POST("/rows", api.addRow, edit)
	dg.POST("/rows/all", api.addAllRows, edit)
	dg.POST("/rows/:row/toggle", api.toggleRow, edit)
	dg.DELETE("/rows/:index", api.requestRowDeletion, edit)
	dg.PUT("/cells", api.updateCell, edit)
	dg.POST("/columns", api.addColumn, edit)
	dg.DELETE("/columns/:column", api.requestColumnDeletion, edit)
	dg.POST("/deletion/confirm", api.confirmDeletion, edit)
	dg.POST("/deletion/cancel", api.cancelDeletion, edit)
}

// mutate runs fn on the context sheet's grid and responds with the resulting sheet.
func (api *sheetApi) mutate(ctx echo.Context, code int, fn func(g *grid.Grid, res *SheetResponse) error) error {
	sh, err := getContextSheet(ctx)
	if err != nil {
		return err
	}
	var res SheetResponse
	if err = sh.With(func(g *grid.Grid) error { return fn(g, &res) }); err != nil {
		return err
	}
	res.Sheet = sh.View()
	return ctx.JSON(code, res)
}

// Handlers

func (api *sheetApi) open(ctx echo.Context) error {
	var data grade.SheetRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SheetRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	sh, err := api.svc.OpenSheet(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "opening sheet")
	}
	api.sessions.Add(sh)
	api.logger.Debug(fmt.Sprintf("echoapi.sheet: opened %s (%s)", sh.ID, sh.Title), usr)
	return ctx.JSON(http.StatusCreated, sh.View())
}

func (api *sheetApi) retrieve(ctx echo.Context) error {
	sh, err := getContextSheet(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sh.View())
}

func (api *sheetApi) close(ctx echo.Context) error {
	sh, err := getContextSheet(ctx)
	if err != nil {
		return err
	}
	if err = api.sessions.Remove(sh.ID, sh.Owner.ID); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *sheetApi) export(ctx echo.Context) error {
	sh, err := getContextSheet(ctx)
	if err != nil {
		return err
	}
	buf, err := api.svc.ExportSheet(sh)
	if err != nil {
		return errors.Wrap(err, "exporting sheet")
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", sh.ExportFilename()))
	return ctx.Blob(http.StatusOK, xlsxContentType, buf.Bytes())
}

func (api *sheetApi) save(ctx echo.Context) error {
	sh, err := getContextSheet(ctx)
	if err != nil {
		return err
	}
	saved, err := api.svc.SaveSheet(ctx.Request().Context(), sh)
	if err != nil {
		return errors.Wrap(err, "saving sheet")
	}
	return ctx.JSON(http.StatusOK, SheetResponse{Saved: saved, Sheet: sh.View()})
}

func (api *sheetApi) addRow(ctx echo.Context) error {
	return api.mutate(ctx, http.StatusCreated, func(g *grid.Grid, res *SheetResponse) error {
		var err error
		res.Row, err = g.AddRow()
		return err
	})
}

func (api *sheetApi) addAllRows(ctx echo.Context) error {
	var data AddAllRowsRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AddAllRowsRequest")
	}
	return api.mutate(ctx, http.StatusOK, func(g *grid.Grid, res *SheetResponse) error {
		candidates := data.Candidates
		if len(candidates) == 0 {
			candidates = g.CurrentEntities()
		}
		var err error
		res.Added, err = g.AddAllRows(candidates)
		return err
	})
}

func (api *sheetApi) toggleRow(ctx echo.Context) error {
	return api.mutate(ctx, http.StatusOK, func(g *grid.Grid, res *SheetResponse) error {
		res.Row = ctx.Param("row")
		return g.ToggleRowEdit(res.Row)
	})
}

func (api *sheetApi) requestRowDeletion(ctx echo.Context) error {
	index, err := strconv.Atoi(ctx.Param("index"))
	if err != nil {
		return core.NewValidationError(nil, core.FieldError{Field: "index", Error: "row index must be an integer"})
	}
	return api.mutate(ctx, http.StatusOK, func(g *grid.Grid, res *SheetResponse) error {
		res.Row, _ = g.RowKey(index)
		return g.RequestRowDeletion(index)
	})
}

func (api *sheetApi) updateCell(ctx echo.Context) error {
	var data CellRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CellRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	return api.mutate(ctx, http.StatusOK, func(g *grid.Grid, res *SheetResponse) error {
		res.Row, res.Column = data.Row, data.Column
		return g.UpdateCell(data.Value, data.Row, data.Column)
	})
}

func (api *sheetApi) addColumn(ctx echo.Context) error {
	var data ColumnRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ColumnRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	return api.mutate(ctx, http.StatusCreated, func(g *grid.Grid, res *SheetResponse) error {
		var err error
		res.Column, err = g.AddColumn(grid.Column{Category: data.Category, Label: data.Label, Date: data.Date})
		return err
	})
}

func (api *sheetApi) requestColumnDeletion(ctx echo.Context) error {
	return api.mutate(ctx, http.StatusOK, func(g *grid.Grid, res *SheetResponse) error {
		res.Column = ctx.Param("column")
		return g.RequestColumnDeletion(res.Column)
	})
}

func (api *sheetApi) confirmDeletion(ctx echo.Context) error {
	return api.mutate(ctx, http.StatusOK, func(g *grid.Grid, _ *SheetResponse) error {
		return g.ConfirmDeletion()
	})
}

func (api *sheetApi) cancelDeletion(ctx echo.Context) error {
	return api.mutate(ctx, http.StatusOK, func(g *grid.Grid, _ *SheetResponse) error {
		return g.CancelDeletion()
	})
}
