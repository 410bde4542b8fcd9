package echoapi

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/trezcool/miescuela/core"
	"github.com/trezcool/miescuela/core/grade"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}
	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

type (
	LoginRequest struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token string `json:"token"`
	}

	CellRequest struct {
		Row    string `json:"row" validate:"required"`
		Column string `json:"column" validate:"required"`
		Value  string `json:"value"`
	}

	ColumnRequest struct {
		Category string `json:"category" validate:"required_without=Label"`
		Label    string `json:"label"`
		Date     string `json:"date" validate:"omitempty,datestr"`
	}

	AddAllRowsRequest struct {
		Candidates []string `json:"candidates"`
	}

	// SheetResponse is the sheet after a mutation plus what the mutation produced.
	SheetResponse struct {
		Row    string          `json:"row,omitempty"`
		Column string          `json:"column,omitempty"`
		Added  int             `json:"added,omitempty"`
		Saved  bool            `json:"saved,omitempty"`
		Sheet  grade.SheetView `json:"sheet"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Username = core.CleanString(lr.Username, true /* lower */)
	return validate.Struct(lr)
}

func (cr *CellRequest) Validate(validate *validator.Validate) error {
	cr.Row = core.CleanString(cr.Row)
	cr.Column = core.CleanString(cr.Column)
	return validate.Struct(cr)
}

func (cr *ColumnRequest) Validate(validate *validator.Validate) error {
	cr.Category = core.CleanString(cr.Category)
	cr.Label = core.CleanString(cr.Label)
	cr.Date = core.CleanString(cr.Date)
	return validate.Struct(cr)
}
