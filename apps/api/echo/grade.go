package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/miescuela/core/grade"
	"github.com/trezcool/miescuela/services/authz"
)

type gradeApi struct {
	svc *grade.Service
}

func registerGradeAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps Deps) {
	api := gradeApi{svc: deps.GradeSvc}
	canReadCatalog := permissionMiddleware(deps.Authz, deps.UserSvc, authz.ObjCatalog, authz.ActRead)

	g.GET("/courses", api.courses, jwt, canReadCatalog)
	g.GET("/courses/:id/students", api.students, jwt, canReadCatalog)
	g.GET("/subjects", api.subjects, jwt, canReadCatalog)
	g.GET("/grade-types", api.gradeTypes, jwt, canReadCatalog)
	g.GET("/grades", api.grades, jwt, permissionMiddleware(deps.Authz, deps.UserSvc, authz.ObjGrades, authz.ActRead))
}

func (api *gradeApi) courses(ctx echo.Context) error {
	courses, err := api.svc.Courses(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	if courses == nil {
		courses = []grade.Course{}
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *gradeApi) students(ctx echo.Context) error {
	students, err := api.svc.Students(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	if students == nil {
		students = []grade.Student{}
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *gradeApi) subjects(ctx echo.Context) error {
	subjects, err := api.svc.Subjects(ctx.Request().Context(), ctx.QueryParam("course"))
	if err != nil {
		return errors.Wrap(err, "querying subjects")
	}
	if subjects == nil {
		subjects = []grade.Subject{}
	}
	return ctx.JSON(http.StatusOK, subjects)
}

func (api *gradeApi) gradeTypes(ctx echo.Context) error {
	types, err := api.svc.GradeTypes(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying grade types")
	}
	if types == nil {
		types = []grade.GradeType{}
	}
	return ctx.JSON(http.StatusOK, types)
}

func (api *gradeApi) grades(ctx echo.Context) error {
	var filter grade.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []grade.Grade{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	grades, err := api.svc.Grades(ctx.Request().Context(), filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying grades")
	}
	if grades == nil {
		grades = []grade.Grade{}
	}
	return ctx.JSON(http.StatusOK, grades)
}
