package echoapi

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/indysis/core"
	"github.com/trezcool/indysis/core/afterschool"
)

type afterschoolApi struct {
	svc      *afterschool.Service
	validate *validator.Validate
}

func registerAfterschoolAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *afterschool.Service, validate *validator.Validate) {
	api := afterschoolApi{svc: svc, validate: validate}

	ag := g.Group("/afterschool", jwt, staffMiddleware())
	admin := adminMiddleware()

	ag.GET("/periods", api.queryPeriods)
	ag.POST("/periods", api.createPeriod, admin)
	ag.GET("/packages", api.queryPackages)
	ag.POST("/packages", api.createPackage, admin)
	ag.POST("/purchases", api.purchase, admin)
	ag.POST("/attendance", api.recordAttendance)
	ag.GET("/beforeschool", api.queryBeforeschool)
	ag.POST("/beforeschool", api.recordBeforeschool)
	ag.GET("/usage", api.monthlyUsage, admin)
}

func (api *afterschoolApi) queryPeriods(ctx echo.Context) error {
	periods, err := api.svc.QueryPeriods(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying periods")
	}
	return ctx.JSON(http.StatusOK, orEmpty(periods))
}

func (api *afterschoolApi) createPeriod(ctx echo.Context) error {
	var data afterschool.NewPeriod
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPeriod")
	}
	period, err := data.Validate(api.validate)
	if err != nil {
		return err
	}
	period, err = api.svc.CreatePeriod(ctx.Request().Context(), period)
	if err != nil {
		return errors.Wrap(err, "creating period")
	}
	return ctx.JSON(http.StatusCreated, period)
}

func (api *afterschoolApi) queryPackages(ctx echo.Context) error {
	pkgs, err := api.svc.QueryPackages(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying packages")
	}
	return ctx.JSON(http.StatusOK, orEmpty(pkgs))
}

func (api *afterschoolApi) createPackage(ctx echo.Context) error {
	var pkg afterschool.Package
	if err := ctx.Bind(&pkg); err != nil {
		return errors.Wrap(err, "binding to Package")
	}
	pkg.ID = 0
	pkg, err := api.svc.CreatePackage(ctx.Request().Context(), pkg)
	if err != nil {
		return errors.Wrap(err, "creating package")
	}
	return ctx.JSON(http.StatusCreated, pkg)
}

type purchaseRequest struct {
	StudentID      int64  `json:"student_id" validate:"required"`
	PackageID      int64  `json:"package_id" validate:"required"`
	DateRegistered string `json:"date_registered"`
}

func (api *afterschoolApi) purchase(ctx echo.Context) error {
	var data purchaseRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to purchaseRequest")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}
	registered, err := parseDate("date_registered", data.DateRegistered)
	if err != nil {
		return err
	}
	p, err := api.svc.Purchase(ctx.Request().Context(), data.StudentID, data.PackageID, registered)
	if err != nil {
		return errors.Wrap(err, "purchasing package")
	}
	return ctx.JSON(http.StatusCreated, p)
}

func (api *afterschoolApi) recordAttendance(ctx echo.Context) error {
	var data afterschool.NewAttendance
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAttendance")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	att, err := api.svc.RecordAttendance(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "recording afterschool attendance")
	}
	return ctx.JSON(http.StatusOK, att)
}

type beforeschoolRequest struct {
	StudentID int64  `json:"student_id" validate:"required"`
	Date      string `json:"date"`
}

func (api *afterschoolApi) recordBeforeschool(ctx echo.Context) error {
	var data beforeschoolRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to beforeschoolRequest")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}
	date, err := parseDate("date", data.Date)
	if err != nil {
		return err
	}
	if date.IsZero() {
		date = today()
	}
	att, err := api.svc.RecordBeforeschool(ctx.Request().Context(), data.StudentID, date)
	if err != nil {
		return errors.Wrap(err, "recording beforeschool attendance")
	}
	return ctx.JSON(http.StatusOK, att)
}

func (api *afterschoolApi) queryBeforeschool(ctx echo.Context) error {
	from, err := dateQuery(ctx, "from", today())
	if err != nil {
		return err
	}
	to, err := dateQuery(ctx, "to", from)
	if err != nil {
		return err
	}
	days, err := api.svc.QueryBeforeschool(ctx.Request().Context(), from, to)
	if err != nil {
		return errors.Wrap(err, "querying beforeschool attendance")
	}
	return ctx.JSON(http.StatusOK, orEmpty(days))
}

// monthlyUsage reports the usage of `month` (YYYY-MM), the current month by default.
func (api *afterschoolApi) monthlyUsage(ctx echo.Context) error {
	month := today()
	if val := ctx.QueryParam("month"); val != "" {
		m, err := time.Parse("2006-01", val)
		if err != nil {
			return core.NewValidationError(nil, core.FieldError{Field: "month", Error: "enter a valid month (YYYY-MM)"})
		}
		month = m
	}
	report, err := api.svc.MonthlyUsage(ctx.Request().Context(), month)
	if err != nil {
		return errors.Wrap(err, "building usage report")
	}
	return ctx.JSON(http.StatusOK, report)
}
