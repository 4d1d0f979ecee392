package echoapi

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/indysis/core"
	"github.com/trezcool/indysis/core/attendance"
	"github.com/trezcool/indysis/core/user"
)

type attendanceApi struct {
	svc      *attendance.Service
	validate *validator.Validate
}

func registerAttendanceAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *attendance.Service, validate *validator.Validate) {
	api := attendanceApi{svc: svc, validate: validate}

	ag := g.Group("/attendance", jwt, staffMiddleware())
	admin := adminMiddleware(user.RoleAdminOwner, user.RoleAdminAttendance)

	ag.GET("/statuses", api.queryStatuses)
	ag.POST("/statuses", api.createStatus, admin)
	ag.POST("/records", api.record, admin)
	ag.POST("/take", api.takeClassAttendance)
	ag.GET("/summaries", api.summaries)
	ag.GET("/students/:id", api.studentSummary)
	ag.GET("/exceptions", api.exceptionReport, admin)
	ag.GET("/daily-status", api.dailyStatus, admin)
}

func (api *attendanceApi) queryStatuses(ctx echo.Context) error {
	statuses, err := api.svc.QueryStatuses(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying statuses")
	}
	return ctx.JSON(http.StatusOK, orEmpty(statuses))
}

func (api *attendanceApi) createStatus(ctx echo.Context) error {
	var status attendance.Status
	if err := ctx.Bind(&status); err != nil {
		return errors.Wrap(err, "binding to Status")
	}
	status.ID = 0
	status, err := api.svc.CreateStatus(ctx.Request().Context(), status)
	if err != nil {
		return errors.Wrap(err, "creating status")
	}
	return ctx.JSON(http.StatusCreated, status)
}

type recordRequest struct {
	StudentID    int64  `json:"student_id" validate:"required"`
	StatusID     int64  `json:"status_id" validate:"required"`
	Date         string `json:"date" validate:"required"`
	Time         string `json:"time"`
	Notes        string `json:"notes"`
	PrivateNotes string `json:"private_notes"`
}

// record saves an office record. Recording "Present" clears the student's day and returns no content.
func (api *attendanceApi) record(ctx echo.Context) error {
	var data recordRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to recordRequest")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}
	date, err := parseDate("date", data.Date)
	if err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	rec, err := api.svc.Record(ctx.Request().Context(), attendance.Record{
		StudentID:    data.StudentID,
		StatusID:     data.StatusID,
		Date:         date,
		Time:         core.CleanString(data.Time),
		Notes:        core.CleanString(data.Notes),
		PrivateNotes: core.CleanString(data.PrivateNotes),
		RecordedBy:   claims.Subject,
	})
	if err != nil {
		return errors.Wrap(err, "recording attendance")
	}
	if rec == nil {
		return ctx.NoContent(http.StatusNoContent)
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *attendanceApi) takeClassAttendance(ctx echo.Context) error {
	var data attendance.TakeAttendance
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to TakeAttendance")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	records, err := api.svc.TakeClassAttendance(ctx.Request().Context(), claims.Subject, data)
	if err != nil {
		return errors.Wrap(err, "taking class attendance")
	}
	return ctx.JSON(http.StatusCreated, orEmpty(records))
}

func (api *attendanceApi) summaries(ctx echo.Context) error {
	ids, err := intsQuery(ctx, "student_id")
	if err != nil {
		return err
	}
	from, err := dateQuery(ctx, "from", time.Time{})
	if err != nil {
		return err
	}
	to, err := dateQuery(ctx, "to", today())
	if err != nil {
		return err
	}
	sums, err := api.svc.Summaries(ctx.Request().Context(), ids, from, to)
	if err != nil {
		return errors.Wrap(err, "summarizing attendance")
	}
	return ctx.JSON(http.StatusOK, sums)
}

type studentSummary struct {
	StudentID  int64   `json:"student_id"`
	DaysAbsent float64 `json:"days_absent"`
	TimesLate  int     `json:"times_late"`
}

func (api *attendanceApi) studentSummary(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	from, err := dateQuery(ctx, "from", time.Time{})
	if err != nil {
		return err
	}
	to, err := dateQuery(ctx, "to", today())
	if err != nil {
		return err
	}
	absent, err := api.svc.DaysAbsent(ctx.Request().Context(), id, from, to)
	if err != nil {
		return errors.Wrap(err, "counting days absent")
	}
	late, err := api.svc.TimesLate(ctx.Request().Context(), id, from, to)
	if err != nil {
		return errors.Wrap(err, "counting times late")
	}
	return ctx.JSON(http.StatusOK, studentSummary{StudentID: id, DaysAbsent: absent, TimesLate: late})
}

func (api *attendanceApi) exceptionReport(ctx echo.Context) error {
	date, err := dateQuery(ctx, "date", today())
	if err != nil {
		return err
	}
	rows, err := api.svc.ExceptionReport(ctx.Request().Context(), date)
	if err != nil {
		return errors.Wrap(err, "building exception report")
	}
	return ctx.JSON(http.StatusOK, orEmpty(rows))
}

func (api *attendanceApi) dailyStatus(ctx echo.Context) error {
	date, err := dateQuery(ctx, "date", today())
	if err != nil {
		return err
	}
	yearID, _, err := intQuery(ctx, "school_year_id")
	if err != nil {
		return err
	}
	statuses, err := api.svc.DailyStatus(ctx.Request().Context(), date, yearID)
	if err != nil {
		return errors.Wrap(err, "building daily status")
	}
	return ctx.JSON(http.StatusOK, orEmpty(statuses))
}
