package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/indysis/core"
	"github.com/trezcool/indysis/core/afterschool"
	"github.com/trezcool/indysis/core/attendance"
	"github.com/trezcool/indysis/core/broadcast"
	"github.com/trezcool/indysis/core/foodorder"
	"github.com/trezcool/indysis/core/googlesync"
	"github.com/trezcool/indysis/core/reportcard"
	"github.com/trezcool/indysis/core/school"
	"github.com/trezcool/indysis/core/user"
)

var (
	errUnauthorized         = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errAuthenticationFailed = echo.NewHTTPError(http.StatusBadRequest, "authentication failed")
	errAccountDeactivated   = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errRefreshExpired       = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpForbidden        = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound         = echo.NewHTTPError(http.StatusNotFound, "not found")
	errBadSignature         = echo.NewHTTPError(http.StatusForbidden, "invalid request signature")

	// domain errors the client can act on
	domainErrCodes = map[error]int{
		core.ErrPermissionDenied: http.StatusForbidden,

		user.ErrUserExists:     http.StatusConflict,
		user.ErrEmailExists:    http.StatusConflict,
		user.ErrUsernameExists: http.StatusConflict,

		school.ErrNoActiveYear:   http.StatusBadRequest,
		school.ErrStudentFaculty: http.StatusBadRequest,

		attendance.ErrLogExists:         http.StatusConflict,
		attendance.ErrStudentNotInClass: http.StatusBadRequest,

		reportcard.ErrReportCardExists:  http.StatusConflict,
		reportcard.ErrNoTemplate:        http.StatusBadRequest,
		reportcard.ErrMultipleTemplates: http.StatusBadRequest,
		reportcard.ErrNoGrade:           http.StatusBadRequest,
		reportcard.ErrTermClosed:        http.StatusBadRequest,
		reportcard.ErrTermOpen:          http.StatusBadRequest,
		reportcard.ErrNoRecipients:      http.StatusBadRequest,

		broadcast.ErrNotTested:   http.StatusBadRequest,
		broadcast.ErrAlreadySent: http.StatusConflict,
		broadcast.ErrMissingSID:  http.StatusBadRequest,

		foodorder.ErrItemInactive: http.StatusBadRequest,

		afterschool.ErrNoSchoolYear: http.StatusBadRequest,

		googlesync.ErrNotConfigured: http.StatusBadRequest,
	}
)

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		cause := errors.Cause(err)
		switch origErr := cause.(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				message = origErr.Message
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		case *core.NotFoundError:
			code = http.StatusNotFound
			message = origErr.Error()
		case *reportcard.ConflictError:
			code = http.StatusConflict
			message = echo.Map{"error": "conflicting edits", "conflicts": origErr.Conflicts}
		default:
			if c, ok := domainErrCodes[cause]; ok {
				code = c
				message = cause.Error()
				break
			}

			// any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg

			var usr user.User
			if claims, cErr := getContextClaims(ctx); cErr == nil {
				usr.ID = claims.Subject
				usr.Username = claims.Username
				usr.Email = claims.Email
			}
			logger.Error(msg, errors.Wrap(err, msg), usr)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug && code == http.StatusInternalServerError {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
