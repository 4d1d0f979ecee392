package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/twilio/twilio-go/client"

	"github.com/trezcool/indysis/core"
)

// adminMiddleware lets admins holding any of roles through; any admin when roles is empty.
func adminMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.IsAdmin && contextHasAnyRole(ctx, roles) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// staffMiddleware lets faculty & admins through.
func staffMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.IsFaculty || claims.IsAdmin {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// twilioSignatureMiddleware rejects callbacks not signed with the account's auth token.
// Nothing is checked when no auth token is configured.
func twilioSignatureMiddleware(conf *core.Config) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if conf.Twilio.AuthToken == "" {
			return next
		}
		rv := client.NewRequestValidator(conf.Twilio.AuthToken)
		return func(ctx echo.Context) error {
			form, err := ctx.FormParams()
			if err != nil {
				return errors.Wrap(err, "parsing form")
			}
			params := make(map[string]string, len(form))
			for k, v := range form {
				if len(v) > 0 {
					params[k] = v[0]
				}
			}
			req := ctx.Request()
			url := ctx.Scheme() + "://" + req.Host + req.RequestURI
			if !rv.Validate(url, params, req.Header.Get("X-Twilio-Signature")) {
				return errBadSignature
			}
			return next(ctx)
		}
	}
}
