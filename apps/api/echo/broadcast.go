package echoapi

import (
	"encoding/xml"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/indysis/core"
	"github.com/trezcool/indysis/core/broadcast"
	"github.com/trezcool/indysis/core/user"
)

type broadcastApi struct {
	conf     *core.Config
	svc      *broadcast.Service
	validate *validator.Validate
}

func registerBroadcastAPI(g *echo.Group, jwt echo.MiddlewareFunc, conf *core.Config, svc *broadcast.Service, validate *validator.Validate) {
	api := broadcastApi{conf: conf, svc: svc, validate: validate}

	// provider callbacks
	sg := g.Group("/sms", twilioSignatureMiddleware(conf))
	sg.POST("/incoming", api.incoming)
	sg.POST("/status", api.status)

	bg := g.Group("/broadcasts", jwt, adminMiddleware(user.RoleAdminOwner, user.RoleAdminBroadcast))
	bg.GET("", api.query)
	bg.POST("", api.create)
	bg.GET("/:id", api.retrieve)
	bg.GET("/:id/recipients", api.recipients)
	bg.POST("/:id/test", api.sendTest)
	bg.POST("/:id/send", api.send)
	bg.GET("/:id/stats", api.stats)
}

func (api *broadcastApi) query(ctx echo.Context) error {
	bcs, err := api.svc.Query(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying broadcasts")
	}
	return ctx.JSON(http.StatusOK, orEmpty(bcs))
}

func (api *broadcastApi) create(ctx echo.Context) error {
	var data broadcast.NewBroadcast
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewBroadcast")
	}
	if err := data.Validate(api.validate, api.conf.Broadcast.PhoneRegion); err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	bc, err := api.svc.Create(ctx.Request().Context(), claims.Subject, data)
	if err != nil {
		return errors.Wrap(err, "creating broadcast")
	}
	return ctx.JSON(http.StatusCreated, bc)
}

func (api *broadcastApi) retrieve(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	bc, err := api.svc.Get(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "finding broadcast")
	}
	return ctx.JSON(http.StatusOK, bc)
}

func (api *broadcastApi) recipients(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	rs, err := api.svc.Recipients(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "querying recipients")
	}
	return ctx.JSON(http.StatusOK, orEmpty(rs))
}

func (api *broadcastApi) sendTest(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	var data broadcast.TestBroadcast
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to TestBroadcast")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	bc, err := api.svc.SendTest(ctx.Request().Context(), id, data)
	if err != nil {
		return errors.Wrap(err, "sending test message")
	}
	return ctx.JSON(http.StatusOK, bc)
}

// send starts delivering a tested broadcast; messages go out in the background.
func (api *broadcastApi) send(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	bc, err := api.svc.Deliver(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "sending broadcast")
	}
	return ctx.JSON(http.StatusAccepted, bc)
}

func (api *broadcastApi) stats(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	stats, err := api.svc.Stats(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "counting recipients")
	}
	return ctx.JSON(http.StatusOK, stats)
}

// twimlResponse is the TwiML document answering an incoming message.
type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message,omitempty"`
}

func (api *broadcastApi) incoming(ctx echo.Context) error {
	var data broadcast.IncomingSMS
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to IncomingSMS")
	}
	reply := api.svc.Incoming(ctx.Request().Context(), data)
	return ctx.XML(http.StatusOK, twimlResponse{Message: reply})
}

func (api *broadcastApi) status(ctx echo.Context) error {
	var data broadcast.StatusUpdate
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StatusUpdate")
	}
	if err := api.svc.UpdateStatus(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "updating message status")
	}
	return ctx.NoContent(http.StatusNoContent)
}
