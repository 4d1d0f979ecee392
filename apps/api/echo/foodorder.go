package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/indysis/core/foodorder"
)

type foodOrderApi struct {
	svc      *foodorder.Service
	validate *validator.Validate
}

func registerFoodOrderAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *foodorder.Service, validate *validator.Validate) {
	api := foodOrderApi{svc: svc, validate: validate}

	fg := g.Group("/food-orders", jwt, staffMiddleware())
	admin := adminMiddleware()

	fg.GET("/events", api.queryEvents)
	fg.POST("/events", api.createEvent, admin)
	fg.GET("/events/:id", api.retrieveEvent)
	fg.GET("/events/:id/items", api.queryItems)
	fg.POST("/events/:id/items", api.addItem, admin)
	fg.GET("/events/:id/report", api.eventReport)
	fg.PUT("/items/:id/active", api.setItemActive, admin)
	fg.POST("/orders", api.placeOrder)
	fg.DELETE("/orders/:id", api.cancelOrder)
}

func (api *foodOrderApi) queryEvents(ctx echo.Context) error {
	events, err := api.svc.QueryEvents(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying events")
	}
	return ctx.JSON(http.StatusOK, orEmpty(events))
}

func (api *foodOrderApi) createEvent(ctx echo.Context) error {
	var data foodorder.NewEvent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewEvent")
	}
	ev, err := data.Validate(api.validate)
	if err != nil {
		return err
	}
	ev, err = api.svc.CreateEvent(ctx.Request().Context(), ev)
	if err != nil {
		return errors.Wrap(err, "creating event")
	}
	return ctx.JSON(http.StatusCreated, ev)
}

func (api *foodOrderApi) retrieveEvent(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	ev, err := api.svc.GetEvent(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "finding event")
	}
	return ctx.JSON(http.StatusOK, ev)
}

func (api *foodOrderApi) queryItems(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	items, err := api.svc.QueryItems(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "querying items")
	}
	return ctx.JSON(http.StatusOK, orEmpty(items))
}

func (api *foodOrderApi) addItem(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	var data foodorder.NewItem
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewItem")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	item, err := api.svc.AddItem(ctx.Request().Context(), id, data)
	if err != nil {
		return errors.Wrap(err, "adding item")
	}
	return ctx.JSON(http.StatusCreated, item)
}

type activeRequest struct {
	Active bool `json:"active"`
}

func (api *foodOrderApi) setItemActive(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	var data activeRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to activeRequest")
	}
	item, err := api.svc.SetItemActive(ctx.Request().Context(), id, data.Active)
	if err != nil {
		return errors.Wrap(err, "updating item")
	}
	return ctx.JSON(http.StatusOK, item)
}

// eventReport builds the order report of an event; filter with `school_year_id`, `grade` & `keyword`.
func (api *foodOrderApi) eventReport(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	var filter foodorder.ReportFilter
	if err = ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to ReportFilter")
	}
	report, err := api.svc.EventReport(ctx.Request().Context(), id, filter)
	if err != nil {
		return errors.Wrap(err, "building event report")
	}
	return ctx.JSON(http.StatusOK, report)
}

func (api *foodOrderApi) placeOrder(ctx echo.Context) error {
	var data foodorder.NewOrder
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewOrder")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	order, err := api.svc.PlaceOrder(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "placing order")
	}
	return ctx.JSON(http.StatusCreated, order)
}

func (api *foodOrderApi) cancelOrder(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	if err = api.svc.CancelOrder(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "cancelling order")
	}
	return ctx.NoContent(http.StatusNoContent)
}
