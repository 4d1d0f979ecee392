package echoapi

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/indysis/core/googlesync"
	"github.com/trezcool/indysis/core/user"
)

const defaultLogsLimit = 20

type groupSyncApi struct {
	svc      *googlesync.Service
	validate *validator.Validate
}

func registerGroupSyncAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *googlesync.Service, validate *validator.Validate) {
	api := groupSyncApi{svc: svc, validate: validate}

	gg := g.Group("/google-groups", jwt, adminMiddleware(user.RoleAdminOwner))
	gg.GET("", api.query)
	gg.POST("/refresh", api.refresh)
	gg.POST("/sync", api.syncAll)
	gg.GET("/:id", api.retrieve)
	gg.PUT("/:id", api.update)
	gg.GET("/:id/logs", api.logs)
	gg.GET("/:id/members", api.members)
	gg.POST("/:id/sync", api.sync)
}

func (api *groupSyncApi) query(ctx echo.Context) error {
	groups, err := api.svc.QueryGroups(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying groups")
	}
	return ctx.JSON(http.StatusOK, orEmpty(groups))
}

// refresh pulls the groups of the domain.
func (api *groupSyncApi) refresh(ctx echo.Context) error {
	groups, err := api.svc.RefreshGroups(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "refreshing groups")
	}
	return ctx.JSON(http.StatusOK, orEmpty(groups))
}

func (api *groupSyncApi) retrieve(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	grp, err := api.svc.GetGroup(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "finding group")
	}
	return ctx.JSON(http.StatusOK, grp)
}

func (api *groupSyncApi) update(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	var data googlesync.UpdateGroup
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateGroup")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	grp, err := api.svc.UpdateGroup(ctx.Request().Context(), id, data)
	if err != nil {
		return errors.Wrap(err, "updating group")
	}
	return ctx.JSON(http.StatusOK, grp)
}

func (api *groupSyncApi) logs(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	limit := defaultLogsLimit
	if val := ctx.QueryParam("limit"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			limit = n
		}
	}
	logs, err := api.svc.Logs(ctx.Request().Context(), id, limit)
	if err != nil {
		return errors.Wrap(err, "querying sync logs")
	}
	return ctx.JSON(http.StatusOK, orEmpty(logs))
}

// members lists the expected members of the group, by email.
func (api *groupSyncApi) members(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	grp, err := api.svc.GetGroup(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "finding group")
	}
	expected, err := api.svc.ExpectedMembers(ctx.Request().Context(), grp)
	if err != nil {
		return errors.Wrap(err, "listing expected members")
	}
	members := make([]googlesync.Member, 0, len(expected))
	for _, m := range expected {
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Email < members[j].Email })
	return ctx.JSON(http.StatusOK, members)
}

func (api *groupSyncApi) sync(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	log, err := api.svc.SyncGroupByID(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "syncing group")
	}
	return ctx.JSON(http.StatusOK, log)
}

func (api *groupSyncApi) syncAll(ctx echo.Context) error {
	n, err := api.svc.SyncAll(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "syncing groups")
	}
	return ctx.JSON(http.StatusOK, countResponse{Count: n})
}
