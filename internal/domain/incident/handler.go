package incident

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/sitesafe/sitesafe/internal/platform/auth"
	"github.com/sitesafe/sitesafe/internal/platform/listcache"
	"github.com/sitesafe/sitesafe/pkg/bodymap"
	"github.com/sitesafe/sitesafe/pkg/pagination"
)

type Handler struct {
	svc    *Service
	wizard *Wizard
	cache  *listcache.Store
}

func NewHandler(svc *Service, wizard *Wizard, cache *listcache.Store) *Handler {
	return &Handler{svc: svc, wizard: wizard, cache: cache}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole("admin", "case-manager", "employer", "agent"))
	read.GET("/incidents", h.ListIncidents)
	read.GET("/incidents/count", h.CountIncidents)
	read.GET("/incidents/:id", h.GetIncident)
	read.GET("/body-regions", h.GetBodyRegions)

	write := api.Group("", auth.RequireRole("admin", "case-manager", "agent"))
	write.POST("/incidents", h.CreateIncident)
	write.POST("/incidents/wizard", h.StartWizard)
	write.GET("/incidents/wizard/:key", h.GetWizard)
	write.PATCH("/incidents/wizard/:key/fields", h.PatchWizardFields)
	write.POST("/incidents/wizard/:key/advance", h.AdvanceWizard)
	write.POST("/incidents/wizard/:key/retreat", h.RetreatWizard)
	write.POST("/incidents/wizard/:key/save", h.SaveWizardDraft)
	write.POST("/incidents/wizard/:key/submit", h.SubmitWizard)
	write.DELETE("/incidents/wizard/:key", h.DiscardWizard)

	lifecycle := api.Group("", auth.RequireRole("admin", "case-manager"))
	lifecycle.POST("/incidents/:id/archive", h.ArchiveIncident)
	lifecycle.POST("/incidents/:id/restore", h.RestoreIncident)
	lifecycle.DELETE("/incidents/:id", h.DeleteIncident)
}

// -- Wizard --

func (h *Handler) StartWizard(c echo.Context) error {
	var req StartRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	actor := auth.IdentityFromContext(c.Request().Context())
	st, err := h.wizard.Start(c.Request().Context(), req, actor)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "incident not found")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, st)
}

func (h *Handler) GetWizard(c echo.Context) error {
	st, err := h.wizard.State(c.Param("key"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) PatchWizardFields(c echo.Context) error {
	var patch map[string]interface{}
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	st, err := h.wizard.SetFields(c.Param("key"), patch)
	if err != nil {
		if errors.Is(err, ErrSessionExpired) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) AdvanceWizard(c echo.Context) error {
	st, err := h.wizard.Advance(c.Param("key"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if len(st.Errors) > 0 {
		return c.JSON(http.StatusUnprocessableEntity, st)
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) RetreatWizard(c echo.Context) error {
	st, err := h.wizard.Retreat(c.Param("key"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) SaveWizardDraft(c echo.Context) error {
	st, err := h.wizard.SaveDraft(c.Request().Context(), c.Param("key"))
	if err != nil {
		if errors.Is(err, ErrSessionExpired) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) SubmitWizard(c echo.Context) error {
	result, st, err := h.wizard.Submit(c.Request().Context(), c.Param("key"))
	if err != nil {
		var verr *ValidationError
		switch {
		case errors.As(err, &verr):
			return c.JSON(http.StatusUnprocessableEntity, st)
		case errors.Is(err, ErrSubmitInFlight):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		case errors.Is(err, ErrSessionExpired):
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		case errors.Is(err, ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "incident not found")
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) DiscardWizard(c echo.Context) error {
	if err := h.wizard.Discard(c.Request().Context(), c.Param("key")); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Incidents --

func (h *Handler) CreateIncident(c echo.Context) error {
	var inc Incident
	if err := c.Bind(&inc); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	actor := auth.IdentityFromContext(c.Request().Context())
	if err := h.svc.Create(c.Request().Context(), &inc, actor); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			return c.JSON(http.StatusUnprocessableEntity, verr)
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, inc)
}

func (h *Handler) GetIncident(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	actor := auth.IdentityFromContext(c.Request().Context())
	inc, err := h.svc.FetchForEdit(c.Request().Context(), id, actor)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "incident not found")
	}
	return c.JSON(http.StatusOK, inc)
}

func (h *Handler) ListIncidents(c echo.Context) error {
	actor := auth.IdentityFromContext(c.Request().Context())
	pg := pagination.FromContext(c)

	cacheKey := actor.Role + "|" + actor.EmployerID + "|" + c.QueryString()
	if h.cache != nil {
		if cached, ok := h.cache.Get(CacheBucketList, cacheKey); ok {
			return c.JSONBlob(http.StatusOK, cached)
		}
	}

	f := ListFilter{
		Status:        c.QueryParam("status"),
		SiteID:        c.QueryParam("site_id"),
		Search:        c.QueryParam("q"),
		Role:          actor.Role,
		EmployerScope: actor.EmployerID,
	}
	items, total, err := h.svc.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	resp := pagination.NewResponse(items, total, pg.Limit, pg.Offset)
	if h.cache != nil {
		if raw, err := json.Marshal(resp); err == nil {
			h.cache.Set(CacheBucketList, cacheKey, raw)
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) CountIncidents(c echo.Context) error {
	actor := auth.IdentityFromContext(c.Request().Context())

	cacheKey := actor.Role + "|" + actor.EmployerID + "|" + c.QueryString()
	if h.cache != nil {
		if cached, ok := h.cache.Get(CacheBucketCount, cacheKey); ok {
			return c.JSONBlob(http.StatusOK, cached)
		}
	}

	f := ListFilter{
		Status:        c.QueryParam("status"),
		SiteID:        c.QueryParam("site_id"),
		Search:        c.QueryParam("q"),
		Role:          actor.Role,
		EmployerScope: actor.EmployerID,
	}
	total, err := h.svc.Count(c.Request().Context(), f)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	resp := map[string]int{"total": total}
	if h.cache != nil {
		if raw, err := json.Marshal(resp); err == nil {
			h.cache.Set(CacheBucketCount, cacheKey, raw)
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// -- Lifecycle --

func (h *Handler) ArchiveIncident(c echo.Context) error {
	return h.lifecycle(c, h.svc.Archive)
}

func (h *Handler) RestoreIncident(c echo.Context) error {
	return h.lifecycle(c, h.svc.Restore)
}

func (h *Handler) DeleteIncident(c echo.Context) error {
	return h.lifecycle(c, h.svc.SoftDelete)
}

type lifecycleOp func(ctx context.Context, id uuid.UUID, actor auth.Identity) error

func (h *Handler) lifecycle(c echo.Context, op lifecycleOp) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	actor := auth.IdentityFromContext(c.Request().Context())
	if err := op(c.Request().Context(), id, actor); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "incident not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"id": id.String(), "status": "ok"})
}

// -- Body regions --

func (h *Handler) GetBodyRegions(c echo.Context) error {
	part := c.QueryParam("part")
	side := c.QueryParam("side")
	regions := bodymap.RegionsFor(part, side)
	if len(regions) == 0 {
		regions = []bodymap.Region{bodymap.DefaultRegion()}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"part":    part,
		"side":    side,
		"regions": regions,
	})
}
