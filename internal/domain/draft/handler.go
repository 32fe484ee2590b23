package draft

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sitesafe/sitesafe/internal/platform/auth"
)

type Handler struct {
	engine *Engine
}

func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole("admin", "case-manager", "agent"))
	g.GET("/drafts/:key", h.GetDraft)
	g.DELETE("/drafts/:key", h.DeleteDraft)
}

func (h *Handler) GetDraft(c echo.Context) error {
	slot, err := h.engine.Load(c.Request().Context(), c.Param("key"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "draft not found")
	}
	return c.JSON(http.StatusOK, slot)
}

func (h *Handler) DeleteDraft(c echo.Context) error {
	if err := h.engine.Discard(c.Request().Context(), c.Param("key")); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
