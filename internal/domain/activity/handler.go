package activity

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/claramente/claramente/internal/platform/auth"
	"github.com/claramente/claramente/internal/platform/validate"
	"github.com/claramente/claramente/pkg/pagination"
	"github.com/claramente/claramente/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/activity", auth.RequireRole(auth.RolePatient, auth.RoleProfessional))
	g.POST("", h.Record)
	g.GET("", h.List)
}

type recordRequest struct {
	Type string         `json:"type" validate:"required,max=64"`
	Meta map[string]any `json:"meta"`
}

func (h *Handler) Record(c echo.Context) error {
	ctx := c.Request().Context()
	userID, err := auth.UserUUID(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	var req recordRequest
	if err := validate.BindAndValidate(c, &req); err != nil {
		return err
	}
	e, err := h.svc.Record(ctx, userID, req.Type, req.Meta)
	if errors.Is(err, ErrInvalidType) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err != nil {
		return err
	}
	return response.JSON(c, http.StatusCreated, e)
}

func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	userID, err := auth.UserUUID(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	pg := pagination.FromContext(c)
	items, err := h.svc.ListRecent(ctx, userID, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return response.JSON(c, http.StatusOK, items)
}
