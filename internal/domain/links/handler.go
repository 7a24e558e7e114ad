package links

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
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
	pro := api.Group("/professional/links", auth.RequireRole(auth.RoleProfessional))
	pro.POST("", h.Request)
	pro.GET("", h.ListForProfessional)

	patient := api.Group("/links", auth.RequireRole(auth.RolePatient))
	patient.GET("", h.ListForPatient)
	patient.POST("/:id/accept", h.Accept)

	either := api.Group("/links", auth.RequireRole(auth.RolePatient, auth.RoleProfessional))
	either.POST("/:id/revoke", h.Revoke)
}

type requestBody struct {
	PatientID string `json:"patientId" validate:"required,uuid"`
}

func statusFor(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrDuplicate), errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrSelfLink):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return err
}

func (h *Handler) Request(c echo.Context) error {
	ctx := c.Request().Context()
	professionalID, err := auth.UserUUID(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	var body requestBody
	if err := validate.BindAndValidate(c, &body); err != nil {
		return err
	}
	patientID, _ := uuid.Parse(body.PatientID)

	l, err := h.svc.Request(ctx, professionalID, patientID)
	if err != nil {
		return statusFor(err)
	}
	return response.JSON(c, http.StatusCreated, l)
}

func (h *Handler) ListForProfessional(c echo.Context) error {
	ctx := c.Request().Context()
	professionalID, err := auth.UserUUID(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByProfessional(ctx, professionalID, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) ListForPatient(c echo.Context) error {
	ctx := c.Request().Context()
	patientID, err := auth.UserUUID(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByPatient(ctx, patientID, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) Accept(c echo.Context) error {
	return h.transition(c, h.svc.Accept)
}

func (h *Handler) Revoke(c echo.Context) error {
	return h.transition(c, h.svc.Revoke)
}

func (h *Handler) transition(c echo.Context, fn func(ctx context.Context, linkID, actorID uuid.UUID) (*Link, error)) error {
	ctx := c.Request().Context()
	actorID, err := auth.UserUUID(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	linkID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	l, err := fn(ctx, linkID, actorID)
	if err != nil {
		return statusFor(err)
	}
	return response.JSON(c, http.StatusOK, l)
}
