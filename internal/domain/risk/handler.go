package risk

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/claramente/claramente/internal/platform/auth"
	"github.com/claramente/claramente/internal/platform/db"
	"github.com/claramente/claramente/internal/platform/metrics"
	"github.com/claramente/claramente/internal/platform/validate"
	"github.com/claramente/claramente/pkg/response"
)

// Transparency is shown to professionals next to every summary.
const Transparency = "Este painel mostra apenas contagens agregadas de sinais de risco. " +
	"O conteúdo das conversas do paciente nunca é exibido ao profissional."

// LinkChecker answers whether a professional may read a patient's data.
type LinkChecker interface {
	HasActiveLink(ctx context.Context, professionalID, patientID uuid.UUID) (bool, error)
}

type Handler struct {
	rec     *Recorder
	reader  *SummaryReader
	links   LinkChecker
	opts    Options
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func NewHandler(rec *Recorder, reader *SummaryReader, links LinkChecker, opts Options, logger zerolog.Logger) *Handler {
	return &Handler{rec: rec, reader: reader, links: links, opts: opts, logger: logger}
}

func (h *Handler) SetMetrics(m *metrics.Metrics) { h.metrics = m }

// RegisterRoutes mounts the session routes on api and the classifier hook on
// internal, which must already be behind auth.InternalSecret.
func (h *Handler) RegisterRoutes(api *echo.Group, internal *echo.Group) {
	patient := api.Group("/risk", auth.RequireRole(auth.RolePatient))
	patient.POST("/panic", h.Panic)
	patient.GET("/me/summary", h.MySummary)

	pro := api.Group("/professional", auth.RequireRole(auth.RoleProfessional))
	pro.GET("/patients/:patientId/risk-summary", h.PatientSummary)

	internal.POST("/risk/detections", h.Detection)
}

type panicRequest struct {
	Severity               string `json:"severity" validate:"omitempty,oneof=LOW MODERATE HIGH CRITICAL"`
	VisibleForProfessional *bool  `json:"visibleForProfessional"`
}

type detectionRequest struct {
	PatientID              string         `json:"patientId" validate:"required,uuid"`
	Severity               string         `json:"severity" validate:"required,oneof=LOW MODERATE HIGH CRITICAL"`
	Signal                 string         `json:"signal" validate:"required,oneof=suicide_ideation self_harm panic_attack hopelessness agitation severe_distress"`
	Classifier             string         `json:"classifier" validate:"omitempty,max=64"`
	Confidence             *float64       `json:"confidence" validate:"omitempty,gte=0,lte=1"`
	VisibleForProfessional *bool          `json:"visibleForProfessional"`
	Metadata               map[string]any `json:"metadata"`
}

type registeredResponse struct {
	Registered          bool  `json:"registered"`
	ShouldTriggerCrisis *bool `json:"shouldTriggerCrisis,omitempty"`
}

func (h *Handler) Panic(c echo.Context) error {
	ctx := c.Request().Context()
	patientID, err := auth.UserUUID(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	var req panicRequest
	if err := validate.BindAndValidate(c, &req); err != nil {
		return err
	}
	severity := SeverityHigh
	if req.Severity != "" {
		severity = Severity(req.Severity)
	}

	_, err = h.rec.Record(ctx, RecordInput{
		PatientID:              patientID,
		Source:                 SourcePanicButton,
		Severity:               severity,
		Signal:                 PanicSignal,
		VisibleForProfessional: req.VisibleForProfessional,
	})
	if err != nil {
		return recordError(err)
	}
	return response.JSON(c, http.StatusCreated, registeredResponse{Registered: true})
}

func (h *Handler) Detection(c echo.Context) error {
	var req detectionRequest
	if err := validate.BindAndValidate(c, &req); err != nil {
		return err
	}
	if !IsDetectionSignal(req.Signal) {
		return echo.NewHTTPError(http.StatusBadRequest, "signal is not a recognized condition")
	}
	patientID, _ := uuid.Parse(req.PatientID)

	meta := make(map[string]any, len(req.Metadata)+2)
	for k, v := range req.Metadata {
		meta[k] = v
	}
	if req.Classifier != "" {
		meta["classifier"] = req.Classifier
	}
	if req.Confidence != nil {
		meta["confidence"] = *req.Confidence
	}

	severity := Severity(req.Severity)
	_, err := h.rec.Record(c.Request().Context(), RecordInput{
		PatientID:              patientID,
		Source:                 SourceChatDetection,
		Severity:               severity,
		Signal:                 req.Signal,
		Meta:                   meta,
		VisibleForProfessional: req.VisibleForProfessional,
	})
	if err != nil {
		return recordError(err)
	}

	crisis := severity == SeverityCritical
	if crisis {
		h.metrics.CrisisTriggered()
	}
	return response.JSON(c, http.StatusCreated, registeredResponse{Registered: true, ShouldTriggerCrisis: &crisis})
}

func recordError(err error) error {
	if errors.Is(err, ErrInvalidInput) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return err
}

type aggregates struct {
	Last7Days  Counts `json:"last7Days"`
	WindowDays Counts `json:"windowDays"`
}

type summaryResponse struct {
	Totals       Counts       `json:"totals"`
	Aggregates   aggregates   `json:"aggregates"`
	Series       []DailyPoint `json:"series"`
	Days         int          `json:"days"`
	From         string       `json:"from"`
	Transparency string       `json:"transparency,omitempty"`
	Degraded     bool         `json:"degraded,omitempty"`
}

func (h *Handler) buildResponse(sum *Summary) summaryResponse {
	rollup := h.opts.RollupDays
	if sum.WindowDays < rollup {
		rollup = sum.WindowDays
	}
	today := h.opts.now()
	return summaryResponse{
		Totals: sum.Totals,
		Aggregates: aggregates{
			Last7Days:  Rollup(sum.Series, today, rollup),
			WindowDays: Rollup(sum.Series, today, sum.WindowDays),
		},
		Series: sum.Series,
		Days:   sum.WindowDays,
		From:   sum.From,
	}
}

func (h *Handler) PatientSummary(c echo.Context) error {
	ctx := c.Request().Context()
	patientID, err := uuid.Parse(c.Param("patientId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patientId")
	}
	professionalID, err := auth.UserUUID(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	ok, err := h.links.HasActiveLink(ctx, professionalID, patientID)
	if err != nil {
		return err
	}
	if !ok {
		return echo.NewHTTPError(http.StatusForbidden, "no active link with this patient")
	}

	days := ParseWindow(c.QueryParam("days"), h.opts.DefaultWindowDays, h.opts.MaxWindowDays)
	sum, err := h.reader.Summary(ctx, patientID, days)
	if err != nil {
		return err
	}
	resp := h.buildResponse(sum)
	resp.Transparency = Transparency
	return response.JSON(c, http.StatusOK, resp)
}

func (h *Handler) MySummary(c echo.Context) error {
	ctx := c.Request().Context()
	patientID, err := auth.UserUUID(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	days := ParseWindow(c.QueryParam("days"), h.opts.DefaultWindowDays, h.opts.MaxWindowDays)

	sum, err := h.reader.Summary(ctx, patientID, days)
	if err != nil {
		// The patient home screen keeps rendering while the database is
		// unreachable: it shows zero activity flagged as degraded. Any other
		// failure is still an error.
		if !db.IsUnavailable(err) {
			return err
		}
		h.logger.Warn().Err(err).Str("patient_id", patientID.String()).Msg("risk summary degraded")
		empty := &Summary{
			Series:     []DailyPoint{},
			WindowDays: days,
			From:       WindowStart(h.opts.now(), days).Format(DateLayout),
		}
		resp := h.buildResponse(empty)
		resp.Degraded = true
		return response.JSON(c, http.StatusOK, resp)
	}
	return response.JSON(c, http.StatusOK, h.buildResponse(sum))
}
