package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/iphwatch/backend/internal/alerts"
	"github.com/iphwatch/backend/internal/domain"
	"github.com/iphwatch/backend/internal/forecast"
	"github.com/iphwatch/backend/internal/service"
	"github.com/iphwatch/backend/internal/trainer"
	"github.com/iphwatch/backend/internal/validator"
	"github.com/iphwatch/backend/pkg/logger"
)

// Handler contains all HTTP handlers
type Handler struct {
	svc          *service.ForecastService
	dashboardSvc *service.DashboardService
	defaultWeeks int
}

// NewHandler creates a new handler. defaultWeeks is used when a request
// does not name a horizon.
func NewHandler(svc *service.ForecastService, dashboardSvc *service.DashboardService, defaultWeeks int) *Handler {
	if defaultWeeks == 0 {
		defaultWeeks = 8
	}
	return &Handler{
		svc:          svc,
		dashboardSvc: dashboardSvc,
		defaultWeeks: defaultWeeks,
	}
}

// PipelineRequest is the body of POST /api/v1/pipeline
type PipelineRequest struct {
	Weeks       int    `json:"weeks"`
	Method      string `json:"method"`
	RetrainOnly bool   `json:"retrain_only"`
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(c *fiber.Ctx) error {
	status := "ok"
	database := "connected"
	if err := h.svc.Health(c.Context()); err != nil {
		logger.Warn().Err(err).Msg("Health check failed")
		status = "degraded"
		database = "unavailable"
	}

	return c.JSON(fiber.Map{
		"status":   status,
		"service":  "iph-forecast-backend",
		"version":  "1.0.0",
		"database": database,
	})
}

// GetForecast returns a forecast table for the requested model
func (h *Handler) GetForecast(c *fiber.Ctx) error {
	weeks := c.QueryInt("weeks", h.defaultWeeks)
	method := c.Query("method", domain.MethodDeterministic)
	if !validMethod(method) {
		return fiber.NewError(fiber.StatusBadRequest, "method must be deterministic or monte_carlo")
	}

	fc, err := h.svc.Forecast(c.Context(), c.Query("model"), weeks, method)
	if err != nil {
		return toHTTPError(err, "Failed to generate forecast")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    fc,
	})
}

// GetLatestForecast describes the forecast held in memory
func (h *Handler) GetLatestForecast(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data":    h.svc.LatestForecastInfo(),
	})
}

// ClearLatestForecast drops the forecast held in memory
func (h *Handler) ClearLatestForecast(c *fiber.Ctx) error {
	h.svc.ClearLatestForecast()
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Latest forecast cleared",
	})
}

// GetDashboard returns aggregated data, model and forecast state
func (h *Handler) GetDashboard(c *fiber.Ctx) error {
	data, err := h.dashboardSvc.GetDashboardData(c.Context())
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to fetch dashboard data")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    data,
	})
}

// GetSystemStatus reports whether forecasting is ready for use
func (h *Handler) GetSystemStatus(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data":    h.dashboardSvc.SystemStatus(c.Context()),
	})
}

// GetAlerts returns statistical alerts on the latest observation
func (h *Handler) GetAlerts(c *fiber.Ctx) error {
	report, err := h.svc.StatisticalAlerts(c.Context())
	if err != nil {
		return toHTTPError(err, "Failed to compute alerts")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    report,
		"count":   len(report.Alerts),
	})
}

// GetHistoricalAlerts returns bound breaches within the last ?days (default 7)
func (h *Handler) GetHistoricalAlerts(c *fiber.Ctx) error {
	days := c.QueryInt("days", 7)
	if days < 1 || days > 3650 {
		days = 7
	}

	history, err := h.svc.HistoricalAlerts(c.Context(), days)
	if err != nil {
		return toHTTPError(err, "Failed to fetch alert history")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    history,
	})
}

// TrainModels trains every model. With ?async=true the run is started in
// the background and 202 is returned immediately.
func (h *Handler) TrainModels(c *fiber.Ctx) error {
	if c.QueryBool("async") {
		h.svc.TriggerRetrain()
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"success": true,
			"message": "Training started",
		})
	}

	report, err := h.svc.Train(c.Context())
	if err != nil {
		return toHTTPError(err, "Failed to train models")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    report,
	})
}

// GetPerformanceSummary returns per-model history aggregates
func (h *Handler) GetPerformanceSummary(c *fiber.Ctx) error {
	summary, err := h.svc.PerformanceSummary(c.Context())
	if err != nil {
		return toHTTPError(err, "Failed to fetch performance summary")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    summary,
		"count":   len(summary),
	})
}

// GetBestModel returns the current best model
func (h *Handler) GetBestModel(c *fiber.Ctx) error {
	best, err := h.svc.BestModel(c.Context())
	if err != nil {
		return toHTTPError(err, "Failed to fetch best model")
	}
	if best == nil {
		return fiber.NewError(fiber.StatusNotFound, "No trained models available")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    best,
	})
}

// GetTrainingHistory returns per-model chart series
func (h *Handler) GetTrainingHistory(c *fiber.Ctx) error {
	series, err := h.svc.HistorySeries(c.Context())
	if err != nil {
		return toHTTPError(err, "Failed to fetch training history")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    series,
	})
}

// GetAvailableModels lists persisted model artifacts
func (h *Handler) GetAvailableModels(c *fiber.Ctx) error {
	models, err := h.svc.AvailableModels()
	if err != nil {
		return toHTTPError(err, "Failed to list models")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    models,
		"count":   len(models),
	})
}

// GetDrift checks recent observations against the training reference
func (h *Handler) GetDrift(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data":    h.svc.CheckDrift(c.Context()),
	})
}

// RunPipeline runs drift check, retrain and forecast in one pass
func (h *Handler) RunPipeline(c *fiber.Ctx) error {
	req := PipelineRequest{Weeks: h.defaultWeeks, Method: domain.MethodDeterministic}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
	}
	if req.Weeks == 0 {
		req.Weeks = h.defaultWeeks
	}
	if req.Method == "" {
		req.Method = domain.MethodDeterministic
	}
	if !validMethod(req.Method) {
		return fiber.NewError(fiber.StatusBadRequest, "method must be deterministic or monte_carlo")
	}
	// reject a bad horizon before spending a training run on it
	if err := forecast.ValidateSteps(req.Weeks); err != nil {
		return toHTTPError(err, "")
	}

	var (
		result *domain.PipelineResult
		err    error
	)
	if req.RetrainOnly {
		result, err = h.svc.RetrainOnly(c.Context(), req.Weeks, req.Method)
	} else {
		result, err = h.svc.RunPipeline(c.Context(), req.Weeks, req.Method)
	}
	if err != nil {
		return toHTTPError(err, "Pipeline failed")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    result,
	})
}

func validMethod(method string) bool {
	return method == domain.MethodDeterministic || method == domain.MethodMonteCarlo
}

// toHTTPError maps service errors to HTTP status codes. Client errors
// carry the error text; anything else is logged and reported with fallback.
func toHTTPError(err error, fallback string) error {
	switch {
	case errors.Is(err, forecast.ErrHorizon), errors.Is(err, service.ErrUnknownModel):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNoHistoricalData), errors.Is(err, service.ErrNoTrainedModel):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, validator.ErrInsufficientData), errors.Is(err, trainer.ErrNoModelsTrained),
		errors.Is(err, alerts.ErrTooFewObservations):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	}
	logger.Error().Err(err).Msg(fallback)
	return fiber.NewError(fiber.StatusInternalServerError, fallback)
}

// ErrorHandler renders every error as {"error": true, "message": ...}
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": message,
	})
}
