package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iphwatch/backend/internal/service"
)

// SetupRoutes configures all HTTP routes
func SetupRoutes(app *fiber.App, svc *service.ForecastService, dashboardSvc *service.DashboardService, defaultWeeks int) {
	handler := NewHandler(svc, dashboardSvc, defaultWeeks)

	// Health check and metrics
	app.Get("/health", handler.HealthCheck)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// API v1 routes
	api := app.Group("/api/v1")
	{
		api.Get("/dashboard", handler.GetDashboard)
		api.Get("/status", handler.GetSystemStatus)

		api.Get("/forecast", handler.GetForecast)
		api.Get("/forecast/latest", handler.GetLatestForecast)
		api.Delete("/forecast/latest", handler.ClearLatestForecast)

		api.Get("/drift", handler.GetDrift)
		api.Get("/alerts", handler.GetAlerts)
		api.Get("/alerts/history", handler.GetHistoricalAlerts)
		api.Post("/pipeline", handler.RunPipeline)

		models := api.Group("/models")
		models.Post("/train", handler.TrainModels)
		models.Get("/summary", handler.GetPerformanceSummary)
		models.Get("/best", handler.GetBestModel)
		models.Get("/history", handler.GetTrainingHistory)
		models.Get("/available", handler.GetAvailableModels)
	}
}
