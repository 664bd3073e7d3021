package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/iphwatch/backend/internal/delivery/http"
	"github.com/iphwatch/backend/internal/domain"
	"github.com/iphwatch/backend/internal/forecast"
	"github.com/iphwatch/backend/internal/manager"
	"github.com/iphwatch/backend/internal/repository/postgres"
	"github.com/iphwatch/backend/internal/repository/sqlite"
	"github.com/iphwatch/backend/internal/service"
	"github.com/iphwatch/backend/internal/trainer"
	"github.com/iphwatch/backend/pkg/logger"
)

func main() {
	// Load environment variables
	envErr := godotenv.Load()

	logger.InitLogger("iph-forecast")
	if envErr != nil {
		logger.Info().Msg("No .env file found, using system environment")
	}

	// Configuration
	cfg := loadConfig()

	// Database connection
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		p, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err == nil {
			err = p.Ping(ctx)
		}
		if err != nil {
			logger.Warn().Err(err).Msg("Could not connect to database, running with mock data only")
			if p != nil {
				p.Close()
			}
		} else {
			pool = p
			defer pool.Close()
			logger.Info().Msg("Connected to PostgreSQL")
		}
	}

	artifacts, err := manager.NewArtifactStore(cfg.ModelsPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.ModelsPath).Msg("Failed to open model directory")
	}

	// Dependency Injection: Repositories
	var (
		dataRepo     service.ObservationRepository
		historyStore domain.HistoryStore
	)
	if pool != nil {
		pgRepo := postgres.NewPostgresRepository(pool)
		if err := pgRepo.EnsureSchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("Failed to prepare database schema")
		}
		dataRepo = pgRepo
		historyStore = pgRepo
	} else {
		dataRepo = postgres.NewMockRepository()
		sqliteStore, err := sqlite.Open(cfg.HistoryDB)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.HistoryDB).Msg("Failed to open history database")
		}
		defer sqliteStore.Close()
		historyStore = sqliteStore
	}

	// Dependency Injection: Services
	forecastSvc := service.NewForecastService(
		dataRepo,
		manager.New(artifacts, historyStore),
		trainer.New(trainer.DefaultConfig()),
		forecast.New(),
		cfg.DriftWindow,
	)

	dashboardSvc := service.NewDashboardService(forecastSvc, cfg.ForecastWeeks)

	// Periodic retraining
	var scheduler *gocron.Scheduler
	if cfg.RetrainInterval > 0 {
		scheduler = gocron.NewScheduler(time.UTC)
		if _, err := scheduler.Every(cfg.RetrainInterval).Do(forecastSvc.TriggerRetrain); err != nil {
			logger.Fatal().Err(err).Msg("Failed to schedule retraining")
		}
		scheduler.StartAsync()
		logger.Info().Dur("interval", cfg.RetrainInterval).Msg("Scheduled periodic retraining")
	}

	// Fiber App
	app := fiber.New(fiber.Config{
		AppName:      "IPH Forecast API v1.0",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Minute, // synchronous training runs
		ErrorHandler: http.ErrorHandler,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${method} ${path} (${latency})\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Routes
	http.SetupRoutes(app, forecastSvc, dashboardSvc, cfg.ForecastWeeks)

	// Graceful shutdown
	go func() {
		logger.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("Server starting")
		if err := app.Listen(":" + cfg.Port); err != nil {
			logger.Fatal().Err(err).Msg("Server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")
	if scheduler != nil {
		scheduler.Stop()
	}
	if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	forecastSvc.WaitBackground()
	logger.Info().Msg("Server exited gracefully")
}

type Config struct {
	DatabaseURL     string
	Port            string
	Env             string
	ModelsPath      string
	HistoryDB       string
	RetrainInterval time.Duration
	DriftWindow     int
	ForecastWeeks   int
}

func loadConfig() *Config {
	modelsPath := getEnv("MODELS_PATH", "data/models")
	return &Config{
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		Port:            getEnv("PORT", "8080"),
		Env:             getEnv("GO_ENV", "development"),
		ModelsPath:      modelsPath,
		HistoryDB:       getEnv("HISTORY_DB", filepath.Join(modelsPath, "history.db")),
		RetrainInterval: getEnvDuration("RETRAIN_INTERVAL", 0),
		DriftWindow:     getEnvInt("DRIFT_WINDOW", service.DefaultDriftWindow),
		ForecastWeeks:   getEnvInt("FORECAST_WEEKS", 8),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		logIfSet(key, err)
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(getEnv(key, ""))
	if err != nil {
		logIfSet(key, err)
		return defaultValue
	}
	return d
}

func logIfSet(key string, err error) {
	if os.Getenv(key) != "" {
		logger.Warn().Err(err).Str("key", key).Msg("Ignoring invalid configuration value")
	}
}
