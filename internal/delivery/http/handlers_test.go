package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/iphwatch/backend/internal/alerts"
	"github.com/iphwatch/backend/internal/domain"
	"github.com/iphwatch/backend/internal/forecast"
	"github.com/iphwatch/backend/internal/history"
	"github.com/iphwatch/backend/internal/manager"
	"github.com/iphwatch/backend/internal/regressor"
	"github.com/iphwatch/backend/internal/repository/postgres"
	"github.com/iphwatch/backend/internal/service"
	"github.com/iphwatch/backend/internal/trainer"
	"github.com/iphwatch/backend/internal/validator"
)

type emptyRepository struct{}

func (emptyRepository) ListObservations(ctx context.Context) ([]domain.Observation, error) {
	return nil, nil
}

func (emptyRepository) Health(ctx context.Context) error {
	return errors.New("connection refused")
}

func newTestApp(t *testing.T, repo service.ObservationRepository) *fiber.App {
	t.Helper()
	store, err := manager.NewArtifactStore(filepath.Join(t.TempDir(), "models"))
	if err != nil {
		t.Fatal(err)
	}
	mgr := manager.New(store, history.NewMemoryStore(domain.HistoryLimit))

	// the untuned variants keep the suite fast
	cfg := trainer.DefaultConfig()
	cfg.Variants = []regressor.Variant{regressor.KNN, regressor.XGBoost}

	svc := service.NewForecastService(repo, mgr, trainer.New(cfg), forecast.New(), 0)
	t.Cleanup(svc.WaitBackground)

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	SetupRoutes(app, svc, service.NewDashboardService(svc, 8), 8)
	return app
}

func do(t *testing.T, app *fiber.App, method, target, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, target, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	var payload map[string]any
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		if err := json.Unmarshal(raw, &payload); err != nil {
			t.Fatalf("%s %s: invalid JSON %q: %v", method, target, raw, err)
		}
	}
	return resp.StatusCode, payload
}

func TestHealthCheck(t *testing.T) {
	status, body := do(t, newTestApp(t, postgres.NewMockRepository()), fiber.MethodGet, "/health", "")
	if status != fiber.StatusOK || body["status"] != "ok" {
		t.Errorf("Expected healthy response, got %d %v", status, body)
	}

	status, body = do(t, newTestApp(t, emptyRepository{}), fiber.MethodGet, "/health", "")
	if status != fiber.StatusOK || body["status"] != "degraded" {
		t.Errorf("Expected degraded response, got %d %v", status, body)
	}
}

func TestForecastRejectsBadRequests(t *testing.T) {
	app := newTestApp(t, postgres.NewMockRepository())

	tests := []struct {
		name   string
		target string
		status int
	}{
		{"weeks below range", "/api/v1/forecast?model=KNN&weeks=3", fiber.StatusBadRequest},
		{"weeks above range", "/api/v1/forecast?model=KNN&weeks=13", fiber.StatusBadRequest},
		{"unknown method", "/api/v1/forecast?model=KNN&method=bootstrap", fiber.StatusBadRequest},
		{"unknown model", "/api/v1/forecast?model=Prophet", fiber.StatusBadRequest},
		{"no trained model", "/api/v1/forecast", fiber.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := do(t, app, fiber.MethodGet, tt.target, "")
			if status != tt.status {
				t.Errorf("Expected %d, got %d (%v)", tt.status, status, body)
			}
			if body["error"] != true {
				t.Errorf("Expected error body, got %v", body)
			}
		})
	}
}

func TestForecastWithoutHistoricalData(t *testing.T) {
	status, _ := do(t, newTestApp(t, emptyRepository{}), fiber.MethodGet, "/api/v1/forecast?model=KNN", "")
	if status != fiber.StatusNotFound {
		t.Errorf("Expected 404, got %d", status)
	}
}

func TestForecastFallsBackToFreshModel(t *testing.T) {
	app := newTestApp(t, postgres.NewMockRepository())

	status, body := do(t, app, fiber.MethodGet, "/api/v1/forecast?model=knn&weeks=6", "")
	if status != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d (%v)", status, body)
	}
	data := body["data"].(map[string]any)
	if data["model_name"] != "KNN" || data["method"] != domain.MethodDeterministic {
		t.Errorf("Unexpected forecast metadata %v", data)
	}
	if rows := data["data"].([]any); len(rows) != 6 {
		t.Errorf("Expected 6 forecast rows, got %d", len(rows))
	}
}

func TestModelEndpointsBeforeTraining(t *testing.T) {
	app := newTestApp(t, postgres.NewMockRepository())

	if status, _ := do(t, app, fiber.MethodGet, "/api/v1/models/best", ""); status != fiber.StatusNotFound {
		t.Errorf("Expected 404 for best model, got %d", status)
	}

	status, body := do(t, app, fiber.MethodGet, "/api/v1/models/available", "")
	if status != fiber.StatusOK || body["count"] != float64(0) {
		t.Errorf("Expected no available models, got %d %v", status, body)
	}

	status, body = do(t, app, fiber.MethodGet, "/api/v1/drift", "")
	if status != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	verdict := body["data"].(map[string]any)
	if verdict["drift_detected"] != false || verdict["reason"] == nil {
		t.Errorf("Expected degraded drift verdict without a reference, got %v", verdict)
	}
}

func TestTrainThenServe(t *testing.T) {
	app := newTestApp(t, postgres.NewMockRepository())

	status, body := do(t, app, fiber.MethodPost, "/api/v1/models/train", "")
	if status != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d (%v)", status, body)
	}
	report := body["data"].(map[string]any)
	if report["total_models_trained"] != float64(2) || report["policy"] != trainer.PolicyHoldout {
		t.Errorf("Unexpected training report %v", report)
	}

	status, body = do(t, app, fiber.MethodGet, "/api/v1/models/best", "")
	if status != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	best := body["data"].(map[string]any)["model_name"].(string)

	status, body = do(t, app, fiber.MethodGet, "/api/v1/forecast?weeks=4&method=monte_carlo", "")
	if status != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d (%v)", status, body)
	}
	fc := body["data"].(map[string]any)
	if fc["model_name"] != best || fc["weeks_forecasted"] != float64(4) {
		t.Errorf("Expected 4-week forecast from %s, got %v", best, fc)
	}

	status, body = do(t, app, fiber.MethodGet, "/api/v1/models/summary", "")
	if status != fiber.StatusOK || body["count"] != float64(2) {
		t.Errorf("Expected summaries for 2 models, got %d %v", status, body)
	}

	status, body = do(t, app, fiber.MethodGet, "/api/v1/models/available", "")
	if status != fiber.StatusOK || body["count"] != float64(2) {
		t.Errorf("Expected 2 artifacts, got %d %v", status, body)
	}

	status, body = do(t, app, fiber.MethodGet, "/api/v1/models/history", "")
	if status != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	if _, ok := body["data"].(map[string]any)["KNN"]; !ok {
		t.Errorf("Expected KNN history series, got %v", body["data"])
	}
}

func TestRunPipeline(t *testing.T) {
	app := newTestApp(t, postgres.NewMockRepository())

	status, body := do(t, app, fiber.MethodPost, "/api/v1/pipeline", `{"weeks": 5}`)
	if status != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d (%v)", status, body)
	}
	result := body["data"].(map[string]any)
	// nothing was trained yet, so the pipeline must retrain
	if result["retrained"] != true || result["model_training"] == nil {
		t.Errorf("Expected a retrain on first run, got %v", result)
	}
	fc := result["forecast"].(map[string]any)
	if fc["weeks_forecasted"] != float64(5) || fc["model_name"] != result["best_model"] {
		t.Errorf("Unexpected pipeline forecast %v", fc)
	}

	status, body = do(t, app, fiber.MethodPost, "/api/v1/pipeline", `{"weeks": 4, "retrain_only": true}`)
	if status != fiber.StatusOK || body["data"].(map[string]any)["retrained"] != true {
		t.Errorf("Expected retrain-only pass, got %d %v", status, body)
	}

	if status, _ := do(t, app, fiber.MethodPost, "/api/v1/pipeline", `{"weeks": 20}`); status != fiber.StatusBadRequest {
		t.Errorf("Expected 400 for horizon 20, got %d", status)
	}
	if status, _ := do(t, app, fiber.MethodPost, "/api/v1/pipeline", `{"weeks":`); status != fiber.StatusBadRequest {
		t.Errorf("Expected 400 for malformed body, got %d", status)
	}
}

func TestDashboard(t *testing.T) {
	app := newTestApp(t, postgres.NewMockRepository())

	status, body := do(t, app, fiber.MethodGet, "/api/v1/dashboard", "")
	if status != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d (%v)", status, body)
	}
	data := body["data"].(map[string]any)
	sys := data["system_status"].(map[string]any)
	if sys["has_data"] != true || sys["has_models"] != false || sys["status_level"] != domain.StatusWarning {
		t.Errorf("Expected data without models, got %v", sys)
	}
	if data["current_forecast"] != nil || data["best_model"] != nil {
		t.Errorf("Expected no forecast before training, got %v", data["current_forecast"])
	}
	if data["data_summary"].(map[string]any)["total_records"] != float64(104) {
		t.Errorf("Unexpected data summary %v", data["data_summary"])
	}

	if status, _ := do(t, app, fiber.MethodPost, "/api/v1/models/train", ""); status != fiber.StatusOK {
		t.Fatalf("Training failed with %d", status)
	}

	status, body = do(t, app, fiber.MethodGet, "/api/v1/dashboard", "")
	if status != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	data = body["data"].(map[string]any)
	sys = data["system_status"].(map[string]any)
	if sys["ready_for_use"] != true || sys["status_level"] != domain.StatusSuccess {
		t.Errorf("Expected a ready system, got %v", sys)
	}
	best := data["best_model"].(map[string]any)["model_name"]
	fc, ok := data["current_forecast"].(map[string]any)
	if !ok || fc["model_name"] != best || fc["weeks_forecasted"] != float64(8) {
		t.Errorf("Expected an 8-week forecast from %v, got %v", best, data["current_forecast"])
	}
	if _, ok := data["training_history"].(map[string]any)["XGBoost"]; !ok {
		t.Errorf("Expected training history, got %v", data["training_history"])
	}

	// the dashboard forecast is now held in memory
	status, body = do(t, app, fiber.MethodGet, "/api/v1/forecast/latest", "")
	info := body["data"].(map[string]any)
	if status != fiber.StatusOK || info["has_latest"] != true || info["data_points"] != float64(8) {
		t.Errorf("Expected latest forecast info, got %d %v", status, info)
	}

	if status, _ := do(t, app, fiber.MethodDelete, "/api/v1/forecast/latest", ""); status != fiber.StatusOK {
		t.Errorf("Expected 200 on clear, got %d", status)
	}
	_, body = do(t, app, fiber.MethodGet, "/api/v1/forecast/latest", "")
	if body["data"].(map[string]any)["has_latest"] != false {
		t.Errorf("Expected cleared latest forecast, got %v", body["data"])
	}
}

func TestDashboardWithoutData(t *testing.T) {
	app := newTestApp(t, emptyRepository{})

	status, body := do(t, app, fiber.MethodGet, "/api/v1/dashboard", "")
	if status != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	sys := body["data"].(map[string]any)["system_status"].(map[string]any)
	if sys["has_data"] != false || sys["status_level"] != domain.StatusDanger {
		t.Errorf("Expected an empty system, got %v", sys)
	}

	_, body = do(t, app, fiber.MethodGet, "/api/v1/status", "")
	if body["data"].(map[string]any)["ready_for_use"] != false {
		t.Errorf("Expected system not ready, got %v", body["data"])
	}
}

func TestAlerts(t *testing.T) {
	app := newTestApp(t, postgres.NewMockRepository())

	status, body := do(t, app, fiber.MethodGet, "/api/v1/alerts", "")
	if status != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d (%v)", status, body)
	}
	report := body["data"].(map[string]any)
	if _, ok := report["alerts"].([]any); !ok {
		t.Errorf("Expected an alert list, got %v", report["alerts"])
	}
	stats := report["statistics"].(map[string]any)
	if stats["upper_3sigma"].(float64) <= stats["upper_2sigma"].(float64) {
		t.Errorf("Expected ordered bounds, got %v", stats)
	}

	status, body = do(t, app, fiber.MethodGet, "/api/v1/alerts/history?days=14", "")
	if status != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	if _, ok := body["data"].(map[string]any)["total_alerts"]; !ok {
		t.Errorf("Expected alert history, got %v", body["data"])
	}

	if status, _ := do(t, newTestApp(t, emptyRepository{}), fiber.MethodGet, "/api/v1/alerts", ""); status != fiber.StatusNotFound {
		t.Errorf("Expected 404 without data, got %d", status)
	}
}

func TestAsyncTrain(t *testing.T) {
	app := newTestApp(t, postgres.NewMockRepository())

	status, body := do(t, app, fiber.MethodPost, "/api/v1/models/train?async=true", "")
	if status != fiber.StatusAccepted || body["success"] != true {
		t.Errorf("Expected 202, got %d %v", status, body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	app := newTestApp(t, postgres.NewMockRepository())

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/metrics", nil), -1)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
}

func TestToHTTPError(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("wrap: %w", forecast.ErrHorizon), fiber.StatusBadRequest},
		{fmt.Errorf("%w: Prophet", service.ErrUnknownModel), fiber.StatusBadRequest},
		{service.ErrNoHistoricalData, fiber.StatusNotFound},
		{service.ErrNoTrainedModel, fiber.StatusNotFound},
		{fmt.Errorf("trainer: %w", validator.ErrInsufficientData), fiber.StatusUnprocessableEntity},
		{trainer.ErrNoModelsTrained, fiber.StatusUnprocessableEntity},
		{fmt.Errorf("%w: need 10, got 3", alerts.ErrTooFewObservations), fiber.StatusUnprocessableEntity},
		{errors.New("disk full"), fiber.StatusInternalServerError},
	}

	for _, tt := range tests {
		var e *fiber.Error
		if !errors.As(toHTTPError(tt.err, "failed"), &e) {
			t.Fatalf("Expected *fiber.Error for %v", tt.err)
		}
		if e.Code != tt.code {
			t.Errorf("%v: expected %d, got %d", tt.err, tt.code, e.Code)
		}
	}
}
