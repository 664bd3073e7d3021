package service

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/iphwatch/backend/internal/domain"
	"github.com/iphwatch/backend/internal/forecast"
	"github.com/iphwatch/backend/internal/history"
	"github.com/iphwatch/backend/internal/manager"
	"github.com/iphwatch/backend/internal/regressor"
	"github.com/iphwatch/backend/internal/repository/postgres"
	"github.com/iphwatch/backend/internal/trainer"
)

func newService(t *testing.T) *ForecastService {
	t.Helper()
	store, err := manager.NewArtifactStore(filepath.Join(t.TempDir(), "models"))
	if err != nil {
		t.Fatal(err)
	}
	cfg := trainer.DefaultConfig()
	cfg.Variants = []regressor.Variant{regressor.KNN}
	return NewForecastService(
		postgres.NewMockRepository(),
		manager.New(store, history.NewMemoryStore(domain.HistoryLimit)),
		trainer.New(cfg),
		forecast.New(),
		0,
	)
}

func TestSummarize(t *testing.T) {
	res := &domain.ForecastResult{
		Predictions:     []float64{1, 2, 3, 2},
		ConfidenceWidth: 0.4,
	}
	s := Summarize(res)

	if s.AvgPrediction != 2 || s.MinPrediction != 1 || s.MaxPrediction != 3 {
		t.Errorf("Unexpected summary %+v", s)
	}
	if s.Trend != domain.TrendUp {
		t.Errorf("Expected %s, got %s", domain.TrendUp, s.Trend)
	}
	if math.Abs(s.Volatility-math.Sqrt(0.5)) > 1e-9 {
		t.Errorf("Expected population std %f, got %f", math.Sqrt(0.5), s.Volatility)
	}
	if s.ConfidenceAvg != 0.4 {
		t.Errorf("Expected confidence 0.4, got %f", s.ConfidenceAvg)
	}

	flat := Summarize(&domain.ForecastResult{Predictions: []float64{2, 2}})
	if flat.Trend != domain.TrendDown {
		t.Errorf("Expected a flat forecast to read %s, got %s", domain.TrendDown, flat.Trend)
	}
	if empty := Summarize(&domain.ForecastResult{}); empty != (domain.ForecastSummary{}) {
		t.Errorf("Expected zero summary, got %+v", empty)
	}
}

func TestGenerateForecastRowDates(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	table, _, _, err := svc.GenerateForecast(ctx, "KNN", 4, "")
	if err != nil {
		t.Fatal(err)
	}
	obs, _ := postgres.NewMockRepository().ListObservations(ctx)
	last := obs[len(obs)-1].Date
	for i, row := range table {
		if want := last.AddDate(0, 0, 7*(i+1)); !row.Date.Equal(want) {
			t.Errorf("row %d: expected %v, got %v", i, want, row.Date)
		}
		if row.LowerBound > row.Prediction || row.Prediction > row.UpperBound {
			t.Errorf("row %d: prediction outside bounds: %+v", i, row)
		}
	}

	if _, _, _, err := svc.GenerateForecast(ctx, "ARIMA", 4, ""); !errors.Is(err, ErrUnknownModel) {
		t.Errorf("Expected ErrUnknownModel, got %v", err)
	}
	if _, _, _, err := svc.GenerateForecast(ctx, "KNN", 13, ""); !errors.Is(err, forecast.ErrHorizon) {
		t.Errorf("Expected ErrHorizon, got %v", err)
	}
}

func TestCheckDriftAfterTraining(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	if _, err := svc.Train(ctx); err != nil {
		t.Fatal(err)
	}
	verdict := svc.CheckDrift(ctx)
	if verdict.Reason != "" {
		t.Errorf("Expected a completed drift check, got reason %q", verdict.Reason)
	}
	if verdict.Signals == nil {
		t.Error("Expected non-nil signals")
	}
	if verdict.DriftDetected != (verdict.Recommendation == domain.RecommendRetrain) {
		t.Errorf("Recommendation %s inconsistent with detection %v", verdict.Recommendation, verdict.DriftDetected)
	}
}
