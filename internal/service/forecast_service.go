package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/iphwatch/backend/internal/alerts"
	"github.com/iphwatch/backend/internal/domain"
	"github.com/iphwatch/backend/internal/ensemble"
	"github.com/iphwatch/backend/internal/features"
	"github.com/iphwatch/backend/internal/forecast"
	"github.com/iphwatch/backend/internal/manager"
	"github.com/iphwatch/backend/internal/regressor"
	"github.com/iphwatch/backend/internal/trainer"
	"github.com/iphwatch/backend/internal/validator"
	"github.com/iphwatch/backend/pkg/logger"
	"github.com/iphwatch/backend/pkg/metrics"
)

// DefaultDriftWindow is the number of recent feature rows checked for drift
const DefaultDriftWindow = 8

// ForecastService runs training, forecasting and drift checks against the
// observation repository
type ForecastService struct {
	repo        ObservationRepository
	manager     *manager.Manager
	trainer     *trainer.Trainer
	forecaster  *forecast.Forecaster
	driftWindow int
	now         func() time.Time

	trainMu sync.Mutex     // one training/save operation at a time
	wgBg    sync.WaitGroup // tracks background retraining for graceful shutdown

	latestMu sync.RWMutex
	latest   *domain.Forecast // most recent successful forecast
}

// NewForecastService creates a new forecast service
func NewForecastService(
	repo ObservationRepository,
	mgr *manager.Manager,
	tr *trainer.Trainer,
	fc *forecast.Forecaster,
	driftWindow int,
) *ForecastService {
	if driftWindow <= 0 {
		driftWindow = DefaultDriftWindow
	}
	return &ForecastService{
		repo:        repo,
		manager:     mgr,
		trainer:     tr,
		forecaster:  fc,
		driftWindow: driftWindow,
		now:         time.Now,
	}
}

// observations loads the series, failing when it is empty
func (s *ForecastService) observations(ctx context.Context) ([]domain.Observation, error) {
	obs, err := s.repo.ListObservations(ctx)
	if err != nil {
		return nil, fmt.Errorf("forecast_service: failed to load observations: %w", err)
	}
	if len(obs) == 0 {
		return nil, ErrNoHistoricalData
	}
	return obs, nil
}

// GenerateForecast forecasts weeks ahead with the named model. An empty
// name selects the current best model.
func (s *ForecastService) GenerateForecast(ctx context.Context, modelName string, weeks int, method string) ([]domain.ForecastRow, domain.ModelPerformance, domain.ForecastSummary, error) {
	var (
		perf    domain.ModelPerformance
		summary domain.ForecastSummary
	)
	if err := forecast.ValidateSteps(weeks); err != nil {
		return nil, perf, summary, err
	}
	if method == "" {
		method = domain.MethodDeterministic
	}

	obs, err := s.observations(ctx)
	if err != nil {
		return nil, perf, summary, err
	}
	seed, err := features.NextVector(obs)
	if err != nil {
		return nil, perf, summary, fmt.Errorf("forecast_service: %w: %v", validator.ErrInsufficientData, err)
	}

	if modelName == "" {
		best, err := s.manager.CurrentBest(ctx)
		if err != nil {
			return nil, perf, summary, err
		}
		if best == nil {
			return nil, perf, summary, ErrNoTrainedModel
		}
		modelName = best.ModelName
	}

	model, perf, name, err := s.resolveModel(ctx, modelName, obs, seed)
	if err != nil {
		return nil, perf, summary, err
	}

	result, err := s.forecaster.Forecast(model, seed, weeks, method)
	if err != nil {
		return nil, perf, summary, err
	}
	metrics.ForecastsTotal.WithLabelValues(name, method).Inc()

	generatedAt := s.now()
	last := obs[len(obs)-1].Date
	table := make([]domain.ForecastRow, weeks)
	for i := range table {
		table[i] = domain.ForecastRow{
			Date:            last.AddDate(0, 0, 7*(i+1)),
			Prediction:      result.Predictions[i],
			LowerBound:      result.LowerBound[i],
			UpperBound:      result.UpperBound[i],
			ModelName:       name,
			ConfidenceWidth: result.ConfidenceWidth,
			GeneratedAt:     generatedAt,
		}
	}

	logger.Info().
		Str("model", name).
		Str("method", method).
		Int("weeks", weeks).
		Msg("Forecast generated")
	return table, perf, Summarize(result), nil
}

// Forecast returns a forecast in response form
func (s *ForecastService) Forecast(ctx context.Context, modelName string, weeks int, method string) (domain.Forecast, error) {
	table, perf, summary, err := s.GenerateForecast(ctx, modelName, weeks, method)
	if err != nil {
		return domain.Forecast{}, err
	}
	if method == "" {
		method = domain.MethodDeterministic
	}
	fc := domain.Forecast{
		Data:             table,
		ModelName:        table[0].ModelName,
		ModelPerformance: perf,
		Summary:          summary,
		WeeksForecasted:  weeks,
		Method:           method,
	}

	s.latestMu.Lock()
	s.latest = &fc
	s.latestMu.Unlock()
	return fc, nil
}

// LatestForecast returns the most recent forecast, or nil when none was
// made since start or the last clear
func (s *ForecastService) LatestForecast() *domain.Forecast {
	s.latestMu.RLock()
	defer s.latestMu.RUnlock()
	if s.latest == nil {
		return nil
	}
	fc := *s.latest
	fc.Data = append([]domain.ForecastRow(nil), s.latest.Data...)
	return &fc
}

// ClearLatestForecast drops the forecast held in memory
func (s *ForecastService) ClearLatestForecast() {
	s.latestMu.Lock()
	s.latest = nil
	s.latestMu.Unlock()
	logger.Info().Msg("Latest forecast cleared")
}

// LatestForecastInfo describes the forecast held in memory
func (s *ForecastService) LatestForecastInfo() domain.LatestForecastInfo {
	fc := s.LatestForecast()
	if fc == nil {
		return domain.LatestForecastInfo{Message: "No latest forecast in memory"}
	}
	return domain.LatestForecastInfo{
		HasLatest:       true,
		ModelName:       fc.ModelName,
		WeeksForecasted: fc.WeeksForecasted,
		DataPoints:      len(fc.Data),
		GeneratedAt:     fc.Data[0].GeneratedAt,
	}
}

// resolveModel finds a predictor for name. A missing artifact falls back to
// a fresh catalog model, fitted on the full series when a trial prediction on
// sample reports it untrained.
func (s *ForecastService) resolveModel(ctx context.Context, name string, obs []domain.Observation, sample features.Vector) (forecast.Predictor, domain.ModelPerformance, string, error) {
	if name == ensemble.Name {
		ens, err := s.manager.LoadEnsemble(ctx, ensemble.DefaultSize)
		if err != nil {
			return nil, domain.ModelPerformance{}, name, fmt.Errorf("forecast_service: failed to build ensemble: %w", err)
		}
		return ens, ensemblePerformance(ens), name, nil
	}

	v, err := regressor.ParseVariant(name)
	if err != nil {
		return nil, domain.ModelPerformance{}, name, fmt.Errorf("%w: %s", ErrUnknownModel, name)
	}
	name = v.String()

	model, perf, err := s.manager.LoadModel(name)
	if err == nil {
		return model, perf.Performance(), name, nil
	}
	if !errors.Is(err, manager.ErrArtifactNotFound) {
		metrics.PersistenceErrorsTotal.WithLabelValues("load_artifact").Inc()
	}
	logger.Warn().Err(err).Str("model", name).Msg("Model artifact unavailable, using a fresh model")

	model, err = regressor.New(v, regressor.DefaultParams(v))
	if err != nil {
		return nil, domain.ModelPerformance{}, name, err
	}
	if _, err := regressor.PredictOne(model, sample.Slice()); errors.Is(err, regressor.ErrNotFitted) {
		X, y := features.Matrix(features.Build(obs))
		if len(X) == 0 {
			return nil, domain.ModelPerformance{}, name, fmt.Errorf("forecast_service: %w: cannot fit %s", validator.ErrInsufficientData, name)
		}
		start := time.Now()
		if err := model.Fit(X, y); err != nil {
			return nil, domain.ModelPerformance{}, name, fmt.Errorf("forecast_service: failed to fit %s: %w", name, err)
		}
		logger.Info().Str("model", name).Int("rows", len(X)).Dur("elapsed", time.Since(start)).Msg("Fallback model trained on demand")
	}
	return model, domain.ModelPerformance{}, name, nil
}

func ensemblePerformance(ens *ensemble.Model) domain.ModelPerformance {
	var perf domain.ModelPerformance
	for _, m := range ens.Members() {
		perf.MAE += m.Weight * m.MAE
	}
	return perf
}

// Summarize condenses a forecast result
func Summarize(res *domain.ForecastResult) domain.ForecastSummary {
	p := res.Predictions
	if len(p) == 0 {
		return domain.ForecastSummary{}
	}
	mean, variance := stat.PopMeanVariance(p, nil)
	trend := domain.TrendDown
	if p[len(p)-1] > p[0] {
		trend = domain.TrendUp
	}
	return domain.ForecastSummary{
		AvgPrediction: mean,
		Trend:         trend,
		Volatility:    math.Sqrt(variance),
		ConfidenceAvg: res.ConfidenceWidth,
		MinPrediction: floats.Min(p),
		MaxPrediction: floats.Max(p),
	}
}

// CheckDrift compares the most recent feature rows with the stored
// reference. Failures degrade to a no-drift verdict.
func (s *ForecastService) CheckDrift(ctx context.Context) domain.DriftAssessment {
	obs, err := s.observations(ctx)
	if err != nil {
		return domain.DriftAssessment{
			Signals:        []string{},
			Recommendation: domain.RecommendMonitor,
			Reason:         fmt.Sprintf("Drift check error: %v", err),
		}
	}
	rows := features.Build(obs)
	if len(rows) > s.driftWindow {
		rows = rows[len(rows)-s.driftWindow:]
	}
	return s.manager.CheckHealth(ctx, rows)
}

// DataSummary describes the observation series. An empty series is a zero
// summary, not an error.
func (s *ForecastService) DataSummary(ctx context.Context) (domain.DataSummary, error) {
	obs, err := s.repo.ListObservations(ctx)
	if err != nil {
		return domain.DataSummary{}, fmt.Errorf("forecast_service: failed to load observations: %w", err)
	}
	summary := domain.DataSummary{TotalRecords: len(obs)}
	if len(obs) == 0 {
		return summary, nil
	}

	values := domain.Values(obs)
	start, end := obs[0].Date, obs[len(obs)-1].Date
	latest := values[len(values)-1]
	summary.StartDate = &start
	summary.EndDate = &end
	summary.LatestValue = &latest
	summary.Mean = stat.Mean(values, nil)
	if len(values) > 1 {
		summary.Std = stat.StdDev(values, nil)
	}
	summary.Min = floats.Min(values)
	summary.Max = floats.Max(values)
	return summary, nil
}

// StatisticalAlerts checks the latest observation against recent bounds
func (s *ForecastService) StatisticalAlerts(ctx context.Context) (alerts.Report, error) {
	obs, err := s.observations(ctx)
	if err != nil {
		return alerts.Report{}, err
	}
	return alerts.Statistical(obs)
}

// HistoricalAlerts lists bound breaches dated within the last days
func (s *ForecastService) HistoricalAlerts(ctx context.Context, days int) (alerts.History, error) {
	obs, err := s.observations(ctx)
	if err != nil {
		return alerts.History{}, err
	}
	return alerts.Historical(obs, days, s.now())
}

// PerformanceSummary returns per-model history aggregates
func (s *ForecastService) PerformanceSummary(ctx context.Context) (map[string]domain.ModelSummary, error) {
	return s.manager.PerformanceSummary(ctx)
}

// BestModel returns the current best history entry, or nil
func (s *ForecastService) BestModel(ctx context.Context) (*domain.HistoryEntry, error) {
	return s.manager.CurrentBest(ctx)
}

// HistorySeries returns per-model chart data
func (s *ForecastService) HistorySeries(ctx context.Context) (map[string]domain.HistorySeries, error) {
	return s.manager.HistorySeries(ctx)
}

// AvailableModels lists persisted artifacts
func (s *ForecastService) AvailableModels() ([]domain.AvailableModel, error) {
	return s.manager.AvailableModels()
}

// Health checks the observation repository
func (s *ForecastService) Health(ctx context.Context) error {
	return s.repo.Health(ctx)
}
