// Package manager owns the model lifecycle across training runs: artifact
// persistence, bounded performance history, best-model selection, run
// comparison and drift checks.
package manager

import (
	"context"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/iphwatch/backend/internal/domain"
	"github.com/iphwatch/backend/internal/drift"
	"github.com/iphwatch/backend/internal/ensemble"
	"github.com/iphwatch/backend/internal/features"
	"github.com/iphwatch/backend/internal/history"
	"github.com/iphwatch/backend/internal/regressor"
	"github.com/iphwatch/backend/internal/trainer"
	"github.com/iphwatch/backend/pkg/logger"
	"github.com/iphwatch/backend/pkg/metrics"
	"github.com/iphwatch/backend/pkg/utils"
)

const (
	// MAECeiling excludes implausible entries from best-model selection
	MAECeiling = 100.0

	// ChangeLimit clamps percentage changes in comparisons
	ChangeLimit = 1000.0

	trendWindow = 5
)

// Trend directions
const (
	TrendImproving = "improving"
	TrendDeclining = "declining"
	TrendStable    = "stable"
)

// Manager coordinates artifacts and history
type Manager struct {
	artifacts *ArtifactStore
	history   domain.HistoryStore
}

// New creates a manager
func New(artifacts *ArtifactStore, store domain.HistoryStore) *Manager {
	return &Manager{artifacts: artifacts, history: store}
}

// Artifacts exposes the artifact store
func (m *Manager) Artifacts() *ArtifactStore {
	return m.artifacts
}

// SaveRun persists a training run and compares its best model with the
// previous best. Persistence failures are logged per model and do not
// abort the save.
func (m *Manager) SaveRun(ctx context.Context, run *trainer.Run) domain.Comparison {
	previous, err := m.CurrentBest(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to read previous best model")
	}

	entries := make([]domain.HistoryEntry, 0, len(run.Results))
	for _, res := range run.Results {
		if err := m.artifacts.Save(res.ModelName, run.Models[res.ModelName], res); err != nil {
			metrics.PersistenceErrorsTotal.WithLabelValues("save_artifact").Inc()
			logger.Error().Err(err).Str("model", res.ModelName).Msg("Failed to save model artifact")
		}
		entries = append(entries, domain.HistoryEntry{TrainingResult: res, BatchID: run.BatchID})
	}

	if err := m.history.Append(ctx, entries); err != nil {
		metrics.PersistenceErrorsTotal.WithLabelValues("append_history").Inc()
		logger.Error().Err(err).Str("batch_id", run.BatchID).Msg("Failed to append performance history")
	}

	best := run.Best()
	if stats, err := drift.Summarize(run.Rows); err == nil {
		ref := drift.Reference{
			Stats:          stats,
			ModelName:      best.ModelName,
			MAE:            best.MAE,
			TrainedThrough: run.Rows[len(run.Rows)-1].Date,
			CreatedAt:      run.StartedAt,
		}
		if err := m.artifacts.SaveReference(ref); err != nil {
			metrics.PersistenceErrorsTotal.WithLabelValues("save_reference").Inc()
			logger.Error().Err(err).Msg("Failed to save drift reference")
		}
	}

	newBest := domain.HistoryEntry{TrainingResult: best, BatchID: run.BatchID}
	cmp := Compare(&newBest, previous)
	logger.Info().
		Str("batch_id", run.BatchID).
		Str("best_model", best.ModelName).
		Bool("is_improvement", cmp.IsImprovement).
		Float64("mae_change", cmp.MAEChange).
		Msg("Training run saved")
	return cmp
}

// CurrentBest returns the history entry with the lowest plausible MAE, or
// nil when history holds none.
func (m *Manager) CurrentBest(ctx context.Context) (*domain.HistoryEntry, error) {
	entries, err := m.history.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("manager: failed to load history: %w", err)
	}

	var best *domain.HistoryEntry
	for i := range entries {
		e := &entries[i]
		if !utils.IsFinite(e.MAE) || e.MAE >= MAECeiling {
			continue
		}
		if best == nil || e.MAE < best.MAE {
			best = e
		}
	}
	return best, nil
}

// Compare reports the change from previous to newBest. MAE and RMSE changes
// are positive when the error dropped; the R² change is positive when R² rose.
func Compare(newBest, previous *domain.HistoryEntry) domain.Comparison {
	cmp := domain.Comparison{NewBest: newBest, PreviousBest: previous}
	if newBest == nil {
		return cmp
	}
	if previous == nil {
		cmp.IsImprovement = true
		return cmp
	}

	cmp.MAEChange = utils.PercentChange(previous.MAE, newBest.MAE, ChangeLimit)
	cmp.RMSEChange = utils.PercentChange(previous.RMSE, newBest.RMSE, ChangeLimit)
	cmp.R2Change = -utils.PercentChange(previous.R2, newBest.R2, ChangeLimit)
	cmp.IsImprovement = newBest.MAE < previous.MAE
	return cmp
}

// PerformanceSummary aggregates history per model
func (m *Manager) PerformanceSummary(ctx context.Context) (map[string]domain.ModelSummary, error) {
	entries, err := m.history.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("manager: failed to load history: %w", err)
	}

	summary := make(map[string]domain.ModelSummary)
	for name, group := range history.GroupByModel(entries) {
		latest := group[len(group)-1]
		s := domain.ModelSummary{
			Name:          name,
			BestMAE:       math.Inf(1),
			LatestMAE:     latest.MAE,
			LatestR2:      latest.R2,
			TrainingCount: len(group),
		}

		times := make([]float64, 0, len(group))
		for _, e := range group {
			if utils.IsFinite(e.MAE) && e.MAE < s.BestMAE {
				s.BestMAE = e.MAE
			}
			times = append(times, e.TrainingTime)
		}
		if math.IsInf(s.BestMAE, 1) {
			s.BestMAE = 0
		}
		s.AvgTrainingTime = stat.Mean(times, nil)
		s.TrendDirection = trend(group)
		summary[name] = s
	}

	markSummaryBest(summary, entries)
	return summary, nil
}

// markSummaryBest flags the model that won the most recent run, falling
// back to the lowest latest MAE.
func markSummaryBest(summary map[string]domain.ModelSummary, entries []domain.HistoryEntry) {
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].IsBest {
			s := summary[entries[i].ModelName]
			s.IsBest = true
			summary[entries[i].ModelName] = s
			return
		}
	}

	best := ""
	for name, s := range summary {
		if !utils.IsFinite(s.LatestMAE) {
			continue
		}
		if best == "" || s.LatestMAE < summary[best].LatestMAE || (s.LatestMAE == summary[best].LatestMAE && name < best) {
			best = name
		}
	}
	if best != "" {
		s := summary[best]
		s.IsBest = true
		summary[best] = s
	}
}

// trend fits a line through the last few MAEs
func trend(group []domain.HistoryEntry) string {
	if len(group) > trendWindow {
		group = group[len(group)-trendWindow:]
	}
	var xs, ys []float64
	for i, e := range group {
		if utils.IsFinite(e.MAE) {
			xs = append(xs, float64(i))
			ys = append(ys, e.MAE)
		}
	}
	if len(ys) < 2 {
		return TrendStable
	}
	_, slope := stat.LinearRegression(xs, ys, nil, false)
	if slope < 0 {
		return TrendImproving
	}
	return TrendDeclining
}

// HistorySeries returns per-model MAE and R² over time
func (m *Manager) HistorySeries(ctx context.Context) (map[string]domain.HistorySeries, error) {
	entries, err := m.history.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("manager: failed to load history: %w", err)
	}
	out := make(map[string]domain.HistorySeries)
	for name, group := range history.GroupByModel(entries) {
		var s domain.HistorySeries
		for _, e := range group {
			s.Timestamps = append(s.Timestamps, e.TrainedAt)
			s.MAEValues = append(s.MAEValues, e.MAE)
			s.R2Values = append(s.R2Values, e.R2)
		}
		out[name] = s
	}
	return out, nil
}

// AvailableModels lists persisted artifacts
func (m *Manager) AvailableModels() ([]domain.AvailableModel, error) {
	return m.artifacts.List()
}

// LoadModel restores a persisted model with its recorded performance
func (m *Manager) LoadModel(name string) (regressor.Regressor, domain.TrainingResult, error) {
	a, err := m.artifacts.Load(name)
	if err != nil {
		return nil, domain.TrainingResult{}, err
	}
	model, err := a.Regressor()
	if err != nil {
		return nil, domain.TrainingResult{}, fmt.Errorf("manager: failed to restore %s: %w", name, err)
	}
	return model, a.Performance, nil
}

// LoadEnsemble combines the k persisted models with the lowest latest MAE
func (m *Manager) LoadEnsemble(ctx context.Context, k int) (*ensemble.Model, error) {
	summary, err := m.PerformanceSummary(ctx)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(summary))
	for name := range summary {
		names = append(names, name)
	}
	sort.Strings(names)

	cands := make([]ensemble.Candidate, 0, len(names))
	for _, name := range names {
		model, _, err := m.LoadModel(name)
		if err != nil {
			logger.Warn().Err(err).Str("model", name).Msg("Skipping model for ensemble")
			continue
		}
		cands = append(cands, ensemble.Candidate{Name: name, Model: model, MAE: summary[name].LatestMAE})
	}
	return ensemble.Build(cands, k)
}

// CheckHealth compares recent rows against the stored drift reference. The
// reference model is scored on the rows dated after its training data to
// detect error degradation. Every
// failure degrades to a no-drift verdict carrying the reason.
func (m *Manager) CheckHealth(ctx context.Context, rows []features.Row) domain.DriftAssessment {
	assessment, err := m.checkHealth(rows)
	if err != nil {
		logger.Warn().Err(err).Msg("Drift check failed")
		assessment = domain.DriftAssessment{
			DriftDetected:  false,
			Signals:        []string{},
			Recommendation: domain.RecommendMonitor,
			Reason:         fmt.Sprintf("Drift check error: %v", err),
		}
	}
	metrics.DriftChecksTotal.WithLabelValues(assessment.Recommendation).Inc()
	return assessment
}

func (m *Manager) checkHealth(rows []features.Row) (domain.DriftAssessment, error) {
	ref, err := m.artifacts.LoadReference()
	if err != nil {
		return domain.DriftAssessment{}, err
	}
	sample, err := drift.Summarize(rows)
	if err != nil {
		return domain.DriftAssessment{}, err
	}

	return drift.Detect(ref, sample, m.unseenMAE(ref, rows))
}

// unseenMAE scores the reference model on rows it was not fitted on. NaN
// means there is nothing to score and skips the performance check.
func (m *Manager) unseenMAE(ref drift.Reference, rows []features.Row) float64 {
	unseen := ref.Unseen(rows)
	if len(unseen) == 0 {
		return math.NaN()
	}
	model, _, err := m.LoadModel(ref.ModelName)
	if err != nil {
		logger.Warn().Err(err).Str("model", ref.ModelName).Msg("Reference model unavailable for drift scoring")
		return math.NaN()
	}
	X, y := features.Matrix(unseen)
	pred, err := model.Predict(X)
	if err != nil {
		logger.Warn().Err(err).Str("model", ref.ModelName).Msg("Reference model failed to score new rows")
		return math.NaN()
	}
	return trainer.Evaluate(y, pred).MAE
}
