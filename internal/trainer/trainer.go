// Package trainer fits and evaluates every model variant on the
// price-index series and picks the run's best model.
//
// Two policies are used depending on how many feature rows exist:
// walk-forward cross-validation for small samples, and a single
// chronological holdout (with hyperparameter tuning on larger training
// sets) otherwise. In both cases the persisted model is refit on every
// row, while the reported metrics stay out-of-sample.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/iphwatch/backend/internal/domain"
	"github.com/iphwatch/backend/internal/ensemble"
	"github.com/iphwatch/backend/internal/features"
	"github.com/iphwatch/backend/internal/regressor"
	"github.com/iphwatch/backend/internal/validator"
	"github.com/iphwatch/backend/pkg/logger"
	"github.com/iphwatch/backend/pkg/metrics"
)

const (
	// SmallSampleThreshold selects cross-validation below this many rows
	SmallSampleThreshold = 15

	// TuneThreshold enables tuning above this many training rows
	TuneThreshold = 30

	CVSplits       = 3
	CVTestFraction = 0.2

	minHoldout = 5
)

// Training policies
const (
	PolicyCrossValidation = "cross_validation"
	PolicyHoldout         = "holdout"
)

// ErrNoModelsTrained is returned when every variant failed
var ErrNoModelsTrained = errors.New("trainer: no models trained successfully")

// Config is the immutable per-run configuration
type Config struct {
	Variants []regressor.Variant
	Params   map[regressor.Variant]regressor.Params
}

// DefaultConfig trains the whole catalog with default hyperparameters
func DefaultConfig() Config {
	params := make(map[regressor.Variant]regressor.Params, len(regressor.Catalog))
	for _, v := range regressor.Catalog {
		params[v] = regressor.DefaultParams(v)
	}
	return Config{
		Variants: append([]regressor.Variant(nil), regressor.Catalog...),
		Params:   params,
	}
}

// ParamsFor returns the configured params for v, or its defaults
func (c Config) ParamsFor(v regressor.Variant) regressor.Params {
	if p, ok := c.Params[v]; ok {
		return p
	}
	return regressor.DefaultParams(v)
}

// With returns a copy of c with v's params replaced
func (c Config) With(v regressor.Variant, p regressor.Params) Config {
	params := make(map[regressor.Variant]regressor.Params, len(c.Params)+1)
	for k, val := range c.Params {
		params[k] = val
	}
	params[v] = p
	return Config{Variants: append([]regressor.Variant(nil), c.Variants...), Params: params}
}

// Run is the immutable outcome of one training run
type Run struct {
	BatchID   string
	Policy    string
	StartedAt time.Time
	Results   []domain.TrainingResult
	Models    map[string]regressor.Regressor
	Config    Config
	Rows      []features.Row
}

// Best returns the result flagged IsBest
func (r *Run) Best() domain.TrainingResult {
	for _, res := range r.Results {
		if res.IsBest {
			return res
		}
	}
	return domain.TrainingResult{}
}

// Ensemble combines the run's best models
func (r *Run) Ensemble(k int) (*ensemble.Model, error) {
	cands := make([]ensemble.Candidate, 0, len(r.Results))
	for _, res := range r.Results {
		cands = append(cands, ensemble.Candidate{Name: res.ModelName, Model: r.Models[res.ModelName], MAE: res.MAE})
	}
	return ensemble.Build(cands, k)
}

// ModelFactory creates an unfitted model
type ModelFactory func(v regressor.Variant, p regressor.Params) (regressor.Regressor, error)

// Trainer runs training over the configured variants
type Trainer struct {
	config   Config
	newModel ModelFactory
	now      func() time.Time
}

// New creates a trainer
func New(cfg Config) *Trainer {
	if len(cfg.Variants) == 0 {
		cfg = DefaultConfig()
	}
	return &Trainer{config: cfg, newModel: regressor.New, now: time.Now}
}

// Run trains every variant on the observation series
func (t *Trainer) Run(ctx context.Context, obs []domain.Observation) (*Run, error) {
	rows := features.Build(obs)
	if len(rows) == 0 {
		return nil, fmt.Errorf("trainer: %w: %d observations", validator.ErrInsufficientData, len(obs))
	}

	run := &Run{
		BatchID:   uuid.NewString(),
		StartedAt: t.now(),
		Models:    make(map[string]regressor.Regressor),
		Config:    t.config,
		Rows:      rows,
	}

	var err error
	if len(rows) < SmallSampleThreshold {
		run.Policy = PolicyCrossValidation
		err = t.crossValidate(ctx, run)
	} else {
		run.Policy = PolicyHoldout
		err = t.holdout(ctx, obs, run)
	}
	if err == nil && len(run.Results) == 0 {
		err = ErrNoModelsTrained
	}
	if err != nil {
		metrics.TrainingRunsTotal.WithLabelValues(run.Policy, "failed").Inc()
		return nil, err
	}

	markBest(run.Results)
	metrics.TrainingRunsTotal.WithLabelValues(run.Policy, "success").Inc()

	best := run.Best()
	logger.Info().
		Str("batch_id", run.BatchID).
		Str("policy", run.Policy).
		Int("rows", len(rows)).
		Int("models", len(run.Results)).
		Str("best_model", best.ModelName).
		Float64("best_mae", best.MAE).
		Msg("Training run completed")
	return run, nil
}

// crossValidate scores each variant over walk-forward folds
func (t *Trainer) crossValidate(ctx context.Context, run *Run) error {
	splits, err := validator.MustWalkForward(len(run.Rows), CVSplits, CVTestFraction)
	if err != nil {
		return fmt.Errorf("trainer: %w", err)
	}
	X, y := features.Matrix(run.Rows)

	for _, v := range t.config.Variants {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()
		params := t.config.ParamsFor(v)

		var foldMAE, foldRMSE, pooledTruth, pooledPred []float64
		failed := false
		for _, s := range splits {
			model, err := t.newModel(v, params)
			if err == nil {
				err = model.Fit(X[:s.TrainEnd], y[:s.TrainEnd])
			}
			var pred []float64
			if err == nil {
				pred, err = model.Predict(X[s.TestStart:s.TestEnd])
			}
			if err != nil {
				logger.Warn().Err(err).Str("model", v.String()).Msg("Fold training failed, skipping model")
				failed = true
				break
			}
			truth := y[s.TestStart:s.TestEnd]
			m := Evaluate(truth, pred)
			foldMAE = append(foldMAE, m.MAE)
			foldRMSE = append(foldRMSE, m.RMSE)
			pooledTruth = append(pooledTruth, truth...)
			pooledPred = append(pooledPred, pred...)
		}
		if failed || len(foldMAE) == 0 {
			continue
		}

		final, err := t.fitAll(v, params, X, y)
		if err != nil {
			logger.Warn().Err(err).Str("model", v.String()).Msg("Final refit failed, skipping model")
			continue
		}

		pooled := Evaluate(pooledTruth, pooledPred)
		mae := stat.Mean(foldMAE, nil)
		res := domain.TrainingResult{
			ModelName:         v.String(),
			MAE:               mae,
			RMSE:              stat.Mean(foldRMSE, nil),
			R2:                pooled.R2,
			MAPE:              pooled.MAPE,
			CVScore:           -mae,
			DataSize:          len(run.Rows),
			TestSize:          len(pooledTruth),
			FeatureImportance: importanceOf(final),
		}
		t.record(run, v, final, res, start)
	}
	return nil
}

// holdout scores each variant on the most recent block of rows
func (t *Trainer) holdout(ctx context.Context, obs []domain.Observation, run *Run) error {
	n := len(run.Rows)
	testSize := holdoutSize(n)
	trainRows, testRows := features.BuildSplit(obs, len(obs)-testSize)
	if len(trainRows) == 0 || len(testRows) == 0 {
		return fmt.Errorf("trainer: %w: holdout of %d rows leaves no training data", validator.ErrInsufficientData, testSize)
	}

	Xtr, ytr := features.Matrix(trainRows)
	Xte, yte := features.Matrix(testRows)
	Xall, yall := features.Matrix(run.Rows)

	cfg := t.config
	if len(trainRows) > TuneThreshold {
		for _, v := range cfg.Variants {
			if !v.Tunable() {
				continue
			}
			tuned, score := Optimize(v, cfg.ParamsFor(v), Xtr, ytr)
			logger.Debug().Str("model", v.String()).Float64("holdout_mae", score).Msg("Hyperparameters tuned")
			cfg = cfg.With(v, tuned)
		}
		run.Config = cfg
	}

	for _, v := range cfg.Variants {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()
		params := cfg.ParamsFor(v)

		model, err := t.newModel(v, params)
		if err == nil {
			err = model.Fit(Xtr, ytr)
		}
		var pred []float64
		if err == nil {
			pred, err = model.Predict(Xte)
		}
		if err != nil {
			logger.Warn().Err(err).Str("model", v.String()).Msg("Model training failed, skipping")
			continue
		}

		final, err := t.fitAll(v, params, Xall, yall)
		if err != nil {
			logger.Warn().Err(err).Str("model", v.String()).Msg("Final refit failed, skipping model")
			continue
		}

		m := Evaluate(yte, pred)
		res := domain.TrainingResult{
			ModelName:         v.String(),
			MAE:               m.MAE,
			RMSE:              m.RMSE,
			R2:                m.R2,
			MAPE:              m.MAPE,
			CVScore:           -m.MAE,
			DataSize:          n,
			TestSize:          len(testRows),
			FeatureImportance: importanceOf(final),
		}
		t.record(run, v, final, res, start)
	}
	return nil
}

func (t *Trainer) fitAll(v regressor.Variant, p regressor.Params, X [][]float64, y []float64) (regressor.Regressor, error) {
	model, err := t.newModel(v, p)
	if err != nil {
		return nil, err
	}
	if err := model.Fit(X, y); err != nil {
		return nil, err
	}
	return model, nil
}

func (t *Trainer) record(run *Run, v regressor.Variant, model regressor.Regressor, res domain.TrainingResult, start time.Time) {
	elapsed := time.Since(start)
	res.TrainingTime = elapsed.Seconds()
	res.TrainedAt = run.StartedAt
	run.Results = append(run.Results, res)
	run.Models[res.ModelName] = model
	metrics.ModelFitDuration.WithLabelValues(res.ModelName).Observe(elapsed.Seconds())

	logger.Debug().
		Str("model", res.ModelName).
		Float64("mae", res.MAE).
		Float64("rmse", res.RMSE).
		Float64("r2", res.R2).
		Dur("elapsed", elapsed).
		Msg("Model evaluated")
}

// holdoutSize is max(5, min(0.2n, n/4))
func holdoutSize(n int) int {
	size := int(math.Min(0.2*float64(n), float64(n)/4))
	if size < minHoldout {
		size = minHoldout
	}
	return size
}

// markBest flags the single result with the lowest MAE
func markBest(results []domain.TrainingResult) {
	best := -1
	for i := range results {
		results[i].IsBest = false
		mae := results[i].MAE
		if math.IsNaN(mae) {
			continue
		}
		if best < 0 || mae < results[best].MAE {
			best = i
		}
	}
	if best < 0 && len(results) > 0 {
		best = 0
	}
	if best >= 0 {
		results[best].IsBest = true
	}
}

func importanceOf(model regressor.Regressor) []float64 {
	if imp, ok := model.(regressor.Importancer); ok {
		return imp.FeatureImportance()
	}
	return nil
}
