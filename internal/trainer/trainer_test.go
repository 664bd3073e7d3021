package trainer

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/iphwatch/backend/internal/domain"
	"github.com/iphwatch/backend/internal/regressor"
	"github.com/iphwatch/backend/internal/validator"
)

func series(n int, f func(i int) float64) []domain.Observation {
	base := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	obs := make([]domain.Observation, n)
	for i := range obs {
		obs[i] = domain.Observation{Date: base.AddDate(0, 0, 7*i), Value: f(i)}
	}
	return obs
}

func linear(i int) float64 { return 100 + float64(i) }

type failingModel struct{}

func (failingModel) Fit(X [][]float64, y []float64) error { return errors.New("boom") }

func (failingModel) Predict(X [][]float64) ([]float64, error) { return nil, regressor.ErrNotFitted }

func failing(names ...regressor.Variant) ModelFactory {
	return func(v regressor.Variant, p regressor.Params) (regressor.Regressor, error) {
		for _, n := range names {
			if n == v {
				return failingModel{}, nil
			}
		}
		return regressor.New(v, p)
	}
}

func countBest(results []domain.TrainingResult) int {
	count := 0
	for _, r := range results {
		if r.IsBest {
			count++
		}
	}
	return count
}

func TestRunLinearSeries(t *testing.T) {
	run, err := New(DefaultConfig()).Run(context.Background(), series(20, linear))
	if err != nil {
		t.Fatal(err)
	}

	if run.Policy != PolicyHoldout {
		t.Errorf("Expected holdout policy, got %s", run.Policy)
	}
	if run.BatchID == "" {
		t.Error("Expected a batch id")
	}
	if len(run.Results) != len(regressor.Catalog) || len(run.Models) != len(regressor.Catalog) {
		t.Fatalf("Expected %d models, got %d results / %d models", len(regressor.Catalog), len(run.Results), len(run.Models))
	}
	if countBest(run.Results) != 1 {
		t.Fatalf("Expected exactly one best model, got %d", countBest(run.Results))
	}

	best := run.Best()
	for _, r := range run.Results {
		if r.DataSize != 16 || r.TestSize != 5 {
			t.Errorf("%s: expected 16 rows with 5 held out, got %d/%d", r.ModelName, r.DataSize, r.TestSize)
		}
		if r.MAE < best.MAE {
			t.Errorf("%s has MAE %f below best %f", r.ModelName, r.MAE, best.MAE)
		}
		if r.CVScore != -r.MAE {
			t.Errorf("%s: expected cv score %f, got %f", r.ModelName, -r.MAE, r.CVScore)
		}
		if !r.TrainedAt.Equal(run.StartedAt) {
			t.Errorf("%s: trained at %v, run started %v", r.ModelName, r.TrainedAt, run.StartedAt)
		}
	}
	if math.IsNaN(best.MAE) || best.MAE <= 0 {
		t.Errorf("Expected a positive finite best MAE, got %f", best.MAE)
	}

	// the persisted model is fitted on every row
	if _, err := regressor.PredictOne(run.Models[best.ModelName], run.Rows[0].Vector().Slice()); err != nil {
		t.Errorf("Best model cannot predict: %v", err)
	}
}

func TestRunSmallSample(t *testing.T) {
	// 18 observations give 14 rows; walk-forward keeps the two folds with 10+ training rows
	run, err := New(DefaultConfig()).Run(context.Background(), series(18, linear))
	if err != nil {
		t.Fatal(err)
	}
	if run.Policy != PolicyCrossValidation {
		t.Fatalf("Expected cross-validation policy, got %s", run.Policy)
	}
	for _, r := range run.Results {
		if r.TestSize != 4 {
			t.Errorf("%s: expected 4 pooled test rows, got %d", r.ModelName, r.TestSize)
		}
		if r.CVScore != -r.MAE {
			t.Errorf("%s: cv score %f does not mirror MAE %f", r.ModelName, r.CVScore, r.MAE)
		}
	}
	if countBest(run.Results) != 1 {
		t.Errorf("Expected exactly one best model")
	}
}

func TestRunTunesLargeTrainingSets(t *testing.T) {
	obs := series(45, func(i int) float64 { return 100 + float64(i) + 2*math.Sin(float64(i)) })
	run, err := New(DefaultConfig()).Run(context.Background(), obs)
	if err != nil {
		t.Fatal(err)
	}

	lgbm := run.Config.ParamsFor(regressor.LightGBM)
	if lgbm.MaxDepth != 4 && lgbm.MaxDepth != 6 {
		t.Errorf("Expected tuned LightGBM depth, got %+v", lgbm)
	}
	rf := run.Config.ParamsFor(regressor.RandomForest)
	if rf.NEstimators != 50 && rf.NEstimators != 100 {
		t.Errorf("Expected tuned forest size, got %+v", rf)
	}
	if knn := run.Config.ParamsFor(regressor.KNN); knn != regressor.DefaultParams(regressor.KNN) {
		t.Errorf("KNN params should stay default, got %+v", knn)
	}
}

func TestRunSkipsFailingVariant(t *testing.T) {
	tr := New(DefaultConfig())
	tr.newModel = failing(regressor.XGBoost)

	run, err := tr.Run(context.Background(), series(20, linear))
	if err != nil {
		t.Fatal(err)
	}
	if len(run.Results) != len(regressor.Catalog)-1 {
		t.Fatalf("Expected %d results, got %d", len(regressor.Catalog)-1, len(run.Results))
	}
	if _, ok := run.Models[regressor.XGBoost.String()]; ok {
		t.Error("Failing variant should not be kept")
	}
}

func TestRunNoModelsTrained(t *testing.T) {
	tr := New(DefaultConfig())
	tr.newModel = failing(regressor.Catalog...)

	for _, n := range []int{18, 20} {
		if _, err := tr.Run(context.Background(), series(n, linear)); !errors.Is(err, ErrNoModelsTrained) {
			t.Errorf("n=%d: expected ErrNoModelsTrained, got %v", n, err)
		}
	}
}

func TestRunInsufficientData(t *testing.T) {
	for _, n := range []int{0, 3, 10} {
		_, err := New(DefaultConfig()).Run(context.Background(), series(n, linear))
		if !errors.Is(err, validator.ErrInsufficientData) {
			t.Errorf("n=%d: expected ErrInsufficientData, got %v", n, err)
		}
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(DefaultConfig()).Run(ctx, series(20, linear)); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestRunEnsemble(t *testing.T) {
	run, err := New(DefaultConfig()).Run(context.Background(), series(20, linear))
	if err != nil {
		t.Fatal(err)
	}
	ens, err := run.Ensemble(3)
	if err != nil {
		t.Fatal(err)
	}
	if len(ens.Members()) != 3 {
		t.Errorf("Expected 3 members, got %d", len(ens.Members()))
	}
	if ens.Members()[0].Name != run.Best().ModelName {
		t.Errorf("Expected %s to lead the ensemble, got %s", run.Best().ModelName, ens.Members()[0].Name)
	}
}

func TestMarkBest(t *testing.T) {
	results := []domain.TrainingResult{
		{ModelName: "a", MAE: math.NaN()},
		{ModelName: "b", MAE: 0.4},
		{ModelName: "c", MAE: 0.2, IsBest: true},
		{ModelName: "d", MAE: 0.2},
	}
	markBest(results)
	if countBest(results) != 1 || !results[2].IsBest {
		t.Errorf("Expected only c to be best, got %+v", results)
	}

	allNaN := []domain.TrainingResult{{MAE: math.NaN()}, {MAE: math.NaN()}}
	markBest(allNaN)
	if countBest(allNaN) != 1 {
		t.Error("Expected one best even when every MAE is NaN")
	}
}

func TestHoldoutSize(t *testing.T) {
	tests := []struct {
		rows     int
		expected int
	}{
		{15, 5},
		{16, 5},
		{30, 6},
		{100, 20},
	}
	for _, tt := range tests {
		if got := holdoutSize(tt.rows); got != tt.expected {
			t.Errorf("holdoutSize(%d) = %d, expected %d", tt.rows, got, tt.expected)
		}
	}
}

func TestConfigWithCopies(t *testing.T) {
	base := DefaultConfig()
	tuned := base.With(regressor.KNN, regressor.Params{K: 3})
	if base.ParamsFor(regressor.KNN).K != 5 {
		t.Error("With mutated the original config")
	}
	if tuned.ParamsFor(regressor.KNN).K != 3 {
		t.Error("With did not apply the new params")
	}
}
