package trainer

import (
	"math"

	"github.com/iphwatch/backend/internal/regressor"
	"github.com/iphwatch/backend/pkg/logger"
)

const (
	// minTuneRows is the smallest training set worth searching over
	minTuneRows = 10

	tuneHoldoutFraction = 0.2
)

// grid returns the candidate parameter sets for a tunable variant
func grid(v regressor.Variant, base regressor.Params) []regressor.Params {
	var out []regressor.Params
	switch v {
	case regressor.RandomForest:
		for _, depth := range []int{5, 10, 15} {
			for _, leaf := range []int{1, 2, 4} {
				for _, n := range []int{50, 100} {
					p := base
					p.MaxDepth, p.MinSamplesLeaf, p.NEstimators = depth, leaf, n
					out = append(out, p)
				}
			}
		}
	case regressor.LightGBM:
		for _, depth := range []int{4, 6} {
			for _, leaves := range []int{15, 31} {
				for _, n := range []int{50, 100} {
					for _, lr := range []float64{0.05, 0.1} {
						p := base
						p.MaxDepth, p.NumLeaves, p.NEstimators, p.LearningRate = depth, leaves, n, lr
						out = append(out, p)
					}
				}
			}
		}
	}
	return out
}

// Optimize searches the variant's grid on a chronological 80/20 holdout of
// the training rows and returns the best params with their holdout MAE.
// Untunable variants and short training sets get base back with a NaN score.
func Optimize(v regressor.Variant, base regressor.Params, X [][]float64, y []float64) (regressor.Params, float64) {
	candidates := grid(v, base)
	if len(candidates) == 0 || len(X) < minTuneRows {
		return base, math.NaN()
	}

	split := len(X) - int(math.Max(1, math.Floor(tuneHoldoutFraction*float64(len(X)))))
	Xtr, ytr := X[:split], y[:split]
	Xval, yval := X[split:], y[split:]

	best, bestMAE := base, math.Inf(1)
	for _, p := range candidates {
		model, err := regressor.New(v, p)
		if err != nil {
			continue
		}
		if err := model.Fit(Xtr, ytr); err != nil {
			logger.Debug().Err(err).Str("model", v.String()).Msg("Candidate fit failed")
			continue
		}
		pred, err := model.Predict(Xval)
		if err != nil {
			continue
		}
		if mae := Evaluate(yval, pred).MAE; mae < bestMAE {
			best, bestMAE = p, mae
		}
	}
	if math.IsInf(bestMAE, 1) {
		return base, math.NaN()
	}
	return best, bestMAE
}
