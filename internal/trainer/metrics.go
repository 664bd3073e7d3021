package trainer

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/iphwatch/backend/pkg/utils"
)

const (
	r2Floor       = -10.0
	r2Ceiling     = 1.0
	varianceFloor = 1e-10
	mapeEpsilon   = 1e-8
	mapeCeiling   = 1000.0
)

// Metrics are the held-out scores of one model
type Metrics struct {
	MAE  float64
	RMSE float64
	R2   float64
	MAPE float64
}

// Evaluate scores predictions against the truth.
//
// R² is clamped to [-10, 1] and reported as 0 when the truth is nearly
// constant. MAPE (in percent) only counts points with |truth| > 1e-8 and is
// clamped to [0, 1000].
func Evaluate(truth, pred []float64) Metrics {
	n := len(truth)
	if n == 0 || len(pred) != n {
		return Metrics{MAE: math.NaN(), RMSE: math.NaN()}
	}

	absErr := make([]float64, n)
	sqErr := make([]float64, n)
	for i := range truth {
		d := truth[i] - pred[i]
		absErr[i] = math.Abs(d)
		sqErr[i] = d * d
	}

	m := Metrics{
		MAE:  stat.Mean(absErr, nil),
		RMSE: math.Sqrt(stat.Mean(sqErr, nil)),
	}
	m.R2 = rSquared(truth, floats.Sum(sqErr))
	m.MAPE = meanAbsPercentError(truth, pred)
	return m
}

func rSquared(truth []float64, ssRes float64) float64 {
	if len(truth) < 2 {
		return 0
	}
	mean := stat.Mean(truth, nil)
	ssTot := 0.0
	for _, v := range truth {
		ssTot += (v - mean) * (v - mean)
	}
	if ssTot/float64(len(truth)) < varianceFloor {
		return 0
	}
	return utils.Clamp(1-ssRes/ssTot, r2Floor, r2Ceiling)
}

func meanAbsPercentError(truth, pred []float64) float64 {
	sum := 0.0
	count := 0
	for i, v := range truth {
		if math.Abs(v) <= mapeEpsilon {
			continue
		}
		sum += math.Abs((v - pred[i]) / v)
		count++
	}
	if count == 0 {
		return 0
	}
	return utils.Clamp(sum/float64(count)*100, 0, mapeCeiling)
}
