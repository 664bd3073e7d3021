package features

import (
	"errors"
	"fmt"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/iphwatch/backend/internal/domain"
)

// NumFeatures is the arity of every feature vector
const NumFeatures = 6

// MinHistory is the number of earlier observations a row needs
const MinHistory = 4

// Columns names the feature vector positions, in order
var Columns = []string{"Lag_1", "Lag_2", "Lag_3", "Lag_4", "MA_3", "MA_7"}

// ErrFeatureArity is returned when a vector is built from the wrong number of values
var ErrFeatureArity = errors.New("features: feature vector must have exactly 6 values")

// Vector is a fixed-arity feature vector [lag_1..lag_4, ma_3, ma_7]
type Vector [NumFeatures]float64

// NewVector builds a Vector, rejecting any length other than NumFeatures
func NewVector(values []float64) (Vector, error) {
	var v Vector
	if len(values) != NumFeatures {
		return v, fmt.Errorf("%w: got %d", ErrFeatureArity, len(values))
	}
	copy(v[:], values)
	return v, nil
}

// Slice returns a fresh slice copy of the vector
func (v Vector) Slice() []float64 {
	out := make([]float64, NumFeatures)
	copy(out, v[:])
	return out
}

// Lags returns lag_1..lag_4
func (v Vector) Lags() []float64 {
	out := make([]float64, MinHistory)
	copy(out, v[:MinHistory])
	return out
}

// Row is one supervised-learning example
type Row struct {
	Date   time.Time `json:"date"`
	Lag1   float64   `json:"lag_1"`
	Lag2   float64   `json:"lag_2"`
	Lag3   float64   `json:"lag_3"`
	Lag4   float64   `json:"lag_4"`
	MA3    float64   `json:"ma_3"`
	MA7    float64   `json:"ma_7"`
	Target float64   `json:"target"`
}

// Vector returns the row's features
func (r Row) Vector() Vector {
	return Vector{r.Lag1, r.Lag2, r.Lag3, r.Lag4, r.MA3, r.MA7}
}

// Build computes rows over the entire series
func Build(obs []domain.Observation) []Row {
	values := domain.Values(obs)
	if len(values) <= MinHistory {
		return nil
	}

	rows := make([]Row, 0, len(values)-MinHistory)
	for i := MinHistory; i < len(values); i++ {
		rows = append(rows, Row{
			Date:   obs[i].Date,
			Lag1:   values[i-1],
			Lag2:   values[i-2],
			Lag3:   values[i-3],
			Lag4:   values[i-4],
			MA3:    trailingMean(values, i, 3),
			MA7:    trailingMean(values, i, 7),
			Target: values[i],
		})
	}
	return rows
}

// BuildSplit computes training rows from obs[:split] only, and test rows
// whose target falls in obs[split:], using the whole prefix for lags.
func BuildSplit(obs []domain.Observation, split int) (train, test []Row) {
	if split < 0 {
		split = 0
	}
	if split > len(obs) {
		split = len(obs)
	}

	train = Build(obs[:split])
	if split == len(obs) {
		return train, nil
	}

	boundary := obs[split].Date
	for _, r := range Build(obs) {
		if !r.Date.Before(boundary) {
			test = append(test, r)
		}
	}
	return train, test
}

// NextVector builds the feature vector for the first week after the last
// observation: lag_1 is the last value, the moving averages cover the most
// recent observations.
func NextVector(obs []domain.Observation) (Vector, error) {
	if len(obs) < MinHistory {
		return Vector{}, fmt.Errorf("features: need at least %d observations, got %d", MinHistory, len(obs))
	}
	values := domain.Values(obs)
	n := len(values)
	return Vector{
		values[n-1],
		values[n-2],
		values[n-3],
		values[n-4],
		trailingMean(values, n-1, 3),
		trailingMean(values, n-1, 7),
	}, nil
}

// Matrix splits rows into a design matrix and target vector
func Matrix(rows []Row) ([][]float64, []float64) {
	X := make([][]float64, len(rows))
	y := make([]float64, len(rows))
	for i, r := range rows {
		X[i] = r.Vector().Slice()
		y[i] = r.Target
	}
	return X, y
}

// trailingMean averages values[end-w+1..end], truncated at the series start
func trailingMean(values []float64, end, w int) float64 {
	start := end - w + 1
	if start < 0 {
		start = 0
	}
	return stat.Mean(values[start:end+1], nil)
}
