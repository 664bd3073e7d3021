// Package drift compares a new feature sample and model error against a
// stored reference taken at training time.
package drift

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/iphwatch/backend/internal/domain"
	"github.com/iphwatch/backend/internal/features"
)

// Signals
const (
	SignalMeanShift              = "mean_shift"
	SignalVarianceChange         = "variance_change"
	SignalPerformanceDegradation = "performance_degradation"
)

const (
	meanShiftStds     = 2.0
	minStdRatio       = 0.5
	maxStdRatio       = 2.0
	degradationFactor = 1.2
	stdEpsilon        = 1e-12
	totalSignals      = 3
)

var (
	ErrNoReference = errors.New("drift: no reference distribution stored")
	ErrEmptySample = errors.New("drift: empty feature sample")
)

// Stats summarizes a feature distribution, one entry per feature column
type Stats struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
	Min  []float64 `json:"min"`
	Max  []float64 `json:"max"`
}

// Reference is the distribution and error recorded when a model was trained.
// TrainedThrough is the date of the last row the model was fitted on; only
// later rows are out-of-sample for it.
type Reference struct {
	Stats
	ModelName      string    `json:"model_name"`
	MAE            float64   `json:"mae"`
	TrainedThrough time.Time `json:"trained_through"`
	CreatedAt      time.Time `json:"created_at"`
}

// Unseen returns the rows dated after the reference's training data. A
// reference without a training date has no known unseen rows.
func (r Reference) Unseen(rows []features.Row) []features.Row {
	if r.TrainedThrough.IsZero() {
		return nil
	}
	for i, row := range rows {
		if row.Date.After(r.TrainedThrough) {
			return rows[i:]
		}
	}
	return nil
}

// Summarize computes per-column statistics over rows
func Summarize(rows []features.Row) (Stats, error) {
	if len(rows) == 0 {
		return Stats{}, ErrEmptySample
	}

	s := Stats{
		Mean: make([]float64, features.NumFeatures),
		Std:  make([]float64, features.NumFeatures),
		Min:  make([]float64, features.NumFeatures),
		Max:  make([]float64, features.NumFeatures),
	}
	col := make([]float64, len(rows))
	for j := 0; j < features.NumFeatures; j++ {
		for i, r := range rows {
			col[i] = r.Vector()[j]
		}
		mean, variance := stat.PopMeanVariance(col, nil)
		s.Mean[j] = mean
		s.Std[j] = math.Sqrt(variance)
		s.Min[j] = floats.Min(col)
		s.Max[j] = floats.Max(col)
	}
	return s, nil
}

// Detect flags drift of sample and newMAE against ref. A NaN newMAE skips
// the performance check.
func Detect(ref Reference, sample Stats, newMAE float64) (domain.DriftAssessment, error) {
	if len(ref.Mean) == 0 || len(ref.Std) != len(ref.Mean) {
		return domain.DriftAssessment{}, ErrNoReference
	}
	if len(sample.Mean) != len(ref.Mean) || len(sample.Std) != len(ref.Std) {
		return domain.DriftAssessment{}, fmt.Errorf("drift: sample has %d features, reference has %d", len(sample.Mean), len(ref.Mean))
	}

	var signals []string
	if meanShifted(ref.Stats, sample) {
		signals = append(signals, SignalMeanShift)
	}
	if varianceChanged(ref.Stats, sample) {
		signals = append(signals, SignalVarianceChange)
	}
	if ref.MAE > 0 && !math.IsNaN(newMAE) && newMAE > ref.MAE*degradationFactor {
		signals = append(signals, SignalPerformanceDegradation)
	}

	a := domain.DriftAssessment{
		DriftDetected:  len(signals) > 0,
		Signals:        signals,
		DriftScore:     float64(len(signals)) / totalSignals,
		Recommendation: domain.RecommendMonitor,
	}
	if a.Signals == nil {
		a.Signals = []string{}
	}
	if a.DriftDetected {
		a.Recommendation = domain.RecommendRetrain
	}
	return a, nil
}

func meanShifted(ref, sample Stats) bool {
	for j := range ref.Mean {
		if math.Abs(sample.Mean[j]-ref.Mean[j]) > meanShiftStds*ref.Std[j] {
			return true
		}
	}
	return false
}

// varianceChanged reports a std ratio outside [0.5, 2]. A feature that was
// constant in the reference and now varies counts as an unbounded ratio.
func varianceChanged(ref, sample Stats) bool {
	for j := range ref.Std {
		if ref.Std[j] < stdEpsilon {
			if sample.Std[j] >= stdEpsilon {
				return true
			}
			continue
		}
		ratio := sample.Std[j] / ref.Std[j]
		if ratio < minStdRatio || ratio > maxStdRatio {
			return true
		}
	}
	return false
}
