// Package validator generates walk-forward (expanding window) splits for
// small time series.
package validator

import (
	"errors"
)

// MinTrainSize is the smallest training prefix a split may have
const MinTrainSize = 10

// ErrInsufficientData is returned when no valid split can be produced
var ErrInsufficientData = errors.New("validator: insufficient data for time-series validation")

// Split is one fold: train on [0, TrainEnd), test on [TestStart, TestEnd)
type Split struct {
	TrainEnd  int
	TestStart int
	TestEnd   int
}

// TrainSize returns the number of training rows
func (s Split) TrainSize() int { return s.TrainEnd }

// TestSize returns the number of test rows
func (s Split) TestSize() int { return s.TestEnd - s.TestStart }

// WalkForward returns up to nSplits expanding-window splits over n rows.
// The test block holds testFraction*n rows (at least one); the last split
// ends at n. Splits with fewer than MinTrainSize training rows are dropped.
func WalkForward(n, nSplits int, testFraction float64) []Split {
	if n <= 0 || nSplits <= 0 {
		return nil
	}
	testSize := int(testFraction * float64(n))
	if testSize < 1 {
		testSize = 1
	}

	splits := make([]Split, 0, nSplits)
	for i := 0; i < nSplits; i++ {
		testEnd := n - (nSplits-1-i)*testSize
		testStart := testEnd - testSize
		s := Split{TrainEnd: testStart, TestStart: testStart, TestEnd: testEnd}
		if s.TrainEnd < MinTrainSize || s.TestEnd > n {
			continue
		}
		splits = append(splits, s)
	}
	return splits
}

// MustWalkForward is WalkForward but fails with ErrInsufficientData when
// no split survives.
func MustWalkForward(n, nSplits int, testFraction float64) ([]Split, error) {
	splits := WalkForward(n, nSplits, testFraction)
	if len(splits) == 0 {
		return nil, ErrInsufficientData
	}
	return splits, nil
}
