package features

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/iphwatch/backend/internal/domain"
)

func weekly(values []float64) []domain.Observation {
	base := time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC)
	obs := make([]domain.Observation, len(values))
	for i, v := range values {
		obs[i] = domain.Observation{Date: base.AddDate(0, 0, 7*i), Value: v}
	}
	return obs
}

func TestBuildRowCount(t *testing.T) {
	tests := []struct {
		name     string
		n        int
		expected int
	}{
		{"empty", 0, 0},
		{"too short", 4, 0},
		{"first valid", 5, 1},
		{"twenty", 20, 16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values := make([]float64, tt.n)
			for i := range values {
				values[i] = float64(i)
			}
			rows := Build(weekly(values))
			if len(rows) != tt.expected {
				t.Errorf("Expected %d rows, got %d", tt.expected, len(rows))
			}
		})
	}
}

func TestBuildValues(t *testing.T) {
	obs := weekly([]float64{1, 2, 3, 4, 5, 6, 7, 8})
	rows := Build(obs)

	first := rows[0]
	if first.Target != 5 || first.Lag1 != 4 || first.Lag2 != 3 || first.Lag3 != 2 || first.Lag4 != 1 {
		t.Fatalf("Unexpected lags in first row: %+v", first)
	}
	if math.Abs(first.MA3-4) > 1e-12 {
		t.Errorf("Expected MA3 4, got %f", first.MA3)
	}
	// partial window: only 5 observations available
	if math.Abs(first.MA7-3) > 1e-12 {
		t.Errorf("Expected MA7 3, got %f", first.MA7)
	}

	last := rows[len(rows)-1]
	if math.Abs(last.MA7-5) > 1e-12 {
		t.Errorf("Expected MA7 5 on full window, got %f", last.MA7)
	}
	if !last.Date.Equal(obs[len(obs)-1].Date) {
		t.Errorf("Expected last row dated %v, got %v", obs[len(obs)-1].Date, last.Date)
	}
}

func TestBuildNoLookahead(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	values := make([]float64, 30)
	for i := range values {
		values[i] = 100 + rng.NormFloat64()
	}
	base := Build(weekly(values))

	for cut := MinHistory; cut < len(values); cut++ {
		perturbed := make([]float64, len(values))
		copy(perturbed, values)
		for j := cut + 1; j < len(perturbed); j++ {
			perturbed[j] += 1000 * rng.Float64()
		}
		rows := Build(weekly(perturbed))

		// rows up to and including the cut date only see values[:cut+1]
		for i := 0; i <= cut-MinHistory; i++ {
			if rows[i] != base[i] {
				t.Fatalf("cut %d: row %d changed after perturbing future values", cut, i)
			}
		}
	}
}

func TestBuildSplit(t *testing.T) {
	values := []float64{3, 1, 4, 1, 5, 9, 2, 6, 5, 3, 5, 8, 9, 7, 9}
	obs := weekly(values)
	full := Build(obs)

	split := 10
	train, test := BuildSplit(obs, split)

	if len(train) != split-MinHistory {
		t.Fatalf("Expected %d train rows, got %d", split-MinHistory, len(train))
	}
	if len(test) != len(values)-split {
		t.Fatalf("Expected %d test rows, got %d", len(values)-split, len(test))
	}
	for i, r := range test {
		if r.Date.Before(obs[split].Date) {
			t.Errorf("test row %d targets a training week", i)
		}
		if r != full[split-MinHistory+i] {
			t.Errorf("test row %d differs from full-history row", i)
		}
	}
	// boundary row reads lags from the training slice
	if test[0].Lag1 != values[split-1] {
		t.Errorf("Expected boundary lag_1 %f, got %f", values[split-1], test[0].Lag1)
	}
}

func TestBuildSplitEdges(t *testing.T) {
	obs := weekly([]float64{1, 2, 3, 4, 5, 6})

	train, test := BuildSplit(obs, len(obs))
	if len(train) != 2 || test != nil {
		t.Errorf("Expected all rows in train, got %d/%d", len(train), len(test))
	}

	train, test = BuildSplit(obs, -1)
	if train != nil || len(test) != 2 {
		t.Errorf("Expected all rows in test, got %d/%d", len(train), len(test))
	}
}

func TestNextVector(t *testing.T) {
	obs := weekly([]float64{1, 2, 3, 4, 5, 6, 7, 8})
	v, err := NextVector(obs)
	if err != nil {
		t.Fatal(err)
	}
	expected := Vector{8, 7, 6, 5, 7, 5}
	for i := range v {
		if math.Abs(v[i]-expected[i]) > 1e-12 {
			t.Errorf("Expected %f at %d, got %f", expected[i], i, v[i])
		}
	}

	if _, err := NextVector(obs[:3]); err == nil {
		t.Error("Expected error for short series")
	}
}

func TestNewVector(t *testing.T) {
	if _, err := NewVector([]float64{1, 2, 3, 4, 5, 6}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, n := range []int{0, 5, 7} {
		_, err := NewVector(make([]float64, n))
		if !errors.Is(err, ErrFeatureArity) {
			t.Errorf("len %d: expected ErrFeatureArity, got %v", n, err)
		}
	}
}

func TestMatrix(t *testing.T) {
	rows := Build(weekly([]float64{1, 2, 3, 4, 5, 6}))
	X, y := Matrix(rows)
	if len(X) != 2 || len(y) != 2 {
		t.Fatalf("Expected 2 rows, got %d/%d", len(X), len(y))
	}
	if len(X[0]) != NumFeatures || y[1] != 6 {
		t.Errorf("Unexpected matrix contents: %v %v", X, y)
	}
}
