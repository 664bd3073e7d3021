package ensemble

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/iphwatch/backend/internal/regressor"
)

// constModel predicts a fixed value
type constModel struct {
	value      float64
	importance []float64
}

func (c constModel) Predict(X [][]float64) ([]float64, error) {
	out := make([]float64, len(X))
	for i := range out {
		out[i] = c.value
	}
	return out, nil
}

func (c constModel) Fit(X [][]float64, y []float64) error { return nil }

type importantModel struct{ constModel }

func (m importantModel) FeatureImportance() []float64 { return m.importance }

func TestBuildKeepsLowestMAE(t *testing.T) {
	cands := []Candidate{
		{Name: "a", Model: constModel{value: 1}, MAE: 0.4},
		{Name: "b", Model: constModel{value: 2}, MAE: 0.1},
		{Name: "c", Model: constModel{value: 3}, MAE: 0.3},
		{Name: "d", Model: constModel{value: 4}, MAE: 0.2},
	}
	m, err := Build(cands, DefaultSize)
	if err != nil {
		t.Fatal(err)
	}

	members := m.Members()
	expected := []string{"b", "d", "c"}
	if len(members) != len(expected) {
		t.Fatalf("Expected %d members, got %d", len(expected), len(members))
	}
	for i, name := range expected {
		if members[i].Name != name {
			t.Errorf("member %d: expected %s, got %s", i, name, members[i].Name)
		}
	}
	// lower error gets more weight
	for i := 1; i < len(members); i++ {
		if members[i].Weight > members[i-1].Weight {
			t.Errorf("weight %d (%f) exceeds weight %d (%f)", i, members[i].Weight, i-1, members[i-1].Weight)
		}
	}
}

func TestWeightsSumToOne(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for trial := 0; trial < 200; trial++ {
		n := 1 + rng.Intn(6)
		cands := make([]Candidate, n)
		for i := range cands {
			cands[i] = Candidate{Name: "m", Model: constModel{}, MAE: rng.Float64() * 5}
		}
		if trial%10 == 0 {
			cands[0].MAE = 0
		}

		m, err := Build(cands, DefaultSize)
		if err != nil {
			t.Fatal(err)
		}
		sum := 0.0
		for _, w := range m.Weights() {
			if w < 0 {
				t.Fatalf("negative weight %f", w)
			}
			sum += w
		}
		if math.Abs(sum-1) > 1e-9 {
			t.Fatalf("weights sum to %f", sum)
		}
	}
}

func TestPredictWeightedAverage(t *testing.T) {
	m, err := Build([]Candidate{
		{Name: "a", Model: constModel{value: 10}, MAE: 1 - Epsilon},
		{Name: "b", Model: constModel{value: 20}, MAE: 1 - Epsilon},
	}, 3)
	if err != nil {
		t.Fatal(err)
	}
	pred, err := m.Predict([][]float64{{0}, {0}})
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range pred {
		if math.Abs(p-15) > 1e-9 {
			t.Errorf("Expected 15, got %f", p)
		}
	}
}

func TestBuildSkipsUnusable(t *testing.T) {
	_, err := Build([]Candidate{
		{Name: "nan", Model: constModel{}, MAE: math.NaN()},
		{Name: "nil", Model: nil, MAE: 0.1},
	}, 3)
	if !errors.Is(err, ErrNoCandidates) {
		t.Errorf("Expected ErrNoCandidates, got %v", err)
	}
}

func TestFeatureImportance(t *testing.T) {
	withImp, _ := Build([]Candidate{
		{Name: "a", Model: importantModel{constModel{importance: []float64{1, 0}}}, MAE: 1 - Epsilon},
		{Name: "b", Model: importantModel{constModel{importance: []float64{0, 1}}}, MAE: 1 - Epsilon},
	}, 3)
	imp := withImp.FeatureImportance()
	if len(imp) != 2 || math.Abs(imp[0]-0.5) > 1e-9 || math.Abs(imp[1]-0.5) > 1e-9 {
		t.Errorf("Expected [0.5 0.5], got %v", imp)
	}

	mixed, _ := Build([]Candidate{
		{Name: "a", Model: importantModel{constModel{importance: []float64{1, 0}}}, MAE: 0.1},
		{Name: "b", Model: constModel{}, MAE: 0.2},
	}, 3)
	if mixed.FeatureImportance() != nil {
		t.Error("Expected nil importance when a member lacks it")
	}
}

func TestWithCatalogModels(t *testing.T) {
	X := [][]float64{{1, 1, 1, 1, 1, 1}, {2, 2, 2, 2, 2, 2}, {3, 3, 3, 3, 3, 3}}
	y := []float64{1, 2, 3}
	var cands []Candidate
	for _, v := range regressor.Catalog {
		model, _ := regressor.New(v, regressor.DefaultParams(v))
		if err := model.Fit(X, y); err != nil {
			t.Fatal(err)
		}
		cands = append(cands, Candidate{Name: v.String(), Model: model, MAE: 0.5})
	}
	m, err := Build(cands, DefaultSize)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Predict(X); err != nil {
		t.Fatal(err)
	}
}
