package regressor

import (
	"math/rand"
)

// RandomForestRegressor averages CART trees fitted on bootstrap samples
type RandomForestRegressor struct {
	Params     Params    `json:"params"`
	Width      int       `json:"width"`
	Trees      []*Tree   `json:"trees"`
	Importance []float64 `json:"importance"`
}

// Fit grows NEstimators trees, each on a bootstrap resample of the rows
func (m *RandomForestRegressor) Fit(X [][]float64, y []float64) error {
	width, err := checkTraining(X, y)
	if err != nil {
		return err
	}
	p := m.Params
	if p.NEstimators <= 0 {
		p.NEstimators = DefaultParams(RandomForest).NEstimators
	}

	rng := rand.New(rand.NewSource(p.Seed))
	cfg := growConfig{maxDepth: p.MaxDepth, minLeaf: p.MinSamplesLeaf}
	importance := make([]float64, width)
	trees := make([]*Tree, 0, p.NEstimators)

	n := len(X)
	sample := make([]int, n)
	for e := 0; e < p.NEstimators; e++ {
		for i := range sample {
			sample[i] = rng.Intn(n)
		}
		trees = append(trees, growTree(X, y, sample, cfg, importance))
	}

	m.Width = width
	m.Trees = trees
	m.Importance = normalize(importance)
	return nil
}

// Predict averages the tree predictions
func (m *RandomForestRegressor) Predict(X [][]float64) ([]float64, error) {
	if len(m.Trees) == 0 {
		return nil, ErrNotFitted
	}
	if err := checkInput(X, m.Width); err != nil {
		return nil, err
	}

	out := make([]float64, len(X))
	for i, x := range X {
		sum := 0.0
		for _, t := range m.Trees {
			sum += t.Predict(x)
		}
		out[i] = sum / float64(len(m.Trees))
	}
	return out, nil
}

// FeatureImportance returns normalized split gain per feature
func (m *RandomForestRegressor) FeatureImportance() []float64 {
	return append([]float64(nil), m.Importance...)
}
