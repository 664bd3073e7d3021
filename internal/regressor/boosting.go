package regressor

// GradientBoostingRegressor fits trees to squared-error residuals, starting
// from the target mean. NumLeaves > 0 grows each tree leaf-wise up to that
// many leaves; otherwise trees grow depth-wise up to MaxDepth.
type GradientBoostingRegressor struct {
	Params     Params    `json:"params"`
	Width      int       `json:"width"`
	Base       float64   `json:"base"`
	Trees      []*Tree   `json:"trees"`
	Importance []float64 `json:"importance"`
}

// Fit runs NEstimators boosting rounds
func (m *GradientBoostingRegressor) Fit(X [][]float64, y []float64) error {
	width, err := checkTraining(X, y)
	if err != nil {
		return err
	}
	p := m.Params
	if p.NEstimators <= 0 {
		p.NEstimators = 100
	}
	if p.LearningRate <= 0 {
		p.LearningRate = 0.1
	}

	n := len(X)
	base := 0.0
	for _, v := range y {
		base += v
	}
	base /= float64(n)

	pred := make([]float64, n)
	for i := range pred {
		pred[i] = base
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}

	cfg := growConfig{
		maxDepth:  p.MaxDepth,
		minLeaf:   p.MinSamplesLeaf,
		maxLeaves: p.NumLeaves,
		lambda:    p.Lambda,
	}
	importance := make([]float64, width)
	residual := make([]float64, n)
	trees := make([]*Tree, 0, p.NEstimators)

	for round := 0; round < p.NEstimators; round++ {
		for i := range residual {
			residual[i] = y[i] - pred[i]
		}
		t := growTree(X, residual, idx, cfg, importance)
		for i, x := range X {
			pred[i] += p.LearningRate * t.Predict(x)
		}
		trees = append(trees, t)
	}

	m.Params = p
	m.Width = width
	m.Base = base
	m.Trees = trees
	m.Importance = normalize(importance)
	return nil
}

// Predict sums the shrunken tree outputs onto the base value
func (m *GradientBoostingRegressor) Predict(X [][]float64) ([]float64, error) {
	if len(m.Trees) == 0 {
		return nil, ErrNotFitted
	}
	if err := checkInput(X, m.Width); err != nil {
		return nil, err
	}

	out := make([]float64, len(X))
	for i, x := range X {
		v := m.Base
		for _, t := range m.Trees {
			v += m.Params.LearningRate * t.Predict(x)
		}
		out[i] = v
	}
	return out, nil
}

// FeatureImportance returns normalized split gain per feature
func (m *GradientBoostingRegressor) FeatureImportance() []float64 {
	return append([]float64(nil), m.Importance...)
}
