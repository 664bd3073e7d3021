package regressor

import (
	"sort"
)

// KNNRegressor predicts the mean target of the K closest training rows
// (Euclidean distance). It keeps the training set as its fitted state.
type KNNRegressor struct {
	K     int         `json:"k"`
	Width int         `json:"width"`
	X     [][]float64 `json:"x"`
	Y     []float64   `json:"y"`
}

// Fit stores a copy of the training set
func (m *KNNRegressor) Fit(X [][]float64, y []float64) error {
	width, err := checkTraining(X, y)
	if err != nil {
		return err
	}
	if m.K <= 0 {
		m.K = DefaultParams(KNN).K
	}

	m.Width = width
	m.X = make([][]float64, len(X))
	for i, row := range X {
		m.X[i] = append([]float64(nil), row...)
	}
	m.Y = append([]float64(nil), y...)
	return nil
}

// Predict averages the targets of the nearest neighbours
func (m *KNNRegressor) Predict(X [][]float64) ([]float64, error) {
	if len(m.X) == 0 {
		return nil, ErrNotFitted
	}
	if err := checkInput(X, m.Width); err != nil {
		return nil, err
	}

	k := m.K
	if k > len(m.X) {
		k = len(m.X)
	}

	type neighbour struct {
		dist  float64
		index int
	}
	out := make([]float64, len(X))
	candidates := make([]neighbour, len(m.X))
	for i, x := range X {
		for j, row := range m.X {
			candidates[j] = neighbour{dist: squaredDistance(x, row), index: j}
		}
		// ties resolve to the earlier training row
		sort.SliceStable(candidates, func(a, b int) bool {
			return candidates[a].dist < candidates[b].dist
		})

		sum := 0.0
		for _, n := range candidates[:k] {
			sum += m.Y[n.index]
		}
		out[i] = sum / float64(k)
	}
	return out, nil
}

func squaredDistance(a, b []float64) float64 {
	d := 0.0
	for i := range a {
		diff := a[i] - b[i]
		d += diff * diff
	}
	return d
}
