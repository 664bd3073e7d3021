// Package ensemble combines the best models of a training run into one
// inverse-error weighted predictor.
package ensemble

import (
	"errors"
	"math"
	"sort"

	"github.com/iphwatch/backend/internal/regressor"
)

// Name is the model name an ensemble is served under
const Name = "Ensemble"

const (
	// DefaultSize is the number of members taken from a run
	DefaultSize = 3

	// Epsilon keeps 1/MAE finite for a perfect model
	Epsilon = 0.001
)

// ErrNoCandidates is returned when no usable model is offered
var ErrNoCandidates = errors.New("ensemble: no candidate models")

// Candidate is a trained model offered for membership
type Candidate struct {
	Name  string
	Model regressor.Regressor
	MAE   float64
}

// Member is a model with its normalized weight
type Member struct {
	Name   string
	Model  regressor.Regressor
	MAE    float64
	Weight float64
}

// Model is an immutable weighted ensemble. Weights are non-negative and sum to 1.
type Model struct {
	members []Member
}

// Build keeps the k lowest-MAE candidates and weights each by 1/(MAE+Epsilon)
func Build(candidates []Candidate, k int) (*Model, error) {
	if k <= 0 {
		k = DefaultSize
	}

	usable := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Model == nil || math.IsNaN(c.MAE) || math.IsInf(c.MAE, 0) || c.MAE < 0 {
			continue
		}
		usable = append(usable, c)
	}
	if len(usable) == 0 {
		return nil, ErrNoCandidates
	}

	sort.SliceStable(usable, func(i, j int) bool { return usable[i].MAE < usable[j].MAE })
	if len(usable) > k {
		usable = usable[:k]
	}

	total := 0.0
	members := make([]Member, len(usable))
	for i, c := range usable {
		w := 1 / (c.MAE + Epsilon)
		members[i] = Member{Name: c.Name, Model: c.Model, MAE: c.MAE, Weight: w}
		total += w
	}
	for i := range members {
		members[i].Weight /= total
	}
	return &Model{members: members}, nil
}

// Members returns a copy of the members, best first
func (m *Model) Members() []Member {
	return append([]Member(nil), m.members...)
}

// Weights returns the member weights in member order
func (m *Model) Weights() []float64 {
	out := make([]float64, len(m.members))
	for i, mem := range m.members {
		out[i] = mem.Weight
	}
	return out
}

// Predict returns the weighted average of member predictions
func (m *Model) Predict(X [][]float64) ([]float64, error) {
	out := make([]float64, len(X))
	for _, mem := range m.members {
		pred, err := mem.Model.Predict(X)
		if err != nil {
			return nil, err
		}
		for i, p := range pred {
			out[i] += mem.Weight * p
		}
	}
	return out, nil
}

// FeatureImportance is the weight-scaled sum of member importances, or nil
// unless every member exposes importance
func (m *Model) FeatureImportance() []float64 {
	var out []float64
	for _, mem := range m.members {
		imp, ok := mem.Model.(regressor.Importancer)
		if !ok {
			return nil
		}
		values := imp.FeatureImportance()
		if out == nil {
			out = make([]float64, len(values))
		}
		if len(values) != len(out) {
			return nil
		}
		for i, v := range values {
			out[i] += mem.Weight * v
		}
	}
	return out
}
