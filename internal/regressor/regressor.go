package regressor

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	// ErrNotFitted is returned by Predict on a model that has not been trained
	ErrNotFitted = errors.New("regressor: model is not fitted")

	// ErrEmptyData is returned by Fit when there is nothing to learn from
	ErrEmptyData = errors.New("regressor: empty training data")

	// ErrUnknownVariant is returned for names outside the catalog
	ErrUnknownVariant = errors.New("regressor: unknown model variant")
)

// Regressor is a single-output regression model
type Regressor interface {
	Fit(X [][]float64, y []float64) error
	Predict(X [][]float64) ([]float64, error)
}

// Importancer is implemented by models that expose feature importance
type Importancer interface {
	FeatureImportance() []float64
}

// Variant identifies a model in the fixed catalog
type Variant int

const (
	KNN Variant = iota
	RandomForest
	XGBoost
	LightGBM
)

// Catalog lists every variant in training order
var Catalog = []Variant{KNN, RandomForest, XGBoost, LightGBM}

var variantNames = map[Variant]string{
	KNN:          "KNN",
	RandomForest: "Random_Forest",
	XGBoost:      "XGBoost",
	LightGBM:     "LightGBM",
}

// String returns the stable persistence name
func (v Variant) String() string {
	if name, ok := variantNames[v]; ok {
		return name
	}
	return fmt.Sprintf("Variant(%d)", int(v))
}

// Tunable reports whether the hyperparameter optimizer handles this variant
func (v Variant) Tunable() bool {
	return v == RandomForest || v == LightGBM
}

// ParseVariant resolves a persistence name. Spaces are treated as underscores.
func ParseVariant(name string) (Variant, error) {
	normalized := strings.ReplaceAll(strings.TrimSpace(name), " ", "_")
	for v, n := range variantNames {
		if strings.EqualFold(n, normalized) {
			return v, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownVariant, name)
}

// Params is the hyperparameter set for any variant. Fields a variant does
// not use are ignored.
type Params struct {
	K              int     `json:"k,omitempty"`
	NEstimators    int     `json:"n_estimators,omitempty"`
	MaxDepth       int     `json:"max_depth,omitempty"` // 0 = unlimited
	MinSamplesLeaf int     `json:"min_samples_leaf,omitempty"`
	NumLeaves      int     `json:"num_leaves,omitempty"` // 0 = depth-wise growth
	LearningRate   float64 `json:"learning_rate,omitempty"`
	Lambda         float64 `json:"lambda,omitempty"`
	Seed           int64   `json:"seed,omitempty"`
}

// DefaultSeed seeds every stochastic model
const DefaultSeed = 42

// DefaultParams returns the catalog default configuration for a variant
func DefaultParams(v Variant) Params {
	switch v {
	case KNN:
		return Params{K: 5}
	case RandomForest:
		return Params{NEstimators: 100, MaxDepth: 10, MinSamplesLeaf: 1, Seed: DefaultSeed}
	case XGBoost:
		return Params{NEstimators: 100, MaxDepth: 6, MinSamplesLeaf: 1, LearningRate: 0.1, Lambda: 1}
	case LightGBM:
		return Params{NEstimators: 100, NumLeaves: 31, MinSamplesLeaf: 3, LearningRate: 0.1}
	default:
		return Params{}
	}
}

// New creates an unfitted model for the variant
func New(v Variant, p Params) (Regressor, error) {
	switch v {
	case KNN:
		return &KNNRegressor{K: p.K}, nil
	case RandomForest:
		return &RandomForestRegressor{Params: p}, nil
	case XGBoost, LightGBM:
		return &GradientBoostingRegressor{Params: p}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownVariant, int(v))
	}
}

// Encode serializes a fitted model
func Encode(r Regressor) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("regressor: failed to encode model: %w", err)
	}
	return data, nil
}

// Decode restores a model of the given variant
func Decode(v Variant, data []byte) (Regressor, error) {
	r, err := New(v, Params{})
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("regressor: failed to decode %s: %w", v, err)
	}
	return r, nil
}

// PredictOne predicts a single feature vector
func PredictOne(r Regressor, x []float64) (float64, error) {
	out, err := r.Predict([][]float64{x})
	if err != nil {
		return 0, err
	}
	return out[0], nil
}

// checkTraining validates a design matrix and returns its width
func checkTraining(X [][]float64, y []float64) (int, error) {
	if len(X) == 0 || len(y) == 0 {
		return 0, ErrEmptyData
	}
	if len(X) != len(y) {
		return 0, fmt.Errorf("regressor: %d rows but %d targets", len(X), len(y))
	}
	width := len(X[0])
	if width == 0 {
		return 0, ErrEmptyData
	}
	for i, row := range X {
		if len(row) != width {
			return 0, fmt.Errorf("regressor: row %d has %d features, want %d", i, len(row), width)
		}
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return 0, fmt.Errorf("regressor: non-finite feature in row %d", i)
			}
		}
		if math.IsNaN(y[i]) || math.IsInf(y[i], 0) {
			return 0, fmt.Errorf("regressor: non-finite target in row %d", i)
		}
	}
	return width, nil
}

// checkInput validates prediction input against the fitted width
func checkInput(X [][]float64, width int) error {
	for i, row := range X {
		if len(row) != width {
			return fmt.Errorf("regressor: row %d has %d features, want %d", i, len(row), width)
		}
	}
	return nil
}
