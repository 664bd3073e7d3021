// Package forecast chains one-step predictions into a multi-week forecast.
//
// The state carried between steps is a features.Vector. After each
// prediction the lags shift by one week and the moving averages are
// recomputed from the chronological history of known lags and predictions,
// so once three (seven) predictions exist MA_3 (MA_7) is built from
// predictions only.
package forecast

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/stat"

	"github.com/iphwatch/backend/internal/domain"
	"github.com/iphwatch/backend/internal/features"
)

const (
	MinSteps = 4
	MaxSteps = 12

	// DefaultSamples is the number of Monte Carlo draws per step
	DefaultSamples = 50

	// DefaultSeed makes Monte Carlo runs reproducible
	DefaultSeed = 42

	// z95 is the two-sided 95% normal quantile
	z95 = 1.96

	volatilityScale = 0.1
	stepScale       = 0.05
	minNoise        = 1e-3
)

// ErrHorizon is returned for a step count outside [MinSteps, MaxSteps]
var ErrHorizon = errors.New("forecast: weeks must be between 4 and 12")

// Predictor is anything that maps feature rows to point predictions
type Predictor interface {
	Predict(X [][]float64) ([]float64, error)
}

// Forecaster produces recursive multi-step forecasts
type Forecaster struct {
	samples int
	seed    int64
}

// Option configures a Forecaster
type Option func(*Forecaster)

// WithSamples sets the Monte Carlo draw count
func WithSamples(n int) Option {
	return func(f *Forecaster) {
		if n > 1 {
			f.samples = n
		}
	}
}

// WithSeed sets the Monte Carlo seed
func WithSeed(seed int64) Option {
	return func(f *Forecaster) { f.seed = seed }
}

// New creates a forecaster
func New(opts ...Option) *Forecaster {
	f := &Forecaster{samples: DefaultSamples, seed: DefaultSeed}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ValidateSteps checks the forecast horizon
func ValidateSteps(steps int) error {
	if steps < MinSteps || steps > MaxSteps {
		return fmt.Errorf("%w: got %d", ErrHorizon, steps)
	}
	return nil
}

// Forecast predicts steps weeks ahead of the week described by start.
// An empty method means deterministic.
func (f *Forecaster) Forecast(model Predictor, start features.Vector, steps int, method string) (*domain.ForecastResult, error) {
	if err := ValidateSteps(steps); err != nil {
		return nil, err
	}
	switch method {
	case "", domain.MethodDeterministic:
		return f.deterministic(model, start, steps)
	case domain.MethodMonteCarlo:
		return f.monteCarlo(model, start, steps)
	default:
		return nil, fmt.Errorf("forecast: unknown method %q", method)
	}
}

func (f *Forecaster) deterministic(model Predictor, start features.Vector, steps int) (*domain.ForecastResult, error) {
	vol := Volatility(start)
	st := newState(start)

	res := newResult(steps, domain.MethodDeterministic)
	for s := 0; s < steps; s++ {
		out, err := model.Predict([][]float64{st.current.Slice()})
		if err != nil {
			return nil, fmt.Errorf("forecast: step %d: %w", s+1, err)
		}
		pred := out[0]
		width := ConfidenceWidth(vol, s)
		res.Predictions[s] = pred
		res.Uncertainties[s] = width
		res.LowerBound[s] = pred - z95*width
		res.UpperBound[s] = pred + z95*width
		st.advance(pred)
	}
	res.ConfidenceWidth = meanWidth(res)
	return res, nil
}

func (f *Forecaster) monteCarlo(model Predictor, start features.Vector, steps int) (*domain.ForecastResult, error) {
	vol := Volatility(start)
	rng := rand.New(rand.NewSource(f.seed))
	st := newState(start)

	res := newResult(steps, domain.MethodMonteCarlo)
	batch := make([][]float64, f.samples)
	for s := 0; s < steps; s++ {
		noise := math.Max(vol, minNoise) * volatilityScale * math.Sqrt(float64(s+1))
		for i := range batch {
			row := st.current.Slice()
			for j := range row {
				row[j] += rng.NormFloat64() * noise
			}
			batch[i] = row
		}
		out, err := model.Predict(batch)
		if err != nil {
			return nil, fmt.Errorf("forecast: step %d: %w", s+1, err)
		}
		mean, std := stat.MeanStdDev(out, nil)
		res.Predictions[s] = mean
		res.Uncertainties[s] = std
		res.LowerBound[s] = mean - z95*std
		res.UpperBound[s] = mean + z95*std
		st.advance(mean)
	}
	res.ConfidenceWidth = meanWidth(res)
	return res, nil
}

// Volatility is the population standard deviation of the four lags
func Volatility(v features.Vector) float64 {
	_, variance := stat.PopMeanVariance(v.Lags(), nil)
	return math.Sqrt(variance)
}

// ConfidenceWidth is the deterministic half-width unit at zero-based step s
func ConfidenceWidth(vol float64, s int) float64 {
	return vol*volatilityScale + math.Sqrt(float64(s+1))*stepScale
}

// state tracks the feature vector and the chronological value history
// (lag_4 .. lag_1 followed by every prediction so far).
type state struct {
	current features.Vector
	history []float64
}

func newState(start features.Vector) *state {
	return &state{
		current: start,
		history: []float64{start[3], start[2], start[1], start[0]},
	}
}

func (st *state) advance(pred float64) {
	st.history = append(st.history, pred)
	c := st.current
	st.current = features.Vector{
		pred, c[0], c[1], c[2],
		tailMean(st.history, 3),
		tailMean(st.history, 7),
	}
}

func tailMean(values []float64, w int) float64 {
	if len(values) > w {
		values = values[len(values)-w:]
	}
	return stat.Mean(values, nil)
}

func newResult(steps int, method string) *domain.ForecastResult {
	return &domain.ForecastResult{
		Predictions:   make([]float64, steps),
		LowerBound:    make([]float64, steps),
		UpperBound:    make([]float64, steps),
		Uncertainties: make([]float64, steps),
		Method:        method,
	}
}

// meanWidth averages the full interval width over every step
func meanWidth(res *domain.ForecastResult) float64 {
	sum := 0.0
	for i := range res.Predictions {
		sum += res.UpperBound[i] - res.LowerBound[i]
	}
	return sum / float64(len(res.Predictions))
}
