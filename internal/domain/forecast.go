package domain

import "time"

// Forecast methods
const (
	MethodDeterministic = "deterministic"
	MethodMonteCarlo    = "monte_carlo"
)

// Trend labels used in forecast summaries
const (
	TrendUp   = "Naik"
	TrendDown = "Turun"
)

// ForecastResult is the raw output of a multi-step forecast.
// Predictions[i] is the i-th week after the last known observation.
type ForecastResult struct {
	Predictions     []float64 `json:"predictions"`
	LowerBound      []float64 `json:"lower_bound"`
	UpperBound      []float64 `json:"upper_bound"`
	Uncertainties   []float64 `json:"uncertainties"`
	ConfidenceWidth float64   `json:"confidence_width"`
	Method          string    `json:"method"`
}

// ForecastRow is one future week in the forecast table
type ForecastRow struct {
	Date            time.Time `json:"date"`
	Prediction      float64   `json:"prediction"`
	LowerBound      float64   `json:"lower_bound"`
	UpperBound      float64   `json:"upper_bound"`
	ModelName       string    `json:"model_name"`
	ConfidenceWidth float64   `json:"confidence_width"`
	GeneratedAt     time.Time `json:"generated_at"`
}

// ForecastSummary condenses a forecast table
type ForecastSummary struct {
	AvgPrediction float64 `json:"avg_prediction"`
	Trend         string  `json:"trend"`
	Volatility    float64 `json:"volatility"`
	ConfidenceAvg float64 `json:"confidence_avg"`
	MinPrediction float64 `json:"min_prediction"`
	MaxPrediction float64 `json:"max_prediction"`
}

// Forecast is the full response of a forecast request
type Forecast struct {
	Data             []ForecastRow    `json:"data"`
	ModelName        string           `json:"model_name"`
	ModelPerformance ModelPerformance `json:"model_performance"`
	Summary          ForecastSummary  `json:"summary"`
	WeeksForecasted  int              `json:"weeks_forecasted"`
	Method           string           `json:"method"`
}

// Drift recommendations
const (
	RecommendRetrain = "retrain"
	RecommendMonitor = "monitor"
)

// DriftAssessment is the verdict of a drift check
type DriftAssessment struct {
	DriftDetected  bool     `json:"drift_detected"`
	Signals        []string `json:"drift_signals"`
	DriftScore     float64  `json:"drift_score"`
	Recommendation string   `json:"recommendation"`
	Reason         string   `json:"reason,omitempty"`
}
