// Package alerts raises statistical alerts on the observed price-index
// series: values beyond 2σ/3σ bounds, volatility surges and sharp trend
// changes.
package alerts

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/iphwatch/backend/internal/domain"
)

const (
	MinObservations  = 10
	StatsWindow      = 30  // recent observations the bounds are computed over
	VolatilityWindow = 7   // rolling std window
	VolatilitySurge  = 1.5 // recent std over average rolling std
	TrendWindow      = 5
	TrendFactor      = 0.5 // mean diff over window std
	HistoricalLimit  = 20
)

// Alert types
const (
	TypeThreshold  = "threshold"
	TypeVolatility = "volatility"
	TypeTrend      = "trend"
)

// Severities
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

// Trend directions
const (
	DirectionUp   = "naik"
	DirectionDown = "turun"
)

var ErrTooFewObservations = errors.New("alerts: not enough observations")

// Alert is one raised condition
type Alert struct {
	ID           int       `json:"id,omitempty"`
	Type         string    `json:"type"`
	Severity     string    `json:"severity"`
	Title        string    `json:"title"`
	Message      string    `json:"message"`
	Value        float64   `json:"value"`
	Threshold    float64   `json:"threshold"`
	Direction    string    `json:"direction,omitempty"`
	Date         time.Time `json:"date"`
	DaysAgo      int       `json:"days_ago,omitempty"`
	Acknowledged bool      `json:"acknowledged"`
}

// Bounds are the 2σ and 3σ limits around a sample mean
type Bounds struct {
	Mean        float64 `json:"mean"`
	Std         float64 `json:"std"`
	Upper2Sigma float64 `json:"upper_2sigma"`
	Lower2Sigma float64 `json:"lower_2sigma"`
	Upper3Sigma float64 `json:"upper_3sigma"`
	Lower3Sigma float64 `json:"lower_3sigma"`
}

// NewBounds computes bounds from the sample mean and sample std of values
func NewBounds(values []float64) Bounds {
	mean, std := stat.MeanStdDev(values, nil)
	return Bounds{
		Mean:        mean,
		Std:         std,
		Upper2Sigma: mean + 2*std,
		Lower2Sigma: mean - 2*std,
		Upper3Sigma: mean + 3*std,
		Lower3Sigma: mean - 3*std,
	}
}

// Classify returns a threshold alert for value, or false when it lies
// within the 2σ bounds. The 3σ breach takes precedence.
func (b Bounds) Classify(value float64) (Alert, bool) {
	a := Alert{Type: TypeThreshold, Value: value}
	switch {
	case value > b.Upper3Sigma:
		a.Severity, a.Threshold = SeverityCritical, b.Upper3Sigma
		a.Title = "IPH Melampaui Batas Kritis Atas"
		a.Message = fmt.Sprintf("IPH %.2f%% melampaui batas 3-sigma (%.2f%%)", value, b.Upper3Sigma)
	case value < b.Lower3Sigma:
		a.Severity, a.Threshold = SeverityCritical, b.Lower3Sigma
		a.Title = "IPH Melampaui Batas Kritis Bawah"
		a.Message = fmt.Sprintf("IPH %.2f%% melampaui batas 3-sigma (%.2f%%)", value, b.Lower3Sigma)
	case value > b.Upper2Sigma:
		a.Severity, a.Threshold = SeverityWarning, b.Upper2Sigma
		a.Title = "IPH Mendekati Batas Atas"
		a.Message = fmt.Sprintf("IPH %.2f%% mendekati batas 2-sigma (%.2f%%)", value, b.Upper2Sigma)
	case value < b.Lower2Sigma:
		a.Severity, a.Threshold = SeverityWarning, b.Lower2Sigma
		a.Title = "IPH Mendekati Batas Bawah"
		a.Message = fmt.Sprintf("IPH %.2f%% mendekati batas 2-sigma (%.2f%%)", value, b.Lower2Sigma)
	default:
		return Alert{}, false
	}
	return a, true
}

// Statistics describes the window the latest alerts were computed on
type Statistics struct {
	Bounds
	LatestValue float64 `json:"latest_value"`
	Volatility  float64 `json:"volatility"`
}

// Report is the result of a statistical alert check
type Report struct {
	Alerts     []Alert    `json:"alerts"`
	Statistics Statistics `json:"statistics"`
}

// Statistical checks the latest observation of a date-ordered series
func Statistical(obs []domain.Observation) (Report, error) {
	if len(obs) < MinObservations {
		return Report{}, fmt.Errorf("%w: need %d, got %d", ErrTooFewObservations, MinObservations, len(obs))
	}
	values := domain.Values(obs)
	recent := values[max(0, len(values)-StatsWindow):]
	bounds := NewBounds(recent)

	latest := obs[len(obs)-1]
	report := Report{
		Alerts: []Alert{},
		Statistics: Statistics{
			Bounds:      bounds,
			LatestValue: latest.Value,
			Volatility:  stat.StdDev(values[len(values)-VolatilityWindow:], nil),
		},
	}

	if a, ok := bounds.Classify(latest.Value); ok {
		report.Alerts = append(report.Alerts, a)
	}
	if a, ok := volatilitySurge(values); ok {
		report.Alerts = append(report.Alerts, a)
	}
	if a, ok := trendShift(values, bounds.Std); ok {
		report.Alerts = append(report.Alerts, a)
	}
	for i := range report.Alerts {
		report.Alerts[i].Date = latest.Date
	}
	return report, nil
}

// volatilitySurge compares the std of the last VolatilityWindow values with
// the average rolling std over the whole series
func volatilitySurge(values []float64) (Alert, bool) {
	if len(values) < VolatilityWindow {
		return Alert{}, false
	}
	rolling := make([]float64, 0, len(values)-VolatilityWindow+1)
	for end := VolatilityWindow; end <= len(values); end++ {
		rolling = append(rolling, stat.StdDev(values[end-VolatilityWindow:end], nil))
	}
	current := rolling[len(rolling)-1]
	limit := stat.Mean(rolling, nil) * VolatilitySurge
	if !(current > limit) {
		return Alert{}, false
	}
	return Alert{
		Type:      TypeVolatility,
		Severity:  SeverityInfo,
		Title:     "Volatilitas Meningkat",
		Message:   fmt.Sprintf("Volatilitas %d-periode (%.3f%%) meningkat 50%% dari rata-rata", VolatilityWindow, current),
		Value:     current,
		Threshold: limit,
	}, true
}

// trendShift flags a mean step over the last TrendWindow values larger
// than TrendFactor standard deviations
func trendShift(values []float64, std float64) (Alert, bool) {
	if len(values) < TrendWindow {
		return Alert{}, false
	}
	tail := values[len(values)-TrendWindow:]
	trend := (tail[len(tail)-1] - tail[0]) / float64(TrendWindow-1)
	limit := std * TrendFactor
	if !(math.Abs(trend) > limit) {
		return Alert{}, false
	}
	dir := DirectionDown
	if trend > 0 {
		dir = DirectionUp
	}
	return Alert{
		Type:      TypeTrend,
		Severity:  SeverityInfo,
		Title:     "Deteksi Perubahan Trend",
		Message:   fmt.Sprintf("Trend %s signifikan terdeteksi dalam %d periode terakhir", dir, TrendWindow),
		Value:     trend,
		Threshold: limit,
		Direction: dir,
	}, true
}

// History is the result of a historical alert scan
type History struct {
	Alerts []Alert `json:"alerts"`
	Total  int     `json:"total_alerts"`
}

// Historical scans observations dated within days of now against bounds
// computed over the whole series. Alerts come back newest first, at most
// HistoricalLimit of them; alerts older than a day are acknowledged.
func Historical(obs []domain.Observation, days int, now time.Time) (History, error) {
	if len(obs) == 0 {
		return History{}, fmt.Errorf("%w: series is empty", ErrTooFewObservations)
	}
	bounds := NewBounds(domain.Values(obs))

	found := []Alert{}
	for _, o := range obs[max(0, len(obs)-2*days):] {
		daysAgo := int(now.Sub(o.Date).Hours() / 24)
		if daysAgo > days {
			continue
		}
		a, ok := bounds.Classify(o.Value)
		if !ok {
			continue
		}
		a.ID = len(found) + 1
		a.Date = o.Date
		a.DaysAgo = daysAgo
		a.Acknowledged = daysAgo > 1
		found = append(found, a)
	}

	sort.SliceStable(found, func(i, j int) bool { return found[i].Date.After(found[j].Date) })
	h := History{Alerts: found, Total: len(found)}
	if len(h.Alerts) > HistoricalLimit {
		h.Alerts = h.Alerts[:HistoricalLimit]
	}
	return h, nil
}
