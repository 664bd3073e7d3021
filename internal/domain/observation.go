package domain

import "time"

// Observation is a single weekly price-index reading
type Observation struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// ObservationsResponse wraps historical observations with metadata
type ObservationsResponse struct {
	Data    []Observation `json:"data"`
	Count   int           `json:"count"`
	Success bool          `json:"success"`
	Message string        `json:"message,omitempty"`
}

// Values extracts the value column in order
func Values(obs []Observation) []float64 {
	out := make([]float64, len(obs))
	for i, o := range obs {
		out[i] = o.Value
	}
	return out
}
