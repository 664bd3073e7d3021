package domain

import "time"

// Status levels
const (
	StatusSuccess = "success"
	StatusInfo    = "info"
	StatusWarning = "warning"
	StatusDanger  = "danger"
)

// DataSummary describes the observation series
type DataSummary struct {
	TotalRecords int        `json:"total_records"`
	StartDate    *time.Time `json:"start_date,omitempty"`
	EndDate      *time.Time `json:"end_date,omitempty"`
	LatestValue  *float64   `json:"latest_value,omitempty"`
	Mean         float64    `json:"mean"`
	Std          float64    `json:"std"`
	Min          float64    `json:"min"`
	Max          float64    `json:"max"`
}

// SystemStatus tells a client whether forecasting can be used
type SystemStatus struct {
	HasData       bool   `json:"has_data"`
	HasModels     bool   `json:"has_models"`
	HasForecast   bool   `json:"has_forecast"`
	DataRecords   int    `json:"data_records"`
	ReadyForUse   bool   `json:"ready_for_use"`
	StatusMessage string `json:"status_message"`
	StatusLevel   string `json:"status_level"`
}

// LatestForecastInfo describes the forecast held in memory
type LatestForecastInfo struct {
	HasLatest       bool      `json:"has_latest"`
	ModelName       string    `json:"model_name,omitempty"`
	WeeksForecasted int       `json:"weeks_forecasted,omitempty"`
	DataPoints      int       `json:"data_points,omitempty"`
	GeneratedAt     time.Time `json:"generated_at"`
	Message         string    `json:"message,omitempty"`
}

// DashboardData aggregates everything the dashboard shows
type DashboardData struct {
	Timestamp       time.Time                `json:"timestamp"`
	DataSummary     DataSummary              `json:"data_summary"`
	ModelSummary    map[string]ModelSummary  `json:"model_summary"`
	BestModel       *HistoryEntry            `json:"best_model"`
	CurrentForecast *Forecast                `json:"current_forecast"`
	TrainingHistory map[string]HistorySeries `json:"training_history"`
	SystemStatus    SystemStatus             `json:"system_status"`
}
