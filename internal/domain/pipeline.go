package domain

import "time"

// TrainingReport is the outcome of a training run as returned to callers
type TrainingReport struct {
	BatchID     string           `json:"batch_id"`
	Policy      string           `json:"policy"`
	Results     []TrainingResult `json:"training_results"`
	Comparison  Comparison       `json:"comparison"`
	TotalModels int              `json:"total_models_trained"`
}

// PipelineResult is the outcome of a drift-check, retrain and forecast pass
type PipelineResult struct {
	Duration      float64         `json:"pipeline_duration"` // seconds
	Timestamp     time.Time       `json:"timestamp"`
	Drift         DriftAssessment `json:"drift_detection"`
	Retrained     bool            `json:"retrained"`
	Training      *TrainingReport `json:"model_training,omitempty"`
	BestModel     string          `json:"best_model"`
	IsImprovement bool            `json:"is_improvement"`
	Forecast      Forecast        `json:"forecast"`
}

// Performance returns the headline metrics of a result
func (r TrainingResult) Performance() ModelPerformance {
	return ModelPerformance{MAE: r.MAE, RMSE: r.RMSE, R2: r.R2, TrainingTime: r.TrainingTime}
}
