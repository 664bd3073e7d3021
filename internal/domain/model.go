package domain

import "time"

// TrainingResult is the outcome of one variant in one training run
type TrainingResult struct {
	ModelName         string    `json:"model_name"`
	MAE               float64   `json:"mae"`
	RMSE              float64   `json:"rmse"`
	R2                float64   `json:"r2_score"`
	MAPE              float64   `json:"mape"`
	CVScore           float64   `json:"cv_score"`
	TrainingTime      float64   `json:"training_time"` // seconds
	DataSize          int       `json:"data_size"`
	TestSize          int       `json:"test_size"`
	FeatureImportance []float64 `json:"feature_importance,omitempty"`
	IsBest            bool      `json:"is_best"`
	TrainedAt         time.Time `json:"trained_at"`
}

// HistoryEntry is a persisted training result tagged with its run
type HistoryEntry struct {
	TrainingResult
	BatchID string `json:"batch_id"`
}

// ModelPerformance is the headline performance shown next to a forecast
type ModelPerformance struct {
	MAE          float64 `json:"mae"`
	RMSE         float64 `json:"rmse"`
	R2           float64 `json:"r2_score"`
	TrainingTime float64 `json:"training_time"`
}

// ModelSummary aggregates a model's history for comparison views
type ModelSummary struct {
	Name            string  `json:"name"`
	BestMAE         float64 `json:"best_mae"`
	LatestMAE       float64 `json:"latest_mae"`
	LatestR2        float64 `json:"latest_r2"`
	TrainingCount   int     `json:"training_count"`
	AvgTrainingTime float64 `json:"avg_training_time"`
	TrendDirection  string  `json:"trend_direction"` // "improving", "declining", "stable"
	IsBest          bool    `json:"is_best"`
}

// Comparison describes a new best model against the previous one.
// Percent changes are positive when the new model is better.
type Comparison struct {
	NewBest       *HistoryEntry `json:"new_best_model"`
	PreviousBest  *HistoryEntry `json:"previous_best_model,omitempty"`
	MAEChange     float64       `json:"mae_change"`
	RMSEChange    float64       `json:"rmse_change"`
	R2Change      float64       `json:"r2_change"`
	IsImprovement bool          `json:"is_improvement"`
}

// HistorySeries is per-model chart data
type HistorySeries struct {
	Timestamps []time.Time `json:"timestamps"`
	MAEValues  []float64   `json:"mae_values"`
	R2Values   []float64   `json:"r2_values"`
}

// AvailableModel describes a persisted artifact on disk
type AvailableModel struct {
	Name     string    `json:"name"`
	Filename string    `json:"filename"`
	SizeMB   float64   `json:"size_mb"`
	Modified time.Time `json:"modified"`
}
