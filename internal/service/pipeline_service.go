package service

import (
	"context"
	"time"

	"github.com/iphwatch/backend/internal/domain"
	"github.com/iphwatch/backend/pkg/logger"
)

// backgroundTrainTimeout bounds a retrain started outside a request
const backgroundTrainTimeout = 10 * time.Minute

// Train runs a full training pass and persists it. Only one training run
// executes at a time.
func (s *ForecastService) Train(ctx context.Context) (*domain.TrainingReport, error) {
	s.trainMu.Lock()
	defer s.trainMu.Unlock()

	obs, err := s.observations(ctx)
	if err != nil {
		return nil, err
	}
	run, err := s.trainer.Run(ctx, obs)
	if err != nil {
		return nil, err
	}
	cmp := s.manager.SaveRun(ctx, run)

	return &domain.TrainingReport{
		BatchID:     run.BatchID,
		Policy:      run.Policy,
		Results:     run.Results,
		Comparison:  cmp,
		TotalModels: len(run.Results),
	}, nil
}

// RetrainOnly trains every model and forecasts with the new best
func (s *ForecastService) RetrainOnly(ctx context.Context, weeks int, method string) (*domain.PipelineResult, error) {
	start := s.now()
	report, err := s.Train(ctx)
	if err != nil {
		return nil, err
	}

	best := report.Comparison.NewBest
	fc, err := s.Forecast(ctx, best.ModelName, weeks, method)
	if err != nil {
		return nil, err
	}
	return &domain.PipelineResult{
		Duration:      time.Since(start).Seconds(),
		Timestamp:     s.now(),
		Drift:         domain.DriftAssessment{Signals: []string{}, Recommendation: domain.RecommendMonitor},
		Retrained:     true,
		Training:      report,
		BestModel:     best.ModelName,
		IsImprovement: report.Comparison.IsImprovement,
		Forecast:      fc,
	}, nil
}

// RunPipeline checks for drift, retrains when drift is found or no model
// has been trained yet, then forecasts with the current best model
func (s *ForecastService) RunPipeline(ctx context.Context, weeks int, method string) (*domain.PipelineResult, error) {
	start := s.now()
	result := &domain.PipelineResult{}

	result.Drift = s.CheckDrift(ctx)
	if result.Drift.DriftDetected {
		logger.Warn().Strs("signals", result.Drift.Signals).Msg("Drift detected, forcing retrain")
	}

	best, err := s.manager.CurrentBest(ctx)
	if err != nil {
		return nil, err
	}
	if result.Drift.DriftDetected || best == nil {
		report, err := s.Train(ctx)
		if err != nil {
			return nil, err
		}
		result.Retrained = true
		result.Training = report
		result.IsImprovement = report.Comparison.IsImprovement

		if best, err = s.manager.CurrentBest(ctx); err != nil {
			return nil, err
		}
	} else {
		logger.Info().Str("best_model", best.ModelName).Msg("Using existing models, no drift detected")
	}
	if best == nil {
		return nil, ErrNoTrainedModel
	}

	fc, err := s.Forecast(ctx, best.ModelName, weeks, method)
	if err != nil {
		return nil, err
	}
	result.BestModel = best.ModelName
	result.Forecast = fc
	result.Timestamp = s.now()
	result.Duration = time.Since(start).Seconds()

	logger.Info().
		Bool("retrained", result.Retrained).
		Str("best_model", result.BestModel).
		Float64("duration", result.Duration).
		Msg("Pipeline completed")
	return result, nil
}

// TriggerRetrain starts a training run in the background
func (s *ForecastService) TriggerRetrain() {
	s.wgBg.Add(1)
	go func() {
		defer s.wgBg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), backgroundTrainTimeout)
		defer cancel()
		if _, err := s.Train(ctx); err != nil {
			logger.Error().Err(err).Msg("Background retrain failed")
		}
	}()
}

// WaitBackground blocks until all background training completes.
// Call during graceful shutdown to avoid dropped writes.
func (s *ForecastService) WaitBackground() {
	s.wgBg.Wait()
}
