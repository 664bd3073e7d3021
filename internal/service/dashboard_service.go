package service

import (
	"context"
	"sync"
	"time"

	"github.com/iphwatch/backend/internal/domain"
	"github.com/iphwatch/backend/pkg/logger"
)

// DashboardService aggregates data, model and forecast state for display
type DashboardService struct {
	forecastSvc   *ForecastService
	forecastWeeks int
}

// NewDashboardService creates a new dashboard service. forecastWeeks is the
// horizon used when no forecast is held in memory.
func NewDashboardService(forecastSvc *ForecastService, forecastWeeks int) *DashboardService {
	if forecastWeeks == 0 {
		forecastWeeks = 8
	}
	return &DashboardService{
		forecastSvc:   forecastSvc,
		forecastWeeks: forecastWeeks,
	}
}

// GetDashboardData fetches all dashboard parts concurrently using goroutines
func (s *DashboardService) GetDashboardData(ctx context.Context) (domain.DashboardData, error) {
	var (
		data      domain.DashboardData
		available []domain.AvailableModel
		wg        sync.WaitGroup
		mu        sync.Mutex
		errs      []error
	)

	collect := func(fetch func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fetch(); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}()
	}

	// Each fetch writes its own field
	collect(func() (err error) {
		data.DataSummary, err = s.forecastSvc.DataSummary(ctx)
		return err
	})
	collect(func() (err error) {
		data.ModelSummary, err = s.forecastSvc.PerformanceSummary(ctx)
		return err
	})
	collect(func() (err error) {
		data.BestModel, err = s.forecastSvc.BestModel(ctx)
		return err
	})
	collect(func() (err error) {
		data.TrainingHistory, err = s.forecastSvc.HistorySeries(ctx)
		return err
	})
	collect(func() (err error) {
		available, err = s.forecastSvc.AvailableModels()
		return err
	})

	wg.Wait()

	// Log any errors that occurred
	for _, err := range errs {
		logger.Warn().Err(err).Msg("Dashboard data fetch error")
	}

	// Prefer the forecast in memory, otherwise forecast with the best model
	data.CurrentForecast = s.forecastSvc.LatestForecast()
	if data.CurrentForecast == nil && data.BestModel != nil {
		fc, err := s.forecastSvc.Forecast(ctx, data.BestModel.ModelName, s.forecastWeeks, domain.MethodDeterministic)
		if err != nil {
			logger.Warn().Err(err).Str("model", data.BestModel.ModelName).Msg("Dashboard forecast failed")
		} else {
			data.CurrentForecast = &fc
		}
	}

	data.SystemStatus = Status(data.DataSummary.TotalRecords, data.BestModel != nil, len(available))
	data.Timestamp = time.Now()

	// Even with errors, return what we have
	return data, ctx.Err()
}

// SystemStatus reports whether the service is ready to forecast
func (s *DashboardService) SystemStatus(ctx context.Context) domain.SystemStatus {
	summary, err := s.forecastSvc.DataSummary(ctx)
	if err != nil {
		return domain.SystemStatus{StatusMessage: "System error: " + err.Error(), StatusLevel: domain.StatusDanger}
	}
	best, err := s.forecastSvc.BestModel(ctx)
	if err != nil {
		return domain.SystemStatus{StatusMessage: "System error: " + err.Error(), StatusLevel: domain.StatusDanger}
	}
	available, err := s.forecastSvc.AvailableModels()
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to list model artifacts")
	}
	return Status(summary.TotalRecords, best != nil, len(available))
}

// Status derives the system status from data, model and artifact counts
func Status(records int, hasModels bool, artifacts int) domain.SystemStatus {
	st := domain.SystemStatus{
		HasData:     records > 0,
		HasModels:   hasModels,
		HasForecast: hasModels && artifacts > 0,
		DataRecords: records,
	}
	st.ReadyForUse = st.HasData && st.HasModels && st.HasForecast

	switch {
	case st.ReadyForUse:
		st.StatusMessage, st.StatusLevel = "System ready for forecasting", domain.StatusSuccess
	case st.HasData && st.HasModels:
		st.StatusMessage, st.StatusLevel = "System ready, forecast can be generated", domain.StatusInfo
	case st.HasData:
		st.StatusMessage, st.StatusLevel = "Data available, models need training", domain.StatusWarning
	default:
		st.StatusMessage, st.StatusLevel = "Please upload data to begin", domain.StatusDanger
	}
	return st
}
