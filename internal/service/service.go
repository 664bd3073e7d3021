package service

import (
	"errors"

	"github.com/iphwatch/backend/internal/domain"
)

// ObservationRepository is re-exported from domain for convenience
type ObservationRepository = domain.ObservationRepository

var (
	// ErrNoHistoricalData is returned when the repository holds no observations
	ErrNoHistoricalData = errors.New("service: no historical data found")

	// ErrUnknownModel is returned for model names outside the catalog
	ErrUnknownModel = errors.New("service: unknown model")

	// ErrNoTrainedModel is returned when a forecast needs a best model but none was trained
	ErrNoTrainedModel = errors.New("service: no trained models available")
)
