package postgres

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/iphwatch/backend/internal/domain"
)

// mockWeeks is the length of the synthetic series
const mockWeeks = 104

// MockRepository implements domain.ObservationRepository for testing/demo mode
type MockRepository struct {
	observations []domain.Observation
}

// NewMockRepository creates a new mock repository backed by a reproducible
// synthetic weekly series with a yearly cycle and mild noise
func NewMockRepository() *MockRepository {
	rng := rand.New(rand.NewSource(42))
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

	obs := make([]domain.Observation, mockWeeks)
	for i := range obs {
		season := 0.8 * math.Sin(2*math.Pi*float64(i)/52)
		obs[i] = domain.Observation{
			Date:  start.AddDate(0, 0, 7*i),
			Value: 0.5 + season + 0.15*rng.NormFloat64(),
		}
	}
	return &MockRepository{observations: obs}
}

// ListObservations returns the synthetic series
func (r *MockRepository) ListObservations(ctx context.Context) ([]domain.Observation, error) {
	out := make([]domain.Observation, len(r.observations))
	copy(out, r.observations)
	return out, nil
}

// Health always returns nil in mock mode
func (r *MockRepository) Health(ctx context.Context) error {
	return nil
}
