package domain

import (
	"context"
)

// ObservationRepository is the read side of the historical data store.
// Observations come back ordered by date, de-duplicated and validated.
type ObservationRepository interface {
	// ListObservations returns the full weekly series, oldest first
	ListObservations(ctx context.Context) ([]Observation, error)

	// Health checks connectivity
	Health(ctx context.Context) error
}

// HistoryStore is the durable, per-model bounded training history.
// Implementations keep at most HistoryLimit entries per model name.
type HistoryStore interface {
	// Append persists a run's entries, evicting the oldest per model when over the limit
	Append(ctx context.Context, entries []HistoryEntry) error

	// List returns every retained entry ordered by TrainedAt ascending
	List(ctx context.Context) ([]HistoryEntry, error)
}

// HistoryLimit is the number of entries retained per model name
const HistoryLimit = 50
