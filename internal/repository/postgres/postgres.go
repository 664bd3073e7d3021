package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iphwatch/backend/internal/domain"
)

// Schema creates the tables the repository reads and writes
const Schema = `
	CREATE TABLE IF NOT EXISTS iph_data (
		id              SERIAL PRIMARY KEY,
		tanggal         DATE NOT NULL UNIQUE,
		indikator_harga DOUBLE PRECISION NOT NULL
	);

	CREATE TABLE IF NOT EXISTS model_performance (
		id                 SERIAL PRIMARY KEY,
		model_name         VARCHAR(100) NOT NULL,
		batch_id           VARCHAR(200),
		mae                DOUBLE PRECISION NOT NULL,
		rmse               DOUBLE PRECISION,
		r2_score           DOUBLE PRECISION,
		cv_score           DOUBLE PRECISION,
		mape               DOUBLE PRECISION,
		training_time      DOUBLE PRECISION,
		data_size          INTEGER,
		test_size          INTEGER,
		is_best            BOOLEAN DEFAULT FALSE,
		feature_importance DOUBLE PRECISION[],
		trained_at         TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_model_performance_name_trained
		ON model_performance (model_name, trained_at);
`

// PostgresRepository implements domain.ObservationRepository and domain.HistoryStore
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// EnsureSchema creates missing tables
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("postgres: failed to ensure schema: %w", err)
	}
	return nil
}

// ListObservations retrieves the weekly series from PostgreSQL
func (r *PostgresRepository) ListObservations(ctx context.Context) ([]domain.Observation, error) {
	query := `
		SELECT tanggal, indikator_harga
		FROM iph_data
		WHERE indikator_harga IS NOT NULL
		ORDER BY tanggal ASC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query observations: %w", err)
	}
	defer rows.Close()

	var results []domain.Observation
	for rows.Next() {
		var o domain.Observation
		if err := rows.Scan(&o.Date, &o.Value); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan observation row: %w", err)
		}
		results = append(results, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: failed to read observations: %w", err)
	}

	return results, nil
}

// Append persists a run's results and prunes each model to the newest
// domain.HistoryLimit entries, in one transaction
func (r *PostgresRepository) Append(ctx context.Context, entries []domain.HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	insert := `
		INSERT INTO model_performance (
			model_name, batch_id, mae, rmse, r2_score, cv_score, mape,
			training_time, data_size, test_size, is_best, feature_importance, trained_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	batch := &pgx.Batch{}
	models := make(map[string]struct{})
	for _, e := range entries {
		batch.Queue(insert,
			e.ModelName, e.BatchID, e.MAE, e.RMSE, e.R2, e.CVScore, e.MAPE,
			e.TrainingTime, e.DataSize, e.TestSize, e.IsBest, e.FeatureImportance, e.TrainedAt,
		)
		models[e.ModelName] = struct{}{}
	}

	prune := `
		DELETE FROM model_performance
		WHERE model_name = $1 AND id NOT IN (
			SELECT id FROM model_performance
			WHERE model_name = $1
			ORDER BY trained_at DESC, id DESC
			LIMIT $2
		)
	`
	for name := range models {
		batch.Queue(prune, name, domain.HistoryLimit)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres: failed to save performance history: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: failed to commit performance history: %w", err)
	}

	return nil
}

// List retrieves the retained performance history, oldest first
func (r *PostgresRepository) List(ctx context.Context) ([]domain.HistoryEntry, error) {
	query := `
		SELECT model_name, COALESCE(batch_id, ''), mae,
			   COALESCE(rmse, 0), COALESCE(r2_score, 0), COALESCE(cv_score, 0), COALESCE(mape, 0),
			   COALESCE(training_time, 0), COALESCE(data_size, 0), COALESCE(test_size, 0),
			   COALESCE(is_best, FALSE), feature_importance, trained_at
		FROM model_performance
		ORDER BY trained_at ASC, id ASC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query performance history: %w", err)
	}
	defer rows.Close()

	var results []domain.HistoryEntry
	for rows.Next() {
		var e domain.HistoryEntry
		err := rows.Scan(
			&e.ModelName, &e.BatchID, &e.MAE,
			&e.RMSE, &e.R2, &e.CVScore, &e.MAPE,
			&e.TrainingTime, &e.DataSize, &e.TestSize,
			&e.IsBest, &e.FeatureImportance, &e.TrainedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan performance row: %w", err)
		}
		results = append(results, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: failed to read performance history: %w", err)
	}

	return results, nil
}

// Health checks database connectivity
func (r *PostgresRepository) Health(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: health check failed: %w", err)
	}
	return nil
}
