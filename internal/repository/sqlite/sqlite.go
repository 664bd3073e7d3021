// Package sqlite is a local, file-backed performance history store used
// when no PostgreSQL database is configured.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"

	"github.com/iphwatch/backend/internal/domain"
)

const schema = `
	CREATE TABLE IF NOT EXISTS model_performance (
		id                 INTEGER PRIMARY KEY AUTOINCREMENT,
		model_name         TEXT NOT NULL,
		batch_id           TEXT NOT NULL DEFAULT '',
		mae                REAL,
		rmse               REAL,
		r2_score           REAL,
		cv_score           REAL,
		mape               REAL,
		training_time      REAL,
		data_size          INTEGER NOT NULL DEFAULT 0,
		test_size          INTEGER NOT NULL DEFAULT 0,
		is_best            INTEGER NOT NULL DEFAULT 0,
		feature_importance TEXT,
		trained_at         TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_model_performance_name_trained
		ON model_performance (model_name, trained_at);
`

// timeLayout is fixed-width so trained_at sorts correctly as text
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// HistoryStore implements domain.HistoryStore on SQLite
type HistoryStore struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema
func Open(path string) (*HistoryStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}
	// a single connection keeps :memory: databases shared and serializes writers
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=10000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: failed to set pragma: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to apply schema: %w", err)
	}
	return &HistoryStore{db: db}, nil
}

// Close closes the database
func (s *HistoryStore) Close() error {
	return s.db.Close()
}

// Append inserts the entries and prunes each touched model to the newest
// domain.HistoryLimit rows
func (s *HistoryStore) Append(ctx context.Context, entries []domain.HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	insert, err := tx.PrepareContext(ctx, `
		INSERT INTO model_performance (
			model_name, batch_id, mae, rmse, r2_score, cv_score, mape,
			training_time, data_size, test_size, is_best, feature_importance, trained_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("sqlite: failed to prepare insert: %w", err)
	}
	defer insert.Close()

	models := make(map[string]struct{})
	for _, e := range entries {
		importance, err := json.Marshal(e.FeatureImportance)
		if err != nil {
			return fmt.Errorf("sqlite: failed to encode feature importance: %w", err)
		}
		_, err = insert.ExecContext(ctx,
			e.ModelName, e.BatchID, nullable(e.MAE), nullable(e.RMSE), nullable(e.R2),
			nullable(e.CVScore), nullable(e.MAPE), e.TrainingTime, e.DataSize, e.TestSize,
			e.IsBest, string(importance), e.TrainedAt.UTC().Format(timeLayout),
		)
		if err != nil {
			return fmt.Errorf("sqlite: failed to insert %s: %w", e.ModelName, err)
		}
		models[e.ModelName] = struct{}{}
	}

	for name := range models {
		_, err := tx.ExecContext(ctx, `
			DELETE FROM model_performance
			WHERE model_name = ? AND id NOT IN (
				SELECT id FROM model_performance
				WHERE model_name = ?
				ORDER BY trained_at DESC, id DESC
				LIMIT ?
			)
		`, name, name, domain.HistoryLimit)
		if err != nil {
			return fmt.Errorf("sqlite: failed to prune %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: failed to commit: %w", err)
	}
	return nil
}

// List returns every retained entry, oldest first
func (s *HistoryStore) List(ctx context.Context) ([]domain.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT model_name, batch_id, mae, rmse, r2_score, cv_score, mape,
			   training_time, data_size, test_size, is_best, feature_importance, trained_at
		FROM model_performance
		ORDER BY trained_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query history: %w", err)
	}
	defer rows.Close()

	var out []domain.HistoryEntry
	for rows.Next() {
		var (
			e                            domain.HistoryEntry
			mae, rmse, r2, cv, mape, dur sql.NullFloat64
			importance                   sql.NullString
			trainedAt                    string
		)
		err := rows.Scan(
			&e.ModelName, &e.BatchID, &mae, &rmse, &r2, &cv, &mape,
			&dur, &e.DataSize, &e.TestSize, &e.IsBest, &importance, &trainedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan history row: %w", err)
		}

		e.MAE, e.RMSE, e.R2 = orNaN(mae), orNaN(rmse), orNaN(r2)
		e.CVScore, e.MAPE, e.TrainingTime = orNaN(cv), orNaN(mape), dur.Float64
		if importance.Valid && importance.String != "" {
			if err := json.Unmarshal([]byte(importance.String), &e.FeatureImportance); err != nil {
				return nil, fmt.Errorf("sqlite: failed to decode feature importance: %w", err)
			}
		}
		if e.TrainedAt, err = time.Parse(timeLayout, trainedAt); err != nil {
			return nil, fmt.Errorf("sqlite: failed to parse trained_at: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: failed to read history: %w", err)
	}
	return out, nil
}

// nullable stores NaN as NULL, which SQLite would otherwise reject
func nullable(v float64) any {
	if math.IsNaN(v) {
		return nil
	}
	return v
}

func orNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
