package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hannes/name-predictor/predictor"
	"github.com/lib/pq"
)

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host         string
	Port         int
	Database     string
	Username     string
	Password     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

// PostgresRunStore implements RunStore for PostgreSQL
type PostgresRunStore struct {
	db *sql.DB
}

// connectionString builds the lib/pq key/value connection string
func connectionString(config DatabaseConfig) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.Username, config.Password, config.Database, config.SSLMode)
}

// NewPostgresRunStore creates a new PostgreSQL run store
func NewPostgresRunStore(ctx context.Context, config DatabaseConfig) (*PostgresRunStore, error) {
	// Open database connection
	db, err := sql.Open("postgres", connectionString(config))
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.MaxLifetime)

	// Test connection
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Create tables if they don't exist
	if err := createTablesIfNotExist(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &PostgresRunStore{db: db}, nil
}

// createTablesIfNotExist creates the prediction_runs and predictions tables
func createTablesIfNotExist(ctx context.Context, db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS prediction_runs (
		id UUID PRIMARY KEY,
		model_path TEXT NOT NULL,
		input_path TEXT NOT NULL,
		output_path TEXT NOT NULL,
		row_count INTEGER NOT NULL DEFAULT 0,
		person_name_count INTEGER NOT NULL DEFAULT 0,
		started_at TIMESTAMP WITH TIME ZONE NOT NULL,
		finished_at TIMESTAMP WITH TIME ZONE
	);

	CREATE TABLE IF NOT EXISTS predictions (
		run_id UUID NOT NULL REFERENCES prediction_runs(id) ON DELETE CASCADE,
		row_index INTEGER NOT NULL,
		text TEXT NOT NULL,
		score REAL NOT NULL,
		is_person_name BOOLEAN NOT NULL,
		PRIMARY KEY (run_id, row_index)
	);

	-- Create indexes for better performance
	CREATE INDEX IF NOT EXISTS idx_prediction_runs_started_at ON prediction_runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_predictions_is_person_name ON predictions(is_person_name);
	`

	_, err := db.ExecContext(ctx, query)
	return err
}

// nullTime maps the zero time to NULL
func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

// StoreRun inserts the run or updates its outcome when it already exists
func (p *PostgresRunStore) StoreRun(ctx context.Context, run Run) error {
	query := `
	INSERT INTO prediction_runs (id, model_path, input_path, output_path, row_count, person_name_count, started_at, finished_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (id)
	DO UPDATE SET
		row_count = EXCLUDED.row_count,
		person_name_count = EXCLUDED.person_name_count,
		finished_at = EXCLUDED.finished_at
	`

	_, err := p.db.ExecContext(ctx, query, run.ID, run.ModelPath, run.InputPath, run.OutputPath,
		run.Rows, run.PersonNames, run.StartedAt, nullTime(run.FinishedAt))
	return err
}

// StorePredictions bulk-loads the predictions of a run with COPY in a single transaction
func (p *PostgresRunStore) StorePredictions(ctx context.Context, runID uuid.UUID, predictions []predictor.Prediction) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("predictions", "run_id", "row_index", "text", "score", "is_person_name"))
	if err != nil {
		return fmt.Errorf("failed to prepare copy: %w", err)
	}

	for i, pred := range predictions {
		if _, err := stmt.ExecContext(ctx, runID, i, pred.Text, float64(pred.Score), pred.IsPersonName); err != nil {
			_ = stmt.Close()
			return fmt.Errorf("failed to copy prediction %d: %w", i, err)
		}
	}

	// Flush buffered rows
	if _, err := stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		return fmt.Errorf("failed to flush copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("failed to close copy: %w", err)
	}

	return tx.Commit()
}

// GetRun retrieves a run by ID
func (p *PostgresRunStore) GetRun(ctx context.Context, runID uuid.UUID) (Run, bool, error) {
	query := `
	SELECT id, model_path, input_path, output_path, row_count, person_name_count, started_at, finished_at
	FROM prediction_runs
	WHERE id = $1
	`

	var run Run
	var finishedAt sql.NullTime
	err := p.db.QueryRowContext(ctx, query, runID).Scan(&run.ID, &run.ModelPath, &run.InputPath, &run.OutputPath,
		&run.Rows, &run.PersonNames, &run.StartedAt, &finishedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return Run{}, false, nil
		}
		return Run{}, false, err
	}
	if finishedAt.Valid {
		run.FinishedAt = finishedAt.Time
	}
	return run, true, nil
}

// CountPredictions returns the number of stored predictions of a run
func (p *PostgresRunStore) CountPredictions(ctx context.Context, runID uuid.UUID) (int, error) {
	var count int
	err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM predictions WHERE run_id = $1`, runID).Scan(&count)
	return count, err
}

// CleanupOldRuns removes runs older than the specified duration; predictions cascade
func (p *PostgresRunStore) CleanupOldRuns(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `DELETE FROM prediction_runs WHERE started_at < $1`

	cutoff := time.Now().UTC().Add(-olderThan)
	result, err := p.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Close closes the database connection
func (p *PostgresRunStore) Close() error {
	return p.db.Close()
}
