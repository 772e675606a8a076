// Package store persists prediction runs so classified tables can be
// audited after the output file has moved on.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hannes/name-predictor/predictor"
)

// Run describes one invocation of the predictor over one input file
type Run struct {
	ID          uuid.UUID
	ModelPath   string
	InputPath   string
	OutputPath  string
	Rows        int
	PersonNames int
	StartedAt   time.Time
	FinishedAt  time.Time
}

// NewRun starts a run record with a fresh identifier
func NewRun(modelPath, inputPath, outputPath string) Run {
	return Run{
		ID:         uuid.New(),
		ModelPath:  modelPath,
		InputPath:  inputPath,
		OutputPath: outputPath,
		StartedAt:  time.Now().UTC(),
	}
}

// Finish records the outcome of the run
func (r *Run) Finish(predictions []predictor.Prediction) {
	r.Rows = len(predictions)
	r.PersonNames = predictor.CountPersonNames(predictions)
	r.FinishedAt = time.Now().UTC()
}

// RunStore defines the interface for run persistence
type RunStore interface {
	// StoreRun inserts the run or updates it when the ID already exists
	StoreRun(ctx context.Context, run Run) error

	// StorePredictions stores the per-row predictions of a run, in input order
	StorePredictions(ctx context.Context, runID uuid.UUID, predictions []predictor.Prediction) error

	// GetRun retrieves a run by ID
	GetRun(ctx context.Context, runID uuid.UUID) (Run, bool, error)

	// CountPredictions returns the number of stored predictions of a run
	CountPredictions(ctx context.Context, runID uuid.UUID) (int, error)

	// CleanupOldRuns removes runs started before now minus olderThan, with their predictions
	CleanupOldRuns(ctx context.Context, olderThan time.Duration) (int64, error)

	// Close closes the database connection
	Close() error
}
