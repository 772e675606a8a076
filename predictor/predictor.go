// Package predictor classifies strings as person names with a pretrained
// sequence model: each string is encoded to a fixed-length sequence, scored
// by the model and thresholded.
package predictor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hannes/name-predictor/table"
	"golang.org/x/time/rate"
)

const (
	// ColumnString holds the values to classify
	ColumnString = "string"
	// ColumnIsPersonName receives the boolean classification
	ColumnIsPersonName = "is_person_name"
	// ColumnProbabilities receives the raw model score when requested
	ColumnProbabilities = "probabilities"

	DefaultBatchSize = 32
	DefaultThreshold = 0.5
)

// ErrNoModel is returned when a predictor is created without a model
var ErrNoModel = errors.New("no model loaded")

// Options controls batching, thresholding and progress output.
// A nil Threshold selects DefaultThreshold; zero is a valid threshold.
type Options struct {
	BatchSize int
	Threshold *float64
	Verbose   bool
}

// Prediction is the classification of a single string
type Prediction struct {
	Text         string
	Score        float32
	IsPersonName bool
}

// NamePredictor encodes strings, runs the model and thresholds the scores
type NamePredictor struct {
	model     Model
	encoder   Encoder
	opts      Options
	threshold float64
	progress  *rate.Sometimes
}

// New creates a predictor around a loaded model. A nil encoder selects the character encoder.
func New(model Model, encoder Encoder, opts Options) (*NamePredictor, error) {
	if model == nil {
		return nil, ErrNoModel
	}
	if encoder == nil {
		encoder = NewCharEncoder(DefaultSequenceLength, "")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	threshold := DefaultThreshold
	if opts.Threshold != nil {
		threshold = *opts.Threshold
	}
	return &NamePredictor{
		model:     model,
		encoder:   encoder,
		opts:      opts,
		threshold: threshold,
		progress:  &rate.Sometimes{First: 1, Interval: 2 * time.Second},
	}, nil
}

// IsPersonName reports whether a score is strictly above the threshold
func IsPersonName(score float32, threshold float64) bool {
	return float64(score) > threshold
}

func (p *NamePredictor) logf(format string, args ...interface{}) {
	if p.opts.Verbose {
		log.Printf("[Predictor] "+format, args...)
	}
}

// Predict classifies every value, running the model in batches
func (p *NamePredictor) Predict(ctx context.Context, values []string) ([]Prediction, error) {
	p.logf("Encoding data...")
	encoded := p.encoder.EncodeBatch(values)

	p.logf("Predicting %d samples...", len(encoded))
	predictions := make([]Prediction, 0, len(values))
	for start := 0; start < len(encoded); start += p.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := start + p.opts.BatchSize
		if end > len(encoded) {
			end = len(encoded)
		}

		scores, err := p.model.Predict(ctx, encoded[start:end])
		if err != nil {
			return nil, fmt.Errorf("failed to predict rows %d-%d: %w", start+1, end, err)
		}
		if len(scores) != end-start {
			return nil, fmt.Errorf("model returned %d scores for %d rows", len(scores), end-start)
		}

		for i, score := range scores {
			predictions = append(predictions, Prediction{
				Text:         values[start+i],
				Score:        score,
				IsPersonName: IsPersonName(score, p.threshold),
			})
		}

		if p.opts.Verbose {
			done := end
			p.progress.Do(func() {
				log.Printf("[Predictor] Scored %d/%d samples", done, len(encoded))
			})
		}
	}

	return predictions, nil
}

// PredictTable classifies the string column and writes the result columns back into t
func (p *NamePredictor) PredictTable(ctx context.Context, t *table.Table, withProbabilities bool) ([]Prediction, error) {
	values, err := t.Column(ColumnString)
	if err != nil {
		return nil, err
	}

	predictions, err := p.Predict(ctx, values)
	if err != nil {
		return nil, err
	}

	if withProbabilities {
		probabilities := make([]string, len(predictions))
		for i, pred := range predictions {
			probabilities[i] = table.FormatFloat32(pred.Score)
		}
		if err := t.SetColumn(ColumnProbabilities, probabilities); err != nil {
			return nil, err
		}
	}

	labels := make([]string, len(predictions))
	for i, pred := range predictions {
		labels[i] = table.FormatBool(pred.IsPersonName)
	}
	if err := t.SetColumn(ColumnIsPersonName, labels); err != nil {
		return nil, err
	}

	return predictions, nil
}

// PredictFile reads the input table, classifies it and writes the output table
func (p *NamePredictor) PredictFile(ctx context.Context, inputPath, outputPath string, withProbabilities bool) ([]Prediction, error) {
	p.logf("Reading %s...", inputPath)
	t, err := table.ReadTSV(inputPath)
	if err != nil {
		return nil, err
	}

	predictions, err := p.PredictTable(ctx, t, withProbabilities)
	if err != nil {
		return nil, err
	}

	p.logf("Saving %s...", outputPath)
	if err := t.WriteTSV(outputPath); err != nil {
		return nil, err
	}
	return predictions, nil
}

// CountPersonNames returns how many predictions were classified as person names
func CountPersonNames(predictions []Prediction) int {
	n := 0
	for _, pred := range predictions {
		if pred.IsPersonName {
			n++
		}
	}
	return n
}

// Close releases the model and the encoder
func (p *NamePredictor) Close() error {
	var errs []error
	if err := CloseModel(p.model); err != nil {
		errs = append(errs, err)
	}
	if err := p.encoder.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
