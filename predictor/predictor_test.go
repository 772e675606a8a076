package predictor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hannes/name-predictor/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeModel scores each row with a function and records the batch sizes it saw
type fakeModel struct {
	score   func(row []int32) float32
	err     error
	batches []int
	closed  bool
}

func (f *fakeModel) Name() string { return "fake" }

func (f *fakeModel) Predict(ctx context.Context, batch [][]int32) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.batches = append(f.batches, len(batch))
	scores := make([]float32, len(batch))
	for i, row := range batch {
		scores[i] = f.score(row)
	}
	return scores, nil
}

func (f *fakeModel) Close() error {
	f.closed = true
	return nil
}

// capitalScore gives 0.9 to strings starting with an upper-case letter
func capitalScore(row []int32) float32 {
	if row[0] >= EncodeRune('A') && row[0] <= EncodeRune('Z') {
		return 0.9
	}
	return 0.1
}

func TestNew_RequiresModel(t *testing.T) {
	_, err := New(nil, nil, Options{})
	assert.ErrorIs(t, err, ErrNoModel)
}

func TestNew_Defaults(t *testing.T) {
	p, err := New(&fakeModel{score: capitalScore}, nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, DefaultBatchSize, p.opts.BatchSize)
	assert.IsType(t, &CharEncoder{}, p.encoder)
}

func TestNew_DefaultThreshold(t *testing.T) {
	low := &fakeModel{score: func(row []int32) float32 { return 0.1 }}
	p, err := New(low, nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, DefaultThreshold, p.threshold)

	predictions, err := p.Predict(context.Background(), []string{"acme"})
	require.NoError(t, err)
	require.Len(t, predictions, 1)
	assert.Equal(t, float32(0.1), predictions[0].Score)
	assert.False(t, predictions[0].IsPersonName)
}

func TestNew_ExplicitZeroThreshold(t *testing.T) {
	zero := 0.0
	low := &fakeModel{score: func(row []int32) float32 { return 0.1 }}
	p, err := New(low, nil, Options{Threshold: &zero})
	require.NoError(t, err)

	predictions, err := p.Predict(context.Background(), []string{"acme"})
	require.NoError(t, err)
	assert.True(t, predictions[0].IsPersonName)
}

func TestIsPersonName_StrictlyAboveThreshold(t *testing.T) {
	testCases := []struct {
		score    float32
		expected bool
	}{
		{score: 0, expected: false},
		{score: 0.49, expected: false},
		{score: 0.5, expected: false},
		{score: 0.5000001, expected: true},
		{score: 1, expected: true},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, IsPersonName(tc.score, DefaultThreshold), "score %g", tc.score)
	}
}

func TestPredict_Batches(t *testing.T) {
	model := &fakeModel{score: capitalScore}
	p, err := New(model, nil, Options{BatchSize: 2})
	require.NoError(t, err)

	values := []string{"Alice", "acme", "Bob", "widget", "Carol"}
	predictions, err := p.Predict(context.Background(), values)
	require.NoError(t, err)

	assert.Equal(t, []int{2, 2, 1}, model.batches)
	require.Len(t, predictions, len(values))
	for i, pred := range predictions {
		assert.Equal(t, values[i], pred.Text)
		assert.Equal(t, pred.Score > 0.5, pred.IsPersonName)
	}
	assert.Equal(t, 3, CountPersonNames(predictions))
}

func TestPredict_ModelError(t *testing.T) {
	model := &fakeModel{err: errors.New("boom")}
	p, err := New(model, nil, Options{})
	require.NoError(t, err)

	_, err = p.Predict(context.Background(), []string{"Alice"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestPredict_ScoreCountMismatch(t *testing.T) {
	p, err := New(&shortModel{}, nil, Options{})
	require.NoError(t, err)

	_, err = p.Predict(context.Background(), []string{"Alice", "Bob"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model returned 1 scores for 2 rows")
}

func TestPredict_CanceledContext(t *testing.T) {
	model := &fakeModel{score: capitalScore}
	p, err := New(model, nil, Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = p.Predict(ctx, []string{"Alice"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, model.batches)
}

func TestPredict_Empty(t *testing.T) {
	model := &fakeModel{score: capitalScore}
	p, err := New(model, nil, Options{})
	require.NoError(t, err)

	predictions, err := p.Predict(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, predictions)
	assert.Empty(t, model.batches)
}

func TestPredictTable_PreservesColumns(t *testing.T) {
	tbl, err := table.New(
		[]string{"id", "string", "source"},
		[][]string{{"1", "Alice", "crm"}, {"2", "acme", "ledger"}},
	)
	require.NoError(t, err)

	p, err := New(&fakeModel{score: capitalScore}, nil, Options{})
	require.NoError(t, err)

	_, err = p.PredictTable(context.Background(), tbl, false)
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "string", "source", "is_person_name"}, tbl.Header())
	assert.Equal(t, 2, tbl.Len())
	assert.Equal(t, []string{"1", "Alice", "crm", "True"}, tbl.Row(0))
	assert.Equal(t, []string{"2", "acme", "ledger", "False"}, tbl.Row(1))
}

func TestPredictTable_WithProbabilities(t *testing.T) {
	tbl, err := table.New([]string{"string"}, [][]string{{"Alice"}, {"acme"}})
	require.NoError(t, err)

	p, err := New(&fakeModel{score: capitalScore}, nil, Options{})
	require.NoError(t, err)

	_, err = p.PredictTable(context.Background(), tbl, true)
	require.NoError(t, err)

	assert.Equal(t, []string{"string", "probabilities", "is_person_name"}, tbl.Header())
	assert.Equal(t, []string{"Alice", "0.9", "True"}, tbl.Row(0))
	assert.Equal(t, []string{"acme", "0.1", "False"}, tbl.Row(1))
}

func TestPredictTable_MissingStringColumn(t *testing.T) {
	tbl, err := table.New([]string{"name"}, [][]string{{"Alice"}})
	require.NoError(t, err)

	model := &fakeModel{score: capitalScore}
	p, err := New(model, nil, Options{})
	require.NoError(t, err)

	_, err = p.PredictTable(context.Background(), tbl, false)
	assert.ErrorIs(t, err, table.ErrMissingColumn)
	assert.Empty(t, model.batches)
}

func TestPredictFile(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "input.tsv")
	output := filepath.Join(dir, "output.tsv")
	require.NoError(t, os.WriteFile(input, []byte("string\tcountry\nAlice\tUK\nacme ltd\tUS\nZoë\tDE\n"), 0600))

	p, err := New(&fakeModel{score: capitalScore}, nil, Options{})
	require.NoError(t, err)

	predictions, err := p.PredictFile(context.Background(), input, output, true)
	require.NoError(t, err)
	require.Len(t, predictions, 3)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	assert.Equal(t, []string{
		"string\tcountry\tprobabilities\tis_person_name",
		"Alice\tUK\t0.9\tTrue",
		"acme ltd\tUS\t0.1\tFalse",
		"Zoë\tDE\t0.9\tTrue",
	}, lines)
}

func TestPredictFile_MissingInput(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "output.tsv")

	p, err := New(&fakeModel{score: capitalScore}, nil, Options{})
	require.NoError(t, err)

	_, err = p.PredictFile(context.Background(), filepath.Join(dir, "missing.tsv"), output, false)
	require.Error(t, err)

	_, statErr := os.Stat(output)
	assert.True(t, os.IsNotExist(statErr), "no output should be written when the input cannot be read")
}

func TestClose_ClosesModel(t *testing.T) {
	model := &fakeModel{score: capitalScore}
	p, err := New(model, nil, Options{})
	require.NoError(t, err)

	require.NoError(t, p.Close())
	assert.True(t, model.closed)
}

// shortModel always returns a single score
type shortModel struct{}

func (s *shortModel) Name() string { return "short" }

func (s *shortModel) Predict(ctx context.Context, batch [][]int32) ([]float32, error) {
	return []float32{0.7}, nil
}

func (s *shortModel) Close() error { return nil }
