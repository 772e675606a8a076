// Package tokenizer encodes strings with a HuggingFace tokenizer.json for
// models that were exported together with a subword vocabulary instead of
// the character encoding.
package tokenizer

import (
	"fmt"

	"github.com/daulet/tokenizers"
	"github.com/hannes/name-predictor/predictor"
)

// Encoder implements predictor.Encoder with a pretrained tokenizer
type Encoder struct {
	tokenizer  *tokenizers.Tokenizer
	length     int
	truncating string
}

// NewEncoder loads tokenizer.json from path
func NewEncoder(path string, length int, truncating string) (*Encoder, error) {
	tk, err := tokenizers.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer: %w", err)
	}
	if length <= 0 {
		length = predictor.DefaultSequenceLength
	}
	return &Encoder{
		tokenizer:  tk,
		length:     length,
		truncating: truncating,
	}, nil
}

// toCodes converts token ids to model codes, clamping ids that do not fit an int32
func toCodes(ids []uint32) []int32 {
	const maxInt32 = uint32(1<<31 - 1)
	codes := make([]int32, len(ids))
	for i, id := range ids {
		if id > maxInt32 {
			id = maxInt32
		}
		// #nosec G115 - Clamped above
		codes[i] = int32(id)
	}
	return codes
}

// EncodeBatch tokenizes every value without special tokens and fits it to the model width
func (e *Encoder) EncodeBatch(values []string) [][]int32 {
	encoded := make([][]int32, len(values))
	for i, v := range values {
		ids, _ := e.tokenizer.Encode(v, false)
		encoded[i] = predictor.FitSequence(toCodes(ids), e.length, e.truncating)
	}
	return encoded
}

// Close implements the predictor.Encoder interface
func (e *Encoder) Close() error {
	if e.tokenizer == nil {
		return nil
	}
	if err := e.tokenizer.Close(); err != nil {
		return fmt.Errorf("failed to close tokenizer: %w", err)
	}
	return nil
}
