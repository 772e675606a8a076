package predictor

import "github.com/hannes/name-predictor/config"

const (
	// DefaultSequenceLength is the input width the name model was trained with
	DefaultSequenceLength = 50
	// RareCharacterToken stands in for every character outside printable ASCII
	RareCharacterToken int32 = 96
	// PaddingValue fills sequences shorter than the model width
	PaddingValue int32 = 0

	firstPrintable = 32
	lastPrintable  = 126
)

// Encoder turns strings into fixed-length integer sequences for a model
type Encoder interface {
	EncodeBatch(values []string) [][]int32
	Close() error
}

// EncodeRune maps printable ASCII to 1..95 and everything else to RareCharacterToken
func EncodeRune(r rune) int32 {
	if r >= firstPrintable && r <= lastPrintable {
		return int32(r) - (firstPrintable - 1)
	}
	return RareCharacterToken
}

// EncodeString returns one code per character of s, without padding.
// Invalid UTF-8 bytes decode to U+FFFD and therefore map to RareCharacterToken.
func EncodeString(s string) []int32 {
	codes := make([]int32, 0, len(s))
	for _, r := range s {
		codes = append(codes, EncodeRune(r))
	}
	return codes
}

// FitSequence truncates or post-pads codes to exactly length values.
// With pre truncation the last length codes are kept, with post the first.
func FitSequence(codes []int32, length int, truncating string) []int32 {
	fitted := make([]int32, length)
	if len(codes) > length {
		if truncating == config.TruncatePost {
			codes = codes[:length]
		} else {
			codes = codes[len(codes)-length:]
		}
	}
	copy(fitted, codes)
	return fitted
}

// CharEncoder is the per-character encoder the name model was trained with
type CharEncoder struct {
	length     int
	truncating string
}

// NewCharEncoder creates a character encoder producing sequences of the given length
func NewCharEncoder(length int, truncating string) *CharEncoder {
	if length <= 0 {
		length = DefaultSequenceLength
	}
	if truncating == "" {
		truncating = config.TruncatePre
	}
	return &CharEncoder{
		length:     length,
		truncating: truncating,
	}
}

// Encode returns the fixed-length sequence for s
func (e *CharEncoder) Encode(s string) []int32 {
	return FitSequence(EncodeString(s), e.length, e.truncating)
}

// EncodeBatch encodes every value into its own fixed-length sequence
func (e *CharEncoder) EncodeBatch(values []string) [][]int32 {
	encoded := make([][]int32, len(values))
	for i, v := range values {
		encoded[i] = e.Encode(v)
	}
	return encoded
}

// Close implements the Encoder interface
func (e *CharEncoder) Close() error {
	// Character encoder holds no resources
	return nil
}
