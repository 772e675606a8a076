//go:build !tokenizers
// +build !tokenizers

package main

import (
	"fmt"

	"github.com/hannes/name-predictor/predictor"
)

// Stub used when the binary is built without the tokenizers tag, so the
// default build does not need libtokenizers at link time
func newTokenizerEncoder(path string, length int, truncating string) (predictor.Encoder, error) {
	return nil, fmt.Errorf("tokenizer %s requested but this binary was built without the tokenizers tag", path)
}
