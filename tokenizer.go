//go:build tokenizers
// +build tokenizers

package main

import (
	"github.com/hannes/name-predictor/predictor"
	"github.com/hannes/name-predictor/predictor/tokenizer"
)

func newTokenizerEncoder(path string, length int, truncating string) (predictor.Encoder, error) {
	encoder, err := tokenizer.NewEncoder(path, length, truncating)
	if err != nil {
		return nil, err
	}
	return encoder, nil
}
