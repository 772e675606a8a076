package predictor

import (
	"context"
	"fmt"
	"sort"
)

const (
	ModelBackendONNX = "onnx"
)

// Model scores batches of encoded sequences, one score per row
type Model interface {
	Name() string
	Predict(ctx context.Context, batch [][]int32) ([]float32, error)
	Close() error
}

// ModelOptions holds everything a backend needs to load a model
type ModelOptions struct {
	Path              string
	InputName         string
	OutputName        string
	SharedLibraryPath string
	SequenceLength    int
}

type NewModelFunc func(opts ModelOptions) (Model, error)

var modelFactories = make(map[string]NewModelFunc)

func RegisterModelFactory(name string, factory NewModelFunc) {
	modelFactories[name] = factory
}

func NewModel(name string, opts ModelOptions) (Model, error) {
	factory, ok := modelFactories[name]
	if !ok {
		return nil, fmt.Errorf("model factory not found for name: %s (available: %v)", name, ModelBackends())
	}
	return factory(opts)
}

// ModelBackends lists the registered backend names
func ModelBackends() []string {
	names := make([]string, 0, len(modelFactories))
	for name := range modelFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func CloseModel(model Model) error {
	return model.Close()
}
