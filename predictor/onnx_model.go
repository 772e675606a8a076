package predictor

import (
	"context"
	"fmt"
	"log"
	"os"

	onnxruntime "github.com/yalue/onnxruntime_go"
)

// ONNXModel runs a Keras name classifier exported to ONNX
type ONNXModel struct {
	session        *onnxruntime.DynamicAdvancedSession
	inputName      string
	outputName     string
	inputType      onnxruntime.TensorElementDataType
	sequenceLength int
	modelPath      string
}

func init() {
	RegisterModelFactory(ModelBackendONNX, func(opts ModelOptions) (Model, error) {
		return NewONNXModel(opts)
	})
}

// sharedLibraryCandidates are probed when no library path is configured
var sharedLibraryCandidates = []string{
	"./libonnxruntime.so",
	"./build/libonnxruntime.so",
	"/usr/local/lib/libonnxruntime.so",
	"/usr/lib/libonnxruntime.so",
	"./libonnxruntime.dylib",
	"./build/libonnxruntime.dylib",
	"/opt/homebrew/lib/libonnxruntime.dylib",
}

// resolveSharedLibraryPath picks the onnxruntime library to load.
// The environment variable wins over the configured path, then the candidates are probed.
func resolveSharedLibraryPath(configured string, candidates []string) string {
	if envPath := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"); envPath != "" {
		return envPath
	}
	if configured != "" {
		return configured
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// NewONNXModel loads the model at opts.Path and prepares an inference session
func NewONNXModel(opts ModelOptions) (*ONNXModel, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("model path is required for ONNX model")
	}
	if _, err := os.Stat(opts.Path); err != nil {
		return nil, fmt.Errorf("failed to access model file: %w", err)
	}
	if opts.SequenceLength <= 0 {
		opts.SequenceLength = DefaultSequenceLength
	}

	// Fall back to the platform default when nothing was found; this works if the library is on the loader path
	if libPath := resolveSharedLibraryPath(opts.SharedLibraryPath, sharedLibraryCandidates); libPath != "" {
		onnxruntime.SetSharedLibraryPath(libPath)
	}

	// Initialize ONNX Runtime environment only if not already initialized
	if !onnxruntime.IsInitialized() {
		if err := onnxruntime.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX Runtime environment: %w", err)
		}
	}

	m := &ONNXModel{
		inputName:      opts.InputName,
		outputName:     opts.OutputName,
		inputType:      onnxruntime.TensorElementDataTypeFloat,
		sequenceLength: opts.SequenceLength,
		modelPath:      opts.Path,
	}

	if err := m.inspect(); err != nil {
		m.destroyEnvironment()
		return nil, err
	}

	session, err := onnxruntime.NewDynamicAdvancedSession(m.modelPath,
		[]string{m.inputName},
		[]string{m.outputName},
		nil)
	if err != nil {
		m.destroyEnvironment()
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	m.session = session

	log.Printf("[ONNX] Loaded %s (input %s %v, output %s)", m.modelPath, m.inputName, m.inputType, m.outputName)
	return m, nil
}

// inspect fills in input/output names and the input element type from the model graph
func (m *ONNXModel) inspect() error {
	inputs, outputs, err := onnxruntime.GetInputOutputInfo(m.modelPath)
	if err != nil {
		return fmt.Errorf("failed to read model inputs and outputs: %w", err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return fmt.Errorf("model must have at least one input and one output (got %d inputs, %d outputs)", len(inputs), len(outputs))
	}

	input := inputs[0]
	if m.inputName != "" {
		found := false
		for _, info := range inputs {
			if info.Name == m.inputName {
				input = info
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("model has no input named %q", m.inputName)
		}
	}
	m.inputName = input.Name
	m.inputType = input.DataType

	// A fixed second dimension must agree with the encoder width
	if len(input.Dimensions) == 2 && input.Dimensions[1] > 0 && input.Dimensions[1] != int64(m.sequenceLength) {
		return fmt.Errorf("model input %s expects sequences of length %d, encoder produces %d",
			input.Name, input.Dimensions[1], m.sequenceLength)
	}

	if m.outputName == "" {
		m.outputName = outputs[0].Name
	}
	return nil
}

// Name returns the backend name
func (m *ONNXModel) Name() string {
	return ModelBackendONNX
}

// Predict runs one inference call over the batch and returns one score per row
func (m *ONNXModel) Predict(ctx context.Context, batch [][]int32) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(batch) == 0 {
		return []float32{}, nil
	}

	shape := onnxruntime.NewShape(int64(len(batch)), int64(m.sequenceLength))
	input, err := newInputTensor(m.inputType, shape, batch, m.sequenceLength)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer func() {
		if err := input.Destroy(); err != nil {
			log.Printf("[ONNX] Warning: failed to destroy input tensor: %v", err)
		}
	}()

	// A nil output is allocated by onnxruntime with the shape the graph produces
	outputs := []onnxruntime.Value{nil}
	if err := m.session.Run([]onnxruntime.Value{input}, outputs); err != nil {
		return nil, fmt.Errorf("failed to run inference: %w", err)
	}
	defer func() {
		if outputs[0] == nil {
			return
		}
		if err := outputs[0].Destroy(); err != nil {
			log.Printf("[ONNX] Warning: failed to destroy output tensor: %v", err)
		}
	}()

	output, ok := outputs[0].(*onnxruntime.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("model output %s is not a float32 tensor", m.outputName)
	}
	return extractScores(output.GetData(), len(batch))
}

// extractScores takes the first value of each row from a [rows, k] output
func extractScores(data []float32, rows int) ([]float32, error) {
	if rows == 0 {
		return []float32{}, nil
	}
	if len(data) == 0 || len(data)%rows != 0 {
		return nil, fmt.Errorf("model returned %d values for %d rows", len(data), rows)
	}
	stride := len(data) / rows
	scores := make([]float32, rows)
	for i := range scores {
		scores[i] = data[i*stride]
	}
	return scores, nil
}

// newInputTensor builds a [rows, length] tensor of the element type the model expects
func newInputTensor(dataType onnxruntime.TensorElementDataType, shape onnxruntime.Shape, batch [][]int32, length int) (onnxruntime.Value, error) {
	switch dataType {
	case onnxruntime.TensorElementDataTypeFloat:
		data := make([]float32, len(batch)*length)
		if err := fillRows(batch, length, func(i int, v int32) { data[i] = float32(v) }); err != nil {
			return nil, err
		}
		t, err := onnxruntime.NewTensor(shape, data)
		if err != nil {
			return nil, err
		}
		return t, nil
	case onnxruntime.TensorElementDataTypeInt32:
		data := make([]int32, len(batch)*length)
		if err := fillRows(batch, length, func(i int, v int32) { data[i] = v }); err != nil {
			return nil, err
		}
		t, err := onnxruntime.NewTensor(shape, data)
		if err != nil {
			return nil, err
		}
		return t, nil
	case onnxruntime.TensorElementDataTypeInt64:
		data := make([]int64, len(batch)*length)
		if err := fillRows(batch, length, func(i int, v int32) { data[i] = int64(v) }); err != nil {
			return nil, err
		}
		t, err := onnxruntime.NewTensor(shape, data)
		if err != nil {
			return nil, err
		}
		return t, nil
	default:
		return nil, fmt.Errorf("unsupported model input type %v", dataType)
	}
}

// fillRows copies every row into a flat row-major buffer through set
func fillRows(batch [][]int32, length int, set func(i int, v int32)) error {
	for r, row := range batch {
		if len(row) != length {
			return fmt.Errorf("row %d has length %d, expected %d", r, len(row), length)
		}
		for c, v := range row {
			set(r*length+c, v)
		}
	}
	return nil
}

func (m *ONNXModel) destroyEnvironment() {
	if err := onnxruntime.DestroyEnvironment(); err != nil {
		// Log but don't fail on cleanup error
		log.Printf("[ONNX] Warning: failed to destroy environment during cleanup: %v", err)
	}
}

// Close implements the Model interface
func (m *ONNXModel) Close() error {
	var errs []error

	if m.session != nil {
		if err := m.session.Destroy(); err != nil {
			errs = append(errs, fmt.Errorf("failed to destroy session: %w", err))
		}
		m.session = nil
	}
	if err := onnxruntime.DestroyEnvironment(); err != nil {
		errs = append(errs, fmt.Errorf("failed to destroy environment: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("cleanup errors: %v", errs)
	}
	return nil
}
