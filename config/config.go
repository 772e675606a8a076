package config

import (
	"fmt"
	"strings"
)

const (
	// TruncatePre drops leading codes when a sequence is too long
	TruncatePre = "pre"
	// TruncatePost drops trailing codes when a sequence is too long
	TruncatePost = "post"
)

// ModelConfig holds the model artifact and inference backend options
type ModelConfig struct {
	Path              string `json:"path"`                // Path to the serialized model
	Backend           string `json:"backend"`             // Registered backend name (onnx)
	InputName         string `json:"input_name"`          // Model input name, discovered when empty
	OutputName        string `json:"output_name"`         // Model output name, discovered when empty
	SharedLibraryPath string `json:"shared_library_path"` // onnxruntime shared library
	TokenizerPath     string `json:"tokenizer_path"`      // Optional tokenizer.json replacing the character encoder
}

// PredictConfig holds encoding and classification options
type PredictConfig struct {
	SequenceLength int     `json:"sequence_length"` // Fixed length of each encoded sequence
	BatchSize      int     `json:"batch_size"`      // Rows per inference call
	Threshold      float64 `json:"threshold"`       // Scores strictly above are person names
	Truncating     string  `json:"truncating"`      // pre or post
	Probabilities  bool    `json:"probabilities"`   // Add the raw score column
}

// LoggingConfig holds logging configuration options
type LoggingConfig struct {
	LogVerbose bool `json:"log_verbose"` // Print progress messages
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Enabled      bool   `json:"enabled"`        // Whether to persist runs
	Host         string `json:"host"`           // Database host
	Port         int    `json:"port"`           // Database port
	Database     string `json:"database"`       // Database name
	Username     string `json:"username"`       // Database username
	Password     string `json:"password"`       // Database password
	SSLMode      string `json:"ssl_mode"`       // SSL mode (disable, require, etc.)
	MaxOpenConns int    `json:"max_open_conns"` // Maximum open connections
	MaxIdleConns int    `json:"max_idle_conns"` // Maximum idle connections
	MaxLifetime  int    `json:"max_lifetime"`   // Connection max lifetime in seconds
	CleanupHours int    `json:"cleanup_hours"`  // Delete runs older than this after each run; 0 keeps all
}

// SentryConfig holds error reporting configuration
type SentryConfig struct {
	DSN         string `json:"dsn"`
	Environment string `json:"environment"`
}

// Config holds all configuration for a prediction run
type Config struct {
	InputPath  string         `json:"input_path"`
	OutputPath string         `json:"output_path"`
	Model      ModelConfig    `json:"model"`
	Predict    PredictConfig  `json:"predict"`
	Logging    LoggingConfig  `json:"logging"`
	Database   DatabaseConfig `json:"database"`
	Sentry     SentryConfig   `json:"sentry"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Model: ModelConfig{
			Backend: "onnx",
		},
		Predict: PredictConfig{
			SequenceLength: 50,
			BatchSize:      32,
			Threshold:      0.5,
			Truncating:     TruncatePre,
			Probabilities:  false,
		},
		Logging: LoggingConfig{
			LogVerbose: false,
		},
		Database: DatabaseConfig{
			Enabled:      false,
			Host:         "localhost",
			Port:         5432,
			Database:     "name_predictor",
			Username:     "postgres",
			Password:     "",
			SSLMode:      "disable",
			MaxOpenConns: 4,
			MaxIdleConns: 4,
			MaxLifetime:  300,
		},
		Sentry: SentryConfig{
			Environment: "development",
		},
	}
}

// ValidateConfig checks every field and reports all problems at once.
// The model path is not checked here; a missing model is handled by the caller.
func (c *Config) ValidateConfig() error {
	var errs []string

	if err := validatePositive(c.Predict.SequenceLength, "Predict.SequenceLength"); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validatePositive(c.Predict.BatchSize, "Predict.BatchSize"); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateThreshold(c.Predict.Threshold, "Predict.Threshold"); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateTruncating(c.Predict.Truncating, "Predict.Truncating"); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Model.Backend == "" {
		errs = append(errs, "Model.Backend: backend cannot be empty")
	}
	if c.Database.Enabled {
		if err := validatePort(c.Database.Port, "Database.Port"); err != nil {
			errs = append(errs, err.Error())
		}
		if c.Database.Host == "" {
			errs = append(errs, "Database.Host: host cannot be empty")
		}
		if c.Database.CleanupHours < 0 {
			errs = append(errs, fmt.Sprintf("Database.CleanupHours: must not be negative (current value: %d)", c.Database.CleanupHours))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validatePositive(v int, fieldName string) error {
	if v <= 0 {
		return fmt.Errorf("%s: must be greater than 0 (current value: %d)", fieldName, v)
	}
	return nil
}

func validateThreshold(v float64, fieldName string) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("%s: must be between 0 and 1 (current value: %g)", fieldName, v)
	}
	return nil
}

func validateTruncating(v string, fieldName string) error {
	if v != TruncatePre && v != TruncatePost {
		return fmt.Errorf("%s: must be '%s' or '%s' (current value: %s)", fieldName, TruncatePre, TruncatePost, v)
	}
	return nil
}

func validatePort(port int, fieldName string) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s: port must be between 1 and 65535 (current value: %d)", fieldName, port)
	}
	return nil
}

// GetLogVerbose returns whether to log progress messages
func (lc LoggingConfig) GetLogVerbose() bool {
	return lc.LogVerbose
}
