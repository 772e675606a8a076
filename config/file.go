package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadFromFile overlays the JSON file at path onto cfg.
// Fields absent from the file keep their current values.
func LoadFromFile(path string, cfg *Config) error {
	if path == "" {
		return fmt.Errorf("config path is not configured")
	}

	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("config file does not exist: %s", path)
	}

	// #nosec G304 - Config file path is supplied by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}
