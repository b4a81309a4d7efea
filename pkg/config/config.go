// Package config provides configuration loading and management for spotdetect.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"spotdetect/pkg/axes"
	"spotdetect/pkg/decoder"
	"spotdetect/pkg/model"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Model parameters
	Model struct {
		// Path is the TensorFlow Lite model file
		Path string `yaml:"path"`

		// Threads is the number of interpreter threads, 0 for all cores
		Threads int `yaml:"threads"`

		// Interpreters is the number of model copies that infer tiles in
		// parallel. One copy serialises every tile.
		Interpreters int `yaml:"interpreters"`
	} `yaml:"model"`

	// Prediction parameters
	Prediction struct {
		// TileSize is the tile edge in pixels, 0 to use the model input edge
		TileSize int `yaml:"tileSize"`

		// Threshold is the cell probability above which a spot is reported
		Threshold float64 `yaml:"threshold"`

		// Radius enables intensity integration in a square of side 2*radius+1
		// around every spot. Unset means no intensity column.
		Radius *int `yaml:"radius,omitempty"`

		// Shape is the axis descriptor of the input images, e.g. "(z,y,x)".
		// Empty means it is inferred from the first image.
		Shape string `yaml:"shape,omitempty"`
	} `yaml:"prediction"`

	// Processing parameters
	Processing struct {
		// Workers bounds how many planes and tiles are processed at once
		Workers int `yaml:"workers"`
	} `yaml:"processing"`

	// Output parameters
	Output struct {
		// Dir is the output directory, empty for the input location
		Dir string `yaml:"dir,omitempty"`

		// Overlay writes a PNG per plane with the detections marked
		Overlay bool `yaml:"overlay"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Model.Path = "model.tflite"
	cfg.Model.Threads = 0
	cfg.Model.Interpreters = 1

	cfg.Prediction.TileSize = 0
	cfg.Prediction.Threshold = decoder.DefaultThreshold

	cfg.Processing.Workers = runtime.NumCPU() // Use all available cores by default

	cfg.Output.Overlay = false
	cfg.Output.Verbose = false

	return cfg
}

// Validate checks the values a run depends on
func (c *Config) Validate() error {
	if c.Prediction.TileSize != 0 && !model.IsPowerOfTwo(c.Prediction.TileSize) {
		return fmt.Errorf("tileSize %d is not a power of two", c.Prediction.TileSize)
	}
	if c.Prediction.Threshold < 0 || c.Prediction.Threshold >= 1 {
		return fmt.Errorf("threshold %v must be in [0, 1)", c.Prediction.Threshold)
	}
	if c.Prediction.Radius != nil && *c.Prediction.Radius < 0 {
		return fmt.Errorf("radius %d must not be negative", *c.Prediction.Radius)
	}
	if c.Prediction.Shape != "" {
		if _, err := axes.Parse(c.Prediction.Shape); err != nil {
			return fmt.Errorf("invalid shape: %w", err)
		}
	}
	if c.Model.Interpreters < 1 {
		return fmt.Errorf("interpreters %d must be at least 1", c.Model.Interpreters)
	}
	if c.Processing.Workers < 0 {
		return fmt.Errorf("workers %d must not be negative", c.Processing.Workers)
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		return cfg, nil
	}

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
