// Package config provides configuration loading and management for ctslicesto3d.
// It handles loading configuration from YAML files, environment overrides and
// provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CTSLICES_"

// Config represents the application configuration loaded from YAML
type Config struct {
	// Input describes where slices are read from
	Input struct {
		// Dir is the directory holding the per-slice scan files
		Dir string `yaml:"dir"`

		// Recursive also walks sub-directories
		Recursive bool `yaml:"recursive"`
	} `yaml:"input"`

	// Assembly parameters
	Assembly struct {
		// Workers bounds parallel slice decoding and padding
		Workers int `yaml:"workers"`
	} `yaml:"assembly"`

	// Segmentation parameters for the region extractor
	Segmentation struct {
		// Threshold is the intensity above which a voxel is foreground
		Threshold float64 `yaml:"threshold"`

		// MinObjectSize removes connected components smaller than this many voxels
		MinObjectSize int `yaml:"minObjectSize"`
	} `yaml:"segmentation"`

	// Reconstruction parameters
	Reconstruction struct {
		// Level is the binarization level for non-binary input
		Level float64 `yaml:"level"`

		// Closing enables morphological closing before iso-surfacing
		Closing bool `yaml:"closing"`
	} `yaml:"reconstruction"`

	// Mesh sink parameters
	Mesh struct {
		SmoothingIterations int     `yaml:"smoothingIterations"`
		SmoothingFactor     float64 `yaml:"smoothingFactor"`

		// Output is the STL file name, relative to Output.Dir
		Output string `yaml:"output"`

		// Snapshot is the PNG preview file name, empty disables it
		Snapshot string `yaml:"snapshot"`

		// View is the snapshot camera: coronal, axial or sagittal
		View string `yaml:"view"`
	} `yaml:"mesh"`

	// Output parameters
	Output struct {
		Dir string `yaml:"dir"`

		// Overlay saves the segmentation overlay of the middle slice
		Overlay bool `yaml:"overlay"`
	} `yaml:"output"`

	// Logging parameters
	Logging struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"logging"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Assembly.Workers = runtime.NumCPU()

	// Air is dark in CT, tissue brighter
	cfg.Segmentation.Threshold = -320
	cfg.Segmentation.MinObjectSize = 500

	cfg.Reconstruction.Level = 0.5
	cfg.Reconstruction.Closing = true

	cfg.Mesh.SmoothingIterations = 20
	cfg.Mesh.SmoothingFactor = 0.5
	cfg.Mesh.Output = "lung_mesh.stl"
	cfg.Mesh.Snapshot = "mesh_snapshot.png"
	cfg.Mesh.View = "coronal"

	cfg.Output.Dir = "results"
	cfg.Output.Overlay = true

	cfg.Logging.Level = "info"

	return cfg
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

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overrides values from CTSLICES_* environment variables. Variables
// found in the optional dotenv files are loaded first without replacing ones
// already set in the process environment.
func (c *Config) ApplyEnv(dotenvFiles ...string) error {
	for _, f := range dotenvFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("error loading %s: %w", f, err)
		}
	}

	if v, ok := lookup("INPUT_DIR"); ok {
		c.Input.Dir = v
	}
	if v, ok := lookup("OUTPUT_DIR"); ok {
		c.Output.Dir = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok {
		c.Logging.Level = v
	}
	if v, ok := lookup("LOG_FILE"); ok {
		c.Logging.File = v
	}
	if v, ok := lookup("WORKERS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sWORKERS: %w", EnvPrefix, err)
		}
		c.Assembly.Workers = n
	}
	if v, ok := lookup("THRESHOLD"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %sTHRESHOLD: %w", EnvPrefix, err)
		}
		c.Segmentation.Threshold = f
	}
	return nil
}

func lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + name)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// Validate checks values that would make the pipeline fail later.
func (c *Config) Validate() error {
	if c.Assembly.Workers < 1 {
		return fmt.Errorf("assembly.workers must be at least 1, got %d", c.Assembly.Workers)
	}
	if c.Segmentation.MinObjectSize < 0 {
		return fmt.Errorf("segmentation.minObjectSize must be non-negative")
	}
	if c.Mesh.SmoothingIterations < 0 {
		return fmt.Errorf("mesh.smoothingIterations must be non-negative")
	}
	if c.Mesh.SmoothingFactor < 0 || c.Mesh.SmoothingFactor > 1 {
		return fmt.Errorf("mesh.smoothingFactor must be within [0,1], got %g", c.Mesh.SmoothingFactor)
	}
	if c.Mesh.Output == "" {
		return fmt.Errorf("mesh.output must be set")
	}
	return nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

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
