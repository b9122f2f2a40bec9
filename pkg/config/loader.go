package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

var (
	// ErrConfigNotFound indicates the configuration file was not found.
	ErrConfigNotFound = errors.New("configuration file not found")

	// ErrInvalidYAML indicates YAML parsing failed.
	ErrInvalidYAML = errors.New("invalid YAML syntax")
)

// LoadError wraps configuration loading errors with file context.
type LoadError struct {
	File string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.File, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// automaYAML mirrors the automa.yaml file structure. All sections are
// optional; anything unset falls back to built-in defaults.
type automaYAML struct {
	Server  *ServerConfig  `yaml:"server"`
	LLM     *LLMConfig     `yaml:"llm"`
	Storage *StorageConfig `yaml:"storage"`
	Exploit *ExploitConfig `yaml:"exploit"`
}

// Initialize loads, merges, and validates configuration from configDir.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Read automa.yaml (missing file means pure defaults)
//  2. Expand {{.VAR}} environment references
//  3. Merge user YAML over built-in defaults
//  4. Validate the resolved configuration
func Initialize(_ context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("Configuration initialized successfully",
		"llm_provider", cfg.LLM.Provider,
		"llm_model", cfg.LLM.Model,
		"max_iterations", cfg.Exploit.MaxIterations,
		"success_scorers", cfg.Exploit.SuccessScorers)

	return cfg, nil
}

func load(configDir string) (*Config, error) {
	user, err := loadAutomaYAML(configDir)
	if err != nil {
		return nil, NewLoadError("automa.yaml", err)
	}

	cfg := &Config{
		configDir: configDir,
		Server:    DefaultServerConfig(),
		LLM:       DefaultLLMConfig(),
		Storage:   DefaultStorageConfig(),
		Exploit:   DefaultExploitConfig(),
	}

	// User-provided values override defaults; unset fields keep defaults.
	if user.Server != nil {
		if err := mergo.Merge(cfg.Server, user.Server, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge server config: %w", err)
		}
	}
	if user.LLM != nil {
		if err := mergo.Merge(cfg.LLM, user.LLM, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge llm config: %w", err)
		}
	}
	if user.Storage != nil {
		if err := mergo.Merge(cfg.Storage, user.Storage, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge storage config: %w", err)
		}
	}
	if user.Exploit != nil {
		if err := mergo.Merge(cfg.Exploit, user.Exploit, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge exploit config: %w", err)
		}
	}

	return cfg, nil
}

func loadAutomaYAML(configDir string) (*automaYAML, error) {
	var config automaYAML

	path := filepath.Join(configDir, "automa.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Missing file is fine: run on built-in defaults.
			slog.Warn("automa.yaml not found, using built-in defaults", "path", path)
			return &config, nil
		}
		return nil, err
	}

	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return &config, nil
}

// NewLoadError creates a new load error.
func NewLoadError(file string, err error) *LoadError {
	return &LoadError{File: file, Err: err}
}
