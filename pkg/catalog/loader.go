package catalog

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/policyprobe/policyprobe/pkg/telemetry"
)

// Loader reads and validates hierarchy configuration files.
type Loader struct {
	logger    *telemetry.Logger
	validator *validator.Validate
}

// NewLoader creates a new configuration loader.
func NewLoader(logger *telemetry.Logger) *Loader {
	return &Loader{
		logger:    logger.NewComponentLogger("catalog-loader"),
		validator: validator.New(),
	}
}

// Load reads a YAML hierarchy config from path, validates it, and returns it.
func (l *Loader) Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read hierarchy config: %w", err)
	}

	cfg, err := l.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid hierarchy config %s: %w", path, err)
	}

	l.logger.WithField("path", path).
		WithField("categories", len(cfg.Categories)).
		Info("hierarchy config loaded")

	return cfg, nil
}

// Parse decodes and validates raw YAML config bytes.
func (l *Loader) Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := l.validator.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}
