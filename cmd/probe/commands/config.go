package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/policyprobe/policyprobe/pkg/engine"
	"github.com/policyprobe/policyprobe/pkg/telemetry"
)

// appConfig is the probe configuration file (YAML).
type appConfig struct {
	// DataDir roots the progress and session stores.
	DataDir string `yaml:"data_dir" validate:"required"`

	// CatalogPath points at the product hierarchy config.
	CatalogPath string `yaml:"catalog" validate:"required"`

	// ListenAddr is the HTTP bind address for serve mode.
	ListenAddr string `yaml:"listen_addr"`

	// TargetEnvironment names the environment playing the target role.
	TargetEnvironment string `yaml:"target_environment"`

	// DelayMin/DelayMax bound the randomized inter-step delay.
	DelayMin string `yaml:"delay_min"`
	DelayMax string `yaml:"delay_max"`

	Tracing tracingConfig `yaml:"tracing"`
}

type tracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter" validate:"omitempty,oneof=otlp stdout none"`
	Endpoint string `yaml:"endpoint"`
}

func defaultAppConfig() appConfig {
	return appConfig{
		DataDir:           "./data",
		CatalogPath:       "./config/products.yaml",
		ListenAddr:        ":8080",
		TargetEnvironment: "DEV",
		DelayMin:          "1s",
		DelayMax:          "3s",
		Tracing:           tracingConfig{Exporter: "stdout"},
	}
}

// loadAppConfig reads the config file when --config is set, otherwise returns
// the defaults.
func loadAppConfig() (appConfig, error) {
	cfg := defaultAppConfig()
	if configPath == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", configPath, err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", configPath, err)
	}
	return cfg, nil
}

func (c appConfig) runnerConfig() (engine.RunnerConfig, error) {
	rc := engine.DefaultRunnerConfig()
	if c.DelayMin != "" {
		d, err := time.ParseDuration(c.DelayMin)
		if err != nil {
			return rc, fmt.Errorf("invalid delay_min: %w", err)
		}
		rc.DelayMin = d
	}
	if c.DelayMax != "" {
		d, err := time.ParseDuration(c.DelayMax)
		if err != nil {
			return rc, fmt.Errorf("invalid delay_max: %w", err)
		}
		rc.DelayMax = d
	}
	if rc.DelayMax < rc.DelayMin {
		return rc, fmt.Errorf("delay_max must not be below delay_min")
	}
	return rc, nil
}

func (c appConfig) telemetryConfig(version string) *telemetry.Config {
	tcfg := telemetry.DefaultConfig()
	tcfg.ServiceVersion = version
	if verbose {
		tcfg.Logging.Level = "debug"
	}
	if jsonOutput {
		tcfg.Logging.Format = "json"
	}
	tcfg.Tracing.Enabled = c.Tracing.Enabled
	if c.Tracing.Exporter != "" {
		tcfg.Tracing.Exporter = c.Tracing.Exporter
	}
	tcfg.Tracing.Endpoint = c.Tracing.Endpoint
	return tcfg
}
