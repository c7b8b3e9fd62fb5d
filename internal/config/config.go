// Package config loads tool configuration from a YAML file with
// environment-variable overrides. Everything has a working default; a
// missing config file is not an error.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pkeday/brokerage-insights-mvp-sub000/internal/dedup"
	"github.com/pkeday/brokerage-insights-mvp-sub000/internal/store"
)

// Environment variable overrides. CLI flags beat env, env beats file.
const (
	EnvDBPath        = "INSIGHTS_DB_PATH"
	EnvModelEndpoint = "INSIGHTS_MODEL_ENDPOINT"
	EnvModelAPIKey   = "INSIGHTS_MODEL_API_KEY"
	EnvModelName     = "INSIGHTS_MODEL_NAME"
)

// Limits bound run and listing requests.
type Limits struct {
	MaxRunArchives int `yaml:"max_run_archives"`
	MaxPageSize    int `yaml:"max_page_size"`
}

// ModelSettings configures the optional model-backed extraction adapter.
// Extraction uses the deterministic heuristic adapter unless an endpoint
// is configured.
type ModelSettings struct {
	Endpoint       string `yaml:"endpoint"`
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Config is the resolved tool configuration.
type Config struct {
	DBPath string        `yaml:"db_path"`
	Dedup  dedup.Config  `yaml:"dedup"`
	Limits Limits        `yaml:"limits"`
	Model  ModelSettings `yaml:"model"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DBPath: store.DefaultDBPath,
		Dedup:  dedup.DefaultConfig(),
		Limits: Limits{
			MaxRunArchives: 1000,
			MaxPageSize:    100,
		},
		Model: ModelSettings{
			TimeoutSeconds: 30,
		},
	}
}

// DefaultConfigPath is where Load looks when no path is given.
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".insights", "config.yaml")
}

// Load reads configuration from path (or the default location when path
// is empty), then applies environment overrides. A missing file yields
// the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultConfigPath()
	}

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	applyEnv(&cfg)

	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(EnvModelEndpoint); v != "" {
		cfg.Model.Endpoint = v
	}
	if v := os.Getenv(EnvModelAPIKey); v != "" {
		cfg.Model.APIKey = v
	}
	if v := os.Getenv(EnvModelName); v != "" {
		cfg.Model.Model = v
	}
}

func validate(cfg Config) error {
	d := cfg.Dedup
	for name, v := range map[string]float64{
		"dedup.summary_threshold":          d.SummaryThreshold,
		"dedup.combined_summary_threshold": d.CombinedSummaryThreshold,
		"dedup.combined_title_threshold":   d.CombinedTitleThreshold,
	} {
		if v <= 0 || v > 1 {
			return fmt.Errorf("%s must be in (0, 1], got %s", name, strconv.FormatFloat(v, 'g', -1, 64))
		}
	}
	if d.WindowDays <= 0 {
		return fmt.Errorf("dedup.window_days must be positive, got %d", d.WindowDays)
	}
	if cfg.Limits.MaxRunArchives <= 0 || cfg.Limits.MaxPageSize <= 0 {
		return fmt.Errorf("limits must be positive")
	}
	return nil
}

// ModelTimeout returns the configured model call timeout as a duration.
func (m ModelSettings) ModelTimeout() time.Duration {
	if m.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(m.TimeoutSeconds) * time.Second
}
