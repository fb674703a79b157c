package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/ramonehamilton/gammatrain/internal/features"
	"github.com/ramonehamilton/gammatrain/internal/learner"
	"github.com/ramonehamilton/gammatrain/internal/strength"
)

// Config represents the gammatrain configuration.
type Config struct {
	// Training run settings
	Training TrainingConfig `toml:"training"`

	// Feature layout and priors
	Registry RegistryConfig `toml:"registry"`

	// Recorded matches and run history
	Storage StorageConfig `toml:"storage"`

	// Weights file settings
	Model ModelConfig `toml:"model"`

	// Scoring server settings
	Server ServerConfig `toml:"server"`
}

// TrainingConfig contains trainer settings.
type TrainingConfig struct {
	Learner     string `toml:"learner"`      // "strength" or "baseline"
	Iterations  int    `toml:"iterations"`   // Passes over all eligible features
	LogInterval string `toml:"log_interval"` // Minimum time between progress lines (e.g., "5s"), "0s" disables
}

// GroupConfig declares one feature group.
type GroupConfig struct {
	Name        string  `toml:"name"`
	Dims        []int   `toml:"dims"`
	PriorWeight float64 `toml:"prior_weight,omitempty"` // Overrides uniform_prior_weight when positive
}

// PriorConfig declares a synthetic win of one feature over another.
type PriorConfig struct {
	Winner string  `toml:"winner"`
	Loser  string  `toml:"loser"`
	Weight float64 `toml:"weight"`
}

// RegistryConfig contains the feature registry definition.
type RegistryConfig struct {
	Groups             []GroupConfig `toml:"groups"`
	UniformPriorWeight float64       `toml:"uniform_prior_weight"` // Prior against the anchor per feature, 0 disables
	Priors             []PriorConfig `toml:"priors"`
	ForceUsable        []string      `toml:"force_usable"`     // Features trained even without occurrences
	Variant            string        `toml:"variant"`          // Featurizer variant: "full" or "lite"
	ExpensiveGroups    []string      `toml:"expensive_groups"` // Groups the lite variant skips
}

// StorageConfig contains database settings.
type StorageConfig struct {
	DatabasePath string `toml:"database_path"` // Empty means <data dir>/gammatrain.db
}

// ModelConfig contains weights file settings.
type ModelConfig struct {
	Path      string `toml:"path"`       // Weights file written by train and served by serve
	ReportDir string `toml:"report_dir"` // Where training charts go, empty disables
}

// ServerConfig contains scoring API settings.
type ServerConfig struct {
	Port           int      `toml:"port"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Training: TrainingConfig{
			Learner:     string(learner.KindStrength),
			Iterations:  100,
			LogInterval: "5s",
		},
		Registry: RegistryConfig{
			UniformPriorWeight: 1,
			Variant:            string(features.VariantFull),
		},
		Storage: StorageConfig{
			DatabasePath: "",
		},
		Model: ModelConfig{
			Path: "weights.txt",
		},
		Server: ServerConfig{
			Port:           8080,
			AllowedOrigins: []string{"*"},
		},
	}
}

// DataDir returns the directory holding the default config and database.
func DataDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".gammatrain"), nil
}

// DefaultPath returns the default configuration file location.
func DefaultPath() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads the configuration at path, or at DefaultPath when path is empty.
// Keys the file omits keep their defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		var err error
		if path, err = DefaultPath(); err != nil {
			return nil, err
		}
	}

	config := DefaultConfig()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return config, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return config, nil
}

// Save writes the configuration to path, or to DefaultPath when path is empty.
func (c *Config) Save(path string) error {
	if path == "" {
		var err error
		if path, err = DefaultPath(); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate validates the configuration values.
func (c *Config) Validate() error {
	switch learner.Kind(c.Training.Learner) {
	case learner.KindStrength, learner.KindBaseline:
	default:
		return fmt.Errorf("unknown learner %q", c.Training.Learner)
	}

	if c.Training.Iterations < 0 {
		return fmt.Errorf("iterations cannot be negative: %d", c.Training.Iterations)
	}

	if _, err := c.LogInterval(); err != nil {
		return err
	}

	if _, err := features.ParseVariant(c.Registry.Variant); err != nil {
		return err
	}

	if c.Registry.UniformPriorWeight < 0 {
		return fmt.Errorf("uniform prior weight cannot be negative: %g", c.Registry.UniformPriorWeight)
	}

	if c.Model.Path == "" {
		return fmt.Errorf("model path cannot be empty")
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}

	return nil
}

// LogInterval returns the progress log interval as a duration.
func (c *Config) LogInterval() (time.Duration, error) {
	if c.Training.LogInterval == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Training.LogInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid log interval %q: %w", c.Training.LogInterval, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("log interval cannot be negative: %s", d)
	}
	return d, nil
}

// TrainerConfig returns the coordinate-ascent trainer settings.
func (c *Config) TrainerConfig() (*strength.Config, error) {
	interval, err := c.LogInterval()
	if err != nil {
		return nil, err
	}
	return &strength.Config{
		Iterations:  c.Training.Iterations,
		LogInterval: interval,
	}, nil
}

// DatabasePath returns the configured database path, defaulting to the data directory.
func (c *Config) DatabasePath() (string, error) {
	if c.Storage.DatabasePath != "" {
		return expandHome(c.Storage.DatabasePath)
	}
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "gammatrain.db"), nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(homeDir, strings.TrimPrefix(path, "~")), nil
}
