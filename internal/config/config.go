// Package config provides configuration types, defaults, and loading for cadence.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fentz26/cadence/internal/confidence"
	"github.com/fentz26/cadence/internal/connectors/localexec"
	"github.com/fentz26/cadence/internal/models"
	"github.com/fentz26/cadence/internal/phase"
	"github.com/fentz26/cadence/internal/retention"
	"github.com/fentz26/cadence/internal/telemetry"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. CADENCE_LOG_LEVEL.
const EnvPrefix = "CADENCE"

// Config is the full daemon and CLI configuration.
type Config struct {
	DBPath     string               `mapstructure:"db_path" yaml:"db_path"`
	Listen     string               `mapstructure:"listen" yaml:"listen"`
	API        string               `mapstructure:"api" yaml:"api"`
	Log        LogConfig            `mapstructure:"log" yaml:"log"`
	Session    SessionConfig        `mapstructure:"session" yaml:"session"`
	Confidence ConfidenceConfig     `mapstructure:"confidence" yaml:"confidence"`
	Phase      phase.CriteriaSet    `mapstructure:"phase" yaml:"phase"`
	Checkpoint CheckpointConfig     `mapstructure:"checkpoint" yaml:"checkpoint"`
	Retention  retention.Config     `mapstructure:"retention" yaml:"retention"`
	Executor   localexec.Config     `mapstructure:"executor" yaml:"executor"`
	Telemetry  telemetry.OTelConfig `mapstructure:"telemetry" yaml:"telemetry"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
}

// SessionConfig holds the tunables applied to sessions created without them.
type SessionConfig struct {
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold" yaml:"confidence_threshold"`
	MaxSprints          int     `mapstructure:"max_sprints" yaml:"max_sprints"`
	ParallelSwarms      int     `mapstructure:"parallel_swarms" yaml:"parallel_swarms"`
}

// ConfidenceConfig holds the outcome factor weights used for session scores.
type ConfidenceConfig struct {
	Weights confidence.Weights `mapstructure:"weights" yaml:"weights"`
}

// CheckpointConfig controls automatic checkpoints and the restore cache.
type CheckpointConfig struct {
	AutoOnTransition bool          `mapstructure:"auto_on_transition" yaml:"auto_on_transition"`
	CacheExpiration  time.Duration `mapstructure:"cache_expiration" yaml:"cache_expiration"`
}

// DefaultHome returns ~/.cadence, or .cadence when the home directory is unknown.
func DefaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cadence"
	}
	return filepath.Join(home, ".cadence")
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		DBPath: filepath.Join(DefaultHome(), "cadence.db"),
		Listen: "127.0.0.1:7466",
		API:    "http://127.0.0.1:7466",
		Log: LogConfig{
			Level: "info",
		},
		Session: SessionConfig{
			ConfidenceThreshold: models.DefaultConfidenceThreshold,
			MaxSprints:          models.DefaultMaxSprints,
			ParallelSwarms:      models.DefaultParallelSwarms,
		},
		Confidence: ConfidenceConfig{
			Weights: confidence.DefaultWeights(),
		},
		Phase: phase.DefaultCriteria(),
		Checkpoint: CheckpointConfig{
			AutoOnTransition: true,
			CacheExpiration:  10 * time.Minute,
		},
		Retention: retention.DefaultConfig(),
		Executor:  localexec.DefaultConfig(),
		Telemetry: telemetry.OTelConfig{
			Exporter:    "stdout",
			ServiceName: "cadence",
			SampleRate:  1.0,
		},
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if strings.TrimSpace(c.DBPath) == "" {
		return fmt.Errorf("db_path is required")
	}
	if t := c.Session.ConfidenceThreshold; t <= 0 || t > 1 {
		return fmt.Errorf("session.confidence_threshold must be in (0, 1], got %v", t)
	}
	if c.Session.MaxSprints < 1 {
		return fmt.Errorf("session.max_sprints must be at least 1, got %d", c.Session.MaxSprints)
	}
	if c.Session.ParallelSwarms < 1 {
		return fmt.Errorf("session.parallel_swarms must be at least 1, got %d", c.Session.ParallelSwarms)
	}
	if err := validateWeights("confidence.weights", c.Confidence.Weights); err != nil {
		return err
	}
	for p, crit := range c.Phase {
		if !p.Valid() || p.Terminal() {
			return fmt.Errorf("phase.%s: not a working phase", p)
		}
		if crit.MinConfidence < 0 || crit.MinConfidence > 1 {
			return fmt.Errorf("phase.%s.min_confidence must be in [0, 1]", p)
		}
		if crit.RequiredRatio < 0 || crit.RequiredRatio > 1 {
			return fmt.Errorf("phase.%s.required_ratio must be in [0, 1]", p)
		}
		if crit.MaxIterations < 0 {
			return fmt.Errorf("phase.%s.max_iterations cannot be negative", p)
		}
	}
	if c.Retention.MaxAge <= 0 {
		return fmt.Errorf("retention.max_age must be positive")
	}
	if c.Executor.Command == "" {
		return fmt.Errorf("executor.command is required")
	}
	return nil
}

func validateWeights(key string, w confidence.Weights) error {
	total := 0.0
	for name, v := range w {
		if v < 0 {
			return fmt.Errorf("%s.%s cannot be negative", key, name)
		}
		total += v
	}
	if len(w) > 0 && total == 0 {
		return fmt.Errorf("%s: at least one weight must be positive", key)
	}
	return nil
}

// DefaultYAML renders Defaults as YAML.
func DefaultYAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(Defaults()); err != nil {
		return nil, fmt.Errorf("marshaling defaults: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteDefaultConfig writes the default configuration to path, creating the
// parent directory. An existing file is left alone unless force is set.
func WriteDefaultConfig(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file %s already exists", path)
		}
	}
	data, err := DefaultYAML()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Find returns the first existing config file:
//  1. .cadence/config.yaml (current directory)
//  2. ~/.config/cadence/config.yaml (user config)
//
// It returns "" when neither exists.
func Find() string {
	if _, err := os.Stat(filepath.Join(".cadence", "config.yaml")); err == nil {
		return filepath.Join(".cadence", "config.yaml")
	}
	if home, err := os.UserHomeDir(); err == nil {
		p := filepath.Join(home, ".config", "cadence", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Load layers defaults, the config file and CADENCE_* environment variables
// into v, then decodes and validates the result. An empty path uses Find.
// Flags bound to v before Load take precedence over all three.
func Load(v *viper.Viper, path string) (Config, error) {
	defaults, err := DefaultYAML()
	if err != nil {
		return Config{}, err
	}
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, fmt.Errorf("loading defaults: %w", err)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = Find()
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
