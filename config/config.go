package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. PIXELAUTO_MATCH_CONFIDENCE.
const EnvPrefix = "PIXELAUTO"

// Config holds runtime configuration for the automation controller, the
// card migration and the ambient logging setup. Fields may be loaded from a
// YAML or JSON file and overridden by environment variables.
type Config struct {
	Debug   bool          `json:"debug" mapstructure:"debug" yaml:"debug"`
	Log     LogConfig     `json:"log" mapstructure:"log" yaml:"log"`
	Match   MatchConfig   `json:"match" mapstructure:"match" yaml:"match"`
	Input   InputConfig   `json:"input" mapstructure:"input" yaml:"input"`
	Capture CaptureConfig `json:"capture" mapstructure:"capture" yaml:"capture"`
	Migrate MigrateConfig `json:"migrate" mapstructure:"migrate" yaml:"migrate"`
}

// LogConfig configures the zap logger and optional rotated log file.
type LogConfig struct {
	Level      string `json:"level" mapstructure:"level" yaml:"level"`
	Format     string `json:"format" mapstructure:"format" yaml:"format"` // console | json
	File       string `json:"file" mapstructure:"file" yaml:"file"`
	MaxSize    int    `json:"max_size" mapstructure:"max_size" yaml:"max_size"`
	MaxBackups int    `json:"max_backups" mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `json:"max_age" mapstructure:"max_age" yaml:"max_age"`
	Compress   bool   `json:"compress" mapstructure:"compress" yaml:"compress"`
}

// MatchConfig holds template search parameters.
type MatchConfig struct {
	Confidence  float64 `json:"confidence" mapstructure:"confidence" yaml:"confidence"`
	MinScale    float64 `json:"min_scale" mapstructure:"min_scale" yaml:"min_scale"`
	MaxScale    float64 `json:"max_scale" mapstructure:"max_scale" yaml:"max_scale"`
	ScaleStep   float64 `json:"scale_step" mapstructure:"scale_step" yaml:"scale_step"`
	Stride      int     `json:"stride" mapstructure:"stride" yaml:"stride"`
	Refine      bool    `json:"refine" mapstructure:"refine" yaml:"refine"`
	StopOnScore float64 `json:"stop_on_score" mapstructure:"stop_on_score" yaml:"stop_on_score"`
}

// InputConfig holds pointer and keyboard pacing.
type InputConfig struct {
	// BoundsPolicy is "reject" or "clamp". It has no implicit fallback.
	BoundsPolicy   string        `json:"bounds_policy" mapstructure:"bounds_policy" yaml:"bounds_policy"`
	MoveDuration   time.Duration `json:"move_duration" mapstructure:"move_duration" yaml:"move_duration"`
	DragDuration   time.Duration `json:"drag_duration" mapstructure:"drag_duration" yaml:"drag_duration"`
	TypeInterval   time.Duration `json:"type_interval" mapstructure:"type_interval" yaml:"type_interval"`
	Pause          time.Duration `json:"pause" mapstructure:"pause" yaml:"pause"`
	StepsPerSecond int           `json:"steps_per_second" mapstructure:"steps_per_second" yaml:"steps_per_second"`
	Tween          string        `json:"tween" mapstructure:"tween" yaml:"tween"` // linear | ease-in-out
	FailSafe       bool          `json:"fail_safe" mapstructure:"fail_safe" yaml:"fail_safe"`
}

// CaptureConfig controls where screenshots are written.
type CaptureConfig struct {
	Dir string `json:"dir" mapstructure:"dir" yaml:"dir"`
}

// MigrateConfig points the card migration at its catalog and database.
type MigrateConfig struct {
	Catalog string `json:"catalog" mapstructure:"catalog" yaml:"catalog"`
	Driver  string `json:"driver" mapstructure:"driver" yaml:"driver"` // sqlite3 | postgres
	DSN     string `json:"dsn" mapstructure:"dsn" yaml:"dsn"`
}

// SetDefaults registers the standard defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size", 50)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 14)
	v.SetDefault("log.compress", true)

	v.SetDefault("match.confidence", 0.90)
	v.SetDefault("match.min_scale", 1.0)
	v.SetDefault("match.max_scale", 1.0)
	v.SetDefault("match.scale_step", 0.05)
	v.SetDefault("match.stride", 2)
	v.SetDefault("match.refine", true)
	v.SetDefault("match.stop_on_score", 0.99)

	v.SetDefault("input.bounds_policy", "reject")
	v.SetDefault("input.move_duration", "500ms")
	v.SetDefault("input.drag_duration", "1s")
	v.SetDefault("input.type_interval", "100ms")
	v.SetDefault("input.pause", "500ms")
	v.SetDefault("input.steps_per_second", 100)
	v.SetDefault("input.tween", "linear")
	v.SetDefault("input.fail_safe", true)

	v.SetDefault("capture.dir", ".")

	v.SetDefault("migrate.catalog", filepath.Join("src", "data", "SelectedCards.json"))
	v.SetDefault("migrate.driver", "sqlite3")
	v.SetDefault("migrate.dsn", filepath.Join("src", "data", "CardRepository.db"))
}

// DefaultConfig returns a Config populated with standard defaults.
func DefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("config: unmarshal defaults: %v", err))
	}
	return &cfg
}

// Validate fills unset matcher tuning values with defaults and rejects
// out-of-range confidences, negative durations and unknown enum values.
func (c *Config) Validate() error {
	var errs []error
	if math.IsNaN(c.Match.Confidence) || c.Match.Confidence <= 0 || c.Match.Confidence > 1 {
		errs = append(errs, fmt.Errorf("match.confidence must be in (0,1], got %v", c.Match.Confidence))
	}
	if math.IsNaN(c.Match.StopOnScore) || c.Match.StopOnScore < 0 || c.Match.StopOnScore > 1 {
		errs = append(errs, fmt.Errorf("match.stop_on_score must be in [0,1], got %v", c.Match.StopOnScore))
	}
	if c.Match.MinScale <= 0 {
		c.Match.MinScale = 1.0
	}
	if c.Match.MaxScale <= 0 || c.Match.MaxScale < c.Match.MinScale {
		c.Match.MaxScale = c.Match.MinScale
	}
	if c.Match.ScaleStep <= 0 {
		c.Match.ScaleStep = 0.05
	}
	if c.Match.Stride <= 0 {
		c.Match.Stride = 1
	}
	for _, d := range []struct {
		key string
		v   time.Duration
	}{
		{"input.move_duration", c.Input.MoveDuration},
		{"input.drag_duration", c.Input.DragDuration},
		{"input.type_interval", c.Input.TypeInterval},
		{"input.pause", c.Input.Pause},
	} {
		if d.v < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %v", d.key, d.v))
		}
	}
	if c.Input.StepsPerSecond <= 0 {
		c.Input.StepsPerSecond = 100
	}
	if c.Capture.Dir == "" {
		c.Capture.Dir = "."
	}

	switch strings.ToLower(c.Input.BoundsPolicy) {
	case "reject", "clamp":
	default:
		errs = append(errs, fmt.Errorf("input.bounds_policy must be \"reject\" or \"clamp\", got %q", c.Input.BoundsPolicy))
	}
	switch strings.ToLower(c.Input.Tween) {
	case "", "linear", "ease-in-out":
	default:
		errs = append(errs, fmt.Errorf("input.tween must be \"linear\" or \"ease-in-out\", got %q", c.Input.Tween))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be \"console\" or \"json\", got %q", c.Log.Format))
	}
	switch c.Migrate.Driver {
	case "sqlite3", "postgres":
	default:
		errs = append(errs, fmt.Errorf("migrate.driver must be \"sqlite3\" or \"postgres\", got %q", c.Migrate.Driver))
	}
	return errors.Join(errs...)
}

// ExpandPaths resolves a leading ~ in every path-valued field.
func (c *Config) ExpandPaths() error {
	for _, p := range []*string{&c.Log.File, &c.Capture.Dir, &c.Migrate.Catalog} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("config: expand %q: %w", *p, err)
		}
		*p = expanded
	}
	if c.Migrate.Driver == "sqlite3" && c.Migrate.DSN != "" {
		expanded, err := homedir.Expand(c.Migrate.DSN)
		if err != nil {
			return fmt.Errorf("config: expand %q: %w", c.Migrate.DSN, err)
		}
		c.Migrate.DSN = expanded
	}
	return nil
}

// NewViper returns a viper instance with defaults and environment binding.
// If path is non-empty it is used as the config file.
func NewViper(path string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
	}
	return v
}

// Load reads configuration from the given file path. If the file does not
// exist it returns DefaultConfig() (with environment overrides applied).
// On parse or validation error it returns the defaults together with the error.
func Load(path string) (*Config, error) {
	v := NewViper(path)
	if path != "" {
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				var notFound viper.ConfigFileNotFoundError
				if !errors.As(err, &notFound) {
					return DefaultConfig(), fmt.Errorf("config: read %s: %w", path, err)
				}
			}
		}
	}
	return FromViper(v)
}

// FromViper unmarshals and validates a config from an already prepared viper.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return DefaultConfig(), fmt.Errorf("config: invalid: %w", err)
	}
	if err := cfg.ExpandPaths(); err != nil {
		return DefaultConfig(), err
	}
	return &cfg, nil
}

// Save writes the configuration to the given path. The format follows the
// file extension (yaml, yml or json).
func (c *Config) Save(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	v := viper.New()
	v.Set("debug", c.Debug)
	v.Set("log", c.Log)
	v.Set("match", c.Match)
	v.Set("input", c.Input)
	v.Set("capture", c.Capture)
	v.Set("migrate", c.Migrate)
	return v.WriteConfigAs(path)
}
