// Package config provides configuration management for facevec.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. FACEVEC_STORE_PATH.
const EnvPrefix = "FACEVEC"

// DefaultPath is the config file looked up when none is given.
const DefaultPath = "facevec.yaml"

// Config is the complete facevec configuration.
type Config struct {
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`
	Photos   PhotosConfig   `mapstructure:"photos" yaml:"photos"`
	Ingest   IngestConfig   `mapstructure:"ingest" yaml:"ingest"`
	Outliers OutliersConfig `mapstructure:"outliers" yaml:"outliers"`
	Match    MatchConfig    `mapstructure:"match" yaml:"match"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
}

// StoreConfig locates the SQLite database.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// PhotosConfig points at the photo tree.
type PhotosConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// IngestConfig controls aggregation.
type IngestConfig struct {
	BatchSize int           `mapstructure:"batch_size" yaml:"batch_size"` // samples per write batch
	Dimension int           `mapstructure:"dimension" yaml:"dimension"`   // 0 = take from first vector
	Debounce  time.Duration `mapstructure:"debounce" yaml:"debounce"`     // watch mode quiet period
}

// OutliersConfig controls detection.
type OutliersConfig struct {
	Threshold float64 `mapstructure:"threshold" yaml:"threshold"`
	Workers   int     `mapstructure:"workers" yaml:"workers"`
}

// MatchConfig controls identity matching.
type MatchConfig struct {
	Reference   string  `mapstructure:"reference" yaml:"reference"` // mean, median
	Index       string  `mapstructure:"index" yaml:"index"`         // bruteforce, cover
	K           int     `mapstructure:"k" yaml:"k"`
	MaxDistance float64 `mapstructure:"max_distance" yaml:"max_distance"` // 0 = unlimited
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // debug, info, warn, error
	Format string `mapstructure:"format" yaml:"format"` // text, json
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Store:  StoreConfig{Path: "features.db"},
		Photos: PhotosConfig{Dir: "photos"},
		Ingest: IngestConfig{
			BatchSize: 1000,
			Debounce:  500 * time.Millisecond,
		},
		Outliers: OutliersConfig{
			Threshold: 0.6,
			Workers:   4,
		},
		Match: MatchConfig{
			Reference:   "mean",
			Index:       "bruteforce",
			K:           1,
			MaxDistance: 0.6,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func newViper(cfg *Config) *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Keys must be known to viper for env overrides to apply on Unmarshal.
	v.SetDefault("store.path", cfg.Store.Path)
	v.SetDefault("photos.dir", cfg.Photos.Dir)
	v.SetDefault("ingest.batch_size", cfg.Ingest.BatchSize)
	v.SetDefault("ingest.dimension", cfg.Ingest.Dimension)
	v.SetDefault("ingest.debounce", cfg.Ingest.Debounce)
	v.SetDefault("outliers.threshold", cfg.Outliers.Threshold)
	v.SetDefault("outliers.workers", cfg.Outliers.Workers)
	v.SetDefault("match.reference", cfg.Match.Reference)
	v.SetDefault("match.index", cfg.Match.Index)
	v.SetDefault("match.k", cfg.Match.K)
	v.SetDefault("match.max_distance", cfg.Match.MaxDistance)
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	return v
}

// Load reads configuration from path, applying FACEVEC_* environment
// overrides on top. A missing file yields defaults and a warning.
func Load(path string) (*Config, []string, error) {
	cfg := DefaultConfig()
	var warnings []string
	v := newViper(cfg)

	if path == "" {
		path = DefaultPath
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		warnings = append(warnings, fmt.Sprintf("No config file found at %s, using defaults", path))
	} else {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Ingest.BatchSize <= 0 {
		cfg.Ingest.BatchSize = DefaultConfig().Ingest.BatchSize
		warnings = append(warnings, fmt.Sprintf("Using default ingest batch size: %d", cfg.Ingest.BatchSize))
	}
	if cfg.Outliers.Workers <= 0 {
		cfg.Outliers.Workers = 1
	}
	return cfg, warnings, nil
}

// Save writes cfg to path as YAML.
func Save(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config dir: %w", err)
		}
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("store", cfg.Store)
	v.Set("photos", cfg.Photos)
	v.Set("ingest", map[string]any{
		"batch_size": cfg.Ingest.BatchSize,
		"dimension":  cfg.Ingest.Dimension,
		"debounce":   cfg.Ingest.Debounce.String(),
	})
	v.Set("outliers", cfg.Outliers)
	v.Set("match", cfg.Match)
	v.Set("logging", cfg.Logging)

	return v.WriteConfig()
}

// Validate validates the configuration.
func Validate(cfg *Config) []error {
	var errs []error

	if cfg.Store.Path == "" {
		errs = append(errs, fmt.Errorf("store path is required"))
	}
	if cfg.Ingest.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("invalid ingest batch size: %d", cfg.Ingest.BatchSize))
	}
	if cfg.Ingest.Dimension < 0 {
		errs = append(errs, fmt.Errorf("invalid ingest dimension: %d", cfg.Ingest.Dimension))
	}
	if cfg.Outliers.Threshold < 0 {
		errs = append(errs, fmt.Errorf("invalid outlier threshold: %v", cfg.Outliers.Threshold))
	}

	validReferences := map[string]bool{"mean": true, "median": true}
	if !validReferences[cfg.Match.Reference] {
		errs = append(errs, fmt.Errorf("invalid match reference: %s (valid: mean, median)", cfg.Match.Reference))
	}
	validIndexes := map[string]bool{"bruteforce": true, "cover": true}
	if !validIndexes[cfg.Match.Index] {
		errs = append(errs, fmt.Errorf("invalid match index: %s (valid: bruteforce, cover)", cfg.Match.Index))
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		errs = append(errs, fmt.Errorf("invalid logging level: %s", cfg.Logging.Level))
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[cfg.Logging.Format] {
		errs = append(errs, fmt.Errorf("invalid logging format: %s", cfg.Logging.Format))
	}

	return errs
}
