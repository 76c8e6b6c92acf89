// Package config loads service configuration from an optional YAML file, then environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full service configuration. YAML keys mirror the env names in lower snake case.
type Config struct {
	Port           string `yaml:"port"`
	StorageBackend string `yaml:"storage_backend"`
	DatabaseURL    string `yaml:"database_url"`

	Auth    AuthConfig    `yaml:"auth"`
	Log     LogConfig     `yaml:"log"`
	Jobs    JobsConfig    `yaml:"jobs"`
	Map     MapConfig     `yaml:"map"`
	Seed    SeedConfig    `yaml:"seed"`
	Batches BatchesConfig `yaml:"batches"`
}

type AuthConfig struct {
	// Mode is jwt or dev.
	Mode       string        `yaml:"mode"`
	JWTSecret  string        `yaml:"jwt_secret"`
	Issuer     string        `yaml:"jwt_issuer"`
	Audience   string        `yaml:"jwt_audience"`
	ClockSkew  time.Duration `yaml:"jwt_clock_skew"`
	DevSubject string        `yaml:"dev_subject"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

type JobsConfig struct {
	Enabled                bool          `yaml:"enabled"`
	ScoreRecomputeInterval time.Duration `yaml:"score_recompute_interval"`
	PlacementInterval      time.Duration `yaml:"placement_interval"`
}

type MapConfig struct {
	// RateLimit is requests per second per client on /map/riders; 0 disables limiting.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

type SeedConfig struct {
	LocalityFile string `yaml:"locality_file"`
}

type BatchesConfig struct {
	// LockTTL bounds how long a crashed batch run can block the next one.
	LockTTL time.Duration `yaml:"lock_ttl"`
}

// Default returns the configuration used when neither file nor env set a value.
func Default() Config {
	return Config{
		Port:           "8080",
		StorageBackend: "memory",
		Auth: AuthConfig{
			Mode:       "jwt",
			ClockSkew:  30 * time.Second,
			DevSubject: "dev|local",
		},
		Log: LogConfig{Level: "info", Format: "text"},
		Jobs: JobsConfig{
			ScoreRecomputeInterval: 7 * 24 * time.Hour,
			PlacementInterval:      24 * time.Hour,
		},
		Map:     MapConfig{RateLimit: 5, RateBurst: 10},
		Batches: BatchesConfig{LockTTL: 15 * time.Minute},
	}
}

// ParseError reports an env var or file value that could not be parsed.
type ParseError struct {
	Key   string
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s=%q: %v", e.Key, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Load reads path (if non-empty) over the defaults, then applies env overrides and validates.
func Load(path string) (Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return &ParseError{Key: key, Value: v, Err: errors.New("must be a duration (e.g. 30s, 24h)")}
		}
		*dst = d
		return nil
	}

	str("PORT", &cfg.Port)
	str("STORAGE_BACKEND", &cfg.StorageBackend)
	str("DATABASE_URL", &cfg.DatabaseURL)
	str("AUTH_MODE", &cfg.Auth.Mode)
	str("JWT_SECRET", &cfg.Auth.JWTSecret)
	str("JWT_ISSUER", &cfg.Auth.Issuer)
	str("JWT_AUDIENCE", &cfg.Auth.Audience)
	str("DEV_SUBJECT", &cfg.Auth.DevSubject)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)
	str("LOG_FILE", &cfg.Log.File)
	str("LOCALITY_SEED_FILE", &cfg.Seed.LocalityFile)

	for key, dst := range map[string]*time.Duration{
		"JWT_CLOCK_SKEW":           &cfg.Auth.ClockSkew,
		"SCORE_RECOMPUTE_INTERVAL": &cfg.Jobs.ScoreRecomputeInterval,
		"PLACEMENT_INTERVAL":       &cfg.Jobs.PlacementInterval,
		"BATCH_LOCK_TTL":           &cfg.Batches.LockTTL,
	} {
		if err := dur(key, dst); err != nil {
			return err
		}
	}

	if v, ok := lookup("JOBS_ENABLED"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return &ParseError{Key: "JOBS_ENABLED", Value: v, Err: errors.New("must be a boolean")}
		}
		cfg.Jobs.Enabled = b
	}
	if v, ok := lookup("MAP_RATE_LIMIT"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			return &ParseError{Key: "MAP_RATE_LIMIT", Value: v, Err: errors.New("must be a non-negative number")}
		}
		cfg.Map.RateLimit = f
	}
	if v, ok := lookup("MAP_RATE_BURST"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return &ParseError{Key: "MAP_RATE_BURST", Value: v, Err: errors.New("must be a positive integer")}
		}
		cfg.Map.RateBurst = n
	}
	return nil
}

// Validate checks cross-field requirements.
func (c Config) Validate() error {
	switch c.StorageBackend {
	case "memory":
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when STORAGE_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q (want memory or postgres)", c.StorageBackend)
	}

	switch strings.ToLower(c.Auth.Mode) {
	case "dev":
	case "jwt":
		if c.Auth.JWTSecret == "" {
			return errors.New("missing required env var: JWT_SECRET (or set AUTH_MODE=dev)")
		}
	default:
		return fmt.Errorf("unknown AUTH_MODE %q (want jwt or dev)", c.Auth.Mode)
	}

	if c.Jobs.Enabled && c.StorageBackend != "postgres" {
		return errors.New("JOBS_ENABLED requires STORAGE_BACKEND=postgres")
	}
	if c.Jobs.ScoreRecomputeInterval <= 0 || c.Jobs.PlacementInterval <= 0 {
		return errors.New("job intervals must be positive")
	}
	if c.Batches.LockTTL <= 0 {
		return errors.New("batch lock ttl must be positive")
	}
	return nil
}
