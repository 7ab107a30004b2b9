package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"github.com/rendis/pyconst/internal/engine"
	"github.com/rendis/pyconst/internal/ops"
	"github.com/rendis/pyconst/internal/scheduler"
	"github.com/rendis/pyconst/internal/validation"
	"github.com/rendis/pyconst/pkg/schema"
)

// Config holds all pyconst configuration.
// Priority: flags > env vars > config file > defaults.
type Config struct {
	DBPath                 string         `json:"db_path"`
	LogLevel               string         `json:"log_level"`
	LogFormat              string         `json:"log_format"`
	PoolSize               int            `json:"pool_size"`
	MaxIntBits             int            `json:"max_int_bits"`
	ScanSkipped            bool           `json:"scan_skipped"`
	IncludeSkippedWarnings bool           `json:"include_skipped_warnings"`
	Color                  string         `json:"color"`
	Bindings               map[string]any `json:"bindings,omitempty"`
	Watch                  WatchConfig    `json:"watch"`

	// Source is the config file that was loaded, if any.
	Source string `json:"-"`
}

// WatchConfig tunes the watch scheduler. Durations are Go duration strings.
type WatchConfig struct {
	Interval         string `json:"interval"`
	FailureThreshold int    `json:"failure_threshold"`
	Cooldown         string `json:"cooldown"`
	RetryAttempts    int    `json:"retry_attempts"`
}

// configFileNames are searched in the working directory, in order.
var configFileNames = []string{".pyconst.yaml", ".pyconst.yml", ".pyconst.json"}

func defaultConfig() Config {
	breaker := engine.DefaultBreakerConfig()
	retry := engine.DefaultRetryPolicy()
	return Config{
		DBPath:                 filepath.Join(pyconstDir(), "pyconst.db"),
		LogLevel:               "warn",
		LogFormat:              "text",
		PoolSize:               8,
		MaxIntBits:             ops.DefaultMaxIntBits,
		ScanSkipped:            true,
		IncludeSkippedWarnings: true,
		Color:                  "auto",
		Watch: WatchConfig{
			Interval:         scheduler.DefaultInterval.String(),
			FailureThreshold: breaker.FailureThreshold,
			Cooldown:         breaker.Cooldown.String(),
			RetryAttempts:    retry.Attempts,
		},
	}
}

func pyconstDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pyconst"
	}
	return filepath.Join(home, ".pyconst")
}

// loadConfig layers defaults, the config file and PYCONST_* env vars. An
// explicit path must exist; otherwise the working directory is searched.
// Flags are applied afterwards by the root command.
func loadConfig(explicit, dir string) (Config, error) {
	cfg := defaultConfig()

	// Layer 2: config file.
	path, data, err := findConfigFile(explicit, dir)
	if err != nil {
		return cfg, err
	}
	if path != "" {
		if err := applyConfigFile(&cfg, path, data); err != nil {
			return cfg, err
		}
		cfg.Source = path
	}

	// Layer 3: env vars override.
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func findConfigFile(explicit, dir string) (string, []byte, error) {
	if explicit != "" {
		data, err := os.ReadFile(explicit)
		if err != nil {
			code := schema.ErrCodeConfig
			if errors.Is(err, fs.ErrNotExist) {
				code = schema.ErrCodeNotFound
			}
			return "", nil, schema.NewError(code, "cannot read config file").WithFile(explicit).WithCause(err)
		}
		return explicit, data, nil
	}
	for _, name := range configFileNames {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err == nil {
			return path, data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", nil, schema.NewError(schema.ErrCodeConfig, "cannot read config file").WithFile(path).WithCause(err)
		}
	}
	return "", nil, nil
}

// applyConfigFile decodes YAML (a superset of JSON), validates the document
// against the config schema and merges it over cfg.
func applyConfigFile(cfg *Config, path string, data []byte) error {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return schema.NewError(schema.ErrCodeConfig, "config file is not valid YAML").WithFile(path).WithCause(err)
	}
	if len(doc) == 0 {
		return nil
	}

	validator, err := validation.NewJSONSchemaValidator()
	if err != nil {
		return err
	}
	if err := validator.ValidateConfig(doc); err != nil {
		var pe *schema.PyconstError
		if errors.As(err, &pe) {
			return pe.WithFile(path)
		}
		return err
	}

	// The document is schema-valid; round-trip through JSON onto the
	// defaults so unset keys keep their default values.
	raw, err := json.Marshal(doc)
	if err != nil {
		return schema.NewError(schema.ErrCodeConfig, "config file is not representable as JSON").WithFile(path).WithCause(err)
	}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return schema.NewError(schema.ErrCodeConfig, "cannot decode config file").WithFile(path).WithCause(err)
	}
	// JSON would turn every number into a float; keep YAML's int/float split.
	if b, ok := doc["bindings"].(map[string]any); ok {
		cfg.Bindings = b
	}
	return nil
}

type lookupFunc func(key string) (string, bool)

// applyEnv applies PYCONST_* overrides.
func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := cast.ToIntE(strings.TrimSpace(v))
		if err != nil {
			return schema.NewErrorf(schema.ErrCodeConfig, "%s: %q is not an integer", key, v).WithCause(err)
		}
		*dst = n
		return nil
	}
	boolean := func(key string, dst *bool) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		b, err := cast.ToBoolE(strings.TrimSpace(v))
		if err != nil {
			return schema.NewErrorf(schema.ErrCodeConfig, "%s: %q is not a boolean", key, v).WithCause(err)
		}
		*dst = b
		return nil
	}

	str("PYCONST_DB_PATH", &cfg.DBPath)
	str("PYCONST_LOG_LEVEL", &cfg.LogLevel)
	str("PYCONST_LOG_FORMAT", &cfg.LogFormat)
	str("PYCONST_COLOR", &cfg.Color)
	str("PYCONST_WATCH_INTERVAL", &cfg.Watch.Interval)
	if _, ok := lookup("NO_COLOR"); ok {
		cfg.Color = "never"
	}
	return errors.Join(
		integer("PYCONST_POOL_SIZE", &cfg.PoolSize),
		integer("PYCONST_MAX_INT_BITS", &cfg.MaxIntBits),
		boolean("PYCONST_SCAN_SKIPPED", &cfg.ScanSkipped),
		boolean("PYCONST_INCLUDE_SKIPPED_WARNINGS", &cfg.IncludeSkippedWarnings),
	)
}

// validate checks values that flags and env vars could have set outside the
// schema's ranges.
func (c Config) validate() error {
	var problems []string
	if c.PoolSize < 1 {
		problems = append(problems, fmt.Sprintf("pool_size must be at least 1, got %d", c.PoolSize))
	}
	if c.MaxIntBits < 64 {
		problems = append(problems, fmt.Sprintf("max_int_bits must be at least 64, got %d", c.MaxIntBits))
	}
	switch c.Color {
	case "auto", "always", "never":
	default:
		problems = append(problems, fmt.Sprintf("color must be auto, always or never, got %q", c.Color))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("log_format must be text or json, got %q", c.LogFormat))
	}
	if _, err := c.watchOptions(); err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) > 0 {
		return schema.NewError(schema.ErrCodeConfig, strings.Join(problems, "; ")).
			WithDetails(map[string]any{"violations": problems})
	}
	return nil
}

func (c Config) limits() ops.Limits {
	return ops.Limits{MaxIntBits: c.MaxIntBits}
}

// watchOptions converts the watch section into scheduler options.
func (c Config) watchOptions() (scheduler.Options, error) {
	opts := scheduler.Options{
		Retry:   engine.DefaultRetryPolicy(),
		Breaker: engine.DefaultBreakerConfig(),
	}
	var err error
	if c.Watch.Interval != "" {
		if opts.Interval, err = time.ParseDuration(c.Watch.Interval); err != nil {
			return opts, fmt.Errorf("watch.interval: %w", err)
		}
	}
	if c.Watch.Cooldown != "" {
		if opts.Breaker.Cooldown, err = time.ParseDuration(c.Watch.Cooldown); err != nil {
			return opts, fmt.Errorf("watch.cooldown: %w", err)
		}
	}
	if c.Watch.FailureThreshold > 0 {
		opts.Breaker.FailureThreshold = c.Watch.FailureThreshold
	}
	if c.Watch.RetryAttempts > 0 {
		opts.Retry.Attempts = c.Watch.RetryAttempts
	}
	return opts, nil
}
