package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/oxhq/testgap/bedrock"
)

// EnvPrefix is prepended to every environment variable read by FromEnv
const EnvPrefix = "TESTGAP_"

// Config holds the testgap run configuration
type Config struct {
	// Inputs
	SourcePath string
	TestPath   string
	ScanPath   string // defaults to the source file directory

	// Output
	OutDir string

	// Run history; empty disables recording
	DatabaseURL string

	// Model service
	Region    string
	ModelID   string
	MaxTokens int
	Timeout   time.Duration
	Endpoint  string

	// Logging
	Debug     bool
	LogFormat string
}

// Default returns the configuration of the CI job layout
func Default() Config {
	return Config{
		SourcePath: "src/user_service.py",
		TestPath:   "tests/test_user_service.py",
		OutDir:     ".",
		Region:     bedrock.DefaultRegion,
		ModelID:    bedrock.DefaultModelID,
		MaxTokens:  bedrock.DefaultMaxTokens,
		Timeout:    bedrock.DefaultTimeout,
		LogFormat:  "text",
	}
}

// Load reads .env files (missing ones are ignored) and applies the
// environment over the defaults
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}
	return FromEnv(Default(), os.LookupEnv)
}

// FromEnv overrides cfg with TESTGAP_* variables found by lookup
func FromEnv(cfg Config, lookup func(string) (string, bool)) (Config, error) {
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return "", false
		}
		v = strings.TrimSpace(v)
		return v, v != ""
	}

	if v, ok := get("SOURCE"); ok {
		cfg.SourcePath = v
	}
	if v, ok := get("TEST"); ok {
		cfg.TestPath = v
	}
	if v, ok := get("SCAN_PATH"); ok {
		cfg.ScanPath = v
	}
	if v, ok := get("OUT_DIR"); ok {
		cfg.OutDir = v
	}
	if v, ok := get("DB"); ok {
		cfg.DatabaseURL = v
	}
	if v, ok := get("REGION"); ok {
		cfg.Region = v
	}
	if v, ok := get("MODEL_ID"); ok {
		cfg.ModelID = v
	}
	if v, ok := get("BEDROCK_ENDPOINT"); ok {
		cfg.Endpoint = v
	}
	if v, ok := get("LOG_FORMAT"); ok {
		cfg.LogFormat = strings.ToLower(v)
	}
	if v, ok := get("MAX_TOKENS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("%sMAX_TOKENS: %w", EnvPrefix, err)
		}
		cfg.MaxTokens = n
	}
	if v, ok := get("TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("%sTIMEOUT: %w", EnvPrefix, err)
		}
		cfg.Timeout = d
	}
	if v, ok := get("DEBUG"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("%sDEBUG: %w", EnvPrefix, err)
		}
		cfg.Debug = b
	}

	return cfg, nil
}

// Validate checks required values
func (c Config) Validate() error {
	var errs []error
	if c.SourcePath == "" {
		errs = append(errs, errors.New("source path is required"))
	}
	if c.TestPath == "" {
		errs = append(errs, errors.New("test path is required"))
	}
	if c.Region == "" {
		errs = append(errs, errors.New("region is required"))
	}
	if c.ModelID == "" {
		errs = append(errs, errors.New("model id is required"))
	}
	if c.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("max tokens must be positive, got %d", c.MaxTokens))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive, got %s", c.Timeout))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("log format must be text or json, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// Bedrock returns the model client settings
func (c Config) Bedrock() bedrock.Config {
	return bedrock.Config{
		Region:    c.Region,
		ModelID:   c.ModelID,
		MaxTokens: c.MaxTokens,
		Timeout:   c.Timeout,
		Endpoint:  c.Endpoint,
	}
}
