// Package config provides configuration loading and validation for the scraper service and CLI.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Browser drivers.
const (
	DriverREST = "rest"
	DriverCDP  = "cdp"
)

// Duration is a time.Duration that reads from JSON as "30s" or as a number of seconds.
type Duration struct {
	time.Duration
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value * float64(time.Second))
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value, err)
		}
		d.Duration = parsed
	default:
		return fmt.Errorf("invalid duration %s", string(b))
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Config represents the service configuration, loadable from a JSON file and the environment.
// Zero values are filled from Defaults().
type Config struct {
	// Server
	Port    int      `json:"port,omitempty" validate:"min=0,max=65535"`
	APIKeys []string `json:"api_keys,omitempty"`

	// Storage
	DatabaseURL string `json:"database_url,omitempty"`

	// Browser service
	BrowserDriver    string   `json:"browser_driver,omitempty" validate:"omitempty,oneof=rest cdp"`
	BrowserlessHost  string   `json:"browserless_host,omitempty" validate:"omitempty,url"`
	BrowserlessToken string   `json:"browserless_token,omitempty"`
	BrowserlessWSURL string   `json:"browserless_ws_url,omitempty" validate:"omitempty,url"`
	RequestTimeout   Duration `json:"request_timeout,omitempty"`
	MaxRetries       int      `json:"max_retries,omitempty" validate:"min=0,max=10"`
	RetryBaseDelay   Duration `json:"retry_base_delay,omitempty"`

	// Language model
	GeminiAPIKey          string `json:"gemini_api_key,omitempty"`
	LLMModelVision        string `json:"llm_model_vision,omitempty"`
	LLMModelFallback      string `json:"llm_model_fallback,omitempty"`
	ExtractionMaxAttempts int    `json:"extraction_max_attempts,omitempty" validate:"min=0,max=10"`

	// Jobs
	MaxPostsPerJob         int      `json:"max_posts_per_job,omitempty" validate:"min=0,max=50"`
	MaxInteractionsPerPost int      `json:"max_interactions_per_post,omitempty" validate:"min=0,max=500"`
	MaxConcurrentJobs      int      `json:"max_concurrent_jobs,omitempty" validate:"min=0,max=64"`
	JobTimeout             Duration `json:"job_timeout,omitempty"`
	JobRetryBudget         int      `json:"job_retry_budget,omitempty" validate:"min=0,max=10"`
	ProfileHost            string   `json:"profile_host,omitempty" validate:"omitempty,hostname"`
	InteractionsViewSuffix string   `json:"interactions_view_suffix,omitempty"`
	StepDelayMin           Duration `json:"step_delay_min,omitempty"`
	StepDelayMax           Duration `json:"step_delay_max,omitempty"`

	// Logging
	LogLevel  string `json:"log_level,omitempty" validate:"omitempty,oneof=debug info warn warning error"`
	LogFormat string `json:"log_format,omitempty" validate:"omitempty,oneof=json text"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Port:                   8080,
		BrowserDriver:          DriverREST,
		RequestTimeout:         Duration{30 * time.Second},
		MaxRetries:             3,
		RetryBaseDelay:         Duration{500 * time.Millisecond},
		LLMModelVision:         "gemini-2.5-flash",
		LLMModelFallback:       "gemini-2.5-flash-lite",
		ExtractionMaxAttempts:  3,
		MaxPostsPerJob:         5,
		MaxInteractionsPerPost: 30,
		MaxConcurrentJobs:      4,
		JobTimeout:             Duration{10 * time.Minute},
		JobRetryBudget:         2,
		ProfileHost:            "www.instagram.com",
		InteractionsViewSuffix: "liked_by/",
		StepDelayMin:           Duration{time.Second},
		StepDelayMax:           Duration{3 * time.Second},
		LogLevel:               "info",
		LogFormat:              "json",
	}
}

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// FromEnv reads the configuration keys present in the process environment. Unset keys stay
// zero so the result can be merged over a file config.
func FromEnv() (*Config, error) {
	var cfg Config
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) {
		v, ok := os.LookupEnv(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %v", key, err))
			return
		}
		*dst = n
	}
	dur := func(key string, dst *Duration) {
		v, ok := os.LookupEnv(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		v = strings.TrimSpace(v)
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			dst.Duration = time.Duration(secs * float64(time.Second))
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %v", key, err))
			return
		}
		dst.Duration = d
	}

	num("PORT", &cfg.Port)
	if v, ok := os.LookupEnv("API_KEYS"); ok {
		for _, key := range strings.Split(v, ",") {
			if key = strings.TrimSpace(key); key != "" {
				cfg.APIKeys = append(cfg.APIKeys, key)
			}
		}
	}
	str("DATABASE_URL", &cfg.DatabaseURL)
	str("BROWSER_DRIVER", &cfg.BrowserDriver)
	str("BROWSERLESS_HOST", &cfg.BrowserlessHost)
	str("BROWSERLESS_TOKEN", &cfg.BrowserlessToken)
	str("BROWSERLESS_WS_URL", &cfg.BrowserlessWSURL)
	dur("REQUEST_TIMEOUT", &cfg.RequestTimeout)
	num("MAX_RETRIES", &cfg.MaxRetries)
	dur("RETRY_BASE_DELAY", &cfg.RetryBaseDelay)
	str("GEMINI_API_KEY", &cfg.GeminiAPIKey)
	str("LLM_MODEL_VISION", &cfg.LLMModelVision)
	str("LLM_MODEL_FALLBACK", &cfg.LLMModelFallback)
	num("EXTRACTION_MAX_ATTEMPTS", &cfg.ExtractionMaxAttempts)
	num("MAX_POSTS_PER_JOB", &cfg.MaxPostsPerJob)
	num("MAX_INTERACTIONS_PER_POST", &cfg.MaxInteractionsPerPost)
	num("MAX_CONCURRENT_JOBS", &cfg.MaxConcurrentJobs)
	dur("JOB_TIMEOUT", &cfg.JobTimeout)
	num("JOB_RETRY_BUDGET", &cfg.JobRetryBudget)
	str("PROFILE_HOST", &cfg.ProfileHost)
	str("INTERACTIONS_VIEW_SUFFIX", &cfg.InteractionsViewSuffix)
	dur("STEP_DELAY_MIN", &cfg.StepDelayMin)
	dur("STEP_DELAY_MAX", &cfg.StepDelayMax)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("LOG_FORMAT", &cfg.LogFormat)

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return &cfg, nil
}

// Load builds the effective configuration: environment over file over defaults. An empty
// path skips the file.
func Load(path string) (*Config, error) {
	file := &Config{}
	if path != "" {
		loaded, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		file = loaded
	}
	env, err := FromEnv()
	if err != nil {
		return nil, err
	}

	merged := env.MergeWithDefaults(*file)
	merged = merged.MergeWithDefaults(Defaults())
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return &merged, nil
}

// Validate checks that the configuration has valid values.
// Note: This doesn't check for credentials since only serve needs them; see ValidateForServe.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("'%s' failed '%s' (value %v)", fe.Field(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("config error: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("config error: %w", err)
	}

	for name, d := range map[string]Duration{
		"request_timeout":  c.RequestTimeout,
		"retry_base_delay": c.RetryBaseDelay,
		"job_timeout":      c.JobTimeout,
		"step_delay_min":   c.StepDelayMin,
		"step_delay_max":   c.StepDelayMax,
	} {
		if d.Duration < 0 {
			return fmt.Errorf("config error: '%s' must be non-negative", name)
		}
	}
	if c.StepDelayMax.Duration < c.StepDelayMin.Duration {
		return fmt.Errorf("config error: 'step_delay_max' must not be less than 'step_delay_min'")
	}
	if c.BrowserDriver == DriverCDP && c.BrowserlessWSURL == "" && c.BrowserlessHost == "" {
		return fmt.Errorf("config error: cdp driver needs 'browserless_ws_url' or 'browserless_host'")
	}
	return nil
}

// ValidateForServe checks the settings the long-running service cannot start without.
func (c *Config) ValidateForServe(memory bool) error {
	var missing []string
	if c.GeminiAPIKey == "" {
		missing = append(missing, "GEMINI_API_KEY")
	}
	if c.BrowserlessHost == "" && c.BrowserlessWSURL == "" {
		missing = append(missing, "BROWSERLESS_HOST")
	}
	if !memory && c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("config error: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// WebSocketURL returns the DevTools endpoint for the cdp driver, derived from the REST host
// when not set explicitly.
func (c *Config) WebSocketURL() string {
	if c.BrowserlessWSURL != "" {
		return c.BrowserlessWSURL
	}
	ws := c.BrowserlessHost
	switch {
	case strings.HasPrefix(ws, "https://"):
		ws = "wss://" + strings.TrimPrefix(ws, "https://")
	case strings.HasPrefix(ws, "http://"):
		ws = "ws://" + strings.TrimPrefix(ws, "http://")
	}
	if c.BrowserlessToken != "" {
		sep := "?"
		if strings.Contains(ws, "?") {
			sep = "&"
		}
		ws += sep + "token=" + c.BrowserlessToken
	}
	return ws
}

// MergeWithDefaults returns a new Config with zero fields filled from defaults.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// String fields: use default if empty
	for _, f := range []struct{ dst, def *string }{
		{&result.DatabaseURL, &defaults.DatabaseURL},
		{&result.BrowserDriver, &defaults.BrowserDriver},
		{&result.BrowserlessHost, &defaults.BrowserlessHost},
		{&result.BrowserlessToken, &defaults.BrowserlessToken},
		{&result.BrowserlessWSURL, &defaults.BrowserlessWSURL},
		{&result.GeminiAPIKey, &defaults.GeminiAPIKey},
		{&result.LLMModelVision, &defaults.LLMModelVision},
		{&result.LLMModelFallback, &defaults.LLMModelFallback},
		{&result.ProfileHost, &defaults.ProfileHost},
		{&result.InteractionsViewSuffix, &defaults.InteractionsViewSuffix},
		{&result.LogLevel, &defaults.LogLevel},
		{&result.LogFormat, &defaults.LogFormat},
	} {
		if *f.dst == "" {
			*f.dst = *f.def
		}
	}

	// Int fields: use default if zero
	for _, f := range []struct{ dst, def *int }{
		{&result.Port, &defaults.Port},
		{&result.MaxRetries, &defaults.MaxRetries},
		{&result.ExtractionMaxAttempts, &defaults.ExtractionMaxAttempts},
		{&result.MaxPostsPerJob, &defaults.MaxPostsPerJob},
		{&result.MaxInteractionsPerPost, &defaults.MaxInteractionsPerPost},
		{&result.MaxConcurrentJobs, &defaults.MaxConcurrentJobs},
		{&result.JobRetryBudget, &defaults.JobRetryBudget},
	} {
		if *f.dst == 0 {
			*f.dst = *f.def
		}
	}

	for _, f := range []struct{ dst, def *Duration }{
		{&result.RequestTimeout, &defaults.RequestTimeout},
		{&result.RetryBaseDelay, &defaults.RetryBaseDelay},
		{&result.JobTimeout, &defaults.JobTimeout},
		{&result.StepDelayMin, &defaults.StepDelayMin},
		{&result.StepDelayMax, &defaults.StepDelayMax},
	} {
		if f.dst.Duration == 0 {
			*f.dst = *f.def
		}
	}

	if len(result.APIKeys) == 0 {
		result.APIKeys = append([]string(nil), defaults.APIKeys...)
	}

	return result
}
