package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_ValidJSON(t *testing.T) {
	content := `{
		"port": 9090,
		"browser_driver": "cdp",
		"browserless_host": "http://browserless:3000",
		"job_timeout": "2m",
		"step_delay_min": 0.5,
		"max_posts_per_job": 3,
		"api_keys": ["k1", "k2"]
	}`

	tmpFile := filepath.Join(t.TempDir(), "config.json")
	err := os.WriteFile(tmpFile, []byte(content), 0644)
	require.NoError(t, err)

	cfg, err := LoadConfig(tmpFile)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, DriverCDP, cfg.BrowserDriver)
	assert.Equal(t, "http://browserless:3000", cfg.BrowserlessHost)
	assert.Equal(t, 2*time.Minute, cfg.JobTimeout.Duration)
	assert.Equal(t, 500*time.Millisecond, cfg.StepDelayMin.Duration)
	assert.Equal(t, 3, cfg.MaxPostsPerJob)
	assert.Equal(t, []string{"k1", "k2"}, cfg.APIKeys)
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(tmpFile, []byte(`{ invalid json }`), 0644))

	cfg, err := LoadConfig(tmpFile)
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to parse config JSON")
}

func TestLoadConfig_BadDuration(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(tmpFile, []byte(`{"job_timeout": "soon"}`), 0644))

	_, err := LoadConfig(tmpFile)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	cfg, err := LoadConfig("/nonexistent/path/config.json")
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "config path is empty")
}

func TestFromEnv(t *testing.T) {
	t.Setenv("PORT", "7000")
	t.Setenv("API_KEYS", " a , ,b ")
	t.Setenv("BROWSERLESS_HOST", "http://localhost:3000")
	t.Setenv("JOB_TIMEOUT", "90")
	t.Setenv("STEP_DELAY_MAX", "4s")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("MAX_INTERACTIONS_PER_POST", "12")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, []string{"a", "b"}, cfg.APIKeys)
	assert.Equal(t, "http://localhost:3000", cfg.BrowserlessHost)
	assert.Equal(t, 90*time.Second, cfg.JobTimeout.Duration)
	assert.Equal(t, 4*time.Second, cfg.StepDelayMax.Duration)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 12, cfg.MaxInteractionsPerPost)
}

func TestFromEnv_InvalidNumbers(t *testing.T) {
	t.Setenv("MAX_RETRIES", "three")
	t.Setenv("JOB_TIMEOUT", "later")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAX_RETRIES")
	assert.Contains(t, err.Error(), "JOB_TIMEOUT")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(tmpFile, []byte(`{"port": 9090, "max_posts_per_job": 3}`), 0644))
	t.Setenv("PORT", "7000")
	t.Setenv("MAX_POSTS_PER_JOB", "")

	cfg, err := Load(tmpFile)
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, 3, cfg.MaxPostsPerJob)
	assert.Equal(t, "www.instagram.com", cfg.ProfileHost)
	assert.Equal(t, 10*time.Minute, cfg.JobTimeout.Duration)
}

func TestValidate(t *testing.T) {
	valid := Defaults()
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"bad driver", func(c *Config) { c.BrowserDriver = "selenium" }, "BrowserDriver"},
		{"port range", func(c *Config) { c.Port = 70000 }, "Port"},
		{"too many posts", func(c *Config) { c.MaxPostsPerJob = 500 }, "MaxPostsPerJob"},
		{"too many interactions", func(c *Config) { c.MaxInteractionsPerPost = 1000 }, "MaxInteractionsPerPost"},
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "LogLevel"},
		{"delay order", func(c *Config) { c.StepDelayMax = Duration{0}; c.StepDelayMin = Duration{time.Second} }, "step_delay_max"},
		{"negative timeout", func(c *Config) { c.JobTimeout = Duration{-time.Second} }, "job_timeout"},
		{"cdp without endpoint", func(c *Config) { c.BrowserDriver = DriverCDP }, "cdp driver"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "config error")
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateForServe(t *testing.T) {
	cfg := Defaults()
	err := cfg.ValidateForServe(false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GEMINI_API_KEY")
	assert.Contains(t, err.Error(), "BROWSERLESS_HOST")
	assert.Contains(t, err.Error(), "DATABASE_URL")

	cfg.GeminiAPIKey = "key"
	cfg.BrowserlessHost = "http://localhost:3000"
	assert.NoError(t, cfg.ValidateForServe(true))
}

func TestWebSocketURL(t *testing.T) {
	cfg := Config{BrowserlessHost: "https://chrome.example.com", BrowserlessToken: "tok"}
	assert.Equal(t, "wss://chrome.example.com?token=tok", cfg.WebSocketURL())

	cfg = Config{BrowserlessHost: "http://localhost:3000"}
	assert.Equal(t, "ws://localhost:3000", cfg.WebSocketURL())

	cfg = Config{BrowserlessWSURL: "ws://other:3000", BrowserlessHost: "http://localhost:3000"}
	assert.Equal(t, "ws://other:3000", cfg.WebSocketURL())
}

func TestMergeWithDefaults(t *testing.T) {
	defaults := Defaults()
	defaults.APIKeys = []string{"default"}
	cfg := Config{Port: 9000, LogFormat: "text"}

	merged := cfg.MergeWithDefaults(defaults)
	assert.Equal(t, 9000, merged.Port)
	assert.Equal(t, "text", merged.LogFormat)
	assert.Equal(t, "info", merged.LogLevel)
	assert.Equal(t, 4, merged.MaxConcurrentJobs)
	assert.Equal(t, time.Second, merged.StepDelayMin.Duration)
	assert.Equal(t, []string{"default"}, merged.APIKeys)

	// Original is untouched
	assert.Empty(t, cfg.LogLevel)
}
