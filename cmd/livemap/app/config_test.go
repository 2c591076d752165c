package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safemelbourne/livemap/pkg/constants"
	"github.com/safemelbourne/livemap/pkg/errors"
	"github.com/safemelbourne/livemap/pkg/status"
	"github.com/safemelbourne/livemap/pkg/stream"
)

// isolate points HOME at an empty directory so a developer's
// ~/.livemap.yaml does not leak into the test.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	return dir
}

func TestLoadConfig_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Empty(t, cfg.BaseURL)
	assert.Equal(t, stream.DefaultPath, cfg.StreamPath)
	assert.Equal(t, status.DefaultPath, cfg.StatusPath)
	assert.Equal(t, constants.DefaultTimeWindowHours, cfg.Hours)
	assert.Equal(t, "all", cfg.Filter)
	assert.Equal(t, "dark-v11", cfg.Style)
	assert.Equal(t, constants.StoreCap, cfg.StoreCap)
	assert.InDelta(t, constants.DefaultMinConfidence, cfg.MinConfidence, 1e-9)
	assert.Equal(t, constants.DefaultWarningLimit, cfg.WarningLimit)
	assert.Equal(t, constants.DefaultHost, cfg.Host)
	assert.Equal(t, constants.DefaultPort, cfg.Port)
	assert.Equal(t, constants.DefaultCacheTTL, cfg.CacheTTL)
	assert.Equal(t, "auto", cfg.LogFormat)
	assert.Equal(t, "stderr", cfg.LogOutput)
	assert.Empty(t, cfg.LogLevel)
}

func TestLoadConfig_Environment(t *testing.T) {
	isolate(t)
	t.Setenv("LIVEMAP_BASE_URL", "https://safe.example.org/")
	t.Setenv("LIVEMAP_HOURS", "6")
	t.Setenv("LIVEMAP_FILTER", "warnings")
	t.Setenv("LIVEMAP_MOBILE", "true")
	t.Setenv("LIVEMAP_AUTO_REFRESH", "2m")
	t.Setenv("LIVEMAP_LOG_LEVEL", "debug")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "https://safe.example.org", cfg.BaseURL, "trailing slash is trimmed")
	assert.Equal(t, 6, cfg.Hours)
	assert.Equal(t, "warnings", cfg.Filter)
	assert.True(t, cfg.Mobile)
	assert.Equal(t, 2*time.Minute, cfg.AutoRefresh)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfig_File(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "livemap.yaml")
	require.NoError(t, os.WriteFile(path, []byte("base_url: http://localhost:3000\nport: 9090\nstore_cap: 50\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3000", cfg.BaseURL)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 50, cfg.StoreCap)
	assert.Equal(t, path, cfg.ConfigFile)
}

func TestLoadConfig_HomeFile(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".livemap.yaml"), []byte("hours: 12\n"), 0o600))

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Hours)
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	dir := isolate(t)

	_, err := LoadConfig(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	var cfgErr *errors.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{BaseURL: "http://localhost:3000", Hours: 24, Filter: "all", StoreCap: 200, Port: 8080}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "no window", mutate: func(c *Config) { c.Hours = 0 }},
		{name: "missing base url", mutate: func(c *Config) { c.BaseURL = "" }, wantErr: true},
		{name: "negative hours", mutate: func(c *Config) { c.Hours = -1 }, wantErr: true},
		{name: "zero store cap", mutate: func(c *Config) { c.StoreCap = 0 }, wantErr: true},
		{name: "unknown filter", mutate: func(c *Config) { c.Filter = "cats" }, wantErr: true},
		{name: "port out of range", mutate: func(c *Config) { c.Port = 70000 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_StyleURL(t *testing.T) {
	url, err := (&Config{Style: "dark-v11"}).StyleURL()
	require.NoError(t, err)
	assert.Equal(t, "mapbox://styles/mapbox/dark-v11", url)

	url, err = (&Config{Style: "https://tiles.example.org/style.json"}).StyleURL()
	require.NoError(t, err)
	assert.Equal(t, "https://tiles.example.org/style.json", url)

	_, err = (&Config{Style: "neon"}).StyleURL()
	assert.True(t, errors.IsValidationError(err))
}

func TestConfig_UpdateFromFlags(t *testing.T) {
	cfg := &Config{Format: "yaml", LogLevel: "error"}

	cfg.UpdateFromFlags(true, false, true, "", "")
	assert.True(t, cfg.Verbose)
	assert.True(t, cfg.NoColor)
	assert.Equal(t, "yaml", cfg.Format, "empty flag keeps configured format")
	assert.Equal(t, "error", cfg.LogLevel)

	cfg.UpdateFromFlags(false, true, false, "json", "trace")
	assert.True(t, cfg.Quiet)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "trace", cfg.LogLevel)
}
