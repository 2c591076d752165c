package app

import (
	stderrors "errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/safemelbourne/livemap/pkg/constants"
	"github.com/safemelbourne/livemap/pkg/errors"
	"github.com/safemelbourne/livemap/pkg/events"
	"github.com/safemelbourne/livemap/pkg/status"
	"github.com/safemelbourne/livemap/pkg/stream"
	"github.com/safemelbourne/livemap/pkg/surface"
)

// EnvPrefix prefixes every environment variable the CLI reads.
const EnvPrefix = "LIVEMAP"

// Config holds the application configuration loaded from config files,
// environment variables and .env files.
type Config struct {
	// Global flags
	Verbose bool
	Quiet   bool
	NoColor bool
	Format  string

	// Config file
	ConfigFile string

	// Backend
	BaseURL       string
	StreamPath    string
	StatusPath    string
	MinConfidence float64
	WarningLimit  int

	// Dashboard
	Mobile      bool
	Hours       int
	Filter      string
	Style       string
	StoreCap    int
	AutoRefresh time.Duration

	// Mirror server
	Host     string
	Port     int
	CacheTTL time.Duration

	// Logging configuration
	LogLevel  string
	LogFormat string
	LogOutput string
}

// LoadConfig loads configuration from all sources in order of precedence:
// 1. Command-line flags (handled by cobra)
// 2. Environment variables (LIVEMAP_*)
// 3. .env files
// 4. Config file (configFile, or ~/.livemap.yaml)
// 5. Defaults
func LoadConfig(configFile string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if configFile == "" {
		configFile = v.GetString("config")
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.NewConfigError("config", "reading "+configFile, err)
		}
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(".livemap")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !stderrors.As(err, &notFound) {
				return nil, errors.NewConfigError("config", "reading .livemap.yaml", err)
			}
		}
	}

	config := &Config{
		ConfigFile: v.ConfigFileUsed(),

		BaseURL:       strings.TrimRight(v.GetString("base_url"), "/"),
		StreamPath:    v.GetString("stream_path"),
		StatusPath:    v.GetString("status_path"),
		MinConfidence: v.GetFloat64("min_confidence"),
		WarningLimit:  v.GetInt("warning_limit"),

		Mobile:      v.GetBool("mobile"),
		Hours:       v.GetInt("hours"),
		Filter:      v.GetString("filter"),
		Style:       v.GetString("style"),
		StoreCap:    v.GetInt("store_cap"),
		AutoRefresh: v.GetDuration("auto_refresh"),

		Host:     v.GetString("host"),
		Port:     v.GetInt("port"),
		CacheTTL: v.GetDuration("cache_ttl"),

		LogLevel:  v.GetString("log_level"),
		LogFormat: v.GetString("log_format"),
		LogOutput: v.GetString("log_output"),
	}
	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("stream_path", stream.DefaultPath)
	v.SetDefault("status_path", status.DefaultPath)
	v.SetDefault("min_confidence", constants.DefaultMinConfidence)
	v.SetDefault("warning_limit", constants.DefaultWarningLimit)
	v.SetDefault("hours", constants.DefaultTimeWindowHours)
	v.SetDefault("filter", string(events.FilterAll))
	v.SetDefault("style", surface.Styles[0].ID)
	v.SetDefault("store_cap", constants.StoreCap)
	v.SetDefault("host", constants.DefaultHost)
	v.SetDefault("port", constants.DefaultPort)
	v.SetDefault("cache_ttl", constants.DefaultCacheTTL)
	v.SetDefault("log_format", "auto")
	v.SetDefault("log_output", "stderr")
}

// Validate checks the settings every backend-facing command relies on.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.NewConfigError("config", "base_url is required (set "+EnvPrefix+"_BASE_URL)", nil)
	}
	if c.Hours < 0 {
		return errors.NewValidationError("hours", c.Hours, "must not be negative")
	}
	if c.StoreCap <= 0 {
		return errors.NewValidationError("store_cap", c.StoreCap, "must be positive")
	}
	if _, err := events.ParseFilter(c.Filter); err != nil {
		return err
	}
	if c.Port <= 0 || c.Port > 65535 {
		return errors.NewValidationError("port", c.Port, "must be between 1 and 65535")
	}
	return nil
}

// StyleURL resolves the configured style id or URL.
func (c *Config) StyleURL() (string, error) {
	if st, ok := surface.LookupStyle(c.Style); ok {
		return st.URL(), nil
	}
	if surface.IsStyleURL(c.Style) {
		return c.Style, nil
	}
	return "", errors.NewValidationError("style", c.Style, "unknown style")
}

// UpdateFromFlags updates config values from parsed command flags.
// This should be called after cobra parses flags to ensure flag
// values take precedence over config file and env vars.
func (c *Config) UpdateFromFlags(verbose, quiet, noColor bool, format, logLevel string) {
	c.Verbose = verbose
	c.Quiet = quiet
	c.NoColor = noColor
	if format != "" {
		c.Format = format
	}
	if logLevel != "" {
		c.LogLevel = logLevel
	}
}

// loadEnvFiles loads environment variables from .env files.
// .env.local is loaded first so its values win; godotenv never overrides.
func loadEnvFiles() {
	for _, envFile := range []string{".env.local", ".env"} {
		_ = godotenv.Load(envFile)
	}
}
