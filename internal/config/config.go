package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config keys
const (
	KeyBaseURL         = "api.base_url"
	KeyTimeout         = "api.timeout"
	KeyAuthScheme      = "auth.scheme"
	KeyAuthToken       = "auth.token"
	KeyLogLevel        = "log.level"
	KeyLogFormat       = "log.format"
	KeyLogFile         = "log.file"
	KeyStorePath       = "store.path"
	KeyPollInterval    = "poll.interval"
	KeyPollMaxInterval = "poll.max_interval"
	KeyExportDir       = "export.dir"
)

// EnvPrefix prefixes every environment override, e.g. SCRAPEDECK_API_BASE_URL
const EnvPrefix = "SCRAPEDECK"

// Config holds the resolved client configuration
type Config struct {
	BaseURL         string
	Timeout         time.Duration
	AuthScheme      string
	AuthToken       string
	LogLevel        string
	LogFormat       string
	LogFile         string
	StorePath       string
	PollInterval    time.Duration
	PollMaxInterval time.Duration
	ExportDir       string
}

// New returns a viper instance with defaults and env binding applied
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyBaseURL, "http://localhost:8000/api")
	v.SetDefault(KeyTimeout, 30*time.Second)
	v.SetDefault(KeyAuthScheme, "Token")
	v.SetDefault(KeyAuthToken, "")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "console")
	v.SetDefault(KeyLogFile, "")
	v.SetDefault(KeyStorePath, filepath.Join(DefaultDir(), "scrapedeck.db"))
	v.SetDefault(KeyPollInterval, 2*time.Second)
	v.SetDefault(KeyPollMaxInterval, 30*time.Second)
	v.SetDefault(KeyExportDir, ".")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// DefaultDir is where the config file and local store live
func DefaultDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "scrapedeck")
	}
	return ".scrapedeck"
}

// Load reads cfgFile (or scrapedeck.yaml from the default locations when
// empty) into v and resolves the final Config
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("scrapedeck")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(DefaultDir())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{
		BaseURL:         strings.TrimRight(v.GetString(KeyBaseURL), "/"),
		Timeout:         v.GetDuration(KeyTimeout),
		AuthScheme:      v.GetString(KeyAuthScheme),
		AuthToken:       v.GetString(KeyAuthToken),
		LogLevel:        v.GetString(KeyLogLevel),
		LogFormat:       v.GetString(KeyLogFormat),
		LogFile:         v.GetString(KeyLogFile),
		StorePath:       v.GetString(KeyStorePath),
		PollInterval:    v.GetDuration(KeyPollInterval),
		PollMaxInterval: v.GetDuration(KeyPollMaxInterval),
		ExportDir:       v.GetString(KeyExportDir),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the resolved values
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%s must not be empty", KeyBaseURL)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%s must be positive", KeyTimeout)
	}
	switch strings.ToLower(c.LogFormat) {
	case "console", "json":
	default:
		return fmt.Errorf("%s must be console or json, got %q", KeyLogFormat, c.LogFormat)
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.PollMaxInterval < c.PollInterval {
		c.PollMaxInterval = c.PollInterval
	}
	return nil
}
