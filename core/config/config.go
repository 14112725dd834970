// Package config loads client settings from the environment, an optional
// .env file and an optional kikapu.yaml.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load, e.g. KIKAPU_API_KEY.
const EnvPrefix = "KIKAPU"

// Config holds everything needed to reach the backend.
type Config struct {
	BaseURL  string        `mapstructure:"base_url"`
	BasePath string        `mapstructure:"base_path"`
	APIKey   string        `mapstructure:"api_key"`
	TenantID string        `mapstructure:"tenant_id"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Debug    bool          `mapstructure:"debug"`
}

// GetDefaults returns a Config with all default values.
func GetDefaults() *Config {
	return &Config{
		BasePath: "/api/v1",
		Timeout:  30 * time.Second,
	}
}

// Load builds a Config. Precedence, highest first: environment variables,
// values from a .env file, kikapu.yaml, defaults. Each dir is searched for
// both files after the working directory.
func Load(dirs ...string) (*Config, error) {
	envFiles := []string{".env"}
	for _, dir := range dirs {
		envFiles = append(envFiles, filepath.Join(dir, ".env"))
	}
	for _, path := range envFiles {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("error reading %s: %w", path, err)
		}
	}

	v := viper.New()
	v.SetConfigName("kikapu")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	for _, dir := range dirs {
		v.AddConfigPath(dir)
	}

	defaults := GetDefaults()
	v.SetDefault("base_url", defaults.BaseURL)
	v.SetDefault("base_path", defaults.BasePath)
	v.SetDefault("api_key", defaults.APIKey)
	v.SetDefault("tenant_id", defaults.TenantID)
	v.SetDefault("timeout", defaults.Timeout)
	v.SetDefault("debug", defaults.Debug)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// A missing file is fine, defaults and env cover it.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// Validate reports the first setting that would prevent a request.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("config: base_url is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: base_url %q must be an absolute http(s) URL", c.BaseURL)
	}
	if c.APIKey == "" {
		return errors.New("config: api_key is required")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("config: timeout must not be negative, got %s", c.Timeout)
	}
	return nil
}
