package shared

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
	Catalog     CatalogConfig     `toml:"catalog"`
	Cache       CacheConfig       `toml:"cache"`
	Server      ServerConfig      `toml:"server"`
	Log         LogConfig         `toml:"log"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
}

// SpotifyConfig contains Spotify API credentials.
//
// SpDC is the value of the web player's sp_dc cookie, used by the cookie token exchange.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	TokenURL     string `toml:"token_url"`
	SpDC         string `toml:"sp_dc"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Driver          string   `toml:"driver"`
	DSN             string   `toml:"dsn"`
	Table           string   `toml:"table"`
	MaxOpenConns    int      `toml:"max_open_conns"`
	MaxIdleConns    int      `toml:"max_idle_conns"`
	ConnMaxLifetime Duration `toml:"conn_max_lifetime"`
}

// CatalogConfig controls the remote catalog client.
type CatalogConfig struct {
	BaseURL           string   `toml:"base_url"`
	TokenSource       string   `toml:"token_source"`
	Market            string   `toml:"market"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
	Burst             int      `toml:"burst"`
	FetchConcurrency  int      `toml:"fetch_concurrency"`
	Timeout           Duration `toml:"timeout"`
}

// CacheConfig controls in-memory entry lifetimes.
type CacheConfig struct {
	ExpireAfterAccess Duration `toml:"expire_after_access"`
	ExpireAfterWrite  Duration `toml:"expire_after_write"`
	MaxBatch          int      `toml:"max_batch"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host              string  `toml:"host"`
	Port              int     `toml:"port"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

// Duration is a [time.Duration] that decodes from strings such as "10m".
type Duration struct {
	time.Duration
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: duration %q", ErrInvalidConfig, string(text))
	}
	d.Duration = v
	return nil
}

// MarshalText implements [encoding.TextMarshaler].
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the values of [DefaultConfig].
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissingConfig, path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadConfigOrDefault loads path, falling back to [DefaultConfig] when the file does not exist.
func LoadConfigOrDefault(path string) (*Config, error) {
	config, err := LoadConfig(path)
	if errors.Is(err, ErrMissingConfig) {
		return DefaultConfig(), nil
	}
	return config, err
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// Validate checks values that would otherwise fail deep inside a component.
func (c *Config) Validate() error {
	if _, err := ParseDialect(c.Database.Driver); err != nil {
		return err
	}
	if err := ValidateIdentifier(c.Database.Table); err != nil {
		return err
	}
	switch c.Catalog.TokenSource {
	case "", "client_credentials", "web_player":
	default:
		return fmt.Errorf("%w: token_source %q", ErrInvalidConfig, c.Catalog.TokenSource)
	}
	if c.Cache.MaxBatch < 0 {
		return fmt.Errorf("%w: max_batch must not be negative", ErrInvalidConfig)
	}
	if _, err := ParseLogLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
