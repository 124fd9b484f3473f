package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config carries every tunable of the connection pool and device cache.
// All fields load from SSHMUX_* environment variables with the defaults
// below; paths left empty resolve under the user's state directory.
type Config struct {
	SocketDir string `envconfig:"SOCKET_DIR"`
	CacheDir  string `envconfig:"CACHE_DIR"`
	DBPath    string `envconfig:"DB_PATH"`

	MaxConnections int `envconfig:"MAX_CONNECTIONS" default:"10"`

	CacheTTL        time.Duration `envconfig:"CACHE_TTL" default:"24h"`
	CacheMaxEntries int           `envconfig:"CACHE_MAX_ENTRIES" default:"100"`

	ConnectTimeout    time.Duration `envconfig:"CONNECT_TIMEOUT" default:"10s"`
	CheckTimeout      time.Duration `envconfig:"CHECK_TIMEOUT" default:"5s"`
	CommandTimeout    time.Duration `envconfig:"COMMAND_TIMEOUT" default:"60s"`
	ControlPersist    time.Duration `envconfig:"CONTROL_PERSIST" default:"10m"`
	SocketFreshWindow time.Duration `envconfig:"SOCKET_FRESH_WINDOW" default:"1h"`

	EstablishAttempts int           `envconfig:"ESTABLISH_ATTEMPTS" default:"30"`
	EstablishInterval time.Duration `envconfig:"ESTABLISH_INTERVAL" default:"1s"`
}

func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("SSHMUX", &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	cfg.applyPathDefaults()
	return cfg, nil
}

func DefaultConfig() Config {
	cfg := Config{
		MaxConnections:    10,
		CacheTTL:          24 * time.Hour,
		CacheMaxEntries:   100,
		ConnectTimeout:    10 * time.Second,
		CheckTimeout:      5 * time.Second,
		CommandTimeout:    60 * time.Second,
		ControlPersist:    10 * time.Minute,
		SocketFreshWindow: time.Hour,
		EstablishAttempts: 30,
		EstablishInterval: time.Second,
	}
	cfg.applyPathDefaults()
	return cfg
}

func (c *Config) applyPathDefaults() {
	if c.SocketDir == "" {
		c.SocketDir = defaultSocketDir()
	}
	if c.CacheDir == "" {
		c.CacheDir = filepath.Join(stateDir(), "devcache")
	}
	if c.DBPath == "" {
		c.DBPath = filepath.Join(stateDir(), "registry.db")
	}
}

// EstablishDeadline bounds the whole wait-for-socket-and-health phase.
func (c Config) EstablishDeadline() time.Duration {
	return time.Duration(c.EstablishAttempts) * c.EstablishInterval
}

func defaultSocketDir() string {
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir != "" {
		return filepath.Join(runtimeDir, "sshmux")
	}
	return filepath.Join(stateDir(), "sockets")
}

func stateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sshmux"
	}
	return filepath.Join(home, ".local", "state", "sshmux")
}
