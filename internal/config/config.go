package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "WORDGROUPS_"

// Storage backend names
const (
	StorageMemory = "memory"
	StorageFile   = "file"
	StorageRedis  = "redis"
)

// Config is the complete server configuration
type Config struct {
	TCP     TCPConfig     `yaml:"tcp"`
	UDP     UDPConfig     `yaml:"udp"`
	HTTP    HTTPConfig    `yaml:"http"`
	Rounds  RoundsConfig  `yaml:"rounds"`
	Admin   AdminConfig   `yaml:"admin"`
	Storage StorageConfig `yaml:"storage"`
	NATS    NATSConfig    `yaml:"nats"`
	Log     LogConfig     `yaml:"log"`
}

// TCPConfig configures the game protocol listener
type TCPConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	MaxConnections int    `yaml:"max_connections"`
	Workers        int    `yaml:"workers"` // 0 uses GOMAXPROCS
	MaxMessageSize int    `yaml:"max_message_size"`
}

// UDPConfig configures the notification socket
type UDPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"` // 0 picks an ephemeral port
}

// HTTPConfig configures the status API
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// RoundsConfig configures puzzle content and timing
type RoundsConfig struct {
	File         string        `yaml:"file"`
	Duration     time.Duration `yaml:"duration"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	MaxErrors    int           `yaml:"max_errors"`
}

// AdminConfig configures the oracle and god operations
type AdminConfig struct {
	Password string `yaml:"password"` // Empty disables them
}

// StorageConfig selects and configures persistence
type StorageConfig struct {
	Type          string        `yaml:"type"`
	Dir           string        `yaml:"dir"`
	RedisURL      string        `yaml:"redis_url"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// NATSConfig configures the optional event bridge
type NATSConfig struct {
	URL    string `yaml:"url"` // Empty disables the bridge
	Prefix string `yaml:"prefix"`
}

// LogConfig configures the process logger
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when nothing is overridden
func Default() Config {
	return Config{
		TCP: TCPConfig{
			Host:           "0.0.0.0",
			Port:           7070,
			MaxConnections: 1024,
			MaxMessageSize: 64 * 1024,
		},
		UDP: UDPConfig{
			Host: "0.0.0.0",
		},
		HTTP: HTTPConfig{
			Enabled: true,
			Port:    8080,
		},
		Rounds: RoundsConfig{
			File:         "data/rounds.json",
			Duration:     5 * time.Minute,
			RetryBackoff: 5 * time.Second,
			MaxErrors:    4,
		},
		Storage: StorageConfig{
			Type:          StorageFile,
			Dir:           "data/state",
			FlushInterval: 30 * time.Second,
		},
		NATS: NATSConfig{
			Prefix: "wordgroups",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds a Config from defaults, an optional .env file, an optional YAML file
// and WORDGROUPS_* environment variables, later sources winning
func Load(path string) (Config, error) {
	cfg := Default()

	// .env never overrides variables already set in the environment
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Validate checks values that would otherwise fail later at startup
func (c Config) Validate() error {
	var errs []error
	if c.TCP.Port < 0 || c.TCP.Port > 65535 {
		errs = append(errs, fmt.Errorf("tcp.port out of range: %d", c.TCP.Port))
	}
	if c.UDP.Port < 0 || c.UDP.Port > 65535 {
		errs = append(errs, fmt.Errorf("udp.port out of range: %d", c.UDP.Port))
	}
	if c.TCP.MaxConnections <= 0 {
		errs = append(errs, errors.New("tcp.max_connections must be positive"))
	}
	if c.Rounds.Duration <= 0 {
		errs = append(errs, errors.New("rounds.duration must be positive"))
	}
	if c.Rounds.MaxErrors <= 0 {
		errs = append(errs, errors.New("rounds.max_errors must be positive"))
	}
	switch c.Storage.Type {
	case StorageMemory:
	case StorageFile:
		if c.Storage.Dir == "" {
			errs = append(errs, errors.New("storage.dir is required for file storage"))
		}
	case StorageRedis:
		if c.Storage.RedisURL == "" {
			errs = append(errs, errors.New("storage.redis_url is required for redis storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.type %q", c.Storage.Type))
	}
	return errors.Join(errs...)
}

type lookupFunc func(key string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(EnvPrefix + key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + key); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = d
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(EnvPrefix + key); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = b
		}
	}

	str("TCP_HOST", &cfg.TCP.Host)
	num("TCP_PORT", &cfg.TCP.Port)
	num("MAX_CONNECTIONS", &cfg.TCP.MaxConnections)
	num("WORKERS", &cfg.TCP.Workers)
	num("MAX_MESSAGE_SIZE", &cfg.TCP.MaxMessageSize)
	str("UDP_HOST", &cfg.UDP.Host)
	num("UDP_PORT", &cfg.UDP.Port)
	flag("HTTP_ENABLED", &cfg.HTTP.Enabled)
	str("HTTP_HOST", &cfg.HTTP.Host)
	num("HTTP_PORT", &cfg.HTTP.Port)
	str("ROUNDS_FILE", &cfg.Rounds.File)
	dur("ROUND_DURATION", &cfg.Rounds.Duration)
	dur("ROUND_RETRY_BACKOFF", &cfg.Rounds.RetryBackoff)
	num("MAX_ERRORS", &cfg.Rounds.MaxErrors)
	str("ADMIN_PASSWORD", &cfg.Admin.Password)
	str("STORAGE_TYPE", &cfg.Storage.Type)
	str("STORAGE_DIR", &cfg.Storage.Dir)
	str("REDIS_URL", &cfg.Storage.RedisURL)
	dur("FLUSH_INTERVAL", &cfg.Storage.FlushInterval)
	str("NATS_URL", &cfg.NATS.URL)
	str("NATS_PREFIX", &cfg.NATS.Prefix)
	str("LOG_LEVEL", &cfg.Log.Level)

	return errors.Join(errs...)
}
