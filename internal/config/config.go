package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config defines server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Transport TransportConfig `yaml:"transport"`
	Storage   StorageConfig   `yaml:"storage"`
	Redis     RedisConfig     `yaml:"redis"`
	Images    ImagesConfig    `yaml:"images"`
	Lifecycle LifecycleConfig `yaml:"lifecycle"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// TransportConfig selects how MCP clients connect: "stdio" or "http".
type TransportConfig struct {
	Mode string `yaml:"mode"`
}

// StorageConfig selects the slot backend: "sqlite" or "redis".
type StorageConfig struct {
	Backend      string        `yaml:"backend"`
	Path         string        `yaml:"path"`
	SlotKey      string        `yaml:"slot_key"`
	QuotaBytes   int64         `yaml:"quota_bytes"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	Namespace string `yaml:"namespace"`
}

type ImagesConfig struct {
	MaxDimension      int     `yaml:"max_dimension"`
	Quality           float64 `yaml:"quality"`
	ReencodeThreshold int     `yaml:"reencode_threshold"`
}

type LifecycleConfig struct {
	SweepSchedule string `yaml:"sweep_schedule"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads configuration from an optional .env file, an optional YAML file and
// environment variables, in increasing order of precedence.
func Load() (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Transport: TransportConfig{
			Mode: "stdio",
		},
		Storage: StorageConfig{
			Backend:      "sqlite",
			Path:         "listings.db",
			SlotKey:      "listings",
			QuotaBytes:   5 * 1024 * 1024,
			PollInterval: 2 * time.Second,
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			Namespace: "listingkeeper",
		},
		Images: ImagesConfig{
			MaxDimension:      1200,
			Quality:           0.7,
			ReencodeThreshold: 500 * 1024,
		},
		Lifecycle: LifecycleConfig{
			SweepSchedule: "0 0 * * * *",
		},
		Log: LogConfig{
			Level: "info",
		},
	}

	envFile := os.Getenv("LISTINGS_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}

	if path := os.Getenv("LISTINGS_CONFIG_PATH"); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	switch c.Transport.Mode {
	case "stdio", "http":
	default:
		return fmt.Errorf("invalid transport mode %q: want stdio or http", c.Transport.Mode)
	}
	switch c.Storage.Backend {
	case "sqlite", "redis":
	default:
		return fmt.Errorf("invalid storage backend %q: want sqlite or redis", c.Storage.Backend)
	}
	if c.Images.MaxDimension <= 0 {
		return fmt.Errorf("invalid images.max_dimension %d", c.Images.MaxDimension)
	}
	if c.Images.Quality <= 0 || c.Images.Quality > 1 {
		return fmt.Errorf("invalid images.quality %v: want (0, 1]", c.Images.Quality)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if host := os.Getenv("LISTINGS_SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if portStr := os.Getenv("LISTINGS_SERVER_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("invalid LISTINGS_SERVER_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if mode := os.Getenv("LISTINGS_TRANSPORT"); mode != "" {
		cfg.Transport.Mode = mode
	}
	if backend := os.Getenv("LISTINGS_STORAGE_BACKEND"); backend != "" {
		cfg.Storage.Backend = backend
	}
	if dbPath := os.Getenv("LISTINGS_DB_PATH"); dbPath != "" {
		cfg.Storage.Path = dbPath
	}
	if key := os.Getenv("LISTINGS_SLOT_KEY"); key != "" {
		cfg.Storage.SlotKey = key
	}
	if quota := os.Getenv("LISTINGS_QUOTA_BYTES"); quota != "" {
		n, err := strconv.ParseInt(quota, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid LISTINGS_QUOTA_BYTES: %w", err)
		}
		cfg.Storage.QuotaBytes = n
	}
	if interval := os.Getenv("LISTINGS_POLL_INTERVAL"); interval != "" {
		d, err := time.ParseDuration(interval)
		if err != nil {
			return fmt.Errorf("invalid LISTINGS_POLL_INTERVAL: %w", err)
		}
		cfg.Storage.PollInterval = d
	}
	if addr := os.Getenv("LISTINGS_REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if password := os.Getenv("LISTINGS_REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}
	if db := os.Getenv("LISTINGS_REDIS_DB"); db != "" {
		n, err := strconv.Atoi(db)
		if err != nil {
			return fmt.Errorf("invalid LISTINGS_REDIS_DB: %w", err)
		}
		cfg.Redis.DB = n
	}
	if schedule := os.Getenv("LISTINGS_SWEEP_SCHEDULE"); schedule != "" {
		cfg.Lifecycle.SweepSchedule = schedule
	}
	if level := os.Getenv("LISTINGS_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	return nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}
