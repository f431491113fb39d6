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
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Driver names and defaults.
const (
	StoragePostgres     = "postgres"
	StorageSQLite       = "sqlite"
	StorageSlotsMemory  = "slots-memory"
	StorageSlotsRedis   = "slots-redis"
	EventsMemory        = "memory"
	EventsRedis         = "redis"
	EventsAMQP          = "amqp"
	ModeDevelopment     = "development"
	defaultPort         = "5000"
	defaultClientURL    = "http://localhost:5173"
	defaultSQLitePath   = "quiz.db"
	defaultRateLimit    = 100
	defaultRateWindow   = "15m"
	defaultAbandonAfter = "2h"
)

type Config struct {
	Server struct {
		Port         string `yaml:"port"`
		Mode         string `yaml:"mode"`
		ClientURL    string `yaml:"client_url"`
		ReadTimeout  string `yaml:"read_timeout"`
		WriteTimeout string `yaml:"write_timeout"`
		RateLimit    int    `yaml:"rate_limit"`
		RateWindow   string `yaml:"rate_window"`
	} `yaml:"server"`
	Storage struct {
		Driver     string `yaml:"driver"`
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"storage"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Redis struct {
		Addr      string `yaml:"addr"`
		Password  string `yaml:"password"`
		DB        int    `yaml:"db"`
		KeyPrefix string `yaml:"key_prefix"`
	} `yaml:"redis"`
	AMQP struct {
		URL      string `yaml:"url"`
		Exchange string `yaml:"exchange"`
	} `yaml:"amqp"`
	Events struct {
		Driver string `yaml:"driver"`
	} `yaml:"events"`
	Quiz struct {
		StrictUSN     bool   `yaml:"strict_usn"`
		AbandonAfter  string `yaml:"abandon_after"`
		SweepSchedule string `yaml:"sweep_schedule"`
	} `yaml:"quiz"`
	Admin struct {
		PasswordHash string `yaml:"password_hash"`
	} `yaml:"admin"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Load reads YAML config from path, then applies .env and environment
// overrides. A missing file is not an error; defaults are used instead.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err == nil {
		log.Debug(".env file loaded")
	}

	cfg := Config{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Debugf("config file %s not found, using defaults", path)
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	return cfg, cfg.Validate()
}

func getEnv(key string, target *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*target = v
	}
}

func applyEnv(cfg *Config) {
	getEnv("PORT", &cfg.Server.Port)
	getEnv("APP_MODE", &cfg.Server.Mode)
	getEnv("CLIENT_URL", &cfg.Server.ClientURL)
	getEnv("STORAGE_DRIVER", &cfg.Storage.Driver)
	getEnv("SQLITE_PATH", &cfg.Storage.SQLitePath)
	getEnv("DATABASE_URL", &cfg.Postgres.URL)
	getEnv("REDIS_ADDR", &cfg.Redis.Addr)
	getEnv("REDIS_PASSWORD", &cfg.Redis.Password)
	getEnv("AMQP_URL", &cfg.AMQP.URL)
	getEnv("EVENTS_DRIVER", &cfg.Events.Driver)
	getEnv("ADMIN_PASSWORD_HASH", &cfg.Admin.PasswordHash)
	getEnv("LOG_LEVEL", &cfg.Log.Level)
	if v := os.Getenv("QUIZ_STRICT_USN"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Quiz.StrictUSN = b
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = defaultPort
	}
	if cfg.Server.ClientURL == "" {
		cfg.Server.ClientURL = defaultClientURL
	}
	if cfg.Server.RateLimit == 0 {
		cfg.Server.RateLimit = defaultRateLimit
	}
	if cfg.Server.RateWindow == "" {
		cfg.Server.RateWindow = defaultRateWindow
	}
	if cfg.Storage.Driver == "" {
		// A configured postgres URL selects postgres.
		if cfg.Postgres.URL != "" {
			cfg.Storage.Driver = StoragePostgres
		} else {
			cfg.Storage.Driver = StorageSQLite
		}
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = defaultSQLitePath
	}
	if cfg.Events.Driver == "" {
		cfg.Events.Driver = EventsMemory
	}
	if cfg.Quiz.AbandonAfter == "" {
		cfg.Quiz.AbandonAfter = defaultAbandonAfter
	}
}

// Validate checks driver names and the settings each driver needs.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case StoragePostgres:
		if c.Postgres.URL == "" {
			return fmt.Errorf("storage driver %s requires postgres.url", c.Storage.Driver)
		}
	case StorageSlotsRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("storage driver %s requires redis.addr", c.Storage.Driver)
		}
	case StorageSQLite, StorageSlotsMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	switch c.Events.Driver {
	case EventsMemory:
	case EventsRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("events driver redis requires redis.addr")
		}
	case EventsAMQP:
		if c.AMQP.URL == "" {
			return fmt.Errorf("events driver amqp requires amqp.url")
		}
	default:
		return fmt.Errorf("unknown events driver %q", c.Events.Driver)
	}
	return nil
}

func (c Config) Development() bool {
	return c.Server.Mode == ModeDevelopment
}

// Duration parses a duration string or returns the fallback if empty or invalid.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// SetupLogging applies the log section to the global logrus logger.
func (c Config) SetupLogging() {
	if c.Log.Level != "" {
		if lvl, err := log.ParseLevel(c.Log.Level); err == nil {
			log.SetLevel(lvl)
		} else {
			log.Warnf("unknown log level %q, keeping %s", c.Log.Level, log.GetLevel())
		}
	}
	if strings.EqualFold(c.Log.Format, "json") {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}
