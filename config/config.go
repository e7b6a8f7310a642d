/*
Package config loads server configuration.

PRECEDENCE (lowest to highest):
  1. Defaults()
  2. YAML file passed to Load (optional)
  3. .env file in the working directory (optional, never overrides the
     real environment)
  4. Environment variables
  5. Command-line flags, applied by cmd/server

ENVIRONMENT:
  LEDGER_PORT          HTTP port
  LEDGER_DB_DRIVER     sqlite | mysql | memory
  LEDGER_DB_PATH       SQLite file, ":memory:" allowed
  LEDGER_MYSQL_HOST, LEDGER_MYSQL_PORT, LEDGER_MYSQL_USER,
  LEDGER_MYSQL_PASSWORD, LEDGER_MYSQL_DB
  JWT_SECRET           HMAC secret for bearer tokens (required)
  JWT_TTL              token lifetime, e.g. "24h"
  LOG_LEVEL            trace | debug | info | warn | error
  LOG_PRETTY           true for console output
  LEDGER_AUDIT_INTERVAL  ledger audit period, e.g. "1h"; "0" disables it
*/
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

	"github.com/warp/statement-ledger/logging"
	"github.com/warp/statement-ledger/store/gormstore"
)

const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
	DriverMemory = "memory"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	JWT      JWTConfig      `yaml:"jwt"`
	Log      logging.Config `yaml:"log"`
	Audit    AuditConfig    `yaml:"audit"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

type DatabaseConfig struct {
	Driver string           `yaml:"driver"`
	Path   string           `yaml:"path"`
	MySQL  gormstore.Config `yaml:"mysql"`
}

type JWTConfig struct {
	Secret string        `yaml:"secret"`
	TTL    time.Duration `yaml:"ttl"`
}

type AuditConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// Defaults returns a configuration that runs locally on SQLite.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			AllowedOrigins:  []string{"http://localhost:5173", "http://localhost:8080"},
		},
		Database: DatabaseConfig{
			Driver: DriverSQLite,
			Path:   "ledger.db",
			MySQL: gormstore.Config{
				Host:            "127.0.0.1",
				Port:            3306,
				MaxOpenConns:    20,
				MaxIdleConns:    5,
				ConnMaxLifetime: time.Hour,
				LogLevel:        "silent",
			},
		},
		JWT:   JWTConfig{TTL: 24 * time.Hour},
		Log:   logging.Config{Level: "info"},
		Audit: AuditConfig{Interval: time.Hour},
	}
}

// Load builds the configuration. path may be empty to skip the YAML file.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first setting that cannot run.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return errors.New("config: database.path is required for sqlite")
		}
	case DriverMySQL:
		if c.Database.MySQL.DBName == "" {
			return errors.New("config: database.mysql.db_name is required for mysql")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("config: unknown database driver %q", c.Database.Driver)
	}
	if c.JWT.Secret == "" {
		return errors.New("config: jwt.secret is required")
	}
	if c.JWT.TTL <= 0 {
		return errors.New("config: jwt.ttl must be positive")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("config: invalid port %d", c.Server.Port)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	var err error
	setInt := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok && err == nil {
			n, perr := strconv.Atoi(v)
			if perr != nil {
				err = fmt.Errorf("config: %s: %w", key, perr)
				return
			}
			*dst = n
		}
	}
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	setInt("LEDGER_PORT", &cfg.Server.Port)
	setString("LEDGER_DB_DRIVER", &cfg.Database.Driver)
	setString("LEDGER_DB_PATH", &cfg.Database.Path)
	setString("LEDGER_MYSQL_HOST", &cfg.Database.MySQL.Host)
	setInt("LEDGER_MYSQL_PORT", &cfg.Database.MySQL.Port)
	setString("LEDGER_MYSQL_USER", &cfg.Database.MySQL.User)
	setString("LEDGER_MYSQL_PASSWORD", &cfg.Database.MySQL.Password)
	setString("LEDGER_MYSQL_DB", &cfg.Database.MySQL.DBName)
	setString("JWT_SECRET", &cfg.JWT.Secret)
	setString("LOG_LEVEL", &cfg.Log.Level)

	if v, ok := os.LookupEnv("JWT_TTL"); ok && err == nil {
		d, perr := time.ParseDuration(v)
		if perr != nil {
			return fmt.Errorf("config: JWT_TTL: %w", perr)
		}
		cfg.JWT.TTL = d
	}
	if v, ok := os.LookupEnv("LEDGER_AUDIT_INTERVAL"); ok && err == nil {
		d, perr := time.ParseDuration(v)
		if perr != nil {
			return fmt.Errorf("config: LEDGER_AUDIT_INTERVAL: %w", perr)
		}
		cfg.Audit.Interval = d
	}
	if v, ok := os.LookupEnv("LOG_PRETTY"); ok && err == nil {
		b, perr := strconv.ParseBool(v)
		if perr != nil {
			return fmt.Errorf("config: LOG_PRETTY: %w", perr)
		}
		cfg.Log.Pretty = b
	}
	return err
}
