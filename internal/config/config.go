package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the complete service configuration
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Ledger   LedgerConfig   `toml:"ledger"`
	Locks    LocksConfig    `toml:"locks"`
	Sync     SyncConfig     `toml:"sync"`
	Queue    QueueConfig    `toml:"queue"`
	Realtime RealtimeConfig `toml:"realtime"`
	Cache    CacheConfig    `toml:"cache"`
	Archive  ArchiveConfig  `toml:"archive"`
	Audit    AuditConfig    `toml:"audit"`
	Auth     AuthConfig     `toml:"auth"`
	Logging  LoggingConfig  `toml:"logging"`
}

type ServerConfig struct {
	Port        int    `toml:"port"`
	Environment string `toml:"environment"`
}

type DatabaseConfig struct {
	URL string `toml:"url"`
}

// LedgerConfig describes how to reach the external ledger store
type LedgerConfig struct {
	Driver                string `toml:"driver"`
	DSN                   string `toml:"dsn"`
	Schema                string `toml:"schema"`
	ConnectTimeoutSeconds int    `toml:"connect_timeout_seconds"`
	CommandTimeoutSeconds int    `toml:"command_timeout_seconds"`
	TransactionalExport   *bool  `toml:"transactional_export"`
}

type LocksConfig struct {
	TTLSeconds           int `toml:"ttl_seconds"`
	SweepIntervalSeconds int `toml:"sweep_interval_seconds"`
}

type SyncConfig struct {
	Enabled         bool `toml:"enabled"`
	IntervalMinutes int  `toml:"interval_minutes"`
}

// QueueConfig contains Redis and concurrency settings for asynq
type QueueConfig struct {
	RedisAddr       string         `toml:"redis_addr"`
	RedisPassword   string         `toml:"redis_password"`
	RedisDB         int            `toml:"redis_db"`
	Concurrency     int            `toml:"concurrency"`
	QueuePriorities map[string]int `toml:"queue_priorities"`
}

type RealtimeConfig struct {
	Bus           string `toml:"bus"` // redis, nats or local
	ChannelPrefix string `toml:"channel_prefix"`
	NATSURL       string `toml:"nats_url"`
}

type CacheConfig struct {
	MappingTTLSeconds int `toml:"mapping_ttl_seconds"`
}

type ArchiveConfig struct {
	Enabled   bool   `toml:"enabled"`
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	UseSSL    bool   `toml:"use_ssl"`
	Bucket    string `toml:"bucket"`
}

type AuditConfig struct {
	Sink         string   `toml:"sink"` // database or kafka
	KafkaBrokers []string `toml:"kafka_brokers"`
	KafkaTopic   string   `toml:"kafka_topic"`
}

type AuthConfig struct {
	JWTSecret string `toml:"jwt_secret"`
	JWKSURL   string `toml:"jwks_url"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	Output string `toml:"output"`
}

// Load reads the TOML file at filename (if it exists), applies environment
// overrides and defaults, then validates the result.
func Load(filename string) (*Config, error) {
	cfg := &Config{}
	if filename != "" {
		if _, err := os.Stat(filename); err == nil {
			if _, err := toml.DecodeFile(filename, cfg); err != nil {
				return nil, fmt.Errorf("failed to load config file: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	cfg.applyEnv(os.Getenv)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	setString := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(dst *int, key string) {
		if v := getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	setString(&c.Database.URL, "DATABASE_URL")
	setString(&c.Ledger.DSN, "LEDGER_DSN")
	setString(&c.Queue.RedisAddr, "REDIS_ADDR")
	setString(&c.Queue.RedisPassword, "REDIS_PASSWORD")
	setInt(&c.Queue.RedisDB, "REDIS_DB")
	setString(&c.Auth.JWTSecret, "JWT_SECRET")
	setString(&c.Auth.JWKSURL, "JWKS_URL")
	setString(&c.Archive.Endpoint, "MINIO_ENDPOINT")
	setString(&c.Archive.AccessKey, "MINIO_ACCESS_KEY")
	setString(&c.Archive.SecretKey, "MINIO_SECRET_KEY")
	setString(&c.Realtime.NATSURL, "NATS_URL")
	setInt(&c.Server.Port, "PORT")
	if v := getenv("MINIO_USE_SSL"); v != "" {
		c.Archive.UseSSL = v == "true"
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Audit.KafkaBrokers = strings.Split(v, ",")
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Environment == "" {
		c.Server.Environment = "development"
	}
	if c.Ledger.Driver == "" {
		c.Ledger.Driver = "postgres"
	}
	if c.Ledger.Schema == "" {
		c.Ledger.Schema = "public"
	}
	if c.Ledger.ConnectTimeoutSeconds == 0 {
		c.Ledger.ConnectTimeoutSeconds = 10
	}
	if c.Ledger.CommandTimeoutSeconds == 0 {
		c.Ledger.CommandTimeoutSeconds = 30
	}
	if c.Ledger.TransactionalExport == nil {
		transactional := true
		c.Ledger.TransactionalExport = &transactional
	}
	if c.Locks.TTLSeconds == 0 {
		c.Locks.TTLSeconds = 60
	}
	if c.Locks.SweepIntervalSeconds == 0 {
		c.Locks.SweepIntervalSeconds = 60
	}
	if c.Sync.IntervalMinutes == 0 {
		c.Sync.IntervalMinutes = 15
	}
	if c.Queue.RedisAddr == "" {
		c.Queue.RedisAddr = "localhost:6379"
	}
	if c.Queue.Concurrency == 0 {
		c.Queue.Concurrency = 5
	}
	if len(c.Queue.QueuePriorities) == 0 {
		c.Queue.QueuePriorities = map[string]int{"critical": 6, "default": 3, "low": 1}
	}
	if c.Realtime.Bus == "" {
		c.Realtime.Bus = "redis"
	}
	if c.Realtime.ChannelPrefix == "" {
		c.Realtime.ChannelPrefix = "orderbridge"
	}
	if c.Cache.MappingTTLSeconds == 0 {
		c.Cache.MappingTTLSeconds = 300
	}
	if c.Archive.Bucket == "" {
		c.Archive.Bucket = "ledger-exports"
	}
	if c.Audit.Sink == "" {
		c.Audit.Sink = "database"
	}
	if c.Audit.KafkaTopic == "" {
		c.Audit.KafkaTopic = "orderbridge.audit"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		if c.Server.Environment == "production" {
			c.Logging.Format = "json"
		} else {
			c.Logging.Format = "console"
		}
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}
}

// Validate checks that the settings the service cannot start without are present
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return errors.New("database url is required (DATABASE_URL)")
	}
	if c.Ledger.DSN == "" {
		return errors.New("ledger dsn is required (LEDGER_DSN)")
	}
	switch c.Realtime.Bus {
	case "redis", "nats", "local":
	default:
		return fmt.Errorf("unsupported realtime bus %q", c.Realtime.Bus)
	}
	if c.Realtime.Bus == "nats" && c.Realtime.NATSURL == "" {
		return errors.New("realtime.nats_url is required when bus is nats")
	}
	switch c.Audit.Sink {
	case "database", "kafka":
	default:
		return fmt.Errorf("unsupported audit sink %q", c.Audit.Sink)
	}
	if c.Audit.Sink == "kafka" && len(c.Audit.KafkaBrokers) == 0 {
		return errors.New("audit.kafka_brokers is required when sink is kafka")
	}
	return nil
}

func (c *Config) LockTTL() time.Duration {
	return time.Duration(c.Locks.TTLSeconds) * time.Second
}

func (c *Config) LedgerConnectTimeout() time.Duration {
	return time.Duration(c.Ledger.ConnectTimeoutSeconds) * time.Second
}

func (c *Config) LedgerCommandTimeout() time.Duration {
	return time.Duration(c.Ledger.CommandTimeoutSeconds) * time.Second
}

func (c *Config) MappingCacheTTL() time.Duration {
	return time.Duration(c.Cache.MappingTTLSeconds) * time.Second
}
