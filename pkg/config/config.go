package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/warden/pkg/accounts"
	"github.com/platinummonkey/warden/pkg/invitations"
	"github.com/platinummonkey/warden/pkg/notifications"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/storage"
	"github.com/platinummonkey/warden/pkg/users"
)

// PathEnv names the environment variable holding the config file path
const PathEnv = "WARDEN_CONFIG"

// Config holds the process configuration
type Config struct {
	Server        ServerConfig             `yaml:"server"`
	Database      storage.Config           `yaml:"database"`
	Redis         storage.RedisConfig      `yaml:"redis"`
	Log           LogConfig                `yaml:"log"`
	OTel          observability.OTelConfig `yaml:"otel"`
	Cache         CacheConfig              `yaml:"cache"`
	Audit         AuditConfig              `yaml:"audit"`
	Invitations   InvitationsConfig        `yaml:"invitations"`
	Notifications NotificationsConfig      `yaml:"notifications"`
}

// ServerConfig holds the ops HTTP listener configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// CacheConfig holds the user read cache configuration
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	Size    int           `yaml:"size"`
	TTL     time.Duration `yaml:"ttl"`
}

// Users converts to the users package cache settings
func (c CacheConfig) Users() users.CacheConfig {
	return users.CacheConfig{Size: c.Size, TTL: c.TTL}
}

// AuditConfig holds audit trail configuration
type AuditConfig struct {
	Async bool `yaml:"async"`
}

// InvitationsConfig holds invitation lifecycle configuration
type InvitationsConfig struct {
	TTL             time.Duration `yaml:"ttl"`
	CleanupSchedule string        `yaml:"cleanup_schedule"`
}

// NotificationsConfig holds notification queue configuration
type NotificationsConfig struct {
	QueueKey    string        `yaml:"queue_key"`
	PollTimeout time.Duration `yaml:"poll_timeout"`
}

// Default returns the built-in configuration
func Default() *Config {
	cache := users.DefaultCacheConfig()
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "9090",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: storage.Config{
			Driver:          storage.Postgres,
			DSN:             "postgres://localhost:5432/warden?sslmode=disable",
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
			ConnectTimeout:  5 * time.Second,
		},
		Redis: storage.RedisConfig{
			PoolSize:   10,
			MaxRetries: 3,
		},
		Log: LogConfig{
			Level:  "info",
			Format: observability.FormatJSON,
		},
		OTel: observability.OTelConfig{
			Endpoint:       "localhost:4317",
			ServiceName:    "warden",
			ServiceVersion: "dev",
			Insecure:       true,
		},
		Cache: CacheConfig{
			Enabled: true,
			Size:    cache.Size,
			TTL:     cache.TTL,
		},
		Invitations: InvitationsConfig{
			TTL:             accounts.InvitationTTL,
			CleanupSchedule: invitations.DefaultCleanupSchedule,
		},
		Notifications: NotificationsConfig{
			QueueKey:    notifications.DefaultQueueKey,
			PollTimeout: 5 * time.Second,
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// any) and WARDEN_* environment overrides, then validates it
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Host = getEnv("WARDEN_HOST", c.Server.Host)
	c.Server.Port = getEnv("WARDEN_PORT", c.Server.Port)
	c.Server.ReadTimeout = getEnvDuration("WARDEN_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("WARDEN_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.ShutdownTimeout = getEnvDuration("WARDEN_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	c.Database.Driver = storage.Dialect(getEnv("WARDEN_DB_DRIVER", string(c.Database.Driver)))
	c.Database.DSN = getEnv("WARDEN_DB_DSN", c.Database.DSN)
	c.Database.MaxOpenConns = getEnvInt("WARDEN_DB_MAX_OPEN_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = getEnvInt("WARDEN_DB_MAX_IDLE_CONNS", c.Database.MaxIdleConns)

	c.Redis.URL = getEnv("WARDEN_REDIS_URL", c.Redis.URL)
	c.Redis.Password = getEnv("WARDEN_REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvInt("WARDEN_REDIS_DB", c.Redis.DB)

	c.Log.Level = getEnv("WARDEN_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("WARDEN_LOG_FORMAT", c.Log.Format)

	c.OTel.Enabled = getEnvBool("WARDEN_OTEL_ENABLED", c.OTel.Enabled)
	c.OTel.Endpoint = getEnv("WARDEN_OTEL_ENDPOINT", c.OTel.Endpoint)
	c.OTel.ServiceVersion = getEnv("WARDEN_VERSION", c.OTel.ServiceVersion)

	c.Cache.Enabled = getEnvBool("WARDEN_CACHE_ENABLED", c.Cache.Enabled)
	c.Cache.Size = getEnvInt("WARDEN_CACHE_SIZE", c.Cache.Size)
	c.Cache.TTL = getEnvDuration("WARDEN_CACHE_TTL", c.Cache.TTL)

	c.Audit.Async = getEnvBool("WARDEN_AUDIT_ASYNC", c.Audit.Async)

	c.Invitations.TTL = getEnvDuration("WARDEN_INVITATION_TTL", c.Invitations.TTL)
	c.Invitations.CleanupSchedule = getEnv("WARDEN_INVITATION_CLEANUP_SCHEDULE", c.Invitations.CleanupSchedule)

	c.Notifications.QueueKey = getEnv("WARDEN_NOTIFICATION_QUEUE", c.Notifications.QueueKey)
	c.Notifications.PollTimeout = getEnvDuration("WARDEN_NOTIFICATION_POLL_TIMEOUT", c.Notifications.PollTimeout)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("server port is required")
	}
	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		return fmt.Errorf("server port %q is not a number", c.Server.Port)
	}

	if !c.Database.Driver.Valid() {
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("database DSN is required")
	}

	if _, err := observability.NewLogger(c.Log.Level, c.Log.Format, nil); err != nil {
		return err
	}

	if c.OTel.Enabled && c.OTel.Endpoint == "" {
		return errors.New("otel endpoint is required when otel is enabled")
	}

	if c.Cache.Enabled && c.Cache.Size <= 0 {
		return errors.New("cache size must be positive when the cache is enabled")
	}

	if c.Invitations.TTL <= 0 {
		return errors.New("invitation TTL must be positive")
	}
	if c.Invitations.CleanupSchedule != "" {
		if _, err := cron.ParseStandard(c.Invitations.CleanupSchedule); err != nil {
			return fmt.Errorf("invalid invitation cleanup schedule: %w", err)
		}
	}

	if c.Notifications.PollTimeout <= 0 {
		return errors.New("notification poll timeout must be positive")
	}

	return nil
}

// getEnv returns an environment variable or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
