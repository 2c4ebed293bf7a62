// Package container provides dependency injection and lifecycle management
// for the expense approval service.
package container

import (
	"fmt"
	"time"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	Database     DatabaseConfig
	Lock         LockConfig
	Notification NotificationConfig
	Policy       PolicyConfig
	Export       ExportConfig
	Server       ServerConfig
}

// DatabaseConfig holds store settings.
type DatabaseConfig struct {
	// Driver is "sqlite" or "memory"
	Driver string

	// Path to SQLite database file
	Path string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// StoreTimeout bounds every store round trip of the workflow engine
	StoreTimeout time.Duration
}

// LockConfig selects the per-expense lock backend.
type LockConfig struct {
	// Backend is "memory" or "redis"
	Backend string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// TTL is the lease of a redis lock
	TTL time.Duration

	// Wait is how long a caller polls for a held lock
	Wait time.Duration
}

// NotificationConfig holds the optional event sinks. The log sink is always on.
type NotificationConfig struct {
	Lark  LarkConfig
	Kafka KafkaConfig
}

// LarkConfig holds Lark bot settings.
type LarkConfig struct {
	Enabled   bool
	AppID     string
	AppSecret string
	ChatID    string
}

// KafkaConfig holds the transition event stream settings.
type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

// PolicyConfig holds the fallback rule used when an org has none.
type PolicyConfig struct {
	// DefaultThreshold is the percentage of the one-step manager rule
	DefaultThreshold int

	// MaxAttempts bounds optimistic-concurrency replays of one operation
	MaxAttempts int
}

// ExportConfig holds ledger archive settings.
type ExportConfig struct {
	// Dir is the base directory of archived ledger workbooks
	Dir string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:          "sqlite",
			Path:            "data/expenses.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			StoreTimeout:    5 * time.Second,
		},
		Lock: LockConfig{
			Backend: "memory",
			TTL:     30 * time.Second,
			Wait:    10 * time.Second,
		},
		Policy: PolicyConfig{
			DefaultThreshold: 100,
			MaxAttempts:      3,
		},
		Export: ExportConfig{
			Dir: "reports",
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case "memory":
	default:
		return fmt.Errorf("database.driver must be sqlite or memory, got %q", c.Database.Driver)
	}

	switch c.Lock.Backend {
	case "memory":
	case "redis":
		if c.Lock.RedisAddr == "" {
			return fmt.Errorf("lock.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("lock.backend must be memory or redis, got %q", c.Lock.Backend)
	}

	if lark := c.Notification.Lark; lark.Enabled {
		if lark.AppID == "" || lark.AppSecret == "" {
			return fmt.Errorf("notification.lark.app_id and app_secret are required when lark is enabled")
		}
		if lark.ChatID == "" {
			return fmt.Errorf("notification.lark.chat_id is required when lark is enabled")
		}
	}
	if kafka := c.Notification.Kafka; kafka.Enabled {
		if len(kafka.Brokers) == 0 || kafka.Topic == "" {
			return fmt.Errorf("notification.kafka.brokers and topic are required when kafka is enabled")
		}
	}

	if c.Policy.DefaultThreshold < 0 || c.Policy.DefaultThreshold > 100 {
		return fmt.Errorf("policy.default_threshold must be within 0-100")
	}
	if c.Policy.MaxAttempts < 1 {
		return fmt.Errorf("policy.max_attempts must be at least 1")
	}

	return nil
}
