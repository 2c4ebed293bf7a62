package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces the environment overrides, e.g. EXPENSE_SERVER_PORT
const EnvPrefix = "EXPENSE"

// Config holds all application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Logger       LoggerConfig       `mapstructure:"logger"`
	Lock         LockConfig         `mapstructure:"lock"`
	Notification NotificationConfig `mapstructure:"notification"`
	Policy       PolicyConfig       `mapstructure:"policy"`
	Export       ExportConfig       `mapstructure:"export"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	StoreTimeout    time.Duration `mapstructure:"store_timeout"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
	Service    string `mapstructure:"service"`
	Instance   string `mapstructure:"instance"`
}

// LockConfig holds the per-expense lock backend configuration
type LockConfig struct {
	Backend       string        `mapstructure:"backend"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	TTL           time.Duration `mapstructure:"ttl"`
	Wait          time.Duration `mapstructure:"wait"`
}

// NotificationConfig holds the optional event sinks
type NotificationConfig struct {
	Lark  LarkConfig  `mapstructure:"lark"`
	Kafka KafkaConfig `mapstructure:"kafka"`
}

// LarkConfig holds Lark bot configuration
type LarkConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	AppID     string `mapstructure:"app_id"`
	AppSecret string `mapstructure:"app_secret"`
	ChatID    string `mapstructure:"chat_id"`
}

// KafkaConfig holds the event stream configuration
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// PolicyConfig holds the policy seed file and the fallback rule
type PolicyConfig struct {
	File             string `mapstructure:"file"`
	DefaultThreshold int    `mapstructure:"default_threshold"`
	MaxAttempts      int    `mapstructure:"max_attempts"`
}

// ExportConfig holds ledger archive configuration
type ExportConfig struct {
	Dir string `mapstructure:"dir"`
}

// Load loads configuration from file and environment variables.
// An empty configPath skips the file and uses defaults plus environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "data/expenses.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.store_timeout", 5*time.Second)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.service", "expense-approval")

	// Lock defaults
	v.SetDefault("lock.backend", "memory")
	v.SetDefault("lock.redis_addr", "localhost:6379")
	v.SetDefault("lock.redis_db", 0)
	v.SetDefault("lock.ttl", 30*time.Second)
	v.SetDefault("lock.wait", 10*time.Second)

	// Notification defaults
	v.SetDefault("notification.lark.enabled", false)
	v.SetDefault("notification.kafka.enabled", false)
	v.SetDefault("notification.kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("notification.kafka.topic", "expense-transitions")

	// Policy defaults
	v.SetDefault("policy.file", "")
	v.SetDefault("policy.default_threshold", 100)
	v.SetDefault("policy.max_attempts", 3)

	// Export defaults
	v.SetDefault("export.dir", "reports")
}

// bindEnvVars binds the unprefixed variables secrets are usually delivered in
func bindEnvVars(v *viper.Viper) {
	_ = v.BindEnv("notification.lark.app_id", "LARK_APP_ID", "EXPENSE_NOTIFICATION_LARK_APP_ID")
	_ = v.BindEnv("notification.lark.app_secret", "LARK_APP_SECRET", "EXPENSE_NOTIFICATION_LARK_APP_SECRET")
	_ = v.BindEnv("notification.lark.chat_id", "LARK_CHAT_ID", "EXPENSE_NOTIFICATION_LARK_CHAT_ID")
	_ = v.BindEnv("lock.redis_password", "REDIS_PASSWORD", "EXPENSE_LOCK_REDIS_PASSWORD")
	_ = v.BindEnv("notification.kafka.brokers", "KAFKA_BROKERS", "EXPENSE_NOTIFICATION_KAFKA_BROKERS")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	switch c.Logger.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logger.format must be json or console, got %q", c.Logger.Format)
	}
	return c.ToContainerConfig().Validate()
}
