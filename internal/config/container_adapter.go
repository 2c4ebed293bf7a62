package config

import (
	"github.com/garyjia/expense-approval/internal/container"
	"github.com/garyjia/expense-approval/pkg/utils"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Driver:          c.Database.Driver,
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
			StoreTimeout:    c.Database.StoreTimeout,
		},
		Lock: container.LockConfig{
			Backend:       c.Lock.Backend,
			RedisAddr:     c.Lock.RedisAddr,
			RedisPassword: c.Lock.RedisPassword,
			RedisDB:       c.Lock.RedisDB,
			TTL:           c.Lock.TTL,
			Wait:          c.Lock.Wait,
		},
		Notification: container.NotificationConfig{
			Lark: container.LarkConfig{
				Enabled:   c.Notification.Lark.Enabled,
				AppID:     c.Notification.Lark.AppID,
				AppSecret: c.Notification.Lark.AppSecret,
				ChatID:    c.Notification.Lark.ChatID,
			},
			Kafka: container.KafkaConfig{
				Enabled: c.Notification.Kafka.Enabled,
				Brokers: c.Notification.Kafka.Brokers,
				Topic:   c.Notification.Kafka.Topic,
			},
		},
		Policy: container.PolicyConfig{
			DefaultThreshold: c.Policy.DefaultThreshold,
			MaxAttempts:      c.Policy.MaxAttempts,
		},
		Export: container.ExportConfig{
			Dir: c.Export.Dir,
		},
		Server: container.ServerConfig{
			Host:         c.Server.Host,
			Port:         c.Server.Port,
			ReadTimeout:  c.Server.ReadTimeout,
			WriteTimeout: c.Server.WriteTimeout,
		},
	}
}

// ToLoggerConfig converts the logger section for pkg/utils.NewLogger
func (c *Config) ToLoggerConfig() utils.LoggerConfig {
	return utils.LoggerConfig{
		Level:      c.Logger.Level,
		OutputPath: c.Logger.OutputPath,
		Format:     c.Logger.Format,
		Service:    c.Logger.Service,
		Instance:   c.Logger.Instance,
	}
}
