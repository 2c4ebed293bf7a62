package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/config"
	"github.com/garyjia/expense-approval/internal/container"
	httpapi "github.com/garyjia/expense-approval/internal/interfaces/http"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long:  "Opens the store, applies pending migrations, seeds the policy file and serves the HTTP API until SIGINT or SIGTERM.",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting expense approval service",
		zap.String("version", "1.0.0"),
		zap.Int("port", cfg.Server.Port),
		zap.String("database", cfg.Database.Driver),
		zap.String("lock", cfg.Lock.Backend))

	c, err := startContainer(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Error("Container shutdown failed", zap.Error(err))
		}
	}()

	if err := seedPolicy(ctx, c); err != nil {
		return err
	}

	services := c.Services()
	server := httpapi.NewServer(
		httpapi.ServerConfig{
			Host:         cfg.Server.Host,
			Port:         cfg.Server.Port,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
		httpapi.Services{
			Engine:     c.WorkflowEngine(),
			Expenses:   services.Expense,
			Approvals:  services.Approval,
			Users:      services.User,
			Rules:      services.Rule,
			Authorizer: c.Authorizer(),
		},
		c.MetricsHandler(),
		c.LoggerAdapter("http"),
	)

	return server.Start(ctx)
}

func startContainer(ctx context.Context) (*container.Container, error) {
	c, err := container.NewContainer(cfg.ToContainerConfig(), logger)
	if err != nil {
		return nil, err
	}
	if err := c.Start(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func seedPolicy(ctx context.Context, c *container.Container) error {
	if cfg.Policy.File == "" {
		return nil
	}

	policy, err := config.LoadPolicy(cfg.Policy.File)
	if err != nil {
		return err
	}
	services := c.Services()
	if err := policy.Apply(ctx, services.User, services.Rule); err != nil {
		return fmt.Errorf("failed to seed policy: %w", err)
	}

	logger.Info("Policy seeded",
		zap.String("file", cfg.Policy.File),
		zap.Int("users", len(policy.Users)),
		zap.Int("rules", len(policy.Rules)))
	return nil
}
