package container

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/application/workflow"
	"github.com/garyjia/expense-approval/internal/infrastructure/export"
	"github.com/garyjia/expense-approval/internal/infrastructure/lock"
	"github.com/garyjia/expense-approval/internal/infrastructure/metrics"
	"github.com/garyjia/expense-approval/internal/infrastructure/notify"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/memory"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/repository"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/expense-approval/internal/infrastructure/storage"
	"github.com/garyjia/expense-approval/pkg/database"
)

// DatabaseBundle holds the store: repositories plus their transaction manager.
// SqlDB is nil for the memory driver.
type DatabaseBundle struct {
	SqlDB          *sql.DB
	TransactionMgr port.TransactionManager
	Repositories   *RepositoryBundle
}

// NotifierBundle holds the configured event sinks and the closers they own.
type NotifierBundle struct {
	Notifiers []port.Notifier
	closers   []func() error
}

// LockBundle holds the per-expense locker and, for redis, its closer.
type LockBundle struct {
	Locker port.Locker
	close  func() error
}

// ProvideDatabase opens the configured store.
// The sqlite driver applies pending embedded migrations before returning.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if cfg.Driver == "memory" {
		store := memory.NewStore()
		logger.Info("Using in-memory store")
		return &DatabaseBundle{
			TransactionMgr: store,
			Repositories: &RepositoryBundle{
				Expense:  store.Expenses(),
				Decision: store.Decisions(),
				User:     store.Users(),
				Rule:     store.Rules(),
			},
		}, nil
	}

	if cfg.Path != database.MemoryPath {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	if _, err := database.NewMigrator(db, logger).RunMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		SqlDB:          db.DB,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
		Repositories:   ProvideRepositories(db.DB, logger),
	}, nil
}

// ProvideRepositories creates all sqlite repositories from a database connection.
func ProvideRepositories(sqlDB *sql.DB, logger *zap.Logger) *RepositoryBundle {
	return &RepositoryBundle{
		Expense:  repository.NewExpenseRepository(sqlDB, logger),
		Decision: repository.NewDecisionRepository(sqlDB, logger),
		User:     repository.NewUserRepository(sqlDB, logger),
		Rule:     repository.NewRuleRepository(sqlDB, logger),
	}
}

// ProvideLocker creates the per-expense lock backend.
func ProvideLocker(cfg *LockConfig, logger *zap.Logger) (*LockBundle, error) {
	if cfg.Backend != "redis" {
		return &LockBundle{Locker: lock.NewKeyedMutex()}, nil
	}

	locker, err := lock.NewRedisLocker(lock.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		TTL:      cfg.TTL,
		Wait:     cfg.Wait,
	}, logger.Named("lock"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect lock backend: %w", err)
	}
	return &LockBundle{Locker: locker, close: locker.Close}, nil
}

// ProvideNotifiers creates the log sink and every enabled external sink.
func ProvideNotifiers(cfg *NotificationConfig, logger *zap.Logger) (*NotifierBundle, error) {
	bundle := &NotifierBundle{
		Notifiers: []port.Notifier{notify.NewLogNotifier(logger)},
	}

	if cfg.Lark.Enabled {
		larkNotifier, err := notify.NewLarkNotifier(notify.LarkConfig{
			AppID:     cfg.Lark.AppID,
			AppSecret: cfg.Lark.AppSecret,
			ChatID:    cfg.Lark.ChatID,
		}, logger.Named("lark"))
		if err != nil {
			return nil, err
		}
		bundle.Notifiers = append(bundle.Notifiers, larkNotifier)
	}

	if cfg.Kafka.Enabled {
		kafkaNotifier, err := notify.NewKafkaNotifier(notify.KafkaConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
		}, logger.Named("kafka"))
		if err != nil {
			return nil, err
		}
		bundle.Notifiers = append(bundle.Notifiers, kafkaNotifier)
		bundle.closers = append(bundle.closers, kafkaNotifier.Close)
	}

	return bundle, nil
}

// ProvideMetrics creates a registry with runtime collectors and the workflow recorder.
func ProvideMetrics() *metrics.Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return metrics.NewRecorder(reg)
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(logger *zap.Logger) dispatcher.Dispatcher {
	return dispatcher.NewDispatcher(
		dispatcher.WithLogger(&zapLoggerAdapter{logger: logger.Named("dispatcher")}),
	)
}

// WorkflowDeps holds dependencies for creating the workflow engine.
type WorkflowDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Authorizer port.Authorizer
	Dispatcher dispatcher.Dispatcher
	Locker     port.Locker
	Metrics    port.WorkflowMetrics
	Database   *DatabaseConfig
	Policy     *PolicyConfig
	Logger     *zap.Logger
}

// ProvideWorkflowEngine creates the approval chain engine.
func ProvideWorkflowEngine(deps *WorkflowDeps) workflow.WorkflowEngine {
	defaultRule := workflow.DefaultRule()
	defaultRule.Steps[0].Threshold = deps.Policy.DefaultThreshold

	return workflow.NewEngine(
		deps.Repos.Expense,
		deps.Repos.Decision,
		deps.Repos.Rule,
		service.NewOrgChart(deps.Repos.User),
		deps.Authorizer,
		deps.TxManager,
		workflow.WithDispatcher(deps.Dispatcher),
		workflow.WithLocker(deps.Locker),
		workflow.WithMetrics(deps.Metrics),
		workflow.WithLogger(&zapLoggerAdapter{logger: deps.Logger.Named("workflow")}),
		workflow.WithDefaultRule(defaultRule),
		workflow.WithStoreTimeout(deps.Database.StoreTimeout),
		workflow.WithMaxAttempts(deps.Policy.MaxAttempts),
	)
}

// ServiceDeps holds dependencies for creating services.
type ServiceDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Authorizer port.Authorizer
	Engine     workflow.WorkflowEngine
	Notifiers  []port.Notifier
	Export     *ExportConfig
	Logger     *zap.Logger
}

// ProvideServices creates all application services.
func ProvideServices(deps *ServiceDeps) *ServiceBundle {
	log := &zapLoggerAdapter{logger: deps.Logger.Named("service")}

	var reports port.ReportStorage
	if deps.Export.Dir != "" {
		reports = storage.NewLocalReportStorage(deps.Export.Dir, deps.Logger.Named("storage"))
	}

	return &ServiceBundle{
		Expense:      service.NewExpenseService(deps.Repos.Expense, deps.Repos.Decision, deps.Authorizer, log),
		User:         service.NewUserService(deps.Repos.User, deps.Authorizer, deps.TxManager, log),
		Rule:         service.NewRuleService(deps.Repos.Rule, deps.Repos.User, deps.Authorizer, deps.TxManager, log),
		Notification: service.NewNotificationService(deps.Notifiers, log),
		Approval: service.NewApprovalService(
			deps.Repos.Expense,
			deps.Repos.Decision,
			deps.Engine,
			deps.Authorizer,
			export.NewLedgerWorkbook(deps.Logger.Named("export")),
			reports,
			log,
		),
	}
}
