package container

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/p2p-approval/internal/application/dispatcher"
	"github.com/garyjia/p2p-approval/internal/application/port"
	"github.com/garyjia/p2p-approval/internal/application/service"
	"github.com/garyjia/p2p-approval/internal/application/workflow"
	"github.com/garyjia/p2p-approval/internal/domain/event"
	"github.com/garyjia/p2p-approval/internal/infrastructure/export"
	"github.com/garyjia/p2p-approval/internal/infrastructure/external/openai"
	"github.com/garyjia/p2p-approval/internal/infrastructure/identity"
	"github.com/garyjia/p2p-approval/internal/infrastructure/lock"
	"github.com/garyjia/p2p-approval/internal/infrastructure/metrics"
	"github.com/garyjia/p2p-approval/internal/infrastructure/persistence/repository"
	"github.com/garyjia/p2p-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/p2p-approval/internal/infrastructure/render"
	"github.com/garyjia/p2p-approval/internal/infrastructure/storage"
	"github.com/garyjia/p2p-approval/internal/infrastructure/worker"
	"github.com/garyjia/p2p-approval/migrations"
	"github.com/garyjia/p2p-approval/pkg/database"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	Raw            *database.DB
	TransactionMgr *sqlite.DB
}

// LockBundle holds the request locker and, when distributed, its client.
type LockBundle struct {
	Locker port.Locker
	Redis  *redis.Client
}

// ProvideDatabase opens the database and applies pending migrations.
func ProvideDatabase(ctx context.Context, cfg database.Config, logger *zap.Logger) (*DatabaseBundle, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := database.New(cfg, logger)
	if err != nil {
		return nil, err
	}

	applied, err := database.NewMigrator(db, logger).RunMigrations(ctx, migrations.FS)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	logger.Info("Database ready", zap.String("path", cfg.Path), zap.Int("migrations_applied", applied))

	return &DatabaseBundle{
		Raw:            db,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories on the shared transaction manager.
func ProvideRepositories(db *sqlite.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Requests:  repository.NewRequestRepository(db, logger),
		Approvals: repository.NewApprovalRepository(db, logger),
		Orders:    repository.NewOrderRepository(db, logger),
		Receipts:  repository.NewReceiptRepository(db, logger),
		History:   repository.NewHistoryRepository(db, logger),
	}, nil
}

// ProvideLocker returns a Redis lock when an address is configured and an
// in-process keyed mutex otherwise.
func ProvideLocker(ctx context.Context, cfg RedisConfig, logger *zap.Logger) (*LockBundle, error) {
	if cfg.Addr == "" {
		logger.Info("Using in-process request locks")
		return &LockBundle{Locker: lock.NewKeyedMutex()}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.Addr, err)
	}

	logger.Info("Using redis request locks", zap.String("addr", cfg.Addr))
	locker := lock.NewRedisLocker(client, lock.RedisLockerConfig{TTL: cfg.LockTTL}, logger)
	return &LockBundle{Locker: locker, Redis: client}, nil
}

// ProvideBlobStore creates the document store for the configured driver.
func ProvideBlobStore(ctx context.Context, cfg StorageConfig, logger *zap.Logger) (port.BlobStore, error) {
	switch cfg.Driver {
	case "minio":
		return storage.NewMinioBlobStore(ctx, cfg.Minio, logger)
	case "local", "":
		if err := os.MkdirAll(cfg.LocalDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
		return storage.NewLocalBlobStore(cfg.LocalDir, logger), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// ProvideRoles creates the role provider from configured assignments.
func ProvideRoles(cfg AuthConfig) (port.RoleProvider, error) {
	roles, err := identity.NewStaticRoles(cfg.Roles, cfg.DefaultRole)
	if err != nil {
		return nil, fmt.Errorf("invalid role configuration: %w", err)
	}
	return roles, nil
}

// ProvideReceiptExtractor creates the receipt extractor. Without an API key
// it still parses text receipts.
func ProvideReceiptExtractor(cfg OpenAIConfig, logger *zap.Logger) (port.ReceiptExtractor, error) {
	prompts, err := openai.LoadPrompts(cfg.PromptsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load prompts: %w", err)
	}
	if cfg.Extractor.APIKey == "" {
		logger.Info("OpenAI key not set, receipt extraction limited to text parsing")
	}
	return openai.NewReceiptExtractor(cfg.Extractor, prompts, logger), nil
}

// ServiceDeps holds dependencies required for creating services.
type ServiceDeps struct {
	Repos       *RepositoryBundle
	Roles       port.RoleProvider
	OrderCfg    service.OrderConfig
	ReceiptCfg  service.ValidatorConfig
	CompanyName string
	Logger      *zap.Logger
}

// ProvideServices creates all application services.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	serviceLogger := &zapLoggerAdapter{logger: deps.Logger}

	return &ServiceBundle{
		Ledger:    service.NewLedgerService(deps.Repos.Approvals, serviceLogger),
		Generator: service.NewOrderGenerator(deps.Repos.Orders, deps.OrderCfg, serviceLogger),
		Validator: service.NewReceiptValidator(deps.ReceiptCfg),
		Register: service.NewRegisterService(
			deps.Repos.Orders,
			deps.Roles,
			export.NewXLSXRegister(deps.CompanyName),
			serviceLogger,
		),
	}, nil
}

// ProvideDispatcher creates the event dispatcher. asyncTimeout bounds each
// background handler run.
func ProvideDispatcher(asyncTimeout time.Duration, logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return dispatcher.NewDispatcher(
		dispatcher.WithLogger(&zapLoggerAdapter{logger: logger}),
		dispatcher.WithAsyncTimeout(asyncTimeout),
	), nil
}

// WorkflowDeps holds dependencies required for creating the workflow engine.
type WorkflowDeps struct {
	Repos       *RepositoryBundle
	Services    *ServiceBundle
	TxManager   port.TransactionManager
	Locker      port.Locker
	Roles       port.RoleProvider
	Blobs       port.BlobStore
	Extractor   port.ReceiptExtractor
	Dispatcher  dispatcher.Dispatcher
	Metrics     *metrics.Recorder
	LockTimeout time.Duration
	Logger      *zap.Logger
}

// ProvideWorkflowEngine creates the workflow engine.
func ProvideWorkflowEngine(deps *WorkflowDeps) (workflow.WorkflowEngine, error) {
	if deps == nil {
		return nil, fmt.Errorf("workflow dependencies are required")
	}
	if deps.Repos == nil || deps.Services == nil {
		return nil, fmt.Errorf("repositories and services are required")
	}
	if deps.TxManager == nil || deps.Locker == nil {
		return nil, fmt.Errorf("transaction manager and locker are required")
	}
	if deps.Roles == nil || deps.Blobs == nil {
		return nil, fmt.Errorf("role provider and blob store are required")
	}

	opts := []workflow.EngineOption{
		workflow.WithLogger(&zapLoggerAdapter{logger: deps.Logger}),
		workflow.WithLockTimeout(deps.LockTimeout),
	}
	if deps.Dispatcher != nil {
		opts = append(opts, workflow.WithDispatcher(deps.Dispatcher))
	}
	if deps.Extractor != nil {
		opts = append(opts, workflow.WithExtractor(deps.Extractor))
	}
	if deps.Metrics != nil {
		opts = append(opts, workflow.WithMetrics(deps.Metrics))
	}

	return workflow.NewEngine(workflow.Dependencies{
		Requests:  deps.Repos.Requests,
		Orders:    deps.Repos.Orders,
		Receipts:  deps.Repos.Receipts,
		History:   deps.Repos.History,
		TxManager: deps.TxManager,
		Locker:    deps.Locker,
		Roles:     deps.Roles,
		Blobs:     deps.Blobs,
		Ledger:    deps.Services.Ledger,
		Generator: deps.Services.Generator,
		Validator: deps.Services.Validator,
	}, opts...), nil
}

// WorkerDeps holds dependencies required for creating workers.
type WorkerDeps struct {
	Repos       *RepositoryBundle
	Blobs       port.BlobStore
	Dispatcher  dispatcher.Dispatcher
	Metrics     *metrics.Recorder
	RenderCfg   worker.RenderWorkerConfig
	CompanyName string
	Logger      *zap.Logger
}

// ProvideWorkers creates the worker manager with the render worker
// registered but not started. The render worker is subscribed to
// order.generated so new orders render without waiting for the next poll.
func ProvideWorkers(deps *WorkerDeps) (*worker.Manager, error) {
	if deps == nil {
		return nil, fmt.Errorf("worker dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.Blobs == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	renderer := render.NewPDFRenderer(deps.Blobs, render.Config{CompanyName: deps.CompanyName}, deps.Logger)

	var recorder port.MetricsRecorder
	if deps.Metrics != nil {
		recorder = deps.Metrics
	}
	var publisher worker.EventPublisher
	if deps.Dispatcher != nil {
		publisher = deps.Dispatcher
	}

	renderWorker := worker.NewRenderWorker(
		deps.RenderCfg,
		deps.Repos.Orders,
		deps.Repos.Requests,
		renderer,
		recorder,
		publisher,
		deps.Logger,
	)
	if deps.Dispatcher != nil {
		deps.Dispatcher.Subscribe(event.TypeOrderGenerated, "po_renderer", renderWorker.HandleOrderGenerated)
	}

	manager := worker.NewManager(deps.Logger)
	manager.Register(renderWorker)

	return manager, nil
}
