package application

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/llmcouncil/llmcouncil/backend/internal/application/usecase"
	"github.com/llmcouncil/llmcouncil/backend/internal/domain/contract"
	"github.com/llmcouncil/llmcouncil/backend/internal/domain/repository"
	"github.com/llmcouncil/llmcouncil/backend/internal/domain/service"
	"github.com/llmcouncil/llmcouncil/backend/internal/infrastructure/config"
	"github.com/llmcouncil/llmcouncil/backend/internal/infrastructure/llm"
	"github.com/llmcouncil/llmcouncil/backend/internal/infrastructure/monitoring"
	"github.com/llmcouncil/llmcouncil/backend/internal/infrastructure/persistence"
	httpServer "github.com/llmcouncil/llmcouncil/backend/internal/interfaces/http"
	"github.com/llmcouncil/llmcouncil/backend/pkg/safego"
)

// App 应用程序（依赖注入容器）
type App struct {
	// 配置
	config *config.Config
	logger *zap.Logger
	db     *gorm.DB

	// 仓储层
	conversationRepo repository.ConversationRepository
	messageRepo      repository.MessageRepository

	// 基础设施
	contracts    *contract.Registry
	stopWatch    func() error
	chatClient   *llm.Client
	monitor      *monitoring.Monitor
	collectorCtx context.CancelFunc

	// 领域服务
	engine *service.Engine

	// 应用服务
	councilUseCase *usecase.CouncilUseCase

	// 接口层
	httpServer *httpServer.Server
}

// NewApp 创建完整应用（HTTP 服务模式）
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	// Bootstrap: ensure ~/.council/ exists with default files on first run
	if err := config.Bootstrap(logger); err != nil {
		logger.Warn("Bootstrap failed (non-fatal)", zap.Error(err))
	}

	app := &App{
		config: cfg,
		logger: logger,
	}

	if err := app.initRepositories(); err != nil {
		return nil, fmt.Errorf("failed to init repositories: %w", err)
	}
	if err := app.initInfrastructure(); err != nil {
		return nil, fmt.Errorf("failed to init infrastructure: %w", err)
	}
	if err := app.initDomainServices(); err != nil {
		return nil, fmt.Errorf("failed to init domain services: %w", err)
	}
	if err := app.initApplicationServices(); err != nil {
		return nil, fmt.Errorf("failed to init application services: %w", err)
	}
	if err := app.initInterfaces(); err != nil {
		return nil, fmt.Errorf("failed to init interfaces: %w", err)
	}
	return app, nil
}

// NewAppCLI creates a lightweight app for CLI mode: in-memory persistence,
// no HTTP server, no pack watcher.
func NewAppCLI(cfg *config.Config, logger *zap.Logger) (*App, error) {
	app := &App{
		config: cfg,
		logger: logger,
	}

	app.conversationRepo = persistence.NewMemoryConversationRepository()
	app.messageRepo = persistence.NewMemoryMessageRepository()

	if err := app.initInfrastructure(); err != nil {
		return nil, fmt.Errorf("failed to init infrastructure: %w", err)
	}
	// CLI one-shots never hot-reload the pack.
	if app.stopWatch != nil {
		_ = app.stopWatch()
		app.stopWatch = nil
	}
	if err := app.initDomainServices(); err != nil {
		return nil, fmt.Errorf("failed to init domain services: %w", err)
	}
	if err := app.initApplicationServices(); err != nil {
		return nil, fmt.Errorf("failed to init application services: %w", err)
	}
	return app, nil
}

// initRepositories 初始化仓储层
func (app *App) initRepositories() error {
	app.logger.Info("Initializing repositories")

	db, err := persistence.NewDBConnection(&app.config.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	app.db = db

	app.conversationRepo = persistence.NewGormConversationRepository(db)
	app.messageRepo = persistence.NewGormMessageRepository(db)
	return nil
}

// initInfrastructure 初始化基础设施 (合同包, 上游客户端, 监控)
func (app *App) initInfrastructure() error {
	app.logger.Info("Initializing infrastructure")

	app.monitor = monitoring.NewMonitor(app.logger)

	// 合同注册表 (内置合同 + 可选 YAML 包)
	app.contracts = contract.NewRegistry(app.logger)
	if path := app.config.Contracts.PackPath; path != "" {
		if err := app.contracts.LoadPack(path); err != nil {
			app.logger.Warn("Contract pack load failed, using built-ins",
				zap.String("path", path),
				zap.Error(err),
			)
		} else if app.config.Contracts.Watch {
			stop, err := app.contracts.Watch(path)
			if err != nil {
				app.logger.Warn("Contract pack watch failed", zap.Error(err))
			} else {
				app.stopWatch = stop
			}
		}
	}

	// 共享上游客户端, token 消耗回流监控
	app.chatClient = llm.NewClient(llm.Config{
		BaseURL:  app.config.Transport.BaseURL,
		APIKey:   app.config.Transport.APIKey,
		Timeout:  time.Duration(app.config.Transport.TimeoutSeconds) * time.Second,
		DebugIDs: app.config.Transport.DebugIDs,
		OnUsage: func(model string, tokens int) {
			app.monitor.AddTokensUsed(tokens)
		},
	}, app.logger)

	return nil
}

// initDomainServices 初始化领域服务
func (app *App) initDomainServices() error {
	app.logger.Info("Initializing domain services")

	council := app.config.Council
	app.engine = service.NewEngine(
		app.chatClient,
		app.contracts,
		service.EngineConfig{
			Stage1Models:         council.Stage1Models,
			Stage2Models:         council.Stage2Models,
			ChairmanModel:        council.ChairmanModel,
			AdjudicatorModel:     council.Adjudicator.Model,
			AdjudicatorFallbacks: council.Adjudicator.Fallbacks,
			AdjudicateEnabled:    council.Adjudicator.Enabled,
			MinNonPartial:        council.Adjudicator.MinNonPartial,
			MinTop1Votes:         council.Adjudicator.MinTop1Votes,
			EvidenceMinLines:     council.EvidenceMinLines,
			HelperEnabled:        council.Helper.Enabled,
			HelperModel:          council.Helper.Model,
			HelperTriggerChars:   council.Helper.TriggerChars,
			MaxTokens:            council.MaxTokens,
			DefaultContracts:     council.ContractsCSV,
		},
		app.logger,
		monitoring.NewMetricsHook(app.monitor),
	)
	return nil
}

// initApplicationServices 初始化应用服务
func (app *App) initApplicationServices() error {
	app.logger.Info("Initializing application services")

	app.councilUseCase = usecase.NewCouncilUseCase(
		app.conversationRepo,
		app.messageRepo,
		app.engine,
		app.monitor,
		app.logger,
	)
	return nil
}

// initInterfaces 初始化接口层
func (app *App) initInterfaces() error {
	app.logger.Info("Initializing interfaces")

	app.httpServer = httpServer.NewServer(
		httpServer.Config{
			Host: app.config.Server.Host,
			Port: app.config.Server.Port,
			Mode: app.config.Server.Mode,
		},
		app.councilUseCase,
		app.monitor,
		app.engine.Diagnostics(),
		app.logger,
	)
	return nil
}

// Start 启动应用程序
func (app *App) Start(ctx context.Context) error {
	app.logger.Info("Starting application")

	if err := app.httpServer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 定期指标快照
	collectorCtx, cancel := context.WithCancel(context.Background())
	app.collectorCtx = cancel
	safego.Go(app.logger, "metrics-collector", func() {
		app.monitor.StartCollector(collectorCtx, 30*time.Second)
	})

	app.logger.Info("Application started successfully")
	return nil
}

// Stop 停止应用程序
func (app *App) Stop(ctx context.Context) error {
	app.logger.Info("Stopping application")

	if app.collectorCtx != nil {
		app.collectorCtx()
	}
	if app.stopWatch != nil {
		if err := app.stopWatch(); err != nil {
			app.logger.Warn("Failed to stop contract pack watcher", zap.Error(err))
		}
	}
	if app.httpServer != nil {
		if err := app.httpServer.Stop(ctx); err != nil {
			app.logger.Error("Failed to stop HTTP server", zap.Error(err))
		}
	}

	// 关闭数据库连接
	if app.db != nil {
		sqlDB, err := app.db.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				app.logger.Error("Failed to close database connection", zap.Error(err))
			}
		}
	}

	app.logger.Info("Application stopped successfully")
	return nil
}

// CouncilUseCase returns the council application service (used by the CLI).
func (app *App) CouncilUseCase() *usecase.CouncilUseCase {
	return app.councilUseCase
}

// Engine returns the council engine (used by the CLI eval harness).
func (app *App) Engine() *service.Engine {
	return app.engine
}

// Monitor returns the metrics monitor.
func (app *App) Monitor() *monitoring.Monitor {
	return app.monitor
}

// Logger returns the application logger.
func (app *App) Logger() *zap.Logger {
	return app.logger
}

// AppConfig returns the application config.
func (app *App) AppConfig() *config.Config {
	return app.config
}
