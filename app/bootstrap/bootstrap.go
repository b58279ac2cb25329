package bootstrap

import (
	"io"
	"log"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/aihub/vectorstore-go/app/controllers"
	"github.com/aihub/vectorstore-go/app/middleware"
	"github.com/aihub/vectorstore-go/internal/auth"
	"github.com/aihub/vectorstore-go/internal/config"
	"github.com/aihub/vectorstore-go/internal/database"
	"github.com/aihub/vectorstore-go/internal/di"
	"github.com/aihub/vectorstore-go/internal/discovery"
	"github.com/aihub/vectorstore-go/internal/interfaces"
	"github.com/aihub/vectorstore-go/internal/logger"
	"github.com/aihub/vectorstore-go/internal/services"
	"github.com/aihub/vectorstore-go/internal/vector"
)

// App encapsulates lifecycle resources that need to be cleaned up on shutdown.
type App struct {
	cleanupTasks []func() error
	registry     discovery.Registry
}

// Init bootstraps configuration, logger, database connections and other shared
// infrastructure components required by the Beego application.
func Init() (*App, error) {
	// Load environment variables from .env if present (non-fatal if missing).
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	// Initialize structured logger.
	if err := logger.InitLogger(); err != nil {
		return nil, err
	}

	// Load dynamic configuration.
	if err := config.LoadConfig(); err != nil {
		return nil, err
	}
	config.Watch(func(cfg *config.Config) {
		logger.Info("配置文件已更新", zap.String("env", cfg.Server.Env))
	})

	app := &App{}

	// Initialize database.
	if _, err := database.InitDB(); err != nil {
		return nil, err
	}

	// Initialize Redis (optional). Failure shouldn't block the app.
	if _, err := database.InitRedis(); err != nil {
		logger.Warn("Failed to initialize Redis", zap.Error(err))
	} else {
		app.cleanupTasks = append(app.cleanupTasks, func() error {
			return database.CloseRedis()
		})
	}

	// 通过依赖注入容器完成服务装配
	container := di.InitContainer()
	if err := di.RegisterProviders(container); err != nil {
		return nil, err
	}

	err := di.Invoke(func(
		collections *services.CollectionService,
		documents *services.DocumentService,
		search *services.SearchService,
		ingest *services.IngestService,
		backend vector.Backend,
		embedder vector.Embedder,
		db interfaces.DatabaseInterface,
		queue interfaces.QueueInterface,
		authService *auth.Service,
	) {
		middleware.SetupAuth(authService)
		controllers.Setup(collections, documents, search, ingest, backend, embedder)

		app.cleanupTasks = append(app.cleanupTasks, db.Close)
		if closer, ok := backend.(io.Closer); ok {
			app.cleanupTasks = append(app.cleanupTasks, closer.Close)
		}
		if queue != nil {
			app.cleanupTasks = append(app.cleanupTasks, queue.Close)
		}
	})
	if err != nil {
		return nil, err
	}

	// Register service with Consul or etcd (optional).
	registry, err := discovery.NewRegistry(config.AppConfig)
	if err != nil {
		logger.Warn("Failed to create service registry", zap.Error(err))
	} else if err := registry.Register(); err != nil {
		logger.Warn("Failed to register service", zap.Error(err))
	} else {
		app.registry = registry
		app.cleanupTasks = append(app.cleanupTasks, registry.Deregister)
	}

	logger.Info("应用初始化完成",
		zap.String("store_provider", config.AppConfig.Store.Provider),
		zap.String("embedding_provider", config.AppConfig.Embedding.Provider),
		zap.String("env", config.AppConfig.Server.Env))

	return app, nil
}

// Shutdown flushes/logs and closes resources gracefully.
func (a *App) Shutdown() {
	// Execute cleanup tasks in reverse order (best effort).
	for i := len(a.cleanupTasks) - 1; i >= 0; i-- {
		if err := a.cleanupTasks[i](); err != nil {
			log.Printf("Cleanup error: %v\n", err)
		}
	}

	// Flush logger buffers.
	logger.Sync()
}
