package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/codefix/backend/internal/config"
	"github.com/codefix/backend/internal/core/ports"
	"github.com/codefix/backend/internal/core/services"
	"github.com/codefix/backend/internal/domain"
	"github.com/codefix/backend/internal/infrastructure/db"
	"github.com/codefix/backend/internal/infrastructure/llm"
	"github.com/codefix/backend/internal/infrastructure/logger"
	"github.com/codefix/backend/internal/infrastructure/storage"
	transporthttp "github.com/codefix/backend/internal/transport/http"
)

func main() {
	configPath := "config/config.yaml"
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		configPath = "../config/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log, err := logger.New(cfg.Logger)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer log.Sync()

	files, err := storage.NewFileStore(cfg.Storage, log)
	if err != nil {
		log.Fatalf("failed to initialize file storage: %v", err)
	}

	// Task store backend is a config choice; the rest of the system only
	// sees the ports.TaskStore contract.
	var store ports.TaskStore
	var database *gorm.DB
	switch cfg.Storage.Driver {
	case "postgres":
		database, err = db.NewPostgresConnection(cfg.Storage.Database)
		if err != nil {
			log.Fatalf("failed to connect to database: %v", err)
		}
		if err := db.RunMigrations(database); err != nil {
			log.Fatalf("failed to run migrations: %v", err)
		}
		log.Info("database connection established")
		store = db.NewTaskRepository(database, log)
	case "memory":
		store = services.NewTaskStore(log)
	default:
		log.Fatalf("unknown storage driver: %s", cfg.Storage.Driver)
	}

	broker := services.NewProgressBroker(log)

	llmClient := llm.NewClient(cfg.LLM, log)
	orchestrator, err := services.NewTaskOrchestrator(services.OrchestratorConfig{
		Store:  store,
		Broker: broker,
		Files:  files,
		Runners: map[domain.Stage]ports.StageRunner{
			domain.StageArchitect: llm.NewArchitectRunner(llmClient, log),
			domain.StageReviewer:  llm.NewReviewerRunner(llmClient, log),
			domain.StageOptimizer: llm.NewOptimizerRunner(llmClient, log),
			domain.StageSave:      storage.NewSaveRunner(files, log),
		},
		Logger: log,
	})
	if err != nil {
		log.Fatalf("failed to build orchestrator: %v", err)
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		BodyLimit:             int(cfg.Storage.MaxFileSize) + 1<<20,
		ErrorHandler:          globalErrorHandler(log),
		DisableStartupMessage: true,
	})

	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	allowedOrigins := "http://localhost:3000"
	if len(cfg.Auth.AllowedOrigins) > 0 {
		allowedOrigins = strings.Join(cfg.Auth.AllowedOrigins, ",")
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: allowedOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Admin-Token",
		AllowMethods: "GET, POST, HEAD, PUT, DELETE, PATCH",
	}))

	app.Use(func(c *fiber.Ctx) error {
		reqID := c.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.New().String()
		}
		ctx := context.WithValue(c.Context(), "request_id", reqID)
		c.SetUserContext(ctx)
		return c.Next()
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":      "ok",
			"connections": broker.TotalConnections(),
		})
	})

	transporthttp.SetupRoutes(app, transporthttp.RouterConfig{
		Store:        store,
		Orchestrator: orchestrator,
		Broker:       broker,
		Files:        files,
		Logger:       log,
		Config:       cfg,
	})

	stopMaintenance := make(chan struct{})
	go runMaintenance(cfg, store, broker, log, stopMaintenance)

	go func() {
		if err := app.Listen(cfg.Server.Address()); err != nil {
			log.Fatalf("server failed to start: %v", err)
		}
	}()
	log.Infof("server started on %s", cfg.Server.Address())

	gracefulShutdown(app, database, stopMaintenance, log)
}

// runMaintenance owns the periodic broker eviction and task retention
// passes, independent of request traffic.
func runMaintenance(cfg *config.Config, store ports.TaskStore, broker ports.ProgressBroker, log *logger.Logger, stop <-chan struct{}) {
	evict := time.NewTicker(cfg.Broker.EvictInterval)
	cleanup := time.NewTicker(cfg.Storage.CleanupInterval)
	defer evict.Stop()
	defer cleanup.Stop()

	for {
		select {
		case <-evict.C:
			broker.EvictIdle(cfg.Broker.IdleTimeout)
		case <-cleanup.C:
			if _, err := store.CleanupOldTasks(context.Background(), cfg.Storage.RetainTasks); err != nil {
				log.Errorw("task_cleanup_failed", "error", err)
			}
		case <-stop:
			return
		}
	}
}

func globalErrorHandler(log *logger.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
		}

		if code == fiber.StatusRequestTimeout || code == fiber.StatusNotFound {
			log.Warnw("request failed",
				"method", c.Method(),
				"path", c.Path(),
				"status", code,
				"error", err.Error(),
			)
		} else {
			log.Errorw("request error",
				"method", c.Method(),
				"path", c.Path(),
				"status", code,
				"error", err.Error(),
			)
		}

		return c.Status(code).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
}

func gracefulShutdown(app *fiber.App, database *gorm.DB, stopMaintenance chan struct{}, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	log.Info("shutting down server...")
	close(stopMaintenance)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Errorf("server forced to shutdown: %v", err)
	}

	if database != nil {
		if err := db.Close(database); err != nil {
			log.Errorf("failed to close database connection: %v", err)
		}
	}

	log.Info("server exited gracefully")
}
