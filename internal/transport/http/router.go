package http

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/codefix/backend/internal/config"
	"github.com/codefix/backend/internal/core/ports"
	"github.com/codefix/backend/internal/infrastructure/logger"
	"github.com/codefix/backend/internal/transport/http/handlers"
	httpmw "github.com/codefix/backend/internal/transport/http/middleware"
)

// RouterConfig carries the composed core instances. The composition root
// owns them; the router only wires handlers to routes.
type RouterConfig struct {
	Store        ports.TaskStore
	Orchestrator ports.Orchestrator
	Broker       ports.ProgressBroker
	Files        ports.FileStore
	Logger       *logger.Logger
	Config       *config.Config
}

func SetupRoutes(app *fiber.App, cfg RouterConfig) {
	reviewHandler := handlers.NewReviewHandler(cfg.Store, cfg.Orchestrator, cfg.Files, cfg.Config.Storage, cfg.Logger)
	wsHandler := handlers.NewWSHandler(cfg.Store, cfg.Broker, cfg.Config.Broker.ReadDeadline, cfg.Logger)

	// Progress stream
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return c.SendStatus(fiber.StatusUpgradeRequired)
	})
	app.Get("/ws/review/:task_id", websocket.New(wsHandler.Handle))

	// API v1 routes
	api := app.Group("/api/v1")

	review := api.Group("/review")
	review.Post("/upload", httpmw.AdminAuth(cfg.Config), reviewHandler.Upload)
	review.Post("/start", httpmw.AdminAuth(cfg.Config), reviewHandler.Start)
	review.Get("/tasks", reviewHandler.ListTasks)
	review.Get("/tasks/:id", reviewHandler.GetTask)
	review.Get("/tasks/:id/result", reviewHandler.DownloadResult)
}
