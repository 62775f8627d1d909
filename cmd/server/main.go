package main

import (
	"context"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"

	"github.com/drumextract/api/internal/config"
	"github.com/drumextract/api/internal/handler"
	"github.com/drumextract/api/internal/middleware"
	"github.com/drumextract/api/internal/orchestrator"
	"github.com/drumextract/api/internal/pipeline"
	"github.com/drumextract/api/internal/reaper"
	"github.com/drumextract/api/internal/service"
	"github.com/drumextract/api/internal/task"
	ws "github.com/drumextract/api/internal/websocket"
	"github.com/drumextract/api/pkg/response"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	for _, dir := range []string{cfg.Storage.UploadDir, cfg.Storage.OutputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("Failed to create %s: %v", dir, err)
		}
	}

	// Root context for background work; cancelled on shutdown so running
	// stage subprocesses get interrupted.
	rootCtx, stop := context.WithCancel(context.Background())
	defer stop()

	// Initialize Redis client (rate limiting only; the service runs fine
	// without it)
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(rootCtx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	// Initialize validator
	validate := validator.New()

	// Core components
	registry := task.NewRegistry()
	separator := pipeline.NewSeparator(cfg.Pipeline.SpleeterBin, cfg.Storage.OutputDir)
	transcriber := pipeline.NewTranscriber(cfg.Pipeline.BasicPitchBin, cfg.Storage.OutputDir)
	orch := orchestrator.New(rootCtx, registry, separator, transcriber, cfg.Storage.OutputDir)
	taskService := service.NewTaskService(registry, cfg.Storage.UploadDir, cfg.Storage.OutputDir)
	sessions := ws.NewHandler(registry, orch, validate)

	// Handlers
	uploadHandler := handler.NewUploadHandler(taskService, validate)
	taskHandler := handler.NewTaskHandler(taskService)
	downloadHandler := handler.NewDownloadHandler(taskService)

	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    50 * 1024 * 1024, // 50MB
	})

	// Global middleware
	app.Use(recover.New())
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams}\n"
		log.Println("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	// Base URL - timestamp
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		_, spleeterErr := exec.LookPath(cfg.Pipeline.SpleeterBin)
		_, basicPitchErr := exec.LookPath(cfg.Pipeline.BasicPitchBin)
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"spleeter":    spleeterErr == nil,
				"basic_pitch": basicPitchErr == nil,
				"redis":       redisClient.Ping(c.Context()).Err() == nil,
			},
		})
	})

	// Task routes
	app.Post("/upload", rateLimiter.UploadLimit(cfg.RateLimit.UploadPerHour), uploadHandler.Upload)
	app.Get("/status/:taskId", taskHandler.Status)
	app.Delete("/task/:taskId", taskHandler.Delete)

	// Download routes
	app.Get("/preview/:taskId", downloadHandler.Drums)
	app.Get("/download/drums/:taskId", downloadHandler.Drums)
	app.Get("/download/midi/:taskId", downloadHandler.Midi)
	app.Get("/download/stems/:taskId/:stem", downloadHandler.Stem)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/process/:taskId", websocket.New(func(c *websocket.Conn) {
		taskID := c.Params("taskId")
		sessions.Handle(c, taskID)
	}))

	// Start reaper
	taskReaper := reaper.New(registry, cfg.Storage.UploadDir, cfg.Storage.OutputDir,
		cfg.Retention.TTL, cfg.Retention.SweepInterval)
	go taskReaper.Run(rootCtx)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		stop()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return response.Error(c, code, response.CodeServiceError, message, nil)
}
