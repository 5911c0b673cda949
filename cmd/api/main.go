package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/proctorly/exam-api/internal/config"
	"github.com/proctorly/exam-api/internal/database"
	"github.com/proctorly/exam-api/internal/handler"
	"github.com/proctorly/exam-api/internal/middleware"
	"github.com/proctorly/exam-api/internal/models"
	"github.com/proctorly/exam-api/internal/repository"
	"github.com/proctorly/exam-api/internal/router"
	"github.com/proctorly/exam-api/internal/service"
	"github.com/proctorly/exam-api/internal/session"
	"github.com/proctorly/exam-api/pkg/ai"
	"github.com/proctorly/exam-api/pkg/sandbox"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(&models.Test{}, &models.Question{}, &models.Attempt{}, &models.AttemptAnswer{}); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	natsConn, err := database.ConnectNATS(cfg.NATSURL)
	if err != nil {
		log.Fatalf("failed to connect to nats: %v", err)
	}
	if natsConn != nil {
		defer natsConn.Close()
	}

	executor, err := sandbox.NewDockerExecutor(sandbox.Config{
		Host:          cfg.DockerHost,
		Timeout:       cfg.ExecutionTimeout,
		MemoryLimitMB: int64(cfg.CodeRunMemoryMB),
		CPUShares:     int64(cfg.CodeRunCPUShares),
		Logger:        logger,
	})
	if err != nil {
		log.Fatalf("failed to create sandbox executor: %v", err)
	}
	defer executor.Close()

	evaluator := buildEvaluator(cfg, logger)

	validate := validator.New(validator.WithRequiredStructEnabled())

	testRepo := repository.NewTestRepository(db)
	attemptRepo := repository.NewAttemptRepository(db)

	examService := service.NewExamService(testRepo, logger)
	executionService := service.NewExecutionService(executor, service.ExecutionConfig{
		Timeout:       cfg.ExecutionTimeout,
		MemoryLimitMB: cfg.CodeRunMemoryMB,
		CPUShares:     cfg.CodeRunCPUShares,
	}, logger)
	gradingService := service.NewGradingService(evaluator, executionService, logger)
	resultService := service.NewResultService(attemptRepo, redisClient, cfg.ResultCacheTTL, logger)
	eventService := service.NewEventService(natsConn, cfg.NATSSubject, logger)

	registry := session.NewRegistry(service.NewAttemptStore(attemptRepo), session.SystemClock(), session.Config{
		GraceSeconds:     cfg.GraceSeconds,
		AutosaveInterval: cfg.AutosaveInterval,
	}, logger)
	defer registry.Close()

	examHandler := handler.NewExamHandler(examService, logger)
	sessionHandler := handler.NewSessionHandler(registry, examService, executionService, gradingService, resultService, eventService, validate, logger)
	resultHandler := handler.NewResultHandler(resultService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		ExamHandler:    examHandler,
		SessionHandler: sessionHandler,
		ResultHandler:  resultHandler,
		JWTMiddleware:  middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func buildEvaluator(cfg config.Config, logger zerolog.Logger) ai.Evaluator {
	switch cfg.AIProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			logger.Warn().Msg("openai api key missing, grading falls back to heuristics")
			return nil
		}
		evaluator, err := ai.NewOpenAIEvaluator(ai.OpenAIConfig{
			APIKey: cfg.OpenAIAPIKey,
			Logger: logger,
		})
		if err != nil {
			log.Fatalf("failed to create openai evaluator: %v", err)
		}
		return evaluator
	case "anthropic":
		evaluator, err := ai.NewAnthropicEvaluator(ai.AnthropicConfig{APIKey: cfg.AnthropicAPIKey})
		if err != nil {
			logger.Warn().Err(err).Msg("anthropic evaluator unavailable, grading falls back to heuristics")
			return nil
		}
		return evaluator
	default:
		logger.Warn().Str("provider", cfg.AIProvider).Msg("unknown ai provider, grading falls back to heuristics")
		return nil
	}
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
