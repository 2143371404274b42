package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-edp-api/internal/config"
	"github.com/noah-isme/gema-edp-api/internal/database"
	"github.com/noah-isme/gema-edp-api/internal/grading"
	"github.com/noah-isme/gema-edp-api/internal/handler"
	"github.com/noah-isme/gema-edp-api/internal/middleware"
	"github.com/noah-isme/gema-edp-api/internal/models"
	"github.com/noah-isme/gema-edp-api/internal/repository"
	"github.com/noah-isme/gema-edp-api/internal/router"
	"github.com/noah-isme/gema-edp-api/internal/service"
	"github.com/noah-isme/gema-edp-api/pkg/ai"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	if err := db.AutoMigrate(&models.User{}, &models.Project{}, &models.EdpStep{}); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, shared grading cache and pub-sub disabled")
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("nats unavailable, step events limited to redis")
			natsConn = nil
		} else {
			defer natsConn.Drain()
		}
	}

	generator, closeGenerator, err := newGenerator(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create ai generator")
	}
	defer func() {
		if err := closeGenerator(); err != nil {
			logger.Warn().Err(err).Msg("failed to close ai generator")
		}
	}()

	gate := grading.NewGate(cfg.Grading.MaxConcurrency)
	gradingOpts := []grading.Option{
		grading.WithCache(grading.NewLRUCache(cfg.Grading.CacheSize)),
		grading.WithGate(gate),
		grading.WithRetryPolicy(grading.RetryPolicy{
			BaseDelay:  cfg.Grading.RetryBaseDelay,
			MinDelay:   cfg.Grading.RetryMinDelay,
			MaxDelay:   cfg.Grading.RetryMaxDelay,
			MaxElapsed: cfg.Grading.RetryDeadline,
		}),
		grading.WithLocale(cfg.Grading.Locale),
		grading.WithLogger(logger),
	}
	if redisClient != nil {
		gradingOpts = append(gradingOpts, grading.WithSharedCache(grading.NewRedisCache(redisClient, "", cfg.Grading.SharedCacheTTL)))
	}
	if cfg.Grading.CollapseInFlight {
		gradingOpts = append(gradingOpts, grading.WithInFlightCollapse())
	}
	grader := grading.NewService(generator, gradingOpts...)

	validate := validator.New(validator.WithRequiredStructEnabled())

	projectRepo := repository.NewProjectRepository(db)
	stepRepo := repository.NewEdpStepRepository(db)

	events := service.NewStepEventPublisher(redisClient, natsConn, cfg.RealtimeChannel, logger)
	submissionService := service.NewEdpSubmissionService(projectRepo, stepRepo, grader, events, validate, logger, service.EdpSubmissionConfig{
		Cooldown: cfg.Submission.Cooldown,
	})

	submitLimiter := middleware.RateLimit("edp_submit", cfg.Submission.RateLimitMax, cfg.Submission.RateLimitWindow)
	edpHandler := handler.NewEdpHandler(submissionService, submitLimiter, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		// A graded submission can wait out the full retry deadline.
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Grading.RetryDeadline + 15*time.Second,
	})

	middleware.Register(app, middleware.Config{
		Logger:       &logger,
		AllowOrigins: cfg.CORSOrigins,
		AccessLog:    cfg.AppEnv == "development",
	})
	router.Register(app, cfg, router.Dependencies{
		EdpHandler:    edpHandler,
		Gate:          gate,
		JWTMiddleware: middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddress()).Str("ai_provider", cfg.AIProvider).Msg("starting server")
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Error().Err(err).Msg("server stopped listening")
			stop()
		}
	}()

	<-ctx.Done()
	waitForShutdown(app, logger, cfg.Grading.RetryDeadline)
}

func newGenerator(ctx context.Context, cfg config.Config, logger zerolog.Logger) (ai.Generator, func() error, error) {
	switch cfg.AIProvider {
	case config.ProviderOpenAI:
		gen, err := ai.NewOpenAIGenerator(ai.OpenAIConfig{
			APIKey: cfg.OpenAIAPIKey,
			Model:  cfg.AIModel,
			Logger: logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return gen, func() error { return nil }, nil
	case config.ProviderGemini:
		gen, err := ai.NewGeminiGenerator(ctx, ai.GeminiConfig{
			APIKey:     cfg.GeminiAPIKey,
			Model:      cfg.AIModel,
			JSONOutput: true,
			Logger:     logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return gen, gen.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported ai provider %q", cfg.AIProvider)
	}
}

// waitForShutdown lets in-flight grading requests finish before closing.
func waitForShutdown(app *fiber.App, logger zerolog.Logger, grace time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), grace+5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
