package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	httpapi "github.com/i474232898/saferoute/internal/api/http"
	"github.com/i474232898/saferoute/internal/artifact"
	"github.com/i474232898/saferoute/internal/config"
	"github.com/i474232898/saferoute/internal/schema"
	"github.com/i474232898/saferoute/internal/traffic"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(log)

	loadCtx, cancelLoad := context.WithTimeout(context.Background(), time.Minute)
	defer cancelLoad()

	// Artifacts are loaded once; the process does not serve without them.
	locs := artifact.Locations{
		Preprocessor: cfg.PreprocessorPath,
		Model:        cfg.ModelPath,
	}
	router := artifact.Router{Local: artifact.FileStore{}}
	if artifact.IsRemote(locs.Preprocessor) || artifact.IsRemote(locs.Model) {
		backoff := artifact.DefaultBackoff
		backoff.MaxRetries = cfg.ArtifactMaxRetries
		remote, err := artifact.NewS3Store(loadCtx, cfg.AWSRegion, backoff)
		if err != nil {
			log.Error("failed to create S3 artifact store", "error", err)
			os.Exit(1)
		}
		router.Remote = remote
	}

	arts, err := artifact.NewLoader(router, schema.Traffic, log).Load(loadCtx, locs)
	if err != nil {
		log.Error("failed to load artifacts", "error", err)
		os.Exit(1)
	}

	service := traffic.NewService(arts.Preprocessor, arts.Model, log)

	app := fiber.New(fiber.Config{
		AppName:               "saferoute",
		DisableStartupMessage: true,
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	app.Use(logger.New())
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSAllowOrigins,
	}))

	httpapi.RegisterRoutes(app, service, httpapi.Options{
		LegacyErrorStatus: cfg.LegacyErrorStatus,
		Logger:            log,
	})

	go func() {
		log.Info("service ready", "port", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error("fiber server stopped", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error("error during shutdown", "error", err)
	}
}
