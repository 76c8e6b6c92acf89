package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Overland-East-Bay/rider-standings-api/internal/adapters/httpapi"
	"github.com/Overland-East-Bay/rider-standings-api/internal/adapters/jobs"
	postgres "github.com/Overland-East-Bay/rider-standings-api/internal/adapters/postgres"
	"github.com/Overland-East-Bay/rider-standings-api/internal/bootstrap"
	"github.com/Overland-East-Bay/rider-standings-api/internal/platform/auth/jwtverifier"
	"github.com/Overland-East-Bay/rider-standings-api/internal/platform/config"
	"github.com/Overland-East-Bay/rider-standings-api/internal/platform/logging"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "optional YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("api exited", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, closeLog, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	app, cleanup, err := bootstrap.Open(ctx, cfg, logger, reg)
	if err != nil {
		return err
	}
	defer cleanup()

	if app.Pool != nil {
		applied, err := postgres.Migrate(ctx, app.Pool, logger)
		if err != nil {
			return err
		}
		logger.Info("schema migrations applied", "count", len(applied))
	}

	// Auth:
	// - Production: HS256 bearer tokens (JWT_SECRET, JWT_ISSUER, JWT_AUDIENCE)
	// - Local dev: AUTH_MODE=dev trusts X-Debug-Subject / X-Debug-Admin
	var authMW func(http.Handler) http.Handler
	if strings.EqualFold(cfg.Auth.Mode, "dev") {
		logger.Warn("dev auth enabled; requests are trusted by header")
		authMW = httpapi.NewDevAuthMiddleware(cfg.Auth.DevSubject)
	} else {
		authMW = httpapi.NewAuthMiddleware(jwtverifier.New(cfg.Auth))
	}

	var runner *jobs.Service
	if cfg.Jobs.Enabled {
		if err := jobs.Migrate(ctx, app.Pool); err != nil {
			return err
		}
		runner, err = jobs.NewService(app.Pool, app.Standings, app.RiderMap, jobs.Config{
			ScoreRecomputeInterval: cfg.Jobs.ScoreRecomputeInterval,
			PlacementInterval:      cfg.Jobs.PlacementInterval,
		}, logger)
		if err != nil {
			return err
		}
		if err := runner.Start(ctx); err != nil {
			return err
		}
	}

	api := httpapi.NewServer(app.Members, app.Standings, app.RiderMap, logger)
	handler := httpapi.NewRouter(api, httpapi.RouterOptions{
		AuthMiddleware: authMW,
		Gatherer:       reg,
		Logger:         logger,
		MapRateLimit:   cfg.Map.RateLimit,
		MapRateBurst:   cfg.Map.RateBurst,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("api listening", "addr", srv.Addr, "storage", cfg.StorageBackend, "auth", cfg.Auth.Mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if runner != nil {
		if err := runner.Stop(shutdownCtx); err != nil {
			logger.Error("stop job runner", "error", err)
		}
	}
	return srv.Shutdown(shutdownCtx)
}
