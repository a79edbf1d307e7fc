package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/husseinmohab/radical-faas/internal/adapters/cache"
	"github.com/husseinmohab/radical-faas/internal/adapters/docker"
	"github.com/husseinmohab/radical-faas/internal/adapters/kubernetes"
	"github.com/husseinmohab/radical-faas/internal/adapters/store"
	"github.com/husseinmohab/radical-faas/internal/config"
	"github.com/husseinmohab/radical-faas/internal/core/functions"
	api "github.com/husseinmohab/radical-faas/internal/delivery/http"

	_ "github.com/husseinmohab/radical-faas/docs"

	"github.com/rs/zerolog"
)

// @title           RADICAL-FaaS API
// @version         1.0
// @description     Deploy functions from source and invoke them as one-shot cluster workloads.
// @host            localhost:8000
// @BasePath        /
func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().
		Str("svc", "radical-faas").Logger()

	cfg := config.MustLoad()
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		log = log.Level(lvl)
	} else {
		log.Warn().Str("log_level", cfg.LogLevel).Msg("unknown log level, using info")
		log = log.Level(zerolog.InfoLevel)
	}
	log.Info().
		Str("deployment_env", string(cfg.DeploymentEnv)).
		Str("registry", cfg.ContainerRegistry).
		Msg("bootstrapping service")

	db, err := store.New(cfg.DatabaseDSN, log)
	if err != nil {
		log.Fatal().Err(err).Msg("registry connect")
	}
	defer db.Close()

	var registry functions.Registry = db
	if cfg.RedisAddr != "" {
		cached := cache.New(db, cfg, log)
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := cached.Ping(pingCtx); err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable, cache will fall through")
		}
		cancel()
		defer cached.Close()
		registry = cached
	}

	// the docker client builds images for both backends
	dcli, err := docker.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("docker client init")
	}
	defer dcli.Close()

	var orchestrator functions.Orchestrator
	switch cfg.DeploymentEnv {
	case config.EnvDocker:
		// collectors from a previous run died with it
		if err := dcli.Reclaim(context.Background()); err != nil {
			log.Error().Err(err).Msg("error during workload container reclaim")
		}
		orchestrator = dcli
	default:
		kcli, err := kubernetes.New(cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("kubernetes client init")
		}
		orchestrator = kcli
	}

	mgr := functions.NewManager(registry, dcli, orchestrator, cfg, log)

	handler := api.NewHandler(mgr, log)
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(
		context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().Str("listen", cfg.ListenAddr).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	log.Info().Msg("shutting down server...")
	// in-flight invocations may be awaiting workloads
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.InvokeTimeout+10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown")
	}

	log.Info().Msg("shutdown complete")
}
