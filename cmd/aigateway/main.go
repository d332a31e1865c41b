package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Toowiredd/excalidraw-Ty/internal/backend"
	"github.com/Toowiredd/excalidraw-Ty/internal/config"
	"github.com/Toowiredd/excalidraw-Ty/internal/inference"
	"github.com/Toowiredd/excalidraw-Ty/internal/logger"
	"github.com/Toowiredd/excalidraw-Ty/internal/middleware"
	"github.com/Toowiredd/excalidraw-Ty/internal/orchestrator"
	"github.com/Toowiredd/excalidraw-Ty/internal/registry"
	"github.com/Toowiredd/excalidraw-Ty/internal/server"
	"github.com/Toowiredd/excalidraw-Ty/internal/tracing"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	envFile := flag.String("env-file", ".env", "dotenv file loaded before AIGW_* overrides")
	port := flag.Int("port", 0, "override listen port")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "env file: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	if *port > 0 {
		cfg.Port = *port
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("aigateway stopped")
	}
}

func run(cfg config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn().Err(err).Msg("tracing shutdown")
		}
	}()

	client := backend.New(cfg.BackendURL,
		backend.WithTimeout(cfg.BackendTimeout),
		backend.WithAPIKey(cfg.BackendAPIKey),
		backend.WithLogger(log.With().Str("component", "backend").Logger()),
	)
	flows := orchestrator.New(client,
		orchestrator.WithPlusURL(cfg.PlusURL),
		orchestrator.WithLogger(log.With().Str("component", "orchestrator").Logger()),
	)

	models := registry.New(
		inference.NewSourceLoader(cfg.ModelLoadTimeout),
		inference.NewService(),
		registry.WithLoadTimeout(cfg.ModelLoadTimeout),
		registry.WithLogger(log.With().Str("component", "registry").Logger()),
	)
	defer models.Close()

	if err := preload(ctx, models, cfg.Preload, log); err != nil {
		return err
	}

	if cfg.BackendURL == "" {
		log.Warn().Msg("backend_url not set, AI flows will fail")
	} else {
		log.Info().Str("url", cfg.BackendURL).Msg("AI backend configured")
	}
	if cfg.APIKey != "" {
		log.Info().Msg("auth: API key required (X-API-Key header)")
	} else {
		log.Info().Msg("auth: disabled (no api_key configured)")
	}

	handler := server.SetupMux(server.Deps{
		Models:            models,
		Flows:             flows,
		BackendConfigured: cfg.BackendURL != "",
		Middleware: middleware.Options{
			Logger:       log,
			RateLimiter:  middleware.NewRateLimiter(cfg.RateLimit, cfg.RateWindow),
			APIKey:       cfg.APIKey,
			MaxBodyBytes: cfg.MaxBodyBytes,
			Timeout:      requestTimeout(cfg),
		},
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("aigateway listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("server stopped")
	return nil
}

// preload loads the configured models concurrently. Any failure aborts
// startup.
func preload(ctx context.Context, models *registry.Registry, sources []config.ModelSource, log zerolog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, m := range sources {
		g.Go(func() error {
			e, err := models.LoadModel(gctx, m.Name, m.Source)
			if err != nil {
				return fmt.Errorf("preload %s: %w", m.Name, err)
			}
			log.Info().Str("model", e.Name).Str("format", e.Model.Format()).Msg("model preloaded")
			return nil
		})
	}
	return g.Wait()
}

// requestTimeout bounds a whole request. Model loads may outlast a backend
// call, so the longer of the two sets the limit.
func requestTimeout(cfg config.Config) time.Duration {
	d := cfg.BackendTimeout
	if cfg.ModelLoadTimeout > d {
		d = cfg.ModelLoadTimeout
	}
	return d + 5*time.Second
}
