// Package searchservice runs the catalog search HTTP service.
package searchservice

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/mercasmart/catalog-search/internal/api"
	"github.com/mercasmart/catalog-search/internal/catalog"
	"github.com/mercasmart/catalog-search/internal/config"
	"github.com/mercasmart/catalog-search/internal/embeddings"
	"github.com/mercasmart/catalog-search/internal/factory"
	"github.com/mercasmart/catalog-search/internal/health"
	"github.com/mercasmart/catalog-search/internal/logger"
	"github.com/mercasmart/catalog-search/internal/retrieval"
)

// Run starts the search service HTTP server and blocks until shutdown or error.
func Run() error {
	log := logger.New("search-service")

	cfg, err := config.New()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return err
	}
	log = logger.WithLevel(log, cfg.LogLevel)

	log.Info().
		Str("environment", string(cfg.Environment)).
		Str("store_driver", cfg.StoreDriver).
		Int("http_port", cfg.HTTPPort).
		Msg("Search service starting")

	// Create cancellable root context bound to SIGINT/SIGTERM
	ctx, stop := newServerContext()
	defer stop()

	st, closeStore, reg, err := initDependencies(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Warn().Err(err).Msg("store close failed")
		}
	}()

	svc, err := factory.NewRetrievalService(cfg, st, reg, log)
	if err != nil {
		log.Error().Stack().Err(err).Msg("Retrieval service unavailable")
		return err
	}

	svcHealth := startHealthCheckers(ctx, cfg, log, st, reg)
	router := buildRouter(svc, svcHealth, log)

	// Block startup until dependencies report healthy; fail fast otherwise
	if err := waitUntilHealthy(ctx, cfg, svcHealth); err != nil {
		log.Error().Stack().Err(err).Strs("unhealthy", svcHealth.Unhealthy()).Msg("startup health check failed")
		return err
	}

	server := newHTTPServer(ctx, cfg, router)
	errCh := serveHTTP(server, log, cfg)

	// Graceful shutdown on context cancel or server error
	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down server")
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctxShutdown); err != nil {
			log.Error().Stack().Err(err).Msg("Server forced to shutdown")
			return err
		}
		log.Info().Msg("Server exited")
		return nil
	case err := <-errCh:
		log.Error().Stack().Err(err).Msg("HTTP server failed")
		return err
	}
}

// initDependencies constructs the store and the embedding registry, failing fast on either.
func initDependencies(ctx context.Context, cfg *config.Config, log zerolog.Logger) (factory.Store, func() error, *embeddings.Registry, error) {
	st, closeStore, err := factory.NewStore(ctx, cfg, log)
	if err != nil {
		log.Error().Stack().Err(err).Msg("Store adapter unavailable")
		return nil, nil, nil, err
	}
	reg, err := factory.NewEmbeddings(cfg, log)
	if err != nil {
		_ = closeStore()
		log.Error().Stack().Err(err).Msg("Embedding providers unavailable")
		return nil, nil, nil, err
	}
	return st, closeStore, reg, nil
}

// buildRouter wires HTTP routes to handlers.
func buildRouter(svc *retrieval.Service, svcHealth *health.ServiceHealthChecker, log zerolog.Logger) *mux.Router {
	return api.NewRouter(api.NewSearchHandler(svc, log), api.NewHealthHandler(svcHealth), log)
}

// startHealthCheckers starts the store and per-space embedder checkers plus the aggregator.
func startHealthCheckers(ctx context.Context, cfg *config.Config, log zerolog.Logger, st catalog.Store, reg *embeddings.Registry) *health.ServiceHealthChecker {
	probeTimeout := time.Duration(cfg.HealthProbeTimeoutSeconds) * time.Second
	interval := time.Duration(cfg.HealthIntervalSeconds) * time.Second

	storeChecker := catalog.NewStoreHealthChecker(st, log, probeTimeout)
	go storeChecker.Start(ctx, interval)
	checkers := []health.HealthChecker{storeChecker}

	for _, sp := range reg.Spaces() {
		p, err := reg.For(sp)
		if err != nil {
			continue
		}
		c := embeddings.NewProviderHealthChecker(string(sp), p, log, probeTimeout)
		go c.Start(ctx, interval)
		checkers = append(checkers, c)
	}

	svcHealth := health.NewServiceHealthChecker(log, checkers...)
	go svcHealth.Start(ctx, interval)
	return svcHealth
}

func newHTTPServer(ctx context.Context, cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.GetHTTPAddr(),
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		// generation can take most of ChatTimeout
		WriteTimeout: cfg.ChatTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
}

func serveHTTP(server *http.Server, log zerolog.Logger, cfg *config.Config) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh
}

// calculateStartupHealthTimeout returns the startup health timeout in seconds,
// calculated as interval*2 with a minimum of 60 seconds.
func calculateStartupHealthTimeout(healthIntervalSeconds int) int {
	timeout := healthIntervalSeconds * 2
	if timeout < 60 {
		return 60
	}
	return timeout
}

// waitUntilHealthy blocks until service health is healthy or the startup window expires.
func waitUntilHealthy(ctx context.Context, cfg *config.Config, svcHealth *health.ServiceHealthChecker) error {
	timeoutSeconds := calculateStartupHealthTimeout(cfg.HealthIntervalSeconds)
	deadline := time.Now().Add(time.Duration(timeoutSeconds) * time.Second)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		if svcHealth.IsHealthy() {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("startup aborted: dependencies not healthy within %d seconds", timeoutSeconds)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// newServerContext returns a cancellable context that is cancelled on SIGINT/SIGTERM.
func newServerContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
