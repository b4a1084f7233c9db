package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mmynk/trustsplit/internal/auth"
	"github.com/mmynk/trustsplit/internal/chain"
	"github.com/mmynk/trustsplit/internal/config"
	"github.com/mmynk/trustsplit/internal/intent"
	"github.com/mmynk/trustsplit/internal/metrics"
	"github.com/mmynk/trustsplit/internal/middleware"
	"github.com/mmynk/trustsplit/internal/projection"
	"github.com/mmynk/trustsplit/internal/service"
	"github.com/mmynk/trustsplit/internal/session"
	"github.com/mmynk/trustsplit/internal/storage/sqlite"
	"github.com/mmynk/trustsplit/pkg/logging"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		logging.Setup(slog.LevelInfo)
		return fmt.Errorf("load config: %w", err)
	}
	logging.Setup(cfg.Level())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize SQLite storage
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initialize storage: %w", err)
	}
	defer store.Close()
	slog.Info("Storage initialized", "database", cfg.DBPath)

	backend, err := chain.Dial(ctx, chain.BackendConfig{
		RPCURL:        cfg.RPCURL,
		KeystoreDir:   cfg.KeystoreDir,
		Account:       cfg.Account,
		Passphrase:    cfg.Passphrase,
		WatchInterval: cfg.WatchInterval,
	})
	if err != nil {
		return fmt.Errorf("connect to node: %w", err)
	}
	defer backend.Close()

	factory, err := cfg.Factory()
	if err != nil {
		return err
	}
	registry, err := backend.Registry(factory)
	if err != nil {
		return fmt.Errorf("bind factory contract: %w", err)
	}
	slog.Info("Node connected", "rpc_url", cfg.RPCURL, "factory", factory.Hex(), "chain_id", cfg.ChainID)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	projector := projection.NewProjector(registry, backend, projection.Options{
		Concurrency:   cfg.LedgerConcurrency,
		LedgerLimit:   cfg.LedgerLimit,
		ReadRetries:   cfg.ReadRetries,
		RetryInterval: cfg.ReadRetryInterval,
		Metrics:       m,
	})
	sessions := session.NewManager(backend, store, projector, cfg.ChainID, m)
	go sessions.Watch(ctx)

	intents := intent.NewService(projector, intent.Options{
		SettleDelay:    cfg.SettleDelay,
		SettleAttempts: cfg.SettleAttempts,
		Metrics:        m,
	})
	tokens := auth.NewJWTManager(cfg.JWTSecret, cfg.SessionTTL)

	mux := http.NewServeMux()

	// Register Connect services
	path, handler := service.NewDashboardServiceHandler(
		service.NewDashboardService(sessions, projector, intents, tokens),
		connect.WithInterceptors(
			middleware.RequireSession(tokens, service.PublicProcedures...),
			middleware.LoggingInterceptor(),
		),
	)
	mux.Handle(path, handler)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// Add logging and CORS middleware
	loggedHandler := loggingMiddleware(corsMiddleware(mux))

	// Wrap with h2c for HTTP/2 without TLS (required for Connect)
	h2cHandler := h2c.NewHandler(loggedHandler, &http2.Server{})

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           h2cHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Connect server starting", "address", addr, "url", fmt.Sprintf("http://localhost%s", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// loggingMiddleware logs all incoming requests
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		slog.Debug("Request received",
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
			"user_agent", r.UserAgent(),
		)

		next.ServeHTTP(w, r)

		slog.Debug("Request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// corsMiddleware adds CORS headers for browser access
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, Connect-Protocol-Version, Connect-Timeout-Ms")
		w.Header().Set("Access-Control-Expose-Headers", "Connect-Protocol-Version, Connect-Timeout-Ms, Trustsplit-Error-Code")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
