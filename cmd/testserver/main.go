// Command testserver expõe rotas com limites conhecidos para exercitar o
// cliente limitado por grate.
//
// Configuração: arquivo YAML em RATEGRATE_CONFIG (opcional) e variáveis
// RATEGRATE_*; veja internal/config.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"rategrate/internal/config"
	"rategrate/internal/logging"
	"rategrate/middleware/ratelimit"
)

func main() {
	if err := run(); err != nil {
		slog.Error("testserver failed", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Getenv("RATEGRATE_CONFIG"))
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	h, err := newHandler(ctx, cfg.Server, log, prometheus.NewRegistry())
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("testserver listening", "addr", cfg.Server.ListenAddr, "key_header", cfg.Server.KeyHeader, "trust_xff", cfg.Server.TrustXForwardedFor)
	log.Info("global rate", "enabled", cfg.Server.RateEnabled, "rps", cfg.Server.RateRPS, "burst", cfg.Server.RateBurst)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// newHandler monta as rotas e, se habilitado, o limite global por cliente na
// frente delas. Os janitors dos stores param quando ctx é cancelado.
func newHandler(ctx context.Context, cfg config.ServerConfig, log *slog.Logger, reg *prometheus.Registry) (http.Handler, error) {
	keyFn := ratelimit.DefaultKeyFunc(cfg.KeyHeader, cfg.TrustXForwardedFor)

	simple := ratelimit.NewStore(cfg.RateRPS, cfg.RateBurst)
	windows := ratelimit.NewWindowStore()
	simple.StartJanitor(ctx)
	windows.StartJanitor(ctx)

	s, err := newServer(simple, windows, keyFn, log, reg)
	if err != nil {
		return nil, err
	}

	h := http.Handler(s.routes(reg))
	if cfg.RateEnabled {
		h = ratelimit.Middleware(ratelimit.Options{
			Store:               simple,
			Logger:              log,
			KeyFn:               keyFn,
			RejectStatus:        http.StatusTooManyRequests,
			AddRateLimitHeaders: true,
		})(h)
	}
	return h, nil
}
