// Command tsdash serves the time series dashboard.
//
// A series is loaded by uploading a CSV or Excel file, by generating an
// ARMA sample or by importing it from a metrics source. It is validated,
// fitted with exponential smoothing, AR and ARMA models, plotted, and can
// then be refitted interactively with any ARIMA(p, d, q) order.
//
// Usage:
//
//	tsdash --host localhost -p 8000 --no-browser
//
// Environment variables (TSDASH_ prefix, or the bare name as a fallback):
//
//	PORT           - Port to serve on (default: 8000)
//	HOST           - Host to bind to (default: localhost)
//	STORAGE        - Session storage: memory or redis (default: memory)
//	REDIS_ADDR     - Redis server address (default: localhost:6379)
//	SESSION_TTL    - How long a loaded series is kept (default: 1h)
//	LOG_LEVEL      - Logging level: debug, info, warn, error (default: info)
//	LOG_FORMAT     - Logging format: text, json (default: text)
//	TRACING        - Trace exporter: none, stdout (default: none)
//
// See config.Config for the full list.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pkg/browser"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/HatiCode/tsdash/cmd/tsdash/config"
	"github.com/HatiCode/tsdash/cmd/tsdash/logger"
	"github.com/HatiCode/tsdash/cmd/tsdash/metrics"
	"github.com/HatiCode/tsdash/cmd/tsdash/router"
	"github.com/HatiCode/tsdash/cmd/tsdash/store"
	"github.com/HatiCode/tsdash/cmd/tsdash/tracing"
	"github.com/HatiCode/tsdash/pkg/httpx"
	"github.com/HatiCode/tsdash/pkg/tls"
)

// version is set via ldflags at build time
var version = "dev"

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(2)
	}

	log := logger.New(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("tsdash failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	log.Info("starting tsdash",
		"version", version,
		"addr", cfg.Addr(),
		"storage", cfg.Storage,
		"tls", cfg.TLS.Enabled,
	)

	tp, err := tracing.New(cfg.Tracing, version)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Error("failed to flush traces", "error", err)
		}
	}()

	sessions, closeStore, err := store.New(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Error("failed to close store", "error", err)
		}
	}()

	app, err := NewApp(cfg, sessions, tp.Tracer(), log, metrics.New(prometheus.DefaultRegisterer))
	if err != nil {
		return err
	}

	handler := router.New(app, router.Options{
		MaxUploadBytes: cfg.MaxUploadBytes,
		Limiter:        httpx.NewLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		ImportEnabled:  cfg.ImportEnabled,
		Gatherer:       prometheus.DefaultGatherer,
	}, log)

	timeouts := httpx.DefaultTimeouts
	timeouts.Read = cfg.RequestTimeout
	timeouts.Write = cfg.RequestTimeout
	server := httpx.NewServer(cfg.Addr(), handler, timeouts, log)

	scheme := "http"
	if cfg.TLS.Enabled {
		tlsCfg, err := tls.NewServerTLSConfig(cfg.TLS)
		if err != nil {
			return fmt.Errorf("server tls: %w", err)
		}
		server.SetTLSConfig(tlsCfg)
		scheme = "https"
	}

	serverErr := make(chan error, 1)
	go func() {
		if cfg.TLS.Enabled {
			// certificates are already loaded into the TLS config
			serverErr <- server.StartTLS("", "")
			return
		}
		serverErr <- server.Start()
	}()

	if !cfg.NoBrowser {
		url := fmt.Sprintf("%s://%s/", scheme, browserHost(cfg))
		if err := browser.OpenURL(url); err != nil {
			log.Warn("could not open a browser tab", "url", url, "error", err)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig)
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	}

	log.Info("shutting down")
	if err := server.Stop(cfg.ShutdownTimeout); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	log.Info("shutdown complete")
	return nil
}

// browserHost maps wildcard bind addresses to a host a browser can reach.
func browserHost(cfg *config.Config) string {
	switch strings.TrimSpace(cfg.Host) {
	case "", "0.0.0.0", "::":
		c := *cfg
		c.Host = "localhost"
		return c.Addr()
	}
	return cfg.Addr()
}
