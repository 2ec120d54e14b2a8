// Command vita is the voice-interactive translation assistant server: it
// bridges browser clients to a real-time speech-translation model and serves
// the transcript and operational endpoints.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Twaha07/voice-interactive-translation-assistant/internal/app"
	"github.com/Twaha07/voice-interactive-translation-assistant/internal/config"
	"github.com/Twaha07/voice-interactive-translation-assistant/internal/events"
	"github.com/Twaha07/voice-interactive-translation-assistant/internal/gateway"
	"github.com/Twaha07/voice-interactive-translation-assistant/internal/health"
	"github.com/Twaha07/voice-interactive-translation-assistant/internal/observe"
	"github.com/Twaha07/voice-interactive-translation-assistant/internal/transcript"
	"github.com/Twaha07/voice-interactive-translation-assistant/pkg/live"
	geminilive "github.com/Twaha07/voice-interactive-translation-assistant/pkg/live/gemini"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "vita: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "vita: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	slog.SetDefault(newLogger(cfg.Server.LogLevel))

	slog.Info("vita starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Metrics provider ──────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "vita",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise metrics provider", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("metrics shutdown error", "err", err)
		}
	}()

	// ── Live-provider registry ────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinDialers(reg)

	dialer, err := reg.CreateDialer(cfg.Live)
	if err != nil {
		slog.Error("failed to create live dialer", "provider", cfg.Live.Provider, "err", err)
		return 1
	}
	slog.Info("live provider ready", "provider", cfg.Live.Provider)

	// ── Transcript store (optional) ───────────────────────────────────────────
	var store *transcript.Store
	var checkers []health.Checker
	if cfg.Transcript.PostgresDSN != "" {
		store, err = transcript.Open(ctx, cfg.Transcript.PostgresDSN)
		if err != nil {
			slog.Error("failed to open transcript store", "err", err)
			return 1
		}
		defer store.Close()
		checkers = append(checkers, health.Checker{Name: "transcript-store", Check: store.Ping})
		slog.Info("transcript store connected")
	}

	// ── Event publisher (optional) ────────────────────────────────────────────
	publisher := events.New(events.Config{
		Brokers: cfg.Events.KafkaBrokers,
		Topic:   cfg.Events.KafkaTopic,
	})
	defer func() {
		if err := publisher.Close(); err != nil {
			slog.Warn("event publisher close error", "err", err)
		}
	}()

	// ── Session manager + gateway ─────────────────────────────────────────────
	manager := app.NewManager(app.ManagerConfig{
		Config:    cfg,
		Dialer:    dialer,
		Store:     store,
		Publisher: publisher,
	})

	mux := http.NewServeMux()
	gateway.New(gateway.ServerConfig{
		Manager: manager,
		Store:   store,
		Health:  health.New(checkers...),
	}).Register(mux)

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server ready — press Ctrl+C to shut down", "addr", cfg.Server.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
			return 1
		}
	case <-ctx.Done():
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")
	manager.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// registerBuiltinDialers wires the live-provider implementations that ship
// with vita into the registry.
func registerBuiltinDialers(reg *config.Registry) {
	reg.RegisterDialer("gemini-live", func(cfg config.LiveConfig) (live.Dialer, error) {
		var opts []geminilive.Option
		if cfg.Model != "" {
			opts = append(opts, geminilive.WithModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, geminilive.WithBaseURL(cfg.BaseURL))
		}
		return geminilive.New(cfg.APIKey, opts...), nil
	})
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
