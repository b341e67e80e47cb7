package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	v1 "github.com/vmunix/mvarr/internal/api/v1"
	"github.com/vmunix/mvarr/internal/config"
	"github.com/vmunix/mvarr/internal/discovery"
	"github.com/vmunix/mvarr/internal/events"
	"github.com/vmunix/mvarr/internal/fetch"
	"github.com/vmunix/mvarr/internal/library"
	"github.com/vmunix/mvarr/internal/migrations"
	"github.com/vmunix/mvarr/internal/queue"
	"github.com/vmunix/mvarr/internal/scheduler"
	"github.com/vmunix/mvarr/internal/server"
	"github.com/vmunix/mvarr/internal/source"
)

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 200 { // Only capture first WriteHeader call
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler, log *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		log.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func runServer(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Server.LogLevel),
	}))

	dbDir := filepath.Dir(cfg.Database.Path)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return fmt.Errorf("create db dir: %w", err)
	}
	if err := os.MkdirAll(cfg.Downloads.Root, 0755); err != nil {
		return fmt.Errorf("create downloads dir: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer func() { _ = db.Close() }()

	if _, err := db.Exec(migrations.InitialSQL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	// === Stores & events ===
	store := library.NewStore(db)
	eventLog := events.NewEventLog(db)
	bus := events.NewBus(eventLog, logger.With("component", "bus"))
	store.OnTransition(func(e library.TransitionEvent) {
		_ = bus.Publish(context.Background(), events.VideoTransition{
			BaseEvent: events.NewBaseEvent(events.EventVideoTransition, events.EntityVideo, e.VideoID),
			ArtistID:  e.ArtistID,
			From:      string(e.From),
			To:        string(e.To),
		})
	})

	// === Sources (optional - absent if not configured) ===
	var sources []source.Source
	if cfg.Sources.IMVDb != nil {
		var opts []source.IMVDbOption
		if cfg.Sources.IMVDb.URL != "" {
			opts = append(opts, source.WithIMVDbBaseURL(cfg.Sources.IMVDb.URL))
		}
		sources = append(sources, source.NewIMVDb(cfg.Sources.IMVDb.APIKey, opts...))
	}
	if cfg.Sources.YouTube != nil {
		var opts []source.YouTubeOption
		if cfg.Sources.YouTube.URL != "" {
			opts = append(opts, source.WithYouTubeBaseURL(cfg.Sources.YouTube.URL))
		}
		sources = append(sources, source.NewYouTube(cfg.Sources.YouTube.APIKey, opts...))
	}

	// === Services ===
	coordinator := discovery.NewCoordinator(store, sources, discovery.Config{
		DefaultInterval: cfg.Discovery.Interval.Duration,
		MaxNewPerArtist: cfg.Discovery.MaxNewPerArtist,
		SourceDelays:    cfg.SourceDelays(),
		DefaultDelay:    cfg.Discovery.SourceDelay.Duration,
		BreakAfter:      cfg.Discovery.BreakAfter,
		Priority:        cfg.Sources.Priority,
	}, bus, logger.With("component", "discovery"))

	fetcher := fetch.NewYTDLP(cfg.Downloads.Root, logger.With("component", "fetch"))
	manager := queue.NewManager(store, fetcher, queue.Config{
		Workers:     cfg.Downloads.Workers,
		MaxPerSweep: cfg.Downloads.MaxPerSweep,
		MaxRetries:  cfg.Downloads.MaxRetries,
	}, bus, logger.With("component", "queue"))

	provider := scheduler.NewStaticConfig(cfg.Schedule)
	sched := scheduler.New(coordinator, manager, provider, logger.With("component", "scheduler"))

	// === HTTP Setup ===
	mux := http.NewServeMux()
	api := v1.New(sched, eventLog)
	api.RegisterRoutes(mux)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Info("server starting",
		"addr", addr,
		"database", cfg.Database.Path,
		"downloads", cfg.Downloads.Root,
		"sources", len(sources),
		"workers", cfg.Downloads.Workers,
		"log_level", cfg.Server.LogLevel,
	)

	runner := server.NewRunner(sched, manager, bus, logRequests(mux, logger),
		server.Config{Addr: addr}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// SIGHUP re-reads the schedule; SIGINT/SIGTERM shut down.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		for sig := range sigCh {
			if sig == syscall.SIGHUP {
				logger.Info("received SIGHUP, reloading schedule")
				if reloaded, err := config.Load(configPath); err != nil {
					logger.Error("reload failed, keeping current schedule", "error", err)
				} else {
					provider.Set(reloaded.Schedule)
					sched.Reload()
				}
				continue
			}
			logger.Info("received signal, shutting down", "signal", sig.String())
			cancel()
			return
		}
	}()

	if err := runner.Run(ctx); err != nil {
		return fmt.Errorf("run: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
