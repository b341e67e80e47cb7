// Package server ties the scheduler, queue workers, event subscriber, and
// HTTP API into one lifecycle.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vmunix/mvarr/internal/events"
	"github.com/vmunix/mvarr/internal/queue"
	"github.com/vmunix/mvarr/internal/scheduler"
)

// Config for the runner.
type Config struct {
	Addr string
}

// Runner manages the daemon's long-lived components.
type Runner struct {
	sched   *scheduler.Scheduler
	manager *queue.Manager
	bus     *events.Bus
	handler http.Handler
	config  Config
	logger  *slog.Logger
}

// NewRunner creates a new runner.
func NewRunner(sched *scheduler.Scheduler, manager *queue.Manager, bus *events.Bus,
	handler http.Handler, cfg Config, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		sched:   sched,
		manager: manager,
		bus:     bus,
		handler: handler,
		config:  cfg,
		logger:  logger,
	}
}

// Run starts all components and blocks until the context is canceled or a
// component fails. Shutdown order: scheduler first (no new runs), then the
// worker pool drain, then the HTTP server.
func (r *Runner) Run(ctx context.Context) error {
	r.manager.Start(ctx)
	r.sched.Start()

	g, ctx := errgroup.WithContext(ctx)

	// Surface bus events in the daemon log.
	eventCh := r.bus.SubscribeAll(64)
	g.Go(func() error {
		log := r.logger.With("component", "events")
		for {
			select {
			case <-ctx.Done():
				return nil
			case e, ok := <-eventCh:
				if !ok {
					return nil
				}
				log.Debug("event",
					"type", e.EventType(),
					"entity_type", e.EntityType(),
					"entity_id", e.EntityID())
			}
		}
	})

	srv := &http.Server{Addr: r.config.Addr, Handler: r.handler}
	g.Go(func() error {
		ln, err := net.Listen("tcp", r.config.Addr)
		if err != nil {
			return err
		}
		r.logger.Info("api listening", "addr", r.config.Addr)
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		r.sched.Stop()
		r.manager.Stop()
		_ = r.bus.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
