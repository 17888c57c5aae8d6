package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	domrepo "MacroPull/internal/domain/repository"
	"MacroPull/internal/handler/api"
	icache "MacroPull/internal/service/cache"
	"MacroPull/internal/usecase"
	pkgcache "MacroPull/pkg/cache"
	"MacroPull/pkg/config"
	xhttp "MacroPull/pkg/http"
	applogger "MacroPull/pkg/logger"
)

type httpServer interface {
	Start() error
	Stop(ctx context.Context) error
}

type closer struct {
	name string
	fn   func() error
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg       *config.Config
	log       *applogger.Logger
	server    httpServer
	snapshots domrepo.SnapshotProvider
	closers   []closer
	warmDone  chan struct{}
}

// New creates a new App. shared may be nil when the shared cache tier is
// disabled.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	server *xhttp.Server,
	snapshots *icache.SnapshotCache,
	stream *api.SnapshotStreamHandler,
	aggregator *usecase.SnapshotAggregator,
	publisher domrepo.Publisher,
	shared pkgcache.Service,
) *App {
	a := &App{
		cfg:       cfg,
		log:       log,
		server:    server,
		snapshots: snapshots,
	}

	// Order matters: streams end before in-flight publishes drain, the log
	// collector flushes through the producer before it is closed.
	a.closers = append(a.closers,
		closer{"stream", func() error { stream.Close(); return nil }},
		closer{"aggregator", func() error { aggregator.Close(); return nil }},
		closer{"log collector", func() error { log.RemoveCollector(); return nil }},
		closer{"publisher", publisher.Close},
	)
	if shared != nil {
		a.closers = append(a.closers, closer{"shared cache", shared.Close})
	}
	return a
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.server.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}
	a.startWarm(ctx)

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	return a.Shutdown(context.Background())
}

func (a *App) startWarm(ctx context.Context) {
	a.warmDone = make(chan struct{})
	go func() {
		defer close(a.warmDone)
		a.warm(ctx)
	}()
}

// warm fills the cache so the first dashboard request does not pay for a
// full refresh cycle.
func (a *App) warm(ctx context.Context) {
	start := time.Now()
	snap := a.snapshots.Get(ctx)
	a.log.Info("snapshot cache warmed",
		applogger.String("provenance", string(snap.Provenance)),
		applogger.Duration("took", time.Since(start)))
}

// Shutdown stops the HTTP server and releases everything else in order.
// Errors are logged; the first one is returned.
func (a *App) Shutdown(ctx context.Context) error {
	a.log.Info("shutting down...")

	var first error
	if err := a.server.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
		first = err
	}

	// A warm-up still refreshing would publish into a closed aggregator.
	if a.warmDone != nil {
		select {
		case <-a.warmDone:
		case <-ctx.Done():
			a.log.Warn("cache warm-up still running at shutdown")
		}
	}

	for _, c := range a.closers {
		if err := c.fn(); err != nil {
			a.log.Warn("close error", applogger.String("component", c.name), applogger.Error(err))
			if first == nil {
				first = err
			}
		}
	}

	a.log.Info("shutdown complete")
	return first
}
