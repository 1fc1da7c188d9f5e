package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/cyclebot/internal/domain"
	"github.com/alanyoungcy/cyclebot/internal/metrics"
	"github.com/alanyoungcy/cyclebot/internal/server"
	"github.com/alanyoungcy/cyclebot/internal/server/handler"
	"github.com/alanyoungcy/cyclebot/internal/server/ws"
)

const shutdownTimeout = 5 * time.Second

// ScanMode runs the detection loop without the HTTP API.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting scan mode")

	unlock, err := a.acquireEngineLock(ctx, deps)
	if err != nil {
		return fmt.Errorf("scan mode: %w", err)
	}
	defer unlock()

	rt, err := a.buildRuntime(ctx, deps)
	if err != nil {
		return fmt.Errorf("scan mode: %w", err)
	}
	return rt.engine.Run(ctx)
}

// ServerMode serves the API from the store and relays iterations published on
// the signal bus by a scanner running elsewhere.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)

	var relay map[string]string
	if deps.SignalBus != nil {
		relay = map[string]string{a.cfg.Redis.Channel: ws.ChannelIterations}
	}
	hub := ws.NewHub(deps.SignalBus, relay, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	a.startHTTPServer(ctx, g, deps, nil, hub)
	return g.Wait()
}

// FullMode runs the detection loop and the API in one process. The WebSocket
// hub receives results straight from the engine.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	unlock, err := a.acquireEngineLock(ctx, deps)
	if err != nil {
		return fmt.Errorf("full mode: %w", err)
	}
	defer unlock()

	g, ctx := errgroup.WithContext(ctx)

	hub := ws.NewHub(nil, nil, a.logger)
	rt, err := a.buildRuntime(ctx, deps, hub)
	if err != nil {
		return fmt.Errorf("full mode: %w", err)
	}

	g.Go(func() error {
		return hub.Run(ctx)
	})
	g.Go(func() error {
		return rt.engine.Run(ctx)
	})

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, rt, hub)
	}
	return g.Wait()
}

// acquireEngineLock keeps one scanning instance per Redis deployment. It is a
// no-op without Redis.
func (a *App) acquireEngineLock(ctx context.Context, deps *Dependencies) (func(), error) {
	if deps.LockManager == nil {
		return func() {}, nil
	}
	key := a.cfg.Redis.LockKey
	unlock, err := deps.LockManager.Acquire(ctx, key, a.cfg.Redis.LockTTL.Duration)
	if errors.Is(err, domain.ErrLockHeld) {
		return nil, fmt.Errorf("another engine holds lock %q: %w", key, err)
	}
	if err != nil {
		return nil, err
	}
	a.logger.InfoContext(ctx, "engine lock acquired", slog.String("key", key))
	return unlock, nil
}

// startHTTPServer registers the API and runs it until ctx is cancelled. rt is
// nil when no engine runs in this process.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, rt *runtime, hub *ws.Hub) {
	var (
		status    handler.EngineStatus
		live      handler.LatestSource
		metricsH  http.Handler
		exchanges []string
	)
	if rt != nil {
		status, live = rt.engine, rt.engine
		exchanges = rt.exchanges
		if rt.metrics != nil {
			metricsH = rt.metrics.Handler()
		}
	} else {
		for _, ex := range a.cfg.Exchanges {
			exchanges = append(exchanges, ex.Name)
		}
	}
	if metricsH == nil && a.cfg.Metrics.Enabled {
		metricsH = metrics.New(a.cfg.Metrics.Namespace).Handler()
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, server.Handlers{
		Health:     handler.NewHealthHandler(time.Now()),
		Status:     handler.NewStatusHandler(a.cfg.Mode, a.cfg.Engine.Strategy, exchanges, status),
		Iterations: handler.NewIterationHandler(live, deps.Store, a.logger),
		Metrics:    metricsH,
	}, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
