package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/compose-network/msgstream/internal/network"
	"github.com/compose-network/msgstream/relay-app/config"
	apisrv "github.com/compose-network/msgstream/server/api"
	apimw "github.com/compose-network/msgstream/server/api/middleware"
	"github.com/compose-network/msgstream/x/stream"
	"github.com/compose-network/msgstream/x/transport"
	"github.com/compose-network/msgstream/x/transport/tcp"
)

// App represents the relay application
type App struct {
	cfg *config.Config
	log zerolog.Logger

	metrics       *network.Metrics
	hub           *Hub
	streamServer  *tcp.Server
	apiServer     *apisrv.Server
	metricsServer *http.Server

	shutdownFns []func() error
	cancel      context.CancelFunc
}

// NewApp creates a new application instance
func NewApp(cfg *config.Config, log zerolog.Logger) (*App, error) {
	app := &App{
		cfg:         cfg,
		log:         log.With().Str("component", "app").Logger(),
		shutdownFns: make([]func() error, 0),
	}

	if err := app.initialize(log); err != nil {
		return nil, fmt.Errorf("failed to initialize app: %w", err)
	}

	return app, nil
}

func (a *App) initialize(log zerolog.Logger) error {
	a.metrics = network.NewMetrics()
	a.hub = NewHub(log, a.metrics)

	scfg := stream.Config{
		MaxPendingMessages:  a.cfg.Stream.MaxPendingMessages,
		MaxOutboundBuffered: a.cfg.Stream.MaxOutboundBuffered,
		Logger:              log,
		Stats:               network.NewStreamStats(a.metrics),
	}

	tcfg := transport.Config{
		ListenAddr:     a.cfg.Server.ListenAddr,
		MaxFrameSize:   a.cfg.Server.MaxFrameSize,
		MaxConnections: a.cfg.Server.MaxConnections,
		OutboundQueue:  a.cfg.Server.OutboundQueue,
		InitialCredit:  a.cfg.Server.InitialCredit,
		ReadTimeout:    a.cfg.Server.ReadTimeout,
		WriteTimeout:   a.cfg.Server.WriteTimeout,
	}

	a.streamServer = tcp.NewServer(tcfg, scfg, a.hub, nil, nil, log)

	a.initializeAPIServer(log)
	a.initializeMetricsServer()
	return nil
}

func (a *App) initializeAPIServer(log zerolog.Logger) {
	apiCfg := apisrv.Config{
		ListenAddr:        a.cfg.API.ListenAddr,
		ReadHeaderTimeout: a.cfg.API.ReadHeaderTimeout,
		ReadTimeout:       a.cfg.API.ReadTimeout,
		WriteTimeout:      a.cfg.API.WriteTimeout,
		IdleTimeout:       a.cfg.API.IdleTimeout,
		MaxHeaderBytes:    a.cfg.API.MaxHeaderBytes,
	}

	s := apisrv.NewServer(apiCfg, log)
	s.Use(apimw.Recover(log))
	s.Use(apimw.RequestID())
	s.Use(apimw.Logger(log))

	s.RegisterRoutes(a.streamServer, Version)
	s.Router.HandleFunc("/v1/ready", a.handleReady).Methods(http.MethodGet)

	a.apiServer = s
}

func (a *App) initializeMetricsServer() {
	if !a.cfg.Metrics.Enabled {
		return
	}

	mux := http.NewServeMux()
	mux.Handle(a.cfg.Metrics.Path, promhttp.Handler())

	a.metricsServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Metrics.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Run starts the application and blocks until shutdown.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		return a.streamServer.Start(gctx)
	})

	g.Go(func() error {
		return a.apiServer.Start(gctx)
	})

	if a.metricsServer != nil {
		g.Go(func() error {
			a.log.Info().Str("addr", a.metricsServer.Addr).Msg("Metrics server starting")
			err := a.metricsServer.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			return a.metricsServer.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		a.statsReporter(gctx)
		return nil
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	g.Go(func() error {
		select {
		case <-gctx.Done():
		case sig := <-sigCh:
			a.log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
			cancel()
		}
		return nil
	})

	a.log.Info().Msg("Relay started successfully")

	err := g.Wait()
	return errors.Join(err, a.shutdown())
}

// shutdown runs the registered shutdown functions after the servers stop.
func (a *App) shutdown() error {
	a.log.Info().Msg("Initiating graceful shutdown")

	var errs []error
	for _, fn := range a.shutdownFns {
		if err := fn(); err != nil {
			a.log.Error().Err(err).Msg("Shutdown function error")
			errs = append(errs, err)
		}
	}

	a.log.Info().Msg("Graceful shutdown complete")
	return errors.Join(errs...)
}

func (a *App) handleReady(w http.ResponseWriter, r *http.Request) {
	streams := a.hub.Size()

	status := "ready"
	code := http.StatusOK
	if streams == 0 {
		status = "no_streams"
		code = http.StatusServiceUnavailable
	}

	apisrv.WriteJSON(w, code, map[string]any{
		"status":  status,
		"streams": streams,
	})
}

// statsReporter periodically logs stream statistics.
func (a *App) statsReporter(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snaps := a.streamServer.Snapshots()

			ready := 0
			var pending, credit int64
			for _, snap := range snaps {
				if snap.Ready {
					ready++
				}
				pending += int64(snap.Pending)
				credit += snap.Credit
			}

			a.log.Info().
				Int("streams", len(snaps)).
				Int("ready", ready).
				Int64("pending_messages", pending).
				Int64("outstanding_credit", credit).
				Msg("Relay statistics")
		}
	}
}
