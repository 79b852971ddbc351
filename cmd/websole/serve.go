package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/zetxtech/websole/api"
	"github.com/zetxtech/websole/internal/auth"
	"github.com/zetxtech/websole/internal/config"
	"github.com/zetxtech/websole/internal/db"
	"github.com/zetxtech/websole/internal/logger"
	"github.com/zetxtech/websole/internal/metrics"
	"github.com/zetxtech/websole/internal/repository"
	"github.com/zetxtech/websole/internal/session"
	"github.com/zetxtech/websole/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func policyFromConfig(cfg *config.Config) session.Policy {
	return session.Policy{
		EagerStart:     cfg.Start,
		AutoRestart:    cfg.AutoRestart,
		AllowRestart:   cfg.AllowRestart,
		ClearOnRestart: cfg.ClearOnRestart,
		RestartDelay:   cfg.RestartDelay,
		StartTimeout:   cfg.StartTimeout,
		TerminateGrace: cfg.TerminateGrace,
	}
}

// serve runs the console server until ctx ends or SIGINT/SIGTERM arrives.
func serve(ctx context.Context, cfg *config.Config) error {
	if err := logger.Setup(cfg.EffectiveLogLevel(), cfg.LogConsole); err != nil {
		return err
	}
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var runs *repository.RunRepository
	if cfg.DB != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.DB), 0o755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
		database, err := db.InitDB(cfg.DB)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer db.CloseDB()
		runs = repository.NewRunRepository(database)
	}

	spawner, err := session.PTYSpawner(cfg.Command, nil, cfg.Dir)
	if err != nil {
		return err
	}
	hubCfg := session.Config{
		Spawner:         spawner,
		Command:         strings.Join(cfg.Command, " "),
		Policy:          policyFromConfig(cfg),
		ScrollbackBytes: cfg.Scrollback,
		Metrics:         metrics.New(reg),
	}
	deps := api.Deps{
		Gate:     auth.NewGate(cfg.Pass.Value()),
		Gatherer: reg,
		WS:       ws.Options{QueueDepth: cfg.ClientQueueDepth},
	}
	if runs != nil {
		hubCfg.Runs = runs
		deps.Runs = runs
	}

	hub, err := session.New(hubCfg)
	if err != nil {
		return err
	}
	deps.Hub = hub
	if err := hub.Start(ctx); err != nil {
		log.Warn().Err(err).Msg("program did not start, clients will retry")
	}

	if !deps.Gate.Enabled() {
		log.Warn().Msg("no password set, anyone who can reach the server controls the program")
	}
	if host := cfg.Host; (host == "0.0.0.0" || host == "" || host == "::") && !cfg.Isolated {
		log.Warn().Str("host", host).Msg("listening on all interfaces, the console is reachable from the network")
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           api.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		hub.Close(context.Background())
		return fmt.Errorf("failed to listen on %s: %w", srv.Addr, err)
	}

	log.Info().
		Str("addr", ln.Addr().String()).
		Strs("command", cfg.Command).
		Str("version", version).
		Msg("websole started")

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down server")
	case err := <-errCh:
		hub.Close(context.Background())
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := hub.Close(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("failed to stop program cleanly")
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("failed to shut down server cleanly")
	}
	return nil
}
