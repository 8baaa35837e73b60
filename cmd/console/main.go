// Command console serves the run console over HTTP and websocket.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ShawnNotFound/20251115GreatAgent/internal/adapter/controller"
	"github.com/ShawnNotFound/20251115GreatAgent/internal/adapter/eventstream"
	"github.com/ShawnNotFound/20251115GreatAgent/internal/config"
	"github.com/ShawnNotFound/20251115GreatAgent/internal/hub"
	"github.com/ShawnNotFound/20251115GreatAgent/internal/logger"
	"github.com/ShawnNotFound/20251115GreatAgent/internal/policy"
	"github.com/ShawnNotFound/20251115GreatAgent/internal/repository"
	"github.com/ShawnNotFound/20251115GreatAgent/internal/service"
	internalhttp "github.com/ShawnNotFound/20251115GreatAgent/internal/transport/http"
	"github.com/ShawnNotFound/20251115GreatAgent/internal/transport/rpc"
	"github.com/ShawnNotFound/20251115GreatAgent/internal/transport/ws"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting run console",
		zap.Int("http_port", cfg.HTTPPort),
		zap.String("controller_url", cfg.ControllerURL),
		zap.String("environment", cfg.EnvironmentName),
		zap.String("database", cfg.DatabaseURL),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize store
	var store repository.Store
	if cfg.DatabaseURL != "" {
		db, err := repository.NewSQLiteStore(cfg.DatabaseURL)
		if err != nil {
			log.Fatal("failed to initialize store", zap.Error(err))
		}
		defer db.Close()
		store = db
	}

	// Initialize policy engine
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		log.Fatal("failed to initialize policy engine", zap.Error(err))
	}

	// Initialize service
	svc := service.New(
		controller.NewClient(cfg.ControllerURL, cfg.ControlTimeout),
		eventstream.NewClient(cfg.ControllerURL),
		store,
		policyEngine,
		log,
		service.Options{
			LogCapacity:  cfg.EventLogCapacity,
			NoticeTTL:    cfg.NoticeTTL,
			TraceLimit:   cfg.TraceLimit,
			DefaultQuery: cfg.DefaultQuery,
		},
	)
	go func() {
		if err := svc.Run(ctx); err != nil && err != context.Canceled {
			log.Error("console service stopped", zap.Error(err))
		}
	}()

	initCtx, initCancel := context.WithTimeout(ctx, cfg.ControlTimeout)
	svc.Init(initCtx)
	initCancel()

	// Initialize hub and websocket feed
	connectionHub := hub.NewHub(log)
	go connectionHub.Run(ctx)

	wsServer := ws.NewServer(cfg, connectionHub, svc, log)
	go wsServer.Broadcast(ctx)

	server := internalhttp.NewServer(svc, wsServer, log)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatal("failed to start HTTP server", zap.Error(err))
		}
	}()

	// Start RPC server
	var rpcServer *rpc.Server
	if cfg.RPCPort > 0 {
		rpcServer, err = rpc.NewServer(svc, cfg.ControlTimeout, log)
		if err != nil {
			log.Fatal("failed to initialize RPC server", zap.Error(err))
		}
		go func() {
			addr := fmt.Sprintf(":%d", cfg.RPCPort)
			if err := rpcServer.Start(addr); err != nil {
				log.Fatal("failed to start RPC server", zap.Error(err))
			}
		}()
	}

	log.Info("run console started", zap.Int("port", cfg.HTTPPort), zap.Int("rpc_port", cfg.RPCPort))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down run console")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("failed to shutdown HTTP server gracefully", zap.Error(err))
	}
	if rpcServer != nil {
		if err := rpcServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("failed to shutdown RPC server gracefully", zap.Error(err))
		}
	}
	cancel()
	select {
	case <-svc.Done():
	case <-shutdownCtx.Done():
	}

	log.Info("run console stopped")
}
