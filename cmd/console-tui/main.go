// Command console-tui runs the run console in the terminal.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/ShawnNotFound/20251115GreatAgent/internal/adapter/controller"
	"github.com/ShawnNotFound/20251115GreatAgent/internal/adapter/eventstream"
	"github.com/ShawnNotFound/20251115GreatAgent/internal/config"
	"github.com/ShawnNotFound/20251115GreatAgent/internal/logger"
	"github.com/ShawnNotFound/20251115GreatAgent/internal/policy"
	"github.com/ShawnNotFound/20251115GreatAgent/internal/repository"
	"github.com/ShawnNotFound/20251115GreatAgent/internal/service"
	"github.com/ShawnNotFound/20251115GreatAgent/internal/tui"
)

func main() {
	logPath := flag.String("log", "console-tui.log", "log file (the terminal belongs to the UI)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.LogFile == "" {
		cfg.LogFile = *logPath
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var store repository.Store
	if cfg.DatabaseURL != "" {
		db, err := repository.NewSQLiteStore(cfg.DatabaseURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to initialize run storage: %v\n", err)
			os.Exit(1)
		}
		defer db.Close()
		store = db
	}

	policyEngine, err := policy.NewDefaultEngine(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize policy engine: %v\n", err)
		os.Exit(1)
	}

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
	go func() {
		initCtx, initCancel := context.WithTimeout(ctx, cfg.ControlTimeout)
		defer initCancel()
		svc.Init(initCtx)
	}()

	program := tea.NewProgram(tui.NewModel(svc), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "tui exited with error: %v\n", err)
		os.Exit(1)
	}

	cancel()
	select {
	case <-svc.Done():
	case <-time.After(5 * time.Second):
	}
}
