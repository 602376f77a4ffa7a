package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voxbill/voxbill/pkg/api"
	"github.com/voxbill/voxbill/pkg/bus"
	"github.com/voxbill/voxbill/pkg/config"
	"github.com/voxbill/voxbill/pkg/invoice"
	"github.com/voxbill/voxbill/pkg/logger"
	"github.com/voxbill/voxbill/pkg/manager"
)

func main() {
	configPath := flag.String("config", "voxbill.yaml", "path to the config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.ParseLevel(cfg.LogLevel), cfg.LogDir); err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	logger.InfoC("main", "VoxBill starting")

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.ErrorCF("main", "data dir unavailable", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	ledger, err := invoice.OpenLedger(cfg.LedgerPath())
	if err != nil {
		logger.ErrorCF("main", "invoice ledger unavailable", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	defer ledger.Close()

	messageBus := bus.NewMessageBus()
	defer messageBus.Close()

	mgr, err := manager.New(cfg, ledger, messageBus)
	if err != nil {
		logger.ErrorCF("main", "manager init failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mgr.RestoreAll(ctx)

	server := api.NewServer(cfg, mgr, ledger, messageBus)
	if err := server.Start(ctx); err != nil {
		logger.ErrorCF("main", "API server failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.InfoC("main", "Shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	mgr.StopAll(shutdownCtx)
	if err := server.Stop(); err != nil {
		logger.WarnCF("main", "API shutdown error", map[string]interface{}{"error": err.Error()})
	}
	logger.InfoC("main", "Goodbye")
}
