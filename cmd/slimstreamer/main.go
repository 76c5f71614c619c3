package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sam0402/slimstreamer/internal/config"
	"github.com/sam0402/slimstreamer/internal/logging"
	"github.com/sam0402/slimstreamer/internal/slimstreamer"
)

func main() {
	configPath := flag.String("config", "/etc/slimstreamer/streamer.yaml", "path to streamer config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger, closer := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	defer closer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	if err := slimstreamer.Run(ctx, cfg, logger); err != nil {
		logger.Error("slimstreamer error", "error", err)
		os.Exit(1)
	}
}
