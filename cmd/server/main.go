package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zeusync/zombiebox/internal/client"
	"github.com/zeusync/zombiebox/internal/core/config"
	"github.com/zeusync/zombiebox/internal/injector"
	"github.com/zeusync/zombiebox/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	transportName := flag.String("transport", "", "override server.transport (offline, websocket, quic)")
	flag.Parse()

	cfg, err := loadConfig(*configPath, *transportName)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error loading config:", err)
		os.Exit(2)
	}

	var opts server.Options
	if !cfg.Networked() {
		// Nobody else can author the host player's intent offline.
		opts.Pilot = client.NewBrain(nil)
	}

	srv, cleanup, err := injector.InitializeServer(cfg, opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error creating server:", err)
		os.Exit(1)
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error starting server:", err)
		cleanup()
		os.Exit(1)
	}

	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Stop(stopCtx); err != nil {
		fmt.Fprintln(os.Stderr, "Error stopping server:", err)
	}
}

func loadConfig(path, transportName string) (config.Config, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return cfg, err
		}
	}
	if transportName != "" {
		cfg.Server.Transport = transportName
	}
	return cfg, cfg.Validate()
}
