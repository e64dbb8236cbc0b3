package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zeusync/zombiebox/internal/client"
	"github.com/zeusync/zombiebox/internal/core/config"
	"github.com/zeusync/zombiebox/internal/core/discovery"
	"github.com/zeusync/zombiebox/internal/core/events/bus"
	"github.com/zeusync/zombiebox/internal/core/observability/log"
	"github.com/zeusync/zombiebox/internal/injector"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	addr := flag.String("addr", "127.0.0.1:7777", "host address")
	discover := flag.Bool("discover", false, "find a host on the LAN instead of using -addr")
	bots := flag.Int("bots", 1, "number of headless players to run")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintln(os.Stderr, "Error loading config:", err)
			os.Exit(2)
		}
	}
	logger := injector.ProvideLogger(cfg)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	target := *addr
	if *discover {
		found, err := browse(ctx, cfg)
		if err != nil {
			logger.Fatal("Discovery failed", log.Error(err))
		}
		target = found
	}

	g, ctx := errgroup.WithContext(ctx)
	seed := time.Now().UnixNano()
	for i := 0; i < *bots; i++ {
		conn, err := client.Dial(ctx, cfg, target, logger)
		if err != nil {
			logger.Fatal("Host unreachable", log.String("addr", target), log.Error(err))
		}
		c := client.New(conn, cfg, bus.New(), logger.With(log.Int("bot", i)))
		brain := client.NewBrain(rand.New(rand.NewSource(seed + int64(i))))
		g.Go(func() error { return c.Run(ctx, brain) })
	}
	if err := g.Wait(); err != nil {
		logger.Error("Bot stopped", log.Error(err))
	}
}

func browse(ctx context.Context, cfg config.Config) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	sessions, err := discovery.Browse(ctx, cfg.Server.Transport)
	if err != nil {
		return "", err
	}
	if len(sessions) == 0 {
		return "", fmt.Errorf("no %s session found", cfg.Server.Transport)
	}
	return sessions[0].Addr(), nil
}
