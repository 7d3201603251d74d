package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"github.com/AbdullahhussainYasim/p2p-os-term-project/internal/tracker"
	"github.com/AbdullahhussainYasim/p2p-os-term-project/pkg/config"
	"github.com/AbdullahhussainYasim/p2p-os-term-project/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	listenAddr := flag.String("listen", "", "listen address (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg.Node.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logr.Sync()

	addr := cfg.Tracker.Addr
	if *listenAddr != "" {
		addr = *listenAddr
	}

	if err := os.MkdirAll(cfg.Node.DataDir, 0o700); err != nil {
		logr.Fatal("failed to create data dir", zap.Error(err))
	}
	registryPath := filepath.Join(cfg.Node.DataDir, cfg.Tracker.OwnedRegistryFile)

	registry, err := tracker.NewRegistry(registryPath, cfg.Tracker.PeerTimeout, logr)
	if err != nil {
		logr.Fatal("failed to load owned-file registry", zap.Error(err))
	}

	maxFrame, err := config.Bytes(cfg.Peer.MaxFrameSize)
	if err != nil {
		logr.Fatal("invalid max frame size", zap.Error(err))
	}
	srv := tracker.NewServer(registry, cfg.Tracker.JanitorInterval, uint32(maxFrame), logr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.ListenAndServe(ctx, addr); err != nil {
		logr.Fatal("tracker failed", zap.Error(err))
	}
}
