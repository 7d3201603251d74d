package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/AbdullahhussainYasim/p2p-os-term-project/internal/osim/memalloc"
	"github.com/AbdullahhussainYasim/p2p-os-term-project/internal/peer"
	"github.com/AbdullahhussainYasim/p2p-os-term-project/internal/sched"
	"github.com/AbdullahhussainYasim/p2p-os-term-project/pkg/config"
	"github.com/AbdullahhussainYasim/p2p-os-term-project/pkg/identity"
	"github.com/AbdullahhussainYasim/p2p-os-term-project/pkg/logger"
	"github.com/AbdullahhussainYasim/p2p-os-term-project/pkg/types"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	port := flag.Int("port", 0, "listen port (overrides config)")
	trackerAddr := flag.String("tracker", "", "tracker address (overrides config)")
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

	if err := os.MkdirAll(cfg.Node.DataDir, 0o700); err != nil {
		logr.Fatal("failed to create data dir", zap.Error(err))
	}

	id, err := identity.LoadOrCreate(filepath.Join(cfg.Node.DataDir, cfg.Node.IdentityFile))
	if err != nil {
		logr.Fatal("failed to load peer identity", zap.Error(err))
	}

	listenPort := cfg.Node.ListenPort
	if *port != 0 {
		listenPort = *port
	}
	tracker := cfg.Tracker.Addr
	if *trackerAddr != "" {
		tracker = *trackerAddr
	}

	discipline, err := sched.ParseDiscipline(cfg.Peer.Scheduler)
	if err != nil {
		logr.Fatal("invalid scheduler", zap.Error(err))
	}
	arenaAlgo, err := memalloc.ParseAlgorithm(cfg.Arena.Algorithm)
	if err != nil {
		logr.Fatal("invalid arena algorithm", zap.Error(err))
	}

	opts := peer.Options{
		Identity:          id,
		Addr:              types.Addr{Host: advertiseHost(cfg.Node.ListenHost), Port: listenPort},
		BindHost:          cfg.Node.ListenHost,
		TrackerAddr:       tracker,
		DataDir:           cfg.Node.DataDir,
		Scheduler:         discipline,
		Quantum:           cfg.Peer.RoundRobinQuantum,
		HeartbeatInterval: cfg.Peer.HeartbeatInterval,
		TaskTimeout:       cfg.Peer.TaskTimeout,
		SocketTimeout:     cfg.Peer.SocketTimeout,
		MaxConnections:    cfg.Peer.MaxConnections,
		CacheTTL:          cfg.Cache.TTL,
		CacheCapacity:     cfg.Cache.Capacity,
		HistorySize:       cfg.History.Capacity,
		QuotaMaxTasks:     cfg.Quota.MaxCPUTasks,
		QuotaMaxKeys:      cfg.Quota.MaxMemoryKeys,
		QuotaWindow:       cfg.Quota.Window,
		ArenaAlgorithm:    arenaAlgo,
	}
	for _, size := range []struct {
		src string
		dst *int64
	}{
		{cfg.Peer.MaxFileSize, &opts.MaxFileSize},
		{cfg.Peer.ChunkSize, &opts.ChunkSize},
		{cfg.Quota.MaxStorage, &opts.QuotaMaxStorage},
		{cfg.Arena.Size, &opts.ArenaSize},
	} {
		n, err := config.Bytes(size.src)
		if err != nil {
			logr.Fatal("invalid size in config", zap.String("value", size.src), zap.Error(err))
		}
		*size.dst = n
	}
	if frame, err := config.Bytes(cfg.Peer.MaxFrameSize); err == nil {
		opts.MaxFrame = uint32(frame)
	}

	node, err := peer.New(opts, logr)
	if err != nil {
		logr.Fatal("failed to assemble peer", zap.Error(err))
	}

	if cfg.Node.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(
				node.MetricsRegistry().Registry, promhttp.HandlerOpts{}))
			if err := http.ListenAndServe(cfg.Node.MetricsAddr, mux); err != nil {
				logr.Warn("metrics endpoint failed", zap.Error(err))
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := node.Start(ctx); err != nil {
		logr.Fatal("peer failed", zap.Error(err))
	}
}

// advertiseHost maps a wildcard bind to loopback for the advertised
// address; deployments across hosts set an explicit listen_host.
func advertiseHost(listenHost string) string {
	if listenHost == "" || listenHost == "0.0.0.0" {
		return "127.0.0.1"
	}
	return listenHost
}
