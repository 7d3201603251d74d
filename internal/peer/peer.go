// Package peer implements the fabric node: the TCP server and dispatch
// pipeline over the memory store, blob stores, scheduler, OS-simulation
// substrate and the ownership lifecycle.
package peer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/AbdullahhussainYasim/p2p-os-term-project/internal/cache"
	"github.com/AbdullahhussainYasim/p2p-os-term-project/internal/executor"
	"github.com/AbdullahhussainYasim/p2p-os-term-project/internal/history"
	"github.com/AbdullahhussainYasim/p2p-os-term-project/internal/memstore"
	"github.com/AbdullahhussainYasim/p2p-os-term-project/internal/osim/ipc"
	"github.com/AbdullahhussainYasim/p2p-os-term-project/internal/osim/memalloc"
	"github.com/AbdullahhussainYasim/p2p-os-term-project/internal/osim/proctable"
	"github.com/AbdullahhussainYasim/p2p-os-term-project/internal/osim/resource"
	"github.com/AbdullahhussainYasim/p2p-os-term-project/internal/quota"
	"github.com/AbdullahhussainYasim/p2p-os-term-project/internal/sched"
	"github.com/AbdullahhussainYasim/p2p-os-term-project/internal/storage"
	"github.com/AbdullahhussainYasim/p2p-os-term-project/pkg/types"
	"github.com/AbdullahhussainYasim/p2p-os-term-project/pkg/wire"
)

// Options carries everything needed to assemble a peer.
type Options struct {
	Identity    string
	Addr        types.Addr // advertised address
	BindHost    string     // bind host; defaults to the advertised host
	TrackerAddr string     // empty disables tracker interaction

	DataDir string // root for the blob store and owned storage

	Scheduler         sched.Discipline
	Quantum           time.Duration // round-robin accounting quantum
	HeartbeatInterval time.Duration
	TaskTimeout       time.Duration
	SocketTimeout     time.Duration
	MaxConnections    int
	MaxFileSize       int64
	MaxFrame          uint32
	ChunkSize         int64

	CacheTTL      time.Duration
	CacheCapacity int
	HistorySize   int

	QuotaMaxTasks   int
	QuotaMaxKeys    int
	QuotaMaxStorage int64
	QuotaWindow     time.Duration

	ArenaSize      int64
	ArenaAlgorithm memalloc.Algorithm
}

func (o *Options) applyDefaults() {
	if o.DataDir == "" {
		o.DataDir = "fabric_data"
	}
	if o.Scheduler == "" {
		o.Scheduler = sched.FCFS
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 10 * time.Second
	}
	if o.TaskTimeout <= 0 {
		o.TaskTimeout = 60 * time.Second
	}
	if o.SocketTimeout <= 0 {
		o.SocketTimeout = 30 * time.Second
	}
	if o.MaxConnections <= 0 {
		o.MaxConnections = 256
	}
	if o.MaxFileSize <= 0 {
		o.MaxFileSize = 100 << 20
	}
	if o.MaxFrame == 0 {
		o.MaxFrame = wire.DefaultMaxFrame
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = 1 << 20
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = time.Hour
	}
	if o.CacheCapacity <= 0 {
		o.CacheCapacity = 100
	}
	if o.HistorySize <= 0 {
		o.HistorySize = 1000
	}
	if o.QuotaMaxTasks <= 0 {
		o.QuotaMaxTasks = 100
	}
	if o.QuotaMaxKeys <= 0 {
		o.QuotaMaxKeys = 1000
	}
	if o.QuotaMaxStorage <= 0 {
		o.QuotaMaxStorage = 100 << 20
	}
	if o.QuotaWindow <= 0 {
		o.QuotaWindow = time.Hour
	}
	if o.ArenaSize <= 0 {
		o.ArenaSize = 1 << 20
	}
	if o.ArenaAlgorithm == "" {
		o.ArenaAlgorithm = memalloc.FirstFit
	}
}

// Peer is one fabric node.
type Peer struct {
	opts Options
	log  *zap.Logger

	mem     *memstore.Store
	files   *storage.BlobStore
	owned   *storage.OwnedStore
	cache   *cache.ResultCache
	hist    *history.Log
	ledger  *quota.Ledger
	procs   *proctable.Table
	arbiter *resource.Arbiter
	alloc   *memalloc.Allocator
	ipc     *ipc.Manager
	sched   *sched.Scheduler
	exec    *executor.Registry
	metrics *Metrics

	// ownerHints caches tracker-confirmed owner ids per filename so a
	// storage peer does not round-trip on every GET_OWNED_FILE.
	ownerHints *gocache.Cache

	ownedMu   sync.Mutex
	ownedByMe map[string][]types.Addr // filename -> storage peers

	ln      net.Listener
	connSem chan struct{}
	wg      sync.WaitGroup
	done    chan struct{}
}

// New assembles a peer from opts, opening its on-disk stores.
func New(opts Options, log *zap.Logger) (*Peer, error) {
	opts.applyDefaults()
	if opts.Identity == "" {
		return nil, errors.New("peer identity required")
	}

	files, err := storage.OpenBlobStore(filepath.Join(opts.DataDir, "blobs"))
	if err != nil {
		return nil, err
	}
	owned, err := storage.OpenOwnedStore(filepath.Join(opts.DataDir, "owned_storage"))
	if err != nil {
		files.Close()
		return nil, err
	}

	p := &Peer{
		opts:       opts,
		log:        log,
		mem:        memstore.New(),
		files:      files,
		owned:      owned,
		cache:      cache.New(opts.CacheCapacity, opts.CacheTTL),
		hist:       history.New(opts.HistorySize),
		ledger:     quota.New(opts.QuotaMaxTasks, opts.QuotaMaxKeys, opts.QuotaMaxStorage, opts.QuotaWindow),
		procs:      proctable.New(),
		arbiter:    resource.New(),
		alloc:      memalloc.New(opts.ArenaSize, opts.ArenaAlgorithm),
		ipc:        ipc.NewManager(),
		exec:       executor.NewRegistry(),
		metrics:    newMetrics(),
		ownerHints: gocache.New(5*time.Minute, 10*time.Minute),
		ownedByMe:  make(map[string][]types.Addr),
		connSem:    make(chan struct{}, opts.MaxConnections),
		done:       make(chan struct{}),
	}
	executor.RegisterBuiltins(p.exec)
	var schedOpts []sched.Option
	if opts.Quantum > 0 {
		schedOpts = append(schedOpts, sched.WithQuantum(opts.Quantum))
	}
	p.sched = sched.New(opts.Scheduler, p.exec, p.procs, p.arbiter, opts.TaskTimeout, log, schedOpts...)

	// Default resource pools mirror the simulated machine.
	p.arbiter.RegisterResource("CPU", "CPU", 4)
	p.arbiter.RegisterResource("MEMORY", "MEMORY", 1000)
	p.arbiter.RegisterResource("DISK", "DISK", 10)

	return p, nil
}

// Executor exposes the callable registry so embedders can install their own
// entry points.
func (p *Peer) Executor() *executor.Registry { return p.exec }

// Identity returns the peer's stable identity.
func (p *Peer) Identity() string { return p.opts.Identity }

// Addr returns the peer's advertised address.
func (p *Peer) Addr() types.Addr { return p.opts.Addr }

// MetricsRegistry exposes the prometheus registry for the metrics endpoint.
func (p *Peer) MetricsRegistry() *Metrics { return p.metrics }

// Start binds the listener, registers with the tracker, launches the
// scheduler, heartbeat and accept loop, and blocks until ctx is cancelled.
func (p *Peer) Start(ctx context.Context) error {
	bindHost := p.opts.BindHost
	if bindHost == "" {
		bindHost = p.opts.Addr.Host
	}
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", bindHost, p.opts.Addr.Port))
	if err != nil {
		return fmt.Errorf("failed to bind peer listener: %w", err)
	}
	p.ln = ln
	if p.opts.Addr.Port == 0 {
		if tcp, ok := ln.Addr().(*net.TCPAddr); ok {
			p.opts.Addr.Port = tcp.Port
		}
	}
	p.log.Info("peer listening",
		zap.String("identity", p.opts.Identity),
		zap.String("addr", ln.Addr().String()))

	p.sched.Start()

	if p.opts.TrackerAddr != "" {
		if err := p.registerWithTracker(ctx); err != nil {
			p.log.Warn("initial tracker registration failed", zap.Error(err))
		}
		p.advertiseExistingFiles(ctx)
		p.reportOwnedFiles(ctx)
		go p.heartbeatLoop(ctx)
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			p.log.Warn("accept failed", zap.Error(err))
			continue
		}
		select {
		case p.connSem <- struct{}{}:
		case <-ctx.Done():
			conn.Close()
			continue
		}
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			defer func() { <-p.connSem }()
			p.handleConn(conn)
		}()
	}

	p.shutdown(context.Background())
	close(p.done)
	return nil
}

// Done is closed once the peer has fully shut down.
func (p *Peer) Done() <-chan struct{} { return p.done }

func (p *Peer) shutdown(ctx context.Context) {
	if p.opts.TrackerAddr != "" {
		callCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		_ = wire.Call(callCtx, p.opts.TrackerAddr, wire.UnregisterRequest{
			Type:     wire.TypeUnregister,
			Identity: p.opts.Identity,
		}, nil)
		cancel()
	}
	p.sched.Stop()
	p.wg.Wait()
	if err := p.files.Close(); err != nil {
		p.log.Warn("failed to close blob store", zap.Error(err))
	}
	p.log.Info("peer stopped", zap.String("identity", p.opts.Identity))
}

func (p *Peer) handleConn(conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(p.opts.SocketTimeout))

	raw, err := wire.ReadFrame(conn, p.opts.MaxFrame)
	if err != nil {
		if !errors.Is(err, wire.ErrTruncated) {
			p.log.Debug("bad frame", zap.Error(err))
		}
		return
	}

	// Long-running requests (task execution, blocking IPC receives) extend
	// the deadline to the task budget.
	_ = conn.SetDeadline(time.Now().Add(p.opts.TaskTimeout + p.opts.SocketTimeout))

	resp := p.dispatch(raw)
	if err := wire.WriteFrame(conn, resp); err != nil {
		p.log.Debug("failed to write response", zap.Error(err))
	}
}

func (p *Peer) dispatch(raw []byte) any {
	msgType, err := wire.PeekType(raw)
	if err != nil {
		return wire.ToResponse(wire.Errorf(wire.CodeBadRequest, "%v", err))
	}
	resp, err := p.route(msgType, raw)
	if err != nil {
		return wire.ToResponse(err)
	}
	return resp
}
