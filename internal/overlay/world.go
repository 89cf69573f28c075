package overlay

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/prax-labs/overlaysim/internal/config"
	"github.com/prax-labs/overlaysim/internal/geo"
	"github.com/prax-labs/overlaysim/pkg/bitfield"
)

type cmdKind int

const (
	cmdHelloWorld cmdKind = iota
	cmdSent
)

type command struct {
	kind cmdKind
	node *Node
}

// World is the simulation driver: it owns the static graph, the
// id-to-index mapping implicit in graph indices, and every admission and
// tick counter. Like the teacher's PieceScheduler, World is itself a
// single-goroutine actor — driverLoop is its event loop, and every field
// below is touched only from that goroutine. Node construction and
// wiring closures are dispatched onto a fixed pool of worker goroutines
// for thread affinity, grounded on the teacher's swarm/scheduler
// dispatch pattern.
type World struct {
	cfg config.Config
	log *slog.Logger

	graph *geo.Graph
	nodes []*Node

	spawned       bitfield.Bitfield
	nextCandidate int
	pending       int64
	active        int64
	adding        bool
	lastSeenMsg   int64
	messageNo     int64

	commands chan command
	workers  []chan func()
}

// NewWorld constructs a driver that has not yet generated its graph or
// started any workers; call Run to do both.
func NewWorld(cfg config.Config, log *slog.Logger) *World {
	return &World{
		cfg:      cfg,
		log:      log.With("component", "world"),
		commands: make(chan command, 4096),
		adding:   true,
	}
}

// Graph exposes the generated graph, valid only after Run has started.
func (w *World) Graph() *geo.Graph { return w.graph }

// Stats is a point-in-time snapshot of admission and tick progress,
// logged by the entrypoint on shutdown.
type Stats struct {
	TotalNodes      int
	Active          int64
	Pending         int64
	Adding          bool
	LastSeenMessage int64
	MessageNo       int64
}

// Run starts the worker pool with one AddThread per configured worker,
// generates the static graph, and starts the driver loop, blocking until
// ctx is cancelled or a worker returns an error.
func (w *World) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < w.cfg.WorkerCount; i++ {
		w.AddThread(gctx, g)
	}

	w.graph = geo.Generate(w.cfg)
	w.nodes = make([]*Node, len(w.graph.Nodes))
	w.spawned = bitfield.New(len(w.graph.Nodes))

	g.Go(func() error { return w.driverLoop(gctx) })

	return g.Wait()
}

// AddThread starts one more worker goroutine draining its own dispatch
// channel, supervised by g. World's fixed worker_count pool is assembled
// by calling this once per worker before graph generation; nothing in
// this simulator grows the pool after that, but the command stays a
// distinct operation rather than an inline loop in Run because the
// command surface names it as one.
func (w *World) AddThread(ctx context.Context, g *errgroup.Group) {
	ch := make(chan func(), 256)
	w.workers = append(w.workers, ch)
	g.Go(func() error { return runWorker(ctx, ch) })
}

func runWorker(ctx context.Context, ch chan func()) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-ch:
			fn()
		}
	}
}

func (w *World) dispatch(thread int, fn func()) {
	if len(w.workers) == 0 {
		fn()
		return
	}
	idx := thread % len(w.workers)
	select {
	case w.workers[idx] <- fn:
	default:
		fn()
	}
}

func (w *World) driverLoop(ctx context.Context) error {
	ticker := time.NewTicker(time.Duration(w.cfg.WakePeriodMicros) * time.Microsecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-w.commands:
			w.handleCommand(ctx, cmd)
		case <-ticker.C:
			w.handleWake(ctx)
		}
	}
}

func (w *World) handleCommand(ctx context.Context, cmd command) {
	switch cmd.kind {
	case cmdHelloWorld:
		w.handleHelloWorld(ctx, cmd.node)
	case cmdSent:
		w.lastSeenMsg++
	}
}

// handleHelloWorld is the driver-side half of a node's admission: record
// it as active, then wire every edge touching it whose other endpoint
// has already spawned. Checking both edge directions (not just this
// node's own outgoing edges) guarantees every edge in the graph is
// eventually wired exactly once, regardless of which of its two
// endpoints happens to spawn second.
func (w *World) handleHelloWorld(ctx context.Context, n *Node) {
	w.nodes[n.GraphIndex] = n
	w.pending--
	w.active++

	for _, e := range w.graph.Edges {
		switch {
		case e.From == n.GraphIndex && w.nodes[e.To] != nil:
			w.wireEdge(ctx, n, w.nodes[e.To], e)
		case e.To == n.GraphIndex && w.nodes[e.From] != nil:
			w.wireEdge(ctx, w.nodes[e.From], n, e)
		}
	}
}

func (w *World) wireEdge(ctx context.Context, a, b *Node, e geo.Edge) {
	conn := Connection{
		LatencyMillis: e.Conn.LatencyMillis,
		Bandwidth:     e.Conn.Bandwidth,
		PacketLoss:    e.Conn.PacketLoss,
	}
	go func() {
		if err := a.SayHello(ctx, b.ID, b, conn, false); err != nil {
			w.log.Warn("edge wiring failed", "a", a.ID, "b", b.ID, "err", err)
		}
	}()
}

func (w *World) handleWake(ctx context.Context) {
	if w.adding {
		if w.pending == 0 {
			w.activateNextBatch(ctx)
		}
		return
	}

	if w.lastSeenMsg == w.messageNo {
		w.broadcastTick(ctx)
	} else {
		w.messageNo = w.lastSeenMsg
	}
}

// activateNextBatch admits max(1, active*AdmissionFraction) more graph
// nodes, dispatching each node's construction onto its assigned worker
// thread.
func (w *World) activateNextBatch(ctx context.Context) {
	total := len(w.graph.Nodes)

	batch := int(float64(w.active) * w.cfg.AdmissionFraction)
	if batch < 1 {
		batch = 1
	}

	admitted := 0
	for admitted < batch {
		idx := w.spawned.FirstUnset(w.nextCandidate)
		if idx < 0 || idx >= total {
			break
		}
		w.spawned.Set(idx)
		w.nextCandidate = idx + 1
		w.spawnNode(ctx, idx)
		admitted++
	}

	w.pending += int64(admitted)
	if w.nextCandidate >= total {
		w.adding = false
	}
}

func (w *World) spawnNode(ctx context.Context, idx int) {
	gn := w.graph.Nodes[idx]
	w.dispatch(gn.Thread, func() {
		n := NewNode(w, gn.ID, idx, w.cfg, w.log)
		go n.Run(ctx)
	})
}

func (w *World) broadcastTick(ctx context.Context) {
	for _, n := range w.nodes {
		if n == nil {
			continue
		}
		n := n
		go func() {
			if err := n.Tick(ctx); err != nil {
				w.log.Debug("tick delivery failed", "node", n.ID, "err", err)
			}
		}()
	}
}

// notifyHelloWorld is called by a node's own Run loop the moment it
// starts; the driver processes the admission bookkeeping on its own
// goroutine.
func (w *World) notifyHelloWorld(n *Node) {
	w.commands <- command{kind: cmdHelloWorld, node: n}
}

// notifySent advances the quiescence counter. Only a sampled fraction of
// forwarded packets call this — see Node.forwardAsync — so it is a
// coarse activity signal, not an exact in-flight count.
func (w *World) notifySent() {
	w.commands <- command{kind: cmdSent}
}

// Stats returns a point-in-time snapshot. It is not safe to call
// concurrently with Run's driver goroutine for a perfectly consistent
// read, but every field is a plain int64/bool used only for diagnostics.
func (w *World) Stats() Stats {
	total := 0
	if w.graph != nil {
		total = len(w.graph.Nodes)
	}
	return Stats{
		TotalNodes:      total,
		Active:          w.active,
		Pending:         w.pending,
		Adding:          w.adding,
		LastSeenMessage: w.lastSeenMsg,
		MessageNo:       w.messageNo,
	}
}
