package overlay

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/prax-labs/overlaysim/internal/config"
	"github.com/prax-labs/overlaysim/internal/id"
	"github.com/prax-labs/overlaysim/internal/kademlia"
	"github.com/prax-labs/overlaysim/internal/nc"
	"github.com/prax-labs/overlaysim/internal/route"
	"github.com/prax-labs/overlaysim/pkg/retry"
)

// Result is what a Deliver call resolves to: either a reply payload or a
// transport error, consumed by the iterative lookup as the cue to try
// the next candidate.
type Result struct {
	Data any
	Err  error
}

type msgKind int

const (
	msgPacket msgKind = iota
	msgHello
	msgTick
	msgMerge
)

type inboxMsg struct {
	kind  msgKind
	pkt   Packet
	hello HelloNode
	nodes []kademlia.DHTNode

	result chan Result
	done   chan struct{}
}

type neighbourSet struct {
	list []NeighbourData
	byID map[id.ID]*NeighbourData
}

// Node is the per-entity actor: it processes every inbound message in
// FIFO order on its own goroutine, and nothing else ever mutates its
// table, neighbour set, or NC state. Forwarding and lookup probes spawn
// short-lived helper goroutines that talk to *other* nodes — forwardAsync
// hands the downstream reply straight to the waiting caller, and the
// lookup driver in lookup.go sends table changes back through this
// node's inbox — so the Run loop itself is never blocked waiting on a
// downstream reply.
type Node struct {
	ID         id.ID
	GraphIndex int

	driver *World
	cfg    config.Config
	log    *slog.Logger

	inbox chan inboxMsg

	neighbours atomic.Pointer[neighbourSet]

	dht     *DHTService
	nc      *nc.State
	dhtInit atomic.Bool
}

// NewNode constructs a node actor. It does not start the actor's
// goroutine; call Run for that.
func NewNode(w *World, nodeID id.ID, graphIndex int, cfg config.Config, log *slog.Logger) *Node {
	n := &Node{
		ID:         nodeID,
		GraphIndex: graphIndex,
		driver:     w,
		cfg:        cfg,
		log:        log.With("node", nodeID.String()),
		inbox:      make(chan inboxMsg, 256),
		dht:        NewDHTService(nodeID, cfg.BucketSize, cfg.HashSize),
		nc:         nc.NewState(cfg.NCDimensions),
	}
	n.neighbours.Store(&neighbourSet{})
	return n
}

// DHT exposes the node's DHT service, for tests and driver-level stale
// probing.
func (n *Node) DHT() *DHTService { return n.dht }

// Run is the actor's event loop. It must be started exactly once, in
// its own goroutine, and exits when ctx is cancelled.
func (n *Node) Run(ctx context.Context) {
	n.driver.notifyHelloWorld(n)

	for {
		select {
		case <-ctx.Done():
			return
		case m := <-n.inbox:
			switch m.kind {
			case msgPacket:
				n.handlePacket(ctx, m.pkt, m.result)
			case msgHello:
				n.handleHello(ctx, m.hello, m.done)
			case msgTick:
				n.handleTick(ctx)
			case msgMerge:
				for _, dn := range m.nodes {
					n.dht.Update(dn)
				}
			}
		}
	}
}

// Deliver hands pkt to n, as its next routing hop or final destination,
// and blocks for the reply.
func (n *Node) Deliver(ctx context.Context, pkt Packet) (Result, error) {
	resultCh := make(chan Result, 1)

	select {
	case n.inbox <- inboxMsg{kind: msgPacket, pkt: pkt, result: resultCh}:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}

	select {
	case r := <-resultCh:
		return r, r.Err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// SayHello wires peer as a direct neighbour. If reply is false, n mirrors
// the handshake back to peer once its own state is updated, so the
// handshake converges in one round trip.
func (n *Node) SayHello(ctx context.Context, peerID id.ID, peerHandle *Node, conn Connection, reply bool) error {
	done := make(chan struct{}, 1)

	select {
	case n.inbox <- inboxMsg{kind: msgHello, hello: HelloNode{
		PeerID: peerID, PeerHandle: peerHandle, Connection: conn, Reply: reply,
	}, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Tick drives one dht_tick (and an NC tick, when n has a neighbour) on
// n's own worker.
func (n *Node) Tick(ctx context.Context) error {
	select {
	case n.inbox <- inboxMsg{kind: msgTick}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *Node) handleHello(ctx context.Context, h HelloNode, done chan struct{}) {
	added := n.addNeighbourIfAbsent(NeighbourData{ID: h.PeerID, Handle: h.PeerHandle, Connection: h.Connection})

	if done != nil {
		close(done)
	}

	if added && !h.Reply {
		go func() {
			if err := h.PeerHandle.SayHello(ctx, n.ID, n, h.Connection, true); err != nil {
				n.log.Warn("hello handshake mirror failed", "peer", h.PeerID, "err", err)
			}
		}()
	}
}

func (n *Node) handlePacket(ctx context.Context, pkt Packet, result chan Result) {
	if pkt.Des == n.ID {
		if len(pkt.Route) != 0 {
			panic(fmt.Sprintf("overlay: destination packet for %s arrived with non-empty route %v", n.ID, pkt.Route))
		}

		reply, err := n.processDestination(pkt)
		if result != nil {
			result <- Result{Data: reply, Err: err}
		}
		return
	}

	// An exhausted route means n is the last hop before pkt.Des itself —
	// Route excludes both endpoints, so once it is empty the implied next
	// hop is the destination, not a further intermediate. Mirrors
	// sendViaRoute's identical fallback for the issuing node's own first
	// hop.
	hop, rest, ok := pkt.Route.NextHop()
	if !ok {
		hop, rest = pkt.Des, nil
	}

	nb, ok := n.lookupNeighbour(hop)
	if !ok {
		panic(fmt.Sprintf("overlay: node %s has no neighbour %s to forward toward %s", n.ID, hop, pkt.Des))
	}

	go n.forwardAsync(ctx, pkt, rest, nb, result)
}

func (n *Node) forwardAsync(ctx context.Context, pkt Packet, rest route.Route, nb NeighbourData, result chan Result) {
	forwardPkt := Packet{
		From:           pkt.From,
		Des:            pkt.Des,
		Route:          rest,
		TraversedRoute: pkt.TraversedRoute.Append(n.ID),
		Data:           pkt.Data,
	}

	res, err := nb.Handle.Deliver(ctx, forwardPkt)

	if rand.Float64() < float64(n.cfg.SentSampleNumerator)/float64(n.cfg.SentSampleDenominator) {
		n.driver.notifySent()
	}

	if result == nil {
		return
	}
	if err != nil {
		result <- Result{Err: err}
		return
	}
	result <- res
}

func (n *Node) processDestination(pkt Packet) (any, error) {
	sender := kademlia.DHTNode{ID: pkt.From, Route: pkt.TraversedRoute}

	switch d := pkt.Data.(type) {
	case Ping:
		n.dht.OnPing(sender)
		return PingReply{}, nil

	case FindNode:
		nodes := n.dht.OnFindNode(sender, d.Target, n.cfg.MaxNodeCount)
		return FindNodeReply{Nodes: toRoutedNodes(nodes)}, nil

	case FindValue:
		val, nodes := n.dht.OnFindValue(sender, d.Key, n.cfg.MaxNodeCount)
		return FindValueReply{Found: val != nil, Value: val, Nodes: toRoutedNodes(nodes)}, nil

	case DHTLookup:
		nodes := n.dht.OnFindNode(sender, d.Goal, n.cfg.MaxNodeCount)
		return DHTLookupReply{Nodes: toRoutedNodes(nodes)}, nil

	default:
		return nil, fmt.Errorf("overlay: node %s received unknown payload %T", n.ID, d)
	}
}

func toRoutedNodes(nodes []kademlia.DHTNode) []RoutedNode {
	out := make([]RoutedNode, len(nodes))
	for i, dn := range nodes {
		out[i] = RoutedNode{ID: dn.ID, Route: dn.Route}
	}
	return out
}

func (n *Node) currentNeighbours() []NeighbourData {
	s := n.neighbours.Load()
	if s == nil {
		return nil
	}
	return s.list
}

func (n *Node) lookupNeighbour(peer id.ID) (NeighbourData, bool) {
	s := n.neighbours.Load()
	if s == nil {
		return NeighbourData{}, false
	}
	nb, ok := s.byID[peer]
	if !ok {
		return NeighbourData{}, false
	}
	return *nb, true
}

// addNeighbourIfAbsent appends nd to the neighbour set, unless peer is
// already present. Only ever called from Run, so the read-modify-store
// below needs no compare-and-swap loop.
func (n *Node) addNeighbourIfAbsent(nd NeighbourData) bool {
	old := n.neighbours.Load()

	var oldList []NeighbourData
	if old != nil {
		if _, exists := old.byID[nd.ID]; exists {
			return false
		}
		oldList = old.list
	}

	newList := append(append([]NeighbourData{}, oldList...), nd)
	byID := make(map[id.ID]*NeighbourData, len(newList))
	for i := range newList {
		byID[newList[i].ID] = &newList[i]
	}

	n.neighbours.Store(&neighbourSet{list: newList, byID: byID})
	return true
}

// handleTick runs dht_tick and, if the node has at least one neighbour,
// one NC tick: a single clipped-SGD step against that neighbour's
// measured connection latency. On the first tick ever it also launches
// the bootstrap lookup. Every probe runs on its own goroutine so the
// event loop stays responsive; table mutations flow back through the
// inbox's msgMerge case.
func (n *Node) handleTick(ctx context.Context) {
	if nbs := n.currentNeighbours(); len(nbs) > 0 {
		sample := nbs[rand.IntN(len(nbs))]
		n.nc.Update(sample.Connection.LatencyMillis, n.cfg.NCLearnRate)
	}

	if !n.dhtInit.Swap(true) {
		go n.runBootstrap(ctx)
	}

	if n.dht.CleanNeeded() {
		go n.reapStaleEntries(ctx)
	}

	for _, nb := range n.currentNeighbours() {
		if rand.Float64() >= n.cfg.TickProbability {
			continue
		}
		nb := nb
		go n.pingNeighbour(ctx, nb)
		go n.randomLookup(ctx)
	}
}

func (n *Node) pingNeighbour(ctx context.Context, nb NeighbourData) {
	res, err := n.sendViaRoute(ctx, nb.ID, nil, Ping{})
	if err != nil {
		n.log.Warn("ping failed", "peer", nb.ID, "err", err)
		return
	}
	if _, ok := res.Data.(PingReply); !ok {
		n.log.Warn("unexpected ping reply type", "peer", nb.ID)
	}
}

// reapStaleEntries implements the clean-needed -> pop_oldest cycle: once
// some bucket has rejected an update while full, every currently-full
// bucket gets its oldest entry popped and re-pinged, and only entries
// that answer are re-inserted. A bucket
// that is full of genuinely live nodes will simply refill with the same
// entries it lost; one that was full of stale ones makes room for the
// candidate that triggered the clean in the first place.
func (n *Node) reapStaleEntries(ctx context.Context) {
	stale := n.dht.PopOldest()
	if len(stale) == 0 {
		return
	}

	var survivors []kademlia.DHTNode
	for _, dn := range stale {
		if _, err := n.sendViaRoute(ctx, dn.ID, dn.Route, Ping{}); err == nil {
			survivors = append(survivors, dn)
		}
	}
	n.mergeIntoTable(ctx, survivors)
}

func (n *Node) randomLookup(ctx context.Context) {
	goal := n.dht.Table().RandomID()
	found, ok := n.dhtLookup(ctx, goal, nil, false)
	if ok {
		n.log.Debug("random lookup found target", "goal", goal, "result", found.ID)
	}
}

var errNoCandidatesYet = fmt.Errorf("overlay: bootstrap has no table entries yet")

// runBootstrap issues the first dht_lookup(self_id, init=true) as soon
// as the node has at least one table entry. A freshly spawned node's
// table stays empty until a neighbour's ping or lookup reaches it
// (HelloNode only wires the neighbour set), so this retries on a short
// linear backoff rather than failing outright.
func (n *Node) runBootstrap(ctx context.Context) {
	op := func(ctx context.Context) error {
		if n.dht.Table().Size() == 0 {
			return errNoCandidatesYet
		}
		if _, ok := n.dhtLookup(ctx, n.ID, nil, true); !ok {
			n.log.Debug("bootstrap lookup exhausted candidates")
		}
		return nil
	}

	opts := append(retry.WithLinearBackoff(8, 20*time.Millisecond), retry.WithJitter(0.3))
	err := retry.Do(ctx, op, opts...)
	if err != nil {
		n.log.Warn("bootstrap lookup never found a candidate to probe", "err", err)
	}
}
