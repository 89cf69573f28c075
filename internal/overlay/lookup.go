package overlay

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/prax-labs/overlaysim/internal/id"
	"github.com/prax-labs/overlaysim/internal/kademlia"
	"github.com/prax-labs/overlaysim/internal/route"
	"github.com/prax-labs/overlaysim/pkg/heap"
	"github.com/prax-labs/overlaysim/pkg/syncmap"
)

// candidate is one entry in a lookup round's priority queue: a node plus
// its XOR distance to the lookup goal, cached so the heap's comparator
// doesn't recompute it on every swap.
type candidate struct {
	node kademlia.DHTNode
	dist id.ID
}

// sendViaRoute delivers payload to peerID by resolving routeTo's first
// hop to a live neighbour handle and calling its Deliver directly — n
// itself is the issuer, not a hop, so it never enqueues the packet on
// its own inbox. An empty routeTo means peerID is a direct neighbour.
func (n *Node) sendViaRoute(ctx context.Context, peerID id.ID, routeTo route.Route, payload any) (Result, error) {
	firstHop, rest, ok := routeTo.NextHop()
	if !ok {
		firstHop, rest = peerID, nil
	}

	nb, ok := n.lookupNeighbour(firstHop)
	if !ok {
		return Result{}, fmt.Errorf("overlay: node %s has no direct neighbour %s to route a send to %s", n.ID, firstHop, peerID)
	}

	pkt := Packet{
		From: n.ID,
		Des:  peerID,
		// TraversedRoute starts empty: n is From, an endpoint Route (and
		// so TraversedRoute, its in-flight mirror) excludes. Only actual
		// forwarding hops get appended, in forwardAsync.
		Route: rest,
		Data:  payload,
	}
	return nb.Handle.Deliver(ctx, pkt)
}

// mergeIntoTable hands discovered nodes back to n's own worker for the
// actual table mutation, preserving the single-writer rule: dhtLookup
// itself runs on a spawned helper goroutine, never on Run.
func (n *Node) mergeIntoTable(ctx context.Context, nodes []kademlia.DHTNode) {
	if len(nodes) == 0 {
		return
	}
	select {
	case n.inbox <- inboxMsg{kind: msgMerge, nodes: nodes}:
	case <-ctx.Done():
	}
}

// dhtLookup implements the general iterative lookup: at each round it
// probes up to LookupAlpha of the closest not-yet-queried candidates
// concurrently, folds every reply's closer-node list into the candidate
// set, and stops once a round fails to discover anything closer than
// the best answer already held. init marks the one bootstrap call a
// node makes against its own id when it first has a neighbour to ask.
func (n *Node) dhtLookup(ctx context.Context, goal id.ID, seed []kademlia.DHTNode, init bool) (kademlia.DHTNode, bool) {
	var base []kademlia.DHTNode
	if seed != nil {
		base = seed
	} else {
		base = n.dht.Table().Find(goal, n.cfg.MaxNodeCount)
	}

	initial := lo.UniqBy(append([]kademlia.DHTNode{}, base...), func(dn kademlia.DHTNode) id.ID { return dn.ID })
	initial = lo.Filter(initial, func(dn kademlia.DHTNode, _ int) bool { return dn.ID != n.ID })

	if init && len(initial) > 0 {
		// Drop the closest-known candidate (typically the direct
		// neighbour the node just bootstrapped through) so the probe
		// is forced past the trivial first hop.
		initial = initial[1:]
	}

	if len(initial) == 0 {
		return kademlia.DHTNode{}, false
	}

	pq := heap.NewPriorityQueue(func(a, b candidate) bool { return a.dist < b.dist })
	queried := syncmap.New[id.ID, struct{}]()

	for _, dn := range initial {
		pq.Enqueue(candidate{node: dn, dist: id.XOR(dn.ID, goal)})
	}

	best := initial[0]
	bestDist := id.XOR(best.ID, goal)
	for _, dn := range initial[1:] {
		if d := id.XOR(dn.ID, goal); d < bestDist {
			best, bestDist = dn, d
		}
	}

	for {
		if bestDist.IsZero() {
			return best, true
		}

		if closest, ok := pq.Peek(); ok {
			n.log.Debug("dht_lookup round", "goal", goal, "best_dist", bestDist,
				"queue_size", len(pq.Items()), "next_candidate", closest.node.ID)
		}

		batch := n.nextBatch(pq, queried)
		if len(batch) == 0 {
			break
		}

		g, gctx := errgroup.WithContext(ctx)
		replies := make([]DHTLookupReply, len(batch))
		ok := make([]bool, len(batch))

		for i, c := range batch {
			i, c := i, c
			g.Go(func() error {
				res, err := n.sendViaRoute(gctx, c.node.ID, c.node.Route, DHTLookup{Goal: goal, PathTo: c.node.Route})
				if err != nil {
					n.log.Debug("lookup probe failed", "peer", c.node.ID, "err", err)
					return nil
				}
				reply, okType := res.Data.(DHTLookupReply)
				if !okType {
					return nil
				}
				replies[i], ok[i] = reply, true
				return nil
			})
		}
		_ = g.Wait() // individual probe failures are swallowed above, not fatal to the round

		improved := false
		for i, c := range batch {
			if !ok[i] {
				continue
			}
			learned := append([]kademlia.DHTNode{{ID: c.node.ID, Route: c.node.Route}}, mergeRoutedNodes(c.node.Route, c.node.ID, replies[i].Nodes)...)
			n.mergeIntoTable(ctx, learned)

			for _, dn := range learned {
				if dn.ID == n.ID {
					continue
				}
				if _, seen := queried.Get(dn.ID); seen {
					continue
				}
				d := id.XOR(dn.ID, goal)
				pq.Enqueue(candidate{node: dn, dist: d})
				if d < bestDist {
					best, bestDist, improved = dn, d, true
				}
			}
		}

		if !improved && !init {
			break
		}
		init = false
	}

	return best, bestDist.IsZero()
}

// nextBatch dequeues up to LookupAlpha not-yet-queried candidates,
// marking each queried so no candidate is probed twice within one
// dhtLookup call. The queried set is local to that call: separate
// lookups (a tick's random lookup and the bootstrap lookup) each keep
// their own set and may probe the same peer.
func (n *Node) nextBatch(pq *heap.PriorityQueue[candidate], queried *syncmap.Map[id.ID, struct{}]) []candidate {
	batch := make([]candidate, 0, n.cfg.LookupAlpha)
	for len(batch) < n.cfg.LookupAlpha {
		c, ok := pq.Dequeue()
		if !ok {
			break
		}
		if queried.MarkIfAbsent(c.node.ID, struct{}{}) {
			batch = append(batch, c)
		}
	}
	return batch
}
