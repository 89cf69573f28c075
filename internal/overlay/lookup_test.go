package overlay

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prax-labs/overlaysim/internal/config"
	"github.com/prax-labs/overlaysim/internal/id"
	"github.com/prax-labs/overlaysim/internal/kademlia"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	if !cond() {
		t.Fatalf("condition not met within %s", timeout)
	}
}

// TestLookupBootstrapTwoNodeWorld implements the two-node bootstrap
// scenario: direct neighbours A and B, A seeded with B in its table.
// After one Tick on A, A's random lookup reaches B via a DHTLookup
// packet; B's on_find_node answers with [A] (A is the only node B
// knows); A merges nothing new since the only candidate returned is
// itself.
func TestLookupBootstrapTwoNodeWorld(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.DefaultConfig()
	cfg.TickProbability = 1 // force the neighbour probe on every tick
	cfg.LookupAlpha = 1
	log := testLogger()

	w := NewWorld(cfg, log)

	a := NewNode(w, id.ID(0xA), 0, cfg, log)
	b := NewNode(w, id.ID(0xB), 1, cfg, log)
	go a.Run(ctx)
	go b.Run(ctx)

	conn := Connection{LatencyMillis: 1}
	if err := a.SayHello(ctx, b.ID, b, conn, false); err != nil {
		t.Fatalf("SayHello(a->b) failed: %v", err)
	}
	waitFor(t, time.Second, func() bool {
		_, ok := b.lookupNeighbour(a.ID)
		return ok
	})

	a.dht.Update(kademlia.DHTNode{ID: b.ID})

	if err := a.Tick(ctx); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		found := b.dht.Table().Find(a.ID, 1)
		return len(found) == 1 && found[0].ID == a.ID
	})

	// A's table should contain no id besides b: the only candidate B
	// could return is A itself, which dhtLookup/mergeRoutedNodes must
	// filter out.
	all := a.dht.Table().Find(id.ID(0), 16)
	for _, n := range all {
		if n.ID != b.ID {
			t.Fatalf("A learned an unexpected node %v from a two-node world", n.ID)
		}
	}
}

// TestLookupThreeHopChainLearnsIntermediateRoute chains three nodes
// A-B-C with no direct edge between A and C. A only knows B; B knows
// both A and C as direct neighbours (empty routes in B's own table).
// A DHTLookup for C's id must resolve through B, and the route A
// learns for C must name B as the sole intermediate hop rather than
// collapsing to an empty route that would misresolve C as one of A's
// own direct neighbours (the inconsistency a maintainer review flagged
// between Table.Update-seeded entries and TraversedRoute-learned ones).
func TestLookupThreeHopChainLearnsIntermediateRoute(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.DefaultConfig()
	cfg.LookupAlpha = 1
	log := testLogger()

	w := NewWorld(cfg, log)

	a := NewNode(w, id.ID(0xA), 0, cfg, log)
	b := NewNode(w, id.ID(0xB), 1, cfg, log)
	c := NewNode(w, id.ID(0xC), 2, cfg, log)
	go a.Run(ctx)
	go b.Run(ctx)
	go c.Run(ctx)

	conn := Connection{LatencyMillis: 1}
	if err := a.SayHello(ctx, b.ID, b, conn, false); err != nil {
		t.Fatalf("SayHello(a->b) failed: %v", err)
	}
	if err := b.SayHello(ctx, c.ID, c, conn, false); err != nil {
		t.Fatalf("SayHello(b->c) failed: %v", err)
	}
	waitFor(t, time.Second, func() bool {
		_, okA := b.lookupNeighbour(a.ID)
		_, okC := b.lookupNeighbour(c.ID)
		return okA && okC
	})

	// Seed B's table with both its direct neighbours, and A's table
	// with only B — A has never heard of C yet.
	b.dht.Update(kademlia.DHTNode{ID: a.ID})
	b.dht.Update(kademlia.DHTNode{ID: c.ID})
	a.dht.Update(kademlia.DHTNode{ID: b.ID})

	found, ok := a.dhtLookup(ctx, c.ID, []kademlia.DHTNode{{ID: b.ID}}, false)
	if !ok || found.ID != c.ID {
		t.Fatalf("dhtLookup(c.ID) = %v, %v, want c.ID found", found, ok)
	}
	if len(found.Route) != 1 || found.Route[0] != b.ID {
		t.Fatalf("dhtLookup learned route %v for C, want single hop through B (%v)", found.Route, b.ID)
	}

	// sendViaRoute must actually be able to use the learned route: A
	// has no direct neighbour C, so this only works if the route
	// correctly names B as the first (and only) hop.
	if _, err := a.sendViaRoute(ctx, c.ID, found.Route, Ping{}); err != nil {
		t.Fatalf("sendViaRoute using the learned multi-hop route failed: %v", err)
	}
}
