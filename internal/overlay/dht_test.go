package overlay

import (
	"testing"

	"github.com/prax-labs/overlaysim/internal/id"
	"github.com/prax-labs/overlaysim/internal/kademlia"
	"github.com/prax-labs/overlaysim/internal/route"
)

func TestOnPingLearnsSender(t *testing.T) {
	d := NewDHTService(id.ID(0x00), 32, 8)
	sender := kademlia.DHTNode{ID: id.ID(0x01)}

	if ok := d.OnPing(sender); !ok {
		t.Fatalf("OnPing() = false, want true")
	}
	got := d.Table().Find(id.ID(0x01), 1)
	if len(got) != 1 || got[0].ID != sender.ID {
		t.Fatalf("table does not contain pinged sender: %v", got)
	}
}

func TestOnFindNodeReturnsClosestAndLearnsSender(t *testing.T) {
	d := NewDHTService(id.ID(0x00), 32, 8)
	d.Update(kademlia.DHTNode{ID: id.ID(0b1001)})
	d.Update(kademlia.DHTNode{ID: id.ID(0b1110)})

	sender := kademlia.DHTNode{ID: id.ID(0b0101)}
	got := d.OnFindNode(sender, id.ID(0b1000), 16)

	if len(got) != 2 {
		t.Fatalf("OnFindNode returned %d nodes, want 2", len(got))
	}

	learned := d.Table().Find(sender.ID, 1)
	if len(learned) != 1 || learned[0].ID != sender.ID {
		t.Fatalf("on_find_node should learn the sender: %v", learned)
	}
}

func TestOnFindValueLocalHit(t *testing.T) {
	d := NewDHTService(id.ID(0x00), 32, 8)
	d.Store(id.ID(0x42), []byte("hello"))

	val, nodes := d.OnFindValue(kademlia.DHTNode{ID: id.ID(0x01)}, id.ID(0x42), 16)
	if string(val) != "hello" {
		t.Fatalf("OnFindValue value = %q, want %q", val, "hello")
	}
	if nodes != nil {
		t.Fatalf("OnFindValue on a local hit should not also return closest nodes: %v", nodes)
	}
}

func TestOnFindValueMiss(t *testing.T) {
	d := NewDHTService(id.ID(0x00), 32, 8)
	d.Update(kademlia.DHTNode{ID: id.ID(0b1001)})

	val, nodes := d.OnFindValue(kademlia.DHTNode{ID: id.ID(0b0101)}, id.ID(0b1000), 16)
	if val != nil {
		t.Fatalf("OnFindValue on a miss should return nil value, got %v", val)
	}
	if len(nodes) != 1 {
		t.Fatalf("OnFindValue on a miss should fall back to closest nodes, got %v", nodes)
	}
}

func TestMergeRoutedNodesSkipsSelf(t *testing.T) {
	replierID := id.ID(0x02)
	nodes := []RoutedNode{
		{ID: replierID, Route: nil},
		{ID: id.ID(0x03), Route: route.Route{id.ID(0x02)}},
	}

	got := mergeRoutedNodes(route.Route{id.ID(0x02)}, replierID, nodes)
	if len(got) != 1 || got[0].ID != id.ID(0x03) {
		t.Fatalf("mergeRoutedNodes() = %v, want single entry 0x03", got)
	}
}

func TestComposeRoute(t *testing.T) {
	pathToReplier := route.Route{id.ID(1), id.ID(2)}
	replierToTarget := route.Route{id.ID(3), id.ID(4)}

	got := composeRoute(pathToReplier, id.ID(9), replierToTarget)
	want := route.Route{id.ID(3), id.ID(4), id.ID(9), id.ID(1), id.ID(2)}
	if !got.Equal(want) {
		t.Fatalf("composeRoute() = %v, want %v", got, want)
	}
}

// TestComposeRouteDirectNeighbours covers the case the inconsistent
// route encoding bug hid: a replier that is a direct neighbour of both
// the holder and the target (both halves empty) must still produce a
// one-hop route naming the replier, not an empty route implying the
// target is also a direct neighbour of the holder.
func TestComposeRouteDirectNeighbours(t *testing.T) {
	got := composeRoute(nil, id.ID(7), nil)
	want := route.Route{id.ID(7)}
	if !got.Equal(want) {
		t.Fatalf("composeRoute() = %v, want %v", got, want)
	}
}
