package overlay

import (
	"sync"

	"github.com/prax-labs/overlaysim/internal/id"
	"github.com/prax-labs/overlaysim/internal/kademlia"
	"github.com/prax-labs/overlaysim/internal/route"
)

// DHTService is the per-node Kademlia service: a routing table plus the
// tiny local key/value store the local find_value hook is allowed to
// serve (SPEC_FULL.md §C.1 — no network fan-out, no TTL).
//
// A DHTService is owned by exactly one Node and is only ever touched
// from that Node's own worker goroutine (its Run loop, or a helper it
// calls synchronously); nothing here takes a lock over the table itself.
// The small sync.RWMutex below guards only the local k/v store, which
// external callers (e.g. a test harness calling Store from outside the
// owning goroutine) may legitimately touch.
type DHTService struct {
	nodeID      id.ID
	table       *kademlia.Table
	cleanNeeded bool

	storeMu sync.RWMutex
	data    map[id.ID][]byte
}

// NewDHTService constructs the service for nodeID with a table of the
// given bucket capacity and hash size.
func NewDHTService(nodeID id.ID, bucketSize, hashSize int) *DHTService {
	return &DHTService{
		nodeID: nodeID,
		table:  kademlia.New(nodeID, bucketSize, hashSize),
		data:   make(map[id.ID][]byte),
	}
}

// Table exposes the underlying routing table for the lookup driver and
// for tests.
func (d *DHTService) Table() *kademlia.Table { return d.table }

// CleanNeeded reports whether a bucket rejected an update while full,
// and clears the flag. The driver's stale-probe loop consumes this to
// decide when to run PopOldest.
func (d *DHTService) CleanNeeded() bool {
	v := d.cleanNeeded
	d.cleanNeeded = false
	return v
}

// Update implements the service-level update: a no-op for a self-id,
// otherwise forwarded to the table, with the clean-needed signal latched
// for later consumption.
func (d *DHTService) Update(n kademlia.DHTNode) {
	if n.ID == d.nodeID {
		return
	}
	_, clean := d.table.Update(n)
	if clean {
		d.cleanNeeded = true
	}
}

// OnPing implements on_ping: learn sender, acknowledge.
func (d *DHTService) OnPing(sender kademlia.DHTNode) bool {
	d.Update(sender)
	return true
}

// OnFindNode implements on_find_node: answer with the closest known
// nodes to target, then learn sender.
func (d *DHTService) OnFindNode(sender kademlia.DHTNode, target id.ID, maxNodeCount int) []kademlia.DHTNode {
	closest := d.table.Find(target, maxNodeCount)
	d.Update(sender)
	return closest
}

// OnFindValue implements on_find_value: if key is stored locally, return
// it; otherwise behave exactly as OnFindNode against key.
func (d *DHTService) OnFindValue(sender kademlia.DHTNode, key id.ID, maxNodeCount int) (value []byte, closest []kademlia.DHTNode) {
	d.storeMu.RLock()
	v, ok := d.data[key]
	d.storeMu.RUnlock()

	d.Update(sender)

	if ok {
		return v, nil
	}
	return nil, d.table.Find(key, maxNodeCount)
}

// Store inserts a value under key in the local-only store the find_value
// hook serves. There is no replication, no TTL, and no network fan-out —
// an explicit Non-goal.
func (d *DHTService) Store(key id.ID, value []byte) {
	d.storeMu.Lock()
	d.data[key] = append([]byte(nil), value...)
	d.storeMu.Unlock()
}

// PopOldest removes and returns every full bucket's oldest entry, used
// by the node's stale-node reaping (which pings them) when CleanNeeded
// is set.
func (d *DHTService) PopOldest() []kademlia.DHTNode { return d.table.PopOldest() }

// mergeRoutedNodes composes a lookup reply's RoutedNode list (routes
// relative to the replying peer) into table-ready DHTNodes relative to
// this service's owner, by prepending the caller's own path to the
// replier in front of each entry's relative route — see dht_lookup step
// 4 and composeRoute below.
func mergeRoutedNodes(pathToReplier route.Route, replierID id.ID, nodes []RoutedNode) []kademlia.DHTNode {
	out := make([]kademlia.DHTNode, 0, len(nodes))
	for _, n := range nodes {
		if n.ID == replierID {
			// A peer should never list itself; guard defensively
			// rather than let a malformed reply corrupt the table.
			continue
		}
		out = append(out, kademlia.DHTNode{
			ID:    n.ID,
			Route: composeRoute(pathToReplier, replierID, n.Route),
		})
	}
	return out
}

// composeRoute concatenates "path from holder to the replier" with
// "path from the replier to some further node", producing a route
// relative to the holder. Route's last element is always the next hop
// from whoever holds it, so the replier-relative suffix is placed ahead
// of the holder-relative prefix in the underlying array, with the
// replier itself spliced in between the two: the replier is an
// intermediate hop of the composed route even though it is an excluded
// endpoint of both halves being stitched together. Stitching routes
// this way can reintroduce a node the holder already passed through
// (the replier's path back out crosses the holder's own path in), so
// the result is simplified before it is trusted, per dht_lookup step
// 4's "optionally simplifying the composed route".
func composeRoute(pathToReplier route.Route, replierID id.ID, replierToTarget route.Route) route.Route {
	out := make(route.Route, 0, len(pathToReplier)+len(replierToTarget)+1)
	out = append(out, replierToTarget...)
	out = append(out, replierID)
	out = append(out, pathToReplier...)
	return route.Simplify(out)
}
