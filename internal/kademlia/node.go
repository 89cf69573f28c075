// Package kademlia implements the per-node XOR-metric routing table: a
// fixed number of LRU-ordered k-buckets indexed by the bit-length of the
// XOR distance to the local identifier.
package kademlia

import (
	"sort"

	"github.com/prax-labs/overlaysim/internal/id"
	"github.com/prax-labs/overlaysim/internal/route"
)

// DHTNode is an entry in a node table: a remote identifier paired with
// the currently-best-known route to it. The route is local to whichever
// table holds the entry, not globally canonical, and is freely copied.
type DHTNode struct {
	ID    id.ID
	Route route.Route
}

// Equal compares DHTNodes by id only, per the data model's equality
// rule.
func (n DHTNode) Equal(other DHTNode) bool { return n.ID == other.ID }

// Clone returns an independent copy, including an independent copy of
// the route slice.
func (n DHTNode) Clone() DHTNode {
	return DHTNode{ID: n.ID, Route: n.Route.Clone()}
}

// sortByDistance sorts nodes ascending by XOR distance to target,
// in-place.
func sortByDistance(nodes []DHTNode, target id.ID) {
	sort.Slice(nodes, func(i, j int) bool {
		return id.XOR(nodes[i].ID, target) < id.XOR(nodes[j].ID, target)
	})
}
