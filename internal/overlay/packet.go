// Package overlay implements the routed-packet substrate, the per-node
// DHT service and iterative lookup, the node actor, and the simulation
// driver (World): components C through G.
package overlay

import (
	"github.com/prax-labs/overlaysim/internal/id"
	"github.com/prax-labs/overlaysim/internal/route"
)

// Connection is the edge metadata SPEC_FULL.md's NeighbourData carries:
// consumed only by the NC collaborator, never by routing, which is
// latency/loss-blind.
type Connection struct {
	LatencyMillis float64
	Bandwidth     float64
	PacketLoss    float64
}

// NeighbourData is a directly-wired peer: the actor handle, its id, and
// the Connection metadata of the edge to it.
type NeighbourData struct {
	ID         id.ID
	Handle     *Node
	Connection Connection
}

// Packet carries a typed payload along an explicit source route. Route
// excludes both From and Des; the last element is the next hop. The
// canonical design collapses the source's generic Packet<T> into a
// single concrete envelope whose Data field holds one of a small set of
// request payload types (Ping, FindNode, FindValue, DHTLookup),
// dispatched by type switch rather than by a generic Process method —
// see DESIGN.md's note on parameter sprawl. Replies travel back on the
// caller's result channel; HelloNode is delivered through the node's
// inbox, not as a packet payload.
type Packet struct {
	From  id.ID
	Des   id.ID
	Route route.Route
	Data  any

	// TraversedRoute accumulates the hops this packet has actually
	// passed through, in travel order, one append per forwarding hop.
	// It is how a destination learns a route back to From — Route itself
	// is consumed (popped) as the packet advances, so by the time a
	// packet reaches its destination Route is empty and only
	// TraversedRoute still carries the path.
	TraversedRoute route.Route
}

// FullRoute yields Route with Des appended, the complete hop list from
// sender to destination.
func (p Packet) FullRoute() route.Route {
	return p.Route.Append(p.Des)
}

// Reverse swaps From/Des and reverses Route; Data is left unset, as the
// reversed packet always carries a new reply payload (reverse is
// involutive only "modulo payload", per the testable properties).
func (p Packet) Reverse() Packet {
	return Packet{From: p.Des, Des: p.From, Route: p.Route.Reversed()}
}

// Payload kinds exchanged between nodes. Each is processed by the
// destination node's processDestination, which is the pure per-type
// handler SPEC_FULL.md's PacketData capability names.

// Ping carries no data; on_ping merely learns the sender.
type Ping struct{}

// PingReply acknowledges a Ping.
type PingReply struct{}

// FindNode asks the destination for its closest known nodes to Target.
type FindNode struct {
	Target id.ID
}

// FindNodeReply carries the destination's answer to a FindNode.
type FindNodeReply struct {
	Nodes []RoutedNode
}

// FindValue asks the destination for Key, which it may have stored
// locally, or else its closest known nodes to Key.
type FindValue struct {
	Key id.ID
}

// FindValueReply carries either a stored value or a list of closer
// nodes, matching on_find_value's two outcomes.
type FindValueReply struct {
	Found bool
	Value []byte
	Nodes []RoutedNode
}

// DHTLookup drives one hop of an iterative lookup: Goal is the target
// identifier, PathTo is the route the issuing node believes reaches the
// hop it is addressing.
type DHTLookup struct {
	Goal   id.ID
	PathTo route.Route
}

// DHTLookupReply answers a DHTLookup with the destination's closest
// known nodes to Goal, exactly as FindNodeReply does. Processing the two
// is identical on the peer side, wired through the same handler; the
// lookup stops on the caller's side once a reply names Goal itself.
type DHTLookupReply struct {
	Nodes []RoutedNode
}

// RoutedNode is a DHTNode as observed over the wire: an id plus the
// route the replying node believes reaches it, relative to the replier.
// The receiver must extend Route by its own observed round-trip route
// back to the replier before merging into its local table (see
// dht_lookup step 4).
type RoutedNode struct {
	ID    id.ID
	Route route.Route
}

// HelloNode wires a new directly-connected neighbour. Idempotent under
// PeerID; if Reply is false the receiver answers with a mirrored
// HelloNode{Reply: true} so the handshake converges in one round trip.
type HelloNode struct {
	PeerID     id.ID
	PeerHandle *Node
	Connection Connection
	Reply      bool
}
