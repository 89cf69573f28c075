// Package route implements the source-route type shared by the packet
// substrate and the Kademlia node table: an ordered hop list consumed
// from the tail as a packet advances, plus the cycle-elimination pass
// applied to any observed hop sequence before it is trusted.
package route

import "github.com/prax-labs/overlaysim/internal/id"

// Route is the ordered sequence of hop identifiers from a holder to some
// other node, read head-to-tail as source-to-destination minus the
// endpoints themselves. The last element is the next hop.
type Route []id.ID

// Clone returns an independent copy.
func (r Route) Clone() Route {
	out := make(Route, len(r))
	copy(out, r)
	return out
}

// Reversed returns a new route with hop order reversed; it does not
// mutate r.
func (r Route) Reversed() Route {
	out := make(Route, len(r))
	for i, hop := range r {
		out[len(r)-1-i] = hop
	}
	return out
}

// NextHop returns the tail of the route (the next hop to forward to) and
// the route with that hop popped. ok is false if the route is empty.
func (r Route) NextHop() (hop id.ID, rest Route, ok bool) {
	if len(r) == 0 {
		return id.Zero, nil, false
	}
	last := len(r) - 1
	return r[last], r[:last], true
}

// Append extends the route with an additional hop at the tail, returning
// a new route.
func (r Route) Append(hop id.ID) Route {
	out := make(Route, len(r), len(r)+1)
	copy(out, r)
	return append(out, hop)
}

// Equal reports whether two routes name the same hops in the same order.
func (r Route) Equal(other Route) bool {
	if len(r) != len(other) {
		return false
	}
	for i := range r {
		if r[i] != other[i] {
			return false
		}
	}
	return true
}

// Simplify removes cycles from r: scanning from the tail, it finds the
// last index j whose id first occurred at an earlier index i, returns
// r[0:i] ++ r[j:] for that pair, and repeats on the result until no id
// appears twice. A route without a repeated id is returned unchanged.
func Simplify(r Route) Route {
	firstSeen := make(map[id.ID]int, len(r))
	for i, hop := range r {
		if _, ok := firstSeen[hop]; !ok {
			firstSeen[hop] = i
		}
	}

	// Scan from the tail for the first id whose first occurrence lies
	// strictly before the current tail position; that marks the end of
	// an outermost cycle starting at its first occurrence.
	for j := len(r) - 1; j > 0; j-- {
		if i := firstSeen[r[j]]; i < j {
			out := make(Route, 0, i+1+(len(r)-j))
			out = append(out, r[:i+1]...)
			out = append(out, r[j+1:]...)
			return Simplify(out)
		}
	}

	return r
}

// HasNoRepeat reports whether every id in r is distinct, which Simplify's
// output must always satisfy.
func HasNoRepeat(r Route) bool {
	seen := make(map[id.ID]struct{}, len(r))
	for _, hop := range r {
		if _, ok := seen[hop]; ok {
			return false
		}
		seen[hop] = struct{}{}
	}
	return true
}
