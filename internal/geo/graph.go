// Package geo implements the geographic graph generator external
// collaborator: it places nodes in a 2D region across a hierarchy of
// levels and wires intra-level and upstream edges by nearest-neighbour
// distance. No example in the corpus pulls in an R-tree or other spatial
// index library, so this does a brute-force O(n) scan per placed node
// against its own level and the level above — acceptable at the node
// counts a single process can host, and noted as a stdlib-only
// component in the design ledger.
package geo

import (
	"math"
	"math/rand/v2"
	"sort"

	"github.com/prax-labs/overlaysim/internal/config"
	"github.com/prax-labs/overlaysim/internal/id"
)

// Connection is the edge metadata attached at generation time: a
// distance-derived latency plus the configured nominal loss and
// bandwidth. It is intentionally a separate type from overlay.Connection
// — this package has no dependency on the overlay runtime, matching its
// role as an external collaborator behind a minimal interface.
type Connection struct {
	LatencyMillis float64
	Bandwidth     float64
	PacketLoss    float64
}

// Point is a 2D placement.
type Point struct{ X, Y float64 }

// Node is one graph vertex: an identifier, its level, its placement, and
// the worker thread it is affined to (inherited from its chosen
// upstream, or round-robin assigned at the core level).
type Node struct {
	ID     id.ID
	Level  int
	Pos    Point
	Thread int
}

// Edge is a directed wire between two node indices. Intra-level edges
// and upstream edges are both represented this way; World issues a
// HelloNode in both directions for every edge once both endpoints have
// spawned.
type Edge struct {
	From, To int
	Conn     Connection
	Upstream bool
}

// Graph is the static output of Generate: World treats it as read-only
// for the remainder of the run.
type Graph struct {
	Nodes []Node
	Edges []Edge
}

func dist(a, b Point) float64 {
	dx, dy := a.X-b.X, a.Y-b.Y
	return math.Sqrt(dx*dx + dy*dy)
}

func connectionFor(cfg config.Config, a, b Point) Connection {
	return Connection{
		LatencyMillis: dist(a, b) / cfg.LatencyDivisor,
		Bandwidth:     cfg.ConnectionBandwidth,
		PacketLoss:    cfg.ConnectionLoss,
	}
}

func randPoint(cfg config.Config) Point {
	span := cfg.AreaMax - cfg.AreaMin
	return Point{
		X: cfg.AreaMin + rand.Float64()*span,
		Y: cfg.AreaMin + rand.Float64()*span,
	}
}

func randID(cfg config.Config, seen map[id.ID]bool) id.ID {
	for {
		candidate := id.Gen(cfg.HashSize)
		if !candidate.IsZero() && !seen[candidate] {
			seen[candidate] = true
			return candidate
		}
	}
}

// sampleUpstreamCount picks one of cfg.UpstreamCounts, weighted by the
// matching entry of cfg.UpstreamWeights.
func sampleUpstreamCount(cfg config.Config) int {
	total := 0
	for _, w := range cfg.UpstreamWeights {
		total += w
	}
	r := rand.IntN(total)
	for i, w := range cfg.UpstreamWeights {
		if r < w {
			return cfg.UpstreamCounts[i]
		}
		r -= w
	}
	return cfg.UpstreamCounts[len(cfg.UpstreamCounts)-1]
}

// levelCounts computes the per-level node count: level 0 is
// cfg.Core*cfg.Spread[0] (Spread[0] seeds the core), each deeper level
// multiplies the previous level's count by its own Spread entry.
func levelCounts(cfg config.Config) []int {
	counts := make([]int, cfg.Levels)
	counts[0] = cfg.Core * cfg.Spread[0]
	for i := 1; i < cfg.Levels; i++ {
		counts[i] = counts[i-1] * cfg.Spread[i]
	}
	return counts
}

// nearest returns the up-to-k graph node indices, taken from candidates,
// whose points are closest to from, ascending by distance. candidates is
// a list of graph node indices to search among.
func nearest(nodes []Node, from Point, candidates []int, k int) []int {
	type scored struct {
		idx int
		d   float64
	}
	scoredList := make([]scored, len(candidates))
	for i, c := range candidates {
		scoredList[i] = scored{idx: c, d: dist(from, nodes[c].Pos)}
	}
	sort.Slice(scoredList, func(i, j int) bool { return scoredList[i].d < scoredList[j].d })

	if k > len(scoredList) {
		k = len(scoredList)
	}
	out := make([]int, k)
	for i := 0; i < k; i++ {
		out[i] = scoredList[i].idx
	}
	return out
}

// Generate builds the static hierarchical graph: a fully-meshed core at
// level 0, Spread-multiplied populations at each deeper level, Conn[level]
// intra-level nearest-neighbour edges per node, and a weighted-sampled
// count of upstream edges to the nearest previous-level nodes. A node's
// worker thread is inherited from its first upstream link; core nodes
// are assigned round-robin.
func Generate(cfg config.Config) *Graph {
	counts := levelCounts(cfg)
	g := &Graph{}
	seenIDs := make(map[id.ID]bool)

	levelStart := make([]int, cfg.Levels)
	for level, count := range counts {
		levelStart[level] = len(g.Nodes)
		for i := 0; i < count; i++ {
			g.Nodes = append(g.Nodes, Node{
				ID:    randID(cfg, seenIDs),
				Level: level,
				Pos:   randPoint(cfg),
			})
		}
	}

	// Core: fully meshed, round-robin thread affinity.
	core := indexRange(levelStart[0], counts[0])
	for i, a := range core {
		g.Nodes[a].Thread = i % max(1, cfg.WorkerCount)
		for _, b := range core {
			if a == b {
				continue
			}
			g.Edges = append(g.Edges, Edge{From: a, To: b, Conn: connectionFor(cfg, g.Nodes[a].Pos, g.Nodes[b].Pos)})
		}
	}

	for level := 1; level < cfg.Levels; level++ {
		cur := indexRange(levelStart[level], counts[level])
		prev := indexRange(levelStart[level-1], counts[level-1])
		connCount := safeIndex(cfg.Conn, level)

		for _, a := range cur {
			upCount := sampleUpstreamCount(cfg)
			ups := nearest(g.Nodes, g.Nodes[a].Pos, prev, upCount)
			for i, u := range ups {
				if i == 0 {
					g.Nodes[a].Thread = g.Nodes[u].Thread
				}
				g.Edges = append(g.Edges, Edge{From: u, To: a, Conn: connectionFor(cfg, g.Nodes[u].Pos, g.Nodes[a].Pos), Upstream: true})
				g.Edges = append(g.Edges, Edge{From: a, To: u, Conn: connectionFor(cfg, g.Nodes[a].Pos, g.Nodes[u].Pos), Upstream: true})
			}

			peers := nearest(g.Nodes, g.Nodes[a].Pos, withoutSelf(cur, a), connCount)
			for _, p := range peers {
				g.Edges = append(g.Edges, Edge{From: a, To: p, Conn: connectionFor(cfg, g.Nodes[a].Pos, g.Nodes[p].Pos)})
			}
		}
	}

	return g
}

func indexRange(start, count int) []int {
	out := make([]int, count)
	for i := range out {
		out[i] = start + i
	}
	return out
}

func withoutSelf(idxs []int, self int) []int {
	out := make([]int, 0, len(idxs)-1)
	for _, i := range idxs {
		if i != self {
			out = append(out, i)
		}
	}
	return out
}

func safeIndex(xs []int, i int) int {
	if i < 0 || i >= len(xs) {
		return xs[len(xs)-1]
	}
	return xs[i]
}
