// Package nc implements the network-coordinate collaborator: a per-node
// pair of fixed-dimension vectors updated by a clipped stochastic
// gradient step. It is deliberately isolated — a State never reads
// another node's vectors, and the core that drives it only supplies a
// measured latency and a learning rate.
package nc

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
)

// State holds one node's outgoing and incoming coordinate vectors.
type State struct {
	Outgoing []float64
	Incoming []float64
}

// NewState allocates a State of the given dimensionality, seeded with a
// small random vector so that two freshly created states don't start
// pinned to the same degenerate zero coordinate.
func NewState(dims int) *State {
	s := &State{
		Outgoing: make([]float64, dims),
		Incoming: make([]float64, dims),
	}
	for i := range s.Outgoing {
		s.Outgoing[i] = rand.Float64()*0.2 - 0.1
		s.Incoming[i] = rand.Float64()*0.2 - 0.1
	}
	return s
}

// Update applies one clipped SGD step given an observed round-trip
// latency and a learning rate: diff := clip(actualLatency - a·b, -2, 2);
// each component of the new a becomes b_i*lr*diff - |b_i|*0.01*lr, and
// symmetrically for the new b.
func (s *State) Update(actualLatency, lr float64) {
	s.Outgoing, s.Incoming = calcUpdate(s.Outgoing, s.Incoming, actualLatency, lr)
}

// Estimate returns the node's own predicted latency, a·b, for callers
// that want to compare it against a fresh measurement without mutating
// state.
func (s *State) Estimate() float64 {
	return floats.Dot(s.Outgoing, s.Incoming)
}

func calcUpdate(a, b []float64, actualLatency, lr float64) (newA, newB []float64) {
	diff := clip(actualLatency-floats.Dot(a, b), -2, 2)

	newA = make([]float64, len(a))
	newB = make([]float64, len(b))
	for i := range a {
		newA[i] = b[i]*lr*diff - math.Abs(b[i])*0.01*lr
		newB[i] = a[i]*lr*diff - math.Abs(a[i])*0.01*lr
	}
	return newA, newB
}

func clip(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
