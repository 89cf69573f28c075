package overlay

import (
	"testing"

	"github.com/prax-labs/overlaysim/internal/id"
	"github.com/prax-labs/overlaysim/internal/route"
)

func TestFullRoute(t *testing.T) {
	p := Packet{From: id.ID(1), Des: id.ID(4), Route: route.Route{id.ID(3), id.ID(2)}}

	got := p.FullRoute()
	want := route.Route{id.ID(3), id.ID(2), id.ID(4)}
	if !got.Equal(want) {
		t.Fatalf("FullRoute() = %v, want %v", got, want)
	}
}

// TestReverseInvolution checks reverse(reverse(p)) = p "modulo payload":
// From/Des and Route round-trip exactly, Data is not carried across
// (the reversed packet always holds a fresh reply payload in practice).
func TestReverseInvolution(t *testing.T) {
	p := Packet{From: id.ID(1), Des: id.ID(9), Route: route.Route{id.ID(2), id.ID(3)}}

	once := p.Reverse()
	twice := once.Reverse()

	if twice.From != p.From || twice.Des != p.Des {
		t.Fatalf("reverse^2 endpoints = (%v,%v), want (%v,%v)", twice.From, twice.Des, p.From, p.Des)
	}
	if !twice.Route.Equal(p.Route) {
		t.Fatalf("reverse^2 route = %v, want %v", twice.Route, p.Route)
	}
}
