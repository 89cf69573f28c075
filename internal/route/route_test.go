package route

import (
	"reflect"
	"testing"

	"github.com/prax-labs/overlaysim/internal/id"
)

func ids(vs ...uint64) Route {
	r := make(Route, len(vs))
	for i, v := range vs {
		r[i] = id.ID(v)
	}
	return r
}

func TestSimplify(t *testing.T) {
	tests := []struct {
		name string
		in   Route
		want Route
	}{
		{"cycle in middle", ids(1, 2, 3, 2, 4), ids(1, 2, 4)},
		{"no cycle", ids(1, 2, 3), ids(1, 2, 3)},
		{"immediate repeat", ids(1, 1), ids(1)},
		{"empty", ids(), ids()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Simplify(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Simplify(%v) = %v, want %v", tt.in, got, tt.want)
			}
			if !HasNoRepeat(got) {
				t.Errorf("Simplify(%v) result %v still has repeats", tt.in, got)
			}
		})
	}
}

func TestSimplifyIdempotent(t *testing.T) {
	in := ids(5, 1, 2, 3, 2, 4, 1, 6)
	once := Simplify(in)
	twice := Simplify(once)
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("Simplify not idempotent: once=%v twice=%v", once, twice)
	}
}

func TestReversedInvolution(t *testing.T) {
	r := ids(1, 2, 3, 4)
	if got := r.Reversed().Reversed(); !reflect.DeepEqual(got, r) {
		t.Errorf("Reversed twice = %v, want %v", got, r)
	}
}

func TestNextHop(t *testing.T) {
	r := ids(1, 2, 3)
	hop, rest, ok := r.NextHop()
	if !ok || hop != id.ID(3) || !reflect.DeepEqual(rest, ids(1, 2)) {
		t.Fatalf("NextHop() = %v, %v, %v", hop, rest, ok)
	}

	_, _, ok = Route{}.NextHop()
	if ok {
		t.Fatalf("NextHop() on empty route should fail")
	}
}
