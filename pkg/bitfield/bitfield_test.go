package bitfield

import "testing"

func TestFirstUnsetSkipsSetBits(t *testing.T) {
	bf := New(10)
	bf.Set(0)
	bf.Set(1)
	bf.Set(2)

	if got := bf.FirstUnset(0); got != 3 {
		t.Fatalf("FirstUnset(0) = %d, want 3", got)
	}
	if got := bf.FirstUnset(3); got != 3 {
		t.Fatalf("FirstUnset(3) = %d, want 3", got)
	}
}

func TestFirstUnsetAllSetReturnsMinusOne(t *testing.T) {
	bf := New(8)
	for i := 0; i < bf.Len(); i++ {
		bf.Set(i)
	}
	if got := bf.FirstUnset(0); got != -1 {
		t.Fatalf("FirstUnset(0) on a full bitfield = %d, want -1", got)
	}
}

func TestFirstUnsetStartPastLenReturnsMinusOne(t *testing.T) {
	bf := New(4)
	if got := bf.FirstUnset(100); got != -1 {
		t.Fatalf("FirstUnset(100) = %d, want -1", got)
	}
}
