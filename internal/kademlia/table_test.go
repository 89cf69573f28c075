package kademlia

import (
	"testing"

	"github.com/prax-labs/overlaysim/internal/id"
)

func TestTablePlacement(t *testing.T) {
	tbl := New(0x00, 32, 8)

	if inserted, _ := tbl.Update(node(0x01)); !inserted {
		t.Fatalf("expected insert of 0x01 to succeed")
	}
	if got := tbl.buckets[0].All(); len(got) != 1 || got[0].ID != id.ID(0x01) {
		t.Fatalf("0x01 not placed in bucket 0: %v", got)
	}

	if inserted, _ := tbl.Update(node(0x80)); !inserted {
		t.Fatalf("expected insert of 0x80 to succeed")
	}
	if got := tbl.buckets[7].All(); len(got) != 1 || got[0].ID != id.ID(0x80) {
		t.Fatalf("0x80 not placed in bucket 7: %v", got)
	}
}

func TestTableSelfUpdatePanics(t *testing.T) {
	tbl := New(0x00, 32, 8)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected Update(this_id) to panic")
		}
	}()
	tbl.Update(node(0x00))
}

func TestTableOutOfRangeBucketPanics(t *testing.T) {
	tbl := New(0x00, 32, 4) // hash_size 4: only bits 1..4 are valid

	defer func() {
		if recover() == nil {
			t.Fatalf("expected out-of-range bucket index to panic")
		}
	}()
	tbl.Update(node(0x80)) // bits(0x80)=8, bucket index 7 >= hash_size 4
}

func TestTableFindMonotonicity(t *testing.T) {
	tbl := New(0x40, 32, 64)
	for _, v := range []uint64{0b1001, 0b1110, 0b0000, 0b1011, 0b0101} {
		tbl.Update(node(v))
	}

	got := tbl.Find(id.ID(0b1000), 3)
	if len(got) != 3 {
		t.Fatalf("Find returned %d entries, want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		prev := id.XOR(got[i-1].ID, id.ID(0b1000))
		cur := id.XOR(got[i].ID, id.ID(0b1000))
		if cur < prev {
			t.Fatalf("Find not monotonic at %d: %v then %v", i, prev, cur)
		}
	}
}

func TestTableFindTruncatesToAvailable(t *testing.T) {
	tbl := New(0x00, 32, 64)
	tbl.Update(node(1))
	tbl.Update(node(2))

	got := tbl.Find(id.ID(0), 16)
	if len(got) != 2 {
		t.Fatalf("Find() = %d entries, want min(16,2)=2", len(got))
	}
}

func TestTableCleanNeededSignal(t *testing.T) {
	tbl := New(0x00, 1, 8) // capacity 1 per bucket

	// 4 and 5 both have bits()=3, so both map to bucket index 2.
	if inserted, clean := tbl.Update(node(4)); !inserted || clean {
		t.Fatalf("first insert into bucket 2 should succeed without clean-needed")
	}

	inserted, clean := tbl.Update(node(5))
	if inserted {
		t.Fatalf("second insert into a full bucket should be rejected")
	}
	if !clean {
		t.Fatalf("rejected insert into a full bucket should signal clean-needed")
	}
}
