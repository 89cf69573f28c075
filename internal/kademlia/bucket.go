package kademlia

import "github.com/prax-labs/overlaysim/internal/id"

// Bucket holds at most capacity DHTNode entries, oldest at the front,
// most-recently-updated at the back. It never holds a duplicate id.
//
// A Bucket is not safe for concurrent use; per the concurrency model, a
// node's table is mutated only from that node's own worker.
type Bucket struct {
	capacity int
	entries  []DHTNode
}

// NewBucket returns an empty bucket with the given capacity.
func NewBucket(capacity int) *Bucket {
	if capacity <= 0 {
		panic("kademlia: bucket capacity must be positive")
	}
	return &Bucket{capacity: capacity, entries: make([]DHTNode, 0, capacity)}
}

// Len returns the number of entries currently held.
func (b *Bucket) Len() int { return len(b.entries) }

// IsFull reports whether the bucket is at capacity.
func (b *Bucket) IsFull() bool { return len(b.entries) == b.capacity }

// All returns a copy of the bucket's entries, oldest first.
func (b *Bucket) All() []DHTNode {
	out := make([]DHTNode, len(b.entries))
	copy(out, b.entries)
	return out
}

// indexOf returns the position of id n within the bucket, or -1.
func (b *Bucket) indexOf(n DHTNode) int {
	for i, e := range b.entries {
		if e.Equal(n) {
			return i
		}
	}
	return -1
}

// Update implements the k-bucket update contract: if n's id is already
// present, the existing entry is removed and n appended (move-to-back);
// if the bucket has room, n is appended; otherwise the bucket is
// unchanged and Update returns false.
func (b *Bucket) Update(n DHTNode) bool {
	if i := b.indexOf(n); i >= 0 {
		b.entries = append(b.entries[:i], b.entries[i+1:]...)
		b.entries = append(b.entries, n)
		return true
	}

	if len(b.entries) < b.capacity {
		b.entries = append(b.entries, n)
		return true
	}

	return false
}

// Remove deletes the entry with the given id, if present, and reports
// whether anything was removed.
func (b *Bucket) Remove(n id.ID) bool {
	for i, e := range b.entries {
		if e.ID == n {
			b.entries = append(b.entries[:i], b.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Oldest returns the front (least-recently-updated) entry, if any.
func (b *Bucket) Oldest() (DHTNode, bool) {
	if len(b.entries) == 0 {
		return DHTNode{}, false
	}
	return b.entries[0], true
}

// PopOldest removes and returns the front entry, if the bucket is full.
// Used by the driver to probe stale nodes without growing past capacity.
func (b *Bucket) PopOldest() (DHTNode, bool) {
	if !b.IsFull() {
		return DHTNode{}, false
	}
	oldest := b.entries[0]
	b.entries = b.entries[1:]
	return oldest, true
}

// Find returns up to count entries sorted ascending by XOR distance to
// target.
func (b *Bucket) Find(target id.ID, count int) []DHTNode {
	out := make([]DHTNode, len(b.entries))
	copy(out, b.entries)
	sortByDistance(out, target)

	if count >= 0 && count < len(out) {
		out = out[:count]
	}
	return out
}
