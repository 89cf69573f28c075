package kademlia

import (
	"fmt"

	"github.com/prax-labs/overlaysim/internal/id"
)

// Table is the per-node XOR-metric routing table: a fixed array of
// buckets indexed by bits(this_id XOR node_id) - 1.
//
// A Table is owned and mutated exclusively by the node it belongs to;
// nothing here takes a lock, matching the single-writer rule in
// SPEC_FULL.md's concurrency model.
type Table struct {
	thisID   id.ID
	hashSize int
	buckets  []*Bucket
}

// New constructs a table of hashSize empty buckets, each of the given
// capacity.
func New(thisID id.ID, capacity, hashSize int) *Table {
	buckets := make([]*Bucket, hashSize)
	for i := range buckets {
		buckets[i] = NewBucket(capacity)
	}
	return &Table{thisID: thisID, hashSize: hashSize, buckets: buckets}
}

// RandomID returns a random identifier within the table's hash size,
// suitable as a bootstrap or refresh probe target.
func (t *Table) RandomID() id.ID { return id.Gen(t.hashSize) }

// bucketIndex computes the destination bucket for a node id, panicking
// per the programming-invariant taxonomy if it would land outside the
// table (mismatched identifier widths) or if node equals the local id.
func (t *Table) bucketIndex(node id.ID) int {
	if node == t.thisID {
		panic("kademlia: table cannot hold its own id")
	}

	dist := id.XOR(t.thisID, node)
	b := dist.BucketIndex()
	if b < 0 || b >= t.hashSize {
		panic(fmt.Sprintf(
			"kademlia: bucket index %d out of range [0,%d) for distance %s",
			b, t.hashSize, dist,
		))
	}
	return b
}

// Update inserts or refreshes node, panicking on a self-update or an
// out-of-range bucket index. It returns whether the insert succeeded and
// whether the target bucket is now full and in need of a stale-node
// probe (the "clean-needed" signal consumed by the DHT service to
// schedule PopOldest).
func (t *Table) Update(node DHTNode) (inserted, cleanNeeded bool) {
	b := t.bucketIndex(node.ID)
	bucket := t.buckets[b]

	inserted = bucket.Update(node)
	cleanNeeded = !inserted && bucket.IsFull()
	return inserted, cleanNeeded
}

// Remove deletes node from whichever bucket it occupies, if present.
func (t *Table) Remove(node id.ID) bool {
	if node == t.thisID {
		return false
	}
	b := t.bucketIndex(node)
	return t.buckets[b].Remove(node)
}

// Find flattens every bucket, sorts by XOR distance to target, and
// truncates to count. This O(N) variant is the one SPEC_FULL.md
// sanctions over the closer-bucket walk, for simplicity.
func (t *Table) Find(target id.ID, count int) []DHTNode {
	all := make([]DHTNode, 0, t.hashSize)
	for _, bucket := range t.buckets {
		all = append(all, bucket.All()...)
	}

	sortByDistance(all, target)
	if count >= 0 && count < len(all) {
		all = all[:count]
	}
	return all
}

// PopOldest returns the oldest entry of every currently-full bucket,
// used by the driver to probe stale nodes. Callers re-insert entries
// whose probe succeeds and drop the rest.
func (t *Table) PopOldest() []DHTNode {
	var out []DHTNode
	for _, bucket := range t.buckets {
		if n, ok := bucket.PopOldest(); ok {
			out = append(out, n)
		}
	}
	return out
}

// BucketsNeedingRefresh returns the index of every bucket holding fewer
// than its capacity, which a periodic refresh should probe with a
// random id from that bucket's range.
func (t *Table) BucketsNeedingRefresh() []int {
	var idxs []int
	for i, bucket := range t.buckets {
		if !bucket.IsFull() {
			idxs = append(idxs, i)
		}
	}
	return idxs
}

// Size returns the total number of entries across every bucket.
func (t *Table) Size() int {
	n := 0
	for _, bucket := range t.buckets {
		n += bucket.Len()
	}
	return n
}

// HashSize returns the table's configured bucket count.
func (t *Table) HashSize() int { return t.hashSize }
