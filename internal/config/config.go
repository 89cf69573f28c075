// Package config holds the simulation's static parameters. There is no
// configuration file; callers (such as the entrypoint's -workers and
// -levels flags) override fields via Update before the world starts.
package config

// Config mirrors the simulation parameters table: every knob governing
// graph generation, the DHT, and the driver's pacing lives here.
type Config struct {
	// WorkerCount is the number of event-loop threads the driver starts
	// at construction, each pinned to a disjoint set of node actors for
	// their lifetime.
	WorkerCount int

	// BucketSize (k) is the maximum number of entries a single k-bucket
	// may hold.
	BucketSize int

	// HashSize (H) is the identifier bit-width, and therefore the number
	// of buckets per node table.
	HashSize int

	// MaxNodeCount bounds the fan-out of table.find and on_find_node.
	MaxNodeCount int

	// Levels is the depth of the geographic hierarchy.
	Levels int

	// Core is the size of the fully-meshed top level.
	Core int

	// Spread holds the per-level multiplicative node count, indexed by
	// level. Spread[0] seeds the core; deeper levels multiply the parent
	// level's count.
	Spread []int

	// Conn holds the per-level intra-level neighbour count.
	Conn []int

	// UpstreamCounts and UpstreamWeights implement the weighted sample of
	// how many upstream links a node acquires: UpstreamCounts[i] is
	// chosen with relative weight UpstreamWeights[i].
	UpstreamCounts  []int
	UpstreamWeights []int

	// AreaMin and AreaMax bound the 2D coordinate range nodes are placed
	// in.
	AreaMin, AreaMax float64

	// LatencyDivisor is the divisor in the latency formula
	// ||a-b|| / LatencyDivisor.
	LatencyDivisor float64

	// ConnectionLoss is the nominal packet-loss ratio attached to every
	// edge's Connection metadata.
	ConnectionLoss float64

	// ConnectionBandwidth is the nominal bandwidth attached to every
	// edge's Connection metadata.
	ConnectionBandwidth float64

	// AdmissionFraction sets each epoch's batch size as a fraction of the
	// currently active node count (floor 1).
	AdmissionFraction float64

	// WakePeriodMicros is the simulated admission/tick cadence.
	WakePeriodMicros int64

	// LookupAlpha is the number of concurrent probes the iterative
	// lookup may issue per round.
	LookupAlpha int

	// TickProbability is the per-neighbour probability, on each dht_tick,
	// of pinging that neighbour and launching a random lookup.
	TickProbability float64

	// NCDimensions is the dimensionality of the network-coordinate
	// vectors.
	NCDimensions int

	// NCLearnRate is the default learning rate fed to NC updates.
	NCLearnRate float64

	// SentSampleNumerator/Denominator implement the Bernoulli coin used
	// to notify the driver of forwarding activity: a forwarded packet
	// notifies with probability Numerator/Denominator.
	SentSampleNumerator   int
	SentSampleDenominator int
}

// DefaultConfig returns the parameter set named in the simulation
// parameters table, unless overridden via Update.
func DefaultConfig() Config {
	return Config{
		WorkerCount:           4,
		BucketSize:            32,
		HashSize:              64,
		MaxNodeCount:          16,
		Levels:                4,
		Core:                  8,
		Spread:                []int{1, 20, 20, 10},
		Conn:                  []int{8, 2, 2, 2},
		UpstreamCounts:        []int{1, 2, 3},
		UpstreamWeights:       []int{10, 2, 1},
		AreaMin:               -1e8,
		AreaMax:               1e8,
		LatencyDivisor:        3e5,
		ConnectionLoss:        0.01,
		ConnectionBandwidth:   10000,
		AdmissionFraction:     0.05,
		WakePeriodMicros:      100,
		LookupAlpha:           1,
		TickProbability:       0.1,
		NCDimensions:          10,
		NCLearnRate:           0.25,
		SentSampleNumerator:   1,
		SentSampleDenominator: 100,
	}
}
