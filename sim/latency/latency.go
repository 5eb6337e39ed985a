package latency

import (
	"time"

	"github.com/filecoin-project/go-chainsim/chain"
)

// Model samples the time it takes a message of a given size to travel from
// one miner to another.
type Model interface {
	// Sample returns the latency of a message of size bytes sent at the given
	// time. Sampling latency from a miner to itself must return zero.
	Sample(at time.Time, from, to chain.MinerID, size int) time.Duration
}
