package sim

import (
	"time"

	"github.com/filecoin-project/go-chainsim/chain"
	"github.com/filecoin-project/go-chainsim/sim/latency"
	"github.com/filecoin-project/go-chainsim/sim/topology"
	"golang.org/x/exp/rand"
	"golang.org/x/xerrors"
)

const (
	TraceNone = iota
	TraceSent
	TraceRecvd
	TraceLogic
	TraceAll
)

const (
	honestMinDelay    = 10 * time.Millisecond
	honestMaxDelay    = 500 * time.Millisecond
	maliciousMinDelay = time.Millisecond
	maliciousMaxDelay = 10 * time.Millisecond
)

// Network is a view of the peer graph miners relay over.
type Network interface {
	// Neighbors returns the peers of a miner, or nil if it is not part of the
	// network.
	Neighbors(chain.MinerID) []chain.MinerID
	// Latency samples the delay of a message of size bytes sent at the given
	// time.
	Latency(at time.Time, from, to chain.MinerID, size int) time.Duration
}

var _ Network = (*topology.Network)(nil)

// generateNetworks builds the honest network over every miner and the
// malicious network over the adversaries. Links between adversaries are fast
// on both.
func generateNetworks(all, adversaries []chain.MinerID, rng *rand.Rand) (honest, malicious *topology.Network, err error) {
	isAdversary := make(map[chain.MinerID]bool, len(adversaries))
	for _, id := range adversaries {
		isAdversary[id] = true
	}
	fast := func(id chain.MinerID) bool { return isAdversary[id] }

	honestGraph, err := topology.Generate(all, rng)
	if err != nil {
		return nil, nil, xerrors.Errorf("generating honest network: %w", err)
	}
	honestLatency, err := latency.NewLink(rng.Uint64(), honestMinDelay, honestMaxDelay, latency.Tiered(fast))
	if err != nil {
		return nil, nil, xerrors.Errorf("modelling honest latency: %w", err)
	}
	honest = topology.NewNetwork(honestGraph, honestLatency)

	if len(adversaries) == 0 {
		return honest, nil, nil
	}
	maliciousGraph, err := topology.Generate(adversaries, rng)
	if err != nil {
		return nil, nil, xerrors.Errorf("generating malicious network: %w", err)
	}
	maliciousLatency, err := latency.NewLink(rng.Uint64(), maliciousMinDelay, maliciousMaxDelay, latency.Fixed(latency.FastBandwidth))
	if err != nil {
		return nil, nil, xerrors.Errorf("modelling malicious latency: %w", err)
	}
	return honest, topology.NewNetwork(maliciousGraph, maliciousLatency), nil
}
