package latency

import (
	"errors"
	"time"

	"github.com/filecoin-project/go-chainsim/chain"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	// QueueingBits is the mean amount of data, in bits, queued ahead of a
	// message at a link.
	QueueingBits = 96_000
	// SlowBandwidth is the bandwidth, in bits per second, of links with at
	// least one honest end.
	SlowBandwidth = 5_000_000
	// FastBandwidth is the bandwidth, in bits per second, of links between
	// two adversaries.
	FastBandwidth = 100_000_000
)

var _ Model = (*Link)(nil)

// Bandwidth returns the bandwidth in bits per second of the link between two
// miners.
type Bandwidth func(from, to chain.MinerID) float64

// Fixed returns a Bandwidth that is the same for every link.
func Fixed(bps float64) Bandwidth {
	return func(chain.MinerID, chain.MinerID) float64 { return bps }
}

// Tiered returns a Bandwidth of FastBandwidth between two miners for which
// fast returns true, and SlowBandwidth otherwise.
func Tiered(fast func(chain.MinerID) bool) Bandwidth {
	return func(from, to chain.MinerID) float64 {
		if fast(from) && fast(to) {
			return FastBandwidth
		}
		return SlowBandwidth
	}
}

type link struct{ a, b chain.MinerID }

func linkBetween(from, to chain.MinerID) link {
	if from > to {
		from, to = to, from
	}
	return link{a: from, b: to}
}

// Link models latency as the sum of:
//   - a propagation delay, sampled uniformly once per pair of miners;
//   - a queueing delay, exponentially distributed with a mean of QueueingBits
//     over the link bandwidth;
//   - the transmission time of the message at the link bandwidth.
type Link struct {
	src         rand.Source
	propagation distuv.Uniform
	bandwidth   Bandwidth
	delays      map[link]time.Duration
}

// NewLink instantiates a link latency model with propagation delays in
// [minDelay, maxDelay].
func NewLink(seed uint64, minDelay, maxDelay time.Duration, bandwidth Bandwidth) (*Link, error) {
	switch {
	case minDelay < 0:
		return nil, errors.New("min delay cannot be negative")
	case maxDelay < minDelay:
		return nil, errors.New("max delay cannot be less than min delay")
	case bandwidth == nil:
		return nil, errors.New("bandwidth must be specified")
	}
	src := rand.NewSource(seed)
	return &Link{
		src:         src,
		propagation: distuv.Uniform{Min: float64(minDelay), Max: float64(maxDelay), Src: src},
		bandwidth:   bandwidth,
		delays:      make(map[link]time.Duration),
	}, nil
}

// Propagation returns the fixed propagation delay between two miners.
func (l *Link) Propagation(from, to chain.MinerID) time.Duration {
	key := linkBetween(from, to)
	delay, found := l.delays[key]
	if !found {
		delay = time.Duration(l.propagation.Rand())
		l.delays[key] = delay
	}
	return delay
}

// Sample returns the latency of a message of size bytes. When from and to are
// the same the latency sample is always zero.
func (l *Link) Sample(_ time.Time, from, to chain.MinerID, size int) time.Duration {
	if from == to {
		return 0
	}
	bps := l.bandwidth(from, to)
	queueing := distuv.Exponential{Rate: bps / QueueingBits, Src: l.src}.Rand()
	transmission := float64(size*8) / bps
	return l.Propagation(from, to) + time.Duration((queueing+transmission)*float64(time.Second))
}
