package miner

import (
	"time"

	"github.com/filecoin-project/go-chainsim/chain"
	"github.com/filecoin-project/go-chainsim/config"
	"golang.org/x/exp/rand"
	"golang.org/x/xerrors"
)

const (
	defaultTotalNodes    = 2
	defaultTxnInterval   = 2 * time.Second
	defaultBlockInterval = 10 * time.Second
	defaultTimeout       = time.Second
)

type Option func(*options) error

type options struct {
	totalNodes    int
	txnInterval   time.Duration
	blockInterval time.Duration
	timeout       time.Duration
	// hashPower is the share of the network's mining power the miner owns.
	hashPower      float64
	honestPeers    []chain.MinerID
	maliciousPeers []chain.MinerID
	// coalition lists the adversaries, ring master included.
	coalition []chain.MinerID
	eclipse   bool
	reveal    RevealPolicy
	ids       *chain.IDGenerator
	rng       *rand.Rand
}

func newOptions(id chain.MinerID, o ...Option) (*options, error) {
	opts := options{
		totalNodes:    defaultTotalNodes,
		txnInterval:   defaultTxnInterval,
		blockInterval: defaultBlockInterval,
		timeout:       defaultTimeout,
	}
	for _, apply := range o {
		if err := apply(&opts); err != nil {
			return nil, err
		}
	}
	if opts.ids == nil {
		opts.ids = chain.NewIDGenerator()
	}
	if opts.rng == nil {
		opts.rng = rand.New(rand.NewSource(uint64(id)))
	}
	return &opts, nil
}

func positive(name string, d time.Duration) error {
	if d <= 0 {
		return xerrors.Errorf("%s must be positive, got %s: %w", name, d, config.ErrInvalidArgument)
	}
	return nil
}

// WithTotalNodes sets the number of miners transactions may be addressed to.
func WithTotalNodes(n int) Option {
	return func(o *options) error {
		if n < 2 {
			return xerrors.Errorf("total nodes must be at least 2, got %d: %w", n, config.ErrInvalidArgument)
		}
		o.totalNodes = n
		return nil
	}
}

// WithTxnInterval sets the mean time between two transactions of the miner.
func WithTxnInterval(d time.Duration) Option {
	return func(o *options) error {
		if err := positive("transaction interval", d); err != nil {
			return err
		}
		o.txnInterval = d
		return nil
	}
}

// WithBlockInterval sets the mean time it takes the whole network to mine a
// block. The miner's own mean is scaled by its hash power.
func WithBlockInterval(d time.Duration) Option {
	return func(o *options) error {
		if err := positive("block interval", d); err != nil {
			return err
		}
		o.blockInterval = d
		return nil
	}
}

// WithTimeout sets the mean time to wait for a requested block before asking
// the next peer that announced it.
func WithTimeout(d time.Duration) Option {
	return func(o *options) error {
		if err := positive("timeout", d); err != nil {
			return err
		}
		o.timeout = d
		return nil
	}
}

// WithHashPower sets the share of mining power of the miner. Miners with no
// hash power never mine.
func WithHashPower(p float64) Option {
	return func(o *options) error {
		if p < 0 || p > 1 {
			return xerrors.Errorf("hash power must be within [0, 1], got %g: %w", p, config.ErrInvalidArgument)
		}
		o.hashPower = p
		return nil
	}
}

// WithPeers sets the neighbours of the miner on the honest and malicious
// networks.
func WithPeers(honest, malicious []chain.MinerID) Option {
	return func(o *options) error {
		o.honestPeers = honest
		o.maliciousPeers = malicious
		return nil
	}
}

// WithCoalition sets the adversaries whose blocks are never withheld by an
// eclipsing miner.
func WithCoalition(ids []chain.MinerID) Option {
	return func(o *options) error {
		o.coalition = ids
		return nil
	}
}

// WithEclipse makes a malicious miner refuse to serve honest blocks to honest
// peers.
func WithEclipse(eclipse bool) Option {
	return func(o *options) error {
		o.eclipse = eclipse
		return nil
	}
}

// WithIDGenerator sets the generator the miner allocates ids from. Miners of
// the same simulation must share one generator.
func WithIDGenerator(ids *chain.IDGenerator) Option {
	return func(o *options) error {
		o.ids = ids
		return nil
	}
}

// WithRand sets the source of randomness of the miner. Defaults to a source
// seeded with the miner id.
func WithRand(rng *rand.Rand) Option {
	return func(o *options) error {
		o.rng = rng
		return nil
	}
}

// WithRevealPolicy sets when a ring master reveals its withheld blocks.
// Defaults to RevealOnThreat.
func WithRevealPolicy(p RevealPolicy) Option {
	return func(o *options) error {
		switch p {
		case RevealOnThreat, RevealAtEnd:
			o.reveal = p
			return nil
		default:
			return xerrors.Errorf("unknown reveal policy %d: %w", p, config.ErrInvalidArgument)
		}
	}
}
