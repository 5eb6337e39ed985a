package sim

import (
	"github.com/filecoin-project/go-chainsim/config"
	"github.com/filecoin-project/go-chainsim/miner"
	"golang.org/x/xerrors"
)

type Option func(*options) error

type options struct {
	settings config.Settings
	// honestNetwork and maliciousNetwork are generated from the seed unless
	// set.
	honestNetwork    Network
	maliciousNetwork Network
	reveal           miner.RevealPolicy
	traceLevel       int
}

func newOptions(o ...Option) (*options, error) {
	opts := options{settings: config.Default()}
	for _, apply := range o {
		if err := apply(&opts); err != nil {
			return nil, err
		}
	}
	if err := opts.settings.Validate(); err != nil {
		return nil, xerrors.Errorf("invalid simulation settings: %w", err)
	}
	return &opts, nil
}

// WithSettings sets every parameter of the simulation at once. Defaults to
// config.Default.
func WithSettings(s config.Settings) Option {
	return func(o *options) error {
		o.settings = s
		return nil
	}
}

// WithSeed seeds every source of randomness of the simulation.
func WithSeed(seed uint64) Option {
	return func(o *options) error {
		o.settings.Seed = seed
		return nil
	}
}

func WithMaliciousFraction(f float64) Option {
	return func(o *options) error {
		o.settings.MaliciousFraction = f
		return nil
	}
}

// WithHonestNetwork sets the network every miner relays over. Its neighbours
// must span all miners.
func WithHonestNetwork(n Network) Option {
	return func(o *options) error {
		o.honestNetwork = n
		return nil
	}
}

// WithMaliciousNetwork sets the network adversaries relay over among
// themselves.
func WithMaliciousNetwork(n Network) Option {
	return func(o *options) error {
		o.maliciousNetwork = n
		return nil
	}
}

// WithRevealPolicy sets when ring masters reveal their private chain.
func WithRevealPolicy(p miner.RevealPolicy) Option {
	return func(o *options) error {
		o.reveal = p
		return nil
	}
}

func WithTraceLevel(i int) Option {
	return func(o *options) error {
		o.traceLevel = i
		return nil
	}
}
