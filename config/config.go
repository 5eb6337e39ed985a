// Package config holds the parameters of a simulation run.
package config

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/xerrors"
)

// ErrInvalidArgument signals that a setting is missing or out of range.
var ErrInvalidArgument = errors.New("invalid argument")

// Settings parameterises a simulation run.
type Settings struct {
	// TotalNodes is the number of miners, adversaries included.
	TotalNodes int `json:"totalNodes"`
	// TxnInterval is the mean time between two transactions of a miner.
	TxnInterval time.Duration `json:"txnInterval"`
	// BlockInterval is the mean time it takes the whole network to mine a
	// block.
	BlockInterval time.Duration `json:"blockInterval"`
	// Timeout is the mean time a miner waits for a requested block before
	// asking the next peer that announced it.
	Timeout time.Duration `json:"timeout"`
	// MaliciousFraction is the share of miners that are adversaries.
	MaliciousFraction float64 `json:"maliciousFraction"`
	// Eclipse makes adversaries withhold honest blocks from honest peers.
	Eclipse bool `json:"eclipse"`
	// BlockLimit stops block generation once more blocks have been mined. Zero
	// means no limit.
	BlockLimit int `json:"blockLimit"`
	// TimeLimit stops block generation once the simulated clock passes it. Zero
	// means no limit.
	TimeLimit time.Duration `json:"timeLimit"`
	// Seed seeds every source of randomness of a run.
	Seed uint64 `json:"seed"`
}

// Default returns settings for a small honest network.
func Default() Settings {
	return Settings{
		TotalNodes:    20,
		TxnInterval:   2 * time.Second,
		BlockInterval: 10 * time.Second,
		Timeout:       time.Second,
		BlockLimit:    100,
		Seed:          1,
	}
}

// Validate reports every setting that is missing or out of range.
func (s Settings) Validate() error {
	var err error
	invalid := func(format string, args ...any) {
		err = multierr.Append(err, xerrors.Errorf(format+": %w", append(args, ErrInvalidArgument)...))
	}
	if s.TotalNodes < 2 {
		invalid("total nodes must be at least 2, got %d", s.TotalNodes)
	}
	if s.TxnInterval <= 0 {
		invalid("transaction interval must be positive, got %s", s.TxnInterval)
	}
	if s.BlockInterval <= 0 {
		invalid("block interval must be positive, got %s", s.BlockInterval)
	}
	if s.Timeout <= 0 {
		invalid("timeout must be positive, got %s", s.Timeout)
	}
	if s.MaliciousFraction < 0 || s.MaliciousFraction > 1 {
		invalid("malicious fraction must be within [0, 1], got %g", s.MaliciousFraction)
	}
	if s.BlockLimit < 0 {
		invalid("block limit cannot be negative, got %d", s.BlockLimit)
	}
	if s.TimeLimit < 0 {
		invalid("time limit cannot be negative, got %s", s.TimeLimit)
	}
	if s.BlockLimit == 0 && s.TimeLimit == 0 {
		invalid("at least one of block limit and time limit is required")
	}
	return err
}

// adversaryTolerance absorbs the rounding error of fractions such as 0.29
// that have no exact binary representation.
const adversaryTolerance = 1e-9

// Adversaries returns the number of malicious miners, the floor of the total
// number of miners times the malicious fraction.
func (s Settings) Adversaries() int {
	return int(math.Floor(float64(s.TotalNodes)*s.MaliciousFraction + adversaryTolerance))
}

func (s Settings) Marshal() ([]byte, error) {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, xerrors.Errorf("marshaling JSON: %w", err)
	}
	return b, nil
}

func (s *Settings) Unmarshal(r io.Reader) error {
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(s); err != nil {
		return xerrors.Errorf("decoding JSON: %w", err)
	}
	return nil
}

// Load reads settings from r on top of Default and validates them.
func Load(r io.Reader) (Settings, error) {
	s := Default()
	if err := s.Unmarshal(r); err != nil {
		return Settings{}, err
	}
	if err := s.Validate(); err != nil {
		return Settings{}, xerrors.Errorf("validating settings: %w", err)
	}
	return s, nil
}
