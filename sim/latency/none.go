package latency

import (
	"time"

	"github.com/filecoin-project/go-chainsim/chain"
)

var (
	_ Model = (*none)(nil)

	// None represents zero no-op latency model.
	None = none{}
)

// None represents zero latency model.
type none struct{}

func (l none) Sample(time.Time, chain.MinerID, chain.MinerID, int) time.Duration { return 0 }
