package miner

import (
	"time"

	"github.com/filecoin-project/go-chainsim/blocktree"
	"github.com/filecoin-project/go-chainsim/chain"
	"github.com/filecoin-project/go-chainsim/event"
)

// RevealPolicy decides when a ring master discloses its private chain.
type RevealPolicy uint8

const (
	// RevealOnThreat reveals the private chain once its lead over the public
	// chain drops to a single block.
	RevealOnThreat RevealPolicy = iota
	// RevealAtEnd only reveals the private chain when forced to.
	RevealAtEnd
)

func (p RevealPolicy) String() string {
	switch p {
	case RevealOnThreat:
		return "on-threat"
	case RevealAtEnd:
		return "at-end"
	default:
		return "unknown"
	}
}

// privateChain is the fork a ring master mines on. It holds every public block
// the ring master admitted, plus the blocks it mined and has not revealed.
type privateChain struct {
	tree    *blocktree.BlockTree
	mempool *chain.Mempool
	// withheld are the unrevealed blocks, parents first.
	withheld []chain.Block
}

func newPrivateChain() *privateChain {
	return &privateChain{
		tree:    blocktree.New(),
		mempool: chain.NewMempool(),
	}
}

// due checks whether the withheld blocks should be revealed against a public
// chain of the given height.
func (p *privateChain) due(policy RevealPolicy, public uint64) bool {
	if policy == RevealAtEnd {
		return false
	}
	return p.tree.Height() <= public+1
}

// observeHonestChain mirrors blocks admitted to the public tree into the
// private one. A public chain that outgrows the private chain is adopted and
// the withheld blocks are abandoned.
func (m *Miner) observeHonestChain(now time.Time, admitted []chain.Block) []event.Event {
	for _, b := range admitted {
		if _, err := m.private.tree.AddBlock(b, now); err != nil {
			log.Debugw("public block not mirrored to private chain", "miner", m.id, "block", b.ID, "err", err)
			continue
		}
		if m.private.tree.SwitchToLongestChain(b, m.private.mempool) {
			if n := len(m.private.withheld); n > 0 {
				log.Infow("private chain overtaken", "miner", m.id, "abandoned", n, "head", b.ID)
			}
			m.private.withheld = nil
			m.processing = nil
		}
	}
	return m.CheckAndBroadcastPrivate(now, false)
}

// revealWithheld publishes the withheld blocks in order: each is admitted to
// the public tree, announced by hash to every neighbour and pushed in full to
// the coalition.
func (m *Miner) revealWithheld(now time.Time) []event.Event {
	withheld := m.private.withheld
	m.private.withheld = nil
	log.Infow("revealing private chain", "miner", m.id, "blocks", len(withheld), "public height", m.tree.Height())

	var events []event.Event
	for _, b := range withheld {
		if _, err := m.tree.AddBlock(b, now); err != nil {
			log.Warnw("withheld block rejected by public tree", "miner", m.id, "block", b.ID, "err", err)
			continue
		}
		m.adopt(b)
		m.completeDownload(b.Hash())
		events = append(events, m.announce(now, b)...)
		sent := sentTo(m.privateSent, b.ID)
		sent.add(m.id)
		events = append(events, m.forwardPrivate(now, b, sent)...)
		m.reveals++
	}
	return events
}
