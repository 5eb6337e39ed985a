package blocktree

import (
	"cmp"
	"slices"
	"time"

	"github.com/filecoin-project/go-chainsim/chain"
)

type orphan struct {
	block   chain.Block
	arrival time.Time
}

func compareOrphans(a orphan, b chain.BlockID) int { return cmp.Compare(a.block.ID, b) }

// cacheOrphan keeps b, ordered by id, until its parent is known. Caching the
// same block twice is a no-op.
func (t *BlockTree) cacheOrphan(b chain.Block, arrival time.Time) {
	at, found := slices.BinarySearchFunc(t.orphans, b.ID, compareOrphans)
	if found {
		return
	}
	t.orphans = slices.Insert(t.orphans, at, orphan{block: b.Clone(), arrival: arrival})
}

// AddCachedChild admits the first cached orphan whose parent has since become
// known, and returns it. Attaching one orphan may unlock another, so callers
// repeat the call until it returns false.
//
// Orphans that turn out to be permanently invalid are dropped from the cache.
func (t *BlockTree) AddCachedChild() (chain.Block, bool) {
	for i := 0; i < len(t.orphans); {
		candidate := t.orphans[i]
		if !t.Contains(candidate.block.ParentID) {
			i++
			continue
		}
		t.orphans = slices.Delete(t.orphans, i, i+1)
		if _, err := t.AddBlock(candidate.block, candidate.arrival); err != nil {
			log.Debugw("dropped cached block", "block", candidate.block.ID, "err", err)
			continue
		}
		return candidate.block, true
	}
	return chain.Block{}, false
}

// Orphans returns the number of blocks awaiting their parent.
func (t *BlockTree) Orphans() int { return len(t.orphans) }
