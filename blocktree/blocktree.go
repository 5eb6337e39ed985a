// Package blocktree implements the per-miner consensus engine: a tree of every
// block a miner has admitted, the balances along the adopted chain, and the
// longest-chain fork-choice rule.
package blocktree

import (
	"maps"
	"time"

	"github.com/filecoin-project/go-chainsim/chain"
	"golang.org/x/xerrors"
)

const (
	root   = 0
	noNode = -1
)

type node struct {
	block    chain.Block
	parent   int
	children []int
	height   uint64
	arrival  time.Time
}

// BlockTree is a single miner's view of the chain. Nodes live in an arena and
// refer to each other by index; the arena only ever grows.
type BlockTree struct {
	nodes   []node
	index   map[chain.BlockID]int
	current int
	// balances is valid relative to current only.
	balances map[chain.MinerID]int64
	// included counts the transactions along the current chain.
	included map[chain.TxnID]int
	orphans  []orphan
	stats    Stats
}

// Stats summarises the chain switches a tree went through.
type Stats struct {
	// Switches is the number of times the current chain changed.
	Switches int
	// Reorgs is the number of switches that rolled back at least one block.
	Reorgs int
	// DeepestReorg is the largest number of blocks rolled back by one switch.
	DeepestReorg int
	// LastReorgDepth is the number of blocks rolled back by the latest switch.
	LastReorgDepth int
}

// New returns a tree containing only the genesis block.
func New() *BlockTree {
	genesis := chain.Genesis()
	return &BlockTree{
		nodes:    []node{{block: genesis, parent: noNode}},
		index:    map[chain.BlockID]int{genesis.ID: root},
		current:  root,
		balances: make(map[chain.MinerID]int64),
		included: make(map[chain.TxnID]int),
	}
}

// Clone returns a deep copy of the tree.
func (t *BlockTree) Clone() *BlockTree {
	nodes := make([]node, len(t.nodes))
	for i, n := range t.nodes {
		n.block = n.block.Clone()
		n.children = append([]int(nil), n.children...)
		nodes[i] = n
	}
	orphans := make([]orphan, len(t.orphans))
	for i, o := range t.orphans {
		orphans[i] = orphan{block: o.block.Clone(), arrival: o.arrival}
	}
	return &BlockTree{
		nodes:    nodes,
		index:    maps.Clone(t.index),
		current:  t.current,
		balances: maps.Clone(t.balances),
		included: maps.Clone(t.included),
		orphans:  orphans,
		stats:    t.stats,
	}
}

// ValidateBlock checks that no sender in candidate spends more than its
// balance on the current chain. It has no side effects.
func (t *BlockTree) ValidateBlock(candidate chain.Block) bool {
	return checkSpending(candidate, t.balances) == nil
}

// AddBlock admits b under its parent and returns the greater of its height and
// the height of the current chain. Admitting a block never changes the current
// chain.
//
// A block whose parent is unknown is cached and ErrUnknownParent is returned;
// it is admitted later via AddCachedChild. Permanent rejections are reported
// as a RejectionError.
func (t *BlockTree) AddBlock(b chain.Block, arrival time.Time) (uint64, error) {
	if _, found := t.index[b.ID]; found {
		return 0, ErrDuplicateBlock
	}
	parent, found := t.index[b.ParentID]
	if !found {
		t.cacheOrphan(b, arrival)
		return 0, ErrUnknownParent
	}
	height := t.nodes[parent].height + 1
	if err := checkStructure(b, height); err != nil {
		return 0, err
	}
	if err := checkSpending(b, t.balancesAt(parent)); err != nil {
		return 0, err
	}

	idx := len(t.nodes)
	t.nodes = append(t.nodes, node{
		block:   b.Clone(),
		parent:  parent,
		height:  height,
		arrival: arrival,
	})
	t.nodes[parent].children = append(t.nodes[parent].children, idx)
	t.index[b.ID] = idx
	return max(height, t.nodes[t.current].height), nil
}

// SwitchToLongestChain adopts candidate as the head of the current chain if it
// is strictly higher than the current head, or directly extends it. Balances
// are rolled back and replayed through the common ancestor, and mempool is
// reconciled: transactions of abandoned blocks are reinserted, transactions of
// adopted blocks are removed. Ties keep the current chain.
func (t *BlockTree) SwitchToLongestChain(candidate chain.Block, mempool *chain.Mempool) bool {
	return t.Switch(candidate.ID, mempool) == nil
}

// Switch is like SwitchToLongestChain but reports why a switch did not happen.
func (t *BlockTree) Switch(id chain.BlockID, mempool *chain.Mempool) error {
	idx, found := t.index[id]
	switch {
	case !found:
		return xerrors.Errorf("switching to block %d: %w", id, ErrUnknownBlock)
	case idx == t.current:
		return ErrHeightNotImproved
	case t.nodes[idx].parent == t.current:
		t.apply(idx, mempool)
		t.current = idx
		t.recordSwitch(0)
		return nil
	case t.nodes[idx].height <= t.nodes[t.current].height:
		return ErrHeightNotImproved
	default:
		t.reorg(idx, mempool)
		return nil
	}
}

// reorg moves current to target through their lowest common ancestor. target
// may be at any height.
func (t *BlockTree) reorg(target int, mempool *chain.Mempool) {
	var (
		reinsert []chain.Transaction
		erase    []chain.Transaction
		depth    int
	)
	stepOff := func(n int) int {
		t.revert(n)
		reinsert = append(reinsert, t.nodes[n].block.Transactions...)
		depth++
		return t.nodes[n].parent
	}
	stepOn := func(n int) int {
		t.replay(n)
		erase = append(erase, t.nodes[n].block.Transactions...)
		return t.nodes[n].parent
	}

	from, to := t.current, target
	for t.nodes[to].height > t.nodes[from].height {
		to = stepOn(to)
	}
	for t.nodes[from].height > t.nodes[to].height {
		from = stepOff(from)
	}
	for from != to {
		from = stepOff(from)
		to = stepOn(to)
	}

	if mempool != nil {
		for _, txn := range reinsert {
			if !txn.IsCoinbase() {
				mempool.Add(txn)
			}
		}
		for _, txn := range erase {
			mempool.Remove(txn.ID)
		}
	}
	log.Debugw("reorganised chain", "from", t.nodes[t.current].block.ID, "to", t.nodes[target].block.ID, "ancestor", t.nodes[from].block.ID, "depth", depth)
	t.current = target
	t.recordSwitch(depth)
}

func (t *BlockTree) recordSwitch(depth int) {
	t.stats.Switches++
	t.stats.LastReorgDepth = depth
	if depth > 0 {
		t.stats.Reorgs++
		t.stats.DeepestReorg = max(t.stats.DeepestReorg, depth)
	}
}

// apply advances the ledger by the block at idx, which must be a child of
// current, and removes its transactions from mempool.
func (t *BlockTree) apply(idx int, mempool *chain.Mempool) {
	t.replay(idx)
	if mempool != nil {
		for _, txn := range t.nodes[idx].block.Transactions {
			mempool.Remove(txn.ID)
		}
	}
}

func (t *BlockTree) replay(idx int) {
	b := t.nodes[idx].block
	applyTransactions(t.balances, b)
	for _, txn := range b.Transactions {
		t.included[txn.ID]++
	}
}

func (t *BlockTree) revert(idx int) {
	b := t.nodes[idx].block
	revertTransactions(t.balances, b)
	for _, txn := range b.Transactions {
		if t.included[txn.ID] <= 1 {
			delete(t.included, txn.ID)
		} else {
			t.included[txn.ID]--
		}
	}
}

// LCA returns the lowest common ancestor of two indexed blocks.
func (t *BlockTree) LCA(a, b chain.BlockID) (chain.Block, error) {
	ai, found := t.index[a]
	if !found {
		return chain.Block{}, xerrors.Errorf("finding ancestor of %d: %w", a, ErrUnknownBlock)
	}
	bi, found := t.index[b]
	if !found {
		return chain.Block{}, xerrors.Errorf("finding ancestor of %d: %w", b, ErrUnknownBlock)
	}
	return t.nodes[t.lca(ai, bi)].block, nil
}

func (t *BlockTree) lca(a, b int) int {
	for t.nodes[a].height > t.nodes[b].height {
		a = t.nodes[a].parent
	}
	for t.nodes[b].height > t.nodes[a].height {
		b = t.nodes[b].parent
	}
	for a != b {
		a = t.nodes[a].parent
		b = t.nodes[b].parent
	}
	return a
}

// balancesAt computes the balances implied by the chain ending at idx. The
// returned map must not be modified.
func (t *BlockTree) balancesAt(idx int) map[chain.MinerID]int64 {
	if idx == t.current {
		return t.balances
	}
	balances := maps.Clone(t.balances)
	ancestor := t.lca(t.current, idx)
	for n := t.current; n != ancestor; n = t.nodes[n].parent {
		revertTransactions(balances, t.nodes[n].block)
	}
	for n := idx; n != ancestor; n = t.nodes[n].parent {
		applyTransactions(balances, t.nodes[n].block)
	}
	return balances
}

// Current returns the head of the adopted chain.
func (t *BlockTree) Current() chain.Block { return t.nodes[t.current].block }

// Height returns the height of the adopted chain.
func (t *BlockTree) Height() uint64 { return t.nodes[t.current].height }

// Balance returns the spendable balance of a miner along the adopted chain.
func (t *BlockTree) Balance(id chain.MinerID) int64 { return t.balances[id] }

// Block returns the indexed block with the given id.
func (t *BlockTree) Block(id chain.BlockID) (chain.Block, bool) {
	idx, found := t.index[id]
	if !found {
		return chain.Block{}, false
	}
	return t.nodes[idx].block, true
}

func (t *BlockTree) Contains(id chain.BlockID) bool {
	_, found := t.index[id]
	return found
}

// Included checks whether a transaction is part of the adopted chain.
func (t *BlockTree) Included(id chain.TxnID) bool {
	return t.included[id] > 0
}

// Len returns the number of indexed blocks, genesis included.
func (t *BlockTree) Len() int { return len(t.nodes) }

// Arrival returns the time at which an indexed block was admitted.
func (t *BlockTree) Arrival(id chain.BlockID) (time.Time, bool) {
	idx, found := t.index[id]
	if !found {
		return time.Time{}, false
	}
	return t.nodes[idx].arrival, true
}

func (t *BlockTree) Stats() Stats { return t.stats }

// MainChain returns the adopted chain from genesis to its head.
func (t *BlockTree) MainChain() []chain.Block {
	blocks := make([]chain.Block, t.nodes[t.current].height+1)
	for n := t.current; n != noNode; n = t.nodes[n].parent {
		blocks[t.nodes[n].height] = t.nodes[n].block
	}
	return blocks
}
