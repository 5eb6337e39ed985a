package blocktree

import (
	"github.com/filecoin-project/go-chainsim/chain"
	"gonum.org/v1/gonum/stat"
)

// onMainChain marks the arena indices of the adopted chain.
func (t *BlockTree) onMainChain() []bool {
	marks := make([]bool, len(t.nodes))
	for n := t.current; n != noNode; n = t.nodes[n].parent {
		marks[n] = true
	}
	return marks
}

// MainChainCount returns the number of blocks on the adopted chain mined by
// owner.
func (t *BlockTree) MainChainCount(owner chain.MinerID) int {
	var count int
	for n := t.current; n != noNode; n = t.nodes[n].parent {
		if t.nodes[n].block.Owner == owner && !t.nodes[n].block.IsGenesis() {
			count++
		}
	}
	return count
}

// BranchLengths returns, for every leaf off the adopted chain, the number of
// blocks between it and the adopted chain.
func (t *BlockTree) BranchLengths() []float64 {
	main := t.onMainChain()
	var lengths []float64
	for i, n := range t.nodes {
		if len(n.children) != 0 || main[i] {
			continue
		}
		var length float64
		for p := i; !main[p]; p = t.nodes[p].parent {
			length++
		}
		lengths = append(lengths, length)
	}
	return lengths
}

// AverageBranchLength is the mean of BranchLengths, or zero when every block
// is on the adopted chain.
func (t *BlockTree) AverageBranchLength() float64 {
	lengths := t.BranchLengths()
	if len(lengths) == 0 {
		return 0
	}
	return stat.Mean(lengths, nil)
}
