package blocktree

import (
	"cmp"
	"maps"
	"slices"

	"github.com/filecoin-project/go-chainsim/chain"
	"golang.org/x/xerrors"
)

// checkSpending rejects b if any sender spends more than balances grants it.
// Coinbase transactions spend nothing, and coins received within b cannot be
// spent within b.
func checkSpending(b chain.Block, balances map[chain.MinerID]int64) error {
	spent := make(map[chain.MinerID]int64)
	for _, txn := range b.Transactions {
		if !txn.IsCoinbase() {
			spent[txn.Sender] += txn.Amount
		}
	}
	senders := slices.Collect(maps.Keys(spent))
	slices.SortFunc(senders, cmp.Compare[chain.MinerID])
	for _, sender := range senders {
		if spent[sender] > balances[sender] {
			return xerrors.Errorf("miner %d spends %d of %d in block %d: %w", sender, spent[sender], balances[sender], b.ID, ErrOverspend)
		}
	}
	return nil
}

// checkStructure rejects blocks that could not have been mined by a
// well-behaved miner at the given height.
func checkStructure(b chain.Block, height uint64) error {
	if b.Height != height {
		return xerrors.Errorf("block %d claims height %d at height %d: %w", b.ID, b.Height, height, ErrInvalidBlock)
	}
	var coinbases int
	for _, txn := range b.Transactions {
		switch {
		case txn.IsCoinbase():
			coinbases++
			if txn.Amount != chain.Reward {
				return xerrors.Errorf("block %d mints %d: %w", b.ID, txn.Amount, ErrInvalidBlock)
			}
		case txn.Amount <= 0:
			return xerrors.Errorf("block %d transfers non-positive amount in txn %d: %w", b.ID, txn.ID, ErrInvalidBlock)
		case txn.Sender == txn.Receiver:
			return xerrors.Errorf("block %d contains self transfer %d: %w", b.ID, txn.ID, ErrInvalidBlock)
		}
	}
	if coinbases > 1 {
		return xerrors.Errorf("block %d has %d coinbase transactions: %w", b.ID, coinbases, ErrInvalidBlock)
	}
	return nil
}

// applyTransactions applies the transactions of b to balances.
func applyTransactions(balances map[chain.MinerID]int64, b chain.Block) {
	for _, txn := range b.Transactions {
		if !txn.IsCoinbase() {
			balances[txn.Sender] -= txn.Amount
		}
		balances[txn.Receiver] += txn.Amount
	}
}

// revertTransactions undoes applyTransactions.
func revertTransactions(balances map[chain.MinerID]int64, b chain.Block) {
	for _, txn := range b.Transactions {
		if !txn.IsCoinbase() {
			balances[txn.Sender] += txn.Amount
		}
		balances[txn.Receiver] -= txn.Amount
	}
}
