package chain

import (
	"cmp"
	"maps"
	"slices"
)

// Mempool holds transactions that are known but not yet part of the adopted
// chain. Iteration is always in ascending transaction id order.
type Mempool struct {
	txns map[TxnID]Transaction
}

func NewMempool() *Mempool {
	return &Mempool{txns: make(map[TxnID]Transaction)}
}

// Add inserts txn unless a transaction with the same id is already present,
// and reports whether it was inserted.
func (m *Mempool) Add(txn Transaction) bool {
	if _, found := m.txns[txn.ID]; found {
		return false
	}
	m.txns[txn.ID] = txn
	return true
}

// Remove deletes the transaction with the given id and reports whether it was
// present.
func (m *Mempool) Remove(id TxnID) bool {
	if _, found := m.txns[id]; !found {
		return false
	}
	delete(m.txns, id)
	return true
}

func (m *Mempool) Has(id TxnID) bool {
	_, found := m.txns[id]
	return found
}

func (m *Mempool) Len() int { return len(m.txns) }

// Sorted returns the pending transactions ordered by id.
func (m *Mempool) Sorted() []Transaction {
	txns := slices.Collect(maps.Values(m.txns))
	slices.SortFunc(txns, func(a, b Transaction) int { return cmp.Compare(a.ID, b.ID) })
	return txns
}
