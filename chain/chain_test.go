package chain_test

import (
	"testing"
	"time"

	"github.com/filecoin-project/go-chainsim/chain"
	"github.com/stretchr/testify/require"
)

func TestBlock_EqualDisregardsOwner(t *testing.T) {
	subject := chain.Block{
		ID:           7,
		Height:       3,
		ParentID:     5,
		Timestamp:    time.Time{}.Add(3 * time.Second),
		Owner:        1,
		Transactions: []chain.Transaction{chain.NewCoinbase(1, 1)},
	}
	other := subject.Clone()
	other.Owner = 2
	require.True(t, subject.Equal(other))
	require.Equal(t, subject.Hash(), other.Hash())

	other.Transactions[0].Amount = 51
	require.False(t, subject.Equal(other))
	require.NotEqual(t, subject.Hash(), other.Hash())
	require.Equal(t, chain.Reward, subject.Transactions[0].Amount, "clone must not share transactions")
}

func TestBlock_Size(t *testing.T) {
	for _, test := range []struct {
		name  string
		given chain.Block
		want  int
	}{
		{name: "genesis", given: chain.Genesis(), want: chain.BlockHeaderSize},
		{
			name: "two transactions",
			given: chain.Block{Transactions: []chain.Transaction{
				chain.NewCoinbase(1, 0),
				{ID: 2, Sender: 0, Receiver: 1, Amount: 3},
			}},
			want: chain.BlockHeaderSize + 2*chain.TxnSize,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			require.Equal(t, test.want, test.given.Size())
		})
	}
}

func TestMempool(t *testing.T) {
	subject := chain.NewMempool()
	require.True(t, subject.Add(chain.Transaction{ID: 3}))
	require.True(t, subject.Add(chain.Transaction{ID: 1}))
	require.True(t, subject.Add(chain.Transaction{ID: 2}))
	require.False(t, subject.Add(chain.Transaction{ID: 2, Amount: 10}))
	require.Equal(t, 3, subject.Len())

	var ids []chain.TxnID
	for _, txn := range subject.Sorted() {
		ids = append(ids, txn.ID)
	}
	require.Equal(t, []chain.TxnID{1, 2, 3}, ids)

	require.True(t, subject.Remove(2))
	require.False(t, subject.Remove(2))
	require.False(t, subject.Has(2))
	require.Equal(t, 2, subject.Len())
}

func TestIDGenerator_ReservesGenesis(t *testing.T) {
	subject := chain.NewIDGenerator()
	require.Equal(t, chain.BlockID(1), subject.NextBlockID())
	require.Equal(t, chain.BlockID(2), subject.NextBlockID())
	require.Equal(t, chain.TxnID(1), subject.NextTxnID())
	require.Equal(t, chain.TxnID(2), subject.NextTxnID())
}
