package event_test

import (
	"testing"
	"time"

	"github.com/filecoin-project/go-chainsim/chain"
	"github.com/filecoin-project/go-chainsim/event"
	"github.com/stretchr/testify/require"
)

func TestKind_Delivered(t *testing.T) {
	for _, test := range []struct {
		given    event.Kind
		want     event.Kind
		wantSend bool
	}{
		{given: event.SendTransaction, want: event.ReceiveTransaction, wantSend: true},
		{given: event.SendHash, want: event.ReceiveHash, wantSend: true},
		{given: event.SendGet, want: event.ReceiveGet, wantSend: true},
		{given: event.SendBlock, want: event.ReceiveBlock, wantSend: true},
		{given: event.BroadcastPrivateChain, want: event.ReceivePrivateChain, wantSend: true},
		{given: event.BlockCreation, want: event.BlockCreation},
		{given: event.GetTimeout, want: event.GetTimeout},
		{given: event.ReceiveBlock, want: event.ReceiveBlock},
	} {
		t.Run(test.given.String(), func(t *testing.T) {
			require.Equal(t, test.want, test.given.Delivered())
			require.Equal(t, test.wantSend, test.given.IsSend())
		})
	}
}

func TestEvent_Deliver(t *testing.T) {
	b := chain.Block{ID: 3, Transactions: []chain.Transaction{chain.NewCoinbase(1, 2)}}
	subject := event.Event{
		Kind:      event.SendBlock,
		Timestamp: time.Time{}.Add(time.Second),
		Owner:     2,
		Sender:    4,
		Receiver:  5,
		Payload:   event.FullBlock{Block: b},
	}
	at := subject.Timestamp.Add(time.Second)
	delivered := subject.Deliver(5, at)
	require.Equal(t, event.ReceiveBlock, delivered.Kind)
	require.Equal(t, at, delivered.Timestamp)
	require.Equal(t, chain.MinerID(4), delivered.Sender)
	require.Equal(t, b.Size(), delivered.Size())

	got, ok := delivered.Block()
	require.True(t, ok)
	require.True(t, b.Equal(got))
	_, ok = delivered.Transaction()
	require.False(t, ok)
	_, ok = delivered.Hash()
	require.False(t, ok)
}

func TestEvent_PayloadSizes(t *testing.T) {
	require.Equal(t, chain.TxnSize, event.Event{Payload: event.Txn{}}.Size())
	require.Equal(t, chain.HashSize, event.Event{Payload: event.BlockHash{}}.Size())
	require.Zero(t, event.Event{Payload: event.Timeout{}}.Size())
	require.Zero(t, event.Event{}.Size())

	hash := chain.Hash{1}
	got, ok := event.Event{Payload: event.Timeout{Hash: hash, Attempt: 2}}.Hash()
	require.True(t, ok)
	require.Equal(t, hash, got)
}
