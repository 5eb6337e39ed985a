package sim

import (
	"testing"
	"time"

	"github.com/filecoin-project/go-chainsim/chain"
	"github.com/filecoin-project/go-chainsim/event"
	"github.com/stretchr/testify/require"
)

func TestEventQueue_IsInAscendingOrderOfTimestamp(t *testing.T) {
	subject := newEventQueue()

	want1st := event.Event{Kind: event.SendHash, Timestamp: time.Time{}.Add(time.Second)}
	want2nd := event.Event{Kind: event.SendGet, Timestamp: want1st.Timestamp.Add(12 * time.Second)}
	want3rd := event.Event{Kind: event.SendBlock, Timestamp: want2nd.Timestamp.Add(17 * time.Second)}
	want4th := event.Event{Kind: event.BlockCreation, Timestamp: want3rd.Timestamp.Add(100 * time.Second)}

	subject.Insert(want2nd)
	subject.Insert(want4th)
	subject.Insert(want1st)
	subject.Insert(want3rd)

	require.Equal(t, 4, subject.Len())
	for _, want := range []event.Event{want1st, want2nd, want3rd, want4th} {
		got, ok := subject.Remove()
		require.True(t, ok)
		require.Equal(t, want, got)
	}
	require.Zero(t, subject.Len())
}

func TestEventQueue_ReturnsFalseWhenEmpty(t *testing.T) {
	subject := newEventQueue()
	want := event.Event{Kind: event.ReceiveGet, Sender: 0, Receiver: 2, Timestamp: time.Time{}.Add(17 * time.Second)}

	subject.Insert(want)

	require.Equal(t, 1, subject.Len())
	got, ok := subject.Remove()
	require.True(t, ok)
	require.Equal(t, want, got)
	_, ok = subject.Remove()
	require.False(t, ok)
}

func TestEventQueue_EqualTimestampsInInsertionOrder(t *testing.T) {
	const insertions = 20
	subject := newEventQueue()
	at := time.Time{}.Add(17 * time.Second)
	for i := 0; i < insertions; i++ {
		subject.Insert(event.Event{Kind: event.SendTransaction, Sender: chain.MinerID(i), Timestamp: at})
	}
	subject.Insert(event.Event{Kind: event.GetTimeout, Timestamp: at.Add(-time.Millisecond)})

	first, ok := subject.Remove()
	require.True(t, ok)
	require.Equal(t, event.GetTimeout, first.Kind)
	for i := 0; i < insertions; i++ {
		got, ok := subject.Remove()
		require.True(t, ok)
		require.Equal(t, chain.MinerID(i), got.Sender)
	}
	require.Zero(t, subject.Len())
}
