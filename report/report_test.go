package report

import (
	"context"
	"errors"
	"testing"

	"github.com/filecoin-project/go-chainsim/config"
	"github.com/filecoin-project/go-chainsim/sim"
	"github.com/ipfs/go-datastore"
	ds_sync "github.com/ipfs/go-datastore/sync"
	"github.com/stretchr/testify/require"
)

func newStore() *Store {
	return NewStore(ds_sync.MutexWrap(datastore.NewMapDatastore()))
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	subject := newStore()
	want := Run{
		ID:       7,
		Settings: config.Default(),
		Events:   1234,
		Digest:   "cafe",
		Summaries: []sim.Summary{
			{Miner: 0, Role: "ring-master", HashPower: 0.5, Mined: 10, MainChain: 8, Ratio: 0.8, Height: 12, Reveals: 10},
			{Miner: 1, Role: "honest", HashPower: 0.25, Mined: 2, MainChain: 1, Ratio: 0.5, Height: 12, Balance: 50},
			{Miner: 10, Role: "honest", HashPower: 0.25, Height: 12},
		},
	}
	require.NoError(t, subject.Put(ctx, want))

	got, err := subject.Get(ctx, want.ID)
	require.NoError(t, err)
	require.Equal(t, want, got)

	_, err = subject.Get(ctx, 8)
	require.ErrorIs(t, err, ErrRunNotFound)
}

func TestStore_PutReplacesRun(t *testing.T) {
	ctx := context.Background()
	subject := newStore()
	require.NoError(t, subject.Put(ctx, Run{ID: 1, Summaries: []sim.Summary{{Miner: 0}, {Miner: 1}}}))
	require.NoError(t, subject.Put(ctx, Run{ID: 1, Summaries: []sim.Summary{{Miner: 0, Mined: 3}}}))

	got, err := subject.Get(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, []sim.Summary{{Miner: 0, Mined: 3}}, got.Summaries)
}

var errCommit = errors.New("commit failed")

// failingCommits is a datastore whose batches never commit.
type failingCommits struct{ datastore.Batching }

func (f failingCommits) Batch(ctx context.Context) (datastore.Batch, error) {
	b, err := f.Batching.Batch(ctx)
	if err != nil {
		return nil, err
	}
	return failingBatch{b}, nil
}

type failingBatch struct{ datastore.Batch }

func (failingBatch) Commit(context.Context) error { return errCommit }

func TestStore_FailedPutKeepsPreviousRun(t *testing.T) {
	ctx := context.Background()
	backing := ds_sync.MutexWrap(datastore.NewMapDatastore())
	want := Run{ID: 1, Events: 5, Summaries: []sim.Summary{{Miner: 0, Mined: 1}, {Miner: 1, Mined: 2}}}
	require.NoError(t, NewStore(backing).Put(ctx, want))

	err := NewStore(failingCommits{backing}).Put(ctx, Run{ID: 1, Summaries: []sim.Summary{{Miner: 0}}})
	require.ErrorIs(t, err, errCommit)

	got, err := NewStore(backing).Get(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestStore_Runs(t *testing.T) {
	ctx := context.Background()
	subject := newStore()
	for _, id := range []uint64{12, 3, 100} {
		require.NoError(t, subject.Put(ctx, Run{ID: id, Summaries: []sim.Summary{{Miner: 0}}}))
	}
	ids, err := subject.Runs(ctx)
	require.NoError(t, err)
	require.Equal(t, []uint64{3, 12, 100}, ids)

	require.NoError(t, subject.Delete(ctx, 12))
	ids, err = subject.Runs(ctx)
	require.NoError(t, err)
	require.Equal(t, []uint64{3, 100}, ids)
}
