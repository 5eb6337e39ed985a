// Package report persists the outcome of simulation runs in a datastore.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/filecoin-project/go-chainsim/config"
	"github.com/filecoin-project/go-chainsim/sim"
	"github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/namespace"
	"github.com/ipfs/go-datastore/query"
	"golang.org/x/xerrors"
)

var ErrRunNotFound = errors.New("run not found")

// Run is the outcome of one simulation run.
type Run struct {
	ID       uint64          `json:"id"`
	Settings config.Settings `json:"settings"`
	// Events is the number of events dispatched.
	Events int `json:"events"`
	// Digest identifies the dispatched events.
	Digest    string        `json:"digest"`
	Summaries []sim.Summary `json:"-"`
}

// Store keeps runs under /chainsim/runs/<id>, with the summary of each miner
// under /chainsim/runs/<id>/miners/<miner>.
type Store struct {
	ds datastore.Batching
}

// NewStore wraps ds, which has to be thread safe if the store is shared.
func NewStore(ds datastore.Batching) *Store {
	return &Store{ds: namespace.Wrap(ds, datastore.NewKey("/chainsim"))}
}

func runKey(id uint64) datastore.Key {
	return datastore.NewKey(fmt.Sprintf("/runs/%020d", id))
}

func minersKey(id uint64) datastore.Key {
	return runKey(id).ChildString("miners")
}

// Put stores r, replacing any run with the same id in a single batch.
func (s *Store) Put(ctx context.Context, r Run) error {
	stale, err := s.summaryKeys(ctx, r.ID)
	if err != nil {
		return err
	}
	batch, err := s.ds.Batch(ctx)
	if err != nil {
		return xerrors.Errorf("starting batch: %w", err)
	}
	for _, key := range stale {
		if err := batch.Delete(ctx, key); err != nil {
			return xerrors.Errorf("deleting %s: %w", key, err)
		}
	}
	b, err := json.Marshal(r)
	if err != nil {
		return xerrors.Errorf("marshalling run %d: %w", r.ID, err)
	}
	if err := batch.Put(ctx, runKey(r.ID), b); err != nil {
		return xerrors.Errorf("putting run %d: %w", r.ID, err)
	}
	for _, summary := range r.Summaries {
		b, err := json.Marshal(summary)
		if err != nil {
			return xerrors.Errorf("marshalling summary of miner %d: %w", summary.Miner, err)
		}
		key := minersKey(r.ID).ChildString(fmt.Sprintf("%010d", summary.Miner))
		if err := batch.Put(ctx, key, b); err != nil {
			return xerrors.Errorf("putting summary of miner %d: %w", summary.Miner, err)
		}
	}
	if err := batch.Commit(ctx); err != nil {
		return xerrors.Errorf("committing run %d: %w", r.ID, err)
	}
	return nil
}

// Get returns the run with the given id and the summaries of its miners in id
// order.
func (s *Store) Get(ctx context.Context, id uint64) (Run, error) {
	b, err := s.ds.Get(ctx, runKey(id))
	if errors.Is(err, datastore.ErrNotFound) {
		return Run{}, xerrors.Errorf("run %d: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return Run{}, xerrors.Errorf("accessing run %d: %w", id, err)
	}
	var r Run
	if err := json.Unmarshal(b, &r); err != nil {
		return Run{}, xerrors.Errorf("unmarshalling run %d: %w", id, err)
	}

	res, err := s.ds.Query(ctx, query.Query{
		Prefix: minersKey(id).String(),
		Orders: []query.Order{query.OrderByKey{}},
	})
	if err != nil {
		return Run{}, xerrors.Errorf("querying summaries of run %d: %w", id, err)
	}
	entries, err := res.Rest()
	if err != nil {
		return Run{}, xerrors.Errorf("reading summaries of run %d: %w", id, err)
	}
	r.Summaries = make([]sim.Summary, len(entries))
	for i, entry := range entries {
		if err := json.Unmarshal(entry.Value, &r.Summaries[i]); err != nil {
			return Run{}, xerrors.Errorf("unmarshalling summary %s: %w", entry.Key, err)
		}
	}
	return r, nil
}

// Runs returns the ids of every stored run in ascending order.
func (s *Store) Runs(ctx context.Context) ([]uint64, error) {
	res, err := s.ds.Query(ctx, query.Query{
		Prefix:   "/runs",
		KeysOnly: true,
		Orders:   []query.Order{query.OrderByKey{}},
	})
	if err != nil {
		return nil, xerrors.Errorf("querying runs: %w", err)
	}
	defer res.Close()

	var ids []uint64
	for entry := range res.Next() {
		if entry.Error != nil {
			return nil, xerrors.Errorf("reading runs: %w", entry.Error)
		}
		// Only run keys have exactly two components.
		parts := strings.Split(strings.TrimPrefix(entry.Key, "/"), "/")
		if len(parts) != 2 {
			continue
		}
		id, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			return nil, xerrors.Errorf("parsing run key %s: %w", entry.Key, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Delete removes the run with the given id, if stored.
func (s *Store) Delete(ctx context.Context, id uint64) error {
	keys, err := s.summaryKeys(ctx, id)
	if err != nil {
		return err
	}
	batch, err := s.ds.Batch(ctx)
	if err != nil {
		return xerrors.Errorf("starting batch: %w", err)
	}
	for _, key := range append(keys, runKey(id)) {
		if err := batch.Delete(ctx, key); err != nil {
			return xerrors.Errorf("deleting %s: %w", key, err)
		}
	}
	if err := batch.Commit(ctx); err != nil {
		return xerrors.Errorf("deleting run %d: %w", id, err)
	}
	return nil
}

// summaryKeys returns the keys of the stored summaries of a run.
func (s *Store) summaryKeys(ctx context.Context, id uint64) ([]datastore.Key, error) {
	res, err := s.ds.Query(ctx, query.Query{Prefix: minersKey(id).String(), KeysOnly: true})
	if err != nil {
		return nil, xerrors.Errorf("querying summaries of run %d: %w", id, err)
	}
	entries, err := res.Rest()
	if err != nil {
		return nil, xerrors.Errorf("reading summaries of run %d: %w", id, err)
	}
	keys := make([]datastore.Key, len(entries))
	for i, entry := range entries {
		keys[i] = datastore.NewKey(entry.Key)
	}
	return keys, nil
}
