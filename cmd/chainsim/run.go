package main

import (
	"encoding/hex"
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/filecoin-project/go-chainsim/config"
	"github.com/filecoin-project/go-chainsim/miner"
	"github.com/filecoin-project/go-chainsim/report"
	"github.com/filecoin-project/go-chainsim/sim"
	leveldb "github.com/ipfs/go-ds-leveldb"
	logging "github.com/ipfs/go-log/v2"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

var log = logging.Logger("chainsim")

var runCmd = cli.Command{
	Name:  "run",
	Usage: "runs simulation iterations and prints per-miner summaries",
	Flags: []cli.Flag{
		&cli.PathFlag{
			Name:  "settings",
			Usage: "path to a JSON settings file; flags override its values",
		},
		&cli.IntFlag{
			Name:  "total-nodes",
			Usage: "number of miners",
		},
		&cli.DurationFlag{
			Name:  "ttx-time",
			Usage: "mean time between two transactions of a miner",
		},
		&cli.DurationFlag{
			Name:  "blk-time",
			Usage: "mean time for the network to mine a block",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "mean time to wait for a requested block",
		},
		&cli.IntFlag{
			Name:  "blk-limit",
			Usage: "stop generating blocks once more than this many were mined",
		},
		&cli.DurationFlag{
			Name:  "time-limit",
			Usage: "stop generating blocks once the simulated clock passes this",
		},
		&cli.Float64Flag{
			Name:  "malicious",
			Usage: "fraction of miners that are adversaries",
		},
		&cli.BoolFlag{
			Name:  "eclipse",
			Usage: "adversaries withhold honest blocks from honest peers",
		},
		&cli.StringFlag{
			Name:  "reveal",
			Usage: "when the ring master reveals its private chain: on-threat or at-end",
			Value: miner.RevealOnThreat.String(),
		},
		&cli.Uint64Flag{
			Name:  "seed",
			Usage: "seed of the first iteration, incremented for successive iterations",
		},
		&cli.IntFlag{
			Name:  "iterations",
			Usage: "number of simulation iterations",
			Value: 1,
		},
		&cli.IntFlag{
			Name:  "parallelism",
			Usage: "number of iterations to run concurrently",
			Value: runtime.NumCPU(),
		},
		&cli.PathFlag{
			Name:  "out",
			Usage: "directory to export block trees and peer graphs to as GraphViz files",
		},
		&cli.PathFlag{
			Name:  "db",
			Usage: "path of a leveldb datastore to record summaries in",
		},
		&cli.IntFlag{
			Name:  "trace",
			Usage: "trace verbosity level",
			Value: sim.TraceNone,
		},
	},
	Action: func(c *cli.Context) error {
		settings, err := loadSettings(c)
		if err != nil {
			return err
		}
		reveal, err := parseRevealPolicy(c.String("reveal"))
		if err != nil {
			return err
		}
		if c.Int("trace") > sim.TraceNone {
			if err := logging.SetLogLevel("chainsim/sim", "info"); err != nil {
				return xerrors.Errorf("setting log level: %w", err)
			}
		}
		iterations := c.Int("iterations")
		if iterations < 1 {
			return xerrors.Errorf("iterations must be at least 1, got %d: %w", iterations, config.ErrInvalidArgument)
		}

		var store *report.Store
		if path := c.Path("db"); path != "" {
			ds, err := leveldb.NewDatastore(path, nil)
			if err != nil {
				return xerrors.Errorf("opening datastore: %w", err)
			}
			defer func() {
				if err := ds.Close(); err != nil {
					log.Errorw("failed to close datastore", "err", err)
				}
			}()
			store = report.NewStore(ds)
		}

		runs := make([]report.Run, iterations)
		eg, ctx := errgroup.WithContext(c.Context)
		eg.SetLimit(max(1, c.Int("parallelism")))
		for i := range runs {
			iteration := settings
			// Increment seed for successive iterations.
			iteration.Seed += uint64(i)
			eg.Go(func() error {
				sm, err := sim.NewSimulation(
					sim.WithSettings(iteration),
					sim.WithRevealPolicy(reveal),
					sim.WithTraceLevel(c.Int("trace")),
				)
				if err != nil {
					return xerrors.Errorf("iteration %d: %w", i, err)
				}
				if err := sm.Run(ctx); err != nil {
					return xerrors.Errorf("iteration %d: %w", i, err)
				}
				if out := c.Path("out"); out != "" {
					if err := sm.WriteTrees(filepath.Join(out, fmt.Sprintf("seed-%d", iteration.Seed))); err != nil {
						return xerrors.Errorf("iteration %d: %w", i, err)
					}
				}
				trace := sm.Dispatched()
				runs[i] = report.Run{
					ID:        iteration.Seed,
					Settings:  iteration,
					Events:    trace.Events,
					Digest:    hex.EncodeToString(trace.Digest[:]),
					Summaries: sm.Summaries(),
				}
				if store != nil {
					if err := store.Put(ctx, runs[i]); err != nil {
						return xerrors.Errorf("recording iteration %d: %w", i, err)
					}
				}
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return err
		}

		for i, r := range runs {
			fmt.Fprintf(c.App.Writer, "Iteration %d: seed=%d, events=%d, digest=%s\n", i, r.ID, r.Events, r.Digest[:16])
			for _, s := range r.Summaries {
				fmt.Fprintf(c.App.Writer, "  %s\n", s)
			}
			honest := sim.MeanShare(r.Summaries, func(s sim.Summary) bool { return s.Role == miner.Honest.String() })
			ringMaster := sim.MeanShare(r.Summaries, func(s sim.Summary) bool { return s.Role == miner.RingMaster.String() })
			fmt.Fprintf(c.App.Writer, "  mean main chain share: honest %.3f, ring master %.3f\n", honest, ringMaster)
		}
		return nil
	},
}

func parseRevealPolicy(s string) (miner.RevealPolicy, error) {
	for _, p := range []miner.RevealPolicy{miner.RevealOnThreat, miner.RevealAtEnd} {
		if p.String() == s {
			return p, nil
		}
	}
	return 0, xerrors.Errorf("unknown reveal policy %q: %w", s, config.ErrInvalidArgument)
}
