package sim

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/filecoin-project/go-chainsim/chain"
	"github.com/filecoin-project/go-chainsim/config"
	"github.com/filecoin-project/go-chainsim/miner"
	"github.com/stretchr/testify/require"
)

func testSettings() config.Settings {
	return config.Settings{
		TotalNodes:    8,
		TxnInterval:   2 * time.Second,
		BlockInterval: 10 * time.Second,
		Timeout:       time.Second,
		BlockLimit:    15,
		Seed:          1413,
	}
}

func run(t *testing.T, o ...Option) *Simulation {
	t.Helper()
	subject, err := NewSimulation(o...)
	require.NoError(t, err)
	require.NoError(t, subject.Run(context.Background()))
	return subject
}

func TestNewSimulation_RejectsInvalidSettings(t *testing.T) {
	settings := testSettings()
	settings.TotalNodes = 1
	settings.Timeout = 0
	_, err := NewSimulation(WithSettings(settings))
	require.ErrorIs(t, err, config.ErrInvalidArgument)
}

func TestNewSimulation_AssignsRoles(t *testing.T) {
	for _, test := range []struct {
		name      string
		fraction  float64
		wantRoles []miner.Role
		wantPower []float64
	}{
		{
			name:      "honest",
			wantRoles: []miner.Role{miner.Honest, miner.Honest, miner.Honest, miner.Honest},
			wantPower: []float64{0.25, 0.25, 0.25, 0.25},
		},
		{
			name:      "single adversary",
			fraction:  0.25,
			wantRoles: []miner.Role{miner.RingMaster, miner.Honest, miner.Honest, miner.Honest},
			wantPower: []float64{0.25, 0.25, 0.25, 0.25},
		},
		{
			name:      "coalition",
			fraction:  0.6,
			wantRoles: []miner.Role{miner.RingMaster, miner.Eclipsing, miner.Honest, miner.Honest},
			wantPower: []float64{0.5, 0, 0.25, 0.25},
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			settings := testSettings()
			settings.TotalNodes = 4
			subject, err := NewSimulation(WithSettings(settings), WithMaliciousFraction(test.fraction))
			require.NoError(t, err)
			require.Len(t, subject.Miners(), 4)
			for i, m := range subject.Miners() {
				require.Equal(t, chain.MinerID(i), m.ID())
				require.Equal(t, test.wantRoles[i], m.Role())
				require.InDelta(t, test.wantPower[i], subject.hashPower[i], 1e-9)
				honest, _ := m.Neighbors()
				require.Len(t, honest, 3, "small networks are complete")
			}
			require.Nil(t, subject.Miner(4))
		})
	}
}

func TestSimulation_HonestRunConverges(t *testing.T) {
	subject := run(t, WithSettings(testSettings()))

	require.Greater(t, subject.Confirmed(), testSettings().BlockLimit)
	require.Zero(t, subject.queue.Len())
	height := subject.Miner(0).Tree().Height()
	require.Positive(t, height)
	var mined int
	for _, m := range subject.Miners() {
		require.Equal(t, height, m.Tree().Height(), "miner %d", m.ID())
		require.Equal(t, subject.Confirmed()+1, m.Tree().Len(), "every mined block reaches miner %d", m.ID())
		mined += m.Mined()
	}
	require.Equal(t, subject.Confirmed(), mined)

	summaries := subject.Summaries()
	require.Len(t, summaries, testSettings().TotalNodes)
	for _, s := range summaries {
		require.GreaterOrEqual(t, s.Balance, int64(0))
		require.LessOrEqual(t, s.MainChain, s.Mined)
	}
	var total int64
	for _, m := range subject.Miners() {
		total += subject.Miner(0).Tree().Balance(m.ID())
	}
	require.Equal(t, int64(height)*chain.Reward, total, "transfers conserve minted rewards")
}

func TestSimulation_IsReproducible(t *testing.T) {
	settings := testSettings()
	settings.MaliciousFraction = 0.25
	settings.Eclipse = true

	first := run(t, WithSettings(settings))
	second := run(t, WithSettings(settings))
	require.Equal(t, first.Dispatched(), second.Dispatched())
	require.Equal(t, first.Summaries(), second.Summaries())
	require.Positive(t, first.Dispatched().Events)

	other := run(t, WithSettings(settings), WithSeed(settings.Seed+1))
	require.NotEqual(t, first.Dispatched().Digest, other.Dispatched().Digest)
}

func TestSimulation_StopsAtTimeLimit(t *testing.T) {
	settings := testSettings()
	settings.BlockLimit = 0
	settings.TimeLimit = time.Minute

	subject := run(t, WithSettings(settings))
	require.Greater(t, subject.Elapsed(), time.Minute)
	require.Zero(t, subject.queue.Len())
}

func TestSimulation_HonoursCancellation(t *testing.T) {
	subject, err := NewSimulation(WithSettings(testSettings()))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, subject.Run(ctx), context.Canceled)
}

func TestSimulation_SelfishMiningIsRevealedAtEnd(t *testing.T) {
	settings := testSettings()
	settings.MaliciousFraction = 0.5
	settings.BlockLimit = 20

	subject := run(t, WithSettings(settings), WithRevealPolicy(miner.RevealAtEnd))
	ringMaster := subject.Miner(0)
	require.Equal(t, miner.RingMaster, ringMaster.Role())
	require.Zero(t, ringMaster.Withheld())
	require.Equal(t, ringMaster.PrivateTree().Height(), ringMaster.Tree().Height())
	for _, m := range subject.Miners() {
		require.Equal(t, ringMaster.Tree().Height(), m.Tree().Height(), "miner %d", m.ID())
	}
	require.Equal(t, ringMaster.Reveals(), subject.revealed)
}

func TestSimulation_WriteTrees(t *testing.T) {
	settings := testSettings()
	settings.TotalNodes = 5
	settings.MaliciousFraction = 0.4
	settings.BlockLimit = 3
	subject := run(t, WithSettings(settings))

	dir := t.TempDir()
	require.NoError(t, subject.WriteTrees(dir))
	for _, name := range []string{"miner0", "miner0_private", "miner1", "miner4", "honest", "malicious"} {
		content, err := os.ReadFile(filepath.Join(dir, name+".dot"))
		require.NoError(t, err, name)
		require.Contains(t, string(content), name)
	}
	_, err := os.Stat(filepath.Join(dir, "miner1_private.dot"))
	require.True(t, os.IsNotExist(err))
}
