package topology_test

import (
	"bytes"
	"slices"
	"testing"
	"time"

	"github.com/filecoin-project/go-chainsim/chain"
	"github.com/filecoin-project/go-chainsim/sim/latency"
	"github.com/filecoin-project/go-chainsim/sim/topology"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

func miners(n int) []chain.MinerID {
	ids := make([]chain.MinerID, n)
	for i := range ids {
		ids[i] = chain.MinerID(i)
	}
	return ids
}

func TestGenerate(t *testing.T) {
	for _, test := range []struct {
		name          string
		given         []chain.MinerID
		wantMinDegree int
	}{
		{name: "single", given: miners(1), wantMinDegree: 0},
		{name: "pair", given: miners(2), wantMinDegree: 1},
		{name: "four", given: miners(4), wantMinDegree: 3},
		{name: "five", given: miners(5), wantMinDegree: topology.MinDegree},
		{name: "ten", given: miners(10), wantMinDegree: topology.MinDegree},
		{name: "hundred", given: miners(100), wantMinDegree: topology.MinDegree},
		{name: "sparse ids", given: []chain.MinerID{9, 3, 7, 1, 12, 4}, wantMinDegree: topology.MinDegree},
	} {
		t.Run(test.name, func(t *testing.T) {
			subject, err := topology.Generate(test.given, rand.New(rand.NewSource(42)))
			require.NoError(t, err)
			require.True(t, subject.Connected())
			require.ElementsMatch(t, test.given, subject.Miners())
			for _, id := range test.given {
				neighbors := subject.Neighbors(id)
				require.True(t, slices.IsSorted(neighbors))
				require.GreaterOrEqual(t, len(neighbors), test.wantMinDegree)
				require.LessOrEqual(t, len(neighbors), topology.MaxDegree)
				require.Equal(t, len(neighbors), subject.Degree(id))
				for _, neighbor := range neighbors {
					require.NotEqual(t, id, neighbor)
					require.Contains(t, subject.Neighbors(neighbor), id)
					require.True(t, subject.Connects(id, neighbor))
				}
			}
		})
	}
}

func TestGenerate_IsReproducible(t *testing.T) {
	generate := func() map[chain.MinerID][]chain.MinerID {
		g, err := topology.Generate(miners(30), rand.New(rand.NewSource(7)))
		require.NoError(t, err)
		adjacency := make(map[chain.MinerID][]chain.MinerID)
		for _, id := range g.Miners() {
			adjacency[id] = g.Neighbors(id)
		}
		return adjacency
	}
	require.Equal(t, generate(), generate())
}

func TestGenerate_RequiresMiners(t *testing.T) {
	_, err := topology.Generate(nil, rand.New(rand.NewSource(1)))
	require.Error(t, err)
}

func TestNetwork(t *testing.T) {
	g, err := topology.Generate(miners(6), rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	subject := topology.NewNetwork(g, latency.None)
	require.Zero(t, subject.Latency(time.Time{}, 0, 1, chain.TxnSize))
	require.Nil(t, subject.Neighbors(99))

	var buf bytes.Buffer
	require.NoError(t, subject.WriteDOT(&buf, "honest"))
	require.Contains(t, buf.String(), "graph honest {")
	require.Contains(t, buf.String(), " -- ")
}
