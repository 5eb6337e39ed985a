// Package topology generates the peer graphs miners relay over and models the
// latency of their links.
package topology

import (
	"cmp"
	"errors"
	"io"
	"slices"
	"time"

	"github.com/filecoin-project/go-chainsim/chain"
	"github.com/filecoin-project/go-chainsim/sim/latency"
	"golang.org/x/exp/rand"
	"golang.org/x/xerrors"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/encoding/dot"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

const (
	// MinDegree is the number of peers every miner is connected to, unless
	// there are too few miners.
	MinDegree = 3
	// MaxDegree caps the number of peers of a miner.
	MaxDegree = 6

	maxAttempts = 100
)

// ErrDisconnected signals that no connected graph could be generated.
var ErrDisconnected = errors.New("could not generate a connected graph")

// Graph is an undirected peer graph over a set of miners.
type Graph struct {
	g *simple.UndirectedGraph
}

// Generate returns a random connected graph over the given miners in which
// every miner has between MinDegree and MaxDegree peers. Up to MinDegree+1
// miners are fully connected.
func Generate(miners []chain.MinerID, rng *rand.Rand) (*Graph, error) {
	if len(miners) == 0 {
		return nil, errors.New("at least one miner is required")
	}
	ids := slices.Clone(miners)
	slices.Sort(ids)
	if len(ids) <= MinDegree+1 {
		return complete(ids), nil
	}
	for attempt := 0; attempt < maxAttempts; attempt++ {
		g, ok := sample(ids, rng)
		if ok && g.Connected() {
			return g, nil
		}
	}
	return nil, xerrors.Errorf("generating graph of %d miners after %d attempts: %w", len(ids), maxAttempts, ErrDisconnected)
}

func newGraph(ids []chain.MinerID) *Graph {
	g := simple.NewUndirectedGraph()
	for _, id := range ids {
		g.AddNode(simple.Node(id))
	}
	return &Graph{g: g}
}

func complete(ids []chain.MinerID) *Graph {
	g := newGraph(ids)
	for i, a := range ids {
		for _, b := range ids[i+1:] {
			g.connect(a, b)
		}
	}
	return g
}

// sample connects every miner to MinDegree random peers, then augments each
// miner up to a random degree in [MinDegree, MaxDegree].
func sample(ids []chain.MinerID, rng *rand.Rand) (*Graph, bool) {
	g := newGraph(ids)
	order := slices.Clone(ids)
	rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	for _, id := range order {
		for g.Degree(id) < MinDegree {
			if !g.connectRandom(id, ids, rng) {
				return nil, false
			}
		}
	}
	for _, id := range order {
		want := MinDegree + rng.Intn(MaxDegree-MinDegree+1)
		for g.Degree(id) < want && g.connectRandom(id, ids, rng) {
		}
	}
	return g, true
}

// connectRandom connects id to a random miner it is not yet connected to and
// that has room for another peer.
func (g *Graph) connectRandom(id chain.MinerID, ids []chain.MinerID, rng *rand.Rand) bool {
	var candidates []chain.MinerID
	for _, other := range ids {
		if other != id && !g.g.HasEdgeBetween(int64(id), int64(other)) && g.Degree(other) < MaxDegree {
			candidates = append(candidates, other)
		}
	}
	if len(candidates) == 0 {
		return false
	}
	g.connect(id, candidates[rng.Intn(len(candidates))])
	return true
}

func (g *Graph) connect(a, b chain.MinerID) {
	g.g.SetEdge(simple.Edge{F: simple.Node(a), T: simple.Node(b)})
}

// Degree returns the number of peers of a miner.
func (g *Graph) Degree(id chain.MinerID) int {
	return g.g.From(int64(id)).Len()
}

// Connected checks whether every miner can reach every other.
func (g *Graph) Connected() bool {
	return len(topo.ConnectedComponents(g.g)) == 1
}

// Miners returns the miners of the graph in ascending order.
func (g *Graph) Miners() []chain.MinerID {
	return sortedIDs(g.g.Nodes())
}

// Neighbors returns the peers of a miner in ascending order.
func (g *Graph) Neighbors(id chain.MinerID) []chain.MinerID {
	if g.g.Node(int64(id)) == nil {
		return nil
	}
	return sortedIDs(g.g.From(int64(id)))
}

func (g *Graph) Connects(a, b chain.MinerID) bool {
	return g.g.HasEdgeBetween(int64(a), int64(b))
}

// WriteDOT writes the graph as a GraphViz graph named name.
func (g *Graph) WriteDOT(w io.Writer, name string) error {
	b, err := dot.Marshal(g.g, name, "", "  ")
	if err != nil {
		return xerrors.Errorf("marshalling peer graph: %w", err)
	}
	if _, err := w.Write(b); err != nil {
		return xerrors.Errorf("writing peer graph: %w", err)
	}
	return nil
}

func sortedIDs(nodes graph.Nodes) []chain.MinerID {
	var ids []chain.MinerID
	for nodes.Next() {
		ids = append(ids, chain.MinerID(nodes.Node().ID()))
	}
	slices.SortFunc(ids, cmp.Compare[chain.MinerID])
	return ids
}

// Network is a peer graph whose links have latency.
type Network struct {
	*Graph
	model latency.Model
}

func NewNetwork(g *Graph, model latency.Model) *Network {
	return &Network{Graph: g, model: model}
}

// Latency samples the delay of a message of size bytes sent at the given time.
func (n *Network) Latency(at time.Time, from, to chain.MinerID, size int) time.Duration {
	return n.model.Sample(at, from, to, size)
}
