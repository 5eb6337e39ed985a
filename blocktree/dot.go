package blocktree

import (
	"fmt"
	"io"
	"strconv"

	"github.com/filecoin-project/go-chainsim/chain"
	"golang.org/x/xerrors"
	"gonum.org/v1/gonum/graph/encoding"
	"gonum.org/v1/gonum/graph/encoding/dot"
	"gonum.org/v1/gonum/graph/simple"
)

var (
	_ dot.Node            = dotNode{}
	_ encoding.Attributer = dotNode{}
	_ dot.Attributers     = dotGraph{}
)

type dotNode struct {
	block  chain.Block
	height uint64
	main   bool
}

func (n dotNode) ID() int64 { return int64(n.block.ID) }

func (n dotNode) DOTID() string { return strconv.FormatUint(uint64(n.block.ID), 10) }

func (n dotNode) Attributes() []encoding.Attribute {
	owner := "genesis"
	if !n.block.IsGenesis() {
		owner = fmt.Sprintf("miner %d", n.block.Owner)
	}
	attrs := []encoding.Attribute{
		{Key: "label", Value: fmt.Sprintf("%d\nheight %d\nparent %d\n%s", n.block.ID, n.height, n.block.ParentID, owner)},
	}
	if n.main {
		attrs = append(attrs, encoding.Attribute{Key: "style", Value: "filled"})
	}
	return attrs
}

type attributes []encoding.Attribute

func (a attributes) Attributes() []encoding.Attribute { return a }

type dotGraph struct{ *simple.DirectedGraph }

func (dotGraph) DOTAttributers() (graph, node, edge encoding.Attributer) {
	return attributes{{Key: "rankdir", Value: "LR"}}, attributes{{Key: "shape", Value: "box"}}, attributes{}
}

// WriteDOT writes the tree as a GraphViz digraph named name. Every node is
// labelled with its id, height, parent and owner; the adopted chain is filled.
func (t *BlockTree) WriteDOT(w io.Writer, name string) error {
	g := dotGraph{simple.NewDirectedGraph()}
	main := t.onMainChain()
	nodes := make([]dotNode, len(t.nodes))
	for i, n := range t.nodes {
		nodes[i] = dotNode{block: n.block, height: n.height, main: main[i]}
		g.AddNode(nodes[i])
	}
	for i, n := range t.nodes {
		if n.parent != noNode {
			g.SetEdge(g.NewEdge(nodes[n.parent], nodes[i]))
		}
	}
	b, err := dot.Marshal(g, name, "", "  ")
	if err != nil {
		return xerrors.Errorf("marshalling block tree: %w", err)
	}
	if _, err := w.Write(b); err != nil {
		return xerrors.Errorf("writing block tree: %w", err)
	}
	return nil
}
