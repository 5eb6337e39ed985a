package sim

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/filecoin-project/go-chainsim/chain"
	"golang.org/x/xerrors"
	"gonum.org/v1/gonum/stat"
)

// Summary describes the final state of one miner.
type Summary struct {
	Miner     chain.MinerID `json:"miner"`
	Role      string        `json:"role"`
	HashPower float64       `json:"hashPower"`
	// Mined is the number of blocks the miner mined.
	Mined int `json:"mined"`
	// MainChain is the number of blocks mined by the miner on its own adopted
	// chain.
	MainChain int `json:"mainChain"`
	// Ratio is MainChain over Mined.
	Ratio float64 `json:"ratio"`
	// Share is MainChain over the length of the adopted chain.
	Share               float64 `json:"share"`
	Height              uint64  `json:"height"`
	Blocks              int     `json:"blocks"`
	Balance             int64   `json:"balance"`
	AverageBranchLength float64 `json:"averageBranchLength"`
	Reorgs              int     `json:"reorgs"`
	DeepestReorg        int     `json:"deepestReorg"`
	Reveals             int     `json:"reveals"`
}

func (s Summary) String() string {
	return fmt.Sprintf("miner %d (%s, power %.3f): mined %d, main chain %d (ratio %.3f, share %.3f), height %d, balance %d, avg branch %.2f, reorgs %d (deepest %d)",
		s.Miner, s.Role, s.HashPower, s.Mined, s.MainChain, s.Ratio, s.Share, s.Height, s.Balance, s.AverageBranchLength, s.Reorgs, s.DeepestReorg)
}

// Summaries returns the summary of every miner in id order.
func (s *Simulation) Summaries() []Summary {
	summaries := make([]Summary, len(s.miners))
	for i, m := range s.miners {
		tree := m.Tree()
		stats := tree.Stats()
		summary := Summary{
			Miner:               m.ID(),
			Role:                m.Role().String(),
			HashPower:           s.hashPower[i],
			Mined:               m.Mined(),
			MainChain:           tree.MainChainCount(m.ID()),
			Height:              tree.Height(),
			Blocks:              tree.Len() - 1,
			Balance:             tree.Balance(m.ID()),
			AverageBranchLength: tree.AverageBranchLength(),
			Reorgs:              stats.Reorgs,
			DeepestReorg:        stats.DeepestReorg,
			Reveals:             m.Reveals(),
		}
		if summary.Mined > 0 {
			summary.Ratio = float64(summary.MainChain) / float64(summary.Mined)
		}
		if summary.Height > 0 {
			summary.Share = float64(summary.MainChain) / float64(summary.Height)
		}
		summaries[i] = summary
	}
	return summaries
}

// MeanShare returns the mean main chain share of the miners selected by
// include.
func MeanShare(summaries []Summary, include func(Summary) bool) float64 {
	var shares []float64
	for _, s := range summaries {
		if include(s) {
			shares = append(shares, s.Share)
		}
	}
	if len(shares) == 0 {
		return 0
	}
	return stat.Mean(shares, nil)
}

type dotWriter interface {
	WriteDOT(io.Writer, string) error
}

// WriteTrees writes the block tree of every miner, the private chain of ring
// masters and the peer graphs as GraphViz files under dir.
func (s *Simulation) WriteTrees(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return xerrors.Errorf("creating output directory: %w", err)
	}
	for _, m := range s.miners {
		name := fmt.Sprintf("miner%d", m.ID())
		if err := writeDOT(dir, name, m.Tree()); err != nil {
			return err
		}
		if private := m.PrivateTree(); private != nil {
			if err := writeDOT(dir, name+"_private", private); err != nil {
				return err
			}
		}
	}
	for name, network := range map[string]Network{"honest": s.honestNetwork, "malicious": s.maliciousNetwork} {
		if w, ok := network.(dotWriter); ok {
			if err := writeDOT(dir, name, w); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeDOT(dir, name string, w dotWriter) (_err error) {
	path := filepath.Join(dir, name+".dot")
	f, err := os.Create(path)
	if err != nil {
		return xerrors.Errorf("creating %s: %w", path, err)
	}
	defer func() {
		if err := f.Close(); err != nil && _err == nil {
			_err = xerrors.Errorf("closing %s: %w", path, err)
		}
	}()
	if err := w.WriteDOT(f, name); err != nil {
		return xerrors.Errorf("writing %s: %w", path, err)
	}
	return nil
}
