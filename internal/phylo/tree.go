package phylo

import (
	"github.com/bcrlab/bcrview/internal/msa"
	"github.com/bcrlab/bcrview/internal/pipeline"
)

// Placeholder is returned whenever a real tree cannot be built.
const Placeholder = "(A,B);"

// TreeFromEntry returns the Newick tree of one chain of a cached entry, with
// leaves named by the entry's label map. Duplicate labels keep their first
// sequence. Fewer than two leaves, sequences of unequal or zero length, and
// any build failure yield Placeholder.
func TreeFromEntry(e *pipeline.Entry, c pipeline.Chain) string {
	if e == nil {
		return Placeholder
	}
	newick, err := Tree(e.View(c).Labelled())
	if err != nil {
		return Placeholder
	}
	return newick
}

// Tree builds a neighbor-joining tree over identity distances of the aligned
// sequences, named by their ids.
func Tree(seqs []msa.Sequence) (string, error) {
	leaves := uniqueByID(seqs)
	if len(leaves) < 2 {
		return "", ErrDegenerate
	}
	width := len(leaves[0].Seq)
	if width == 0 {
		return "", ErrDegenerate
	}
	for _, s := range leaves[1:] {
		if len(s.Seq) != width {
			return "", ErrDegenerate
		}
	}

	names := make([]string, len(leaves))
	dist := make([][]float64, len(leaves))
	for i, a := range leaves {
		names[i] = a.ID
		dist[i] = make([]float64, len(leaves))
		for j, b := range leaves {
			dist[i][j] = msa.HammingFraction(a.Seq, b.Seq)
		}
	}

	root, err := NeighborJoining(names, dist)
	if err != nil {
		return "", err
	}
	return root.Newick(), nil
}

func uniqueByID(seqs []msa.Sequence) []msa.Sequence {
	seen := make(map[string]bool, len(seqs))
	out := make([]msa.Sequence, 0, len(seqs))
	for _, s := range seqs {
		if seen[s.ID] {
			continue
		}
		seen[s.ID] = true
		out = append(out, s)
	}
	return out
}
