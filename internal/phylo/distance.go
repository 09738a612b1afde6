package phylo

import (
	"errors"

	"github.com/bcrlab/bcrview/internal/msa"
	"github.com/bcrlab/bcrview/internal/pipeline"
)

// ErrNotEnoughSequences is returned when fewer than two sequences are
// available for a distance matrix.
var ErrNotEnoughSequences = errors.New("not enough sequences for a distance matrix")

// Matrix is a labelled, square, symmetric distance matrix.
type Matrix struct {
	Labels []string    `json:"labels"`
	Matrix [][]float64 `json:"matrix"`
}

// DistanceMatrixFromEntry computes pairwise mismatch percentages for one
// chain of a cached entry. Rows follow the alignment's display order and are
// named by the entry's label map.
func DistanceMatrixFromEntry(e *pipeline.Entry, c pipeline.Chain) (*Matrix, error) {
	if e == nil {
		return nil, ErrNotEnoughSequences
	}
	return DistanceMatrix(e.View(c).Labelled())
}

// DistanceMatrix computes pairwise mismatch percentages of aligned sequences.
func DistanceMatrix(seqs []msa.Sequence) (*Matrix, error) {
	if len(seqs) < 2 {
		return nil, ErrNotEnoughSequences
	}

	m := &Matrix{
		Labels: make([]string, len(seqs)),
		Matrix: make([][]float64, len(seqs)),
	}
	for i := range seqs {
		m.Labels[i] = seqs[i].ID
		m.Matrix[i] = make([]float64, len(seqs))
	}
	for i := range seqs {
		for j := i + 1; j < len(seqs); j++ {
			d := PercentMismatch(seqs[i].Seq, seqs[j].Seq)
			m.Matrix[i][j] = d
			m.Matrix[j][i] = d
		}
	}
	return m, nil
}

// PercentMismatch returns the percentage of differing positions between a
// and b, counting only positions where neither has a gap. Sequences with no
// such positions are at distance 0.
func PercentMismatch(a, b string) float64 {
	compared, mismatches := 0, 0
	for i := 0; i < min(len(a), len(b)); i++ {
		if a[i] == msa.Gap || b[i] == msa.Gap {
			continue
		}
		compared++
		if a[i] != b[i] {
			mismatches++
		}
	}
	if compared == 0 {
		return 0
	}
	return 100 * float64(mismatches) / float64(compared)
}
