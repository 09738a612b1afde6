package msa

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Result is the alignment of one chain: aligned sequences in display order,
// their consensus and the per-position match matrix.
type Result struct {
	Alignment []Sequence
	Consensus string
	// MatchMatrix has one row per consensus position and one column per
	// aligned sequence; true where the residue equals the consensus.
	MatchMatrix [][]bool
}

// Engine runs an Aligner and derives consensus, match matrix and display
// order from its output.
type Engine struct {
	aligner Aligner
	logger  *zap.Logger
}

// NewEngine creates an engine using the given aligner.
func NewEngine(aligner Aligner) *Engine {
	return &Engine{
		aligner: aligner,
		logger:  zap.NewNop(),
	}
}

// SetLogger sets the logger for the engine.
func (e *Engine) SetLogger(logger *zap.Logger) {
	e.logger = logger
}

// Run aligns seqs. No sequences yield an empty result and a single sequence
// is returned as-is with an empty match matrix. Two or more are aligned,
// padded to a common length and ordered by similarity.
func (e *Engine) Run(ctx context.Context, seqs []Sequence) (*Result, error) {
	switch len(seqs) {
	case 0:
		return &Result{Alignment: []Sequence{}, MatchMatrix: [][]bool{}}, nil
	case 1:
		return &Result{
			Alignment:   []Sequence{seqs[0]},
			Consensus:   seqs[0].Seq,
			MatchMatrix: [][]bool{},
		}, nil
	}

	aligned, err := e.aligner.Align(ctx, seqs)
	if err != nil {
		return nil, fmt.Errorf("align %d sequences: %w", len(seqs), err)
	}
	if len(aligned) != len(seqs) {
		return nil, fmt.Errorf("align %d sequences: aligner returned %d", len(seqs), len(aligned))
	}
	aligned = Pad(aligned)

	order := ClusterOrder(aligned)
	ordered := make([]Sequence, len(aligned))
	for i, idx := range order {
		ordered[i] = aligned[idx]
	}

	consensus := Consensus(ordered)
	e.logger.Debug("alignment complete",
		zap.Int("sequences", len(ordered)),
		zap.Int("columns", len(consensus)))

	return &Result{
		Alignment:   ordered,
		Consensus:   consensus,
		MatchMatrix: MatchMatrix(consensus, ordered),
	}, nil
}

// Consensus returns the most frequent residue, gaps included, at each column
// of an equal-length alignment. Ties go to the residue seen first in the
// column.
func Consensus(aligned []Sequence) string {
	if len(aligned) == 0 {
		return ""
	}
	width := len(aligned[0].Seq)
	out := make([]byte, width)
	var counts [256]int
	seen := make([]byte, 0, 8)
	for col := 0; col < width; col++ {
		clear(counts[:])
		seen = seen[:0]
		for _, s := range aligned {
			if col >= len(s.Seq) {
				continue
			}
			c := s.Seq[col]
			if counts[c] == 0 {
				seen = append(seen, c)
			}
			counts[c]++
		}
		best := byte(Gap)
		bestCount := 0
		for _, c := range seen {
			if counts[c] > bestCount {
				best, bestCount = c, counts[c]
			}
		}
		out[col] = best
	}
	return string(out)
}

// MatchMatrix compares each aligned residue with the consensus.
func MatchMatrix(consensus string, aligned []Sequence) [][]bool {
	m := make([][]bool, len(consensus))
	for pos := range m {
		row := make([]bool, len(aligned))
		for j, s := range aligned {
			row[j] = pos < len(s.Seq) && s.Seq[pos] == consensus[pos]
		}
		m[pos] = row
	}
	return m
}
