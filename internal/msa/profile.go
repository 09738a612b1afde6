package msa

import (
	"math"
	"sort"
)

// MaxBits is the information content of a fully conserved amino-acid column.
var MaxBits = math.Log2(20)

// ResidueHeight is one stacked letter of a sequence logo column.
type ResidueHeight struct {
	Residue   string  `json:"residue"`
	Frequency float64 `json:"frequency"`
	Height    float64 `json:"height"`
}

// Column is one position of a sequence logo.
type Column struct {
	Position int             `json:"position"`
	Bits     float64         `json:"bits"`
	Residues []ResidueHeight `json:"residues"`
}

// Profile computes per-column residue frequencies and information content of
// an alignment. Shorter sequences are treated as gap-padded. Residues in each
// column are ordered by descending frequency.
func Profile(aligned []Sequence) []Column {
	padded := Pad(aligned)
	if len(padded) == 0 {
		return []Column{}
	}
	width := len(padded[0].Seq)
	total := float64(len(padded))

	cols := make([]Column, width)
	for pos := 0; pos < width; pos++ {
		counts := make(map[byte]int)
		for _, s := range padded {
			counts[s.Seq[pos]]++
		}

		entropy := 0.0
		residues := make([]ResidueHeight, 0, len(counts))
		for r, c := range counts {
			f := float64(c) / total
			entropy -= f * math.Log2(f)
			residues = append(residues, ResidueHeight{Residue: string(r), Frequency: f})
		}
		bits := math.Max(0, MaxBits-entropy)

		sort.Slice(residues, func(i, j int) bool {
			if residues[i].Frequency != residues[j].Frequency {
				return residues[i].Frequency > residues[j].Frequency
			}
			return residues[i].Residue < residues[j].Residue
		})
		for i := range residues {
			residues[i].Height = residues[i].Frequency * bits
		}

		cols[pos] = Column{Position: pos + 1, Bits: bits, Residues: residues}
	}
	return cols
}
