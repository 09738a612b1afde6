package msa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfile(t *testing.T) {
	cols := Profile([]Sequence{
		{"1", "MK"},
		{"2", "MR"},
		{"3", "M"},
		{"4", "MK"},
	})
	require.Len(t, cols, 2)

	conserved := cols[0]
	assert.Equal(t, 1, conserved.Position)
	assert.InDelta(t, MaxBits, conserved.Bits, 1e-9)
	require.Len(t, conserved.Residues, 1)
	assert.Equal(t, "M", conserved.Residues[0].Residue)
	assert.InDelta(t, 1.0, conserved.Residues[0].Frequency, 1e-9)
	assert.InDelta(t, MaxBits, conserved.Residues[0].Height, 1e-9)

	mixed := cols[1]
	assert.Equal(t, 2, mixed.Position)
	// K: 0.5, R: 0.25, gap: 0.25 -> entropy 1.5 bits.
	assert.InDelta(t, MaxBits-1.5, mixed.Bits, 1e-9)
	require.Len(t, mixed.Residues, 3)
	assert.Equal(t, "K", mixed.Residues[0].Residue)
	assert.Equal(t, "-", mixed.Residues[1].Residue)
	assert.Equal(t, "R", mixed.Residues[2].Residue)
	assert.InDelta(t, 0.5*(MaxBits-1.5), mixed.Residues[0].Height, 1e-9)
}

func TestProfile_Empty(t *testing.T) {
	assert.Empty(t, Profile(nil))
}
