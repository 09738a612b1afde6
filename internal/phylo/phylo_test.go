package phylo

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcrlab/bcrview/internal/msa"
	"github.com/bcrlab/bcrview/internal/pipeline"
)

var leafLabel = regexp.MustCompile(`([^(),:]+):`)

func newickLeaves(s string) []string {
	var out []string
	for _, m := range leafLabel.FindAllStringSubmatch(s, -1) {
		out = append(out, strings.TrimSpace(m[1]))
	}
	return out
}

func TestNeighborJoining_Textbook(t *testing.T) {
	names := []string{"a", "b", "c", "d", "e"}
	d := [][]float64{
		{0, 5, 9, 9, 8},
		{5, 0, 10, 10, 9},
		{9, 10, 0, 8, 7},
		{9, 10, 8, 0, 3},
		{8, 9, 7, 3, 0},
	}
	root, err := NeighborJoining(names, d)
	require.NoError(t, err)
	assert.Equal(t, "(d:2.00000,e:1.00000,(c:4.00000,(a:2.00000,b:3.00000):3.00000):2.00000);", root.Newick())
	assert.ElementsMatch(t, names, root.Leaves())
}

func TestNeighborJoining_TwoTaxa(t *testing.T) {
	root, err := NeighborJoining([]string{"x", "y"}, [][]float64{{0, 0.5}, {0.5, 0}})
	require.NoError(t, err)
	assert.Equal(t, "(x:0.25000,y:0.25000);", root.Newick())
}

func TestNeighborJoining_Invalid(t *testing.T) {
	_, err := NeighborJoining([]string{"x"}, [][]float64{{0}})
	assert.ErrorIs(t, err, ErrDegenerate)

	_, err = NeighborJoining([]string{"x", "y"}, [][]float64{{0, 1}})
	assert.ErrorIs(t, err, ErrDegenerate)

	_, err = NeighborJoining([]string{"x", "y", "z"}, [][]float64{{0, 1, 1}, {1, 0}, {1, 1, 0}})
	assert.ErrorIs(t, err, ErrDegenerate)
}

func TestNewick_ClampsNegativeAndQuotes(t *testing.T) {
	root := &Node{Children: []*Node{
		{Name: "HC-1", Length: -0.2},
		{Name: "odd name", Length: 0.1},
		{Name: "it's", Length: 0},
	}}
	assert.Equal(t, "(HC-1:0.00000,'odd name':0.10000,'it''s':0.00000);", root.Newick())
}

func TestTree_Placeholder(t *testing.T) {
	tests := []struct {
		name string
		seqs []msa.Sequence
	}{
		{"none", nil},
		{"one", []msa.Sequence{{ID: "HC-1", Seq: "MK"}}},
		{"duplicate labels collapse", []msa.Sequence{{ID: "HC-1", Seq: "MK"}, {ID: "HC-1", Seq: "MR"}}},
		{"unequal lengths", []msa.Sequence{{ID: "HC-1", Seq: "MK"}, {ID: "HC-2", Seq: "MKV"}}},
		{"zero length", []msa.Sequence{{ID: "HC-1", Seq: ""}, {ID: "HC-2", Seq: ""}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Tree(tt.seqs)
			assert.Error(t, err)

			e := &pipeline.Entry{HCLabelMap: pipeline.AssignLabels("HC", nil)}
			for _, s := range tt.seqs {
				e.HCAlignment = append(e.HCAlignment, s)
				e.HCLabelMap.Set(s.ID, s.ID)
			}
			assert.Equal(t, Placeholder, TreeFromEntry(e, pipeline.Heavy))
		})
	}
	assert.Equal(t, Placeholder, TreeFromEntry(nil, pipeline.Heavy))
}

func TestTreeFromEntry_IdenticalSequences(t *testing.T) {
	const shared = "MAQVQLVQSGAEVKKPGASVKVSCKASGYTFT"
	e := &pipeline.Entry{
		HCAlignment: []msa.Sequence{{ID: "seq3", Seq: shared}, {ID: "seq1", Seq: shared}, {ID: "seq2", Seq: shared}},
		HCLabelMap:  pipeline.AssignLabels(pipeline.HeavyPrefix, []string{"seq1", "seq2", "seq3"}),
	}
	newick := TreeFromEntry(e, pipeline.Heavy)
	assert.NotEqual(t, Placeholder, newick)
	assert.ElementsMatch(t, []string{"HC-1", "HC-2", "HC-3"}, newickLeaves(newick))
	assert.Equal(t, "(HC-3:0.00000,HC-1:0.00000,HC-2:0.00000);", newick)
}

func TestTree_FourTaxa(t *testing.T) {
	newick, err := Tree([]msa.Sequence{
		{ID: "A", Seq: "AAAAAAAAAA"},
		{ID: "B", Seq: "AAAAAAAAAC"},
		{ID: "C", Seq: "CCCCCAAAAA"},
		{ID: "D", Seq: "CCCCCAAAAC"},
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"A", "B", "C", "D"}, newickLeaves(newick))
	assert.True(t, strings.HasSuffix(newick, ";"))
	assert.Equal(t, 2, strings.Count(newick, "("))
}

func TestPercentMismatch(t *testing.T) {
	assert.Equal(t, 0.0, PercentMismatch("MAQV", "MAQV"))
	assert.Equal(t, 100.0, PercentMismatch("MAQV", "KRST"))
	assert.Equal(t, 100.0, PercentMismatch("MA-V", "KR-S"))
	// Gap positions are ignored on either side.
	assert.InDelta(t, 50.0, PercentMismatch("MA-K", "M-QR"), 1e-9)
	assert.Equal(t, 0.0, PercentMismatch("---", "MAQ"))
}

func TestDistanceMatrix(t *testing.T) {
	m, err := DistanceMatrix([]msa.Sequence{
		{ID: "HC-2", Seq: "MAQV"},
		{ID: "HC-1", Seq: "MAQV"},
		{ID: "HC-3", Seq: "KRST"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"HC-2", "HC-1", "HC-3"}, m.Labels)
	assert.Equal(t, [][]float64{
		{0, 0, 100},
		{0, 0, 100},
		{100, 100, 0},
	}, m.Matrix)

	_, err = DistanceMatrix([]msa.Sequence{{ID: "HC-1", Seq: "M"}})
	assert.ErrorIs(t, err, ErrNotEnoughSequences)
}

func TestDistanceMatrixFromEntry_UsesLabels(t *testing.T) {
	e := &pipeline.Entry{
		LCAlignment: []msa.Sequence{{ID: "b", Seq: "DIV"}, {ID: "a", Seq: "DIV"}, {ID: "c", Seq: "DIV"}},
		LCLabelMap:  pipeline.AssignLabels(pipeline.LightPrefix, []string{"a", "b", "c"}),
	}
	m, err := DistanceMatrixFromEntry(e, pipeline.Light)
	require.NoError(t, err)
	assert.Equal(t, []string{"LC-2", "LC-1", "LC-3"}, m.Labels)
	for _, row := range m.Matrix {
		assert.Equal(t, []float64{0, 0, 0}, row)
	}

	_, err = DistanceMatrixFromEntry(e, pipeline.Heavy)
	assert.ErrorIs(t, err, ErrNotEnoughSequences)
	_, err = DistanceMatrixFromEntry(nil, pipeline.Heavy)
	assert.ErrorIs(t, err, ErrNotEnoughSequences)
}
