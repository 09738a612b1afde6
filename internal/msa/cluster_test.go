package msa

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHammingFraction(t *testing.T) {
	assert.Equal(t, 0.0, HammingFraction("MAQ", "MAQ"))
	assert.Equal(t, 1.0, HammingFraction("AAA", "CCC"))
	assert.InDelta(t, 0.25, HammingFraction("MAQV", "MAQK"), 1e-9)
	assert.InDelta(t, 0.5, HammingFraction("MAQV", "MA"), 1e-9)
	assert.Equal(t, 0.0, HammingFraction("", ""))
}

func TestClusterOrder_Identity(t *testing.T) {
	assert.Equal(t, []int{}, ClusterOrder(nil))
	assert.Equal(t, []int{0}, ClusterOrder([]Sequence{{"a", "M"}}))
}

func TestClusterOrder_IsPermutation(t *testing.T) {
	seqs := []Sequence{
		{"1", "MAQVQL"}, {"2", "KKKKKK"}, {"3", "MAQVQK"},
		{"4", "KKKKKA"}, {"5", "MAQAAA"}, {"6", "------"},
	}
	order := ClusterOrder(seqs)
	assert.ElementsMatch(t, []int{0, 1, 2, 3, 4, 5}, order)
}

func TestClusterOrder_AverageLinkage(t *testing.T) {
	// a and c are closest, then b and d; the a/c pair has the lower id.
	seqs := []Sequence{
		{"a", "AAAAAA"},
		{"b", "CCCCCC"},
		{"c", "AAAAAC"},
		{"d", "CCCCCA"},
	}
	assert.Equal(t, []int{0, 2, 1, 3}, ClusterOrder(seqs))
}

func TestClusterOrder_IdenticalSequences(t *testing.T) {
	seqs := []Sequence{{"1", "MK"}, {"2", "MK"}, {"3", "MK"}}
	// 0 and 1 merge first; the remaining leaf has the lower id and sits left.
	assert.Equal(t, []int{2, 0, 1}, ClusterOrder(seqs))
}
