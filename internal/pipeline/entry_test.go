package pipeline

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcrlab/bcrview/internal/msa"
)

func TestAssignLabels(t *testing.T) {
	m := AssignLabels(HeavyPrefix, []string{"b", "a", "b", "c"})
	assert.Equal(t, []string{"b", "a", "c"}, m.IDs())
	assert.Equal(t, []string{"HC-1", "HC-2", "HC-3"}, m.Labels())

	l, ok := m.Label("a")
	assert.True(t, ok)
	assert.Equal(t, "HC-2", l)
	_, ok = m.Label("zzz")
	assert.False(t, ok)
}

func TestLabelMap_JSONPreservesOrder(t *testing.T) {
	m := AssignLabels(LightPrefix, []string{"z", "y", "x"})
	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Equal(t, `{"z":"LC-1","y":"LC-2","x":"LC-3"}`, string(data))

	var back LabelMap
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, m.IDs(), back.IDs())
	assert.Equal(t, m.Labels(), back.Labels())

	empty, err := json.Marshal(LabelMap{})
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(empty))

	require.NoError(t, json.Unmarshal([]byte(`null`), &back))
	assert.Equal(t, 0, back.Len())
	assert.Error(t, json.Unmarshal([]byte(`["x"]`), &back))
}

func TestStatusStore(t *testing.T) {
	s := NewStatusStore()
	k := GenePair{Project: "proj", HCGene: "IGHV1-2*01", LCGene: "IGKV1-5*01"}
	assert.Equal(t, Status{State: NotStarted}, s.Get(k))

	s.Set(k, Status{State: Failed, Message: "boom"})
	assert.Equal(t, Status{State: Failed, Message: "boom"}, s.Get(k))

	data, err := json.Marshal(s.Get(k))
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"error","message":"boom"}`, string(data))

	s.Set(k, Status{State: Ready})
	data, err = json.Marshal(s.Get(k))
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ready"}`, string(data))

	s.Delete(k)
	assert.Equal(t, NotStarted, s.Get(k).State)
}

func TestStatusStore_DeleteProject(t *testing.T) {
	s := NewStatusStore()
	a1 := GenePair{Project: "donor", HCGene: "IGHV1-2*01", LCGene: "IGKV1-5*01"}
	a2 := GenePair{Project: "donor", HCGene: "IGHV3-23*01", LCGene: "IGKV1-5*01"}
	b := GenePair{Project: "donor_1", HCGene: "IGHV1-2*01", LCGene: "IGKV1-5*01"}
	for _, p := range []GenePair{a1, a2, b} {
		s.Set(p, Status{State: Ready})
	}

	s.DeleteProject("donor")
	assert.Equal(t, NotStarted, s.Get(a1).State)
	assert.Equal(t, NotStarted, s.Get(a2).State)
	assert.Equal(t, Ready, s.Get(b).State)
}

func TestFileCache_Path(t *testing.T) {
	c := NewFileCache("/data")
	p := c.Path(GenePair{Project: "my project", HCGene: "IGHV1-2*01", LCGene: "IGKV1/OR2-108*01|x"})
	assert.Equal(t, filepath.Join("/data", "my_project", "my_project", "alignments", "alignment_IGHV1-2_01_IGKV1_OR2-108_01_x.json"), p)
}

func TestFileCache_ReadWriteRemove(t *testing.T) {
	c := NewFileCache(t.TempDir())
	p := GenePair{Project: "p", HCGene: "IGHV1-2*01", LCGene: "IGKV1-5*01"}

	_, err := c.Read(p)
	require.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, c.Write(p, []byte(`{"a":1}`)))
	require.NoError(t, c.Write(p, []byte(`{"a":2}`)))
	data, err := c.Read(p)
	require.NoError(t, err)
	assert.Equal(t, `{"a":2}`, string(data))

	entries, err := os.ReadDir(filepath.Dir(c.Path(p)))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files left behind")

	require.NoError(t, c.Remove(p))
	_, err = c.Read(p)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestGenePair_Key(t *testing.T) {
	assert.Equal(t, "proj_IGHV1-2*01_IGKV1-5*01", GenePair{"proj", "IGHV1-2*01", "IGKV1-5*01"}.Key())
}

func TestParseChain(t *testing.T) {
	c, err := ParseChain("")
	require.NoError(t, err)
	assert.Equal(t, Heavy, c)

	c, err = ParseChain("LC")
	require.NoError(t, err)
	assert.Equal(t, Light, c)

	_, err = ParseChain("kappa")
	assert.ErrorIs(t, err, ErrInvalidChain)
}

func TestTableRow_JSON(t *testing.T) {
	row := TableRow{Locus: "IGK", SequenceID: "seq1", Sequence: "DIV", Isotype: "IgG", CloneID: "clone1"}
	data, err := json.Marshal(row)
	require.NoError(t, err)
	assert.JSONEq(t, `{"sequence_id":"seq1","IGK":"DIV","isotype":"IgG","clone_id":"clone1"}`, string(data))

	var back TableRow
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, row, back)
}

func TestChainView_Labelled(t *testing.T) {
	labels := AssignLabels(HeavyPrefix, []string{"a", "b"})
	labels.Set("g", RowGermline)
	e := &Entry{
		HCAlignment: []msa.Sequence{{ID: "b", Seq: "MK"}, {ID: "unlabelled", Seq: "MR"}, {ID: "a", Seq: "MQ"}, {ID: "g", Seq: "MM"}},
		HCLabelMap:  labels,
	}
	assert.Equal(t, []msa.Sequence{{ID: "HC-2", Seq: "MK"}, {ID: "HC-1", Seq: "MQ"}}, e.View(Heavy).Labelled())
	assert.Empty(t, e.View(Light).Labelled())
}

func TestRegionTrack(t *testing.T) {
	assert.Equal(t, "FF11F2-3", regionTrack([]string{"LFR1", "LFR1", "CDR-L1", "CDR-L1", "LFR2", "CDR-L2", "UNK", "CDR-L3"}))
}
