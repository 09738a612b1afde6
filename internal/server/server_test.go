package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcrlab/bcrview/internal/airr"
	"github.com/bcrlab/bcrview/internal/germline"
	"github.com/bcrlab/bcrview/internal/msa"
	"github.com/bcrlab/bcrview/internal/phylo"
	"github.com/bcrlab/bcrview/internal/pipeline"
	"github.com/bcrlab/bcrview/internal/registry"
)

const (
	hcGene = "IGHV1-2*01"
	lcGene = "IGKV1-5*01"

	hcNT = "ATGGCCCAGGTGCAGCTGGTGCAGAGCGGCGCCGAGGTGAAGAAGCCCGGCGCCAGCGTGAAGGTGAGCTGCAAGGCCAGCGGCTACACCTTCACC"
	lcNT = "GACATCGTGATGACCCAGAGCCCCGACAGCCTGGCCGTGAGCCTGGGCGAGCGCGCCACCATCAACTGC"
)

type failingAligner struct{}

func (failingAligner) Align(context.Context, []msa.Sequence) ([]msa.Sequence, error) {
	return nil, msa.ErrAlignerFailed
}

func cell(id, hcV, igh string) *airr.Cell {
	return &airr.Cell{
		SequenceID: id, Isotype: "IgG1", CloneID: "1",
		IGH: igh, IGK: lcNT, Sequence: igh,
		VCallVDJ: hcV, CCallVDJ: "IGHG1", JCallVDJ: "IGHJ4*02", LocusVDJ: "IGH",
		VCallVJ: lcGene, LocusVJ: "IGK",
	}
}

type fixture struct {
	srv     *httptest.Server
	store   *registry.Store
	project *registry.Project
}

func newFixture(t *testing.T, aligner msa.Aligner) *fixture {
	t.Helper()
	store, err := registry.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	p := &registry.Project{Name: "demo", Species: "human", DirectoryPath: t.TempDir()}
	require.NoError(t, store.Create(ctx, p))

	variant := strings.Replace(hcNT, "ATGGCCCAG", "ATGGCCAAG", 1)
	require.NoError(t, store.LoadCells(ctx, p.ID, []*airr.Cell{
		cell("seq1", hcGene, hcNT),
		cell("seq2", hcGene, variant),
		cell("seq3", hcGene, hcNT),
		cell("solo", "IGHV3-23*01", hcNT),
	}))

	orch := pipeline.New(store, msa.NewEngine(aligner), germline.NewAnnotator(t.TempDir()), nil,
		pipeline.Options{DataDir: t.TempDir()})
	srv := httptest.NewServer(New(store, orch).Handler())
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, store: store, project: p}
}

func (f *fixture) pairPath(route, hc, lc string) string {
	return fmt.Sprintf("/analyze/%s/%d/%s/%s", route, f.project.ID, url.PathEscape(hc), url.PathEscape(lc))
}

func (f *fixture) do(t *testing.T, method, path string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func (f *fixture) get(t *testing.T, path string) (*http.Response, []byte) {
	return f.do(t, http.MethodGet, path)
}

var leafLabel = regexp.MustCompile(`([^(),:]+):`)

func newickLeaves(s string) []string {
	var out []string
	for _, m := range leafLabel.FindAllStringSubmatch(s, -1) {
		out = append(out, m[1])
	}
	return out
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, msa.PadAligner{})
	resp, body := f.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
}

func TestProjects(t *testing.T) {
	f := newFixture(t, msa.PadAligner{})

	resp, body := f.get(t, "/api/projects")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []registry.Project
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list, 1)
	assert.Equal(t, "demo", list[0].Name)

	resp, body = f.get(t, fmt.Sprintf("/api/projects/%d", f.project.ID))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"project_name":"demo"`)

	resp, _ = f.get(t, "/api/projects/999")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = f.get(t, "/api/projects/abc")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, http.MethodDelete, fmt.Sprintf("/api/projects/%d", f.project.ID))
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = f.get(t, fmt.Sprintf("/api/projects/%d", f.project.ID))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = f.get(t, "/api/projects")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "[]", string(body))
}

func TestGeneUsageAndLCAggregation(t *testing.T) {
	f := newFixture(t, msa.PadAligner{})

	resp, body := f.get(t, fmt.Sprintf("/analyze/gene_usage/%d", f.project.ID))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var usage registry.Usage
	require.NoError(t, json.Unmarshal(body, &usage))
	assert.Equal(t, []string{hcGene, "IGHV3-23*01"}, usage.VCall.Labels)
	assert.Equal(t, []int64{3, 1}, usage.VCall.Values)
	assert.Equal(t, []int64{4}, usage.Isotype.Values)

	resp, body = f.get(t, fmt.Sprintf("/analyze/lc_aggregation/%d/%s", f.project.ID, url.PathEscape(hcGene)))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"lc_genes":[{"gene":"IGKV1-5*01","count":3}]}`, string(body))
}

func TestAlignmentData_Idempotent(t *testing.T) {
	f := newFixture(t, msa.PadAligner{})

	resp, body := f.get(t, f.pairPath("alignment_status", hcGene, lcGene))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"not_started"}`, string(body))

	resp, first := f.get(t, f.pairPath("hc_lc_alignment_data", hcGene, lcGene))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	_, second := f.get(t, f.pairPath("hc_lc_alignment_data", hcGene, lcGene))
	assert.True(t, bytes.Equal(first, second), "repeat requests return identical bytes")

	_, body = f.get(t, f.pairPath("alignment_status", hcGene, lcGene))
	assert.JSONEq(t, `{"status":"ready"}`, string(body))

	resp, _ = f.do(t, http.MethodDelete, f.pairPath("hc_lc_alignment_data", hcGene, lcGene))
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	_, body = f.get(t, f.pairPath("alignment_status", hcGene, lcGene))
	assert.JSONEq(t, `{"status":"not_started"}`, string(body))
}

func TestDeleteProject_ResetsStatus(t *testing.T) {
	f := newFixture(t, msa.PadAligner{})
	ctx := context.Background()

	resp, _ := f.get(t, f.pairPath("hc_lc_alignment_data", hcGene, lcGene))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_, body := f.get(t, f.pairPath("alignment_status", hcGene, lcGene))
	require.JSONEq(t, `{"status":"ready"}`, string(body))

	resp, _ = f.do(t, http.MethodDelete, fmt.Sprintf("/api/projects/%d", f.project.ID))
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	p := &registry.Project{Name: "demo", Species: "human", DirectoryPath: t.TempDir()}
	require.NoError(t, f.store.Create(ctx, p))
	require.NoError(t, f.store.LoadCells(ctx, p.ID, []*airr.Cell{cell("seq1", hcGene, hcNT)}))
	f.project = p

	_, body = f.get(t, f.pairPath("alignment_status", hcGene, lcGene))
	assert.JSONEq(t, `{"status":"not_started"}`, string(body), "a re-added project starts fresh")
}

func TestLabelsStableAcrossEndpoints(t *testing.T) {
	f := newFixture(t, msa.PadAligner{})

	resp, body := f.get(t, f.pairPath("hc_lc_alignment_data", hcGene, lcGene))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	e, err := pipeline.DecodeEntry(body)
	require.NoError(t, err)
	assert.Equal(t, []string{"HC-1", "HC-2", "HC-3"}, e.HCLabelMap.Labels())

	for _, c := range []pipeline.Chain{pipeline.Heavy, pipeline.Light} {
		labelled := e.View(c).Labelled()
		var want []string
		for _, s := range labelled {
			want = append(want, s.ID)
		}

		resp, tree := f.get(t, f.pairPath("phylo_tree_newick", hcGene, lcGene)+"?chain="+string(c))
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.NotEqual(t, phylo.Placeholder, string(tree))
		assert.ElementsMatch(t, want, newickLeaves(string(tree)))

		resp, body := f.get(t, f.pairPath("distance_matrix", hcGene, lcGene)+"?chain="+string(c))
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var m phylo.Matrix
		require.NoError(t, json.Unmarshal(body, &m))
		assert.Equal(t, want, m.Labels)
		require.Len(t, m.Matrix, len(want))
		for i := range m.Matrix {
			assert.Equal(t, 0.0, m.Matrix[i][i])
		}
	}
}

func TestDistanceMatrix_Values(t *testing.T) {
	f := newFixture(t, msa.PadAligner{})
	_, body := f.get(t, f.pairPath("distance_matrix", hcGene, lcGene)+"?chain=hc")
	var m phylo.Matrix
	require.NoError(t, json.Unmarshal(body, &m))

	// seq2 differs from seq1 and seq3 at one of 32 residues.
	idx := map[string]int{}
	for i, l := range m.Labels {
		idx[l] = i
	}
	assert.Equal(t, 0.0, m.Matrix[idx["HC-1"]][idx["HC-3"]])
	assert.InDelta(t, 100.0/32, m.Matrix[idx["HC-1"]][idx["HC-2"]], 1e-9)
	assert.Equal(t, m.Matrix[idx["HC-1"]][idx["HC-2"]], m.Matrix[idx["HC-2"]][idx["HC-1"]])
}

func TestSingleSequencePair(t *testing.T) {
	f := newFixture(t, msa.PadAligner{})

	resp, tree := f.get(t, f.pairPath("phylo_tree_newick", "IGHV3-23*01", lcGene))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, phylo.Placeholder, string(tree))

	resp, body := f.get(t, f.pairPath("distance_matrix", "IGHV3-23*01", lcGene))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "not enough sequences")
}

func TestInvalidInput(t *testing.T) {
	f := newFixture(t, msa.PadAligner{})

	resp, _ := f.get(t, f.pairPath("hc_lc_alignment_data", "IGKV1-5*01", lcGene))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.get(t, f.pairPath("distance_matrix", hcGene, lcGene)+"?chain=kappa")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.get(t, fmt.Sprintf("/analyze/hc_lc_alignment_data/999/%s/%s", url.PathEscape(hcGene), url.PathEscape(lcGene)))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = f.get(t, fmt.Sprintf("/analyze/phylo_tree_newick/999/%s/%s", url.PathEscape(hcGene), url.PathEscape(lcGene)))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAlignerFailure(t *testing.T) {
	f := newFixture(t, failingAligner{})

	resp, body := f.get(t, f.pairPath("hc_lc_alignment_data", hcGene, lcGene))
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, string(body), "detail")

	_, body = f.get(t, f.pairPath("alignment_status", hcGene, lcGene))
	var st pipeline.Status
	require.NoError(t, json.Unmarshal(body, &st))
	assert.Equal(t, pipeline.Failed, st.State)
	assert.NotEmpty(t, st.Message)

	resp, tree := f.get(t, f.pairPath("phylo_tree_newick", hcGene, lcGene))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, phylo.Placeholder, string(tree))
}

func TestDownloads(t *testing.T) {
	f := newFixture(t, msa.PadAligner{})

	resp, body := f.get(t, f.pairPath("alignment_fasta", hcGene, lcGene)+"?chain=lc")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(string(body), ">"+pipeline.RowConsensus+"\n"))
	assert.Contains(t, string(body), ">LC-1\n")
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "IGKV1-5_01_lc.fasta")

	resp, body = f.get(t, f.pairPath("logo", hcGene, lcGene))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var l struct {
		Chain   string       `json:"chain"`
		Columns []msa.Column `json:"columns"`
	}
	require.NoError(t, json.Unmarshal(body, &l))
	assert.Equal(t, "hc", l.Chain)
	assert.Len(t, l.Columns, 32)

	resp, body = f.get(t, f.pairPath("table_xlsx", hcGene, lcGene))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, xlsxContentType, resp.Header.Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(body, []byte("PK")), "xlsx is a zip archive")
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(fmt.Errorf("wrap: %w", registry.ErrNotFound)))
	assert.Equal(t, http.StatusBadRequest, statusFor(pipeline.ErrInvalidGene))
	assert.Equal(t, http.StatusBadRequest, statusFor(pipeline.ErrInvalidChain))
	assert.Equal(t, http.StatusBadRequest, statusFor(phylo.ErrNotEnoughSequences))
	assert.Equal(t, http.StatusInternalServerError, statusFor(msa.ErrAlignerFailed))
}
