package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bcrlab/bcrview/internal/germline"
	"github.com/bcrlab/bcrview/internal/msa"
)

// Chain selects the heavy or light half of an entry.
type Chain = germline.Chain

// Chains.
const (
	Heavy = germline.Heavy
	Light = germline.Light
)

// ErrInvalidChain is returned for a chain other than "hc" or "lc".
var ErrInvalidChain = errors.New("invalid chain")

// ParseChain parses "hc" or "lc". An empty string selects the heavy chain.
func ParseChain(s string) (Chain, error) {
	switch strings.ToLower(s) {
	case "", string(Heavy):
		return Heavy, nil
	case string(Light):
		return Light, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidChain, s)
}

// GenePair identifies one heavy/light V-gene combination in a project.
type GenePair struct {
	Project string
	HCGene  string
	LCGene  string
}

// Key returns the status key for the pair.
func (p GenePair) Key() string {
	return p.Project + "_" + p.HCGene + "_" + p.LCGene
}

// Names of synthetic display rows.
const (
	RowGermline  = "Germline"
	RowRegion    = "Region"
	RowConsensus = "Consensus"
)

// IsSynthetic reports whether name is a synthetic display row.
func IsSynthetic(name string) bool {
	return name == RowGermline || name == RowRegion || name == RowConsensus
}

// TableRow is one deduplicated, translated row of a chain table. It
// serializes with the locus column name as the sequence key, e.g.
// {"sequence_id": "c1", "IGH": "MAQ...", "isotype": "IgG", "clone_id": "1"}.
type TableRow struct {
	Locus      string
	SequenceID string
	Sequence   string
	Isotype    string
	CloneID    string
}

// MarshalJSON implements json.Marshaler.
func (r TableRow) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{
		"sequence_id": r.SequenceID,
		r.Locus:       r.Sequence,
		"isotype":     r.Isotype,
		"clone_id":    r.CloneID,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *TableRow) UnmarshalJSON(data []byte) error {
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("decode table row: %w", err)
	}
	*r = TableRow{
		SequenceID: m["sequence_id"],
		Isotype:    m["isotype"],
		CloneID:    m["clone_id"],
	}
	for k, v := range m {
		switch k {
		case "sequence_id", "isotype", "clone_id":
		default:
			r.Locus, r.Sequence = k, v
		}
	}
	return nil
}

// DisplayRow is one named row of the alignment viewer.
type DisplayRow struct {
	Name     string `json:"name"`
	Sequence string `json:"sequence"`
}

// Metadata describes how an entry was produced.
type Metadata struct {
	Project  string `json:"project"`
	Species  string `json:"species"`
	HCGene   string `json:"hc_gene"`
	LCGene   string `json:"lc_gene"`
	HCLocus  string `json:"hc_locus"`
	LCLocus  string `json:"lc_locus"`
	HCCount  int    `json:"hc_count"`
	LCCount  int    `json:"lc_count"`
	Aligner  string `json:"aligner,omitempty"`
	Filtered int    `json:"filtered_cells"`
}

// Entry is the cached analysis of one gene pair.
type Entry struct {
	HCTable        []TableRow             `json:"hc_table"`
	LCTable        []TableRow             `json:"lc_table"`
	HCAlignment    []msa.Sequence         `json:"hc_alignment"`
	HCConsensus    string                 `json:"hc_consensus"`
	HCMatchMatrix  [][]bool               `json:"hc_match_matrix"`
	LCAlignment    []msa.Sequence         `json:"lc_alignment"`
	LCConsensus    string                 `json:"lc_consensus"`
	LCMatchMatrix  [][]bool               `json:"lc_match_matrix"`
	HCJSON         []DisplayRow           `json:"hc_json"`
	LCJSON         []DisplayRow           `json:"lc_json"`
	HCLabelMap     LabelMap               `json:"hc_label_map"`
	LCLabelMap     LabelMap               `json:"lc_label_map"`
	HCRegionBlocks []germline.RegionBlock `json:"hc_region_blocks"`
	LCRegionBlocks []germline.RegionBlock `json:"lc_region_blocks"`
	HCGermline     *string                `json:"hc_germline"`
	LCGermline     *string                `json:"lc_germline"`
	HCRegion       []string               `json:"hc_region"`
	LCRegion       []string               `json:"lc_region"`
	Metadata       Metadata               `json:"metadata"`
}

// ChainView is the chain-specific slice of an entry.
type ChainView struct {
	Chain     Chain
	Alignment []msa.Sequence
	Consensus string
	Labels    LabelMap
	Rows      []DisplayRow
}

// View returns the fields of e belonging to chain c.
func (e *Entry) View(c Chain) ChainView {
	if c == Light {
		return ChainView{Chain: c, Alignment: e.LCAlignment, Consensus: e.LCConsensus, Labels: e.LCLabelMap, Rows: e.LCJSON}
	}
	return ChainView{Chain: Heavy, Alignment: e.HCAlignment, Consensus: e.HCConsensus, Labels: e.HCLabelMap, Rows: e.HCJSON}
}

// Labelled returns the aligned sequences in display order renamed to their
// labels. Sequences without a label and synthetic rows are skipped.
func (v ChainView) Labelled() []msa.Sequence {
	out := make([]msa.Sequence, 0, len(v.Alignment))
	for _, s := range v.Alignment {
		label, ok := v.Labels.Label(s.ID)
		if !ok || IsSynthetic(label) {
			continue
		}
		out = append(out, msa.Sequence{ID: label, Seq: s.Seq})
	}
	return out
}

// DecodeEntry parses a cached entry.
func DecodeEntry(data []byte) (*Entry, error) {
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode alignment entry: %w", err)
	}
	return &e, nil
}

// regionTrack renders per-position region labels as one character each:
// F for framework, the CDR number for CDRs, '-' elsewhere.
func regionTrack(labels []string) string {
	b := make([]byte, len(labels))
	for i, l := range labels {
		switch {
		case strings.HasPrefix(l, "CDR-") && len(l) == 6:
			b[i] = l[5]
		case strings.Contains(l, "FR"):
			b[i] = 'F'
		default:
			b[i] = '-'
		}
	}
	return string(b)
}

func displayRows(ann *germline.Annotation, aligned []msa.Sequence, labels LabelMap, consensus string) []DisplayRow {
	rows := make([]DisplayRow, 0, len(aligned)+3)
	if ann != nil {
		rows = append(rows, DisplayRow{Name: RowGermline, Sequence: ann.Sequence})
		if ann.Regions != nil {
			rows = append(rows, DisplayRow{Name: RowRegion, Sequence: regionTrack(ann.Regions)})
		}
	}
	for _, s := range aligned {
		label, _ := labels.Label(s.ID)
		rows = append(rows, DisplayRow{Name: label, Sequence: s.Seq})
	}
	if consensus != "" {
		rows = append(rows, DisplayRow{Name: RowConsensus, Sequence: consensus})
	}
	return rows
}
