package airr

import (
	"errors"
	"regexp"
	"strings"

	"github.com/bcrlab/bcrview/internal/genes"
)

// ErrMissingAlignment is returned when a repertoire lacks the
// sequence_alignment and sequence_alignment_aa columns.
var ErrMissingAlignment = errors.New("no sequence alignment data found in repertoire")

var contigSuffix = regexp.MustCompile(`_contig_[12]`)

// CellID strips the per-contig suffix from a sequence id so both contigs of a
// cell share one id.
func CellID(sequenceID string) string {
	return contigSuffix.ReplaceAllString(sequenceID, "")
}

// Cell is one merged row of a repertoire: both chains of a single cell.
type Cell struct {
	SequenceID string `json:"sequence_id"`
	Isotype    string `json:"isotype"`
	CloneID    string `json:"clone_id"`

	// Comma-joined nucleotide alignments per locus.
	IGH string `json:"IGH"`
	IGK string `json:"IGK"`
	IGL string `json:"IGL"`

	Sequence   string `json:"sequence"`
	SequenceAA string `json:"sequence_aa"`

	VCallVDJ string `json:"v_call_VDJ"`
	DCallVDJ string `json:"d_call_VDJ"`
	JCallVDJ string `json:"j_call_VDJ"`
	CCallVDJ string `json:"c_call_VDJ"`
	LocusVDJ string `json:"locus_VDJ"`
	VCallVJ  string `json:"v_call_VJ"`
	JCallVJ  string `json:"j_call_VJ"`
	CCallVJ  string `json:"c_call_VJ"`
	LocusVJ  string `json:"locus_VJ"`
}

// Locus returns the comma-joined nucleotide column for locus.
func (c *Cell) Locus(locus string) string {
	switch locus {
	case genes.LocusIGH:
		return c.IGH
	case genes.LocusIGK:
		return c.IGK
	case genes.LocusIGL:
		return c.IGL
	}
	return ""
}

// Merge groups contigs into cells. Cells appear in the order their first
// contig appears. Cells whose representative sequence is empty are dropped.
func Merge(cols ColumnIndices, contigs []*Contig) ([]*Cell, error) {
	if !cols.HasAlignment() {
		return nil, ErrMissingAlignment
	}

	var order []string
	groups := make(map[string][]*Contig)
	for _, c := range contigs {
		id := CellID(c.SequenceID)
		if _, ok := groups[id]; !ok {
			order = append(order, id)
		}
		groups[id] = append(groups[id], c)
	}

	cells := make([]*Cell, 0, len(order))
	for _, id := range order {
		cell := mergeCell(id, groups[id])
		if cell.Sequence == "" {
			continue
		}
		cells = append(cells, cell)
	}
	return cells, nil
}

// ReadFile parses and merges an AIRR rearrangement file.
func ReadFile(path string) ([]*Cell, error) {
	p, err := NewParser(path)
	if err != nil {
		return nil, err
	}
	defer p.Close()

	contigs, err := p.ReadAll()
	if err != nil {
		return nil, err
	}
	return Merge(p.Columns(), contigs)
}

func mergeCell(id string, contigs []*Contig) *Cell {
	cell := &Cell{SequenceID: id}

	loci := make(map[string][]string)
	var heavy, light []*Contig
	for _, c := range contigs {
		loci[c.Locus] = append(loci[c.Locus], c.SequenceAlignment)
		switch c.Locus {
		case genes.LocusIGH:
			heavy = append(heavy, c)
		case genes.LocusIGK, genes.LocusIGL:
			light = append(light, c)
		}
	}
	cell.IGH = strings.Join(loci[genes.LocusIGH], ",")
	cell.IGK = strings.Join(loci[genes.LocusIGK], ",")
	cell.IGL = strings.Join(loci[genes.LocusIGL], ",")

	cell.Sequence = contigs[0].SequenceAlignment
	cell.SequenceAA = contigs[0].SequenceAlignmentAA

	pick := joinDistinct
	cell.VCallVDJ = pick(heavy, func(c *Contig) string { return c.VCall })
	cell.DCallVDJ = pick(heavy, func(c *Contig) string { return c.DCall })
	cell.JCallVDJ = pick(heavy, func(c *Contig) string { return c.JCall })
	cell.CCallVDJ = pick(heavy, func(c *Contig) string { return c.CCall })
	cell.LocusVDJ = pick(heavy, func(c *Contig) string { return c.Locus })
	cell.VCallVJ = pick(light, func(c *Contig) string { return c.VCall })
	cell.JCallVJ = pick(light, func(c *Contig) string { return c.JCall })
	cell.CCallVJ = pick(light, func(c *Contig) string { return c.CCall })
	cell.LocusVJ = pick(light, func(c *Contig) string { return c.Locus })
	cell.CloneID = pick(contigs, func(c *Contig) string { return c.CloneID })

	cell.Isotype = pick(heavy, func(c *Contig) string { return c.Isotype })
	if cell.Isotype == "" {
		cell.Isotype = isotypeFromConstant(cell.CCallVDJ)
	}
	return cell
}

// joinDistinct joins the distinct non-empty values of f over cs with "|",
// in first-seen order.
func joinDistinct(cs []*Contig, f func(*Contig) string) string {
	var vals []string
	seen := make(map[string]bool)
	for _, c := range cs {
		v := f(c)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		vals = append(vals, v)
	}
	return strings.Join(vals, "|")
}

// isotypeFromConstant derives an isotype such as "IgG1" from a heavy constant
// gene call such as "IGHG1". Multi-valued calls keep only the first value.
func isotypeFromConstant(cCall string) string {
	if i := strings.IndexByte(cCall, '|'); i >= 0 {
		cCall = cCall[:i]
	}
	cCall = genes.Base(cCall)
	if !strings.HasPrefix(cCall, "IGH") || len(cCall) < 4 {
		return ""
	}
	return "Ig" + cCall[3:]
}
