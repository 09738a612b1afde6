// Package output writes gene-pair tables as TSV and XLSX.
package output

import (
	"bufio"
	"io"
	"strings"

	"github.com/bcrlab/bcrview/internal/pipeline"
)

// Columns are the table columns shared by every format.
var Columns = []string{
	"label",
	"sequence_id",
	"locus",
	"sequence",
	"aligned",
	"isotype",
	"clone_id",
}

// Row is one sequence of a chain table joined with its label and alignment.
type Row struct {
	Label      string
	SequenceID string
	Locus      string
	Sequence   string
	Aligned    string
	Isotype    string
	CloneID    string
}

func (r Row) values() []string {
	return []string{r.Label, r.SequenceID, r.Locus, r.Sequence, r.Aligned, r.Isotype, r.CloneID}
}

// Rows joins the chain table of e with its labels and aligned sequences, in
// label order.
func Rows(e *pipeline.Entry, c pipeline.Chain) []Row {
	table, view := e.HCTable, e.View(c)
	if c == pipeline.Light {
		table = e.LCTable
	}

	aligned := make(map[string]string, len(view.Alignment))
	for _, s := range view.Alignment {
		aligned[s.ID] = s.Seq
	}
	byID := make(map[string]pipeline.TableRow, len(table))
	for _, r := range table {
		if _, ok := byID[r.SequenceID]; !ok {
			byID[r.SequenceID] = r
		}
	}

	ids, labels := view.Labels.IDs(), view.Labels.Labels()
	out := make([]Row, 0, len(ids))
	for i, id := range ids {
		if pipeline.IsSynthetic(labels[i]) {
			continue
		}
		tr := byID[id]
		out = append(out, Row{
			Label:      labels[i],
			SequenceID: id,
			Locus:      tr.Locus,
			Sequence:   tr.Sequence,
			Aligned:    aligned[id],
			Isotype:    tr.Isotype,
			CloneID:    tr.CloneID,
		})
	}
	return out
}

// TabWriter writes chain tables in tab-delimited format.
type TabWriter struct {
	w *bufio.Writer
}

// NewTabWriter creates a new tab-delimited writer.
func NewTabWriter(w io.Writer) *TabWriter {
	return &TabWriter{w: bufio.NewWriter(w)}
}

// WriteHeader writes the header line.
func (tw *TabWriter) WriteHeader() error {
	_, err := tw.w.WriteString(strings.Join(Columns, "\t") + "\n")
	return err
}

// Write writes a single row. Empty fields are written as "-".
func (tw *TabWriter) Write(r Row) error {
	values := r.values()
	for i, v := range values {
		if v == "" {
			values[i] = "-"
		}
	}
	_, err := tw.w.WriteString(strings.Join(values, "\t") + "\n")
	return err
}

// Flush flushes any buffered data to the underlying writer.
func (tw *TabWriter) Flush() error {
	return tw.w.Flush()
}

// WriteTSV writes the header and all rows of one chain.
func WriteTSV(w io.Writer, e *pipeline.Entry, c pipeline.Chain) error {
	tw := NewTabWriter(w)
	if err := tw.WriteHeader(); err != nil {
		return err
	}
	for _, r := range Rows(e, c) {
		if err := tw.Write(r); err != nil {
			return err
		}
	}
	return tw.Flush()
}
