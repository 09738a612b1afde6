// Package airr reads AIRR rearrangement tables and merges contigs into
// per-cell records.
package airr

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"
)

// Standard AIRR rearrangement column names
const (
	ColSequenceID          = "sequence_id"
	ColLocus               = "locus"
	ColSequenceAlignment   = "sequence_alignment"
	ColSequenceAlignmentAA = "sequence_alignment_aa"
	ColVCall               = "v_call"
	ColDCall               = "d_call"
	ColJCall               = "j_call"
	ColCCall               = "c_call"
	ColCloneID             = "clone_id"
	ColIsotype             = "isotype"
)

// ColumnIndices holds the indices of the AIRR columns the merger uses.
type ColumnIndices struct {
	SequenceID          int
	Locus               int
	SequenceAlignment   int
	SequenceAlignmentAA int
	VCall               int
	DCall               int
	JCall               int
	CCall               int
	CloneID             int
	Isotype             int
}

// HasAlignment reports whether both alignment columns are present.
func (c ColumnIndices) HasAlignment() bool {
	return c.SequenceAlignment >= 0 && c.SequenceAlignmentAA >= 0
}

// Contig is one row of an AIRR rearrangement table.
type Contig struct {
	SequenceID          string
	Locus               string
	SequenceAlignment   string
	SequenceAlignmentAA string
	VCall               string
	DCall               string
	JCall               string
	CCall               string
	CloneID             string
	Isotype             string
}

// Parser reads contigs from an AIRR TSV file.
type Parser struct {
	reader     *bufio.Reader
	file       *os.File
	gzipReader *gzip.Reader
	lineNumber int
	columns    ColumnIndices
}

// NewParser creates a new AIRR parser for the given file.
// Supports both plain and gzipped (.tsv.gz) files.
func NewParser(path string) (*Parser, error) {
	if path == "-" {
		return NewParserFromReader(os.Stdin)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open airr file: %w", err)
	}

	p := &Parser{file: file}

	// Check for gzip magic bytes
	buf := make([]byte, 2)
	n, err := file.Read(buf)
	if err != nil && err != io.EOF {
		file.Close()
		return nil, fmt.Errorf("read airr header: %w", err)
	}

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		file.Close()
		return nil, fmt.Errorf("seek airr file: %w", err)
	}

	if n == 2 && buf[0] == 0x1f && buf[1] == 0x8b {
		p.gzipReader, err = gzip.NewReader(file)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		p.reader = bufio.NewReader(p.gzipReader)
	} else {
		p.reader = bufio.NewReader(file)
	}

	if err := p.parseHeader(); err != nil {
		p.Close()
		return nil, err
	}

	return p, nil
}

// NewParserFromReader creates a parser from an io.Reader.
func NewParserFromReader(r io.Reader) (*Parser, error) {
	p := &Parser{
		reader: bufio.NewReader(r),
	}

	if err := p.parseHeader(); err != nil {
		return nil, err
	}

	return p, nil
}

// readLine returns the next line without its terminator. ok is false at EOF.
func (p *Parser) readLine() (line string, ok bool, err error) {
	line, err = p.reader.ReadString('\n')
	if err != nil {
		if err != io.EOF {
			return "", false, err
		}
		if line == "" {
			return "", false, nil
		}
	}
	p.lineNumber++
	return strings.TrimRight(line, "\r\n"), true, nil
}

// parseHeader reads the first non-comment line and locates the columns.
func (p *Parser) parseHeader() error {
	for {
		line, ok, err := p.readLine()
		if err != nil {
			return fmt.Errorf("read header: %w", err)
		}
		if !ok {
			return &ParseError{Line: p.lineNumber, Message: "no header line found"}
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		return p.parseColumnIndices(line)
	}
}

func (p *Parser) parseColumnIndices(headerLine string) error {
	p.columns = ColumnIndices{
		SequenceID:          -1,
		Locus:               -1,
		SequenceAlignment:   -1,
		SequenceAlignmentAA: -1,
		VCall:               -1,
		DCall:               -1,
		JCall:               -1,
		CCall:               -1,
		CloneID:             -1,
		Isotype:             -1,
	}

	for i, col := range strings.Split(headerLine, "\t") {
		switch strings.TrimSpace(col) {
		case ColSequenceID:
			p.columns.SequenceID = i
		case ColLocus:
			p.columns.Locus = i
		case ColSequenceAlignment:
			p.columns.SequenceAlignment = i
		case ColSequenceAlignmentAA:
			p.columns.SequenceAlignmentAA = i
		case ColVCall:
			p.columns.VCall = i
		case ColDCall:
			p.columns.DCall = i
		case ColJCall:
			p.columns.JCall = i
		case ColCCall:
			p.columns.CCall = i
		case ColCloneID:
			p.columns.CloneID = i
		case ColIsotype:
			p.columns.Isotype = i
		}
	}

	if p.columns.SequenceID == -1 {
		return &ParseError{
			Line:    p.lineNumber,
			Message: "required column 'sequence_id' not found in header",
		}
	}
	if p.columns.Locus == -1 {
		return &ParseError{
			Line:    p.lineNumber,
			Message: "required column 'locus' not found in header",
		}
	}

	return nil
}

// Next reads the next contig.
// Returns nil, nil when there are no more contigs.
func (p *Parser) Next() (*Contig, error) {
	for {
		line, ok, err := p.readLine()
		if err != nil {
			return nil, fmt.Errorf("read contig line: %w", err)
		}
		if !ok {
			return nil, nil
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		return p.parseLine(line)
	}
}

// ReadAll reads every remaining contig.
func (p *Parser) ReadAll() ([]*Contig, error) {
	var contigs []*Contig
	for {
		c, err := p.Next()
		if err != nil {
			return nil, err
		}
		if c == nil {
			return contigs, nil
		}
		contigs = append(contigs, c)
	}
}

func (p *Parser) parseLine(line string) (*Contig, error) {
	fields := strings.Split(line, "\t")

	minCols := max(p.columns.SequenceID, p.columns.Locus)
	if len(fields) <= minCols {
		return nil, &ParseError{
			Line:    p.lineNumber,
			Message: fmt.Sprintf("expected at least %d columns, found %d", minCols+1, len(fields)),
		}
	}

	field := func(idx int) string {
		if idx >= 0 && idx < len(fields) {
			return fields[idx]
		}
		return ""
	}

	return &Contig{
		SequenceID:          field(p.columns.SequenceID),
		Locus:               field(p.columns.Locus),
		SequenceAlignment:   field(p.columns.SequenceAlignment),
		SequenceAlignmentAA: field(p.columns.SequenceAlignmentAA),
		VCall:               field(p.columns.VCall),
		DCall:               field(p.columns.DCall),
		JCall:               field(p.columns.JCall),
		CCall:               field(p.columns.CCall),
		CloneID:             field(p.columns.CloneID),
		Isotype:             field(p.columns.Isotype),
	}, nil
}

// Columns returns the parsed column indices.
func (p *Parser) Columns() ColumnIndices {
	return p.columns
}

// LineNumber returns the current line number being processed.
func (p *Parser) LineNumber() int {
	return p.lineNumber
}

// Close closes the parser and underlying file.
func (p *Parser) Close() error {
	if p.gzipReader != nil {
		p.gzipReader.Close()
	}
	if p.file != nil {
		return p.file.Close()
	}
	return nil
}

// ParseError represents an error during AIRR parsing with line context.
type ParseError struct {
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("airr parse error at line %d: %s", e.Line, e.Message)
}
