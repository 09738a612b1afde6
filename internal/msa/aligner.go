package msa

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/io/seqio"
	"github.com/biogo/biogo/io/seqio/fasta"
	"github.com/biogo/biogo/seq/linear"
	"go.uber.org/zap"
)

// Aligner produces a multiple sequence alignment. Returned sequences keep the
// input ids; their order is not significant.
type Aligner interface {
	Align(ctx context.Context, seqs []Sequence) ([]Sequence, error)
}

// ErrAlignerFailed wraps failures of the external alignment program.
var ErrAlignerFailed = errors.New("alignment program failed")

// Default MAFFT invocation.
var (
	DefaultMAFFTProgram = "mafft"
	DefaultMAFFTArgs    = []string{"--auto", "--quiet", "--amino"}
)

// MAFFT runs the external mafft program.
type MAFFT struct {
	Program string
	Args    []string
	Timeout time.Duration
	TempDir string

	logger *zap.Logger
}

// NewMAFFT returns a MAFFT aligner with default program and arguments.
func NewMAFFT() *MAFFT {
	return &MAFFT{
		Program: DefaultMAFFTProgram,
		Args:    DefaultMAFFTArgs,
		logger:  zap.NewNop(),
	}
}

// SetLogger sets the logger for aligner runs.
func (m *MAFFT) SetLogger(logger *zap.Logger) {
	m.logger = logger
}

// Align writes seqs to a temporary FASTA file, runs mafft on it and parses the
// aligned FASTA from its stdout. Sequences are renamed s0..sN for the run so
// ids with whitespace or punctuation survive the round trip.
func (m *MAFFT) Align(ctx context.Context, seqs []Sequence) ([]Sequence, error) {
	if len(seqs) == 0 {
		return nil, nil
	}
	if m.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.Timeout)
		defer cancel()
	}

	in, err := os.CreateTemp(m.TempDir, "mafft-*.fasta")
	if err != nil {
		return nil, fmt.Errorf("create alignment input: %w", err)
	}
	defer os.Remove(in.Name())

	if err := WriteFASTA(in, renamed(seqs)); err != nil {
		in.Close()
		return nil, fmt.Errorf("write alignment input: %w", err)
	}
	if err := in.Close(); err != nil {
		return nil, fmt.Errorf("close alignment input: %w", err)
	}

	program := m.Program
	if program == "" {
		program = DefaultMAFFTProgram
	}
	args := append(append([]string{}, m.Args...), in.Name())

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, program, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s: %v: %s", ErrAlignerFailed, program, err, strings.TrimSpace(stderr.String()))
	}
	m.logger.Debug("alignment finished",
		zap.String("program", program),
		zap.Int("sequences", len(seqs)),
		zap.Duration("elapsed", time.Since(start)))

	out, err := ReadFASTA(&stdout)
	if err != nil {
		return nil, fmt.Errorf("%w: parse output: %v", ErrAlignerFailed, err)
	}
	return restoreIDs(seqs, out)
}

func renamed(seqs []Sequence) []Sequence {
	out := make([]Sequence, len(seqs))
	for i, s := range seqs {
		out[i] = Sequence{ID: "s" + strconv.Itoa(i), Seq: s.Seq}
	}
	return out
}

func restoreIDs(orig, aligned []Sequence) ([]Sequence, error) {
	if len(aligned) != len(orig) {
		return nil, fmt.Errorf("%w: expected %d sequences, got %d", ErrAlignerFailed, len(orig), len(aligned))
	}
	out := make([]Sequence, len(aligned))
	for i, a := range aligned {
		idx, err := strconv.Atoi(strings.TrimPrefix(a.ID, "s"))
		if err != nil || !strings.HasPrefix(a.ID, "s") || idx < 0 || idx >= len(orig) {
			return nil, fmt.Errorf("%w: unexpected sequence name %q", ErrAlignerFailed, a.ID)
		}
		out[i] = Sequence{ID: orig[idx].ID, Seq: strings.ToUpper(a.Seq)}
	}
	return out, nil
}

// PadAligner right-pads every sequence with gaps to the longest length.
// It stands in for an external aligner when none is installed.
type PadAligner struct{}

// Align implements Aligner.
func (PadAligner) Align(_ context.Context, seqs []Sequence) ([]Sequence, error) {
	return Pad(seqs), nil
}

// Pad right-pads sequences with gaps to a common length.
func Pad(seqs []Sequence) []Sequence {
	width := 0
	for _, s := range seqs {
		width = max(width, len(s.Seq))
	}
	out := make([]Sequence, len(seqs))
	for i, s := range seqs {
		out[i] = Sequence{ID: s.ID, Seq: s.Seq + strings.Repeat(string(Gap), width-len(s.Seq))}
	}
	return out
}

// WriteFASTA writes seqs as FASTA records, one sequence line per record.
func WriteFASTA(w io.Writer, seqs []Sequence) error {
	width := 1
	for _, s := range seqs {
		width = max(width, len(s.Seq))
	}
	fw := fasta.NewWriter(w, width)
	for _, s := range seqs {
		rec := linear.NewSeq(s.ID, alphabet.BytesToLetters([]byte(s.Seq)), alphabet.Protein)
		if _, err := fw.Write(rec); err != nil {
			return err
		}
	}
	return nil
}

// ReadFASTA reads FASTA records. Record ids are the header text up to the
// first space.
func ReadFASTA(r io.Reader) ([]Sequence, error) {
	sc := seqio.NewScanner(fasta.NewReader(r, linear.NewSeq("", nil, alphabet.Protein)))
	var out []Sequence
	for sc.Next() {
		s := sc.Seq().(*linear.Seq)
		out = append(out, Sequence{ID: s.Name(), Seq: string(alphabet.LettersToBytes(s.Seq))})
	}
	if err := sc.Error(); err != nil {
		return nil, err
	}
	return out, nil
}
