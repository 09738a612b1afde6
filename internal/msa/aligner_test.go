package msa

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPad(t *testing.T) {
	got := Pad([]Sequence{{"a", "MAQ"}, {"b", "M"}, {"c", ""}})
	assert.Equal(t, []Sequence{{"a", "MAQ"}, {"b", "M--"}, {"c", "---"}}, got)
	assert.Empty(t, Pad(nil))
}

func TestFASTA_RoundTrip(t *testing.T) {
	seqs := []Sequence{
		{"s0", "MAQVQLVQSGAEVKKPGASVKVSCKASGYTFTMAQVQLVQSGAEVKKPGASVKVSCKASGYTFT"},
		{"s1", "DIV-QS"},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteFASTA(&buf, seqs))
	assert.Equal(t, ">s0\n"+seqs[0].Seq+"\n>s1\nDIV-QS\n", buf.String(), "records are not wrapped")

	back, err := ReadFASTA(&buf)
	require.NoError(t, err)
	assert.Equal(t, seqs, back)
}

func TestReadFASTA_HeaderDescription(t *testing.T) {
	got, err := ReadFASTA(strings.NewReader(">s1 some description\nmaq\nvq\n"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "s1", got[0].ID)
	assert.Equal(t, "maqvq", got[0].Seq)
}

func TestRestoreIDs(t *testing.T) {
	orig := []Sequence{{"cell one", "MA"}, {"cell|two", "MK"}}
	got, err := restoreIDs(orig, []Sequence{{"s1", "m-k"}, {"s0", "ma-"}})
	require.NoError(t, err)
	assert.Equal(t, []Sequence{{"cell|two", "M-K"}, {"cell one", "MA-"}}, got)

	_, err = restoreIDs(orig, []Sequence{{"s0", "MA"}})
	assert.ErrorIs(t, err, ErrAlignerFailed)

	_, err = restoreIDs(orig, []Sequence{{"s0", "MA"}, {"x9", "MK"}})
	assert.ErrorIs(t, err, ErrAlignerFailed)
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	path := filepath.Join(t.TempDir(), "fake-mafft")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestMAFFT_Align(t *testing.T) {
	// Echo the input back, as an aligner would for already-aligned input.
	m := NewMAFFT()
	m.Program = writeScript(t, `cat "$1"`)
	m.Args = nil
	m.TempDir = t.TempDir()

	seqs := []Sequence{{"seq one", "maq"}, {"seq two", "mak"}}
	got, err := m.Align(context.Background(), seqs)
	require.NoError(t, err)
	assert.Equal(t, []Sequence{{"seq one", "MAQ"}, {"seq two", "MAK"}}, got)

	entries, err := os.ReadDir(m.TempDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temporary input removed")
}

func TestMAFFT_Failure(t *testing.T) {
	m := NewMAFFT()
	m.Program = writeScript(t, `echo "bad input" >&2; exit 1`)

	_, err := m.Align(context.Background(), []Sequence{{"a", "M"}, {"b", "K"}})
	require.ErrorIs(t, err, ErrAlignerFailed)
	assert.Contains(t, err.Error(), "bad input")
}

func TestMAFFT_Timeout(t *testing.T) {
	m := NewMAFFT()
	m.Program = writeScript(t, `exec sleep 5`)
	m.Args = nil
	m.Timeout = 50 * time.Millisecond

	_, err := m.Align(context.Background(), []Sequence{{"a", "M"}, {"b", "K"}})
	require.ErrorIs(t, err, ErrAlignerFailed)
	assert.Contains(t, err.Error(), "deadline exceeded")
}

func TestMAFFT_MissingProgram(t *testing.T) {
	m := NewMAFFT()
	m.Program = filepath.Join(t.TempDir(), "no-such-mafft")

	_, err := m.Align(context.Background(), []Sequence{{"a", "M"}, {"b", "K"}})
	assert.ErrorIs(t, err, ErrAlignerFailed)
}
