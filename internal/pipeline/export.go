package pipeline

import (
	"io"

	"github.com/bcrlab/bcrview/internal/msa"
)

// WriteFASTA writes the chain's aligned sequences under their labels,
// preceded by the consensus when there is one.
func WriteFASTA(w io.Writer, v ChainView) error {
	seqs := v.Labelled()
	if v.Consensus != "" {
		seqs = append([]msa.Sequence{{ID: RowConsensus, Seq: v.Consensus}}, seqs...)
	}
	return msa.WriteFASTA(w, seqs)
}

// Profile returns the sequence-logo columns of the chain's alignment.
func Profile(v ChainView) []msa.Column {
	return msa.Profile(v.Labelled())
}
