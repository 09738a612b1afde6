// Package msa aligns amino-acid sequences and derives consensus, match
// matrices, display ordering and logo profiles from the alignment.
package msa

import (
	"encoding/json"
	"fmt"
)

// Gap is the alignment gap character.
const Gap = '-'

// Sequence is an identified, possibly aligned, sequence.
// It serializes as the two-element JSON array ["id", "SEQ"].
type Sequence struct {
	ID  string
	Seq string
}

// MarshalJSON implements json.Marshaler.
func (s Sequence) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{s.ID, s.Seq})
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Sequence) UnmarshalJSON(data []byte) error {
	var pair []string
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("decode aligned pair: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("decode aligned pair: expected 2 elements, got %d", len(pair))
	}
	s.ID, s.Seq = pair[0], pair[1]
	return nil
}
