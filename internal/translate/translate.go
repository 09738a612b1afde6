package translate

import "strings"

// minBases is the shortest input that yields at least one codon.
const minBases = 3

// Best returns the amino-acid translation of a nucleotide sequence in the
// reading frame most likely to be coding.
//
// The input may hold several comma-joined sequences, in which case the
// longest chunk is used. Characters outside the IUPAC nucleotide alphabet
// are dropped. Frames 0, 1 and 2 are translated through stop codons, then:
//
//  1. among frames with no stop before the final residue, the longest wins;
//  2. otherwise the frame with the longest stop-delimited fragment wins.
//
// Ties go to the earlier frame. An empty string is returned when fewer than
// three bases remain.
func Best(nt string) string {
	if strings.Contains(nt, ",") {
		nt = longestChunk(nt)
	}

	nt = cleanNucleotides(nt)
	if len(nt) < minBases {
		return ""
	}

	var frames [3]string
	for offset := range frames {
		frames[offset] = TranslateSequence(nt[offset:])
	}

	best, found := "", false
	for _, aa := range frames {
		if !hasInternalStop(aa) && (!found || len(aa) > len(best)) {
			best, found = aa, true
		}
	}
	if found {
		return best
	}

	best, bestFrag := frames[0], longestFragment(frames[0])
	for _, aa := range frames[1:] {
		if frag := longestFragment(aa); frag > bestFrag {
			best, bestFrag = aa, frag
		}
	}
	return best
}

// BestOf translates the first element of a multi-valued cell.
func BestOf(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return Best(values[0])
}

// longestChunk returns the longest comma-separated part, the first on ties.
func longestChunk(s string) string {
	var longest string
	for _, chunk := range strings.Split(s, ",") {
		if len(chunk) > len(longest) {
			longest = chunk
		}
	}
	return longest
}

// cleanNucleotides uppercases s and keeps only IUPAC nucleotide letters.
func cleanNucleotides(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		if _, ok := iupac[c]; ok {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// hasInternalStop reports whether aa has a stop before its final residue.
func hasInternalStop(aa string) bool {
	if len(aa) == 0 {
		return false
	}
	return strings.IndexByte(aa[:len(aa)-1], '*') >= 0
}

func longestFragment(aa string) int {
	longest := 0
	for _, seg := range strings.Split(aa, "*") {
		if len(seg) > longest {
			longest = len(seg)
		}
	}
	return longest
}
