// Package translate converts nucleotide sequences to amino acids.
package translate

import "strings"

// Standard genetic code: DNA codon to amino acid (single letter).
var codonTable = map[string]byte{
	"TTT": 'F', "TTC": 'F', "TTA": 'L', "TTG": 'L',
	"TCT": 'S', "TCC": 'S', "TCA": 'S', "TCG": 'S',
	"TAT": 'Y', "TAC": 'Y', "TAA": '*', "TAG": '*',
	"TGT": 'C', "TGC": 'C', "TGA": '*', "TGG": 'W',

	"CTT": 'L', "CTC": 'L', "CTA": 'L', "CTG": 'L',
	"CCT": 'P', "CCC": 'P', "CCA": 'P', "CCG": 'P',
	"CAT": 'H', "CAC": 'H', "CAA": 'Q', "CAG": 'Q',
	"CGT": 'R', "CGC": 'R', "CGA": 'R', "CGG": 'R',

	"ATT": 'I', "ATC": 'I', "ATA": 'I', "ATG": 'M',
	"ACT": 'T', "ACC": 'T', "ACA": 'T', "ACG": 'T',
	"AAT": 'N', "AAC": 'N', "AAA": 'K', "AAG": 'K',
	"AGT": 'S', "AGC": 'S', "AGA": 'R', "AGG": 'R',

	"GTT": 'V', "GTC": 'V', "GTA": 'V', "GTG": 'V',
	"GCT": 'A', "GCC": 'A', "GCA": 'A', "GCG": 'A',
	"GAT": 'D', "GAC": 'D', "GAA": 'E', "GAG": 'E',
	"GGT": 'G', "GGC": 'G', "GGA": 'G', "GGG": 'G',
}

// iupac expands an IUPAC nucleotide code to the bases it stands for.
var iupac = map[byte]string{
	'A': "A", 'C': "C", 'G': "G", 'T': "T", 'U': "T",
	'R': "AG", 'Y': "CT", 'K': "GT", 'M': "AC",
	'S': "CG", 'W': "AT",
	'B': "CGT", 'D': "AGT", 'H': "ACT", 'V': "ACG",
	'N': "ACGT",
}

// ambiguousPairs names amino-acid pairs that have their own IUPAC letter.
var ambiguousPairs = map[[2]byte]byte{
	{'D', 'N'}: 'B',
	{'E', 'Q'}: 'Z',
	{'I', 'L'}: 'J',
}

// TranslateCodon translates a DNA codon to its amino acid.
// Returns '*' for stop codons. Ambiguous IUPAC codons translate to the amino
// acid shared by every expansion, to B, Z or J when the expansions are D/N,
// E/Q or I/L, and to 'X' otherwise.
func TranslateCodon(codon string) byte {
	if len(codon) != 3 {
		return 'X'
	}
	codon = strings.ToUpper(codon)
	if aa, ok := codonTable[codon]; ok {
		return aa
	}

	first, second, third := iupac[codon[0]], iupac[codon[1]], iupac[codon[2]]
	if first == "" || second == "" || third == "" {
		return 'X'
	}

	var lo, hi byte
	var buf [3]byte
	for i := 0; i < len(first); i++ {
		for j := 0; j < len(second); j++ {
			for k := 0; k < len(third); k++ {
				buf[0], buf[1], buf[2] = first[i], second[j], third[k]
				got := codonTable[string(buf[:])]
				switch {
				case lo == 0:
					lo, hi = got, got
				case got < lo:
					if hi != lo {
						return 'X'
					}
					lo = got
				case got > hi:
					if hi != lo {
						return 'X'
					}
					hi = got
				case got != lo && got != hi:
					return 'X'
				}
			}
		}
	}
	if lo == hi {
		return lo
	}
	if aa, ok := ambiguousPairs[[2]byte{lo, hi}]; ok {
		return aa
	}
	return 'X'
}

// IsStopCodon returns true if the codon is a stop codon (TAA, TAG, TGA).
func IsStopCodon(codon string) bool {
	return TranslateCodon(codon) == '*'
}

// TranslateSequence translates a DNA sequence to amino acids, reading
// through stop codons. A trailing partial codon is ignored.
func TranslateSequence(seq string) string {
	n := (len(seq) / 3) * 3

	var result strings.Builder
	result.Grow(n / 3)

	for i := 0; i < n; i += 3 {
		result.WriteByte(TranslateCodon(seq[i : i+3]))
	}

	return result.String()
}
