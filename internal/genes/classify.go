// Package genes maps immunoglobulin gene symbols to the repertoire columns
// that hold them.
package genes

import "strings"

// Category names the per-cell column a gene call belongs to.
type Category string

// Gene call columns of a merged cell.
const (
	VCallVDJ Category = "v_call_VDJ"
	DCallVDJ Category = "d_call_VDJ"
	JCallVDJ Category = "j_call_VDJ"
	CCallVDJ Category = "c_call_VDJ"
	VCallVJ  Category = "v_call_VJ"
	JCallVJ  Category = "j_call_VJ"
	CCallVJ  Category = "c_call_VJ"
)

// All is the wildcard gene accepted in place of a heavy or light gene.
const All = "all"

type prefixRule struct {
	prefix   string
	category Category
}

// rules is checked in order. IGHD is both the D segment and the delta
// constant region; the D-segment rule comes first and wins.
var rules = []prefixRule{
	{"IGHV", VCallVDJ},
	{"IGHD", DCallVDJ},
	{"IGHJ", JCallVDJ},
	{"IGHG", CCallVDJ},
	{"IGHA", CCallVDJ},
	{"IGHD", CCallVDJ},
	{"IGHE", CCallVDJ},
	{"IGHM", CCallVDJ},
	{"IGKV", VCallVJ},
	{"IGLV", VCallVJ},
	{"IGKJ", JCallVJ},
	{"IGLJ", JCallVJ},
	{"IGKC", CCallVJ},
	{"IGLC", CCallVJ},
}

// Classify returns the column category for a gene symbol such as
// "IGHV1-2*01". The symbol "all" (any case) maps to v_call_VDJ.
// ok is false for unrecognized symbols.
func Classify(gene string) (Category, bool) {
	if gene == "" {
		return "", false
	}
	if strings.EqualFold(gene, All) {
		return VCallVDJ, true
	}

	prefix := Prefix(gene)
	for _, r := range rules {
		if strings.HasPrefix(prefix, r.prefix) {
			return r.category, true
		}
	}
	return "", false
}

// Prefix strips digits and hyphens from a gene symbol,
// e.g. "IGHV1-2*01" -> "IGHV*".
func Prefix(gene string) string {
	var b strings.Builder
	b.Grow(len(gene))
	for i := 0; i < len(gene); i++ {
		c := gene[i]
		if (c >= '0' && c <= '9') || c == '-' {
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// Light-chain loci.
const (
	LocusIGH = "IGH"
	LocusIGK = "IGK"
	LocusIGL = "IGL"
)

// LightLocus returns the locus column holding sequences for a light-chain
// gene, or "" when the gene is neither kappa nor lambda.
func LightLocus(gene string) string {
	switch {
	case strings.HasPrefix(gene, LocusIGK):
		return LocusIGK
	case strings.HasPrefix(gene, LocusIGL):
		return LocusIGL
	}
	return ""
}

// Base strips the allele suffix from a gene symbol,
// e.g. "IGHV1-2*01" -> "IGHV1-2".
func Base(gene string) string {
	if i := strings.IndexByte(gene, '*'); i >= 0 {
		return gene[:i]
	}
	return gene
}
