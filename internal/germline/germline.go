// Package germline looks up germline V-gene sequences and their
// framework/CDR region boundaries.
package germline

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/io/seqio"
	"github.com/biogo/biogo/io/seqio/fasta"
	"github.com/biogo/biogo/seq/linear"
	"go.uber.org/zap"

	"github.com/bcrlab/bcrview/internal/genes"
)

// Chain selects the region naming scheme.
type Chain string

// Chain types.
const (
	Heavy Chain = "hc"
	Light Chain = "lc"
)

// Unknown labels positions outside every annotated region.
const Unknown = "UNK"

// RegionOrder lists the regions of each chain type from N- to C-terminus.
var RegionOrder = map[Chain][]string{
	Heavy: {"HFR1", "CDR-H1", "HFR2", "CDR-H2", "HFR3", "CDR-H3", "HFR4"},
	Light: {"LFR1", "CDR-L1", "LFR2", "CDR-L2", "LFR3", "CDR-L3", "LFR4"},
}

// Range is a 1-based inclusive region span.
type Range struct {
	Start, End int
}

// RegionBlock is a named span clipped to the germline length.
// It serializes as ["HFR1", 1, 25].
type RegionBlock struct {
	Name       string
	Start, End int
}

// MarshalJSON implements json.Marshaler.
func (b RegionBlock) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{b.Name, b.Start, b.End})
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *RegionBlock) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode region block: %w", err)
	}
	if len(raw) != 3 {
		return fmt.Errorf("decode region block: expected 3 elements, got %d", len(raw))
	}
	if err := json.Unmarshal(raw[0], &b.Name); err != nil {
		return fmt.Errorf("decode region block name: %w", err)
	}
	if err := json.Unmarshal(raw[1], &b.Start); err != nil {
		return fmt.Errorf("decode region block start: %w", err)
	}
	if err := json.Unmarshal(raw[2], &b.End); err != nil {
		return fmt.Errorf("decode region block end: %w", err)
	}
	return nil
}

// Annotation is a germline sequence with optional region labelling.
// Regions and Blocks are nil when no boundaries are known.
type Annotation struct {
	Gene     string
	Sequence string
	Regions  []string
	Blocks   []RegionBlock
}

// Annotator resolves genes against per-species reference files in Dir:
//
//	imgt_aa_<species>_ig_v.fasta   germline amino-acid sequences
//	<species>_aa_hc.csv            heavy-chain region boundaries
//	<species>_aa_lc.csv            light-chain region boundaries
//
// Parsed files are cached for the lifetime of the Annotator.
type Annotator struct {
	Dir    string
	logger *zap.Logger

	mu        sync.Mutex
	refs      map[string][]reference
	regionSet map[string][]regionRow
}

// NewAnnotator creates an annotator reading reference files from dir.
func NewAnnotator(dir string) *Annotator {
	return &Annotator{
		Dir:       dir,
		logger:    zap.NewNop(),
		refs:      make(map[string][]reference),
		regionSet: make(map[string][]regionRow),
	}
}

// SetLogger sets the logger for the annotator.
func (a *Annotator) SetLogger(logger *zap.Logger) {
	a.logger = logger
}

// FASTAPath returns the reference FASTA path for species.
func (a *Annotator) FASTAPath(species string) string {
	return filepath.Join(a.Dir, fmt.Sprintf("imgt_aa_%s_ig_v.fasta", species))
}

// RegionPath returns the region table path for species and chain.
func (a *Annotator) RegionPath(species string, chain Chain) string {
	return filepath.Join(a.Dir, fmt.Sprintf("%s_aa_%s.csv", species, chain))
}

// Lookup returns the germline annotation for gene, or nil when the species
// has no reference or the gene is absent from it.
func (a *Annotator) Lookup(gene, species string, chain Chain) (*Annotation, error) {
	if gene == "" || strings.EqualFold(gene, genes.All) {
		return nil, nil
	}

	refs, err := a.references(species)
	if err != nil {
		return nil, err
	}
	seq, ok := matchReference(refs, gene)
	if !ok {
		a.logger.Debug("no germline reference",
			zap.String("gene", gene), zap.String("species", species))
		return nil, nil
	}

	ann := &Annotation{Gene: gene, Sequence: seq}

	rows, err := a.regions(species, chain)
	if err != nil {
		return nil, err
	}
	if bounds := matchRegions(rows, gene); len(bounds) > 0 {
		ann.Regions = RegionLabels(bounds, len(seq), chain)
		ann.Blocks = RegionBlocks(bounds, len(seq), chain)
	}
	return ann, nil
}

type reference struct {
	header string
	seq    string
}

func (a *Annotator) references(species string) ([]reference, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if refs, ok := a.refs[species]; ok {
		return refs, nil
	}

	path := a.FASTAPath(species)
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		a.logger.Warn("germline reference missing", zap.String("path", path))
		a.refs[species] = nil
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open germline reference: %w", err)
	}
	defer f.Close()

	var refs []reference
	sc := seqio.NewScanner(fasta.NewReader(f, linear.NewSeq("", nil, alphabet.Protein)))
	for sc.Next() {
		s := sc.Seq().(*linear.Seq)
		header := s.Name()
		if s.Desc != "" {
			header += " " + s.Desc
		}
		refs = append(refs, reference{header: header, seq: cleanGermline(string(alphabet.LettersToBytes(s.Seq)))})
	}
	if err := sc.Error(); err != nil {
		return nil, fmt.Errorf("read germline reference %s: %w", path, err)
	}

	a.refs[species] = refs
	a.logger.Debug("loaded germline reference",
		zap.String("path", path), zap.Int("records", len(refs)))
	return refs, nil
}

// matchReference finds the first record whose header carries the gene's base
// name as a "|"- or space-delimited field, ignoring allele suffixes.
func matchReference(refs []reference, gene string) (string, bool) {
	base := genes.Base(gene)
	for _, r := range refs {
		for _, field := range strings.FieldsFunc(r.header, func(c rune) bool { return c == '|' || c == ' ' }) {
			if genes.Base(field) == base {
				return r.seq, true
			}
		}
	}
	return "", false
}

func cleanGermline(s string) string {
	return strings.ToUpper(strings.NewReplacer("-", "", ".", "").Replace(s))
}

// RegionLabels returns one region name per position of a sequence of length
// n; positions outside every region are Unknown.
func RegionLabels(bounds map[string]Range, n int, chain Chain) []string {
	labels := make([]string, n)
	for i := range labels {
		labels[i] = Unknown
	}
	for _, name := range RegionOrder[chain] {
		r, ok := bounds[name]
		if !ok {
			continue
		}
		for i := r.Start - 1; i < r.End; i++ {
			if i >= 0 && i < n {
				labels[i] = name
			}
		}
	}
	return labels
}

// RegionBlocks returns the regions in chain order, clipped to [1, n].
// Regions that fall entirely outside the sequence are omitted.
func RegionBlocks(bounds map[string]Range, n int, chain Chain) []RegionBlock {
	var blocks []RegionBlock
	for _, name := range RegionOrder[chain] {
		r, ok := bounds[name]
		if !ok {
			continue
		}
		start, end := max(1, r.Start), min(n, r.End)
		if start <= end {
			blocks = append(blocks, RegionBlock{Name: name, Start: start, End: end})
		}
	}
	return blocks
}
