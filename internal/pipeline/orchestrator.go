// Package pipeline computes, caches and serves the per-gene-pair alignment
// analysis of a repertoire.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/bcrlab/bcrview/internal/airr"
	"github.com/bcrlab/bcrview/internal/genes"
	"github.com/bcrlab/bcrview/internal/germline"
	"github.com/bcrlab/bcrview/internal/msa"
	"github.com/bcrlab/bcrview/internal/translate"
)

// ErrInvalidGene is returned for gene symbols the classifier does not accept
// in the requested position.
var ErrInvalidGene = errors.New("invalid gene")

// CellSource provides the merged cells of a project.
type CellSource interface {
	Cells(ctx context.Context, project string) ([]*airr.Cell, error)
}

// CellSlice is a CellSource over an in-memory set of projects.
type CellSlice map[string][]*airr.Cell

// Cells implements CellSource.
func (s CellSlice) Cells(_ context.Context, project string) ([]*airr.Cell, error) {
	return s[project], nil
}

// Orchestrator runs the gene-pair pipeline: filter, translate, label, align,
// annotate and cache. Concurrent requests for the same pair in this process
// share one computation; separate processes may both compute, in which case
// the last cache write wins.
type Orchestrator struct {
	cells     CellSource
	engine    *msa.Engine
	annotator *germline.Annotator
	cache     *FileCache
	statuses  *StatusStore
	workers   int
	aligner   string

	group  singleflight.Group
	logger *zap.Logger
}

// Options configures an Orchestrator.
type Options struct {
	// DataDir is the root of the per-project cache directories.
	DataDir string
	// Workers bounds the translation worker pool; 0 uses all CPUs.
	Workers int
	// AlignerName is recorded in entry metadata.
	AlignerName string
}

// New creates an orchestrator. A nil statuses creates a private store.
func New(cells CellSource, engine *msa.Engine, annotator *germline.Annotator, statuses *StatusStore, opts Options) *Orchestrator {
	if statuses == nil {
		statuses = NewStatusStore()
	}
	return &Orchestrator{
		cells:     cells,
		engine:    engine,
		annotator: annotator,
		cache:     NewFileCache(opts.DataDir),
		statuses:  statuses,
		workers:   opts.Workers,
		aligner:   opts.AlignerName,
		logger:    zap.NewNop(),
	}
}

// SetLogger sets the logger for the orchestrator.
func (o *Orchestrator) SetLogger(logger *zap.Logger) {
	o.logger = logger
}

// Status returns the computation status of pair.
func (o *Orchestrator) Status(pair GenePair) Status {
	return o.statuses.Get(pair)
}

// CachePath returns where pair's entry is stored.
func (o *Orchestrator) CachePath(pair GenePair) string {
	return o.cache.Path(pair)
}

// Validate checks that hc is a heavy V gene and lc a light V gene.
func Validate(pair GenePair) error {
	if c, ok := genes.Classify(pair.HCGene); !ok || c != genes.VCallVDJ {
		return fmt.Errorf("%w: %q is not a heavy-chain V gene", ErrInvalidGene, pair.HCGene)
	}
	if c, ok := genes.Classify(pair.LCGene); !ok || c != genes.VCallVJ {
		return fmt.Errorf("%w: %q is not a light-chain V gene", ErrInvalidGene, pair.LCGene)
	}
	return nil
}

// Alignment returns the serialized entry for pair, computing and caching it
// on first use. Repeated calls return byte-identical documents.
func (o *Orchestrator) Alignment(ctx context.Context, pair GenePair, species string) ([]byte, error) {
	if err := Validate(pair); err != nil {
		return nil, err
	}

	key := pair.Key()
	o.statuses.Set(pair, Status{State: Computing})

	// Callers sharing the computation must not be failed by the first
	// caller going away; the aligner enforces its own timeout.
	v, err, shared := o.group.Do(key, func() (any, error) {
		return o.load(context.WithoutCancel(ctx), pair, species)
	})
	if err != nil {
		o.statuses.Set(pair, Status{State: Failed, Message: err.Error()})
		o.logger.Error("alignment failed",
			zap.String("key", key), zap.Error(err))
		return nil, err
	}
	o.statuses.Set(pair, Status{State: Ready})
	if shared {
		o.logger.Debug("alignment shared", zap.String("key", key))
	}
	return v.([]byte), nil
}

// Entry returns the decoded entry for pair, computing it if needed.
func (o *Orchestrator) Entry(ctx context.Context, pair GenePair, species string) (*Entry, error) {
	data, err := o.Alignment(ctx, pair, species)
	if err != nil {
		return nil, err
	}
	return DecodeEntry(data)
}

// Invalidate removes the cached entry for pair and resets its status.
func (o *Orchestrator) Invalidate(pair GenePair) error {
	if err := o.cache.Remove(pair); err != nil {
		return err
	}
	o.statuses.Delete(pair)
	return nil
}

// ForgetProject resets the status of every pair of project. Cached entries
// live under the project's directory and go with it.
func (o *Orchestrator) ForgetProject(project string) {
	o.statuses.DeleteProject(project)
}

func (o *Orchestrator) load(ctx context.Context, pair GenePair, species string) ([]byte, error) {
	data, err := o.cache.Read(pair)
	if err == nil {
		o.logger.Debug("alignment cache hit", zap.String("path", o.cache.Path(pair)))
		return data, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	start := time.Now()
	entry, err := o.compute(ctx, pair, species)
	if err != nil {
		return nil, err
	}
	data, err = json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("encode alignment entry: %w", err)
	}
	if err := o.cache.Write(pair, data); err != nil {
		return nil, err
	}

	o.logger.Info("alignment computed",
		zap.String("project", pair.Project),
		zap.String("hc_gene", pair.HCGene),
		zap.String("lc_gene", pair.LCGene),
		zap.Int("hc_sequences", len(entry.HCAlignment)),
		zap.Int("lc_sequences", len(entry.LCAlignment)),
		zap.Duration("elapsed", time.Since(start)))
	return data, nil
}

type chainResult struct {
	result *msa.Result
	ann    *germline.Annotation
}

func (o *Orchestrator) compute(ctx context.Context, pair GenePair, species string) (*Entry, error) {
	cells, err := o.cells.Cells(ctx, pair.Project)
	if err != nil {
		return nil, fmt.Errorf("load cells: %w", err)
	}

	var filtered []*airr.Cell
	for _, c := range cells {
		if c.VCallVDJ == pair.HCGene && c.VCallVJ == pair.LCGene {
			filtered = append(filtered, c)
		}
	}

	hcTable, lcTable := o.tables(filtered, genes.LightLocus(pair.LCGene))
	hcLabels := AssignLabels(HeavyPrefix, rowIDs(hcTable))
	lcLabels := AssignLabels(LightPrefix, rowIDs(lcTable))

	var hc, lc chainResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		hc, err = o.chain(gctx, hcTable, pair.HCGene, species, Heavy)
		return err
	})
	g.Go(func() (err error) {
		lc, err = o.chain(gctx, lcTable, pair.LCGene, species, Light)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	e := &Entry{
		HCTable:       hcTable,
		LCTable:       lcTable,
		HCAlignment:   hc.result.Alignment,
		HCConsensus:   hc.result.Consensus,
		HCMatchMatrix: hc.result.MatchMatrix,
		LCAlignment:   lc.result.Alignment,
		LCConsensus:   lc.result.Consensus,
		LCMatchMatrix: lc.result.MatchMatrix,
		HCJSON:        displayRows(hc.ann, hc.result.Alignment, hcLabels, hc.result.Consensus),
		LCJSON:        displayRows(lc.ann, lc.result.Alignment, lcLabels, lc.result.Consensus),
		HCLabelMap:    hcLabels,
		LCLabelMap:    lcLabels,
		Metadata: Metadata{
			Project:  pair.Project,
			Species:  species,
			HCGene:   pair.HCGene,
			LCGene:   pair.LCGene,
			HCLocus:  genes.LocusIGH,
			LCLocus:  genes.LightLocus(pair.LCGene),
			HCCount:  len(hcTable),
			LCCount:  len(lcTable),
			Aligner:  o.aligner,
			Filtered: len(filtered),
		},
	}
	if hc.ann != nil {
		e.HCGermline = &hc.ann.Sequence
		e.HCRegion = hc.ann.Regions
		e.HCRegionBlocks = hc.ann.Blocks
	}
	if lc.ann != nil {
		e.LCGermline = &lc.ann.Sequence
		e.LCRegion = lc.ann.Regions
		e.LCRegionBlocks = lc.ann.Blocks
	}
	return e, nil
}

// tables translates the heavy and light loci of cells and returns the
// deduplicated, non-empty rows of each chain in input order.
func (o *Orchestrator) tables(cells []*airr.Cell, lightLocus string) (hc, lc []TableRow) {
	nts := make([]string, 0, 2*len(cells))
	for _, c := range cells {
		nts = append(nts, c.IGH, c.Locus(lightLocus))
	}
	aas := translate.All(nts, o.workers)

	hc = make([]TableRow, 0, len(cells))
	lc = make([]TableRow, 0, len(cells))
	seenHC := make(map[TableRow]bool)
	seenLC := make(map[TableRow]bool)
	for i, c := range cells {
		if c.LocusVDJ == genes.LocusIGH {
			row := TableRow{Locus: genes.LocusIGH, SequenceID: c.SequenceID, Sequence: aas[2*i], Isotype: c.Isotype, CloneID: c.CloneID}
			if row.Sequence != "" && !seenHC[row] {
				seenHC[row] = true
				hc = append(hc, row)
			}
		}
		if lightLocus != "" {
			row := TableRow{Locus: lightLocus, SequenceID: c.SequenceID, Sequence: aas[2*i+1], Isotype: c.Isotype, CloneID: c.CloneID}
			if row.Sequence != "" && !seenLC[row] {
				seenLC[row] = true
				lc = append(lc, row)
			}
		}
	}
	return hc, lc
}

func rowIDs(rows []TableRow) []string {
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.SequenceID
	}
	return ids
}

func (o *Orchestrator) chain(ctx context.Context, rows []TableRow, gene, species string, c Chain) (chainResult, error) {
	seqs := make([]msa.Sequence, len(rows))
	for i, r := range rows {
		seqs[i] = msa.Sequence{ID: r.SequenceID, Seq: r.Sequence}
	}

	res, err := o.engine.Run(ctx, seqs)
	if err != nil {
		return chainResult{}, fmt.Errorf("%s alignment: %w", c, err)
	}

	var ann *germline.Annotation
	if o.annotator != nil && species != "" {
		ann, err = o.annotator.Lookup(gene, species, c)
		if err != nil {
			return chainResult{}, fmt.Errorf("%s germline: %w", c, err)
		}
	}
	return chainResult{result: res, ann: ann}, nil
}
