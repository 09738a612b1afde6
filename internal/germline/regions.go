package germline

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/bcrlab/bcrview/internal/genes"
)

type regionRow struct {
	gene   string
	bounds map[string]Range
}

func (a *Annotator) regions(species string, chain Chain) ([]regionRow, error) {
	key := species + "/" + string(chain)

	a.mu.Lock()
	defer a.mu.Unlock()

	if rows, ok := a.regionSet[key]; ok {
		return rows, nil
	}

	path := a.RegionPath(species, chain)
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		a.logger.Debug("region table missing", zap.String("path", path))
		a.regionSet[key] = nil
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open region table: %w", err)
	}
	defer f.Close()

	rows, err := parseRegions(f, chain)
	if err != nil {
		return nil, fmt.Errorf("read region table %s: %w", path, err)
	}
	a.regionSet[key] = rows
	return rows, nil
}

// parseRegions reads a region table with a sequence_id column and one
// "start-end" column per region of chain. Empty cells and "-" are skipped.
func parseRegions(r io.Reader, chain Chain) ([]regionRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	idCol := -1
	cols := make(map[string]int)
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "sequence_id" {
			idCol = i
			continue
		}
		cols[h] = i
	}
	if idCol < 0 {
		return nil, errors.New("missing sequence_id column")
	}

	var rows []regionRow
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if idCol >= len(rec) {
			continue
		}
		row := regionRow{gene: strings.TrimSpace(rec[idCol]), bounds: make(map[string]Range)}
		for _, name := range RegionOrder[chain] {
			i, ok := cols[name]
			if !ok || i >= len(rec) {
				continue
			}
			if rng, ok := parseRange(rec[i]); ok {
				row.bounds[name] = rng
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseRange(s string) (Range, bool) {
	s = strings.ReplaceAll(s, " ", "")
	start, end, ok := strings.Cut(s, "-")
	if !ok || start == "" || end == "" {
		return Range{}, false
	}
	a, err := strconv.Atoi(start)
	if err != nil {
		return Range{}, false
	}
	b, err := strconv.Atoi(end)
	if err != nil {
		return Range{}, false
	}
	return Range{Start: a, End: b}, true
}

// matchRegions returns the bounds of the row naming gene exactly, falling back
// to the first row with the same base gene.
func matchRegions(rows []regionRow, gene string) map[string]Range {
	for _, r := range rows {
		if r.gene == gene {
			return r.bounds
		}
	}
	base := genes.Base(gene)
	for _, r := range rows {
		if genes.Base(r.gene) == base {
			return r.bounds
		}
	}
	return nil
}
