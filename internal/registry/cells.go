package registry

import (
	"context"
	"database/sql/driver"
	"fmt"

	goduckdb "github.com/marcboeker/go-duckdb"
	"go.uber.org/zap"

	"github.com/bcrlab/bcrview/internal/airr"
)

// LoadCells replaces the cell table of a project using the Appender API.
// Cell order is preserved.
func (s *Store) LoadCells(ctx context.Context, projectID int64, cells []*airr.Cell) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cells WHERE project_id=?`, projectID); err != nil {
		return fmt.Errorf("clear cells: %w", err)
	}
	if len(cells) == 0 {
		return nil
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get connection: %w", err)
	}
	defer conn.Close()

	var appender *goduckdb.Appender
	if err := conn.Raw(func(driverConn any) error {
		var err error
		appender, err = goduckdb.NewAppenderFromConn(driverConn.(driver.Conn), "", "cells")
		return err
	}); err != nil {
		return fmt.Errorf("create appender: %w", err)
	}
	defer appender.Close()

	for i, c := range cells {
		if err := appender.AppendRow(
			projectID, int64(i), c.SequenceID, c.Isotype, c.CloneID,
			c.IGH, c.IGK, c.IGL, c.Sequence, c.SequenceAA,
			c.VCallVDJ, c.DCallVDJ, c.JCallVDJ, c.CCallVDJ, c.LocusVDJ,
			c.VCallVJ, c.JCallVJ, c.CCallVJ, c.LocusVJ,
		); err != nil {
			return fmt.Errorf("append cell %s: %w", c.SequenceID, err)
		}
	}
	if err := appender.Flush(); err != nil {
		return fmt.Errorf("flush cells: %w", err)
	}
	s.logger.Debug("loaded cells", zap.Int64("project_id", projectID), zap.Int("cells", len(cells)))
	return nil
}

// Cells returns the cells of the named project in load order. It satisfies
// the pipeline's cell source.
func (s *Store) Cells(ctx context.Context, project string) ([]*airr.Cell, error) {
	p, err := s.GetByName(ctx, project)
	if err != nil {
		return nil, err
	}
	return s.CellsByID(ctx, p.ID)
}

// CellsByID returns the cells of a project in load order.
func (s *Store) CellsByID(ctx context.Context, projectID int64) ([]*airr.Cell, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT
		sequence_id, isotype, clone_id, igh, igk, igl, sequence, sequence_aa,
		v_call_vdj, d_call_vdj, j_call_vdj, c_call_vdj, locus_vdj,
		v_call_vj, j_call_vj, c_call_vj, locus_vj
		FROM cells WHERE project_id=? ORDER BY position`, projectID)
	if err != nil {
		return nil, fmt.Errorf("query cells: %w", err)
	}
	defer rows.Close()

	var out []*airr.Cell
	for rows.Next() {
		var c airr.Cell
		if err := rows.Scan(
			&c.SequenceID, &c.Isotype, &c.CloneID, &c.IGH, &c.IGK, &c.IGL, &c.Sequence, &c.SequenceAA,
			&c.VCallVDJ, &c.DCallVDJ, &c.JCallVDJ, &c.CCallVDJ, &c.LocusVDJ,
			&c.VCallVJ, &c.JCallVJ, &c.CCallVJ, &c.LocusVJ,
		); err != nil {
			return nil, fmt.Errorf("scan cell: %w", err)
		}
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cells: %w", err)
	}
	return out, nil
}

// Counts holds value counts of one column, most frequent first.
type Counts struct {
	Labels []string `json:"labels"`
	Values []int64  `json:"values"`
}

// Usage is the gene-usage chart data of a project.
type Usage struct {
	VCall   Counts `json:"v_call"`
	CCall   Counts `json:"c_call"`
	JCall   Counts `json:"j_call"`
	Isotype Counts `json:"isotype"`
}

// GeneUsage counts the heavy V, C and J calls and the isotypes of a project.
// Empty values are not counted; equal counts are ordered by value.
func (s *Store) GeneUsage(ctx context.Context, projectID int64) (*Usage, error) {
	var u Usage
	for _, col := range []struct {
		name string
		dst  *Counts
	}{
		{"v_call_vdj", &u.VCall},
		{"c_call_vdj", &u.CCall},
		{"j_call_vdj", &u.JCall},
		{"isotype", &u.Isotype},
	} {
		c, err := s.valueCounts(ctx, projectID, col.name)
		if err != nil {
			return nil, err
		}
		*col.dst = *c
	}
	return &u, nil
}

// valueCounts interpolates column, which must come from a fixed list.
func (s *Store) valueCounts(ctx context.Context, projectID int64, column string) (*Counts, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT %[1]s, count(*) AS n
		FROM cells WHERE project_id=? AND %[1]s <> ''
		GROUP BY %[1]s ORDER BY n DESC, %[1]s`, column), projectID)
	if err != nil {
		return nil, fmt.Errorf("count %s: %w", column, err)
	}
	defer rows.Close()

	c := &Counts{Labels: []string{}, Values: []int64{}}
	for rows.Next() {
		var label string
		var n int64
		if err := rows.Scan(&label, &n); err != nil {
			return nil, fmt.Errorf("scan %s count: %w", column, err)
		}
		c.Labels = append(c.Labels, label)
		c.Values = append(c.Values, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s counts: %w", column, err)
	}
	return c, nil
}

// GeneCount is one light-chain gene and the number of cells carrying it.
type GeneCount struct {
	Gene  string `json:"gene"`
	Count int64  `json:"count"`
}

// LCGenes counts the light-chain V genes paired with heavy-chain gene hc.
func (s *Store) LCGenes(ctx context.Context, projectID int64, hc string) ([]GeneCount, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT v_call_vj, count(*) AS n
		FROM cells WHERE project_id=? AND v_call_vdj=? AND v_call_vj <> ''
		GROUP BY v_call_vj ORDER BY n DESC, v_call_vj`, projectID, hc)
	if err != nil {
		return nil, fmt.Errorf("query lc genes: %w", err)
	}
	defer rows.Close()

	out := []GeneCount{}
	for rows.Next() {
		var g GeneCount
		if err := rows.Scan(&g.Gene, &g.Count); err != nil {
			return nil, fmt.Errorf("scan lc gene: %w", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lc genes: %w", err)
	}
	return out, nil
}
