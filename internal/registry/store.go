// Package registry persists projects and their merged cell tables in DuckDB.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	"go.uber.org/zap"

	"github.com/bcrlab/bcrview/internal/pipeline"
)

// ErrNotFound is returned when a project does not exist.
var ErrNotFound = errors.New("project not found")

// ErrExists is returned when a project name is already registered.
var ErrExists = errors.New("project already exists")

// Project is one registered repertoire.
type Project struct {
	ID            int64     `json:"project_id"`
	Name          string    `json:"project_name"`
	Author        string    `json:"project_author"`
	CreationDate  time.Time `json:"creation_date"`
	DirectoryPath string    `json:"directory_path"`
	VDJPath       string    `json:"vdj_path"`
	AdataPath     string    `json:"adata_path,omitempty"`
	Species       string    `json:"species"`
}

// Store manages the DuckDB connection backing the registry.
type Store struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
}

// Open opens or creates a DuckDB database at the given path.
// Use an empty string for an in-memory database.
func Open(path string) (*Store, error) {
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create registry directory: %w", err)
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	s := &Store{db: db, path: path, logger: zap.NewNop()}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return s, nil
}

// SetLogger sets the logger.
func (s *Store) SetLogger(logger *zap.Logger) {
	s.logger = logger
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for direct access.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) ensureSchema() error {
	stmts := []string{
		`CREATE SEQUENCE IF NOT EXISTS project_id_seq START 1`,
		`CREATE TABLE IF NOT EXISTS projects (
			project_id BIGINT PRIMARY KEY DEFAULT nextval('project_id_seq'),
			project_name VARCHAR UNIQUE NOT NULL,
			project_author VARCHAR,
			creation_date DATE,
			directory_path VARCHAR,
			vdj_path VARCHAR,
			adata_path VARCHAR,
			species VARCHAR
		)`,
		`CREATE TABLE IF NOT EXISTS cells (
			project_id BIGINT,
			position BIGINT,
			sequence_id VARCHAR,
			isotype VARCHAR,
			clone_id VARCHAR,
			igh VARCHAR,
			igk VARCHAR,
			igl VARCHAR,
			sequence VARCHAR,
			sequence_aa VARCHAR,
			v_call_vdj VARCHAR,
			d_call_vdj VARCHAR,
			j_call_vdj VARCHAR,
			c_call_vdj VARCHAR,
			locus_vdj VARCHAR,
			v_call_vj VARCHAR,
			j_call_vj VARCHAR,
			c_call_vj VARCHAR,
			locus_vj VARCHAR
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

const projectColumns = `project_id, project_name, project_author, creation_date,
	directory_path, vdj_path, adata_path, species`

// Create registers p and fills in its ID. A zero CreationDate is set to today.
func (s *Store) Create(ctx context.Context, p *Project) error {
	if p.Name == "" {
		return fmt.Errorf("create project: empty name")
	}
	if err := s.Available(ctx, p.Name); err != nil {
		return err
	}
	if p.CreationDate.IsZero() {
		p.CreationDate = time.Now().UTC().Truncate(24 * time.Hour)
	}

	err := s.db.QueryRowContext(ctx, `INSERT INTO projects
		(project_name, project_author, creation_date, directory_path, vdj_path, adata_path, species)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING project_id`,
		p.Name, p.Author, p.CreationDate, p.DirectoryPath, p.VDJPath, p.AdataPath, p.Species,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	s.logger.Info("registered project", zap.Int64("project_id", p.ID), zap.String("name", p.Name))
	return nil
}

// Available reports ErrExists when name, or another name that maps to the
// same directory and cache key once sanitized, is already registered.
func (s *Store) Available(ctx context.Context, name string) error {
	projects, err := s.List(ctx)
	if err != nil {
		return err
	}
	key := pipeline.Sanitize(name)
	for _, p := range projects {
		if p.Name == name || pipeline.Sanitize(p.Name) == key {
			return fmt.Errorf("%w: %q conflicts with project %d %q", ErrExists, name, p.ID, p.Name)
		}
	}
	return nil
}

// Get returns the project with the given ID.
func (s *Store) Get(ctx context.Context, id int64) (*Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE project_id=?`, id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return p, err
}

// GetByName returns the project with the given name.
func (s *Store) GetByName(ctx context.Context, name string) (*Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE project_name=?`, name)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return p, err
}

// List returns all projects ordered by ID.
func (s *Store) List(ctx context.Context) ([]*Project, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY project_id`)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	var out []*Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return out, nil
}

// Delete removes a project and its cells. The project directory on disk is
// left to the caller.
func (s *Store) Delete(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cells WHERE project_id=?`, id); err != nil {
		return fmt.Errorf("delete cells: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE project_id=?`, id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return tx.Commit()
}

// Purge deletes a project and removes its directory from disk.
func (s *Store) Purge(ctx context.Context, id int64) (*Project, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.Delete(ctx, id); err != nil {
		return nil, err
	}
	if p.DirectoryPath != "" {
		if err := os.RemoveAll(p.DirectoryPath); err != nil {
			return p, fmt.Errorf("remove project directory: %w", err)
		}
	}
	s.logger.Info("deleted project", zap.Int64("project_id", id), zap.String("name", p.Name))
	return p, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*Project, error) {
	var p Project
	var author, dir, vdj, adata, species sql.NullString
	var created sql.NullTime
	if err := row.Scan(&p.ID, &p.Name, &author, &created, &dir, &vdj, &adata, &species); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan project: %w", err)
	}
	p.Author = author.String
	p.CreationDate = created.Time
	p.DirectoryPath = dir.String
	p.VDJPath = vdj.String
	p.AdataPath = adata.String
	p.Species = species.String
	return &p, nil
}
