package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var unsafeChars = strings.NewReplacer("/", "_", "*", "_", "|", "_", " ", "_")

// Sanitize makes s safe for use as a single path component.
func Sanitize(s string) string {
	return unsafeChars.Replace(s)
}

// FileCache stores one JSON document per gene pair under
// <dir>/<project>/<project>/alignments/.
type FileCache struct {
	dir string
}

// NewFileCache returns a cache rooted at dir.
func NewFileCache(dir string) *FileCache {
	return &FileCache{dir: dir}
}

// Path returns the cache file path for pair.
func (c *FileCache) Path(pair GenePair) string {
	project := Sanitize(pair.Project)
	name := fmt.Sprintf("alignment_%s_%s.json", Sanitize(pair.HCGene), Sanitize(pair.LCGene))
	return filepath.Join(c.dir, project, project, "alignments", name)
}

// Read returns the cached document. A missing entry reports an error
// satisfying errors.Is(err, os.ErrNotExist).
func (c *FileCache) Read(pair GenePair) ([]byte, error) {
	data, err := os.ReadFile(c.Path(pair))
	if err != nil {
		return nil, fmt.Errorf("read alignment cache: %w", err)
	}
	return data, nil
}

// Write replaces the cached document. Readers never observe a partial file.
func (c *FileCache) Write(pair GenePair, data []byte) error {
	path := c.Path(pair)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create alignment cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create alignment cache file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write alignment cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close alignment cache: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename alignment cache: %w", err)
	}
	return nil
}

// Remove deletes the cached document. Removing a missing entry is not an
// error.
func (c *FileCache) Remove(pair GenePair) error {
	if err := os.Remove(c.Path(pair)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove alignment cache: %w", err)
	}
	return nil
}
