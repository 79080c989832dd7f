package sandbox

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileSet is the in-memory representation of a project's source files for
// one execution or repair cycle, keyed by workspace-relative path.
type FileSet map[string]string

// SortedPaths returns the file paths in lexical order
func (f FileSet) SortedPaths() []string {
	paths := make([]string, 0, len(f))
	for path := range f {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// PythonFiles returns the .py paths in lexical order
func (f FileSet) PythonFiles() []string {
	var paths []string
	for path := range f {
		if strings.HasSuffix(path, ".py") {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	return paths
}

// Clone returns an independent copy of the file set
func (f FileSet) Clone() FileSet {
	clone := make(FileSet, len(f))
	for path, content := range f {
		clone[path] = content
	}
	return clone
}

// Merge replaces the named paths with their updated content, leaving every
// other entry untouched
func (f FileSet) Merge(updates map[string]string) {
	for path, content := range updates {
		f[path] = content
	}
}

// WriteDir writes every entry under dir, creating parent directories as
// needed. Paths that would escape dir are rejected.
func (f FileSet) WriteDir(dir string) error {
	for _, path := range f.SortedPaths() {
		clean := filepath.Clean(filepath.FromSlash(path))
		if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
			return fmt.Errorf("unsafe path in file set: %s", path)
		}
		target := filepath.Join(dir, clean)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("create directory for %s: %w", path, err)
		}
		if err := os.WriteFile(target, []byte(f[path]), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	return nil
}

// LoadDir reads a directory tree into a FileSet. Hidden files and
// directories are skipped, as are files that do not look like text. Paths
// are stored slash-separated relative to dir.
func LoadDir(dir string) (FileSet, error) {
	files := FileSet{}
	err := filepath.Walk(dir, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			if path != dir && strings.HasPrefix(fi.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(fi.Name(), ".") {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if bytes.IndexByte(content, 0) != -1 {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = string(content)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
