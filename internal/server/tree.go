package server

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// TreeEntry is one Markdown file in the sidebar, identified by its
// root-relative path in slash form.
type TreeEntry struct {
	RelPath string
	Name    string
	Depth   int
}

// fileTree walks the served root and returns its Markdown files in
// depth-first order, skipping ignored directory names.
func (s *Server) fileTree() ([]TreeEntry, error) {
	var entries []TreeEntry

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != s.root && (s.ignore[d.Name()] || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(d.Name()), ".md") {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		entries = append(entries, TreeEntry{
			RelPath: rel,
			Name:    d.Name(),
			Depth:   strings.Count(rel, "/"),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].RelPath < entries[j].RelPath
	})
	return entries, nil
}
