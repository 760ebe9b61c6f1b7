package hl

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Service is the orchestration layer for the highlight subsystem. It owns
// the create/reconcile/delete lifecycle of highlights, the first-highlight
// backup flow, and the export path. The HTTP layer and the filesystem
// watcher call into it; nothing else touches the Store or BackupStore.
type Service struct {
	store     Store
	backups   BackupStore
	exportDir string
	logger    Logger
	clock     Clock
	idgen     IDGenerator
}

// NewService creates a Service with the provided dependencies.
func NewService(store Store, backups BackupStore, exportDir string, logger Logger, clock Clock, idgen IDGenerator) *Service {
	return &Service{
		store:     store,
		backups:   backups,
		exportDir: exportDir,
		logger:    logger,
		clock:     clock,
		idgen:     idgen,
	}
}

// CreateHighlight records a new highlight on the file at path.
//
// It reads the current file content, locates the occurrence-th instance of
// text (0-based) to obtain authoritative byte offsets, lazily creates the
// resource row and its one-time backup, and inserts the highlight. The
// stored content hash is the file's hash at this moment. The highlight is
// flagged stale at birth if the text could only be located in the
// whitespace-normalized fallback and the slice at the located offsets
// differs from the requested text by more than whitespace.
func (s *Service) CreateHighlight(path, text string, occurrence int, notes string) (*Highlight, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	content := string(raw)
	hash := HashContent(content)

	m, ok := Locate(content, text, occurrence)
	if !ok {
		return nil, fmt.Errorf("locating %q in %s: %w", text, path, ErrNotFound)
	}

	// Compare the slice at the located offsets against the requested text.
	// On the exact path these are equal by construction; on the normalized
	// fallback path the offsets are approximate, so anything beyond a
	// whitespace difference makes the highlight stale from the start.
	haystack := content
	if m.Normalized {
		haystack = NormalizeWhitespace(content)
	}
	located := haystack[m.Start:m.End]
	stale := located != text && NormalizeWhitespace(located) != NormalizeWhitespace(text)

	now := s.clock.Now()

	res, err := s.store.FindResourceByPath(path)
	if err != nil {
		return nil, fmt.Errorf("finding resource: %w", err)
	}

	h := &Highlight{
		ID:          s.idgen.New(),
		StartOffset: m.Start,
		EndOffset:   m.End,
		Text:        text,
		ContentHash: hash,
		IsStale:     stale,
		Notes:       notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if res == nil {
		res = &Resource{
			ID:        s.idgen.New(),
			Path:      path,
			Kind:      KindFile,
			CreatedAt: now,
		}
		h.ResourceID = res.ID
		if err := s.store.CreateResourceAndHighlight(res, h); err != nil {
			return nil, fmt.Errorf("creating resource and highlight: %w", err)
		}
	} else {
		h.ResourceID = res.ID
		if err := s.store.CreateHighlight(h); err != nil {
			return nil, fmt.Errorf("creating highlight: %w", err)
		}
	}

	// First highlight on this resource: snapshot the original file so the
	// user can always get back to what they highlighted.
	if res.BackupPath == "" {
		backupPath, err := s.backups.Backup(path, res.ID, now)
		if err != nil {
			return nil, fmt.Errorf("backing up %s: %w", path, err)
		}
		if err := s.store.SetResourceBackup(res.ID, hash, backupPath); err != nil {
			return nil, fmt.Errorf("recording backup: %w", err)
		}
		s.logger.Info("backup created", "path", path, "backup", backupPath)
	}

	s.logger.Info("highlight created", "path", path, "start", h.StartOffset, "end", h.EndOffset, "stale", h.IsStale)
	return h, nil
}

// ListByResource returns all highlights on the file at path after running a
// full reconciliation pass against its current content.
//
// For each highlight: if the stored hash matches the file's current hash the
// offsets are trusted as-is. Otherwise the stored text is re-located from
// occurrence 0 — found, the offsets and hash are updated and the stale flag
// cleared; not found, the highlight is marked stale but kept, old offsets
// intact. An unreadable file marks every highlight stale without attempting
// relocation; this path never fails a page render over an I/O hiccup.
func (s *Service) ListByResource(path string) ([]*Highlight, error) {
	res, err := s.store.FindResourceByPath(path)
	if err != nil {
		return nil, fmt.Errorf("finding resource: %w", err)
	}
	if res == nil {
		return nil, nil
	}

	highlights, err := s.store.HighlightsByResource(res.ID)
	if err != nil {
		return nil, fmt.Errorf("loading highlights: %w", err)
	}
	if len(highlights) == 0 {
		return highlights, nil
	}

	now := s.clock.Now()

	raw, err := os.ReadFile(path)
	if err != nil {
		s.logger.Warn("file unreadable, marking highlights stale", "path", path, "error", err)
		for _, h := range highlights {
			s.markStale(h, now)
		}
		return highlights, nil
	}
	content := string(raw)
	hash := HashContent(content)

	for _, h := range highlights {
		if h.ContentHash == hash {
			continue
		}
		m, ok := Locate(content, h.Text, 0)
		if !ok {
			s.markStale(h, now)
			continue
		}
		if err := s.store.UpdateHighlightOffsets(h.ID, m.Start, m.End, hash, now); err != nil {
			s.logger.Warn("failed to update highlight offsets", "id", h.ID, "error", err)
			continue
		}
		h.StartOffset = m.Start
		h.EndOffset = m.End
		h.ContentHash = hash
		h.IsStale = false
		h.UpdatedAt = now
		s.logger.Debug("highlight relocated", "id", h.ID, "start", m.Start, "end", m.End)
	}

	sort.Slice(highlights, func(i, j int) bool {
		return highlights[i].StartOffset < highlights[j].StartOffset
	})
	return highlights, nil
}

// markStale flags a highlight stale in the store and in memory. Store
// failures are logged, not propagated; callers are on the read path.
func (s *Service) markStale(h *Highlight, at time.Time) {
	if !h.IsStale {
		if err := s.store.MarkHighlightStale(h.ID, at); err != nil {
			s.logger.Warn("failed to mark highlight stale", "id", h.ID, "error", err)
			return
		}
	}
	h.IsStale = true
	h.UpdatedAt = at
}

// ListByDirectory returns all highlights on resources under the given path
// prefix, newest first, joined with their resource paths. No reconciliation
// runs here — re-reading every file under a directory on each listing would
// be too expensive; records are returned as stored.
func (s *Service) ListByDirectory(prefix string) ([]*HighlightWithResource, error) {
	rows, err := s.store.HighlightsByPathPrefix(prefix)
	if err != nil {
		return nil, fmt.Errorf("loading highlights for %s: %w", prefix, err)
	}
	return rows, nil
}

// DeleteHighlight removes a single highlight by ID.
func (s *Service) DeleteHighlight(id string) error {
	h, err := s.store.GetHighlight(id)
	if err != nil {
		return fmt.Errorf("finding highlight: %w", err)
	}
	if h == nil {
		return fmt.Errorf("highlight %s: %w", id, ErrNotFound)
	}
	if err := s.store.DeleteHighlight(id); err != nil {
		return fmt.Errorf("deleting highlight: %w", err)
	}
	s.logger.Info("highlight deleted", "id", id)
	return nil
}

// CleanupResource validates every highlight on the file at path against its
// current content and deletes the ones whose text no longer exists anywhere
// in the file. This is the bulk-cleanup counterpart to ListByResource: where
// the read path marks a lost highlight stale so the user still sees it, this
// path removes it outright so stale rows don't accumulate unbounded. It runs
// on watcher write events and directory re-scans, never on a direct page
// view. Returns the number of highlights removed.
func (s *Service) CleanupResource(path string) (int, error) {
	res, err := s.store.FindResourceByPath(path)
	if err != nil {
		return 0, fmt.Errorf("finding resource: %w", err)
	}
	if res == nil {
		return 0, nil
	}

	highlights, err := s.store.HighlightsByResource(res.ID)
	if err != nil {
		return 0, fmt.Errorf("loading highlights: %w", err)
	}
	if len(highlights) == 0 {
		return 0, nil
	}

	now := s.clock.Now()
	removed := 0

	raw, err := os.ReadFile(path)
	if err != nil {
		// Unreadable file: every highlight is unrecoverable on this path.
		for _, h := range highlights {
			if err := s.store.DeleteHighlight(h.ID); err != nil {
				return removed, fmt.Errorf("deleting highlight %s: %w", h.ID, err)
			}
			removed++
		}
		s.logger.Info("cleanup removed highlights of unreadable file", "path", path, "removed", removed)
		return removed, nil
	}
	content := string(raw)
	hash := HashContent(content)

	for _, h := range highlights {
		if h.ContentHash == hash {
			continue
		}
		m, ok := Locate(content, h.Text, 0)
		if !ok {
			if err := s.store.DeleteHighlight(h.ID); err != nil {
				return removed, fmt.Errorf("deleting highlight %s: %w", h.ID, err)
			}
			removed++
			continue
		}
		if err := s.store.UpdateHighlightOffsets(h.ID, m.Start, m.End, hash, now); err != nil {
			return removed, fmt.Errorf("updating highlight %s: %w", h.ID, err)
		}
	}

	if removed > 0 {
		s.logger.Info("cleanup complete", "path", path, "removed", removed)
	}
	return removed, nil
}

// RegisterResource records a path as observed, creating its resource row if
// one does not exist. Content hash and backup path stay empty until the
// first highlight. Called by the directory scanner and the watcher.
func (s *Service) RegisterResource(path, kind string) (*Resource, error) {
	res, err := s.store.FindResourceByPath(path)
	if err != nil {
		return nil, fmt.Errorf("finding resource: %w", err)
	}
	if res != nil {
		return res, nil
	}
	res = &Resource{
		ID:        s.idgen.New(),
		Path:      path,
		Kind:      kind,
		CreatedAt: s.clock.Now(),
	}
	if err := s.store.CreateResource(res); err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}
	s.logger.Debug("resource registered", "path", path, "kind", kind)
	return res, nil
}

// RestoreResource writes the resource's backup snapshot back out. With
// timestamped=false the original file is overwritten in place, discarding
// its current content. With true, a timestamped sibling copy is written, the
// original is untouched, and a new resource row is created for the copy.
// Returns the path written.
func (s *Service) RestoreResource(path string, timestamped bool) (string, error) {
	res, err := s.store.FindResourceByPath(path)
	if err != nil {
		return "", fmt.Errorf("finding resource: %w", err)
	}
	if res == nil {
		return "", fmt.Errorf("resource %s: %w", path, ErrNotFound)
	}
	if res.BackupPath == "" {
		return "", fmt.Errorf("resource %s: %w", path, ErrNoBackup)
	}

	now := s.clock.Now()
	outPath, err := s.backups.Restore(res.BackupPath, path, timestamped, now)
	if err != nil {
		return "", fmt.Errorf("restoring %s: %w", path, err)
	}

	if timestamped && outPath != path {
		copyRes := &Resource{
			ID:        s.idgen.New(),
			Path:      outPath,
			Kind:      KindFile,
			CreatedAt: now,
		}
		if err := s.store.CreateResource(copyRes); err != nil {
			return "", fmt.Errorf("registering restored copy: %w", err)
		}
	}

	s.logger.Info("resource restored", "path", path, "out", outPath, "timestamped", timestamped)
	return outPath, nil
}

// ExportResult describes a written export document.
type ExportResult struct {
	Path     string
	Filename string
	Count    int
}

// Export gathers every highlight under the directory prefix, formats them
// into a Markdown document, and writes it under the export directory.
func (s *Service) Export(prefix, label string) (*ExportResult, error) {
	rows, err := s.store.HighlightsByPathPrefix(prefix)
	if err != nil {
		return nil, fmt.Errorf("loading highlights for %s: %w", prefix, err)
	}

	now := s.clock.Now()
	doc := FormatExport(rows, label, now)
	filename := exportFilename(label, now)

	if err := os.MkdirAll(s.exportDir, 0755); err != nil {
		return nil, fmt.Errorf("creating export directory: %w", err)
	}
	outPath := filepath.Join(s.exportDir, filename)
	if err := os.WriteFile(outPath, []byte(doc), 0644); err != nil {
		return nil, fmt.Errorf("writing export: %w", err)
	}

	s.logger.Info("export written", "path", outPath, "count", len(rows))
	return &ExportResult{Path: outPath, Filename: filename, Count: len(rows)}, nil
}

// DirectoryHasHighlights reports whether any resource under the path prefix
// has at least one highlight.
func (s *Service) DirectoryHasHighlights(prefix string) (bool, error) {
	return s.store.DirectoryHasHighlights(prefix)
}

// ListBackups returns every backup snapshot in the cache directory.
func (s *Service) ListBackups() ([]*BackupInfo, error) {
	return s.backups.List()
}

// BackupContent returns the snapshot bytes for the resource at path.
func (s *Service) BackupContent(path string) ([]byte, error) {
	res, err := s.store.FindResourceByPath(path)
	if err != nil {
		return nil, fmt.Errorf("finding resource: %w", err)
	}
	if res == nil {
		return nil, fmt.Errorf("resource %s: %w", path, ErrNotFound)
	}
	if res.BackupPath == "" {
		return nil, fmt.Errorf("resource %s: %w", path, ErrNoBackup)
	}
	return s.backups.Content(res.ID)
}

// ClearBackups deletes every backup snapshot, reporting how many files and
// bytes were removed.
func (s *Service) ClearBackups() (int, int64, error) {
	count, bytes, err := s.backups.Clear()
	if err != nil {
		return count, bytes, fmt.Errorf("clearing backups: %w", err)
	}
	s.logger.Info("backup archive cleared", "count", count, "bytes", bytes)
	return count, bytes, nil
}
