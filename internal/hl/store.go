package hl

import "time"

// Store provides an interface for highlight and resource persistence.
// Implementations translate "no row" lookups into (nil, nil) rather than an
// error; all mutations are single-row atomic except CreateResourceAndHighlight.
type Store interface {
	// Resource operations

	// FindResourceByPath returns the resource with an exact path match.
	FindResourceByPath(path string) (*Resource, error)

	// CreateResource inserts a new resource row.
	CreateResource(r *Resource) error

	// CreateResourceAndHighlight inserts a resource and its first highlight
	// in a single transaction. Used when a highlight is created on a path
	// that was never observed before.
	CreateResourceAndHighlight(r *Resource, h *Highlight) error

	// SetResourceBackup records the content hash and backup path taken at
	// first-highlight time. Called at most once per resource.
	SetResourceBackup(resourceID, contentHash, backupPath string) error

	// DeleteResource removes a resource; its highlights cascade.
	DeleteResource(resourceID string) error

	// Highlight operations

	// CreateHighlight inserts a new highlight row.
	CreateHighlight(h *Highlight) error

	// GetHighlight returns a highlight by ID.
	GetHighlight(id string) (*Highlight, error)

	// HighlightsByResource returns all highlights on a resource, ordered by
	// start offset ascending.
	HighlightsByResource(resourceID string) ([]*Highlight, error)

	// HighlightsByPathPrefix returns highlights on every resource whose path
	// starts with the given prefix, newest first.
	HighlightsByPathPrefix(prefix string) ([]*HighlightWithResource, error)

	// MarkHighlightStale sets the stale flag and bumps updated_at.
	MarkHighlightStale(id string, at time.Time) error

	// UpdateHighlightOffsets moves a highlight to new offsets under a new
	// content hash, clears the stale flag, and bumps updated_at.
	UpdateHighlightOffsets(id string, start, end int, contentHash string, at time.Time) error

	// DeleteHighlight removes a single highlight.
	DeleteHighlight(id string) error

	// DirectoryHasHighlights reports whether any resource under the path
	// prefix has at least one highlight.
	DirectoryHasHighlights(prefix string) (bool, error)

	// Close closes the underlying storage.
	Close() error
}
