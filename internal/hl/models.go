package hl

import "time"

// Resource kinds as stored in the resources table.
const (
	KindFile      = "file"
	KindDirectory = "directory"
)

// Resource is a tracked filesystem path. ContentHash and BackupPath stay
// empty until the first highlight is created on the resource.
type Resource struct {
	ID          string // UUID
	Path        string // Absolute path, unique
	Kind        string // KindFile or KindDirectory
	CreatedAt   time.Time
	ContentHash string // SHA-256 of file content at first-highlight time; "" if none
	BackupPath  string // Location of the one-time backup snapshot; "" if none
}

// Highlight is a saved span of text within one Resource.
//
// StartOffset and EndOffset are byte offsets into the resource's raw text as
// of the moment the record was last validated; Text is the literal snippet,
// kept so the span can be re-located after the file changes. ContentHash is
// the resource's hash at that same moment.
type Highlight struct {
	ID          string
	ResourceID  string
	StartOffset int
	EndOffset   int
	Text        string
	ContentHash string
	IsStale     bool
	Notes       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HighlightWithResource is a highlight joined with its resource's path,
// used by directory-level views and exports.
type HighlightWithResource struct {
	Highlight
	ResourcePath string
}
