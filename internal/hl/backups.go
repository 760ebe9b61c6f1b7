package hl

import "time"

// BackupInfo describes one backup snapshot, recovered from its filename.
type BackupInfo struct {
	ResourceID   string
	CreatedAt    time.Time
	OriginalName string
	Path         string
	Size         int64
}

// BackupStore provides an interface for the flat-file backup snapshots that
// enable restoring a resource to its first-highlight state.
type BackupStore interface {
	// Backup copies the file's current bytes verbatim into the cache
	// directory and returns the snapshot path. Callers must check
	// Resource.BackupPath before invoking; snapshots are never overwritten.
	Backup(filePath, resourceID string, at time.Time) (string, error)

	// Restore writes backup content back out. With timestamped=false the
	// original path is overwritten in place and returned; with true, a
	// sibling file with a timestamp inserted before the extension is
	// written and the original is left untouched. Returns ErrBackupMissing
	// if the snapshot file is gone.
	Restore(backupPath, originalPath string, timestamped bool, at time.Time) (string, error)

	// List returns all snapshots in the cache directory, parsed from their
	// deterministic filenames.
	List() ([]*BackupInfo, error)

	// Content returns the bytes of the snapshot for a resource.
	Content(resourceID string) ([]byte, error)

	// Clear deletes every snapshot, reporting how many files and how many
	// bytes were removed.
	Clear() (count int, bytes int64, err error)
}
