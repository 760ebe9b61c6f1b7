package hl

import "errors"

// Sentinel errors for the write path. The HTTP layer maps these onto status
// codes; the read path (listing and reconciliation) degrades gracefully
// instead of returning them.
var (
	// ErrNotFound indicates a resource or highlight does not exist at the
	// expected key.
	ErrNotFound = errors.New("not found")

	// ErrBackupMissing indicates the backup snapshot file itself is gone.
	ErrBackupMissing = errors.New("backup file missing")

	// ErrNoBackup indicates the resource never had a backup taken.
	ErrNoBackup = errors.New("resource has no backup")
)
