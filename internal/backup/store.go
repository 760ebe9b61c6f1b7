// Package backup stores one immutable snapshot per resource as a flat file
// in a per-user cache directory. Snapshot metadata lives entirely in the
// filename, {resourceID}_{timestamp}_{originalName}, so the store needs no
// index of its own.
package backup

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mdhl/internal/hl"
)

// timestampLayout is the UTC timestamp embedded in snapshot filenames and
// timestamped restore copies. It contains no separators that collide with
// the "_" field delimiter.
const timestampLayout = "20060102T150405Z"

// Store implements hl.BackupStore over a single directory of snapshot files.
type Store struct {
	dir string
}

// NewStore creates a Store rooted at dir, creating the directory if needed.
// When dir is empty the per-user default from DefaultDir is used.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		var err error
		dir, err = DefaultDir()
		if err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating backup directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// DefaultDir returns the XDG-style per-user cache location for snapshots.
func DefaultDir() (string, error) {
	cache, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("resolving user cache directory: %w", err)
	}
	return filepath.Join(cache, "mdhl", "backups"), nil
}

// Dir returns the directory snapshots are stored in.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) Backup(filePath, resourceID string, at time.Time) (string, error) {
	src, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("opening source file: %w", err)
	}
	defer src.Close()

	name := fmt.Sprintf("%s_%s_%s", resourceID, at.UTC().Format(timestampLayout), filepath.Base(filePath))
	destPath := filepath.Join(s.dir, name)

	// O_EXCL: snapshots are immutable, never overwritten.
	dest, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", fmt.Errorf("creating backup file: %w", err)
	}
	defer dest.Close()

	if _, err := io.Copy(dest, src); err != nil {
		os.Remove(destPath)
		return "", fmt.Errorf("copying content to backup: %w", err)
	}
	return destPath, nil
}

func (s *Store) Restore(backupPath, originalPath string, timestamped bool, at time.Time) (string, error) {
	src, err := os.Open(backupPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("backup %s: %w", backupPath, hl.ErrBackupMissing)
		}
		return "", fmt.Errorf("opening backup: %w", err)
	}
	defer src.Close()

	outPath := originalPath
	if timestamped {
		outPath = timestampedSibling(originalPath, at)
	}

	dest, err := os.Create(outPath)
	if err != nil {
		return "", fmt.Errorf("creating restore target: %w", err)
	}
	defer dest.Close()

	if _, err := io.Copy(dest, src); err != nil {
		return "", fmt.Errorf("writing restored content: %w", err)
	}
	return outPath, nil
}

func (s *Store) List() ([]*hl.BackupInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("reading backup directory: %w", err)
	}

	var infos []*hl.BackupInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, ok := parseName(entry.Name())
		if !ok {
			// Foreign file in the cache directory; not ours to report.
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("stat backup %s: %w", entry.Name(), err)
		}
		info.Path = filepath.Join(s.dir, entry.Name())
		info.Size = fi.Size()
		infos = append(infos, info)
	}
	return infos, nil
}

func (s *Store) Content(resourceID string) ([]byte, error) {
	infos, err := s.List()
	if err != nil {
		return nil, err
	}
	for _, info := range infos {
		if info.ResourceID == resourceID {
			data, err := os.ReadFile(info.Path)
			if err != nil {
				return nil, fmt.Errorf("reading backup content: %w", err)
			}
			return data, nil
		}
	}
	return nil, fmt.Errorf("backup for resource %s: %w", resourceID, hl.ErrBackupMissing)
}

func (s *Store) Clear() (int, int64, error) {
	infos, err := s.List()
	if err != nil {
		return 0, 0, err
	}

	count := 0
	var bytes int64
	for _, info := range infos {
		if err := os.Remove(info.Path); err != nil {
			return count, bytes, fmt.Errorf("removing backup %s: %w", info.Path, err)
		}
		count++
		bytes += info.Size
	}
	return count, bytes, nil
}

// parseName recovers snapshot metadata from a filename of the form
// {resourceID}_{timestamp}_{originalName}. The original name may itself
// contain underscores; resource IDs (UUIDs) and timestamps never do.
func parseName(name string) (*hl.BackupInfo, bool) {
	parts := strings.SplitN(name, "_", 3)
	if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
		return nil, false
	}
	ts, err := time.Parse(timestampLayout, parts[1])
	if err != nil {
		return nil, false
	}
	return &hl.BackupInfo{
		ResourceID:   parts[0],
		CreatedAt:    ts,
		OriginalName: parts[2],
	}, true
}

// timestampedSibling inserts a timestamp before the extension:
// /docs/notes.md -> /docs/notes.20240115T103000Z.md
func timestampedSibling(path string, at time.Time) string {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	name := base[:len(base)-len(ext)]
	return filepath.Join(dir, fmt.Sprintf("%s.%s%s", name, at.UTC().Format(timestampLayout), ext))
}

// Compile-time check that Store implements hl.BackupStore.
var _ hl.BackupStore = (*Store)(nil)
