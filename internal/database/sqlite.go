package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"mdhl/internal/database/migrations"
	"mdhl/internal/hl"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore implements the hl.Store interface using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens a SQLite database at path and wraps it in a store.
// path can be a file path or ":memory:" for an in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// NewSQLiteStoreFromDB wraps an existing database connection. The caller is
// responsible for ensuring the connection is properly configured.
func NewSQLiteStoreFromDB(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// OpenConnection opens and configures a SQLite database handle. Exported for
// tools and tests.
//
// SQLite ships with foreign keys OFF and the highlights→resources cascade
// depends on them, so the pragma goes into the DSN: database/sql pools
// connections, and a PRAGMA run via db.Exec would configure only whichever
// single connection happened to execute it.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_foreign_keys=1", path))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if path == ":memory:" {
		// Every pooled connection to :memory: is a fresh, empty database.
		db.SetMaxOpenConns(1)
	}

	return db, nil
}

// Resource operations

const resourceColumns = "id, path, kind, created_at, content_hash, backup_path"

func (s *SQLiteStore) FindResourceByPath(path string) (*hl.Resource, error) {
	row := s.db.QueryRow("SELECT "+resourceColumns+" FROM resources WHERE path = ?", path)
	res, err := scanResource(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding resource by path: %w", err)
	}
	return res, nil
}

func (s *SQLiteStore) CreateResource(r *hl.Resource) error {
	_, err := s.db.Exec(
		"INSERT INTO resources (id, path, kind, created_at, content_hash, backup_path) VALUES (?, ?, ?, ?, ?, ?)",
		r.ID, r.Path, r.Kind, r.CreatedAt, nullString(r.ContentHash), nullString(r.BackupPath),
	)
	if err != nil {
		return fmt.Errorf("inserting resource: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CreateResourceAndHighlight(r *hl.Resource, h *hl.Highlight) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		"INSERT INTO resources (id, path, kind, created_at, content_hash, backup_path) VALUES (?, ?, ?, ?, ?, ?)",
		r.ID, r.Path, r.Kind, r.CreatedAt, nullString(r.ContentHash), nullString(r.BackupPath),
	)
	if err != nil {
		return fmt.Errorf("inserting resource: %w", err)
	}

	if err := insertHighlight(tx, h); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SetResourceBackup(resourceID, contentHash, backupPath string) error {
	result, err := s.db.Exec(
		"UPDATE resources SET content_hash = ?, backup_path = ? WHERE id = ?",
		contentHash, backupPath, resourceID,
	)
	if err != nil {
		return fmt.Errorf("recording resource backup: %w", err)
	}
	return requireRow(result, "resource", resourceID)
}

func (s *SQLiteStore) DeleteResource(resourceID string) error {
	result, err := s.db.Exec("DELETE FROM resources WHERE id = ?", resourceID)
	if err != nil {
		return fmt.Errorf("deleting resource: %w", err)
	}
	return requireRow(result, "resource", resourceID)
}

// Highlight operations

const highlightColumns = "id, resource_id, start_offset, end_offset, highlighted_text, content_hash, is_stale, notes, created_at, updated_at"

func (s *SQLiteStore) CreateHighlight(h *hl.Highlight) error {
	if err := insertHighlight(s.db, h); err != nil {
		return err
	}
	return nil
}

func (s *SQLiteStore) GetHighlight(id string) (*hl.Highlight, error) {
	row := s.db.QueryRow("SELECT "+highlightColumns+" FROM highlights WHERE id = ?", id)
	h, err := scanHighlight(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding highlight: %w", err)
	}
	return h, nil
}

func (s *SQLiteStore) HighlightsByResource(resourceID string) ([]*hl.Highlight, error) {
	rows, err := s.db.Query(
		"SELECT "+highlightColumns+" FROM highlights WHERE resource_id = ? ORDER BY start_offset ASC",
		resourceID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying highlights by resource: %w", err)
	}
	defer rows.Close()

	var result []*hl.Highlight
	for rows.Next() {
		h, err := scanHighlight(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning highlight: %w", err)
		}
		result = append(result, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating highlights: %w", err)
	}
	return result, nil
}

func (s *SQLiteStore) HighlightsByPathPrefix(prefix string) ([]*hl.HighlightWithResource, error) {
	rows, err := s.db.Query(
		`SELECT h.id, h.resource_id, h.start_offset, h.end_offset, h.highlighted_text,
		        h.content_hash, h.is_stale, h.notes, h.created_at, h.updated_at, r.path
		 FROM highlights h
		 JOIN resources r ON r.id = h.resource_id
		 WHERE r.path LIKE ? ESCAPE '\'
		 ORDER BY h.created_at DESC`,
		likePrefix(prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("querying highlights by path prefix: %w", err)
	}
	defer rows.Close()

	var result []*hl.HighlightWithResource
	for rows.Next() {
		var h hl.Highlight
		var notes sql.NullString
		var path string
		err := rows.Scan(&h.ID, &h.ResourceID, &h.StartOffset, &h.EndOffset, &h.Text,
			&h.ContentHash, &h.IsStale, &notes, &h.CreatedAt, &h.UpdatedAt, &path)
		if err != nil {
			return nil, fmt.Errorf("scanning highlight row: %w", err)
		}
		h.Notes = notes.String
		result = append(result, &hl.HighlightWithResource{Highlight: h, ResourcePath: path})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating highlights: %w", err)
	}
	return result, nil
}

func (s *SQLiteStore) MarkHighlightStale(id string, at time.Time) error {
	result, err := s.db.Exec(
		"UPDATE highlights SET is_stale = 1, updated_at = ? WHERE id = ?",
		at, id,
	)
	if err != nil {
		return fmt.Errorf("marking highlight stale: %w", err)
	}
	return requireRow(result, "highlight", id)
}

func (s *SQLiteStore) UpdateHighlightOffsets(id string, start, end int, contentHash string, at time.Time) error {
	result, err := s.db.Exec(
		"UPDATE highlights SET start_offset = ?, end_offset = ?, content_hash = ?, is_stale = 0, updated_at = ? WHERE id = ?",
		start, end, contentHash, at, id,
	)
	if err != nil {
		return fmt.Errorf("updating highlight offsets: %w", err)
	}
	return requireRow(result, "highlight", id)
}

func (s *SQLiteStore) DeleteHighlight(id string) error {
	result, err := s.db.Exec("DELETE FROM highlights WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting highlight: %w", err)
	}
	return requireRow(result, "highlight", id)
}

func (s *SQLiteStore) DirectoryHasHighlights(prefix string) (bool, error) {
	var one int
	err := s.db.QueryRow(
		`SELECT 1 FROM highlights h JOIN resources r ON r.id = h.resource_id
		 WHERE r.path LIKE ? ESCAPE '\' LIMIT 1`,
		likePrefix(prefix),
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking directory highlights: %w", err)
	}
	return true, nil
}

// Path returns the database file path (or ":memory:").
func (s *SQLiteStore) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteStore) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// Migrate brings the database schema to the latest version.
func (s *SQLiteStore) Migrate() error {
	return migrations.MigrateUp(s.db)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// execer covers *sql.DB and *sql.Tx for the shared insert helper.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func insertHighlight(e execer, h *hl.Highlight) error {
	_, err := e.Exec(
		`INSERT INTO highlights
		 (id, resource_id, start_offset, end_offset, highlighted_text, content_hash, is_stale, notes, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.ResourceID, h.StartOffset, h.EndOffset, h.Text, h.ContentHash,
		h.IsStale, nullString(h.Notes), h.CreatedAt, h.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting highlight: %w", err)
	}
	return nil
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanResource(row scanner) (*hl.Resource, error) {
	var r hl.Resource
	var contentHash, backupPath sql.NullString
	err := row.Scan(&r.ID, &r.Path, &r.Kind, &r.CreatedAt, &contentHash, &backupPath)
	if err != nil {
		return nil, err
	}
	r.ContentHash = contentHash.String
	r.BackupPath = backupPath.String
	return &r, nil
}

func scanHighlight(row scanner) (*hl.Highlight, error) {
	var h hl.Highlight
	var notes sql.NullString
	err := row.Scan(&h.ID, &h.ResourceID, &h.StartOffset, &h.EndOffset, &h.Text,
		&h.ContentHash, &h.IsStale, &notes, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return nil, err
	}
	h.Notes = notes.String
	return &h, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// likePrefix escapes LIKE metacharacters in prefix and appends the wildcard,
// so "starts with" matching works for paths containing % or _.
func likePrefix(prefix string) string {
	escaped := make([]byte, 0, len(prefix)+2)
	for i := 0; i < len(prefix); i++ {
		c := prefix[i]
		if c == '%' || c == '_' || c == '\\' {
			escaped = append(escaped, '\\')
		}
		escaped = append(escaped, c)
	}
	return string(escaped) + "%"
}

// requireRow converts a zero-row mutation into a not-found error.
func requireRow(result sql.Result, kind, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, hl.ErrNotFound)
	}
	return nil
}

// Compile-time check that SQLiteStore implements hl.Store.
var _ hl.Store = (*SQLiteStore)(nil)
