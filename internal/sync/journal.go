package sync

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/remsync/remsync/internal/db"
)

// The journal keys on content hash plus target folder: the same book sent
// to two folders is two uploads, and an edited book is a new upload.
const journalSchema = `
CREATE TABLE IF NOT EXISTS upload_journal (
    content_hash TEXT NOT NULL,
    folder_id    TEXT NOT NULL,
    source_path  TEXT NOT NULL,
    upload_name  TEXT NOT NULL,
    size         INTEGER NOT NULL,
    uploaded_at  TEXT NOT NULL, -- RFC3339
    PRIMARY KEY (content_hash, folder_id)
);

CREATE INDEX IF NOT EXISTS idx_upload_journal_source ON upload_journal(source_path);
`

// Record is one remembered upload.
type Record struct {
	ContentHash string
	FolderID    string
	SourcePath  string
	UploadName  string
	Size        int64
	UploadedAt  time.Time
}

// dbRecord is the scan shape; uploaded_at is stored as TEXT.
type dbRecord struct {
	ContentHash string `db:"content_hash"`
	FolderID    string `db:"folder_id"`
	SourcePath  string `db:"source_path"`
	UploadName  string `db:"upload_name"`
	Size        int64  `db:"size"`
	UploadedAt  string `db:"uploaded_at"`
}

// Journal persists what has been uploaded where, backed by SQLite.
type Journal struct {
	db     *sqlx.DB
	dbPath string
}

// NewJournal prepares a journal at dbPath. Call Open before use.
func NewJournal(dbPath string) *Journal {
	return &Journal{dbPath: dbPath}
}

// Open opens the database and ensures the schema exists.
func (j *Journal) Open() error {
	if j.db != nil {
		return fmt.Errorf("journal already open")
	}

	conn, err := db.NewSqliteDB(db.WithPath(j.dbPath), db.WithMaxOpenConns(1))
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}

	if _, err := conn.Exec(journalSchema); err != nil {
		conn.Close()
		return fmt.Errorf("failed to initialize journal schema: %w", err)
	}

	j.db = conn
	return nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	if j.db == nil {
		return fmt.Errorf("journal not open")
	}
	if err := j.db.Close(); err != nil {
		return err
	}
	j.db = nil
	slog.Debug("journal closed")
	return nil
}

// Get returns the record for a content hash and folder, or nil when the
// pair was never uploaded.
func (j *Journal) Get(contentHash, folderID string) (*Record, error) {
	var row dbRecord
	err := j.db.Get(&row,
		"SELECT content_hash, folder_id, source_path, upload_name, size, uploaded_at FROM upload_journal WHERE content_hash = ? AND folder_id = ?",
		contentHash, folderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}

	uploadedAt, err := time.Parse(time.RFC3339, row.UploadedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse stored timestamp %q: %w", row.UploadedAt, err)
	}

	return &Record{
		ContentHash: row.ContentHash,
		FolderID:    row.FolderID,
		SourcePath:  row.SourcePath,
		UploadName:  row.UploadName,
		Size:        row.Size,
		UploadedAt:  uploadedAt,
	}, nil
}

// Seen reports whether this content already went to this folder.
func (j *Journal) Seen(contentHash, folderID string) (bool, error) {
	rec, err := j.Get(contentHash, folderID)
	if err != nil {
		return false, err
	}
	return rec != nil, nil
}

// Set inserts or replaces a record.
func (j *Journal) Set(rec *Record) error {
	if rec == nil {
		return fmt.Errorf("cannot set nil record")
	}

	row := dbRecord{
		ContentHash: rec.ContentHash,
		FolderID:    rec.FolderID,
		SourcePath:  rec.SourcePath,
		UploadName:  rec.UploadName,
		Size:        rec.Size,
		UploadedAt:  rec.UploadedAt.Format(time.RFC3339),
	}

	query := `INSERT OR REPLACE INTO upload_journal (content_hash, folder_id, source_path, upload_name, size, uploaded_at)
	          VALUES (:content_hash, :folder_id, :source_path, :upload_name, :size, :uploaded_at)`
	if _, err := j.db.NamedExec(query, row); err != nil {
		return fmt.Errorf("failed to record upload of %s: %w", rec.SourcePath, err)
	}
	slog.Debug("journal set", "name", rec.UploadName, "folder", rec.FolderID)
	return nil
}

// Forget drops every record for a source path, forcing its next send.
func (j *Journal) Forget(sourcePath string) error {
	if _, err := j.db.Exec("DELETE FROM upload_journal WHERE source_path = ?", sourcePath); err != nil {
		return fmt.Errorf("failed to forget %s: %w", sourcePath, err)
	}
	return nil
}

// Count returns the number of remembered uploads.
func (j *Journal) Count() (int, error) {
	var count int
	if err := j.db.Get(&count, "SELECT COUNT(*) FROM upload_journal"); err != nil {
		return 0, fmt.Errorf("failed to count journal entries: %w", err)
	}
	return count, nil
}

// Recent returns the latest uploads, newest first.
func (j *Journal) Recent(limit int) ([]Record, error) {
	var rows []dbRecord
	err := j.db.Select(&rows,
		"SELECT content_hash, folder_id, source_path, upload_name, size, uploaded_at FROM upload_journal ORDER BY uploaded_at DESC LIMIT ?",
		limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent uploads: %w", err)
	}

	recs := make([]Record, 0, len(rows))
	for _, row := range rows {
		uploadedAt, err := time.Parse(time.RFC3339, row.UploadedAt)
		if err != nil {
			slog.Error("skipping journal row with bad timestamp", "value", row.UploadedAt)
			continue
		}
		recs = append(recs, Record{
			ContentHash: row.ContentHash,
			FolderID:    row.FolderID,
			SourcePath:  row.SourcePath,
			UploadName:  row.UploadName,
			Size:        row.Size,
			UploadedAt:  uploadedAt,
		})
	}
	return recs, nil
}

// Reset closes the journal and moves the database aside as a timestamped
// backup.
func (j *Journal) Reset() error {
	if err := j.Close(); err != nil {
		return err
	}

	stamp := time.Now().Format("20060102150405")
	if err := os.Rename(j.dbPath, fmt.Sprintf("%s.%s.bak", j.dbPath, stamp)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to move journal aside: %w", err)
	}
	return nil
}
