package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/shirabe/internal/models"
)

var _ QueueStore = (*SQLiteQueueStore)(nil)

// SQLiteQueueStore implements QueueStore using SQLite.
type SQLiteQueueStore struct {
	db *sql.DB
}

// NewSQLiteQueueStore opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteQueueStore(dbPath string) (*SQLiteQueueStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer keeps journal writes ordered
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteQueueStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS queue_items (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		document_id TEXT NOT NULL UNIQUE,
		title TEXT,
		status TEXT NOT NULL,
		progress INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		chunk_count INTEGER NOT NULL DEFAULT 0,
		enqueued_at TIMESTAMP NOT NULL,
		started_at TIMESTAMP,
		completed_at TIMESTAMP,
		content TEXT,
		source TEXT,
		metadata TEXT,
		created_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_queue_items_status ON queue_items(status);
	`
	_, err := db.Exec(schema)
	return err
}

// Insert journals a document and its pending item.
func (s *SQLiteQueueStore) Insert(ctx context.Context, doc *models.Document, item models.QueueItem) error {
	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO queue_items (document_id, title, status, progress, error, chunk_count, enqueued_at,
		 started_at, completed_at, content, source, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.DocumentID, item.Title, string(item.Status), item.Progress, item.Error, item.ChunkCount,
		item.EnqueuedAt, nullTime(item.StartedAt), nullTime(item.CompletedAt),
		doc.Content, doc.Source, string(metadataJSON), doc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert queue item: %w", err)
	}
	return nil
}

// Update stores the item's state. Terminal items drop their document content.
func (s *SQLiteQueueStore) Update(ctx context.Context, item models.QueueItem) error {
	query := `UPDATE queue_items SET status = ?, progress = ?, error = ?, chunk_count = ?,
		started_at = ?, completed_at = ? WHERE document_id = ?`
	if item.Status.Terminal() {
		query = `UPDATE queue_items SET status = ?, progress = ?, error = ?, chunk_count = ?,
		started_at = ?, completed_at = ?, content = NULL WHERE document_id = ?`
	}
	res, err := s.db.ExecContext(ctx, query,
		string(item.Status), item.Progress, item.Error, item.ChunkCount,
		nullTime(item.StartedAt), nullTime(item.CompletedAt), item.DocumentID,
	)
	if err != nil {
		return fmt.Errorf("failed to update queue item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("queue item not found: %s", item.DocumentID)
	}
	return nil
}

// Delete removes items by document ID.
func (s *SQLiteQueueStore) Delete(ctx context.Context, docIDs ...string) error {
	if len(docIDs) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(docIDs)), ",")
	args := make([]interface{}, len(docIDs))
	for i, id := range docIDs {
		args[i] = id
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM queue_items WHERE document_id IN (`+placeholders+`)`, args...); err != nil {
		return fmt.Errorf("failed to delete queue items: %w", err)
	}
	return nil
}

// Load returns all journaled items in enqueue order.
func (s *SQLiteQueueStore) Load(ctx context.Context) ([]JournalEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT document_id, title, status, progress, error, chunk_count, enqueued_at, started_at,
		 completed_at, content, source, metadata, created_at
		 FROM queue_items ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to load queue: %w", err)
	}
	defer rows.Close()

	var entries []JournalEntry
	for rows.Next() {
		var (
			item                   models.QueueItem
			status                 string
			title, errMsg          sql.NullString
			content, source, meta  sql.NullString
			started, completed     sql.NullTime
			createdAt              sql.NullTime
		)
		if err := rows.Scan(&item.DocumentID, &title, &status, &item.Progress, &errMsg, &item.ChunkCount,
			&item.EnqueuedAt, &started, &completed, &content, &source, &meta, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan queue item: %w", err)
		}
		item.Title = title.String
		item.Status = models.QueueStatus(status)
		item.Error = errMsg.String
		item.StartedAt = timePtr(started)
		item.CompletedAt = timePtr(completed)

		entry := JournalEntry{Item: item}
		if content.Valid {
			doc := &models.Document{
				ID:        item.DocumentID,
				Title:     item.Title,
				Content:   content.String,
				Source:    source.String,
				CreatedAt: createdAt.Time,
			}
			if meta.Valid && meta.String != "" && meta.String != "null" {
				if err := json.Unmarshal([]byte(meta.String), &doc.Metadata); err != nil {
					return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
				}
			}
			entry.Document = doc
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Close closes the database.
func (s *SQLiteQueueStore) Close() error {
	return s.db.Close()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
