package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/docsift/docsift/internal/domain"
	errs "github.com/docsift/docsift/internal/errors"
)

// SQLiteStore implements MetadataStore on SQLite with WAL mode.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

var _ MetadataStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the metadata database at path.
// An empty path opens an in-memory database for testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := openSQLite(path)
	if err != nil {
		return nil, err
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize metadata schema: %w", err)
	}
	return s, nil
}

// openSQLite opens a SQLite database with the pragmas used across the
// project: WAL journaling, busy timeout, and a single writer connection.
func openSQLite(path string) (*sql.DB, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", filepath.Dir(path), err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer prevents lock contention under WAL.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}
	return db, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sources (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL UNIQUE,
		type       TEXT NOT NULL,
		path       TEXT NOT NULL,
		config     TEXT NOT NULL DEFAULT '{}',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS documents (
		id         TEXT PRIMARY KEY,
		source_id  TEXT NOT NULL,
		uri        TEXT NOT NULL UNIQUE,
		title      TEXT NOT NULL DEFAULT '',
		mime_type  TEXT NOT NULL DEFAULT '',
		size_bytes INTEGER NOT NULL DEFAULT 0,
		mtime      TEXT NOT NULL,
		doc_hash   TEXT NOT NULL DEFAULT '',
		status     TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_documents_source ON documents(source_id);
	CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);

	CREATE TABLE IF NOT EXISTS chunks (
		id           TEXT PRIMARY KEY,
		doc_id       TEXT NOT NULL,
		chunk_index  INTEGER NOT NULL,
		text         TEXT NOT NULL,
		start_offset INTEGER NOT NULL DEFAULT 0,
		end_offset   INTEGER NOT NULL DEFAULT 0,
		chunk_hash   TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_doc ON chunks(doc_id);

	CREATE TABLE IF NOT EXISTS jobs (
		id         TEXT PRIMARY KEY,
		type       TEXT NOT NULL,
		status     TEXT NOT NULL,
		progress   REAL NOT NULL DEFAULT 0,
		error      TEXT NOT NULL DEFAULT '',
		payload    TEXT NOT NULL DEFAULT '{}',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the store. Idempotent.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

// --- Sources ---

func (s *SQLiteStore) UpsertSource(ctx context.Context, src *domain.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if src.CreatedAt.IsZero() {
		src.CreatedAt = now
	}
	src.UpdatedAt = now

	cfg, err := json.Marshal(src.Config)
	if err != nil {
		return fmt.Errorf("failed to encode source config: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sources (id, name, type, path, config, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			path = excluded.path,
			config = excluded.config,
			updated_at = excluded.updated_at`,
		src.ID, src.Name, string(src.Type), src.Path, string(cfg),
		formatTime(src.CreatedAt), formatTime(src.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return errs.Conflict("source name %q already exists", src.Name)
		}
		return fmt.Errorf("failed to upsert source: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetSource(ctx context.Context, id string) (*domain.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, type, path, config, created_at, updated_at
		FROM sources WHERE id = ?`, id)
	src, err := scanSource(row)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("source", id)
	}
	return src, err
}

func (s *SQLiteStore) ListSources(ctx context.Context) ([]*domain.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, type, path, config, created_at, updated_at
		FROM sources ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var out []*domain.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

// --- Documents ---

func (s *SQLiteStore) UpsertDocument(ctx context.Context, doc *domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, source_id, uri, title, mime_type, size_bytes,
			mtime, doc_hash, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source_id = excluded.source_id,
			uri = excluded.uri,
			title = excluded.title,
			mime_type = excluded.mime_type,
			size_bytes = excluded.size_bytes,
			mtime = excluded.mtime,
			doc_hash = excluded.doc_hash,
			status = excluded.status,
			updated_at = excluded.updated_at`,
		doc.ID, doc.SourceID, doc.URI, doc.Title, doc.MimeType, doc.SizeBytes,
		formatTime(doc.Mtime), doc.DocHash, string(doc.Status),
		formatTime(doc.CreatedAt), formatTime(doc.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return errs.Conflict("document uri %q already exists", doc.URI)
		}
		return fmt.Errorf("failed to upsert document: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, selectDocument+` WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("document", id)
	}
	return doc, err
}

func (s *SQLiteStore) GetDocumentByURI(ctx context.Context, uri string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, selectDocument+` WHERE uri = ?`, uri)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("document", uri)
	}
	return doc, err
}

func (s *SQLiteStore) ListDocuments(ctx context.Context, sourceID string) ([]*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := selectDocument
	var args []any
	if sourceID != "" {
		query += ` WHERE source_id = ?`
		args = append(args, sourceID)
	}
	query += ` ORDER BY uri`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var out []*domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) MarkDocumentDeleted(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, updated_at = ? WHERE id = ?`,
		string(domain.DocStatusDeleted), formatTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("failed to mark document deleted: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("document", id)
	}
	return nil
}

// --- Chunks ---

func (s *SQLiteStore) UpsertChunks(ctx context.Context, chunks []*domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO chunks
			(id, doc_id, chunk_index, text, start_offset, end_offset, chunk_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare chunk statement: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ID, c.DocID, c.ChunkIndex,
			c.Text, c.StartOffset, c.EndOffset, c.ChunkHash); err != nil {
			return fmt.Errorf("failed to upsert chunk %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListChunks(ctx context.Context, docID string) ([]*domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, doc_id, chunk_index, text, start_offset, end_offset, chunk_hash
		FROM chunks WHERE doc_id = ? ORDER BY chunk_index`, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer rows.Close()
	return collectChunks(rows)
}

func (s *SQLiteStore) GetChunksByIDs(ctx context.Context, ids []string) ([]*domain.Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf(`
		SELECT id, doc_id, chunk_index, text, start_offset, end_offset, chunk_hash
		FROM chunks WHERE id IN (%s)`, strings.Join(placeholders, ","))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chunks: %w", err)
	}
	defer rows.Close()
	return collectChunks(rows)
}

func (s *SQLiteStore) DeleteChunks(ctx context.Context, docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE doc_id = ?`, docID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

// --- Jobs ---

func (s *SQLiteStore) CreateJob(ctx context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = domain.JobStatusPending
	}

	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode job payload: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, type, status, progress, error, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, string(job.Type), string(job.Status), job.Progress, job.Error,
		string(payload), formatTime(job.CreatedAt), formatTime(job.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateJob(ctx context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, progress = ?, error = ?, updated_at = ?
		WHERE id = ?`,
		string(job.Status), job.Progress, job.Error, formatTime(job.UpdatedAt), job.ID)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("job", job.ID)
	}
	return nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, selectJob+` WHERE id = ?`, id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("job", id)
	}
	return job, err
}

func (s *SQLiteStore) ListJobs(ctx context.Context, limit int) ([]*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, selectJob+`
		ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

func (s *SQLiteStore) GetPendingJobs(ctx context.Context, limit int) ([]*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 1
	}
	rows, err := s.db.QueryContext(ctx, selectJob+`
		WHERE status = ? ORDER BY created_at, id LIMIT ?`,
		string(domain.JobStatusPending), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// --- Row scanning ---

const selectDocument = `
	SELECT id, source_id, uri, title, mime_type, size_bytes, mtime,
		doc_hash, status, created_at, updated_at
	FROM documents`

const selectJob = `
	SELECT id, type, status, progress, error, payload, created_at, updated_at
	FROM jobs`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(row rowScanner) (*domain.Source, error) {
	var src domain.Source
	var typ, cfg, createdAt, updatedAt string
	if err := row.Scan(&src.ID, &src.Name, &typ, &src.Path, &cfg, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	src.Type = domain.SourceType(typ)
	if err := json.Unmarshal([]byte(cfg), &src.Config); err != nil {
		return nil, fmt.Errorf("failed to decode source config: %w", err)
	}
	src.CreatedAt = parseTime(createdAt)
	src.UpdatedAt = parseTime(updatedAt)
	return &src, nil
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var doc domain.Document
	var mtime, status, createdAt, updatedAt string
	if err := row.Scan(&doc.ID, &doc.SourceID, &doc.URI, &doc.Title, &doc.MimeType,
		&doc.SizeBytes, &mtime, &doc.DocHash, &status, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	doc.Mtime = parseTime(mtime)
	doc.Status = domain.DocStatus(status)
	doc.CreatedAt = parseTime(createdAt)
	doc.UpdatedAt = parseTime(updatedAt)
	return &doc, nil
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var job domain.Job
	var typ, status, payload, createdAt, updatedAt string
	if err := row.Scan(&job.ID, &typ, &status, &job.Progress, &job.Error,
		&payload, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	job.Type = domain.JobType(typ)
	job.Status = domain.JobStatus(status)
	if err := json.Unmarshal([]byte(payload), &job.Payload); err != nil {
		return nil, fmt.Errorf("failed to decode job payload: %w", err)
	}
	job.CreatedAt = parseTime(createdAt)
	job.UpdatedAt = parseTime(updatedAt)
	return &job, nil
}

func collectChunks(rows *sql.Rows) ([]*domain.Chunk, error) {
	var out []*domain.Chunk
	for rows.Next() {
		var c domain.Chunk
		if err := rows.Scan(&c.ID, &c.DocID, &c.ChunkIndex, &c.Text,
			&c.StartOffset, &c.EndOffset, &c.ChunkHash); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func collectJobs(rows *sql.Rows) ([]*domain.Job, error) {
	var out []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
