package lexical

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/docsift/docsift/internal/domain"
)

// FTS5Index implements Index using SQLite FTS5. WAL mode allows readers
// to search while the indexing worker writes.
type FTS5Index struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

var _ Index = (*FTS5Index)(nil)

// NewFTS5Index opens (or creates) the FTS5 index at path. An empty path
// opens an in-memory index for testing.
func NewFTS5Index(path string) (*FTS5Index, error) {
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
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	// chunk_id and doc_id are stored but not searchable; title is indexed
	// alongside text so document titles boost matching chunks.
	schema := `
	CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
		chunk_id UNINDEXED,
		doc_id UNINDEXED,
		title,
		text,
		uri UNINDEXED,
		tokenize='unicode61'
	);`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize FTS5 schema: %w", err)
	}

	return &FTS5Index{db: db, path: path}, nil
}

func (f *FTS5Index) UpsertChunks(ctx context.Context, doc *domain.Document, chunks []*domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return fmt.Errorf("index is closed")
	}

	tx, err := f.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// FTS5 virtual tables have no REPLACE, delete first.
	deleteStmt, err := tx.PrepareContext(ctx, `DELETE FROM chunks_fts WHERE chunk_id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete statement: %w", err)
	}
	defer deleteStmt.Close()

	insertStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks_fts(chunk_id, doc_id, title, text, uri)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	defer insertStmt.Close()

	for _, c := range chunks {
		if _, err := deleteStmt.ExecContext(ctx, c.ID); err != nil {
			return fmt.Errorf("failed to delete chunk %s: %w", c.ID, err)
		}
		if _, err := insertStmt.ExecContext(ctx, c.ID, c.DocID, doc.Title, c.Text, doc.URI); err != nil {
			return fmt.Errorf("failed to index chunk %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

func (f *FTS5Index) DeleteDoc(ctx context.Context, docID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return fmt.Errorf("index is closed")
	}

	if _, err := f.db.ExecContext(ctx, `DELETE FROM chunks_fts WHERE doc_id = ?`, docID); err != nil {
		return fmt.Errorf("failed to delete document chunks: %w", err)
	}
	return nil
}

func (f *FTS5Index) Search(ctx context.Context, query string, topK int) ([]Hit, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return nil, fmt.Errorf("index is closed")
	}

	if strings.TrimSpace(query) == "" || topK <= 0 {
		return []Hit{}, nil
	}

	// bm25() returns negative values where lower is a better match.
	rows, err := f.db.QueryContext(ctx, `
		SELECT chunk_id, doc_id, bm25(chunks_fts) AS score
		FROM chunks_fts
		WHERE chunks_fts MATCH ?
		ORDER BY score
		LIMIT ?`, query, topK)
	if err != nil {
		// FTS5 rejects unbalanced quotes and stray operators with a syntax
		// error. Treat those as no results rather than failing the search.
		if strings.Contains(err.Error(), "fts5:") || strings.Contains(err.Error(), "syntax error") {
			return []Hit{}, nil
		}
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		var score float64
		if err := rows.Scan(&h.ChunkID, &h.DocID, &score); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		h.Score = -score
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// Close closes the index. Idempotent.
func (f *FTS5Index) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	_, _ = f.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return f.db.Close()
}
