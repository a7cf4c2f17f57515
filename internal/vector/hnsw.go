package vector

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/docsift/docsift/internal/domain"
)

// queryOversample is how many extra candidates the graph is asked for so
// that soft-deleted neighbors can be filtered without starving topK.
const queryOversample = 5

// vecMeta is the in-memory view of a live sidecar row.
type vecMeta struct {
	chunkID string
	docID   string
}

// HNSWStore implements Store on a coder/hnsw graph with a SQLite sidecar.
// The sidecar is authoritative: every vector row keeps its embedding so
// the graph can be rebuilt after a crash or during Compact.
type HNSWStore struct {
	mu        sync.RWMutex
	graph     *hnsw.Graph[uint64]
	db        *sql.DB
	graphPath string
	dim       int
	live      map[uint64]vecMeta
	closed    bool
}

var _ Store = (*HNSWStore)(nil)

// NewHNSWStore opens the vector store under dir. An empty dir keeps
// everything in memory for testing.
func NewHNSWStore(dir string, dim int) (*HNSWStore, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive, got %d", dim)
	}

	dsn := ":memory:"
	graphPath := ""
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		dsn = filepath.Join(dir, "vectors.db")
		graphPath = filepath.Join(dir, "graph.hnsw")
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

	schema := `
	CREATE TABLE IF NOT EXISTS chunk_vectors (
		ann_id    INTEGER PRIMARY KEY AUTOINCREMENT,
		chunk_id  TEXT NOT NULL,
		doc_id    TEXT NOT NULL,
		deleted   INTEGER NOT NULL DEFAULT 0,
		embedding BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chunk_vectors_chunk ON chunk_vectors(chunk_id);
	CREATE INDEX IF NOT EXISTS idx_chunk_vectors_doc ON chunk_vectors(doc_id);`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize vector schema: %w", err)
	}

	s := &HNSWStore{
		graph:     newGraph(),
		db:        db,
		graphPath: graphPath,
		dim:       dim,
		live:      make(map[uint64]vecMeta),
	}
	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func newGraph() *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = 16
	g.EfSearch = 20
	g.Ml = 0.25
	return g
}

// load restores the live map from the sidecar and the graph from its
// snapshot. A missing or unreadable snapshot triggers a rebuild from the
// stored embeddings, which also covers a crash between commit and save.
func (s *HNSWStore) load() error {
	rows, err := s.db.Query(`
		SELECT ann_id, chunk_id, doc_id FROM chunk_vectors WHERE deleted = 0`)
	if err != nil {
		return fmt.Errorf("failed to load vector sidecar: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var annID uint64
		var meta vecMeta
		if err := rows.Scan(&annID, &meta.chunkID, &meta.docID); err != nil {
			return err
		}
		s.live[annID] = meta
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(s.live) == 0 {
		return nil
	}

	if s.graphPath != "" {
		if file, err := os.Open(s.graphPath); err == nil {
			defer file.Close()
			// Import requires an io.ByteReader.
			if err := s.graph.Import(bufio.NewReader(file)); err == nil {
				return nil
			}
			s.graph = newGraph()
		}
	}
	return s.rebuildGraph()
}

// rebuildGraph repopulates the graph from live sidecar rows.
func (s *HNSWStore) rebuildGraph() error {
	rows, err := s.db.Query(`
		SELECT ann_id, embedding FROM chunk_vectors WHERE deleted = 0`)
	if err != nil {
		return fmt.Errorf("failed to read embeddings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var annID uint64
		var blob []byte
		if err := rows.Scan(&annID, &blob); err != nil {
			return err
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return fmt.Errorf("corrupt embedding for ann_id %d: %w", annID, err)
		}
		s.graph.Add(hnsw.MakeNode(annID, vec))
	}
	return rows.Err()
}

func (s *HNSWStore) UpsertEmbeddings(ctx context.Context, chunks []*domain.Chunk, vecs [][]float32) error {
	if len(chunks) != len(vecs) {
		return fmt.Errorf("chunks and vectors length mismatch: %d vs %d", len(chunks), len(vecs))
	}
	if len(chunks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}

	for _, v := range vecs {
		if len(v) != s.dim {
			return fmt.Errorf("vector dimension mismatch: expected %d, got %d", s.dim, len(v))
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	markStmt, err := tx.PrepareContext(ctx,
		`UPDATE chunk_vectors SET deleted = 1 WHERE chunk_id = ? AND deleted = 0`)
	if err != nil {
		return fmt.Errorf("failed to prepare mark statement: %w", err)
	}
	defer markStmt.Close()

	insertStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunk_vectors (chunk_id, doc_id, deleted, embedding) VALUES (?, ?, 0, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	defer insertStmt.Close()

	type pending struct {
		annID uint64
		meta  vecMeta
		vec   []float32
	}
	var batch []pending

	for i, c := range chunks {
		if _, err := markStmt.ExecContext(ctx, c.ID); err != nil {
			return fmt.Errorf("failed to mark old vector for chunk %s: %w", c.ID, err)
		}

		vec := make([]float32, len(vecs[i]))
		copy(vec, vecs[i])
		normalizeInPlace(vec)

		res, err := insertStmt.ExecContext(ctx, c.ID, c.DocID, encodeVector(vec))
		if err != nil {
			return fmt.Errorf("failed to insert vector for chunk %s: %w", c.ID, err)
		}
		annID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read vector id: %w", err)
		}
		batch = append(batch, pending{
			annID: uint64(annID),
			meta:  vecMeta{chunkID: c.ID, docID: c.DocID},
			vec:   vec,
		})
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit vectors: %w", err)
	}

	// Graph mutation happens after commit; orphaned entries left by the
	// soft delete are filtered at query time via the live map.
	for _, p := range batch {
		for annID, meta := range s.live {
			if meta.chunkID == p.meta.chunkID {
				delete(s.live, annID)
			}
		}
		s.graph.Add(hnsw.MakeNode(p.annID, p.vec))
		s.live[p.annID] = p.meta
	}

	return s.saveGraph()
}

func (s *HNSWStore) DeleteDoc(ctx context.Context, docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE chunk_vectors SET deleted = 1 WHERE doc_id = ? AND deleted = 0`, docID); err != nil {
		return fmt.Errorf("failed to delete document vectors: %w", err)
	}

	for annID, meta := range s.live {
		if meta.docID == docID {
			delete(s.live, annID)
		}
	}
	return nil
}

func (s *HNSWStore) Query(ctx context.Context, vec []float32, topK int) ([]Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}
	if topK <= 0 || s.graph.Len() == 0 {
		return []Hit{}, nil
	}
	if len(vec) != s.dim {
		return nil, fmt.Errorf("vector dimension mismatch: expected %d, got %d", s.dim, len(vec))
	}

	query := make([]float32, len(vec))
	copy(query, vec)
	normalizeInPlace(query)

	nodes := s.graph.Search(query, topK*queryOversample)

	hits := make([]Hit, 0, topK)
	for _, node := range nodes {
		meta, ok := s.live[node.Key]
		if !ok {
			continue
		}
		distance := s.graph.Distance(query, node.Value)
		hits = append(hits, Hit{
			ChunkID: meta.chunkID,
			DocID:   meta.docID,
			// Cosine distance ranges 0..2, map to similarity 0..1.
			Score: float64(1.0 - distance/2.0),
		})
		if len(hits) == topK {
			break
		}
	}
	return hits, nil
}

func (s *HNSWStore) Compact(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunk_vectors WHERE deleted = 1`); err != nil {
		return fmt.Errorf("failed to purge deleted vectors: %w", err)
	}

	s.graph = newGraph()
	if err := s.rebuildGraph(); err != nil {
		return err
	}
	return s.saveGraph()
}

// saveGraph writes the graph snapshot atomically (temp file + rename).
func (s *HNSWStore) saveGraph() error {
	if s.graphPath == "" {
		return nil
	}

	tmpPath := s.graphPath + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}
	if err := s.graph.Export(file); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to export graph: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close snapshot file: %w", err)
	}
	if err := os.Rename(tmpPath, s.graphPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename snapshot file: %w", err)
	}
	return nil
}

// Close closes the store. Idempotent.
func (s *HNSWStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.graph = nil
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
