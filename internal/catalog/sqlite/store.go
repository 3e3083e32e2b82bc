// Package sqlite is a single-file catalog store for local development.
// Similarity is scored exhaustively in process over the vectors of one space.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/mercasmart/catalog-search/internal/catalog"
	"github.com/mercasmart/catalog-search/internal/model"
	"github.com/mercasmart/catalog-search/internal/vector"
)

// Store implements catalog.Store over database/sql.
type Store struct{ db *sql.DB }

// New opens the database at path and creates the tables.
func New(ctx context.Context, path string) (*Store, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	s := NewWithDB(db)
	if err := s.EnsureSchema(ctx, nil); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewWithDB wraps an already opened database.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// EnsureSchema creates the tables. Dimensions are enforced per query, so dims is unused.
func (s *Store) EnsureSchema(ctx context.Context, _ map[catalog.VectorSpace]int) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return model.NewStoreError("schema", err)
	}
	return nil
}

// HealthPing implements health.HealthPinger.
func (s *Store) HealthPing(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Insert(ctx context.Context, records ...catalog.ProductRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.NewStoreError("insert", err)
	}
	defer func() { _ = tx.Rollback() }()
	for _, r := range records {
		if r.ID == "" {
			return model.NewStoreError("insert", errors.New("record without id"))
		}
		doc, err := json.Marshal(r)
		if err != nil {
			return model.NewStoreError("insert", err)
		}
		if _, err := tx.ExecContext(ctx, `
            INSERT INTO products (id, doc) VALUES (?, ?)
            ON CONFLICT(id) DO UPDATE SET doc = excluded.doc
        `, r.ID, string(doc)); err != nil {
			return model.NewStoreError("insert", err)
		}
	}
	return model.NewStoreError("insert", tx.Commit())
}

func whereIDs(f catalog.Filter, col string) (string, []any) {
	if len(f.IDs) == 0 {
		return "", nil
	}
	marks := make([]string, len(f.IDs))
	args := make([]any, len(f.IDs))
	for i, id := range f.IDs {
		marks[i] = "?"
		args[i] = id
	}
	return fmt.Sprintf(" WHERE %s IN (%s)", col, strings.Join(marks, ",")), args
}

func (s *Store) Find(ctx context.Context, f catalog.Filter, proj catalog.Projection, skip, limit int) ([]catalog.ProductRecord, error) {
	where, args := whereIDs(f, "id")
	if limit <= 0 {
		limit = -1
	}
	args = append(args, limit, max(skip, 0))
	rows, err := s.db.QueryContext(ctx, "SELECT doc FROM products"+where+" ORDER BY id LIMIT ? OFFSET ?", args...)
	if err != nil {
		return nil, model.NewStoreError("find", err)
	}
	defer rows.Close()

	out := []catalog.ProductRecord{}
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, model.NewStoreError("find", err)
		}
		var r catalog.ProductRecord
		if err := json.Unmarshal([]byte(doc), &r); err != nil {
			return nil, model.NewStoreError("find", err)
		}
		out = append(out, proj.Apply(r))
	}
	return out, model.NewStoreError("find", rows.Err())
}

func (s *Store) Count(ctx context.Context, f catalog.Filter) (int64, error) {
	where, args := whereIDs(f, "id")
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM products"+where, args...).Scan(&n); err != nil {
		return 0, model.NewStoreError("count", err)
	}
	return n, nil
}

func (s *Store) Update(ctx context.Context, id string, emb catalog.Embeddings) error {
	if err := emb.Validate(); err != nil {
		return model.NewStoreError("update", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.NewStoreError("update", err)
	}
	defer func() { _ = tx.Rollback() }()

	var one int
	if err := tx.QueryRowContext(ctx, "SELECT 1 FROM products WHERE id = ?", id).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = fmt.Errorf("%s: %w", id, catalog.ErrNotFound)
		}
		return model.NewStoreError("update", err)
	}
	for _, rec := range emb.Records(id) {
		if _, err := tx.ExecContext(ctx, `
            INSERT INTO product_embeddings (record_id, space, dim, vector) VALUES (?, ?, ?, ?)
            ON CONFLICT(record_id, space) DO UPDATE SET
                dim = excluded.dim,
                vector = excluded.vector,
                updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')
        `, rec.RecordID, string(rec.Space), len(rec.Vector), encodeVector(rec.Vector)); err != nil {
			return model.NewStoreError("update", err)
		}
	}
	return model.NewStoreError("update", tx.Commit())
}

func (s *Store) Embeddings(ctx context.Context, id string) (catalog.Embeddings, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT space, vector FROM product_embeddings WHERE record_id = ?", id)
	if err != nil {
		return nil, model.NewStoreError("embeddings", err)
	}
	defer rows.Close()
	out := catalog.Embeddings{}
	for rows.Next() {
		var space string
		var blob []byte
		if err := rows.Scan(&space, &blob); err != nil {
			return nil, model.NewStoreError("embeddings", err)
		}
		out[catalog.VectorSpace(space)] = decodeVector(blob)
	}
	return out, model.NewStoreError("embeddings", rows.Err())
}

func (s *Store) VectorSearch(ctx context.Context, q catalog.VectorQuery) ([]catalog.Hit, error) {
	if err := q.Validate(); err != nil {
		return nil, model.NewStoreError("vector_search", err)
	}
	sp, _ := q.Space()
	rows, err := s.db.QueryContext(ctx, `
        SELECT p.doc, e.vector FROM product_embeddings e
        JOIN products p ON p.id = e.record_id
        WHERE e.space = ? AND e.dim = ?
    `, string(sp), len(q.Vector))
	if err != nil {
		return nil, model.NewStoreError("vector_search", err)
	}
	defer rows.Close()

	hits := []catalog.Hit{}
	for rows.Next() {
		var doc string
		var blob []byte
		if err := rows.Scan(&doc, &blob); err != nil {
			return nil, model.NewStoreError("vector_search", err)
		}
		var r catalog.ProductRecord
		if err := json.Unmarshal([]byte(doc), &r); err != nil {
			return nil, model.NewStoreError("vector_search", err)
		}
		hits = append(hits, catalog.Hit{Record: q.Projection.Apply(r), Score: vector.Score(q.Vector, decodeVector(blob))})
	}
	if err := rows.Err(); err != nil {
		return nil, model.NewStoreError("vector_search", err)
	}
	catalog.SortHits(hits)
	if len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}
	return hits, nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return out
}
