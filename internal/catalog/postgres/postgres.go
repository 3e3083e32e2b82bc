// Package postgres stores the catalog in PostgreSQL with pgvector embeddings.
// Each vector space gets a partial HNSW index named after its search index.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/mercasmart/catalog-search/internal/catalog"
	"github.com/mercasmart/catalog-search/internal/model"
	"github.com/mercasmart/catalog-search/internal/vector"
)

// maxEfSearch is the pgvector ceiling for hnsw.ef_search.
const maxEfSearch = 1000

// Open opens a PostgreSQL connection using the pgx stdlib driver and verifies connectivity.
func Open(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// NewWithDB constructs a Postgres-backed catalog store.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

// Store implements catalog.Store.
type Store struct{ db *sql.DB }

// DB exposes the underlying handle for tooling.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the pool.
func (s *Store) Close() error { return s.db.Close() }

// HealthPing implements health.HealthPinger for Postgres-backed store.
func (s *Store) HealthPing(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// EnsureSchema creates the extension, tables and one partial HNSW index per space.
func (s *Store) EnsureSchema(ctx context.Context, dims map[catalog.VectorSpace]int) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS products (
            id  TEXT PRIMARY KEY,
            doc JSONB NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS product_embeddings (
            record_id  TEXT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
            space      TEXT NOT NULL,
            embedding  vector NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            PRIMARY KEY (record_id, space)
        )`,
	}
	for _, sp := range catalog.Spaces() {
		d, ok := dims[sp]
		if !ok || d <= 0 {
			continue
		}
		stmts = append(stmts, fmt.Sprintf(
			`CREATE INDEX IF NOT EXISTS %s ON product_embeddings USING hnsw ((embedding::vector(%d)) vector_cosine_ops) WHERE space = '%s'`,
			sp.Index(), d, string(sp)))
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return model.NewStoreError("schema", err)
		}
	}
	return nil
}

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
            INSERT INTO products (id, doc) VALUES ($1, $2)
            ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc
        `, r.ID, string(doc)); err != nil {
			return model.NewStoreError("insert", err)
		}
	}
	return model.NewStoreError("insert", tx.Commit())
}

func (s *Store) Find(ctx context.Context, f catalog.Filter, proj catalog.Projection, skip, limit int) ([]catalog.ProductRecord, error) {
	q := `SELECT doc FROM products WHERE ($1::text[] IS NULL OR id = ANY($1)) ORDER BY id OFFSET $2`
	args := []any{idsArg(f), max(skip, 0)}
	if limit > 0 {
		q += ` LIMIT $3`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, model.NewStoreError("find", err)
	}
	defer rows.Close()

	out := []catalog.ProductRecord{}
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, model.NewStoreError("find", err)
		}
		var r catalog.ProductRecord
		if err := json.Unmarshal(doc, &r); err != nil {
			return nil, model.NewStoreError("find", err)
		}
		out = append(out, proj.Apply(r))
	}
	return out, model.NewStoreError("find", rows.Err())
}

func (s *Store) Count(ctx context.Context, f catalog.Filter) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM products WHERE ($1::text[] IS NULL OR id = ANY($1))`, idsArg(f)).Scan(&n)
	if err != nil {
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
	if err := tx.QueryRowContext(ctx, `SELECT 1 FROM products WHERE id = $1`, id).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = fmt.Errorf("%s: %w", id, catalog.ErrNotFound)
		}
		return model.NewStoreError("update", err)
	}
	for _, rec := range emb.Records(id) {
		if _, err := tx.ExecContext(ctx, `
            INSERT INTO product_embeddings (record_id, space, embedding) VALUES ($1, $2, $3)
            ON CONFLICT (record_id, space) DO UPDATE SET
                embedding = EXCLUDED.embedding,
                updated_at = now()
        `, rec.RecordID, string(rec.Space), pgvector.NewVector(rec.Vector)); err != nil {
			return model.NewStoreError("update", err)
		}
	}
	return model.NewStoreError("update", tx.Commit())
}

func (s *Store) Embeddings(ctx context.Context, id string) (catalog.Embeddings, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT space, embedding FROM product_embeddings WHERE record_id = $1`, id)
	if err != nil {
		return nil, model.NewStoreError("embeddings", err)
	}
	defer rows.Close()
	out := catalog.Embeddings{}
	for rows.Next() {
		var space string
		var v pgvector.Vector
		if err := rows.Scan(&space, &v); err != nil {
			return nil, model.NewStoreError("embeddings", err)
		}
		out[catalog.VectorSpace(space)] = v.Slice()
	}
	return out, model.NewStoreError("embeddings", rows.Err())
}

// VectorSearch orders by cosine distance through the partial HNSW index of the
// query's space. NumCandidates maps to hnsw.ef_search.
func (s *Store) VectorSearch(ctx context.Context, q catalog.VectorQuery) ([]catalog.Hit, error) {
	if err := q.Validate(); err != nil {
		return nil, model.NewStoreError("vector_search", err)
	}
	sp, _ := q.Space()
	dim := len(q.Vector)

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, model.NewStoreError("vector_search", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT set_config('hnsw.ef_search', $1, true)`, fmt.Sprint(min(q.NumCandidates, maxEfSearch))); err != nil {
		return nil, model.NewStoreError("vector_search", err)
	}

	query := fmt.Sprintf(`
        SELECT p.doc, (e.embedding::vector(%[1]d) <=> $1::vector(%[1]d)) AS distance
        FROM product_embeddings e
        JOIN products p ON p.id = e.record_id
        WHERE e.space = $2 AND vector_dims(e.embedding) = %[1]d
        ORDER BY distance, p.id
        LIMIT $3`, dim)
	rows, err := tx.QueryContext(ctx, query, pgvector.NewVector(q.Vector), string(sp), q.Limit)
	if err != nil {
		return nil, model.NewStoreError("vector_search", err)
	}
	defer rows.Close()

	hits := []catalog.Hit{}
	for rows.Next() {
		var doc []byte
		var distance float64
		if err := rows.Scan(&doc, &distance); err != nil {
			return nil, model.NewStoreError("vector_search", err)
		}
		var r catalog.ProductRecord
		if err := json.Unmarshal(doc, &r); err != nil {
			return nil, model.NewStoreError("vector_search", err)
		}
		hits = append(hits, catalog.Hit{Record: q.Projection.Apply(r), Score: vector.ScoreFromDistance(distance)})
	}
	if err := rows.Err(); err != nil {
		return nil, model.NewStoreError("vector_search", err)
	}
	return hits, nil
}

func idsArg(f catalog.Filter) any {
	if len(f.IDs) == 0 {
		return nil
	}
	return f.IDs
}
