// Package memory is an in-process catalog store scoring vectors exhaustively.
// It backs unit tests and local runs without a database.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mercasmart/catalog-search/internal/catalog"
	"github.com/mercasmart/catalog-search/internal/model"
	"github.com/mercasmart/catalog-search/internal/vector"
)

type entry struct {
	record     catalog.ProductRecord
	embeddings catalog.Embeddings
}

// Store is safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	byID map[string]*entry
}

// New returns a store seeded with records. It panics on a record without an id.
func New(records ...catalog.ProductRecord) *Store {
	s := &Store{byID: make(map[string]*entry)}
	if err := s.Insert(context.Background(), records...); err != nil {
		panic(err)
	}
	return s
}

// Insert stores or replaces records. Replacing keeps existing embeddings.
func (s *Store) Insert(_ context.Context, records ...catalog.ProductRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		if r.ID == "" {
			return model.NewStoreError("insert", fmt.Errorf("record without id"))
		}
		if e, ok := s.byID[r.ID]; ok {
			e.record = r
			continue
		}
		s.byID[r.ID] = &entry{record: r, embeddings: catalog.Embeddings{}}
	}
	return nil
}

func (s *Store) sortedIDs(f catalog.Filter) []string {
	ids := make([]string, 0, len(s.byID))
	for id := range s.byID {
		if f.Match(id) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (s *Store) Find(ctx context.Context, f catalog.Filter, proj catalog.Projection, skip, limit int) ([]catalog.ProductRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, model.NewStoreError("find", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.sortedIDs(f)
	if skip >= len(ids) {
		return []catalog.ProductRecord{}, nil
	}
	ids = ids[max(skip, 0):]
	if limit > 0 && limit < len(ids) {
		ids = ids[:limit]
	}
	out := make([]catalog.ProductRecord, 0, len(ids))
	for _, id := range ids {
		out = append(out, proj.Apply(s.byID[id].record))
	}
	return out, nil
}

func (s *Store) Count(ctx context.Context, f catalog.Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, model.NewStoreError("count", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.sortedIDs(f))), nil
}

func (s *Store) Update(ctx context.Context, id string, emb catalog.Embeddings) error {
	if err := ctx.Err(); err != nil {
		return model.NewStoreError("update", err)
	}
	if err := emb.Validate(); err != nil {
		return model.NewStoreError("update", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[id]
	if !ok {
		return model.NewStoreError("update", fmt.Errorf("%s: %w", id, catalog.ErrNotFound))
	}
	for sp, v := range emb {
		e.embeddings[sp] = append([]float32(nil), v...)
	}
	return nil
}

// Embeddings returns a copy of the vectors stored for id.
func (s *Store) Embeddings(_ context.Context, id string) (catalog.Embeddings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byID[id]
	if !ok {
		return nil, model.NewStoreError("embeddings", fmt.Errorf("%s: %w", id, catalog.ErrNotFound))
	}
	out := make(catalog.Embeddings, len(e.embeddings))
	for sp, v := range e.embeddings {
		out[sp] = append([]float32(nil), v...)
	}
	return out, nil
}

func (s *Store) VectorSearch(ctx context.Context, q catalog.VectorQuery) ([]catalog.Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, model.NewStoreError("vector_search", err)
	}
	if err := q.Validate(); err != nil {
		return nil, model.NewStoreError("vector_search", err)
	}
	sp, _ := q.Space()

	s.mu.RLock()
	hits := make([]catalog.Hit, 0, len(s.byID))
	for _, e := range s.byID {
		v, ok := e.embeddings[sp]
		if !ok || len(v) != len(q.Vector) {
			continue
		}
		hits = append(hits, catalog.Hit{Record: q.Projection.Apply(e.record), Score: vector.Score(q.Vector, v)})
	}
	s.mu.RUnlock()

	catalog.SortHits(hits)
	if len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}
	return hits, nil
}

// HealthPing always succeeds.
func (s *Store) HealthPing(context.Context) error { return nil }

// EnsureSchema is a no-op.
func (s *Store) EnsureSchema(context.Context, map[catalog.VectorSpace]int) error { return nil }
