// Package catalogtest holds a compliance suite shared by every catalog.Store driver.
package catalogtest

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/mercasmart/catalog-search/internal/catalog"
	"github.com/mercasmart/catalog-search/internal/model"
)

// Dim is the vector dimension used by the suite.
const Dim = 4

// Dims returns the per-space dimensions drivers should bootstrap before Run.
func Dims() map[catalog.VectorSpace]int {
	return map[catalog.VectorSpace]int{
		catalog.SpaceTextOpenAI:  Dim,
		catalog.SpaceTextVoyage:  Dim,
		catalog.SpaceImageVoyage: Dim,
	}
}

// Full is the store surface exercised by the suite.
type Full interface {
	catalog.Store
	catalog.Writer
	catalog.EmbeddingReader
}

// Run exercises a compliance suite against a store implementation.
// makeStore must return a clean, isolated store whose schema accepts Dim-sized vectors.
func Run(t *testing.T, makeStore func(t *testing.T) Full) {
	t.Helper()

	s := makeStore(t)
	ctx := context.Background()

	prefix := uuid.NewString()[:8] + "-"
	soup := catalog.ProductRecord{ID: prefix + "a", DisplayName: "Soup", LegalName: "Tomato soup", Description: "warm soup",
		Ingredients: "<p>tomato</p>", Allergens: "celery", Photos: []string{"http://img/a0", "http://img/a1"}, Thumbnail: "http://img/a.jpg", BulkPrice: "2.10"}
	cake := catalog.ProductRecord{ID: prefix + "b", DisplayName: "Cake", Description: "sweet cake", Ingredients: "flour, sugar", BulkPrice: "5.00"}
	others := []catalog.ProductRecord{
		{ID: prefix + "c", DisplayName: "Bread"},
		{ID: prefix + "d", DisplayName: "Milk"},
		{ID: prefix + "e", DisplayName: "Eggs"},
	}
	all := append([]catalog.ProductRecord{soup, cake}, others...)
	ids := make([]string, 0, len(all))
	for _, r := range all {
		ids = append(ids, r.ID)
	}
	mine := catalog.Filter{IDs: ids}

	if err := s.Insert(ctx, all...); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	// Count
	if n, err := s.Count(ctx, mine); err != nil || n != int64(len(all)) {
		t.Fatalf("Count: n=%d err=%v", n, err)
	}
	if n, err := s.Count(ctx, catalog.Filter{IDs: []string{soup.ID, "missing-" + prefix}}); err != nil || n != 1 {
		t.Fatalf("Count subset: n=%d err=%v", n, err)
	}

	// Offset pagination is stable and covers every record exactly once
	seen := map[string]bool{}
	for skip := 0; skip < len(all)+2; skip += 2 {
		page, err := s.Find(ctx, mine, nil, skip, 2)
		if err != nil {
			t.Fatalf("Find skip=%d: %v", skip, err)
		}
		if len(page) > 2 {
			t.Fatalf("Find skip=%d returned %d records, limit 2", skip, len(page))
		}
		for _, r := range page {
			if seen[r.ID] {
				t.Fatalf("Find returned %s twice across pages", r.ID)
			}
			seen[r.ID] = true
		}
	}
	if len(seen) != len(all) {
		t.Fatalf("pagination covered %d of %d records", len(seen), len(all))
	}

	// Full record round-trip
	got, err := s.Find(ctx, catalog.Filter{IDs: []string{soup.ID}}, nil, 0, 1)
	if err != nil || len(got) != 1 {
		t.Fatalf("Find soup: n=%d err=%v", len(got), err)
	}
	if got[0].DisplayName != soup.DisplayName || got[0].Ingredients != soup.Ingredients || got[0].BulkPrice != soup.BulkPrice ||
		len(got[0].Photos) != 2 || got[0].Photos[1] != soup.Photos[1] {
		t.Fatalf("Find soup: unexpected record %+v", got[0])
	}

	// Projection
	proj, err := s.Find(ctx, catalog.Filter{IDs: []string{soup.ID}}, catalog.Projection{catalog.FieldDisplayName}, 0, 1)
	if err != nil || len(proj) != 1 {
		t.Fatalf("Find projected: n=%d err=%v", len(proj), err)
	}
	if proj[0].ID != soup.ID || proj[0].DisplayName != "Soup" || proj[0].Description != "" || proj[0].Ingredients != "" {
		t.Fatalf("Find projected: unexpected record %+v", proj[0])
	}

	// Update unknown id
	if err := s.Update(ctx, "missing-"+prefix, catalog.Embeddings{catalog.SpaceTextVoyage: vec(1, 0, 0, 0)}); err == nil || !model.IsStoreError(err) {
		t.Fatalf("Update missing: want StoreError, got %v", err)
	}

	// Upsert overwrites per (id, space) and leaves other spaces untouched
	mustUpdate(t, s, soup.ID, catalog.Embeddings{catalog.SpaceTextVoyage: vec(0, 1, 0, 0)})
	mustUpdate(t, s, soup.ID, catalog.Embeddings{catalog.SpaceTextOpenAI: vec(0, 0, 1, 0)})
	mustUpdate(t, s, soup.ID, catalog.Embeddings{catalog.SpaceTextVoyage: vec(1, 0, 0, 0)})
	mustUpdate(t, s, soup.ID, catalog.Embeddings{catalog.SpaceTextVoyage: vec(1, 0, 0, 0)})
	embs, err := s.Embeddings(ctx, soup.ID)
	if err != nil {
		t.Fatalf("Embeddings: %v", err)
	}
	if len(embs) != 2 {
		t.Fatalf("Embeddings: want 2 spaces, got %d", len(embs))
	}
	if !equal(embs[catalog.SpaceTextVoyage], vec(1, 0, 0, 0)) || !equal(embs[catalog.SpaceTextOpenAI], vec(0, 0, 1, 0)) {
		t.Fatalf("Embeddings: unexpected vectors %v", embs)
	}

	mustUpdate(t, s, cake.ID, catalog.Embeddings{catalog.SpaceTextVoyage: vec(0.2, 1, 0, 0)})
	mustUpdate(t, s, others[0].ID, catalog.Embeddings{catalog.SpaceTextVoyage: vec(0, 0, 0, 1)})

	// Vector search orders by similarity and honors limit and projection
	q := catalog.NewVectorQuery(catalog.SpaceTextVoyage, vec(1, 0.1, 0, 0), 10, 2,
		catalog.Projection{catalog.FieldDisplayName, catalog.FieldDescription})
	hits, err := s.VectorSearch(ctx, q)
	if err != nil {
		t.Fatalf("VectorSearch: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("VectorSearch: want 2 hits, got %d", len(hits))
	}
	if hits[0].Record.ID != soup.ID || hits[1].Record.ID != cake.ID {
		t.Fatalf("VectorSearch: want [%s %s], got [%s %s]", soup.ID, cake.ID, hits[0].Record.ID, hits[1].Record.ID)
	}
	if !(hits[0].Score > hits[1].Score) {
		t.Fatalf("VectorSearch: scores not descending: %v %v", hits[0].Score, hits[1].Score)
	}
	for _, h := range hits {
		if h.Score < 0 || h.Score > 1.0000001 {
			t.Fatalf("VectorSearch: score %v outside [0,1]", h.Score)
		}
		if h.Record.Ingredients != "" {
			t.Fatalf("VectorSearch: ingredients not projected away: %+v", h.Record)
		}
	}
	if hits[0].Record.Description != "warm soup" {
		t.Fatalf("VectorSearch: description missing from projection: %+v", hits[0].Record)
	}

	// A space nobody indexed yields nothing
	empty, err := s.VectorSearch(ctx, catalog.NewVectorQuery(catalog.SpaceImageVoyage, vec(1, 0, 0, 0), 10, 5, nil))
	if err != nil {
		t.Fatalf("VectorSearch image: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("VectorSearch image: want 0 hits, got %d", len(empty))
	}

	// Invalid query is rejected
	bad := catalog.NewVectorQuery(catalog.SpaceTextVoyage, vec(1, 0, 0, 0), 1, 5, nil)
	if _, err := s.VectorSearch(ctx, bad); err == nil {
		t.Fatalf("VectorSearch: want error for numCandidates < limit")
	}
}

func mustUpdate(t *testing.T, s catalog.Store, id string, e catalog.Embeddings) {
	t.Helper()
	if err := s.Update(context.Background(), id, e); err != nil {
		t.Fatalf("Update %s: %v", id, err)
	}
}

func vec(xs ...float32) []float32 { return xs }

func equal(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		d := a[i] - b[i]
		if d > 1e-6 || d < -1e-6 {
			return false
		}
	}
	return true
}
