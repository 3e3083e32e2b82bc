package indexer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mercasmart/catalog-search/internal/catalog"
	"github.com/mercasmart/catalog-search/internal/catalog/memory"
	"github.com/mercasmart/catalog-search/internal/embeddings"
	"github.com/mercasmart/catalog-search/internal/embeddings/embeddingstest"
	"github.com/mercasmart/catalog-search/internal/model"
	"github.com/mercasmart/catalog-search/internal/normalize"
)

func fiveProducts() []catalog.ProductRecord {
	names := []string{"Bread", "Cake", "Eggs", "Milk", "Soup"}
	out := make([]catalog.ProductRecord, 0, len(names))
	for i, n := range names {
		out = append(out, catalog.ProductRecord{
			ID:          fmt.Sprintf("p%d", i+1),
			DisplayName: n,
			Description: "<p>fresh " + n + "</p>",
			Ingredients: "<strong>" + n + "</strong>",
		})
	}
	return out
}

func textNormalizer(t *testing.T) *TextNormalizer {
	t.Helper()
	n, err := normalize.New("en")
	require.NoError(t, err)
	return NewTextNormalizer(n)
}

type sleepRecorder struct {
	calls  []time.Duration
	cancel context.CancelFunc
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.calls = append(s.calls, d)
	if s.cancel != nil {
		s.cancel()
		return ctx.Err()
	}
	return nil
}

func newTestIndexer(t *testing.T, st catalog.Store, p embeddings.Provider) (*Indexer, *sleepRecorder) {
	ix := New(catalog.SpaceTextVoyage, p, textNormalizer(t), st, zerolog.Nop())
	rec := &sleepRecorder{}
	ix.sleep = rec.sleep
	return ix, rec
}

func TestRun_SkipsFailedDocuments(t *testing.T) {
	st := memory.New(fiveProducts()...)
	p := embeddingstest.New(4)
	p.FailOn["Eggs"] = model.NewPermanentError("fake", errors.New("bad input"))
	ix, _ := newTestIndexer(t, st, p)

	rep, err := ix.Run(context.Background(), 2, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int64(5), rep.Total)
	assert.Equal(t, 3, rep.Pages)
	assert.Equal(t, 4, rep.Indexed)
	assert.Equal(t, 1, rep.Skipped)
	require.Len(t, rep.Failures, 1)
	assert.Equal(t, "p3", rep.Failures[0].ID)
	assert.Equal(t, "embed", rep.Failures[0].Stage)

	ctx := context.Background()
	for _, id := range []string{"p1", "p2", "p4", "p5"} {
		emb, err := st.Embeddings(ctx, id)
		require.NoError(t, err)
		assert.Len(t, emb[catalog.SpaceTextVoyage], 4, id)
	}
	emb, err := st.Embeddings(ctx, "p3")
	require.NoError(t, err)
	assert.Empty(t, emb)
}

func TestRun_IsIdempotent(t *testing.T) {
	st := memory.New(fiveProducts()...)
	ix, _ := newTestIndexer(t, st, embeddingstest.New(4))
	ctx := context.Background()

	_, err := ix.Run(ctx, 2, 0)
	require.NoError(t, err)
	first, err := st.Embeddings(ctx, "p1")
	require.NoError(t, err)

	rep, err := ix.Run(ctx, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, rep.Indexed)
	second, err := st.Embeddings(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, second, 1)
}

func TestRun_EmbedsDocumentsWithDocumentRole(t *testing.T) {
	st := memory.New(fiveProducts()...)
	p := embeddingstest.New(4)
	ix, _ := newTestIndexer(t, st, p)

	_, err := ix.Run(context.Background(), 10, 0)
	require.NoError(t, err)
	calls := p.Calls()
	require.Len(t, calls, 5)
	for _, c := range calls {
		assert.Equal(t, embeddings.RoleDocument, c.Role)
	}
	assert.Equal(t, "name: Bread - description: fresh Bread - ingredients: Bread - allergens: ", calls[0].Parts[0].Text)
}

func TestRun_CooldownOnlyBetweenPages(t *testing.T) {
	st := memory.New(fiveProducts()...)
	ix, rec := newTestIndexer(t, st, embeddingstest.New(4))

	_, err := ix.Run(context.Background(), 2, 400*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{400 * time.Millisecond, 400 * time.Millisecond}, rec.calls)

	rec.calls = nil
	_, err = ix.Run(context.Background(), 5, 400*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, rec.calls)
}

func TestRun_CancelDuringCooldown(t *testing.T) {
	st := memory.New(fiveProducts()...)
	ix, rec := newTestIndexer(t, st, embeddingstest.New(4))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec.cancel = cancel

	rep, err := ix.Run(ctx, 2, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, rep.Indexed)

	emb, err := st.Embeddings(context.Background(), "p2")
	require.NoError(t, err)
	assert.NotEmpty(t, emb, "writes committed before cancellation stay valid")
}

func TestRun_RealCooldownHonorsContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := sleepCtx(ctx, time.Minute)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

type failingPages struct {
	*memory.Store
	failAt int
}

func (f failingPages) Find(ctx context.Context, flt catalog.Filter, proj catalog.Projection, skip, limit int) ([]catalog.ProductRecord, error) {
	if skip == f.failAt {
		return nil, model.NewStoreError("find", errors.New("connection reset"))
	}
	return f.Store.Find(ctx, flt, proj, skip, limit)
}

func TestRun_PageReadFailureAborts(t *testing.T) {
	st := failingPages{Store: memory.New(fiveProducts()...), failAt: 2}
	ix, _ := newTestIndexer(t, st, embeddingstest.New(4))

	rep, err := ix.Run(context.Background(), 2, 0)
	require.Error(t, err)
	assert.True(t, model.IsStoreError(err))
	assert.Equal(t, 2, rep.Indexed)
	assert.Equal(t, 1, rep.Pages)
}

type failingUpdate struct {
	*memory.Store
	id string
}

func (f failingUpdate) Update(ctx context.Context, id string, emb catalog.Embeddings) error {
	if id == f.id {
		return model.NewStoreError("update", errors.New("write conflict"))
	}
	return f.Store.Update(ctx, id, emb)
}

func TestRun_StoreUpdateFailureIsScopedToRecord(t *testing.T) {
	st := failingUpdate{Store: memory.New(fiveProducts()...), id: "p4"}
	ix, _ := newTestIndexer(t, st, embeddingstest.New(4))

	rep, err := ix.Run(context.Background(), 3, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, rep.Indexed)
	require.Len(t, rep.Failures, 1)
	assert.Equal(t, Failure{ID: "p4", Stage: "update", Error: rep.Failures[0].Error}, rep.Failures[0])
}

func TestRun_EmptyCatalogAndBadBatch(t *testing.T) {
	ix, rec := newTestIndexer(t, memory.New(), embeddingstest.New(4))
	rep, err := ix.Run(context.Background(), 10, time.Second)
	require.NoError(t, err)
	assert.Zero(t, rep.Pages)
	assert.Empty(t, rec.calls)

	_, err = ix.Run(context.Background(), 0, 0)
	assert.True(t, model.IsInputError(err))
}
