package retrieval

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mercasmart/catalog-search/internal/catalog"
	"github.com/mercasmart/catalog-search/internal/catalog/memory"
	"github.com/mercasmart/catalog-search/internal/embeddings"
	"github.com/mercasmart/catalog-search/internal/embeddings/embeddingstest"
	"github.com/mercasmart/catalog-search/internal/generate"
	"github.com/mercasmart/catalog-search/internal/model"
	"github.com/mercasmart/catalog-search/internal/normalize"
	"github.com/mercasmart/catalog-search/internal/rerank"
)

type stubReranker struct {
	ranked []rerank.Ranked
	err    error
	docs   []string
	topK   int
}

func (s *stubReranker) Rerank(_ context.Context, _ string, docs []string, topK int) ([]rerank.Ranked, error) {
	s.docs, s.topK = docs, topK
	return s.ranked, s.err
}

type stubGenerator struct {
	prompt string
	reply  string
	err    error
}

func (g *stubGenerator) Generate(_ context.Context, _, prompt string) (string, error) {
	g.prompt = prompt
	return g.reply, g.err
}

// recordingStore captures the last vector query.
type recordingStore struct {
	*memory.Store
	last catalog.VectorQuery
	err  error
}

func (r *recordingStore) VectorSearch(ctx context.Context, q catalog.VectorQuery) ([]catalog.Hit, error) {
	r.last = q
	if r.err != nil {
		return nil, r.err
	}
	return r.Store.VectorSearch(ctx, q)
}

type fixture struct {
	store    *recordingStore
	provider *embeddingstest.Provider
	reranker *stubReranker
	gen      *stubGenerator
	svc      *Service
}

func newFixture(t *testing.T, records ...catalog.ProductRecord) *fixture {
	t.Helper()
	st := &recordingStore{Store: memory.New(records...)}
	p := embeddingstest.New(2)
	reg, err := embeddings.NewRegistry(map[catalog.VectorSpace]embeddings.Provider{
		catalog.SpaceTextOpenAI:  p,
		catalog.SpaceTextVoyage:  p,
		catalog.SpaceImageVoyage: p,
	})
	require.NoError(t, err)
	n, err := normalize.New("en")
	require.NoError(t, err)
	f := &fixture{store: st, provider: p, reranker: &stubReranker{}, gen: &stubGenerator{reply: "**Soup** it is"}}
	f.svc = NewService(Deps{
		Registry:     reg,
		Store:        st,
		Reranker:     f.reranker,
		Answerer:     generate.NewAnswerer(f.gen, "euros"),
		Normalizer:   n,
		ImageCaption: "this is a photo of a dish",
	}, zerolog.Nop())
	return f
}

func (f *fixture) embed(t *testing.T, id string, space catalog.VectorSpace, v ...float32) {
	t.Helper()
	require.NoError(t, f.store.Update(context.Background(), id, catalog.Embeddings{space: v}))
}

func soupAndCake(t *testing.T) *fixture {
	f := newFixture(t,
		catalog.ProductRecord{ID: "a", DisplayName: "Soup", Description: "warm soup", Ingredients: "water"},
		catalog.ProductRecord{ID: "b", DisplayName: "Cake", Description: "sweet cake", Ingredients: "sugar"},
	)
	f.embed(t, "a", catalog.SpaceTextVoyage, 1, 0.1)
	f.embed(t, "b", catalog.SpaceTextVoyage, 0.1, 1)
	f.embed(t, "a", catalog.SpaceTextOpenAI, 1, 0.1)
	f.embed(t, "b", catalog.SpaceTextOpenAI, 0.1, 1)
	f.provider.Vectors["warm"] = []float32{1, 0}
	return f
}

func TestPolicyTable(t *testing.T) {
	cases := []struct {
		sel   ProviderSelection
		space catalog.VectorSpace
		nc    int
		limit int
	}{
		{OpenAIText, catalog.SpaceTextOpenAI, 150, 5},
		{VoyageText, catalog.SpaceTextVoyage, 150, 5},
		{VoyageTextRerank, catalog.SpaceTextVoyage, 1000, 50},
		{VoyageImage, catalog.SpaceImageVoyage, 250, 10},
	}
	for _, c := range cases {
		t.Run(string(c.sel), func(t *testing.T) {
			f := soupAndCake(t)
			f.embed(t, "a", catalog.SpaceImageVoyage, 1, 0)
			req := QueryRequest{Text: "warm", Provider: c.sel}
			if c.sel == VoyageImage {
				req = QueryRequest{Provider: c.sel, Image: &embeddings.Image{Data: []byte("jpg"), MIMEType: "image/jpeg"}}
			}
			_, err := f.svc.Search(context.Background(), req)
			require.NoError(t, err)
			assert.Equal(t, c.space.Index(), f.store.last.Index)
			assert.Equal(t, c.space.Field(), f.store.last.Path)
			assert.Equal(t, c.nc, f.store.last.NumCandidates)
			assert.Equal(t, c.limit, f.store.last.Limit)
			assert.Equal(t, c.sel == VoyageTextRerank, f.store.last.Projection.Has(catalog.FieldIngredients))
			assert.False(t, f.store.last.Projection.Has(catalog.FieldPhotos))
		})
	}
}

func TestParseProviderSelection(t *testing.T) {
	for in, want := range map[string]ProviderSelection{
		"openai": OpenAIText, "voyageai": VoyageText, "voyageai_reranking": VoyageTextRerank,
		"voyage-image": VoyageImage, "openai-text": OpenAIText,
	} {
		got, err := ParseProviderSelection(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseProviderSelection("cohere")
	assert.True(t, model.IsInputError(err))
}

func TestSearch_SoupBeforeCake(t *testing.T) {
	for _, sel := range []ProviderSelection{OpenAIText, VoyageText} {
		f := soupAndCake(t)
		res, err := f.svc.Search(context.Background(), QueryRequest{Text: "warm", Provider: sel})
		require.NoError(t, err)
		require.Len(t, res.Items, 2)
		assert.Equal(t, "a", res.Items[0].Record.ID)
		assert.Equal(t, "b", res.Items[1].Record.ID)
		assert.Greater(t, res.Items[0].SimilarityScore, res.Items[1].SimilarityScore)
		assert.Empty(t, res.Items[0].Record.Ingredients, "ingredients are only projected for reranking")
		assert.False(t, res.Reranked)
		assert.Empty(t, res.Degraded)
	}
}

func TestSearch_QueryRole(t *testing.T) {
	f := soupAndCake(t)
	_, err := f.svc.Search(context.Background(), QueryRequest{Text: "warm", Provider: VoyageText})
	require.NoError(t, err)
	calls := f.provider.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, embeddings.RoleQuery, calls[0].Role)
}

func TestSearch_Rerank(t *testing.T) {
	f := soupAndCake(t)
	f.reranker.ranked = []rerank.Ranked{{Index: 1, Score: 0.8}, {Index: 0, Score: 0.3}}
	res, err := f.svc.Search(context.Background(), QueryRequest{Text: "warm", Provider: VoyageTextRerank})
	require.NoError(t, err)
	assert.True(t, res.Reranked)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "b", res.Items[0].Record.ID)
	require.NotNil(t, res.Items[0].RelevanceScore)
	assert.InDelta(t, 0.8, *res.Items[0].RelevanceScore, 1e-9)
	assert.Equal(t, []string{
		"name: Soup - ingredients: water",
		"name: Cake - ingredients: sugar",
	}, f.reranker.docs)
	assert.Equal(t, RerankTopK, f.reranker.topK)
}

func manyProducts(t *testing.T, n int) *fixture {
	recs := make([]catalog.ProductRecord, 0, n)
	for i := 0; i < n; i++ {
		recs = append(recs, catalog.ProductRecord{ID: fmt.Sprintf("p%02d", i), DisplayName: fmt.Sprintf("Item %d", i)})
	}
	f := newFixture(t, recs...)
	for i := 0; i < n; i++ {
		f.embed(t, fmt.Sprintf("p%02d", i), catalog.SpaceTextVoyage, 1, float32(i)/10)
	}
	f.provider.Vectors["warm"] = []float32{1, 0}
	return f
}

func TestSearch_RerankFailureDegrades(t *testing.T) {
	f := manyProducts(t, 8)
	f.reranker.err = model.NewPermanentError("voyage", errors.New("401"))

	res, err := f.svc.Search(context.Background(), QueryRequest{Text: "warm", Provider: VoyageTextRerank})
	require.NoError(t, err)
	assert.False(t, res.Reranked)
	assert.Equal(t, []string{FeatureRerank}, res.Degraded)
	require.Len(t, res.Items, RerankTopK)
	for i, it := range res.Items {
		assert.Equal(t, fmt.Sprintf("p%02d", i), it.Record.ID)
		assert.Nil(t, it.RelevanceScore)
	}
}

func TestSearch_RerankTrimsToTopK(t *testing.T) {
	f := manyProducts(t, 8)
	for i := 7; i >= 0; i-- {
		f.reranker.ranked = append(f.reranker.ranked, rerank.Ranked{Index: i, Score: float64(i)})
	}
	res, err := f.svc.Search(context.Background(), QueryRequest{Text: "warm", Provider: VoyageTextRerank})
	require.NoError(t, err)
	require.Len(t, res.Items, RerankTopK)
	assert.Equal(t, "p07", res.Items[0].Record.ID)
}

func TestSearch_Generation(t *testing.T) {
	f := soupAndCake(t)
	res, err := f.svc.Search(context.Background(), QueryRequest{Text: "warm", Provider: VoyageText, Generate: true})
	require.NoError(t, err)
	assert.Equal(t, "<p><strong>Soup</strong> it is</p>\n", res.Answer)
	assert.Contains(t, f.gen.prompt, "Soup - warm soup\n\nCake - sweet cake\nanswer the query: warm")
	assert.Empty(t, res.Degraded)
}

func TestSearch_GenerationFailureDegrades(t *testing.T) {
	f := soupAndCake(t)
	f.gen.err = fmt.Errorf("%w: chat", model.ErrRetrievalUnavailable)
	res, err := f.svc.Search(context.Background(), QueryRequest{Text: "warm", Provider: VoyageText, Generate: true})
	require.NoError(t, err)
	assert.Empty(t, res.Answer)
	assert.Equal(t, []string{FeatureGeneration}, res.Degraded)
	assert.Len(t, res.Items, 2)
}

func TestSearch_ImageQuery(t *testing.T) {
	f := soupAndCake(t)
	f.embed(t, "a", catalog.SpaceImageVoyage, 0, 1)
	f.embed(t, "b", catalog.SpaceImageVoyage, 1, 0)
	img := embeddings.Image{Data: []byte("jpg"), MIMEType: "image/jpeg"}
	f.provider.Vectors["this is a photo of a dish\nimage:jpg"] = []float32{1, 0}

	res, err := f.svc.Search(context.Background(), QueryRequest{Provider: VoyageImage, Image: &img})
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "b", res.Items[0].Record.ID)
	calls := f.provider.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, embeddings.RoleQuery, calls[0].Role)
	require.Len(t, calls[0].Parts, 2)
	assert.Equal(t, "this is a photo of a dish", calls[0].Parts[0].Text)
}

func TestSearch_Errors(t *testing.T) {
	ctx := context.Background()

	f := soupAndCake(t)
	_, err := f.svc.Search(ctx, QueryRequest{Text: "  ", Provider: VoyageText})
	assert.True(t, model.IsInputError(err))

	_, err = f.svc.Search(ctx, QueryRequest{Text: "warm", Provider: "bing"})
	assert.True(t, model.IsInputError(err))

	_, err = f.svc.Search(ctx, QueryRequest{Provider: VoyageImage})
	assert.True(t, model.IsInputError(err))

	_, err = f.svc.Search(ctx, QueryRequest{Text: "warm", Provider: VoyageText, Image: &embeddings.Image{Data: []byte("x"), MIMEType: "image/png"}})
	assert.True(t, model.IsInputError(err))

	f.provider.FailOn["warm"] = fmt.Errorf("%w: voyage", model.ErrRetrievalUnavailable)
	_, err = f.svc.Search(ctx, QueryRequest{Text: "warm", Provider: VoyageText})
	assert.ErrorIs(t, err, model.ErrRetrievalUnavailable)
	assert.Len(t, f.provider.Calls(), 1, "no retries above the adapter")

	f = soupAndCake(t)
	f.store.err = errors.New("atlas down")
	_, err = f.svc.Search(ctx, QueryRequest{Text: "warm", Provider: VoyageText})
	assert.True(t, model.IsStoreError(err))
}

func TestSearch_UnboundSpace(t *testing.T) {
	reg, err := embeddings.NewRegistry(map[catalog.VectorSpace]embeddings.Provider{
		catalog.SpaceTextVoyage: embeddingstest.New(2),
	})
	require.NoError(t, err)
	svc := NewService(Deps{Registry: reg, Store: memory.New()}, zerolog.Nop())
	_, err = svc.Search(context.Background(), QueryRequest{Text: "warm", Provider: OpenAIText})
	assert.ErrorIs(t, err, model.ErrRetrievalUnavailable)
}

func TestSearch_MissingOptionalStagesDegrade(t *testing.T) {
	f := soupAndCake(t)
	f.svc.deps.Reranker = nil
	f.svc.deps.Answerer = nil
	res, err := f.svc.Search(context.Background(), QueryRequest{Text: "warm", Provider: VoyageTextRerank, Generate: true})
	require.NoError(t, err)
	assert.Equal(t, []string{FeatureRerank, FeatureGeneration}, res.Degraded)
	assert.Len(t, res.Items, 2)
}
