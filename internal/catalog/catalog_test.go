package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorSpaceLayout(t *testing.T) {
	cases := []struct {
		space VectorSpace
		field string
		index string
	}{
		{SpaceTextOpenAI, "embedding", "vector_index"},
		{SpaceTextVoyage, "vo_embedding", "vo_vector_index"},
		{SpaceImageVoyage, "vo_img_embedding", "vo_image_index"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.field, tc.space.Field())
		assert.Equal(t, tc.index, tc.space.Index())
		sp, ok := SpaceForField(tc.field)
		require.True(t, ok)
		assert.Equal(t, tc.space, sp)
	}
	_, err := ParseVectorSpace("text-cohere")
	assert.Error(t, err)
}

func TestProjectionApply(t *testing.T) {
	r := ProductRecord{ID: "1", DisplayName: "Soup", Description: "warm", Ingredients: "water", BulkPrice: "1.20"}
	got := Projection{FieldDisplayName, FieldBulkPrice}.Apply(r)
	assert.Equal(t, ProductRecord{ID: "1", DisplayName: "Soup", BulkPrice: "1.20"}, got)
	assert.Equal(t, r, Projection(nil).Apply(r))
}

func TestVectorQueryValidate(t *testing.T) {
	q := NewVectorQuery(SpaceTextVoyage, []float32{1}, 150, 5, nil)
	require.NoError(t, q.Validate())

	bad := q
	bad.NumCandidates = 4
	assert.Error(t, bad.Validate())

	bad = q
	bad.Vector = nil
	assert.Error(t, bad.Validate())

	bad = q
	bad.Path = "nope"
	assert.Error(t, bad.Validate())
}

func TestSortHits(t *testing.T) {
	hits := []Hit{
		{Record: ProductRecord{ID: "b"}, Score: 0.5},
		{Record: ProductRecord{ID: "c"}, Score: 0.9},
		{Record: ProductRecord{ID: "a"}, Score: 0.5},
	}
	SortHits(hits)
	assert.Equal(t, []string{"c", "a", "b"}, []string{hits[0].Record.ID, hits[1].Record.ID, hits[2].Record.ID})
}

func TestEmbeddingsValidate(t *testing.T) {
	assert.Error(t, Embeddings{}.Validate())
	assert.Error(t, Embeddings{"nope": {1}}.Validate())
	assert.Error(t, Embeddings{SpaceTextVoyage: nil}.Validate())
	assert.NoError(t, Embeddings{SpaceTextVoyage: {1}}.Validate())
	recs := Embeddings{SpaceImageVoyage: {2}, SpaceTextOpenAI: {1}}.Records("x")
	require.Len(t, recs, 2)
	assert.Equal(t, SpaceTextOpenAI, recs[0].Space)
}
