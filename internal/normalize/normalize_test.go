package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mercasmart/catalog-search/internal/catalog"
)

func TestStripTags(t *testing.T) {
	cases := map[string]string{
		"<p>Tomate <strong>(60%)</strong>, agua</p>": "Tomate (60%), agua",
		"plain":                 "plain",
		"":                      "",
		"<st<p>rong>x</strong>": "x",
		"<em>kept</em>":         "<em>kept</em>",
	}
	for in, want := range cases {
		got := StripTags(in)
		assert.Equal(t, want, got, in)
		assert.Equal(t, got, StripTags(got), "not idempotent for %q", in)
	}
}

func TestDocumentFieldOrder(t *testing.T) {
	n, err := New("en")
	require.NoError(t, err)
	r := catalog.ProductRecord{
		ID: "1", DisplayName: "Soup", LegalName: "Tomato soup", Description: "<p>warm soup</p>",
		Ingredients: "tomato, <strong>celery</strong>", Allergens: "<strong>celery</strong>",
	}
	want := "name: Soup Tomato soup - description: warm soup - ingredients: tomato, celery - allergens: celery"
	assert.Equal(t, want, n.Document(r))
	for i := 0; i < 5; i++ {
		assert.Equal(t, want, n.Document(r))
	}
	// section order is fixed regardless of how callers list them
	assert.Equal(t, "name: Soup Tomato soup - ingredients: tomato, celery",
		n.Text(r, []Section{SectionIngredients, SectionName}))
}

func TestMissingFields(t *testing.T) {
	n, err := New("en")
	require.NoError(t, err)
	got := n.Document(catalog.ProductRecord{ID: "1", DisplayName: "Cake"})
	assert.Equal(t, "name: Cake - description:  - ingredients:  - allergens: ", got)
}

func TestSpanishLabels(t *testing.T) {
	n, err := New("es")
	require.NoError(t, err)
	r := catalog.ProductRecord{DisplayName: "Sopa", Ingredients: "<p>agua</p>"}
	assert.Equal(t, "nombre: Sopa - ingredientes: agua", n.Rerank(r))

	_, err = New("fr")
	assert.Error(t, err)
}
