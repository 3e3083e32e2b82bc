package catalog_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mercasmart/catalog-search/internal/catalog"
	"github.com/mercasmart/catalog-search/internal/catalog/memory"
)

func TestImport(t *testing.T) {
	in := `{"id":"a","display_name":"Soup","description":"<p>warm</p>","photos":["u1","u2"]}

{"id":"b","display_name":"Cake","bulk_price":"2.50"}
{"id":"c","display_name":"Bread"}
`
	st := memory.New()
	ctx := context.Background()
	n, err := catalog.Import(ctx, st, strings.NewReader(in), 2)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	recs, err := st.Find(ctx, catalog.Filter{IDs: []string{"a", "b"}}, nil, 0, 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, []string{"u1", "u2"}, recs[0].Photos)
	assert.Equal(t, "2.50", recs[1].BulkPrice)
}

func TestImport_Errors(t *testing.T) {
	st := memory.New()
	ctx := context.Background()

	n, err := catalog.Import(ctx, st, strings.NewReader("{\"id\":\"a\"}\n{not json}\n"), 10)
	assert.ErrorContains(t, err, "line 2")
	assert.Zero(t, n)

	_, err = catalog.Import(ctx, st, strings.NewReader(`{"display_name":"x"}`), 10)
	assert.ErrorContains(t, err, "missing id")
}
