package indexjob

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mercasmart/catalog-search/internal/catalog"
	"github.com/mercasmart/catalog-search/internal/catalog/memory"
	"github.com/mercasmart/catalog-search/internal/config"
	"github.com/mercasmart/catalog-search/internal/embeddings"
	"github.com/mercasmart/catalog-search/internal/embeddings/embeddingstest"
)

func TestRunWith(t *testing.T) {
	cfg := config.NewForTesting()
	st := memory.New(
		catalog.ProductRecord{ID: "a", DisplayName: "Soup"},
		catalog.ProductRecord{ID: "b", DisplayName: "Cake"},
		catalog.ProductRecord{ID: "c", DisplayName: "Bread"},
	)
	reg, err := embeddings.NewRegistry(map[catalog.VectorSpace]embeddings.Provider{
		catalog.SpaceTextVoyage: embeddingstest.New(3),
	})
	require.NoError(t, err)

	rep, err := RunWith(context.Background(), cfg, zerolog.Nop(), st, reg, catalog.SpaceTextVoyage,
		Options{BatchSize: 2, Cooldown: durationPtr(time.Millisecond), EnsureSchema: true})
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Indexed)
	assert.Equal(t, 2, rep.Pages)

	emb, err := st.Embeddings(context.Background(), "c")
	require.NoError(t, err)
	assert.Len(t, emb[catalog.SpaceTextVoyage], 3)
}

func durationPtr(d time.Duration) *time.Duration { return &d }

func TestRunWith_CooldownOverride(t *testing.T) {
	newDeps := func() (*memory.Store, *embeddings.Registry) {
		reg, err := embeddings.NewRegistry(map[catalog.VectorSpace]embeddings.Provider{
			catalog.SpaceTextVoyage: embeddingstest.New(3),
		})
		require.NoError(t, err)
		return memory.New(
			catalog.ProductRecord{ID: "a", DisplayName: "Soup"},
			catalog.ProductRecord{ID: "b", DisplayName: "Cake"},
			catalog.ProductRecord{ID: "c", DisplayName: "Bread"},
		), reg
	}
	cfg := config.NewForTesting()
	cfg.IndexCooldown = time.Hour

	// An explicit zero disables the configured pause.
	st, reg := newDeps()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rep, err := RunWith(ctx, cfg, zerolog.Nop(), st, reg, catalog.SpaceTextVoyage,
		Options{BatchSize: 2, Cooldown: durationPtr(0)})
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Pages)
	assert.Equal(t, 3, rep.Indexed)

	// Without an override the configured cooldown applies.
	st, reg = newDeps()
	short, cancelShort := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancelShort()
	_, err = RunWith(short, cfg, zerolog.Nop(), st, reg, catalog.SpaceTextVoyage, Options{BatchSize: 2})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunWith_UnboundSpace(t *testing.T) {
	reg, err := embeddings.NewRegistry(map[catalog.VectorSpace]embeddings.Provider{
		catalog.SpaceTextVoyage: embeddingstest.New(3),
	})
	require.NoError(t, err)
	_, err = RunWith(context.Background(), config.NewForTesting(), zerolog.Nop(), memory.New(), reg, catalog.SpaceTextOpenAI, Options{})
	assert.Error(t, err)
}

func TestRun_RejectsUnknownSpace(t *testing.T) {
	_, err := Run(context.Background(), config.NewForTesting(), zerolog.Nop(), Options{Space: "audio"})
	assert.Error(t, err)
}
