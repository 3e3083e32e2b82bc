package embeddings

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mercasmart/catalog-search/internal/catalog"
	"github.com/mercasmart/catalog-search/internal/model"
)

type recordingProvider struct {
	textCalls  []Role
	multiCalls []Role
}

func (r *recordingProvider) Name() string   { return "rec" }
func (r *recordingProvider) Dimension() int { return 2 }
func (r *recordingProvider) EmbedText(_ context.Context, _ string, role Role) ([]float32, error) {
	r.textCalls = append(r.textCalls, role)
	return []float32{1, 0}, nil
}
func (r *recordingProvider) EmbedMultimodal(_ context.Context, _ []Part, role Role) ([]float32, error) {
	r.multiCalls = append(r.multiCalls, role)
	return []float32{0, 1}, nil
}

func TestEmbedDispatch(t *testing.T) {
	p := &recordingProvider{}
	ctx := context.Background()

	_, err := Embed(ctx, p, []Part{TextPart("soup")}, RoleQuery)
	require.NoError(t, err)
	_, err = Embed(ctx, p, []Part{TextPart("caption"), ImagePart(Image{Data: []byte{1}, MIMEType: "image/png"})}, RoleDocument)
	require.NoError(t, err)
	_, err = Embed(ctx, p, []Part{ImagePart(Image{Data: []byte{1}, MIMEType: "image/png"})}, RoleQuery)
	require.NoError(t, err)

	assert.Equal(t, []Role{RoleQuery}, p.textCalls)
	assert.Equal(t, []Role{RoleDocument, RoleQuery}, p.multiCalls)
}

func TestValidateParts(t *testing.T) {
	assert.True(t, model.IsInputError(ValidateParts(nil)))
	assert.True(t, model.IsInputError(ValidateParts([]Part{TextPart("  ")})))
	assert.True(t, model.IsInputError(ValidateParts([]Part{ImagePart(Image{Data: []byte{1}, MIMEType: "image/bmp"})})))
	assert.True(t, model.IsInputError(ValidateParts([]Part{ImagePart(Image{MIMEType: "image/png"})})))
	assert.NoError(t, ValidateParts([]Part{TextPart("a"), ImagePart(Image{Data: []byte{1}, MIMEType: "image/jpeg"})}))
	assert.True(t, model.IsInputError(ValidateText("")))
}

func TestCheckDimension(t *testing.T) {
	assert.NoError(t, CheckDimension("p", 2, []float32{1, 2}))
	err := CheckDimension("p", 3, []float32{1, 2})
	assert.True(t, model.IsPermanent(err))
}

func TestRegistry(t *testing.T) {
	p := &recordingProvider{}
	r, err := NewRegistry(map[catalog.VectorSpace]Provider{catalog.SpaceTextVoyage: p})
	require.NoError(t, err)

	got, err := r.For(catalog.SpaceTextVoyage)
	require.NoError(t, err)
	assert.Same(t, p, got)
	_, err = r.For(catalog.SpaceImageVoyage)
	assert.Error(t, err)
	assert.Equal(t, map[catalog.VectorSpace]int{catalog.SpaceTextVoyage: 2}, r.Dimensions())

	_, err = NewRegistry(map[catalog.VectorSpace]Provider{"bogus": p})
	assert.Error(t, err)
}

func TestProviderHealthChecker_FallbackEmbed(t *testing.T) {
	p := &recordingProvider{}
	hc := NewProviderHealthChecker("voyage", p, zerolog.Nop(), time.Second)
	hc.Check(context.Background())
	assert.True(t, hc.IsHealthy())
	assert.Equal(t, "embedder:voyage", hc.Name())
	assert.Equal(t, []Role{RoleQuery}, p.textCalls)
}
