// Package embeddings defines the provider abstraction shared by indexing and retrieval.
package embeddings

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mercasmart/catalog-search/internal/catalog"
	"github.com/mercasmart/catalog-search/internal/model"
)

// Role tells asymmetric providers whether the input is a query or a document.
type Role string

const (
	RoleQuery    Role = "query"
	RoleDocument Role = "document"
)

// Image is raw image bytes with their MIME type.
type Image struct {
	Data     []byte
	MIMEType string
}

// Part is one element of a multimodal input: text or an image.
type Part struct {
	Text  string
	Image *Image
}

// TextPart and ImagePart build parts.
func TextPart(s string) Part   { return Part{Text: s} }
func ImagePart(img Image) Part { return Part{Image: &img} }
func (p Part) IsImage() bool   { return p.Image != nil }

// Provider produces fixed-dimension vectors. Adapters retry transient
// failures themselves; callers never retry.
type Provider interface {
	Name() string
	Dimension() int
	EmbedText(ctx context.Context, text string, role Role) ([]float32, error)
	EmbedMultimodal(ctx context.Context, parts []Part, role Role) ([]float32, error)
}

var supportedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

// ValidateText rejects empty input.
func ValidateText(text string) error {
	if strings.TrimSpace(text) == "" {
		return model.NewInputError("text", "must not be empty")
	}
	return nil
}

// ValidateParts rejects empty inputs and unsupported image formats.
func ValidateParts(parts []Part) error {
	if len(parts) == 0 {
		return model.NewInputError("parts", "must not be empty")
	}
	for i, p := range parts {
		if p.IsImage() {
			if len(p.Image.Data) == 0 {
				return model.NewInputError("image", fmt.Sprintf("part %d has no data", i))
			}
			if !supportedImageTypes[p.Image.MIMEType] {
				return model.NewInputError("image", fmt.Sprintf("unsupported format %q", p.Image.MIMEType))
			}
			continue
		}
		if strings.TrimSpace(p.Text) == "" {
			return model.NewInputError("parts", fmt.Sprintf("part %d is empty", i))
		}
	}
	return nil
}

// CheckDimension rejects a provider response whose length differs from the
// configured dimension; such a vector would corrupt its space.
func CheckDimension(provider string, want int, vec []float32) error {
	if want > 0 && len(vec) != want {
		return model.NewPermanentError(provider, fmt.Errorf("expected %d dimensions, got %d", want, len(vec)))
	}
	return nil
}

// Embed sends a single text part to EmbedText and any other input to EmbedMultimodal.
func Embed(ctx context.Context, p Provider, input []Part, role Role) ([]float32, error) {
	if len(input) == 1 && !input[0].IsImage() {
		return p.EmbedText(ctx, input[0].Text, role)
	}
	return p.EmbedMultimodal(ctx, input, role)
}

// Registry binds exactly one provider to each vector space. It is read-only
// after construction.
type Registry struct {
	bySpace map[catalog.VectorSpace]Provider
}

// NewRegistry validates the bindings.
func NewRegistry(bindings map[catalog.VectorSpace]Provider) (*Registry, error) {
	r := &Registry{bySpace: make(map[catalog.VectorSpace]Provider, len(bindings))}
	for sp, p := range bindings {
		if _, err := catalog.ParseVectorSpace(string(sp)); err != nil {
			return nil, err
		}
		if p == nil {
			return nil, fmt.Errorf("nil provider for %s", sp)
		}
		r.bySpace[sp] = p
	}
	return r, nil
}

// For returns the provider bound to space.
func (r *Registry) For(space catalog.VectorSpace) (Provider, error) {
	p, ok := r.bySpace[space]
	if !ok {
		return nil, fmt.Errorf("no embedding provider configured for %s", space)
	}
	return p, nil
}

// Spaces lists bound spaces in stable order.
func (r *Registry) Spaces() []catalog.VectorSpace {
	out := make([]catalog.VectorSpace, 0, len(r.bySpace))
	for sp := range r.bySpace {
		out = append(out, sp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Dimensions reports the configured dimension of every bound space.
func (r *Registry) Dimensions() map[catalog.VectorSpace]int {
	out := make(map[catalog.VectorSpace]int, len(r.bySpace))
	for sp, p := range r.bySpace {
		out[sp] = p.Dimension()
	}
	return out
}
