// Package embeddingstest provides a scripted embeddings.Provider for tests.
package embeddingstest

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"

	"github.com/mercasmart/catalog-search/internal/embeddings"
)

// Call is one recorded provider invocation.
type Call struct {
	Role  embeddings.Role
	Parts []embeddings.Part
}

// Provider returns scripted vectors. Texts without a scripted vector get a
// deterministic one derived from the text, so repeated calls agree.
type Provider struct {
	NameValue string
	Dim       int
	// Vectors maps an exact input text to its vector.
	Vectors map[string][]float32
	// FailOn maps a substring of the input text to the error returned.
	FailOn map[string]error

	mu    sync.Mutex
	calls []Call
}

// New returns a provider of dimension dim.
func New(dim int) *Provider {
	return &Provider{NameValue: "fake", Dim: dim, Vectors: map[string][]float32{}, FailOn: map[string]error{}}
}

func (p *Provider) Name() string   { return p.NameValue }
func (p *Provider) Dimension() int { return p.Dim }

func (p *Provider) EmbedText(ctx context.Context, text string, role embeddings.Role) ([]float32, error) {
	if err := embeddings.ValidateText(text); err != nil {
		return nil, err
	}
	return p.EmbedMultimodal(ctx, []embeddings.Part{embeddings.TextPart(text)}, role)
}

func (p *Provider) EmbedMultimodal(ctx context.Context, parts []embeddings.Part, role embeddings.Role) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := embeddings.ValidateParts(parts); err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.calls = append(p.calls, Call{Role: role, Parts: parts})
	p.mu.Unlock()

	var texts []string
	for _, part := range parts {
		if part.IsImage() {
			texts = append(texts, "image:"+string(part.Image.Data))
			continue
		}
		texts = append(texts, part.Text)
	}
	key := strings.Join(texts, "\n")
	for sub, err := range p.FailOn {
		if strings.Contains(key, sub) {
			return nil, err
		}
	}
	if v, ok := p.Vectors[key]; ok {
		return append([]float32(nil), v...), nil
	}
	return derive(key, p.Dim), nil
}

// Calls returns a copy of the recorded invocations.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}

func derive(s string, dim int) []float32 {
	out := make([]float32, dim)
	for i := range out {
		h := fnv.New32a()
		_, _ = h.Write([]byte{byte(i)})
		_, _ = h.Write([]byte(s))
		out[i] = float32(h.Sum32()%2000)/1000 - 1
	}
	return out
}
