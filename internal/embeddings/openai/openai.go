// Package openai adapts the OpenAI embeddings API. The text-embedding-ada-002
// model is symmetric, so the role is accepted but not forwarded.
package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/mercasmart/catalog-search/internal/embeddings"
	"github.com/mercasmart/catalog-search/internal/model"
	"github.com/mercasmart/catalog-search/internal/platform/retry"
)

const providerName = "openai"

// Config holds the adapter settings.
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	Dimension int
	Timeout   time.Duration
	Retry     retry.Policy
}

// Provider implements embeddings.Provider for text only.
type Provider struct {
	client *resty.Client
	model  string
	dim    int
	policy retry.Policy
	log    zerolog.Logger
}

// New builds the adapter.
func New(cfg Config, log zerolog.Logger) *Provider {
	c := retry.NewClient(cfg.BaseURL, cfg.Timeout).SetAuthToken(cfg.APIKey)
	return &Provider{
		client: c,
		model:  cfg.Model,
		dim:    cfg.Dimension,
		policy: cfg.Retry,
		log:    log.With().Str("component", "embeddings").Str("provider", providerName).Logger(),
	}
}

func (p *Provider) Name() string   { return providerName }
func (p *Provider) Dimension() int { return p.dim }

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// EmbedText embeds text.
func (p *Provider) EmbedText(ctx context.Context, text string, _ embeddings.Role) ([]float32, error) {
	if err := embeddings.ValidateText(text); err != nil {
		return nil, err
	}
	return retry.Do(ctx, p.policy, p.log, func(ctx context.Context) ([]float32, error) {
		var out embedResponse
		resp, err := p.client.R().
			SetContext(ctx).
			SetBody(embedRequest{Model: p.model, Input: []string{text}}).
			Post("/embeddings")
		if err := retry.Classify(ctx, providerName, resp, err); err != nil {
			return nil, err
		}
		if err := retry.Decode(providerName, resp, &out); err != nil {
			return nil, err
		}
		if len(out.Data) == 0 {
			return nil, model.NewTransientError(providerName, fmt.Errorf("empty embeddings response"))
		}
		vec := make([]float32, len(out.Data[0].Embedding))
		for i, v := range out.Data[0].Embedding {
			vec[i] = float32(v)
		}
		if err := embeddings.CheckDimension(providerName, p.dim, vec); err != nil {
			return nil, err
		}
		return vec, nil
	})
}

// EmbedMultimodal accepts text-only parts, joined by newlines. Images are rejected.
func (p *Provider) EmbedMultimodal(ctx context.Context, parts []embeddings.Part, role embeddings.Role) ([]float32, error) {
	if err := embeddings.ValidateParts(parts); err != nil {
		return nil, err
	}
	texts := make([]string, 0, len(parts))
	for _, part := range parts {
		if part.IsImage() {
			return nil, model.NewInputError("image", "openai text embeddings do not accept images")
		}
		texts = append(texts, part.Text)
	}
	return p.EmbedText(ctx, strings.Join(texts, "\n"), role)
}

// HealthPing implements health.HealthPinger by looking up the configured model.
func (p *Provider) HealthPing(ctx context.Context) error {
	resp, err := p.client.R().SetContext(ctx).Get("/models/" + p.model)
	return retry.Classify(ctx, providerName, resp, err)
}
