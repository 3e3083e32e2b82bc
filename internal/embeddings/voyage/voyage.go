// Package voyage adapts the Voyage AI text, multimodal and rerank endpoints.
// Voyage embeddings are asymmetric: the role is sent as input_type.
package voyage

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/mercasmart/catalog-search/internal/embeddings"
	"github.com/mercasmart/catalog-search/internal/model"
	"github.com/mercasmart/catalog-search/internal/platform/retry"
	"github.com/mercasmart/catalog-search/internal/rerank"
)

const providerName = "voyage"

// Client is shared by the text, multimodal and rerank adapters.
type Client struct {
	http   *resty.Client
	policy retry.Policy
	log    zerolog.Logger
}

// NewClient builds a Voyage API client.
func NewClient(apiKey, baseURL string, timeout time.Duration, policy retry.Policy, log zerolog.Logger) *Client {
	return &Client{
		http:   retry.NewClient(baseURL, timeout).SetAuthToken(apiKey),
		policy: policy,
		log:    log.With().Str("component", "embeddings").Str("provider", providerName).Logger(),
	}
}

type embeddingData struct {
	Embedding []float64 `json:"embedding"`
	Index     int       `json:"index"`
}

type embedResponse struct {
	Data  []embeddingData `json:"data"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

func (c *Client) post(ctx context.Context, path string, body any, dim int) ([]float32, error) {
	return retry.Do(ctx, c.policy, c.log, func(ctx context.Context) ([]float32, error) {
		var out embedResponse
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(body).
			Post(path)
		if err := retry.Classify(ctx, providerName, resp, err); err != nil {
			return nil, err
		}
		if err := retry.Decode(providerName, resp, &out); err != nil {
			return nil, err
		}
		if len(out.Data) == 0 {
			return nil, model.NewTransientError(providerName, fmt.Errorf("empty %s response", path))
		}
		vec := make([]float32, len(out.Data[0].Embedding))
		for i, v := range out.Data[0].Embedding {
			vec[i] = float32(v)
		}
		if err := embeddings.CheckDimension(providerName, dim, vec); err != nil {
			return nil, err
		}
		c.log.Debug().Str("path", path).Int("total_tokens", out.Usage.TotalTokens).Msg("embedding created")
		return vec, nil
	})
}

// TextProvider embeds text with a voyage text model.
type TextProvider struct {
	c     *Client
	model string
	dim   int
}

// Text returns a text adapter pinned to model and dimension.
func (c *Client) Text(model string, dim int) *TextProvider {
	return &TextProvider{c: c, model: model, dim: dim}
}

func (p *TextProvider) Name() string   { return providerName + ":" + p.model }
func (p *TextProvider) Dimension() int { return p.dim }

type textRequest struct {
	Input           []string `json:"input"`
	Model           string   `json:"model"`
	InputType       string   `json:"input_type"`
	OutputDimension int      `json:"output_dimension,omitempty"`
}

func (p *TextProvider) EmbedText(ctx context.Context, text string, role embeddings.Role) ([]float32, error) {
	if err := embeddings.ValidateText(text); err != nil {
		return nil, err
	}
	req := textRequest{Input: []string{text}, Model: p.model, InputType: string(role), OutputDimension: p.dim}
	return p.c.post(ctx, "/embeddings", req, p.dim)
}

// EmbedMultimodal accepts text-only parts, joined by newlines.
func (p *TextProvider) EmbedMultimodal(ctx context.Context, parts []embeddings.Part, role embeddings.Role) ([]float32, error) {
	if err := embeddings.ValidateParts(parts); err != nil {
		return nil, err
	}
	texts := make([]string, 0, len(parts))
	for _, part := range parts {
		if part.IsImage() {
			return nil, model.NewInputError("image", "voyage text models do not accept images")
		}
		texts = append(texts, part.Text)
	}
	return p.EmbedText(ctx, strings.Join(texts, "\n"), role)
}

// MultimodalProvider embeds interleaved text and images.
type MultimodalProvider struct {
	c     *Client
	model string
	dim   int
}

// Multimodal returns a multimodal adapter pinned to model and dimension.
func (c *Client) Multimodal(model string, dim int) *MultimodalProvider {
	return &MultimodalProvider{c: c, model: model, dim: dim}
}

func (p *MultimodalProvider) Name() string   { return providerName + ":" + p.model }
func (p *MultimodalProvider) Dimension() int { return p.dim }

type contentItem struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	ImageBase64 string `json:"image_base64,omitempty"`
}

type multimodalInput struct {
	Content []contentItem `json:"content"`
}

type multimodalRequest struct {
	Inputs    []multimodalInput `json:"inputs"`
	Model     string            `json:"model"`
	InputType string            `json:"input_type"`
}

func (p *MultimodalProvider) EmbedText(ctx context.Context, text string, role embeddings.Role) ([]float32, error) {
	return p.EmbedMultimodal(ctx, []embeddings.Part{embeddings.TextPart(text)}, role)
}

func (p *MultimodalProvider) EmbedMultimodal(ctx context.Context, parts []embeddings.Part, role embeddings.Role) ([]float32, error) {
	if err := embeddings.ValidateParts(parts); err != nil {
		return nil, err
	}
	content := make([]contentItem, 0, len(parts))
	for _, part := range parts {
		if part.IsImage() {
			content = append(content, contentItem{Type: "image_base64", ImageBase64: dataURL(*part.Image)})
			continue
		}
		content = append(content, contentItem{Type: "text", Text: part.Text})
	}
	req := multimodalRequest{
		Inputs:    []multimodalInput{{Content: content}},
		Model:     p.model,
		InputType: string(role),
	}
	return p.c.post(ctx, "/multimodalembeddings", req, p.dim)
}

func dataURL(img embeddings.Image) string {
	return "data:" + img.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

// Reranker implements rerank.Reranker with a voyage rerank model.
type Reranker struct {
	c     *Client
	model string
}

// Reranker returns a reranker pinned to model.
func (c *Client) Reranker(model string) *Reranker {
	return &Reranker{c: c, model: model}
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	Model     string   `json:"model"`
	TopK      int      `json:"top_k,omitempty"`
}

type rerankResponse struct {
	Data []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"data"`
}

func (r *Reranker) Rerank(ctx context.Context, query string, documents []string, topK int) ([]rerank.Ranked, error) {
	if err := embeddings.ValidateText(query); err != nil {
		return nil, err
	}
	if len(documents) == 0 {
		return []rerank.Ranked{}, nil
	}
	return retry.Do(ctx, r.c.policy, r.c.log, func(ctx context.Context) ([]rerank.Ranked, error) {
		var out rerankResponse
		resp, err := r.c.http.R().
			SetContext(ctx).
			SetBody(rerankRequest{Query: query, Documents: documents, Model: r.model, TopK: topK}).
			Post("/rerank")
		if err := retry.Classify(ctx, providerName, resp, err); err != nil {
			return nil, err
		}
		if err := retry.Decode(providerName, resp, &out); err != nil {
			return nil, err
		}
		ranked := make([]rerank.Ranked, 0, len(out.Data))
		for _, d := range out.Data {
			if d.Index < 0 || d.Index >= len(documents) {
				return nil, model.NewPermanentError(providerName, fmt.Errorf("rerank index %d out of range", d.Index))
			}
			ranked = append(ranked, rerank.Ranked{Index: d.Index, Score: d.RelevanceScore})
		}
		return ranked, nil
	})
}
