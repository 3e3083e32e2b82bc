package generate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/mercasmart/catalog-search/internal/model"
	"github.com/mercasmart/catalog-search/internal/platform/retry"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model,omitempty"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// ChatClient talks to an OpenAI-compatible chat completions endpoint. The
// same client serves OpenAI and Azure OpenAI deployments.
type ChatClient struct {
	client   *resty.Client
	provider string
	path     string
	model    string
	policy   retry.Policy
	log      zerolog.Logger
}

// NewOpenAI targets {baseURL}/chat/completions with bearer auth.
func NewOpenAI(apiKey, baseURL, chatModel string, timeout time.Duration, policy retry.Policy, log zerolog.Logger) *ChatClient {
	return &ChatClient{
		client:   retry.NewClient(baseURL, timeout).SetAuthToken(apiKey),
		provider: "openai",
		path:     "/chat/completions",
		model:    chatModel,
		policy:   policy,
		log:      log.With().Str("component", "generate").Str("provider", "openai").Logger(),
	}
}

// NewAzure targets the deployment named chatModel on an Azure OpenAI resource.
func NewAzure(apiKey, endpoint, apiVersion, chatModel string, timeout time.Duration, policy retry.Policy, log zerolog.Logger) *ChatClient {
	c := retry.NewClient(strings.TrimRight(endpoint, "/"), timeout).
		SetHeader("api-key", apiKey).
		SetQueryParam("api-version", apiVersion)
	return &ChatClient{
		client:   c,
		provider: "azure-openai",
		path:     "/openai/deployments/" + chatModel + "/chat/completions",
		policy:   policy,
		log:      log.With().Str("component", "generate").Str("provider", "azure-openai").Logger(),
	}
}

// Provider names the backing service.
func (c *ChatClient) Provider() string { return c.provider }

// Generate sends a system + user message pair and returns the first choice.
func (c *ChatClient) Generate(ctx context.Context, system, prompt string) (string, error) {
	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
	}
	return retry.Do(ctx, c.policy, c.log, func(ctx context.Context) (string, error) {
		var out chatResponse
		resp, err := c.client.R().SetContext(ctx).SetBody(req).Post(c.path)
		if err := retry.Classify(ctx, c.provider, resp, err); err != nil {
			return "", err
		}
		if err := retry.Decode(c.provider, resp, &out); err != nil {
			return "", err
		}
		if len(out.Choices) == 0 {
			return "", model.NewTransientError(c.provider, fmt.Errorf("empty chat completion"))
		}
		return out.Choices[0].Message.Content, nil
	})
}
