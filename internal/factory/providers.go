package factory

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mercasmart/catalog-search/internal/catalog"
	"github.com/mercasmart/catalog-search/internal/config"
	"github.com/mercasmart/catalog-search/internal/embeddings"
	"github.com/mercasmart/catalog-search/internal/embeddings/openai"
	"github.com/mercasmart/catalog-search/internal/embeddings/voyage"
	"github.com/mercasmart/catalog-search/internal/generate"
	"github.com/mercasmart/catalog-search/internal/platform/retry"
	"github.com/mercasmart/catalog-search/internal/rerank"
)

// RetryPolicy derives the provider retry policy from cfg.
func RetryPolicy(cfg *config.Config) retry.Policy {
	return retry.Policy{
		MaxRetries:      cfg.ProviderMaxRetries,
		InitialInterval: cfg.ProviderRetryInterval,
		MaxInterval:     10 * cfg.ProviderRetryInterval,
	}
}

func voyageClient(cfg *config.Config, log zerolog.Logger) *voyage.Client {
	return voyage.NewClient(cfg.VoyageAPIKey, cfg.VoyageBaseURL, cfg.ProviderTimeout, RetryPolicy(cfg), log)
}

// NewEmbeddings binds one provider per vector space for which credentials are
// configured. At least one space must be bound.
func NewEmbeddings(cfg *config.Config, log zerolog.Logger) (*embeddings.Registry, error) {
	bindings := map[catalog.VectorSpace]embeddings.Provider{}
	if cfg.OpenAIAPIKey != "" {
		bindings[catalog.SpaceTextOpenAI] = openai.New(openai.Config{
			APIKey:    cfg.OpenAIAPIKey,
			BaseURL:   cfg.OpenAIBaseURL,
			Model:     cfg.OpenAIEmbedModel,
			Dimension: cfg.OpenAIEmbedDimension,
			Timeout:   cfg.ProviderTimeout,
			Retry:     RetryPolicy(cfg),
		}, log)
	}
	if cfg.VoyageAPIKey != "" {
		vc := voyageClient(cfg, log)
		bindings[catalog.SpaceTextVoyage] = vc.Text(cfg.VoyageTextModel, cfg.VoyageTextDimension)
		bindings[catalog.SpaceImageVoyage] = vc.Multimodal(cfg.VoyageImageModel, cfg.VoyageImageDimension)
	}
	if len(bindings) == 0 {
		return nil, fmt.Errorf("no embedding provider configured: set OPENAI_API_KEY or VOYAGE_API_KEY")
	}
	reg, err := embeddings.NewRegistry(bindings)
	if err != nil {
		return nil, err
	}
	log.Info().Interface("spaces", reg.Spaces()).Msg("embedding providers bound")
	return reg, nil
}

// NewReranker returns the Voyage reranker, or nil without a Voyage key.
func NewReranker(cfg *config.Config, log zerolog.Logger) rerank.Reranker {
	if cfg.VoyageAPIKey == "" {
		log.Warn().Msg("no reranker configured; reranked searches will degrade")
		return nil
	}
	return voyageClient(cfg, log).Reranker(cfg.VoyageRerankModel)
}

// NewGenerator prefers OpenAI and falls back to an Azure OpenAI deployment.
// It returns nil when neither is configured.
func NewGenerator(cfg *config.Config, log zerolog.Logger) *generate.ChatClient {
	switch {
	case cfg.OpenAIAPIKey != "":
		return generate.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.ChatModel, cfg.ChatTimeout, RetryPolicy(cfg), log)
	case cfg.AzureOpenAIAPIKey != "" && cfg.AzureOpenAIEndpoint != "":
		return generate.NewAzure(cfg.AzureOpenAIAPIKey, cfg.AzureOpenAIEndpoint, cfg.AzureOpenAIAPIVersion, cfg.ChatModel, cfg.ChatTimeout, RetryPolicy(cfg), log)
	}
	log.Warn().Msg("no chat model configured; answer generation will degrade")
	return nil
}

// SpaceDimensions reports the configured dimension of every vector space,
// whether or not its provider has credentials.
func SpaceDimensions(cfg *config.Config) map[catalog.VectorSpace]int {
	return map[catalog.VectorSpace]int{
		catalog.SpaceTextOpenAI:  cfg.OpenAIEmbedDimension,
		catalog.SpaceTextVoyage:  cfg.VoyageTextDimension,
		catalog.SpaceImageVoyage: cfg.VoyageImageDimension,
	}
}
