package factory

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mercasmart/catalog-search/internal/catalog"
	"github.com/mercasmart/catalog-search/internal/config"
	"github.com/mercasmart/catalog-search/internal/embeddings"
	"github.com/mercasmart/catalog-search/internal/generate"
	"github.com/mercasmart/catalog-search/internal/indexer"
	"github.com/mercasmart/catalog-search/internal/normalize"
	"github.com/mercasmart/catalog-search/internal/retrieval"
)

// NewRetrievalService wires the search pipeline.
func NewRetrievalService(cfg *config.Config, st catalog.Store, reg *embeddings.Registry, log zerolog.Logger) (*retrieval.Service, error) {
	n, err := normalize.New(cfg.LabelLocale)
	if err != nil {
		return nil, err
	}
	deps := retrieval.Deps{
		Registry:     reg,
		Store:        st,
		Normalizer:   n,
		ImageCaption: cfg.ImageCaption,
	}
	if rr := NewReranker(cfg, log); rr != nil {
		deps.Reranker = rr
	}
	if gen := NewGenerator(cfg, log); gen != nil {
		deps.Answerer = generate.NewAnswerer(gen, cfg.AnswerCurrency)
	}
	return retrieval.NewService(deps, log), nil
}

// IndexJob is a configured indexer with its batch size and cooldown.
type IndexJob struct {
	Indexer   *indexer.Indexer
	Space     catalog.VectorSpace
	BatchSize int
	Cooldown  time.Duration
}

// NewIndexJob builds the job for space: text spaces embed the labeled
// document, the image space embeds a product photo with the caption.
func NewIndexJob(cfg *config.Config, space catalog.VectorSpace, st catalog.Store, reg *embeddings.Registry, log zerolog.Logger) (*IndexJob, error) {
	p, err := reg.For(space)
	if err != nil {
		return nil, err
	}
	job := &IndexJob{Space: space, Cooldown: cfg.IndexCooldown}
	var norm indexer.Normalizer
	switch space {
	case catalog.SpaceImageVoyage:
		norm = indexer.NewImageNormalizer(indexer.ImageConfig{
			Caption:    cfg.ImageCaption,
			PhotoIndex: cfg.PhotoIndex,
			MaxBytes:   cfg.ImageFetchLimit,
			Timeout:    cfg.ProviderTimeout,
			Retry:      RetryPolicy(cfg),
		}, log)
		job.BatchSize = cfg.ImageBatchSize
	case catalog.SpaceTextOpenAI, catalog.SpaceTextVoyage:
		n, err := normalize.New(cfg.LabelLocale)
		if err != nil {
			return nil, err
		}
		norm = indexer.NewTextNormalizer(n)
		job.BatchSize = cfg.TextBatchSize
	default:
		return nil, fmt.Errorf("unknown vector space %q", space)
	}
	job.Indexer = indexer.New(space, p, norm, st, log)
	return job, nil
}
