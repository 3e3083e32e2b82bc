// Package retrieval answers catalog queries: embed the query, run a similarity
// search, optionally rerank and optionally generate an answer.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mercasmart/catalog-search/internal/catalog"
	"github.com/mercasmart/catalog-search/internal/embeddings"
	"github.com/mercasmart/catalog-search/internal/generate"
	"github.com/mercasmart/catalog-search/internal/model"
	"github.com/mercasmart/catalog-search/internal/normalize"
	"github.com/mercasmart/catalog-search/internal/rerank"
)

// Optional stages named in Result.Degraded.
const (
	FeatureRerank     = "rerank"
	FeatureGeneration = "generation"
)

var errNotConfigured = errors.New("not configured")

// QueryRequest is one search.
type QueryRequest struct {
	Text     string
	Image    *embeddings.Image
	Provider ProviderSelection
	Generate bool
}

// ScoredRecord is a result item. RelevanceScore is set only when reranked.
type ScoredRecord struct {
	Record          catalog.ProductRecord `json:"record"`
	SimilarityScore float64               `json:"similarity_score"`
	RelevanceScore  *float64              `json:"relevance_score,omitempty"`
}

// Result is the search outcome.
type Result struct {
	Provider ProviderSelection   `json:"provider"`
	Space    catalog.VectorSpace `json:"space"`
	Items    []ScoredRecord      `json:"items"`
	Reranked bool                `json:"reranked"`
	Answer   string              `json:"answer,omitempty"`
	Degraded []string            `json:"degraded,omitempty"`
}

// Deps are the collaborators of a Service. Reranker and Answerer may be nil;
// searches that need them then degrade.
type Deps struct {
	Registry     *embeddings.Registry
	Store        catalog.Store
	Reranker     rerank.Reranker
	Answerer     *generate.Answerer
	Normalizer   *normalize.Normalizer
	ImageCaption string
}

// Service runs searches. It is safe for concurrent use.
type Service struct {
	deps Deps
	log  zerolog.Logger
}

func NewService(deps Deps, log zerolog.Logger) *Service {
	return &Service{deps: deps, log: log.With().Str("component", "retrieval").Logger()}
}

// Search runs the pipeline for req. Query embedding and similarity search
// failures abort; rerank and generation failures are recorded in Degraded.
func (s *Service) Search(ctx context.Context, req QueryRequest) (res *Result, err error) {
	started := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}
		searchDuration.WithLabelValues(string(req.Provider), result).Observe(time.Since(started).Seconds())
	}()

	pol, err := PolicyFor(req.Provider)
	if err != nil {
		return nil, err
	}
	input, err := s.queryInput(pol, req)
	if err != nil {
		return nil, err
	}
	provider, err := s.deps.Registry.For(pol.Space)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrRetrievalUnavailable, err)
	}
	vec, err := embeddings.Embed(ctx, provider, input, embeddings.RoleQuery)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	q := catalog.NewVectorQuery(pol.Space, vec, pol.NumCandidates, pol.Limit, pol.Projection())
	hits, err := s.deps.Store.VectorSearch(ctx, q)
	if err != nil {
		return nil, model.NewStoreError("vector_search", err)
	}

	res = &Result{Provider: req.Provider, Space: pol.Space, Items: toItems(hits)}
	if pol.Rerank {
		s.rerank(ctx, req.Text, res)
	}
	if req.Generate {
		s.answer(ctx, req.Text, res)
	}
	s.log.Debug().Str("provider", string(req.Provider)).Int("items", len(res.Items)).
		Bool("reranked", res.Reranked).Strs("degraded", res.Degraded).Msg("search done")
	return res, nil
}

func (s *Service) queryInput(pol Policy, req QueryRequest) ([]embeddings.Part, error) {
	if pol.Image {
		if req.Image == nil {
			return nil, model.NewInputError("image", "required for image search")
		}
		caption := strings.TrimSpace(s.deps.ImageCaption)
		if caption == "" {
			return []embeddings.Part{embeddings.ImagePart(*req.Image)}, nil
		}
		return []embeddings.Part{embeddings.TextPart(caption), embeddings.ImagePart(*req.Image)}, nil
	}
	if req.Image != nil {
		return nil, model.NewInputError("image", fmt.Sprintf("provider %s does not accept images", req.Provider))
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, model.NewInputError("query", "must not be empty")
	}
	return []embeddings.Part{embeddings.TextPart(req.Text)}, nil
}

func toItems(hits []catalog.Hit) []ScoredRecord {
	items := make([]ScoredRecord, 0, len(hits))
	for _, h := range hits {
		items = append(items, ScoredRecord{Record: h.Record, SimilarityScore: h.Score})
	}
	return items
}

func (s *Service) rerank(ctx context.Context, query string, res *Result) {
	if len(res.Items) == 0 {
		res.Reranked = true
		return
	}
	ranked, err := s.callReranker(ctx, query, res.Items)
	if err != nil {
		s.degrade(res, FeatureRerank, err)
		if len(res.Items) > RerankTopK {
			res.Items = res.Items[:RerankTopK]
		}
		return
	}
	out := make([]ScoredRecord, 0, len(ranked))
	for _, r := range ranked {
		item := res.Items[r.Index]
		score := r.Score
		item.RelevanceScore = &score
		out = append(out, item)
		if len(out) == RerankTopK {
			break
		}
	}
	res.Items = out
	res.Reranked = true
}

func (s *Service) callReranker(ctx context.Context, query string, items []ScoredRecord) ([]rerank.Ranked, error) {
	if s.deps.Reranker == nil || s.deps.Normalizer == nil {
		return nil, errNotConfigured
	}
	docs := make([]string, 0, len(items))
	for _, it := range items {
		docs = append(docs, s.deps.Normalizer.Rerank(it.Record))
	}
	ranked, err := s.deps.Reranker.Rerank(ctx, query, docs, RerankTopK)
	if err != nil {
		return nil, err
	}
	for _, r := range ranked {
		if r.Index < 0 || r.Index >= len(items) {
			return nil, fmt.Errorf("rerank index %d out of range", r.Index)
		}
	}
	return ranked, nil
}

func (s *Service) answer(ctx context.Context, query string, res *Result) {
	if s.deps.Answerer == nil {
		s.degrade(res, FeatureGeneration, errNotConfigured)
		return
	}
	items := make([]generate.ContextItem, 0, len(res.Items))
	for _, it := range res.Items {
		items = append(items, generate.ContextItem{
			DisplayName: normalize.StripTags(it.Record.DisplayName),
			Description: normalize.StripTags(it.Record.Description),
		})
	}
	html, err := s.deps.Answerer.Answer(ctx, query, items)
	if err != nil {
		s.degrade(res, FeatureGeneration, err)
		return
	}
	res.Answer = html
}

func (s *Service) degrade(res *Result, feature string, err error) {
	derr := &model.DegradedFeatureError{Feature: feature, Err: err}
	res.Degraded = append(res.Degraded, feature)
	degradationsTotal.WithLabelValues(feature).Inc()
	s.log.Warn().Err(derr).Str("feature", feature).Msg("optional stage skipped")
}
