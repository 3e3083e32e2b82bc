// Package rerank defines the second-stage ranking contract used by retrieval.
package rerank

import "context"

// Ranked points back into the candidate slice passed to Rerank.
type Ranked struct {
	Index int
	Score float64
}

// Reranker orders candidate texts by relevance to query and keeps the best topK.
type Reranker interface {
	Rerank(ctx context.Context, query string, documents []string, topK int) ([]Ranked, error)
}
