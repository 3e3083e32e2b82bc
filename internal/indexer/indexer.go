// Package indexer computes and persists one vector space for every catalog
// record. The same loop serves the text and the image jobs; they differ only in
// the normalizer, the provider and the batch size.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mercasmart/catalog-search/internal/catalog"
	"github.com/mercasmart/catalog-search/internal/embeddings"
	"github.com/mercasmart/catalog-search/internal/model"
)

// Failure records one skipped document.
type Failure struct {
	ID    string `json:"id"`
	Stage string `json:"stage"`
	Error string `json:"error"`
}

// Report summarizes a run.
type Report struct {
	Space    catalog.VectorSpace `json:"space"`
	Total    int64               `json:"total"`
	Pages    int                 `json:"pages"`
	Indexed  int                 `json:"indexed"`
	Skipped  int                 `json:"skipped"`
	Failures []Failure           `json:"failures,omitempty"`
	Duration time.Duration       `json:"duration"`
}

// Indexer walks the catalog page by page and upserts one vector per record.
type Indexer struct {
	space      catalog.VectorSpace
	provider   embeddings.Provider
	normalizer Normalizer
	store      catalog.Store
	log        zerolog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// New builds an indexer for space.
func New(space catalog.VectorSpace, provider embeddings.Provider, normalizer Normalizer, store catalog.Store, log zerolog.Logger) *Indexer {
	return &Indexer{
		space:      space,
		provider:   provider,
		normalizer: normalizer,
		store:      store,
		log:        log.With().Str("component", "indexer").Str("space", string(space)).Logger(),
		sleep:      sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run indexes every record in pages of batchSize, pausing cooldown between
// pages. Per-document failures are logged and skipped; a failure to read a
// page or to count the catalog aborts the run. Cancellation stops the run
// between documents, between pages or during the cooldown; vectors already
// written stay valid.
func (ix *Indexer) Run(ctx context.Context, batchSize int, cooldown time.Duration) (Report, error) {
	started := time.Now()
	rep := Report{Space: ix.space}
	if batchSize <= 0 {
		return rep, model.NewInputError("batch_size", "must be > 0")
	}
	finish := func(err error) (Report, error) {
		rep.Duration = time.Since(started)
		result := "ok"
		if err != nil {
			result = "error"
		}
		runsTotal.WithLabelValues(string(ix.space), result).Inc()
		return rep, err
	}

	total, err := ix.store.Count(ctx, catalog.Filter{})
	if err != nil {
		return finish(fmt.Errorf("count catalog: %w", err))
	}
	rep.Total = total
	ix.log.Info().Int64("total", total).Int("batch_size", batchSize).Dur("cooldown", cooldown).Msg("indexing started")

	for offset := 0; int64(offset) < total; offset += batchSize {
		if err := ctx.Err(); err != nil {
			return finish(err)
		}
		if offset > 0 {
			if err := ix.sleep(ctx, cooldown); err != nil {
				return finish(err)
			}
		}
		pageStart := time.Now()
		records, err := ix.store.Find(ctx, catalog.Filter{}, ix.normalizer.Projection(), offset, batchSize)
		if err != nil {
			return finish(fmt.Errorf("read page at offset %d: %w", offset, err))
		}
		if err := ix.indexPage(ctx, records, &rep); err != nil {
			return finish(err)
		}
		rep.Pages++
		pageDuration.WithLabelValues(string(ix.space)).Observe(time.Since(pageStart).Seconds())
		ix.log.Info().Int("offset", offset).Int("page_size", len(records)).Int("indexed", rep.Indexed).Int("skipped", rep.Skipped).Msg("page done")
		if len(records) == 0 {
			break
		}
	}

	ix.log.Info().Int("indexed", rep.Indexed).Int("skipped", rep.Skipped).Int("pages", rep.Pages).Msg("indexing finished")
	return finish(nil)
}

func (ix *Indexer) indexPage(ctx context.Context, records []catalog.ProductRecord, rep *Report) error {
	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		stage, err := ix.indexOne(ctx, r)
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return ctx.Err()
			}
			rep.Skipped++
			rep.Failures = append(rep.Failures, Failure{ID: r.ID, Stage: stage, Error: err.Error()})
			documentsTotal.WithLabelValues(string(ix.space), "skipped").Inc()
			ix.log.Warn().Err(err).Str("id", r.ID).Str("stage", stage).Msg("document skipped")
			continue
		}
		rep.Indexed++
		documentsTotal.WithLabelValues(string(ix.space), "indexed").Inc()
	}
	return nil
}

func (ix *Indexer) indexOne(ctx context.Context, r catalog.ProductRecord) (string, error) {
	parts, err := ix.normalizer.Normalize(ctx, r)
	if err != nil {
		return "normalize", err
	}
	vec, err := embeddings.Embed(ctx, ix.provider, parts, embeddings.RoleDocument)
	if err != nil {
		return "embed", err
	}
	if err := ix.store.Update(ctx, r.ID, catalog.Embeddings{ix.space: vec}); err != nil {
		return "update", err
	}
	return "", nil
}
