// Package indexjob runs one batch indexing job against the configured store.
package indexjob

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/mercasmart/catalog-search/internal/catalog"
	"github.com/mercasmart/catalog-search/internal/config"
	"github.com/mercasmart/catalog-search/internal/embeddings"
	"github.com/mercasmart/catalog-search/internal/factory"
	"github.com/mercasmart/catalog-search/internal/indexer"
)

// Options override the configured job settings. Zero values keep the config.
type Options struct {
	Space     string
	BatchSize int
	// Cooldown overrides INDEX_COOLDOWN when set; zero disables the pause.
	Cooldown *time.Duration
	// EnsureSchema creates tables or indexes before indexing.
	EnsureSchema bool
}

// Run opens the store, indexes one vector space and returns the report.
func Run(ctx context.Context, cfg *config.Config, log zerolog.Logger, opts Options) (indexer.Report, error) {
	spaceName := cfg.IndexSpace
	if opts.Space != "" {
		spaceName = opts.Space
	}
	space, err := catalog.ParseVectorSpace(spaceName)
	if err != nil {
		return indexer.Report{}, err
	}

	st, closeStore, err := factory.NewStore(ctx, cfg, log)
	if err != nil {
		log.Error().Stack().Err(err).Msg("Store adapter unavailable")
		return indexer.Report{}, err
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Warn().Err(err).Msg("store close failed")
		}
	}()

	reg, err := factory.NewEmbeddings(cfg, log)
	if err != nil {
		return indexer.Report{}, err
	}
	return RunWith(ctx, cfg, log, st, reg, space, opts)
}

// RunWith indexes space using already constructed dependencies.
func RunWith(ctx context.Context, cfg *config.Config, log zerolog.Logger, st factory.Store, reg *embeddings.Registry, space catalog.VectorSpace, opts Options) (indexer.Report, error) {
	if opts.EnsureSchema {
		if err := st.EnsureSchema(ctx, factory.SpaceDimensions(cfg)); err != nil {
			log.Error().Stack().Err(err).Msg("schema bootstrap failed")
			return indexer.Report{}, err
		}
	}
	job, err := factory.NewIndexJob(cfg, space, st, reg, log)
	if err != nil {
		return indexer.Report{}, err
	}
	batch, cooldown := job.BatchSize, job.Cooldown
	if opts.BatchSize > 0 {
		batch = opts.BatchSize
	}
	if opts.Cooldown != nil {
		cooldown = *opts.Cooldown
	}

	log.Info().Str("space", string(space)).Int("batch_size", batch).Dur("cooldown", cooldown).Msg("index job starting")
	rep, err := job.Indexer.Run(ctx, batch, cooldown)
	ev := log.Info()
	if err != nil {
		ev = log.Error().Stack().Err(err)
	}
	ev.Str("space", string(space)).
		Int64("total", rep.Total).
		Int("indexed", rep.Indexed).
		Int("skipped", rep.Skipped).
		Dur("duration", rep.Duration).
		Msg("index job finished")
	return rep, err
}
