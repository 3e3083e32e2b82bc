// Package factory constructs the configured adapters. Every external client
// is built here and injected; nothing else reads the configuration.
package factory

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mercasmart/catalog-search/internal/catalog"
	"github.com/mercasmart/catalog-search/internal/catalog/memory"
	"github.com/mercasmart/catalog-search/internal/catalog/mongo"
	"github.com/mercasmart/catalog-search/internal/catalog/postgres"
	"github.com/mercasmart/catalog-search/internal/catalog/sqlite"
	"github.com/mercasmart/catalog-search/internal/catalog/weaviate"
	"github.com/mercasmart/catalog-search/internal/config"
)

// Store is implemented by every catalog backend.
type Store interface {
	catalog.Store
	catalog.Writer
	catalog.SchemaBootstrapper
}

// NewStore opens the backend named by cfg.StoreDriver. The returned close
// function releases its connections.
func NewStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.StoreDriver {
	case "memory":
		log.Warn().Msg("using in-memory catalog store; data is not persisted")
		return memory.New(), noop, nil
	case "sqlite":
		st, err := sqlite.New(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, nil, fmt.Errorf("CATALOG_SEARCH_POSTGRES_DSN is required when STORE_DRIVER=postgres")
		}
		db, err := postgres.Open(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		st := postgres.NewWithDB(db)
		return st, st.Close, nil
	case "mongo":
		if cfg.MongoURI == "" {
			return nil, nil, fmt.Errorf("CLUSTER_URI is required when STORE_DRIVER=mongo")
		}
		st, err := mongo.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection, cfg.MongoSelectionTimeout)
		if err != nil {
			return nil, nil, err
		}
		return st, func() error { return st.Close(context.Background()) }, nil
	case "weaviate":
		st, err := weaviate.New(cfg.WeaviateURL, cfg.WeaviateClass)
		if err != nil {
			return nil, nil, err
		}
		return st, noop, nil
	}
	return nil, nil, fmt.Errorf("unknown STORE_DRIVER: %s", cfg.StoreDriver)
}
