package catalog

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/mercasmart/catalog-search/internal/health"
)

// NewStoreHealthChecker monitors a store, preferring its HealthPing when
// available and falling back to a cheap filtered count.
func NewStoreHealthChecker(s Store, log zerolog.Logger, probeTimeout time.Duration) *health.ProbeChecker {
	return health.NewProbeChecker("store", storeProbe(s), log, probeTimeout)
}

func storeProbe(s Store) health.ProbeFunc {
	if p, ok := s.(health.HealthPinger); ok {
		return health.PingerProbe(p)
	}
	return func(ctx context.Context) error {
		_, err := s.Count(ctx, Filter{IDs: []string{"__health_check__"}})
		return err
	}
}
