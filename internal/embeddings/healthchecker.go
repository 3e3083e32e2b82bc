package embeddings

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mercasmart/catalog-search/internal/health"
)

// NewProviderHealthChecker monitors a provider, preferring its HealthPing and
// falling back to a short text embedding.
func NewProviderHealthChecker(name string, p Provider, log zerolog.Logger, probeTimeout time.Duration) *health.ProbeChecker {
	return health.NewProbeChecker("embedder:"+name, providerProbe(p), log, probeTimeout)
}

func providerProbe(p Provider) health.ProbeFunc {
	if hp, ok := p.(health.HealthPinger); ok {
		return health.PingerProbe(hp)
	}
	return func(ctx context.Context) error {
		vec, err := p.EmbedText(ctx, "health-check", RoleQuery)
		if err != nil {
			return err
		}
		if len(vec) == 0 {
			return fmt.Errorf("%s returned an empty vector", p.Name())
		}
		return nil
	}
}
