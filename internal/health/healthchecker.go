package health

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// HealthChecker is implemented by component-level checkers (store, embedders).
type HealthChecker interface {
	Name() string
	IsHealthy() bool
	Start(ctx context.Context, interval time.Duration)
}

// ProbeFunc returns nil when the probed dependency is reachable.
type ProbeFunc func(ctx context.Context) error

// ProbeChecker caches the result of a periodic probe.
type ProbeChecker struct {
	name         string
	probe        ProbeFunc
	healthy      atomic.Int32
	log          zerolog.Logger
	probeTimeout time.Duration
}

// NewProbeChecker creates a checker that starts unhealthy until the first successful probe.
func NewProbeChecker(name string, probe ProbeFunc, log zerolog.Logger, probeTimeout time.Duration) *ProbeChecker {
	hc := &ProbeChecker{name: name, probe: probe, log: log, probeTimeout: probeTimeout}
	hc.healthy.Store(0)
	return hc
}

// PingerProbe adapts a HealthPinger.
func PingerProbe(p HealthPinger) ProbeFunc { return p.HealthPing }

func (c *ProbeChecker) Name() string    { return c.name }
func (c *ProbeChecker) IsHealthy() bool { return c.healthy.Load() == 1 }

// Check runs one probe bounded by the probe timeout.
func (c *ProbeChecker) Check(ctx context.Context) {
	to := c.probeTimeout
	if to <= 0 {
		to = 2 * time.Second
	}
	checkCtx, cancel := context.WithTimeout(ctx, to)
	defer cancel()
	if err := c.probe(checkCtx); err != nil {
		c.healthy.Store(0)
		c.log.Error().Stack().Str("checker", c.name).Err(err).Msg("health check failed")
		return
	}
	c.healthy.Store(1)
}

// Start probes immediately and then on every tick until ctx is done.
func (c *ProbeChecker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

// ServiceHealthChecker aggregates component checkers into a single service health flag.
type ServiceHealthChecker struct {
	healthy atomic.Int32
	deps    []HealthChecker
	log     zerolog.Logger
}

func NewServiceHealthChecker(log zerolog.Logger, deps ...HealthChecker) *ServiceHealthChecker {
	h := &ServiceHealthChecker{deps: deps, log: log}
	h.healthy.Store(0)
	return h
}

// IsHealthy returns cached service health.
func (h *ServiceHealthChecker) IsHealthy() bool { return h.healthy.Load() == 1 }

// Components reports the cached state of every dependency by name.
func (h *ServiceHealthChecker) Components() map[string]bool {
	out := make(map[string]bool, len(h.deps))
	for _, c := range h.deps {
		out[c.Name()] = c.IsHealthy()
	}
	return out
}

// Unhealthy lists the names of failing dependencies, sorted.
func (h *ServiceHealthChecker) Unhealthy() []string {
	var out []string
	for _, c := range h.deps {
		if !c.IsHealthy() {
			out = append(out, c.Name())
		}
	}
	sort.Strings(out)
	return out
}

// Start periodically evaluates dependency health and updates the service flag.
func (h *ServiceHealthChecker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	prev := int32(0)
	eval := func() {
		down := h.Unhealthy()
		if len(down) == 0 {
			h.healthy.Store(1)
		} else {
			h.healthy.Store(0)
		}
		cur := h.healthy.Load()
		if cur != prev {
			if cur == 1 {
				h.log.Info().Msg("service health: UP")
			} else {
				h.log.Error().Stack().Strs("down", down).Msg("service health: DOWN")
			}
			prev = cur
		}
	}

	eval()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			eval()
		}
	}
}
