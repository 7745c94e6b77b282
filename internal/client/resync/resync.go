// Package resync refetches the full participant snapshot whenever the
// stream link comes back, since deliveries sent while disconnected are lost.
package resync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"movetracker/internal/participant"
	"movetracker/internal/platform/metrics"
)

const DefaultTimeout = 10 * time.Second

type Querier interface {
	Current(ctx context.Context) (participant.Participant, error)
}

type Replacer interface {
	Replace(p participant.Participant)
}

// Notifier is anything that reports transport reconnects, such as
// *fanout.Link.
type Notifier interface {
	OnReconnected(fn func())
}

type Monitor struct {
	query   Querier
	cache   Replacer
	log     *slog.Logger
	metrics *metrics.Metrics
	timeout time.Duration

	attach sync.Once
}

// New returns a monitor bound to one cache. Create a new monitor for a new
// cache.
func New(q Querier, c Replacer, log *slog.Logger, m *metrics.Metrics) *Monitor {
	if log == nil {
		log = slog.Default()
	}
	return &Monitor{query: q, cache: c, log: log, metrics: m, timeout: DefaultTimeout}
}

// Attach registers the reconnect handler. Calls after the first are no-ops.
func (m *Monitor) Attach(n Notifier) {
	m.attach.Do(func() {
		n.OnReconnected(func() {
			ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
			defer cancel()
			if err := m.Resync(ctx); err != nil {
				m.log.Warn("resync after reconnect failed", "err", err)
			}
		})
	})
}

// Resync runs one current-participant query and replaces the cached
// snapshot with the result.
func (m *Monitor) Resync(ctx context.Context) error {
	m.metrics.IncResyncs()
	p, err := m.query.Current(ctx)
	if err != nil {
		m.metrics.IncResyncErrors()
		return err
	}
	m.cache.Replace(p)
	m.log.Debug("participant resynced", "participant_id", p.ID)
	return nil
}
