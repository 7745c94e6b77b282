// Package mutation submits observed positions to the authority and merges
// the echoed participant distance into the local cache.
package mutation

import (
	"context"
	"log/slog"
	"sync"

	"movetracker/internal/participant"
	"movetracker/internal/platform/metrics"
	"movetracker/internal/position"
)

type Mover interface {
	Move(ctx context.Context, latitude, longitude *float64) (participant.MoveResponse, error)
}

// DistanceSink receives the authority's answer to a move.
type DistanceSink interface {
	UpdateParticipantDistance(distance float64, state participant.State) bool
}

// Channel is fire-and-forget: every submission runs in its own goroutine,
// is attempted once, and failures are only logged and counted.
type Channel struct {
	remote  Mover
	sink    DistanceSink
	log     *slog.Logger
	metrics *metrics.Metrics

	wg sync.WaitGroup
}

func NewChannel(remote Mover, sink DistanceSink, log *slog.Logger, m *metrics.Metrics) *Channel {
	if log == nil {
		log = slog.Default()
	}
	return &Channel{remote: remote, sink: sink, log: log, metrics: m}
}

// SubmitPosition returns immediately.
func (c *Channel) SubmitPosition(s position.Sample) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.submit(context.Background(), s)
	}()
}

func (c *Channel) submit(ctx context.Context, s position.Sample) {
	c.metrics.IncSamplesSubmitted()

	resp, err := c.remote.Move(ctx, s.Latitude, s.Longitude)
	if err != nil {
		c.metrics.IncSubmitFailures()
		c.log.Warn("position submit failed", "err", err)
		return
	}
	if !c.sink.UpdateParticipantDistance(resp.Distance, resp.State) {
		c.log.Debug("move echo arrived before participant was loaded", "distance", resp.Distance)
	}
}

// Wait blocks until every submission started so far has finished.
func (c *Channel) Wait() {
	c.wg.Wait()
}
