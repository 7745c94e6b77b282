package mutation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"movetracker/internal/client/cache"
	"movetracker/internal/participant"
	"movetracker/internal/platform/logger"
	"movetracker/internal/platform/metrics"
	"movetracker/internal/position"
)

type fakeMover struct {
	mu    sync.Mutex
	calls []participant.MoveRequest
	resp  participant.MoveResponse
	err   error
}

func (f *fakeMover) Move(_ context.Context, lat, lon *float64) (participant.MoveResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, participant.MoveRequest{Latitude: lat, Longitude: lon})
	return f.resp, f.err
}

func (f *fakeMover) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func f64(v float64) *float64 { return &v }

func seeded() *cache.Cache {
	c := cache.New()
	c.Replace(participant.Participant{
		ID:    "p-1",
		State: participant.StateIdle,
		Group: participant.Group{ID: "g-1", Distance: 7},
		Event: participant.Event{ID: "e-1", Distance: 70},
	})
	return c
}

func TestSubmitMergesEcho(t *testing.T) {
	mover := &fakeMover{resp: participant.MoveResponse{Distance: 111.19, State: participant.StateMoving}}
	c := seeded()
	ch := NewChannel(mover, c, logger.Discard(), metrics.New())

	ch.SubmitPosition(position.Sample{Latitude: f64(0), Longitude: f64(1)})
	ch.Wait()

	require.Equal(t, 1, mover.count())
	assert.Equal(t, 1.0, *mover.calls[0].Longitude)

	got, _ := c.Snapshot()
	assert.Equal(t, 111.19, got.Distance)
	assert.Equal(t, participant.StateMoving, got.State)
	assert.Equal(t, 7.0, got.Group.Distance)
	assert.Equal(t, 70.0, got.Event.Distance)
}

func TestSubmitFailureIsNotRetried(t *testing.T) {
	mover := &fakeMover{err: errors.New("connection refused")}
	c := seeded()
	ch := NewChannel(mover, c, logger.Discard(), nil)

	ch.SubmitPosition(position.Sample{Latitude: f64(1), Longitude: f64(1)})
	ch.Wait()

	assert.Equal(t, 1, mover.count())
	got, _ := c.Snapshot()
	assert.Equal(t, 0.0, got.Distance)
	assert.Equal(t, participant.StateIdle, got.State)
}

func TestSubmitIsAsynchronous(t *testing.T) {
	release := make(chan struct{})
	mover := &blockingMover{release: release}
	ch := NewChannel(mover, seeded(), logger.Discard(), nil)

	for i := 0; i < 3; i++ {
		ch.SubmitPosition(position.Sample{Latitude: f64(float64(i)), Longitude: f64(0)})
	}
	close(release)
	ch.Wait()

	assert.Equal(t, 3, mover.n)
}

type blockingMover struct {
	release chan struct{}
	mu      sync.Mutex
	n       int
}

func (b *blockingMover) Move(context.Context, *float64, *float64) (participant.MoveResponse, error) {
	<-b.release
	b.mu.Lock()
	b.n++
	b.mu.Unlock()
	return participant.MoveResponse{}, nil
}
