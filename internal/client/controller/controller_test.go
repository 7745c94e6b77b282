package controller

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"movetracker/internal/platform/logger"
	"movetracker/internal/position"
)

type recordingSubmitter struct {
	mu      sync.Mutex
	samples []position.Sample
}

func (r *recordingSubmitter) SubmitPosition(s position.Sample) {
	r.mu.Lock()
	r.samples = append(r.samples, s)
	r.mu.Unlock()
}

func (r *recordingSubmitter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}

type failingSource struct{ err error }

func (f failingSource) Watch(position.Options) (position.Subscription, error) { return nil, f.err }

func f64(v float64) *float64 { return &v }

func sample(lat, lon float64) position.Sample {
	return position.Sample{Latitude: f64(lat), Longitude: f64(lon)}
}

func newTestController(t *testing.T) (*Controller, *position.Feed, *recordingSubmitter, chan Event) {
	t.Helper()
	feed := position.NewFeed()
	sub := &recordingSubmitter{}
	c := New(feed, sub, logger.Discard())
	events := make(chan Event, 32)
	c.Subscribe(func(ev Event) { events <- ev })
	return c, feed, sub, events
}

func nextEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestStartEmitsStartedBeforeSamples(t *testing.T) {
	c, feed, _, events := newTestController(t)

	require.NoError(t, c.Start())
	defer c.Stop()

	require.True(t, feed.Push(sample(0, 0)))

	assert.Equal(t, TrackingStarted, nextEvent(t, events).Type)
	ev := nextEvent(t, events)
	assert.Equal(t, PositionObserved, ev.Type)
	assert.Equal(t, 0.0, *ev.Sample.Latitude)
}

func TestStartTwice(t *testing.T) {
	c, feed, _, _ := newTestController(t)

	require.NoError(t, c.Start())
	defer c.Stop()

	assert.ErrorIs(t, c.Start(), ErrAlreadyTracking)
	assert.Equal(t, 1, feed.Active())
}

func TestStartWatchError(t *testing.T) {
	c := New(failingSource{err: errors.New("permission denied")}, &recordingSubmitter{}, logger.Discard())

	assert.Error(t, c.Start())
	assert.Equal(t, PhaseStopped, c.Phase())
	assert.False(t, c.State().IsTracking)
}

func TestSamplesAreSubmittedAndRecorded(t *testing.T) {
	c, feed, sub, events := newTestController(t)
	require.NoError(t, c.Start())
	defer c.Stop()
	nextEvent(t, events)

	feed.Push(sample(0, 0))
	feed.Push(sample(0, 1))
	nextEvent(t, events)
	nextEvent(t, events)

	assert.Equal(t, 2, sub.count())
	st := c.State()
	require.NotNil(t, st.LastPosition)
	assert.Equal(t, 1.0, *st.LastPosition.Longitude)
	assert.Equal(t, PhaseTracking, c.Phase())
}

func TestSensorErrorKeepsTracking(t *testing.T) {
	c, feed, sub, events := newTestController(t)
	require.NoError(t, c.Start())
	defer c.Stop()
	nextEvent(t, events)

	feed.Fail(errors.New("no signal"))
	ev := nextEvent(t, events)
	assert.Equal(t, TrackingError, ev.Type)
	assert.Contains(t, ev.Message, "no signal")
	assert.Equal(t, PhaseError, c.Phase())
	assert.True(t, c.State().IsTracking)
	assert.Zero(t, sub.count())

	feed.Push(sample(1, 1))
	assert.Equal(t, PositionObserved, nextEvent(t, events).Type)
	assert.Equal(t, PhaseTracking, c.Phase())
	assert.Empty(t, c.State().LastError)
}

func TestStop(t *testing.T) {
	c, feed, _, events := newTestController(t)
	require.NoError(t, c.Start())
	nextEvent(t, events)

	c.Stop()
	assert.Equal(t, TrackingStopped, nextEvent(t, events).Type)
	assert.False(t, c.State().IsTracking)
	assert.Equal(t, 0, feed.Active())
	assert.False(t, feed.Push(sample(2, 2)))

	c.Stop()
	select {
	case ev := <-events:
		t.Fatalf("unexpected event after second stop: %v", ev.Type)
	default:
	}
}

func TestStopWhenNeverStarted(t *testing.T) {
	c, _, _, events := newTestController(t)
	c.Stop()
	assert.Empty(t, events)
}

func TestToggle(t *testing.T) {
	c, feed, _, events := newTestController(t)

	require.NoError(t, c.Toggle())
	assert.Equal(t, TrackingStarted, nextEvent(t, events).Type)
	assert.Equal(t, 1, feed.Active())

	require.NoError(t, c.Toggle())
	assert.Equal(t, TrackingStopped, nextEvent(t, events).Type)
	assert.Equal(t, 0, feed.Active())

	require.NoError(t, c.Toggle())
	defer c.Stop()
	assert.Equal(t, TrackingStarted, nextEvent(t, events).Type)
}

func TestStateIsACopy(t *testing.T) {
	c, feed, _, events := newTestController(t)
	require.NoError(t, c.Start())
	defer c.Stop()
	nextEvent(t, events)

	feed.Push(sample(5, 5))
	nextEvent(t, events)

	st := c.State()
	st.LastPosition.Speed = f64(3)

	again := c.State()
	assert.Nil(t, again.LastPosition.Speed)
}

func TestSourceEndStopsSession(t *testing.T) {
	track := position.Track{
		Interval: 10 * time.Millisecond,
		Points:   []position.TrackPoint{{Sample: sample(1, 1)}},
	}
	sub := &recordingSubmitter{}
	c := New(position.NewReplaySource(track), sub, logger.Discard())
	events := make(chan Event, 32)
	c.Subscribe(func(ev Event) { events <- ev })

	require.NoError(t, c.Start())
	assert.Equal(t, TrackingStarted, nextEvent(t, events).Type)
	assert.Equal(t, PositionObserved, nextEvent(t, events).Type)

	ev := nextEvent(t, events)
	assert.Equal(t, TrackingError, ev.Type)
	assert.Equal(t, ErrSourceEnded.Error(), ev.Message)
	assert.Equal(t, TrackingStopped, nextEvent(t, events).Type)

	st := c.State()
	assert.False(t, st.IsTracking)
	assert.Equal(t, ErrSourceEnded.Error(), st.LastError)
	assert.Equal(t, PhaseStopped, c.Phase())

	c.Stop()
	assert.Empty(t, events)

	require.NoError(t, c.Start())
	defer c.Stop()
	assert.Equal(t, TrackingStarted, nextEvent(t, events).Type)
	assert.Equal(t, PositionObserved, nextEvent(t, events).Type)
	assert.Equal(t, 2, sub.count())
}
