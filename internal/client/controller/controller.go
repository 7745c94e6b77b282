// Package controller owns the tracking session: it starts and stops the
// position watch, forwards samples for submission and reports lifecycle
// events.
package controller

import (
	"errors"
	"log/slog"
	"sync"

	"movetracker/internal/position"
)

var (
	ErrAlreadyTracking = errors.New("tracking already started")
	ErrSourceEnded     = errors.New("position source ended")
)

type Phase string

const (
	PhaseStopped  Phase = "stopped"
	PhaseTracking Phase = "tracking"
	// PhaseError is tracking with a pending sensor error. The next sample
	// clears it.
	PhaseError Phase = "error"
)

type EventType string

const (
	TrackingStarted  EventType = "tracking_started"
	PositionObserved EventType = "position_observed"
	TrackingError    EventType = "tracking_error"
	TrackingStopped  EventType = "tracking_stopped"
)

type Event struct {
	Type    EventType
	Sample  position.Sample // PositionObserved
	Message string          // TrackingError
}

// Listener is called on the goroutine that produced the event. It must not
// call Start, Stop or Toggle synchronously.
type Listener func(Event)

// Submitter forwards a sample to the authority without blocking.
type Submitter interface {
	SubmitPosition(s position.Sample)
}

// SessionState is the read-only debug view of the controller.
type SessionState struct {
	IsTracking   bool
	LastPosition *position.Sample
	LastError    string
}

type session struct {
	sub  position.Subscription
	stop chan struct{}
	done chan struct{}
}

type Controller struct {
	source position.Source
	submit Submitter
	opts   position.Options
	log    *slog.Logger

	lifecycle sync.Mutex // serialises Start and Stop

	mu        sync.Mutex
	state     SessionState
	session   *session
	last      *session
	listeners []Listener
}

func New(source position.Source, submit Submitter, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		source: source,
		submit: submit,
		opts:   position.DefaultOptions(),
		log:    log,
	}
}

func (c *Controller) Subscribe(l Listener) {
	c.mu.Lock()
	c.listeners = append(c.listeners, l)
	c.mu.Unlock()
}

// Start begins watching positions. TrackingStarted is emitted before any
// sample is delivered.
func (c *Controller) Start() error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.mu.Lock()
	if c.session != nil {
		c.mu.Unlock()
		return ErrAlreadyTracking
	}
	prev := c.last
	c.mu.Unlock()
	if prev != nil {
		<-prev.done
	}

	sub, err := c.source.Watch(c.opts)
	if err != nil {
		return err
	}
	sess := &session{sub: sub, stop: make(chan struct{}), done: make(chan struct{})}

	c.mu.Lock()
	c.session = sess
	c.last = sess
	c.state = SessionState{IsTracking: true}
	c.mu.Unlock()

	c.log.Info("tracking started")
	c.emit(Event{Type: TrackingStarted})

	go c.pump(sess)
	return nil
}

// Stop cancels the watch and waits for in-flight events to finish, so no
// event follows TrackingStopped. It is a no-op when not tracking.
func (c *Controller) Stop() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()
	if sess == nil {
		return
	}

	close(sess.stop)
	sess.sub.Cancel()
	<-sess.done

	c.mu.Lock()
	if c.session != sess {
		// the source ended first and the pump already stopped the session
		c.mu.Unlock()
		return
	}
	c.session = nil
	c.state.IsTracking = false
	c.mu.Unlock()

	c.log.Info("tracking stopped")
	c.emit(Event{Type: TrackingStopped})
}

func (c *Controller) Toggle() error {
	if c.State().IsTracking {
		c.Stop()
		return nil
	}
	return c.Start()
}

// State returns a copy of the session state.
func (c *Controller) State() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.state
	if st.LastPosition != nil {
		p := *st.LastPosition
		st.LastPosition = &p
	}
	return st
}

func (c *Controller) Phase() Phase {
	st := c.State()
	switch {
	case !st.IsTracking:
		return PhaseStopped
	case st.LastError != "":
		return PhaseError
	default:
		return PhaseTracking
	}
}

func (c *Controller) pump(sess *session) {
	defer close(sess.done)

	samples, errs := sess.sub.Samples(), sess.sub.Errors()
	for samples != nil || errs != nil {
		select {
		case <-sess.stop:
			return
		default:
		}

		select {
		case <-sess.stop:
			return
		case s, ok := <-samples:
			if !ok {
				samples = nil
				continue
			}
			c.observe(s)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			c.fail(err)
		}
	}
	c.end(sess)
}

// end stops a session whose source closed on its own. It reports
// ErrSourceEnded and TrackingStopped so Start can be called again.
func (c *Controller) end(sess *session) {
	c.mu.Lock()
	select {
	case <-sess.stop:
		c.mu.Unlock()
		return
	default:
	}
	c.session = nil
	c.state.IsTracking = false
	c.state.LastError = ErrSourceEnded.Error()
	c.mu.Unlock()

	sess.sub.Cancel()
	c.log.Warn("position source ended, tracking stopped")
	c.emit(Event{Type: TrackingError, Message: ErrSourceEnded.Error()})
	c.emit(Event{Type: TrackingStopped})
}

func (c *Controller) observe(s position.Sample) {
	c.submit.SubmitPosition(s)

	c.mu.Lock()
	c.state.LastPosition = &s
	c.state.LastError = ""
	c.mu.Unlock()

	c.emit(Event{Type: PositionObserved, Sample: s})
}

func (c *Controller) fail(err error) {
	c.mu.Lock()
	c.state.LastError = err.Error()
	c.mu.Unlock()

	c.log.Warn("position error", "err", err)
	c.emit(Event{Type: TrackingError, Message: err.Error()})
}

func (c *Controller) emit(ev Event) {
	c.mu.Lock()
	listeners := append([]Listener(nil), c.listeners...)
	c.mu.Unlock()

	for _, l := range listeners {
		l(ev)
	}
}
