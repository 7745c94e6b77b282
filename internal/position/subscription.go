package position

import (
	"sync"
	"time"
)

type rawEvent struct {
	sample Sample
	err    error
}

// subscription is the Subscription shared by every source. A producer
// goroutine feeds raw events; run filters them and enforces the timeout.
type subscription struct {
	samples chan Sample
	errs    chan error
	quit    chan struct{}
	done    chan struct{}

	once     sync.Once
	onCancel func()
}

func newSubscription(onCancel func()) *subscription {
	return &subscription{
		samples:  make(chan Sample, 16),
		errs:     make(chan error, 16),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		onCancel: onCancel,
	}
}

func (s *subscription) Samples() <-chan Sample { return s.samples }
func (s *subscription) Errors() <-chan error   { return s.errs }

// Cancel stops the watch and waits for the delivery loop to exit. Safe to
// call more than once.
func (s *subscription) Cancel() {
	s.once.Do(func() {
		close(s.quit)
		if s.onCancel != nil {
			s.onCancel()
		}
	})
	<-s.done
}

func (s *subscription) run(source string, input <-chan rawEvent, f *filter, timeout time.Duration) {
	defer func() {
		close(s.samples)
		close(s.errs)
		close(s.done)
	}()

	var timeoutC <-chan time.Time
	var timer *time.Timer
	if timeout > 0 {
		timer = time.NewTimer(timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	for {
		select {
		case <-s.quit:
			return
		case ev, ok := <-input:
			if !ok {
				return
			}
			if ev.err != nil {
				if !s.emitError(&SensorError{Source: source, Err: ev.err}) {
					return
				}
				continue
			}
			if timer != nil {
				timer.Reset(timeout)
			}
			if !f.accept(ev.sample) {
				continue
			}
			if !s.emitSample(ev.sample) {
				return
			}
		case <-timeoutC:
			if !s.emitError(&SensorError{Source: source, Err: ErrTimeout}) {
				return
			}
			timer.Reset(timeout)
		}
	}
}

func (s *subscription) emitSample(sample Sample) bool {
	select {
	case s.samples <- sample:
		return true
	case <-s.quit:
		return false
	}
}

func (s *subscription) emitError(err error) bool {
	select {
	case s.errs <- err:
		return true
	case <-s.quit:
		return false
	}
}

// send hands a raw event to run unless the subscription was cancelled.
func send(quit <-chan struct{}, input chan<- rawEvent, ev rawEvent) bool {
	select {
	case input <- ev:
		return true
	case <-quit:
		return false
	}
}
