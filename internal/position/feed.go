package position

import (
	"sync"
	"time"
)

// Feed is a Source driven by the caller, for embedding positions that arrive
// from elsewhere (another process, a test). Push and Fail deliver to the
// active watch, if any.
type Feed struct {
	mu     sync.Mutex
	input  chan rawEvent
	quit   chan struct{}
	active int
	now    func() time.Time
}

func NewFeed() *Feed {
	return &Feed{now: time.Now}
}

func (f *Feed) Watch(opts Options) (Subscription, error) {
	input := make(chan rawEvent)

	sub := newSubscription(func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.input == input {
			f.input = nil
			f.quit = nil
		}
		f.active--
	})

	f.mu.Lock()
	f.input = input
	f.quit = sub.quit
	f.active++
	f.mu.Unlock()

	go sub.run("feed", input, newFilter(opts, f.now), opts.Timeout)
	return sub, nil
}

// Push delivers a sample. It reports false when no watch is active.
func (f *Feed) Push(s Sample) bool {
	return f.deliver(rawEvent{sample: s})
}

// Fail delivers a sensor error. It reports false when no watch is active.
func (f *Feed) Fail(err error) bool {
	return f.deliver(rawEvent{err: err})
}

// Active returns the number of watches that have not been cancelled.
func (f *Feed) Active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

func (f *Feed) deliver(ev rawEvent) bool {
	f.mu.Lock()
	input, quit := f.input, f.quit
	f.mu.Unlock()
	if input == nil {
		return false
	}
	return send(quit, input, ev)
}
