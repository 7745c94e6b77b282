// Package position defines the position stream contract used by the tracker
// and the sources that implement it.
package position

import (
	"time"

	"movetracker/internal/shared/geo"
)

// Sample is one fix from a position source. Nil fields are unknown.
type Sample struct {
	Latitude  *float64  `json:"latitude" yaml:"latitude"`
	Longitude *float64  `json:"longitude" yaml:"longitude"`
	Accuracy  *float64  `json:"accuracy,omitempty" yaml:"accuracy"`
	Speed     *float64  `json:"speed,omitempty" yaml:"speed"`
	Heading   *float64  `json:"heading,omitempty" yaml:"heading"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// HasFix reports whether both coordinates are known.
func (s Sample) HasFix() bool {
	return s.Latitude != nil && s.Longitude != nil
}

// Options configures a watch.
type Options struct {
	HighAccuracy      bool
	Timeout           time.Duration // max wait for the next sample before a timeout error
	MaxAge            time.Duration // samples older than this are dropped
	MinMovementMeters float64       // suppress samples closer than this to the last delivered one
}

// DefaultOptions are the settings the tracker watches with.
func DefaultOptions() Options {
	return Options{
		HighAccuracy:      true,
		Timeout:           5 * time.Second,
		MaxAge:            time.Second,
		MinMovementMeters: 5,
	}
}

// Subscription is a running watch. Samples and Errors are closed after
// Cancel returns or the source ends.
type Subscription interface {
	Samples() <-chan Sample
	Errors() <-chan error
	Cancel()
}

// Source produces a continuous stream of samples.
type Source interface {
	Watch(opts Options) (Subscription, error)
}

// filter applies the movement and age thresholds of Options.
type filter struct {
	opts Options
	now  func() time.Time
	last *Sample
}

func newFilter(opts Options, now func() time.Time) *filter {
	if now == nil {
		now = time.Now
	}
	return &filter{opts: opts, now: now}
}

// accept reports whether s should be delivered and remembers it if so.
func (f *filter) accept(s Sample) bool {
	if f.opts.MaxAge > 0 && !s.Timestamp.IsZero() && f.now().Sub(s.Timestamp) > f.opts.MaxAge {
		return false
	}
	if f.last != nil && f.opts.MinMovementMeters > 0 && s.HasFix() && f.last.HasFix() {
		meters := geo.Distance(f.last.Latitude, f.last.Longitude, s.Latitude, s.Longitude) * 1000
		if meters < f.opts.MinMovementMeters {
			return false
		}
	}
	if s.HasFix() {
		f.last = &s
	}
	return true
}
