package position

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// TrackPoint is one step of a replay track: a sample or a simulated error.
type TrackPoint struct {
	Sample `yaml:",inline"`
	Error  string `yaml:"error"`
}

// Track is a recorded or hand-written sequence of fixes.
type Track struct {
	Interval time.Duration `yaml:"interval"`
	Loop     bool          `yaml:"loop"`
	Points   []TrackPoint  `yaml:"points"`
}

// LoadTrack reads a YAML track file.
func LoadTrack(path string) (Track, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Track{}, err
	}
	return ParseTrack(data)
}

// ParseTrack decodes a track. The interval defaults to one second and must
// stay below the watch timeout, or every gap would raise ErrTimeout.
func ParseTrack(data []byte) (Track, error) {
	var t Track
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Track{}, fmt.Errorf("parse track: %w", err)
	}
	if len(t.Points) == 0 {
		return Track{}, errors.New("track has no points")
	}
	if t.Interval <= 0 {
		t.Interval = time.Second
	}
	if limit := DefaultOptions().Timeout; t.Interval >= limit {
		return Track{}, fmt.Errorf("track interval %v must be below the %v position timeout", t.Interval, limit)
	}
	return t, nil
}

// ReplaySource plays a Track back in real time. Each sample is stamped with
// the time it is emitted.
type ReplaySource struct {
	track Track
	now   func() time.Time
}

func NewReplaySource(track Track) *ReplaySource {
	return &ReplaySource{track: track, now: time.Now}
}

func (r *ReplaySource) Watch(opts Options) (Subscription, error) {
	input := make(chan rawEvent)
	sub := newSubscription(nil)
	go r.play(input, sub.quit)
	go sub.run("replay", input, newFilter(opts, r.now), opts.Timeout)
	return sub, nil
}

func (r *ReplaySource) play(input chan<- rawEvent, quit <-chan struct{}) {
	defer close(input)

	ticker := time.NewTicker(r.track.Interval)
	defer ticker.Stop()

	for {
		for _, p := range r.track.Points {
			ev := rawEvent{sample: p.Sample}
			if p.Error != "" {
				ev = rawEvent{err: errors.New(p.Error)}
			} else {
				ev.sample.Timestamp = r.now()
			}
			if !send(quit, input, ev) {
				return
			}
			select {
			case <-ticker.C:
			case <-quit:
				return
			}
		}
		if !r.track.Loop {
			return
		}
	}
}
