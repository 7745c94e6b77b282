package position

import (
	"errors"
	"testing"
	"time"
)

func f64(v float64) *float64 { return &v }

func fix(lat, lon float64) Sample {
	return Sample{Latitude: f64(lat), Longitude: f64(lon)}
}

func TestFilterMinMovement(t *testing.T) {
	f := newFilter(Options{MinMovementMeters: 5}, nil)

	if !f.accept(fix(0, 0)) {
		t.Fatal("first fix must be accepted")
	}
	// ~1.1 m east
	if f.accept(fix(0, 0.00001)) {
		t.Fatal("sub-threshold move accepted")
	}
	// ~11 m east of the last delivered fix
	if !f.accept(fix(0, 0.0001)) {
		t.Fatal("move above threshold rejected")
	}
}

func TestFilterMaxAge(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	f := newFilter(Options{MaxAge: time.Second}, func() time.Time { return now })

	stale := fix(1, 1)
	stale.Timestamp = now.Add(-2 * time.Second)
	if f.accept(stale) {
		t.Fatal("stale sample accepted")
	}

	fresh := fix(1, 1)
	fresh.Timestamp = now.Add(-500 * time.Millisecond)
	if !f.accept(fresh) {
		t.Fatal("fresh sample rejected")
	}

	if !f.accept(fix(2, 2)) {
		t.Fatal("sample without timestamp rejected")
	}
}

func TestFilterPassesSamplesWithoutFix(t *testing.T) {
	f := newFilter(Options{MinMovementMeters: 5}, nil)
	f.accept(fix(0, 0))
	if !f.accept(Sample{}) {
		t.Fatal("sample without coordinates rejected")
	}
	if f.accept(fix(0, 0)) {
		t.Fatal("last fix must survive a fixless sample")
	}
}

func TestFeedDeliversInOrder(t *testing.T) {
	feed := NewFeed()
	sub, err := feed.Watch(Options{})
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer sub.Cancel()

	for i := 1; i <= 3; i++ {
		if !feed.Push(fix(float64(i), 0)) {
			t.Fatalf("push %d rejected", i)
		}
	}
	for i := 1; i <= 3; i++ {
		s := recvSample(t, sub)
		if *s.Latitude != float64(i) {
			t.Fatalf("sample %d latitude = %v", i, *s.Latitude)
		}
	}
}

func TestFeedErrorKeepsWatchRunning(t *testing.T) {
	feed := NewFeed()
	sub, _ := feed.Watch(Options{})
	defer sub.Cancel()

	feed.Fail(errors.New("no signal"))
	err := recvError(t, sub)
	var sensorErr *SensorError
	if !errors.As(err, &sensorErr) || sensorErr.Source != "feed" {
		t.Fatalf("error = %v", err)
	}

	feed.Push(fix(1, 1))
	if s := recvSample(t, sub); *s.Latitude != 1 {
		t.Fatalf("sample after error = %+v", s)
	}
}

func TestFeedCancel(t *testing.T) {
	feed := NewFeed()
	sub, _ := feed.Watch(Options{})
	if feed.Active() != 1 {
		t.Fatalf("active = %d", feed.Active())
	}

	sub.Cancel()
	sub.Cancel()

	if feed.Active() != 0 {
		t.Fatalf("active after cancel = %d", feed.Active())
	}
	if feed.Push(fix(0, 0)) {
		t.Fatal("push after cancel accepted")
	}
	if _, ok := <-sub.Samples(); ok {
		t.Fatal("samples channel still open")
	}
	if _, ok := <-sub.Errors(); ok {
		t.Fatal("errors channel still open")
	}
}

func TestWatchTimeout(t *testing.T) {
	feed := NewFeed()
	sub, _ := feed.Watch(Options{Timeout: 20 * time.Millisecond})
	defer sub.Cancel()

	err := recvError(t, sub)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("error = %v, want timeout", err)
	}
}

func recvSample(t *testing.T, sub Subscription) Sample {
	t.Helper()
	select {
	case s, ok := <-sub.Samples():
		if !ok {
			t.Fatal("samples channel closed")
		}
		return s
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for sample")
	}
	return Sample{}
}

func recvError(t *testing.T, sub Subscription) error {
	t.Helper()
	select {
	case err, ok := <-sub.Errors():
		if !ok {
			t.Fatal("errors channel closed")
		}
		return err
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for error")
	}
	return nil
}
