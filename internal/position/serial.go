package position

import (
	"bufio"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
)

// SerialSource reads NMEA 0183 sentences from a GPS receiver on a serial
// port. A read failure is reported as a SensorError and the port is reopened
// with exponential backoff until the watch is cancelled.
type SerialSource struct {
	Device        string
	Baud          int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration

	open func(device string, mode *serial.Mode) (io.ReadCloser, error)
	now  func() time.Time
}

func NewSerialSource(device string, baud int) *SerialSource {
	if baud <= 0 {
		baud = 9600
	}
	return &SerialSource{
		Device:        device,
		Baud:          baud,
		RetryDelay:    500 * time.Millisecond,
		MaxRetryDelay: 10 * time.Second,
		open: func(device string, mode *serial.Mode) (io.ReadCloser, error) {
			return serial.Open(device, mode)
		},
		now: time.Now,
	}
}

// portHolder tracks the currently open port so Cancel can unblock a read.
type portHolder struct {
	mu     sync.Mutex
	port   io.ReadCloser
	closed bool
}

// set installs port, closing it instead when the watch is already over.
func (h *portHolder) set(port io.ReadCloser) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		_ = port.Close()
		return false
	}
	h.port = port
	return true
}

func (h *portHolder) release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.port != nil {
		_ = h.port.Close()
		h.port = nil
	}
}

func (h *portHolder) shutdown() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	h.release()
}

func (s *SerialSource) Watch(opts Options) (Subscription, error) {
	port, err := s.open(s.Device, s.mode())
	if err != nil {
		return nil, &SensorError{Source: s.Device, Err: err}
	}

	holder := &portHolder{port: port}
	input := make(chan rawEvent)
	sub := newSubscription(holder.shutdown)
	go s.read(holder, port, input, sub.quit)
	go sub.run(s.Device, input, newFilter(opts, s.now), opts.Timeout)
	return sub, nil
}

func (s *SerialSource) mode() *serial.Mode {
	return &serial.Mode{BaudRate: s.Baud}
}

// read drains port, then keeps reopening the device after every failure.
// input stays open until quit closes.
func (s *SerialSource) read(holder *portHolder, port io.Reader, input chan<- rawEvent, quit <-chan struct{}) {
	defer close(input)

	for {
		err := s.scan(port, input, quit)
		if stopped(quit) {
			return
		}
		if !send(quit, input, rawEvent{err: err}) {
			return
		}
		holder.release()

		next, ok := s.reopen(input, quit)
		if !ok || !holder.set(next) {
			return
		}
		port = next
	}
}

// scan decodes sentences until the port fails. A clean EOF means the
// receiver went away and is reported as io.EOF.
func (s *SerialSource) scan(port io.Reader, input chan<- rawEvent, quit <-chan struct{}) error {
	scanner := bufio.NewScanner(port)
	for scanner.Scan() {
		sample, ok, err := parseNMEA(scanner.Text(), s.now())
		switch {
		case err != nil:
			if !send(quit, input, rawEvent{err: err}) {
				return nil
			}
		case ok:
			if !send(quit, input, rawEvent{sample: sample}) {
				return nil
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return io.EOF
}

func (s *SerialSource) reopen(input chan<- rawEvent, quit <-chan struct{}) (io.ReadCloser, bool) {
	for attempt := 1; ; attempt++ {
		select {
		case <-time.After(reopenDelay(attempt, s.RetryDelay, s.MaxRetryDelay)):
		case <-quit:
			return nil, false
		}

		port, err := s.open(s.Device, s.mode())
		if err == nil {
			return port, true
		}
		if !send(quit, input, rawEvent{err: err}) {
			return nil, false
		}
	}
}

// reopenDelay returns base * 2^(attempt-1), capped at ceiling.
func reopenDelay(attempt int, base, ceiling time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 31 {
		attempt = 31
	}
	delay := base * time.Duration(1<<uint(attempt-1))
	if ceiling > 0 && (delay > ceiling || delay <= 0) {
		delay = ceiling
	}
	return delay
}

func stopped(quit <-chan struct{}) bool {
	select {
	case <-quit:
		return true
	default:
		return false
	}
}
