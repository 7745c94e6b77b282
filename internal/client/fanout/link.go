package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"movetracker/internal/participant"
	"movetracker/internal/platform/metrics"
)

var ErrNotConnected = errors.New("stream link not connected")

const writeTimeout = 5 * time.Second

// ReconnectConfig controls the exponential backoff between dial attempts.
// MaxRetries of 0 retries forever.
type ReconnectConfig struct {
	MaxRetries    int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
}

func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		RetryDelay:    time.Second,
		MaxRetryDelay: 30 * time.Second,
	}
}

// Link is the single websocket connection to the authority's stream
// endpoint. It redials whenever the connection drops.
type Link struct {
	url     string
	header  http.Header
	dialer  *websocket.Dialer
	cfg     ReconnectConfig
	log     *slog.Logger
	metrics *metrics.Metrics

	mu          sync.Mutex
	conn        *websocket.Conn
	connects    int
	onFrame     []func(participant.Frame)
	onConnect   []func()
	onReconnect []func()

	writeMu sync.Mutex
}

func NewLink(url, token string, cfg ReconnectConfig, log *slog.Logger, m *metrics.Metrics) *Link {
	if log == nil {
		log = slog.Default()
	}
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return &Link{
		url:     url,
		header:  header,
		dialer:  websocket.DefaultDialer,
		cfg:     cfg,
		log:     log,
		metrics: m,
	}
}

// OnFrame registers a handler for every decoded frame. Handlers run on the
// read goroutine in arrival order.
func (l *Link) OnFrame(fn func(participant.Frame)) {
	l.mu.Lock()
	l.onFrame = append(l.onFrame, fn)
	l.mu.Unlock()
}

// OnConnect registers fn to run after every successful dial, the first
// included, before any frame is read.
func (l *Link) OnConnect(fn func()) {
	l.mu.Lock()
	l.onConnect = append(l.onConnect, fn)
	l.mu.Unlock()
}

// OnReconnected registers fn to run after every successful dial except the
// first.
func (l *Link) OnReconnected(fn func()) {
	l.mu.Lock()
	l.onReconnect = append(l.onReconnect, fn)
	l.mu.Unlock()
}

func (l *Link) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn != nil
}

// Send writes a frame on the current connection.
func (l *Link) Send(f participant.Frame) error {
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(f)
}

// Run dials and serves the link until ctx is cancelled or MaxRetries
// consecutive dials fail.
func (l *Link) Run(ctx context.Context) error {
	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, _, err := l.dialer.DialContext(ctx, l.url, l.header)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			attempt++
			if l.cfg.MaxRetries > 0 && attempt > l.cfg.MaxRetries {
				return fmt.Errorf("stream link: max retries exceeded (%d attempts): %w", l.cfg.MaxRetries, err)
			}
			delay := calculateBackoff(attempt, l.cfg)
			l.log.Warn("stream dial failed, retrying", "err", err, "attempt", attempt, "delay", delay)

			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		attempt = 0
		l.serve(ctx, conn)
	}
}

func (l *Link) serve(ctx context.Context, conn *websocket.Conn) {
	l.mu.Lock()
	l.conn = conn
	l.connects++
	reconnect := l.connects > 1
	onConnect := append([]func(){}, l.onConnect...)
	onReconnect := append([]func(){}, l.onReconnect...)
	l.mu.Unlock()

	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()
	defer func() {
		close(stop)
		l.mu.Lock()
		l.conn = nil
		l.mu.Unlock()
		_ = conn.Close()
	}()

	l.log.Info("stream connected", "url", l.url, "reconnect", reconnect)
	for _, fn := range onConnect {
		fn()
	}
	if reconnect {
		l.metrics.IncReconnects()
		for _, fn := range onReconnect {
			fn()
		}
	}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				l.log.Warn("stream disconnected", "err", err)
			}
			return
		}
		var frame participant.Frame
		if err := json.Unmarshal(msg, &frame); err != nil {
			l.log.Debug("undecodable stream frame", "err", err)
			continue
		}

		l.mu.Lock()
		handlers := append([]func(participant.Frame){}, l.onFrame...)
		l.mu.Unlock()
		for _, fn := range handlers {
			fn(frame)
		}
	}
}

// calculateBackoff returns RetryDelay * 2^(attempt-1), capped at
// MaxRetryDelay.
func calculateBackoff(attempt int, cfg ReconnectConfig) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 31 {
		attempt = 31
	}
	delay := cfg.RetryDelay * time.Duration(1<<uint(attempt-1))
	if cfg.MaxRetryDelay > 0 && (delay > cfg.MaxRetryDelay || delay <= 0) {
		delay = cfg.MaxRetryDelay
	}
	return delay
}
