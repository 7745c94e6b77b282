package stream

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"movetracker/internal/participant"
	"movetracker/internal/platform/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
)

func startStreamApp(t *testing.T, hub *Hub, keepalive time.Duration) string {
	t.Helper()
	app := fiber.New()
	RegisterRoutes(app.Group("/stream"), hub, keepalive)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error: %v", err)
	}
	go func() {
		_ = app.Listener(ln)
	}()
	t.Cleanup(func() { _ = app.Shutdown() })
	return "ws://" + ln.Addr().String() + "/stream/ws"
}

func readSocketFrame(t *testing.T, conn *websocket.Conn) participant.Frame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	var f participant.Frame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read error: %v", err)
	}
	return f
}

func TestStreamHandlersUpgradeRequired(t *testing.T) {
	app := fiber.New()
	RegisterRoutes(app.Group("/stream"), NewHub(nil, logger.Discard(), nil), 0)

	req := httptest.NewRequest(http.MethodGet, "/stream/ws", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	if resp.StatusCode == http.StatusOK {
		t.Fatalf("expected non-200 for non-websocket request")
	}
}

func TestStreamHandlersSubscribeAndDeliver(t *testing.T) {
	hub := NewHub(nil, logger.Discard(), nil)
	url := startStreamApp(t, hub, time.Minute)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(participant.Frame{Type: participant.FrameSubscribe, Topic: "event:e-1"}); err != nil {
		t.Fatalf("write error: %v", err)
	}
	if f := readSocketFrame(t, conn); f.Type != participant.FrameAck || f.Topic != "event:e-1" {
		t.Fatalf("unexpected frame %+v", f)
	}

	hub.PublishDistance(participant.KindEvent, "e-1", 500)
	f := readSocketFrame(t, conn)
	var update participant.DistanceUpdate
	if err := json.Unmarshal(f.Payload, &update); err != nil || update.Distance == nil || *update.Distance != 500 {
		t.Fatalf("unexpected payload %s", f.Payload)
	}
}

func TestStreamHandlersKeepalive(t *testing.T) {
	hub := NewHub(nil, logger.Discard(), nil)
	url := startStreamApp(t, hub, 20*time.Millisecond)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer conn.Close()

	f := readSocketFrame(t, conn)
	if f.Type != participant.FrameKeepalive || len(f.Payload) != 0 {
		t.Fatalf("expected keepalive, got %+v", f)
	}
}

func TestStreamHandlersIgnoresGarbage(t *testing.T) {
	hub := NewHub(nil, logger.Discard(), nil)
	url := startStreamApp(t, hub, time.Minute)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer conn.Close()

	_ = conn.WriteMessage(websocket.TextMessage, []byte("{"))
	_ = conn.WriteJSON(participant.Frame{Type: participant.FrameSubscribe, Topic: "group:g-2"})
	if f := readSocketFrame(t, conn); f.Type != participant.FrameAck {
		t.Fatalf("expected ack after garbage, got %+v", f)
	}
}

func TestStreamHandlersCloseUnregisters(t *testing.T) {
	hub := NewHub(nil, logger.Discard(), nil)
	url := startStreamApp(t, hub, time.Minute)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	conn.Close()

	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("client was not unregistered")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
