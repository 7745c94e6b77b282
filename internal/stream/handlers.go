package stream

import (
	"encoding/json"
	"time"

	"movetracker/internal/participant"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

const DefaultKeepalive = 20 * time.Second

// RegisterRoutes mounts the multiplexed stream socket at /ws. Clients send
// subscribe frames; the server answers with ack, data and keepalive frames.
func RegisterRoutes(r fiber.Router, hub *Hub, keepalive time.Duration) {
	if keepalive <= 0 {
		keepalive = DefaultKeepalive
	}
	keepaliveFrame := encodeFrame(participant.Frame{Type: participant.FrameKeepalive})

	r.Get("/ws", websocket.New(func(c *websocket.Conn) {
		client := hub.Register()

		done := make(chan struct{})
		go func() {
			defer close(done)
			ticker := time.NewTicker(keepalive)
			defer ticker.Stop()
			for {
				select {
				case msg, ok := <-client.Send:
					if !ok {
						return
					}
					if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
						return
					}
				case <-ticker.C:
					if err := c.WriteMessage(websocket.TextMessage, keepaliveFrame); err != nil {
						return
					}
				}
			}
		}()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				break
			}
			var frame participant.Frame
			if err := json.Unmarshal(msg, &frame); err != nil {
				continue
			}
			if frame.Type == participant.FrameSubscribe {
				hub.Subscribe(client, frame.Topic)
			}
		}
		hub.Unregister(client)
		<-done
	}))
}
