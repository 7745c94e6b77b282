package participant

import "encoding/json"

// Frame types exchanged on the stream websocket.
const (
	FrameSubscribe = "subscribe"
	FrameAck       = "ack"
	FrameData      = "data"
	FrameKeepalive = "keepalive"
)

// Frame is the envelope for every stream message in both directions.
type Frame struct {
	Type    string          `json:"type"`
	Topic   string          `json:"topic,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}
