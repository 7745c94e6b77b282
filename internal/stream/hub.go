package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"movetracker/internal/participant"
	"movetracker/internal/platform/metrics"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisPrefix = "stream:"

// Hub fans distance updates out to websocket clients by topic. With Redis
// configured every publish goes through Redis so that all instances deliver
// it exactly once; without Redis delivery is local.
type Hub struct {
	redis   *redis.Client
	pubsub  *redis.PubSub
	log     *slog.Logger
	metrics *metrics.Metrics

	mu      sync.RWMutex
	clients map[*Client]struct{}
	topics  map[string]map[*Client]struct{}
}

type Client struct {
	ID   string
	Send chan []byte

	topics map[string]struct{}
	closed bool
}

func NewHub(redisClient *redis.Client, log *slog.Logger, m *metrics.Metrics) *Hub {
	if log == nil {
		log = slog.Default()
	}
	h := &Hub{
		redis:   redisClient,
		log:     log,
		metrics: m,
		clients: map[*Client]struct{}{},
		topics:  map[string]map[*Client]struct{}{},
	}

	if redisClient != nil {
		pubsub := redisClient.PSubscribe(context.Background(), redisPrefix+"*")
		if _, err := pubsub.Receive(context.Background()); err != nil {
			log.Warn("redis subscribe failed, delivering locally only", "error", err)
			_ = pubsub.Close()
			h.redis = nil
		} else {
			h.pubsub = pubsub
			go h.relayRedis(pubsub)
		}
	}
	return h
}

func (h *Hub) Register() *Client {
	client := &Client{
		ID:     uuid.NewString(),
		Send:   make(chan []byte, 64),
		topics: map[string]struct{}{},
	}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.metrics.SetStreamClients(n)
	return client
}

// Subscribe attaches client to topic and acknowledges it. Unknown topic
// shapes are rejected.
func (h *Hub) Subscribe(client *Client, topic string) bool {
	if _, _, ok := participant.ParseTopic(topic); !ok {
		h.log.Debug("rejecting subscription", "client_id", client.ID, "topic", topic)
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if client.closed {
		return false
	}
	if h.topics[topic] == nil {
		h.topics[topic] = map[*Client]struct{}{}
	}
	h.topics[topic][client] = struct{}{}
	client.topics[topic] = struct{}{}

	enqueue(client, encodeFrame(participant.Frame{Type: participant.FrameAck, Topic: topic}))
	return true
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	if client.closed {
		h.mu.Unlock()
		return
	}
	for topic := range client.topics {
		if subs, ok := h.topics[topic]; ok {
			delete(subs, client)
			if len(subs) == 0 {
				delete(h.topics, topic)
			}
		}
	}
	delete(h.clients, client)
	client.closed = true
	close(client.Send)
	n := len(h.clients)
	h.mu.Unlock()

	h.metrics.SetStreamClients(n)
}

// Publish sends payload to every subscriber of topic.
func (h *Hub) Publish(topic string, payload []byte) {
	if h.redis != nil {
		err := h.redis.Publish(context.Background(), redisChannel(topic), payload).Err()
		if err == nil {
			return
		}
		h.log.Error("redis publish error, delivering locally", "topic", topic, "error", err)
	}
	h.deliver(topic, payload)
}

// PublishDistance publishes a distance update for a group or event.
func (h *Hub) PublishDistance(kind participant.Kind, id string, distance float64) {
	payload, _ := json.Marshal(participant.DistanceUpdate{Distance: &distance})
	h.Publish(participant.Topic(kind, id), payload)
	h.metrics.IncPublishes(string(kind))
}

// ClientCount reports connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Close() error {
	if h.pubsub != nil {
		return h.pubsub.Close()
	}
	return nil
}

func (h *Hub) deliver(topic string, payload []byte) {
	msg := encodeFrame(participant.Frame{Type: participant.FrameData, Topic: topic, Payload: payload})

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.topics[topic] {
		enqueue(client, msg)
	}
}

func (h *Hub) relayRedis(pubsub *redis.PubSub) {
	for msg := range pubsub.Channel() {
		topic := topicFromChannel(msg.Channel)
		if topic == "" {
			continue
		}
		h.deliver(topic, []byte(msg.Payload))
	}
}

// enqueue drops the message when the client is slow; the next update
// carries the full distance anyway. Callers hold h.mu.
func enqueue(client *Client, msg []byte) {
	if client.closed {
		return
	}
	select {
	case client.Send <- msg:
	default:
	}
}

func encodeFrame(f participant.Frame) []byte {
	b, _ := json.Marshal(f)
	return b
}

func redisChannel(topic string) string {
	return redisPrefix + topic
}

func topicFromChannel(ch string) string {
	// stream:{kind}:{id}
	if !strings.HasPrefix(ch, redisPrefix) || len(ch) == len(redisPrefix) {
		return ""
	}
	return ch[len(redisPrefix):]
}
