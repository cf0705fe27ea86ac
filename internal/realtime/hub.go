// Package realtime pushes WhatsApp and ticket events to browsers over
// SockJS. Clients subscribe to named topics.
package realtime

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"intsync/internal/models"
	"intsync/internal/notify"
	"intsync/internal/whatsapp"
)

const (
	TopicWhatsApp = "whatsapp"
	TopicTickets  = "tickets"
	ticketPrefix  = "ticket:"
)

func TicketTopic(id string) string {
	return ticketPrefix + id
}

type Client struct {
	ID     string
	UserID string
	Role   string
	Send   chan []byte

	topics map[string]struct{}

	// hookMu orders hook calls for this client; joined holds the topics
	// whose Join ran without a matching Leave yet.
	hookMu sync.Mutex
	joined map[string]struct{}
}

func NewClient(id, userID, role string) *Client {
	return &Client{
		ID:     id,
		UserID: userID,
		Role:   role,
		Send:   make(chan []byte, 16),
		topics: map[string]struct{}{},
		joined: map[string]struct{}{},
	}
}

type Message struct {
	Topic  string      `json:"topic"`
	Type   string      `json:"type"`
	Data   interface{} `json:"data"`
	SentAt time.Time   `json:"sent_at"`
}

type SubscribeMessage struct {
	Action string `json:"action"`
	Topic  string `json:"topic"`
}

// TopicHooks run outside the hub lock each time a client joins or leaves a
// topic. Calls for one client are serialized and always pair up: Leave runs
// once for every Join, after it.
type TopicHooks struct {
	Join  func(client *Client)
	Leave func(client *Client)
}

type Hub struct {
	logger zerolog.Logger

	mu      sync.RWMutex
	clients map[string]*Client
	hooks   map[string]TopicHooks
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{logger: logger, clients: make(map[string]*Client), hooks: make(map[string]TopicHooks)}
}

func (h *Hub) OnTopic(topic string, hooks TopicHooks) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks[topic] = hooks
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client.ID)
	close(client.Send)
	client.topics = map[string]struct{}{}
	h.mu.Unlock()

	client.hookMu.Lock()
	defer client.hookMu.Unlock()
	for topic := range client.joined {
		h.syncHooksLocked(client, topic)
	}
}

// Subscribe reports whether the client was newly added to topic.
func (h *Hub) Subscribe(client *Client, topic string) bool {
	h.mu.Lock()
	if _, ok := h.clients[client.ID]; !ok {
		h.mu.Unlock()
		return false
	}
	if _, ok := client.topics[topic]; ok {
		h.mu.Unlock()
		return false
	}
	client.topics[topic] = struct{}{}
	h.mu.Unlock()

	h.syncHooks(client, topic)
	return true
}

func (h *Hub) Unsubscribe(client *Client, topic string) {
	h.mu.Lock()
	if _, ok := client.topics[topic]; !ok {
		h.mu.Unlock()
		return
	}
	delete(client.topics, topic)
	h.mu.Unlock()

	h.syncHooks(client, topic)
}

func (h *Hub) syncHooks(client *Client, topic string) {
	client.hookMu.Lock()
	defer client.hookMu.Unlock()
	h.syncHooksLocked(client, topic)
}

// syncHooksLocked brings the hook state for topic in line with the current
// membership. It reads membership afresh, so a Subscribe that lost a race
// with Unregister runs no hook at all.
func (h *Hub) syncHooksLocked(client *Client, topic string) {
	h.mu.RLock()
	_, registered := h.clients[client.ID]
	_, subscribed := client.topics[topic]
	hooks := h.hooks[topic]
	h.mu.RUnlock()

	want := registered && subscribed
	_, joined := client.joined[topic]
	switch {
	case want && !joined:
		client.joined[topic] = struct{}{}
		if hooks.Join != nil {
			hooks.Join(client)
		}
	case !want && joined:
		delete(client.joined, topic)
		if hooks.Leave != nil {
			hooks.Leave(client)
		}
	}
}

func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	count := 0
	for _, client := range h.clients {
		if _, ok := client.topics[topic]; ok {
			count++
		}
	}
	return count
}

func (h *Hub) Publish(topic, kind string, data interface{}) {
	payload, err := encode(topic, kind, data)
	if err != nil {
		h.logger.Error().Err(err).Str("topic", topic).Msg("encode realtime message")
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if _, ok := client.topics[topic]; !ok {
			continue
		}
		h.deliver(client, payload)
	}
}

// SendTo delivers one message to a single registered client.
func (h *Hub) SendTo(client *Client, topic, kind string, data interface{}) {
	payload, err := encode(topic, kind, data)
	if err != nil {
		h.logger.Error().Err(err).Str("topic", topic).Msg("encode realtime message")
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	h.deliver(client, payload)
}

func (h *Hub) deliver(client *Client, payload []byte) {
	select {
	case client.Send <- payload:
	default:
		h.logger.Warn().Str("client_id", client.ID).Msg("drop realtime message")
	}
}

// Attach forwards bus events to topic subscribers.
func (h *Hub) Attach(bus *notify.Bus) {
	bus.OnWhatsAppState(func(snapshot whatsapp.Snapshot) {
		h.Publish(TopicWhatsApp, "state", snapshot)
	})
	bus.OnWhatsAppNotice(func(notice whatsapp.Notice) {
		h.Publish(TopicWhatsApp, "notice", notice)
	})
	bus.OnTicketChanged(func(action string, ticket models.Ticket) {
		payload := map[string]interface{}{"action": action, "ticket": ticket}
		h.Publish(TicketTopic(ticket.ID), "ticket", payload)
		h.Publish(TopicTickets, "ticket", payload)
	})
}

func encode(topic, kind string, data interface{}) ([]byte, error) {
	return json.Marshal(Message{Topic: topic, Type: kind, Data: data, SentAt: time.Now().UTC()})
}

func ParseSubscribe(data []byte) (SubscribeMessage, bool) {
	var msg SubscribeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return SubscribeMessage{}, false
	}
	if msg.Action != "subscribe" && msg.Action != "unsubscribe" {
		return SubscribeMessage{}, false
	}
	msg.Topic = strings.TrimSpace(msg.Topic)
	if !validTopic(msg.Topic) {
		return SubscribeMessage{}, false
	}
	return msg, true
}

func validTopic(topic string) bool {
	switch topic {
	case TopicWhatsApp, TopicTickets:
		return true
	}
	return strings.HasPrefix(topic, ticketPrefix) && len(topic) > len(ticketPrefix)
}
