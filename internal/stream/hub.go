// Package stream pushes view publish events to websocket subscribers.
package stream

import (
	"encoding/json"
	"log/slog"
	"time"
)

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// AllTopics subscribes a client to every topic.
const AllTopics = "*"

// Event is the payload written to subscribers whenever a view publishes.
type Event struct {
	Topic string    `json:"topic"`
	Kind  string    `json:"kind"`
	At    time.Time `json:"at"`
	Data  any       `json:"data,omitempty"`
}

// Hub manages stream subscriptions by topic.
type Hub struct {
	clients   map[string]map[Subscriber]struct{}
	register  chan subscription
	unreg     chan subscription
	broadcast chan message
	count     chan chan int
	done      chan struct{}
	log       *slog.Logger
}

type message struct {
	topic   string
	payload []byte
}

type subscription struct {
	topic  string
	client Subscriber
}

// NewHub creates an initialized Hub and starts its loop.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		clients:   make(map[string]map[Subscriber]struct{}),
		register:  make(chan subscription),
		unreg:     make(chan subscription),
		broadcast: make(chan message, 64),
		count:     make(chan chan int),
		done:      make(chan struct{}),
		log:       logger.With("module", "stream"),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			for _, clients := range h.clients {
				for c := range clients {
					c.Close()
				}
			}
			h.clients = nil
			return
		case sub := <-h.register:
			if _, ok := h.clients[sub.topic]; !ok {
				h.clients[sub.topic] = make(map[Subscriber]struct{})
			}
			h.clients[sub.topic][sub.client] = struct{}{}
		case sub := <-h.unreg:
			h.drop(sub.topic, sub.client)
		case msg := <-h.broadcast:
			h.deliver(msg.topic, msg.payload)
			if msg.topic != AllTopics {
				h.deliver(AllTopics, msg.payload)
			}
		case reply := <-h.count:
			n := 0
			for _, clients := range h.clients {
				n += len(clients)
			}
			reply <- n
		}
	}
}

func (h *Hub) deliver(topic string, payload []byte) {
	for c := range h.clients[topic] {
		if err := c.Send(payload); err != nil {
			c.Close()
			h.drop(topic, c)
		}
	}
}

func (h *Hub) drop(topic string, c Subscriber) {
	clients, ok := h.clients[topic]
	if !ok {
		return
	}
	delete(clients, c)
	if len(clients) == 0 {
		delete(h.clients, topic)
	}
}

// Register adds a client to a topic stream.
func (h *Hub) Register(topic string, client Subscriber) {
	select {
	case h.register <- subscription{topic: topic, client: client}:
	case <-h.done:
		client.Close()
	}
}

// Unregister removes a client.
func (h *Hub) Unregister(topic string, client Subscriber) {
	select {
	case h.unreg <- subscription{topic: topic, client: client}:
	case <-h.done:
	}
}

// Broadcast sends payload to all topic clients and to clients of AllTopics.
func (h *Hub) Broadcast(topic string, payload []byte) {
	select {
	case h.broadcast <- message{topic: topic, payload: payload}:
	case <-h.done:
	}
}

// Publish encodes an event for topic and broadcasts it.
func (h *Hub) Publish(topic, kind string, data any) {
	payload, err := json.Marshal(Event{Topic: topic, Kind: kind, At: time.Now().UTC(), Data: data})
	if err != nil {
		h.log.Warn("encode stream event", "topic", topic, "error", err)
		return
	}
	h.Broadcast(topic, payload)
}

// Subscribers reports the number of registered clients.
func (h *Hub) Subscribers() int {
	reply := make(chan int, 1)
	select {
	case h.count <- reply:
		return <-reply
	case <-h.done:
		return 0
	}
}

// Close stops the loop and closes every client. It must be called once.
func (h *Hub) Close() {
	close(h.done)
}
