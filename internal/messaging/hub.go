// internal/messaging/hub.go

package messaging

import (
	"log"
	"sync"
)

// envelope is the wire format for every realtime push
type envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// delivery targets an envelope at one user's connection
type delivery struct {
	userID  int64
	payload *envelope
}

// Hub tracks the websocket connection for each online user and fans domain
// events out to them. One connection per user: a fresh connection replaces
// the previous one.
type Hub struct {
	clients    map[int64]*Client
	register   chan *Client
	unregister chan *Client
	deliver    chan *delivery
	done       chan struct{}
	once       sync.Once
}

// NewHub creates a new hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[int64]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		deliver:    make(chan *delivery, 256),
		done:       make(chan struct{}),
	}
}

// Run owns the client map. All registration and delivery flows through this
// single goroutine, so the map needs no locking.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			if existing, ok := h.clients[client.userID]; ok {
				close(existing.send)
			}
			h.clients[client.userID] = client
			connectedClients.Set(float64(len(h.clients)))

		case client := <-h.unregister:
			if current, ok := h.clients[client.userID]; ok && current == client {
				delete(h.clients, client.userID)
				close(client.send)
			}
			connectedClients.Set(float64(len(h.clients)))

		case d := <-h.deliver:
			client, ok := h.clients[d.userID]
			if !ok {
				continue
			}
			select {
			case client.send <- d.payload:
				eventsDelivered.WithLabelValues(d.payload.Event).Inc()
			default:
				// Slow consumer: drop the connection rather than block the hub
				delete(h.clients, client.userID)
				close(client.send)
				connectedClients.Set(float64(len(h.clients)))
			}

		case <-h.done:
			for _, client := range h.clients {
				close(client.send)
			}
			h.clients = make(map[int64]*Client)
			connectedClients.Set(0)
			return
		}
	}
}

// Shutdown disconnects all clients and stops the hub loop
func (h *Hub) Shutdown() {
	h.once.Do(func() {
		close(h.done)
	})
}

// send queues an envelope for a user, dropping it if the hub is stopping
func (h *Hub) send(userID int64, payload *envelope) {
	select {
	case h.deliver <- &delivery{userID: userID, payload: payload}:
	case <-h.done:
	}
}

// PublishNewMessage pushes a persisted message to sender and recipient
func (h *Hub) PublishNewMessage(message *Message) {
	payload := &envelope{Event: EventNewMessage, Data: message}
	h.send(message.RecipientID, payload)
	h.send(message.SenderID, payload)
}

// PublishMessageDeleted tells both participants a message was removed
func (h *Hub) PublishMessageDeleted(senderID, recipientID int64, event *MessageDeletedEvent) {
	payload := &envelope{Event: EventMessageDeleted, Data: event}
	h.send(recipientID, payload)
	h.send(senderID, payload)
}

var _ EventPublisher = (*Hub)(nil)

func logClientError(userID int64, context string, err error) {
	log.Printf("websocket: user %d: %s: %v", userID, context, err)
}
