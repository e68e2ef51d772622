// internal/messaging/hub_test.go

package messaging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Register a client without starting pumps; tests read c.send directly.
func registerClient(hub *Hub, userID int64) *Client {
	client := NewClient(hub, nil, userID)
	hub.register <- client
	return client
}

func receive(t *testing.T, c *Client) *envelope {
	t.Helper()
	select {
	case payload, ok := <-c.send:
		require.True(t, ok, "send channel closed")
		return payload
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func assertClosed(t *testing.T, c *Client) {
	t.Helper()
	select {
	case _, ok := <-c.send:
		assert.False(t, ok, "expected send channel to be closed")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}

func textMessage(id, sender, recipient int64) *Message {
	text := "hello"
	return &Message{
		ID:             id,
		ConversationID: 1,
		SenderID:       sender,
		RecipientID:    recipient,
		Type:           TypeText,
		Text:           &text,
	}
}

func TestHubDeliversToBothParticipants(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Shutdown()

	alice := registerClient(hub, 1)
	bob := registerClient(hub, 2)

	hub.PublishNewMessage(textMessage(42, 1, 2))

	for _, client := range []*Client{alice, bob} {
		payload := receive(t, client)
		assert.Equal(t, EventNewMessage, payload.Event)
		msg, ok := payload.Data.(*Message)
		require.True(t, ok)
		assert.Equal(t, int64(42), msg.ID)
	}
}

func TestHubSkipsOfflineUsers(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Shutdown()

	alice := registerClient(hub, 1)

	// Recipient is offline; only the sender's connection hears about it
	hub.PublishNewMessage(textMessage(7, 1, 2))

	payload := receive(t, alice)
	assert.Equal(t, EventNewMessage, payload.Event)
}

func TestHubReplacesExistingConnection(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Shutdown()

	stale := registerClient(hub, 1)
	fresh := registerClient(hub, 1)

	// The stale connection is dropped when the same user reconnects
	assertClosed(t, stale)

	hub.PublishMessageDeleted(1, 2, &MessageDeletedEvent{MessageID: 9, ConversationID: 3})
	payload := receive(t, fresh)
	assert.Equal(t, EventMessageDeleted, payload.Event)
}

func TestHubUnregisterIgnoresReplacedClient(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Shutdown()

	stale := registerClient(hub, 1)
	fresh := registerClient(hub, 1)
	assertClosed(t, stale)

	// The stale client's pump shutting down must not evict the fresh one
	hub.unregister <- stale

	hub.PublishNewMessage(textMessage(5, 2, 1))
	payload := receive(t, fresh)
	assert.Equal(t, EventNewMessage, payload.Event)
}

func TestHubShutdownDisconnectsClients(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	alice := registerClient(hub, 1)
	hub.Shutdown()

	assertClosed(t, alice)
}
