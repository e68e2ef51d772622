// internal/messaging/events.go

package messaging

// Event names pushed over the realtime channel
const (
	EventNewMessage     = "newMessage"
	EventMessageDeleted = "messageDeleted"
)

// MessageDeletedEvent is the payload for a delete-for-everyone broadcast
type MessageDeletedEvent struct {
	MessageID      int64 `json:"messageId"`
	ConversationID int64 `json:"conversationId"`
}

// EventPublisher delivers post-commit notifications to connected clients.
// Delivery is best effort: publishing happens after the database write has
// succeeded and a failed or dropped delivery never affects the API response.
type EventPublisher interface {
	// PublishNewMessage pushes a newly persisted message to both participants
	PublishNewMessage(message *Message)

	// PublishMessageDeleted tells both participants a message was removed
	PublishMessageDeleted(senderID, recipientID int64, event *MessageDeletedEvent)
}
