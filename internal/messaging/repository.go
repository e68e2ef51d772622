// internal/messaging/repository.go

package messaging

import (
	"context"
	"time"
)

// Repository handles conversation and message persistence. Read-side
// enrichment (profiles, receipts) is composed by the service on top of the
// bare entities these methods return.
type Repository interface {
	// Conversations
	GetDirectConversation(ctx context.Context, user1ID, user2ID int64) (*Conversation, error)
	CreateDirectConversation(ctx context.Context, user1ID, user2ID int64) (*Conversation, bool, error)
	GetConversation(ctx context.Context, id int64) (*Conversation, error)
	GetUserConversations(ctx context.Context, userID int64, limit, offset int) ([]*Conversation, error)
	IsParticipant(ctx context.Context, conversationID, userID int64) (bool, error)
	TouchConversation(ctx context.Context, conversationID, messageID int64, at time.Time) error

	// Messages
	CreateMessage(ctx context.Context, message *Message) error
	GetMessage(ctx context.Context, id int64) (*Message, error)
	GetConversationMessages(ctx context.Context, conversationID, viewerID int64, limit, offset int) ([]*Message, error)
	MarkMessageRead(ctx context.Context, messageID, userID int64) error
	MarkMessagesRead(ctx context.Context, messageIDs []int64, userID int64) error
	HideMessageForUser(ctx context.Context, messageID, userID int64) error
	DeleteMessageForEveryone(ctx context.Context, messageID int64) error

	// Unread tracking
	UnreadCountForUser(ctx context.Context, userID int64) (int, error)
	UnreadCountForConversation(ctx context.Context, conversationID, userID int64) (int, error)

	// Users
	GetUserInfo(ctx context.Context, userID int64) (*UserInfo, error)
}
