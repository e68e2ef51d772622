// internal/messaging/models.go

package messaging

import "time"

// MessageType is the content variant carried by a message
type MessageType string

const (
	TypeText  MessageType = "text"
	TypeImage MessageType = "image"
	TypeVideo MessageType = "video"
	TypeFile  MessageType = "file"
)

// MaxTextLength is the upper bound on text message content
const MaxTextLength = 1000

// UserInfo is the public profile slice attached to conversations and messages
type UserInfo struct {
	ID       int64   `json:"id" db:"id"`
	Username string  `json:"username" db:"username"`
	Avatar   *string `json:"avatar,omitempty" db:"avatar_url"`
}

// Conversation represents a messaging thread. Only direct (two-participant)
// conversations are created through the API; the group columns exist in the
// schema but no operation populates them.
type Conversation struct {
	ID                   int64     `json:"id" db:"id"`
	IsGroup              bool      `json:"isGroup" db:"is_group"`
	GroupName            *string   `json:"groupName,omitempty" db:"group_name"`
	GroupImage           *string   `json:"groupImage,omitempty" db:"group_image"`
	LastMessageID        *int64    `json:"-" db:"last_message_id"`
	LastActivity         time.Time `json:"lastActivity" db:"last_activity"`
	IsActive             bool      `json:"isActive" db:"is_active"`
	NotificationsEnabled bool      `json:"notifications" db:"notifications_enabled"`
	CreatedAt            time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt            time.Time `json:"updatedAt" db:"updated_at"`

	// Computed fields
	Participants []*UserInfo `json:"participants,omitempty"`
	LastMessage  *Message    `json:"lastMessage,omitempty"`
}

// OtherParticipant returns the first participant whose id differs from
// userID. Only meaningful for direct conversations.
func (c *Conversation) OtherParticipant(userID int64) *UserInfo {
	for _, p := range c.Participants {
		if p.ID != userID {
			return p
		}
	}
	return nil
}

// ConversationView is a conversation enriched for one requesting user
type ConversationView struct {
	*Conversation
	UnreadCount      int       `json:"unreadCount"`
	OtherParticipant *UserInfo `json:"otherParticipant,omitempty"`
	DisplayName      string    `json:"displayName"`
	DisplayImage     *string   `json:"displayImage,omitempty"`
}

// Message represents a single direct message
type Message struct {
	ID             int64       `json:"id" db:"id"`
	ConversationID int64       `json:"conversationId" db:"conversation_id"`
	SenderID       int64       `json:"senderId" db:"sender_id"`
	RecipientID    int64       `json:"recipientId" db:"recipient_id"`
	Type           MessageType `json:"type" db:"content_type"`
	Text           *string     `json:"text,omitempty" db:"content_text"`
	MediaURL       *string     `json:"mediaUrl,omitempty" db:"media_url"`
	MediaFilename  *string     `json:"mediaFilename,omitempty" db:"media_filename"`
	MediaSize      *int64      `json:"mediaSize,omitempty" db:"media_size"`
	MediaMimeType  *string     `json:"mediaMimeType,omitempty" db:"media_mimetype"`
	IsDeleted      bool        `json:"isDeleted" db:"is_deleted"`
	DeletedAt      *time.Time  `json:"-" db:"deleted_at"`
	EditedAt       *time.Time  `json:"editedAt,omitempty" db:"edited_at"`
	OriginalText   *string     `json:"-" db:"original_text"`
	CreatedAt      time.Time   `json:"createdAt" db:"created_at"`

	// Computed fields
	Sender    *UserInfo      `json:"sender,omitempty"`
	Recipient *UserInfo      `json:"recipient,omitempty"`
	ReadBy    []*ReadReceipt `json:"readBy,omitempty"`
}

// ReadReceipt marks a message seen by a reader
type ReadReceipt struct {
	MessageID int64     `json:"-" db:"message_id"`
	UserID    int64     `json:"user" db:"user_id"`
	ReadAt    time.Time `json:"readAt" db:"read_at"`
}

// Request DTOs

type StartConversationRequest struct {
	RecipientID int64 `json:"recipientId" validate:"required"`
}

type SendMessageRequest struct {
	RecipientID int64            `json:"recipientId" validate:"required"`
	Content     string           `json:"content"`
	Type        MessageType      `json:"type"`
	Media       *MediaDescriptor `json:"media,omitempty"`
}

// MediaDescriptor references an uploaded payload for non-text messages
type MediaDescriptor struct {
	URL      string `json:"url" validate:"required,url"`
	Filename string `json:"filename,omitempty"`
	Size     int64  `json:"size,omitempty"`
	MimeType string `json:"mimetype,omitempty"`
}

// DeleteMessageRequest selects the deletion mode. Anything other than
// "everyone" deletes for the caller only.
type DeleteMessageRequest struct {
	DeleteFor string `json:"deleteFor"`
}
