// internal/notifications/models.go

package notifications

import "time"

// NotificationType enumerates the supported notification kinds
type NotificationType string

const (
	TypeLike      NotificationType = "like"
	TypeComment   NotificationType = "comment"
	TypeFollow    NotificationType = "follow"
	TypeStoryView NotificationType = "story_view"
	TypeMention   NotificationType = "mention"
)

// valid reports whether t is a known notification type
func (t NotificationType) valid() bool {
	switch t {
	case TypeLike, TypeComment, TypeFollow, TypeStoryView, TypeMention:
		return true
	}
	return false
}

// Notification is a stored in-app notification
type Notification struct {
	ID          int64            `json:"id" db:"id"`
	RecipientID int64            `json:"recipientId" db:"recipient_id"`
	SenderID    int64            `json:"senderId" db:"sender_id"`
	Type        NotificationType `json:"type" db:"type"`
	Message     string           `json:"message" db:"message"`
	PostID      *int64           `json:"postId,omitempty" db:"post_id"`
	CommentID   *int64           `json:"commentId,omitempty" db:"comment_id"`
	StoryID     *int64           `json:"storyId,omitempty" db:"story_id"`
	IsRead      bool             `json:"isRead" db:"is_read"`
	ReadAt      *time.Time       `json:"readAt,omitempty" db:"read_at"`
	CreatedAt   time.Time        `json:"createdAt" db:"created_at"`

	// Computed fields
	Sender *SenderInfo `json:"sender,omitempty"`
}

// SenderInfo is the profile slice shown with a notification
type SenderInfo struct {
	ID       int64   `json:"id" db:"id"`
	Username string  `json:"username" db:"username"`
	Avatar   *string `json:"avatar,omitempty" db:"avatar_url"`
}

// CreateInput describes a notification to record
type CreateInput struct {
	RecipientID int64
	SenderID    int64
	Type        NotificationType
	PostID      *int64
	CommentID   *int64
	StoryID     *int64
}
