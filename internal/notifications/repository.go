// internal/notifications/repository.go

package notifications

import (
	"context"
	"time"
)

// Repository handles notification persistence
type Repository interface {
	Create(ctx context.Context, notification *Notification) error
	GetByID(ctx context.Context, id int64) (*Notification, error)
	GetForUser(ctx context.Context, userID int64, limit, offset int) ([]*Notification, error)
	UnreadCount(ctx context.Context, userID int64) (int, error)

	// GetRecent returns the newest equivalent notification recorded within
	// the window, or nil. Used to debounce repeat events.
	GetRecent(ctx context.Context, input *CreateInput, window time.Duration) (*Notification, error)

	MarkRead(ctx context.Context, id, userID int64) error
	MarkAllRead(ctx context.Context, userID int64) error
	Delete(ctx context.Context, id, userID int64) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	GetUserContact(ctx context.Context, userID int64) (*UserContact, error)
}

// UserContact is the delivery address book entry for external channels
type UserContact struct {
	ID          int64   `db:"id"`
	Username    string  `db:"username"`
	Email       string  `db:"email"`
	PhoneNumber *string `db:"phone_number"`
}
