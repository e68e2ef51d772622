// internal/notifications/service.go

package notifications

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// Service-level errors
var (
	ErrNotificationNotFound = errors.New("notification not found")
	ErrInvalidType          = errors.New("invalid notification type")
	ErrSelfNotification     = errors.New("cannot notify yourself")
)

// debounceWindow suppresses duplicate notifications for the same
// (recipient, sender, type, entity) tuple within this period
const debounceWindow = 5 * time.Minute

// Service defines notification business logic
type Service interface {
	// Create records a notification. The bool result is false when an
	// equivalent recent notification was returned instead of a new one.
	Create(ctx context.Context, input *CreateInput) (*Notification, bool, error)
	List(ctx context.Context, userID int64, page, limit int) ([]*Notification, int, error)
	UnreadCount(ctx context.Context, userID int64) (int, error)
	MarkRead(ctx context.Context, id, userID int64) error
	MarkAllRead(ctx context.Context, userID int64) error
	Delete(ctx context.Context, id, userID int64) error
	Prune(ctx context.Context, retention time.Duration) (int64, error)
}

// EmailSender delivers a notification by email
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMSSender delivers a notification by SMS
type SMSSender interface {
	Send(ctx context.Context, to, body string) error
}

type service struct {
	repo  Repository
	email EmailSender
	sms   SMSSender
}

// NewService creates a new notification service. Either sender may be nil,
// which disables that channel.
func NewService(repo Repository, email EmailSender, sms SMSSender) Service {
	return &service{repo: repo, email: email, sms: sms}
}

// messageFor renders the canned notification text for a type
func messageFor(t NotificationType, senderName string) string {
	switch t {
	case TypeLike:
		return fmt.Sprintf("%s liked your post", senderName)
	case TypeComment:
		return fmt.Sprintf("%s commented on your post", senderName)
	case TypeFollow:
		return fmt.Sprintf("%s started following you", senderName)
	case TypeStoryView:
		return fmt.Sprintf("%s viewed your story", senderName)
	case TypeMention:
		return fmt.Sprintf("%s mentioned you", senderName)
	default:
		return ""
	}
}

// Create records a notification unless it is a self-notification. A
// duplicate within the debounce window returns the existing record instead
// of creating a new one.
func (s *service) Create(ctx context.Context, input *CreateInput) (*Notification, bool, error) {
	if !input.Type.valid() {
		return nil, false, ErrInvalidType
	}
	if input.RecipientID == input.SenderID {
		return nil, false, ErrSelfNotification
	}

	recent, err := s.repo.GetRecent(ctx, input, debounceWindow)
	if err != nil {
		return nil, false, err
	}
	if recent != nil {
		return recent, false, nil
	}

	sender, err := s.repo.GetUserContact(ctx, input.SenderID)
	if err != nil {
		return nil, false, err
	}

	notification := &Notification{
		RecipientID: input.RecipientID,
		SenderID:    input.SenderID,
		Type:        input.Type,
		Message:     messageFor(input.Type, sender.Username),
		PostID:      input.PostID,
		CommentID:   input.CommentID,
		StoryID:     input.StoryID,
		CreatedAt:   time.Now(),
	}
	if err := s.repo.Create(ctx, notification); err != nil {
		return nil, false, err
	}

	// External delivery is best effort and never fails the request
	go s.deliverExternal(notification)

	return notification, true, nil
}

func (s *service) deliverExternal(n *Notification) {
	if s.email == nil && s.sms == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	contact, err := s.repo.GetUserContact(ctx, n.RecipientID)
	if err != nil {
		log.Printf("notifications: contact lookup for user %d failed: %v", n.RecipientID, err)
		return
	}

	if s.email != nil && contact.Email != "" {
		if err := s.email.Send(ctx, contact.Email, "New activity on Linkup", n.Message); err != nil {
			log.Printf("notifications: email to user %d failed: %v", n.RecipientID, err)
		}
	}
	if s.sms != nil && contact.PhoneNumber != nil && *contact.PhoneNumber != "" {
		if err := s.sms.Send(ctx, *contact.PhoneNumber, n.Message); err != nil {
			log.Printf("notifications: sms to user %d failed: %v", n.RecipientID, err)
		}
	}
}

// List returns one page of the user's notifications plus their unread count
func (s *service) List(ctx context.Context, userID int64, page, limit int) ([]*Notification, int, error) {
	offset := (page - 1) * limit
	notifications, err := s.repo.GetForUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	unread, err := s.repo.UnreadCount(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	return notifications, unread, nil
}

func (s *service) UnreadCount(ctx context.Context, userID int64) (int, error) {
	return s.repo.UnreadCount(ctx, userID)
}

func (s *service) MarkRead(ctx context.Context, id, userID int64) error {
	if err := s.repo.MarkRead(ctx, id, userID); err != nil {
		if errors.Is(err, errNotificationNotFound) {
			return ErrNotificationNotFound
		}
		return err
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, userID int64) error {
	return s.repo.MarkAllRead(ctx, userID)
}

func (s *service) Delete(ctx context.Context, id, userID int64) error {
	if err := s.repo.Delete(ctx, id, userID); err != nil {
		if errors.Is(err, errNotificationNotFound) {
			return ErrNotificationNotFound
		}
		return err
	}
	return nil
}

// Prune deletes notifications older than the retention period
func (s *service) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	return s.repo.DeleteOlderThan(ctx, time.Now().Add(-retention))
}
