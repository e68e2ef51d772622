// internal/messaging/service.go

package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Service-level errors
var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrRecipientNotFound    = errors.New("recipient not found")
	ErrNotParticipant       = errors.New("not a participant in this conversation")
	ErrNotAuthorized        = errors.New("not authorized to perform this action")
	ErrSelfMessage          = errors.New("cannot message yourself")
	ErrEmptyMessage         = errors.New("message content cannot be empty")
	ErrMessageTooLong       = errors.New("message content exceeds the maximum length")
	ErrMissingMedia         = errors.New("media messages require an uploaded attachment")
)

// Service defines messaging business logic
type Service interface {
	StartConversation(ctx context.Context, userID int64, req *StartConversationRequest) (*ConversationView, bool, error)
	ListConversations(ctx context.Context, userID int64, page, limit int) ([]*ConversationView, error)
	GetConversationMessages(ctx context.Context, conversationID, userID int64, page, limit int) ([]*Message, *Conversation, error)
	SendMessage(ctx context.Context, senderID int64, req *SendMessageRequest) (*Message, error)
	MarkMessageRead(ctx context.Context, messageID, userID int64) error
	DeleteMessage(ctx context.Context, messageID, userID int64, deleteFor string) error
	UnreadCount(ctx context.Context, userID int64) (int, error)

	// SetPublisher wires the realtime publisher after construction
	SetPublisher(p EventPublisher)
}

type service struct {
	repo      Repository
	publisher EventPublisher
	maxText   int
}

// NewService creates a new messaging service. maxTextLength bounds text
// content in characters; zero or negative falls back to MaxTextLength.
func NewService(repo Repository, maxTextLength int) Service {
	if maxTextLength <= 0 {
		maxTextLength = MaxTextLength
	}
	return &service{repo: repo, maxText: maxTextLength}
}

// SetPublisher wires the realtime publisher after construction. The hub
// needs the service's data while the service needs the hub for fan-out, so
// wiring happens in two steps at startup.
func (s *service) SetPublisher(p EventPublisher) {
	s.publisher = p
}

// StartConversation finds or creates the direct conversation between the
// caller and the recipient. The bool result reports whether it was created.
func (s *service) StartConversation(ctx context.Context, userID int64, req *StartConversationRequest) (*ConversationView, bool, error) {
	if req.RecipientID == userID {
		return nil, false, ErrSelfMessage
	}

	if _, err := s.repo.GetUserInfo(ctx, req.RecipientID); err != nil {
		if errors.Is(err, errUserNotFound) {
			return nil, false, ErrRecipientNotFound
		}
		return nil, false, err
	}

	conv, created, err := s.getOrCreateConversation(ctx, userID, req.RecipientID)
	if err != nil {
		return nil, false, err
	}

	view, err := s.buildView(ctx, conv, userID)
	if err != nil {
		return nil, false, err
	}
	return view, created, nil
}

func (s *service) getOrCreateConversation(ctx context.Context, user1ID, user2ID int64) (*Conversation, bool, error) {
	conv, err := s.repo.GetDirectConversation(ctx, user1ID, user2ID)
	if err == nil {
		return conv, false, nil
	}
	if !errors.Is(err, errConversationNotFound) {
		return nil, false, err
	}
	conv, created, err := s.repo.CreateDirectConversation(ctx, user1ID, user2ID)
	if err == nil && created {
		conversationsCreated.Inc()
	}
	return conv, created, err
}

// ListConversations returns the caller's conversations ordered by most
// recent activity, each enriched with its unread count and last message.
func (s *service) ListConversations(ctx context.Context, userID int64, page, limit int) ([]*ConversationView, error) {
	offset := (page - 1) * limit
	conversations, err := s.repo.GetUserConversations(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}

	views := make([]*ConversationView, 0, len(conversations))
	for _, conv := range conversations {
		view, err := s.buildView(ctx, conv, userID)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

// buildView enriches a conversation for one requesting user
func (s *service) buildView(ctx context.Context, conv *Conversation, userID int64) (*ConversationView, error) {
	view := &ConversationView{Conversation: conv}

	unread, err := s.repo.UnreadCountForConversation(ctx, conv.ID, userID)
	if err != nil {
		return nil, err
	}
	view.UnreadCount = unread

	if conv.LastMessageID != nil {
		if last, err := s.repo.GetMessage(ctx, *conv.LastMessageID); err == nil && !last.IsDeleted {
			conv.LastMessage = last
		}
	}

	if other := conv.OtherParticipant(userID); other != nil {
		view.OtherParticipant = other
		view.DisplayName = other.Username
		view.DisplayImage = other.Avatar
	}
	return view, nil
}

// GetConversationMessages returns one page of messages, oldest first within
// the page, together with the conversation itself. Fetching a page also
// marks its unread messages read for the caller, so opening a conversation
// clears its badge.
func (s *service) GetConversationMessages(ctx context.Context, conversationID, userID int64, page, limit int) ([]*Message, *Conversation, error) {
	conv, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, errConversationNotFound) {
			return nil, nil, ErrConversationNotFound
		}
		return nil, nil, err
	}

	isParticipant, err := s.repo.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return nil, nil, err
	}
	if !isParticipant {
		return nil, nil, ErrNotParticipant
	}

	offset := (page - 1) * limit
	messages, err := s.repo.GetConversationMessages(ctx, conversationID, userID, limit, offset)
	if err != nil {
		return nil, nil, err
	}

	var toMark []int64
	for _, msg := range messages {
		if msg.SenderID == userID {
			continue
		}
		if msg.readBy(userID) {
			continue
		}
		toMark = append(toMark, msg.ID)
	}
	if len(toMark) > 0 {
		if err := s.repo.MarkMessagesRead(ctx, toMark, userID); err != nil {
			return nil, nil, err
		}
		now := time.Now()
		for _, msg := range messages {
			if msg.SenderID != userID && !msg.readBy(userID) {
				msg.ReadBy = append(msg.ReadBy, &ReadReceipt{MessageID: msg.ID, UserID: userID, ReadAt: now})
			}
		}
	}

	// Repository returns newest first; clients render oldest first.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, conv, nil
}

func (m *Message) readBy(userID int64) bool {
	for _, r := range m.ReadBy {
		if r.UserID == userID {
			return true
		}
	}
	return false
}

// SendMessage validates, persists and fans out a new message. The realtime
// push happens only after the write has committed.
func (s *service) SendMessage(ctx context.Context, senderID int64, req *SendMessageRequest) (*Message, error) {
	if req.RecipientID == senderID {
		return nil, ErrSelfMessage
	}

	msgType := req.Type
	if msgType == "" {
		msgType = TypeText
	}

	content := strings.TrimSpace(req.Content)
	switch msgType {
	case TypeText:
		if content == "" {
			return nil, ErrEmptyMessage
		}
		// Bound is in characters, not bytes
		if utf8.RuneCountInString(content) > s.maxText {
			return nil, ErrMessageTooLong
		}
	case TypeImage, TypeVideo, TypeFile:
		if req.Media == nil || req.Media.URL == "" {
			return nil, ErrMissingMedia
		}
	default:
		return nil, fmt.Errorf("unsupported message type: %s", msgType)
	}

	recipient, err := s.repo.GetUserInfo(ctx, req.RecipientID)
	if err != nil {
		if errors.Is(err, errUserNotFound) {
			return nil, ErrRecipientNotFound
		}
		return nil, err
	}

	conv, _, err := s.getOrCreateConversation(ctx, senderID, req.RecipientID)
	if err != nil {
		return nil, err
	}

	msg := &Message{
		ConversationID: conv.ID,
		SenderID:       senderID,
		RecipientID:    req.RecipientID,
		Type:           msgType,
		CreatedAt:      time.Now(),
	}
	if msgType == TypeText {
		msg.Text = &content
	} else {
		msg.MediaURL = &req.Media.URL
		if req.Media.Filename != "" {
			msg.MediaFilename = &req.Media.Filename
		}
		if req.Media.Size > 0 {
			msg.MediaSize = &req.Media.Size
		}
		if req.Media.MimeType != "" {
			msg.MediaMimeType = &req.Media.MimeType
		}
		if content != "" {
			if utf8.RuneCountInString(content) > s.maxText {
				return nil, ErrMessageTooLong
			}
			msg.Text = &content
		}
	}

	if err := s.repo.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}
	if err := s.repo.TouchConversation(ctx, conv.ID, msg.ID, msg.CreatedAt); err != nil {
		return nil, err
	}

	if sender, err := s.repo.GetUserInfo(ctx, senderID); err == nil {
		msg.Sender = sender
	}
	msg.Recipient = recipient

	messagesSent.WithLabelValues(string(msgType)).Inc()
	if s.publisher != nil {
		s.publisher.PublishNewMessage(msg)
	}
	return msg, nil
}

// MarkMessageRead records that the caller has read a message. Marking your
// own message, or a message you already read, is a no-op.
func (s *service) MarkMessageRead(ctx context.Context, messageID, userID int64) error {
	msg, err := s.repo.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, errMessageNotFound) {
			return ErrMessageNotFound
		}
		return err
	}

	isParticipant, err := s.repo.IsParticipant(ctx, msg.ConversationID, userID)
	if err != nil {
		return err
	}
	if !isParticipant {
		return ErrNotParticipant
	}

	if msg.SenderID == userID {
		return nil
	}
	return s.repo.MarkMessageRead(ctx, messageID, userID)
}

// DeleteMessage removes a message either for the caller alone or for both
// participants. Any participant can hide a message for themselves; only the
// sender can delete for everyone. Any deleteFor value other than "everyone"
// means delete for the caller.
func (s *service) DeleteMessage(ctx context.Context, messageID, userID int64, deleteFor string) error {
	msg, err := s.repo.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, errMessageNotFound) {
			return ErrMessageNotFound
		}
		return err
	}

	isParticipant, err := s.repo.IsParticipant(ctx, msg.ConversationID, userID)
	if err != nil {
		return err
	}
	if !isParticipant {
		return ErrNotParticipant
	}

	if deleteFor != "everyone" {
		return s.repo.HideMessageForUser(ctx, messageID, userID)
	}

	if msg.SenderID != userID {
		return ErrNotAuthorized
	}
	if err := s.repo.DeleteMessageForEveryone(ctx, messageID); err != nil {
		return err
	}
	if s.publisher != nil {
		s.publisher.PublishMessageDeleted(msg.SenderID, msg.RecipientID, &MessageDeletedEvent{
			MessageID:      messageID,
			ConversationID: msg.ConversationID,
		})
	}
	return nil
}

// UnreadCount returns the caller's total unread message count
func (s *service) UnreadCount(ctx context.Context, userID int64) (int, error) {
	return s.repo.UnreadCountForUser(ctx, userID)
}
