// internal/messaging/postgres.go

package messaging

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Storage-level errors; the service maps these onto its own sentinels.
var (
	errConversationNotFound = errors.New("conversation not found")
	errMessageNotFound      = errors.New("message not found")
	errUserNotFound         = errors.New("user not found")
)

type postgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a Postgres-backed messaging repository
func NewPostgresRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

// directKey normalizes an unordered user pair into the unique key that
// enforces "at most one active direct conversation per pair".
func directKey(user1ID, user2ID int64) string {
	if user1ID > user2ID {
		user1ID, user2ID = user2ID, user1ID
	}
	return fmt.Sprintf("%d:%d", user1ID, user2ID)
}

// GetDirectConversation returns the active direct conversation between two
// users, or errConversationNotFound.
func (r *postgresRepository) GetDirectConversation(ctx context.Context, user1ID, user2ID int64) (*Conversation, error) {
	var conv Conversation
	query := `
		SELECT id, is_group, group_name, group_image, last_message_id,
		       last_activity, is_active, notifications_enabled, created_at, updated_at
		FROM conversations
		WHERE direct_key = $1 AND is_group = false AND is_active = true`

	if err := r.db.GetContext(ctx, &conv, query, directKey(user1ID, user2ID)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errConversationNotFound
		}
		return nil, fmt.Errorf("failed to get direct conversation: %w", err)
	}

	if err := r.loadParticipants(ctx, []*Conversation{&conv}); err != nil {
		return nil, err
	}
	return &conv, nil
}

// CreateDirectConversation inserts a new direct conversation for the pair.
// Two writers racing to create the same conversation serialize on the
// direct_key uniqueness constraint; the loser fetches and returns the
// winner's row. The second return value reports whether a row was created.
func (r *postgresRepository) CreateDirectConversation(ctx context.Context, user1ID, user2ID int64) (*Conversation, bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	var conv Conversation
	insert := `
		INSERT INTO conversations (is_group, direct_key, last_activity, is_active, notifications_enabled, created_at, updated_at)
		VALUES (false, $1, $2, true, true, $2, $2)
		RETURNING id, is_group, group_name, group_image, last_message_id,
		          last_activity, is_active, notifications_enabled, created_at, updated_at`

	err = tx.GetContext(ctx, &conv, insert, directKey(user1ID, user2ID), now)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			// Lost the race: the conversation exists now, return it.
			existing, getErr := r.GetDirectConversation(ctx, user1ID, user2ID)
			if getErr != nil {
				return nil, false, getErr
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("failed to create conversation: %w", err)
	}

	participants := `
		INSERT INTO conversation_participants (conversation_id, user_id, joined_at)
		VALUES ($1, $2, $3), ($1, $4, $3)`
	if _, err := tx.ExecContext(ctx, participants, conv.ID, user1ID, now, user2ID); err != nil {
		return nil, false, fmt.Errorf("failed to add participants: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit conversation: %w", err)
	}

	if err := r.loadParticipants(ctx, []*Conversation{&conv}); err != nil {
		return nil, false, err
	}
	return &conv, true, nil
}

func (r *postgresRepository) GetConversation(ctx context.Context, id int64) (*Conversation, error) {
	var conv Conversation
	query := `
		SELECT id, is_group, group_name, group_image, last_message_id,
		       last_activity, is_active, notifications_enabled, created_at, updated_at
		FROM conversations
		WHERE id = $1 AND is_active = true`

	if err := r.db.GetContext(ctx, &conv, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errConversationNotFound
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	if err := r.loadParticipants(ctx, []*Conversation{&conv}); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *postgresRepository) GetUserConversations(ctx context.Context, userID int64, limit, offset int) ([]*Conversation, error) {
	var conversations []*Conversation
	query := `
		SELECT c.id, c.is_group, c.group_name, c.group_image, c.last_message_id,
		       c.last_activity, c.is_active, c.notifications_enabled, c.created_at, c.updated_at
		FROM conversations c
		JOIN conversation_participants cp ON cp.conversation_id = c.id
		WHERE cp.user_id = $1 AND c.is_active = true
		ORDER BY c.last_activity DESC
		LIMIT $2 OFFSET $3`

	if err := r.db.SelectContext(ctx, &conversations, query, userID, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	if err := r.loadParticipants(ctx, conversations); err != nil {
		return nil, err
	}
	return conversations, nil
}

// loadParticipants attaches participant profiles to each conversation
func (r *postgresRepository) loadParticipants(ctx context.Context, conversations []*Conversation) error {
	if len(conversations) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(conversations))
	byID := make(map[int64]*Conversation, len(conversations))
	for _, c := range conversations {
		ids = append(ids, c.ID)
		byID[c.ID] = c
	}

	rows, err := r.db.QueryxContext(ctx, `
		SELECT cp.conversation_id, u.id, u.username, u.avatar_url
		FROM conversation_participants cp
		JOIN users u ON u.id = cp.user_id
		WHERE cp.conversation_id = ANY($1)
		ORDER BY cp.joined_at`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to load participants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var convID int64
		var user UserInfo
		if err := rows.Scan(&convID, &user.ID, &user.Username, &user.Avatar); err != nil {
			return fmt.Errorf("failed to scan participant: %w", err)
		}
		if conv, ok := byID[convID]; ok {
			conv.Participants = append(conv.Participants, &user)
		}
	}
	return rows.Err()
}

func (r *postgresRepository) IsParticipant(ctx context.Context, conversationID, userID int64) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS(
			SELECT 1 FROM conversation_participants
			WHERE conversation_id = $1 AND user_id = $2
		)`
	err := r.db.QueryRowContext(ctx, query, conversationID, userID).Scan(&exists)
	return exists, err
}

// TouchConversation advances the last-activity pointer after a message is
// appended. The GREATEST guard keeps last_activity monotonic under
// concurrent sends; the last-message pointer itself stays last-writer-wins.
func (r *postgresRepository) TouchConversation(ctx context.Context, conversationID, messageID int64, at time.Time) error {
	query := `
		UPDATE conversations
		SET last_message_id = $2,
		    last_activity = GREATEST(last_activity, $3),
		    updated_at = NOW()
		WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, conversationID, messageID, at)
	if err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}
	return nil
}

func (r *postgresRepository) CreateMessage(ctx context.Context, message *Message) error {
	query := `
		INSERT INTO messages (
			conversation_id, sender_id, recipient_id, content_type, content_text,
			media_url, media_filename, media_size, media_mimetype, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`

	err := r.db.QueryRowContext(
		ctx, query,
		message.ConversationID, message.SenderID, message.RecipientID,
		message.Type, message.Text,
		message.MediaURL, message.MediaFilename, message.MediaSize, message.MediaMimeType,
		message.CreatedAt,
	).Scan(&message.ID)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetMessage(ctx context.Context, id int64) (*Message, error) {
	var msg Message
	query := `
		SELECT id, conversation_id, sender_id, recipient_id, content_type, content_text,
		       media_url, media_filename, media_size, media_mimetype,
		       is_deleted, deleted_at, edited_at, original_text, created_at
		FROM messages WHERE id = $1`

	if err := r.db.GetContext(ctx, &msg, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errMessageNotFound
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return &msg, nil
}

// GetConversationMessages returns a newest-first page of live messages,
// excluding messages deleted for everyone and messages the viewer hid.
func (r *postgresRepository) GetConversationMessages(ctx context.Context, conversationID, viewerID int64, limit, offset int) ([]*Message, error) {
	query := `
		SELECT m.id, m.conversation_id, m.sender_id, m.recipient_id, m.content_type,
		       m.content_text, m.media_url, m.media_filename, m.media_size, m.media_mimetype,
		       m.is_deleted, m.deleted_at, m.edited_at, m.original_text, m.created_at,
		       su.id, su.username, su.avatar_url,
		       ru.id, ru.username, ru.avatar_url
		FROM messages m
		JOIN users su ON su.id = m.sender_id
		JOIN users ru ON ru.id = m.recipient_id
		WHERE m.conversation_id = $1
		  AND m.is_deleted = false
		  AND NOT EXISTS (
			SELECT 1 FROM message_deletions d
			WHERE d.message_id = m.id AND d.user_id = $2
		  )
		ORDER BY m.created_at DESC
		LIMIT $3 OFFSET $4`

	rows, err := r.db.QueryxContext(ctx, query, conversationID, viewerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var msg Message
		var sender, recipient UserInfo
		err := rows.Scan(
			&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.RecipientID, &msg.Type,
			&msg.Text, &msg.MediaURL, &msg.MediaFilename, &msg.MediaSize, &msg.MediaMimeType,
			&msg.IsDeleted, &msg.DeletedAt, &msg.EditedAt, &msg.OriginalText, &msg.CreatedAt,
			&sender.ID, &sender.Username, &sender.Avatar,
			&recipient.ID, &recipient.Username, &recipient.Avatar,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Sender = &sender
		msg.Recipient = &recipient
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.loadReceipts(ctx, messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// loadReceipts attaches read receipts to each message in the page
func (r *postgresRepository) loadReceipts(ctx context.Context, messages []*Message) error {
	if len(messages) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(messages))
	byID := make(map[int64]*Message, len(messages))
	for _, m := range messages {
		ids = append(ids, m.ID)
		byID[m.ID] = m
	}

	var receipts []*ReadReceipt
	query := `
		SELECT message_id, user_id, read_at
		FROM message_receipts
		WHERE message_id = ANY($1)
		ORDER BY read_at`
	if err := r.db.SelectContext(ctx, &receipts, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("failed to load receipts: %w", err)
	}

	for _, receipt := range receipts {
		if msg, ok := byID[receipt.MessageID]; ok {
			msg.ReadBy = append(msg.ReadBy, receipt)
		}
	}
	return nil
}

// MarkMessageRead records a read receipt. Re-reads are no-ops.
func (r *postgresRepository) MarkMessageRead(ctx context.Context, messageID, userID int64) error {
	query := `
		INSERT INTO message_receipts (message_id, user_id, read_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (message_id, user_id) DO NOTHING`
	_, err := r.db.ExecContext(ctx, query, messageID, userID)
	if err != nil {
		return fmt.Errorf("failed to mark message read: %w", err)
	}
	return nil
}

// MarkMessagesRead records receipts for a whole page in one statement
func (r *postgresRepository) MarkMessagesRead(ctx context.Context, messageIDs []int64, userID int64) error {
	if len(messageIDs) == 0 {
		return nil
	}
	query := `
		INSERT INTO message_receipts (message_id, user_id, read_at)
		SELECT unnest($1::bigint[]), $2, NOW()
		ON CONFLICT (message_id, user_id) DO NOTHING`
	_, err := r.db.ExecContext(ctx, query, pq.Array(messageIDs), userID)
	if err != nil {
		return fmt.Errorf("failed to mark messages read: %w", err)
	}
	return nil
}

// HideMessageForUser adds the user to the message's delete-for-me set
func (r *postgresRepository) HideMessageForUser(ctx context.Context, messageID, userID int64) error {
	query := `
		INSERT INTO message_deletions (message_id, user_id, deleted_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (message_id, user_id) DO NOTHING`
	_, err := r.db.ExecContext(ctx, query, messageID, userID)
	if err != nil {
		return fmt.Errorf("failed to hide message: %w", err)
	}
	return nil
}

// DeleteMessageForEveryone sets the global soft-delete flag. Irreversible.
func (r *postgresRepository) DeleteMessageForEveryone(ctx context.Context, messageID int64) error {
	query := `
		UPDATE messages
		SET is_deleted = true, deleted_at = NOW()
		WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, messageID)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

// UnreadCountForUser recomputes the user's total unread count on demand
func (r *postgresRepository) UnreadCountForUser(ctx context.Context, userID int64) (int, error) {
	var count int
	query := `
		SELECT COUNT(*)
		FROM messages m
		WHERE m.recipient_id = $1
		  AND m.is_deleted = false
		  AND NOT EXISTS (
			SELECT 1 FROM message_receipts r
			WHERE r.message_id = m.id AND r.user_id = $1
		  )`
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return count, nil
}

// UnreadCountForConversation recomputes a per-conversation unread count
func (r *postgresRepository) UnreadCountForConversation(ctx context.Context, conversationID, userID int64) (int, error) {
	var count int
	query := `
		SELECT COUNT(*)
		FROM messages m
		WHERE m.conversation_id = $1
		  AND m.recipient_id = $2
		  AND m.is_deleted = false
		  AND NOT EXISTS (
			SELECT 1 FROM message_receipts r
			WHERE r.message_id = m.id AND r.user_id = $2
		  )`
	if err := r.db.QueryRowContext(ctx, query, conversationID, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return count, nil
}

func (r *postgresRepository) GetUserInfo(ctx context.Context, userID int64) (*UserInfo, error) {
	var user UserInfo
	query := `SELECT id, username, avatar_url FROM users WHERE id = $1`
	if err := r.db.GetContext(ctx, &user, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errUserNotFound
		}
		return nil, fmt.Errorf("failed to get user info: %w", err)
	}
	return &user, nil
}
