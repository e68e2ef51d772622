// internal/notifications/postgres.go

package notifications

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

var (
	errNotificationNotFound = errors.New("notification not found")
	errUserNotFound         = errors.New("user not found")
)

type postgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a Postgres-backed notification repository
func NewPostgresRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) Create(ctx context.Context, notification *Notification) error {
	query := `
		INSERT INTO notifications (recipient_id, sender_id, type, message, post_id, comment_id, story_id, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, false, $8)
		RETURNING id`

	err := r.db.QueryRowContext(
		ctx, query,
		notification.RecipientID, notification.SenderID, notification.Type, notification.Message,
		notification.PostID, notification.CommentID, notification.StoryID, notification.CreatedAt,
	).Scan(&notification.ID)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id int64) (*Notification, error) {
	var n Notification
	query := `
		SELECT id, recipient_id, sender_id, type, message, post_id, comment_id, story_id, is_read, read_at, created_at
		FROM notifications WHERE id = $1`
	if err := r.db.GetContext(ctx, &n, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errNotificationNotFound
		}
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return &n, nil
}

func (r *postgresRepository) GetForUser(ctx context.Context, userID int64, limit, offset int) ([]*Notification, error) {
	query := `
		SELECT n.id, n.recipient_id, n.sender_id, n.type, n.message,
		       n.post_id, n.comment_id, n.story_id, n.is_read, n.read_at, n.created_at,
		       u.id, u.username, u.avatar_url
		FROM notifications n
		JOIN users u ON u.id = n.sender_id
		WHERE n.recipient_id = $1
		ORDER BY n.created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryxContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*Notification
	for rows.Next() {
		var n Notification
		var sender SenderInfo
		err := rows.Scan(
			&n.ID, &n.RecipientID, &n.SenderID, &n.Type, &n.Message,
			&n.PostID, &n.CommentID, &n.StoryID, &n.IsRead, &n.ReadAt, &n.CreatedAt,
			&sender.ID, &sender.Username, &sender.Avatar,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.Sender = &sender
		notifications = append(notifications, &n)
	}
	return notifications, rows.Err()
}

func (r *postgresRepository) UnreadCount(ctx context.Context, userID int64) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND is_read = false`
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

func (r *postgresRepository) GetRecent(ctx context.Context, input *CreateInput, window time.Duration) (*Notification, error) {
	var n Notification
	query := `
		SELECT id, recipient_id, sender_id, type, message, post_id, comment_id, story_id, is_read, read_at, created_at
		FROM notifications
		WHERE recipient_id = $1 AND sender_id = $2 AND type = $3
		  AND post_id IS NOT DISTINCT FROM $4
		  AND comment_id IS NOT DISTINCT FROM $5
		  AND story_id IS NOT DISTINCT FROM $6
		  AND created_at > $7
		ORDER BY created_at DESC
		LIMIT 1`
	cutoff := time.Now().Add(-window)
	err := r.db.GetContext(ctx, &n, query,
		input.RecipientID, input.SenderID, input.Type,
		input.PostID, input.CommentID, input.StoryID, cutoff,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to check recent notifications: %w", err)
	}
	return &n, nil
}

func (r *postgresRepository) MarkRead(ctx context.Context, id, userID int64) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE notifications
		 SET is_read = true, read_at = COALESCE(read_at, NOW())
		 WHERE id = $1 AND recipient_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return errNotificationNotFound
	}
	return nil
}

func (r *postgresRepository) MarkAllRead(ctx context.Context, userID int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE notifications
		 SET is_read = true, read_at = COALESCE(read_at, NOW())
		 WHERE recipient_id = $1 AND is_read = false`, userID)
	if err != nil {
		return fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return nil
}

func (r *postgresRepository) Delete(ctx context.Context, id, userID int64) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE id = $1 AND recipient_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete notification: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return errNotificationNotFound
	}
	return nil
}

func (r *postgresRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune notifications: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows, nil
}

func (r *postgresRepository) GetUserContact(ctx context.Context, userID int64) (*UserContact, error) {
	var contact UserContact
	query := `SELECT id, username, email, phone_number FROM users WHERE id = $1`
	if err := r.db.GetContext(ctx, &contact, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errUserNotFound
		}
		return nil, fmt.Errorf("failed to get user contact: %w", err)
	}
	return &contact, nil
}
