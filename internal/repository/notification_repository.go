package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/picto-request-service/internal/domain"
)

// DefaultNotificationPage caps List when the caller passes no limit.
const DefaultNotificationPage = 50

// NotificationRepository persists per-recipient notifications.
type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	// MarkRead flips the read flag; marking an already-read row is a no-op.
	MarkRead(ctx context.Context, recipient, id string) error
	MarkManyRead(ctx context.Context, recipient string, ids []string) (int64, error)
	// List returns one page, newest first. A non-positive limit means DefaultNotificationPage.
	List(ctx context.Context, recipient string, unreadOnly bool, limit, offset int) ([]domain.Notification, error)
	CountUnread(ctx context.Context, recipient string) (int, error)
}

type notificationRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository builds repository.
func NewNotificationRepository(pool *pgxpool.Pool) NotificationRepository {
	return &notificationRepository{pool: pool}
}

func (r *notificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	const query = `
        INSERT INTO notifications (recipient_login, type, title, message, link)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, is_read, created_at`
	return r.pool.QueryRow(ctx, query,
		n.RecipientLogin,
		n.Type,
		n.Title,
		n.Message,
		n.Link,
	).Scan(&n.ID, &n.Read, &n.CreatedAt)
}

func (r *notificationRepository) MarkRead(ctx context.Context, recipient, id string) error {
	const query = `UPDATE notifications SET is_read=TRUE WHERE id=$1 AND recipient_login=$2`
	cmd, err := r.pool.Exec(ctx, query, id, recipient)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *notificationRepository) MarkManyRead(ctx context.Context, recipient string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	const query = `
        UPDATE notifications SET is_read=TRUE
        WHERE recipient_login=$1 AND id = ANY($2::uuid[]) AND is_read=FALSE`
	cmd, err := r.pool.Exec(ctx, query, recipient, ids)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *notificationRepository) List(ctx context.Context, recipient string, unreadOnly bool, limit, offset int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = DefaultNotificationPage
	}
	if offset < 0 {
		offset = 0
	}
	query := `
        SELECT id, recipient_login, type, title, message, link, is_read, created_at
        FROM notifications WHERE recipient_login=$1`
	if unreadOnly {
		query += ` AND is_read=FALSE`
	}
	query += ` ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, recipient, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Notification
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(
			&n.ID,
			&n.RecipientLogin,
			&n.Type,
			&n.Title,
			&n.Message,
			&n.Link,
			&n.Read,
			&n.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

func (r *notificationRepository) CountUnread(ctx context.Context, recipient string) (int, error) {
	const query = `SELECT COUNT(*) FROM notifications WHERE recipient_login=$1 AND is_read=FALSE`
	var count int
	err := r.pool.QueryRow(ctx, query, recipient).Scan(&count)
	return count, err
}
