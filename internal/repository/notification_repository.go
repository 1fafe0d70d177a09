package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/booking-service/internal/domain"
)

type notificationRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository returns a Postgres-backed implementation.
func NewNotificationRepository(pool *pgxpool.Pool) NotificationRepository {
	return &notificationRepository{pool: pool}
}

// Append inserts n and evicts the identity's oldest entries beyond retain. A retain of zero
// or less keeps everything.
func (r *notificationRepository) Append(ctx context.Context, n *domain.Notification, retain int) error {
	const insert = `
        INSERT INTO notifications (identity_id, kind, message, payload, read)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id, created_at`

	if n.Payload == nil {
		n.Payload = map[string]any{}
	}

	q := db(ctx, r.pool)
	if err := q.QueryRow(ctx, insert, n.IdentityID, n.Kind, n.Message, n.Payload, n.Read).Scan(&n.ID, &n.CreatedAt); err != nil {
		return err
	}
	if retain <= 0 {
		return nil
	}

	const evict = `
        DELETE FROM notifications
        WHERE identity_id=$1 AND seq <= (
            SELECT seq FROM notifications WHERE identity_id=$1
            ORDER BY seq DESC OFFSET $2 LIMIT 1
        )`
	_, err := q.Exec(ctx, evict, n.IdentityID, retain)
	return err
}

func (r *notificationRepository) ListByIdentity(ctx context.Context, identityID string, page Page) ([]domain.Notification, error) {
	const query = `
        SELECT id, identity_id, kind, message, payload, read, created_at
        FROM notifications WHERE identity_id=$1
        ORDER BY seq DESC
        LIMIT $2 OFFSET $3`

	rows, err := db(ctx, r.pool).Query(ctx, query, identityID, limitOrDefault(page.Limit), page.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Notification
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(&n.ID, &n.IdentityID, &n.Kind, &n.Message, &n.Payload, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

func (r *notificationRepository) MarkRead(ctx context.Context, identityID, notificationID string) error {
	const query = `UPDATE notifications SET read=TRUE WHERE id=$1 AND identity_id=$2`

	cmd, err := db(ctx, r.pool).Exec(ctx, query, notificationID, identityID)
	if err != nil {
		return notFound(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, identityID string) (int64, error) {
	cmd, err := db(ctx, r.pool).Exec(ctx, `UPDATE notifications SET read=TRUE WHERE identity_id=$1 AND NOT read`, identityID)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *notificationRepository) CountUnread(ctx context.Context, identityID string) (int, error) {
	var count int
	err := db(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE identity_id=$1 AND NOT read`, identityID).Scan(&count)
	return count, err
}

// Trim enforces retain across every identity and returns the number of evicted rows.
func (r *notificationRepository) Trim(ctx context.Context, retain int) (int64, error) {
	if retain <= 0 {
		return 0, nil
	}
	const query = `
        DELETE FROM notifications n
        USING (
            SELECT id, ROW_NUMBER() OVER (PARTITION BY identity_id ORDER BY seq DESC) AS rn
            FROM notifications
        ) ranked
        WHERE n.id = ranked.id AND ranked.rn > $1`

	cmd, err := db(ctx, r.pool).Exec(ctx, query, retain)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *notificationRepository) DeleteByIdentityID(ctx context.Context, identityID string) error {
	_, err := db(ctx, r.pool).Exec(ctx, `DELETE FROM notifications WHERE identity_id=$1`, identityID)
	return err
}
