package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresNotificationStore persists notifications in Postgres.
type PostgresNotificationStore struct {
	pool *pgxpool.Pool
}

func NewPostgresNotificationStore(pool *pgxpool.Pool) *PostgresNotificationStore {
	return &PostgresNotificationStore{pool: pool}
}

const notificationColumns = `id, COALESCE(event_id, ''), type, post_id, post_title, recipient_id, actor_id,
	actor_fullname, actor_username, actor_profile_img, comment_id, comment_text,
	replied_on_id, replied_on_text, seen, created_at`

func (s *PostgresNotificationStore) Insert(ctx context.Context, n Notification) (Notification, error) {
	q := `INSERT INTO notifications (event_id, type, post_id, post_title, recipient_id, actor_id,
	          actor_fullname, actor_username, actor_profile_img, comment_id, comment_text,
	          replied_on_id, replied_on_text)
	      VALUES (NULLIF($1, ''), $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	      RETURNING ` + notificationColumns
	out, err := scanNotification(s.pool.QueryRow(ctx, q, n.EventID, string(n.Type), string(n.PostID),
		n.PostTitle, n.RecipientID, n.ActorID, n.Actor.Fullname, n.Actor.Username, n.Actor.ProfileImg,
		n.CommentID, n.CommentText, n.RepliedOnID, n.RepliedOnText))
	if err != nil {
		return Notification{}, mapPgErr(err)
	}
	return out, nil
}

func (s *PostgresNotificationStore) List(ctx context.Context, recipientID string, filter NotificationType, offset, limit int) ([]Notification, error) {
	q := `SELECT ` + notificationColumns + ` FROM notifications
	      WHERE recipient_id = $1 AND actor_id <> $1 AND ($2 = '' OR type = $2)
	      ORDER BY created_at DESC, id DESC
	      OFFSET $3 LIMIT $4`
	rows, err := s.pool.Query(ctx, q, recipientID, string(filter), offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *PostgresNotificationStore) Count(ctx context.Context, recipientID string, filter NotificationType) (int, error) {
	const q = `SELECT count(*) FROM notifications
	           WHERE recipient_id = $1 AND actor_id <> $1 AND ($2 = '' OR type = $2)`
	var n int
	err := s.pool.QueryRow(ctx, q, recipientID, string(filter)).Scan(&n)
	return n, err
}

func (s *PostgresNotificationStore) HasUnseen(ctx context.Context, recipientID string) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM notifications
	           WHERE recipient_id = $1 AND actor_id <> $1 AND NOT seen)`
	var ok bool
	err := s.pool.QueryRow(ctx, q, recipientID).Scan(&ok)
	return ok, err
}

func (s *PostgresNotificationStore) MarkSeen(ctx context.Context, recipientID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE notifications SET seen = true WHERE recipient_id = $1 AND id = ANY($2) AND NOT seen`,
		recipientID, ids)
	return err
}

func (s *PostgresNotificationStore) MarkAllSeen(ctx context.Context, recipientID string) error {
	_, err := s.pool.Exec(ctx, `UPDATE notifications SET seen = true WHERE recipient_id = $1 AND NOT seen`, recipientID)
	return err
}

func (s *PostgresNotificationStore) Delete(ctx context.Context, id, recipientID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM notifications WHERE id = $1 AND recipient_id = $2`, id, recipientID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanNotification(row pgx.Row) (Notification, error) {
	var n Notification
	var typ, postID string
	err := row.Scan(&n.ID, &n.EventID, &typ, &postID, &n.PostTitle, &n.RecipientID, &n.ActorID,
		&n.Actor.Fullname, &n.Actor.Username, &n.Actor.ProfileImg, &n.CommentID, &n.CommentText,
		&n.RepliedOnID, &n.RepliedOnText, &n.Seen, &n.CreatedAt)
	if err != nil {
		return Notification{}, err
	}
	n.Type = NotificationType(typ)
	n.PostID = PostID(postID)
	return n, nil
}
