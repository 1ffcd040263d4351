package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresCommentStore persists comments in Postgres.
type PostgresCommentStore struct {
	pool *pgxpool.Pool
}

func NewPostgresCommentStore(pool *pgxpool.Pool) *PostgresCommentStore {
	return &PostgresCommentStore{pool: pool}
}

const commentColumns = `id, post_id, parent_id, is_reply, text, author_id,
	author_fullname, author_username, author_profile_img, created_at`

func (s *PostgresCommentStore) Insert(ctx context.Context, c Comment) (Comment, error) {
	c.Normalize()
	const q = `INSERT INTO comments (post_id, parent_id, is_reply, text, author_id,
	               author_fullname, author_username, author_profile_img)
	           VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	           RETURNING id, created_at`
	err := s.pool.QueryRow(ctx, q, string(c.PostID), c.ParentID, c.IsReply, c.Text, c.AuthorID,
		c.Author.Fullname, c.Author.Username, c.Author.ProfileImg).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return Comment{}, mapPgErr(err)
	}
	return c, nil
}

func (s *PostgresCommentStore) Get(ctx context.Context, id string) (Comment, error) {
	rows, err := s.scanComments(ctx, `SELECT `+commentColumns+` FROM comments WHERE id = $1`, id)
	if err != nil {
		return Comment{}, err
	}
	if len(rows) == 0 {
		return Comment{}, ErrNotFound
	}
	return rows[0], nil
}

func (s *PostgresCommentStore) ListTopLevel(ctx context.Context, postID PostID, offset, limit int) ([]Comment, error) {
	q := `SELECT ` + commentColumns + `
	      FROM comments
	      WHERE post_id = $1 AND parent_id IS NULL
	      ORDER BY created_at ASC, seq ASC
	      OFFSET $2 LIMIT $3`
	return s.scanComments(ctx, q, string(postID), offset, limit)
}

func (s *PostgresCommentStore) ListReplies(ctx context.Context, postID PostID, parentIDs []string) ([]Comment, error) {
	if len(parentIDs) == 0 {
		return []Comment{}, nil
	}
	q := `SELECT ` + commentColumns + `
	      FROM comments
	      WHERE post_id = $1 AND parent_id = ANY($2)
	      ORDER BY created_at ASC, seq ASC`
	return s.scanComments(ctx, q, string(postID), parentIDs)
}

func (s *PostgresCommentStore) ChildIDs(ctx context.Context, parentIDs []string) ([]string, error) {
	if len(parentIDs) == 0 {
		return []string{}, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT id FROM comments WHERE parent_id = ANY($1) ORDER BY seq`, parentIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresCommentStore) DeleteBatch(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM comments WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresCommentStore) DeleteByPost(ctx context.Context, postID PostID) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM comments WHERE post_id = $1`, string(postID))
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresCommentStore) scanComments(ctx context.Context, q string, args ...any) ([]Comment, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Comment{}
	for rows.Next() {
		var c Comment
		var postID string
		if err := rows.Scan(&c.ID, &postID, &c.ParentID, &c.IsReply, &c.Text, &c.AuthorID,
			&c.Author.Fullname, &c.Author.Username, &c.Author.ProfileImg, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.PostID = PostID(postID)
		out = append(out, c)
	}
	return out, rows.Err()
}
