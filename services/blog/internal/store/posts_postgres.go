package store

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresPostStore persists posts, counters and likes in Postgres.
type PostgresPostStore struct {
	pool *pgxpool.Pool
}

func NewPostgresPostStore(pool *pgxpool.Pool) *PostgresPostStore {
	return &PostgresPostStore{pool: pool}
}

const postColumns = `id, title, banner, description, content, tags, author_id,
	author_fullname, author_username, author_profile_img,
	total_likes, total_comments, total_reads, total_parent_comments,
	draft, published_at, updated_at`

func (s *PostgresPostStore) Create(ctx context.Context, p Post) (Post, error) {
	q := `INSERT INTO posts (id, title, banner, description, content, tags, author_id,
	          author_fullname, author_username, author_profile_img, draft)
	      VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	      RETURNING ` + postColumns
	return s.scanOne(ctx, q, string(p.ID), p.Title, p.Banner, p.Description, nullJSON(p.Content),
		tagsOrEmpty(p.Tags), p.AuthorID, p.Author.Fullname, p.Author.Username, p.Author.ProfileImg, p.Draft)
}

func (s *PostgresPostStore) Get(ctx context.Context, id PostID) (Post, error) {
	return s.scanOne(ctx, `SELECT `+postColumns+` FROM posts WHERE id = $1`, string(id))
}

func (s *PostgresPostStore) Update(ctx context.Context, p Post) (Post, error) {
	q := `UPDATE posts SET
	          title = $2, banner = $3, description = $4, content = $5, tags = $6,
	          published_at = CASE WHEN draft AND NOT $7 THEN now() ELSE published_at END,
	          draft = $7, updated_at = now()
	      WHERE id = $1
	      RETURNING ` + postColumns
	return s.scanOne(ctx, q, string(p.ID), p.Title, p.Banner, p.Description, nullJSON(p.Content),
		tagsOrEmpty(p.Tags), p.Draft)
}

func (s *PostgresPostStore) Delete(ctx context.Context, id PostID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM posts WHERE id = $1`, string(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresPostStore) AddActivity(ctx context.Context, id PostID, d ActivityDelta) (Activity, error) {
	const q = `UPDATE posts SET
	               total_likes = total_likes + $2,
	               total_comments = total_comments + $3,
	               total_reads = total_reads + $4,
	               total_parent_comments = total_parent_comments + $5
	           WHERE id = $1
	           RETURNING total_likes, total_comments, total_reads, total_parent_comments`
	var a Activity
	err := s.pool.QueryRow(ctx, q, string(id), d.Likes, d.Comments, d.Reads, d.ParentComments).
		Scan(&a.TotalLikes, &a.TotalComments, &a.TotalReads, &a.TotalParentComments)
	if err != nil {
		return Activity{}, mapPgErr(err)
	}
	return a, nil
}

func (s *PostgresPostStore) ListLatest(ctx context.Context, offset, limit int) ([]Post, error) {
	q := `SELECT ` + postColumns + ` FROM posts
	      WHERE NOT draft
	      ORDER BY published_at DESC, id
	      OFFSET $1 LIMIT $2`
	return s.scanMany(ctx, q, offset, limit)
}

func (s *PostgresPostStore) ListTrending(ctx context.Context, limit int) ([]Post, error) {
	q := `SELECT ` + postColumns + ` FROM posts
	      WHERE NOT draft
	      ORDER BY total_reads DESC, published_at DESC
	      LIMIT $1`
	return s.scanMany(ctx, q, limit)
}

func (s *PostgresPostStore) Search(ctx context.Context, titlePrefix string, offset, limit int) ([]Post, error) {
	q := `SELECT ` + postColumns + ` FROM posts
	      WHERE NOT draft AND lower(title) LIKE $1
	      ORDER BY title
	      OFFSET $2 LIMIT $3`
	return s.scanMany(ctx, q, likePrefix(titlePrefix), offset, limit)
}

func (s *PostgresPostStore) ListByAuthor(ctx context.Context, authorID string, drafts bool, offset, limit int) ([]Post, error) {
	q := `SELECT ` + postColumns + ` FROM posts
	      WHERE author_id = $1 AND draft = $2
	      ORDER BY published_at DESC, id
	      OFFSET $3 LIMIT $4`
	return s.scanMany(ctx, q, authorID, drafts, offset, limit)
}

func (s *PostgresPostStore) AddLike(ctx context.Context, id PostID, userID string) (bool, error) {
	return s.toggleLike(ctx, id,
		`INSERT INTO post_likes (post_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, userID, 1)
}

func (s *PostgresPostStore) RemoveLike(ctx context.Context, id PostID, userID string) (bool, error) {
	return s.toggleLike(ctx, id,
		`DELETE FROM post_likes WHERE post_id = $1 AND user_id = $2`, userID, -1)
}

func (s *PostgresPostStore) toggleLike(ctx context.Context, id PostID, stmt, userID string, delta int64) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Lock the post row so the like set and counter move together.
	var exists bool
	err = tx.QueryRow(ctx, `SELECT true FROM posts WHERE id = $1 FOR UPDATE`, string(id)).Scan(&exists)
	if err != nil {
		return false, mapPgErr(err)
	}

	tag, err := tx.Exec(ctx, stmt, string(id), userID)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	if _, err := tx.Exec(ctx, `UPDATE posts SET total_likes = total_likes + $2 WHERE id = $1`, string(id), delta); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (s *PostgresPostStore) IsLiked(ctx context.Context, id PostID, userID string) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM posts WHERE id = $1),
	                  EXISTS(SELECT 1 FROM post_likes WHERE post_id = $1 AND user_id = $2)`
	var postExists, liked bool
	if err := s.pool.QueryRow(ctx, q, string(id), userID).Scan(&postExists, &liked); err != nil {
		return false, err
	}
	if !postExists {
		return false, ErrNotFound
	}
	return liked, nil
}

func (s *PostgresPostStore) scanOne(ctx context.Context, q string, args ...any) (Post, error) {
	p, err := scanPost(s.pool.QueryRow(ctx, q, args...))
	if err != nil {
		return Post{}, mapPgErr(err)
	}
	return p, nil
}

func (s *PostgresPostStore) scanMany(ctx context.Context, q string, args ...any) ([]Post, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Post{}
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPost(row pgx.Row) (Post, error) {
	var p Post
	var id string
	var content []byte
	err := row.Scan(&id, &p.Title, &p.Banner, &p.Description, &content, &p.Tags, &p.AuthorID,
		&p.Author.Fullname, &p.Author.Username, &p.Author.ProfileImg,
		&p.Activity.TotalLikes, &p.Activity.TotalComments, &p.Activity.TotalReads, &p.Activity.TotalParentComments,
		&p.Draft, &p.PublishedAt, &p.UpdatedAt)
	if err != nil {
		return Post{}, err
	}
	p.ID = PostID(id)
	p.Content = content
	return p, nil
}

func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

// likePrefix escapes LIKE metacharacters and appends the wildcard.
func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(strings.ToLower(prefix)) + "%"
}
