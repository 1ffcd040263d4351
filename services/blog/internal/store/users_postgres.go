package store

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresUserStore persists accounts in Postgres.
type PostgresUserStore struct {
	pool *pgxpool.Pool
}

func NewPostgresUserStore(pool *pgxpool.Pool) *PostgresUserStore {
	return &PostgresUserStore{pool: pool}
}

const userColumns = `id, fullname, email, username, bio, profile_img, password_hash, role,
	total_posts, total_reads, new_notification_available, social_links, joined_at`

func (s *PostgresUserStore) Create(ctx context.Context, u User) (User, error) {
	links, err := json.Marshal(u.SocialLinks)
	if err != nil {
		return User{}, err
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	q := `INSERT INTO users (id, fullname, email, username, bio, profile_img, password_hash, role, social_links)
	      VALUES (COALESCE(NULLIF($1, ''), gen_random_uuid()::text), $2, $3, $4, $5, $6, $7, $8, $9)
	      RETURNING ` + userColumns
	return s.scanOne(ctx, q, u.ID, u.Fullname, u.Email, u.Username, u.Bio, u.ProfileImg,
		u.PasswordHash, u.Role, string(links))
}

func (s *PostgresUserStore) Get(ctx context.Context, id string) (User, error) {
	return s.scanOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (s *PostgresUserStore) GetByLogin(ctx context.Context, login string) (User, error) {
	q := `SELECT ` + userColumns + ` FROM users
	      WHERE lower(email) = lower($1) OR lower(username) = lower($1)
	      LIMIT 1`
	return s.scanOne(ctx, q, login)
}

func (s *PostgresUserStore) UpdateProfile(ctx context.Context, id string, p ProfileUpdate) (User, error) {
	links, err := json.Marshal(p.SocialLinks)
	if err != nil {
		return User{}, err
	}
	q := `UPDATE users SET fullname = $2, username = $3, bio = $4, profile_img = $5, social_links = $6
	      WHERE id = $1
	      RETURNING ` + userColumns
	return s.scanOne(ctx, q, id, p.Fullname, p.Username, p.Bio, p.ProfileImg, string(links))
}

func (s *PostgresUserStore) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return s.execOne(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, id, hash)
}

func (s *PostgresUserStore) SearchByUsername(ctx context.Context, prefix string, limit int) ([]User, error) {
	q := `SELECT ` + userColumns + ` FROM users
	      WHERE lower(username) LIKE $1
	      ORDER BY username
	      LIMIT $2`
	rows, err := s.pool.Query(ctx, q, likePrefix(prefix), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *PostgresUserStore) AddAccountActivity(ctx context.Context, id string, posts, reads int64) error {
	return s.execOne(ctx,
		`UPDATE users SET total_posts = total_posts + $2, total_reads = total_reads + $3 WHERE id = $1`,
		id, posts, reads)
}

func (s *PostgresUserStore) SetNotificationFlag(ctx context.Context, id string, available bool) error {
	return s.execOne(ctx, `UPDATE users SET new_notification_available = $2 WHERE id = $1`, id, available)
}

func (s *PostgresUserStore) execOne(ctx context.Context, q string, args ...any) error {
	tag, err := s.pool.Exec(ctx, q, args...)
	if err != nil {
		return mapPgErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresUserStore) scanOne(ctx context.Context, q string, args ...any) (User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, q, args...))
	if err != nil {
		return User{}, mapPgErr(err)
	}
	return u, nil
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	var links []byte
	err := row.Scan(&u.ID, &u.Fullname, &u.Email, &u.Username, &u.Bio, &u.ProfileImg, &u.PasswordHash,
		&u.Role, &u.TotalPosts, &u.TotalReads, &u.NewNotificationAvailable, &links, &u.JoinedAt)
	if err != nil {
		return User{}, err
	}
	if len(links) > 0 {
		if err := json.Unmarshal(links, &u.SocialLinks); err != nil {
			return User{}, err
		}
	}
	return u, nil
}
