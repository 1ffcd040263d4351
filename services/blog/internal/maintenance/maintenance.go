// Package maintenance repairs comment data left inconsistent by interrupted
// cascades. It runs against Postgres through database/sql.
package maintenance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/blog-platform/services/blog/internal/store"
)

// MaxSweepPasses bounds SweepOrphans; each pass removes one level of orphans.
const MaxSweepPasses = 1000

const sweepOrphansSQL = `
WITH orphans AS (
    DELETE FROM comments c
    WHERE c.parent_id IS NOT NULL
      AND NOT EXISTS (SELECT 1 FROM comments p WHERE p.id = c.parent_id)
    RETURNING c.post_id
)
SELECT post_id, count(*) FROM orphans GROUP BY post_id ORDER BY post_id`

const decrementCommentsSQL = `
UPDATE posts SET total_comments = GREATEST(total_comments - $2, 0) WHERE id = $1`

const recountPostSQL = `
UPDATE posts p SET
    total_comments = (SELECT count(*) FROM comments c WHERE c.post_id = p.id),
    total_parent_comments = (SELECT count(*) FROM comments c WHERE c.post_id = p.id AND c.parent_id IS NULL)
WHERE p.id = $1
RETURNING total_comments, total_parent_comments`

const recountAllSQL = `
UPDATE posts p SET
    total_comments = (SELECT count(*) FROM comments c WHERE c.post_id = p.id),
    total_parent_comments = (SELECT count(*) FROM comments c WHERE c.post_id = p.id AND c.parent_id IS NULL)`

type Maintainer struct {
	DB  *sql.DB
	Log *zap.Logger
}

// SweepOrphans deletes replies whose parent no longer exists, one level per
// pass, and lowers each affected post's comment count by what was removed.
// It returns the total number of deleted replies.
func (m *Maintainer) SweepOrphans(ctx context.Context) (int, error) {
	total := 0
	for pass := 0; pass < MaxSweepPasses; pass++ {
		n, err := m.sweepPass(ctx)
		if err != nil {
			return total, err
		}
		if n == 0 {
			m.logger().Info("orphan sweep finished", zap.Int("removed", total), zap.Int("passes", pass+1))
			return total, nil
		}
		total += n
	}
	return total, fmt.Errorf("orphan sweep did not converge after %d passes", MaxSweepPasses)
}

func (m *Maintainer) sweepPass(ctx context.Context) (int, error) {
	tx, err := m.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin sweep: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, sweepOrphansSQL)
	if err != nil {
		return 0, fmt.Errorf("delete orphans: %w", err)
	}
	type removal struct {
		postID string
		count  int
	}
	var removed []removal
	for rows.Next() {
		var r removal
		if err := rows.Scan(&r.postID, &r.count); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan orphans: %w", err)
		}
		removed = append(removed, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("read orphans: %w", err)
	}
	rows.Close()

	n := 0
	for _, r := range removed {
		if _, err := tx.ExecContext(ctx, decrementCommentsSQL, r.postID, r.count); err != nil {
			return 0, fmt.Errorf("decrement comments of %s: %w", r.postID, err)
		}
		m.logger().Info("orphans removed", zap.String("post_id", r.postID), zap.Int("count", r.count))
		n += r.count
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit sweep: %w", err)
	}
	return n, nil
}

// Recount recomputes both comment counters of postID from live rows.
func (m *Maintainer) Recount(ctx context.Context, postID store.PostID) (store.Activity, error) {
	var a store.Activity
	err := m.DB.QueryRowContext(ctx, recountPostSQL, postID.String()).Scan(&a.TotalComments, &a.TotalParentComments)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Activity{}, store.ErrNotFound
	}
	if err != nil {
		return store.Activity{}, fmt.Errorf("recount %s: %w", postID, err)
	}
	m.logger().Info("post recounted",
		zap.String("post_id", postID.String()),
		zap.Int64("total_comments", a.TotalComments),
		zap.Int64("total_parent_comments", a.TotalParentComments))
	return a, nil
}

// RecountAll recomputes the comment counters of every post and returns the
// number of posts updated.
func (m *Maintainer) RecountAll(ctx context.Context) (int64, error) {
	res, err := m.DB.ExecContext(ctx, recountAllSQL)
	if err != nil {
		return 0, fmt.Errorf("recount all: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("recount all: %w", err)
	}
	m.logger().Info("all posts recounted", zap.Int64("posts", n))
	return n, nil
}

func (m *Maintainer) logger() *zap.Logger {
	if m.Log == nil {
		return zap.NewNop()
	}
	return m.Log
}
