package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/example/blog-platform/services/blog/internal/store"
)

// RedisCache is a Pages shared by every instance through Redis.
type RedisCache struct {
	Client *redis.Client
	TTL    time.Duration
	Log    *zap.Logger
}

// NewRedisCache connects to url (redis://...) lazily; the first command dials.
func NewRedisCache(url string, ttl time.Duration, log *zap.Logger) (*RedisCache, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisCache{Client: redis.NewClient(opt), TTL: ttl, Log: log}, nil
}

func (c *RedisCache) Get(ctx context.Context, key PageKey) ([]store.Comment, bool) {
	val, err := c.Client.Get(ctx, key.String()).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.Log.Warn("comment cache get failed", zap.String("key", key.String()), zap.Error(err))
		}
		return nil, false
	}
	var comments []store.Comment
	if err := json.Unmarshal(val, &comments); err != nil {
		c.Log.Warn("comment cache entry corrupt", zap.String("key", key.String()), zap.Error(err))
		return nil, false
	}
	return comments, true
}

// Generation keys live outside keyPrefix so page scans never see them.
const genPrefix = "blog:commentgen:"

// genTTL outlives any page so a generation never resets under a live page.
const genTTL = 24 * time.Hour

var errStaleGeneration = errors.New("cache: generation moved")

func genKey(postID store.PostID) string {
	return genPrefix + string(postID)
}

func (c *RedisCache) Generation(ctx context.Context, postID store.PostID) uint64 {
	gen, err := c.Client.Get(ctx, genKey(postID)).Uint64()
	if err != nil && !errors.Is(err, redis.Nil) {
		c.Log.Warn("comment cache generation read failed", zap.String("post_id", string(postID)), zap.Error(err))
	}
	return gen
}

// Put writes the page inside a WATCH on the post's generation key, so an
// Invalidate landing between the check and the write aborts it.
func (c *RedisCache) Put(ctx context.Context, key PageKey, gen uint64, comments []store.Comment) bool {
	b, err := json.Marshal(comments)
	if err != nil {
		c.Log.Warn("comment cache marshal failed", zap.Error(err))
		return false
	}
	gk := genKey(key.PostID)
	err = c.Client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, gk).Uint64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return errStaleGeneration
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key.String(), b, c.TTL)
			return nil
		})
		return err
	}, gk)
	switch {
	case err == nil:
		return true
	case errors.Is(err, errStaleGeneration), errors.Is(err, redis.TxFailedErr):
		return false
	default:
		c.Log.Warn("comment cache put failed", zap.String("key", key.String()), zap.Error(err))
		return false
	}
}

// Invalidate bumps the generation, then scans the comment key space and
// deletes the post's pages.
func (c *RedisCache) Invalidate(ctx context.Context, postID store.PostID) int {
	gk := genKey(postID)
	if _, err := c.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, gk)
		pipe.Expire(ctx, gk, max(genTTL, 2*c.TTL))
		return nil
	}); err != nil {
		c.Log.Warn("comment cache generation bump failed", zap.String("post_id", string(postID)), zap.Error(err))
	}

	match := ForPost(postID)
	var matched []string
	iter := c.Client.Scan(ctx, 0, keyPrefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		if k, ok := ParseKey(iter.Val()); ok && match(k) {
			matched = append(matched, iter.Val())
		}
	}
	if err := iter.Err(); err != nil {
		c.Log.Warn("comment cache scan failed", zap.Error(err))
	}
	if len(matched) == 0 {
		return 0
	}
	n, err := c.Client.Del(ctx, matched...).Result()
	if err != nil {
		c.Log.Warn("comment cache invalidate failed", zap.Error(err))
		return 0
	}
	return int(n)
}

func (c *RedisCache) Close() error {
	return c.Client.Close()
}
