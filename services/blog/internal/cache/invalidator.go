package cache

import (
	"context"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/blog-platform/internal/platform/events"
	"github.com/example/blog-platform/services/blog/internal/store"
)

// SubscribeInvalidation drops a post's cached pages whenever any instance
// publishes a comments-changed event for it. Call the returned function to
// stop listening.
func SubscribeInvalidation(nc *nats.Conn, pages Pages, log *zap.Logger) (func() error, error) {
	sub, err := nc.Subscribe(events.SubjectCommentsChanged, func(m *nats.Msg) {
		ev, err := events.Decode(m.Data)
		if err != nil {
			log.Warn("comment cache: bad invalidation message", zap.Error(err))
			return
		}
		if ev.PostID == "" {
			return
		}
		n := pages.Invalidate(context.Background(), store.PostID(ev.PostID))
		log.Debug("comment cache invalidated", zap.String("post_id", ev.PostID), zap.Int("entries", n))
	})
	if err != nil {
		return nil, err
	}
	return sub.Unsubscribe, nil
}
