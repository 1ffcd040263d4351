package notify

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/blog-platform/internal/platform/events"
)

const consumerName = "blog_notifications"

// Consumer persists notifications published by JetStreamNotifier.
type Consumer struct {
	sub       *nats.Subscription
	sink      Notifier
	batchSize int
	wait      time.Duration
	log       *zap.Logger
}

// NewConsumer binds a durable pull consumer on the BLOG stream. The stream
// must already exist.
func NewConsumer(js nats.JetStreamContext, sink Notifier, batchSize int, wait time.Duration, log *zap.Logger) (*Consumer, error) {
	if batchSize <= 0 {
		batchSize = 50
	}
	if wait <= 0 {
		wait = 2 * time.Second
	}
	sub, err := js.PullSubscribe(events.SubjectNotificationCreate, consumerName, nats.BindStream(events.StreamName))
	if err != nil {
		return nil, err
	}
	return &Consumer{sub: sub, sink: sink, batchSize: batchSize, wait: wait, log: log}, nil
}

// Run processes messages until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := c.sub.Fetch(c.batchSize, nats.MaxWait(c.wait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrBadSubscription) {
				return
			}
			c.log.Error("notification consumer: fetch", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		for _, m := range msgs {
			c.handle(ctx, m)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, m *nats.Msg) {
	var msg Message
	if err := json.Unmarshal(m.Data, &msg); err != nil {
		c.log.Warn("notification consumer: dropping malformed message", zap.Error(err))
		_ = m.Term()
		return
	}
	n := msg.Notification
	n.EventID = msg.EventID
	if err := c.sink.Notify(ctx, n); err != nil {
		c.log.Warn("notification consumer: persist failed", zap.String("event_id", msg.EventID), zap.Error(err))
		_ = m.Nak()
		return
	}
	if err := m.Ack(); err != nil {
		c.log.Warn("notification consumer: ack", zap.Error(err))
	}
}

func (c *Consumer) Close() error {
	return c.sub.Unsubscribe()
}
