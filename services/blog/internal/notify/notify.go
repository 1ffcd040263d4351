// Package notify delivers comment, reply and like notifications to post
// authors and serves the recipient's notification inbox.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/blog-platform/internal/platform/events"
	"github.com/example/blog-platform/services/blog/internal/store"
)

// Notifier delivers one notification. Callers treat delivery as best-effort:
// an error is logged, never surfaced to the user who triggered it.
type Notifier interface {
	Notify(ctx context.Context, n store.Notification) error
}

// StoreNotifier writes the notification and raises the recipient's
// new-notification flag. Replays of the same EventID are ignored.
type StoreNotifier struct {
	Notifications store.NotificationStore
	Users         store.UserStore
}

func (s StoreNotifier) Notify(ctx context.Context, n store.Notification) error {
	if n.RecipientID == "" || n.RecipientID == n.ActorID {
		return nil
	}
	if _, err := s.Notifications.Insert(ctx, n); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil
		}
		return fmt.Errorf("insert notification: %w", err)
	}
	if err := s.Users.SetNotificationFlag(ctx, n.RecipientID, true); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("set notification flag: %w", err)
	}
	return nil
}

// Message is the JetStream payload on events.SubjectNotificationCreate.
type Message struct {
	EventID      string             `json:"event_id"`
	OccurredAt   time.Time          `json:"occurred_at"`
	Notification store.Notification `json:"notification"`
}

// JetStreamNotifier hands notifications to the Consumer through JetStream so
// the request path never waits on the notification tables.
type JetStreamNotifier struct {
	JS nats.JetStreamContext
}

func (j JetStreamNotifier) Notify(ctx context.Context, n store.Notification) error {
	if n.RecipientID == "" || n.RecipientID == n.ActorID {
		return nil
	}
	msg := Message{EventID: n.EventID, OccurredAt: time.Now().UTC(), Notification: n}
	if msg.EventID == "" {
		msg.EventID = uuid.NewString()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = j.JS.Publish(events.SubjectNotificationCreate, data, nats.Context(ctx), nats.MsgId(msg.EventID))
	return err
}

// Logged wraps a Notifier and logs instead of returning failures.
type Logged struct {
	Next Notifier
	Log  *zap.Logger
}

func (l Logged) Notify(ctx context.Context, n store.Notification) error {
	if l.Next == nil {
		return nil
	}
	if err := l.Next.Notify(ctx, n); err != nil {
		l.Log.Warn("notification delivery failed",
			zap.String("type", string(n.Type)),
			zap.String("recipient_id", n.RecipientID),
			zap.String("post_id", n.PostID.String()),
			zap.Error(err))
	}
	return nil
}
