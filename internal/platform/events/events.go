// Package events publishes blog domain events to NATS JetStream.
// Publishing is fire-and-forget: callers never see transport failures.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/blog-platform/internal/platform/natsconn"
)

const StreamName = "BLOG"

const (
	SubjectCommentsChanged    = "blog.comments.changed"
	SubjectPostPublished      = "blog.posts.published"
	SubjectPostDeleted        = "blog.posts.deleted"
	SubjectPostLiked          = "blog.posts.liked"
	SubjectUserRegistered     = "blog.users.registered"
	SubjectNotificationCreate = "blog.notifications.create"
)

// Stream is the JetStream stream that captures every blog.* subject.
func Stream() natsconn.StreamSpec {
	return natsconn.StreamSpec{
		Name:     StreamName,
		Subjects: []string{"blog.>"},
		MaxAge:   7 * 24 * time.Hour,
	}
}

// Event is the envelope sent on every blog.* subject.
type Event struct {
	EventID    string         `json:"event_id"`
	EventName  string         `json:"event_name"`
	UserID     string         `json:"user_id,omitempty"`
	PostID     string         `json:"post_id,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
	Properties map[string]any `json:"properties,omitempty"`
}

func Decode(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	return ev, nil
}

// Publisher publishes events to JetStream.
// The zero value and a nil pointer are both safe no-op stubs.
type Publisher struct {
	js  nats.JetStreamContext
	log *zap.Logger
}

// New creates a Publisher using an existing JetStream context.
// Pass js=nil to get a no-op stub.
func New(js nats.JetStreamContext, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{js: js, log: log}
}

// Publish sends an event asynchronously. Failures are logged as warnings.
func (p *Publisher) Publish(subject, eventName, userID, postID string, props map[string]any) {
	if p == nil || p.js == nil {
		return
	}
	ev := Event{
		EventID:    uuid.NewString(),
		EventName:  eventName,
		UserID:     userID,
		PostID:     postID,
		OccurredAt: time.Now().UTC(),
		Properties: props,
	}
	data, err := json.Marshal(ev)
	if err != nil {
		p.log.Warn("events: marshal failed", zap.String("event", eventName), zap.Error(err))
		return
	}
	if _, err := p.js.PublishAsync(subject, data); err != nil {
		p.log.Warn("events: publish failed", zap.String("subject", subject), zap.Error(err))
	}
}

// Wait blocks until pending async publishes are acknowledged or timeout
// elapses. It reports whether everything was flushed.
func (p *Publisher) Wait(timeout time.Duration) bool {
	if p == nil || p.js == nil {
		return true
	}
	select {
	case <-p.js.PublishAsyncComplete():
		return true
	case <-time.After(timeout):
		return false
	}
}
