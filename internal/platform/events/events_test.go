package events

import (
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/blog-platform/internal/platform/natsconn"
	"github.com/example/blog-platform/internal/platform/natstest"
)

func TestPublisher_NilIsNoop(t *testing.T) {
	var p *Publisher
	p.Publish(SubjectCommentsChanged, "comment_created", "u1", "p1", nil)
	if !p.Wait(time.Millisecond) {
		t.Fatal("nil publisher should report flushed")
	}
	New(nil, nil).Publish(SubjectCommentsChanged, "comment_created", "u1", "p1", nil)
}

func TestPublisher_DeliversToStream(t *testing.T) {
	url := natstest.Start(t)
	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer nc.Close()
	js, err := nc.JetStream()
	if err != nil {
		t.Fatalf("jetstream: %v", err)
	}
	if err := natsconn.EnsureStream(js, Stream()); err != nil {
		t.Fatalf("ensure stream: %v", err)
	}

	sub, err := js.SubscribeSync(SubjectCommentsChanged)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	p := New(js, zap.NewNop())
	p.Publish(SubjectCommentsChanged, "comment_created", "u1", "post-1", map[string]any{"comment_id": "c1"})
	if !p.Wait(5 * time.Second) {
		t.Fatal("publish not acknowledged")
	}

	msg, err := sub.NextMsg(5 * time.Second)
	if err != nil {
		t.Fatalf("next msg: %v", err)
	}
	ev, err := Decode(msg.Data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.EventName != "comment_created" || ev.PostID != "post-1" || ev.UserID != "u1" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.EventID == "" || ev.OccurredAt.IsZero() {
		t.Fatalf("envelope not populated: %+v", ev)
	}
	if ev.Properties["comment_id"] != "c1" {
		t.Fatalf("properties lost: %+v", ev.Properties)
	}
}

func TestDecode_Invalid(t *testing.T) {
	if _, err := Decode([]byte("{")); err == nil {
		t.Fatal("expected decode error")
	}
}
