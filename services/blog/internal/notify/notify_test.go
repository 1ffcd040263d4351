package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/blog-platform/internal/platform/events"
	"github.com/example/blog-platform/internal/platform/natsconn"
	"github.com/example/blog-platform/internal/platform/natstest"
	"github.com/example/blog-platform/services/blog/internal/store"
)

type fixture struct {
	notifications *store.InMemoryNotificationStore
	users         *store.InMemoryUserStore
	author        store.User
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	users := store.NewInMemoryUserStore()
	author, err := users.Create(context.Background(), store.User{Email: "author@example.com", Username: "author"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return fixture{notifications: store.NewInMemoryNotificationStore(), users: users, author: author}
}

func (f fixture) notifier() StoreNotifier {
	return StoreNotifier{Notifications: f.notifications, Users: f.users}
}

func TestStoreNotifier_InsertsAndFlags(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.notifier().Notify(ctx, store.Notification{
		EventID: "ev-1", Type: store.NotificationComment, RecipientID: f.author.ID, ActorID: "reader", PostID: "p",
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	u, _ := f.users.Get(ctx, f.author.ID)
	if !u.NewNotificationAvailable {
		t.Fatal("expected recipient flag to be raised")
	}

	// Replay of the same event is a no-op.
	if err := f.notifier().Notify(ctx, store.Notification{
		EventID: "ev-1", Type: store.NotificationComment, RecipientID: f.author.ID, ActorID: "reader",
	}); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if n, _ := f.notifications.Count(ctx, f.author.ID, ""); n != 1 {
		t.Fatalf("expected 1 notification after replay, got %d", n)
	}
}

func TestStoreNotifier_SkipsSelf(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.notifier().Notify(ctx, store.Notification{
		Type: store.NotificationLike, RecipientID: f.author.ID, ActorID: f.author.ID,
	}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	u, _ := f.users.Get(ctx, f.author.ID)
	if u.NewNotificationAvailable {
		t.Fatal("self actions must not notify")
	}
}

type failingNotifier struct{ calls int }

func (f *failingNotifier) Notify(context.Context, store.Notification) error {
	f.calls++
	return errors.New("broker down")
}

func TestLogged_SwallowsErrors(t *testing.T) {
	next := &failingNotifier{}
	l := Logged{Next: next, Log: zap.NewNop()}
	if err := l.Notify(context.Background(), store.Notification{RecipientID: "a", ActorID: "b"}); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if next.calls != 1 {
		t.Fatalf("expected delegate to be called once, got %d", next.calls)
	}
	if err := (Logged{Log: zap.NewNop()}).Notify(context.Background(), store.Notification{}); err != nil {
		t.Fatalf("nil delegate: %v", err)
	}
}

func TestInbox_ListMarksSeenAndClearsFlag(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	n := f.notifier()
	for i, typ := range []store.NotificationType{store.NotificationComment, store.NotificationLike, store.NotificationReply} {
		_ = n.Notify(ctx, store.Notification{
			EventID: string(rune('a' + i)), Type: typ, RecipientID: f.author.ID, ActorID: "reader",
		})
	}
	inbox := Inbox{Notifications: f.notifications, Users: f.users}

	likes, err := inbox.List(ctx, f.author.ID, "like", 1, 10)
	if err != nil {
		t.Fatalf("list likes: %v", err)
	}
	if len(likes) != 1 {
		t.Fatalf("expected 1 like, got %d", len(likes))
	}
	if u, _ := f.users.Get(ctx, f.author.ID); !u.NewNotificationAvailable {
		t.Fatal("flag must stay raised while unseen notifications remain")
	}

	all, err := inbox.List(ctx, f.author.ID, "all", 1, 10)
	if err != nil || len(all) != 3 {
		t.Fatalf("list all: %d %v", len(all), err)
	}
	if has, _ := inbox.HasNew(ctx, f.author.ID); has {
		t.Fatal("everything listed should now be seen")
	}
	if u, _ := f.users.Get(ctx, f.author.ID); u.NewNotificationAvailable {
		t.Fatal("flag should be cleared once nothing unseen remains")
	}

	if _, err := inbox.List(ctx, f.author.ID, "bogus", 1, 10); !errors.Is(err, ErrInvalidFilter) {
		t.Fatalf("expected ErrInvalidFilter, got %v", err)
	}
}

func TestInbox_CountDeleteMarkAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_ = f.notifier().Notify(ctx, store.Notification{Type: store.NotificationComment, RecipientID: f.author.ID, ActorID: "r1"})
	_ = f.notifier().Notify(ctx, store.Notification{Type: store.NotificationComment, RecipientID: f.author.ID, ActorID: "r2"})
	inbox := Inbox{Notifications: f.notifications, Users: f.users}

	if n, _ := inbox.Count(ctx, f.author.ID, "comment"); n != 2 {
		t.Fatalf("expected 2, got %d", n)
	}
	if _, err := inbox.Count(ctx, f.author.ID, "nope"); !errors.Is(err, ErrInvalidFilter) {
		t.Fatalf("expected ErrInvalidFilter, got %v", err)
	}

	if err := inbox.MarkAllSeen(ctx, f.author.ID); err != nil {
		t.Fatalf("mark all seen: %v", err)
	}
	if u, _ := f.users.Get(ctx, f.author.ID); u.NewNotificationAvailable {
		t.Fatal("flag should be cleared")
	}

	items, _ := f.notifications.List(ctx, f.author.ID, "", 0, 10)
	if err := inbox.Delete(ctx, "intruder", items[0].ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for another user's notification, got %v", err)
	}
	if err := inbox.Delete(ctx, f.author.ID, items[0].ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

func TestJetStreamNotifier_ConsumerPersists(t *testing.T) {
	f := newFixture(t)
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
	if err := natsconn.EnsureStream(js, events.Stream()); err != nil {
		t.Fatalf("ensure stream: %v", err)
	}

	consumer, err := NewConsumer(js, f.notifier(), 10, 100*time.Millisecond, zap.NewNop())
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		consumer.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	pub := JetStreamNotifier{JS: js}
	n := store.Notification{
		EventID: "ev-42", Type: store.NotificationReply, RecipientID: f.author.ID, ActorID: "reader",
		PostID: "p", CommentText: "hi", RepliedOnText: "orig",
	}
	if err := pub.Notify(context.Background(), n); err != nil {
		t.Fatalf("publish: %v", err)
	}
	// Duplicate publish is dropped by JetStream and by the store.
	if err := pub.Notify(context.Background(), n); err != nil {
		t.Fatalf("publish duplicate: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		count, _ := f.notifications.Count(context.Background(), f.author.ID, "")
		if count == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("notification not persisted, count=%d", count)
		}
		time.Sleep(20 * time.Millisecond)
	}
	items, _ := f.notifications.List(context.Background(), f.author.ID, "", 0, 10)
	if items[0].RepliedOnText != "orig" || items[0].EventID != "ev-42" {
		t.Fatalf("unexpected notification %+v", items[0])
	}
}
