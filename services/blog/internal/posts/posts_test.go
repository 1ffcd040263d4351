package posts

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/example/blog-platform/services/blog/internal/cache"
	"github.com/example/blog-platform/services/blog/internal/store"
	"github.com/example/blog-platform/services/blog/internal/validate"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []store.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n store.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

// racingPosts inserts a comment on the post just before deleting it, the
// way a concurrent Create would land mid-delete.
type racingPosts struct {
	store.PostStore
	comments store.CommentStore
}

func (r *racingPosts) Delete(ctx context.Context, id store.PostID) error {
	if _, err := r.comments.Insert(ctx, store.Comment{PostID: id, AuthorID: "late", Text: "late"}); err != nil {
		return err
	}
	return r.PostStore.Delete(ctx, id)
}

// failingComments fails DeleteByPost.
type failingComments struct {
	store.CommentStore
}

func (failingComments) DeleteByPost(context.Context, store.PostID) (int, error) {
	return 0, errors.New("connection reset")
}

type fixture struct {
	svc      *Service
	users    *store.InMemoryUserStore
	comments *store.InMemoryCommentStore
	cache    *cache.TTLCache
	notifier *recordingNotifier
	alice    store.User
	bob      store.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	users := store.NewInMemoryUserStore()
	alice, err := users.Create(ctx, store.User{Email: "alice@example.com", Username: "alice", Fullname: "Alice"})
	if err != nil {
		t.Fatalf("create alice: %v", err)
	}
	bob, err := users.Create(ctx, store.User{Email: "bob@example.com", Username: "bob", Fullname: "Bob"})
	if err != nil {
		t.Fatalf("create bob: %v", err)
	}
	f := &fixture{
		users:    users,
		comments: store.NewInMemoryCommentStore(),
		cache:    cache.NewTTLCache(0),
		notifier: &recordingNotifier{},
		alice:    alice,
		bob:      bob,
	}
	f.svc = &Service{
		Posts:    store.NewInMemoryPostStore(),
		Users:    users,
		Comments: f.comments,
		Notifier: f.notifier,
		Cache:    f.cache,
	}
	return f
}

func publishable(title string) Input {
	return Input{
		Title:       title,
		Description: "A short description",
		Content:     json.RawMessage(`{"blocks":[{"type":"paragraph","data":{"text":"hi"}}]}`),
		Tags:        []string{"Go", "go", " Databases "},
	}
}

func (f *fixture) user(t *testing.T, id string) store.User {
	t.Helper()
	u, err := f.users.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	return u
}

func TestCreate_Published(t *testing.T) {
	f := newFixture(t)
	p, err := f.svc.Create(context.Background(), f.alice.ID, publishable("Hello, World <i>again</i>"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.HasPrefix(p.ID.String(), "hello-world-again-") {
		t.Fatalf("id = %q", p.ID)
	}
	if p.Title != "Hello, World again" {
		t.Fatalf("title = %q", p.Title)
	}
	if len(p.Tags) != 2 || p.Tags[0] != "go" || p.Tags[1] != "databases" {
		t.Fatalf("tags = %v", p.Tags)
	}
	if p.Author.Username != "alice" {
		t.Fatalf("author = %+v", p.Author)
	}
	if got := f.user(t, f.alice.ID).TotalPosts; got != 1 {
		t.Fatalf("total posts = %d", got)
	}
}

func TestCreate_DraftThenPublish(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d, err := f.svc.Create(ctx, f.alice.ID, Input{Title: "Work in progress", Draft: true})
	if err != nil {
		t.Fatalf("create draft: %v", err)
	}
	if got := f.user(t, f.alice.ID).TotalPosts; got != 0 {
		t.Fatalf("draft counted as post: %d", got)
	}
	if _, err := f.svc.Get(ctx, d.ID, f.bob.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("draft visible to others: err = %v", err)
	}
	if _, err := f.svc.Get(ctx, d.ID, f.alice.ID); err != nil {
		t.Fatalf("draft hidden from author: %v", err)
	}

	if _, err := f.svc.Update(ctx, Actor{UserID: f.bob.ID}, d.ID, publishable("Stolen")); !errors.Is(err, ErrForbidden) {
		t.Fatalf("update by stranger: err = %v", err)
	}
	pub, err := f.svc.Update(ctx, Actor{UserID: f.alice.ID}, d.ID, publishable("Finished"))
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if pub.Draft || pub.Title != "Finished" || pub.ID != d.ID {
		t.Fatalf("published = %+v", pub)
	}
	if got := f.user(t, f.alice.ID).TotalPosts; got != 1 {
		t.Fatalf("total posts after publish = %d", got)
	}

	back := publishable("Finished")
	back.Draft = true
	if _, err := f.svc.Update(ctx, Actor{UserID: f.alice.ID}, d.ID, back); !isValidation(err, "draft") {
		t.Fatalf("unpublish: err = %v", err)
	}
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	noTags := publishable("No tags")
	noTags.Tags = nil
	noContent := publishable("Empty")
	noContent.Content = json.RawMessage(`{"blocks":[]}`)
	longDesc := publishable("Long")
	longDesc.Description = strings.Repeat("d", MaxDescriptionLen+1)
	manyTags := publishable("Many tags")
	manyTags.Tags = strings.Split("a b c d e f g h i j k", " ")
	badBanner := publishable("Banner")
	badBanner.Banner = "javascript:alert(1)"

	tests := []struct {
		name  string
		in    Input
		field string
	}{
		{"no title", Input{Title: "  ", Draft: true}, "title"},
		{"no tags", noTags, "tags"},
		{"no content", noContent, "content"},
		{"long description", longDesc, "description"},
		{"too many tags", manyTags, "tags"},
		{"bad banner", badBanner, "banner"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.Create(ctx, f.alice.ID, tt.in); !isValidation(err, tt.field) {
				t.Fatalf("err = %v, want validation error on %s", err, tt.field)
			}
		})
	}

	if _, err := f.svc.Create(ctx, "", publishable("x")); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("anonymous: err = %v", err)
	}
}

func TestDelete_RemovesComments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.svc.Create(ctx, f.alice.ID, publishable("To be removed"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	root, _ := f.comments.Insert(ctx, store.Comment{PostID: p.ID, AuthorID: f.bob.ID, Text: "c"})
	_, _ = f.comments.Insert(ctx, store.Comment{PostID: p.ID, AuthorID: f.bob.ID, Text: "r", ParentID: &root.ID})
	f.cache.Put(ctx, cache.PageKey{PostID: p.ID, Page: 1, Size: 10}, f.cache.Generation(ctx, p.ID), []store.Comment{root})

	if err := f.svc.Delete(ctx, Actor{UserID: f.bob.ID}, p.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("delete by stranger: err = %v", err)
	}
	if err := f.svc.Delete(ctx, Actor{UserID: f.alice.ID}, p.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.svc.Get(ctx, p.ID, f.alice.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("post still present: %v", err)
	}
	if left, _ := f.comments.ListTopLevel(ctx, p.ID, 0, 10); len(left) != 0 {
		t.Fatalf("comments left: %d", len(left))
	}
	if f.cache.Len() != 0 {
		t.Fatal("comment pages not invalidated")
	}
	if got := f.user(t, f.alice.ID).TotalPosts; got != 0 {
		t.Fatalf("total posts = %d", got)
	}
}

func TestDelete_CommentLandingMidDeleteIsRemoved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.svc.Create(ctx, f.alice.ID, publishable("Busy post"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	f.svc.Posts = &racingPosts{PostStore: f.svc.Posts, comments: f.comments}

	if err := f.svc.Delete(ctx, Actor{UserID: f.alice.ID}, p.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if left, _ := f.comments.ListTopLevel(ctx, p.ID, 0, 10); len(left) != 0 {
		t.Fatalf("comment outlived its post: %d left", len(left))
	}
}

func TestDelete_CommentCleanupFailureStillDeletesPost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.svc.Create(ctx, f.alice.ID, publishable("Flaky"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	f.svc.Comments = failingComments{CommentStore: f.comments}

	if err := f.svc.Delete(ctx, Actor{UserID: f.alice.ID}, p.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.svc.Get(ctx, p.ID, f.alice.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("post still present: %v", err)
	}
}

func TestDelete_Admin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.svc.Create(ctx, f.alice.ID, publishable("Moderated"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.svc.Delete(ctx, Actor{UserID: f.bob.ID, Admin: true}, p.ID); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
	if err := f.svc.Delete(ctx, Actor{UserID: f.alice.ID}, p.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: err = %v", err)
	}
}

func TestListings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var ids []store.PostID
	for _, title := range []string{"Go tips", "Go tricks", "Rust notes"} {
		p, err := f.svc.Create(ctx, f.alice.ID, publishable(title))
		if err != nil {
			t.Fatalf("create %s: %v", title, err)
		}
		ids = append(ids, p.ID)
	}
	if _, err := f.svc.Create(ctx, f.alice.ID, Input{Title: "Go draft", Draft: true}); err != nil {
		t.Fatalf("create draft: %v", err)
	}

	latest, err := f.svc.Latest(ctx, 1, 10)
	if err != nil || len(latest) != 3 {
		t.Fatalf("latest = %d, %v", len(latest), err)
	}

	found, err := f.svc.Search(ctx, "go", 1, 10)
	if err != nil || len(found) != 2 {
		t.Fatalf("search = %d, %v", len(found), err)
	}

	for range 3 {
		if _, err := f.svc.Read(ctx, ids[2]); err != nil {
			t.Fatalf("read: %v", err)
		}
	}
	trending, err := f.svc.Trending(ctx, 1)
	if err != nil || len(trending) != 1 || trending[0].ID != ids[2] {
		t.Fatalf("trending = %+v, %v", trending, err)
	}
	if got := f.user(t, f.alice.ID).TotalReads; got != 3 {
		t.Fatalf("author reads = %d", got)
	}

	drafts, err := f.svc.ByAuthor(ctx, f.alice.ID, f.alice.ID, true, 1, 10)
	if err != nil || len(drafts) != 1 {
		t.Fatalf("drafts = %d, %v", len(drafts), err)
	}
	if _, err := f.svc.ByAuthor(ctx, f.bob.ID, f.alice.ID, true, 1, 10); !errors.Is(err, ErrForbidden) {
		t.Fatalf("foreign drafts: err = %v", err)
	}
	published, err := f.svc.ByAuthor(ctx, "", f.alice.ID, false, 1, 2)
	if err != nil || len(published) != 2 {
		t.Fatalf("published page = %d, %v", len(published), err)
	}

	if _, err := f.svc.Read(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("read missing: err = %v", err)
	}
}

func TestLikes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.svc.Create(ctx, f.alice.ID, publishable("Likeable"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, changed, err := f.svc.Like(ctx, f.bob.ID, p.ID)
	if err != nil || !changed || got.Activity.TotalLikes != 1 {
		t.Fatalf("like = %+v, %v, %v", got.Activity, changed, err)
	}
	got, changed, err = f.svc.Like(ctx, f.bob.ID, p.ID)
	if err != nil || changed || got.Activity.TotalLikes != 1 {
		t.Fatalf("second like = %+v, %v, %v", got.Activity, changed, err)
	}
	if liked, _ := f.svc.IsLiked(ctx, f.bob.ID, p.ID); !liked {
		t.Fatal("expected liked")
	}
	if _, _, err := f.svc.Like(ctx, f.alice.ID, p.ID); err != nil {
		t.Fatalf("self like: %v", err)
	}

	if len(f.notifier.sent) != 1 {
		t.Fatalf("notifications = %d, want 1", len(f.notifier.sent))
	}
	n := f.notifier.sent[0]
	if n.Type != store.NotificationLike || n.RecipientID != f.alice.ID || n.ActorID != f.bob.ID || n.PostTitle != "Likeable" {
		t.Fatalf("notification = %+v", n)
	}

	got, changed, err = f.svc.Unlike(ctx, f.bob.ID, p.ID)
	if err != nil || !changed || got.Activity.TotalLikes != 1 {
		t.Fatalf("unlike = %+v, %v, %v", got.Activity, changed, err)
	}
	if _, _, err := f.svc.Like(ctx, "", p.ID); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("anonymous like: err = %v", err)
	}
	if _, _, err := f.svc.Like(ctx, f.bob.ID, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("like missing: err = %v", err)
	}
}

func isValidation(err error, field string) bool {
	ve, ok := validate.As(err)
	return ok && ve.Field == field
}
