package store

import (
	"context"
	"sync"
	"testing"
)

func seedPost(t *testing.T, s *InMemoryPostStore, id PostID, title string, draft bool) Post {
	t.Helper()
	p, err := s.Create(context.Background(), Post{ID: id, Title: title, AuthorID: "author", Draft: draft})
	if err != nil {
		t.Fatalf("create %s: %v", id, err)
	}
	return p
}

func TestInMemoryPostStore_CreateConflict(t *testing.T) {
	s := NewInMemoryPostStore()
	seedPost(t, s, "p1", "Hello", false)
	if _, err := s.Create(context.Background(), Post{ID: "p1", Title: "again"}); err != ErrConflict {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestInMemoryPostStore_AddActivity(t *testing.T) {
	s := NewInMemoryPostStore()
	seedPost(t, s, "p1", "Hello", false)
	ctx := context.Background()

	a, err := s.AddActivity(ctx, "p1", ActivityDelta{Comments: 2, ParentComments: 1, Reads: 5})
	if err != nil {
		t.Fatalf("add activity: %v", err)
	}
	if a.TotalComments != 2 || a.TotalParentComments != 1 || a.TotalReads != 5 {
		t.Fatalf("unexpected activity %+v", a)
	}

	if _, err := s.AddActivity(ctx, "missing", ActivityDelta{Comments: 1}); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInMemoryPostStore_AddActivityConcurrent(t *testing.T) {
	s := NewInMemoryPostStore()
	seedPost(t, s, "p1", "Hello", false)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.AddActivity(ctx, "p1", ActivityDelta{Comments: 1})
		}()
	}
	wg.Wait()

	p, _ := s.Get(ctx, "p1")
	if p.Activity.TotalComments != 50 {
		t.Fatalf("expected 50, got %d", p.Activity.TotalComments)
	}
}

func TestInMemoryPostStore_Likes(t *testing.T) {
	s := NewInMemoryPostStore()
	seedPost(t, s, "p1", "Hello", false)
	ctx := context.Background()

	changed, err := s.AddLike(ctx, "p1", "u1")
	if err != nil || !changed {
		t.Fatalf("first like: changed=%v err=%v", changed, err)
	}
	changed, _ = s.AddLike(ctx, "p1", "u1")
	if changed {
		t.Fatal("second like by same user must not change anything")
	}
	liked, _ := s.IsLiked(ctx, "p1", "u1")
	if !liked {
		t.Fatal("expected liked")
	}
	p, _ := s.Get(ctx, "p1")
	if p.Activity.TotalLikes != 1 {
		t.Fatalf("expected 1 like, got %d", p.Activity.TotalLikes)
	}

	changed, _ = s.RemoveLike(ctx, "p1", "u1")
	if !changed {
		t.Fatal("unlike should change")
	}
	changed, _ = s.RemoveLike(ctx, "p1", "u1")
	if changed {
		t.Fatal("second unlike must be a no-op")
	}
	p, _ = s.Get(ctx, "p1")
	if p.Activity.TotalLikes != 0 {
		t.Fatalf("expected 0 likes, got %d", p.Activity.TotalLikes)
	}

	if _, err := s.AddLike(ctx, "missing", "u1"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInMemoryPostStore_Listings(t *testing.T) {
	s := NewInMemoryPostStore()
	ctx := context.Background()
	seedPost(t, s, "a", "Alpha", false)
	seedPost(t, s, "b", "Beta", false)
	seedPost(t, s, "c", "Alpine draft", true)
	_, _ = s.AddActivity(ctx, "a", ActivityDelta{Reads: 10})
	_, _ = s.AddActivity(ctx, "b", ActivityDelta{Reads: 20})

	latest, _ := s.ListLatest(ctx, 0, 10)
	if len(latest) != 2 {
		t.Fatalf("drafts must not be listed, got %d posts", len(latest))
	}

	trending, _ := s.ListTrending(ctx, 1)
	if len(trending) != 1 || trending[0].ID != "b" {
		t.Fatalf("expected b trending, got %+v", trending)
	}

	found, _ := s.Search(ctx, "al", 0, 10)
	if len(found) != 1 || found[0].ID != "a" {
		t.Fatalf("expected case-insensitive prefix match on published posts, got %+v", found)
	}

	drafts, _ := s.ListByAuthor(ctx, "author", true, 0, 10)
	if len(drafts) != 1 || drafts[0].ID != "c" {
		t.Fatalf("expected one draft, got %+v", drafts)
	}
}

func TestInMemoryPostStore_UpdatePublishesDraft(t *testing.T) {
	s := NewInMemoryPostStore()
	ctx := context.Background()
	orig := seedPost(t, s, "d", "Draft", true)

	updated, err := s.Update(ctx, Post{ID: "d", Title: "Now live", Tags: []string{"go"}})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Draft || updated.Title != "Now live" {
		t.Fatalf("unexpected post %+v", updated)
	}
	if updated.PublishedAt.Before(orig.PublishedAt) {
		t.Fatal("publishing a draft must not move published_at backwards")
	}

	if _, err := s.Update(ctx, Post{ID: "nope"}); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
