package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// InMemoryPostStore is a development and test implementation.
type InMemoryPostStore struct {
	mu    sync.RWMutex
	posts map[PostID]Post
	likes map[PostID]map[string]struct{}
}

func NewInMemoryPostStore() *InMemoryPostStore {
	return &InMemoryPostStore{
		posts: make(map[PostID]Post),
		likes: make(map[PostID]map[string]struct{}),
	}
}

func (s *InMemoryPostStore) Create(_ context.Context, p Post) (Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.posts[p.ID]; exists {
		return Post{}, ErrConflict
	}
	now := time.Now().UTC()
	p = p.clone()
	p.Activity = Activity{}
	p.PublishedAt = now
	p.UpdatedAt = now
	s.posts[p.ID] = p
	return p.clone(), nil
}

func (s *InMemoryPostStore) Get(_ context.Context, id PostID) (Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.posts[id]
	if !ok {
		return Post{}, ErrNotFound
	}
	return p.clone(), nil
}

func (s *InMemoryPostStore) Update(_ context.Context, p Post) (Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.posts[p.ID]
	if !ok {
		return Post{}, ErrNotFound
	}
	now := time.Now().UTC()
	if cur.Draft && !p.Draft {
		cur.PublishedAt = now
	}
	cur.Title = p.Title
	cur.Banner = p.Banner
	cur.Description = p.Description
	cur.Content = p.Content
	cur.Tags = p.Tags
	cur.Draft = p.Draft
	cur.UpdatedAt = now
	cur = cur.clone()
	s.posts[p.ID] = cur
	return cur.clone(), nil
}

func (s *InMemoryPostStore) Delete(_ context.Context, id PostID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[id]; !ok {
		return ErrNotFound
	}
	delete(s.posts, id)
	delete(s.likes, id)
	return nil
}

func (s *InMemoryPostStore) AddActivity(_ context.Context, id PostID, d ActivityDelta) (Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.posts[id]
	if !ok {
		return Activity{}, ErrNotFound
	}
	p.Activity.apply(d)
	s.posts[id] = p
	return p.Activity, nil
}

func (s *InMemoryPostStore) ListLatest(_ context.Context, offset, limit int) ([]Post, error) {
	posts := s.filter(func(p Post) bool { return !p.Draft })
	sort.Slice(posts, func(i, j int) bool { return posts[i].PublishedAt.After(posts[j].PublishedAt) })
	return page(posts, offset, limit), nil
}

func (s *InMemoryPostStore) ListTrending(_ context.Context, limit int) ([]Post, error) {
	posts := s.filter(func(p Post) bool { return !p.Draft })
	sort.SliceStable(posts, func(i, j int) bool {
		if posts[i].Activity.TotalReads != posts[j].Activity.TotalReads {
			return posts[i].Activity.TotalReads > posts[j].Activity.TotalReads
		}
		return posts[i].PublishedAt.After(posts[j].PublishedAt)
	})
	return page(posts, 0, limit), nil
}

func (s *InMemoryPostStore) Search(_ context.Context, titlePrefix string, offset, limit int) ([]Post, error) {
	prefix := strings.ToLower(titlePrefix)
	posts := s.filter(func(p Post) bool {
		return !p.Draft && strings.HasPrefix(strings.ToLower(p.Title), prefix)
	})
	sort.Slice(posts, func(i, j int) bool { return posts[i].Title < posts[j].Title })
	return page(posts, offset, limit), nil
}

func (s *InMemoryPostStore) ListByAuthor(_ context.Context, authorID string, drafts bool, offset, limit int) ([]Post, error) {
	posts := s.filter(func(p Post) bool { return p.AuthorID == authorID && p.Draft == drafts })
	sort.Slice(posts, func(i, j int) bool { return posts[i].PublishedAt.After(posts[j].PublishedAt) })
	return page(posts, offset, limit), nil
}

func (s *InMemoryPostStore) AddLike(_ context.Context, id PostID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.posts[id]
	if !ok {
		return false, ErrNotFound
	}
	set := s.likes[id]
	if set == nil {
		set = make(map[string]struct{})
		s.likes[id] = set
	}
	if _, liked := set[userID]; liked {
		return false, nil
	}
	set[userID] = struct{}{}
	p.Activity.TotalLikes++
	s.posts[id] = p
	return true, nil
}

func (s *InMemoryPostStore) RemoveLike(_ context.Context, id PostID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.posts[id]
	if !ok {
		return false, ErrNotFound
	}
	if _, liked := s.likes[id][userID]; !liked {
		return false, nil
	}
	delete(s.likes[id], userID)
	p.Activity.TotalLikes--
	s.posts[id] = p
	return true, nil
}

func (s *InMemoryPostStore) IsLiked(_ context.Context, id PostID, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.posts[id]; !ok {
		return false, ErrNotFound
	}
	_, liked := s.likes[id][userID]
	return liked, nil
}

func (s *InMemoryPostStore) filter(keep func(Post) bool) []Post {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Post
	for _, p := range s.posts {
		if keep(p) {
			out = append(out, p.clone())
		}
	}
	return out
}
