package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/blog-platform/internal/platform/idgen"
)

// InMemoryCommentStore is a development and test implementation.
type InMemoryCommentStore struct {
	mu       sync.RWMutex
	comments map[string]memComment
	lastAt   map[PostID]time.Time
	seq      int64
	now      func() time.Time
}

type memComment struct {
	Comment
	seq int64
}

func NewInMemoryCommentStore() *InMemoryCommentStore {
	return &InMemoryCommentStore{
		comments: make(map[string]memComment),
		lastAt:   make(map[PostID]time.Time),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *InMemoryCommentStore) Insert(_ context.Context, c Comment) (Comment, error) {
	id, err := idgen.New("")
	if err != nil {
		return Comment{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c = c.clone()
	c.Normalize()
	c.ID = id
	c.CreatedAt = s.now()
	if last := s.lastAt[c.PostID]; c.CreatedAt.Before(last) {
		c.CreatedAt = last
	}
	s.lastAt[c.PostID] = c.CreatedAt
	s.seq++
	s.comments[c.ID] = memComment{Comment: c, seq: s.seq}
	return c.clone(), nil
}

func (s *InMemoryCommentStore) Get(_ context.Context, id string) (Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.comments[id]
	if !ok {
		return Comment{}, ErrNotFound
	}
	return c.clone(), nil
}

func (s *InMemoryCommentStore) ListTopLevel(_ context.Context, postID PostID, offset, limit int) ([]Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var roots []memComment
	for _, c := range s.comments {
		if c.PostID == postID && c.ParentID == nil {
			roots = append(roots, c)
		}
	}
	return page(sortedComments(roots), offset, limit), nil
}

func (s *InMemoryCommentStore) ListReplies(_ context.Context, postID PostID, parentIDs []string) ([]Comment, error) {
	if len(parentIDs) == 0 {
		return []Comment{}, nil
	}
	parents := toSet(parentIDs)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var replies []memComment
	for _, c := range s.comments {
		if c.PostID != postID || c.ParentID == nil {
			continue
		}
		if _, ok := parents[*c.ParentID]; ok {
			replies = append(replies, c)
		}
	}
	return sortedComments(replies), nil
}

func (s *InMemoryCommentStore) ChildIDs(_ context.Context, parentIDs []string) ([]string, error) {
	if len(parentIDs) == 0 {
		return []string{}, nil
	}
	parents := toSet(parentIDs)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var children []memComment
	for _, c := range s.comments {
		if c.ParentID == nil {
			continue
		}
		if _, ok := parents[*c.ParentID]; ok {
			children = append(children, c)
		}
	}
	sort.Slice(children, func(i, j int) bool { return children[i].seq < children[j].seq })
	ids := make([]string, len(children))
	for i, c := range children {
		ids[i] = c.ID
	}
	return ids, nil
}

func (s *InMemoryCommentStore) DeleteBatch(_ context.Context, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, id := range ids {
		if _, ok := s.comments[id]; ok {
			delete(s.comments, id)
			n++
		}
	}
	return n, nil
}

func (s *InMemoryCommentStore) DeleteByPost(_ context.Context, postID PostID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, c := range s.comments {
		if c.PostID == postID {
			delete(s.comments, id)
			n++
		}
	}
	delete(s.lastAt, postID)
	return n, nil
}

func sortedComments(items []memComment) []Comment {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].seq < items[j].seq
	})
	out := make([]Comment, len(items))
	for i, c := range items {
		out[i] = c.clone()
	}
	return out
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
