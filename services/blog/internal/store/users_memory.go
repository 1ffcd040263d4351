package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/example/blog-platform/internal/platform/idgen"
)

// InMemoryUserStore is a development and test implementation.
type InMemoryUserStore struct {
	mu    sync.RWMutex
	users map[string]User
}

func NewInMemoryUserStore() *InMemoryUserStore {
	return &InMemoryUserStore{users: make(map[string]User)}
}

func (s *InMemoryUserStore) Create(_ context.Context, u User) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, other := range s.users {
		if strings.EqualFold(other.Email, u.Email) || strings.EqualFold(other.Username, u.Username) {
			return User{}, ErrConflict
		}
	}
	if u.ID == "" {
		id, err := idgen.New("u")
		if err != nil {
			return User{}, err
		}
		u.ID = id
	} else if _, exists := s.users[u.ID]; exists {
		return User{}, ErrConflict
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	u.JoinedAt = time.Now().UTC()
	s.users[u.ID] = u
	return u, nil
}

func (s *InMemoryUserStore) Get(_ context.Context, id string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (s *InMemoryUserStore) GetByLogin(_ context.Context, login string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, login) || strings.EqualFold(u.Username, login) {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (s *InMemoryUserStore) UpdateProfile(_ context.Context, id string, p ProfileUpdate) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	for otherID, other := range s.users {
		if otherID != id && strings.EqualFold(other.Username, p.Username) {
			return User{}, ErrConflict
		}
	}
	u.Fullname = p.Fullname
	u.Username = p.Username
	u.Bio = p.Bio
	u.ProfileImg = p.ProfileImg
	u.SocialLinks = p.SocialLinks
	s.users[id] = u
	return u, nil
}

func (s *InMemoryUserStore) UpdatePasswordHash(_ context.Context, id, hash string) error {
	return s.mutate(id, func(u *User) { u.PasswordHash = hash })
}

func (s *InMemoryUserStore) SearchByUsername(_ context.Context, prefix string, limit int) ([]User, error) {
	prefix = strings.ToLower(prefix)
	s.mu.RLock()
	var out []User
	for _, u := range s.users {
		if strings.HasPrefix(strings.ToLower(u.Username), prefix) {
			out = append(out, u)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return page(out, 0, limit), nil
}

func (s *InMemoryUserStore) AddAccountActivity(_ context.Context, id string, posts, reads int64) error {
	return s.mutate(id, func(u *User) {
		u.TotalPosts += posts
		u.TotalReads += reads
	})
}

func (s *InMemoryUserStore) SetNotificationFlag(_ context.Context, id string, available bool) error {
	return s.mutate(id, func(u *User) { u.NewNotificationAvailable = available })
}

func (s *InMemoryUserStore) mutate(id string, fn func(*User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	fn(&u)
	s.users[id] = u
	return nil
}
