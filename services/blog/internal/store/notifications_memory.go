package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/blog-platform/internal/platform/idgen"
)

// InMemoryNotificationStore is a development and test implementation.
type InMemoryNotificationStore struct {
	mu     sync.RWMutex
	items  map[string]Notification
	events map[string]struct{}
}

func NewInMemoryNotificationStore() *InMemoryNotificationStore {
	return &InMemoryNotificationStore{
		items:  make(map[string]Notification),
		events: make(map[string]struct{}),
	}
}

func (s *InMemoryNotificationStore) Insert(_ context.Context, n Notification) (Notification, error) {
	id, err := idgen.New("n")
	if err != nil {
		return Notification{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if n.EventID != "" {
		if _, dup := s.events[n.EventID]; dup {
			return Notification{}, ErrConflict
		}
		s.events[n.EventID] = struct{}{}
	}
	n.ID = id
	n.Seen = false
	n.CreatedAt = time.Now().UTC()
	s.items[n.ID] = n
	return n, nil
}

func (s *InMemoryNotificationStore) List(_ context.Context, recipientID string, filter NotificationType, offset, limit int) ([]Notification, error) {
	return page(s.visible(recipientID, filter, false), offset, limit), nil
}

func (s *InMemoryNotificationStore) Count(_ context.Context, recipientID string, filter NotificationType) (int, error) {
	return len(s.visible(recipientID, filter, false)), nil
}

func (s *InMemoryNotificationStore) HasUnseen(_ context.Context, recipientID string) (bool, error) {
	return len(s.visible(recipientID, "", true)) > 0, nil
}

func (s *InMemoryNotificationStore) MarkSeen(_ context.Context, recipientID string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if n, ok := s.items[id]; ok && n.RecipientID == recipientID {
			n.Seen = true
			s.items[id] = n
		}
	}
	return nil
}

func (s *InMemoryNotificationStore) MarkAllSeen(_ context.Context, recipientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, n := range s.items {
		if n.RecipientID == recipientID && !n.Seen {
			n.Seen = true
			s.items[id] = n
		}
	}
	return nil
}

func (s *InMemoryNotificationStore) Delete(_ context.Context, id, recipientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.items[id]
	if !ok || n.RecipientID != recipientID {
		return ErrNotFound
	}
	delete(s.items, id)
	return nil
}

// visible returns the recipient's notifications newest first.
func (s *InMemoryNotificationStore) visible(recipientID string, filter NotificationType, unseenOnly bool) []Notification {
	s.mu.RLock()
	var out []Notification
	for _, n := range s.items {
		if n.RecipientID != recipientID || n.ActorID == recipientID {
			continue
		}
		if filter != "" && n.Type != filter {
			continue
		}
		if unseenOnly && n.Seen {
			continue
		}
		out = append(out, n)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}
