package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/blog-platform/services/blog/internal/store"
)

var (
	ErrNotFound      = errors.New("notification not found")
	ErrInvalidFilter = errors.New("invalid notification filter")
)

// Inbox serves a user's notifications.
type Inbox struct {
	Notifications store.NotificationStore
	Users         store.UserStore
}

// List returns one page, newest first, and marks the returned items seen.
// When nothing unseen remains the user's new-notification flag is cleared.
func (s Inbox) List(ctx context.Context, userID, filter string, page, pageSize int) ([]store.Notification, error) {
	typ, ok := store.ParseNotificationFilter(filter)
	if !ok {
		return nil, ErrInvalidFilter
	}
	page, pageSize = normalizePage(page, pageSize)
	items, err := s.Notifications.List(ctx, userID, typ, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}

	ids := make([]string, 0, len(items))
	for _, n := range items {
		if !n.Seen {
			ids = append(ids, n.ID)
		}
	}
	if len(ids) > 0 {
		if err := s.Notifications.MarkSeen(ctx, userID, ids); err != nil {
			return nil, fmt.Errorf("mark seen: %w", err)
		}
	}
	if err := s.syncFlag(ctx, userID); err != nil {
		return nil, err
	}
	return items, nil
}

func (s Inbox) Count(ctx context.Context, userID, filter string) (int, error) {
	typ, ok := store.ParseNotificationFilter(filter)
	if !ok {
		return 0, ErrInvalidFilter
	}
	return s.Notifications.Count(ctx, userID, typ)
}

func (s Inbox) HasNew(ctx context.Context, userID string) (bool, error) {
	return s.Notifications.HasUnseen(ctx, userID)
}

func (s Inbox) MarkAllSeen(ctx context.Context, userID string) error {
	if err := s.Notifications.MarkAllSeen(ctx, userID); err != nil {
		return fmt.Errorf("mark all seen: %w", err)
	}
	return s.syncFlag(ctx, userID)
}

func (s Inbox) Delete(ctx context.Context, userID, id string) error {
	if err := s.Notifications.Delete(ctx, id, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete notification: %w", err)
	}
	return nil
}

func (s Inbox) syncFlag(ctx context.Context, userID string) error {
	unseen, err := s.Notifications.HasUnseen(ctx, userID)
	if err != nil {
		return fmt.Errorf("check unseen: %w", err)
	}
	if unseen {
		return nil
	}
	if err := s.Users.SetNotificationFlag(ctx, userID, false); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("clear notification flag: %w", err)
	}
	return nil
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 10
	}
	if size > 100 {
		size = 100
	}
	return page, size
}
