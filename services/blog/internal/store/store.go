package store

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

// CommentStore persists comments. Implementations assign ID and CreatedAt on
// Insert; CreatedAt never decreases within a post.
type CommentStore interface {
	Insert(ctx context.Context, c Comment) (Comment, error)
	Get(ctx context.Context, id string) (Comment, error)
	// ListTopLevel returns top-level comments of a post ordered by CreatedAt asc.
	ListTopLevel(ctx context.Context, postID PostID, offset, limit int) ([]Comment, error)
	// ListReplies returns the direct replies of parentIDs in one batch,
	// ordered by CreatedAt asc.
	ListReplies(ctx context.Context, postID PostID, parentIDs []string) ([]Comment, error)
	ChildIDs(ctx context.Context, parentIDs []string) ([]string, error)
	// DeleteBatch removes ids and reports how many rows actually existed.
	DeleteBatch(ctx context.Context, ids []string) (int, error)
	DeleteByPost(ctx context.Context, postID PostID) (int, error)
}

// PostStore persists posts, their activity counters and like sets.
type PostStore interface {
	Create(ctx context.Context, p Post) (Post, error)
	Get(ctx context.Context, id PostID) (Post, error)
	Update(ctx context.Context, p Post) (Post, error)
	Delete(ctx context.Context, id PostID) error
	// AddActivity applies d as a single atomic increment.
	AddActivity(ctx context.Context, id PostID, d ActivityDelta) (Activity, error)
	ListLatest(ctx context.Context, offset, limit int) ([]Post, error)
	ListTrending(ctx context.Context, limit int) ([]Post, error)
	Search(ctx context.Context, titlePrefix string, offset, limit int) ([]Post, error)
	ListByAuthor(ctx context.Context, authorID string, drafts bool, offset, limit int) ([]Post, error)
	// AddLike and RemoveLike change the like set and TotalLikes together and
	// report whether anything changed.
	AddLike(ctx context.Context, id PostID, userID string) (bool, error)
	RemoveLike(ctx context.Context, id PostID, userID string) (bool, error)
	IsLiked(ctx context.Context, id PostID, userID string) (bool, error)
}

// UserStore persists accounts. Email and username are unique.
type UserStore interface {
	Create(ctx context.Context, u User) (User, error)
	Get(ctx context.Context, id string) (User, error)
	// GetByLogin matches either email or username.
	GetByLogin(ctx context.Context, login string) (User, error)
	UpdateProfile(ctx context.Context, id string, p ProfileUpdate) (User, error)
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	SearchByUsername(ctx context.Context, prefix string, limit int) ([]User, error)
	AddAccountActivity(ctx context.Context, id string, posts, reads int64) error
	SetNotificationFlag(ctx context.Context, id string, available bool) error
}

// NotificationStore persists notifications. Self-notifications (actor ==
// recipient) are never listed or counted. A non-empty EventID is unique.
type NotificationStore interface {
	Insert(ctx context.Context, n Notification) (Notification, error)
	List(ctx context.Context, recipientID string, filter NotificationType, offset, limit int) ([]Notification, error)
	Count(ctx context.Context, recipientID string, filter NotificationType) (int, error)
	HasUnseen(ctx context.Context, recipientID string) (bool, error)
	MarkSeen(ctx context.Context, recipientID string, ids []string) error
	MarkAllSeen(ctx context.Context, recipientID string) error
	Delete(ctx context.Context, id, recipientID string) error
}

func page[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit >= 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

var (
	_ CommentStore      = (*InMemoryCommentStore)(nil)
	_ CommentStore      = (*PostgresCommentStore)(nil)
	_ PostStore         = (*InMemoryPostStore)(nil)
	_ PostStore         = (*PostgresPostStore)(nil)
	_ UserStore         = (*InMemoryUserStore)(nil)
	_ UserStore         = (*PostgresUserStore)(nil)
	_ NotificationStore = (*InMemoryNotificationStore)(nil)
	_ NotificationStore = (*PostgresNotificationStore)(nil)
)
