// Package comments creates, deletes and lists post comments while keeping
// the post's comment counters in step with the stored rows.
package comments

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/example/blog-platform/internal/platform/events"
	"github.com/example/blog-platform/services/blog/internal/cache"
	"github.com/example/blog-platform/services/blog/internal/commenttree"
	"github.com/example/blog-platform/services/blog/internal/notify"
	"github.com/example/blog-platform/services/blog/internal/store"
)

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrNotFound         = errors.New("not found")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrEmptyText        = errors.New("comment text is empty")
	ErrForbidden        = errors.New("not allowed to delete this comment")
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

var textPolicy = bluemonday.StrictPolicy()

// Service is the comment store adapter. Notifier, Cache and Events are
// optional.
type Service struct {
	Comments store.CommentStore
	Posts    store.PostStore
	Users    store.UserStore
	Notifier notify.Notifier
	Cache    cache.Pages
	Events   *events.Publisher
	Log      *zap.Logger
}

type CreateParams struct {
	PostID   store.PostID
	AuthorID string
	Text     string
	ParentID *string
}

type DeleteResult struct {
	DeletedID          string `json:"deleted_id"`
	IsReply            bool   `json:"is_reply"`
	DeletedDescendants int    `json:"deleted_descendants"`
}

// Actor is the caller of an authorized operation.
type Actor struct {
	UserID string
	Admin  bool
}

// Create stores a comment or reply and bumps the post counters.
func (s *Service) Create(ctx context.Context, p CreateParams) (store.Comment, error) {
	if strings.TrimSpace(p.AuthorID) == "" {
		return store.Comment{}, ErrNotAuthenticated
	}
	text := sanitize(p.Text)
	if text == "" {
		return store.Comment{}, ErrEmptyText
	}

	author, err := s.Users.Get(ctx, p.AuthorID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Comment{}, ErrNotAuthenticated
		}
		return store.Comment{}, unavailable("load author", err)
	}

	post, err := s.visiblePost(ctx, p.PostID, author.ID)
	if err != nil {
		return store.Comment{}, err
	}

	var parent store.Comment
	if p.ParentID != nil && *p.ParentID != "" {
		parent, err = s.Comments.Get(ctx, *p.ParentID)
		if err != nil {
			return store.Comment{}, lookupErr("load parent comment", err)
		}
		if parent.PostID != post.ID {
			return store.Comment{}, ErrNotFound
		}
	}

	c := store.Comment{
		PostID:   post.ID,
		ParentID: p.ParentID,
		Text:     text,
		AuthorID: author.ID,
		Author:   author.Display(),
	}
	c.Normalize()

	created, err := s.Comments.Insert(ctx, c)
	if err != nil {
		return store.Comment{}, lookupErr("insert comment", err)
	}

	delta := store.ActivityDelta{Comments: 1}
	if !created.IsReply {
		delta.ParentComments = 1
	}
	if _, err := s.Posts.AddActivity(ctx, post.ID, delta); err != nil {
		// Undo the insert so the counters keep matching the rows.
		if _, rbErr := s.Comments.DeleteBatch(ctx, []string{created.ID}); rbErr != nil {
			s.logger().Error("comment insert left without counter update",
				zap.String("comment_id", created.ID), zap.String("post_id", post.ID.String()), zap.Error(rbErr))
		}
		return store.Comment{}, unavailable("update post counters", err)
	}

	s.changed(ctx, post.ID, "comment_created", author.ID, created.ID)

	if post.AuthorID != author.ID {
		n := store.Notification{
			EventID:     uuid.NewString(),
			Type:        store.NotificationComment,
			PostID:      post.ID,
			PostTitle:   post.Title,
			RecipientID: post.AuthorID,
			ActorID:     author.ID,
			Actor:       author.Display(),
			CommentID:   created.ID,
			CommentText: created.Text,
		}
		if created.IsReply {
			n.Type = store.NotificationReply
			n.RepliedOnID = parent.ID
			n.RepliedOnText = parent.Text
		}
		s.notify(ctx, n)
	}

	s.logger().Info("comment created",
		zap.String("comment_id", created.ID),
		zap.String("post_id", post.ID.String()),
		zap.Bool("is_reply", created.IsReply))
	return created, nil
}

// Delete removes a comment and every descendant reply. Descendants are found
// one level at a time, then removed deepest level first with the target last,
// and the counters drop by exactly the rows each batch removed. A failure
// part way leaves the target in place so a retry finishes the job.
func (s *Service) Delete(ctx context.Context, commentID string, postID store.PostID) (DeleteResult, error) {
	target, err := s.Comments.Get(ctx, commentID)
	if err != nil {
		return DeleteResult{}, lookupErr("load comment", err)
	}
	if target.PostID != postID {
		return DeleteResult{}, ErrNotFound
	}
	return s.cascade(ctx, target)
}

// DeleteAs is Delete restricted to the comment author, the post author and
// admins.
func (s *Service) DeleteAs(ctx context.Context, actor Actor, commentID string, postID store.PostID) (DeleteResult, error) {
	if strings.TrimSpace(actor.UserID) == "" {
		return DeleteResult{}, ErrNotAuthenticated
	}
	target, err := s.Comments.Get(ctx, commentID)
	if err != nil {
		return DeleteResult{}, lookupErr("load comment", err)
	}
	if target.PostID != postID {
		return DeleteResult{}, ErrNotFound
	}
	if !actor.Admin && actor.UserID != target.AuthorID {
		post, err := s.Posts.Get(ctx, postID)
		if err != nil {
			return DeleteResult{}, lookupErr("load post", err)
		}
		if post.AuthorID != actor.UserID {
			return DeleteResult{}, ErrForbidden
		}
	}
	return s.cascade(ctx, target)
}

func (s *Service) cascade(ctx context.Context, target store.Comment) (DeleteResult, error) {
	levels, err := s.descendantLevels(ctx, target.ID)
	if err != nil {
		return DeleteResult{}, err
	}

	res := DeleteResult{DeletedID: target.ID, IsReply: target.IsReply}
	touched := false
	defer func() {
		if touched {
			s.changed(ctx, target.PostID, "comment_deleted", "", target.ID)
		}
	}()

	for i := len(levels) - 1; i >= 0; i-- {
		n, err := s.removeBatch(ctx, target.PostID, levels[i], store.ActivityDelta{})
		if n > 0 {
			touched = true
		}
		res.DeletedDescendants += n
		if err != nil {
			return res, err
		}
	}

	var rootDelta store.ActivityDelta
	if !target.IsReply {
		rootDelta.ParentComments = -1
	}
	n, err := s.removeBatch(ctx, target.PostID, []string{target.ID}, rootDelta)
	if n > 0 {
		touched = true
	}
	if err != nil {
		return res, err
	}

	s.logger().Info("comment deleted",
		zap.String("comment_id", target.ID),
		zap.String("post_id", target.PostID.String()),
		zap.Bool("is_reply", target.IsReply),
		zap.Int("descendants", res.DeletedDescendants))
	return res, nil
}

// descendantLevels returns the ids below root grouped by depth, shallowest
// first. Ids already seen are skipped so a corrupt parent cycle terminates.
func (s *Service) descendantLevels(ctx context.Context, rootID string) ([][]string, error) {
	seen := map[string]struct{}{rootID: {}}
	frontier := []string{rootID}
	var levels [][]string
	for len(frontier) > 0 {
		children, err := s.Comments.ChildIDs(ctx, frontier)
		if err != nil {
			return nil, unavailable("find replies", err)
		}
		next := children[:0:0]
		for _, id := range children {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			next = append(next, id)
		}
		if len(next) == 0 {
			break
		}
		levels = append(levels, next)
		frontier = next
	}
	return levels, nil
}

// removeBatch deletes ids and decrements TotalComments by the rows removed.
// extra is added to the decrement only when something was removed.
func (s *Service) removeBatch(ctx context.Context, postID store.PostID, ids []string, extra store.ActivityDelta) (int, error) {
	n, err := s.Comments.DeleteBatch(ctx, ids)
	if err != nil {
		return 0, unavailable("delete comments", err)
	}
	if n == 0 {
		return 0, nil
	}
	extra.Comments -= int64(n)
	if _, err := s.Posts.AddActivity(ctx, postID, extra); err != nil && !errors.Is(err, store.ErrNotFound) {
		return n, unavailable("update post counters", err)
	}
	return n, nil
}

// List returns one page of top-level comments, oldest first, followed by all
// of their direct replies, oldest first. A draft's comments are visible only
// to its author.
func (s *Service) List(ctx context.Context, postID store.PostID, viewerID string, page, pageSize int) ([]store.Comment, error) {
	if _, err := s.visiblePost(ctx, postID, viewerID); err != nil {
		return nil, err
	}

	page, pageSize = NormalizePage(page, pageSize)
	key := cache.PageKey{PostID: postID, Page: page, Size: pageSize}
	var gen uint64
	if s.Cache != nil {
		gen = s.Cache.Generation(ctx, postID)
		if hit, ok := s.Cache.Get(ctx, key); ok {
			return hit, nil
		}
	}

	top, err := s.Comments.ListTopLevel(ctx, postID, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, unavailable("list comments", err)
	}
	flat := make([]store.Comment, 0, len(top))
	flat = append(flat, top...)
	if len(top) > 0 {
		ids := make([]string, len(top))
		for i, c := range top {
			ids[i] = c.ID
		}
		replies, err := s.Comments.ListReplies(ctx, postID, ids)
		if err != nil {
			return nil, unavailable("list replies", err)
		}
		flat = append(flat, replies...)
	}

	if s.Cache != nil {
		s.Cache.Put(ctx, key, gen, flat)
	}
	return flat, nil
}

// Thread is List assembled into a tree. The int is the number of top-level
// comments on the page.
func (s *Service) Thread(ctx context.Context, postID store.PostID, viewerID string, page, pageSize int) (commenttree.Tree, int, error) {
	flat, err := s.List(ctx, postID, viewerID, page, pageSize)
	if err != nil {
		return nil, 0, err
	}
	tree, top := commenttree.BuildTree(flat)
	return tree, top, nil
}

// NormalizePage clamps page to >= 1 and pageSize to [1, MaxPageSize], with
// DefaultPageSize for non-positive sizes.
func NormalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize
}

func (s *Service) changed(ctx context.Context, postID store.PostID, eventName, userID, commentID string) {
	if s.Cache != nil {
		s.Cache.Invalidate(ctx, postID)
	}
	s.Events.Publish(events.SubjectCommentsChanged, eventName, userID, postID.String(),
		map[string]any{"comment_id": commentID})
}

// visiblePost loads a post, hiding drafts from everyone but their author.
func (s *Service) visiblePost(ctx context.Context, id store.PostID, viewerID string) (store.Post, error) {
	post, err := s.Posts.Get(ctx, id)
	if err != nil {
		return store.Post{}, lookupErr("load post", err)
	}
	if post.Draft && post.AuthorID != viewerID {
		return store.Post{}, ErrNotFound
	}
	return post, nil
}

func (s *Service) notify(ctx context.Context, n store.Notification) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.Notify(ctx, n); err != nil {
		s.logger().Warn("comment notification failed",
			zap.String("post_id", n.PostID.String()),
			zap.String("recipient_id", n.RecipientID),
			zap.Error(err))
	}
}

func (s *Service) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

func sanitize(text string) string {
	return strings.TrimSpace(html.UnescapeString(textPolicy.Sanitize(text)))
}

func lookupErr(op string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return unavailable(op, err)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
