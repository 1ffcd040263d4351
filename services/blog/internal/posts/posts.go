// Package posts publishes, edits and lists blog posts and tracks their reads
// and likes.
package posts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/example/blog-platform/internal/platform/events"
	"github.com/example/blog-platform/internal/platform/idgen"
	"github.com/example/blog-platform/services/blog/internal/cache"
	"github.com/example/blog-platform/services/blog/internal/notify"
	"github.com/example/blog-platform/services/blog/internal/store"
	"github.com/example/blog-platform/services/blog/internal/validate"
)

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrNotFound         = errors.New("post not found")
	ErrForbidden        = errors.New("only the author may change this post")
	ErrStoreUnavailable = errors.New("store unavailable")
)

const (
	MaxDescriptionLen = 200
	MaxTags           = 10
	DefaultPageSize   = 5
	MaxPageSize       = 50
)

var textPolicy = bluemonday.StrictPolicy()

type Service struct {
	Posts    store.PostStore
	Users    store.UserStore
	Comments store.CommentStore
	Notifier notify.Notifier
	Cache    cache.Pages
	Events   *events.Publisher
	Log      *zap.Logger
}

// Input is the editable part of a post. Drafts need only a title.
type Input struct {
	Title       string          `json:"title"`
	Banner      string          `json:"banner"`
	Description string          `json:"description"`
	Content     json.RawMessage `json:"content"`
	Tags        []string        `json:"tags"`
	Draft       bool            `json:"draft"`
}

// Actor is the caller of an authorized operation.
type Actor struct {
	UserID string
	Admin  bool
}

func (s *Service) Create(ctx context.Context, authorID string, in Input) (store.Post, error) {
	if strings.TrimSpace(authorID) == "" {
		return store.Post{}, ErrNotAuthenticated
	}
	in, err := normalize(in)
	if err != nil {
		return store.Post{}, err
	}
	author, err := s.Users.Get(ctx, authorID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Post{}, ErrNotAuthenticated
		}
		return store.Post{}, unavailable("load author", err)
	}

	var created store.Post
	for attempt := 0; ; attempt++ {
		id, err := idgen.Slug(in.Title)
		if err != nil {
			return store.Post{}, err
		}
		created, err = s.Posts.Create(ctx, store.Post{
			ID:          store.PostID(id),
			Title:       in.Title,
			Banner:      in.Banner,
			Description: in.Description,
			Content:     in.Content,
			Tags:        in.Tags,
			AuthorID:    author.ID,
			Author:      author.Display(),
			Draft:       in.Draft,
		})
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrConflict) || attempt == 2 {
			return store.Post{}, unavailable("create post", err)
		}
	}

	if !created.Draft {
		s.published(ctx, created)
	}
	s.logger().Info("post created",
		zap.String("post_id", created.ID.String()),
		zap.String("author_id", author.ID),
		zap.Bool("draft", created.Draft))
	return created, nil
}

// Get returns a post. Drafts are visible to their author only.
func (s *Service) Get(ctx context.Context, id store.PostID, viewerID string) (store.Post, error) {
	p, err := s.Posts.Get(ctx, id)
	if err != nil {
		return store.Post{}, lookupErr("get post", err)
	}
	if p.Draft && p.AuthorID != viewerID {
		return store.Post{}, ErrNotFound
	}
	return p, nil
}

func (s *Service) Update(ctx context.Context, actor Actor, id store.PostID, in Input) (store.Post, error) {
	cur, err := s.owned(ctx, actor, id)
	if err != nil {
		return store.Post{}, err
	}
	in, err = normalize(in)
	if err != nil {
		return store.Post{}, err
	}
	if !cur.Draft && in.Draft {
		return store.Post{}, validate.Field("draft", "a published post cannot go back to draft")
	}

	wasDraft := cur.Draft
	cur.Title = in.Title
	cur.Banner = in.Banner
	cur.Description = in.Description
	cur.Content = in.Content
	cur.Tags = in.Tags
	cur.Draft = in.Draft
	updated, err := s.Posts.Update(ctx, cur)
	if err != nil {
		return store.Post{}, lookupErr("update post", err)
	}
	if wasDraft && !updated.Draft {
		s.published(ctx, updated)
	}
	return updated, nil
}

// Delete removes a post and all of its comments. Allowed for the author and
// admins.
func (s *Service) Delete(ctx context.Context, actor Actor, id store.PostID) error {
	p, err := s.owned(ctx, actor, id)
	if err != nil {
		return err
	}
	// The post goes first so a comment created mid-delete fails its post
	// lookup instead of outliving the sweep below.
	if err := s.Posts.Delete(ctx, id); err != nil {
		return lookupErr("delete post", err)
	}
	removed, err := s.Comments.DeleteByPost(ctx, id)
	if err != nil {
		s.logger().Error("comments of deleted post not removed", zap.String("post_id", id.String()), zap.Error(err))
	}
	if !p.Draft {
		if err := s.Users.AddAccountActivity(ctx, p.AuthorID, -1, 0); err != nil {
			s.logger().Warn("author post count not decremented", zap.String("user_id", p.AuthorID), zap.Error(err))
		}
	}
	if s.Cache != nil {
		s.Cache.Invalidate(ctx, id)
	}
	s.Events.Publish(events.SubjectPostDeleted, "post_deleted", actor.UserID, id.String(),
		map[string]any{"comments_removed": removed})
	s.logger().Info("post deleted", zap.String("post_id", id.String()), zap.Int("comments_removed", removed))
	return nil
}

// Latest lists published posts, newest first.
func (s *Service) Latest(ctx context.Context, page, pageSize int) ([]store.Post, error) {
	page, pageSize = normalizePage(page, pageSize)
	out, err := s.Posts.ListLatest(ctx, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, unavailable("list latest", err)
	}
	return out, nil
}

// Trending lists published posts by reads.
func (s *Service) Trending(ctx context.Context, limit int) ([]store.Post, error) {
	_, limit = normalizePage(1, limit)
	out, err := s.Posts.ListTrending(ctx, limit)
	if err != nil {
		return nil, unavailable("list trending", err)
	}
	return out, nil
}

// Search matches published posts by title prefix.
func (s *Service) Search(ctx context.Context, query string, page, pageSize int) ([]store.Post, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []store.Post{}, nil
	}
	page, pageSize = normalizePage(page, pageSize)
	out, err := s.Posts.Search(ctx, query, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, unavailable("search posts", err)
	}
	return out, nil
}

// ByAuthor lists an author's published posts, or drafts when drafts is set.
// Drafts are listed only to their author.
func (s *Service) ByAuthor(ctx context.Context, viewerID, authorID string, drafts bool, page, pageSize int) ([]store.Post, error) {
	if drafts && viewerID != authorID {
		return nil, ErrForbidden
	}
	page, pageSize = normalizePage(page, pageSize)
	out, err := s.Posts.ListByAuthor(ctx, authorID, drafts, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, unavailable("list by author", err)
	}
	return out, nil
}

// Read counts one read on the post and on its author's account.
func (s *Service) Read(ctx context.Context, id store.PostID) (store.Activity, error) {
	a, err := s.Posts.AddActivity(ctx, id, store.ActivityDelta{Reads: 1})
	if err != nil {
		return store.Activity{}, lookupErr("count read", err)
	}
	p, err := s.Posts.Get(ctx, id)
	if err != nil {
		return a, nil
	}
	if err := s.Users.AddAccountActivity(ctx, p.AuthorID, 0, 1); err != nil {
		s.logger().Warn("author reads not incremented", zap.String("user_id", p.AuthorID), zap.Error(err))
	}
	return a, nil
}

// Like adds userID to the post's like set. It reports whether the set changed
// and returns the post with its current counters.
func (s *Service) Like(ctx context.Context, userID string, id store.PostID) (store.Post, bool, error) {
	if strings.TrimSpace(userID) == "" {
		return store.Post{}, false, ErrNotAuthenticated
	}
	changed, err := s.Posts.AddLike(ctx, id, userID)
	if err != nil {
		return store.Post{}, false, lookupErr("like post", err)
	}
	p, err := s.Posts.Get(ctx, id)
	if err != nil {
		return store.Post{}, changed, lookupErr("get post", err)
	}
	if changed {
		s.Events.Publish(events.SubjectPostLiked, "post_liked", userID, id.String(), nil)
		if p.AuthorID != userID {
			s.notifyLike(ctx, userID, p)
		}
	}
	return p, changed, nil
}

func (s *Service) Unlike(ctx context.Context, userID string, id store.PostID) (store.Post, bool, error) {
	if strings.TrimSpace(userID) == "" {
		return store.Post{}, false, ErrNotAuthenticated
	}
	changed, err := s.Posts.RemoveLike(ctx, id, userID)
	if err != nil {
		return store.Post{}, false, lookupErr("unlike post", err)
	}
	p, err := s.Posts.Get(ctx, id)
	if err != nil {
		return store.Post{}, changed, lookupErr("get post", err)
	}
	return p, changed, nil
}

func (s *Service) IsLiked(ctx context.Context, userID string, id store.PostID) (bool, error) {
	if userID == "" {
		return false, nil
	}
	liked, err := s.Posts.IsLiked(ctx, id, userID)
	if err != nil {
		return false, lookupErr("check like", err)
	}
	return liked, nil
}

func (s *Service) owned(ctx context.Context, actor Actor, id store.PostID) (store.Post, error) {
	if strings.TrimSpace(actor.UserID) == "" {
		return store.Post{}, ErrNotAuthenticated
	}
	p, err := s.Posts.Get(ctx, id)
	if err != nil {
		return store.Post{}, lookupErr("get post", err)
	}
	if p.AuthorID != actor.UserID && !actor.Admin {
		return store.Post{}, ErrForbidden
	}
	return p, nil
}

func (s *Service) published(ctx context.Context, p store.Post) {
	if err := s.Users.AddAccountActivity(ctx, p.AuthorID, 1, 0); err != nil {
		s.logger().Warn("author post count not incremented", zap.String("user_id", p.AuthorID), zap.Error(err))
	}
	s.Events.Publish(events.SubjectPostPublished, "post_published", p.AuthorID, p.ID.String(),
		map[string]any{"tags": p.Tags})
}

func (s *Service) notifyLike(ctx context.Context, userID string, p store.Post) {
	if s.Notifier == nil {
		return
	}
	liker, err := s.Users.Get(ctx, userID)
	if err != nil {
		s.logger().Warn("like notification skipped", zap.String("user_id", userID), zap.Error(err))
		return
	}
	n := store.Notification{
		EventID:     uuid.NewString(),
		Type:        store.NotificationLike,
		PostID:      p.ID,
		PostTitle:   p.Title,
		RecipientID: p.AuthorID,
		ActorID:     liker.ID,
		Actor:       liker.Display(),
	}
	if err := s.Notifier.Notify(ctx, n); err != nil {
		s.logger().Warn("like notification failed", zap.String("post_id", p.ID.String()), zap.Error(err))
	}
}

func (s *Service) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

// normalize sanitizes in and checks the publish rules: a published post
// needs a description, at least one tag and at least one content block.
func normalize(in Input) (Input, error) {
	in.Title = sanitize(in.Title)
	in.Description = sanitize(in.Description)
	in.Banner = strings.TrimSpace(in.Banner)

	seen := make(map[string]struct{}, len(in.Tags))
	tags := make([]string, 0, len(in.Tags))
	for _, t := range in.Tags {
		t = strings.ToLower(sanitize(t))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		tags = append(tags, t)
	}
	in.Tags = tags

	if in.Title == "" {
		return in, validate.Field("title", "required")
	}
	if len(in.Tags) > MaxTags {
		return in, validate.Field("tags", fmt.Sprintf("at most %d tags", MaxTags))
	}
	if len([]rune(in.Description)) > MaxDescriptionLen {
		return in, validate.Field("description", fmt.Sprintf("at most %d characters", MaxDescriptionLen))
	}
	if in.Banner != "" && !validate.HTTPURL(in.Banner) {
		return in, validate.Field("banner", "must be an http(s) url")
	}
	if len(in.Content) > 0 && !json.Valid(in.Content) {
		return in, validate.Field("content", "must be JSON")
	}
	if in.Draft {
		return in, nil
	}
	if in.Description == "" {
		return in, validate.Field("description", "required to publish")
	}
	if len(in.Tags) == 0 {
		return in, validate.Field("tags", "at least one tag is required to publish")
	}
	if blockCount(in.Content) == 0 {
		return in, validate.Field("content", "write something before publishing")
	}
	return in, nil
}

// blockCount returns the number of editor blocks in content.
func blockCount(content json.RawMessage) int {
	if len(content) == 0 {
		return 0
	}
	var doc struct {
		Blocks []json.RawMessage `json:"blocks"`
	}
	if err := json.Unmarshal(content, &doc); err != nil {
		return 0
	}
	return len(doc.Blocks)
}

func normalizePage(page, pageSize int) (int, int) {
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

func sanitize(s string) string {
	return strings.TrimSpace(html.UnescapeString(textPolicy.Sanitize(s)))
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
