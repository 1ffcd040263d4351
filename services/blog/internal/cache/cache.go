// Package cache holds recently served comment pages. Entries are keyed by a
// typed post id so invalidation never matches another post by string prefix.
package cache

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/example/blog-platform/services/blog/internal/store"
)

// PageKey identifies one page of a post's comment listing.
type PageKey struct {
	PostID store.PostID
	Page   int
	Size   int
}

const keyPrefix = "blog:comments:"

// String renders the key as "blog:comments:<post>:<page>:<size>".
func (k PageKey) String() string {
	return fmt.Sprintf("%s%s:%d:%d", keyPrefix, k.PostID, k.Page, k.Size)
}

// ParseKey reverses PageKey.String. Page and size are read from the end so
// post ids containing ':' still round-trip.
func ParseKey(s string) (PageKey, bool) {
	rest, ok := strings.CutPrefix(s, keyPrefix)
	if !ok {
		return PageKey{}, false
	}
	i := strings.LastIndexByte(rest, ':')
	if i < 0 {
		return PageKey{}, false
	}
	size, err := strconv.Atoi(rest[i+1:])
	if err != nil {
		return PageKey{}, false
	}
	rest = rest[:i]
	j := strings.LastIndexByte(rest, ':')
	if j <= 0 {
		return PageKey{}, false
	}
	pg, err := strconv.Atoi(rest[j+1:])
	if err != nil {
		return PageKey{}, false
	}
	return PageKey{PostID: store.PostID(rest[:j]), Page: pg, Size: size}, true
}

// ForPost matches every page of one post.
func ForPost(id store.PostID) func(PageKey) bool {
	return func(k PageKey) bool { return k.PostID == id }
}

// Pages caches comment pages. Implementations are safe for concurrent use
// and best-effort: backend failures surface as misses.
//
// Every post carries a generation that Invalidate bumps. A reader takes
// the generation before querying the store and hands it to Put, which
// drops the page if the post changed in between.
type Pages interface {
	Generation(ctx context.Context, postID store.PostID) uint64
	Get(ctx context.Context, key PageKey) ([]store.Comment, bool)
	// Put stores comments under key only while the post is still at gen
	// and reports whether it did.
	Put(ctx context.Context, key PageKey, gen uint64, comments []store.Comment) bool
	// Invalidate bumps the post's generation, drops its pages and returns
	// how many pages went.
	Invalidate(ctx context.Context, postID store.PostID) int
}

func cloneComments(in []store.Comment) []store.Comment {
	out := make([]store.Comment, len(in))
	for i, c := range in {
		if c.ParentID != nil {
			p := *c.ParentID
			c.ParentID = &p
		}
		out[i] = c
	}
	return out
}
