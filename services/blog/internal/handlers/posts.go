package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/example/blog-platform/internal/platform/api"
	"github.com/example/blog-platform/internal/platform/auth"
	"github.com/example/blog-platform/services/blog/internal/posts"
	"github.com/example/blog-platform/services/blog/internal/store"
)

type postsResponse struct {
	Posts []store.Post `json:"posts"`
	Page  int          `json:"page,omitempty"`
	Limit int          `json:"limit"`
}

type postResponse struct {
	Post  store.Post `json:"post"`
	Liked bool       `json:"liked"`
}

type likeResponse struct {
	Liked      bool  `json:"liked"`
	Changed    bool  `json:"changed"`
	TotalLikes int64 `json:"total_likes"`
}

func postIDParam(r *http.Request) store.PostID {
	return store.PostID(strings.TrimSpace(chi.URLParam(r, "post_id")))
}

func actor(r *http.Request, userID string) posts.Actor {
	return posts.Actor{UserID: userID, Admin: auth.IsAdmin(r.Context())}
}

// LatestPosts handles GET /v1/posts
func LatestPosts(svc *posts.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, limit := intQuery(r, "page", 1), intQuery(r, "limit", posts.DefaultPageSize)
		out, err := svc.Latest(r.Context(), page, limit)
		if err != nil {
			writeError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, postsResponse{Posts: out, Page: max(page, 1), Limit: limit})
	}
}

// TrendingPosts handles GET /v1/posts/trending
func TrendingPosts(svc *posts.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := intQuery(r, "limit", posts.DefaultPageSize)
		out, err := svc.Trending(r.Context(), limit)
		if err != nil {
			writeError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, postsResponse{Posts: out, Limit: limit})
	}
}

// SearchPosts handles GET /v1/posts/search?q=
func SearchPosts(svc *posts.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, limit := intQuery(r, "page", 1), intQuery(r, "limit", posts.DefaultPageSize)
		out, err := svc.Search(r.Context(), r.URL.Query().Get("q"), page, limit)
		if err != nil {
			writeError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, postsResponse{Posts: out, Page: max(page, 1), Limit: limit})
	}
}

// GetPost handles GET /v1/posts/{post_id}
func GetPost(svc *posts.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := postIDParam(r)
		p, err := svc.Get(r.Context(), id, viewer(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		liked, err := svc.IsLiked(r.Context(), viewer(r), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, postResponse{Post: p, Liked: liked})
	}
}

// ReadPost handles POST /v1/posts/{post_id}/reads
func ReadPost(svc *posts.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := svc.Read(r.Context(), postIDParam(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, a)
	}
}

// CreatePost handles POST /v1/posts
func CreatePost(svc *posts.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		var in posts.Input
		if !decodeJSON(w, r, &in) {
			return
		}
		p, err := svc.Create(r.Context(), userID, in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusCreated, p)
	}
}

// UpdatePost handles PUT /v1/posts/{post_id}
func UpdatePost(svc *posts.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		var in posts.Input
		if !decodeJSON(w, r, &in) {
			return
		}
		p, err := svc.Update(r.Context(), actor(r, userID), postIDParam(r), in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, p)
	}
}

// DeletePost handles DELETE /v1/posts/{post_id}
func DeletePost(svc *posts.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		if err := svc.Delete(r.Context(), actor(r, userID), postIDParam(r)); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// MyPosts handles GET /v1/me/posts?drafts=
func MyPosts(svc *posts.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		page, limit := intQuery(r, "page", 1), intQuery(r, "limit", posts.DefaultPageSize)
		out, err := svc.ByAuthor(r.Context(), userID, userID, boolQuery(r, "drafts"), page, limit)
		if err != nil {
			writeError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, postsResponse{Posts: out, Page: max(page, 1), Limit: limit})
	}
}

// AuthorPosts handles GET /v1/users/{user_id}/posts
func AuthorPosts(svc *posts.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, limit := intQuery(r, "page", 1), intQuery(r, "limit", posts.DefaultPageSize)
		authorID := strings.TrimSpace(chi.URLParam(r, "user_id"))
		out, err := svc.ByAuthor(r.Context(), viewer(r), authorID, false, page, limit)
		if err != nil {
			writeError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, postsResponse{Posts: out, Page: max(page, 1), Limit: limit})
	}
}

// LikePost handles POST /v1/posts/{post_id}/likes
func LikePost(svc *posts.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		p, changed, err := svc.Like(r.Context(), userID, postIDParam(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, likeResponse{Liked: true, Changed: changed, TotalLikes: p.Activity.TotalLikes})
	}
}

// UnlikePost handles DELETE /v1/posts/{post_id}/likes
func UnlikePost(svc *posts.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		p, changed, err := svc.Unlike(r.Context(), userID, postIDParam(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, likeResponse{Liked: false, Changed: changed, TotalLikes: p.Activity.TotalLikes})
	}
}
