package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/example/blog-platform/internal/platform/api"
	"github.com/example/blog-platform/internal/platform/auth"
	"github.com/example/blog-platform/services/blog/internal/commenttree"
	"github.com/example/blog-platform/services/blog/internal/comments"
	"github.com/example/blog-platform/services/blog/internal/store"
)

type createCommentRequest struct {
	Text     string  `json:"text"`
	ParentID *string `json:"parent_id,omitempty"`
}

type threadResponse struct {
	Comments commenttree.Tree `json:"comments"`
	TopLevel int              `json:"top_level"`
	Page     int              `json:"page"`
	Limit    int              `json:"limit"`
}

type flatResponse struct {
	Comments []store.Comment `json:"comments"`
	Page     int             `json:"page"`
	Limit    int             `json:"limit"`
}

// ListComments handles GET /v1/posts/{post_id}/comments
func ListComments(svc *comments.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		postID := store.PostID(strings.TrimSpace(chi.URLParam(r, "post_id")))
		page, limit := comments.NormalizePage(intQuery(r, "page", 1), intQuery(r, "limit", comments.DefaultPageSize))

		if boolQuery(r, "flat") {
			flat, err := svc.List(r.Context(), postID, viewer(r), page, limit)
			if err != nil {
				writeError(w, r, err)
				return
			}
			api.WriteJSON(w, http.StatusOK, flatResponse{Comments: flat, Page: page, Limit: limit})
			return
		}

		tree, top, err := svc.Thread(r.Context(), postID, viewer(r), page, limit)
		if err != nil {
			writeError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, threadResponse{Comments: tree, TopLevel: top, Page: page, Limit: limit})
	}
}

// CreateComment handles POST /v1/posts/{post_id}/comments
func CreateComment(svc *comments.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		var req createCommentRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		c, err := svc.Create(r.Context(), comments.CreateParams{
			PostID:   store.PostID(strings.TrimSpace(chi.URLParam(r, "post_id"))),
			AuthorID: userID,
			Text:     req.Text,
			ParentID: req.ParentID,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusCreated, c)
	}
}

// DeleteComment handles DELETE /v1/posts/{post_id}/comments/{comment_id}
func DeleteComment(svc *comments.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		res, err := svc.DeleteAs(r.Context(),
			comments.Actor{UserID: userID, Admin: auth.IsAdmin(r.Context())},
			strings.TrimSpace(chi.URLParam(r, "comment_id")),
			store.PostID(strings.TrimSpace(chi.URLParam(r, "post_id"))))
		if err != nil {
			writeError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, res)
	}
}
