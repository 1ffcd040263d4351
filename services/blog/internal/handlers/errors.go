package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/example/blog-platform/internal/platform/api"
	"github.com/example/blog-platform/internal/platform/auth"
	"github.com/example/blog-platform/internal/platform/httpserver"
	"github.com/example/blog-platform/services/blog/internal/comments"
	"github.com/example/blog-platform/services/blog/internal/media"
	"github.com/example/blog-platform/services/blog/internal/notify"
	"github.com/example/blog-platform/services/blog/internal/posts"
	"github.com/example/blog-platform/services/blog/internal/store"
	"github.com/example/blog-platform/services/blog/internal/users"
	"github.com/example/blog-platform/services/blog/internal/validate"
)

const maxJSONBody = 1 << 20

// writeError maps service errors onto the API error envelope.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	rid := httpserver.RequestIDFromContext(r.Context())

	if ve, ok := validate.As(err); ok {
		api.ValidationFailed(w, ve.Field, ve.Reason, rid)
		return
	}
	var tooBig *http.MaxBytesError
	switch {
	case errors.As(err, &tooBig), errors.Is(err, media.ErrTooLarge):
		api.TooLarge(w, "TOO_LARGE", "request body too large", rid)
	case errors.Is(err, comments.ErrNotAuthenticated), errors.Is(err, posts.ErrNotAuthenticated):
		api.Unauthorized(w, "UNAUTHORIZED", "authentication required", rid)
	case errors.Is(err, users.ErrInvalidCredentials):
		api.Unauthorized(w, "INVALID_CREDENTIALS", "invalid credentials", rid)
	case errors.Is(err, comments.ErrForbidden), errors.Is(err, posts.ErrForbidden):
		api.Forbidden(w, "FORBIDDEN", err.Error(), rid)
	case errors.Is(err, comments.ErrNotFound), errors.Is(err, posts.ErrNotFound),
		errors.Is(err, users.ErrNotFound), errors.Is(err, notify.ErrNotFound), errors.Is(err, store.ErrNotFound):
		api.NotFound(w, "NOT_FOUND", "not found", rid)
	case errors.Is(err, comments.ErrEmptyText):
		api.BadRequest(w, "EMPTY_TEXT", "comment text must not be empty", rid, nil)
	case errors.Is(err, notify.ErrInvalidFilter):
		api.BadRequest(w, "INVALID_FILTER", "filter must be one of all, comment, reply, like", rid, nil)
	case errors.Is(err, media.ErrEmpty), errors.Is(err, media.ErrUnsupportedType):
		api.BadRequest(w, "INVALID_IMAGE", err.Error(), rid, nil)
	case errors.Is(err, users.ErrConflict):
		api.Conflict(w, "ALREADY_EXISTS", err.Error(), rid)
	case errors.Is(err, comments.ErrStoreUnavailable), errors.Is(err, posts.ErrStoreUnavailable),
		errors.Is(err, users.ErrStoreUnavailable), errors.Is(err, media.ErrNotConfigured):
		zap.L().Warn("backend unavailable", zap.String("path", r.URL.Path), httpserver.RequestIDField(r.Context()), zap.Error(err))
		api.Unavailable(w, rid)
	default:
		zap.L().Error("request failed", zap.String("path", r.URL.Path), httpserver.RequestIDField(r.Context()), zap.Error(err))
		api.Internal(w, rid)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(v); err != nil {
		api.BadRequest(w, "INVALID_JSON", "invalid JSON", httpserver.RequestIDFromContext(r.Context()), nil)
		return false
	}
	return true
}

// requireUser returns the authenticated user id or writes 401.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok || userID == "" {
		api.Unauthorized(w, "UNAUTHORIZED", "authentication required", httpserver.RequestIDFromContext(r.Context()))
		return "", false
	}
	return userID, true
}

func viewer(r *http.Request) string {
	userID, _ := auth.UserIDFromContext(r.Context())
	return userID
}

func intQuery(r *http.Request, key string, def int) int {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func boolQuery(r *http.Request, key string) bool {
	b, _ := strconv.ParseBool(strings.TrimSpace(r.URL.Query().Get(key)))
	return b
}
