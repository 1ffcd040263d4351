package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/example/blog-platform/internal/platform/api"
	"github.com/example/blog-platform/services/blog/internal/store"
	"github.com/example/blog-platform/services/blog/internal/users"
)

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// publicProfile is what anyone may see about a user.
type publicProfile struct {
	ID          string            `json:"id"`
	Fullname    string            `json:"fullname"`
	Username    string            `json:"username"`
	Bio         string            `json:"bio"`
	ProfileImg  string            `json:"profile_img"`
	TotalPosts  int64             `json:"total_posts"`
	TotalReads  int64             `json:"total_reads"`
	SocialLinks store.SocialLinks `json:"social_links"`
	JoinedAt    time.Time         `json:"joined_at"`
}

func toPublic(u store.User) publicProfile {
	return publicProfile{
		ID:          u.ID,
		Fullname:    u.Fullname,
		Username:    u.Username,
		Bio:         u.Bio,
		ProfileImg:  u.ProfileImg,
		TotalPosts:  u.TotalPosts,
		TotalReads:  u.TotalReads,
		SocialLinks: u.SocialLinks,
		JoinedAt:    u.JoinedAt,
	}
}

// Register handles POST /v1/auth/register
func Register(svc *users.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req users.RegisterParams
		if !decodeJSON(w, r, &req) {
			return
		}
		sess, err := svc.Register(r.Context(), req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusCreated, sess)
	}
}

// Login handles POST /v1/auth/login
func Login(svc *users.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		sess, err := svc.Login(r.Context(), req.Login, req.Password)
		if err != nil {
			writeError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, sess)
	}
}

// GetUser handles GET /v1/users/{user_id}
func GetUser(svc *users.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := svc.Profile(r.Context(), strings.TrimSpace(chi.URLParam(r, "user_id")))
		if err != nil {
			writeError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, toPublic(u))
	}
}

// SearchUsers handles GET /v1/users/search?q=
func SearchUsers(svc *users.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		found, err := svc.Search(r.Context(), r.URL.Query().Get("q"), intQuery(r, "limit", 10))
		if err != nil {
			writeError(w, r, err)
			return
		}
		out := make([]publicProfile, len(found))
		for i, u := range found {
			out[i] = toPublic(u)
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{"users": out})
	}
}

// Me handles GET /v1/me
func Me(svc *users.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		u, err := svc.Profile(r.Context(), userID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, u)
	}
}

// UpdateProfile handles PUT /v1/me/profile
func UpdateProfile(svc *users.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		var req store.ProfileUpdate
		if !decodeJSON(w, r, &req) {
			return
		}
		u, err := svc.UpdateProfile(r.Context(), userID, req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, u)
	}
}

// ChangePassword handles PUT /v1/me/password
func ChangePassword(svc *users.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		var req changePasswordRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := svc.ChangePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
