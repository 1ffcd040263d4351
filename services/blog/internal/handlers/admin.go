package handlers

import (
	"net/http"

	"github.com/example/blog-platform/internal/platform/api"
	"github.com/example/blog-platform/services/blog/internal/maintenance"
)

// SweepOrphans handles POST /v1/admin/maintenance/sweep-orphans
func SweepOrphans(m *maintenance.Maintainer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := m.SweepOrphans(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, map[string]int{"removed": n})
	}
}

// RecountPost handles POST /v1/admin/maintenance/recount/{post_id}
func RecountPost(m *maintenance.Maintainer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := m.Recount(r.Context(), postIDParam(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, a)
	}
}
