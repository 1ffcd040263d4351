package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/example/blog-platform/internal/platform/api"
	"github.com/example/blog-platform/services/blog/internal/notify"
	"github.com/example/blog-platform/services/blog/internal/store"
)

type notificationsResponse struct {
	Notifications []store.Notification `json:"notifications"`
	Page          int                  `json:"page"`
	Limit         int                  `json:"limit"`
}

// ListNotifications handles GET /v1/notifications?filter=&page=&limit=
func ListNotifications(inbox notify.Inbox) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		page, limit := intQuery(r, "page", 1), intQuery(r, "limit", 10)
		items, err := inbox.List(r.Context(), userID, r.URL.Query().Get("filter"), page, limit)
		if err != nil {
			writeError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, notificationsResponse{Notifications: items, Page: max(page, 1), Limit: limit})
	}
}

// CountNotifications handles GET /v1/notifications/count?filter=
func CountNotifications(inbox notify.Inbox) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		n, err := inbox.Count(r.Context(), userID, r.URL.Query().Get("filter"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, map[string]int{"count": n})
	}
}

// HasNewNotifications handles GET /v1/notifications/new
func HasNewNotifications(inbox notify.Inbox) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		available, err := inbox.HasNew(r.Context(), userID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, map[string]bool{"new_notification_available": available})
	}
}

// MarkNotificationsSeen handles POST /v1/notifications/seen
func MarkNotificationsSeen(inbox notify.Inbox) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		if err := inbox.MarkAllSeen(r.Context(), userID); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// DeleteNotification handles DELETE /v1/notifications/{notification_id}
func DeleteNotification(inbox notify.Inbox) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		id := strings.TrimSpace(chi.URLParam(r, "notification_id"))
		if err := inbox.Delete(r.Context(), userID, id); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
