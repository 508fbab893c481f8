package handler

import (
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/go-verify-nosql/internal/application/notification"
	"github.com/go-verify-nosql/internal/domain"
	jwtinfra "github.com/go-verify-nosql/internal/infrastructure/jwt"
	"github.com/go-verify-nosql/internal/transport/http/middleware"
)

// NotificationHandler serves the caller's in-app notifications.
type NotificationHandler struct {
	svc notification.Service
}

func NewNotificationHandler(svc notification.Service) *NotificationHandler {
	return &NotificationHandler{svc: svc}
}

// caller returns the token claims, writing a 401 when the route was mounted
// without the auth middleware.
func caller(w http.ResponseWriter, r *http.Request) (*jwtinfra.Claims, bool) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
	}
	return claims, ok
}

// ListUnread returns the caller's unread notifications, optionally narrowed
// to the kinds given in repeated ?kind= parameters.
func (h *NotificationHandler) ListUnread(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}
	unread, err := h.svc.ListUnread(r.Context(), claims.UserID)
	if err != nil {
		httpError(w, r, err)
		return
	}
	if kinds := r.URL.Query()["kind"]; len(kinds) > 0 {
		filtered := make([]domain.Notification, 0, len(unread))
		for _, n := range unread {
			if slices.Contains(kinds, n.Kind) {
				filtered = append(filtered, n)
			}
		}
		unread = filtered
	}
	writeJSON(w, http.StatusOK, NotificationsEnvelope{Data: unread})
}

func (h *NotificationHandler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}
	n, err := h.svc.MarkAsRead(r.Context(), chi.URLParam(r, "id"), claims.UserID)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}
