package notifications_api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/MarketMinds/OrderPulse/internal/models"
	"github.com/MarketMinds/OrderPulse/internal/notifications"
	"github.com/MarketMinds/OrderPulse/internal/services/notify"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

// Contracts — кусок контрактного хранилища, нужный для ответа на запрос
// продления.
type Contracts interface {
	RecordRenewalAnswer(ctx context.Context, contractID uint64, accepted bool, newEndDate *time.Time) (*models.Contract, error)
}

type NotificationsAPI struct {
	store     *notify.Store
	contracts Contracts
}

func New(store *notify.Store, contracts Contracts) *NotificationsAPI {
	return &NotificationsAPI{store: store, contracts: contracts}
}

func (a *NotificationsAPI) Routes(r chi.Router) {
	r.Get("/recipients/{id}/notifications", a.listNotifications)
	r.Get("/recipients/{id}/notifications/unread-count", a.unreadCount)
	r.Post("/recipients/{id}/notifications/read-all", a.markAllRead)
	r.Post("/notifications/{id}/read", a.markRead)
	r.Post("/contracts/{id}/renewal-answer", a.renewalAnswer)
}

type notificationResponse struct {
	ID        uint64    `json:"id"`
	Category  string    `json:"category"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	IsRead    bool      `json:"isRead"`
}

func toNotificationResponse(n notifications.Notification) notificationResponse {
	b := notifications.BaseOf(n)
	return notificationResponse{
		ID:        b.ID,
		Category:  n.Category(),
		Title:     n.Title(),
		Content:   n.Content(),
		Timestamp: b.Timestamp,
		IsRead:    b.IsRead,
	}
}

func (a *NotificationsAPI) listNotifications(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ns, err := a.store.GetForRecipient(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := make([]notificationResponse, 0, len(ns))
	for _, n := range ns {
		out = append(out, toNotificationResponse(n))
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": out})
}

func (a *NotificationsAPI) unreadCount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	n, err := a.store.UnreadCount(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unreadCount": n})
}

func (a *NotificationsAPI) markRead(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := a.store.MarkRead(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *NotificationsAPI) markAllRead(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := a.store.MarkAllRead(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type renewalAnswerRequest struct {
	Accepted   bool       `json:"accepted"`
	NewEndDate *time.Time `json:"newEndDate,omitempty"`
}

// renewalAnswer фиксирует решение владельца и уведомляет покупателя.
func (a *NotificationsAPI) renewalAnswer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req renewalAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	c, err := a.contracts.RecordRenewalAnswer(r.Context(), id, req.Accepted, req.NewEndDate)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if _, err := a.store.Add(r.Context(), &notifications.ContractRenewalAnswer{
		Base: notifications.Base{
			RecipientID: c.BuyerID,
			Timestamp:   time.Now().UTC(),
		},
		ContractID: c.ID,
		IsAccepted: req.Accepted,
	}); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrNoOp):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
