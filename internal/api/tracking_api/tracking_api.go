package tracking_api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/MarketMinds/OrderPulse/internal/models"
	"github.com/MarketMinds/OrderPulse/internal/services/tracking"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

type TrackingAPI struct {
	svc *tracking.Service
}

func New(svc *tracking.Service) *TrackingAPI {
	return &TrackingAPI{svc: svc}
}

func (a *TrackingAPI) Routes(r chi.Router) {
	r.Post("/tracked-orders", a.createTrackedOrder)
	r.Get("/tracked-orders/{id}", a.getTrackedOrder)
	r.Put("/tracked-orders/{id}", a.updateTrackedOrder)
	r.Get("/tracked-orders/{id}/progress", a.deliveryProgress)
	r.Get("/tracked-orders/{id}/checkpoints", a.listCheckpoints)
	r.Post("/tracked-orders/{id}/checkpoints", a.addCheckpoint)
	r.Post("/tracked-orders/{id}/revert", a.revert)
	r.Put("/checkpoints/{id}", a.updateCheckpoint)
	r.Delete("/checkpoints/{id}", a.deleteCheckpoint)
}

type trackedOrderResponse struct {
	ID                    uint64    `json:"id"`
	OrderID               uint64    `json:"orderId"`
	CurrentStatus         string    `json:"currentStatus"`
	EstimatedDeliveryDate time.Time `json:"estimatedDeliveryDate"`
	DeliveryAddress       string    `json:"deliveryAddress,omitempty"`
	CreatedAt             time.Time `json:"createdAt"`
	UpdatedAt             time.Time `json:"updatedAt"`
}

func toTrackedOrderResponse(o *models.TrackedOrder) trackedOrderResponse {
	return trackedOrderResponse{
		ID:                    o.ID,
		OrderID:               o.OrderID,
		CurrentStatus:         o.CurrentStatus,
		EstimatedDeliveryDate: o.EstimatedDeliveryDate,
		DeliveryAddress:       o.DeliveryAddress,
		CreatedAt:             o.CreatedAt,
		UpdatedAt:             o.UpdatedAt,
	}
}

type checkpointResponse struct {
	ID             uint64    `json:"id"`
	TrackedOrderID uint64    `json:"trackedOrderId"`
	Timestamp      time.Time `json:"timestamp"`
	Location       *string   `json:"location,omitempty"`
	Description    string    `json:"description,omitempty"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"createdAt"`
}

func toCheckpointResponse(c models.OrderCheckpoint) checkpointResponse {
	return checkpointResponse{
		ID:             c.ID,
		TrackedOrderID: c.TrackedOrderID,
		Timestamp:      c.Timestamp,
		Location:       c.Location,
		Description:    c.Description,
		Status:         c.Status,
		CreatedAt:      c.CreatedAt,
	}
}

type createTrackedOrderRequest struct {
	OrderID               uint64    `json:"orderId"`
	BuyerID               uint64    `json:"buyerId"`
	EstimatedDeliveryDate time.Time `json:"estimatedDeliveryDate"`
	DeliveryAddress       string    `json:"deliveryAddress"`
}

func (a *TrackingAPI) createTrackedOrder(w http.ResponseWriter, r *http.Request) {
	var req createTrackedOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := a.svc.CreateTrackedOrder(r.Context(), models.TrackedOrderCreateInput{
		OrderID:               req.OrderID,
		BuyerID:               req.BuyerID,
		EstimatedDeliveryDate: req.EstimatedDeliveryDate,
		DeliveryAddress:       req.DeliveryAddress,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTrackedOrderResponse(order))
}

func (a *TrackingAPI) getTrackedOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	order, err := a.svc.GetTrackedOrder(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTrackedOrderResponse(order))
}

type updateTrackedOrderRequest struct {
	EstimatedDeliveryDate time.Time `json:"estimatedDeliveryDate"`
	Status                string    `json:"status"`
}

func (a *TrackingAPI) updateTrackedOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req updateTrackedOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := a.svc.SetEstimatedDeliveryDate(r.Context(), id, req.EstimatedDeliveryDate, req.Status); err != nil {
		writeServiceError(w, err)
		return
	}
	order, err := a.svc.GetTrackedOrder(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTrackedOrderResponse(order))
}

func (a *TrackingAPI) deliveryProgress(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	pct, err := a.svc.DeliveryProgress(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"progressPercent": pct})
}

func (a *TrackingAPI) listCheckpoints(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	cps, err := a.svc.ListCheckpoints(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := make([]checkpointResponse, 0, len(cps))
	for _, c := range cps {
		out = append(out, toCheckpointResponse(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"checkpoints": out})
}

type checkpointRequest struct {
	Timestamp   time.Time `json:"timestamp"`
	Location    *string   `json:"location"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
}

func (a *TrackingAPI) addCheckpoint(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req checkpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	cpID, err := a.svc.AddCheckpoint(r.Context(), id, models.CheckpointInput{
		Timestamp:   req.Timestamp,
		Location:    req.Location,
		Description: req.Description,
		Status:      req.Status,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uint64{"id": cpID})
}

func (a *TrackingAPI) updateCheckpoint(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req checkpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	err := a.svc.UpdateCheckpoint(r.Context(), id, models.CheckpointInput{
		Timestamp:   req.Timestamp,
		Location:    req.Location,
		Description: req.Description,
		Status:      req.Status,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *TrackingAPI) deleteCheckpoint(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := a.svc.DeleteCheckpoint(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *TrackingAPI) revert(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := a.svc.Revert(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	order, err := a.svc.GetTrackedOrder(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTrackedOrderResponse(order))
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
	case errors.Is(err, models.ErrInvalidTransition):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
