package messages

import "time"

// CheckpointRecorded — входящее событие от службы фулфилмента: физический
// прогресс отправления. Применяется через TrackedOrderService так же, как
// чекпоинт, добавленный через API.
type CheckpointRecorded struct {
	EventID        string     `json:"event_id"`
	TrackedOrderID uint64     `json:"tracked_order_id"`
	Timestamp      time.Time  `json:"timestamp"`
	Location       *string    `json:"location,omitempty"`
	Description    string     `json:"description"`
	Status         string     `json:"status"`
}

// OrderStatusChanged публикуется после каждого изменения производного
// статуса tracked order. Best-effort: провал публикации не откатывает
// мутацию чекпоинта.
type OrderStatusChanged struct {
	EventID        string    `json:"event_id"`
	TrackedOrderID uint64    `json:"tracked_order_id"`
	OrderID        uint64    `json:"order_id"`
	OldStatus      string    `json:"old_status"`
	NewStatus      string    `json:"new_status"`
	ChangedAt      time.Time `json:"changed_at"`
}
