package models

import "time"

// Статусы доставки (закрытый набор, линейная прогрессия).
const (
	OrderStatusProcessing     = "PROCESSING"
	OrderStatusShipped        = "SHIPPED"
	OrderStatusInTransit      = "IN_TRANSIT"
	OrderStatusOutForDelivery = "OUT_FOR_DELIVERY"
	OrderStatusDelivered      = "DELIVERED"
	OrderStatusCanceled       = "CANCELED"
	OrderStatusReturned       = "RETURNED"
)

// statusRank задаёт порядок линейной прогрессии. Терминальные
// CANCELED/RETURNED в прогрессию не входят.
var statusRank = map[string]int{
	OrderStatusProcessing:     0,
	OrderStatusShipped:        1,
	OrderStatusInTransit:      2,
	OrderStatusOutForDelivery: 3,
	OrderStatusDelivered:      4,
}

// IsValidStatus reports whether s belongs to the closed status set.
func IsValidStatus(s string) bool {
	if _, ok := statusRank[s]; ok {
		return true
	}
	return s == OrderStatusCanceled || s == OrderStatusReturned
}

// IsTerminalStatus reports whether s is CANCELED or RETURNED.
func IsTerminalStatus(s string) bool {
	return s == OrderStatusCanceled || s == OrderStatusReturned
}

// CanTransition проверяет административный переход from -> to.
// Разрешены: шаг вперёд по прогрессии, откат назад по прогрессии,
// и уход в терминальный статус из любого нетерминального.
// Переходы между checkpoint-производными статусами здесь не проверяются:
// они всегда берутся из закрытого набора и пересчитываются из леджера.
func CanTransition(from, to string) bool {
	if !IsValidStatus(to) {
		return false
	}
	if IsTerminalStatus(from) {
		return false
	}
	if IsTerminalStatus(to) {
		return true
	}
	_, okFrom := statusRank[from]
	_, okTo := statusRank[to]
	return okFrom && okTo
}

// DeliveryProgressPercent maps a status to a 0..100 display percentage.
func DeliveryProgressPercent(status string) int {
	switch status {
	case OrderStatusProcessing:
		return 20
	case OrderStatusShipped:
		return 40
	case OrderStatusInTransit:
		return 75
	case OrderStatusOutForDelivery:
		return 90
	case OrderStatusDelivered:
		return 100
	default:
		return 0
	}
}

// TrackedOrder — агрегат прогресса доставки одного заказа.
// CurrentStatus всегда равен статусу чекпоинта с максимальным Timestamp
// (или последнему известному статусу, если чекпоинтов нет) и меняется
// только через операции над чекпоинтами либо административный override.
type TrackedOrder struct {
	ID                    uint64
	OrderID               uint64
	CurrentStatus         string
	EstimatedDeliveryDate time.Time
	DeliveryAddress       string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// OrderCheckpoint — одно событие в истории доставки.
type OrderCheckpoint struct {
	ID             uint64
	TrackedOrderID uint64
	Timestamp      time.Time
	Location       *string
	Description    string
	Status         string
	CreatedAt      time.Time
}

type CheckpointInput struct {
	Timestamp   time.Time
	Location    *string
	Description string
	Status      string
}

type TrackedOrderCreateInput struct {
	OrderID               uint64
	BuyerID               uint64
	EstimatedDeliveryDate time.Time
	DeliveryAddress       string
}

// Contract — минимальная проекция контракта аренды, достаточная для
// наблюдателя за истечением срока.
type Contract struct {
	ID               uint64
	BuyerID          uint64
	SellerID         uint64
	ProductID        uint64
	EndDate          time.Time
	RenewalRequested bool
	RenewalForwarded bool
	ExpiryNotifiedAt *time.Time
	NextCheckAt      time.Time
}
