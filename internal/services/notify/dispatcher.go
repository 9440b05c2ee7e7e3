package notify

import (
	"context"
	"time"

	"github.com/MarketMinds/OrderPulse/internal/models"
	"github.com/MarketMinds/OrderPulse/internal/notifications"
	"github.com/pkg/errors"
)

// OrderLookup разрешает отслеживаемый заказ в получателя и публичный
// номер заказа.
type OrderLookup interface {
	GetRecipientAndOrderID(ctx context.Context, order *models.TrackedOrder) (recipientID, orderID uint64, err error)
}

// Dispatcher превращает смену статуса доставки в нотификацию покупателю.
// Ошибка здесь означает, что нотификация потеряна; решает, что с этим
// делать, вызывающая сторона.
type Dispatcher struct {
	store  *Store
	lookup OrderLookup
}

func NewDispatcher(store *Store, lookup OrderLookup) *Dispatcher {
	return &Dispatcher{store: store, lookup: lookup}
}

func (d *Dispatcher) Dispatch(ctx context.Context, order *models.TrackedOrder, newStatus string, ts time.Time) error {
	recipientID, orderID, err := d.lookup.GetRecipientAndOrderID(ctx, order)
	if err != nil {
		return errors.Wrapf(err, "resolve recipient for tracked order %d", order.ID)
	}

	n := &notifications.OrderShippingProgress{
		Base: notifications.Base{
			RecipientID: recipientID,
			Timestamp:   ts,
		},
		OrderID:       orderID,
		ShippingState: newStatus,
		DeliveryDate:  order.EstimatedDeliveryDate,
	}
	if _, err := d.store.Add(ctx, n); err != nil {
		return errors.Wrapf(err, "dispatch shipping progress for order %d", orderID)
	}
	return nil
}
