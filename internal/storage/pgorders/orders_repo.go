package pgorders

import (
	"context"
	"time"

	"github.com/MarketMinds/OrderPulse/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

func (s *Storage) CreateTrackedOrder(ctx context.Context, in models.TrackedOrderCreateInput, initial models.CheckpointInput) (*models.TrackedOrder, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id uint64
	err = tx.QueryRow(ctx, `
INSERT INTO tracked_orders (
  order_id, buyer_id, current_status, estimated_delivery_date, delivery_address, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$6)
ON CONFLICT (order_id)
DO UPDATE SET updated_at = tracked_orders.updated_at
RETURNING id
`, in.OrderID, in.BuyerID, initial.Status, in.EstimatedDeliveryDate.UTC(), in.DeliveryAddress, now).Scan(&id)
	if err != nil {
		return nil, errors.Wrap(err, "insert tracked order")
	}

	_, err = tx.Exec(ctx, `
INSERT INTO order_checkpoints (tracked_order_id, event_time, location, description, status, created_at)
SELECT $1, $2, $3, $4, $5, now()
WHERE NOT EXISTS (SELECT 1 FROM order_checkpoints WHERE tracked_order_id = $1)
`, id, initial.Timestamp.UTC(), initial.Location, initial.Description, initial.Status)
	if err != nil {
		return nil, errors.Wrap(err, "insert initial checkpoint")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}

	return s.GetTrackedOrder(ctx, id)
}

func (s *Storage) GetTrackedOrder(ctx context.Context, trackedOrderID uint64) (*models.TrackedOrder, error) {
	var o models.TrackedOrder
	err := s.db.QueryRow(ctx, `
SELECT id, order_id, current_status, estimated_delivery_date, delivery_address, created_at, updated_at
FROM tracked_orders
WHERE id = $1
`, trackedOrderID).Scan(
		&o.ID, &o.OrderID, &o.CurrentStatus, &o.EstimatedDeliveryDate, &o.DeliveryAddress, &o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(models.ErrNotFound, "tracked order %d", trackedOrderID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "select tracked order")
	}
	return &o, nil
}

func (s *Storage) UpdateTrackedOrder(ctx context.Context, trackedOrderID uint64, estimated time.Time, status string) error {
	tag, err := s.db.Exec(ctx, `
UPDATE tracked_orders
SET estimated_delivery_date = $2, current_status = $3, updated_at = now()
WHERE id = $1
`, trackedOrderID, estimated.UTC(), status)
	if err != nil {
		return errors.Wrap(err, "update tracked order")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(models.ErrNotFound, "tracked order %d", trackedOrderID)
	}
	return nil
}

// GetRecipientAndOrderID отдаёт покупателя и публичный номер заказа для
// адресации нотификаций о ходе доставки.
func (s *Storage) GetRecipientAndOrderID(ctx context.Context, order *models.TrackedOrder) (uint64, uint64, error) {
	var buyerID, orderID uint64
	err := s.db.QueryRow(ctx, `
SELECT buyer_id, order_id FROM tracked_orders WHERE id = $1
`, order.ID).Scan(&buyerID, &orderID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, errors.Wrapf(models.ErrNotFound, "tracked order %d", order.ID)
	}
	if err != nil {
		return 0, 0, errors.Wrap(err, "select buyer")
	}
	return buyerID, orderID, nil
}
