package pgnotify

import (
	"context"

	"github.com/MarketMinds/OrderPulse/internal/models"
	"github.com/MarketMinds/OrderPulse/internal/notifications"
	"github.com/pkg/errors"
)

func (s *Storage) Add(ctx context.Context, rec notifications.Record) (uint64, error) {
	var id uint64
	err := s.db.QueryRow(ctx, `
INSERT INTO notification_records (
  recipient_id, category, ts, is_read,
  contract_id, is_accepted, product_id, order_id,
  shipping_state, delivery_date, expiration_date
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
RETURNING id
`, rec.RecipientID, rec.Category, rec.Timestamp.UTC(), rec.IsRead,
		rec.ContractID, rec.IsAccepted, rec.ProductID, rec.OrderID,
		rec.ShippingState, rec.DeliveryDate, rec.ExpirationDate).Scan(&id)
	if err != nil {
		return 0, errors.Wrap(err, "insert notification record")
	}
	return id, nil
}

func (s *Storage) ListByRecipient(ctx context.Context, recipientID uint64) ([]notifications.Record, error) {
	rows, err := s.db.Query(ctx, `
SELECT
  id, recipient_id, category, ts, is_read,
  contract_id, is_accepted, product_id, order_id,
  shipping_state, delivery_date, expiration_date
FROM notification_records
WHERE recipient_id = $1
ORDER BY ts DESC, id DESC
`, recipientID)
	if err != nil {
		return nil, errors.Wrap(err, "select notification records")
	}
	defer rows.Close()

	var out []notifications.Record
	for rows.Next() {
		var r notifications.Record
		if err := rows.Scan(
			&r.ID, &r.RecipientID, &r.Category, &r.Timestamp, &r.IsRead,
			&r.ContractID, &r.IsAccepted, &r.ProductID, &r.OrderID,
			&r.ShippingState, &r.DeliveryDate, &r.ExpirationDate,
		); err != nil {
			return nil, errors.Wrap(err, "scan notification record")
		}
		out = append(out, r)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) MarkRead(ctx context.Context, id uint64) error {
	tag, err := s.db.Exec(ctx, `UPDATE notification_records SET is_read = TRUE WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "mark read")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(models.ErrNotFound, "notification %d", id)
	}
	return nil
}

func (s *Storage) MarkAllRead(ctx context.Context, recipientID uint64) error {
	_, err := s.db.Exec(ctx, `UPDATE notification_records SET is_read = TRUE WHERE recipient_id = $1 AND NOT is_read`, recipientID)
	return errors.Wrap(err, "mark all read")
}

func (s *Storage) UnreadCount(ctx context.Context, recipientID uint64) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM notification_records WHERE recipient_id = $1 AND NOT is_read`, recipientID).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "count unread")
	}
	return n, nil
}
