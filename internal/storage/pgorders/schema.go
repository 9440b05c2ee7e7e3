package pgorders

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS tracked_orders (
  id BIGSERIAL PRIMARY KEY,
  order_id BIGINT NOT NULL,
  buyer_id BIGINT NOT NULL,
  current_status TEXT NOT NULL,
  estimated_delivery_date TIMESTAMPTZ NOT NULL,
  delivery_address TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,
  UNIQUE (order_id)
)`,
		`
CREATE TABLE IF NOT EXISTS order_checkpoints (
  id BIGSERIAL PRIMARY KEY,
  tracked_order_id BIGINT NOT NULL REFERENCES tracked_orders(id) ON DELETE CASCADE,
  event_time TIMESTAMPTZ NOT NULL,
  location TEXT NULL,
  description TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL
)`,
		// Порядок по id внутри заказа важен: он разрешает ничьи по event_time.
		`CREATE INDEX IF NOT EXISTS idx_order_checkpoints_order_id ON order_checkpoints(tracked_order_id, id)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
