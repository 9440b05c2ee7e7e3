package pgorders

import (
	"context"

	"github.com/MarketMinds/OrderPulse/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// ListCheckpoints возвращает чекпоинты заказа в порядке записи (id ASC).
// Этот порядок — источник истины при равных event_time.
func (s *Storage) ListCheckpoints(ctx context.Context, trackedOrderID uint64) ([]models.OrderCheckpoint, error) {
	rows, err := s.db.Query(ctx, `
SELECT id, tracked_order_id, event_time, location, description, status, created_at
FROM order_checkpoints
WHERE tracked_order_id = $1
ORDER BY id ASC
`, trackedOrderID)
	if err != nil {
		return nil, errors.Wrap(err, "select checkpoints")
	}
	defer rows.Close()

	var out []models.OrderCheckpoint
	for rows.Next() {
		var c models.OrderCheckpoint
		if err := rows.Scan(
			&c.ID, &c.TrackedOrderID, &c.Timestamp, &c.Location, &c.Description, &c.Status, &c.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan checkpoint")
		}
		out = append(out, c)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) GetCheckpoint(ctx context.Context, checkpointID uint64) (*models.OrderCheckpoint, error) {
	var c models.OrderCheckpoint
	err := s.db.QueryRow(ctx, `
SELECT id, tracked_order_id, event_time, location, description, status, created_at
FROM order_checkpoints
WHERE id = $1
`, checkpointID).Scan(
		&c.ID, &c.TrackedOrderID, &c.Timestamp, &c.Location, &c.Description, &c.Status, &c.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(models.ErrNotFound, "checkpoint %d", checkpointID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "select checkpoint")
	}
	return &c, nil
}

func (s *Storage) AddCheckpoint(ctx context.Context, trackedOrderID uint64, in models.CheckpointInput) (uint64, error) {
	var id uint64
	err := s.db.QueryRow(ctx, `
INSERT INTO order_checkpoints (tracked_order_id, event_time, location, description, status, created_at)
VALUES ($1,$2,$3,$4,$5, now())
RETURNING id
`, trackedOrderID, in.Timestamp.UTC(), in.Location, in.Description, in.Status).Scan(&id)
	if err != nil {
		return 0, errors.Wrap(err, "insert checkpoint")
	}
	return id, nil
}

func (s *Storage) UpdateCheckpoint(ctx context.Context, checkpointID uint64, in models.CheckpointInput) error {
	tag, err := s.db.Exec(ctx, `
UPDATE order_checkpoints
SET event_time = $2, location = $3, description = $4, status = $5
WHERE id = $1
`, checkpointID, in.Timestamp.UTC(), in.Location, in.Description, in.Status)
	if err != nil {
		return errors.Wrap(err, "update checkpoint")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(models.ErrNotFound, "checkpoint %d", checkpointID)
	}
	return nil
}

func (s *Storage) DeleteCheckpoint(ctx context.Context, checkpointID uint64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM order_checkpoints WHERE id = $1`, checkpointID)
	if err != nil {
		return errors.Wrap(err, "delete checkpoint")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(models.ErrNotFound, "checkpoint %d", checkpointID)
	}
	return nil
}
