package pgnotify

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

type Storage struct {
	db *pgxpool.Pool
}

func New(connString string) (*Storage, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, errors.Wrap(err, "parse pg config")
	}

	db, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return nil, errors.Wrap(err, "connect pg")
	}

	s := &Storage{db: db}
	if err := s.initSchema(context.Background()); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Storage) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		// Одна строка на нотификацию любой категории; вариант-специфичные
		// колонки NULL для чужих категорий.
		`
CREATE TABLE IF NOT EXISTS notification_records (
  id BIGSERIAL PRIMARY KEY,
  recipient_id BIGINT NOT NULL,
  category TEXT NOT NULL,
  ts TIMESTAMPTZ NOT NULL,
  is_read BOOLEAN NOT NULL DEFAULT FALSE,

  contract_id BIGINT NULL,
  is_accepted BOOLEAN NULL,
  product_id BIGINT NULL,
  order_id BIGINT NULL,
  shipping_state TEXT NULL,
  delivery_date TIMESTAMPTZ NULL,
  expiration_date TIMESTAMPTZ NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_notification_records_recipient_ts ON notification_records(recipient_id, ts DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_notification_records_unread ON notification_records(recipient_id) WHERE NOT is_read`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
