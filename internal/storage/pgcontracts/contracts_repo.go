package pgcontracts

import (
	"context"
	"time"

	"github.com/MarketMinds/OrderPulse/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

func (s *Storage) CreateContract(ctx context.Context, c *models.Contract) (uint64, error) {
	var id uint64
	err := s.db.QueryRow(ctx, `
INSERT INTO contracts (
  buyer_id, seller_id, product_id, end_date,
  renewal_requested, renewal_forwarded, next_check_at, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7, now(), now())
RETURNING id
`, c.BuyerID, c.SellerID, c.ProductID, c.EndDate.UTC(),
		c.RenewalRequested, c.RenewalForwarded, c.NextCheckAt.UTC()).Scan(&id)
	if err != nil {
		return 0, errors.Wrap(err, "insert contract")
	}
	return id, nil
}

func (s *Storage) GetContract(ctx context.Context, contractID uint64) (*models.Contract, error) {
	var c models.Contract
	err := s.db.QueryRow(ctx, `
SELECT id, buyer_id, seller_id, product_id, end_date,
       renewal_requested, renewal_forwarded, expiry_notified_at, next_check_at
FROM contracts
WHERE id = $1
`, contractID).Scan(
		&c.ID, &c.BuyerID, &c.SellerID, &c.ProductID, &c.EndDate,
		&c.RenewalRequested, &c.RenewalForwarded, &c.ExpiryNotifiedAt, &c.NextCheckAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(models.ErrNotFound, "contract %d", contractID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "select contract")
	}
	return &c, nil
}

// ClaimDueContracts выбирает пачку контрактов, готовых к проверке, и
// "бронирует" их сдвигом next_check_at, чтобы параллельные воркеры не
// обрабатывали одни и те же строки. SELECT ... FOR UPDATE SKIP LOCKED.
func (s *Storage) ClaimDueContracts(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.Contract, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
SELECT id, buyer_id, seller_id, product_id, end_date,
       renewal_requested, renewal_forwarded, expiry_notified_at, next_check_at
FROM contracts
WHERE next_check_at <= $1
ORDER BY next_check_at ASC
LIMIT $2
FOR UPDATE SKIP LOCKED
`, now.UTC(), limit)
	if err != nil {
		return nil, errors.Wrap(err, "select due contracts")
	}
	defer rows.Close()

	var picked []*models.Contract
	for rows.Next() {
		var c models.Contract
		if err := rows.Scan(
			&c.ID, &c.BuyerID, &c.SellerID, &c.ProductID, &c.EndDate,
			&c.RenewalRequested, &c.RenewalForwarded, &c.ExpiryNotifiedAt, &c.NextCheckAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan due contract")
		}
		picked = append(picked, &c)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}

	leaseUntil := now.UTC().Add(lease)
	for _, c := range picked {
		_, err := tx.Exec(ctx, `UPDATE contracts SET next_check_at = $2, updated_at = now() WHERE id = $1`, c.ID, leaseUntil)
		if err != nil {
			return nil, errors.Wrap(err, "lease contract")
		}
		c.NextCheckAt = leaseUntil
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return picked, nil
}

func (s *Storage) MarkExpiryNotified(ctx context.Context, contractID uint64, at time.Time) error {
	tag, err := s.db.Exec(ctx, `
UPDATE contracts SET expiry_notified_at = $2, updated_at = now() WHERE id = $1
`, contractID, at.UTC())
	if err != nil {
		return errors.Wrap(err, "mark expiry notified")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(models.ErrNotFound, "contract %d", contractID)
	}
	return nil
}

func (s *Storage) MarkRenewalForwarded(ctx context.Context, contractID uint64) error {
	tag, err := s.db.Exec(ctx, `
UPDATE contracts SET renewal_forwarded = TRUE, updated_at = now() WHERE id = $1
`, contractID)
	if err != nil {
		return errors.Wrap(err, "mark renewal forwarded")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(models.ErrNotFound, "contract %d", contractID)
	}
	return nil
}

func (s *Storage) ScheduleNextCheck(ctx context.Context, contractID uint64, at time.Time) error {
	_, err := s.db.Exec(ctx, `
UPDATE contracts SET next_check_at = $2, updated_at = now() WHERE id = $1
`, contractID, at.UTC())
	return errors.Wrap(err, "schedule next check")
}

// RecordRenewalAnswer фиксирует ответ владельца на запрос продления и
// возвращает контракт для адресации нотификации покупателю. Принятый
// запрос сбрасывает флаги и назначает немедленную повторную проверку.
func (s *Storage) RecordRenewalAnswer(ctx context.Context, contractID uint64, accepted bool, newEndDate *time.Time) (*models.Contract, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var c models.Contract
	err = tx.QueryRow(ctx, `
SELECT id, buyer_id, seller_id, product_id, end_date,
       renewal_requested, renewal_forwarded, expiry_notified_at, next_check_at
FROM contracts
WHERE id = $1
FOR UPDATE
`, contractID).Scan(
		&c.ID, &c.BuyerID, &c.SellerID, &c.ProductID, &c.EndDate,
		&c.RenewalRequested, &c.RenewalForwarded, &c.ExpiryNotifiedAt, &c.NextCheckAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(models.ErrNotFound, "contract %d", contractID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "select contract")
	}

	if accepted {
		endDate := c.EndDate
		if newEndDate != nil {
			endDate = newEndDate.UTC()
		}
		_, err = tx.Exec(ctx, `
UPDATE contracts
SET end_date = $2,
    renewal_requested = FALSE,
    renewal_forwarded = FALSE,
    expiry_notified_at = NULL,
    next_check_at = now(),
    updated_at = now()
WHERE id = $1
`, contractID, endDate)
		if err == nil {
			c.EndDate = endDate
			c.RenewalRequested = false
			c.RenewalForwarded = false
			c.ExpiryNotifiedAt = nil
		}
	} else {
		_, err = tx.Exec(ctx, `
UPDATE contracts
SET renewal_requested = FALSE,
    updated_at = now()
WHERE id = $1
`, contractID)
		if err == nil {
			c.RenewalRequested = false
		}
	}
	if err != nil {
		return nil, errors.Wrap(err, "record renewal answer")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return &c, nil
}
