package notify

import (
	"context"
	"log/slog"

	"github.com/MarketMinds/OrderPulse/internal/notifications"
	"github.com/pkg/errors"
)

// Repository — плоское хранилище записей нотификаций.
type Repository interface {
	Add(ctx context.Context, rec notifications.Record) (uint64, error)
	ListByRecipient(ctx context.Context, recipientID uint64) ([]notifications.Record, error)
	MarkRead(ctx context.Context, id uint64) error
	MarkAllRead(ctx context.Context, recipientID uint64) error
	UnreadCount(ctx context.Context, recipientID uint64) (int, error)
}

// Store принимает типизированные нотификации и отдаёт их обратно
// типизированными. Плоская форма — деталь хранения, наружу она не уходит.
type Store struct {
	repo Repository
}

func NewStore(repo Repository) *Store {
	return &Store{repo: repo}
}

func (s *Store) Add(ctx context.Context, n notifications.Notification) (uint64, error) {
	rec, err := notifications.Encode(n)
	if err != nil {
		return 0, errors.Wrap(err, "encode notification")
	}
	id, err := s.repo.Add(ctx, rec)
	if err != nil {
		return 0, errors.Wrap(err, "store notification")
	}
	return id, nil
}

// GetForRecipient возвращает нотификации получателя, новые первыми.
// Запись, которую не удалось декодировать, пропускается с записью в лог:
// одна битая строка не должна прятать остальную ленту.
func (s *Store) GetForRecipient(ctx context.Context, recipientID uint64) ([]notifications.Notification, error) {
	recs, err := s.repo.ListByRecipient(ctx, recipientID)
	if err != nil {
		return nil, errors.Wrap(err, "list notifications")
	}

	out := make([]notifications.Notification, 0, len(recs))
	for _, rec := range recs {
		n, err := notifications.Decode(rec)
		if err != nil {
			slog.Error("skip undecodable notification record",
				"id", rec.ID,
				"category", rec.Category,
				"error", err)
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (s *Store) UnreadCount(ctx context.Context, recipientID uint64) (int, error) {
	n, err := s.repo.UnreadCount(ctx, recipientID)
	if err != nil {
		return 0, errors.Wrap(err, "count unread notifications")
	}
	return n, nil
}

func (s *Store) MarkRead(ctx context.Context, id uint64) error {
	return s.repo.MarkRead(ctx, id)
}

func (s *Store) MarkAllRead(ctx context.Context, recipientID uint64) error {
	return s.repo.MarkAllRead(ctx, recipientID)
}
