package tracking

import (
	"github.com/MarketMinds/OrderPulse/internal/models"
	"github.com/pkg/errors"
)

// Ledger — упорядоченный снапшот чекпоинтов одного tracked order.
// Порядок слайса — порядок записи (id ASC из хранилища, добавленные
// позже — в конец); он же служит tie-break-ом при равных Timestamp:
// из чекпоинтов с максимальным Timestamp побеждает записанный последним.
// Timestamp не уникален по построению, поэтому tie-break обязан быть
// детерминированным.
//
// Производный статус всегда пересчитывается целиком по снапшоту, а не
// патчится инкрементально: delete/revert иначе расходятся с историей.
type Ledger struct {
	fallback string
	cps      []models.OrderCheckpoint
}

// NewLedger строит леджер поверх снапшота. fallback — последний известный
// статус агрегата, возвращается при пустом леджере.
func NewLedger(fallback string, cps []models.OrderCheckpoint) *Ledger {
	snapshot := make([]models.OrderCheckpoint, len(cps))
	copy(snapshot, cps)
	return &Ledger{fallback: fallback, cps: snapshot}
}

func (l *Ledger) Len() int { return len(l.cps) }

// Add вставляет чекпоинт. Ограничений на уникальность Timestamp нет,
// вставка "в прошлое" легальна.
func (l *Ledger) Add(cp models.OrderCheckpoint) {
	l.cps = append(l.cps, cp)
}

// Update заменяет изменяемые поля чекпоинта, позиция записи сохраняется.
func (l *Ledger) Update(checkpointID uint64, in models.CheckpointInput) error {
	for i := range l.cps {
		if l.cps[i].ID == checkpointID {
			l.cps[i].Timestamp = in.Timestamp
			l.cps[i].Location = in.Location
			l.cps[i].Description = in.Description
			l.cps[i].Status = in.Status
			return nil
		}
	}
	return errors.Wrapf(models.ErrNotFound, "checkpoint %d", checkpointID)
}

func (l *Ledger) Delete(checkpointID uint64) error {
	for i := range l.cps {
		if l.cps[i].ID == checkpointID {
			l.cps = append(l.cps[:i], l.cps[i+1:]...)
			return nil
		}
	}
	return errors.Wrapf(models.ErrNotFound, "checkpoint %d", checkpointID)
}

// Latest возвращает чекпоинт с максимальным Timestamp (tie-break — позиция
// записи) или nil для пустого леджера.
func (l *Ledger) Latest() *models.OrderCheckpoint {
	var latest *models.OrderCheckpoint
	for i := range l.cps {
		// ">=": при равных Timestamp побеждает записанный позже.
		if latest == nil || !l.cps[i].Timestamp.Before(latest.Timestamp) {
			latest = &l.cps[i]
		}
	}
	return latest
}

// CurrentStatus — статус последнего чекпоинта; для пустого леджера —
// последний известный статус агрегата, никогда не "неопределённое" значение.
func (l *Ledger) CurrentStatus() string {
	if latest := l.Latest(); latest != nil {
		return latest.Status
	}
	return l.fallback
}

// Revert удаляет последний чекпоинт ("отмена последнего изменения
// статуса") и возвращает его. Требует минимум два чекпоинта: откатываться
// с единственного некуда.
func (l *Ledger) Revert() (models.OrderCheckpoint, error) {
	if len(l.cps) <= 1 {
		return models.OrderCheckpoint{}, errors.Wrap(models.ErrNoOp, "revert requires a previous checkpoint")
	}
	latest := l.Latest()
	removed := *latest
	if err := l.Delete(removed.ID); err != nil {
		return models.OrderCheckpoint{}, err
	}
	return removed, nil
}
