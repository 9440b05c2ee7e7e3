package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/MarketMinds/OrderPulse/internal/broker/messages"
	"github.com/MarketMinds/OrderPulse/internal/cache"
	"github.com/MarketMinds/OrderPulse/internal/models"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type Repository interface {
	CreateTrackedOrder(ctx context.Context, in models.TrackedOrderCreateInput, initial models.CheckpointInput) (*models.TrackedOrder, error)
	GetTrackedOrder(ctx context.Context, trackedOrderID uint64) (*models.TrackedOrder, error)
	UpdateTrackedOrder(ctx context.Context, trackedOrderID uint64, estimatedDelivery time.Time, status string) error
	ListCheckpoints(ctx context.Context, trackedOrderID uint64) ([]models.OrderCheckpoint, error)
	GetCheckpoint(ctx context.Context, checkpointID uint64) (*models.OrderCheckpoint, error)
	AddCheckpoint(ctx context.Context, trackedOrderID uint64, in models.CheckpointInput) (uint64, error)
	UpdateCheckpoint(ctx context.Context, checkpointID uint64, in models.CheckpointInput) error
	DeleteCheckpoint(ctx context.Context, checkpointID uint64) error
}

// Dispatcher строит и сохраняет нотификацию о смене статуса. Любая его
// ошибка логируется и глотается: мутация чекпоинта — system of record,
// нотификация — best-effort.
type Dispatcher interface {
	Dispatch(ctx context.Context, order *models.TrackedOrder, newStatus string, ts time.Time) error
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Service оборачивает каждую мутацию леджера детекцией смены производного
// статуса: мутация -> полный пересчёт -> обновление агрегата -> dispatch.
// Мутации одного tracked order-а сериализуются по ключу; блокировка
// отпускается до dispatch-а, чтобы медленное хранилище нотификаций не
// держало заказ.
type Service struct {
	repo       Repository
	dispatcher Dispatcher
	producer   Producer
	topic      string
	cache      cache.BytesCache
	currentTTL time.Duration

	locks *keyedMutex
	now   func() time.Time
}

func New(repo Repository, dispatcher Dispatcher, c cache.BytesCache, currentTTL time.Duration) *Service {
	return &Service{
		repo:       repo,
		dispatcher: dispatcher,
		cache:      c,
		currentTTL: currentTTL,
		locks:      newKeyedMutex(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithProducer включает публикацию OrderStatusChanged в Kafka.
func (s *Service) WithProducer(p Producer, topic string) *Service {
	s.producer = p
	s.topic = topic
	return s
}

func (s *Service) CreateTrackedOrder(ctx context.Context, in models.TrackedOrderCreateInput) (*models.TrackedOrder, error) {
	if in.OrderID == 0 {
		return nil, errors.Wrap(models.ErrInvalidInput, "orderId is required")
	}
	if in.BuyerID == 0 {
		return nil, errors.Wrap(models.ErrInvalidInput, "buyerId is required")
	}

	order, err := s.repo.CreateTrackedOrder(ctx, in, models.CheckpointInput{
		Timestamp:   s.now(),
		Description: "Order created and being tracked",
		Status:      models.OrderStatusProcessing,
	})
	if err != nil {
		return nil, err
	}
	s.refreshCache(ctx, order)
	return order, nil
}

func (s *Service) GetTrackedOrder(ctx context.Context, trackedOrderID uint64) (*models.TrackedOrder, error) {
	if s.cache != nil && s.currentTTL > 0 {
		if b, ok, err := s.cache.Get(ctx, currentKey(trackedOrderID)); err == nil && ok {
			var order models.TrackedOrder
			if json.Unmarshal(b, &order) == nil {
				return &order, nil
			}
		}
	}

	order, err := s.repo.GetTrackedOrder(ctx, trackedOrderID)
	if err != nil {
		return nil, err
	}
	s.refreshCache(ctx, order)
	return order, nil
}

func (s *Service) ListCheckpoints(ctx context.Context, trackedOrderID uint64) ([]models.OrderCheckpoint, error) {
	if _, err := s.repo.GetTrackedOrder(ctx, trackedOrderID); err != nil {
		return nil, err
	}
	return s.repo.ListCheckpoints(ctx, trackedOrderID)
}

// DeliveryProgress возвращает процент прогресса доставки для отображения.
func (s *Service) DeliveryProgress(ctx context.Context, trackedOrderID uint64) (int, error) {
	order, err := s.GetTrackedOrder(ctx, trackedOrderID)
	if err != nil {
		return 0, err
	}
	return models.DeliveryProgressPercent(order.CurrentStatus), nil
}

// AddCheckpoint вставляет чекпоинт (вставка "в прошлое" легальна) и, если
// производный статус изменился, шлёт ровно одну нотификацию с меткой
// времени чекпоинта.
func (s *Service) AddCheckpoint(ctx context.Context, trackedOrderID uint64, in models.CheckpointInput) (uint64, error) {
	if !models.IsValidStatus(in.Status) {
		return 0, errors.Wrapf(models.ErrInvalidTransition, "unknown status %q", in.Status)
	}
	if in.Timestamp.IsZero() {
		in.Timestamp = s.now()
	}

	unlock := s.locks.lock(trackedOrderID)

	order, ledger, err := s.load(ctx, trackedOrderID)
	if err != nil {
		unlock()
		return 0, err
	}
	oldStatus := ledger.CurrentStatus()

	id, err := s.repo.AddCheckpoint(ctx, trackedOrderID, in)
	if err != nil {
		unlock()
		return 0, err
	}
	ledger.Add(models.OrderCheckpoint{
		ID:             id,
		TrackedOrderID: trackedOrderID,
		Timestamp:      in.Timestamp,
		Location:       in.Location,
		Description:    in.Description,
		Status:         in.Status,
	})

	newStatus, err := s.applyDerivedStatus(ctx, order, ledger, oldStatus)
	unlock()
	if err != nil {
		return 0, err
	}
	if newStatus != oldStatus {
		s.notifyStatusChange(ctx, order, oldStatus, newStatus, in.Timestamp)
	}
	return id, nil
}

// UpdateCheckpoint правит существующий чекпоинт; триггерная метка времени
// нотификации — (возможно новый) Timestamp чекпоинта.
func (s *Service) UpdateCheckpoint(ctx context.Context, checkpointID uint64, in models.CheckpointInput) error {
	if !models.IsValidStatus(in.Status) {
		return errors.Wrapf(models.ErrInvalidTransition, "unknown status %q", in.Status)
	}
	if in.Timestamp.IsZero() {
		in.Timestamp = s.now()
	}

	cp, err := s.repo.GetCheckpoint(ctx, checkpointID)
	if err != nil {
		return err
	}

	unlock := s.locks.lock(cp.TrackedOrderID)

	order, ledger, err := s.load(ctx, cp.TrackedOrderID)
	if err != nil {
		unlock()
		return err
	}
	oldStatus := ledger.CurrentStatus()

	if err := ledger.Update(checkpointID, in); err != nil {
		unlock()
		return err
	}
	if err := s.repo.UpdateCheckpoint(ctx, checkpointID, in); err != nil {
		unlock()
		return err
	}

	newStatus, err := s.applyDerivedStatus(ctx, order, ledger, oldStatus)
	unlock()
	if err != nil {
		return err
	}
	if newStatus != oldStatus {
		s.notifyStatusChange(ctx, order, oldStatus, newStatus, in.Timestamp)
	}
	return nil
}

// DeleteCheckpoint удаляет чекпоинт; если удалён определявший статус,
// статус пересчитывается по оставшимся. Метка времени нотификации —
// текущее время: у удалённого чекпоинта больше нет смысла как у события.
func (s *Service) DeleteCheckpoint(ctx context.Context, checkpointID uint64) error {
	cp, err := s.repo.GetCheckpoint(ctx, checkpointID)
	if err != nil {
		return err
	}

	unlock := s.locks.lock(cp.TrackedOrderID)

	order, ledger, err := s.load(ctx, cp.TrackedOrderID)
	if err != nil {
		unlock()
		return err
	}
	oldStatus := ledger.CurrentStatus()

	if err := ledger.Delete(checkpointID); err != nil {
		unlock()
		return err
	}
	if err := s.repo.DeleteCheckpoint(ctx, checkpointID); err != nil {
		unlock()
		return err
	}

	newStatus, err := s.applyDerivedStatus(ctx, order, ledger, oldStatus)
	unlock()
	if err != nil {
		return err
	}
	if newStatus != oldStatus {
		s.notifyStatusChange(ctx, order, oldStatus, newStatus, s.now())
	}
	return nil
}

// Revert откатывает последнее изменение статуса: удаляет самый поздний
// чекпоинт. ErrNoOp, если откатываться не к чему.
func (s *Service) Revert(ctx context.Context, trackedOrderID uint64) error {
	unlock := s.locks.lock(trackedOrderID)

	order, ledger, err := s.load(ctx, trackedOrderID)
	if err != nil {
		unlock()
		return err
	}
	oldStatus := ledger.CurrentStatus()

	removed, err := ledger.Revert()
	if err != nil {
		unlock()
		return err
	}
	if err := s.repo.DeleteCheckpoint(ctx, removed.ID); err != nil {
		unlock()
		return err
	}

	newStatus, err := s.applyDerivedStatus(ctx, order, ledger, oldStatus)
	unlock()
	if err != nil {
		return err
	}
	if newStatus != oldStatus {
		s.notifyStatusChange(ctx, order, oldStatus, newStatus, s.now())
	}
	return nil
}

// SetEstimatedDeliveryDate — административный override агрегата без
// чекпоинта. Статус проверяется по графу переходов; нотификация уходит по
// той же схеме "старый против нового".
func (s *Service) SetEstimatedDeliveryDate(ctx context.Context, trackedOrderID uint64, date time.Time, status string) error {
	unlock := s.locks.lock(trackedOrderID)

	order, err := s.repo.GetTrackedOrder(ctx, trackedOrderID)
	if err != nil {
		unlock()
		return err
	}

	oldStatus := order.CurrentStatus
	if status != oldStatus && !models.CanTransition(oldStatus, status) {
		unlock()
		return errors.Wrapf(models.ErrInvalidTransition, "%s -> %s", oldStatus, status)
	}

	if err := s.repo.UpdateTrackedOrder(ctx, trackedOrderID, date, status); err != nil {
		unlock()
		return err
	}
	order.EstimatedDeliveryDate = date
	order.CurrentStatus = status
	s.refreshCache(ctx, order)
	unlock()

	if status != oldStatus {
		s.notifyStatusChange(ctx, order, oldStatus, status, s.now())
	}
	return nil
}

// ApplyCheckpointEvent применяет входящее Kafka-событие фулфилмента как
// обычное добавление чекпоинта.
func (s *Service) ApplyCheckpointEvent(ctx context.Context, msg messages.CheckpointRecorded) error {
	if msg.TrackedOrderID == 0 {
		return errors.New("tracked_order_id is required")
	}
	_, err := s.AddCheckpoint(ctx, msg.TrackedOrderID, models.CheckpointInput{
		Timestamp:   msg.Timestamp,
		Location:    msg.Location,
		Description: msg.Description,
		Status:      msg.Status,
	})
	return err
}

func (s *Service) load(ctx context.Context, trackedOrderID uint64) (*models.TrackedOrder, *Ledger, error) {
	order, err := s.repo.GetTrackedOrder(ctx, trackedOrderID)
	if err != nil {
		return nil, nil, err
	}
	cps, err := s.repo.ListCheckpoints(ctx, trackedOrderID)
	if err != nil {
		return nil, nil, err
	}
	return order, NewLedger(order.CurrentStatus, cps), nil
}

// applyDerivedStatus пересчитывает статус по леджеру и при изменении
// персистит агрегат. Возвращает новый производный статус.
func (s *Service) applyDerivedStatus(ctx context.Context, order *models.TrackedOrder, ledger *Ledger, oldStatus string) (string, error) {
	newStatus := ledger.CurrentStatus()
	if newStatus != oldStatus {
		if err := s.repo.UpdateTrackedOrder(ctx, order.ID, order.EstimatedDeliveryDate, newStatus); err != nil {
			return "", err
		}
		order.CurrentStatus = newStatus
	}
	s.refreshCache(ctx, order)
	return newStatus, nil
}

// notifyStatusChange — best-effort сторона мутации: нотификация получателю
// и событие в Kafka. Ошибки здесь видимы только в логах, мутация уже
// зафиксирована и отчитывается успехом.
func (s *Service) notifyStatusChange(ctx context.Context, order *models.TrackedOrder, oldStatus, newStatus string, ts time.Time) {
	if s.dispatcher != nil {
		if err := s.dispatcher.Dispatch(ctx, order, newStatus, ts); err != nil {
			slog.Error("notification dispatch failed",
				"tracked_order_id", order.ID, "order_id", order.OrderID,
				"status", newStatus, "error", err.Error())
		}
	}

	if s.producer != nil {
		msg := messages.OrderStatusChanged{
			EventID:        uuid.NewString(),
			TrackedOrderID: order.ID,
			OrderID:        order.OrderID,
			OldStatus:      oldStatus,
			NewStatus:      newStatus,
			ChangedAt:      ts,
		}
		b, err := json.Marshal(msg)
		if err == nil {
			err = s.producer.Publish(ctx, s.topic, []byte(fmt.Sprintf("%d", order.ID)), b)
		}
		if err != nil {
			slog.Error("publish status change failed",
				"tracked_order_id", order.ID, "status", newStatus, "error", err.Error())
		}
	}
}

func (s *Service) refreshCache(ctx context.Context, order *models.TrackedOrder) {
	if s.cache == nil || s.currentTTL <= 0 {
		return
	}
	b, err := json.Marshal(order)
	if err != nil {
		return
	}
	_ = s.cache.Set(ctx, currentKey(order.ID), b, s.currentTTL)
}

func currentKey(id uint64) string {
	return fmt.Sprintf("trackedorder:%d:current", id)
}
