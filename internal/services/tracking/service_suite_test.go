package tracking

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/MarketMinds/OrderPulse/internal/broker/messages"
	"github.com/MarketMinds/OrderPulse/internal/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type fakeRepo struct {
	mu      sync.Mutex
	orders  map[uint64]*models.TrackedOrder
	cps     map[uint64]models.OrderCheckpoint
	nextCp  uint64
	nextOrd uint64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		orders: map[uint64]*models.TrackedOrder{},
		cps:    map[uint64]models.OrderCheckpoint{},
	}
}

func (f *fakeRepo) seedOrder(status string) *models.TrackedOrder {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextOrd++
	o := &models.TrackedOrder{
		ID:                    f.nextOrd,
		OrderID:               f.nextOrd + 100,
		CurrentStatus:         status,
		EstimatedDeliveryDate: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
	}
	f.orders[o.ID] = o
	return o
}

func (f *fakeRepo) CreateTrackedOrder(ctx context.Context, in models.TrackedOrderCreateInput, initial models.CheckpointInput) (*models.TrackedOrder, error) {
	f.mu.Lock()
	f.nextOrd++
	o := &models.TrackedOrder{
		ID:                    f.nextOrd,
		OrderID:               in.OrderID,
		CurrentStatus:         initial.Status,
		EstimatedDeliveryDate: in.EstimatedDeliveryDate,
		DeliveryAddress:       in.DeliveryAddress,
	}
	f.orders[o.ID] = o
	f.mu.Unlock()
	_, _ = f.AddCheckpoint(ctx, o.ID, initial)
	return o, nil
}

func (f *fakeRepo) GetTrackedOrder(ctx context.Context, id uint64) (*models.TrackedOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return nil, errors.Wrapf(models.ErrNotFound, "tracked order %d", id)
	}
	cp := *o
	return &cp, nil
}

func (f *fakeRepo) UpdateTrackedOrder(ctx context.Context, id uint64, estimated time.Time, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return errors.Wrapf(models.ErrNotFound, "tracked order %d", id)
	}
	o.EstimatedDeliveryDate = estimated
	o.CurrentStatus = status
	return nil
}

func (f *fakeRepo) ListCheckpoints(ctx context.Context, trackedOrderID uint64) ([]models.OrderCheckpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.OrderCheckpoint
	for _, c := range f.cps {
		if c.TrackedOrderID == trackedOrderID {
			out = append(out, c)
		}
	}
	// порядок записи, как в хранилище
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeRepo) GetCheckpoint(ctx context.Context, id uint64) (*models.OrderCheckpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.cps[id]
	if !ok {
		return nil, errors.Wrapf(models.ErrNotFound, "checkpoint %d", id)
	}
	return &c, nil
}

func (f *fakeRepo) AddCheckpoint(ctx context.Context, trackedOrderID uint64, in models.CheckpointInput) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextCp++
	f.cps[f.nextCp] = models.OrderCheckpoint{
		ID:             f.nextCp,
		TrackedOrderID: trackedOrderID,
		Timestamp:      in.Timestamp,
		Location:       in.Location,
		Description:    in.Description,
		Status:         in.Status,
	}
	return f.nextCp, nil
}

func (f *fakeRepo) UpdateCheckpoint(ctx context.Context, id uint64, in models.CheckpointInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.cps[id]
	if !ok {
		return errors.Wrapf(models.ErrNotFound, "checkpoint %d", id)
	}
	c.Timestamp, c.Location, c.Description, c.Status = in.Timestamp, in.Location, in.Description, in.Status
	f.cps[id] = c
	return nil
}

func (f *fakeRepo) DeleteCheckpoint(ctx context.Context, id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.cps[id]; !ok {
		return errors.Wrapf(models.ErrNotFound, "checkpoint %d", id)
	}
	delete(f.cps, id)
	return nil
}

type dispatchCall struct {
	trackedOrderID uint64
	status         string
	ts             time.Time
}

type fakeDispatcher struct {
	mu    sync.Mutex
	calls []dispatchCall
	err   error
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, order *models.TrackedOrder, newStatus string, ts time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, dispatchCall{trackedOrderID: order.ID, status: newStatus, ts: ts})
	return d.err
}

func (d *fakeDispatcher) snapshot() []dispatchCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]dispatchCall, len(d.calls))
	copy(out, d.calls)
	return out
}

func (d *fakeDispatcher) reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = nil
}

type fakeProducer struct {
	mu     sync.Mutex
	topics []string
	values [][]byte
	err    error
}

func (p *fakeProducer) Publish(ctx context.Context, topic string, key, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.values = append(p.values, value)
	return p.err
}

func at(h, m int) time.Time {
	return time.Date(2025, 6, 1, h, m, 0, 0, time.UTC)
}

type ServiceSuite struct {
	suite.Suite

	repo *fakeRepo
	disp *fakeDispatcher
	svc  *Service
}

func (s *ServiceSuite) SetupTest() {
	s.repo = newFakeRepo()
	s.disp = &fakeDispatcher{}
	s.svc = New(s.repo, s.disp, nil, 0)
}

func (s *ServiceSuite) TestAddCheckpoint_StatusChangeDispatchesOnce() {
	order := s.repo.seedOrder(models.OrderStatusProcessing)

	_, err := s.svc.AddCheckpoint(context.Background(), order.ID, models.CheckpointInput{
		Timestamp: at(10, 0),
		Status:    models.OrderStatusShipped,
	})
	s.Require().NoError(err)

	got, _ := s.repo.GetTrackedOrder(context.Background(), order.ID)
	s.Require().Equal(models.OrderStatusShipped, got.CurrentStatus)

	calls := s.disp.snapshot()
	s.Require().Len(calls, 1)
	s.Require().Equal(models.OrderStatusShipped, calls[0].status)
	s.Require().Equal(at(10, 0), calls[0].ts)
}

func (s *ServiceSuite) TestAddCheckpoint_OutOfOrderInsertNoDispatch() {
	order := s.repo.seedOrder(models.OrderStatusProcessing)
	ctx := context.Background()

	_, err := s.svc.AddCheckpoint(ctx, order.ID, models.CheckpointInput{Timestamp: at(10, 0), Status: models.OrderStatusShipped})
	s.Require().NoError(err)
	s.Require().Len(s.disp.snapshot(), 1)

	// вставка "в прошлое": статус остаётся SHIPPED, нотификаций ноль
	_, err = s.svc.AddCheckpoint(ctx, order.ID, models.CheckpointInput{Timestamp: at(9, 0), Status: models.OrderStatusProcessing})
	s.Require().NoError(err)

	got, _ := s.repo.GetTrackedOrder(ctx, order.ID)
	s.Require().Equal(models.OrderStatusShipped, got.CurrentStatus)
	s.Require().Len(s.disp.snapshot(), 1)
}

func (s *ServiceSuite) TestAddCheckpoint_UnknownStatusRejected() {
	order := s.repo.seedOrder(models.OrderStatusProcessing)

	_, err := s.svc.AddCheckpoint(context.Background(), order.ID, models.CheckpointInput{
		Timestamp: at(10, 0),
		Status:    "TELEPORTED",
	})
	s.Require().ErrorIs(err, models.ErrInvalidTransition)
}

func (s *ServiceSuite) TestAddCheckpoint_OrderNotFound() {
	_, err := s.svc.AddCheckpoint(context.Background(), 777, models.CheckpointInput{
		Timestamp: at(10, 0),
		Status:    models.OrderStatusShipped,
	})
	s.Require().ErrorIs(err, models.ErrNotFound)
}

func (s *ServiceSuite) TestAddCheckpoint_ConcurrentMutationsSerializePerOrder() {
	order := s.repo.seedOrder(models.OrderStatusProcessing)
	ctx := context.Background()

	const n = 50
	errCh := make(chan error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			status := models.OrderStatusInTransit
			if i%2 == 1 {
				status = models.OrderStatusOutForDelivery
			}
			_, err := s.svc.AddCheckpoint(ctx, order.ID, models.CheckpointInput{
				Timestamp: at(10, 0).Add(time.Duration(i) * time.Minute),
				Status:    status,
			})
			errCh <- err
		}(i)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		s.Require().NoError(err)
	}

	cps, _ := s.repo.ListCheckpoints(ctx, order.ID)
	s.Require().Len(cps, n)

	// порядок выполнения горутин недетерминирован, но чекпоинт с
	// максимальным Timestamp — нет: агрегат обязан сойтись к его статусу
	// и совпасть с пересчётом по полному леджеру
	got, _ := s.repo.GetTrackedOrder(ctx, order.ID)
	s.Require().Equal(models.OrderStatusOutForDelivery, got.CurrentStatus)
	s.Require().Equal(NewLedger(got.CurrentStatus, cps).CurrentStatus(), got.CurrentStatus)

	// каждая мутация шлёт не больше одной нотификации
	calls := s.disp.snapshot()
	s.Require().NotEmpty(calls)
	s.Require().LessOrEqual(len(calls), n)
	for _, c := range calls {
		s.Require().Equal(order.ID, c.trackedOrderID)
		s.Require().True(models.IsValidStatus(c.status))
	}
}

func (s *ServiceSuite) TestDispatchFailureDoesNotFailMutation() {
	order := s.repo.seedOrder(models.OrderStatusProcessing)
	s.disp.err = errors.New("notification store down")

	_, err := s.svc.AddCheckpoint(context.Background(), order.ID, models.CheckpointInput{
		Timestamp: at(10, 0),
		Status:    models.OrderStatusShipped,
	})
	s.Require().NoError(err)

	// мутация видима несмотря на упавший dispatch
	got, _ := s.repo.GetTrackedOrder(context.Background(), order.ID)
	s.Require().Equal(models.OrderStatusShipped, got.CurrentStatus)
	s.Require().Len(s.disp.snapshot(), 1)
}

func (s *ServiceSuite) TestUpdateCheckpoint_MovesDerivedStatus() {
	order := s.repo.seedOrder(models.OrderStatusProcessing)
	ctx := context.Background()

	id1, _ := s.svc.AddCheckpoint(ctx, order.ID, models.CheckpointInput{Timestamp: at(9, 0), Status: models.OrderStatusProcessing})
	_, _ = s.svc.AddCheckpoint(ctx, order.ID, models.CheckpointInput{Timestamp: at(10, 0), Status: models.OrderStatusShipped})
	s.disp.reset()

	// первый чекпоинт уезжает позже всех и перетягивает статус
	err := s.svc.UpdateCheckpoint(ctx, id1, models.CheckpointInput{
		Timestamp: at(11, 0),
		Status:    models.OrderStatusInTransit,
	})
	s.Require().NoError(err)

	got, _ := s.repo.GetTrackedOrder(ctx, order.ID)
	s.Require().Equal(models.OrderStatusInTransit, got.CurrentStatus)
	calls := s.disp.snapshot()
	s.Require().Len(calls, 1)
	s.Require().Equal(at(11, 0), calls[0].ts)
}

func (s *ServiceSuite) TestUpdateCheckpoint_ZeroTimestampDefaultsToNow() {
	order := s.repo.seedOrder(models.OrderStatusProcessing)
	ctx := context.Background()
	now := at(15, 30)
	s.svc.now = func() time.Time { return now }

	id1, _ := s.svc.AddCheckpoint(ctx, order.ID, models.CheckpointInput{Timestamp: at(9, 0), Status: models.OrderStatusProcessing})
	_, _ = s.svc.AddCheckpoint(ctx, order.ID, models.CheckpointInput{Timestamp: at(10, 0), Status: models.OrderStatusShipped})
	s.disp.reset()

	// пустой Timestamp означает "сейчас", а не нулевое время: чекпоинт не
	// должен уехать в далёкое прошлое и молча сменить производный статус
	s.Require().NoError(s.svc.UpdateCheckpoint(ctx, id1, models.CheckpointInput{Status: models.OrderStatusInTransit}))

	cp, _ := s.repo.GetCheckpoint(ctx, id1)
	s.Require().Equal(now, cp.Timestamp)

	got, _ := s.repo.GetTrackedOrder(ctx, order.ID)
	s.Require().Equal(models.OrderStatusInTransit, got.CurrentStatus)
	calls := s.disp.snapshot()
	s.Require().Len(calls, 1)
	s.Require().Equal(now, calls[0].ts)
}

func (s *ServiceSuite) TestUpdateCheckpoint_NotFound() {
	err := s.svc.UpdateCheckpoint(context.Background(), 5, models.CheckpointInput{
		Timestamp: at(9, 0),
		Status:    models.OrderStatusShipped,
	})
	s.Require().ErrorIs(err, models.ErrNotFound)
}

func (s *ServiceSuite) TestDeleteCheckpoint_UsesWallClockTimestamp() {
	order := s.repo.seedOrder(models.OrderStatusProcessing)
	now := at(15, 30)
	s.svc.now = func() time.Time { return now }
	ctx := context.Background()

	_, _ = s.svc.AddCheckpoint(ctx, order.ID, models.CheckpointInput{Timestamp: at(9, 0), Status: models.OrderStatusProcessing})
	id2, _ := s.svc.AddCheckpoint(ctx, order.ID, models.CheckpointInput{Timestamp: at(10, 0), Status: models.OrderStatusShipped})
	s.disp.reset()

	s.Require().NoError(s.svc.DeleteCheckpoint(ctx, id2))

	got, _ := s.repo.GetTrackedOrder(ctx, order.ID)
	s.Require().Equal(models.OrderStatusProcessing, got.CurrentStatus)
	calls := s.disp.snapshot()
	s.Require().Len(calls, 1)
	// у удалённого чекпоинта больше нет смысла как у события — время стены
	s.Require().Equal(now, calls[0].ts)
}

func (s *ServiceSuite) TestRevert_ExampleScenario() {
	// Сценарий: PROCESSING -> чекпоинт SHIPPED в 10:00 -> чекпоинт
	// PROCESSING в 09:00 (без эффекта) -> Revert убирает 10:00.
	order := s.repo.seedOrder(models.OrderStatusProcessing)
	ctx := context.Background()

	_, _ = s.svc.AddCheckpoint(ctx, order.ID, models.CheckpointInput{Timestamp: at(10, 0), Status: models.OrderStatusShipped})
	calls := s.disp.snapshot()
	s.Require().Len(calls, 1)
	s.Require().Equal(models.OrderStatusShipped, calls[0].status)

	_, _ = s.svc.AddCheckpoint(ctx, order.ID, models.CheckpointInput{Timestamp: at(9, 0), Status: models.OrderStatusProcessing})
	s.Require().Len(s.disp.snapshot(), 1)

	s.Require().NoError(s.svc.Revert(ctx, order.ID))
	got, _ := s.repo.GetTrackedOrder(ctx, order.ID)
	s.Require().Equal(models.OrderStatusProcessing, got.CurrentStatus)
	calls = s.disp.snapshot()
	s.Require().Len(calls, 2)
	s.Require().Equal(models.OrderStatusProcessing, calls[1].status)
}

func (s *ServiceSuite) TestRevert_SingleCheckpointIsNoOp() {
	order := s.repo.seedOrder(models.OrderStatusProcessing)
	ctx := context.Background()

	_, _ = s.svc.AddCheckpoint(ctx, order.ID, models.CheckpointInput{Timestamp: at(10, 0), Status: models.OrderStatusShipped})
	s.disp.reset()

	s.Require().ErrorIs(s.svc.Revert(ctx, order.ID), models.ErrNoOp)

	// леджер и агрегат не тронуты
	cps, _ := s.repo.ListCheckpoints(ctx, order.ID)
	s.Require().Len(cps, 1)
	got, _ := s.repo.GetTrackedOrder(ctx, order.ID)
	s.Require().Equal(models.OrderStatusShipped, got.CurrentStatus)
	s.Require().Empty(s.disp.snapshot())
}

func (s *ServiceSuite) TestSetEstimatedDeliveryDate() {
	order := s.repo.seedOrder(models.OrderStatusShipped)
	ctx := context.Background()
	newDate := time.Date(2025, 7, 15, 0, 0, 0, 0, time.UTC)

	// переход вне графа отклоняется без частичной мутации
	err := s.svc.SetEstimatedDeliveryDate(ctx, order.ID, newDate, "LOST")
	s.Require().ErrorIs(err, models.ErrInvalidTransition)
	got, _ := s.repo.GetTrackedOrder(ctx, order.ID)
	s.Require().Equal(models.OrderStatusShipped, got.CurrentStatus)
	s.Require().NotEqual(newDate, got.EstimatedDeliveryDate)
	s.Require().Empty(s.disp.snapshot())

	// терминальный статус достижим из любого нетерминального
	s.Require().NoError(s.svc.SetEstimatedDeliveryDate(ctx, order.ID, newDate, models.OrderStatusCanceled))
	got, _ = s.repo.GetTrackedOrder(ctx, order.ID)
	s.Require().Equal(models.OrderStatusCanceled, got.CurrentStatus)
	s.Require().Equal(newDate, got.EstimatedDeliveryDate)
	s.Require().Len(s.disp.snapshot(), 1)

	// та же дата, тот же статус — без нотификации
	s.Require().NoError(s.svc.SetEstimatedDeliveryDate(ctx, order.ID, newDate, models.OrderStatusCanceled))
	s.Require().Len(s.disp.snapshot(), 1)

	// из терминального пути назад нет
	s.Require().ErrorIs(
		s.svc.SetEstimatedDeliveryDate(ctx, order.ID, newDate, models.OrderStatusShipped),
		models.ErrInvalidTransition)
}

func (s *ServiceSuite) TestStatusChangePublishesEvent() {
	order := s.repo.seedOrder(models.OrderStatusProcessing)
	prod := &fakeProducer{}
	svc := New(s.repo, s.disp, nil, 0).WithProducer(prod, "order.status_changed")

	_, err := svc.AddCheckpoint(context.Background(), order.ID, models.CheckpointInput{
		Timestamp: at(10, 0),
		Status:    models.OrderStatusShipped,
	})
	s.Require().NoError(err)

	s.Require().Equal([]string{"order.status_changed"}, prod.topics)
	var msg messages.OrderStatusChanged
	s.Require().NoError(json.Unmarshal(prod.values[0], &msg))
	s.Require().Equal(order.ID, msg.TrackedOrderID)
	s.Require().Equal(models.OrderStatusProcessing, msg.OldStatus)
	s.Require().Equal(models.OrderStatusShipped, msg.NewStatus)
	s.Require().NotEmpty(msg.EventID)
}

func (s *ServiceSuite) TestDerivedStatusInvariantHolds() {
	// После каждой операции статус агрегата равен статусу чекпоинта с
	// максимальным Timestamp из оставшихся.
	order := s.repo.seedOrder(models.OrderStatusProcessing)
	ctx := context.Background()

	check := func() {
		cps, _ := s.repo.ListCheckpoints(ctx, order.ID)
		got, _ := s.repo.GetTrackedOrder(ctx, order.ID)
		s.Require().Equal(NewLedger(got.CurrentStatus, cps).CurrentStatus(), got.CurrentStatus)
	}

	_, _ = s.svc.AddCheckpoint(ctx, order.ID, models.CheckpointInput{Timestamp: at(9, 0), Status: models.OrderStatusProcessing})
	check()
	_, _ = s.svc.AddCheckpoint(ctx, order.ID, models.CheckpointInput{Timestamp: at(11, 0), Status: models.OrderStatusInTransit})
	check()
	id3, _ := s.svc.AddCheckpoint(ctx, order.ID, models.CheckpointInput{Timestamp: at(10, 0), Status: models.OrderStatusShipped})
	check()
	s.Require().NoError(s.svc.UpdateCheckpoint(ctx, id3, models.CheckpointInput{Timestamp: at(12, 0), Status: models.OrderStatusOutForDelivery}))
	check()
	s.Require().NoError(s.svc.DeleteCheckpoint(ctx, id3))
	check()
	s.Require().NoError(s.svc.Revert(ctx, order.ID))
	check()
}

func (s *ServiceSuite) TestApplyCheckpointEvent() {
	order := s.repo.seedOrder(models.OrderStatusProcessing)

	s.Require().Error(s.svc.ApplyCheckpointEvent(context.Background(), messages.CheckpointRecorded{}))

	err := s.svc.ApplyCheckpointEvent(context.Background(), messages.CheckpointRecorded{
		TrackedOrderID: order.ID,
		Timestamp:      at(10, 0),
		Description:    "Arrived at sorting hub",
		Status:         models.OrderStatusInTransit,
	})
	s.Require().NoError(err)
	s.Require().Len(s.disp.snapshot(), 1)
}

func (s *ServiceSuite) TestCreateTrackedOrder() {
	ctx := context.Background()

	_, err := s.svc.CreateTrackedOrder(ctx, models.TrackedOrderCreateInput{})
	s.Require().Error(err)

	order, err := s.svc.CreateTrackedOrder(ctx, models.TrackedOrderCreateInput{
		OrderID:               500,
		BuyerID:               42,
		EstimatedDeliveryDate: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		DeliveryAddress:       "10 Main St",
	})
	s.Require().NoError(err)
	s.Require().Equal(models.OrderStatusProcessing, order.CurrentStatus)

	cps, _ := s.repo.ListCheckpoints(ctx, order.ID)
	s.Require().Len(cps, 1)
	s.Require().Equal(models.OrderStatusProcessing, cps[0].Status)
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}
