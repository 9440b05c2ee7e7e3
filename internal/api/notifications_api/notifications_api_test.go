package notifications_api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/MarketMinds/OrderPulse/internal/models"
	"github.com/MarketMinds/OrderPulse/internal/notifications"
	"github.com/MarketMinds/OrderPulse/internal/services/notify"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type memNotifyRepo struct {
	recs   map[uint64]notifications.Record
	nextID uint64
}

func newMemNotifyRepo() *memNotifyRepo {
	return &memNotifyRepo{recs: map[uint64]notifications.Record{}}
}

func (m *memNotifyRepo) Add(ctx context.Context, rec notifications.Record) (uint64, error) {
	m.nextID++
	rec.ID = m.nextID
	m.recs[rec.ID] = rec
	return rec.ID, nil
}

func (m *memNotifyRepo) ListByRecipient(ctx context.Context, recipientID uint64) ([]notifications.Record, error) {
	var out []notifications.Record
	for _, r := range m.recs {
		if r.RecipientID == recipientID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

func (m *memNotifyRepo) MarkRead(ctx context.Context, id uint64) error {
	r, ok := m.recs[id]
	if !ok {
		return errors.Wrapf(models.ErrNotFound, "notification %d", id)
	}
	r.IsRead = true
	m.recs[id] = r
	return nil
}

func (m *memNotifyRepo) MarkAllRead(ctx context.Context, recipientID uint64) error {
	for id, r := range m.recs {
		if r.RecipientID == recipientID {
			r.IsRead = true
			m.recs[id] = r
		}
	}
	return nil
}

func (m *memNotifyRepo) UnreadCount(ctx context.Context, recipientID uint64) (int, error) {
	n := 0
	for _, r := range m.recs {
		if r.RecipientID == recipientID && !r.IsRead {
			n++
		}
	}
	return n, nil
}

type memContracts struct {
	contracts map[uint64]*models.Contract
}

func (m *memContracts) RecordRenewalAnswer(ctx context.Context, contractID uint64, accepted bool, newEndDate *time.Time) (*models.Contract, error) {
	c, ok := m.contracts[contractID]
	if !ok {
		return nil, errors.Wrapf(models.ErrNotFound, "contract %d", contractID)
	}
	if accepted && newEndDate != nil {
		c.EndDate = *newEndDate
	}
	c.RenewalRequested = false
	return c, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *notify.Store) {
	t.Helper()
	store := notify.NewStore(newMemNotifyRepo())
	contracts := &memContracts{contracts: map[uint64]*models.Contract{
		3: {ID: 3, BuyerID: 7, SellerID: 8, EndDate: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC), RenewalRequested: true},
	}}
	r := chi.NewRouter()
	r.Route("/v1", New(store, contracts).Routes)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, store
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestNotificationsAPI_ListAndRead(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	id1, err := store.Add(ctx, &notifications.Outbidded{
		Base:      notifications.Base{RecipientID: 7, Timestamp: base},
		ProductID: 42,
	})
	require.NoError(t, err)
	_, err = store.Add(ctx, &notifications.OrderShippingProgress{
		Base:          notifications.Base{RecipientID: 7, Timestamp: base.Add(time.Hour)},
		OrderID:       9000,
		ShippingState: models.OrderStatusShipped,
		DeliveryDate:  base.Add(72 * time.Hour),
	})
	require.NoError(t, err)

	resp := doJSON(t, http.MethodGet, srv.URL+"/v1/recipients/7/notifications", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list map[string][]notificationResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list["notifications"], 2)
	require.Equal(t, notifications.CategoryOrderShippingProgress, list["notifications"][0].Category)
	require.Contains(t, list["notifications"][0].Content, "9000")
	require.Equal(t, "Outbidded", list["notifications"][1].Title)

	resp = doJSON(t, http.MethodGet, srv.URL+"/v1/recipients/7/notifications/unread-count", nil)
	var cnt map[string]int
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cnt))
	require.Equal(t, 2, cnt["unreadCount"])

	resp = doJSON(t, http.MethodPost, fmt.Sprintf("%s/v1/notifications/%d/read", srv.URL, id1), nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, srv.URL+"/v1/notifications/999/read", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, srv.URL+"/v1/recipients/7/notifications/read-all", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, srv.URL+"/v1/recipients/7/notifications/unread-count", nil)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cnt))
	require.Equal(t, 0, cnt["unreadCount"])
}

func TestNotificationsAPI_RenewalAnswer(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()

	newEnd := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/contracts/3/renewal-answer", map[string]any{
		"accepted":   true,
		"newEndDate": newEnd,
	})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	// покупатель получил ответ
	ns, err := store.GetForRecipient(ctx, 7)
	require.NoError(t, err)
	require.Len(t, ns, 1)
	ans, ok := ns[0].(*notifications.ContractRenewalAnswer)
	require.True(t, ok)
	require.True(t, ans.IsAccepted)
	require.Equal(t, uint64(3), ans.ContractID)
	require.Contains(t, ans.Content(), "has been renewed")

	resp = doJSON(t, http.MethodPost, srv.URL+"/v1/contracts/99/renewal-answer", map[string]any{"accepted": false})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
