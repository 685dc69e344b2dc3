package pending

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/orderflow/internal/cache"
	"github.com/web3guy0/orderflow/internal/domain"
	"github.com/web3guy0/orderflow/internal/execclient"
)

type fakeExecutor struct {
	resp      *execclient.Response
	err       error
	callCount int
	lastOrder *domain.Order
}

func (f *fakeExecutor) InstantExecute(o *domain.Order) (*execclient.Response, error) {
	f.callCount++
	f.lastOrder = o
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func newTestCache(t *testing.T) *cache.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return cache.New(rdb)
}

// TestPendingBuyLimitTrigger exercises spec.md §8 scenario 3: a pending
// BUY_LIMIT order whose compare_price sits above the current ask triggers
// exactly once and is promoted to OPEN via the local execution flow.
func TestPendingBuyLimitTrigger(t *testing.T) {
	ctx := context.Background()
	store := newTestCache(t)

	order := &domain.Order{
		OrderID:     "ord_1",
		UserType:    domain.UserLive,
		UserID:      "42",
		Symbol:      "EURUSD",
		Kind:        domain.KindBuyLimit,
		Price:       decimal.NewFromFloat(1.09500),
		Quantity:    decimal.NewFromInt(1),
		OrderStatus: domain.StatusPending,
		Status:      domain.StatusPending,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := store.WriteOrderData(ctx, order); err != nil {
		t.Fatalf("WriteOrderData: %v", err)
	}
	rec := &domain.PendingRecord{
		OrderID:      "ord_1",
		Symbol:       "EURUSD",
		PendingType:  domain.KindBuyLimit,
		ComparePrice: decimal.NewFromFloat(1.09498), // user_price(1.09500) - half_spread(0.00002)
		UserPrice:    decimal.NewFromFloat(1.09500),
		UserType:     domain.UserLive,
		UserID:       "42",
		Quantity:     decimal.NewFromInt(1),
	}
	if err := store.WritePendingIndex(ctx, rec); err != nil {
		t.Fatalf("WritePendingIndex: %v", err)
	}

	exec := &fakeExecutor{resp: &execclient.Response{
		Flow:            domain.FlowLocal,
		ExecPrice:       decimal.NewFromFloat(1.09499),
		ContractValue:   decimal.NewFromInt(109499),
		MarginUSD:       decimal.NewFromFloat(21.90),
		CommissionEntry: decimal.NewFromFloat(0.2),
	}}

	var triggered []*domain.Order
	w := New(store, exec, func(ctx context.Context, o *domain.Order) {
		triggered = append(triggered, o)
	})

	// Market ask moves to 1.09490, below compare_price: BUY_LIMIT should fire.
	w.OnTick(ctx, "EURUSD", 1.09490)

	if exec.callCount != 1 {
		t.Fatalf("InstantExecute called %d times, want 1", exec.callCount)
	}
	if len(triggered) != 1 {
		t.Fatalf("onTrigger called %d times, want 1", len(triggered))
	}
	if triggered[0].OrderStatus != domain.StatusOpen {
		t.Errorf("triggered order status = %s, want OPEN", triggered[0].OrderStatus)
	}
	if !triggered[0].Price.Equal(exec.resp.ExecPrice) {
		t.Errorf("triggered order price = %s, want exec price %s", triggered[0].Price, exec.resp.ExecPrice)
	}

	ids, err := store.ScanPendingIndex(ctx, "EURUSD", string(domain.KindBuyLimit), "-inf", "+inf")
	if err != nil {
		t.Fatalf("ScanPendingIndex: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("pending index still contains %v after trigger, want empty", ids)
	}

	got, err := store.GetOrderData(ctx, "ord_1")
	if err != nil {
		t.Fatalf("GetOrderData: %v", err)
	}
	if got.OrderStatus != domain.StatusOpen {
		t.Errorf("mirrored order status = %s, want OPEN", got.OrderStatus)
	}

	// Replaying the same tick must not trigger a second time: the index
	// member is already gone.
	w.OnTick(ctx, "EURUSD", 1.09490)
	if exec.callCount != 1 {
		t.Errorf("InstantExecute called %d times after replayed tick, want still 1", exec.callCount)
	}
	if len(triggered) != 1 {
		t.Errorf("onTrigger called %d times after replayed tick, want still 1", len(triggered))
	}
}

// TestPendingTriggerSkipsWhenStatusAlreadyAdvanced guards the idempotency
// note in spec.md §4.7: a member observed twice before the index deletion
// propagates must not double-dispatch once the order is no longer PENDING.
func TestPendingTriggerSkipsWhenStatusAlreadyAdvanced(t *testing.T) {
	ctx := context.Background()
	store := newTestCache(t)

	order := &domain.Order{
		OrderID:     "ord_1",
		Symbol:      "EURUSD",
		Kind:        domain.KindBuyLimit,
		OrderStatus: domain.StatusOpen, // already promoted by a concurrent evaluation
		Status:      domain.StatusOpen,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := store.WriteOrderData(ctx, order); err != nil {
		t.Fatalf("WriteOrderData: %v", err)
	}
	rec := &domain.PendingRecord{
		OrderID:      "ord_1",
		Symbol:       "EURUSD",
		PendingType:  domain.KindBuyLimit,
		ComparePrice: decimal.NewFromFloat(1.09498),
		UserPrice:    decimal.NewFromFloat(1.09500),
	}
	if err := store.WritePendingIndex(ctx, rec); err != nil {
		t.Fatalf("WritePendingIndex: %v", err)
	}

	exec := &fakeExecutor{}
	w := New(store, exec, nil)
	w.OnTick(ctx, "EURUSD", 1.09490)

	if exec.callCount != 0 {
		t.Errorf("InstantExecute called %d times, want 0 (order no longer PENDING)", exec.callCount)
	}
}

func TestDirectionForMatchesSpecPolarity(t *testing.T) {
	cases := []struct {
		kind domain.OrderKind
		want direction
	}{
		{domain.KindBuyLimit, triggersBelow},
		{domain.KindSellStop, triggersBelow},
		{domain.KindSellLimit, triggersAbove},
		{domain.KindBuyStop, triggersAbove},
	}
	for _, c := range cases {
		if got := directionFor(c.kind); got != c.want {
			t.Errorf("directionFor(%s) = %v, want %v", c.kind, got, c.want)
		}
	}
}
