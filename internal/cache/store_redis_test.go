package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/orderflow/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb)
}

func TestStoreWriteAndGetOrderDataRoundTrips(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	o := &domain.Order{
		OrderID:     "ord_1",
		UserType:    domain.UserLive,
		UserID:      "42",
		Symbol:      "EURUSD",
		Kind:        domain.KindBuy,
		Price:       decimal.NewFromFloat(1.1),
		Quantity:    decimal.NewFromInt(1),
		OrderStatus: domain.StatusOpen,
		Status:      domain.StatusOpen,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := store.WriteOrderData(ctx, o); err != nil {
		t.Fatalf("WriteOrderData: %v", err)
	}

	got, err := store.GetOrderData(ctx, "ord_1")
	if err != nil {
		t.Fatalf("GetOrderData: %v", err)
	}
	if got.Symbol != "EURUSD" || got.OrderStatus != domain.StatusOpen {
		t.Errorf("GetOrderData() = %+v", got)
	}
}

func TestStoreGetOrderDataMissingReturnsErrMiss(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetOrderData(context.Background(), "does-not-exist")
	if err != ErrMiss {
		t.Errorf("GetOrderData(missing) error = %v, want ErrMiss", err)
	}
}

func TestStoreDeleteOrderDataRemovesTerminalRecord(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	o := &domain.Order{OrderID: "ord_1", OrderStatus: domain.StatusClosed, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	if err := store.WriteOrderData(ctx, o); err != nil {
		t.Fatalf("WriteOrderData: %v", err)
	}
	if err := store.DeleteOrderData(ctx, "ord_1"); err != nil {
		t.Fatalf("DeleteOrderData: %v", err)
	}
	if _, err := store.GetOrderData(ctx, "ord_1"); err != ErrMiss {
		t.Errorf("GetOrderData after delete = %v, want ErrMiss", err)
	}
}

func TestAcquireOrderProcessingIsExclusiveUntilReleased(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	ok, err := store.AcquireOrderProcessing(ctx, "ord_1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}

	ok, err = store.AcquireOrderProcessing(ctx, "ord_1", time.Minute)
	if err != nil || ok {
		t.Fatalf("second acquire while held: ok=%v err=%v, want ok=false", ok, err)
	}

	if err := store.ReleaseOrderProcessing(ctx, "ord_1"); err != nil {
		t.Fatalf("ReleaseOrderProcessing: %v", err)
	}

	ok, err = store.AcquireOrderProcessing(ctx, "ord_1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("acquire after release: ok=%v err=%v", ok, err)
	}
}

func TestClosePayoutAppliedGuardOnlyFiresOnce(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	first, err := store.ClosePayoutApplied(ctx, "ord_1", time.Hour)
	if err != nil || !first {
		t.Fatalf("first call: ok=%v err=%v", first, err)
	}
	second, err := store.ClosePayoutApplied(ctx, "ord_1", time.Hour)
	if err != nil || second {
		t.Fatalf("replayed call: ok=%v err=%v, want false (already applied)", second, err)
	}
}

func TestPendingIndexWriteScanRemoveLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	rec := &domain.PendingRecord{
		OrderID:      "ord_1",
		Symbol:       "EURUSD",
		PendingType:  domain.KindBuyLimit,
		ComparePrice: decimal.NewFromFloat(1.09498),
		UserPrice:    decimal.NewFromFloat(1.09500),
		UserType:     domain.UserLive,
		UserID:       "42",
		Quantity:     decimal.NewFromInt(1),
	}
	if err := store.WritePendingIndex(ctx, rec); err != nil {
		t.Fatalf("WritePendingIndex: %v", err)
	}

	symbols, err := store.ActiveSymbols(ctx)
	if err != nil || len(symbols) != 1 || symbols[0] != "EURUSD" {
		t.Fatalf("ActiveSymbols() = %v, err=%v", symbols, err)
	}

	// Market ask moves to 1.09490 <= compare_price 1.09498: should be in range.
	ids, err := store.ScanPendingIndex(ctx, "EURUSD", string(domain.KindBuyLimit), "1.09490", "+inf")
	if err != nil {
		t.Fatalf("ScanPendingIndex: %v", err)
	}
	if len(ids) != 1 || ids[0] != "ord_1" {
		t.Fatalf("ScanPendingIndex() = %v, want [ord_1]", ids)
	}

	meta, err := store.PendingMeta(ctx, "ord_1")
	if err != nil {
		t.Fatalf("PendingMeta: %v", err)
	}
	if !meta.UserPrice.Equal(rec.UserPrice) {
		t.Errorf("PendingMeta.UserPrice = %s, want %s", meta.UserPrice, rec.UserPrice)
	}

	if err := store.RemovePendingIndex(ctx, "EURUSD", string(domain.KindBuyLimit), "ord_1"); err != nil {
		t.Fatalf("RemovePendingIndex: %v", err)
	}
	if _, err := store.PendingMeta(ctx, "ord_1"); err != ErrMiss {
		t.Errorf("PendingMeta after remove = %v, want ErrMiss", err)
	}
	ids, err = store.ScanPendingIndex(ctx, "EURUSD", string(domain.KindBuyLimit), "-inf", "+inf")
	if err != nil || len(ids) != 0 {
		t.Errorf("ScanPendingIndex after remove = %v, err=%v, want empty", ids, err)
	}
}

func TestSymbolHoldersAddRemove(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.AddSymbolHolder(ctx, "EURUSD", "live", "live:42"); err != nil {
		t.Fatalf("AddSymbolHolder: %v", err)
	}
	holders, err := store.SymbolHolders(ctx, "EURUSD", "live")
	if err != nil || len(holders) != 1 || holders[0] != "live:42" {
		t.Fatalf("SymbolHolders() = %v, err=%v", holders, err)
	}
	if err := store.RemoveSymbolHolder(ctx, "EURUSD", "live", "live:42"); err != nil {
		t.Fatalf("RemoveSymbolHolder: %v", err)
	}
	holders, err = store.SymbolHolders(ctx, "EURUSD", "live")
	if err != nil || len(holders) != 0 {
		t.Fatalf("SymbolHolders after remove = %v, err=%v", holders, err)
	}
}

func TestSameSlotBatchExecutesAgainstRealPipeline(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	batch := NewUserHoldingsBatch("live", "42")
	batch.SetHolding("live", "42", "ord_1", map[string]any{"order_id": "ord_1", "symbol": "EURUSD"})
	batch.AddToIndex("live", "42", "ord_1")

	if err := store.Exec(ctx, batch); err != nil {
		t.Fatalf("Exec: %v", err)
	}

	holding, err := store.rdb.HGetAll(ctx, userHoldingsKey("live", "42", "ord_1")).Result()
	if err != nil || holding["symbol"] != "EURUSD" {
		t.Fatalf("holding = %v, err=%v", holding, err)
	}
	members, err := store.rdb.SMembers(ctx, userOrdersIndexKey("live", "42")).Result()
	if err != nil || len(members) != 1 || members[0] != "ord_1" {
		t.Fatalf("index members = %v, err=%v", members, err)
	}
}
