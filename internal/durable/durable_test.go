package durable

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/web3guy0/orderflow/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestIsDeadlockOrLockWait(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("pq: deadlock detected"), true},
		{errors.New("could not serialize access due to concurrent update"), true},
		{errors.New("database is locked"), true},
		{errors.New("SQLITE_BUSY: database is locked"), true},
		{errors.New("record not found"), false},
	}

	for _, tt := range tests {
		got := IsDeadlockOrLockWait(tt.err)
		if got != tt.want {
			t.Errorf("IsDeadlockOrLockWait(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestWithRetrySucceedsWithoutRetry(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	calls := 0
	err := WithRetry(store.DB(), func(tx *gorm.DB) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("WithRetry: %v", err)
	}
	if calls != 1 {
		t.Errorf("fn called %d times, want 1", calls)
	}
}

func TestWithRetryGivesUpOnNonTransientError(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	wantErr := errors.New("validation failed")
	calls := 0
	err := WithRetry(store.DB(), func(tx *gorm.DB) error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("WithRetry() error = %v, want %v", err, wantErr)
	}
	if calls != 1 {
		t.Errorf("fn called %d times for a non-transient error, want 1", calls)
	}
}

func TestOrderRepoInsertAndGet(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	repo := NewOrderRepo(store)

	o := &domain.Order{
		OrderID:     "ord_20260731_0001",
		UserType:    domain.UserLive,
		UserID:      "user-1",
		Symbol:      "EURUSD",
		Kind:        domain.KindBuy,
		Price:       decimal.NewFromInt(100),
		Quantity:    decimal.NewFromInt(1),
		OrderStatus: domain.StatusQueued,
		Status:      domain.StatusQueued,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}

	if err := repo.InsertQueued(o); err != nil {
		t.Fatalf("InsertQueued: %v", err)
	}

	got, err := repo.Get(o.OrderID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Symbol != o.Symbol || got.OrderStatus != domain.StatusQueued {
		t.Errorf("Get() = %+v, want symbol=%s status=%s", got, o.Symbol, domain.StatusQueued)
	}
}

func TestOrderRepoGetMissingIsNotFound(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	repo := NewOrderRepo(store)

	_, err := repo.Get("does-not-exist")
	if !IsNotFound(err) {
		t.Errorf("Get(missing) error = %v, want NotFound", err)
	}
}

func TestOrderRepoUpdateStatus(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	repo := NewOrderRepo(store)

	o := &domain.Order{OrderID: "ord_1", UserType: domain.UserLive, UserID: "u1", OrderStatus: domain.StatusQueued}
	if err := repo.InsertQueued(o); err != nil {
		t.Fatalf("InsertQueued: %v", err)
	}

	if err := repo.UpdateStatus("ord_1", domain.StatusRejected, map[string]any{}); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	got, err := repo.Get("ord_1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.OrderStatus != domain.StatusRejected {
		t.Errorf("OrderStatus = %s, want %s", got.OrderStatus, domain.StatusRejected)
	}
}

func TestOrderRepoUpdateStatusMissingIsNotFound(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	repo := NewOrderRepo(store)

	err := repo.UpdateStatus("missing", domain.StatusRejected, map[string]any{})
	if !IsNotFound(err) {
		t.Errorf("UpdateStatus(missing) error = %v, want NotFound", err)
	}
}

func TestUserRepoLockForUpdateAndSaveMargin(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	userRepo := NewUserRepo(store)

	row := &UserRow{UserType: "live", UserID: "u1", WalletBalance: decimal.NewFromInt(1000), Margin: decimal.Zero}
	if err := store.DB().Create(row).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}

	err := WithRetry(store.DB(), func(tx *gorm.DB) error {
		locked, err := userRepo.LockForUpdate(tx, domain.UserLive, "u1")
		if err != nil {
			return err
		}
		newMargin := locked.Margin.Add(decimal.NewFromInt(50))
		return userRepo.SaveMargin(tx, domain.UserLive, "u1", newMargin, locked.WalletBalance)
	})
	if err != nil {
		t.Fatalf("WithRetry: %v", err)
	}

	got, err := userRepo.Get(domain.UserLive, "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.Margin.Equal(decimal.NewFromInt(50)) {
		t.Errorf("Margin = %s, want 50", got.Margin)
	}
}

func TestWalletRepoInsertTransaction(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	repo := NewWalletRepo(store)

	err := store.DB().Transaction(func(tx *gorm.DB) error {
		return repo.InsertTransaction(tx, &domain.WalletTransaction{
			TransactionID: "txn_1",
			UserRef:       "u1",
			OrderRef:      "ord_1",
			Type:          domain.TxCommission,
			Amount:        decimal.NewFromInt(-5),
			BalanceBefore: decimal.NewFromInt(1000),
			BalanceAfter:  decimal.NewFromInt(995),
		})
	})
	if err != nil {
		t.Fatalf("InsertTransaction: %v", err)
	}

	var count int64
	store.DB().Model(&WalletTransactionRow{}).Where("transaction_id = ?", "txn_1").Count(&count)
	if count != 1 {
		t.Errorf("wallet transaction row count = %d, want 1", count)
	}
}

func TestRejectionRepoInsert(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	repo := NewRejectionRepo(store)

	err := repo.Insert(&domain.RejectionRecord{
		CanonicalOrderID: "ord_1",
		RejectionType:    "validation",
		Reason:           "price must be positive",
		Symbol:           "EURUSD",
		UserID:           "u1",
		UserType:         domain.UserLive,
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	var count int64
	store.DB().Model(&RejectionRow{}).Where("canonical_order_id = ?", "ord_1").Count(&count)
	if count != 1 {
		t.Errorf("rejection row count = %d, want 1", count)
	}
}
