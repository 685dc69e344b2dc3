package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/orderflow/internal/domain"
)

func TestKeysWrapShardingSensitivePortionInBraces(t *testing.T) {
	cases := []struct {
		name string
		got  string
		want string
	}{
		{"user_holdings", userHoldingsKey("live", "42", "ord_1"), "user_holdings:{live:42}:ord_1"},
		{"user_orders_index", userOrdersIndexKey("live", "42"), "user_orders_index:{live:42}"},
		{"pending_index", pendingIndexKey("EURUSD", "BUY_LIMIT"), "pending_index:{EURUSD}:BUY_LIMIT"},
		{"user_config", userConfigKey("live", "42"), "user:{live:42}:config"},
		{"order_data", orderDataKey("ord_1"), "order_data:ord_1"},
		{"pending_orders", pendingOrdersKey("ord_1"), "pending_orders:ord_1"},
		{"symbol_holders", symbolHoldersKey("EURUSD", "live"), "symbol_holders:EURUSD:live"},
		{"lock key style order_processing", orderProcessingLockKey("ord_1"), "order_processing:ord_1"},
		{"close_payout_applied", closePayoutAppliedKey("ord_1"), "close_payout_applied:ord_1"},
	}
	for _, c := range cases {
		if c.got != c.want {
			t.Errorf("%s key = %q, want %q", c.name, c.got, c.want)
		}
	}
}

func TestOrderFieldsRoundTripsThroughParseOrderFields(t *testing.T) {
	sl := decimal.NewFromFloat(1.09000)
	tp := decimal.NewFromFloat(1.11000)
	cp := decimal.NewFromFloat(1.10500)
	np := decimal.NewFromFloat(12.34)

	now := time.Now().UTC().Round(time.Nanosecond)
	o := &domain.Order{
		OrderID:       "ord_20260101_0001",
		UserType:      domain.UserLive,
		UserID:        "42",
		Symbol:        "EURUSD",
		Kind:          domain.KindBuy,
		Price:         decimal.NewFromFloat(1.10000),
		Quantity:      decimal.NewFromInt(1),
		ContractValue: decimal.NewFromInt(110000),
		Margin:        decimal.NewFromFloat(22.00),
		Commission:    decimal.NewFromFloat(0.2),
		OrderStatus:   domain.StatusOpen,
		Status:        domain.StatusOpen,
		StopLoss:      &sl,
		TakeProfit:    &tp,
		ClosePrice:    &cp,
		NetProfit:     &np,
		Swap:          decimal.NewFromFloat(-0.01),
		CloseMessage:  domain.CloseReasonClosed,
		StoplossID:    "sl_20260101_0001",
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	fields := orderFields(o)
	strFields := make(map[string]string, len(fields))
	for k, v := range fields {
		strFields[k] = v.(string)
	}

	got := parseOrderFields(strFields)
	if got == nil {
		t.Fatal("parseOrderFields returned nil")
	}
	if got.OrderID != o.OrderID || got.Symbol != o.Symbol || got.Kind != o.Kind {
		t.Errorf("identity fields mismatch: got %+v", got)
	}
	if !got.Price.Equal(o.Price) || !got.Margin.Equal(o.Margin) {
		t.Errorf("decimal fields mismatch: got price=%s margin=%s", got.Price, got.Margin)
	}
	if got.StopLoss == nil || !got.StopLoss.Equal(*o.StopLoss) {
		t.Errorf("StopLoss mismatch: got %v", got.StopLoss)
	}
	if got.NetProfit == nil || !got.NetProfit.Equal(*o.NetProfit) {
		t.Errorf("NetProfit mismatch: got %v", got.NetProfit)
	}
	if !got.CreatedAt.Equal(o.CreatedAt) {
		t.Errorf("CreatedAt mismatch: got %v, want %v", got.CreatedAt, o.CreatedAt)
	}
}

func TestParseOrderFieldsEmptyMapIsNil(t *testing.T) {
	if got := parseOrderFields(map[string]string{}); got != nil {
		t.Errorf("parseOrderFields(empty) = %+v, want nil", got)
	}
}

func TestParseOrderFieldsLeavesOptionalPointersNilWhenAbsent(t *testing.T) {
	got := parseOrderFields(map[string]string{"order_id": "ord_1"})
	if got.StopLoss != nil || got.TakeProfit != nil || got.ClosePrice != nil || got.NetProfit != nil {
		t.Errorf("expected nil optional pointers, got %+v", got)
	}
}

func TestParseDecimalInvalidInputReturnsZero(t *testing.T) {
	if got := parseDecimal("not-a-number"); !got.IsZero() {
		t.Errorf("parseDecimal(invalid) = %s, want zero", got)
	}
	if got := parseDecimal(""); !got.IsZero() {
		t.Errorf("parseDecimal(empty) = %s, want zero", got)
	}
}

func TestSameSlotBatchPanicsOnMismatchedTag(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic when mixing tags in one same-slot batch")
		}
	}()
	b := NewUserHoldingsBatch("live", "42")
	b.SetHolding("live", "99", "ord_1", map[string]any{"order_id": "ord_1"})
}

func TestSameSlotBatchAcceptsMatchingTag(t *testing.T) {
	b := NewUserHoldingsBatch("live", "42")
	b.SetHolding("live", "42", "ord_1", map[string]any{"order_id": "ord_1"}).
		AddToIndex("live", "42", "ord_1")
	if len(b.ops) != 2 {
		t.Errorf("ops = %d, want 2", len(b.ops))
	}
}

func TestCrossSlotSequenceRunsInOrderAndStopsOnError(t *testing.T) {
	var ran []int
	wantErr := errors.New("boom")

	seq := NewCrossSlotSequence().
		Add(func(ctx context.Context) error { ran = append(ran, 1); return nil }).
		Add(func(ctx context.Context) error { ran = append(ran, 2); return wantErr }).
		Add(func(ctx context.Context) error { ran = append(ran, 3); return nil })

	err := seq.Run(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, wantErr) {
		t.Errorf("error = %v, want wrapping %v", err, wantErr)
	}
	if len(ran) != 2 || ran[0] != 1 || ran[1] != 2 {
		t.Errorf("ran = %v, want [1 2] (step 3 should not run)", ran)
	}
}

func TestCrossSlotSequenceEmptyIsNoop(t *testing.T) {
	if err := NewCrossSlotSequence().Run(context.Background()); err != nil {
		t.Errorf("empty sequence returned error: %v", err)
	}
}
