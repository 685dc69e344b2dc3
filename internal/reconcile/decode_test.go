package reconcile

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/orderflow/internal/domain"
)

func TestDecodeCloseConfirmed(t *testing.T) {
	body := []byte(`{
		"type": "ORDER_CLOSE_CONFIRMED",
		"order_id": "ord_20250930_0001",
		"user_id": "42", "user_type": "live",
		"order_status": "CLOSED",
		"close_price": 1.23456789, "net_profit": 12.34, "commission": 0.5,
		"profit_usd": 12.84, "swap": -0.01,
		"trigger_lifecycle_id": "cls_20250930_0001",
		"trigger_kind": "close",
		"close_origin": "local"
	}`)

	msg, err := Decode(body)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if msg.Type != domain.MsgOrderCloseConfirmed {
		t.Errorf("Type = %s, want %s", msg.Type, domain.MsgOrderCloseConfirmed)
	}
	if msg.OrderID != "ord_20250930_0001" {
		t.Errorf("OrderID = %s", msg.OrderID)
	}
	if !msg.ClosePrice.Equal(decimal.RequireFromString("1.23456789")) {
		t.Errorf("ClosePrice = %s", msg.ClosePrice)
	}
	if !msg.NetProfit.Equal(decimal.RequireFromString("12.34")) {
		t.Errorf("NetProfit = %s", msg.NetProfit)
	}
	if msg.TriggerKind != domain.TriggerClose {
		t.Errorf("TriggerKind = %s", msg.TriggerKind)
	}
}

func TestDecodeMissingNumericFieldsDefaultToZero(t *testing.T) {
	msg, err := Decode([]byte(`{"type": "ORDER_OPEN_CONFIRMED", "order_id": "ord_1"}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !msg.NetProfit.IsZero() || !msg.Commission.IsZero() || !msg.ClosePrice.IsZero() {
		t.Errorf("expected zero-valued decimals, got %+v", msg)
	}
}

func TestDecodeMalformedJSONErrors(t *testing.T) {
	_, err := Decode([]byte(`not json`))
	if err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestDecodeUnknownTypeIsCountedNotDropped(t *testing.T) {
	before := UnknownMessageCount()
	msg, err := Decode([]byte(`{"type": "SOME_MAM_AGGREGATE", "order_id": ""}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if msg.Type != "SOME_MAM_AGGREGATE" {
		t.Errorf("Type = %s, want passthrough of unknown type", msg.Type)
	}
	if UnknownMessageCount() != before+1 {
		t.Errorf("UnknownMessageCount() = %d, want %d", UnknownMessageCount(), before+1)
	}
}

func TestDecodeKnownTypeDoesNotIncrementUnknownCount(t *testing.T) {
	before := UnknownMessageCount()
	_, err := Decode([]byte(`{"type": "ORDER_PENDING_TRIGGERED", "order_id": "ord_1"}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if UnknownMessageCount() != before {
		t.Errorf("UnknownMessageCount() changed for a known type")
	}
}

func TestCloseMessageForExactEquality(t *testing.T) {
	cases := []struct {
		kind domain.TriggerKind
		want domain.CloseMessage
	}{
		{domain.TriggerStoploss, domain.CloseReasonStoploss},
		{domain.TriggerTakeprofit, domain.CloseReasonTakeprofit},
		{domain.TriggerAutocutoff, domain.CloseReasonAutocutoff},
		{domain.TriggerClose, domain.CloseReasonClosed},
		{domain.TriggerCancel, domain.CloseReasonClosed},
	}
	for _, c := range cases {
		if got := domain.CloseMessageFor(c.kind); got != c.want {
			t.Errorf("CloseMessageFor(%s) = %s, want %s", c.kind, got, c.want)
		}
	}
}

func TestOrderLifecycleIDForResolvesByExactKind(t *testing.T) {
	o := &domain.Order{
		StoplossID:   "sl_20250930_0001",
		TakeprofitID: "tp_20250930_0001",
	}
	if got := o.LifecycleIDFor(domain.TriggerStoploss); got != "sl_20250930_0001" {
		t.Errorf("LifecycleIDFor(stoploss) = %s", got)
	}
	if got := o.LifecycleIDFor(domain.TriggerTakeprofit); got != "tp_20250930_0001" {
		t.Errorf("LifecycleIDFor(takeprofit) = %s", got)
	}
	// A lifecycle id for one kind must never satisfy equality checks for
	// another kind (the substring-match the source relied on could not make
	// this guarantee; exact-kind lookup always can).
	if got := o.LifecycleIDFor(domain.TriggerCancel); got != "" {
		t.Errorf("LifecycleIDFor(cancel) = %s, want empty", got)
	}
}
