// Package reconcile is the reconciliation worker C8: consumes confirmation
// messages, applies idempotent state transitions to the durable store and
// canonical cache, invokes the payout service on close, and emits events.
// Grounded on the amqp091-go consumer shape in the Tim275-oms pack files
// (QueueDeclare/QueueBind/Consume with ack/nack) and on the event-driven
// worker pattern in winson1234-Hedgetechs' order_processor.go (channel-fed
// processor loop, real-time price/liquidation integration).
package reconcile

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/orderflow/internal/domain"
)

// unknownMessageCount backs the "unknown message types are routed to a
// generic handler and tracked as a metric rather than silently dropped"
// design note (spec.md §9).
var unknownMessageCount int64

func UnknownMessageCount() int64 {
	return atomic.LoadInt64(&unknownMessageCount)
}

// wireMessage is the loose JSON shape messages arrive in; Decode turns it
// into the typed domain.Confirmation, replacing "message parsing from a
// loose JSON blob" with a tagged decoder per spec.md §9.
type wireMessage struct {
	Type                string          `json:"type"`
	OrderID             string          `json:"order_id"`
	UserID              string          `json:"user_id"`
	UserType            string          `json:"user_type"`
	OrderStatus         string          `json:"order_status"`
	ClosePrice          json.Number     `json:"close_price"`
	NetProfit           json.Number     `json:"net_profit"`
	Commission          json.Number     `json:"commission"`
	ProfitUSD           json.Number     `json:"profit_usd"`
	Swap                json.Number     `json:"swap"`
	UsedMarginExecuted  json.Number     `json:"used_margin_executed"`
	UsedMarginAll       json.Number     `json:"used_margin_all"`
	TriggerLifecycleID  string          `json:"trigger_lifecycle_id"`
	TriggerKind         string          `json:"trigger_kind"`
	CloseOrigin         string          `json:"close_origin"`
	Raw                 map[string]any  `json:"-"`
}

var knownMessageTypes = map[string]bool{
	string(domain.MsgOrderOpenConfirmed):       true,
	string(domain.MsgOrderCloseConfirmed):      true,
	string(domain.MsgOrderPendingConfirmed):    true,
	string(domain.MsgOrderPendingTriggered):    true,
	string(domain.MsgOrderPendingCancel):       true,
	string(domain.MsgOrderStoplossConfirmed):   true,
	string(domain.MsgOrderStoplossCancel):      true,
	string(domain.MsgOrderTakeprofitConfirmed): true,
	string(domain.MsgOrderTakeprofitCancel):    true,
	string(domain.MsgOrderRejected):            true,
	string(domain.MsgOrderRejectionRecord):     true,
	string(domain.MsgOrderCloseIDUpdate):       true,
}

// Decode parses body into a domain.Confirmation. Messages whose type is not
// one of the twelve spec.md §4.8 names are not dropped: they are decoded
// into the generic Raw payload, counted in UnknownMessageCount, and still
// returned to the worker.
func Decode(body []byte) (*domain.Confirmation, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("reconcile: malformed message: %w", err)
	}

	var wm wireMessage
	if err := json.Unmarshal(body, &wm); err != nil {
		return nil, fmt.Errorf("reconcile: malformed message: %w", err)
	}

	if !knownMessageTypes[wm.Type] {
		atomic.AddInt64(&unknownMessageCount, 1)
	}

	c := &domain.Confirmation{
		Type:               domain.MessageType(wm.Type),
		OrderID:            wm.OrderID,
		UserID:             wm.UserID,
		UserType:           domain.UserType(wm.UserType),
		OrderStatus:        domain.Status(wm.OrderStatus),
		ClosePrice:         numOrZero(wm.ClosePrice),
		NetProfit:          numOrZero(wm.NetProfit),
		Commission:         numOrZero(wm.Commission),
		ProfitUSD:          numOrZero(wm.ProfitUSD),
		Swap:               numOrZero(wm.Swap),
		UsedMarginExecuted: numOrZero(wm.UsedMarginExecuted),
		UsedMarginAll:      numOrZero(wm.UsedMarginAll),
		TriggerLifecycleID: wm.TriggerLifecycleID,
		TriggerKind:        domain.TriggerKind(wm.TriggerKind),
		CloseOrigin:        wm.CloseOrigin,
		Raw:                raw,
	}
	return c, nil
}

func numOrZero(n json.Number) decimal.Decimal {
	if n == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(string(n))
	if err != nil {
		return decimal.Zero
	}
	return d
}
