// Package domain holds the typed order/user/event model shared by every
// component of the order lifecycle core. It replaces the loose maps and
// dynamic objects the teacher's strategy/execution layer passes around with
// explicit structs and sum types, per the "dynamic objects & loose maps"
// redesign note.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// UserType partitions accounts by how they trade.
type UserType string

const (
	UserLive            UserType = "live"
	UserDemo            UserType = "demo"
	UserStrategyProvider UserType = "strategy_provider"
	UserCopyFollower    UserType = "copy_follower"
	UserMAMAccount      UserType = "mam_account"
)

// OrderKind is the instrument side/type requested by the user.
type OrderKind string

const (
	KindBuy       OrderKind = "BUY"
	KindSell      OrderKind = "SELL"
	KindBuyLimit  OrderKind = "BUY_LIMIT"
	KindSellLimit OrderKind = "SELL_LIMIT"
	KindBuyStop   OrderKind = "BUY_STOP"
	KindSellStop  OrderKind = "SELL_STOP"
)

// IsPending reports whether the kind is one of the four pending subtypes.
func (k OrderKind) IsPending() bool {
	switch k {
	case KindBuyLimit, KindSellLimit, KindBuyStop, KindSellStop:
		return true
	default:
		return false
	}
}

// Status is the order's lifecycle status (order_status in spec.md §3).
type Status string

const (
	StatusQueued         Status = "QUEUED"
	StatusPending        Status = "PENDING"
	StatusPendingQueued  Status = "PENDING-QUEUED"
	StatusPendingCancel  Status = "PENDING-CANCEL"
	StatusOpen           Status = "OPEN"
	StatusModify         Status = "MODIFY"
	StatusClosed         Status = "CLOSED"
	StatusCancelled      Status = "CANCELLED"
	StatusRejected       Status = "REJECTED"
)

// Terminal reports whether the status is a terminal state: the order is
// conceptually closed and, per spec.md §3, should no longer have a
// canonical record in the cache.
func (s Status) Terminal() bool {
	switch s {
	case StatusClosed, StatusCancelled, StatusRejected:
		return true
	default:
		return false
	}
}

// CloseMessage classifies why an order closed.
type CloseMessage string

const (
	CloseReasonClosed     CloseMessage = "Closed"
	CloseReasonStoploss   CloseMessage = "Stoploss"
	CloseReasonTakeprofit CloseMessage = "Takeprofit"
	CloseReasonAutocutoff CloseMessage = "Autocutoff"
)

// Flow tells an intake handler whether the execution RPC already settled
// the intent locally, or whether a provider confirmation is still pending.
type Flow string

const (
	FlowLocal    Flow = "local"
	FlowProvider Flow = "provider"
)

// SendingOrders is the per-user config that decides execution path.
type SendingOrders string

const (
	SendingLocal    SendingOrders = "local"
	SendingProvider SendingOrders = "provider"
)

// Order is the canonical trading entity (spec.md §3).
type Order struct {
	OrderID string
	UserType UserType
	UserID   string

	Symbol    string
	Kind      OrderKind
	Price     decimal.Decimal
	Quantity  decimal.Decimal
	ContractValue decimal.Decimal
	Margin    decimal.Decimal
	Commission decimal.Decimal

	OrderStatus Status
	Status      Status // engine-intended status; may transiently diverge

	StopLoss   *decimal.Decimal
	TakeProfit *decimal.Decimal

	ClosePrice   *decimal.Decimal
	NetProfit    *decimal.Decimal
	Swap         decimal.Decimal
	CloseMessage CloseMessage

	// Lifecycle-id attachments. Each non-empty value identifies exactly one
	// in-flight round trip with the provider.
	CloseID           string
	CancelID          string
	ModifyID          string
	StoplossID        string
	StoplossCancelID  string
	TakeprofitID      string
	TakeprofitCancelID string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// LifecycleIDFor returns the order's stored lifecycle id for a trigger kind,
// used to resolve close_message by exact equality rather than substring
// matching (Open Question #2 resolution — see SPEC_FULL.md §6).
func (o *Order) LifecycleIDFor(kind TriggerKind) string {
	switch kind {
	case TriggerClose:
		return o.CloseID
	case TriggerCancel:
		return o.CancelID
	case TriggerModify:
		return o.ModifyID
	case TriggerStoploss:
		return o.StoplossID
	case TriggerStoplossCancel:
		return o.StoplossCancelID
	case TriggerTakeprofit:
		return o.TakeprofitID
	case TriggerTakeprofitCancel:
		return o.TakeprofitCancelID
	default:
		return ""
	}
}

// ValidateTriggers checks the BUY/SELL stop_loss/take_profit ordering
// invariant from spec.md §3.
func (o *Order) ValidateTriggers() error {
	if o.StopLoss == nil && o.TakeProfit == nil {
		return nil
	}
	isBuy := o.Kind == KindBuy || o.Kind == KindBuyLimit || o.Kind == KindBuyStop
	if isBuy {
		if o.StopLoss != nil && !o.StopLoss.LessThan(o.Price) {
			return errInvalidTrigger
		}
		if o.TakeProfit != nil && !o.TakeProfit.GreaterThan(o.Price) {
			return errInvalidTrigger
		}
	} else {
		if o.StopLoss != nil && !o.StopLoss.GreaterThan(o.Price) {
			return errInvalidTrigger
		}
		if o.TakeProfit != nil && !o.TakeProfit.LessThan(o.Price) {
			return errInvalidTrigger
		}
	}
	return nil
}
