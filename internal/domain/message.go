package domain

import "github.com/shopspring/decimal"

// MessageType enumerates the confirmation kinds the reconciliation worker
// consumes from the message bus (spec.md §4.8).
type MessageType string

const (
	MsgOrderOpenConfirmed       MessageType = "ORDER_OPEN_CONFIRMED"
	MsgOrderCloseConfirmed      MessageType = "ORDER_CLOSE_CONFIRMED"
	MsgOrderPendingConfirmed    MessageType = "ORDER_PENDING_CONFIRMED"
	MsgOrderPendingTriggered    MessageType = "ORDER_PENDING_TRIGGERED"
	MsgOrderPendingCancel       MessageType = "ORDER_PENDING_CANCEL"
	MsgOrderStoplossConfirmed   MessageType = "ORDER_STOPLOSS_CONFIRMED"
	MsgOrderStoplossCancel      MessageType = "ORDER_STOPLOSS_CANCEL"
	MsgOrderTakeprofitConfirmed MessageType = "ORDER_TAKEPROFIT_CONFIRMED"
	MsgOrderTakeprofitCancel    MessageType = "ORDER_TAKEPROFIT_CANCEL"
	MsgOrderRejected            MessageType = "ORDER_REJECTED"
	MsgOrderRejectionRecord     MessageType = "ORDER_REJECTION_RECORD"
	MsgOrderCloseIDUpdate       MessageType = "ORDER_CLOSE_ID_UPDATE"
)

// TriggerKind is carried explicitly on confirmation messages instead of
// being inferred by substring-matching a lifecycle id (Open Question #2).
type TriggerKind string

const (
	TriggerNone             TriggerKind = ""
	TriggerClose            TriggerKind = "close"
	TriggerCancel           TriggerKind = "cancel"
	TriggerModify           TriggerKind = "modify"
	TriggerStoploss         TriggerKind = "stoploss"
	TriggerStoplossCancel   TriggerKind = "stoploss_cancel"
	TriggerTakeprofit       TriggerKind = "takeprofit"
	TriggerTakeprofitCancel TriggerKind = "takeprofit_cancel"
	TriggerAutocutoff       TriggerKind = "autocutoff"
)

// CloseMessageFor maps a trigger kind to the close_message enum, the exact
// -equality replacement for the source's "autocutoff" in id substring check.
func CloseMessageFor(kind TriggerKind) CloseMessage {
	switch kind {
	case TriggerStoploss:
		return CloseReasonStoploss
	case TriggerTakeprofit:
		return CloseReasonTakeprofit
	case TriggerAutocutoff:
		return CloseReasonAutocutoff
	default:
		return CloseReasonClosed
	}
}

// Confirmation is the decoded shape of a message bus payload (spec.md §6).
// Fields are pointers/zero-value when not applicable to the message type,
// mirroring "fields omitted when not applicable" in the wire schema.
type Confirmation struct {
	Type    MessageType
	OrderID string
	UserID  string
	UserType UserType

	OrderStatus Status

	ClosePrice          decimal.Decimal
	NetProfit           decimal.Decimal
	Commission          decimal.Decimal
	ProfitUSD           decimal.Decimal
	Swap                decimal.Decimal
	UsedMarginExecuted  decimal.Decimal
	UsedMarginAll       decimal.Decimal

	TriggerLifecycleID string
	TriggerKind        TriggerKind
	CloseOrigin        string

	// Derived/system messages (MAM aggregates, autocutoff) carry an opaque
	// payload the generic handler can still track as a metric.
	Raw map[string]any
}
