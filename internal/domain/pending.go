package domain

import "github.com/shopspring/decimal"

// PendingRecord lives only in the cache (spec.md §3) and is a member of the
// sorted index for its (symbol, pending_type) pair.
type PendingRecord struct {
	OrderID      string
	Symbol       string
	PendingType  OrderKind
	ComparePrice decimal.Decimal
	UserPrice    decimal.Decimal
	UserType     UserType
	UserID       string
	Quantity     decimal.Decimal
}

// Event is the payload emitted on the event bus (C10). Kind is a snake_case
// event name such as order_opened, order_closed or pending_cancelled.
type Event struct {
	Kind     string
	UserType UserType
	UserID   string
	Payload  map[string]any
}
