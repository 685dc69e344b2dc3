package domain

import "github.com/shopspring/decimal"

// User models the fields the order lifecycle core consumes from the wider
// account system (spec.md §3 — "abstract, only fields the core consumes").
type User struct {
	UserType UserType
	UserID   string

	WalletBalance decimal.Decimal
	NetProfit     decimal.Decimal
	Margin        decimal.Decimal

	Group          string
	Leverage       int
	SendingOrders  SendingOrders
	IsActive       bool
	Status         string
	IsSelfTrading  bool
	Role           string
}

// CanTrade reports the authorization checks an intake handler must run
// before acquiring a lock (spec.md §4.6 step 1).
func (u *User) CanTrade() bool {
	return u.IsActive && u.IsSelfTrading && u.Status == "active"
}
