// Package durable is the gorm-backed relational mirror: the audit-grade,
// eventually-consistent store behind the cache. It follows
// internal/database's dual Postgres/SQLite connection-string dispatch and
// AutoMigrate-owns-schema approach.
package durable

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/orderflow/internal/domain"
)

// OrderRow is the durable mirror of domain.Order. Nullable pointer fields
// mirror the domain struct's optional trigger/close fields.
type OrderRow struct {
	OrderID  string `gorm:"primaryKey"`
	UserType string `gorm:"index:idx_order_owner"`
	UserID   string `gorm:"index:idx_order_owner"`

	Symbol        string
	Kind          string
	Price         decimal.Decimal `gorm:"type:decimal(18,8)"`
	Quantity      decimal.Decimal `gorm:"type:decimal(18,8)"`
	ContractValue decimal.Decimal `gorm:"type:decimal(18,8)"`
	Margin        decimal.Decimal `gorm:"type:decimal(18,8)"`
	Commission    decimal.Decimal `gorm:"type:decimal(18,8)"`

	OrderStatus string `gorm:"index"`
	Status      string

	StopLoss   *decimal.Decimal `gorm:"type:decimal(18,8)"`
	TakeProfit *decimal.Decimal `gorm:"type:decimal(18,8)"`

	ClosePrice   *decimal.Decimal `gorm:"type:decimal(18,8)"`
	NetProfit    *decimal.Decimal `gorm:"type:decimal(18,8)"`
	Swap         decimal.Decimal  `gorm:"type:decimal(18,8)"`
	CloseMessage string

	CloseID            string
	CancelID           string
	ModifyID           string
	StoplossID         string
	StoplossCancelID   string
	TakeprofitID       string
	TakeprofitCancelID string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ToDomain converts the durable row into the shared domain.Order type.
func (r *OrderRow) ToDomain() *domain.Order {
	return &domain.Order{
		OrderID:            r.OrderID,
		UserType:           domain.UserType(r.UserType),
		UserID:             r.UserID,
		Symbol:             r.Symbol,
		Kind:               domain.OrderKind(r.Kind),
		Price:              r.Price,
		Quantity:           r.Quantity,
		ContractValue:      r.ContractValue,
		Margin:             r.Margin,
		Commission:         r.Commission,
		OrderStatus:        domain.Status(r.OrderStatus),
		Status:             domain.Status(r.Status),
		StopLoss:           r.StopLoss,
		TakeProfit:         r.TakeProfit,
		ClosePrice:         r.ClosePrice,
		NetProfit:          r.NetProfit,
		Swap:               r.Swap,
		CloseMessage:       domain.CloseMessage(r.CloseMessage),
		CloseID:            r.CloseID,
		CancelID:           r.CancelID,
		ModifyID:           r.ModifyID,
		StoplossID:         r.StoplossID,
		StoplossCancelID:   r.StoplossCancelID,
		TakeprofitID:       r.TakeprofitID,
		TakeprofitCancelID: r.TakeprofitCancelID,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

// FromDomain populates a durable row from the shared domain.Order type.
func FromDomain(o *domain.Order) *OrderRow {
	return &OrderRow{
		OrderID:            o.OrderID,
		UserType:           string(o.UserType),
		UserID:             o.UserID,
		Symbol:             o.Symbol,
		Kind:               string(o.Kind),
		Price:              o.Price,
		Quantity:           o.Quantity,
		ContractValue:      o.ContractValue,
		Margin:             o.Margin,
		Commission:         o.Commission,
		OrderStatus:        string(o.OrderStatus),
		Status:             string(o.Status),
		StopLoss:           o.StopLoss,
		TakeProfit:         o.TakeProfit,
		ClosePrice:         o.ClosePrice,
		NetProfit:          o.NetProfit,
		Swap:               o.Swap,
		CloseMessage:       string(o.CloseMessage),
		CloseID:            o.CloseID,
		CancelID:           o.CancelID,
		ModifyID:           o.ModifyID,
		StoplossID:         o.StoplossID,
		StoplossCancelID:   o.StoplossCancelID,
		TakeprofitID:       o.TakeprofitID,
		TakeprofitCancelID: o.TakeprofitCancelID,
	}
}

// UserRow is the durable mirror of domain.User.
type UserRow struct {
	UserType string `gorm:"primaryKey"`
	UserID   string `gorm:"primaryKey"`

	WalletBalance decimal.Decimal `gorm:"type:decimal(18,8)"`
	NetProfit     decimal.Decimal `gorm:"type:decimal(18,8)"`
	Margin        decimal.Decimal `gorm:"type:decimal(18,8)"`

	Group         string
	Leverage      int
	SendingOrders string
	IsActive      bool
	Status        string
	IsSelfTrading bool
	Role          string

	UpdatedAt time.Time
}

func (r *UserRow) ToDomain() *domain.User {
	return &domain.User{
		UserType:      domain.UserType(r.UserType),
		UserID:        r.UserID,
		WalletBalance: r.WalletBalance,
		NetProfit:     r.NetProfit,
		Margin:        r.Margin,
		Group:         r.Group,
		Leverage:      r.Leverage,
		SendingOrders: domain.SendingOrders(r.SendingOrders),
		IsActive:      r.IsActive,
		Status:        r.Status,
		IsSelfTrading: r.IsSelfTrading,
		Role:          r.Role,
	}
}

// WalletTransactionRow is the durable, immutable-once-created ledger row.
type WalletTransactionRow struct {
	TransactionID string `gorm:"primaryKey"`
	UserRef       string `gorm:"index"`
	OrderRef      string `gorm:"index"`
	Type          string
	Amount        decimal.Decimal `gorm:"type:decimal(18,8)"`
	BalanceBefore decimal.Decimal `gorm:"type:decimal(18,8)"`
	BalanceAfter  decimal.Decimal `gorm:"type:decimal(18,8)"`
	Status        string
	Metadata      string
	CreatedAt     time.Time
}

// RejectionRow is the durable record created for every rejection path.
type RejectionRow struct {
	ID               uint `gorm:"primaryKey;autoIncrement"`
	CanonicalOrderID string `gorm:"index"`
	RejectionType    string
	Reason           string
	Symbol           string
	UserID           string
	UserType         string
	ReleasedMargin   decimal.Decimal `gorm:"type:decimal(18,8)"`
	CreatedAt        time.Time
}

// IDSequenceRow backs the id generator (C1): one row per (day, prefix),
// updated under a row lock so sequences survive process restarts.
type IDSequenceRow struct {
	Day      string `gorm:"primaryKey"`
	Prefix   string `gorm:"primaryKey"`
	LastSeq  int64
}

// IdempotencyKeyRow is a durable table for idempotency keys. Open migrates
// it, but no code path reads or writes it: the idempotency guards use the
// cache keys alone.
type IdempotencyKeyRow struct {
	Key       string `gorm:"primaryKey"`
	CreatedAt time.Time
}
