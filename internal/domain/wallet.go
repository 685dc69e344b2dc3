package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// WalletTransactionType enumerates the durable ledger's row kinds.
type WalletTransactionType string

const (
	TxCommission WalletTransactionType = "commission"
	TxProfit     WalletTransactionType = "profit"
	TxLoss       WalletTransactionType = "loss"
	TxDeposit    WalletTransactionType = "deposit"
)

// WalletTransaction is the durable-only, immutable-once-created ledger row
// (spec.md §3).
type WalletTransaction struct {
	TransactionID  string
	UserRef        string
	OrderRef       string
	Type           WalletTransactionType
	Amount         decimal.Decimal
	BalanceBefore  decimal.Decimal
	BalanceAfter   decimal.Decimal
	Status         string
	Metadata       string
	CreatedAt      time.Time
}

// RejectionRecord is created for every rejection path (spec.md §7/§8).
type RejectionRecord struct {
	CanonicalOrderID string
	RejectionType    string
	Reason           string
	Symbol           string
	UserID           string
	UserType         UserType
	ReleasedMargin   decimal.Decimal
	CreatedAt        time.Time
}
