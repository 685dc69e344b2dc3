package durable

import (
	"time"

	"gorm.io/gorm"

	"github.com/web3guy0/orderflow/internal/domain"
)

type WalletRepo struct {
	store *Store
}

func NewWalletRepo(store *Store) *WalletRepo {
	return &WalletRepo{store: store}
}

// InsertTransaction appends one immutable ledger row within the caller's
// transaction (C9 composes two calls per close: commission then profit/loss).
func (r *WalletRepo) InsertTransaction(tx *gorm.DB, t *domain.WalletTransaction) error {
	row := &WalletTransactionRow{
		TransactionID: t.TransactionID,
		UserRef:       t.UserRef,
		OrderRef:      t.OrderRef,
		Type:          string(t.Type),
		Amount:        t.Amount,
		BalanceBefore: t.BalanceBefore,
		BalanceAfter:  t.BalanceAfter,
		Status:        t.Status,
		Metadata:      t.Metadata,
		CreatedAt:     time.Now(),
	}
	return tx.Create(row).Error
}

type RejectionRepo struct {
	store *Store
}

func NewRejectionRepo(store *Store) *RejectionRepo {
	return &RejectionRepo{store: store}
}

func (r *RejectionRepo) Insert(rec *domain.RejectionRecord) error {
	row := &RejectionRow{
		CanonicalOrderID: rec.CanonicalOrderID,
		RejectionType:    rec.RejectionType,
		Reason:           rec.Reason,
		Symbol:           rec.Symbol,
		UserID:           rec.UserID,
		UserType:         string(rec.UserType),
		ReleasedMargin:   rec.ReleasedMargin,
		CreatedAt:        time.Now(),
	}
	return r.store.db.Create(row).Error
}
