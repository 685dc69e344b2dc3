// Package payout is the atomic wallet credit/debit service C9: per close,
// a commission debit row (if any), a profit/loss row, and a wallet balance
// update, all inside one durable transaction with a row lock on the user.
// Grounded on storage/database.go's UpdateDailyStats-style upsert SQL (raw,
// row-lock-friendly) for the transaction shape; the commission/profit-loss
// double-row invariant itself is specified fresh since no repo in the pack
// implements a wallet ledger.
package payout

import (
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/web3guy0/orderflow/internal/domain"
	"github.com/web3guy0/orderflow/internal/durable"
	"github.com/web3guy0/orderflow/internal/idgen"
)

type Service struct {
	store      *durable.Store
	userRepo   *durable.UserRepo
	walletRepo *durable.WalletRepo
	ids        *idgen.Generator
}

func New(store *durable.Store, ids *idgen.Generator) *Service {
	return &Service{
		store:      store,
		userRepo:   durable.NewUserRepo(store),
		walletRepo: durable.NewWalletRepo(store),
		ids:        ids,
	}
}

// CloseInput carries the confirmed-close numbers the reconciliation worker
// extracts from the confirmation message.
type CloseInput struct {
	OrderID    string
	UserType   domain.UserType
	UserID     string
	NetProfit  decimal.Decimal
	Commission decimal.Decimal
}

// Apply runs the payout inside the caller-visible transaction: it computes
// running_balance from balance_before, inserts a commission row if
// commission > 0, inserts a profit/loss row whose amount satisfies
// profit_loss_amount + (-commission) == net_profit, and updates
// wallet_balance, per spec.md §4.9. The caller (C8) is responsible for the
// close_payout_applied idempotency guard; Apply assumes it has already been
// acquired and always applies the payout honestly once invoked.
func (s *Service) Apply(tx *gorm.DB, in CloseInput) error {
	userRow, err := s.userRepo.LockForUpdate(tx, in.UserType, in.UserID)
	if err != nil {
		return fmt.Errorf("payout: lock user %s:%s: %w", in.UserType, in.UserID, err)
	}

	balance := userRow.WalletBalance
	negCommission := in.Commission.Neg()

	if in.Commission.GreaterThan(decimal.Zero) {
		txnID, err := s.ids.NextTx(tx, idgen.ClassTransaction)
		if err != nil {
			return fmt.Errorf("payout: mint commission transaction id: %w", err)
		}
		before := balance
		balance = balance.Sub(in.Commission)
		if err := s.walletRepo.InsertTransaction(tx, &domain.WalletTransaction{
			TransactionID: txnID,
			UserRef:       in.UserID,
			OrderRef:      in.OrderID,
			Type:          domain.TxCommission,
			Amount:        negCommission,
			BalanceBefore: before,
			BalanceAfter:  balance,
			Status:        "applied",
		}); err != nil {
			return fmt.Errorf("payout: commission row: %w", err)
		}
	}

	// profit_loss_amount + (-commission) == net_profit  =>
	// profit_loss_amount == net_profit + commission
	profitLossAmount := in.NetProfit.Add(in.Commission)
	txType := domain.TxProfit
	if profitLossAmount.IsNegative() {
		txType = domain.TxLoss
	}

	profitLossTxnID, err := s.ids.NextTx(tx, idgen.ClassTransaction)
	if err != nil {
		return fmt.Errorf("payout: mint profit/loss transaction id: %w", err)
	}
	before := balance
	balance = balance.Add(profitLossAmount)
	if err := s.walletRepo.InsertTransaction(tx, &domain.WalletTransaction{
		TransactionID: profitLossTxnID,
		UserRef:       in.UserID,
		OrderRef:      in.OrderID,
		Type:          txType,
		Amount:        profitLossAmount,
		BalanceBefore: before,
		BalanceAfter:  balance,
		Status:        "applied",
	}); err != nil {
		return fmt.Errorf("payout: profit/loss row: %w", err)
	}

	if err := tx.Model(&durable.UserRow{}).
		Where("user_type = ? AND user_id = ?", string(in.UserType), in.UserID).
		Update("wallet_balance", balance).Error; err != nil {
		return fmt.Errorf("payout: update wallet_balance: %w", err)
	}

	return nil
}
