package durable

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/web3guy0/orderflow/internal/domain"
)

type UserRepo struct {
	store *Store
}

func NewUserRepo(store *Store) *UserRepo {
	return &UserRepo{store: store}
}

func (r *UserRepo) Get(userType domain.UserType, userID string) (*domain.User, error) {
	var row UserRow
	if err := r.store.db.First(&row, "user_type = ? AND user_id = ?", string(userType), userID).Error; err != nil {
		return nil, err
	}
	return row.ToDomain(), nil
}

// LockForUpdate selects the user row FOR UPDATE — the only way
// wallet_balance or margin may be written, per spec.md §5's shared-resource
// policy.
func (r *UserRepo) LockForUpdate(tx *gorm.DB, userType domain.UserType, userID string) (*UserRow, error) {
	var row UserRow
	err := tx.Clauses(LockingClauses(tx)...).
		First(&row, "user_type = ? AND user_id = ?", string(userType), userID).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *UserRepo) SaveMargin(tx *gorm.DB, userType domain.UserType, userID string, margin, walletBalance decimal.Decimal) error {
	return tx.Model(&UserRow{}).
		Where("user_type = ? AND user_id = ?", string(userType), userID).
		Updates(map[string]any{"margin": margin, "wallet_balance": walletBalance}).Error
}
