package durable

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/web3guy0/orderflow/internal/domain"
)

// OrderRepo is the repository half of the durable store's order surface.
// Every write goes through a transaction; callers that need row-level
// locking for wallet/margin updates use LockForUpdate directly.
type OrderRepo struct {
	store *Store
}

func NewOrderRepo(store *Store) *OrderRepo {
	return &OrderRepo{store: store}
}

// InsertQueued creates the initial QUEUED/PENDING row for a freshly minted
// order (spec.md §4.6 step 3).
func (r *OrderRepo) InsertQueued(o *domain.Order) error {
	row := FromDomain(o)
	return r.store.db.Create(row).Error
}

// Get fetches a single order row by id.
func (r *OrderRepo) Get(orderID string) (*domain.Order, error) {
	var row OrderRow
	if err := r.store.db.First(&row, "order_id = ?", orderID).Error; err != nil {
		return nil, err
	}
	return row.ToDomain(), nil
}

// LockForUpdate opens a transaction, selects the order row with FOR UPDATE,
// and invokes fn with the locked row, the row-locking discipline spec.md
// §4.4 and §4.8 step 3 requires for every write touching wallet or margin.
// Transient deadlock/lock-wait errors are retried per WithRetry.
func (r *OrderRepo) LockForUpdate(orderID string, fn func(tx *gorm.DB, row *OrderRow) error) error {
	return WithRetry(r.store.db, func(tx *gorm.DB) error {
		var row OrderRow
		if err := tx.Clauses(LockingClauses(tx)...).First(&row, "order_id = ?", orderID).Error; err != nil {
			return err
		}
		return fn(tx, &row)
	})
}

// Save upserts the full row, used by C6 and C8 to persist state transitions.
func (r *OrderRepo) Save(tx *gorm.DB, o *domain.Order) error {
	if tx == nil {
		tx = r.store.db
	}
	return tx.Save(FromDomain(o)).Error
}

// UpdateStatus is a narrow helper for the common "flip order_status,
// persist a handful of fields" case used by C6 handlers that don't need a
// row lock (e.g. marking REJECTED on an RPC error).
func (r *OrderRepo) UpdateStatus(orderID string, status domain.Status, fields map[string]any) error {
	fields["order_status"] = string(status)
	res := r.store.db.Model(&OrderRow{}).Where("order_id = ?", orderID).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("durable: order %s: %w", orderID, ErrNotFound)
	}
	return nil
}

// InsertIfMissing backfills a durable row from a canonical cache snapshot
// when the reconciliation worker finds no durable row for a confirmed
// order (spec.md §4.8 step 3).
func (r *OrderRepo) InsertIfMissing(tx *gorm.DB, o *domain.Order) error {
	if tx == nil {
		tx = r.store.db
	}
	return tx.FirstOrCreate(FromDomain(o), "order_id = ?", o.OrderID).Error
}
