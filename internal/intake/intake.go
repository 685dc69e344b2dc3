// Package intake is the order intake handlers C6: validate, acquire the
// per-user lock, mint ids, persist initial state, dispatch to the execution
// RPC client, write canonical state, emit immediate events. Grounded on
// execution.Executor.SubmitOrder's local/live dual-path state machine,
// generalized from a single paper/live switch to the local/provider flow
// every intent in spec.md §4.6 shares.
package intake

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/web3guy0/orderflow/internal/apierr"
	"github.com/web3guy0/orderflow/internal/cache"
	"github.com/web3guy0/orderflow/internal/domain"
	"github.com/web3guy0/orderflow/internal/durable"
	"github.com/web3guy0/orderflow/internal/eventbus"
	"github.com/web3guy0/orderflow/internal/execclient"
	"github.com/web3guy0/orderflow/internal/idgen"
	"github.com/web3guy0/orderflow/internal/lock"
	"github.com/web3guy0/orderflow/internal/posthook"
)

const lockScope = "node_user_ops"

// Handlers bundles every collaborator an intent needs. It is constructed
// once per process and passed by reference, following the single
// long-lived EventBus pattern spec.md §9 calls for generalized to the rest
// of this struct's fields.
type Handlers struct {
	Lock     *lock.Locker
	IDs      *idgen.Generator
	Cache    *cache.Store
	Durable  *durable.Store
	OrderRepo *durable.OrderRepo
	UserRepo *durable.UserRepo
	Exec     *execclient.Client
	Bus      *eventbus.Bus
	Hooks    *posthook.Pool
	LockTTL  time.Duration
}

// emit schedules the user-visible event as a post-commit hook rather than
// calling the bus inline, per spec.md §9's "callbacks + setImmediate become
// explicit post-commit hooks scheduled on a bounded worker pool" note.
func (h *Handlers) emit(ctx context.Context, userType domain.UserType, userID string, payload map[string]any) {
	h.Hooks.Submit(func() { h.Bus.EmitUserUpdate(ctx, userType, userID, payload) })
}

// withUserLock acquires the per-user lock for the duration of fn, releasing
// it unconditionally afterward (spec.md §4.6 steps 2/9).
func (h *Handlers) withUserLock(ctx context.Context, userType domain.UserType, userID string, fn func() error) error {
	hnd, err := h.Lock.Acquire(ctx, lockScope, userType, userID, h.LockTTL)
	if err != nil {
		return apierr.Wrap(apierr.Transient, "lock unavailable", err)
	}
	if hnd == nil {
		return apierr.New(apierr.Precondition, "user has another order in flight")
	}
	defer func() { _ = h.Lock.Release(ctx, hnd) }()
	return fn()
}

func (h *Handlers) loadUser(userType domain.UserType, userID string) (*domain.User, error) {
	u, err := h.UserRepo.Get(userType, userID)
	if err != nil {
		if durable.IsNotFound(err) {
			return nil, apierr.New(apierr.NotFound, "user not found")
		}
		return nil, apierr.Wrap(apierr.Transient, "load user", err)
	}
	return u, nil
}

// PlaceInstantRequest is the validated shape of a place-instant intent.
type PlaceInstantRequest struct {
	UserType domain.UserType
	UserID   string
	Symbol   string
	Kind     domain.OrderKind
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

func (r *PlaceInstantRequest) validate() error {
	if r.Symbol == "" {
		return apierr.New(apierr.Validation, "symbol is required")
	}
	if r.Kind != domain.KindBuy && r.Kind != domain.KindSell {
		return apierr.New(apierr.Validation, "order_type must be BUY or SELL")
	}
	if r.Price.LessThanOrEqual(decimal.Zero) || r.Quantity.LessThanOrEqual(decimal.Zero) {
		return apierr.New(apierr.Validation, "price and quantity must be positive")
	}
	return nil
}

// PlaceInstant implements spec.md §4.6's "Place instant" steps 1-9.
func (h *Handlers) PlaceInstant(ctx context.Context, req *PlaceInstantRequest) (*domain.Order, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	user, err := h.loadUser(req.UserType, req.UserID)
	if err != nil {
		return nil, err
	}
	if !user.CanTrade() {
		return nil, apierr.New(apierr.Authorization, "account not permitted to trade")
	}

	var result *domain.Order
	err = h.withUserLock(ctx, req.UserType, req.UserID, func() error {
		orderID, err := h.IDs.Next(idgen.ClassOrder)
		if err != nil {
			return apierr.Wrap(apierr.Transient, "mint order id", err)
		}

		now := time.Now()
		order := &domain.Order{
			OrderID:     orderID,
			UserType:    req.UserType,
			UserID:      req.UserID,
			Symbol:      req.Symbol,
			Kind:        req.Kind,
			Price:       req.Price,
			Quantity:    req.Quantity,
			OrderStatus: domain.StatusQueued,
			Status:      domain.StatusQueued,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		if err := h.OrderRepo.InsertQueued(order); err != nil {
			return apierr.Wrap(apierr.Transient, "insert durable row", err)
		}
		if err := h.mirrorCanonical(ctx, order); err != nil {
			return apierr.Wrap(apierr.Transient, "write canonical record", err)
		}

		resp, execErr := h.Exec.InstantExecute(order)
		if execErr != nil {
			h.rejectOrder(ctx, order, execErr)
			return execErr
		}

		if resp.Flow == domain.FlowLocal {
			order.OrderStatus = domain.StatusOpen
			order.Status = domain.StatusOpen
			order.Price = resp.ExecPrice
			order.ContractValue = resp.ContractValue
			order.Margin = resp.MarginUSD
			order.Commission = resp.CommissionEntry
			order.UpdatedAt = time.Now()

			if err := h.applyOpenLocally(ctx, order); err != nil {
				return apierr.Wrap(apierr.Transient, "apply local open", err)
			}
			h.emit(ctx, req.UserType, req.UserID, map[string]any{
				"kind":     "order_opened",
				"order_id": order.OrderID,
			})
		}
		// flow == provider: durable row stays QUEUED; C8 promotes on confirmation.

		result = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// mirrorCanonical writes the canonical order record plus the user's
// holdings/index entry. These are different hash tags (order_data vs
// user_holdings), so per spec.md §4.3's cross-slot rule they are two
// sequential operations, never one pipeline.
func (h *Handlers) mirrorCanonical(ctx context.Context, o *domain.Order) error {
	return cache.NewCrossSlotSequence().
		Add(func(ctx context.Context) error { return h.Cache.WriteOrderData(ctx, o) }).
		Add(func(ctx context.Context) error {
			batch := cache.NewUserHoldingsBatch(string(o.UserType), o.UserID)
			batch.SetHolding(string(o.UserType), o.UserID, o.OrderID, map[string]any{
				"order_id":     o.OrderID,
				"symbol":       o.Symbol,
				"order_type":   string(o.Kind),
				"order_status": string(o.OrderStatus),
			})
			batch.AddToIndex(string(o.UserType), o.UserID, o.OrderID)
			return h.Cache.Exec(ctx, batch)
		}).
		Run(ctx)
}

// applyOpenLocally upserts the durable row to OPEN, mirrors to C3, and
// updates the user's aggregate margin under a row lock, per spec.md §4.6
// step 6.
func (h *Handlers) applyOpenLocally(ctx context.Context, o *domain.Order) error {
	err := durable.WithRetry(h.Durable.DB(), func(tx *gorm.DB) error {
		if err := h.OrderRepo.Save(tx, o); err != nil {
			return err
		}
		row, err := h.UserRepo.LockForUpdate(tx, o.UserType, o.UserID)
		if err != nil {
			return err
		}
		newMargin := row.Margin.Add(o.Margin)
		return h.UserRepo.SaveMargin(tx, o.UserType, o.UserID, newMargin, row.WalletBalance)
	})
	if err != nil {
		return err
	}
	return h.mirrorCanonical(ctx, o)
}

// rejectOrder marks the durable row REJECTED and emits
// order_rejection_created carrying the RPC error's reason. The reason is not
// stored on the row, and no durable rejection record is inserted.
func (h *Handlers) rejectOrder(ctx context.Context, o *domain.Order, cause error) {
	reason := cause.Error()
	if err := h.OrderRepo.UpdateStatus(o.OrderID, domain.StatusRejected, map[string]any{
		"status": string(domain.StatusRejected),
	}); err != nil {
		return
	}
	h.emit(ctx, o.UserType, o.UserID, map[string]any{
		"kind":     "order_rejection_created",
		"order_id": o.OrderID,
		"reason":   reason,
	})
}
