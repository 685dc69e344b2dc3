package intake

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/orderflow/internal/apierr"
	"github.com/web3guy0/orderflow/internal/cache"
	"github.com/web3guy0/orderflow/internal/domain"
	"github.com/web3guy0/orderflow/internal/idgen"
)

// PlacePendingRequest is the validated shape of a place-pending intent.
type PlacePendingRequest struct {
	UserType   domain.UserType
	UserID     string
	Symbol     string
	Kind       domain.OrderKind
	UserPrice  decimal.Decimal
	Quantity   decimal.Decimal
	SpreadPip  decimal.Decimal
	GroupSpread decimal.Decimal
}

func (r *PlacePendingRequest) validate() error {
	if r.Symbol == "" {
		return apierr.New(apierr.Validation, "symbol is required")
	}
	if !r.Kind.IsPending() {
		return apierr.New(apierr.Validation, "order_type must be a pending type")
	}
	if r.UserPrice.LessThanOrEqual(decimal.Zero) || r.Quantity.LessThanOrEqual(decimal.Zero) {
		return apierr.New(apierr.Validation, "price and quantity must be positive")
	}
	return nil
}

// PlacePending implements spec.md §4.6's "Place pending" steps. compare_price
// is computed uniformly for all four pending subtypes here — direction is
// decided solely by internal/pending at trigger time (Open Question #3).
func (h *Handlers) PlacePending(ctx context.Context, req *PlacePendingRequest) (*domain.Order, error) {
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

	if _, err := h.Cache.GetMarketPrice(ctx, req.Symbol); err != nil {
		if err == cache.ErrMiss {
			return nil, apierr.New(apierr.Transient, "market data stale or missing")
		}
		return nil, apierr.Wrap(apierr.Transient, "read market data", err)
	}

	halfSpread := req.GroupSpread.Mul(req.SpreadPip).Div(decimal.NewFromInt(2))
	comparePrice := req.UserPrice.Sub(halfSpread)

	var result *domain.Order
	err = h.withUserLock(ctx, req.UserType, req.UserID, func() error {
		orderID, err := h.IDs.Next(idgen.ClassOrder)
		if err != nil {
			return apierr.Wrap(apierr.Transient, "mint order id", err)
		}

		now := time.Now()
		flow := domain.FlowLocal
		if user.SendingOrders == domain.SendingProvider {
			flow = domain.FlowProvider
		}

		status := domain.StatusPending
		if flow == domain.FlowProvider {
			status = domain.StatusPendingQueued
		}

		order := &domain.Order{
			OrderID:     orderID,
			UserType:    req.UserType,
			UserID:      req.UserID,
			Symbol:      req.Symbol,
			Kind:        req.Kind,
			Price:       req.UserPrice,
			Quantity:    req.Quantity,
			OrderStatus: status,
			Status:      status,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		if flow == domain.FlowProvider {
			cancelID, err := h.IDs.Next(idgen.ClassCancel)
			if err != nil {
				return apierr.Wrap(apierr.Transient, "mint cancel id", err)
			}
			order.CancelID = cancelID
		}

		if err := h.OrderRepo.InsertQueued(order); err != nil {
			return apierr.Wrap(apierr.Transient, "insert durable row", err)
		}
		if err := h.mirrorCanonical(ctx, order); err != nil {
			return apierr.Wrap(apierr.Transient, "mirror canonical", err)
		}

		rec := &domain.PendingRecord{
			OrderID:      order.OrderID,
			Symbol:       order.Symbol,
			PendingType:  order.Kind,
			ComparePrice: comparePrice,
			UserPrice:    order.Price,
			UserType:     order.UserType,
			UserID:       order.UserID,
			Quantity:     order.Quantity,
		}

		if flow == domain.FlowLocal {
			if err := h.Cache.WritePendingIndex(ctx, rec); err != nil {
				return apierr.Wrap(apierr.Transient, "write pending index", err)
			}
		} else {
			if err := h.Exec.RegisterLifecycleID(order.OrderID, order.CancelID); err != nil {
				return err
			}
			if _, err := h.Exec.PendingPlace(order, order.CancelID); err != nil {
				h.rejectOrder(ctx, order, err)
				return err
			}
		}

		result = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ModifyPendingRequest is the validated shape of a modify-pending intent.
type ModifyPendingRequest struct {
	OrderID     string
	NewPrice    decimal.Decimal
	SpreadPip   decimal.Decimal
	GroupSpread decimal.Decimal
}

// ModifyPending re-adds the sorted-index member with the new compare_price,
// rewrites its pending metadata (compare_price, user_price) and the canonical
// order_price. These keys sit in different slots, so the writes run one after
// another and are not atomic. The provider path stages a MODIFY status and
// dispatches a pending-modify, per spec.md §4.6.
func (h *Handlers) ModifyPending(ctx context.Context, req *ModifyPendingRequest) (*domain.Order, error) {
	order, err := h.Cache.GetOrderData(ctx, req.OrderID)
	if err != nil {
		if err == cache.ErrMiss {
			return nil, apierr.New(apierr.NotFound, "order not found")
		}
		return nil, apierr.Wrap(apierr.Transient, "load order", err)
	}
	if order.OrderStatus != domain.StatusPending && order.OrderStatus != domain.StatusPendingQueued {
		return nil, apierr.New(apierr.Precondition, "order is not pending")
	}

	var result *domain.Order
	err = h.withUserLock(ctx, order.UserType, order.UserID, func() error {
		halfSpread := req.GroupSpread.Mul(req.SpreadPip).Div(decimal.NewFromInt(2))
		newCompare := req.NewPrice.Sub(halfSpread)

		if order.OrderStatus == domain.StatusPending {
			if err := h.Cache.WritePendingIndex(ctx, &domain.PendingRecord{
				OrderID:      order.OrderID,
				Symbol:       order.Symbol,
				PendingType:  order.Kind,
				ComparePrice: newCompare,
				UserPrice:    req.NewPrice,
				UserType:     order.UserType,
				UserID:       order.UserID,
				Quantity:     order.Quantity,
			}); err != nil {
				return apierr.Wrap(apierr.Transient, "modify pending index", err)
			}
			order.Price = req.NewPrice
			if err := h.Cache.WriteOrderData(ctx, order); err != nil {
				return apierr.Wrap(apierr.Transient, "mirror modified order", err)
			}
		} else {
			modifyID, err := h.IDs.Next(idgen.ClassModify)
			if err != nil {
				return apierr.Wrap(apierr.Transient, "mint modify id", err)
			}
			order.ModifyID = modifyID
			order.OrderStatus = domain.StatusModify
			if err := h.Cache.WriteOrderData(ctx, order); err != nil {
				return apierr.Wrap(apierr.Transient, "mirror staged modify", err)
			}
			if _, err := h.Exec.PendingModify(order.OrderID, modifyID, req.NewPrice); err != nil {
				return err
			}
		}

		result = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CancelPendingRequest cancels a still-pending order.
type CancelPendingRequest struct {
	OrderID string
}

func (h *Handlers) CancelPending(ctx context.Context, req *CancelPendingRequest) error {
	order, err := h.Cache.GetOrderData(ctx, req.OrderID)
	if err != nil {
		if err == cache.ErrMiss {
			return apierr.New(apierr.NotFound, "order not found")
		}
		return apierr.Wrap(apierr.Transient, "load order", err)
	}
	if !order.Kind.IsPending() || order.OrderStatus.Terminal() {
		return apierr.New(apierr.Precondition, "order is not an active pending order")
	}

	return h.withUserLock(ctx, order.UserType, order.UserID, func() error {
		if order.OrderStatus == domain.StatusPending {
			if err := h.Cache.RemovePendingIndex(ctx, order.Symbol, string(order.Kind), order.OrderID); err != nil {
				return apierr.Wrap(apierr.Transient, "remove pending index", err)
			}
			order.OrderStatus = domain.StatusCancelled
			if err := h.OrderRepo.UpdateStatus(order.OrderID, domain.StatusCancelled, map[string]any{}); err != nil {
				return apierr.Wrap(apierr.Transient, "persist cancel", err)
			}
			if err := h.Cache.DeleteOrderData(ctx, order.OrderID); err != nil {
				return apierr.Wrap(apierr.Transient, "clear canonical", err)
			}
			return nil
		}

		order.OrderStatus = domain.StatusPendingCancel
		if err := h.Cache.WriteOrderData(ctx, order); err != nil {
			return apierr.Wrap(apierr.Transient, "mirror staged cancel", err)
		}
		_, err := h.Exec.PendingCancel(order.OrderID, order.CancelID)
		return err
	})
}
