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

// loadOpenOrder is the shared precondition chokepoint for close/cancel/
// SL/TP intents (spec.md §4.6): order must exist, be OPEN, and its symbol's
// asset-class market must currently be open.
func (h *Handlers) loadOpenOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := h.Cache.GetOrderData(ctx, orderID)
	if err != nil {
		if err == cache.ErrMiss {
			return nil, apierr.New(apierr.NotFound, "order not found")
		}
		return nil, apierr.Wrap(apierr.Transient, "load order", err)
	}
	if order.OrderStatus != domain.StatusOpen {
		return nil, apierr.New(apierr.Precondition, "order is not open")
	}
	if !domain.MarketOpen(order.Symbol, time.Now()) {
		return nil, apierr.New(apierr.Authorization, "market closed for symbol outside weekday hours")
	}
	return order, nil
}

// Close implements the close intent of spec.md §4.6: mint close_id, stage it
// on the canonical cache record, and call C5. No state change is applied
// here for either flow; the order closes only when the reconciliation worker
// applies the close confirmation.
func (h *Handlers) Close(ctx context.Context, orderID string) error {
	order, err := h.loadOpenOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.CloseID != "" {
		return apierr.New(apierr.Precondition, "close already in flight")
	}

	return h.withUserLock(ctx, order.UserType, order.UserID, func() error {
		closeID, err := h.IDs.Next(idgen.ClassClose)
		if err != nil {
			return apierr.Wrap(apierr.Transient, "mint close id", err)
		}
		order.CloseID = closeID
		if err := h.Cache.WriteOrderData(ctx, order); err != nil {
			return apierr.Wrap(apierr.Transient, "mirror staged close", err)
		}

		resp, err := h.Exec.Close(order.OrderID, closeID)
		if err != nil {
			return err
		}
		if resp.Flow == domain.FlowLocal {
			// Local closes still go through the reconciliation worker's
			// payout path once the confirmation event loops back in; the
			// RPC itself only confirms dispatch succeeded.
			return nil
		}
		return nil
	})
}

// Cancel implements the cancel intent for an OPEN order.
func (h *Handlers) Cancel(ctx context.Context, orderID string) error {
	order, err := h.loadOpenOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.CancelID != "" {
		return apierr.New(apierr.Precondition, "cancel already in flight")
	}

	return h.withUserLock(ctx, order.UserType, order.UserID, func() error {
		cancelID, err := h.IDs.Next(idgen.ClassCancel)
		if err != nil {
			return apierr.Wrap(apierr.Transient, "mint cancel id", err)
		}
		order.CancelID = cancelID
		if err := h.Cache.WriteOrderData(ctx, order); err != nil {
			return apierr.Wrap(apierr.Transient, "mirror staged cancel", err)
		}
		_, err = h.Exec.Cancel(order.OrderID, cancelID)
		return err
	})
}

// StoplossAdd attaches a stop-loss trigger to an OPEN order.
func (h *Handlers) StoplossAdd(ctx context.Context, orderID string, price decimal.Decimal) error {
	order, err := h.loadOpenOrder(ctx, orderID)
	if err != nil {
		return err
	}

	return h.withUserLock(ctx, order.UserType, order.UserID, func() error {
		slID, err := h.IDs.Next(idgen.ClassStoploss)
		if err != nil {
			return apierr.Wrap(apierr.Transient, "mint stoploss id", err)
		}
		order.StoplossID = slID
		sl := price
		order.StopLoss = &sl
		if err := order.ValidateTriggers(); err != nil {
			return apierr.Wrap(apierr.Validation, "stop_loss ordering invariant", err)
		}
		if err := h.Cache.WriteOrderData(ctx, order); err != nil {
			return apierr.Wrap(apierr.Transient, "mirror staged sl", err)
		}
		_, err = h.Exec.StoplossAdd(order.OrderID, slID, price)
		return err
	})
}

// StoplossCancel removes an order's stop-loss trigger.
func (h *Handlers) StoplossCancel(ctx context.Context, orderID string) error {
	order, err := h.loadOpenOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.StoplossID == "" {
		return apierr.New(apierr.Precondition, "no stop-loss trigger set")
	}

	return h.withUserLock(ctx, order.UserType, order.UserID, func() error {
		slCancelID, err := h.IDs.Next(idgen.ClassStoplossCancel)
		if err != nil {
			return apierr.Wrap(apierr.Transient, "mint stoploss_cancel id", err)
		}
		order.StoplossCancelID = slCancelID
		if err := h.Cache.WriteOrderData(ctx, order); err != nil {
			return apierr.Wrap(apierr.Transient, "mirror staged sl cancel", err)
		}
		_, err = h.Exec.StoplossCancel(order.OrderID, slCancelID)
		return err
	})
}

// TakeprofitAdd attaches a take-profit trigger to an OPEN order.
func (h *Handlers) TakeprofitAdd(ctx context.Context, orderID string, price decimal.Decimal) error {
	order, err := h.loadOpenOrder(ctx, orderID)
	if err != nil {
		return err
	}

	return h.withUserLock(ctx, order.UserType, order.UserID, func() error {
		tpID, err := h.IDs.Next(idgen.ClassTakeprofit)
		if err != nil {
			return apierr.Wrap(apierr.Transient, "mint takeprofit id", err)
		}
		order.TakeprofitID = tpID
		tp := price
		order.TakeProfit = &tp
		if err := order.ValidateTriggers(); err != nil {
			return apierr.Wrap(apierr.Validation, "take_profit ordering invariant", err)
		}
		if err := h.Cache.WriteOrderData(ctx, order); err != nil {
			return apierr.Wrap(apierr.Transient, "mirror staged tp", err)
		}
		_, err = h.Exec.TakeprofitAdd(order.OrderID, tpID, price)
		return err
	})
}

// TakeprofitCancel removes an order's take-profit trigger.
func (h *Handlers) TakeprofitCancel(ctx context.Context, orderID string) error {
	order, err := h.loadOpenOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.TakeprofitID == "" {
		return apierr.New(apierr.Precondition, "no take-profit trigger set")
	}

	return h.withUserLock(ctx, order.UserType, order.UserID, func() error {
		tpCancelID, err := h.IDs.Next(idgen.ClassTakeprofitCancel)
		if err != nil {
			return apierr.Wrap(apierr.Transient, "mint takeprofit_cancel id", err)
		}
		order.TakeprofitCancelID = tpCancelID
		if err := h.Cache.WriteOrderData(ctx, order); err != nil {
			return apierr.Wrap(apierr.Transient, "mirror staged tp cancel", err)
		}
		_, err = h.Exec.TakeprofitCancel(order.OrderID, tpCancelID)
		return err
	})
}
