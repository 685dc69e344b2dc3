// Package pending is the trigger index worker C7: OnTick is called once per
// symbol with its current ask (cmd/orderflow does so from a single polling
// loop over the active symbols), scanning the sorted index for each
// (symbol, pending_type) and promoting triggered members to instant
// executions. Grounded on the trigger comparator switch in
// other_examples/…YoForex005-Trading-Engine__backend-orders-pending.go.go's
// checkPendingOrders, adapted from an in-memory slice scan to the Redis
// sorted-index model of spec.md §4.3/§4.7.
//
// This worker is the sole authority on trigger polarity (Open Question #3):
// compare_price = user_price - half_spread is computed uniformly for all
// four pending subtypes at intake, and the direction below is what actually
// decides when a member fires.
package pending

import (
	"context"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/orderflow/internal/cache"
	"github.com/web3guy0/orderflow/internal/domain"
	"github.com/web3guy0/orderflow/internal/execclient"
)

// Executor is the subset of execclient.Client the worker dispatches to.
type Executor interface {
	InstantExecute(o *domain.Order) (*execclient.Response, error)
}

type Worker struct {
	cache    *cache.Store
	exec     Executor
	onTrigger func(ctx context.Context, o *domain.Order)
}

func New(store *cache.Store, exec Executor, onTrigger func(ctx context.Context, o *domain.Order)) *Worker {
	return &Worker{cache: store, exec: exec, onTrigger: onTrigger}
}

// direction tells ScanPendingIndex which side of ask to scan.
type direction int

const (
	triggersBelow direction = iota // ask <= compare_price
	triggersAbove                  // ask >= compare_price
)

func directionFor(kind domain.OrderKind) direction {
	switch kind {
	case domain.KindBuyLimit, domain.KindSellStop:
		return triggersBelow
	default: // KindSellLimit, KindBuyStop
		return triggersAbove
	}
}

// OnTick evaluates every pending_type index for symbol against the current
// ask, per spec.md §4.7.
func (w *Worker) OnTick(ctx context.Context, symbol string, ask float64) {
	for _, kind := range []domain.OrderKind{domain.KindBuyLimit, domain.KindSellLimit, domain.KindBuyStop, domain.KindSellStop} {
		w.evaluate(ctx, symbol, kind, ask)
	}
}

func (w *Worker) evaluate(ctx context.Context, symbol string, kind domain.OrderKind, ask float64) {
	var candidates []string
	var err error

	askStr := strconv.FormatFloat(ask, 'f', -1, 64)
	switch directionFor(kind) {
	case triggersBelow:
		candidates, err = w.cache.ScanPendingIndex(ctx, symbol, string(kind), askStr, "+inf")
	case triggersAbove:
		candidates, err = w.cache.ScanPendingIndex(ctx, symbol, string(kind), "-inf", askStr)
	}
	if err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Str("kind", string(kind)).Msg("pending: scan failed")
		return
	}

	for _, orderID := range candidates {
		w.tryTrigger(ctx, symbol, kind, orderID)
	}
}

// tryTrigger re-verifies the order is still PENDING before dispatching —
// the worker may observe the same member twice before its removal
// propagates, so re-evaluation after the first trigger must be a no-op.
func (w *Worker) tryTrigger(ctx context.Context, symbol string, kind domain.OrderKind, orderID string) {
	meta, err := w.cache.PendingMeta(ctx, orderID)
	if err != nil {
		if err == cache.ErrMiss {
			return // already triggered/cancelled by a concurrent evaluation
		}
		log.Warn().Err(err).Str("order_id", orderID).Msg("pending: meta lookup failed")
		return
	}

	order, err := w.cache.GetOrderData(ctx, orderID)
	if err != nil {
		log.Warn().Err(err).Str("order_id", orderID).Msg("pending: order lookup failed")
		return
	}
	if order.OrderStatus != domain.StatusPending {
		return
	}

	if err := w.cache.RemovePendingIndex(ctx, symbol, string(kind), orderID); err != nil {
		log.Warn().Err(err).Str("order_id", orderID).Msg("pending: remove from index failed")
		return
	}

	order.Price = meta.UserPrice
	resp, err := w.exec.InstantExecute(order)
	if err != nil {
		log.Warn().Err(err).Str("order_id", orderID).Msg("pending: instant dispatch failed")
		return
	}

	if resp.Flow == domain.FlowLocal {
		order.OrderStatus = domain.StatusOpen
		order.Status = domain.StatusOpen
		order.Price = resp.ExecPrice
		order.ContractValue = resp.ContractValue
		order.Margin = resp.MarginUSD
		order.Commission = resp.CommissionEntry
		if err := w.cache.WriteOrderData(ctx, order); err != nil {
			log.Warn().Err(err).Str("order_id", orderID).Msg("pending: mirror after trigger failed")
		}
	}

	if w.onTrigger != nil {
		w.onTrigger(ctx, order)
	}
}
