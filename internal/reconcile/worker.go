package reconcile

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/web3guy0/orderflow/internal/apierr"
	"github.com/web3guy0/orderflow/internal/cache"
	"github.com/web3guy0/orderflow/internal/domain"
	"github.com/web3guy0/orderflow/internal/durable"
	"github.com/web3guy0/orderflow/internal/eventbus"
	"github.com/web3guy0/orderflow/internal/payout"
	"github.com/web3guy0/orderflow/internal/posthook"
)

const orderProcessingTTL = 60 * time.Second

// Worker is C8: one instance is shared by every partitioned queue consumer
// goroutine, each calling Run on its own delivery channel, applying
// every confirmation message to the durable store and canonical cache under
// the per-order processing lock. Grounded on execution/reconciler.go's
// Reconciler{executor, db} shape, generalized from position recovery to the
// full message-driven reconciliation loop, and on the Tim275-oms consumer
// files' ack/nack-with-DLX discipline.
type Worker struct {
	Cache      *cache.Store
	Durable    *durable.Store
	OrderRepo  *durable.OrderRepo
	UserRepo   *durable.UserRepo
	WalletRepo *durable.WalletRepo
	Rejections *durable.RejectionRepo
	Payout     *payout.Service
	Bus        *eventbus.Bus
	Hooks      *posthook.Pool
}

// Run drains deliveries until ctx is cancelled or the channel closes.
func (w *Worker) Run(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			w.handle(ctx, d)
		}
	}
}

func (w *Worker) handle(ctx context.Context, d amqp.Delivery) {
	msg, err := Decode(d.Body)
	if err != nil {
		log.Error().Err(err).Msg("reconcile: poison message, routing to DLX")
		_ = d.Nack(false, false)
		return
	}

	err = w.apply(ctx, msg)
	if err == nil {
		_ = d.Ack(false)
		return
	}

	kind := apierr.KindOf(err)
	switch kind {
	case apierr.Transient:
		log.Warn().Err(err).Str("order_id", msg.OrderID).Msg("reconcile: transient failure, requeueing")
		_ = d.Nack(false, true)
	case apierr.Precondition:
		// Another consumer holds the order-processing lock; give it back to
		// the broker to retry shortly rather than spin locally.
		_ = d.Nack(false, true)
	default:
		log.Error().Err(err).Str("order_id", msg.OrderID).Msg("reconcile: structural failure, routing to DLX")
		_ = d.Nack(false, false)
	}
}

// apply implements spec.md §4.8 steps 1-10 for one confirmation message.
func (w *Worker) apply(ctx context.Context, msg *domain.Confirmation) error {
	if msg.OrderID == "" {
		// System/derived messages (MAM aggregates, unknown types) have no
		// single order to reconcile; the generic handler only counts them.
		return nil
	}

	acquired, err := w.Cache.AcquireOrderProcessing(ctx, msg.OrderID, orderProcessingTTL)
	if err != nil {
		return apierr.Wrap(apierr.Transient, "acquire order_processing lock", err)
	}
	if !acquired {
		return apierr.New(apierr.Precondition, "order already being reconciled")
	}
	defer func() {
		if err := w.Cache.ReleaseOrderProcessing(ctx, msg.OrderID); err != nil {
			log.Warn().Err(err).Str("order_id", msg.OrderID).Msg("reconcile: release order_processing lock")
		}
	}()

	var finalOrder *domain.Order
	var payoutApplied bool

	txErr := durable.WithRetry(w.Durable.DB(), func(tx *gorm.DB) error {
		row, err := w.lockOrBackfill(ctx, tx, msg)
		if err != nil {
			return err
		}
		order := row.ToDomain()

		w.resolveCloseMessage(order, msg)
		w.applyFields(order, msg)

		if msg.Type == domain.MsgOrderCloseConfirmed {
			applied, err := w.applyPayout(ctx, tx, order, msg)
			if err != nil {
				return err
			}
			payoutApplied = applied
		}

		if msg.Type == domain.MsgOrderOpenConfirmed || msg.Type == domain.MsgOrderPendingTriggered {
			if err := w.applyMarginIncrease(tx, order, msg); err != nil {
				return err
			}
		}

		if msg.Type == domain.MsgOrderRejected {
			if err := w.Rejections.Insert(&domain.RejectionRecord{
				CanonicalOrderID: order.OrderID,
				RejectionType:    string(msg.TriggerKind),
				Reason:           msg.CloseOrigin,
				Symbol:           order.Symbol,
				UserID:           order.UserID,
				UserType:         order.UserType,
			}); err != nil {
				return apierr.Wrap(apierr.Transient, "insert rejection record", err)
			}
		}

		if err := w.OrderRepo.Save(tx, order); err != nil {
			return apierr.Wrap(apierr.Transient, "persist confirmed order", err)
		}

		finalOrder = order
		return nil
	})
	if txErr != nil {
		return txErr
	}

	if err := w.mirrorCache(ctx, finalOrder); err != nil {
		// Cache mirroring is best-effort relative to the durable commit,
		// which has already succeeded; log and continue rather than
		// requeue a message whose durable effect already landed.
		log.Warn().Err(err).Str("order_id", finalOrder.OrderID).Msg("reconcile: cache mirror failed")
	}

	w.emitEvents(ctx, finalOrder, msg, payoutApplied)
	return nil
}

// lockOrBackfill selects the durable order row FOR UPDATE, inserting one
// from the canonical cache snapshot first if the durable row hasn't caught
// up yet (spec.md §4.8 step 3).
func (w *Worker) lockOrBackfill(ctx context.Context, tx *gorm.DB, msg *domain.Confirmation) (*durable.OrderRow, error) {
	var row durable.OrderRow
	err := tx.Clauses(durable.LockingClauses(tx)...).First(&row, "order_id = ?", msg.OrderID).Error
	if err == nil {
		return &row, nil
	}
	if !durable.IsNotFound(err) {
		return nil, apierr.Wrap(apierr.Transient, "lock order row", err)
	}

	snapshot, cacheErr := w.Cache.GetOrderData(ctx, msg.OrderID)
	if cacheErr != nil {
		return nil, apierr.Wrap(apierr.Transient, "backfill durable row from cache", cacheErr)
	}
	if insertErr := w.OrderRepo.InsertIfMissing(tx, snapshot); insertErr != nil {
		return nil, apierr.Wrap(apierr.Transient, "insert backfilled order row", insertErr)
	}
	if err := tx.Clauses(durable.LockingClauses(tx)...).First(&row, "order_id = ?", msg.OrderID).Error; err != nil {
		return nil, apierr.Wrap(apierr.Transient, "lock backfilled order row", err)
	}
	return &row, nil
}

// resolveCloseMessage resolves close_message by exact lifecycle-id equality
// (Open Question #2): the message's trigger_lifecycle_id must match the
// stored id for its declared trigger_kind before that kind is trusted.
func (w *Worker) resolveCloseMessage(order *domain.Order, msg *domain.Confirmation) {
	if msg.Type != domain.MsgOrderCloseConfirmed {
		return
	}
	// Autocutoff is system-initiated on the provider's side; there is no
	// client-minted lifecycle id to echo back and compare, so trust the
	// declared trigger_kind directly rather than falling through to Closed.
	if msg.TriggerKind == domain.TriggerAutocutoff {
		order.CloseMessage = domain.CloseReasonAutocutoff
		return
	}
	if msg.TriggerLifecycleID != "" && msg.TriggerLifecycleID == order.LifecycleIDFor(msg.TriggerKind) {
		order.CloseMessage = domain.CloseMessageFor(msg.TriggerKind)
	} else {
		order.CloseMessage = domain.CloseReasonClosed
	}
}

// applyFields maps the confirmation onto the order row per message type,
// the "update set mapping confirmation fields to columns" step of §4.8.
func (w *Worker) applyFields(order *domain.Order, msg *domain.Confirmation) {
	order.UpdatedAt = time.Now()

	switch msg.Type {
	case domain.MsgOrderOpenConfirmed:
		order.OrderStatus = domain.StatusOpen
		order.Status = domain.StatusOpen

	case domain.MsgOrderCloseConfirmed:
		alreadyClosed := order.OrderStatus == domain.StatusClosed
		order.OrderStatus = domain.StatusClosed
		order.Status = domain.StatusClosed
		cp := msg.ClosePrice.Round(8)
		np := msg.NetProfit.Round(8)
		order.ClosePrice = &cp
		order.NetProfit = &np
		order.Swap = msg.Swap.Round(8)
		if !alreadyClosed {
			order.Commission = order.Commission.Add(msg.Commission.Round(8))
		}

	case domain.MsgOrderPendingConfirmed:
		order.OrderStatus = domain.StatusPending
		order.Status = domain.StatusPending

	case domain.MsgOrderPendingTriggered:
		order.OrderStatus = domain.StatusOpen
		order.Status = domain.StatusOpen
		order.Price = msg.ClosePrice.Round(8)

	case domain.MsgOrderPendingCancel:
		order.OrderStatus = domain.StatusCancelled
		order.Status = domain.StatusCancelled

	case domain.MsgOrderStoplossConfirmed:
		// stop_loss price itself was already staged by C6; nothing to flip.
	case domain.MsgOrderStoplossCancel:
		order.StopLoss = nil
		order.StoplossID = ""
		order.StoplossCancelID = ""

	case domain.MsgOrderTakeprofitConfirmed:
	case domain.MsgOrderTakeprofitCancel:
		order.TakeProfit = nil
		order.TakeprofitID = ""
		order.TakeprofitCancelID = ""

	case domain.MsgOrderRejected:
		order.OrderStatus = domain.StatusRejected
		order.Status = domain.StatusRejected

	case domain.MsgOrderCloseIDUpdate:
		order.CloseID = msg.TriggerLifecycleID
	}
}

// applyMarginIncrease mirrors intake.applyOpenLocally's margin step for the
// provider-flow path: a provider-confirmed OPEN (direct or via a triggered
// pending order) carries the margin the provider actually used, which must
// land on the user's aggregate row the same way the local flow does (spec.md
// §3's margin invariant, exercised by spec.md §8 scenario 2's second half).
func (w *Worker) applyMarginIncrease(tx *gorm.DB, order *domain.Order, msg *domain.Confirmation) error {
	order.Margin = msg.UsedMarginExecuted.Round(8)
	row, err := w.UserRepo.LockForUpdate(tx, order.UserType, order.UserID)
	if err != nil {
		return apierr.Wrap(apierr.Transient, "lock user row for margin increase", err)
	}
	newMargin := row.Margin.Add(order.Margin)
	if err := w.UserRepo.SaveMargin(tx, order.UserType, order.UserID, newMargin, row.WalletBalance); err != nil {
		return apierr.Wrap(apierr.Transient, "save increased margin", err)
	}
	return nil
}

// applyPayout invokes C9 under the close_payout_applied idempotency guard
// (spec.md §4.8 step 5), returning whether it actually ran.
func (w *Worker) applyPayout(ctx context.Context, tx *gorm.DB, order *domain.Order, msg *domain.Confirmation) (bool, error) {
	ok, err := w.Cache.ClosePayoutApplied(ctx, order.OrderID, 7*24*time.Hour)
	if err != nil {
		return false, apierr.Wrap(apierr.Transient, "close_payout_applied guard", err)
	}
	if !ok {
		return false, nil
	}

	if err := w.Payout.Apply(tx, payout.CloseInput{
		OrderID:    order.OrderID,
		UserType:   order.UserType,
		UserID:     order.UserID,
		NetProfit:  msg.NetProfit.Round(8),
		Commission: msg.Commission.Round(8),
	}); err != nil {
		return false, apierr.Wrap(apierr.Transient, "apply payout", err)
	}

	row, err := w.UserRepo.LockForUpdate(tx, order.UserType, order.UserID)
	if err != nil {
		return false, apierr.Wrap(apierr.Transient, "reload user after payout", err)
	}
	marginReleased := row.Margin.Sub(order.Margin)
	if marginReleased.IsNegative() {
		marginReleased = row.Margin.Sub(row.Margin)
	}
	if err := w.UserRepo.SaveMargin(tx, order.UserType, order.UserID, marginReleased, row.WalletBalance); err != nil {
		return false, apierr.Wrap(apierr.Transient, "release margin", err)
	}
	return true, nil
}

// mirrorCache applies the cache mirror of spec.md §4.3 as a cross-slot
// sequence: the standalone canonical order_data write (or delete), then the
// same-slot holdings+index batch, then the symbol_holders update, keeping
// the cross-slot rule even inside one message's reconciliation.
func (w *Worker) mirrorCache(ctx context.Context, order *domain.Order) error {
	userType, userID := string(order.UserType), order.UserID

	seq := cache.NewCrossSlotSequence()

	if order.OrderStatus.Terminal() {
		seq.Add(func(ctx context.Context) error { return w.Cache.DeleteOrderData(ctx, order.OrderID) })
		batch := cache.NewUserHoldingsBatch(userType, userID)
		batch.DeleteHolding(userType, userID, order.OrderID)
		batch.RemoveFromIndex(userType, userID, order.OrderID)
		seq.Add(func(ctx context.Context) error { return w.Cache.Exec(ctx, batch) })
		seq.Add(func(ctx context.Context) error {
			return w.Cache.RemoveSymbolHolder(ctx, order.Symbol, userType, order.OrderID)
		})
	} else {
		seq.Add(func(ctx context.Context) error { return w.Cache.WriteOrderData(ctx, order) })
		batch := cache.NewUserHoldingsBatch(userType, userID)
		batch.SetHolding(userType, userID, order.OrderID, map[string]any{
			"order_id":     order.OrderID,
			"symbol":       order.Symbol,
			"order_type":   string(order.Kind),
			"order_status": string(order.OrderStatus),
		})
		batch.AddToIndex(userType, userID, order.OrderID)
		seq.Add(func(ctx context.Context) error { return w.Cache.Exec(ctx, batch) })
		seq.Add(func(ctx context.Context) error {
			return w.Cache.AddSymbolHolder(ctx, order.Symbol, userType, order.OrderID)
		})
	}

	return seq.Run(ctx)
}

func (w *Worker) emitEvents(ctx context.Context, order *domain.Order, msg *domain.Confirmation, payoutApplied bool) {
	kind := eventKind(msg.Type)
	if kind == "" {
		return
	}
	payload := map[string]any{
		"kind":     kind,
		"order_id": order.OrderID,
	}
	if msg.Type == domain.MsgOrderCloseConfirmed {
		payload["payout_applied"] = payoutApplied
		payload["close_message"] = string(order.CloseMessage)
	}
	// Scheduled on the bounded post-commit pool rather than invoked inline,
	// per spec.md §9's "callbacks + setImmediate" redesign note — the
	// durable commit has already landed by this point.
	w.Hooks.Submit(func() { w.Bus.EmitUserUpdate(ctx, order.UserType, order.UserID, payload) })
}

func eventKind(t domain.MessageType) string {
	switch t {
	case domain.MsgOrderOpenConfirmed:
		return "order_opened"
	case domain.MsgOrderCloseConfirmed:
		return "order_closed"
	case domain.MsgOrderPendingConfirmed:
		return "pending_confirmed"
	case domain.MsgOrderPendingTriggered:
		return "pending_triggered"
	case domain.MsgOrderPendingCancel:
		return "pending_cancelled"
	case domain.MsgOrderStoplossConfirmed:
		return "stoploss_confirmed"
	case domain.MsgOrderStoplossCancel:
		return "stoploss_cancelled"
	case domain.MsgOrderTakeprofitConfirmed:
		return "takeprofit_confirmed"
	case domain.MsgOrderTakeprofitCancel:
		return "takeprofit_cancelled"
	case domain.MsgOrderRejected:
		return "order_rejection_created"
	default:
		return ""
	}
}
