// Package admin is the operator surface spec.md §6 names: admin-initiated
// rebuilds (rebuild user indices from the durable store, prune stale cache
// entries against durable, ensure single holding, ensure the symbol-holder
// set) and a portfolio snapshot read. Grounded on storage/database.go's raw
// database/sql + lib/pq style (a hand-written schema, direct SQL against
// Postgres) — these are bulk, cross-row reconciliation queries gorm's
// row-oriented API does not fit naturally, the same reason the teacher kept
// a raw-SQL storage layer alongside its ORM-backed one.
package admin

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/orderflow/internal/cache"
)

// Rebuilder runs raw reconciliation queries against the Postgres durable
// store to repair cache drift. It works only against Postgres: Open returns
// an error when the connection cannot be opened or pinged, and there is no
// fallback mode without a durable store.
type Rebuilder struct {
	db    *sql.DB
	cache *cache.Store
}

// Open connects directly via database/sql + lib/pq, independent of the
// gorm connection C4 otherwise uses, since this tool must survive being run
// standalone against a durable store whose application process is down.
func Open(databaseURL string, store *cache.Store) (*Rebuilder, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("admin: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("admin: ping: %w", err)
	}
	return &Rebuilder{db: db, cache: store}, nil
}

func (r *Rebuilder) Close() error {
	return r.db.Close()
}

// RebuildUserIndices scans every non-terminal order row for (userType,
// userID) and re-adds it to user_orders_index, the same index C6 maintains
// incrementally — this tool repairs drift after an outage rather than
// trusting the cache's running state.
func (r *Rebuilder) RebuildUserIndices(ctx context.Context, userType, userID string) (int, error) {
	rows, err := r.db.Query(`
		SELECT order_id FROM order_rows
		WHERE user_type = $1 AND user_id = $2
		  AND order_status NOT IN ('CLOSED', 'CANCELLED', 'REJECTED')
	`, userType, userID)
	if err != nil {
		return 0, fmt.Errorf("admin: rebuild user indices query: %w", err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var orderID string
		if err := rows.Scan(&orderID); err != nil {
			return n, fmt.Errorf("admin: scan order id: %w", err)
		}
		batch := cache.NewUserHoldingsBatch(userType, userID)
		batch.AddToIndex(userType, userID, orderID)
		if err := r.cache.Exec(ctx, batch); err != nil {
			log.Warn().Err(err).Str("order_id", orderID).Msg("admin: re-add to user index failed")
			continue
		}
		n++
	}
	return n, rows.Err()
}

// PruneStaleCacheEntries removes any user_orders_index member whose durable
// row is terminal, repairing the case where a reconciliation crash left a
// CLOSED/CANCELLED/REJECTED order still indexed (spec.md §8's invariant
// that terminal orders are absent from C3 indices).
func (r *Rebuilder) PruneStaleCacheEntries(ctx context.Context, userType, userID string) (int, error) {
	rows, err := r.db.Query(`
		SELECT order_id FROM order_rows
		WHERE user_type = $1 AND user_id = $2
		  AND order_status IN ('CLOSED', 'CANCELLED', 'REJECTED')
	`, userType, userID)
	if err != nil {
		return 0, fmt.Errorf("admin: prune query: %w", err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var orderID string
		if err := rows.Scan(&orderID); err != nil {
			return n, fmt.Errorf("admin: scan order id: %w", err)
		}
		batch := cache.NewUserHoldingsBatch(userType, userID)
		batch.DeleteHolding(userType, userID, orderID)
		batch.RemoveFromIndex(userType, userID, orderID)
		if err := r.cache.Exec(ctx, batch); err != nil {
			log.Warn().Err(err).Str("order_id", orderID).Msg("admin: prune stale entry failed")
			continue
		}
		if err := r.cache.DeleteOrderData(ctx, orderID); err != nil {
			log.Warn().Err(err).Str("order_id", orderID).Msg("admin: prune canonical record failed")
			continue
		}
		n++
	}
	return n, rows.Err()
}

// EnsureSymbolHolderSet rebuilds symbol_holders:<symbol>:<user_type> from
// every non-terminal order row, the derived index spec.md §4.3 names.
func (r *Rebuilder) EnsureSymbolHolderSet(ctx context.Context, symbol, userType string) (int, error) {
	rows, err := r.db.Query(`
		SELECT DISTINCT user_id FROM order_rows
		WHERE symbol = $1 AND user_type = $2
		  AND order_status NOT IN ('CLOSED', 'CANCELLED', 'REJECTED')
	`, symbol, userType)
	if err != nil {
		return 0, fmt.Errorf("admin: symbol holders query: %w", err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return n, fmt.Errorf("admin: scan user id: %w", err)
		}
		holderTag := fmt.Sprintf("%s:%s", userType, userID)
		if err := r.cache.AddSymbolHolder(ctx, symbol, userType, holderTag); err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("admin: add symbol holder failed")
			continue
		}
		n++
	}
	return n, rows.Err()
}

// EnsureSingleHolding reconciles one order's user_holdings entry against its
// durable row: present and current for a non-terminal order, absent for a
// terminal one. The single-order counterpart to RebuildUserIndices/
// PruneStaleCacheEntries' bulk passes, for an operator who only needs to
// repair one order's drift (spec.md §6).
func (r *Rebuilder) EnsureSingleHolding(ctx context.Context, userType, userID, orderID string) error {
	var symbol, kind, status string
	err := r.db.QueryRowContext(ctx, `
		SELECT symbol, kind, order_status FROM order_rows
		WHERE order_id = $1 AND user_type = $2 AND user_id = $3
	`, orderID, userType, userID).Scan(&symbol, &kind, &status)
	if err != nil {
		return fmt.Errorf("admin: load order row for single holding: %w", err)
	}

	batch := cache.NewUserHoldingsBatch(userType, userID)
	switch status {
	case "CLOSED", "CANCELLED", "REJECTED":
		batch.DeleteHolding(userType, userID, orderID)
		batch.RemoveFromIndex(userType, userID, orderID)
	default:
		batch.SetHolding(userType, userID, orderID, map[string]any{
			"order_id":     orderID,
			"symbol":       symbol,
			"order_type":   kind,
			"order_status": status,
		})
		batch.AddToIndex(userType, userID, orderID)
	}
	if err := r.cache.Exec(ctx, batch); err != nil {
		return fmt.Errorf("admin: ensure single holding: %w", err)
	}
	return nil
}

// PortfolioSnapshot is the operator's read-only view of a user's current
// holdings, assembled straight from C3 so it reflects exactly what the live
// order paths see rather than a possibly-lagging durable read (spec.md §6).
type PortfolioSnapshot struct {
	UserType string
	UserID   string
	Holdings []map[string]string
}

// PortfolioSnapshot reads every order currently indexed for a user and
// returns its holding hash.
func (r *Rebuilder) PortfolioSnapshot(ctx context.Context, userType, userID string) (*PortfolioSnapshot, error) {
	orderIDs, err := r.cache.UserOrdersIndex(ctx, userType, userID)
	if err != nil {
		return nil, fmt.Errorf("admin: portfolio snapshot index: %w", err)
	}

	snap := &PortfolioSnapshot{UserType: userType, UserID: userID}
	for _, orderID := range orderIDs {
		holding, ok, err := r.cache.GetHolding(ctx, userType, userID, orderID)
		if err != nil {
			return nil, fmt.Errorf("admin: portfolio snapshot holding %s: %w", orderID, err)
		}
		if !ok {
			log.Warn().Str("order_id", orderID).Msg("admin: indexed order missing its holding")
			continue
		}
		snap.Holdings = append(snap.Holdings, holding)
	}
	return snap, nil
}
