// Package cache is the canonical store C3: the real-time source of truth
// for order state, user holdings, pending indices, and user config, backed
// by Redis. Keys that must co-locate under the same hash slot wrap the
// sharding-sensitive portion in a bracketed tag, per spec.md §4.3; the
// package enforces the same-slot/cross-slot split as two distinct writer
// types rather than letting callers build an arbitrary pipeline.
package cache

import "fmt"

func orderDataKey(orderID string) string {
	return "order_data:" + orderID
}

func userHoldingsKey(userType, userID, orderID string) string {
	return fmt.Sprintf("user_holdings:{%s:%s}:%s", userType, userID, orderID)
}

func userOrdersIndexKey(userType, userID string) string {
	return fmt.Sprintf("user_orders_index:{%s:%s}", userType, userID)
}

func pendingIndexKey(symbol, pendingType string) string {
	return fmt.Sprintf("pending_index:{%s}:%s", symbol, pendingType)
}

func pendingOrdersKey(orderID string) string {
	return "pending_orders:" + orderID
}

func symbolHoldersKey(symbol, userType string) string {
	return "symbol_holders:" + symbol + ":" + userType
}

func userConfigKey(userType, userID string) string {
	return fmt.Sprintf("user:{%s:%s}:config", userType, userID)
}

func pendingActiveSymbolsKey() string {
	return "pending_active_symbols"
}

func orderProcessingLockKey(orderID string) string {
	return "order_processing:" + orderID
}

func closePayoutAppliedKey(orderID string) string {
	return "close_payout_applied:" + orderID
}

const portfolioEventsChannel = "portfolio_events"
