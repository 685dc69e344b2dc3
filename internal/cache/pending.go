package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/orderflow/internal/domain"
)

// WritePendingIndex adds (order_id → compare_price) to the sorted index for
// (symbol, pending_type) and the order's metadata hash. These two keys do
// not share a hash tag with each other or with order_data, so callers must
// not bundle this with a same-slot batch — it's always two sequential ops.
func (s *Store) WritePendingIndex(ctx context.Context, rec *domain.PendingRecord) error {
	score, _ := rec.ComparePrice.Float64()
	if err := s.rdb.ZAdd(ctx, pendingIndexKey(rec.Symbol, string(rec.PendingType)), redis.Z{
		Score:  score,
		Member: rec.OrderID,
	}).Err(); err != nil {
		return fmt.Errorf("cache: pending_index add %s: %w", rec.OrderID, err)
	}

	meta := map[string]any{
		"order_id":      rec.OrderID,
		"symbol":        rec.Symbol,
		"pending_type":  string(rec.PendingType),
		"compare_price": rec.ComparePrice.String(),
		"user_price":    rec.UserPrice.String(),
		"user_type":     string(rec.UserType),
		"user_id":       rec.UserID,
		"quantity":      rec.Quantity.String(),
	}
	if err := s.rdb.HSet(ctx, pendingOrdersKey(rec.OrderID), meta).Err(); err != nil {
		return fmt.Errorf("cache: pending_orders %s: %w", rec.OrderID, err)
	}
	return s.rdb.SAdd(ctx, pendingActiveSymbolsKey(), rec.Symbol).Err()
}

// RemovePendingIndex removes the member and its metadata, used by both C6
// (cancel) and C7 (trigger), per spec.md §3's lifecycle note.
func (s *Store) RemovePendingIndex(ctx context.Context, symbol, pendingType, orderID string) error {
	if err := s.rdb.ZRem(ctx, pendingIndexKey(symbol, pendingType), orderID).Err(); err != nil {
		return fmt.Errorf("cache: pending_index rem %s: %w", orderID, err)
	}
	return s.rdb.Del(ctx, pendingOrdersKey(orderID)).Err()
}

// ModifyPendingIndex re-adds the member with a new score, the "re-add with
// new score" semantics spec.md §4.6 describes for modify-pending.
func (s *Store) ModifyPendingIndex(ctx context.Context, symbol, pendingType, orderID string, newComparePrice decimal.Decimal) error {
	score, _ := newComparePrice.Float64()
	return s.rdb.ZAdd(ctx, pendingIndexKey(symbol, pendingType), redis.Z{
		Score:  score,
		Member: orderID,
	}).Err()
}

// ScanPendingIndex returns the order ids whose compare_price sits between
// lo and hi (inclusive), the range C7 uses to find triggerable members.
func (s *Store) ScanPendingIndex(ctx context.Context, symbol, pendingType string, lo, hi string) ([]string, error) {
	return s.rdb.ZRangeByScore(ctx, pendingIndexKey(symbol, pendingType), &redis.ZRangeBy{
		Min: lo,
		Max: hi,
	}).Result()
}

// PendingMeta fetches the metadata hash for a pending order id.
func (s *Store) PendingMeta(ctx context.Context, orderID string) (*domain.PendingRecord, error) {
	m, err := s.rdb.HGetAll(ctx, pendingOrdersKey(orderID)).Result()
	if err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, ErrMiss
	}
	return &domain.PendingRecord{
		OrderID:      m["order_id"],
		Symbol:       m["symbol"],
		PendingType:  domain.OrderKind(m["pending_type"]),
		ComparePrice: parseDecimal(m["compare_price"]),
		UserPrice:    parseDecimal(m["user_price"]),
		UserType:     domain.UserType(m["user_type"]),
		UserID:       m["user_id"],
		Quantity:     parseDecimal(m["quantity"]),
	}, nil
}

func (s *Store) ActiveSymbols(ctx context.Context) ([]string, error) {
	return s.rdb.SMembers(ctx, pendingActiveSymbolsKey()).Result()
}

func (s *Store) AddSymbolHolder(ctx context.Context, symbol, userType, holderTag string) error {
	return s.rdb.SAdd(ctx, symbolHoldersKey(symbol, userType), holderTag).Err()
}

func (s *Store) RemoveSymbolHolder(ctx context.Context, symbol, userType, holderTag string) error {
	return s.rdb.SRem(ctx, symbolHoldersKey(symbol, userType), holderTag).Err()
}

func (s *Store) SymbolHolders(ctx context.Context, symbol, userType string) ([]string, error) {
	return s.rdb.SMembers(ctx, symbolHoldersKey(symbol, userType)).Result()
}
