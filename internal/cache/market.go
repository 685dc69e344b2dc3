package cache

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

func marketKey(symbol string) string {
	return "market:" + symbol
}

// MarketPrice is the live bid/ask C6 and C7 read for a symbol. It is
// written by the market-data feed, an external collaborator per spec.md §1
// — this package only exposes the read/write surface.
type MarketPrice struct {
	Bid decimal.Decimal
	Ask decimal.Decimal
}

func (s *Store) WriteMarketPrice(ctx context.Context, symbol string, p MarketPrice) error {
	return s.rdb.HSet(ctx, marketKey(symbol), map[string]any{
		"bid": p.Bid.String(),
		"ask": p.Ask.String(),
	}).Err()
}

// GetMarketPrice fails with ErrMiss when no price has ever been recorded
// for symbol — spec.md §4.6 step 1 requires the caller to fail 503 in that
// case rather than trade on a zero price.
func (s *Store) GetMarketPrice(ctx context.Context, symbol string) (MarketPrice, error) {
	m, err := s.rdb.HGetAll(ctx, marketKey(symbol)).Result()
	if err != nil {
		return MarketPrice{}, fmt.Errorf("cache: get market price %s: %w", symbol, err)
	}
	if len(m) == 0 {
		return MarketPrice{}, ErrMiss
	}
	return MarketPrice{Bid: parseDecimal(m["bid"]), Ask: parseDecimal(m["ask"])}, nil
}
