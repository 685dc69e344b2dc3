package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/orderflow/internal/domain"
)

type Store struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// IsEnabled reports liveness, the same contract the teacher's storage and
// internal/database packages expose.
func (s *Store) IsEnabled(ctx context.Context) bool {
	return s.rdb.Ping(ctx).Err() == nil
}

// WriteOrderData writes the canonical order_data:<order_id> hash. This key
// never shares a slot with any other key this package writes, so it is
// always a standalone operation, never folded into a same-slot pipeline.
func (s *Store) WriteOrderData(ctx context.Context, o *domain.Order) error {
	if err := s.rdb.HSet(ctx, orderDataKey(o.OrderID), orderFields(o)).Err(); err != nil {
		return fmt.Errorf("cache: write order_data %s: %w", o.OrderID, err)
	}
	return nil
}

func (s *Store) GetOrderData(ctx context.Context, orderID string) (*domain.Order, error) {
	m, err := s.rdb.HGetAll(ctx, orderDataKey(orderID)).Result()
	if err != nil {
		return nil, fmt.Errorf("cache: get order_data %s: %w", orderID, err)
	}
	o := parseOrderFields(m)
	if o == nil {
		return nil, ErrMiss
	}
	return o, nil
}

func (s *Store) DeleteOrderData(ctx context.Context, orderID string) error {
	return s.rdb.Del(ctx, orderDataKey(orderID)).Err()
}

// ErrMiss indicates the requested canonical record is absent — expected
// after terminal states, per spec.md §3.
var ErrMiss = errors.New("cache: miss")

// WriteUserConfig/GetUserConfig back the user:{type:id}:config hash (wallet
// balance, sending_orders, ...).
func (s *Store) WriteUserConfig(ctx context.Context, u *domain.User) error {
	fields := map[string]any{
		"wallet_balance": u.WalletBalance.String(),
		"net_profit":     u.NetProfit.String(),
		"margin":         u.Margin.String(),
		"group":          u.Group,
		"leverage":       u.Leverage,
		"sending_orders": string(u.SendingOrders),
		"is_active":      u.IsActive,
		"status":         u.Status,
		"is_self_trading": u.IsSelfTrading,
		"role":           u.Role,
	}
	return s.rdb.HSet(ctx, userConfigKey(string(u.UserType), u.UserID), fields).Err()
}

func (s *Store) GetUserConfig(ctx context.Context, userType domain.UserType, userID string) (*domain.User, error) {
	m, err := s.rdb.HGetAll(ctx, userConfigKey(string(userType), userID)).Result()
	if err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, ErrMiss
	}
	u := &domain.User{
		UserType:      userType,
		UserID:        userID,
		WalletBalance: parseDecimal(m["wallet_balance"]),
		NetProfit:     parseDecimal(m["net_profit"]),
		Margin:        parseDecimal(m["margin"]),
		Group:         m["group"],
		SendingOrders: domain.SendingOrders(m["sending_orders"]),
		Status:        m["status"],
		Role:          m["role"],
	}
	return u, nil
}

// UpdateUserBalance is the best-effort post-commit mirror of a new wallet
// balance (spec.md §4.9's "best-effort mirror ... after commit").
func (s *Store) UpdateUserBalance(ctx context.Context, userType domain.UserType, userID string, balance, margin decimal.Decimal) error {
	return s.rdb.HSet(ctx, userConfigKey(string(userType), userID), map[string]any{
		"wallet_balance": balance.String(),
		"margin":         margin.String(),
	}).Err()
}

// UserOrdersIndex reads the user_orders_index:{type:id} set, the operator
// read path for admin.Rebuilder's portfolio-snapshot operation.
func (s *Store) UserOrdersIndex(ctx context.Context, userType, userID string) ([]string, error) {
	ids, err := s.rdb.SMembers(ctx, userOrdersIndexKey(userType, userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("cache: user_orders_index %s:%s: %w", userType, userID, err)
	}
	return ids, nil
}

// GetHolding reads one user_holdings:{type:id}:order_id hash, returning
// false when absent rather than an error — a missing holding is a normal
// drift condition admin.Rebuilder repairs, not a failure.
func (s *Store) GetHolding(ctx context.Context, userType, userID, orderID string) (map[string]string, bool, error) {
	m, err := s.rdb.HGetAll(ctx, userHoldingsKey(userType, userID, orderID)).Result()
	if err != nil {
		return nil, false, fmt.Errorf("cache: get holding %s:%s:%s: %w", userType, userID, orderID, err)
	}
	if len(m) == 0 {
		return nil, false, nil
	}
	return m, true, nil
}

// AcquireOrderProcessing sets order_processing:<order_id> with a TTL
// (spec.md §4.8 step 2). Returns false if already held — the caller must
// requeue the message.
func (s *Store) AcquireOrderProcessing(ctx context.Context, orderID string, ttl time.Duration) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, orderProcessingLockKey(orderID), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("cache: acquire order_processing %s: %w", orderID, err)
	}
	return ok, nil
}

func (s *Store) ReleaseOrderProcessing(ctx context.Context, orderID string) error {
	return s.rdb.Del(ctx, orderProcessingLockKey(orderID)).Err()
}

// ClosePayoutApplied is the idempotency guard C9 is invoked under: a
// set-if-absent with a 7-day TTL (spec.md §4.8 step 5).
func (s *Store) ClosePayoutApplied(ctx context.Context, orderID string, ttl time.Duration) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, closePayoutAppliedKey(orderID), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("cache: idempotency %s: %w", orderID, err)
	}
	return ok, nil
}

// PublishEvent publishes onto portfolio_events for sibling-process
// re-emission (C10's cross-process bridge).
func (s *Store) PublishEvent(ctx context.Context, ev *domain.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.rdb.Publish(ctx, portfolioEventsChannel, payload).Err()
}

func (s *Store) SubscribeEvents(ctx context.Context) *redis.PubSub {
	return s.rdb.Subscribe(ctx, portfolioEventsChannel)
}
