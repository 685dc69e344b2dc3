package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// SameSlotBatch accumulates operations that all share one hash tag and
// executes them as a single pipeline. It is the only way this package lets
// a caller build a pipeline — every op added records the tag it was built
// for, and adding a key outside that tag is a programming error caught at
// construction rather than silently building a pipeline that would fail
// against a real Redis Cluster, per the "cross-component Redis pipelines"
// redesign note in spec.md §9.
type SameSlotBatch struct {
	tag string
	ops []func(pipe redis.Pipeliner) error
}

// NewUserHoldingsBatch scopes a batch to one user's hash tag — the only
// same-slot group spec.md §4.3 names (user_holdings + user_orders_index).
func NewUserHoldingsBatch(userType, userID string) *SameSlotBatch {
	return &SameSlotBatch{tag: fmt.Sprintf("%s:%s", userType, userID)}
}

func (b *SameSlotBatch) checkTag(gotTag string) {
	if gotTag != b.tag {
		panic(fmt.Sprintf("cache: same-slot batch built for tag %q, got op for tag %q", b.tag, gotTag))
	}
}

func (b *SameSlotBatch) SetHolding(userType, userID, orderID string, fields map[string]any) *SameSlotBatch {
	b.checkTag(fmt.Sprintf("%s:%s", userType, userID))
	key := userHoldingsKey(userType, userID, orderID)
	b.ops = append(b.ops, func(pipe redis.Pipeliner) error {
		return pipe.HSet(context.Background(), key, fields).Err()
	})
	return b
}

func (b *SameSlotBatch) DeleteHolding(userType, userID, orderID string) *SameSlotBatch {
	b.checkTag(fmt.Sprintf("%s:%s", userType, userID))
	key := userHoldingsKey(userType, userID, orderID)
	b.ops = append(b.ops, func(pipe redis.Pipeliner) error {
		return pipe.Del(context.Background(), key).Err()
	})
	return b
}

func (b *SameSlotBatch) AddToIndex(userType, userID, orderID string) *SameSlotBatch {
	b.checkTag(fmt.Sprintf("%s:%s", userType, userID))
	key := userOrdersIndexKey(userType, userID)
	b.ops = append(b.ops, func(pipe redis.Pipeliner) error {
		return pipe.SAdd(context.Background(), key, orderID).Err()
	})
	return b
}

func (b *SameSlotBatch) RemoveFromIndex(userType, userID, orderID string) *SameSlotBatch {
	b.checkTag(fmt.Sprintf("%s:%s", userType, userID))
	key := userOrdersIndexKey(userType, userID)
	b.ops = append(b.ops, func(pipe redis.Pipeliner) error {
		return pipe.SRem(context.Background(), key, orderID).Err()
	})
	return b
}

// Exec runs every accumulated op in a single pipeline call.
func (s *Store) Exec(ctx context.Context, b *SameSlotBatch) error {
	if len(b.ops) == 0 {
		return nil
	}
	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, op := range b.ops {
			if err := op(pipe); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache: same-slot batch %s: %w", b.tag, err)
	}
	return nil
}

// CrossSlotSequence runs a list of operations one at a time, never inside a
// single pipeline/transaction — the mandatory path per spec.md §4.3's
// cross-slot rule whenever an update spans keys with different hash tags
// (e.g. canonical order_data plus user holdings).
type CrossSlotSequence struct {
	ops []func(ctx context.Context) error
}

func NewCrossSlotSequence() *CrossSlotSequence {
	return &CrossSlotSequence{}
}

func (c *CrossSlotSequence) Add(op func(ctx context.Context) error) *CrossSlotSequence {
	c.ops = append(c.ops, op)
	return c
}

// Run executes every op sequentially, stopping (and returning) at the first
// error — callers that need best-effort continuation should swallow errors
// inside the op closure itself.
func (c *CrossSlotSequence) Run(ctx context.Context) error {
	for i, op := range c.ops {
		if err := op(ctx); err != nil {
			return fmt.Errorf("cache: cross-slot step %d: %w", i, err)
		}
	}
	return nil
}
