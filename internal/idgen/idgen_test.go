package idgen

import (
	"testing"

	"gorm.io/gorm"

	"github.com/web3guy0/orderflow/internal/durable"
)

func newTestGenerator(t *testing.T) *Generator {
	t.Helper()
	store, err := durable.Open(":memory:")
	if err != nil {
		t.Fatalf("durable.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return New(store)
}

func TestNextIncrementsWithinDay(t *testing.T) {
	t.Parallel()
	gen := newTestGenerator(t)

	first, err := gen.Next(ClassOrder)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	second, err := gen.Next(ClassOrder)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}

	if first == second {
		t.Errorf("Next returned the same id twice: %s", first)
	}
	if !wantsPrefix(first, "ord_") || !wantsPrefix(second, "ord_") {
		t.Errorf("ids missing ord_ prefix: %s, %s", first, second)
	}
}

func TestNextSeparatesClasses(t *testing.T) {
	t.Parallel()
	gen := newTestGenerator(t)

	orderID, err := gen.Next(ClassOrder)
	if err != nil {
		t.Fatalf("Next(order): %v", err)
	}
	closeID, err := gen.Next(ClassClose)
	if err != nil {
		t.Fatalf("Next(close): %v", err)
	}

	if !wantsPrefix(orderID, "ord_") {
		t.Errorf("orderID = %s, want ord_ prefix", orderID)
	}
	if !wantsPrefix(closeID, "cls_") {
		t.Errorf("closeID = %s, want cls_ prefix", closeID)
	}
}

func TestNextConcurrentCallsAreUnique(t *testing.T) {
	t.Parallel()
	gen := newTestGenerator(t)

	const n = 20
	ids := make(chan string, n)
	errs := make(chan error, n)

	for i := 0; i < n; i++ {
		go func() {
			id, err := gen.Next(ClassTransaction)
			ids <- id
			errs <- err
		}()
	}

	seen := map[string]bool{}
	for i := 0; i < n; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("Next: %v", err)
		}
		id := <-ids
		if seen[id] {
			t.Fatalf("duplicate id minted: %s", id)
		}
		seen[id] = true
	}
}

func TestNextTxMintsWithinCallerTransaction(t *testing.T) {
	t.Parallel()
	gen := newTestGenerator(t)

	var first, second string
	err := gen.db.Transaction(func(tx *gorm.DB) error {
		var err error
		first, err = gen.NextTx(tx, ClassTransaction)
		if err != nil {
			return err
		}
		second, err = gen.NextTx(tx, ClassTransaction)
		return err
	})
	if err != nil {
		t.Fatalf("Transaction: %v", err)
	}
	if first == second {
		t.Errorf("NextTx returned the same id twice: %s", first)
	}
	if !wantsPrefix(first, "txn_") || !wantsPrefix(second, "txn_") {
		t.Errorf("ids missing txn_ prefix: %s, %s", first, second)
	}
}

func wantsPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
