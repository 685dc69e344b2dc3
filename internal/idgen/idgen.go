// Package idgen mints the monotonic per-day identifiers spec.md §4.1
// requires: ord_YYYYMMDD_####, cls_…, cxl_…, mod_…, sl_…, sl_cxl_…, tp_…,
// tp_cxl_…, txn_…. The sequence is persisted in the durable store (one row
// per day/prefix, updated under a row lock) so it survives restarts without
// pulling in a separate dependency, generalizing the teacher's
// fmt.Sprintf("PB_%d_%s", time.Now().UnixNano(), ...) client-id idiom into
// a restart-safe sequence.
package idgen

import (
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/web3guy0/orderflow/internal/durable"
)

// Class is one of the typed id prefixes spec.md §4.1 names.
type Class string

const (
	ClassOrder           Class = "ord"
	ClassClose           Class = "cls"
	ClassCancel          Class = "cxl"
	ClassModify          Class = "mod"
	ClassStoploss        Class = "sl"
	ClassStoplossCancel  Class = "sl_cxl"
	ClassTakeprofit      Class = "tp"
	ClassTakeprofitCancel Class = "tp_cxl"
	ClassTransaction     Class = "txn"
)

// Generator mints ids backed by durable.IDSequenceRow. An in-process mutex
// serializes local callers; the row lock in the durable store serializes
// across processes.
type Generator struct {
	db *gorm.DB
	mu sync.Mutex
}

func New(store *durable.Store) *Generator {
	return &Generator{db: store.DB()}
}

// Next mints the next id for class, formatted as "<class>_<YYYYMMDD>_<zero-padded seq>".
// Ids are opaque to callers beyond day-ordering, per spec.md §4.1.
func (g *Generator) Next(class Class) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var seq int64
	day, err := withSeqTx(g.db.Transaction, class, &seq)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s_%s_%04d", class, day, seq), nil
}

// NextTx mints the next id for class within an already-open transaction,
// for callers (payout.Service) that must mint inside a caller-owned
// transaction rather than opening a second one on the same connection.
func (g *Generator) NextTx(tx *gorm.DB, class Class) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var seq int64
	day, err := withSeqTx(func(fn func(*gorm.DB) error) error { return fn(tx) }, class, &seq)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s_%s_%04d", class, day, seq), nil
}

func withSeqTx(runner func(func(*gorm.DB) error) error, class Class, seq *int64) (string, error) {
	day := time.Now().UTC().Format("20060102")

	err := runner(func(tx *gorm.DB) error {
		var row durable.IDSequenceRow
		err := tx.Clauses(durable.LockingClauses(tx)...).
			First(&row, "day = ? AND prefix = ?", day, string(class)).Error
		switch {
		case err == nil:
			row.LastSeq++
			*seq = row.LastSeq
			return tx.Save(&row).Error
		case durable.IsNotFound(err):
			*seq = 1
			return tx.Create(&durable.IDSequenceRow{Day: day, Prefix: string(class), LastSeq: 1}).Error
		default:
			return err
		}
	})
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return day, nil
}
