package durable

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Store wraps the gorm connection, chosen by connection-string prefix
// exactly like internal/database.New — postgres when the URL says so,
// sqlite otherwise.
type Store struct {
	db *gorm.DB
}

func Open(databaseURL string) (*Store, error) {
	var db *gorm.DB
	var err error

	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		db, err = gorm.Open(postgres.Open(databaseURL), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
	} else {
		if dir := filepath.Dir(databaseURL); dir != "." {
			if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
				return nil, mkErr
			}
		}
		db, err = gorm.Open(sqlite.Open(databaseURL), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
	}
	if err != nil {
		return nil, fmt.Errorf("durable: open: %w", err)
	}

	if err := db.AutoMigrate(
		&OrderRow{},
		&UserRow{},
		&WalletTransactionRow{},
		&RejectionRow{},
		&IDSequenceRow{},
		&IdempotencyKeyRow{},
	); err != nil {
		return nil, fmt.Errorf("durable: automigrate: %w", err)
	}

	return &Store{db: db}, nil
}

// IsEnabled reports whether the underlying connection is alive, the same
// liveness contract storage.Database.IsEnabled() establishes.
func (s *Store) IsEnabled() bool {
	if s == nil || s.db == nil {
		return false
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return false
	}
	return sqlDB.Ping() == nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// DB exposes the underlying *gorm.DB for packages that need to compose
// transactions across repositories (payout, reconcile).
func (s *Store) DB() *gorm.DB {
	return s.db
}

// LockingClauses returns the clause.Locking{Strength: "UPDATE"} row-lock
// hint for drivers that support it, and nil for SQLite, which has no
// SELECT ... FOR UPDATE syntax and would otherwise fail every row-locked
// query a local/dev SQLite deployment runs.
func LockingClauses(tx *gorm.DB) []clause.Expression {
	if tx.Dialector.Name() == "sqlite" {
		return nil
	}
	return []clause.Expression{clause.Locking{Strength: "UPDATE"}}
}
