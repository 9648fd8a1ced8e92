package database

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/tradecore/exchange-api/internal/types"
)

// NewDatabase opens the database at path and migrates the schema.
func NewDatabase(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		// Surface unique-index violations as gorm.ErrDuplicatedKey so the
		// response layer can answer 409 instead of 500.
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(
		&types.User{},
		&types.Asset{},
		&types.Order{},
		&types.Trade{},
	); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// NewTestDatabase opens a fresh named in-memory database, suitable for
// one test. The shared cache keeps every pooled connection on the same
// store; a single open connection serializes access the way row locks
// would under a server database.
func NewTestDatabase(name string) (*gorm.DB, error) {
	db, err := NewDatabase(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	return db, nil
}

// ForUpdate adds an exclusive row lock to the query on dialects that
// support SELECT ... FOR UPDATE. sqlite has no row-level locks; its
// single-writer transactions serialize the same paths.
func ForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}
