package orderbook

import (
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tradecore/exchange-api/internal/database"
	"github.com/tradecore/exchange-api/internal/types"
)

// Database holds the order book queries. The matching lookups return at
// most one row with an exclusive lock already held on it, so at most one
// concurrent matcher can claim a given resting order.
type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// BestSellFor finds the resting sell order a buy at the given price and
// amount should execute against: same symbol, open, price at or below
// the buy price, exactly the same amount, not owned by excludeUserID.
// Lowest price wins; equal prices are served oldest first.
func (d *Database) BestSellFor(tx *gorm.DB, symbol string, price, amount decimal.Decimal, excludeUserID uint) (*types.Order, error) {
	var order types.Order
	err := database.ForUpdate(tx).
		Where("symbol = ? AND status = ? AND side = ?", symbol, types.StatusOpen, types.SideSell).
		Where("price <= ?", price).
		Where("amount = ?", amount).
		Where("user_id != ?", excludeUserID).
		Order("price asc").
		Order("created_at asc").
		Order("id asc").
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// BestBuyFor is the mirror of BestSellFor: the best open buy order at or
// above the sell price with exactly the same amount, highest price
// first, oldest first among equal prices.
func (d *Database) BestBuyFor(tx *gorm.DB, symbol string, price, amount decimal.Decimal, excludeUserID uint) (*types.Order, error) {
	var order types.Order
	err := database.ForUpdate(tx).
		Where("symbol = ? AND status = ? AND side = ?", symbol, types.StatusOpen, types.SideBuy).
		Where("price >= ?", price).
		Where("amount = ?", amount).
		Where("user_id != ?", excludeUserID).
		Order("price desc").
		Order("created_at asc").
		Order("id asc").
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// OpenBuyOrders returns the top open bids for the public book, highest
// price first. Read-only; no locks.
func (d *Database) OpenBuyOrders(symbol string, limit int) ([]types.Order, error) {
	var orders []types.Order
	err := d.db.
		Where("symbol = ? AND status = ? AND side = ?", symbol, types.StatusOpen, types.SideBuy).
		Order("price desc").
		Order("created_at asc").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// OpenSellOrders returns the top open asks for the public book, lowest
// price first. Read-only; no locks.
func (d *Database) OpenSellOrders(symbol string, limit int) ([]types.Order, error) {
	var orders []types.Order
	err := d.db.
		Where("symbol = ? AND status = ? AND side = ?", symbol, types.StatusOpen, types.SideSell).
		Order("price asc").
		Order("created_at asc").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}
