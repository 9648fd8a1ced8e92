package trading

import (
	"errors"

	"gorm.io/gorm"

	"github.com/tradecore/exchange-api/internal/database"
	"github.com/tradecore/exchange-api/internal/types"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateOrder(tx *gorm.DB, order *types.Order) error {
	return tx.Create(order).Error
}

// Order fetches an order by its external reference without locking.
func (d *Database) Order(orderID string) (*types.Order, error) {
	var order types.Order
	if err := d.db.Where("order_id = ?", orderID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// OrderByIDAndUserForUpdate fetches and locks the caller's order inside
// tx. Orders owned by other users are invisible to the caller.
func (d *Database) OrderByIDAndUserForUpdate(tx *gorm.DB, orderID string, userID uint) (*types.Order, error) {
	var order types.Order
	err := database.ForUpdate(tx).
		Where("order_id = ? AND user_id = ?", orderID, userID).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// MarkCancelled transitions an order to its cancelled terminal state
// inside tx.
func (d *Database) MarkCancelled(tx *gorm.DB, order *types.Order) error {
	if err := tx.Model(order).Update("status", types.StatusCancelled).Error; err != nil {
		return err
	}
	order.Status = types.StatusCancelled
	return nil
}

// OrderFilters narrows a user-order listing.
type OrderFilters struct {
	Symbol string
	Side   string
	Status string
	Limit  int
	Offset int
}

// UserOrders returns the caller's orders, newest first, optionally
// filtered by symbol, side and status.
func (d *Database) UserOrders(userID uint, filters OrderFilters) ([]types.Order, error) {
	query := d.db.
		Where("user_id = ?", userID).
		Order("created_at desc").
		Order("id desc")

	if filters.Symbol != "" {
		query = query.Where("symbol = ?", filters.Symbol)
	}
	if filters.Side != "" {
		query = query.Where("side = ?", filters.Side)
	}
	if filters.Status != "" {
		query = query.Where("status = ?", filters.Status)
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 20
	}
	query = query.Limit(limit)
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	var orders []types.Order
	if err := query.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// UserTrades returns trades the user participated in on either side,
// newest first.
func (d *Database) UserTrades(userID uint) ([]types.Trade, error) {
	var trades []types.Trade
	err := d.db.
		Where("buyer_id = ? OR seller_id = ?", userID, userID).
		Order("created_at desc").
		Order("id desc").
		Find(&trades).Error
	if err != nil {
		return nil, err
	}
	return trades, nil
}
