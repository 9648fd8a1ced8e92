package matching

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

// OrderForUpdate fetches and locks an order by its external reference.
// Returns nil without error when the order does not exist.
func (d *Database) OrderForUpdate(tx *gorm.DB, orderID string) (*types.Order, error) {
	var order types.Order
	err := database.ForUpdate(tx).
		Where("order_id = ?", orderID).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// MarkFilled transitions an order to its filled terminal state inside tx.
func (d *Database) MarkFilled(tx *gorm.DB, order *types.Order) error {
	if err := tx.Model(order).Update("status", types.StatusFilled).Error; err != nil {
		return err
	}
	order.Status = types.StatusFilled
	return nil
}

// CreateTrade inserts the trade record inside tx.
func (d *Database) CreateTrade(tx *gorm.DB, trade *types.Trade) error {
	return tx.Create(trade).Error
}
