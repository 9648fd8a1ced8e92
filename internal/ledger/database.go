package ledger

import (
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tradecore/exchange-api/internal/database"
	"github.com/tradecore/exchange-api/internal/types"
)

// Database holds the row-level queries behind the ledger service. Every
// method that precedes a mutation takes the enclosing transaction and
// locks the row it returns.
type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// UserForUpdate fetches and locks a user row inside tx.
func (d *Database) UserForUpdate(tx *gorm.DB, userID uint) (*types.User, error) {
	var user types.User
	if err := database.ForUpdate(tx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// AssetForUpdate fetches and locks the (user, symbol) asset row inside
// tx. Returns nil without error when the row does not exist.
func (d *Database) AssetForUpdate(tx *gorm.DB, userID uint, symbol string) (*types.Asset, error) {
	var asset types.Asset
	err := database.ForUpdate(tx).
		Where("user_id = ? AND symbol = ?", userID, symbol).
		First(&asset).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &asset, nil
}

// Asset fetches the (user, symbol) asset row without locking it.
func (d *Database) Asset(userID uint, symbol string) (*types.Asset, error) {
	var asset types.Asset
	err := d.db.
		Where("user_id = ? AND symbol = ?", userID, symbol).
		First(&asset).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &asset, nil
}

// UserAssets returns all asset rows for a user.
func (d *Database) UserAssets(userID uint) ([]types.Asset, error) {
	var assets []types.Asset
	if err := d.db.Where("user_id = ?", userID).Order("symbol asc").Find(&assets).Error; err != nil {
		return nil, err
	}
	return assets, nil
}

// UpdateBalance writes the user's new balance inside tx.
func (d *Database) UpdateBalance(tx *gorm.DB, user *types.User, balance decimal.Decimal) error {
	if err := tx.Model(user).Update("balance", balance).Error; err != nil {
		return err
	}
	user.Balance = balance
	return nil
}

// UpdateAmounts writes the asset's new amount and locked amount inside tx.
func (d *Database) UpdateAmounts(tx *gorm.DB, asset *types.Asset, amount, locked decimal.Decimal) error {
	err := tx.Model(asset).Updates(map[string]interface{}{
		"amount":        amount,
		"locked_amount": locked,
	}).Error
	if err != nil {
		return err
	}
	asset.Amount = amount
	asset.LockedAmount = locked
	return nil
}

// CreateAsset inserts a new asset row inside tx.
func (d *Database) CreateAsset(tx *gorm.DB, asset *types.Asset) error {
	return tx.Create(asset).Error
}
