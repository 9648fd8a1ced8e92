// Package ledger owns every mutation of user balances and asset
// holdings. All mutating operations run inside the caller's transaction
// against rows fetched with an exclusive lock, so concurrent placements,
// cancellations and settlements against the same account serialize.
package ledger

import (
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tradecore/exchange-api/internal/money"
	"github.com/tradecore/exchange-api/internal/types"
)

// Service exposes the balance and asset primitives used by order
// placement, cancellation and settlement.
type Service struct {
	db *Database
}

// NewService creates a ledger service on the given database connection.
func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

// UserForUpdate fetches and locks a user row inside tx.
func (s *Service) UserForUpdate(tx *gorm.DB, userID uint) (*types.User, error) {
	return s.db.UserForUpdate(tx, userID)
}

// UserAssets returns all holdings for a user, for display.
func (s *Service) UserAssets(userID uint) ([]types.Asset, error) {
	return s.db.UserAssets(userID)
}

// HasSufficientBalance reports whether the user's balance covers the
// required amount.
func (s *Service) HasSufficientBalance(user *types.User, required decimal.Decimal) bool {
	return user.Balance.Cmp(required) >= 0
}

// Credit adds amount to the user's balance.
func (s *Service) Credit(tx *gorm.DB, user *types.User, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrInvalidAmount
	}
	return s.db.UpdateBalance(tx, user, money.Add(user.Balance, amount))
}

// Debit subtracts amount from the user's balance. The balance never goes
// negative; a debit that would is rejected wholesale.
func (s *Service) Debit(tx *gorm.DB, user *types.User, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrInvalidAmount
	}
	balance := money.Sub(user.Balance, amount)
	if balance.IsNegative() {
		return ErrInsufficientBalance
	}
	return s.db.UpdateBalance(tx, user, balance)
}

// HasSufficientAsset reports whether the user's available holding of
// symbol covers the required amount.
func (s *Service) HasSufficientAsset(userID uint, symbol string, required decimal.Decimal) (bool, error) {
	asset, err := s.db.Asset(userID, symbol)
	if err != nil {
		return false, err
	}
	if asset == nil {
		return false, nil
	}
	return asset.HasSufficient(required), nil
}

// LockAsset reserves amount of the user's holding for an open sell
// order, moving it from amount to locked_amount.
func (s *Service) LockAsset(tx *gorm.DB, userID uint, symbol string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrInvalidAmount
	}

	asset, err := s.db.AssetForUpdate(tx, userID, symbol)
	if err != nil {
		return err
	}
	if asset == nil {
		return ErrAssetNotFound
	}
	if !asset.HasSufficient(amount) {
		return ErrInsufficientAsset
	}

	return s.db.UpdateAmounts(tx, asset,
		money.Sub(asset.Amount, amount),
		money.Add(asset.LockedAmount, amount))
}

// UnlockAsset releases a reservation made by LockAsset, moving amount
// from locked_amount back to amount.
func (s *Service) UnlockAsset(tx *gorm.DB, userID uint, symbol string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrInvalidAmount
	}

	asset, err := s.db.AssetForUpdate(tx, userID, symbol)
	if err != nil {
		return err
	}
	if asset == nil {
		return ErrAssetNotFound
	}
	if asset.LockedAmount.Cmp(amount) < 0 {
		return ErrInvalidLockedAmount
	}

	return s.db.UpdateAmounts(tx, asset,
		money.Add(asset.Amount, amount),
		money.Sub(asset.LockedAmount, amount))
}

// TransferLockedAsset settles an asset leg: the seller's locked_amount
// drops by amount (their amount column was already reduced when the sell
// order locked it) and the buyer's amount grows by the same quantity,
// creating the buyer's row if this is their first holding of the symbol.
func (s *Service) TransferLockedAsset(tx *gorm.DB, sellerID, buyerID uint, symbol string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrInvalidAmount
	}

	sellerAsset, err := s.db.AssetForUpdate(tx, sellerID, symbol)
	if err != nil {
		return err
	}
	if sellerAsset == nil {
		return ErrAssetNotFound
	}
	if sellerAsset.LockedAmount.Cmp(amount) < 0 {
		return ErrInsufficientLockedAsset
	}

	err = s.db.UpdateAmounts(tx, sellerAsset,
		sellerAsset.Amount,
		money.Sub(sellerAsset.LockedAmount, amount))
	if err != nil {
		return err
	}

	if err := s.addTo(tx, buyerID, symbol, amount); err != nil {
		return err
	}

	log.Debug().
		Uint("seller_id", sellerID).
		Uint("buyer_id", buyerID).
		Str("symbol", symbol).
		Str("amount", money.Format(amount)).
		Msg("transferred locked asset")

	return nil
}

// AddAsset increments the user's holding of symbol, creating the row if
// absent. Used for non-trade credits such as seeding.
func (s *Service) AddAsset(tx *gorm.DB, userID uint, symbol string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrInvalidAmount
	}
	return s.addTo(tx, userID, symbol, amount)
}

func (s *Service) addTo(tx *gorm.DB, userID uint, symbol string, amount decimal.Decimal) error {
	asset, err := s.db.AssetForUpdate(tx, userID, symbol)
	if err != nil {
		return err
	}

	if asset == nil {
		return s.db.CreateAsset(tx, &types.Asset{
			UserID:       userID,
			Symbol:       symbol,
			Amount:       amount,
			LockedAmount: decimal.Zero,
		})
	}

	return s.db.UpdateAmounts(tx, asset,
		money.Add(asset.Amount, amount),
		asset.LockedAmount)
}
