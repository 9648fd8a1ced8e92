package orderbook

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tradecore/exchange-api/internal/database"
	"github.com/tradecore/exchange-api/internal/money"
	"github.com/tradecore/exchange-api/internal/types"
)

func setupBook(t *testing.T, name string) (*Service, *gorm.DB) {
	t.Helper()
	db, err := database.NewTestDatabase(name)
	require.NoError(t, err)
	return NewService(db), db
}

var orderSeq int

func insertOrder(t *testing.T, db *gorm.DB, userID uint, symbol string, side types.Side, price, amount string, status types.Status, createdAt time.Time) *types.Order {
	t.Helper()
	orderSeq++
	order := &types.Order{
		OrderID: fmt.Sprintf("ORD_test_%d", orderSeq),
		UserID:  userID,
		Symbol:  symbol,
		Side:    side,
		Price:   money.MustParse(price),
		Amount:  money.MustParse(amount),
		Status:  status,
	}
	require.NoError(t, db.Create(order).Error)
	// gorm stamps CreatedAt on insert; overwrite for deterministic ordering
	require.NoError(t, db.Model(order).Update("created_at", createdAt).Error)
	order.CreatedAt = createdAt
	return order
}

func TestBestSellForPicksLowestPrice(t *testing.T) {
	svc, db := setupBook(t, "book_best_price")
	base := time.Now().Add(-time.Hour)

	insertOrder(t, db, 1, "BTC", types.SideSell, "51000", "1", types.StatusOpen, base)
	cheapest := insertOrder(t, db, 2, "BTC", types.SideSell, "49000", "1", types.StatusOpen, base.Add(time.Minute))
	insertOrder(t, db, 3, "BTC", types.SideSell, "50000", "1", types.StatusOpen, base.Add(2*time.Minute))

	err := db.Transaction(func(tx *gorm.DB) error {
		got, err := svc.Index().BestSellFor(tx, "BTC", money.MustParse("52000"), money.MustParse("1"), 99)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, cheapest.OrderID, got.OrderID)
		return nil
	})
	require.NoError(t, err)
}

func TestBestSellForTimePriorityAtEqualPrice(t *testing.T) {
	svc, db := setupBook(t, "book_time_priority")
	base := time.Now().Add(-time.Hour)

	older := insertOrder(t, db, 1, "BTC", types.SideSell, "50000", "1", types.StatusOpen, base)
	insertOrder(t, db, 2, "BTC", types.SideSell, "50000", "1", types.StatusOpen, base.Add(time.Minute))

	err := db.Transaction(func(tx *gorm.DB) error {
		got, err := svc.Index().BestSellFor(tx, "BTC", money.MustParse("50000"), money.MustParse("1"), 99)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, older.OrderID, got.OrderID)
		return nil
	})
	require.NoError(t, err)
}

func TestBestSellForRequiresExactAmount(t *testing.T) {
	svc, db := setupBook(t, "book_exact_amount")
	base := time.Now().Add(-time.Hour)

	insertOrder(t, db, 1, "BTC", types.SideSell, "50000", "2", types.StatusOpen, base)
	insertOrder(t, db, 2, "BTC", types.SideSell, "50000", "0.5", types.StatusOpen, base)

	err := db.Transaction(func(tx *gorm.DB) error {
		got, err := svc.Index().BestSellFor(tx, "BTC", money.MustParse("50000"), money.MustParse("1"), 99)
		require.NoError(t, err)
		assert.Nil(t, got, "partial quantities must never match")
		return nil
	})
	require.NoError(t, err)
}

func TestBestSellForExcludesOwnOrders(t *testing.T) {
	svc, db := setupBook(t, "book_self_trade")
	base := time.Now().Add(-time.Hour)

	insertOrder(t, db, 7, "BTC", types.SideSell, "50000", "1", types.StatusOpen, base)

	err := db.Transaction(func(tx *gorm.DB) error {
		got, err := svc.Index().BestSellFor(tx, "BTC", money.MustParse("50000"), money.MustParse("1"), 7)
		require.NoError(t, err)
		assert.Nil(t, got, "a user must not trade with themselves")
		return nil
	})
	require.NoError(t, err)
}

func TestBestSellForIgnoresClosedAndOtherSymbols(t *testing.T) {
	svc, db := setupBook(t, "book_filters")
	base := time.Now().Add(-time.Hour)

	insertOrder(t, db, 1, "BTC", types.SideSell, "50000", "1", types.StatusFilled, base)
	insertOrder(t, db, 2, "BTC", types.SideSell, "50000", "1", types.StatusCancelled, base)
	insertOrder(t, db, 3, "ETH", types.SideSell, "50000", "1", types.StatusOpen, base)

	err := db.Transaction(func(tx *gorm.DB) error {
		got, err := svc.Index().BestSellFor(tx, "BTC", money.MustParse("50000"), money.MustParse("1"), 99)
		require.NoError(t, err)
		assert.Nil(t, got)
		return nil
	})
	require.NoError(t, err)
}

func TestBestBuyForPicksHighestPrice(t *testing.T) {
	svc, db := setupBook(t, "book_best_bid")
	base := time.Now().Add(-time.Hour)

	insertOrder(t, db, 1, "ETH", types.SideBuy, "2900", "5", types.StatusOpen, base)
	highest := insertOrder(t, db, 2, "ETH", types.SideBuy, "3100", "5", types.StatusOpen, base.Add(time.Minute))
	insertOrder(t, db, 3, "ETH", types.SideBuy, "3000", "5", types.StatusOpen, base.Add(2*time.Minute))

	err := db.Transaction(func(tx *gorm.DB) error {
		got, err := svc.Index().BestBuyFor(tx, "ETH", money.MustParse("2900"), money.MustParse("5"), 99)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, highest.OrderID, got.OrderID)
		return nil
	})
	require.NoError(t, err)
}

func TestBestBuyForRespectsPriceFloor(t *testing.T) {
	svc, db := setupBook(t, "book_price_floor")
	base := time.Now().Add(-time.Hour)

	insertOrder(t, db, 1, "ETH", types.SideBuy, "2900", "5", types.StatusOpen, base)

	err := db.Transaction(func(tx *gorm.DB) error {
		// A sell at 3000 must not execute against a 2900 bid
		got, err := svc.Index().BestBuyFor(tx, "ETH", money.MustParse("3000"), money.MustParse("5"), 99)
		require.NoError(t, err)
		assert.Nil(t, got)
		return nil
	})
	require.NoError(t, err)
}

func TestSnapshot(t *testing.T) {
	svc, db := setupBook(t, "book_snapshot")
	base := time.Now().Add(-time.Hour)

	insertOrder(t, db, 1, "BTC", types.SideBuy, "49000", "1", types.StatusOpen, base)
	insertOrder(t, db, 2, "BTC", types.SideBuy, "49500", "2", types.StatusOpen, base.Add(time.Minute))
	insertOrder(t, db, 3, "BTC", types.SideSell, "50500", "1", types.StatusOpen, base)
	insertOrder(t, db, 4, "BTC", types.SideSell, "50000", "3", types.StatusOpen, base.Add(time.Minute))
	// Terminal orders stay out of the book
	insertOrder(t, db, 5, "BTC", types.SideSell, "49900", "1", types.StatusFilled, base)

	book, err := svc.Snapshot("BTC")
	require.NoError(t, err)

	require.Len(t, book.BuyOrders, 2)
	require.Len(t, book.SellOrders, 2)
	assert.Equal(t, "49500.00000000", book.BuyOrders[0].Price)
	assert.Equal(t, "50000.00000000", book.SellOrders[0].Price)

	require.NotNil(t, book.BestBid)
	require.NotNil(t, book.BestAsk)
	require.NotNil(t, book.Spread)
	assert.Equal(t, "49500.00000000", *book.BestBid)
	assert.Equal(t, "50000.00000000", *book.BestAsk)
	assert.Equal(t, "500.00000000", *book.Spread)
}

func TestSnapshotEmptyBook(t *testing.T) {
	svc, _ := setupBook(t, "book_empty")

	book, err := svc.Snapshot("ETH")
	require.NoError(t, err)

	assert.Empty(t, book.BuyOrders)
	assert.Empty(t, book.SellOrders)
	assert.Nil(t, book.BestBid)
	assert.Nil(t, book.BestAsk)
	assert.Nil(t, book.Spread)
}
