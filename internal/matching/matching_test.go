package matching_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tradecore/exchange-api/internal/database"
	"github.com/tradecore/exchange-api/internal/ledger"
	"github.com/tradecore/exchange-api/internal/matching"
	"github.com/tradecore/exchange-api/internal/money"
	"github.com/tradecore/exchange-api/internal/trading"
	"github.com/tradecore/exchange-api/internal/types"
)

// recordingNotifier captures match fan-out for assertions.
type recordingNotifier struct {
	notified []uint
}

func (r *recordingNotifier) NotifyMatch(trade *types.Trade, userID uint) {
	r.notified = append(r.notified, userID)
}

type fixture struct {
	db       *gorm.DB
	ledger   *ledger.Service
	engine   *matching.Engine
	trading  *trading.Service
	notifier *recordingNotifier
}

func setupFixture(t *testing.T, name string) *fixture {
	t.Helper()
	db, err := database.NewTestDatabase(name)
	require.NoError(t, err)

	ledgerService := ledger.NewService(db)
	notifier := &recordingNotifier{}
	engine := matching.NewEngine(db, ledgerService, notifier)

	return &fixture{
		db:       db,
		ledger:   ledgerService,
		engine:   engine,
		trading:  trading.NewService(db, ledgerService, engine),
		notifier: notifier,
	}
}

func (f *fixture) createUser(t *testing.T, email, balance string) *types.User {
	t.Helper()
	user := &types.User{
		Name:    "Trader",
		Email:   email,
		Balance: money.MustParse(balance),
	}
	require.NoError(t, f.db.Create(user).Error)
	return user
}

func (f *fixture) giveAsset(t *testing.T, userID uint, symbol, amount string) {
	t.Helper()
	err := f.db.Transaction(func(tx *gorm.DB) error {
		return f.ledger.AddAsset(tx, userID, symbol, money.MustParse(amount))
	})
	require.NoError(t, err)
}

func (f *fixture) balance(t *testing.T, userID uint) string {
	t.Helper()
	var user types.User
	require.NoError(t, f.db.First(&user, userID).Error)
	return money.Format(user.Balance)
}

func (f *fixture) asset(t *testing.T, userID uint, symbol string) *types.Asset {
	t.Helper()
	var asset types.Asset
	require.NoError(t, f.db.Where("user_id = ? AND symbol = ?", userID, symbol).First(&asset).Error)
	return &asset
}

func (f *fixture) orderStatus(t *testing.T, orderID string) types.Status {
	t.Helper()
	var order types.Order
	require.NoError(t, f.db.Where("order_id = ?", orderID).First(&order).Error)
	return order.Status
}

// Full lifecycle at equal prices: buy 1 BTC at 50000 rests, sell 1 BTC
// at 50000 arrives and fills it. The buyer pays volume plus 1.5%
// commission, the seller is credited the full volume, and the asset
// moves from the seller's locked holding to the buyer.
func TestMatchAndSettle(t *testing.T) {
	f := setupFixture(t, "match_settle")
	buyer := f.createUser(t, "buyer@test.com", "60000")
	seller := f.createUser(t, "seller@test.com", "1000")
	f.giveAsset(t, seller.ID, "BTC", "2")

	buyOrder, trade, err := f.trading.PlaceOrder(buyer.ID, "BTC", types.SideBuy, money.MustParse("50000"), money.MustParse("1"))
	require.NoError(t, err)
	require.Nil(t, trade, "nothing to match against yet")
	assert.Equal(t, "9250.00000000", f.balance(t, buyer.ID), "50000 + 750 commission reserved")

	sellOrder, trade, err := f.trading.PlaceOrder(seller.ID, "BTC", types.SideSell, money.MustParse("50000"), money.MustParse("1"))
	require.NoError(t, err)
	require.NotNil(t, trade)

	assert.Equal(t, "50000.00000000", money.Format(trade.Price))
	assert.Equal(t, "1.00000000", money.Format(trade.Amount))
	assert.Equal(t, "750.00000000", money.Format(trade.Commission))
	assert.Equal(t, buyer.ID, trade.BuyerID)
	assert.Equal(t, seller.ID, trade.SellerID)
	assert.Equal(t, buyOrder.OrderID, trade.BuyOrderID)
	assert.Equal(t, sellOrder.OrderID, trade.SellOrderID)

	// Both orders are terminal
	assert.Equal(t, types.StatusFilled, f.orderStatus(t, buyOrder.OrderID))
	assert.Equal(t, types.StatusFilled, sellOrder.Status)

	// Money: buyer keeps the reserved debit, seller gains the full volume
	assert.Equal(t, "9250.00000000", f.balance(t, buyer.ID))
	assert.Equal(t, "51000.00000000", f.balance(t, seller.ID))

	// Asset: one BTC moved from the seller's locked holding to the buyer
	sellerAsset := f.asset(t, seller.ID, "BTC")
	assert.Equal(t, "1.00000000", money.Format(sellerAsset.Amount))
	assert.True(t, sellerAsset.LockedAmount.IsZero())
	buyerAsset := f.asset(t, buyer.ID, "BTC")
	assert.Equal(t, "1.00000000", money.Format(buyerAsset.Amount))

	// Both participants were notified exactly once
	assert.Equal(t, []uint{buyer.ID, seller.ID}, f.notifier.notified)
}

// Execution happens at the resting order's price. A buy at 60000
// hitting a resting ask at 50000 executes at 50000 and the buyer is
// refunded the over-reservation: 60900 reserved - 50750 cost = 10150.
func TestPriceImprovementRefund(t *testing.T) {
	f := setupFixture(t, "match_improvement")
	buyer := f.createUser(t, "improve-buyer@test.com", "100000")
	seller := f.createUser(t, "improve-seller@test.com", "0")
	f.giveAsset(t, seller.ID, "BTC", "1")

	_, _, err := f.trading.PlaceOrder(seller.ID, "BTC", types.SideSell, money.MustParse("50000"), money.MustParse("1"))
	require.NoError(t, err)

	_, trade, err := f.trading.PlaceOrder(buyer.ID, "BTC", types.SideBuy, money.MustParse("60000"), money.MustParse("1"))
	require.NoError(t, err)
	require.NotNil(t, trade)

	assert.Equal(t, "50000.00000000", money.Format(trade.Price), "maker price wins")
	// 100000 - 60900 reserved + 10150 refund = 49250
	assert.Equal(t, "49250.00000000", f.balance(t, buyer.ID))
	assert.Equal(t, "50000.00000000", f.balance(t, seller.ID))
}

// A sell placed below a resting bid executes at the bid's price; the
// seller gets the better price and no refund is involved.
func TestSellIntoHigherBid(t *testing.T) {
	f := setupFixture(t, "match_sell_into_bid")
	buyer := f.createUser(t, "bid-buyer@test.com", "100000")
	seller := f.createUser(t, "bid-seller@test.com", "0")
	f.giveAsset(t, seller.ID, "ETH", "5")

	_, _, err := f.trading.PlaceOrder(buyer.ID, "ETH", types.SideBuy, money.MustParse("3000"), money.MustParse("5"))
	require.NoError(t, err)

	_, trade, err := f.trading.PlaceOrder(seller.ID, "ETH", types.SideSell, money.MustParse("2900"), money.MustParse("5"))
	require.NoError(t, err)
	require.NotNil(t, trade)

	assert.Equal(t, "3000.00000000", money.Format(trade.Price))
	assert.Equal(t, "15000.00000000", f.balance(t, seller.ID))
	// Buyer reserved at their own 3000 bid, so nothing comes back
	assert.Equal(t, "84775.00000000", f.balance(t, buyer.ID))
}

// Orders only match when the amounts are identical; a 2 BTC ask does
// not fill a 1 BTC bid even at a crossing price.
func TestNoPartialFills(t *testing.T) {
	f := setupFixture(t, "match_no_partial")
	buyer := f.createUser(t, "partial-buyer@test.com", "200000")
	seller := f.createUser(t, "partial-seller@test.com", "0")
	f.giveAsset(t, seller.ID, "BTC", "2")

	_, _, err := f.trading.PlaceOrder(seller.ID, "BTC", types.SideSell, money.MustParse("50000"), money.MustParse("2"))
	require.NoError(t, err)

	buyOrder, trade, err := f.trading.PlaceOrder(buyer.ID, "BTC", types.SideBuy, money.MustParse("50000"), money.MustParse("1"))
	require.NoError(t, err)
	assert.Nil(t, trade)
	assert.Equal(t, types.StatusOpen, buyOrder.Status)
	assert.Empty(t, f.notifier.notified)
}

// A user's own resting order is never matched against.
func TestSelfTradePrevention(t *testing.T) {
	f := setupFixture(t, "match_self_trade")
	trader := f.createUser(t, "self@test.com", "100000")
	f.giveAsset(t, trader.ID, "BTC", "1")

	_, _, err := f.trading.PlaceOrder(trader.ID, "BTC", types.SideSell, money.MustParse("50000"), money.MustParse("1"))
	require.NoError(t, err)

	buyOrder, trade, err := f.trading.PlaceOrder(trader.ID, "BTC", types.SideBuy, money.MustParse("50000"), money.MustParse("1"))
	require.NoError(t, err)
	assert.Nil(t, trade)
	assert.Equal(t, types.StatusOpen, buyOrder.Status)
}

// Price-time priority: the oldest ask at the best price fills first.
func TestPriceTimePriority(t *testing.T) {
	f := setupFixture(t, "match_priority")
	buyer := f.createUser(t, "prio-buyer@test.com", "200000")
	sellerA := f.createUser(t, "prio-seller-a@test.com", "0")
	sellerB := f.createUser(t, "prio-seller-b@test.com", "0")
	f.giveAsset(t, sellerA.ID, "BTC", "1")
	f.giveAsset(t, sellerB.ID, "BTC", "1")

	first, _, err := f.trading.PlaceOrder(sellerA.ID, "BTC", types.SideSell, money.MustParse("50000"), money.MustParse("1"))
	require.NoError(t, err)
	_, _, err = f.trading.PlaceOrder(sellerB.ID, "BTC", types.SideSell, money.MustParse("50000"), money.MustParse("1"))
	require.NoError(t, err)

	_, trade, err := f.trading.PlaceOrder(buyer.ID, "BTC", types.SideBuy, money.MustParse("50000"), money.MustParse("1"))
	require.NoError(t, err)
	require.NotNil(t, trade)
	assert.Equal(t, first.OrderID, trade.SellOrderID)
	assert.Equal(t, sellerA.ID, trade.SellerID)
}

// MatchOrder on a cancelled order is a no-op, not an error.
func TestMatchSkipsTerminalOrder(t *testing.T) {
	f := setupFixture(t, "match_terminal")
	buyer := f.createUser(t, "term-buyer@test.com", "100000")
	seller := f.createUser(t, "term-seller@test.com", "0")
	f.giveAsset(t, seller.ID, "BTC", "1")

	buyOrder, _, err := f.trading.PlaceOrder(buyer.ID, "BTC", types.SideBuy, money.MustParse("50000"), money.MustParse("1"))
	require.NoError(t, err)
	_, err = f.trading.CancelOrder(buyer.ID, buyOrder.OrderID)
	require.NoError(t, err)

	trade, err := f.engine.MatchOrder(buyOrder.OrderID)
	require.NoError(t, err)
	assert.Nil(t, trade)

	// A crossing sell now rests instead of hitting the cancelled bid
	sellOrder, trade, err := f.trading.PlaceOrder(seller.ID, "BTC", types.SideSell, money.MustParse("50000"), money.MustParse("1"))
	require.NoError(t, err)
	assert.Nil(t, trade)
	assert.Equal(t, types.StatusOpen, sellOrder.Status)
}

// MatchOrder on an unknown reference is a no-op as well.
func TestMatchUnknownOrder(t *testing.T) {
	f := setupFixture(t, "match_unknown")

	trade, err := f.engine.MatchOrder("ORD_does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, trade)
}

// Matching crosses symbols never: an ETH ask cannot fill a BTC bid.
func TestMatchRespectsSymbol(t *testing.T) {
	f := setupFixture(t, "match_symbol")
	buyer := f.createUser(t, "sym-buyer@test.com", "100000")
	seller := f.createUser(t, "sym-seller@test.com", "0")
	f.giveAsset(t, seller.ID, "ETH", "1")

	_, _, err := f.trading.PlaceOrder(seller.ID, "ETH", types.SideSell, money.MustParse("50000"), money.MustParse("1"))
	require.NoError(t, err)

	_, trade, err := f.trading.PlaceOrder(buyer.ID, "BTC", types.SideBuy, money.MustParse("50000"), money.MustParse("1"))
	require.NoError(t, err)
	assert.Nil(t, trade)
}
