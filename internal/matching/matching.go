// Package matching orchestrates order matching and settlement. A newly
// placed order is matched against at most one resting counter-order of
// exactly the same amount (full match only); on a hit the trade settles
// atomically in the same transaction.
package matching

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tradecore/exchange-api/internal/commission"
	"github.com/tradecore/exchange-api/internal/ledger"
	"github.com/tradecore/exchange-api/internal/money"
	"github.com/tradecore/exchange-api/internal/notify"
	"github.com/tradecore/exchange-api/internal/orderbook"
	"github.com/tradecore/exchange-api/internal/types"
)

// Engine matches incoming orders against the book and settles hits.
type Engine struct {
	db       *gorm.DB
	orders   *Database
	book     *orderbook.Database
	ledger   *ledger.Service
	notifier notify.Notifier
}

// NewEngine creates a matching engine. The notifier is invoked outside
// the settlement transaction, once per participant.
func NewEngine(gormDB *gorm.DB, ledgerService *ledger.Service, notifier notify.Notifier) *Engine {
	return &Engine{
		db:       gormDB,
		orders:   NewDatabase(gormDB),
		book:     orderbook.NewDatabase(gormDB),
		ledger:   ledgerService,
		notifier: notifier,
	}
}

// MatchOrder attempts to match the order with the given reference. It
// returns the executed trade, or nil when the order is gone, no longer
// open, or has no eligible counter-order. The entire match-and-settle
// path runs in one transaction; any failure rolls back every leg.
func (e *Engine) MatchOrder(orderID string) (*types.Trade, error) {
	logger := log.With().
		Str("order_id", orderID).
		Str("service", "matching").
		Logger()

	var trade *types.Trade

	err := e.db.Transaction(func(tx *gorm.DB) error {
		// Re-fetch under lock: a concurrent cancel or match may have won
		// the race since placement committed.
		order, err := e.orders.OrderForUpdate(tx, orderID)
		if err != nil {
			return err
		}
		if order == nil || !order.IsOpen() {
			logger.Debug().Msg("order no longer open, skipping match")
			return nil
		}

		counter, err := e.findCounterOrder(tx, order)
		if err != nil {
			return err
		}
		if counter == nil {
			logger.Info().Msg("no matching order found")
			return nil
		}

		logger.Info().
			Str("matching_order_id", counter.OrderID).
			Msg("found matching order")

		trade, err = e.executeTrade(tx, order, counter)
		return err
	})
	if err != nil {
		return nil, err
	}

	if trade != nil {
		// Fire-and-forget fan-out to both participants, outside the
		// transaction boundary.
		e.notifier.NotifyMatch(trade, trade.BuyerID)
		e.notifier.NotifyMatch(trade, trade.SellerID)
	}

	return trade, nil
}

// findCounterOrder queries the book for the best eligible opposite-side
// order: price-crossing, identical amount, different owner. The row comes
// back already locked.
func (e *Engine) findCounterOrder(tx *gorm.DB, order *types.Order) (*types.Order, error) {
	if order.IsBuy() {
		return e.book.BestSellFor(tx, order.Symbol, order.Price, order.Amount, order.UserID)
	}
	return e.book.BestBuyFor(tx, order.Symbol, order.Price, order.Amount, order.UserID)
}

// executeTrade settles a matched pair: execution at the maker's (resting
// counter-order's) price, commission charged to the buyer, asset moved
// from the seller's locked holding to the buyer, both orders filled, one
// immutable trade recorded.
func (e *Engine) executeTrade(tx *gorm.DB, newOrder, counter *types.Order) (*types.Trade, error) {
	buyOrder, sellOrder := newOrder, counter
	if !newOrder.IsBuy() {
		buyOrder, sellOrder = counter, newOrder
	}

	// Account rows are locked buyer first, then seller, the fixed global
	// order shared by every path that locks user rows.
	buyer, err := e.ledger.UserForUpdate(tx, buyOrder.UserID)
	if err != nil {
		return nil, err
	}
	if buyer == nil {
		return nil, fmt.Errorf("buyer %d not found", buyOrder.UserID)
	}
	seller, err := e.ledger.UserForUpdate(tx, sellOrder.UserID)
	if err != nil {
		return nil, err
	}
	if seller == nil {
		return nil, fmt.Errorf("seller %d not found", sellOrder.UserID)
	}

	executionPrice := counter.Price
	amount := newOrder.Amount // full match, both amounts are identical

	volume := money.Mul(executionPrice, amount)
	fee := commission.Calculate(volume)

	logger := log.With().
		Str("buy_order_id", buyOrder.OrderID).
		Str("sell_order_id", sellOrder.OrderID).
		Str("service", "matching").
		Logger()

	logger.Info().
		Str("price", money.Format(executionPrice)).
		Str("amount", money.Format(amount)).
		Str("volume", money.Format(volume)).
		Str("commission", money.Format(fee)).
		Msg("executing trade")

	if err := e.refundBuyer(tx, buyer, buyOrder, volume, fee); err != nil {
		return nil, err
	}

	// The seller receives the full volume; commission is buyer-only.
	if err := e.ledger.Credit(tx, seller, volume); err != nil {
		return nil, err
	}

	if err := e.ledger.TransferLockedAsset(tx, seller.ID, buyer.ID, newOrder.Symbol, amount); err != nil {
		return nil, err
	}

	if err := e.orders.MarkFilled(tx, buyOrder); err != nil {
		return nil, err
	}
	if err := e.orders.MarkFilled(tx, sellOrder); err != nil {
		return nil, err
	}

	trade := &types.Trade{
		TradeID:     "TRD_" + uuid.New().String(),
		BuyOrderID:  buyOrder.OrderID,
		SellOrderID: sellOrder.OrderID,
		BuyerID:     buyOrder.UserID,
		SellerID:    sellOrder.UserID,
		Symbol:      newOrder.Symbol,
		Price:       executionPrice,
		Amount:      amount,
		Commission:  fee,
	}
	if err := e.orders.CreateTrade(tx, trade); err != nil {
		return nil, err
	}

	logger.Info().
		Str("trade_id", trade.TradeID).
		Uint("buyer_id", trade.BuyerID).
		Uint("seller_id", trade.SellerID).
		Msg("trade executed successfully")

	return trade, nil
}

// refundBuyer credits back the difference between what the buy order
// reserved at placement (its own limit price plus commission) and the
// true cost at the execution price. The execution price never exceeds
// the buy limit, so the refund is never negative.
func (e *Engine) refundBuyer(tx *gorm.DB, buyer *types.User, buyOrder *types.Order, volume, fee decimal.Decimal) error {
	originalVolume := buyOrder.TotalValue()
	originalLocked := commission.TotalWithCommission(originalVolume)

	finalCost := money.Add(volume, fee)
	refund := money.Sub(originalLocked, finalCost)

	if refund.Sign() <= 0 {
		return nil
	}

	if err := e.ledger.Credit(tx, buyer, refund); err != nil {
		return err
	}

	log.Info().
		Str("refund", money.Format(refund)).
		Uint("buyer_id", buyer.ID).
		Str("service", "matching").
		Msg("refunded buyer for price improvement")

	return nil
}
