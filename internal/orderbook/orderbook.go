// Package orderbook is the query surface over resting orders: the locked
// best-counter-order lookups used by matching, and a read-only top-N view
// for the public book.
package orderbook

import (
	"gorm.io/gorm"

	"github.com/tradecore/exchange-api/internal/money"
	"github.com/tradecore/exchange-api/internal/types"
)

// DefaultDepth is the number of price levels per side in the public view.
const DefaultDepth = 20

// Service builds the public order book view.
type Service struct {
	db *Database
}

// NewService creates an order book service on the given database
// connection.
func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

// Index exposes the locked matching queries to the matching engine.
func (s *Service) Index() *Database {
	return s.db
}

// Snapshot returns the public book for a symbol: top bids and asks plus
// best bid, best ask and spread. The view is eventually consistent with
// committed state and carries no locks.
func (s *Service) Snapshot(symbol string) (*types.OrderBookResponse, error) {
	buyOrders, err := s.db.OpenBuyOrders(symbol, DefaultDepth)
	if err != nil {
		return nil, err
	}
	sellOrders, err := s.db.OpenSellOrders(symbol, DefaultDepth)
	if err != nil {
		return nil, err
	}

	book := &types.OrderBookResponse{
		Symbol:     symbol,
		BuyOrders:  make([]types.OrderView, 0, len(buyOrders)),
		SellOrders: make([]types.OrderView, 0, len(sellOrders)),
	}
	for i := range buyOrders {
		book.BuyOrders = append(book.BuyOrders, types.NewOrderView(&buyOrders[i]))
	}
	for i := range sellOrders {
		book.SellOrders = append(book.SellOrders, types.NewOrderView(&sellOrders[i]))
	}

	// Bids are sorted by price descending and asks ascending, so the
	// best of each side is the first row.
	if len(buyOrders) > 0 {
		bid := money.Format(buyOrders[0].Price)
		book.BestBid = &bid
	}
	if len(sellOrders) > 0 {
		ask := money.Format(sellOrders[0].Price)
		book.BestAsk = &ask
	}
	if len(buyOrders) > 0 && len(sellOrders) > 0 {
		spread := money.Format(money.Sub(sellOrders[0].Price, buyOrders[0].Price))
		book.Spread = &spread
	}

	return book, nil
}
