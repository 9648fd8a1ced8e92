package types

import (
	"time"

	"github.com/tradecore/exchange-api/internal/money"
)

// OrderView is the API representation of an order.
type OrderView struct {
	OrderID     string    `json:"order_id"`
	Symbol      string    `json:"symbol"`
	Side        Side      `json:"side"`
	Price       string    `json:"price"`
	Amount      string    `json:"amount"`
	Status      Status    `json:"status"`
	StatusLabel string    `json:"status_label"`
	TotalValue  string    `json:"total_value"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewOrderView converts an order row to its API representation.
func NewOrderView(o *Order) OrderView {
	return OrderView{
		OrderID:     o.OrderID,
		Symbol:      o.Symbol,
		Side:        o.Side,
		Price:       money.Format(o.Price),
		Amount:      money.Format(o.Amount),
		Status:      o.Status,
		StatusLabel: o.Status.Label(),
		TotalValue:  money.Format(o.TotalValue()),
		CreatedAt:   o.CreatedAt,
	}
}

// TradeView is the API representation of a trade.
type TradeView struct {
	TradeID    string    `json:"trade_id"`
	Symbol     string    `json:"symbol"`
	Price      string    `json:"price"`
	Amount     string    `json:"amount"`
	Commission string    `json:"commission"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewTradeView converts a trade row to its API representation.
func NewTradeView(t *Trade) TradeView {
	return TradeView{
		TradeID:    t.TradeID,
		Symbol:     t.Symbol,
		Price:      money.Format(t.Price),
		Amount:     money.Format(t.Amount),
		Commission: money.Format(t.Commission),
		CreatedAt:  t.CreatedAt,
	}
}

// PlaceOrderResponse reports the created order and, when the placement
// matched immediately, the resulting trade.
type PlaceOrderResponse struct {
	Order      OrderView  `json:"order"`
	Commission string     `json:"commission"`
	Matched    bool       `json:"matched"`
	Trade      *TradeView `json:"trade,omitempty"`
}

// OrderBookResponse is the public order book for one symbol.
type OrderBookResponse struct {
	Symbol     string      `json:"symbol"`
	BuyOrders  []OrderView `json:"buy_orders"`
	SellOrders []OrderView `json:"sell_orders"`
	BestBid    *string     `json:"best_bid"`
	BestAsk    *string     `json:"best_ask"`
	Spread     *string     `json:"spread"`
}

// AssetView is the profile representation of one holding.
type AssetView struct {
	Symbol          string `json:"symbol"`
	Amount          string `json:"amount"`
	LockedAmount    string `json:"locked_amount"`
	AvailableAmount string `json:"available_amount"`
}

// ProfileResponse is the authenticated user's account summary.
type ProfileResponse struct {
	ID        uint        `json:"id"`
	Name      string      `json:"name"`
	Email     string      `json:"email"`
	Balance   string      `json:"balance"`
	Assets    []AssetView `json:"assets"`
	CreatedAt time.Time   `json:"created_at"`
}

// TradeHistoryEntry is one row of the caller's trade history, with the
// side and net amount derived from the caller's role in the trade.
type TradeHistoryEntry struct {
	TradeID    string    `json:"trade_id"`
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	Price      string    `json:"price"`
	Amount     string    `json:"amount"`
	Total      string    `json:"total"`
	Commission string    `json:"commission"`
	NetAmount  string    `json:"net_amount"`
	CreatedAt  time.Time `json:"created_at"`
}
