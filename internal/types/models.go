package types

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tradecore/exchange-api/internal/money"
)

// Side identifies whether an order buys or sells the base asset.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// ParseSide validates a request-supplied side value.
func ParseSide(s string) (Side, bool) {
	switch Side(s) {
	case SideBuy, SideSell:
		return Side(s), true
	}
	return "", false
}

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Status is the order lifecycle state. Orders are created open and end in
// exactly one of the terminal states; terminal states never change.
type Status string

const (
	StatusOpen      Status = "open"
	StatusFilled    Status = "filled"
	StatusCancelled Status = "cancelled"
)

// Label returns the display form of a status.
func (s Status) Label() string {
	switch s {
	case StatusOpen:
		return "Open"
	case StatusFilled:
		return "Filled"
	case StatusCancelled:
		return "Cancelled"
	}
	return string(s)
}

// Supported trading symbols. Prices are quoted in USD.
var Symbols = []string{"BTC", "ETH"}

// ValidSymbol reports whether the symbol is tradeable on this exchange.
func ValidSymbol(symbol string) bool {
	for _, s := range Symbols {
		if s == symbol {
			return true
		}
	}
	return false
}

// User holds the account's available USD balance. There is no separate
// locked-cash column: buy orders reserve funds by debiting the balance at
// placement and crediting it back on cancel or price-improvement refund.
type User struct {
	gorm.Model   `json:"-"`
	Name         string          `json:"name"`
	Email        string          `gorm:"uniqueIndex" json:"email"`
	PasswordHash string          `json:"-"`
	Balance      decimal.Decimal `gorm:"type:decimal(30,8)" json:"balance"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"-"`
}

// Asset is a user's holding of one symbol. LockedAmount is the portion
// reserved by open sell orders; locked_amount <= amount always holds.
type Asset struct {
	gorm.Model   `json:"-"`
	UserID       uint            `gorm:"uniqueIndex:idx_assets_user_symbol" json:"user_id"`
	Symbol       string          `gorm:"uniqueIndex:idx_assets_user_symbol" json:"symbol"`
	Amount       decimal.Decimal `gorm:"type:decimal(30,8)" json:"amount"`
	LockedAmount decimal.Decimal `gorm:"type:decimal(30,8)" json:"locked_amount"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"-"`
}

// AvailableAmount returns the holding not reserved by open sell orders.
func (a *Asset) AvailableAmount() decimal.Decimal {
	return money.Sub(a.Amount, a.LockedAmount)
}

// HasSufficient reports whether the available amount covers required.
func (a *Asset) HasSufficient(required decimal.Decimal) bool {
	return a.AvailableAmount().Cmp(required) >= 0
}

// Order is a limit order resting in or removed from the book.
type Order struct {
	gorm.Model `json:"-"`
	OrderID    string          `gorm:"uniqueIndex" json:"order_id"`
	UserID     uint            `gorm:"index" json:"user_id"`
	Symbol     string          `gorm:"index" json:"symbol"`
	Side       Side            `json:"side"`
	Price      decimal.Decimal `gorm:"type:decimal(30,8)" json:"price"`
	Amount     decimal.Decimal `gorm:"type:decimal(30,8)" json:"amount"`
	Status     Status          `gorm:"index" json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"-"`
}

// IsOpen reports whether the order can still match or be cancelled.
func (o *Order) IsOpen() bool {
	return o.Status == StatusOpen
}

// IsBuy reports whether this is a buy order.
func (o *Order) IsBuy() bool {
	return o.Side == SideBuy
}

// TotalValue returns price * amount at the order's own limit price.
func (o *Order) TotalValue() decimal.Decimal {
	return money.Mul(o.Price, o.Amount)
}

// Trade records one full match between a buy and a sell order. Trades are
// immutable; both referenced orders are filled when the trade commits.
type Trade struct {
	gorm.Model  `json:"-"`
	TradeID     string          `gorm:"uniqueIndex" json:"trade_id"`
	BuyOrderID  string          `json:"buy_order_id"`
	SellOrderID string          `json:"sell_order_id"`
	BuyerID     uint            `gorm:"index" json:"buyer_id"`
	SellerID    uint            `gorm:"index" json:"seller_id"`
	Symbol      string          `json:"symbol"`
	Price       decimal.Decimal `gorm:"type:decimal(30,8)" json:"price"`
	Amount      decimal.Decimal `gorm:"type:decimal(30,8)" json:"amount"`
	Commission  decimal.Decimal `gorm:"type:decimal(30,8)" json:"commission"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"-"`
}

// TotalValue returns price * amount at the execution price.
func (t *Trade) TotalValue() decimal.Decimal {
	return money.Mul(t.Price, t.Amount)
}

// SellerReceives returns the trade value net of commission, used for
// trade-history display.
func (t *Trade) SellerReceives() decimal.Decimal {
	return money.Sub(t.TotalValue(), t.Commission)
}
