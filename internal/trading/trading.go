// Package trading owns the order lifecycle: placement with fund/asset
// reservation, cancellation with reservation release, and the user-facing
// order and trade listings.
package trading

import (
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tradecore/exchange-api/internal/commission"
	"github.com/tradecore/exchange-api/internal/ledger"
	"github.com/tradecore/exchange-api/internal/matching"
	"github.com/tradecore/exchange-api/internal/money"
	"github.com/tradecore/exchange-api/internal/orderbook"
	"github.com/tradecore/exchange-api/internal/types"
	"github.com/tradecore/exchange-api/pkg/response"
)

// Service handles order placement, cancellation and history.
type Service struct {
	db     *gorm.DB
	orders *Database
	ledger *ledger.Service
	engine *matching.Engine
}

// NewService creates a trading service. The engine runs matching after
// each successful placement.
func NewService(gormDB *gorm.DB, ledgerService *ledger.Service, engine *matching.Engine) *Service {
	return &Service{
		db:     gormDB,
		orders: NewDatabase(gormDB),
		ledger: ledgerService,
		engine: engine,
	}
}

// PlaceOrder reserves funds or assets for the order, creates it open,
// and then attempts to match it. Reservation and creation commit in one
// transaction; matching runs as a second transaction so a failed match
// leaves a validly resting order.
func (s *Service) PlaceOrder(userID uint, symbol string, side types.Side, price, amount decimal.Decimal) (*types.Order, *types.Trade, error) {
	logger := log.With().
		Uint("user_id", userID).
		Str("symbol", symbol).
		Str("side", string(side)).
		Str("service", "trading").
		Logger()

	volume := money.Mul(price, amount)
	total := commission.TotalWithCommission(volume)

	var order *types.Order
	err := s.db.Transaction(func(tx *gorm.DB) error {
		user, err := s.ledger.UserForUpdate(tx, userID)
		if err != nil {
			return err
		}
		if user == nil {
			return fmt.Errorf("user %d not found", userID)
		}

		if side == types.SideBuy {
			// Buy orders reserve volume plus commission up front; any
			// price improvement is refunded at settlement.
			if !s.ledger.HasSufficientBalance(user, total) {
				return ledger.ErrInsufficientBalance
			}
			if err := s.ledger.Debit(tx, user, total); err != nil {
				return err
			}
		} else {
			if err := s.ledger.LockAsset(tx, userID, symbol, amount); err != nil {
				return err
			}
		}

		order = &types.Order{
			OrderID: "ORD_" + uuid.New().String(),
			UserID:  userID,
			Symbol:  symbol,
			Side:    side,
			Price:   price,
			Amount:  amount,
			Status:  types.StatusOpen,
		}
		return s.orders.CreateOrder(tx, order)
	})
	if err != nil {
		logger.Warn().Err(err).Msg("order placement failed")
		return nil, nil, err
	}

	logger.Info().
		Str("order_id", order.OrderID).
		Str("price", money.Format(price)).
		Str("amount", money.Format(amount)).
		Msg("order placed")

	trade, err := s.engine.MatchOrder(order.OrderID)
	if err != nil {
		// The order is resting; matching can be retried by the next
		// crossing placement.
		return order, nil, fmt.Errorf("order placed but matching failed: %w", err)
	}

	if trade != nil {
		// Settlement flipped the order's status in its own transaction.
		refreshed, err := s.orders.Order(order.OrderID)
		if err != nil {
			return nil, nil, err
		}
		order = refreshed
	}

	return order, trade, nil
}

// CancelOrder cancels the caller's open order and releases its
// reservation: buy orders are refunded volume plus commission at the
// order's own price, sell orders unlock the reserved asset. The order
// row is locked before its status is checked, so a cancel racing a match
// observes the final state and fails cleanly.
func (s *Service) CancelOrder(userID uint, orderID string) (*types.Order, error) {
	logger := log.With().
		Uint("user_id", userID).
		Str("order_id", orderID).
		Str("service", "trading").
		Logger()

	var order *types.Order
	err := s.db.Transaction(func(tx *gorm.DB) error {
		o, err := s.orders.OrderByIDAndUserForUpdate(tx, orderID, userID)
		if err != nil {
			return err
		}
		if o == nil {
			return ErrOrderNotFound
		}
		if !o.IsOpen() {
			return ErrOrderNotCancellable
		}

		user, err := s.ledger.UserForUpdate(tx, userID)
		if err != nil {
			return err
		}
		if user == nil {
			return fmt.Errorf("user %d not found", userID)
		}

		if o.IsBuy() {
			refund := commission.TotalWithCommission(o.TotalValue())
			if err := s.ledger.Credit(tx, user, refund); err != nil {
				return err
			}
		} else {
			if err := s.ledger.UnlockAsset(tx, userID, o.Symbol, o.Amount); err != nil {
				return err
			}
		}

		if err := s.orders.MarkCancelled(tx, o); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		logger.Warn().Err(err).Msg("order cancellation failed")
		return nil, err
	}

	logger.Info().Msg("order cancelled")
	return order, nil
}

// UserOrders returns the caller's orders with optional filters.
func (s *Service) UserOrders(userID uint, filters OrderFilters) ([]types.Order, error) {
	return s.orders.UserOrders(userID, filters)
}

// UserTrades returns the caller's trade history with side, total and net
// amount derived from their role in each trade.
func (s *Service) UserTrades(userID uint) ([]types.TradeHistoryEntry, error) {
	trades, err := s.orders.UserTrades(userID)
	if err != nil {
		return nil, err
	}

	entries := make([]types.TradeHistoryEntry, 0, len(trades))
	for i := range trades {
		t := &trades[i]
		isBuyer := t.BuyerID == userID

		entry := types.TradeHistoryEntry{
			TradeID:    t.TradeID,
			Symbol:     t.Symbol,
			Side:       types.SideSell,
			Price:      money.Format(t.Price),
			Amount:     money.Format(t.Amount),
			Total:      money.Format(t.TotalValue()),
			Commission: money.Format(t.Commission),
			NetAmount:  money.Format(t.SellerReceives()),
			CreatedAt:  t.CreatedAt,
		}
		if isBuyer {
			entry.Side = types.SideBuy
			entry.NetAmount = money.Format(money.Add(t.TotalValue(), t.Commission))
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// GinHandlers contains HTTP handlers for trading endpoints.
type GinHandlers struct {
	service *Service
	book    *orderbook.Service
}

// NewGinHandlers creates the HTTP handlers for trading endpoints.
func NewGinHandlers(service *Service, book *orderbook.Service) *GinHandlers {
	return &GinHandlers{
		service: service,
		book:    book,
	}
}

// PlaceOrderRequest is the payload for POST /orders. Price and amount
// are decimal strings with at most eight fractional digits.
type PlaceOrderRequest struct {
	Symbol string `json:"symbol" binding:"required"`
	Side   string `json:"side" binding:"required"`
	Price  string `json:"price" binding:"required"`
	Amount string `json:"amount" binding:"required"`
}

// PlaceOrderHandler handles POST requests to place limit orders.
func (h *GinHandlers) PlaceOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("userID")

		var req PlaceOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		if !types.ValidSymbol(req.Symbol) {
			response.BadRequest(c, "Symbol must be BTC or ETH")
			return
		}
		side, ok := types.ParseSide(req.Side)
		if !ok {
			response.BadRequest(c, "Side must be buy or sell")
			return
		}
		price, err := money.Parse(req.Price)
		if err != nil || !price.IsPositive() {
			response.BadRequest(c, "Price must be a positive decimal with at most 8 decimal places")
			return
		}
		amount, err := money.Parse(req.Amount)
		if err != nil || !amount.IsPositive() {
			response.BadRequest(c, "Amount must be a positive decimal with at most 8 decimal places")
			return
		}

		order, trade, err := h.service.PlaceOrder(userID, req.Symbol, side, price, amount)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}

		resp := types.PlaceOrderResponse{
			Order:      types.NewOrderView(order),
			Commission: money.Format(commission.Calculate(money.Mul(price, amount))),
			Matched:    trade != nil,
		}
		if trade != nil {
			view := types.NewTradeView(trade)
			resp.Trade = &view
		}
		response.Success(c, resp)
	}
}

// CancelOrderHandler handles POST requests to cancel the caller's order.
// URL parameter: order_id.
func (h *GinHandlers) CancelOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("userID")
		orderID := c.Param("order_id")

		order, err := h.service.CancelOrder(userID, orderID)
		if err != nil {
			switch {
			case errors.Is(err, ErrOrderNotFound):
				response.NotFound(c, err.Error())
			case errors.Is(err, ErrOrderNotCancellable):
				response.Conflict(c, err.Error())
			default:
				response.Handle(c, nil, err)
			}
			return
		}

		response.Success(c, gin.H{"order": types.NewOrderView(order)})
	}
}

// OrderBookHandler handles GET requests for the public order book.
// Query parameter: symbol.
func (h *GinHandlers) OrderBookHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		symbol := c.Query("symbol")
		if !types.ValidSymbol(symbol) {
			response.BadRequest(c, "Symbol must be BTC or ETH")
			return
		}

		book, err := h.book.Snapshot(symbol)
		response.Handle(c, book, err)
	}
}

// MyOrdersHandler handles GET requests for the caller's own orders.
// Optional query parameters: symbol, side, status, limit, offset.
func (h *GinHandlers) MyOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("userID")

		filters := OrderFilters{
			Symbol: c.Query("symbol"),
			Side:   c.Query("side"),
			Status: c.Query("status"),
		}
		if limit, err := parseIntParam(c.Query("limit")); err == nil {
			filters.Limit = limit
		}
		if offset, err := parseIntParam(c.Query("offset")); err == nil {
			filters.Offset = offset
		}

		orders, err := h.service.UserOrders(userID, filters)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}

		views := make([]types.OrderView, 0, len(orders))
		for i := range orders {
			views = append(views, types.NewOrderView(&orders[i]))
		}
		response.Success(c, views)
	}
}

// TradesHandler handles GET requests for the caller's trade history.
func (h *GinHandlers) TradesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("userID")

		trades, err := h.service.UserTrades(userID)
		response.Handle(c, trades, err)
	}
}

func parseIntParam(s string) (int, error) {
	var n int
	if s == "" {
		return 0, fmt.Errorf("empty")
	}
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return 0, err
	}
	return n, nil
}
