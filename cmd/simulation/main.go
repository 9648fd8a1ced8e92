package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tradecore/exchange-api/internal/auth"
	"github.com/tradecore/exchange-api/internal/database"
	"github.com/tradecore/exchange-api/internal/ledger"
	"github.com/tradecore/exchange-api/internal/matching"
	"github.com/tradecore/exchange-api/internal/money"
	"github.com/tradecore/exchange-api/internal/notify"
	"github.com/tradecore/exchange-api/internal/orderbook"
	"github.com/tradecore/exchange-api/internal/trading"
	"github.com/tradecore/exchange-api/pkg/middleware"
)

const (
	minOrders     = 15
	maxOrders     = 150
	numWorkers    = 5
	serverAddress = "http://localhost:8080"
	jwtSecret     = "simulation-secret-key"
)

var symbols = []string{"BTC", "ETH"}

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	name       string
	mu         sync.Mutex
	durations  []time.Duration
	totalCalls int
	failures   int
}

// addDuration records a new duration measurement for the route
func (rs *routeStats) addDuration(d time.Duration) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
}

func (rs *routeStats) addFailure() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.failures++
}

// calculate computes performance statistics from recorded durations
// Returns min, max, mean, median, 95th percentile, and 99th percentile durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))
	median = rs.durations[len(rs.durations)/2]

	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// simulationClient handles HTTP communication with the exchange API for
// one simulated trader.
type simulationClient struct {
	baseURL   string
	email     string
	authToken string
	client    *http.Client
	stats     map[string]*routeStats
}

// newSimulationClient registers a fresh trader account and logs in.
// Stats are shared across all clients.
func newSimulationClient(email string, stats map[string]*routeStats) (*simulationClient, error) {
	sc := &simulationClient{
		baseURL: serverAddress,
		email:   email,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		stats: stats,
	}

	if err := sc.register(); err != nil {
		return nil, fmt.Errorf("failed to register: %w", err)
	}

	token, err := sc.login()
	if err != nil {
		return nil, fmt.Errorf("failed to login: %w", err)
	}
	sc.authToken = token

	return sc, nil
}

// register creates the trader's account
func (sc *simulationClient) register() error {
	start := time.Now()
	defer func() {
		sc.stats["register"].addDuration(time.Since(start))
	}()

	payload := map[string]string{
		"name":     "Simulated Trader",
		"email":    sc.email,
		"password": "password123",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	resp, err := sc.client.Post(
		fmt.Sprintf("%s/api/v1/auth/register", sc.baseURL),
		"application/json",
		bytes.NewBuffer(body),
	)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("registration failed with status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// login exchanges credentials for a JWT token
func (sc *simulationClient) login() (string, error) {
	start := time.Now()
	defer func() {
		sc.stats["login"].addDuration(time.Since(start))
	}()

	payload := map[string]string{
		"email":    sc.email,
		"password": "password123",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	resp, err := sc.client.Post(
		fmt.Sprintf("%s/api/v1/auth/login", sc.baseURL),
		"application/json",
		bytes.NewBuffer(body),
	)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("login failed with status: %d", resp.StatusCode)
	}

	var result struct {
		Success bool `json:"success"`
		Data    struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if result.Data.Token == "" {
		return "", fmt.Errorf("no token in login response")
	}

	return result.Data.Token, nil
}

// placedOrder captures what the API returned for one placement
type placedOrder struct {
	OrderID string
	Symbol  string
	Side    string
	Matched bool
}

// placeOrder submits a limit order and reports whether it matched
func (sc *simulationClient) placeOrder(symbol, side, price, amount string) (*placedOrder, error) {
	start := time.Now()
	defer func() {
		sc.stats["place"].addDuration(time.Since(start))
	}()

	payload := map[string]string{
		"symbol": symbol,
		"side":   side,
		"price":  price,
		"amount": amount,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(
		"POST",
		fmt.Sprintf("%s/api/v1/orders", sc.baseURL),
		bytes.NewBuffer(body),
	)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", sc.authToken))
	req.Header.Set("Content-Type", "application/json")

	resp, err := sc.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	log.Debug().Str("response", string(respBody)).Msg("Place order response")

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("place order failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Success bool `json:"success"`
		Data    struct {
			Order struct {
				OrderID string `json:"order_id"`
			} `json:"order"`
			Matched bool `json:"matched"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}
	if result.Data.Order.OrderID == "" {
		return nil, fmt.Errorf("no order ID in response: %s", string(respBody))
	}

	return &placedOrder{
		OrderID: result.Data.Order.OrderID,
		Symbol:  symbol,
		Side:    side,
		Matched: result.Data.Matched,
	}, nil
}

// cancelOrder cancels a resting order
func (sc *simulationClient) cancelOrder(orderID string) error {
	start := time.Now()
	defer func() {
		sc.stats["cancel"].addDuration(time.Since(start))
	}()

	req, err := http.NewRequest(
		"POST",
		fmt.Sprintf("%s/api/v1/orders/%s/cancel", sc.baseURL, orderID),
		nil,
	)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", sc.authToken))

	resp, err := sc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("cancel order failed with status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// orderBook fetches the current book for a symbol
func (sc *simulationClient) orderBook(symbol string) error {
	start := time.Now()
	defer func() {
		sc.stats["book"].addDuration(time.Since(start))
	}()

	req, err := http.NewRequest(
		"GET",
		fmt.Sprintf("%s/api/v1/orders?symbol=%s", sc.baseURL, symbol),
		nil,
	)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", sc.authToken))

	resp, err := sc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("order book failed with status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// printPerformanceStats outputs formatted performance statistics for all API endpoints
func printPerformanceStats(stats map[string]*routeStats) {
	fmt.Println("\nAPI Performance Statistics")
	fmt.Println(strings.Repeat("-", 110))
	fmt.Printf("%-20s %10s %10s %10s %10s %10s %10s %10s %10s\n",
		"Endpoint", "Calls", "Errors", "Min", "Max", "Mean", "Median", "P95", "P99")
	fmt.Println(strings.Repeat("-", 110))

	for _, rs := range stats {
		min, max, mean, median, p95, p99 := rs.calculate()
		fmt.Printf("%-20s %10d %10d %10s %10s %10s %10s %10s %10s\n",
			rs.name,
			rs.totalCalls,
			rs.failures,
			min.Round(time.Millisecond),
			max.Round(time.Millisecond),
			mean.Round(time.Millisecond),
			median.Round(time.Millisecond),
			p95.Round(time.Millisecond),
			p99.Round(time.Millisecond))
	}
	fmt.Println(strings.Repeat("-", 110))
}

// simStats aggregates outcomes across all workers
type simStats struct {
	mu             sync.Mutex
	TotalOrders    int
	MatchedOrders  int
	CancelledCount int
	FailedOrders   int
	Symbols        map[string]int
	Sides          map[string]int
}

func (st *simStats) recordOrder(o *placedOrder) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.TotalOrders++
	st.Symbols[o.Symbol]++
	st.Sides[o.Side]++
	if o.Matched {
		st.MatchedOrders++
	}
}

// main runs the trading simulation
// It starts a local API server and simulates multiple concurrent traders
// quoting around a fixed mid price, so a share of placements cross and
// settle while the rest either rest or get cancelled.
func main() {
	go func() {
		if err := startServer(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for server to start
	time.Sleep(2 * time.Second)

	stats := map[string]*routeStats{
		"register": {name: "Register"},
		"login":    {name: "Login"},
		"place":    {name: "Place Order"},
		"cancel":   {name: "Cancel Order"},
		"book":     {name: "Order Book"},
	}

	targetOrders := rand.Intn(maxOrders-minOrders) + minOrders
	log.Info().Int("target_orders", targetOrders).Msg("Starting simulation")

	sim := &simStats{
		Symbols: make(map[string]int),
		Sides:   make(map[string]int),
	}
	startTime := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			runTrader(workerID, targetOrders/numWorkers, stats, sim)
		}(i)
	}
	wg.Wait()

	duration := time.Since(startTime)

	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("EXCHANGE SIMULATION SUMMARY")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Printf(`
Order Statistics
----------------
Total Orders:   %d
Matched:        %d
Cancelled:      %d
Failed:         %d
Duration:       %v

Symbol Distribution
-------------------
`, sim.TotalOrders, sim.MatchedOrders, sim.CancelledCount, sim.FailedOrders,
		duration.Round(time.Millisecond))

	for symbol, count := range sim.Symbols {
		fmt.Printf("%-6s: %d\n", symbol, count)
	}

	fmt.Println("\nSide Distribution")
	fmt.Println("-----------------")
	for side, count := range sim.Sides {
		fmt.Printf("%-4s: %d\n", side, count)
	}

	fmt.Println("\n" + strings.Repeat("=", 80))

	matchRate := 0.0
	if sim.TotalOrders > 0 {
		matchRate = float64(sim.MatchedOrders) / float64(sim.TotalOrders) * 100
	}
	log.Info().
		Float64("match_rate", matchRate).
		Int("total_orders", sim.TotalOrders).
		Int("matched_orders", sim.MatchedOrders).
		Dur("duration", duration).
		Msg("Simulation completed")

	printPerformanceStats(stats)
}

// midPrices are the reference prices workers quote around. Amounts are
// drawn from a small fixed set so opposing quotes line up exactly and
// can fill in full.
var (
	midPrices = map[string]int{"BTC": 50000, "ETH": 3000}
	amounts   = []string{"0.1", "0.5", "1", "2"}
)

// runTrader registers one account, funds it, then places random quotes,
// occasionally cancelling its own resting orders and polling the book.
func runTrader(workerID, numOrders int, stats map[string]*routeStats, sim *simStats) {
	email := fmt.Sprintf("trader%d@simulation.test", workerID)
	sc, err := newSimulationClient(email, stats)
	if err != nil {
		log.Error().Err(err).Int("worker_id", workerID).Msg("Failed to initialize client")
		return
	}

	if err := fundTrader(email); err != nil {
		log.Error().Err(err).Int("worker_id", workerID).Msg("Failed to fund trader")
		return
	}

	var resting []string
	for i := 0; i < numOrders; i++ {
		symbol := symbols[rand.Intn(len(symbols))]
		side := "buy"
		if rand.Intn(2) == 1 {
			side = "sell"
		}

		// Quote within a narrow band of mid so some placements cross.
		mid := midPrices[symbol]
		offset := rand.Intn(mid/100+1) - mid/200
		price := fmt.Sprintf("%d", mid+offset)
		amount := amounts[rand.Intn(len(amounts))]

		order, err := sc.placeOrder(symbol, side, price, amount)
		if err != nil {
			stats["place"].addFailure()
			sim.mu.Lock()
			sim.FailedOrders++
			sim.mu.Unlock()
			log.Error().Err(err).Int("worker_id", workerID).Msg("Failed to place order")
			continue
		}
		sim.recordOrder(order)

		log.Info().
			Int("worker_id", workerID).
			Str("order_id", order.OrderID).
			Str("symbol", symbol).
			Str("side", side).
			Str("price", price).
			Str("amount", amount).
			Bool("matched", order.Matched).
			Msg("Order placed")

		if !order.Matched {
			resting = append(resting, order.OrderID)
		}

		// Occasionally cancel an old resting order
		if len(resting) > 3 && rand.Intn(4) == 0 {
			orderID := resting[0]
			resting = resting[1:]
			if err := sc.cancelOrder(orderID); err != nil {
				// A racing match may have filled it already
				stats["cancel"].addFailure()
				log.Debug().Err(err).Str("order_id", orderID).Msg("Cancel rejected")
			} else {
				sim.mu.Lock()
				sim.CancelledCount++
				sim.mu.Unlock()
			}
		}

		if rand.Intn(5) == 0 {
			if err := sc.orderBook(symbol); err != nil {
				stats["book"].addFailure()
			}
		}

		time.Sleep(time.Duration(rand.Intn(200)) * time.Millisecond)
	}
}

// sharedDB is the server's database handle, used to fund simulated
// traders directly since deposits have no API endpoint.
var sharedDB *gorm.DB

func fundTrader(email string) error {
	var userID uint
	if err := sharedDB.Raw("SELECT id FROM users WHERE email = ?", email).Scan(&userID).Error; err != nil {
		return err
	}
	if userID == 0 {
		return fmt.Errorf("user %s not found", email)
	}

	ledgerService := ledger.NewService(sharedDB)
	return sharedDB.Transaction(func(tx *gorm.DB) error {
		user, err := ledgerService.UserForUpdate(tx, userID)
		if err != nil {
			return err
		}
		if err := ledgerService.Credit(tx, user, money.MustParse("10000000")); err != nil {
			return err
		}
		for _, symbol := range symbols {
			if err := ledgerService.AddAsset(tx, userID, symbol, money.MustParse("100")); err != nil {
				return err
			}
		}
		return nil
	})
}

// startServer initializes and starts the exchange API server with an
// in-memory database
func startServer() error {
	db, err := database.NewTestDatabase("simulation")
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	sharedDB = db

	ledgerService := ledger.NewService(db)
	authService := auth.NewService(db, jwtSecret)
	authHandlers := auth.NewGinHandlers(authService, ledgerService)

	hub := notify.NewHub()
	engine := matching.NewEngine(db, ledgerService, hub)

	bookService := orderbook.NewService(db)
	tradingService := trading.NewService(db, ledgerService, engine)
	tradingHandlers := trading.NewGinHandlers(tradingService, bookService)

	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()

	v1 := router.Group("/api/v1")
	{
		authRoutes := v1.Group("/auth")
		{
			authRoutes.POST("/register", authHandlers.RegisterHandler())
			authRoutes.POST("/login", authHandlers.LoginHandler())
		}

		protected := v1.Group("")
		protected.Use(middleware.JWTAuth(authService))
		{
			protected.POST("/auth/logout", authHandlers.LogoutHandler())
			protected.GET("/profile", authHandlers.ProfileHandler())
			protected.GET("/orders", tradingHandlers.OrderBookHandler())
			protected.GET("/orders/my", tradingHandlers.MyOrdersHandler())
			protected.POST("/orders", tradingHandlers.PlaceOrderHandler())
			protected.POST("/orders/:order_id/cancel", tradingHandlers.CancelOrderHandler())
			protected.GET("/trades", tradingHandlers.TradesHandler())
			protected.GET("/ws", hub.ServeWS())
		}
	}

	return router.Run(":8080")
}
