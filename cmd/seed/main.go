package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/tradecore/exchange-api/internal/database"
	"github.com/tradecore/exchange-api/internal/ledger"
	"github.com/tradecore/exchange-api/internal/matching"
	"github.com/tradecore/exchange-api/internal/money"
	"github.com/tradecore/exchange-api/internal/notify"
	"github.com/tradecore/exchange-api/internal/trading"
	"github.com/tradecore/exchange-api/internal/types"
)

// seedUser describes an account to create with its starting balance and
// per-symbol holdings.
type seedUser struct {
	name    string
	email   string
	balance string
	assets  map[string]string
}

var seedUsers = []seedUser{
	{
		name:    "Alice Buyer",
		email:   "alice@example.com",
		balance: "500000",
		assets:  map[string]string{},
	},
	{
		name:    "Bob Seller",
		email:   "bob@example.com",
		balance: "10000",
		assets:  map[string]string{"BTC": "10", "ETH": "200"},
	},
	{
		name:    "Mia Maker",
		email:   "mia@example.com",
		balance: "1000000",
		assets:  map[string]string{"BTC": "25", "ETH": "500"},
	},
}

// ladder is a set of resting quotes the market maker places on both
// sides of a symbol.
type ladder struct {
	symbol string
	asks   [][2]string // price, amount
	bids   [][2]string
}

var ladders = []ladder{
	{
		symbol: "BTC",
		asks:   [][2]string{{"50500", "0.5"}, {"51000", "1"}, {"52000", "2"}},
		bids:   [][2]string{{"49500", "0.5"}, {"49000", "1"}, {"48000", "2"}},
	},
	{
		symbol: "ETH",
		asks:   [][2]string{{"3050", "5"}, {"3100", "10"}, {"3200", "20"}},
		bids:   [][2]string{{"2950", "5"}, {"2900", "10"}, {"2800", "20"}},
	},
}

func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// main seeds a fresh database with demo accounts, holdings and a resting
// order book. All passwords are "password".
func main() {
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "exchange.db"
	}

	db, err := database.NewDatabase(dbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}

	ledgerService := ledger.NewService(db)
	engine := matching.NewEngine(db, ledgerService, notify.Nop{})
	tradingService := trading.NewService(db, ledgerService, engine)

	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to hash password")
	}

	users := make(map[string]*types.User)
	for _, su := range seedUsers {
		user := &types.User{
			Name:         su.name,
			Email:        su.email,
			PasswordHash: string(hash),
			Balance:      money.MustParse(su.balance),
		}
		if err := db.Create(user).Error; err != nil {
			log.Fatal().Err(err).Str("email", su.email).Msg("Failed to create user")
		}

		err = db.Transaction(func(tx *gorm.DB) error {
			for symbol, amount := range su.assets {
				if err := ledgerService.AddAsset(tx, user.ID, symbol, money.MustParse(amount)); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			log.Fatal().Err(err).Str("email", su.email).Msg("Failed to seed assets")
		}

		users[su.email] = user
		log.Info().
			Str("email", su.email).
			Str("balance", money.Format(user.Balance)).
			Msg("User created")
	}

	// Resting quotes go through the trading service so reservations stay
	// consistent with real placements.
	maker := users["mia@example.com"]
	for _, l := range ladders {
		for _, ask := range l.asks {
			placeQuote(tradingService, maker.ID, l.symbol, types.SideSell, ask[0], ask[1])
		}
		for _, bid := range l.bids {
			placeQuote(tradingService, maker.ID, l.symbol, types.SideBuy, bid[0], bid[1])
		}
	}

	log.Info().Msg("Seeding complete")
}

func placeQuote(svc *trading.Service, userID uint, symbol string, side types.Side, price, amount string) {
	order, _, err := svc.PlaceOrder(userID, symbol, side, money.MustParse(price), money.MustParse(amount))
	if err != nil {
		log.Fatal().Err(err).
			Str("symbol", symbol).
			Str("side", string(side)).
			Str("price", price).
			Msg("Failed to place quote")
	}

	log.Info().
		Str("order_id", order.OrderID).
		Str("symbol", symbol).
		Str("side", string(side)).
		Str("price", price).
		Str("amount", amount).
		Msg("Quote placed")
}
