// Package auth handles user registration, login and JWT issuance.
package auth

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/tradecore/exchange-api/internal/ledger"
	"github.com/tradecore/exchange-api/internal/money"
	"github.com/tradecore/exchange-api/internal/types"
	"github.com/tradecore/exchange-api/pkg/response"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrTokenGeneration    = errors.New("failed to generate token")
)

// TokenResponse represents the JWT token response
type TokenResponse struct {
	Token      string    `json:"token"`
	Expiration time.Time `json:"expiration"`
}

// Claims represents the JWT claims structure
type Claims struct {
	jwt.RegisteredClaims
	UserID uint   `json:"user_id"`
	Email  string `json:"email"`
}

// Service handles authentication operations.
type Service struct {
	db        *gorm.DB
	jwtSecret []byte
}

// NewService creates an authentication service with the given JWT secret.
func NewService(gormDB *gorm.DB, jwtSecret string) *Service {
	return &Service{
		db:        gormDB,
		jwtSecret: []byte(jwtSecret),
	}
}

// Register creates a new user with a hashed password and a zero starting
// balance.
func (s *Service) Register(name, email, password string) (*types.User, error) {
	var existing types.User
	err := s.db.Where("email = ?", email).First(&existing).Error
	if err == nil {
		return nil, ErrEmailTaken
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &types.User{
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Balance:      decimal.Zero,
	}
	if err := s.db.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// Login verifies credentials and returns a signed JWT valid for 24
// hours.
func (s *Service) Login(email, password string) (*TokenResponse, error) {
	var user types.User
	if err := s.db.Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	expiration := time.Now().Add(24 * time.Hour)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiration),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
		UserID: user.ID,
		Email:  user.Email,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, ErrTokenGeneration
	}

	return &TokenResponse{
		Token:      tokenString,
		Expiration: expiration,
	}, nil
}

// ValidateToken validates a JWT and returns its claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

// User fetches a user by id.
func (s *Service) User(userID uint) (*types.User, error) {
	var user types.User
	if err := s.db.First(&user, userID).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GinHandlers contains HTTP handlers for authentication and profile
// endpoints.
type GinHandlers struct {
	service *Service
	ledger  *ledger.Service
}

// NewGinHandlers creates the HTTP handlers for authentication endpoints.
func NewGinHandlers(service *Service, ledgerService *ledger.Service) *GinHandlers {
	return &GinHandlers{
		service: service,
		ledger:  ledgerService,
	}
}

// RegisterRequest is the payload for POST /auth/register.
type RegisterRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

// LoginRequest is the payload for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// RegisterHandler handles POST requests to create user accounts.
func (h *GinHandlers) RegisterHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		user, err := h.service.Register(req.Name, req.Email, req.Password)
		if errors.Is(err, ErrEmailTaken) {
			response.Conflict(c, err.Error())
			return
		}
		response.Handle(c, user, err)
	}
}

// LoginHandler handles POST requests to exchange credentials for a JWT.
func (h *GinHandlers) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		token, err := h.service.Login(req.Email, req.Password)
		if errors.Is(err, ErrInvalidCredentials) {
			response.Unauthorized(c, err.Error())
			return
		}
		response.Handle(c, token, err)
	}
}

// LogoutHandler acknowledges logout. Tokens are stateless; clients
// discard them.
func (h *GinHandlers) LogoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		response.Success(c, gin.H{"message": "logged out"})
	}
}

// ProfileHandler handles GET requests for the caller's account summary:
// balance plus per-symbol holdings.
func (h *GinHandlers) ProfileHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("userID")

		user, err := h.service.User(userID)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}

		assets, err := h.ledger.UserAssets(userID)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}

		profile := types.ProfileResponse{
			ID:        user.ID,
			Name:      user.Name,
			Email:     user.Email,
			Balance:   money.Format(user.Balance),
			Assets:    make([]types.AssetView, 0, len(assets)),
			CreatedAt: user.CreatedAt,
		}
		for i := range assets {
			a := &assets[i]
			profile.Assets = append(profile.Assets, types.AssetView{
				Symbol:          a.Symbol,
				Amount:          money.Format(a.Amount),
				LockedAmount:    money.Format(a.LockedAmount),
				AvailableAmount: money.Format(a.AvailableAmount()),
			})
		}

		response.Success(c, profile)
	}
}
