package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/earthring/chunkstream/internal/config"
)

const issuer = "chunkstream-server"

// Claims represents JWT claims structure
type Claims struct {
	jwt.RegisteredClaims

	ObserverID string `json:"observer_id"`
}

// TokenService issues and checks observer tokens. With an empty secret it is
// disabled and every observer is admitted anonymously.
type TokenService struct {
	secret []byte
	expiry time.Duration
}

// NewTokenService creates a token service from configuration
func NewTokenService(cfg config.AuthConfig) *TokenService {
	expiry := cfg.JWTExpiration
	if expiry <= 0 {
		expiry = time.Hour
	}
	return &TokenService{secret: []byte(cfg.JWTSecret), expiry: expiry}
}

// Enabled reports whether tokens are required.
func (s *TokenService) Enabled() bool {
	return len(s.secret) > 0
}

// GenerateObserverToken signs a token for observerID.
func (s *TokenService) GenerateObserverToken(observerID string) (string, error) {
	if !s.Enabled() {
		return "", errors.New("token service has no secret")
	}
	if observerID == "" {
		return "", errors.New("observer id is required")
	}
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   observerID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
		ObserverID: observerID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ValidateToken validates a token and returns its claims
func (s *TokenService) ValidateToken(tokenString string) (*Claims, error) {
	if !s.Enabled() {
		return nil, errors.New("token service has no secret")
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Validate signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.Issuer != issuer {
		return nil, errors.New("invalid token issuer")
	}
	if claims.ObserverID == "" {
		return nil, errors.New("token has no observer id")
	}
	return claims, nil
}

// Expiration returns the lifetime of issued tokens.
func (s *TokenService) Expiration() time.Duration {
	return s.expiry
}
