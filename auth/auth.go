// Package auth issues and verifies the bearer tokens that identify the user
// a trade is placed for.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrUnauthorized means the token is missing, malformed, expired or
	// signed with another key
	ErrUnauthorized = errors.New("unauthorized")
)

// TokenData is an issued access token
type TokenData struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	UserID      int64     `json:"user_id"`
}

// TokenService signs and validates HS256 access tokens. The subject claim
// carries the user id.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService creates a token service
func NewTokenService(secret string, ttl time.Duration) *TokenService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenService{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue creates an access token for userID
func (s *TokenService) Issue(userID int64) (*TokenData, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("invalid user id %d", userID)
	}
	now := s.now()
	expires := now.Add(s.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &TokenData{AccessToken: signed, TokenType: "bearer", ExpiresAt: expires.UTC(), UserID: userID}, nil
}

// Verify validates tokenString and returns the user id it was issued for
func (s *TokenService) Verify(tokenString string) (int64, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return 0, fmt.Errorf("%w: invalid subject %q", ErrUnauthorized, claims.Subject)
	}
	return userID, nil
}
