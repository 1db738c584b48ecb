package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultTokenTTL = 24 * time.Hour

// Claims is the signed claim set carried by a session token.
type Claims struct {
	Email string `json:"email"`
	Role  Role   `json:"role"`
	jwt.RegisteredClaims
}

func (c *Claims) Principal() Principal {
	return Principal{ID: c.Subject, Email: c.Email, Role: c.Role}
}

// TokenService issues and verifies HS256 session tokens. The secret is
// immutable after construction and safe to share across goroutines.
type TokenService struct {
	secret   []byte
	ttl      time.Duration
	issuer   string
	audience string
	now      func() time.Time
}

func NewTokenService(secret string, ttl time.Duration, issuer, audience string) *TokenService {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &TokenService{
		secret:   []byte(secret),
		ttl:      ttl,
		issuer:   issuer,
		audience: audience,
		now:      time.Now,
	}
}

func (s *TokenService) Issue(p Principal) (string, error) {
	now := s.now().UTC()
	claims := Claims{
		Email: p.Email,
		Role:  p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	encoded, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return encoded, nil
}

// Verify parses and validates a token. Only HS256 under the configured
// secret is accepted; issuer and audience must match. The returned
// *TokenError discriminates failure kinds for logging and tests only.
func (s *TokenService) Verify(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, &TokenError{Kind: TokenExpired, cause: err}
		case errors.Is(err, jwt.ErrTokenInvalidIssuer):
			return nil, &TokenError{Kind: TokenWrongIssuer, cause: err}
		case errors.Is(err, jwt.ErrTokenInvalidAudience):
			return nil, &TokenError{Kind: TokenWrongAudience, cause: err}
		default:
			return nil, &TokenError{Kind: TokenMalformed, cause: err}
		}
	}
	if !token.Valid {
		return nil, &TokenError{Kind: TokenMalformed}
	}
	if _, err := ParseRole(string(claims.Role)); err != nil {
		return nil, &TokenError{Kind: TokenMalformed, cause: err}
	}

	return claims, nil
}
