package account

import (
	"errors"
	"time"

	"github.com/ahmadzakiakmal/weldledger/apperr"
	"github.com/golang-jwt/jwt/v5"
)

// Token lifetimes.
const (
	AccessTTL  = time.Hour
	RefreshTTL = 7 * 24 * time.Hour
)

// Kind selects the secret a token is signed with.
type Kind int

const (
	AccessToken Kind = iota
	RefreshToken
)

// Claims carried by both token kinds.
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Signer issues and verifies HS256 tokens. Access and refresh tokens use
// separate secrets so one cannot stand in for the other.
type Signer struct {
	accessSecret  []byte
	refreshSecret []byte
	now           func() time.Time
}

func NewSigner(accessSecret, refreshSecret string) *Signer {
	return &Signer{accessSecret: []byte(accessSecret), refreshSecret: []byte(refreshSecret), now: time.Now}
}

func (s *Signer) secret(kind Kind) ([]byte, time.Duration) {
	if kind == RefreshToken {
		return s.refreshSecret, RefreshTTL
	}
	return s.accessSecret, AccessTTL
}

// Sign issues a token of kind for username and role.
func (s *Signer) Sign(kind Kind, username, role string) (string, error) {
	secret, ttl := s.secret(kind)
	now := s.now()
	claims := Claims{
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// Verify parses token as kind. Any failure is UNAUTHORIZED.
func (s *Signer) Verify(kind Kind, token string) (*Claims, error) {
	secret, _ := s.secret(kind)
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperr.New(apperr.CodeUnauthorized, "Token expired")
		}
		return nil, apperr.New(apperr.CodeUnauthorized, "Invalid token")
	}
	if claims.Username == "" || claims.Role == "" {
		return nil, apperr.New(apperr.CodeUnauthorized, "Invalid token")
	}
	return claims, nil
}
