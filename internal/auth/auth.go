// Package auth verifies identity-provider session tokens.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/imrishuroy/go-storefront-sync/internal/config"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrMissingToken = errors.New("missing token")
	ErrMissingUser  = errors.New("missing subject in claims")
)

// Claims are the session token claims this service reads.
type Claims struct {
	jwt.RegisteredClaims
	Metadata struct {
		Role string `json:"role"`
	} `json:"metadata"`
}

// Identity is the authenticated caller.
type Identity struct {
	UserID string
	Role   string
}

// Verifier checks token signatures and extracts the caller identity.
type Verifier struct {
	key        interface{}
	method     string
	sellerRole string
}

// NewVerifier builds a Verifier from config. A PEM public key selects
// RS256; otherwise the shared secret selects HS256.
func NewVerifier(cfg config.AuthConfig) (*Verifier, error) {
	v := &Verifier{sellerRole: cfg.SellerRole}
	switch {
	case cfg.PublicKey != "":
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cfg.PublicKey))
		if err != nil {
			return nil, fmt.Errorf("parse public key: %w", err)
		}
		v.key, v.method = key, jwt.SigningMethodRS256.Alg()
	case cfg.Secret != "":
		v.key, v.method = []byte(cfg.Secret), jwt.SigningMethodHS256.Alg()
	default:
		return nil, errors.New("auth: either a public key or a secret is required")
	}
	return v, nil
}

// Verify validates tokenString and returns the caller identity.
func (v *Verifier) Verify(tokenString string) (Identity, error) {
	if tokenString == "" {
		return Identity{}, ErrMissingToken
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, v.keyFunc,
		jwt.WithValidMethods([]string{v.method}),
		jwt.WithLeeway(5*time.Second),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrExpiredToken
		}
		return Identity{}, ErrInvalidToken
	}
	if !token.Valid {
		return Identity{}, ErrInvalidToken
	}
	if claims.Subject == "" {
		return Identity{}, ErrMissingUser
	}
	return Identity{UserID: claims.Subject, Role: claims.Metadata.Role}, nil
}

func (v *Verifier) keyFunc(*jwt.Token) (interface{}, error) {
	return v.key, nil
}

// IsSeller reports whether id carries the configured seller role.
func (v *Verifier) IsSeller(id Identity) bool {
	return v.sellerRole != "" && id.Role == v.sellerRole
}
