// Package auth verifies the bearer tokens presented to the API.
//
// Tokens are HS256 JWTs issued by the identity service with the user's UUID
// in the sub claim. This package only validates them.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/genflow/internal/config"
	"github.com/phrazzld/genflow/internal/platform/logger"
)

// DefaultClockSkew is the leeway applied to exp, nbf and iat.
const DefaultClockSkew = 2 * time.Minute

// Claims is the validated identity carried by a token.
type Claims struct {
	UserID    uuid.UUID
	IssuedAt  time.Time
	ExpiresAt time.Time
	ID        string
}

// TokenValidator validates bearer tokens.
type TokenValidator interface {
	ValidateToken(ctx context.Context, tokenString string) (*Claims, error)
}

// HMACValidator validates HS256 tokens against a shared secret.
type HMACValidator struct {
	signingKey []byte
	clockSkew  time.Duration
	timeFunc   func() time.Time
}

var _ TokenValidator = (*HMACValidator)(nil)

// NewHMACValidator creates a validator for tokens signed with cfg.JWTSecret.
func NewHMACValidator(cfg config.AuthConfig) (*HMACValidator, error) {
	if len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("jwt secret must be at least 32 characters")
	}
	return &HMACValidator{
		signingKey: []byte(cfg.JWTSecret),
		clockSkew:  DefaultClockSkew,
		timeFunc:   time.Now,
	}, nil
}

// ValidateToken parses tokenString, checks its signature and time claims,
// and extracts the user id from the sub claim.
func (v *HMACValidator) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	var registered jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(
		tokenString,
		&registered,
		func(*jwt.Token) (any, error) { return v.signingKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithLeeway(v.clockSkew),
		jwt.WithTimeFunc(v.timeFunc),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			err = ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			err = ErrTokenNotYetValid
		default:
			err = ErrInvalidToken
		}
		logger.FromContext(ctx).Debug("token validation failed", "reason", err.Error())
		return nil, err
	}

	userID, err := uuid.Parse(registered.Subject)
	if err != nil || userID == uuid.Nil {
		return nil, ErrInvalidSubject
	}

	claims := &Claims{UserID: userID, ID: registered.ID}
	if registered.IssuedAt != nil {
		claims.IssuedAt = registered.IssuedAt.Time
	}
	if registered.ExpiresAt != nil {
		claims.ExpiresAt = registered.ExpiresAt.Time
	}
	return claims, nil
}
