// Package auth provides JWT generation, validation, and related utilities
// for DocVerify user authentication.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrNoBearerToken is returned when a request has no usable Authorization header.
var ErrNoBearerToken = errors.New("no bearer token in request")

// Claims represents JWT claims for a DocVerify user.
// Role is "user" or "admin"; admin endpoints check it together with the
// revocation list.
type Claims struct {
	jwt.RegisteredClaims
	Role          string `json:"role"`
	EmailVerified bool   `json:"email_verified"`
}

// GenerateAccessToken creates a signed JWT access token for the given user.
// Access tokens are short-lived (15 minutes by default, AUTH_JWT_EXPIRY to
// override). Every token receives a unique jti (JWT ID) for revocation support.
func GenerateAccessToken(userID uuid.UUID, role string, emailVerified bool) (string, error) {
	secret := os.Getenv("AUTH_JWT_SECRET")
	if secret == "" {
		return "", errors.New("AUTH_JWT_SECRET not set")
	}

	expiry := 15 * time.Minute
	if v := os.Getenv("AUTH_JWT_EXPIRY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			expiry = d
		}
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(), // jti — unique per token for revocation
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			Issuer:    "docverify",
		},
		Role:          role,
		EmailVerified: emailVerified,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateAccessToken parses and validates a JWT access token.
// Returns the parsed claims or an error if the token is invalid/expired.
// Revocation check against the DB is NOT done here — callers that need it
// should call IsRevoked(ctx, db, claims.ID) after validation.
func ValidateAccessToken(tokenStr string) (*Claims, error) {
	secret := os.Getenv("AUTH_JWT_SECRET")
	if secret == "" {
		return nil, errors.New("AUTH_JWT_SECRET not set")
	}

	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// GenerateRefreshToken creates a cryptographically random refresh token (32 bytes, hex-encoded).
// The raw token is returned for transmission; the caller must hash and store it.
func GenerateRefreshToken() (raw string, hash string, err error) {
	b := make([]byte, 32)
	if _, err = rand.Read(b); err != nil {
		return "", "", fmt.Errorf("failed to generate refresh token: %w", err)
	}
	raw = hex.EncodeToString(b)
	hash = HashToken(raw)
	return raw, hash, nil
}

// GenerateSecureToken creates a cryptographically random token with the given prefix.
// Format: {prefix}{32 random bytes hex}. Returns raw token and its SHA-256 hash.
// The raw token is shown to the user once; only the hash is stored.
func GenerateSecureToken(prefix string) (raw string, hash string, err error) {
	b := make([]byte, 32)
	if _, err = rand.Read(b); err != nil {
		return "", "", fmt.Errorf("failed to generate token: %w", err)
	}
	raw = prefix + hex.EncodeToString(b)
	hash = HashToken(raw)
	return raw, hash, nil
}

// HashToken computes the SHA-256 hex digest of a token string.
// Used to convert raw tokens into storage-safe hashes.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
