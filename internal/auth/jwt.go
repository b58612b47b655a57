// Package auth provides JWT token generation and validation for the API.
//
// AUTHENTICATION FLOW OVERVIEW:
// 1. User signs up / signs in (email+password) or completes GitHub OAuth
// 2. Server upserts the user in the DB and issues a JWT access token
// 3. The client sends the token on every API call:
//    Authorization: Bearer <token>
// 4. Middleware validates the JWT, syncs the user directory, and sets the
//    caller's identity in the request context
//
// WHY JWT?
// JWT (JSON Web Token) is stateless — the server doesn't need to store
// session data. All the information needed (userID, profile, expiry) is
// inside the signed token. The signature ensures nobody can tamper with it
// without the secret key.
//
// WHY PROFILE FIELDS IN THE CLAIMS?
// The middleware syncs the local user record from the token on every
// authenticated request. Carrying email/name/image in the claims means the
// sync (and, when the store is down, the whole of authentication) needs no
// extra round trip to the identity provider.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "recap"

// TokenService handles JWT creation and validation.
//
// It holds the HMAC secret key used to sign and verify tokens.
// The same secret must be used for both operations — keep it safe, rotate
// it periodically in production.
type TokenService struct {
	secret []byte
}

// NewTokenService creates a TokenService with the given secret.
// The secret should be at least 32 bytes of random data in production.
// Example: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret)}, nil
}

// Identity is what a validated credential resolves to: the stable internal
// user ID plus the profile attributes the identity provider vouched for.
type Identity struct {
	UserID   string
	Email    string
	Name     string
	ImageURL string
	Provider string
}

// claims is the JWT payload. It embeds jwt.RegisteredClaims which includes
// standard fields like Issuer, Subject, ExpiresAt, IssuedAt.
//
// We use "sub" (Subject) for the internal user ID — the standard JWT claim
// for identifying who the token belongs to — plus private claims for the
// profile attributes.
type claims struct {
	Email    string `json:"email,omitempty"`
	Name     string `json:"name,omitempty"`
	ImageURL string `json:"image,omitempty"`
	Provider string `json:"provider,omitempty"`
	jwt.RegisteredClaims
}

// tokenTTL is the access token lifetime.
//
// There is no refresh-token mechanism (deliberately out of scope), so the
// lifetime is generous enough that a user isn't logged out mid-session.
const tokenTTL = 24 * time.Hour

// Generate creates and signs a new JWT access token for the given identity.
//
// Signing algorithm: HS256 (HMAC-SHA256)
// - Symmetric: same key for signing and verifying
// - Fast and simple — good for single-server deployments
// - Switch to RS256 if tokens ever need verifying by other services
func (s *TokenService) Generate(id Identity) (string, error) {
	return s.GenerateWithDuration(id, tokenTTL)
}

// GenerateWithDuration creates a token with a custom expiry duration.
// Used in tests (to mint already-expired tokens) and kept separate so the
// default TTL lives in exactly one place.
func (s *TokenService) GenerateWithDuration(id Identity, d time.Duration) (string, error) {
	if id.UserID == "" {
		return "", errors.New("auth: identity must have a user ID")
	}

	now := time.Now()
	c := claims{
		Email:    id.Email,
		Name:     id.Name,
		ImageURL: id.ImageURL,
		Provider: id.Provider,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
	}

	// jwt.NewWithClaims creates an unsigned token with the given algorithm.
	// SignedString(key) signs it and returns the complete JWT string.
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Validate parses and verifies a JWT string.
// Returns the Identity it encodes if the token is valid.
//
// VALIDATION CHECKS (performed by the jwt library):
//   - Signature is valid (wasn't tampered with)
//   - Token is not expired (ExpiresAt is in the future)
//   - Issuer matches (prevents tokens from other apps)
//   - Algorithm is HS256 (prevents algorithm confusion attacks)
//
// ALGORITHM CONFUSION ATTACK:
// Without checking the algorithm, an attacker could send a token signed
// with "none" and the library might accept it. Passing jwt.WithValidMethods
// prevents this.
func (s *TokenService) Validate(tokenStr string) (*Identity, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			// Reject tokens that aren't signed with HS256
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		// Translate jwt library errors into cleaner messages
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("auth: token expired")
		}
		return nil, fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("auth: invalid token claims")
	}

	if c.Subject == "" {
		return nil, fmt.Errorf("auth: token has no subject")
	}

	return &Identity{
		UserID:   c.Subject,
		Email:    c.Email,
		Name:     c.Name,
		ImageURL: c.ImageURL,
		Provider: c.Provider,
	}, nil
}
