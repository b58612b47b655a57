// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes to the database
//
// Handlers only know about HTTP. Services only know about business rules.
// Neither knows about SQL. Services receive repository INTERFACES, not
// concrete types, so tests can inject mocks and the storage backend can be
// swapped in one line of wiring.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/recap/internal/apperror"
	"github.com/sakif/recap/internal/auth"
	"github.com/sakif/recap/internal/model"
	"github.com/sakif/recap/internal/repository"
)

// Validation limits for account fields.
const (
	MinPasswordLength = 8
	MaxNameLength     = 100
	MaxEmailLength    = 254 // RFC 5321 upper bound
)

// AuthService handles authentication business logic: signup, signin, the
// GitHub OAuth login, and profile lookups.
//
// DEPENDENCIES (injected via NewAuthService):
//   - users      repository.UserRepository  → read/write user records
//   - tokens     *auth.TokenService         → generate/validate JWTs
//   - passwords  *auth.PasswordService      → bcrypt hashing
//   - logger     *slog.Logger               → structured logging
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

// NewAuthService creates an AuthService with all required dependencies.
// Call this in server.go when wiring the dependency graph.
func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// AuthResult is returned by authentication operations.
// It bundles the user record and the issued JWT so the handler can respond
// in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// Signup registers a new local (email/password) account.
//
// The new account receives the signup credit grant. A duplicate email
// surfaces as apperror.ErrConflict.
func (s *AuthService) Signup(ctx context.Context, email, name, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	name = strings.TrimSpace(name)

	if email == "" || !strings.Contains(email, "@") || len(email) > MaxEmailLength {
		return nil, apperror.ValidationFailed("email", "a valid email address is required")
	}
	if name == "" {
		return nil, apperror.ValidationFailed("name", "name is required")
	}
	if len(name) > MaxNameLength {
		return nil, apperror.ValidationFailed("name",
			fmt.Sprintf("name must be %d characters or less", MaxNameLength))
	}
	if len(password) < MinPasswordLength {
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, apperror.ValidationFailed("password", err.Error())
	}

	user := &model.User{
		Email:        email,
		Name:         name,
		Provider:     "local",
		PasswordHash: hash,
		Credits:      model.SignupCreditGrant,
	}
	// The UNIQUE(email) constraint is the authority on duplicates — no
	// SELECT-first check that a concurrent signup could race past.
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	s.logger.Info("user signed up",
		slog.String("userID", user.ID),
		slog.String("email", user.Email),
	)

	return s.issueToken(user)
}

// Signin authenticates a local account by email and password.
//
// A wrong email and a wrong password produce the IDENTICAL error, so a
// caller can't probe which addresses have accounts.
func (s *AuthService) Signin(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, apperror.ValidationFailed("email", "email and password are required")
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, apperror.Unauthorized("invalid email or password")
	}

	if user.PasswordHash == "" {
		// OAuth-only account: it has no password to check against.
		return nil, apperror.Unauthorized("invalid email or password")
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		return nil, apperror.Unauthorized("invalid email or password")
	}

	s.logger.Info("user signed in", slog.String("userID", user.ID))

	return s.issueToken(user)
}

// LoginWithGitHub completes the OAuth flow after the handler has exchanged
// the authorization code for a GitHub profile.
//
// First login → create the account with the signup credit grant.
// Returning user → refresh the mutable profile fields (name, image); the
// credit balance is untouched.
func (s *AuthService) LoginWithGitHub(ctx context.Context, ghUser *auth.GitHubUser) (*AuthResult, error) {
	if ghUser == nil {
		return nil, fmt.Errorf("service/auth: GitHub user must not be nil")
	}

	user, err := s.users.GetUserByGitHubID(ctx, ghUser.ID)
	switch {
	case err == nil:
		// Returning user — sync profile, keep everything else.
		user.Name = ghUser.DisplayName()
		user.ImageURL = ghUser.AvatarURL
		user.Provider = "github"
		if err := s.users.Upsert(ctx, user); err != nil {
			return nil, fmt.Errorf("service/auth: syncing GitHub user %d: %w", ghUser.ID, err)
		}

	case isNotFound(err):
		// First login — create the account.
		email := ghUser.Email
		if email == "" {
			// GitHub hides the email when the user opts out; fall back to
			// the noreply convention so the UNIQUE(email) column stays
			// meaningful.
			email = fmt.Sprintf("%s@users.noreply.github.com", ghUser.Login)
		}
		user = &model.User{
			Email:    strings.ToLower(email),
			Name:     ghUser.DisplayName(),
			ImageURL: ghUser.AvatarURL,
			Provider: "github",
			GitHubID: ghUser.ID,
			Credits:  model.SignupCreditGrant,
		}
		if err := s.users.CreateUser(ctx, user); err != nil {
			return nil, fmt.Errorf("service/auth: creating GitHub user %d: %w", ghUser.ID, err)
		}

	default:
		return nil, fmt.Errorf("service/auth: looking up GitHub user %d: %w", ghUser.ID, err)
	}

	s.logger.Info("user authenticated via GitHub",
		slog.String("userID", user.ID),
		slog.Int64("githubID", ghUser.ID),
	)

	return s.issueToken(user)
}

// Me returns the full user record for the given internal ID.
// Used by the /auth/me handler after the middleware validates the JWT.
func (s *AuthService) Me(ctx context.Context, userID string) (*model.User, error) {
	if userID == "" {
		return nil, apperror.Unauthorized("valid authentication required")
	}
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", userID, err)
	}
	return user, nil
}

// isNotFound reports whether err means "no such row" as opposed to a real
// store failure. The distinction matters wherever absence is a normal
// outcome (cache miss, first OAuth login).
func isNotFound(err error) bool {
	return errors.Is(err, apperror.ErrNotFound)
}

// issueToken mints a JWT whose claims carry the profile attributes the
// auth gate needs for its directory sync.
func (s *AuthService) issueToken(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(auth.Identity{
		UserID:   user.ID,
		Email:    user.Email,
		Name:     user.Name,
		ImageURL: user.ImageURL,
		Provider: user.Provider,
	})
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}
