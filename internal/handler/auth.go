package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/rs/xid"
	"github.com/sakif/recap/internal/apperror"
	"github.com/sakif/recap/internal/auth"
	"github.com/sakif/recap/internal/service"
)

// AuthHandler manages signup, signin, the GitHub OAuth flow, and the
// current-user endpoint.
//
// HANDLER RESPONSIBILITIES:
//   - HandleSignup / HandleSignin → local email+password accounts
//   - HandleGitHubLogin / HandleGitHubCallback → OAuth sign-in
//   - HandleMe → the authenticated caller's profile (incl. credit balance)
//
// Handlers parse HTTP and write envelopes; every rule lives in the
// AuthService.
type AuthHandler struct {
	svc    *service.AuthService
	github *auth.GitHubProvider // nil when OAuth credentials aren't configured
	logger *slog.Logger
}

// NewAuthHandler creates an AuthHandler. github may be nil; the server then
// simply doesn't register the OAuth routes.
func NewAuthHandler(svc *service.AuthService, github *auth.GitHubProvider, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		svc:    svc,
		github: github,
		logger: logger,
	}
}

// authResponse is the JSON shape for successful signup/signin/OAuth.
type authResponse struct {
	Token string `json:"token"`
	User  any    `json:"user"`
}

// HandleSignup registers a new account.
//
// HTTP: POST /auth/signup
// BODY: {"email": "...", "name": "...", "password": "..."}
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}

	result, err := h.svc.Signup(r.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeData(w, http.StatusCreated, authResponse{Token: result.Token, User: result.User})
}

// HandleSignin authenticates an existing account.
//
// HTTP: POST /auth/signin
// BODY: {"email": "...", "password": "..."}
func (h *AuthHandler) HandleSignin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}

	result, err := h.svc.Signin(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeData(w, http.StatusOK, authResponse{Token: result.Token, User: result.User})
}

// HandleMe returns the currently authenticated user's profile, including
// the live credit balance.
//
// HTTP: GET /auth/me
// Auth: Required (the auth gate sets the identity in context)
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		// Should never happen behind RequireAuth, but be safe.
		writeError(w, apperror.Unauthorized("valid authentication required"))
		return
	}

	user, err := h.svc.Me(r.Context(), identity.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeData(w, http.StatusOK, user)
}

// HandleGitHubLogin redirects the browser to GitHub's authorization page.
//
// HTTP: GET /auth/github/login
//
// CSRF PROTECTION VIA STATE:
// We generate a random state string and store it in a short-lived HttpOnly
// cookie. When GitHub calls back, HandleGitHubCallback verifies the
// returned state matches, proving the flow was initiated by this server.
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     "oauth_state",
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10 minutes — long enough to approve, short enough to limit risk
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes the OAuth login flow.
//
// HTTP: GET /auth/github/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter (CSRF check)
//  2. Exchange the code for a GitHub user profile
//  3. Create-or-update the account, issue our JWT
//  4. Respond with the same envelope as signin — the token travels in the
//     body, not a cookie, because every API call authenticates with the
//     Authorization: Bearer header
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	// --- Step 1: Validate CSRF state ---
	stateCookie, err := r.Cookie("oauth_state")
	if err != nil || stateCookie.Value == "" {
		h.logger.Warn("auth callback: missing state cookie")
		writeError(w, apperror.ValidationFailed("state", "invalid OAuth state"))
		return
	}
	if r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.Warn("auth callback: state mismatch")
		writeError(w, apperror.ValidationFailed("state", "invalid OAuth state"))
		return
	}

	// Clear the state cookie — it's single-use
	http.SetCookie(w, &http.Cookie{
		Name:   "oauth_state",
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	// GitHub reports "user clicked deny" as an error query parameter.
	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization",
			slog.String("error", errParam),
		)
		writeError(w, apperror.Unauthorized("GitHub authorization was denied"))
		return
	}

	// --- Step 2: Exchange code for GitHub user profile ---
	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, apperror.ValidationFailed("code", "missing OAuth code"))
		return
	}

	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: GitHub exchange failed", slog.String("error", err.Error()))
		writeError(w, apperror.Upstream("authentication with GitHub failed"))
		return
	}

	// --- Step 3: upsert account + issue JWT ---
	result, err := h.svc.LoginWithGitHub(r.Context(), ghUser)
	if err != nil {
		writeError(w, err)
		return
	}

	writeData(w, http.StatusOK, authResponse{Token: result.Token, User: result.User})
}
