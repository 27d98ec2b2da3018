// Package session owns the authenticated principal: login, registration,
// logout, silent token refresh and the cached user projection. Consumers
// subscribe to auth-state changes instead of polling.
package session

import (
	"context"
	"net/http"
	"sync"
	"time"

	"surely-client/internal/domain/user"
	"surely-client/internal/httpclient"
	"surely-client/internal/nav"
	xerrors "surely-client/internal/pkg/errors"
	"surely-client/internal/routes"
	"surely-client/internal/tokenstore"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// State is the session lifecycle state.
type State int

const (
	StateAnonymous State = iota
	StateAuthenticating
	StateAuthenticated
)

const defaultTokenTTL = time.Hour

type Service struct {
	api       *httpclient.Client
	tokens    *tokenstore.Store
	navigator nav.Navigator
	logger    *zap.Logger

	mu        sync.Mutex
	state     State
	user      *user.User
	listeners []func(authenticated bool)
}

func New(api *httpclient.Client, tokens *tokenstore.Store, navigator nav.Navigator, logger *zap.Logger) *Service {
	return &Service{
		api:       api,
		tokens:    tokens,
		navigator: navigator,
		logger:    logger,
		state:     StateAnonymous,
	}
}

// OnAuthChange registers a listener for authenticated-became-true/false
// transitions. Listeners are called synchronously, at least once per
// transition, in registration order.
func (s *Service) OnAuthChange(fn func(authenticated bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Service) emit(authenticated bool) {
	s.mu.Lock()
	listeners := make([]func(bool), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(authenticated)
	}
}

// Login authenticates with email/password. Validation failures are local
// and never reach the network.
func (s *Service) Login(ctx context.Context, email, password string, remember bool) (*user.User, error) {
	if email == "" || password == "" {
		return nil, xerrors.Validation("email and password are required")
	}
	if !user.ValidEmail(email) {
		return nil, xerrors.Validation("please enter a valid email address", "email")
	}

	s.setState(StateAuthenticating)

	resp, err := s.api.Do(ctx, http.MethodPost, "/user/login", user.LoginRequest{
		Email:    email,
		Password: password,
	}, false)
	if err != nil {
		s.setState(StateAnonymous)
		return nil, err
	}

	var ar user.AuthResponse
	if err := resp.DecodeJSON(&ar); err != nil {
		s.setState(StateAnonymous)
		return nil, xerrors.New(xerrors.KindRequest, "unexpected login response")
	}
	return s.completeAuth(ctx, &ar, remember, "login failed, please try again")
}

// Register creates an account and, on success, behaves exactly like a
// successful login. The new session always starts in the ephemeral tier.
func (s *Service) Register(ctx context.Context, req user.RegisterRequest) (*user.User, error) {
	if !user.ValidEmail(req.Email) {
		return nil, xerrors.Validation("please enter a valid email address", "email")
	}
	if report := user.CheckPassword(req.Password); !report.Valid() {
		return nil, xerrors.Validation("password does not meet the requirements", report.Failed()...)
	}

	s.setState(StateAuthenticating)

	resp, err := s.api.Do(ctx, http.MethodPost, "/user/register", req, false)
	if err != nil {
		s.setState(StateAnonymous)
		return nil, err
	}

	var ar user.AuthResponse
	if err := resp.DecodeJSON(&ar); err != nil {
		s.setState(StateAnonymous)
		return nil, xerrors.New(xerrors.KindRequest, "unexpected registration response")
	}
	return s.completeAuth(ctx, &ar, false, "registration failed, please try again")
}

func (s *Service) completeAuth(ctx context.Context, ar *user.AuthResponse, remember bool, fallback string) (*user.User, error) {
	if ar.Failed() || ar.Token == "" {
		s.setState(StateAnonymous)
		msg := ar.ServerMessage()
		if msg == "" {
			msg = fallback
		}
		return nil, xerrors.New(xerrors.KindRequest, msg)
	}

	// Clear both tiers before storing so a remember-me toggle can never
	// leave a stale token in the unused tier.
	s.tokens.Clear(ctx)
	if err := s.tokens.Save(ctx, ar.Token, tokenTTL(ar), remember); err != nil {
		s.setState(StateAnonymous)
		s.logger.Error("failed to persist token", zap.Error(err))
		return nil, xerrors.New(xerrors.KindRequest, "could not save your session")
	}

	s.mu.Lock()
	s.state = StateAuthenticated
	s.user = ar.User
	s.mu.Unlock()

	s.logger.Info("authenticated", zap.Bool("remember", remember))
	s.emit(true)
	return ar.User, nil
}

// Logout is best-effort on the wire and unconditional locally: whatever the
// logout endpoint does, the session ends and navigation lands on login.
func (s *Service) Logout(ctx context.Context) {
	if _, err := s.api.Do(ctx, http.MethodPost, "/user/logout", nil, true); err != nil {
		s.logger.Warn("logout call failed, continuing", zap.Error(err))
	}

	s.tokens.Clear(ctx)
	s.mu.Lock()
	s.state = StateAnonymous
	s.user = nil
	s.mu.Unlock()

	s.emit(false)
	s.navigator.Replace(routes.Login)
}

// RefreshToken exchanges the current token for a fresh one, preserving the
// persistence tier. Returns false instead of an error so the route guard
// can decide to force logout without a double error path.
func (s *Service) RefreshToken(ctx context.Context) bool {
	tier := s.tokens.Tier(ctx)
	if tier == tokenstore.TierNone {
		return false
	}

	resp, err := s.api.Do(ctx, http.MethodPost, "/user/refresh-token", nil, true)
	if err != nil {
		s.logger.Warn("token refresh failed", zap.Error(err))
		return false
	}

	var ar user.AuthResponse
	if err := resp.DecodeJSON(&ar); err != nil || ar.Token == "" {
		return false
	}

	if err := s.tokens.Save(ctx, ar.Token, tokenTTL(&ar), tier == tokenstore.TierPersistent); err != nil {
		s.logger.Error("failed to persist refreshed token", zap.Error(err))
		return false
	}
	return true
}

// LoadCurrentUser fetches and caches the profile. A failing fetch is how the
// client learns the server no longer accepts the token, so the token is
// cleared; no redirect happens here.
func (s *Service) LoadCurrentUser(ctx context.Context) (*user.User, bool) {
	if !s.tokens.Authenticated(ctx) {
		return nil, false
	}

	resp, err := s.api.Do(ctx, http.MethodGet, "/user/me", nil, true)
	if err != nil {
		s.logger.Warn("profile fetch failed, clearing token", zap.Error(err))
		s.tokens.Clear(ctx)
		s.mu.Lock()
		s.state = StateAnonymous
		s.user = nil
		s.mu.Unlock()
		return nil, false
	}

	u := decodeUser(resp)
	if u == nil {
		return nil, false
	}

	s.mu.Lock()
	s.state = StateAuthenticated
	s.user = u
	s.mu.Unlock()
	return u, true
}

// UpdateProfile updates the profile fields and refreshes the cached user.
func (s *Service) UpdateProfile(ctx context.Context, req user.UpdateProfileRequest) (*user.User, error) {
	resp, err := s.api.Do(ctx, http.MethodPut, "/user/update", req, true)
	if err != nil {
		return nil, err
	}

	if u := decodeUser(resp); u != nil {
		s.mu.Lock()
		s.user = u
		s.mu.Unlock()
		return u, nil
	}

	// Some deployments return a bare acknowledgement; refetch.
	u, ok := s.LoadCurrentUser(ctx)
	if !ok {
		return nil, xerrors.New(xerrors.KindRequest, "profile updated but could not be reloaded")
	}
	return u, nil
}

// CurrentUser returns the cached user projection, if any.
func (s *Service) CurrentUser() *user.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// State returns the current lifecycle state.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsAuthenticated requires both a live token and a cached user. This is
// deliberately stricter than the token store's own check, which the route
// guard uses for its synchronous gate.
func (s *Service) IsAuthenticated(ctx context.Context) bool {
	s.mu.Lock()
	cached := s.user != nil
	s.mu.Unlock()
	return cached && s.tokens.Authenticated(ctx)
}

func (s *Service) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func decodeUser(resp *httpclient.Response) *user.User {
	var pr user.ProfileResponse
	if err := resp.DecodeJSON(&pr); err == nil && pr.User != nil {
		return pr.User
	}
	var u user.User
	if err := resp.DecodeJSON(&u); err == nil && u.Email != "" {
		return &u
	}
	return nil
}

// tokenTTL resolves the stored token's lifetime: the response's expires_in,
// else the token's own exp claim (parsed unverified, expiry only), else an
// hour.
func tokenTTL(ar *user.AuthResponse) time.Duration {
	if ar.ExpiresIn > 0 {
		return time.Duration(ar.ExpiresIn) * time.Second
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(ar.Token, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			if until := time.Until(exp.Time); until > 0 {
				return until
			}
		}
	}
	return defaultTokenTTL
}
