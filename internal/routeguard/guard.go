// Package routeguard enforces the protected/public route policy on page
// load and keeps the token fresh in the background while authenticated.
package routeguard

import (
	"context"
	"sync"
	"time"

	"surely-client/internal/nav"
	"surely-client/internal/routes"
	"surely-client/internal/service/session"
	"surely-client/internal/storage"
	"surely-client/internal/tokenstore"

	"go.uber.org/zap"
)

const intendedPathKey = "surely:intended_path"

const (
	defaultCheckInterval   = time.Minute
	defaultExpiryThreshold = 5 * time.Minute
)

// Decision is the outcome of a route access check.
type Decision int

const (
	DecisionAllow Decision = iota
	DecisionRedirectLogin
	DecisionRedirectProfile
)

type Guard struct {
	sessions  *session.Service
	tokens    *tokenstore.Store
	navigator nav.Navigator
	state     storage.Store
	logger    *zap.Logger

	interval  time.Duration
	threshold time.Duration

	mu   sync.Mutex
	stop chan struct{}
}

// New builds the guard and subscribes it to auth-state changes: the refresh
// loop starts when authentication becomes true and stops when it becomes
// false.
func New(sessions *session.Service, tokens *tokenstore.Store, navigator nav.Navigator, state storage.Store, logger *zap.Logger) *Guard {
	g := &Guard{
		sessions:  sessions,
		tokens:    tokens,
		navigator: navigator,
		state:     state,
		logger:    logger,
		interval:  defaultCheckInterval,
		threshold: defaultExpiryThreshold,
	}
	sessions.OnAuthChange(func(authenticated bool) {
		if authenticated {
			g.Start()
		} else {
			g.Stop()
		}
	})
	return g
}

// SetTimings overrides the background check interval and the near-expiry
// threshold.
func (g *Guard) SetTimings(interval, threshold time.Duration) {
	g.interval = interval
	g.threshold = threshold
}

// CheckRouteAccess classifies the current path and enforces the redirect
// policy. It runs synchronously at page load, before any profile fetch
// resolves, so it relies on the token store's cheap check only. Calling it
// again with unchanged auth state never produces a second redirect.
func (g *Guard) CheckRouteAccess(ctx context.Context) Decision {
	path := g.navigator.Path()
	authenticated := g.tokens.Authenticated(ctx)

	switch {
	case routes.IsProtected(path) && !authenticated:
		if err := g.state.Set(ctx, intendedPathKey, routes.Normalize(path)); err != nil {
			g.logger.Warn("failed to store intended path", zap.Error(err))
		}
		g.replaceIfElsewhere(routes.Login)
		return DecisionRedirectLogin

	case routes.IsAuthPage(path) && authenticated:
		g.replaceIfElsewhere(routes.Profile)
		return DecisionRedirectProfile

	default:
		return DecisionAllow
	}
}

// RedirectPath consumes the stored intended path, constrained to the known
// post-login destinations. Defaults to the profile page.
func (g *Guard) RedirectPath(ctx context.Context) string {
	path, found, err := g.state.Get(ctx, intendedPathKey)
	if err != nil {
		g.logger.Warn("failed to read intended path", zap.Error(err))
		return routes.Profile
	}
	if found {
		if err := g.state.Delete(ctx, intendedPathKey); err != nil {
			g.logger.Warn("failed to consume intended path", zap.Error(err))
		}
		if routes.IsPostLoginDestination(path) {
			return routes.Normalize(path)
		}
	}
	return routes.Profile
}

// Start launches the background refresh loop. Safe to call when already
// running.
func (g *Guard) Start() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stop != nil {
		return
	}
	stop := make(chan struct{})
	g.stop = stop

	go func() {
		ticker := time.NewTicker(g.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				g.RunRefreshCheck(context.Background())
			}
		}
	}()
	g.logger.Debug("background refresh started")
}

// Stop halts the background refresh loop. Idempotent.
func (g *Guard) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stop == nil {
		return
	}
	close(g.stop)
	g.stop = nil
	g.logger.Debug("background refresh stopped")
}

// RunRefreshCheck performs one near-expiry check: refresh when the token is
// close to expiring, force logout when the refresh is refused.
func (g *Guard) RunRefreshCheck(ctx context.Context) {
	if !g.tokens.Authenticated(ctx) {
		return
	}
	if !g.tokens.NearExpiry(ctx, g.threshold) {
		return
	}
	if g.sessions.RefreshToken(ctx) {
		g.logger.Info("token refreshed")
		return
	}
	g.logger.Warn("token refresh refused, forcing logout")
	g.sessions.Logout(ctx)
}

func (g *Guard) replaceIfElsewhere(target string) {
	if routes.Normalize(g.navigator.Path()) == target {
		return
	}
	g.navigator.Replace(target)
}
