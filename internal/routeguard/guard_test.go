package routeguard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"surely-client/internal/httpclient"
	"surely-client/internal/nav"
	"surely-client/internal/routes"
	"surely-client/internal/service/session"
	"surely-client/internal/storage"
	"surely-client/internal/tokenstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type guardFixture struct {
	guard     *Guard
	sessions  *session.Service
	tokens    *tokenstore.Store
	navigator *nav.Memory
	state     *storage.Memory
}

func newGuardFixture(t *testing.T, handler http.Handler) *guardFixture {
	t.Helper()
	if handler == nil {
		handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	tokens := tokenstore.New(storage.NewMemory(), storage.NewMemory(), zap.NewNop())
	navigator := nav.NewMemory(routes.Home)
	api := httpclient.New(srv.URL, tokens, navigator, zap.NewNop())
	api.SetRetryPolicy(0, time.Millisecond)
	sessions := session.New(api, tokens, navigator, zap.NewNop())
	state := storage.NewMemory()

	return &guardFixture{
		guard:     New(sessions, tokens, navigator, state, zap.NewNop()),
		sessions:  sessions,
		tokens:    tokens,
		navigator: navigator,
		state:     state,
	}
}

func TestProtectedRouteRedirectsAnonymous(t *testing.T) {
	f := newGuardFixture(t, nil)
	ctx := context.Background()
	f.navigator.SetLocation(routes.Profile, nil)

	assert.Equal(t, DecisionRedirectLogin, f.guard.CheckRouteAccess(ctx))
	assert.Equal(t, []string{routes.Login}, f.navigator.Replaced())

	stored, found, err := f.state.Get(ctx, intendedPathKey)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, routes.Profile, stored)
}

func TestCheckRouteAccessIsIdempotent(t *testing.T) {
	f := newGuardFixture(t, nil)
	ctx := context.Background()
	f.navigator.SetLocation(routes.Subscription, nil)

	assert.Equal(t, DecisionRedirectLogin, f.guard.CheckRouteAccess(ctx))
	// Now on the login page; a second check allows and must not navigate again.
	assert.Equal(t, DecisionAllow, f.guard.CheckRouteAccess(ctx))
	assert.Len(t, f.navigator.Replaced(), 1)
}

func TestAuthPagesBounceAuthenticated(t *testing.T) {
	f := newGuardFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.tokens.Save(ctx, "tok", time.Hour, false))

	for _, page := range []string{routes.Login, routes.Register} {
		f.navigator.SetLocation(page, nil)
		assert.Equal(t, DecisionRedirectProfile, f.guard.CheckRouteAccess(ctx), page)
		assert.Equal(t, routes.Profile, f.navigator.Path())
	}
}

func TestPublicRoutesAlwaysAllowed(t *testing.T) {
	f := newGuardFixture(t, nil)
	ctx := context.Background()

	for _, page := range []string{routes.Home, routes.Codes, "/about.html"} {
		f.navigator.SetLocation(page, nil)
		assert.Equal(t, DecisionAllow, f.guard.CheckRouteAccess(ctx), page)
	}
	assert.Empty(t, f.navigator.Replaced())
}

func TestRedirectPathConsumesStoredDestination(t *testing.T) {
	f := newGuardFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.state.Set(ctx, intendedPathKey, routes.Subscription))
	assert.Equal(t, routes.Subscription, f.guard.RedirectPath(ctx))

	// Consumed: the second read falls back to the default.
	assert.Equal(t, routes.Profile, f.guard.RedirectPath(ctx))
}

func TestRedirectPathRejectsUnknownDestination(t *testing.T) {
	f := newGuardFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.state.Set(ctx, intendedPathKey, "https://evil.example/phish"))
	assert.Equal(t, routes.Profile, f.guard.RedirectPath(ctx))

	// Still consumed even when rejected.
	_, found, err := f.state.Get(ctx, intendedPathKey)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRefreshCheckSkipsFreshToken(t *testing.T) {
	called := false
	f := newGuardFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	ctx := context.Background()
	require.NoError(t, f.tokens.Save(ctx, "tok", time.Hour, false))

	f.guard.RunRefreshCheck(ctx)
	assert.False(t, called)
}

func TestRefreshCheckRefreshesNearExpiry(t *testing.T) {
	f := newGuardFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"success": true, "token": "tok-2", "expires_in": 3600})
	}))
	ctx := context.Background()
	require.NoError(t, f.tokens.Save(ctx, "tok-1", 2*time.Minute, true))

	f.guard.RunRefreshCheck(ctx)

	token, ok := f.tokens.Read(ctx)
	require.True(t, ok)
	assert.Equal(t, "tok-2", token)
	assert.Equal(t, tokenstore.TierPersistent, f.tokens.Tier(ctx))
	assert.False(t, f.tokens.NearExpiry(ctx, 5*time.Minute))
}

func TestRefreshRefusedForcesLogout(t *testing.T) {
	f := newGuardFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	ctx := context.Background()
	require.NoError(t, f.tokens.Save(ctx, "tok", 2*time.Minute, false))

	f.guard.RunRefreshCheck(ctx)

	assert.False(t, f.tokens.Authenticated(ctx))
	assert.Contains(t, f.navigator.Replaced(), routes.Login)
}

func TestStartStopIdempotent(t *testing.T) {
	f := newGuardFixture(t, nil)
	f.guard.SetTimings(time.Hour, 5*time.Minute)

	f.guard.Start()
	f.guard.Start()
	f.guard.Stop()
	f.guard.Stop()
}

func TestAuthChangeDrivesRefreshLoop(t *testing.T) {
	f := newGuardFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"success": true, "token": "tok", "expires_in": 3600})
	}))
	f.guard.SetTimings(time.Hour, 5*time.Minute)
	ctx := context.Background()

	_, err := f.sessions.Login(ctx, "jane@example.com", "Secret123", false)
	require.NoError(t, err)
	f.guard.mu.Lock()
	running := f.guard.stop != nil
	f.guard.mu.Unlock()
	assert.True(t, running)

	f.sessions.Logout(ctx)
	f.guard.mu.Lock()
	running = f.guard.stop != nil
	f.guard.mu.Unlock()
	assert.False(t, running)
}
