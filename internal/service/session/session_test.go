package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"surely-client/internal/domain/user"
	"surely-client/internal/httpclient"
	"surely-client/internal/nav"
	xerrors "surely-client/internal/pkg/errors"
	"surely-client/internal/routes"
	"surely-client/internal/storage"
	"surely-client/internal/tokenstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	svc       *Service
	tokens    *tokenstore.Store
	navigator *nav.Memory
	requests  *atomic.Int32
}

func newFixture(t *testing.T, handler http.Handler) *fixture {
	t.Helper()
	var requests atomic.Int32
	counted := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		handler.ServeHTTP(w, r)
	})
	srv := httptest.NewServer(counted)
	t.Cleanup(srv.Close)

	tokens := tokenstore.New(storage.NewMemory(), storage.NewMemory(), zap.NewNop())
	navigator := nav.NewMemory(routes.Home)
	api := httpclient.New(srv.URL, tokens, navigator, zap.NewNop())
	api.SetRetryPolicy(3, time.Millisecond)

	return &fixture{
		svc:       New(api, tokens, navigator, zap.NewNop()),
		tokens:    tokens,
		navigator: navigator,
		requests:  &requests,
	}
}

func authOK(token string, u *user.User) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"success":    true,
			"token":      token,
			"expires_in": 3600,
			"user":       u,
		})
	})
}

func TestLoginSuccess(t *testing.T) {
	f := newFixture(t, authOK("tok-1", &user.User{ID: 7, Email: "jane@example.com", FirstName: "Jane"}))
	ctx := context.Background()

	var events []bool
	f.svc.OnAuthChange(func(authed bool) { events = append(events, authed) })

	u, err := f.svc.Login(ctx, "jane@example.com", "Secret123", false)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "jane@example.com", u.Email)

	assert.Equal(t, StateAuthenticated, f.svc.State())
	assert.True(t, f.svc.IsAuthenticated(ctx))
	assert.Equal(t, []bool{true}, events)

	token, ok := f.tokens.Read(ctx)
	require.True(t, ok)
	assert.Equal(t, "tok-1", token)
	assert.Equal(t, tokenstore.TierEphemeral, f.tokens.Tier(ctx))
}

func TestLoginRememberUsesPersistentTier(t *testing.T) {
	f := newFixture(t, authOK("tok-1", &user.User{Email: "jane@example.com"}))
	ctx := context.Background()

	_, err := f.svc.Login(ctx, "jane@example.com", "Secret123", true)
	require.NoError(t, err)
	assert.Equal(t, tokenstore.TierPersistent, f.tokens.Tier(ctx))
}

func TestLoginClearsStaleOtherTier(t *testing.T) {
	f := newFixture(t, authOK("fresh", &user.User{Email: "jane@example.com"}))
	ctx := context.Background()

	// A previous remember-me session left a token in the persistent tier.
	require.NoError(t, f.tokens.Save(ctx, "stale", time.Hour, true))

	_, err := f.svc.Login(ctx, "jane@example.com", "Secret123", false)
	require.NoError(t, err)

	// Only the fresh ephemeral token remains; logging out of it must not
	// resurrect the stale persistent one.
	f.tokens.Clear(ctx)
	assert.False(t, f.tokens.Authenticated(ctx))
}

func TestLoginValidationIsLocal(t *testing.T) {
	f := newFixture(t, authOK("tok", nil))
	ctx := context.Background()

	tests := []struct {
		email    string
		password string
	}{
		{"", "Secret123"},
		{"jane@example.com", ""},
		{"not-an-email", "Secret123"},
	}
	for _, tt := range tests {
		_, err := f.svc.Login(ctx, tt.email, tt.password, false)
		require.Error(t, err)
		assert.True(t, errors.Is(err, xerrors.ErrValidation))
	}
	// No request ever left the process.
	assert.Equal(t, int32(0), f.requests.Load())
	assert.Equal(t, StateAnonymous, f.svc.State())
}

func TestLoginFailureCarriesServerMessage(t *testing.T) {
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "invalid credentials"})
	}))

	_, err := f.svc.Login(context.Background(), "jane@example.com", "wrongpass1A", false)
	require.Error(t, err)
	assert.Equal(t, "invalid credentials", err.Error())
	assert.Equal(t, StateAnonymous, f.svc.State())
	assert.False(t, f.tokens.Authenticated(context.Background()))
}

func TestLoginMissingTokenIsFailure(t *testing.T) {
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"success": true})
	}))

	_, err := f.svc.Login(context.Background(), "jane@example.com", "Secret123", false)
	require.Error(t, err)
	assert.Equal(t, "login failed, please try again", err.Error())
}

func TestRegisterPasswordRulesReported(t *testing.T) {
	f := newFixture(t, authOK("tok", nil))

	_, err := f.svc.Register(context.Background(), user.RegisterRequest{
		Email:    "jane@example.com",
		Password: "abc",
	})
	require.Error(t, err)

	var cerr *xerrors.Error
	require.True(t, errors.As(err, &cerr))
	assert.Contains(t, cerr.Fields, user.RuleMinLength)
	assert.Contains(t, cerr.Fields, user.RuleUppercase)
	assert.Contains(t, cerr.Fields, user.RuleNumber)
	assert.Equal(t, int32(0), f.requests.Load())
}

func TestRegisterAutoLogin(t *testing.T) {
	f := newFixture(t, authOK("tok-new", &user.User{Email: "new@example.com"}))
	ctx := context.Background()

	u, err := f.svc.Register(ctx, user.RegisterRequest{
		Email:     "new@example.com",
		Password:  "Abcdefg1",
		FirstName: "New",
	})
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", u.Email)
	assert.True(t, f.svc.IsAuthenticated(ctx))
	assert.Equal(t, tokenstore.TierEphemeral, f.tokens.Tier(ctx))
}

func TestLogoutResilientToNetworkFailure(t *testing.T) {
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/user/logout" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		authOK("tok", &user.User{Email: "jane@example.com"}).ServeHTTP(w, r)
	}))
	ctx := context.Background()

	_, err := f.svc.Login(ctx, "jane@example.com", "Secret123", false)
	require.NoError(t, err)

	var events []bool
	f.svc.OnAuthChange(func(authed bool) { events = append(events, authed) })

	f.svc.Logout(ctx)

	assert.False(t, f.svc.IsAuthenticated(ctx))
	assert.False(t, f.tokens.Authenticated(ctx))
	assert.Equal(t, StateAnonymous, f.svc.State())
	assert.Equal(t, []bool{false}, events)
	assert.Equal(t, []string{routes.Login}, f.navigator.Replaced())
}

func TestAuthChangeListenersCalledInOrder(t *testing.T) {
	f := newFixture(t, authOK("tok", &user.User{Email: "jane@example.com"}))
	ctx := context.Background()

	var order []string
	f.svc.OnAuthChange(func(authed bool) { order = append(order, "first") })
	f.svc.OnAuthChange(func(authed bool) { order = append(order, "second") })

	_, err := f.svc.Login(ctx, "jane@example.com", "Secret123", false)
	require.NoError(t, err)
	f.svc.Logout(ctx)

	// Every registered listener fires once per transition, in registration
	// order, for both directions.
	assert.Equal(t, []string{"first", "second", "first", "second"}, order)
}

func TestUpdateProfileDecodesReturnedUser(t *testing.T) {
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"user": map[string]any{"id": 1, "email": "jane@example.com", "first_name": "Janet"},
		})
	}))

	u, err := f.svc.UpdateProfile(context.Background(), user.UpdateProfileRequest{FirstName: "Janet"})
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "Janet", u.FirstName)
	assert.Equal(t, u, f.svc.CurrentUser())
}

func TestUpdateProfileBareAckWithFailedRefetch(t *testing.T) {
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/user/update" {
			json.NewEncoder(w).Encode(map[string]any{"success": true})
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	ctx := context.Background()
	require.NoError(t, f.tokens.Save(ctx, "tok", time.Hour, false))

	// The update is acknowledged without a user payload and the follow-up
	// profile fetch is rejected: the caller must get an error, never a nil
	// user with a nil error.
	u, err := f.svc.UpdateProfile(ctx, user.UpdateProfileRequest{FirstName: "Janet"})
	require.Error(t, err)
	assert.Nil(t, u)
	assert.True(t, errors.Is(err, xerrors.ErrRequest))
}

func TestRefreshPreservesPersistenceTier(t *testing.T) {
	f := newFixture(t, authOK("tok-refreshed", nil))
	ctx := context.Background()

	require.NoError(t, f.tokens.Save(ctx, "tok-old", time.Hour, true))

	require.True(t, f.svc.RefreshToken(ctx))

	token, ok := f.tokens.Read(ctx)
	require.True(t, ok)
	assert.Equal(t, "tok-refreshed", token)
	assert.Equal(t, tokenstore.TierPersistent, f.tokens.Tier(ctx))
}

func TestRefreshWithoutTokenReturnsFalse(t *testing.T) {
	f := newFixture(t, authOK("tok", nil))
	assert.False(t, f.svc.RefreshToken(context.Background()))
	assert.Equal(t, int32(0), f.requests.Load())
}

func TestRefreshFailureReturnsFalse(t *testing.T) {
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	ctx := context.Background()
	require.NoError(t, f.tokens.Save(ctx, "tok", time.Hour, false))

	assert.False(t, f.svc.RefreshToken(ctx))
}

func TestLoadCurrentUserClearsTokenOnFailure(t *testing.T) {
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	ctx := context.Background()
	require.NoError(t, f.tokens.Save(ctx, "rejected", time.Hour, false))

	u, ok := f.svc.LoadCurrentUser(ctx)
	assert.False(t, ok)
	assert.Nil(t, u)
	assert.False(t, f.tokens.Authenticated(ctx))
	// The profile fetch validates the token; it does not redirect by itself.
	assert.Empty(t, f.navigator.Replaced())
}

func TestLoadCurrentUserNestedAndBare(t *testing.T) {
	bodies := []string{
		`{"user":{"id":1,"email":"jane@example.com","first_name":"Jane"}}`,
		`{"id":1,"email":"jane@example.com","first_name":"Jane"}`,
	}
	for _, body := range bodies {
		f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(body))
		}))
		ctx := context.Background()
		require.NoError(t, f.tokens.Save(ctx, "tok", time.Hour, false))

		u, ok := f.svc.LoadCurrentUser(ctx)
		require.True(t, ok, body)
		assert.Equal(t, "Jane", u.FirstName)
		assert.Equal(t, u, f.svc.CurrentUser())
	}
}

func TestIsAuthenticatedRequiresCachedUser(t *testing.T) {
	f := newFixture(t, authOK("tok", nil))
	ctx := context.Background()

	// A stored token alone is not enough for the stricter definition.
	require.NoError(t, f.tokens.Save(ctx, "tok", time.Hour, false))
	assert.True(t, f.tokens.Authenticated(ctx))
	assert.False(t, f.svc.IsAuthenticated(ctx))
}

func TestTokenTTLFromJWTExpiry(t *testing.T) {
	// Header/payload of an unsigned JWT whose exp is far in the future.
	exp := time.Now().Add(2 * time.Hour).Unix()
	token := unsignedJWT(t, exp)

	ttl := tokenTTL(&user.AuthResponse{Token: token})
	assert.Greater(t, ttl, time.Hour)
	assert.LessOrEqual(t, ttl, 2*time.Hour)
}

func TestTokenTTLDefaults(t *testing.T) {
	assert.Equal(t, defaultTokenTTL, tokenTTL(&user.AuthResponse{Token: "opaque-token"}))
	assert.Equal(t, 90*time.Second, tokenTTL(&user.AuthResponse{Token: "x", ExpiresIn: 90}))
}

func unsignedJWT(t *testing.T, exp int64) string {
	t.Helper()
	encode := func(v any) string {
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		return base64.RawURLEncoding.EncodeToString(raw)
	}
	header := encode(map[string]any{"alg": "none", "typ": "JWT"})
	payload := encode(map[string]any{"exp": exp})
	return header + "." + payload + "."
}
