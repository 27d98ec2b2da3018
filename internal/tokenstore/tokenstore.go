// Package tokenstore persists the bearer token and its absolute expiry
// across the two storage tiers: ephemeral for plain logins, persistent when
// the user asked to be remembered.
package tokenstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"surely-client/internal/storage"

	"go.uber.org/zap"
)

const tokenKey = "surely:auth_token"

// Tier identifies which storage tier holds the live token.
type Tier int

const (
	TierNone Tier = iota
	TierEphemeral
	TierPersistent
)

func (t Tier) String() string {
	switch t {
	case TierEphemeral:
		return "ephemeral"
	case TierPersistent:
		return "persistent"
	default:
		return "none"
	}
}

type entry struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"` // unix milliseconds
}

// Store reads and writes the token entry. Reads never fail: a storage error
// is logged and reported as an absent token so callers always get a clean
// authenticated/anonymous answer.
type Store struct {
	ephemeral  storage.Store
	persistent storage.Store
	logger     *zap.Logger
	now        func() time.Time
}

func New(ephemeral, persistent storage.Store, logger *zap.Logger) *Store {
	return &Store{
		ephemeral:  ephemeral,
		persistent: persistent,
		logger:     logger,
		now:        time.Now,
	}
}

// Save writes the token with an absolute expiry of now+ttl into the chosen
// tier. It deliberately does not touch the other tier; callers that need a
// clean slate clear first.
func (s *Store) Save(ctx context.Context, token string, ttl time.Duration, persistent bool) error {
	e := entry{
		Token:     token,
		ExpiresAt: s.now().Add(ttl).UnixMilli(),
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode token entry: %w", err)
	}

	tier := s.ephemeral
	if persistent {
		tier = s.persistent
	}
	if err := tier.Set(ctx, tokenKey, string(data)); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	return nil
}

// Read returns the live token, checking the ephemeral tier first. A found
// but expired entry is treated as absent and both tiers are purged.
func (s *Store) Read(ctx context.Context) (string, bool) {
	token, _, ok := s.read(ctx)
	return token, ok
}

// Tier reports which tier holds the live token.
func (s *Store) Tier(ctx context.Context) Tier {
	_, tier, ok := s.read(ctx)
	if !ok {
		return TierNone
	}
	return tier
}

// NearExpiry reports whether the live token expires within threshold.
func (s *Store) NearExpiry(ctx context.Context, threshold time.Duration) bool {
	e, _, ok := s.readEntry(ctx)
	if !ok {
		return false
	}
	remaining := e.ExpiresAt - s.now().UnixMilli()
	return remaining < threshold.Milliseconds()
}

// Clear deletes the token from both tiers unconditionally. Idempotent.
func (s *Store) Clear(ctx context.Context) {
	if err := s.ephemeral.Delete(ctx, tokenKey); err != nil {
		s.logger.Warn("failed to clear ephemeral token", zap.Error(err))
	}
	if err := s.persistent.Delete(ctx, tokenKey); err != nil {
		s.logger.Warn("failed to clear persistent token", zap.Error(err))
	}
}

// Authenticated reports whether a live token exists.
func (s *Store) Authenticated(ctx context.Context) bool {
	_, ok := s.Read(ctx)
	return ok
}

func (s *Store) read(ctx context.Context) (string, Tier, bool) {
	e, tier, ok := s.readEntry(ctx)
	if !ok {
		return "", TierNone, false
	}
	return e.Token, tier, true
}

func (s *Store) readEntry(ctx context.Context) (entry, Tier, bool) {
	tiers := []struct {
		store storage.Store
		tier  Tier
	}{
		{s.ephemeral, TierEphemeral},
		{s.persistent, TierPersistent},
	}

	for _, t := range tiers {
		raw, found, err := t.store.Get(ctx, tokenKey)
		if err != nil {
			s.logger.Warn("token read failed, treating as absent",
				zap.String("tier", t.tier.String()), zap.Error(err))
			continue
		}
		if !found {
			continue
		}

		var e entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			s.logger.Warn("corrupt token entry, purging",
				zap.String("tier", t.tier.String()), zap.Error(err))
			s.Clear(ctx)
			return entry{}, TierNone, false
		}

		// A found-but-expired entry ends the lookup: purge both tiers and
		// report absent rather than falling through to the other tier.
		if s.now().UnixMilli() >= e.ExpiresAt {
			s.Clear(ctx)
			return entry{}, TierNone, false
		}
		return e, t.tier, true
	}
	return entry{}, TierNone, false
}
