package repository

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/journey-seat-booking/internal/engine"
)

// QuoteClaim binds an issued quote to the departure it was priced on.  It
// lives until ExpiresAt and is consumed by the booking it authorises.
type QuoteClaim struct {
	Token       string       `json:"token"`
	DepartureID string       `json:"departure_id"`
	RouteID     string       `json:"route_id"`
	Phase       engine.Phase `json:"phase"`
	Quote       engine.Quote `json:"quote"`
	IssuedAt    time.Time    `json:"issued_at"`
	ExpiresAt   time.Time    `json:"expires_at"`
}

// QuoteTokenStore keeps quote claims for a short validation window.  Get
// returns ErrNotFound for unknown and expired tokens alike.
type QuoteTokenStore interface {
	Put(ctx context.Context, claim *QuoteClaim, ttl time.Duration) error
	Get(ctx context.Context, token string) (*QuoteClaim, error)
	Delete(ctx context.Context, token string) error
}

// randomToken generates a random hexadecimal string of length n*2 using
// crypto/rand.
func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func issue(claim *QuoteClaim, ttl time.Duration) error {
	tok, err := randomToken(24)
	if err != nil {
		return fmt.Errorf("generate quote token: %w", err)
	}
	claim.Token = tok
	claim.Quote.Token = tok
	if claim.IssuedAt.IsZero() {
		claim.IssuedAt = time.Now().UTC()
	}
	claim.ExpiresAt = claim.IssuedAt.Add(ttl)
	return nil
}

// RedisQuoteTokens stores claims as JSON strings with a TTL.
type RedisQuoteTokens struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisQuoteTokens returns a store writing keys under prefix.
func NewRedisQuoteTokens(rdb *redis.Client, prefix string) *RedisQuoteTokens {
	if prefix == "" {
		prefix = "quote"
	}
	return &RedisQuoteTokens{rdb: rdb, prefix: prefix}
}

func (s *RedisQuoteTokens) key(token string) string { return s.prefix + ":" + token }

// Put issues a token for claim and stores it for ttl.
func (s *RedisQuoteTokens) Put(ctx context.Context, claim *QuoteClaim, ttl time.Duration) error {
	if err := issue(claim, ttl); err != nil {
		return err
	}
	body, err := json.Marshal(claim)
	if err != nil {
		return err
	}
	return s.rdb.SetEx(ctx, s.key(claim.Token), body, ttl).Err()
}

// Get loads the claim for token.
func (s *RedisQuoteTokens) Get(ctx context.Context, token string) (*QuoteClaim, error) {
	body, err := s.rdb.Get(ctx, s.key(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("quote token: %w", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var claim QuoteClaim
	if err := json.Unmarshal(body, &claim); err != nil {
		return nil, fmt.Errorf("decode quote claim: %w", err)
	}
	return &claim, nil
}

// Delete removes token.  Deleting a missing token is not an error.
func (s *RedisQuoteTokens) Delete(ctx context.Context, token string) error {
	return s.rdb.Del(ctx, s.key(token)).Err()
}

// MemoryQuoteTokens is the in-process store used when Redis is not
// reachable and in tests.
type MemoryQuoteTokens struct {
	mu     sync.Mutex
	claims map[string]QuoteClaim
	now    func() time.Time
}

// NewMemoryQuoteTokens returns an empty store.  now may be nil.
func NewMemoryQuoteTokens(now func() time.Time) *MemoryQuoteTokens {
	if now == nil {
		now = time.Now
	}
	return &MemoryQuoteTokens{claims: map[string]QuoteClaim{}, now: now}
}

// Put issues a token for claim and keeps it for ttl.
func (s *MemoryQuoteTokens) Put(_ context.Context, claim *QuoteClaim, ttl time.Duration) error {
	if claim.IssuedAt.IsZero() {
		claim.IssuedAt = s.now().UTC()
	}
	if err := issue(claim, ttl); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for tok, c := range s.claims {
		if !now.Before(c.ExpiresAt) {
			delete(s.claims, tok)
		}
	}
	s.claims[claim.Token] = *claim
	return nil
}

// Get loads the claim for token.
func (s *MemoryQuoteTokens) Get(_ context.Context, token string) (*QuoteClaim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.claims[token]
	if !ok || !s.now().Before(c.ExpiresAt) {
		delete(s.claims, token)
		return nil, fmt.Errorf("quote token: %w", ErrNotFound)
	}
	return &c, nil
}

// Delete removes token.
func (s *MemoryQuoteTokens) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.claims, token)
	return nil
}
