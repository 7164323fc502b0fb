package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bucketshare/bucketshare-backend/pkg/redis"
)

const defaultClaimTTL = 72 * time.Hour

// EventClaims records which Stripe event ids have been taken for processing.
// Claims default to 72h, Stripe's redelivery window.
type EventClaims struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
	now   func() time.Time
}

func NewEventClaims(store redis.IdempotencyStore, ttl time.Duration, scope string) (*EventClaims, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if strings.TrimSpace(scope) == "" {
		return nil, errors.New("claim scope is required")
	}
	if ttl <= 0 {
		ttl = defaultClaimTTL
	}
	return &EventClaims{store: store, ttl: ttl, scope: scope, now: time.Now}, nil
}

// Claim reports whether this delivery is the first to see eventID. A false
// result means another delivery already processed it or is processing it.
func (c *EventClaims) Claim(ctx context.Context, eventID string) (bool, error) {
	key, err := c.key(eventID)
	if err != nil {
		return false, err
	}
	claimed, err := c.store.SetNX(ctx, key, c.now().UTC().Format(time.RFC3339), c.ttl)
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", eventID, err)
	}
	return claimed, nil
}

// Release drops a claim so Stripe's next retry is processed.
func (c *EventClaims) Release(ctx context.Context, eventID string) error {
	key, err := c.key(eventID)
	if err != nil {
		return err
	}
	if err := c.store.Del(ctx, key); err != nil {
		return fmt.Errorf("release %s: %w", eventID, err)
	}
	return nil
}

func (c *EventClaims) key(eventID string) (string, error) {
	if eventID = strings.TrimSpace(eventID); eventID == "" {
		return "", errors.New("event id is required")
	}
	return c.store.IdempotencyKey(c.scope, eventID), nil
}
