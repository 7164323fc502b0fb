package stripewebhook

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type claimStore struct {
	data map[string]string
	ttls map[string]time.Duration
}

func newClaimStore() *claimStore {
	return &claimStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (s *claimStore) Get(_ context.Context, key string) (string, error) {
	return s.data[key], nil
}

func (s *claimStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := s.data[key]; ok {
		return false, nil
	}
	s.data[key] = fmt.Sprint(value)
	s.ttls[key] = ttl
	return true, nil
}

func (s *claimStore) IdempotencyKey(scope, id string) string {
	return "bs:idempotency:" + scope + ":" + id
}

func (s *claimStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(s.data, k)
	}
	return nil
}

func TestEventClaimsFirstDeliveryWins(t *testing.T) {
	store := newClaimStore()
	claims, err := NewEventClaims(store, 0, "stripe")
	require.NoError(t, err)
	claims.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	first, err := claims.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, first)
	assert.Equal(t, "2026-03-01T12:00:00Z", store.data["bs:idempotency:stripe:evt_1"])
	assert.Equal(t, defaultClaimTTL, store.ttls["bs:idempotency:stripe:evt_1"])

	again, err := claims.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, again)

	require.NoError(t, claims.Release(ctx, "evt_1"))
	retried, err := claims.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, retried)
}

func TestEventClaimsRejectsBlankInput(t *testing.T) {
	_, err := NewEventClaims(nil, time.Hour, "stripe")
	assert.Error(t, err)
	_, err = NewEventClaims(newClaimStore(), time.Hour, " ")
	assert.Error(t, err)

	claims, err := NewEventClaims(newClaimStore(), time.Hour, "stripe")
	require.NoError(t, err)
	_, err = claims.Claim(context.Background(), "  ")
	assert.Error(t, err)
	assert.Error(t, claims.Release(context.Background(), ""))
}
