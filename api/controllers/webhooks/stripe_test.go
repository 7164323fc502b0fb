package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"

	stripewebhook "github.com/bucketshare/bucketshare-backend/internal/webhooks/stripe"
	pkgerrors "github.com/bucketshare/bucketshare-backend/pkg/errors"
)

const testSecret = "whsec_bucketshare"

type webhookHarness struct {
	svc     *recordingWebhookService
	store   *claimStore
	handler http.HandlerFunc
}

func newHarness(t *testing.T) *webhookHarness {
	t.Helper()
	store := &claimStore{data: map[string]string{}}
	claims, err := stripewebhook.NewEventClaims(store, time.Hour, "stripe_event")
	require.NoError(t, err)
	svc := &recordingWebhookService{}
	return &webhookHarness{
		svc:     svc,
		store:   store,
		handler: StripeWebhook(svc, staticSecret(testSecret), claims, nil),
	}
}

func (h *webhookHarness) deliver(payload []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func TestStripeWebhookRedeliveryIsAcknowledgedOnce(t *testing.T) {
	h := newHarness(t)
	payload, eventID := paymentSucceededEvent(t, "40.00")
	sig := sign(payload, testSecret, time.Now())

	first := h.deliver(payload, sig)
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	second := h.deliver(payload, sig)
	require.Equal(t, http.StatusOK, second.Code)

	assert.Equal(t, []string{eventID}, h.svc.seen)
	assert.Contains(t, second.Body.String(), `"duplicate":true`)
}

func TestStripeWebhookRejectsBadSignatures(t *testing.T) {
	payload, _ := paymentSucceededEvent(t, "10.00")
	cases := map[string]struct {
		signature string
		status    int
	}{
		"missing":      {"", http.StatusBadRequest},
		"forged":       {"t=1,v1=deadbeef", http.StatusUnauthorized},
		"wrong secret": {sign(payload, "whsec_other", time.Now()), http.StatusUnauthorized},
		"stale":        {sign(payload, testSecret, time.Now().Add(-time.Hour)), http.StatusUnauthorized},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			rec := h.deliver(payload, tc.signature)
			assert.Equal(t, tc.status, rec.Code)
			assert.Empty(t, h.svc.seen)
			assert.Empty(t, h.store.data, "no claim should be taken")
		})
	}
}

func TestStripeWebhookFailureReleasesClaimForRetry(t *testing.T) {
	h := newHarness(t)
	h.svc.err = pkgerrors.New(pkgerrors.CodeDependency, "database unavailable")
	payload, eventID := paymentSucceededEvent(t, "25.00")
	sig := sign(payload, testSecret, time.Now())

	assert.Equal(t, http.StatusServiceUnavailable, h.deliver(payload, sig).Code)
	assert.Empty(t, h.store.data)

	h.svc.err = nil
	assert.Equal(t, http.StatusOK, h.deliver(payload, sig).Code)
	assert.Equal(t, []string{eventID, eventID}, h.svc.seen)
}

func TestStripeWebhookClaimStoreDown(t *testing.T) {
	h := newHarness(t)
	h.store.err = errors.New("redis: connection refused")
	payload, _ := paymentSucceededEvent(t, "5.00")

	rec := h.deliver(payload, sign(payload, testSecret, time.Now()))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Empty(t, h.svc.seen)
}

func TestStripeWebhookUnconfigured(t *testing.T) {
	rec := httptest.NewRecorder()
	StripeWebhook(nil, nil, nil, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{}")))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func paymentSucceededEvent(t *testing.T, amount string) ([]byte, string) {
	t.Helper()
	intent, err := json.Marshal(map[string]any{
		"id":     "pi_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		"object": "payment_intent",
		"status": "succeeded",
		"metadata": map[string]string{
			"bucket_id": uuid.NewString(),
			"amount":    amount,
		},
	})
	require.NoError(t, err)
	event := stripe.Event{
		ID:         "evt_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		Type:       stripe.EventTypePaymentIntentSucceeded,
		Object:     "event",
		APIVersion: stripe.APIVersion,
		Data:       &stripe.EventData{Raw: intent},
	}
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	return payload, event.ID
}

func sign(payload []byte, secret string, at time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", at.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

type recordingWebhookService struct {
	seen []string
	err  error
}

func (s *recordingWebhookService) HandleEvent(_ context.Context, event *stripe.Event) error {
	s.seen = append(s.seen, event.ID)
	return s.err
}

type staticSecret string

func (s staticSecret) SigningSecret() string { return string(s) }

type claimStore struct {
	mu   sync.Mutex
	data map[string]string
	err  error
}

func (s *claimStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key], s.err
}

func (s *claimStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	if _, ok := s.data[key]; ok {
		return false, nil
	}
	s.data[key] = fmt.Sprint(value)
	return true, nil
}

func (s *claimStore) IdempotencyKey(scope, id string) string {
	return "test:" + scope + ":" + id
}

func (s *claimStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.data, k)
	}
	return s.err
}
