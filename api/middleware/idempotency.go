package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bucketshare/bucketshare-backend/api/responses"
	pkgerrors "github.com/bucketshare/bucketshare-backend/pkg/errors"
	"github.com/bucketshare/bucketshare-backend/pkg/logger"
	pkgredis "github.com/bucketshare/bucketshare-backend/pkg/redis"
)

const (
	IdempotencyHeader = "Idempotency-Key"

	maxIdempotencyKeyLength = 255
	inFlightTTL             = time.Minute
)

// ReplayPolicy says how long a response is replayed for and whether the route
// refuses requests without a key.
type ReplayPolicy struct {
	TTL      time.Duration
	Required bool
}

var (
	// ReplayMoney covers allocations and collections.
	ReplayMoney    = ReplayPolicy{TTL: 7 * 24 * time.Hour, Required: true}
	ReplayOptional = ReplayPolicy{TTL: 24 * time.Hour}
)

type replayState string

const (
	replayInFlight replayState = "in_flight"
	replayDone     replayState = "done"
)

type replayEntry struct {
	State       replayState `json:"state"`
	RequestHash string      `json:"request_hash"`
	Status      int         `json:"status,omitempty"`
	ContentType string      `json:"content_type,omitempty"`
	Body        []byte      `json:"body,omitempty"`
}

// Idempotency reserves the caller's key before the handler runs, then stores
// the response so a retry with the same key and body gets it back verbatim.
// Server errors drop the reservation and leave the key reusable.
func Idempotency(store pkgredis.IdempotencyStore, policy ReplayPolicy, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if store == nil {
				next.ServeHTTP(w, r)
				return
			}

			clientKey := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			switch {
			case clientKey == "" && policy.Required:
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			case clientKey == "":
				next.ServeHTTP(w, r)
				return
			case len(clientKey) > maxIdempotencyKeyLength:
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header too long").
					WithDetails(map[string]any{"max_length": maxIdempotencyKeyLength}))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			sum := sha256.Sum256(body)
			hash := hex.EncodeToString(sum[:])
			key := store.IdempotencyKey(replayScope(r), clientKey)

			reserved, err := reserve(ctx, store, key, hash)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key"))
				return
			}
			if !reserved {
				replayExisting(ctx, store, key, hash, w, logg)
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			// the handler may have been cancelled with the client; the record still has to land
			storeCtx := context.WithoutCancel(ctx)
			if err := store.Del(storeCtx, key); err != nil {
				logg.Error(ctx, "idempotency.release_failed", err)
				return
			}
			if capture.statusCode() >= http.StatusInternalServerError {
				return
			}
			done := replayEntry{
				State:       replayDone,
				RequestHash: hash,
				Status:      capture.statusCode(),
				ContentType: capture.Header().Get("Content-Type"),
				Body:        capture.body.Bytes(),
			}
			if err := write(storeCtx, store, key, done, policy.TTL); err != nil {
				logg.Error(ctx, "idempotency.persist_failed", err)
			}
		})
	}
}

func reserve(ctx context.Context, store pkgredis.IdempotencyStore, key, hash string) (bool, error) {
	payload, err := json.Marshal(replayEntry{State: replayInFlight, RequestHash: hash})
	if err != nil {
		return false, err
	}
	return store.SetNX(ctx, key, string(payload), inFlightTTL)
}

func write(ctx context.Context, store pkgredis.IdempotencyStore, key string, entry replayEntry, ttl time.Duration) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	_, err = store.SetNX(ctx, key, string(payload), ttl)
	return err
}

func replayExisting(ctx context.Context, store pkgredis.IdempotencyStore, key, hash string, w http.ResponseWriter, logg *logger.Logger) {
	raw, err := store.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		// released between our SetNX and Get; the client can simply retry
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this Idempotency-Key is still in progress"))
		return
	}
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load idempotency record"))
		return
	}

	var entry replayEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode idempotency record"))
		return
	}
	if entry.RequestHash != hash {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
		return
	}
	if entry.State != replayDone {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this Idempotency-Key is still in progress"))
		return
	}

	logg.Info(ctx, "idempotency.replayed")
	if entry.ContentType != "" {
		w.Header().Set("Content-Type", entry.ContentType)
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(entry.Status)
	_, _ = w.Write(entry.Body)
}

// replayScope keeps keys from colliding across callers and resources.
func replayScope(r *http.Request) string {
	return UserIDFromContext(r.Context()) + "|" + r.Method + "|" + r.URL.Path
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
