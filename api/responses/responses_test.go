package responses

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/bucketshare/bucketshare-backend/pkg/errors"
	"github.com/bucketshare/bucketshare-backend/pkg/logger"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorEnvelope {
	t.Helper()
	var body ErrorEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	return body
}

func TestWriteSuccessStatusWrapsData(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteSuccessStatus(rec, http.StatusCreated, map[string]any{"current_amount": decimal.RequireFromString("12.50")})

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("unexpected content type %q", rec.Header().Get("Content-Type"))
	}
	if got := rec.Body.String(); got != "{\"data\":{\"current_amount\":\"12.5\"}}\n" {
		t.Fatalf("unexpected body %s", got)
	}
}

func TestWriteErrorKeepsDomainMessageAndDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeLimitExceeded, "amount exceeds the 50.00 transaction limit").
		WithDetails(map[string]any{"limit": "50.00"})
	WriteError(context.Background(), nil, rec, err)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", rec.Code)
	}
	body := decodeError(t, rec)
	if body.Error.Code != string(pkgerrors.CodeLimitExceeded) {
		t.Fatalf("unexpected code %s", body.Error.Code)
	}
	if body.Error.Message != "amount exceeds the 50.00 transaction limit" {
		t.Fatalf("unexpected message %q", body.Error.Message)
	}
	if body.Error.Details == nil {
		t.Fatal("expected details")
	}
}

func TestWriteErrorHidesInternalCause(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "test", Output: &buf})
	rec := httptest.NewRecorder()

	WriteError(context.Background(), logg, rec, errors.New("pq: connection refused"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rec.Code)
	}
	body := decodeError(t, rec)
	if body.Error.Code != string(pkgerrors.CodeInternal) || body.Error.Message != "internal server error" {
		t.Fatalf("unexpected error body %+v", body.Error)
	}
	if body.Error.Details != nil {
		t.Fatal("details must be omitted for internal errors")
	}
	if !bytes.Contains(buf.Bytes(), []byte("connection refused")) {
		t.Fatalf("expected cause in logs, got %s", buf.String())
	}
}
