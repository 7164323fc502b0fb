package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bucketshare/bucketshare-backend/pkg/logger"
	"github.com/bucketshare/bucketshare-backend/pkg/metrics"
)

func TestLoggingRecordsRoutePattern(t *testing.T) {
	var out bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "api-test", Output: &out})
	reg := prometheus.NewRegistry()

	r := chi.NewRouter()
	r.Use(Logging(logg, metrics.NewHTTPMetrics(reg)))
	r.Get("/api/v1/buckets/{bucketId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/buckets/1f4a", nil))

	var line map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &line))
	assert.Equal(t, "request.complete", line["message"])
	assert.Equal(t, "/api/v1/buckets/{bucketId}", line["route"])
	assert.Equal(t, "/api/v1/buckets/1f4a", line["path"])
	assert.EqualValues(t, http.StatusTeapot, line["status"])
	assert.EqualValues(t, len("short and stout"), line["bytes_written"])

	mfs, err := reg.Gather()
	require.NoError(t, err)
	var counted float64
	for _, mf := range mfs {
		if mf.GetName() == "http_requests_total" {
			for _, m := range mf.GetMetric() {
				counted += m.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, float64(1), counted)
}

func TestLoggingServerErrorsAtWarn(t *testing.T) {
	var out bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "api-test", Output: &out})
	h := Logging(logg, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/buckets", nil))

	var line map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &line))
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "", line["route"])
}
