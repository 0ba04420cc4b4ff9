package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveRequest(t *testing.T) {
	m := New(nil)

	m.ObserveRequest("svc1", 200, 10*time.Millisecond)
	m.ObserveRequest("svc1", 200, 20*time.Millisecond)
	m.ObserveRequest("svc1", 502, time.Second)
	m.ObserveRequest("", 404, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("svc1", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("svc1", "502")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues(UnknownTarget, "404")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.duration))
}

func TestObserveTokenFetch(t *testing.T) {
	m := New(nil)

	m.ObserveTokenFetch("svc1", nil)
	m.ObserveTokenFetch("svc1", errors.New("denied"))
	m.ObserveTokenFetch("svc1", errors.New("denied"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.tokenFetch.WithLabelValues("svc1", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.tokenFetch.WithLabelValues("svc1", "error")))
}

func TestHandler(t *testing.T) {
	m := New(func() int { return 3 })
	m.ObserveRequest("svc1", 200, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `portico_proxy_requests_total{code="200",target="svc1"} 1`)
	assert.Contains(t, string(body), "portico_proxy_request_duration_seconds_bucket")
	assert.Contains(t, string(body), "portico_targets 3")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestNew_Independent(t *testing.T) {
	a := New(nil)
	b := New(nil)
	a.ObserveRequest("svc1", 200, time.Millisecond)

	assert.Equal(t, 0.0, testutil.ToFloat64(b.requests.WithLabelValues("svc1", "200")))
}
