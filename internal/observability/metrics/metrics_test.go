package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveDispatchCountsOutcomes(t *testing.T) {
	m := New()
	m.ObserveDispatch("payout", "success", 10*time.Millisecond)
	m.ObserveDispatch("payout", "failure", 10*time.Millisecond)
	m.ObserveDispatch("payout", "failure", 10*time.Millisecond)

	if got := testutil.ToFloat64(m.dispatchTotal.WithLabelValues("payout", "failure")); got != 2 {
		t.Fatalf("expected 2 failures, got %v", got)
	}
	if got := testutil.ToFloat64(m.dispatchTotal.WithLabelValues("payout", "success")); got != 1 {
		t.Fatalf("expected 1 success, got %v", got)
	}
}

func TestSessionStateIsOneHot(t *testing.T) {
	m := New()
	m.SetSessionState("bound")

	if testutil.ToFloat64(m.sessionState.WithLabelValues("bound")) != 1 {
		t.Fatal("bound must be set")
	}
	if testutil.ToFloat64(m.sessionState.WithLabelValues("disconnected")) != 0 {
		t.Fatal("previous state must be cleared")
	}
}

func TestHandlerExposesHTTPMetrics(t *testing.T) {
	m := New()
	m.ObserveHTTPRequest("/api/v1/claims", "POST", 502, 20*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	for _, want := range []string{
		`smartclaim_http_requests_total{code="502",handler="/api/v1/claims",method="POST"} 1`,
		`smartclaim_http_request_errors_total{handler="/api/v1/claims",method="POST"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("missing %q in output:\n%s", want, body)
		}
	}
}

func TestNilRegistryIsSafe(t *testing.T) {
	var m *Registry
	m.ObserveDispatch("payout", "success", time.Second)
	m.SetSessionState("bound")
	m.ObserveHTTPRequest("/", "GET", 200, time.Second)
	if m.Handler() == nil {
		t.Fatal("nil registry still serves a handler")
	}
}
