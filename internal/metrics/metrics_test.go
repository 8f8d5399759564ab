package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestChatRequestCounter(t *testing.T) {
	c := NewCollector(nil)

	c.ChatRequest(OutcomeOK)
	c.ChatRequest(OutcomeOK)
	c.ChatRequest(OutcomeUpstreamError)

	if got := testutil.ToFloat64(c.chatRequests.WithLabelValues(OutcomeOK)); got != 2 {
		t.Errorf("ok = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.chatRequests.WithLabelValues(OutcomeUpstreamError)); got != 1 {
		t.Errorf("upstream_error = %v, want 1", got)
	}
}

func TestProfileLoadCounter(t *testing.T) {
	c := NewCollector(nil)

	c.ProfileLoad(nil)
	c.ProfileLoad(errors.New("missing"))
	c.ProfileLoad(errors.New("missing"))

	if got := testutil.ToFloat64(c.profileLoads.WithLabelValues("success")); got != 1 {
		t.Errorf("success = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.profileLoads.WithLabelValues("failure")); got != 2 {
		t.Errorf("failure = %v, want 2", got)
	}
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	c.ChatRequest(OutcomeOK)
	c.ProfileLoad(nil)
	c.ObserveUpstream(time.Second)
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := NewCollector(nil)
	c.ChatRequest(OutcomeMethodNotAllowed)
	c.ObserveUpstream(300 * time.Millisecond)

	rr := httptest.NewRecorder()
	c.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{
		`resumechat_chat_requests_total{outcome="method_not_allowed"} 1`,
		"resumechat_upstream_duration_seconds_count 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
