package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"cbd-eventstream/internal/runstatus"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()
	m.FrameReceived(true, "/heart_beat")
	m.FrameReceived(false, "/config_change")
	m.FrameReceived(false, "/config_change")
	m.TemplateError()
	m.DecodeError()
	m.TokenIssued("initial")
	m.TokenIssued("auth_expired")
	m.Reconnect("transport")

	if got := testutil.ToFloat64(m.frames); got != 3 {
		t.Fatalf("frames = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.heartbeats); got != 1 {
		t.Fatalf("heartbeats = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.events.WithLabelValues("/config_change")); got != 2 {
		t.Fatalf("events[/config_change] = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.templateErrors); got != 1 {
		t.Fatalf("template errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.decodeErrors); got != 1 {
		t.Fatalf("decode errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.tokensIssued.WithLabelValues("auth_expired")); got != 1 {
		t.Fatalf("tokens[auth_expired] = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.reconnects.WithLabelValues("transport")); got != 1 {
		t.Fatalf("reconnects[transport] = %v, want 1", got)
	}
}

func TestMetrics_StateGauge(t *testing.T) {
	m := New()
	if samples := testutil.CollectAndCount(m.state); samples != len(runstatus.States) {
		t.Fatalf("state samples = %d, want %d", samples, len(runstatus.States))
	}
	m.StateChanged(runstatus.Idle, runstatus.Authenticating)
	m.StateChanged(runstatus.Authenticating, runstatus.Connecting)

	if got := testutil.ToFloat64(m.state.WithLabelValues("connecting")); got != 1 {
		t.Fatalf("state[connecting] = %v, want 1", got)
	}
	for _, s := range []string{"idle", "authenticating", "streaming"} {
		if got := testutil.ToFloat64(m.state.WithLabelValues(s)); got != 0 {
			t.Fatalf("state[%s] = %v, want 0", s, got)
		}
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.FrameReceived(true, "")

	server := httptest.NewServer(m.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "cbd_stream_heartbeats_total 1") {
		t.Fatalf("metrics body missing heartbeat counter:\n%s", body)
	}

	health, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error = %v", err)
	}
	health.Body.Close()
	if health.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d", health.StatusCode)
	}
}
