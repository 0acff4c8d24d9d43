package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.PlaySettled("heads", true, 1)
	m.PlayFailed("timeout")
	m.PlayRejected("in_flight")
	m.InFlight(1)
	m.AccountOp("connect", nil)
	if m.Registry() != nil {
		t.Error("nil metrics should have no registry")
	}
}

func TestCounters(t *testing.T) {
	m := New()
	m.PlaySettled("heads", true, 0.4)
	m.PlaySettled("heads", false, 0.6)
	m.PlayFailed("timeout")
	m.AccountOp("withdraw", errors.New("boom"))
	m.InFlight(1)
	m.InFlight(-1)

	if got := testutil.ToFloat64(m.Plays.WithLabelValues("heads", "win")); got != 1 {
		t.Errorf("wins: %v", got)
	}
	if got := testutil.ToFloat64(m.Plays.WithLabelValues("heads", "loss")); got != 1 {
		t.Errorf("losses: %v", got)
	}
	if got := testutil.ToFloat64(m.PlayFailures.WithLabelValues("timeout")); got != 1 {
		t.Errorf("failures: %v", got)
	}
	if got := testutil.ToFloat64(m.AccountOps.WithLabelValues("withdraw", "error")); got != 1 {
		t.Errorf("account ops: %v", got)
	}
	if got := testutil.ToFloat64(m.PlaysInFlight); got != 0 {
		t.Errorf("in flight: %v", got)
	}
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New()
	m.PlayRejected("no_account")

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `flip_play_rejections_total{reason="no_account"} 1`) {
		t.Errorf("missing rejection counter in:\n%s", w.Body.String())
	}
}
