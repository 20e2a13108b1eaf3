package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersRegistered(t *testing.T) {
	SignalsTotal.WithLabelValues("CALL").Inc()
	SignalsTotal.WithLabelValues("CALL").Inc()
	PositionClosesTotal.WithLabelValues("target_hit").Inc()
	TicksDroppedTotal.Inc()
	OpenPositions.Set(1)

	if got := testutil.ToFloat64(SignalsTotal.WithLabelValues("CALL")); got != 2 {
		t.Errorf("signals CALL = %v, want 2", got)
	}
	if got := testutil.ToFloat64(PositionClosesTotal.WithLabelValues("target_hit")); got != 1 {
		t.Errorf("closes target_hit = %v, want 1", got)
	}
	if got := testutil.ToFloat64(TicksDroppedTotal); got != 1 {
		t.Errorf("dropped ticks = %v, want 1", got)
	}
	if got := testutil.ToFloat64(OpenPositions); got != 1 {
		t.Errorf("open positions = %v, want 1", got)
	}
	OpenPositions.Set(0)
}

func TestHandlerServesRegistry(t *testing.T) {
	CyclesTotal.Inc()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "scalper_cycles_total") {
		t.Error("exposition is missing scalper_cycles_total")
	}
}
