package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetricsRegistersAll(t *testing.T) {
	m := NewMetrics("test")
	if m.registry == nil {
		t.Fatal("expected non-nil registry")
	}

	for i, c := range m.collectors() {
		if c == nil {
			t.Errorf("collector %d is nil", i)
		}
	}
}

func TestNopMetrics(t *testing.T) {
	m := NopMetrics()

	// NopMetrics should not panic when used.
	m.ConsensusHeight.Set(10)
	m.VotesReceived.Inc()
	m.RoundDuration.Observe(1.5)
	m.WeightRebalances.WithLabelValues("timeout").Inc()
	m.MempoolSize.Set(100)

	mfs, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(mfs) != 0 {
		t.Fatalf("expected nop registry to be empty, got %d families", len(mfs))
	}
}

func TestWeightRebalancesByTrigger(t *testing.T) {
	m := NewMetrics("test")
	m.WeightRebalances.WithLabelValues("timeout").Inc()
	m.WeightRebalances.WithLabelValues("timeout").Inc()
	m.WeightRebalances.WithLabelValues("work_proof_found").Inc()

	if got := testutil.ToFloat64(m.WeightRebalances.WithLabelValues("timeout")); got != 2 {
		t.Fatalf("expected 2 timeout rebalances, got %v", got)
	}
	if got := testutil.ToFloat64(m.WeightRebalances.WithLabelValues("work_proof_found")); got != 1 {
		t.Fatalf("expected 1 work proof rebalance, got %v", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	m := NewMetrics("test")

	m.ConsensusHeight.Set(42)
	m.StakeWeight.Set(0.8)

	handler := promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{})
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	body := w.Body.String()
	if !strings.Contains(body, "test_consensus_height 42") {
		t.Fatalf("expected height gauge in output, got:\n%s", body)
	}
	if !strings.Contains(body, "test_consensus_stake_weight 0.8") {
		t.Fatal("expected stake weight gauge in output")
	}
}

func TestNewLoggerModes(t *testing.T) {
	for _, mode := range []string{"development", "dev", "production", "prod"} {
		logger, err := NewLogger(mode, "")
		if err != nil {
			t.Fatalf("NewLogger(%s): %v", mode, err)
		}
		if logger == nil {
			t.Fatalf("expected non-nil logger for %q", mode)
		}
	}
}

func TestNewLoggerLevel(t *testing.T) {
	logger, err := NewLogger("production", "warn")
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if logger.Core().Enabled(-1) {
		t.Fatal("debug should be disabled at warn level")
	}

	if _, err := NewLogger("production", "loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestNewLoggerInvalid(t *testing.T) {
	_, err := NewLogger("invalid", "")
	if err == nil {
		t.Fatal("expected error for invalid mode")
	}
}

func TestNewNopLogger(t *testing.T) {
	logger := NewNopLogger()
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
	// Should not panic.
	logger.Info("test message")
}
