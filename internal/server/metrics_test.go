package server

import (
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/straja-ai/entityshield/internal/anonymize"
	"github.com/straja-ai/entityshield/internal/audit"
)

func TestMetricsEndpoint(t *testing.T) {
	cfg := baseTestConfig()
	reg := prometheus.NewRegistry()
	em := audit.NewEmitter(audit.EmitterConfig{QueueSize: 4}, []audit.Sink{&recordingSink{}})
	defer em.Close(t.Context())
	s := New(cfg, anonymize.NewFromConfig(cfg, &fakeClassifier{preds: marioPreds()}, nil), WithAudit(em), WithMetrics(reg))

	if rr := doJSON(t, s, http.MethodPost, "/v1/anonymize", `{"text":"Mario vive a Roma"}`); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if rr := doJSON(t, s, http.MethodPost, "/v1/anonymize", `{"text":""}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}

	if got := testutil.ToFloat64(s.metrics.RequestsTotal.WithLabelValues("anonymize", "200")); got != 1 {
		t.Fatalf("expected one 200 request, got %v", got)
	}
	if got := testutil.ToFloat64(s.metrics.RequestsTotal.WithLabelValues("anonymize", "400")); got != 1 {
		t.Fatalf("expected one 400 request, got %v", got)
	}
	if got := testutil.ToFloat64(s.metrics.EntitiesTotal.WithLabelValues("LUOGO")); got != 1 {
		t.Fatalf("expected one LUOGO entity, got %v", got)
	}

	rr := doJSON(t, s, http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{"entityshield_http_requests_total", "entityshield_audit_events_enqueued_total 2"} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
	if strings.Contains(body, "Mario") {
		t.Fatalf("metrics must not carry entity text")
	}
}

func TestMetricsDisabledByDefault(t *testing.T) {
	s := newTestServer(&fakeClassifier{})
	if rr := doJSON(t, s, http.MethodGet, "/metrics", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without metrics, got %d", rr.Code)
	}
}
