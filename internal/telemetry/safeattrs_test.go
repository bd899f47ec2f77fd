package telemetry

import (
	"context"
	"testing"
	"time"
)

func TestSafeAttributesFiltersUserText(t *testing.T) {
	kvs := map[string]interface{}{
		"text":           "Mario Rossi",
		"entity_word":    "Rossi",
		"highlighted":    "<span>",
		"anonymized":     "[NOME]",
		"api_key":        "sk-123",
		"authorization":  "secret",
		"long_string":    string(make([]byte, 600)),
		"backend":        "onnx",
		"entity_count":   3,
		"categories":     []string{"NOME", "COGNOME"},
		"span_positions": []int{0, 6},
	}

	attrs := SafeAttributes(kvs)
	kept := map[string]bool{}
	for _, a := range attrs {
		kept[string(a.Key)] = true
	}
	for _, bad := range []string{"text", "entity_word", "highlighted", "anonymized", "api_key", "authorization", "long_string"} {
		if kept[bad] {
			t.Fatalf("unexpected unsafe attribute %s", bad)
		}
	}
	for _, good := range []string{"backend", "entity_count", "categories", "span_positions"} {
		if !kept[good] {
			t.Fatalf("expected attribute %s to be kept", good)
		}
	}
}

func TestNoopProviderIsUsable(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{Enabled: false})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	if p.Enabled {
		t.Fatalf("expected disabled provider")
	}
	ctx, span := p.Tracer().Start(context.Background(), "test")
	p.RecordRequest(ctx, "ok", "onnx", 3*time.Millisecond, time.Millisecond)
	p.RecordEntities(ctx, map[string]int{"NOME": 2, "LUOGO": 0})
	span.End()
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	var nilProvider *Provider
	nilProvider.RecordRequest(ctx, "ok", "onnx", 0, 0)
	if nilProvider.Tracer() == nil || nilProvider.Meter() == nil {
		t.Fatalf("nil provider must hand out no-op instruments")
	}
}

func TestNewProviderRejectsUnknownProtocol(t *testing.T) {
	if _, err := NewProvider(context.Background(), Config{Enabled: true, Endpoint: "localhost:4317", Protocol: "kafka"}); err == nil {
		t.Fatalf("expected error for unknown protocol")
	}
}
