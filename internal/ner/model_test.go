package ner

import (
	"context"
	"os"
	"testing"

	"github.com/straja-ai/entityshield/internal/spans"
)

func TestResolveRuntimeDefaults(t *testing.T) {
	t.Setenv("ENTITYSHIELD_MAX_SESSIONS", "")
	rt := ResolveRuntime(RuntimeSettings{})
	if rt.PoolSize != 1 || rt.IntraThreads != 1 || rt.InterThreads != 1 {
		t.Fatalf("unexpected defaults %+v", rt)
	}
}

func TestResolveRuntimeEnvCap(t *testing.T) {
	t.Setenv("ENTITYSHIELD_MAX_SESSIONS", "1")
	rt := ResolveRuntime(RuntimeSettings{PoolSize: 8, IntraThreads: 2})
	if rt.PoolSize != 1 {
		t.Fatalf("expected env to cap pool size, got %d", rt.PoolSize)
	}
	if rt.IntraThreads != 2 {
		t.Fatalf("expected intra threads preserved, got %d", rt.IntraThreads)
	}
}

func TestLoadModelRejectsEmptyDir(t *testing.T) {
	if _, err := LoadModel("", 128, RuntimeSettings{}); err == nil {
		t.Fatalf("expected error for empty model dir")
	}
	if _, err := LoadModel(t.TempDir(), 128, RuntimeSettings{}); err == nil {
		t.Fatalf("expected error for dir without assets")
	}
}

func TestModelClassifyEndToEnd(t *testing.T) {
	dir := os.Getenv("ENTITYSHIELD_MODEL_DIR")
	if dir == "" {
		t.Skip("ENTITYSHIELD_MODEL_DIR not set")
	}
	m, err := LoadModel(dir, 128, RuntimeSettings{PoolSize: 1})
	if err != nil {
		t.Fatalf("load model: %v", err)
	}
	defer m.Close()

	text := "Mario Rossi abita a Milano in via Roma 10."
	preds, err := m.Classify(context.Background(), text)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if len(preds) == 0 {
		t.Fatalf("expected token predictions")
	}
	got, err := spans.NewAggregator().AggregateText(text, preds)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	for _, sp := range got {
		if sp.Start < 0 || sp.End > len(text) || sp.Text != text[sp.Start:sp.End] {
			t.Fatalf("span offsets do not match text: %+v", sp)
		}
	}
}
