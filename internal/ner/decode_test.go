package ner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/straja-ai/entityshield/internal/spans"
)

func TestDecodePredictionsFeedsAggregator(t *testing.T) {
	tok := testTokenizer(t, false)
	text := "Mario Bianchi vive a Roma"
	enc := tok.EncodeWithOffsets(text, 10)

	labels := []string{"O", "B-NOME", "I-NOME", "B-COGNOME", "I-COGNOME", "B-LUOGO"}
	want := []int{0, 1, 3, 4, 0, 0, 5, 0, 0, 0} // per position, CLS first
	logits := make([]float32, 10*len(labels))
	for pos, idx := range want {
		logits[pos*len(labels)+idx] = 8
	}

	preds := decodePredictions(logits, len(labels), labels, enc)
	if len(preds) != 6 {
		t.Fatalf("expected 6 token predictions, got %d: %+v", len(preds), preds)
	}
	if preds[2].Tag != "I-COGNOME" || preds[2].Surface != "##chi" {
		t.Fatalf("unexpected third prediction %+v", preds[2])
	}
	if preds[0].Score < 0.99 {
		t.Fatalf("expected confident score, got %f", preds[0].Score)
	}

	got, err := spans.NewAggregator().AggregateText(text, preds)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 spans, got %+v", got)
	}
	if got[1].Category != "COGNOME" || got[1].Text != "Bianchi" {
		t.Fatalf("unexpected surname span %+v", got[1])
	}
	if got[2].Category != "LUOGO" || got[2].Text != "Roma" {
		t.Fatalf("unexpected place span %+v", got[2])
	}
}

func TestArgmaxProb(t *testing.T) {
	idx, p := argmaxProb([]float32{0, 0})
	if idx != 0 || p < 0.49 || p > 0.51 {
		t.Fatalf("expected tie at 0.5, got idx=%d p=%f", idx, p)
	}
	idx, _ = argmaxProb([]float32{-1, 3, 2})
	if idx != 1 {
		t.Fatalf("expected index 1, got %d", idx)
	}
}

func TestLoadModelMeta(t *testing.T) {
	dir := t.TempDir()
	cfg := `{"num_labels": 3, "id2label": {"0": "O", "2": "I-NOME", "1": "B-NOME"}, "type_vocab_size": 2}`
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(cfg), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	meta, err := loadModelMeta(dir)
	if err != nil {
		t.Fatalf("load meta: %v", err)
	}
	if meta.NumLabels != 3 || len(meta.Labels) != 3 || meta.Labels[1] != "B-NOME" {
		t.Fatalf("unexpected meta %+v", meta)
	}
	if !meta.RequiresTokenType {
		t.Fatalf("expected token type ids to be required")
	}

	if err := os.WriteFile(filepath.Join(dir, "label_map.json"), []byte(`["O","B-LUOGO","I-LUOGO","B-NOME"]`), 0o600); err != nil {
		t.Fatalf("write label map: %v", err)
	}
	meta, err = loadModelMeta(dir)
	if err != nil {
		t.Fatalf("load meta: %v", err)
	}
	if meta.NumLabels != 4 || meta.Labels[3] != "B-NOME" {
		t.Fatalf("expected label_map.json to win, got %+v", meta)
	}
}

func TestModelDirLooksValid(t *testing.T) {
	dir := t.TempDir()
	if modelDirLooksValid(dir) {
		t.Fatalf("empty dir should not look valid")
	}
	for name, body := range map[string]string{
		"model.int8.onnx": "x",
		"config.json":     `{"id2label":{"0":"O"}}`,
		"vocab.txt":       "[PAD]\n[UNK]",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if !modelDirLooksValid(dir) {
		t.Fatalf("expected dir to look valid")
	}
	if got := resolveModelPath(dir); filepath.Base(got) != "model.int8.onnx" {
		t.Fatalf("expected int8 model preferred, got %s", got)
	}
}
