package anonymize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/straja-ai/entityshield/internal/config"
	"github.com/straja-ai/entityshield/internal/spans"
	"github.com/straja-ai/entityshield/internal/telemetry"
)

type fakeClassifier struct {
	mu    sync.Mutex
	preds []spans.TokenPrediction
	err   error
	calls int
}

func (f *fakeClassifier) Classify(_ context.Context, _ string) ([]spans.TokenPrediction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.preds, f.err
}

func marioRoma() (string, []spans.TokenPrediction) {
	return "Mario vive a Roma", []spans.TokenPrediction{
		{Tag: "B-NOME", Surface: "Mario", Start: 0, End: 5},
		{Tag: "O", Surface: "vive", Start: 6, End: 10},
		{Tag: "O", Surface: "a", Start: 11, End: 12},
		{Tag: "B-LUOGO", Surface: "Roma", Start: 13, End: 17},
	}
}

func TestProcessMarioViveARoma(t *testing.T) {
	text, preds := marioRoma()
	svc := New(&fakeClassifier{preds: preds}, Options{MaxChars: 2000})

	res, err := svc.Process(context.Background(), text)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Anonymized != "[NOME] vive a [LUOGO]" {
		t.Fatalf("unexpected anonymized view %q", res.Anonymized)
	}
	if len(res.Entities) != 2 || res.Entities[0].Text != "Mario" || res.Entities[1].Category != "LUOGO" {
		t.Fatalf("unexpected entities %+v", res.Entities)
	}
	if !strings.Contains(res.Highlighted, "Mario (NOME)</span>") || !strings.Contains(res.Highlighted, " vive a ") {
		t.Fatalf("unexpected highlighted view %q", res.Highlighted)
	}
}

func TestProcessNoEntities(t *testing.T) {
	text := "ciao <b>mondo</b>"
	svc := New(&fakeClassifier{preds: []spans.TokenPrediction{{Tag: "O", Surface: "ciao", Start: 0, End: 4}}}, Options{})
	res, err := svc.Process(context.Background(), text)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Anonymized != text {
		t.Fatalf("expected anonymized passthrough, got %q", res.Anonymized)
	}
	if res.Highlighted != "ciao &lt;b&gt;mondo&lt;/b&gt;" {
		t.Fatalf("expected escaped passthrough, got %q", res.Highlighted)
	}
	if res.Entities == nil || len(res.Entities) != 0 {
		t.Fatalf("expected empty, non-nil entity list, got %#v", res.Entities)
	}
}

func TestProcessRejectsInput(t *testing.T) {
	fake := &fakeClassifier{}
	svc := New(fake, Options{MaxChars: 5})

	cases := []struct {
		name string
		text string
		want error
	}{
		{name: "empty", text: "", want: ErrEmptyText},
		{name: "blank", text: " \n\t ", want: ErrEmptyText},
		{name: "too long", text: "abcdef", want: ErrTextTooLong},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Process(context.Background(), tc.text); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if fake.calls != 0 {
		t.Fatalf("classifier must not run for rejected input, ran %d times", fake.calls)
	}

	// Five characters, more than five bytes.
	if _, err := svc.Process(context.Background(), "èèèèè"); errors.Is(err, ErrTextTooLong) {
		t.Fatalf("limit must count characters, not bytes")
	}
}

func TestProcessClassifierFailure(t *testing.T) {
	svc := New(&fakeClassifier{err: errors.New("sidecar down")}, Options{})
	_, err := svc.Process(context.Background(), "Mario")
	if !errors.Is(err, ErrClassifier) {
		t.Fatalf("expected ErrClassifier, got %v", err)
	}
}

func TestProcessCancelledIsNotClassifierError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{name: "canceled", err: context.Canceled, want: context.Canceled},
		{name: "deadline", err: fmt.Errorf("post: %w", context.DeadlineExceeded), want: context.DeadlineExceeded},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := New(&fakeClassifier{err: tc.err}, Options{})
			_, err := svc.Process(context.Background(), "Mario")
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if errors.Is(err, ErrClassifier) {
				t.Fatalf("cancellation must not be reported as a classifier error: %v", err)
			}
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc := New(&fakeClassifier{err: errors.New("request aborted")}, Options{})
	if _, err := svc.Process(ctx, "Mario"); errors.Is(err, ErrClassifier) {
		t.Fatalf("failure under a cancelled context must not be a classifier error: %v", err)
	}
}

func TestProcessRecordsRejections(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	tel := telemetry.NewWithMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	svc := New(&fakeClassifier{}, Options{MaxChars: 5, Telemetry: tel})

	for _, text := range []string{"", "  ", "troppo lungo"} {
		if _, err := svc.Process(context.Background(), text); err == nil {
			t.Fatalf("expected rejection for %q", text)
		}
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	if got := requestCount(rm, "rejected"); got != 3 {
		t.Fatalf("expected 3 rejected requests, got %d", got)
	}
}

func requestCount(rm metricdata.ResourceMetrics, outcome string) int64 {
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "entityshield_requests_total" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				if v, ok := dp.Attributes.Value(attribute.Key("entityshield.outcome")); ok && v.AsString() == outcome {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func TestProcessMalformedClassifierOutput(t *testing.T) {
	svc := New(&fakeClassifier{preds: []spans.TokenPrediction{{Tag: "B-NOME", Start: 0, End: 50}}}, Options{})
	_, err := svc.Process(context.Background(), "Mario")
	if !errors.Is(err, ErrClassifier) {
		t.Fatalf("expected ErrClassifier, got %v", err)
	}
	var malformed *spans.MalformedInputError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected wrapped MalformedInputError, got %v", err)
	}
}

func TestNewFromConfigAppliesPaletteAndMarker(t *testing.T) {
	cfg := &config.Config{
		Server:     config.ServerConfig{MaxTextChars: 100},
		Classifier: config.ClassifierConfig{Backend: config.BackendSidecar, SubwordMarker: "sentencepiece"},
		Render: config.RenderConfig{
			DefaultColor: "#111111",
			Colors:       []config.ColorConfig{{Category: "NOME", Color: "#000000"}, {Category: "TARGA", Color: "#123456"}},
		},
	}
	text := "Anna Maria"
	preds := []spans.TokenPrediction{
		{Tag: "B-NOME", Surface: "▁Anna", Start: 0, End: 4},
		{Tag: "I-NOME", Surface: "▁Maria", Start: 5, End: 10},
	}
	svc := NewFromConfig(cfg, &fakeClassifier{preds: preds}, nil)
	res, err := svc.Process(context.Background(), text)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(res.Entities) != 1 || res.Entities[0].Word != "Anna Maria" {
		t.Fatalf("expected one merged entity, got %+v", res.Entities)
	}
	if !strings.Contains(res.Highlighted, "background-color:#000000") {
		t.Fatalf("expected configured color override, got %q", res.Highlighted)
	}

	legend := svc.Legend()
	if legend[len(legend)-1].Category != "TARGA" {
		t.Fatalf("expected new category appended to legend, got %+v", legend[len(legend)-1])
	}
	for _, e := range legend {
		if e.Category == "NOME" && e.Color != "#000000" {
			t.Fatalf("expected NOME override in legend, got %s", e.Color)
		}
	}
}

func TestProcessConcurrent(t *testing.T) {
	text, preds := marioRoma()
	svc := New(&fakeClassifier{preds: preds}, Options{})
	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Process(context.Background(), text)
			if err == nil && res.Anonymized != "[NOME] vive a [LUOGO]" {
				err = errors.New("unexpected output " + res.Anonymized)
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}
}
