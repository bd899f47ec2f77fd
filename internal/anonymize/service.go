// Package anonymize runs the full pipeline for one text: classify, merge
// token tags into entity spans, then render the highlighted and redacted
// views.
package anonymize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"

	"github.com/straja-ai/entityshield/internal/config"
	"github.com/straja-ai/entityshield/internal/ner"
	"github.com/straja-ai/entityshield/internal/spans"
	"github.com/straja-ai/entityshield/internal/telemetry"
)

var (
	// ErrEmptyText is returned for blank input.
	ErrEmptyText = errors.New("text is empty")
	// ErrTextTooLong is returned when the input exceeds the character cap.
	ErrTextTooLong = errors.New("text too long")
	// ErrClassifier marks failures of the token classifier or of its output.
	ErrClassifier = errors.New("classifier failed")
)

// Timings records how long each stage took.
type Timings struct {
	Inference time.Duration `json:"inference"`
	Aggregate time.Duration `json:"aggregate"`
	Render    time.Duration `json:"render"`
}

// Result holds the entities found in a text and both rendered views.
type Result struct {
	Entities    []spans.EntitySpan `json:"entities"`
	Highlighted string             `json:"highlighted"`
	Anonymized  string             `json:"anonymized"`
	Timings     Timings            `json:"-"`
}

// Options configures a Service. Zero values fall back to defaults.
type Options struct {
	Backend    string
	MaxChars   int
	Aggregator *spans.Aggregator
	Renderer   *spans.Renderer
	Telemetry  *telemetry.Provider
}

// Service is safe for concurrent use.
type Service struct {
	classifier ner.Classifier
	backend    string
	maxChars   int
	aggregator *spans.Aggregator
	renderer   *spans.Renderer
	telemetry  *telemetry.Provider
	tracer     trace.Tracer
}

// New builds a Service around classifier.
func New(classifier ner.Classifier, opts Options) *Service {
	if opts.Aggregator == nil {
		opts.Aggregator = spans.NewAggregator()
	}
	if opts.Renderer == nil {
		opts.Renderer = spans.NewRenderer(spans.DefaultPalette())
	}
	if opts.Telemetry == nil {
		opts.Telemetry = telemetry.Noop()
	}
	return &Service{
		classifier: classifier,
		backend:    opts.Backend,
		maxChars:   opts.MaxChars,
		aggregator: opts.Aggregator,
		renderer:   opts.Renderer,
		telemetry:  opts.Telemetry,
		tracer:     opts.Telemetry.Tracer(),
	}
}

// NewFromConfig builds a Service using the server limits, sub-word marker
// and palette from cfg.
func NewFromConfig(cfg *config.Config, classifier ner.Classifier, tel *telemetry.Provider) *Service {
	return New(classifier, Options{
		Backend:    cfg.Classifier.Backend,
		MaxChars:   cfg.Server.MaxTextChars,
		Aggregator: spans.NewAggregator(spans.WithDesubworder(spans.DesubworderFor(cfg.Classifier.SubwordMarker))),
		Renderer:   spans.NewRenderer(PaletteFromConfig(cfg.Render)),
		Telemetry:  tel,
	})
}

// PaletteFromConfig layers configured colors over the built-in legend.
func PaletteFromConfig(r config.RenderConfig) *spans.Palette {
	entries := spans.ItalianNERCategories()
	for _, c := range r.Colors {
		entries = append(entries, spans.LegendEntry{Category: strings.TrimSpace(c.Category), Color: c.Color})
	}
	return spans.NewPalette(entries, r.DefaultColor)
}

// Legend lists the known categories and their colors.
func (s *Service) Legend() []spans.LegendEntry {
	return s.renderer.Palette().Legend()
}

// Process classifies text and returns its entities with both views.
func (s *Service) Process(ctx context.Context, text string) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		s.telemetry.RecordRequest(ctx, "rejected", s.backend, 0, 0)
		return nil, ErrEmptyText
	}
	chars := utf8.RuneCountInString(text)
	if s.maxChars > 0 && chars > s.maxChars {
		s.telemetry.RecordRequest(ctx, "rejected", s.backend, 0, 0)
		return nil, fmt.Errorf("%w: %d characters, limit %d", ErrTextTooLong, chars, s.maxChars)
	}

	ctx, span := s.tracer.Start(ctx, "anonymize.Process")
	defer span.End()
	span.SetAttributes(telemetry.SafeAttributes(map[string]interface{}{
		"entityshield.input_chars": chars,
		"entityshield.backend":     s.backend,
	})...)

	res := &Result{}

	start := time.Now()
	preds, err := s.classifier.Classify(ctx, text)
	res.Timings.Inference = time.Since(start)
	if err != nil {
		if ctx.Err() != nil || isContextErr(err) {
			return nil, s.fail(ctx, span, "cancelled", res.Timings, fmt.Errorf("classify: %w", err))
		}
		return nil, s.fail(ctx, span, "classifier_error", res.Timings, fmt.Errorf("%w: %w", ErrClassifier, err))
	}

	start = time.Now()
	entities, err := s.aggregator.AggregateText(text, preds)
	res.Timings.Aggregate = time.Since(start)
	if err != nil {
		return nil, s.fail(ctx, span, "classifier_error", res.Timings, fmt.Errorf("%w: %w", ErrClassifier, err))
	}
	res.Entities = entities

	start = time.Now()
	var renderErr error
	highlighted, err := s.renderer.Highlight(text, entities)
	renderErr = multierr.Append(renderErr, wrapView("highlight", err))
	anonymized, err := s.renderer.Redact(text, entities)
	renderErr = multierr.Append(renderErr, wrapView("redact", err))
	res.Timings.Render = time.Since(start)
	if renderErr != nil {
		return nil, s.fail(ctx, span, "render_error", res.Timings, renderErr)
	}
	res.Highlighted = highlighted
	res.Anonymized = anonymized

	perCategory := make(map[string]int)
	for _, e := range entities {
		perCategory[e.Category]++
	}
	span.SetAttributes(telemetry.SafeAttributes(map[string]interface{}{
		"entityshield.entity_count": len(entities),
	})...)
	s.telemetry.RecordEntities(ctx, perCategory)
	s.telemetry.RecordRequest(ctx, "ok", s.backend, res.Timings.Inference, res.Timings.Render)
	return res, nil
}

func (s *Service) fail(ctx context.Context, span trace.Span, outcome string, t Timings, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, outcome)
	s.telemetry.RecordRequest(ctx, outcome, s.backend, t.Inference, t.Render)
	return err
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func wrapView(view string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("render %s: %w", view, err)
}
