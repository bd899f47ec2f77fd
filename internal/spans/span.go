// Package spans turns token-level BIO predictions into entity spans and
// rewrites text around those spans.
//
// Offsets are byte offsets into the UTF-8 source text. Everything in this
// package is pure and safe for concurrent use.
package spans

import "fmt"

// TokenPrediction is one classified token as produced by the upstream model.
type TokenPrediction struct {
	Tag     string  `json:"entity"`
	Surface string  `json:"word"`
	Start   int     `json:"start"`
	End     int     `json:"end"`
	Score   float32 `json:"score,omitempty"`
}

// EntitySpan is a merged entity covering [Start, End) of the source text.
type EntitySpan struct {
	Category string `json:"category"`
	Start    int    `json:"start"`
	End      int    `json:"end"`
	Text     string `json:"text"`
	Word     string `json:"word,omitempty"`
}

// MalformedInputError reports a token whose offsets cannot be trusted.
type MalformedInputError struct {
	Index  int
	Start  int
	End    int
	Reason string
}

func (e *MalformedInputError) Error() string {
	return fmt.Sprintf("malformed token %d [%d,%d): %s", e.Index, e.Start, e.End, e.Reason)
}

// OutOfRangeSpanError reports a span that does not fit inside the text.
type OutOfRangeSpanError struct {
	Span    EntitySpan
	TextLen int
}

func (e *OutOfRangeSpanError) Error() string {
	return fmt.Sprintf("span %s [%d,%d) out of range for text of length %d", e.Span.Category, e.Span.Start, e.Span.End, e.TextLen)
}

// OverlappingSpanError reports two spans sharing at least one byte.
type OverlappingSpanError struct {
	First  EntitySpan
	Second EntitySpan
}

func (e *OverlappingSpanError) Error() string {
	return fmt.Sprintf("span %s [%d,%d) overlaps span %s [%d,%d)",
		e.First.Category, e.First.Start, e.First.End,
		e.Second.Category, e.Second.Start, e.Second.End)
}
