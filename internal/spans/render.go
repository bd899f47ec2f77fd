package spans

import (
	"html"
	"slices"
	"strings"
)

// Mode selects how entities are rewritten.
type Mode int

const (
	// Highlight wraps each entity in inline HTML markup. The whole output is
	// markup, so every piece of source text is escaped.
	Highlight Mode = iota
	// Redact replaces each entity with a [CATEGORY] placeholder. The output
	// is plain text and is never escaped.
	Redact
)

func (m Mode) String() string {
	if m == Redact {
		return "redact"
	}
	return "highlight"
}

// DefaultPlaceholderCategory names entities that carry no category.
const DefaultPlaceholderCategory = "ENTITY"

// Renderer applies entity spans to text.
type Renderer struct {
	palette *Palette
}

// NewRenderer returns a Renderer using palette for highlight colors. A nil
// palette falls back to DefaultColor for every category.
func NewRenderer(palette *Palette) *Renderer {
	if palette == nil {
		palette = NewPalette(nil, DefaultColor)
	}
	return &Renderer{palette: palette}
}

// Palette returns the renderer's palette.
func (r *Renderer) Palette() *Palette {
	return r.palette
}

// Highlight is Render in Highlight mode.
func (r *Renderer) Highlight(text string, spans []EntitySpan) (string, error) {
	return r.Render(text, spans, Highlight)
}

// Redact is Render in Redact mode.
func (r *Renderer) Redact(text string, spans []EntitySpan) (string, error) {
	return r.Render(text, spans, Redact)
}

// Render rewrites text around spans. Spans are expected to be non-overlapping;
// overlap is reported as *OverlappingSpanError rather than producing garbage.
func (r *Renderer) Render(text string, spans []EntitySpan, mode Mode) (string, error) {
	gap := func(s string) string { return s }
	if mode == Highlight {
		gap = html.EscapeString
	}
	if len(spans) == 0 {
		return gap(text), nil
	}

	for _, sp := range spans {
		if sp.Start < 0 || sp.End > len(text) || sp.Start >= sp.End {
			return "", &OutOfRangeSpanError{Span: sp, TextLen: len(text)}
		}
	}

	ordered := slices.Clone(spans)
	slices.SortStableFunc(ordered, func(a, b EntitySpan) int {
		return b.Start - a.Start
	})

	// Walk right to left; pieces come out reversed.
	pieces := make([]string, 0, 2*len(ordered)+1)
	size := 0
	cursor := len(text)
	for i, sp := range ordered {
		if sp.End > cursor {
			return "", &OverlappingSpanError{First: sp, Second: ordered[i-1]}
		}
		tail := gap(text[sp.End:cursor])
		repl := r.replacement(text[sp.Start:sp.End], sp.Category, mode)
		pieces = append(pieces, tail, repl)
		size += len(tail) + len(repl)
		cursor = sp.Start
	}
	head := gap(text[:cursor])
	pieces = append(pieces, head)
	size += len(head)

	var b strings.Builder
	b.Grow(size)
	for i := len(pieces) - 1; i >= 0; i-- {
		b.WriteString(pieces[i])
	}
	return b.String(), nil
}

func (r *Renderer) replacement(covered, category string, mode Mode) string {
	label := category
	if strings.TrimSpace(label) == "" {
		label = DefaultPlaceholderCategory
	}
	if mode == Redact {
		return "[" + label + "]"
	}
	color := r.palette.Color(category)
	return `<span style="background-color:` + html.EscapeString(color) +
		`; padding:2px; border-radius:4px;">` + html.EscapeString(covered) +
		` (` + html.EscapeString(label) + `)</span>`
}
