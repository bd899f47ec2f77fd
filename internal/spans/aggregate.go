package spans

import "strings"

// Desubworder strips tokenizer-specific continuation markers from a surface token.
type Desubworder func(surface string) string

// WordPieceDesubword removes the "##" continuation marker used by BERT vocabularies.
func WordPieceDesubword(surface string) string {
	return strings.ReplaceAll(surface, "##", "")
}

// SentencePieceDesubword removes the "▁" word-boundary marker.
func SentencePieceDesubword(surface string) string {
	return strings.ReplaceAll(surface, "▁", "")
}

// NoDesubword returns the surface unchanged.
func NoDesubword(surface string) string {
	return surface
}

// DesubworderFor maps a marker name from configuration to a Desubworder.
func DesubworderFor(marker string) Desubworder {
	switch strings.ToLower(strings.TrimSpace(marker)) {
	case "", "wordpiece", "##":
		return WordPieceDesubword
	case "sentencepiece", "metaspace", "▁":
		return SentencePieceDesubword
	case "none":
		return NoDesubword
	default:
		return func(surface string) string {
			return strings.ReplaceAll(surface, marker, "")
		}
	}
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithDesubworder sets the continuation-marker stripping function.
func WithDesubworder(fn Desubworder) AggregatorOption {
	return func(a *Aggregator) {
		if fn != nil {
			a.desubword = fn
		}
	}
}

// Aggregator merges BIO token predictions into entity spans.
type Aggregator struct {
	desubword Desubworder
}

// NewAggregator returns an Aggregator that strips WordPiece markers unless
// told otherwise.
func NewAggregator(opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{desubword: WordPieceDesubword}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type accumulator struct {
	open     bool
	category string
	start    int
	end      int
	words    []string
}

func (acc *accumulator) reset(category string, p TokenPrediction, word string) {
	acc.open = true
	acc.category = category
	acc.start = p.Start
	acc.end = p.End
	acc.words = append(acc.words[:0], word)
}

func (acc *accumulator) flush(out []EntitySpan) []EntitySpan {
	if !acc.open {
		return out
	}
	word := strings.Join(acc.words, " ")
	out = append(out, EntitySpan{
		Category: acc.category,
		Start:    acc.start,
		End:      acc.end,
		Text:     word,
		Word:     word,
	})
	acc.open = false
	acc.words = acc.words[:0]
	return out
}

// Aggregate merges predictions into spans in text order. Span Text holds the
// de-sub-worded surfaces joined by single spaces since the source is unknown.
func (a *Aggregator) Aggregate(preds []TokenPrediction) ([]EntitySpan, error) {
	return a.aggregate(preds, -1)
}

// AggregateText is Aggregate with bounds checks against text; span Text is
// the covered slice of text.
func (a *Aggregator) AggregateText(text string, preds []TokenPrediction) ([]EntitySpan, error) {
	out, err := a.aggregate(preds, len(text))
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Text = text[out[i].Start:out[i].End]
	}
	return out, nil
}

func (a *Aggregator) aggregate(preds []TokenPrediction, textLen int) ([]EntitySpan, error) {
	if len(preds) == 0 {
		return []EntitySpan{}, nil
	}
	desubword := a.desubword
	if desubword == nil {
		desubword = WordPieceDesubword
	}

	out := make([]EntitySpan, 0, len(preds)/2+1)
	var acc accumulator
	prevEnd := 0

	for i, p := range preds {
		if err := checkOffsets(i, p, prevEnd, textLen); err != nil {
			return nil, err
		}
		prevEnd = p.End

		tag := ParseTag(p.Tag)
		switch {
		case tag.Kind == Begin:
			out = acc.flush(out)
			acc.reset(tag.Category, p, desubword(p.Surface))
		case tag.Kind == Inside && acc.open && tag.Category == acc.category:
			acc.words = append(acc.words, desubword(p.Surface))
			acc.end = p.End
		case tag.Kind == Inside && acc.open:
			// A stray I of another category starts its own entity.
			out = acc.flush(out)
			acc.reset(tag.Category, p, desubword(p.Surface))
		default:
			out = acc.flush(out)
		}
	}
	return acc.flush(out), nil
}

func checkOffsets(i int, p TokenPrediction, prevEnd, textLen int) error {
	bad := func(reason string) error {
		return &MalformedInputError{Index: i, Start: p.Start, End: p.End, Reason: reason}
	}
	switch {
	case p.Start < 0:
		return bad("negative start offset")
	case p.End == p.Start:
		return bad("zero-width token")
	case p.End < p.Start:
		return bad("inverted offsets")
	case textLen >= 0 && p.End > textLen:
		return bad("offset past end of text")
	case p.Start < prevEnd:
		return bad("token starts before previous token ends")
	}
	return nil
}
