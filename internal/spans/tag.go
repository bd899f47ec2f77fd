package spans

import "strings"

// TagKind is the BIO position of a token.
type TagKind int

const (
	Outside TagKind = iota
	Begin
	Inside
)

func (k TagKind) String() string {
	switch k {
	case Begin:
		return "B"
	case Inside:
		return "I"
	default:
		return "O"
	}
}

// Tag is a parsed BIO label. Category is empty for Outside.
type Tag struct {
	Kind     TagKind
	Category string
}

// ParseTag splits a raw label such as "B-NOME" on its first separator.
// Anything without a B or I prefix and a non-empty category is Outside.
func ParseTag(raw string) Tag {
	raw = strings.TrimSpace(raw)
	prefix, category, ok := strings.Cut(raw, "-")
	if !ok {
		return Tag{Kind: Outside}
	}
	category = strings.TrimSpace(category)
	if category == "" {
		return Tag{Kind: Outside}
	}
	switch prefix {
	case "B":
		return Tag{Kind: Begin, Category: category}
	case "I":
		return Tag{Kind: Inside, Category: category}
	default:
		return Tag{Kind: Outside}
	}
}
