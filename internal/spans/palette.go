package spans

import "strings"

// DefaultColor is used for categories missing from a palette.
const DefaultColor = "#E0E0E0"

// LegendEntry is one category with its display color.
type LegendEntry struct {
	Category string `json:"category"`
	Color    string `json:"color"`
}

// Palette maps categories to highlight colors. It is immutable once built.
type Palette struct {
	colors   map[string]string
	order    []string
	fallback string
}

// NewPalette builds a palette from legend entries. Later duplicates of a
// category replace the earlier color but keep its legend position.
func NewPalette(entries []LegendEntry, fallback string) *Palette {
	if strings.TrimSpace(fallback) == "" {
		fallback = DefaultColor
	}
	p := &Palette{
		colors:   make(map[string]string, len(entries)),
		order:    make([]string, 0, len(entries)),
		fallback: fallback,
	}
	for _, e := range entries {
		cat := strings.TrimSpace(e.Category)
		if cat == "" {
			continue
		}
		if _, ok := p.colors[cat]; !ok {
			p.order = append(p.order, cat)
		}
		p.colors[cat] = strings.TrimSpace(e.Color)
	}
	return p
}

// Color returns the category color or the fallback.
func (p *Palette) Color(category string) string {
	if p == nil {
		return DefaultColor
	}
	if c, ok := p.colors[category]; ok && c != "" {
		return c
	}
	return p.fallback
}

// Fallback returns the color used for unmapped categories.
func (p *Palette) Fallback() string {
	if p == nil {
		return DefaultColor
	}
	return p.fallback
}

// Legend lists the palette in declaration order.
func (p *Palette) Legend() []LegendEntry {
	if p == nil {
		return nil
	}
	out := make([]LegendEntry, 0, len(p.order))
	for _, cat := range p.order {
		out = append(out, LegendEntry{Category: cat, Color: p.colors[cat]})
	}
	return out
}

// With returns a copy of p with entries added or overridden.
func (p *Palette) With(entries []LegendEntry) *Palette {
	merged := p.Legend()
	merged = append(merged, entries...)
	fallback := DefaultColor
	if p != nil {
		fallback = p.fallback
	}
	return NewPalette(merged, fallback)
}

// italianNERCategories is the legend of the Italian PII NER model.
var italianNERCategories = []LegendEntry{
	{"INDIRIZZO", "#FFCCCC"},
	{"VALUTA", "#FF9999"},
	{"CVV", "#FF6666"},
	{"NUMERO_CONTO", "#FF3333"},
	{"BIC", "#FF0000"},
	{"IBAN", "#CCFFCC"},
	{"STATO", "#99FF99"},
	{"NOME", "#66FF66"},
	{"COGNOME", "#33FF33"},
	{"CODICE_POSTALE", "#00FF00"},
	{"IP", "#CCCCFF"},
	{"ORARIO", "#9999FF"},
	{"URL", "#6666FF"},
	{"LUOGO", "#CCCCFF"},
	{"IMPORTO", "#66FFFF"},
	{"EMAIL", "#FFCC99"},
	{"PASSWORD", "#FF9966"},
	{"NUMERO_CARTA", "#FF6633"},
	{"TARGA_VEICOLO", "#FF3300"},
	{"DATA_NASCITA", "#FFFF99"},
	{"DATA_MORTE", "#FFFF66"},
	{"RAGIONE_SOCIALE", "#FFFF33"},
	{"ETA", "#FFFF00"},
	{"DATA", "#CCFFFF"},
	{"PROFESSIONE", "#99FFFF"},
	{"PIN", "#66FFFF"},
	{"NUMERO_TELEFONO", "#33FFFF"},
	{"FOGLIO", "#00FFFF"},
	{"PARTICELLA", "#FFCCFF"},
	{"CARTELLA_CLINICA", "#FF99FF"},
	{"MALATTIA", "#FF66FF"},
	{"MEDICINA", "#FF33FF"},
	{"CODICE_FISCALE", "#FF00FF"},
	{"NUMERO_DOCUMENTO", "#CC99FF"},
	{"STORIA_CLINICA", "#9966FF"},
	{"AVV_NOTAIO", "#6633FF"},
	{"P_IVA", "#66FFFF"},
	{"LEGGE", "#CCCCCC"},
	{"TASSO_MUTUO", "#999999"},
	{"N_SENTENZA", "#666666"},
	{"MAPPALE", "#FFCCFF"},
	{"SUBALTERNO", "#99CCFF"},
}

// DefaultPalette returns the Italian NER legend with the default fallback.
func DefaultPalette() *Palette {
	return NewPalette(italianNERCategories, DefaultColor)
}

// ItalianNERCategories returns a copy of the Italian NER legend in
// display order.
func ItalianNERCategories() []LegendEntry {
	return append([]LegendEntry(nil), italianNERCategories...)
}
