package spans

import "testing"

func TestParseTag(t *testing.T) {
	cases := []struct {
		raw  string
		want Tag
	}{
		{raw: "B-NOME", want: Tag{Kind: Begin, Category: "NOME"}},
		{raw: "I-NOME", want: Tag{Kind: Inside, Category: "NOME"}},
		{raw: "B-DATA-NASCITA", want: Tag{Kind: Begin, Category: "DATA-NASCITA"}},
		{raw: " I-CODICE_FISCALE ", want: Tag{Kind: Inside, Category: "CODICE_FISCALE"}},
		{raw: "O", want: Tag{Kind: Outside}},
		{raw: "", want: Tag{Kind: Outside}},
		{raw: "B-", want: Tag{Kind: Outside}},
		{raw: "E-NOME", want: Tag{Kind: Outside}},
		{raw: "NOME", want: Tag{Kind: Outside}},
	}
	for _, tc := range cases {
		if got := ParseTag(tc.raw); got != tc.want {
			t.Fatalf("ParseTag(%q): expected %+v, got %+v", tc.raw, tc.want, got)
		}
	}
}

func TestPaletteColorAndLegend(t *testing.T) {
	p := DefaultPalette()
	if got := p.Color("NOME"); got != "#66FF66" {
		t.Fatalf("expected NOME color #66FF66, got %s", got)
	}
	if got := p.Color("NON_ESISTE"); got != DefaultColor {
		t.Fatalf("expected fallback color, got %s", got)
	}
	legend := p.Legend()
	if len(legend) != len(ItalianNERCategories()) {
		t.Fatalf("expected %d legend entries, got %d", len(ItalianNERCategories()), len(legend))
	}
	if legend[0].Category != "INDIRIZZO" || legend[len(legend)-1].Category != "SUBALTERNO" {
		t.Fatalf("legend order not preserved: first=%s last=%s", legend[0].Category, legend[len(legend)-1].Category)
	}
}

func TestPaletteDuplicatesKeepPosition(t *testing.T) {
	p := NewPalette([]LegendEntry{
		{Category: "A", Color: "#111111"},
		{Category: "B", Color: "#222222"},
		{Category: "A", Color: "#333333"},
	}, "")
	legend := p.Legend()
	if len(legend) != 2 || legend[0].Category != "A" || legend[0].Color != "#333333" {
		t.Fatalf("unexpected legend %+v", legend)
	}
	if p.Fallback() != DefaultColor {
		t.Fatalf("expected default fallback, got %s", p.Fallback())
	}
}

func TestPaletteWithOverrides(t *testing.T) {
	base := DefaultPalette()
	p := base.With([]LegendEntry{{Category: "NOME", Color: "#000000"}, {Category: "SQUADRA", Color: "#ABCDEF"}})
	if p.Color("NOME") != "#000000" || p.Color("SQUADRA") != "#ABCDEF" {
		t.Fatalf("overrides not applied")
	}
	if base.Color("NOME") != "#66FF66" {
		t.Fatalf("base palette was mutated")
	}
}

func TestItalianNERCategoriesReturnsCopy(t *testing.T) {
	legend := ItalianNERCategories()
	legend[0] = LegendEntry{Category: "ALTRO", Color: "#000000"}
	if got := DefaultPalette().Legend()[0].Category; got != "INDIRIZZO" {
		t.Fatalf("mutating the returned legend changed the default palette: %s", got)
	}
	if got := ItalianNERCategories()[0].Category; got != "INDIRIZZO" {
		t.Fatalf("mutating the returned legend changed later copies: %s", got)
	}
	if got := DefaultPalette().Color("SUBALTERNO"); got != "#99CCFF" {
		t.Fatalf("unexpected SUBALTERNO color %s", got)
	}
}
