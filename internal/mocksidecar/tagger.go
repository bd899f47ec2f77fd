package mocksidecar

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

var gazetteer = map[string]string{
	"mario": "NOME", "luigi": "NOME", "anna": "NOME", "maria": "NOME",
	"giulia": "NOME", "giuseppe": "NOME", "francesca": "NOME", "marco": "NOME",
	"rossi": "COGNOME", "bianchi": "COGNOME", "verdi": "COGNOME",
	"esposito": "COGNOME", "russo": "COGNOME", "ferrari": "COGNOME",
	"roma": "LUOGO", "milano": "LUOGO", "napoli": "LUOGO", "torino": "LUOGO",
	"firenze": "LUOGO", "bologna": "LUOGO", "palermo": "LUOGO", "venezia": "LUOGO",
	"medico": "PROFESSIONE", "avvocato": "PROFESSIONE", "ingegnere": "PROFESSIONE",
}

var streetPrefixes = map[string]bool{
	"via": true, "viale": true, "piazza": true, "corso": true, "largo": true,
}

const edgePunct = ".,;:!?()[]\"'«»"

type word struct {
	text  string
	start int // code points
	end   int
}

// Tag returns token predictions with code point offsets, omitting
// non-entity words the way the Hugging Face pipeline does.
func Tag(text string) []Token {
	words := splitWords(text)
	tokens := make([]Token, 0, len(words))
	prev := "O"
	inStreet := false
	for _, w := range words {
		category := classify(w.text)
		switch {
		case category == "INDIRIZZO":
			inStreet = true
		case category == "O" && inStreet && (isCapitalized(w.text) || isDigits(w.text)):
			category = "INDIRIZZO"
		default:
			inStreet = false
		}
		if category == "O" {
			prev = "O"
			continue
		}
		prefix := "B-"
		if category == prev {
			prefix = "I-"
		}
		tokens = append(tokens, Token{
			Entity: prefix + category,
			Word:   w.text,
			Start:  w.start,
			End:    w.end,
			Score:  0.99,
		})
		prev = category
	}
	return tokens
}

func classify(w string) string {
	lw := strings.ToLower(w)
	if c, ok := gazetteer[lw]; ok {
		return c
	}
	if streetPrefixes[lw] {
		return "INDIRIZZO"
	}
	if strings.Count(w, "@") == 1 && strings.Contains(w[strings.Index(w, "@"):], ".") {
		return "EMAIL"
	}
	digits := strings.TrimPrefix(w, "+")
	if isDigits(digits) {
		switch {
		case len(digits) >= 9:
			return "NUMERO_TELEFONO"
		case len(digits) == 5:
			return "CODICE_POSTALE"
		}
	}
	return "O"
}

func splitWords(text string) []word {
	var (
		words []word
		cur   []rune
		start int
	)
	flush := func(end int) {
		if len(cur) == 0 {
			return
		}
		lead := 0
		for lead < len(cur) && strings.ContainsRune(edgePunct, cur[lead]) {
			lead++
		}
		trail := len(cur)
		for trail > lead && strings.ContainsRune(edgePunct, cur[trail-1]) {
			trail--
		}
		if trail > lead {
			words = append(words, word{
				text:  string(cur[lead:trail]),
				start: start + lead,
				end:   end - (len(cur) - trail),
			})
		}
		cur = cur[:0]
	}

	i := 0
	for _, r := range text {
		if unicode.IsSpace(r) {
			flush(i)
		} else {
			if len(cur) == 0 {
				start = i
			}
			cur = append(cur, r)
		}
		i++
	}
	flush(i)
	return words
}

func isCapitalized(w string) bool {
	r, _ := utf8.DecodeRuneInString(w)
	return unicode.IsUpper(r)
}

func isDigits(w string) bool {
	if w == "" {
		return false
	}
	for _, r := range w {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
