package ner

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Piece is one token of an encoding. Special and padding tokens have
// Start == End == -1.
type Piece struct {
	Surface string
	Start   int
	End     int
}

// Encoding is the model input for one text plus the offset mapping.
type Encoding struct {
	IDs       []int64
	Mask      []int64
	Pieces    []Piece
	Truncated bool
}

// WordPieceTokenizer implements a BERT-compatible WordPiece tokenizer with
// byte offsets into the original text.
type WordPieceTokenizer struct {
	vocab        map[string]int64
	lowerCase    bool
	clsID        int64
	sepID        int64
	padID        int64
	unkID        int64
	continuation string
}

// NewWordPieceTokenizer builds a tokenizer over an in-memory vocab.
func NewWordPieceTokenizer(vocab map[string]int64, lowerCase bool) *WordPieceTokenizer {
	return &WordPieceTokenizer{
		vocab:        vocab,
		lowerCase:    lowerCase,
		continuation: "##",
		clsID:        vocab["[CLS]"],
		sepID:        vocab["[SEP]"],
		padID:        vocab["[PAD]"],
		unkID:        vocab["[UNK]"],
	}
}

// Continuation returns the marker prefixed to non-initial word pieces.
func (t *WordPieceTokenizer) Continuation() string {
	return t.continuation
}

// LoadWordPieceTokenizer builds the tokenizer from vocab.txt.
func LoadWordPieceTokenizer(path string, lowerCase bool) (*WordPieceTokenizer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vocab: %w", err)
	}
	defer f.Close()

	vocab := make(map[string]int64)
	sc := bufio.NewScanner(f)
	var idx int64
	for sc.Scan() {
		token := strings.TrimSpace(sc.Text())
		if token == "" {
			continue
		}
		vocab[token] = idx
		idx++
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan vocab: %w", err)
	}
	return NewWordPieceTokenizer(vocab, lowerCase), nil
}

// LoadTokenizerFromDir loads a tokenizer from vocab.txt or a WordPiece
// tokenizer.json. Lower-casing follows tokenizer_config.json when present.
func LoadTokenizerFromDir(dir string) (*WordPieceTokenizer, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("tokenizer dir is empty")
	}
	lower := lowerCaseFromConfig(dir)

	candidates := []string{
		filepath.Join(dir, "vocab.txt"),
		filepath.Join(dir, "tokenizer", "vocab.txt"),
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return LoadWordPieceTokenizer(path, lower)
		}
	}

	jsonCandidates := []string{
		filepath.Join(dir, "tokenizer.json"),
		filepath.Join(dir, "tokenizer", "tokenizer.json"),
	}
	for _, path := range jsonCandidates {
		if _, err := os.Stat(path); err == nil {
			return loadTokenizerFromJSON(path, lower)
		}
	}
	return nil, fmt.Errorf("tokenizer assets not found (vocab.txt or tokenizer.json)")
}

func lowerCaseFromConfig(dir string) bool {
	for _, path := range []string{
		filepath.Join(dir, "tokenizer_config.json"),
		filepath.Join(dir, "tokenizer", "tokenizer_config.json"),
	} {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var cfg struct {
			DoLowerCase *bool `json:"do_lower_case"`
		}
		if err := json.Unmarshal(data, &cfg); err == nil && cfg.DoLowerCase != nil {
			return *cfg.DoLowerCase
		}
	}
	return false
}

func loadTokenizerFromJSON(path string, lowerCase bool) (*WordPieceTokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tokenizer.json: %w", err)
	}
	var raw struct {
		Model struct {
			Type                    string           `json:"type"`
			Vocab                   map[string]int64 `json:"vocab"`
			ContinuingSubwordPrefix string           `json:"continuing_subword_prefix"`
		} `json:"model"`
		Normalizer struct {
			Lowercase *bool `json:"lowercase"`
		} `json:"normalizer"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode tokenizer.json: %w", err)
	}
	if t := strings.ToLower(strings.TrimSpace(raw.Model.Type)); t != "" && t != "wordpiece" {
		return nil, fmt.Errorf("tokenizer.json model type %q is not supported", raw.Model.Type)
	}
	if len(raw.Model.Vocab) == 0 {
		return nil, fmt.Errorf("tokenizer.json missing vocab")
	}
	if raw.Normalizer.Lowercase != nil {
		lowerCase = *raw.Normalizer.Lowercase
	}
	tok := NewWordPieceTokenizer(raw.Model.Vocab, lowerCase)
	if raw.Model.ContinuingSubwordPrefix != "" {
		tok.continuation = raw.Model.ContinuingSubwordPrefix
	}
	return tok, nil
}

var specialPiece = Piece{Start: -1, End: -1}

// EncodeWithOffsets converts text into token IDs, an attention mask and
// per-token byte offsets, all of length seqLen.
func (t *WordPieceTokenizer) EncodeWithOffsets(text string, seqLen int) Encoding {
	if seqLen <= 2 {
		return Encoding{}
	}

	ids := make([]int64, 0, seqLen)
	pieces := make([]Piece, 0, seqLen)
	ids = append(ids, t.clsID)
	pieces = append(pieces, Piece{Surface: "[CLS]", Start: -1, End: -1})

	truncated := false
words:
	for _, w := range splitWordsWithOffsets(text) {
		word := w.Text
		var offsetOf func(int) int
		if t.lowerCase {
			word, offsetOf = lowerWithOffsets(w.Text)
		} else {
			offsetOf = func(i int) int { return i }
		}
		for _, p := range t.wordPieceOffsets(word) {
			if len(ids) >= seqLen-1 {
				truncated = true
				break words
			}
			ids = append(ids, p.id)
			pieces = append(pieces, Piece{
				Surface: p.surface,
				Start:   w.Start + offsetOf(p.start),
				End:     w.Start + offsetOf(p.end),
			})
		}
	}

	ids = append(ids, t.sepID)
	pieces = append(pieces, Piece{Surface: "[SEP]", Start: -1, End: -1})

	mask := make([]int64, seqLen)
	for i := range ids {
		mask[i] = 1
	}
	for len(ids) < seqLen {
		ids = append(ids, t.padID)
		pieces = append(pieces, specialPiece)
	}

	return Encoding{IDs: ids, Mask: mask, Pieces: pieces, Truncated: truncated}
}

type wordPieceOffset struct {
	id      int64
	surface string
	start   int
	end     int
}

func (t *WordPieceTokenizer) wordPieceOffsets(token string) []wordPieceOffset {
	if id, ok := t.vocab[token]; ok {
		return []wordPieceOffset{{id: id, surface: token, start: 0, end: len(token)}}
	}

	var pieces []wordPieceOffset
	start := 0
	for start < len(token) {
		end := len(token)
		found := false
		for end > start {
			if end < len(token) && !utf8.RuneStart(token[end]) {
				end--
				continue
			}
			sub := token[start:end]
			if start > 0 {
				sub = t.continuation + sub
			}
			if id, ok := t.vocab[sub]; ok {
				pieces = append(pieces, wordPieceOffset{id: id, surface: sub, start: start, end: end})
				start = end
				found = true
				break
			}
			end--
		}
		if !found {
			return []wordPieceOffset{{id: t.unkID, surface: "[UNK]", start: 0, end: len(token)}}
		}
	}
	return pieces
}

type wordSpan struct {
	Text  string
	Start int
	End   int
}

// splitWordsWithOffsets splits on whitespace and isolates punctuation, the
// way BERT pre-tokenization does.
func splitWordsWithOffsets(text string) []wordSpan {
	if text == "" {
		return nil
	}
	var spans []wordSpan
	start := -1
	flush := func(end int) {
		if start >= 0 {
			spans = append(spans, wordSpan{Text: text[start:end], Start: start, End: end})
			start = -1
		}
	}
	for idx, r := range text {
		switch {
		case unicode.IsSpace(r) || unicode.IsControl(r):
			flush(idx)
		case isPunct(r):
			flush(idx)
			end := idx + utf8.RuneLen(r)
			spans = append(spans, wordSpan{Text: text[idx:end], Start: idx, End: end})
		default:
			if start < 0 {
				start = idx
			}
		}
	}
	flush(len(text))
	return spans
}

func isPunct(r rune) bool {
	if (r >= 33 && r <= 47) || (r >= 58 && r <= 64) || (r >= 91 && r <= 96) || (r >= 123 && r <= 126) {
		return true
	}
	return unicode.IsPunct(r)
}

// lowerWithOffsets lower-cases s and returns a mapping from byte positions
// in the result back to byte positions in s.
func lowerWithOffsets(s string) (string, func(int) int) {
	var b strings.Builder
	b.Grow(len(s))
	origin := make([]int, 0, len(s)+1)
	for i, r := range s {
		before := b.Len()
		b.WriteRune(unicode.ToLower(r))
		for j := before; j < b.Len(); j++ {
			origin = append(origin, i)
		}
	}
	origin = append(origin, len(s))
	return b.String(), func(pos int) int {
		if pos < 0 {
			return 0
		}
		if pos >= len(origin) {
			return len(s)
		}
		return origin[pos]
	}
}
