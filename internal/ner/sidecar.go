package ner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/straja-ai/entityshield/internal/spans"
)

// Sidecar calls a token-classification sidecar (a Hugging Face "ner"
// pipeline behind HTTP) at POST <base>/classify.
type Sidecar struct {
	url  string
	http *http.Client
	// Python pipelines report code point offsets; they are converted to
	// byte offsets unless the sidecar already speaks bytes.
	byteOffsets bool
}

// SidecarOption configures a Sidecar.
type SidecarOption func(*Sidecar)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) SidecarOption {
	return func(s *Sidecar) {
		if c != nil {
			s.http = c
		}
	}
}

// WithByteOffsets declares that the sidecar already returns byte offsets.
func WithByteOffsets() SidecarOption {
	return func(s *Sidecar) { s.byteOffsets = true }
}

// NewSidecar creates a client for the given base URL
// (e.g. "http://ner-sidecar:8001").
func NewSidecar(baseURL string, timeout time.Duration, opts ...SidecarOption) *Sidecar {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	s := &Sidecar{
		url:  strings.TrimRight(baseURL, "/") + "/classify",
		http: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type classifyRequest struct {
	Text string `json:"text"`
}

type classifyResponse struct {
	Tokens []spans.TokenPrediction `json:"tokens"`
}

// Classify sends text to the sidecar and returns its token predictions.
// It is safe for concurrent use.
func (s *Sidecar) Classify(ctx context.Context, text string) ([]spans.TokenPrediction, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	body, err := json.Marshal(classifyRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("sidecar: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("sidecar: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sidecar: unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("sidecar: unexpected status %d", resp.StatusCode)
	}

	var result classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("sidecar: decode: %w", err)
	}
	if s.byteOffsets {
		return result.Tokens, nil
	}
	return runeOffsetsToBytes(text, result.Tokens), nil
}

// runeOffsetsToBytes rewrites code point offsets as byte offsets into text.
// Offsets past the end of text are mapped past len(text) so the aggregator
// still rejects them.
func runeOffsetsToBytes(text string, preds []spans.TokenPrediction) []spans.TokenPrediction {
	if len(preds) == 0 {
		return preds
	}
	byteAt := make([]int, 0, utf8.RuneCountInString(text)+1)
	for i := range text {
		byteAt = append(byteAt, i)
	}
	byteAt = append(byteAt, len(text))

	conv := func(r int) int {
		switch {
		case r < 0:
			return r
		case r < len(byteAt):
			return byteAt[r]
		default:
			return len(text) + (r - len(byteAt) + 1)
		}
	}
	out := make([]spans.TokenPrediction, len(preds))
	for i, p := range preds {
		p.Start = conv(p.Start)
		p.End = conv(p.End)
		out[i] = p
	}
	return out
}
