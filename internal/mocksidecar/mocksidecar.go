package mocksidecar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultPort    = 18001
	defaultDelayMS = 0
)

// StartMockSidecar launches a lightweight NER sidecar speaking the
// POST /classify protocol, backed by a small gazetteer tagger.
// If addr is empty, it listens on 127.0.0.1:MOCK_SIDECAR_PORT (default 18001).
// It returns a shutdown function and the base URL (e.g., http://127.0.0.1:18001).
func StartMockSidecar(addr string) (func(context.Context) error, string, error) {
	if strings.TrimSpace(addr) == "" {
		port := strings.TrimSpace(os.Getenv("MOCK_SIDECAR_PORT"))
		if port == "" {
			port = fmt.Sprintf("%d", defaultPort)
		}
		addr = "127.0.0.1:" + port
	}

	delay := defaultDelayMS
	if val := strings.TrimSpace(os.Getenv("MOCK_DELAY_MS")); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed >= 0 {
			delay = parsed
		}
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, "", fmt.Errorf("listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           Handler(delay),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("mock sidecar server error: %v", err)
		}
	}()

	shutdown := func(ctx context.Context) error {
		return srv.Shutdown(ctx)
	}

	baseURL := "http://" + ln.Addr().String()
	log.Printf("mock sidecar listening on %s (delay_ms=%d)", baseURL, delay)
	return shutdown, baseURL, nil
}

// Handler serves /classify and /healthz.
func Handler(delayMS int) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		p := r.URL.Path
		if len(p) > 1 {
			p = strings.TrimSuffix(p, "/")
		}

		switch {
		case r.Method == http.MethodPost && p == "/classify":
			writeClassify(w, r, delayMS)
		case r.Method == http.MethodGet && p == "/healthz":
			_, _ = fmt.Fprintln(w, "ok")
		default:
			writeNotFoundJSON(w)
		}
	})
	return mux
}

type classifyRequest struct {
	Text string `json:"text"`
}

// Token mirrors one entry of a Hugging Face "ner" pipeline result.
type Token struct {
	Entity string  `json:"entity"`
	Word   string  `json:"word"`
	Start  int     `json:"start"`
	End    int     `json:"end"`
	Score  float32 `json:"score"`
}

func writeClassify(w http.ResponseWriter, r *http.Request, delayMS int) {
	var req classifyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "invalid JSON body", "type": "invalid_request_error"},
		})
		return
	}
	if delayMS > 0 {
		time.Sleep(time.Duration(delayMS) * time.Millisecond)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"tokens": Tag(req.Text)})
}

func writeNotFoundJSON(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": "Not found",
			"type":    "invalid_request_error",
		},
	})
}
