package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validSidecarConfig() *Config {
	cfg := defaultConfig()
	cfg.Classifier.Backend = BackendSidecar
	cfg.Classifier.SidecarURL = "https://ner.example.com"
	return cfg
}

func TestValidateFailures(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "missing server addr",
			mutate: func(c *Config) { c.Server.Addr = "" },
			want:   "server.addr",
		},
		{
			name:   "zero text cap",
			mutate: func(c *Config) { c.Server.MaxTextChars = 0 },
			want:   "max_text_chars",
		},
		{
			name:   "unknown backend",
			mutate: func(c *Config) { c.Classifier.Backend = "spacy" },
			want:   "classifier.backend",
		},
		{
			name: "onnx without model dir",
			mutate: func(c *Config) {
				c.Classifier.Backend = BackendONNX
				c.Classifier.ModelDir = ""
			},
			want: "model_dir",
		},
		{
			name:   "invalid sidecar url",
			mutate: func(c *Config) { c.Classifier.SidecarURL = "::://bad" },
			want:   "sidecar_url",
		},
		{
			name:   "sidecar url blocked private",
			mutate: func(c *Config) { c.Classifier.SidecarURL = "http://127.0.0.1:8001" },
			want:   "SSRF",
		},
		{
			name:   "bad default color",
			mutate: func(c *Config) { c.Render.DefaultColor = "grey" },
			want:   "default_color",
		},
		{
			name:   "short legend color",
			mutate: func(c *Config) { c.Render.Colors = []ColorConfig{{Category: "SUBALTERNO", Color: "#33FFF"}} },
			want:   "SUBALTERNO",
		},
		{
			name: "telemetry without endpoint",
			mutate: func(c *Config) {
				c.Telemetry.Enabled = true
				c.Telemetry.Endpoint = ""
			},
			want: "endpoint",
		},
		{
			name: "client without id",
			mutate: func(c *Config) {
				c.Auth.Clients = []ClientConfig{{APIKeys: []string{"k"}}}
			},
			want: "auth.clients[0]",
		},
		{
			name: "api key shared between clients",
			mutate: func(c *Config) {
				c.Auth.Clients = []ClientConfig{{ID: "a", APIKeys: []string{"k"}}, {ID: "b", APIKeys: []string{"k"}}}
			},
			want: "api key",
		},
		{
			name:   "audit without sink",
			mutate: func(c *Config) { c.Audit.Enabled = true },
			want:   "neither file_path nor webhook_url",
		},
		{
			name: "audit webhook blocked private",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.WebhookURL = "http://10.1.2.3/hook"
			},
			want: "audit.webhook_url blocked",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validSidecarConfig()
			tc.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Fatalf("expected error containing %q", tc.want)
			} else if !contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not contain %q", err.Error(), tc.want)
			}
		})
	}
}

func TestValidateOK(t *testing.T) {
	if err := Validate(validSidecarConfig()); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	loopbackOK := validSidecarConfig()
	loopbackOK.Classifier.SidecarURL = "http://127.0.0.1:8001"
	loopbackOK.Classifier.AllowPrivateNetworks = true
	if err := Validate(loopbackOK); err != nil {
		t.Fatalf("expected loopback allowed when allow_private_networks=true, got %v", err)
	}

	onnx := defaultConfig()
	onnx.Classifier.ModelDir = "/models/italian_ner_xxl"
	if err := Validate(onnx); err != nil {
		t.Fatalf("expected valid onnx config, got %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":8080" || cfg.Server.MaxTextChars != 2000 {
		t.Fatalf("unexpected server defaults %+v", cfg.Server)
	}
	if cfg.Classifier.Backend != BackendONNX || cfg.Classifier.SubwordMarker != "wordpiece" {
		t.Fatalf("unexpected classifier defaults %+v", cfg.Classifier)
	}
	if cfg.Render.DefaultColor != "#E0E0E0" {
		t.Fatalf("unexpected default color %s", cfg.Render.DefaultColor)
	}
}

func TestLoadYAMLAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entityshield.yaml")
	data := `
server:
  addr: ":9090"
  max_text_chars: 500
  read_timeout: 3s
classifier:
  backend: sidecar
  sidecar_url: https://ner.example.com
  sidecar_timeout: 2s
  subword_marker: sentencepiece
render:
  colors:
    - category: SQUADRA
      color: "#ABCDEF"
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("ENTITYSHIELD_MAX_TEXT_CHARS", "750")
	t.Setenv("ENTITYSHIELD_SIDECAR_URL", "https://ner2.example.com/")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Fatalf("expected addr :9090, got %s", cfg.Server.Addr)
	}
	if cfg.Server.MaxTextChars != 750 {
		t.Fatalf("expected env override 750, got %d", cfg.Server.MaxTextChars)
	}
	if cfg.Server.ReadTimeout != 3*time.Second {
		t.Fatalf("expected read timeout 3s, got %s", cfg.Server.ReadTimeout)
	}
	if cfg.Classifier.SidecarURL != "https://ner2.example.com" {
		t.Fatalf("expected env sidecar url, got %s", cfg.Classifier.SidecarURL)
	}
	if cfg.Classifier.SidecarTimeout != 2*time.Second || cfg.Classifier.SubwordMarker != "sentencepiece" {
		t.Fatalf("unexpected classifier config %+v", cfg.Classifier)
	}
	if len(cfg.Render.Colors) != 1 || cfg.Render.Colors[0].Category != "SQUADRA" {
		t.Fatalf("unexpected colors %+v", cfg.Render.Colors)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoadAuthAuditAndMetricsFromEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "entityshield.yaml")
	data := `
auth:
  clients:
    - id: backoffice
      api_keys: ["k1"]
audit:
  webhook_url: https://audit.example.com/events
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("ENTITYSHIELD_API_KEY", "k2")
	t.Setenv("ENTITYSHIELD_AUDIT_FILE", filepath.Join(dir, "audit.jsonl"))
	t.Setenv("ENTITYSHIELD_METRICS", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Auth.Clients) != 2 || cfg.Auth.Clients[1].ID != "env" || cfg.Auth.Clients[1].APIKeys[0] != "k2" {
		t.Fatalf("unexpected clients %+v", cfg.Auth.Clients)
	}
	if !cfg.Audit.Enabled || cfg.Audit.WebhookURL == "" || cfg.Audit.FilePath == "" {
		t.Fatalf("unexpected audit config %+v", cfg.Audit)
	}
	if cfg.Audit.QueueSize != 1000 || cfg.Audit.Workers != 1 || cfg.Audit.WebhookTimeout != 2*time.Second {
		t.Fatalf("unexpected audit defaults %+v", cfg.Audit)
	}
	if !cfg.Server.MetricsEnabled {
		t.Fatalf("expected metrics enabled from env")
	}
}

func contains(s, sub string) bool {
	return s != "" && sub != "" && strings.Contains(s, sub)
}
