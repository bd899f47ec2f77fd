package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds entityshield configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Render     RenderConfig     `yaml:"render"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Auth       AuthConfig       `yaml:"auth"`
	Audit      AuditConfig      `yaml:"audit"`
}

type ServerConfig struct {
	Addr                string        `yaml:"addr"`                   // HTTP listen address, e.g. ":8080"
	MaxTextChars        int           `yaml:"max_text_chars"`         // characters accepted per request
	MaxRequestBodyBytes int64         `yaml:"max_request_body_bytes"` // hard cap on the JSON body
	ReadHeaderTimeout   time.Duration `yaml:"read_header_timeout"`
	ReadTimeout         time.Duration `yaml:"read_timeout"`
	WriteTimeout        time.Duration `yaml:"write_timeout"`
	IdleTimeout         time.Duration `yaml:"idle_timeout"`
	MetricsEnabled      bool          `yaml:"metrics_enabled"` // expose Prometheus metrics on /metrics
}

type ClassifierConfig struct {
	Backend string `yaml:"backend"` // onnx | sidecar

	// onnx backend
	ModelDir     string `yaml:"model_dir"` // dir with model(.int8).onnx, config.json and tokenizer assets
	SeqLen       int    `yaml:"seq_len"`
	PoolSize     int    `yaml:"pool_size"`
	IntraThreads int    `yaml:"intra_threads"`
	InterThreads int    `yaml:"inter_threads"`

	// sidecar backend
	SidecarURL           string        `yaml:"sidecar_url"` // e.g. "http://ner-sidecar:8001"
	SidecarTimeout       time.Duration `yaml:"sidecar_timeout"`
	AllowPrivateNetworks bool          `yaml:"allow_private_networks"`

	// SubwordMarker selects how continuation pieces are stripped: wordpiece | sentencepiece | none | <literal marker>.
	SubwordMarker string `yaml:"subword_marker"`
}

type ColorConfig struct {
	Category string `yaml:"category"`
	Color    string `yaml:"color"`
}

type RenderConfig struct {
	DefaultColor string        `yaml:"default_color"`
	Colors       []ColorConfig `yaml:"colors"` // added to or overriding the built-in legend
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	Protocol    string `yaml:"protocol"` // grpc | http
	ServiceName string `yaml:"service_name"`
}

// AuthConfig lists API clients. With no clients the API is open.
type AuthConfig struct {
	Clients []ClientConfig `yaml:"clients"`
}

type ClientConfig struct {
	ID      string   `yaml:"id"`
	APIKeys []string `yaml:"api_keys"`
}

// AuditConfig controls per-request audit events. Events carry entity
// counts per category, never text.
type AuditConfig struct {
	Enabled              bool              `yaml:"enabled"`
	FilePath             string            `yaml:"file_path"` // JSONL
	WebhookURL           string            `yaml:"webhook_url"`
	WebhookHeaders       map[string]string `yaml:"webhook_headers"`
	WebhookTimeout       time.Duration     `yaml:"webhook_timeout"`
	AllowPrivateNetworks bool              `yaml:"allow_private_networks"`
	QueueSize            int               `yaml:"queue_size"`
	Workers              int               `yaml:"workers"`
}

const (
	BackendONNX    = "onnx"
	BackendSidecar = "sidecar"
)

// Load reads .env (if present), then the YAML file, then ENTITYSHIELD_*
// environment overrides. A missing file yields the default config.
func Load(path string) (*Config, error) {
	// Best-effort: a missing .env is normal.
	_ = godotenv.Load()

	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

// Dump renders cfg back to YAML.
func Dump(cfg *Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

func defaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.MaxTextChars <= 0 {
		cfg.Server.MaxTextChars = 2000
	}
	if cfg.Server.MaxRequestBodyBytes <= 0 {
		cfg.Server.MaxRequestBodyBytes = 64 * 1024
	}
	if cfg.Server.ReadHeaderTimeout <= 0 {
		cfg.Server.ReadHeaderTimeout = 5 * time.Second
	}
	if cfg.Server.ReadTimeout <= 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout <= 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Server.IdleTimeout <= 0 {
		cfg.Server.IdleTimeout = 60 * time.Second
	}

	cfg.Classifier.Backend = strings.ToLower(strings.TrimSpace(cfg.Classifier.Backend))
	if cfg.Classifier.Backend == "" {
		cfg.Classifier.Backend = BackendONNX
	}
	if cfg.Classifier.SeqLen <= 0 {
		cfg.Classifier.SeqLen = 512
	}
	if cfg.Classifier.PoolSize <= 0 {
		cfg.Classifier.PoolSize = 1
	}
	if cfg.Classifier.SidecarTimeout <= 0 {
		cfg.Classifier.SidecarTimeout = 10 * time.Second
	}
	if cfg.Classifier.SubwordMarker == "" {
		cfg.Classifier.SubwordMarker = "wordpiece"
	}

	if cfg.Render.DefaultColor == "" {
		cfg.Render.DefaultColor = "#E0E0E0"
	}

	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "http"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "entityshield"
	}

	if cfg.Audit.WebhookTimeout <= 0 {
		cfg.Audit.WebhookTimeout = 2 * time.Second
	}
	if cfg.Audit.QueueSize <= 0 {
		cfg.Audit.QueueSize = 1000
	}
	if cfg.Audit.Workers <= 0 {
		cfg.Audit.Workers = 1
	}
}

func applyEnv(cfg *Config) {
	if v := env("ENTITYSHIELD_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := env("ENTITYSHIELD_MAX_TEXT_CHARS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.MaxTextChars = n
		}
	}
	if v := env("ENTITYSHIELD_CLASSIFIER"); v != "" {
		cfg.Classifier.Backend = v
	}
	if v := env("ENTITYSHIELD_MODEL_DIR"); v != "" {
		cfg.Classifier.ModelDir = v
	}
	if v := env("ENTITYSHIELD_SIDECAR_URL"); v != "" {
		cfg.Classifier.SidecarURL = strings.TrimRight(v, "/")
	}
	if v := env("ENTITYSHIELD_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Classifier.PoolSize = n
		}
	}
	if v := env("ENTITYSHIELD_TELEMETRY"); v != "" {
		cfg.Telemetry.Enabled = v == "1" || strings.EqualFold(v, "true")
	}
	if v := env("ENTITYSHIELD_METRICS"); v != "" {
		cfg.Server.MetricsEnabled = v == "1" || strings.EqualFold(v, "true")
	}
	if v := env("ENTITYSHIELD_OTEL_ENDPOINT"); v != "" {
		cfg.Telemetry.Endpoint = v
	}
	if v := env("ENTITYSHIELD_AUDIT_FILE"); v != "" {
		cfg.Audit.Enabled = true
		cfg.Audit.FilePath = v
	}
	if v := env("ENTITYSHIELD_API_KEY"); v != "" {
		cfg.Auth.Clients = append(cfg.Auth.Clients, ClientConfig{ID: "env", APIKeys: []string{v}})
	}
}

func env(name string) string {
	return strings.TrimSpace(os.Getenv(name))
}
