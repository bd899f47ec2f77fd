package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
)

var hexColorRe = regexp.MustCompile(`^#(?:[0-9A-Fa-f]{3}|[0-9A-Fa-f]{6})$`)

// Validate checks the loaded config for required fields and safe values.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	if strings.TrimSpace(cfg.Server.Addr) == "" {
		return errors.New("server.addr must be set")
	}
	if cfg.Server.MaxTextChars <= 0 {
		return errors.New("server.max_text_chars must be positive")
	}
	if cfg.Server.MaxRequestBodyBytes <= 0 {
		return errors.New("server.max_request_body_bytes must be positive")
	}

	if err := validateClassifierConfig(cfg.Classifier); err != nil {
		return err
	}

	if err := validateRenderConfig(cfg.Render); err != nil {
		return err
	}

	if err := validateTelemetryConfig(cfg.Telemetry); err != nil {
		return err
	}

	if err := validateAuthConfig(cfg.Auth); err != nil {
		return err
	}

	if err := validateAuditConfig(cfg.Audit); err != nil {
		return err
	}

	return nil
}

func validateClassifierConfig(c ClassifierConfig) error {
	switch strings.ToLower(strings.TrimSpace(c.Backend)) {
	case BackendONNX:
		if strings.TrimSpace(c.ModelDir) == "" {
			return errors.New("classifier.model_dir must be set for the onnx backend")
		}
		if c.SeqLen <= 2 {
			return fmt.Errorf("classifier.seq_len must be greater than 2, got %d", c.SeqLen)
		}
		if c.PoolSize <= 0 {
			return fmt.Errorf("classifier.pool_size must be positive, got %d", c.PoolSize)
		}
	case BackendSidecar:
		if strings.TrimSpace(c.SidecarURL) == "" {
			return errors.New("classifier.sidecar_url must be set for the sidecar backend")
		}
		u, err := url.Parse(c.SidecarURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return errors.New("classifier.sidecar_url is invalid")
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return errors.New("classifier.sidecar_url must be http or https")
		}
		if err := blockPrivateHost(u.Host, c.AllowPrivateNetworks); err != nil {
			return fmt.Errorf("classifier.sidecar_url blocked: %w", err)
		}
	default:
		return fmt.Errorf("classifier.backend must be onnx or sidecar, got %q", c.Backend)
	}
	return nil
}

func validateRenderConfig(r RenderConfig) error {
	if !hexColorRe.MatchString(r.DefaultColor) {
		return fmt.Errorf("render.default_color must be a hex color, got %q", r.DefaultColor)
	}
	for i, c := range r.Colors {
		if strings.TrimSpace(c.Category) == "" {
			return fmt.Errorf("render.colors[%d] missing category", i)
		}
		if !hexColorRe.MatchString(strings.TrimSpace(c.Color)) {
			return fmt.Errorf("render.colors[%d] (%s) must be a hex color, got %q", i, c.Category, c.Color)
		}
	}
	return nil
}

func validateTelemetryConfig(t TelemetryConfig) error {
	if !t.Enabled {
		return nil
	}
	if strings.TrimSpace(t.Endpoint) == "" {
		return errors.New("telemetry enabled but endpoint is empty")
	}
	if t.Protocol != "" {
		switch strings.ToLower(strings.TrimSpace(t.Protocol)) {
		case "grpc", "http":
		default:
			return fmt.Errorf("telemetry.protocol must be grpc or http, got %q", t.Protocol)
		}
	}
	return nil
}

func validateAuthConfig(a AuthConfig) error {
	seen := make(map[string]string)
	for i, c := range a.Clients {
		if strings.TrimSpace(c.ID) == "" {
			return fmt.Errorf("auth.clients[%d] missing id", i)
		}
		for _, key := range c.APIKeys {
			if strings.TrimSpace(key) == "" {
				continue
			}
			if other, ok := seen[key]; ok && other != c.ID {
				return fmt.Errorf("auth: api key assigned to both %q and %q", other, c.ID)
			}
			seen[key] = c.ID
		}
	}
	return nil
}

func validateAuditConfig(a AuditConfig) error {
	if !a.Enabled {
		return nil
	}
	if strings.TrimSpace(a.FilePath) == "" && strings.TrimSpace(a.WebhookURL) == "" {
		return errors.New("audit enabled but neither file_path nor webhook_url is set")
	}
	if a.WebhookURL != "" {
		u, err := url.Parse(a.WebhookURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return errors.New("audit.webhook_url is invalid")
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return errors.New("audit.webhook_url must be http or https")
		}
		if err := blockPrivateHost(u.Host, a.AllowPrivateNetworks); err != nil {
			return fmt.Errorf("audit.webhook_url blocked: %w", err)
		}
	}
	return nil
}

func blockPrivateHost(hostport string, allowPrivate bool) error {
	if allowPrivate {
		return nil
	}
	host := hostport
	if strings.Contains(hostport, "]") || strings.Contains(hostport, ":") {
		h, _, err := net.SplitHostPort(hostport)
		if err == nil {
			host = h
		}
	}
	if strings.EqualFold(strings.TrimSpace(host), "localhost") {
		return errors.New("private network host localhost blocked for SSRF safety")
	}

	if ip := net.ParseIP(host); ip != nil && isPrivateIP(ip) {
		return fmt.Errorf("private network IP %s blocked for SSRF safety", ip.String())
	}
	return nil
}

func isPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast()
}
