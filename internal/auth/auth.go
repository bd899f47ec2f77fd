package auth

import (
	"crypto/subtle"
	"fmt"
	"strings"

	"github.com/straja-ai/entityshield/internal/config"
)

// Client is the runtime representation of an API client.
type Client struct {
	ID string
}

// Auth holds mappings from API keys to clients.
type Auth struct {
	apiKeyToClient map[string]Client
}

// NewFromConfig builds an Auth instance from the loaded config.
func NewFromConfig(cfg *config.Config) (*Auth, error) {
	m := make(map[string]Client)

	for _, c := range cfg.Auth.Clients {
		if c.ID == "" {
			return nil, fmt.Errorf("client with empty id in config")
		}
		for _, key := range c.APIKeys {
			key = strings.TrimSpace(key)
			if key == "" {
				continue
			}
			if existing, exists := m[key]; exists && existing.ID != c.ID {
				return nil, fmt.Errorf("api key is assigned to multiple clients (%s, %s)", existing.ID, c.ID)
			}
			m[key] = Client{ID: c.ID}
		}
	}

	return &Auth{
		apiKeyToClient: m,
	}, nil
}

// Enabled reports whether any API key is configured.
func (a *Auth) Enabled() bool {
	return a != nil && len(a.apiKeyToClient) > 0
}

// Lookup returns the client for a given API key, if any.
func (a *Auth) Lookup(apiKey string) (Client, bool) {
	if a == nil || apiKey == "" {
		return Client{}, false
	}
	for key, c := range a.apiKeyToClient {
		if subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) == 1 {
			return c, true
		}
	}
	return Client{}, false
}

// ParseBearerToken extracts the token from an "Authorization: Bearer" header.
func ParseBearerToken(h string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(h), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
