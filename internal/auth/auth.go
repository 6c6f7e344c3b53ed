package auth

import (
	"fmt"
	"strings"

	"github.com/clearline-sec/cjisaudit/internal/config"
)

// Auth holds the set of API keys allowed to call the analysis API.
// A nil Auth (built from an empty key list) allows every caller.
type Auth struct {
	keys map[string]struct{}
}

// NewFromConfig builds an Auth instance from the loaded config.
func NewFromConfig(cfg *config.Config) (*Auth, error) {
	if len(cfg.APIKeys) == 0 {
		return nil, nil
	}

	m := make(map[string]struct{}, len(cfg.APIKeys))
	for _, key := range cfg.APIKeys {
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("empty api key in config")
		}
		if _, exists := m[key]; exists {
			return nil, fmt.Errorf("duplicate api key in config")
		}
		m[key] = struct{}{}
	}

	return &Auth{keys: m}, nil
}

// Allow reports whether a caller presenting apiKey may use the API.
// An unconfigured gate admits everyone.
func (a *Auth) Allow(apiKey string) bool {
	if a == nil {
		return true
	}
	_, ok := a.keys[apiKey]
	return ok
}

// Required reports whether callers must present an API key at all.
func (a *Auth) Required() bool {
	return a != nil
}
