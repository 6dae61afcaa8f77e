package provider

import (
	"strings"

	"github.com/porterhq/porter/internal/config"
	"go.uber.org/zap"
)

// Registry holds the configured provider adapters. Construction is explicit
// so tests can substitute fake credentials or adapters freely.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds adapters for every provider with usable credentials.
func NewRegistry(cfg config.Config, log *zap.Logger) *Registry {
	adapters := make(map[string]Adapter)

	for _, name := range Names() {
		creds, ok := cfg.Providers[name]
		if !ok || !creds.Configured() {
			log.Info("oauth provider not configured", zap.String("provider", name))
			continue
		}

		switch name {
		case Google:
			adapters[name] = NewGoogle(creds, cfg.GoogleAccessTokenTTL, log)
		case Microsoft:
			adapters[name] = NewMicrosoft(creds, log)
		case Notion:
			adapters[name] = NewNotion(creds, log)
		case YouTube:
			adapters[name] = NewYouTube(creds, cfg.GoogleAccessTokenTTL, log)
		}
		log.Info("oauth provider configured", zap.String("provider", name))
	}

	return &Registry{adapters: adapters}
}

// NewRegistryWithAdapters wires explicit adapters, used by tests.
func NewRegistryWithAdapters(adapters map[string]Adapter) *Registry {
	if adapters == nil {
		adapters = make(map[string]Adapter)
	}
	return &Registry{adapters: adapters}
}

// Resolve returns the adapter for name. ErrUnsupported for names outside the
// closed set; ErrNotConfigured when the provider exists but has no credentials.
func (r *Registry) Resolve(name string) (Adapter, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if !Known(name) {
		return nil, ErrUnsupported
	}
	adapter, ok := r.adapters[name]
	if !ok {
		return nil, ErrNotConfigured
	}
	return adapter, nil
}

// Configured lists the providers with usable adapters.
func (r *Registry) Configured() []string {
	names := make([]string, 0, len(r.adapters))
	for _, name := range Names() {
		if _, ok := r.adapters[name]; ok {
			names = append(names, name)
		}
	}
	return names
}
