package engine

import (
	"fmt"
	"regexp"
	"sync"
)

// Engine resolves which provider handles a request when the caller does not name one
type Engine struct {
	config   *EngineConfig
	matchers map[string]map[string]*regexp.Regexp // kind -> field -> compiled regex
	mu       sync.RWMutex
}

// NewEngine creates a routing engine with the given configuration
func NewEngine(config *EngineConfig) (*Engine, error) {
	e := &Engine{
		config:   config,
		matchers: make(map[string]map[string]*regexp.Regexp),
	}

	seen := make(map[string]bool)
	for _, p := range config.Providers {
		if p.Kind == "" {
			return nil, fmt.Errorf("provider entry without kind")
		}
		if seen[p.Kind] {
			return nil, fmt.Errorf("duplicate provider kind %s", p.Kind)
		}
		seen[p.Kind] = true

		// Pre-compile all regex matchers
		providerMatchers := make(map[string]*regexp.Regexp)
		for field, pattern := range p.Matcher {
			if field != "model" {
				return nil, fmt.Errorf("provider %s: unsupported matcher field %q", p.Kind, field)
			}
			re, err := regexp.Compile(pattern)
			if err != nil {
				return nil, fmt.Errorf("invalid regex pattern for provider %s, field %s: %w", p.Kind, field, err)
			}
			providerMatchers[field] = re
		}
		e.matchers[p.Kind] = providerMatchers
	}

	if config.DefaultProvider != "" && !seen[config.DefaultProvider] {
		return nil, fmt.Errorf("default provider %s is not configured", config.DefaultProvider)
	}

	return e, nil
}

// FindRoute returns the first provider, in configuration order, whose
// matchers all accept model. Providers without matchers never match.
// The default provider is returned when nothing matches; "" when unset.
func (e *Engine) FindRoute(model string) string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, p := range e.config.Providers {
		providerMatchers := e.matchers[p.Kind]
		if len(providerMatchers) == 0 {
			continue
		}

		allMatch := true
		for _, re := range providerMatchers {
			if !re.MatchString(model) {
				allMatch = false
				break
			}
		}
		if allMatch {
			return p.Kind
		}
	}

	return e.config.DefaultProvider
}

// Provider returns the configuration for kind
func (e *Engine) Provider(kind string) (*ProviderConfig, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for i := range e.config.Providers {
		if e.config.Providers[i].Kind == kind {
			return &e.config.Providers[i], true
		}
	}
	return nil, false
}

// GetConfig returns the engine configuration
func (e *Engine) GetConfig() *EngineConfig {
	return e.config
}
