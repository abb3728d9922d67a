package providers

import (
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"chatstream/internal/core"
	"chatstream/internal/core/engine"
	"chatstream/internal/core/processors"
	"chatstream/internal/core/security"
	"chatstream/internal/pkg/logger"
)

// New creates the adapter for cfg.Kind
func New(cfg engine.ProviderConfig, log *logger.Logger) (core.Provider, error) {
	switch kind := core.ProviderKind(cfg.Kind); kind {
	case core.KindOpenAI, core.KindDeepSeek:
		return NewOpenAIProvider(kind, cfg, log), nil
	case core.KindAnthropic:
		return NewAnthropicProvider(cfg, log), nil
	case core.KindGemini:
		return NewGeminiProvider(cfg, log), nil
	case core.KindRelay:
		return NewRelayProvider(cfg, log), nil
	default:
		return nil, &core.ConfigError{Kind: kind, Reason: fmt.Sprintf("unsupported provider kind %q", cfg.Kind)}
	}
}

// NewDispatcher registers one adapter per configured provider together with
// its rate limit and the built-in processors
func NewDispatcher(cfg *engine.EngineConfig, credentials core.CredentialResolver, log *logger.Logger) (*core.Dispatcher, error) {
	if log == nil {
		log = logger.NewLogger(nil)
	}

	d := core.NewDispatcher(credentials, log.Zap())
	for _, pc := range cfg.Providers {
		p, err := New(pc, log)
		if err != nil {
			return nil, err
		}
		d.Register(p)
		if pc.RateLimit > 0 {
			d.SetRateLimit(p.Kind(), rate.Limit(pc.RateLimit), pc.Burst)
		}
		log.Debug("provider registered",
			zap.String("provider", pc.Kind),
			zap.Bool("streaming", p.Capabilities().Streaming),
			zap.Float64("rate_limit", pc.RateLimit),
		)
	}

	d.Use(processors.NewRequestLogger())
	d.Use(processors.NewEmptyContentFilter())

	if cfg.RedactSecrets {
		scanner := security.NewScanner()
		for _, rule := range cfg.RedactRules {
			if err := scanner.AddRule(rule.Name, rule.Pattern, rule.Replacement); err != nil {
				return nil, fmt.Errorf("invalid redact rule: %w", err)
			}
		}
		d.Use(processors.NewSecretRedactor(scanner))
	}
	return d, nil
}
