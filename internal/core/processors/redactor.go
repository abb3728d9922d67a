package processors

import (
	"go.uber.org/zap"

	"chatstream/internal/core"
	"chatstream/internal/core/security"
)

// SecretRedactor 在请求发往上游之前清理消息中的凭据
type SecretRedactor struct {
	scanner *security.Scanner
}

// NewSecretRedactor creates a redactor backed by scanner; nil uses the built-in rules
func NewSecretRedactor(scanner *security.Scanner) *SecretRedactor {
	if scanner == nil {
		scanner = security.NewScanner()
	}
	return &SecretRedactor{scanner: scanner}
}

// Name returns the processor name
func (r *SecretRedactor) Name() string {
	return "secret-redactor"
}

// Priority returns the execution priority (high priority for security)
func (r *SecretRedactor) Priority() int {
	return 100
}

// OnRequest rewrites message contents in place. Only rule names are logged.
func (r *SecretRedactor) OnRequest(gen *core.Generation, req *core.ChatRequest) error {
	var hits []string
	for i := range req.Messages {
		cleaned, found := r.scanner.Sanitize(req.Messages[i].Content)
		if len(found) == 0 {
			continue
		}
		req.Messages[i].Content = cleaned
		hits = append(hits, found...)
	}
	if len(hits) > 0 {
		gen.Log.Warn("Secrets Detected and Redacted", zap.Strings("rules", hits))
	}
	return nil
}

// OnResponse is a passthrough
func (r *SecretRedactor) OnResponse(gen *core.Generation, resp *core.ChatResponse) error {
	return nil
}
