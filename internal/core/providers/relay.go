package providers

import (
	"context"

	"chatstream/internal/core"
	"chatstream/internal/core/engine"
	"chatstream/internal/pkg/logger"
)

const relayPath = "/api/chat"

// RelayProvider talks to a custom backend that answers every request with
// a stream of {"chunk": "..."} lines
type RelayProvider struct {
	base
}

type relayRequest struct {
	Question    string         `json:"question"`
	History     []core.Message `json:"history"`
	Model       string         `json:"model,omitempty"`
	Temperature float64        `json:"temperature"`
}

// NewRelayProvider creates the relay adapter. base_url has no default.
func NewRelayProvider(cfg engine.ProviderConfig, log *logger.Logger) *RelayProvider {
	return &RelayProvider{base: newBase(core.KindRelay, cfg, authDefaults{strategy: engine.AuthStrategyBearer}, log)}
}

// Capabilities reports an always-streaming backend that accepts anonymous callers
func (p *RelayProvider) Capabilities() core.Capabilities {
	return core.Capabilities{
		Streaming: true,
		Anonymous: true,
	}
}

// Send posts the question and history. The body is returned even for
// non-streaming requests; the dispatcher drains it.
func (p *RelayProvider) Send(ctx context.Context, req *core.ChatRequest, apiKey string) (*core.Result, error) {
	endpoint, err := p.endpoint("", relayPath, p.model(req), apiKey)
	if err != nil {
		return nil, err
	}

	body, err := p.encode(toRelayRequest(req, p.model(req)))
	if err != nil {
		return nil, err
	}

	raw, err := p.postStream(ctx, endpoint, body, p.headers(apiKey, true, nil))
	if err != nil {
		return nil, err
	}
	return &core.Result{Body: raw}, nil
}

// toRelayRequest splits the conversation at the last user turn
func toRelayRequest(req *core.ChatRequest, model string) relayRequest {
	out := relayRequest{
		History:     []core.Message{},
		Model:       model,
		Temperature: req.Temperature,
	}
	last := req.LastUserIndex()
	if last < 0 {
		out.History = append(out.History, req.Messages...)
		return out
	}
	out.Question = req.Messages[last].Content
	out.History = append(out.History, req.Messages[:last]...)
	return out
}
