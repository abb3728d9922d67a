package providers

import (
	"context"
	"strings"

	"github.com/tidwall/gjson"

	"chatstream/internal/core"
	"chatstream/internal/core/engine"
	"chatstream/internal/pkg/logger"
)

const (
	anthropicBaseURL    = "https://api.anthropic.com"
	anthropicPath       = "/v1/messages"
	anthropicVersion    = "2023-06-01"
	anthropicMaxTokens  = 1024
	anthropicAuthHeader = "x-api-key"
)

// AnthropicProvider talks to the Anthropic Messages API
type AnthropicProvider struct {
	base
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	Stream      bool               `json:"stream,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NewAnthropicProvider creates the Anthropic adapter
func NewAnthropicProvider(cfg engine.ProviderConfig, log *logger.Logger) *AnthropicProvider {
	auth := authDefaults{strategy: engine.AuthStrategyHeader, name: anthropicAuthHeader}
	return &AnthropicProvider{base: newBase(core.KindAnthropic, cfg, auth, log)}
}

// Capabilities reports streaming support; empty messages are rejected upstream
func (p *AnthropicProvider) Capabilities() core.Capabilities {
	return core.Capabilities{
		Streaming:    true,
		NonStreaming: true,
		Anonymous:    p.cfg.Anonymous,
		RejectsEmpty: true,
	}
}

// Send sends a Messages API request
func (p *AnthropicProvider) Send(ctx context.Context, req *core.ChatRequest, apiKey string) (*core.Result, error) {
	model := p.model(req)
	endpoint, err := p.endpoint(anthropicBaseURL, anthropicPath, model, apiKey)
	if err != nil {
		return nil, err
	}

	envelope := toAnthropicRequest(req, model, p.cfg.MaxTokens)
	body, err := p.encode(envelope)
	if err != nil {
		return nil, err
	}

	header := p.headers(apiKey, req.Stream, map[string]string{"anthropic-version": anthropicVersion})
	if req.Stream {
		raw, err := p.postStream(ctx, endpoint, body, header)
		if err != nil {
			return nil, err
		}
		return &core.Result{Body: raw}, nil
	}

	respBody, err := p.postJSON(ctx, endpoint, body, header)
	if err != nil {
		return nil, err
	}
	resp, err := parseAnthropicResponse(respBody)
	if err != nil {
		return nil, err
	}
	return &core.Result{Response: resp}, nil
}

// toAnthropicRequest moves system turns into the top-level system field
func toAnthropicRequest(req *core.ChatRequest, model string, maxTokens int) anthropicRequest {
	if maxTokens <= 0 {
		maxTokens = anthropicMaxTokens
	}

	var system []string
	messages := make([]anthropicMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == core.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		messages = append(messages, anthropicMessage{Role: m.Role, Content: m.Content})
	}

	return anthropicRequest{
		Model:       model,
		System:      strings.Join(system, "\n\n"),
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		Stream:      req.Stream,
	}
}

// parseAnthropicResponse decodes {"content":[{"type":"text","text":...}],"stop_reason":...}
func parseAnthropicResponse(body []byte) (*core.ChatResponse, error) {
	if !gjson.ValidBytes(body) {
		return nil, &core.ShapeError{Kind: core.KindAnthropic, Reason: "response is not valid JSON"}
	}
	root := gjson.ParseBytes(body)

	content := root.Get("content")
	if !content.IsArray() {
		return nil, &core.ShapeError{Kind: core.KindAnthropic, Reason: "missing content blocks"}
	}

	var text strings.Builder
	for _, block := range content.Array() {
		if block.Get("type").Str == "text" {
			text.WriteString(block.Get("text").String())
		}
	}

	resp := core.NewTextResponse(root.Get("model").String(), text.String(), anthropicFinishReason(root.Get("stop_reason").String()))
	resp.ID = root.Get("id").String()
	return resp, nil
}

func anthropicFinishReason(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence":
		return core.FinishStop
	case "max_tokens":
		return core.FinishLength
	default:
		return reason
	}
}
