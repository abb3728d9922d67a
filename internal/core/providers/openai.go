package providers

import (
	"context"

	"github.com/tidwall/gjson"

	"chatstream/internal/core"
	"chatstream/internal/core/engine"
	"chatstream/internal/pkg/logger"
)

const (
	openAIBaseURL   = "https://api.openai.com/v1"
	deepSeekBaseURL = "https://api.deepseek.com/v1"
	chatPath        = "/chat/completions"
)

// OpenAIProvider talks to OpenAI and OpenAI-compatible chat completion APIs
type OpenAIProvider struct {
	base
	defaultBaseURL string
}

type openAIRequest struct {
	Model       string         `json:"model"`
	Messages    []core.Message `json:"messages"`
	Temperature float64        `json:"temperature"`
	Stream      bool           `json:"stream"`
}

// NewOpenAIProvider creates an OpenAI-compatible adapter registered under kind
func NewOpenAIProvider(kind core.ProviderKind, cfg engine.ProviderConfig, log *logger.Logger) *OpenAIProvider {
	defaultBaseURL := openAIBaseURL
	if kind == core.KindDeepSeek {
		defaultBaseURL = deepSeekBaseURL
	}
	return &OpenAIProvider{
		base:           newBase(kind, cfg, authDefaults{strategy: engine.AuthStrategyBearer}, log),
		defaultBaseURL: defaultBaseURL,
	}
}

// Capabilities reports native streaming and non-streaming support
func (p *OpenAIProvider) Capabilities() core.Capabilities {
	return core.Capabilities{
		Streaming:    true,
		NonStreaming: true,
		Anonymous:    p.cfg.Anonymous,
	}
}

// Send sends a chat completion request
func (p *OpenAIProvider) Send(ctx context.Context, req *core.ChatRequest, apiKey string) (*core.Result, error) {
	model := p.model(req)
	endpoint, err := p.endpoint(p.defaultBaseURL, chatPath, model, apiKey)
	if err != nil {
		return nil, err
	}

	body, err := p.encode(openAIRequest{
		Model:       model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		Stream:      req.Stream,
	})
	if err != nil {
		return nil, err
	}

	header := p.headers(apiKey, req.Stream, nil)
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
	resp, err := parseOpenAIResponse(p.kind, respBody)
	if err != nil {
		return nil, err
	}
	return &core.Result{Response: resp}, nil
}

// parseOpenAIResponse decodes {"choices":[{"message":{...},"finish_reason":...}]}
func parseOpenAIResponse(kind core.ProviderKind, body []byte) (*core.ChatResponse, error) {
	if !gjson.ValidBytes(body) {
		return nil, &core.ShapeError{Kind: kind, Reason: "response is not valid JSON"}
	}
	root := gjson.ParseBytes(body)

	choices := root.Get("choices")
	if !choices.IsArray() || len(choices.Array()) == 0 {
		return nil, &core.ShapeError{Kind: kind, Reason: "missing choices"}
	}

	resp := &core.ChatResponse{
		ID:    root.Get("id").String(),
		Model: root.Get("model").String(),
	}
	for i, choice := range choices.Array() {
		if !choice.Get("message").IsObject() {
			return nil, &core.ShapeError{Kind: kind, Reason: "choice without message"}
		}
		content := choice.Get("message.content")
		if content.Exists() && content.Type != gjson.String && content.Type != gjson.Null {
			return nil, &core.ShapeError{Kind: kind, Reason: "choice content is not a string"}
		}

		role := choice.Get("message.role").String()
		if role == "" {
			role = core.RoleAssistant
		}
		index := i
		if idx := choice.Get("index"); idx.Exists() {
			index = int(idx.Int())
		}
		resp.Choices = append(resp.Choices, core.Choice{
			Index:        index,
			Message:      core.Message{Role: role, Content: content.String()},
			FinishReason: choice.Get("finish_reason").String(),
		})
	}
	return resp, nil
}
