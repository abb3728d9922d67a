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
	geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	geminiPath    = "/models/{model}:generateContent"
	geminiRole    = "model"
)

// GeminiProvider talks to the Gemini generateContent API. It does not stream.
type GeminiProvider struct {
	base
}

type geminiRequest struct {
	Contents          []geminiContent  `json:"contents"`
	SystemInstruction *geminiContent   `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGeneration `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGeneration struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

// NewGeminiProvider creates the Gemini adapter. The key travels as a query parameter.
func NewGeminiProvider(cfg engine.ProviderConfig, log *logger.Logger) *GeminiProvider {
	auth := authDefaults{strategy: engine.AuthStrategyQuery, name: "key"}
	return &GeminiProvider{base: newBase(core.KindGemini, cfg, auth, log)}
}

// Capabilities reports non-streaming only
func (p *GeminiProvider) Capabilities() core.Capabilities {
	return core.Capabilities{
		NonStreaming: true,
		Anonymous:    p.cfg.Anonymous,
		RejectsEmpty: true,
	}
}

// Send sends a generateContent request. The stream flag is ignored: the
// result always holds a complete response.
func (p *GeminiProvider) Send(ctx context.Context, req *core.ChatRequest, apiKey string) (*core.Result, error) {
	model := p.model(req)
	if model == "" {
		return nil, &core.ConfigError{Kind: core.KindGemini, Reason: "no model configured"}
	}
	endpoint, err := p.endpoint(geminiBaseURL, geminiPath, model, apiKey)
	if err != nil {
		return nil, err
	}

	body, err := p.encode(toGeminiRequest(req, p.cfg.MaxTokens))
	if err != nil {
		return nil, err
	}

	respBody, err := p.postJSON(ctx, endpoint, body, p.headers(apiKey, false, nil))
	if err != nil {
		return nil, err
	}
	resp, err := parseGeminiResponse(respBody)
	if err != nil {
		return nil, err
	}
	if resp.Model == "" {
		resp.Model = model
	}
	return &core.Result{Response: resp}, nil
}

func toGeminiRequest(req *core.ChatRequest, maxTokens int) geminiRequest {
	out := geminiRequest{
		Contents: make([]geminiContent, 0, len(req.Messages)),
		GenerationConfig: geminiGeneration{
			Temperature:     req.Temperature,
			MaxOutputTokens: maxTokens,
		},
	}

	var system []geminiPart
	for _, m := range req.Messages {
		switch m.Role {
		case core.RoleSystem:
			system = append(system, geminiPart{Text: m.Content})
		case core.RoleAssistant:
			out.Contents = append(out.Contents, geminiContent{Role: geminiRole, Parts: []geminiPart{{Text: m.Content}}})
		default:
			out.Contents = append(out.Contents, geminiContent{Role: core.RoleUser, Parts: []geminiPart{{Text: m.Content}}})
		}
	}
	if len(system) > 0 {
		out.SystemInstruction = &geminiContent{Parts: system}
	}
	return out
}

// parseGeminiResponse decodes {"candidates":[{"content":{"parts":[{"text":...}]},"finishReason":...}]}
func parseGeminiResponse(body []byte) (*core.ChatResponse, error) {
	if !gjson.ValidBytes(body) {
		return nil, &core.ShapeError{Kind: core.KindGemini, Reason: "response is not valid JSON"}
	}
	root := gjson.ParseBytes(body)

	candidates := root.Get("candidates").Array()
	if len(candidates) == 0 {
		if reason := root.Get("promptFeedback.blockReason").String(); reason != "" {
			return nil, &core.ShapeError{Kind: core.KindGemini, Reason: "prompt blocked: " + reason}
		}
		return nil, &core.ShapeError{Kind: core.KindGemini, Reason: "missing candidates"}
	}

	resp := &core.ChatResponse{Model: root.Get("modelVersion").String()}
	for i, candidate := range candidates {
		var text strings.Builder
		for _, part := range candidate.Get("content.parts").Array() {
			text.WriteString(part.Get("text").String())
		}
		resp.Choices = append(resp.Choices, core.Choice{
			Index:        i,
			Message:      core.Message{Role: core.RoleAssistant, Content: text.String()},
			FinishReason: geminiFinishReason(candidate.Get("finishReason").String()),
		})
	}
	return resp, nil
}

func geminiFinishReason(reason string) string {
	switch reason {
	case "STOP":
		return core.FinishStop
	case "MAX_TOKENS":
		return core.FinishLength
	default:
		return strings.ToLower(reason)
	}
}
