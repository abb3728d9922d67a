package core

import (
	"errors"
	"strings"
)

// ProviderKind selects the adapter and response decoder for a request
type ProviderKind string

const (
	KindOpenAI    ProviderKind = "openai"
	KindDeepSeek  ProviderKind = "deepseek"
	KindAnthropic ProviderKind = "anthropic"
	KindGemini    ProviderKind = "gemini"
	KindRelay     ProviderKind = "relay"
)

// Role constants
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Finish reasons after normalization
const (
	FinishStop   = "stop"
	FinishLength = "length"
)

var (
	// ErrNoMessages is returned by Validate for an empty conversation
	ErrNoMessages = errors.New("request has no messages")
	// ErrNoUserMessage is returned by Validate when no user turn is present
	ErrNoUserMessage = errors.New("request has no user message")
)

// Message is one conversation turn
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the canonical request every adapter translates from
type ChatRequest struct {
	Messages    []Message `json:"messages"`
	Model       string    `json:"model"`
	Temperature float64   `json:"temperature"`
	Stream      bool      `json:"stream"`
}

// Validate checks the invariants required before dispatch
func (r *ChatRequest) Validate() error {
	if len(r.Messages) == 0 {
		return ErrNoMessages
	}
	for _, m := range r.Messages {
		if m.Role == RoleUser {
			return nil
		}
	}
	return ErrNoUserMessage
}

// WithoutEmpty returns a copy of the request without blank-content messages
func (r *ChatRequest) WithoutEmpty() *ChatRequest {
	out := *r
	out.Messages = make([]Message, 0, len(r.Messages))
	for _, m := range r.Messages {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		out.Messages = append(out.Messages, m)
	}
	return &out
}

// LastUserIndex returns the index of the last user message, or -1
func (r *ChatRequest) LastUserIndex() int {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == RoleUser {
			return i
		}
	}
	return -1
}

// Choice is one candidate completion
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// ChatResponse is the canonical non-streaming response
type ChatResponse struct {
	ID      string   `json:"id,omitempty"`
	Model   string   `json:"model,omitempty"`
	Choices []Choice `json:"choices"`
}

// Text returns the assistant text of the first choice
func (r *ChatResponse) Text() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// NewTextResponse builds a single-choice assistant response
func NewTextResponse(model, text, finishReason string) *ChatResponse {
	return &ChatResponse{
		Model: model,
		Choices: []Choice{{
			Index:        0,
			Message:      Message{Role: RoleAssistant, Content: text},
			FinishReason: finishReason,
		}},
	}
}
