package processors

import (
	"chatstream/internal/core"
	"go.uber.org/zap"
)

// EmptyContentFilter 删除内容为空的消息，只对拒绝空消息的 provider 生效
type EmptyContentFilter struct{}

// NewEmptyContentFilter 创建空消息过滤器
func NewEmptyContentFilter() *EmptyContentFilter {
	return &EmptyContentFilter{}
}

// Name returns the processor name
func (f *EmptyContentFilter) Name() string {
	return "empty-content-filter"
}

// Priority runs after logging so the log shows what the caller sent
func (f *EmptyContentFilter) Priority() int {
	return 10
}

// OnRequest drops blank messages when the target adapter rejects them
func (f *EmptyContentFilter) OnRequest(gen *core.Generation, req *core.ChatRequest) error {
	if !gen.Capabilities.RejectsEmpty {
		return nil
	}
	before := len(req.Messages)
	*req = *req.WithoutEmpty()
	if dropped := before - len(req.Messages); dropped > 0 {
		gen.Log.Debug("dropped empty messages", zap.Int("count", dropped))
	}
	return nil
}

// OnResponse is a passthrough
func (f *EmptyContentFilter) OnResponse(gen *core.Generation, resp *core.ChatResponse) error {
	return nil
}
