package processors

import (
	"time"

	"chatstream/internal/core"
	"go.uber.org/zap"
)

// RequestLogger 是一个记录请求日志的处理器
type RequestLogger struct {
	name     string
	priority int
}

// NewRequestLogger 创建一个新的请求日志处理器
func NewRequestLogger() *RequestLogger {
	return &RequestLogger{
		name:     "request-logger",
		priority: -100, // 必须是第一个执行
	}
}

// Name 返回处理器名称
func (r *RequestLogger) Name() string {
	return r.name
}

// Priority 返回处理器优先级
func (r *RequestLogger) Priority() int {
	return r.priority
}

// OnRequest 记录请求开始
func (r *RequestLogger) OnRequest(gen *core.Generation, req *core.ChatRequest) error {
	// generation_id 已经在创建 gen.Log 时通过 With() 注入
	gen.Log.Info("Request Started",
		zap.String("provider", string(gen.Kind)),
		zap.String("model", req.Model),
		zap.Int("messages", len(req.Messages)),
		zap.Bool("stream", req.Stream),
	)
	return nil
}

// OnResponse 记录非流式请求完成
func (r *RequestLogger) OnResponse(gen *core.Generation, resp *core.ChatResponse) error {
	finish := ""
	if len(resp.Choices) > 0 {
		finish = resp.Choices[0].FinishReason
	}

	// zap.Duration() 会自动格式化为带有单位的字符串
	gen.Log.Info("Request Finished",
		zap.Duration("latency", time.Since(gen.StartTime)),
		zap.String("finish_reason", finish),
		zap.Int("content_length", len(resp.Text())),
	)
	return nil
}
