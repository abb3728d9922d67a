package logger

import (
	"go.uber.org/zap"
)

// Logger 包装 zap.Logger，日志方法的 caller 指向调用方而不是本包
type Logger struct {
	*zap.Logger
}

// NewLogger 创建一个新的扩展 logger，base 为 nil 时返回 no-op logger
func NewLogger(base *zap.Logger) *Logger {
	if base == nil {
		base = zap.NewNop()
	}
	return &Logger{Logger: base}
}

// Skip 返回一个新的 Logger，跳过指定层数的调用栈
func (l *Logger) Skip(skip int) *Logger {
	if skip <= 0 {
		return l
	}
	return &Logger{Logger: WithCallerSkip(l.Logger, skip)}
}

// Zap 返回底层的 zap.Logger，用于只接受 *zap.Logger 的组件
func (l *Logger) Zap() *zap.Logger {
	return l.Logger
}

func (l *Logger) Debug(msg string, fields ...zap.Field) {
	l.Logger.WithOptions(zap.AddCallerSkip(1)).Debug(msg, fields...)
}

func (l *Logger) Info(msg string, fields ...zap.Field) {
	l.Logger.WithOptions(zap.AddCallerSkip(1)).Info(msg, fields...)
}

func (l *Logger) Warn(msg string, fields ...zap.Field) {
	l.Logger.WithOptions(zap.AddCallerSkip(1)).Warn(msg, fields...)
}

func (l *Logger) Error(msg string, fields ...zap.Field) {
	l.Logger.WithOptions(zap.AddCallerSkip(1)).Error(msg, fields...)
}

// With adds fields to the logger and returns a new Logger
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...)}
}

// Named adds a name to the logger and returns a new Logger
func (l *Logger) Named(name string) *Logger {
	return &Logger{Logger: l.Logger.Named(name)}
}
