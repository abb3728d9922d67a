package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options controls how the root logger is built
type Options struct {
	// Level is one of debug, info, warn, error. Unknown values fall back to info.
	Level string `mapstructure:"level"`
	// Format is "json" (default) or "console"
	Format string `mapstructure:"format"`
	// Output is "stdout" (default), "stderr" or a file path
	Output string `mapstructure:"output"`
}

// New 创建一个 JSON 格式、输出到 stdout 的 zap logger
// level: 日志级别 (debug, info, warn, error)
func New(level string) (*zap.Logger, error) {
	return Build(Options{Level: level})
}

// Build 根据 Options 创建 zap logger
func Build(opts Options) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(ParseLevel(opts.Level))

	switch strings.ToLower(opts.Format) {
	case "", "json":
	case "console":
		config.Encoding = "console"
	default:
		return nil, fmt.Errorf("unsupported log format %q", opts.Format)
	}

	output := opts.Output
	if output == "" {
		output = "stdout"
	}
	config.OutputPaths = []string{output}
	config.ErrorOutputPaths = []string{"stderr"}

	// 自定义时间格式
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}

// ParseLevel 解析日志级别，无法识别时返回 info
func ParseLevel(level string) zapcore.Level {
	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl > zapcore.ErrorLevel {
		return zapcore.InfoLevel
	}
	return lvl
}

// WithCallerSkip 为现有的 logger 添加 caller skip
func WithCallerSkip(logger *zap.Logger, skip int) *zap.Logger {
	if logger == nil || skip <= 0 {
		return logger
	}
	return logger.WithOptions(zap.AddCallerSkip(skip))
}
