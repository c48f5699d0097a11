package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Format はログの出力形式を表す。
type Format string

const (
	// FormatJSON はJSON形式で出力する。
	FormatJSON Format = "json"
	// FormatConsole は人間が読みやすい形式で出力する。
	FormatConsole Format = "console"
)

// Config はロガーの設定。
type Config struct {
	// Level は出力する最小ログレベル（debug, info, warn, error）。
	Level string `yaml:"level"`
	// Format は出力形式。
	Format Format `yaml:"format"`
	// Service は全ログに付与するサービス名。
	Service string `yaml:"-"`
}

// New は設定に従ってzapロガーを生成する。
func New(cfg Config) (*zap.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	encoding := string(FormatJSON)
	if cfg.Format == FormatConsole {
		encoding = string(FormatConsole)
	}

	zcfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zcfg.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return nil, fmt.Errorf("ロガーの生成に失敗: %w", err)
	}
	if cfg.Service != "" {
		logger = logger.With(zap.String("service", cfg.Service))
	}
	return logger, nil
}

// parseLevel は文字列をzapのログレベルに変換する。空文字列はinfoとして扱う。
func parseLevel(s string) (zapcore.Level, error) {
	if s == "" {
		return zapcore.InfoLevel, nil
	}
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("不正なログレベル %q: %w", s, err)
	}
	return level, nil
}
