// Package logger builds the zap logger every Heron process logs through.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Format selects the encoder.
type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

// Level parses a level name; unknown names fall back to info.
func Level(name string) zapcore.Level {
	switch strings.ToLower(name) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// ParseFormat parses a format name; unknown names fall back to console.
func ParseFormat(name string) Format {
	if strings.EqualFold(name, string(FormatJSON)) {
		return FormatJSON
	}
	return FormatConsole
}

// timeLayout is slog's text handler layout.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// nameEncoder renders the logger name as a "component:" prefix of the message.
func nameEncoder(name string, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(name + ":")
}

// New writes to stderr. Supervisors capture their Worker's stderr, so child logs end up in the
// parent's stream.
func New(level string, format Format) *zap.Logger {
	return NewWriter(os.Stderr, level, format)
}

// NewWriter builds a logger writing to w.
func NewWriter(w io.Writer, level string, format Format) *zap.Logger {
	cfg := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "component",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var enc zapcore.Encoder
	if format == FormatJSON {
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		cfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder
		enc = zapcore.NewJSONEncoder(cfg)
	} else {
		// time level component: message {fields}
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		cfg.EncodeTime = zapcore.TimeEncoderOfLayout(timeLayout)
		cfg.EncodeName = nameEncoder
		cfg.CallerKey = zapcore.OmitKey
		cfg.ConsoleSeparator = " "
		enc = zapcore.NewConsoleEncoder(cfg)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(w), zap.NewAtomicLevelAt(Level(level)))
	return zap.New(core, zap.AddCaller())
}

// ForProcess names the logger after the process role and tags it with a fresh session id.
func ForProcess(base *zap.Logger, component string) *zap.Logger {
	return base.Named(component).With(zap.String("session", uuid.NewString()))
}
