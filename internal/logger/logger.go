// Package logger provides structured logging for goapidiscovery using zap.
package logger

import (
	"fmt"
	"net/url"
	"os"
	"sort"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dbsmedya/goapidiscovery/internal/config"
	"github.com/dbsmedya/goapidiscovery/internal/types"
)

// Logger wraps zap.SugaredLogger with discovery context methods.
type Logger struct {
	*zap.SugaredLogger
	base *zap.Logger
}

// New creates a new Logger from configuration. Logs go to stderr unless
// configured otherwise; stdout carries command output.
func New(cfg *config.LoggingConfig) (*Logger, error) {
	writer, err := buildWriter(cfg.Output)
	if err != nil {
		return nil, err
	}
	core := zapcore.NewCore(buildEncoder(cfg.Format), writer, parseLevel(cfg.Level))
	return newWithCore(core), nil
}

func newWithCore(core zapcore.Core) *Logger {
	base := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return &Logger{SugaredLogger: base.Sugar(), base: base}
}

// NewDefault creates a Logger with default settings (info level, text format, stderr).
func NewDefault() *Logger {
	logger, _ := New(&config.LoggingConfig{Level: "info", Format: "text", Output: "stderr"})
	return logger
}

// NewNop returns a Logger that discards everything.
func NewNop() *Logger {
	base := zap.NewNop()
	return &Logger{SugaredLogger: base.Sugar(), base: base}
}

// parseLevel converts string level to zapcore.Level.
func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// buildEncoder creates the appropriate encoder based on format.
func buildEncoder(format string) zapcore.Encoder {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	if format == "json" {
		return zapcore.NewJSONEncoder(encoderConfig)
	}

	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zapcore.NewConsoleEncoder(encoderConfig)
}

// buildWriter resolves the configured output. Anything other than stdout or
// stderr is a file path opened for append.
func buildWriter(output string) (zapcore.WriteSyncer, error) {
	switch output {
	case "stderr", "":
		return zapcore.Lock(os.Stderr), nil
	case "stdout":
		return zapcore.Lock(os.Stdout), nil
	}

	file, err := os.OpenFile(output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", output, err)
	}
	return zapcore.AddSync(file), nil
}

func (l *Logger) with(args ...interface{}) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(args...), base: l.base}
}

// WithScope returns a Logger tagged with a state scope ("servicenow/now/table/v1").
func (l *Logger) WithScope(scope string) *Logger {
	return l.with("scope", scope)
}

// WithComponent returns a Logger tagged with the emitting component.
func (l *Logger) WithComponent(name string) *Logger {
	return l.with("component", name)
}

// WithTable returns a Logger with table context.
func (l *Logger) WithTable(tableName string) *Logger {
	return l.with("table", tableName)
}

// WithTarget returns a Logger tagged with a catalog entry. Empty parts are
// omitted.
func (l *Logger) WithTarget(entry types.CatalogEntry) *Logger {
	var args []interface{}
	for _, kv := range [][2]string{
		{"namespace", entry.Namespace},
		{"api", entry.API},
		{"version", entry.Version},
	} {
		if kv[1] != "" {
			args = append(args, kv[0], kv[1])
		}
	}
	return l.with(args...)
}

// WithInstance returns a Logger tagged with the instance URL. Userinfo and
// query are stripped so credentials never reach the log.
func (l *Logger) WithInstance(baseURL string) *Logger {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return l.with("instance", "<invalid>")
	}
	u.User = nil
	u.RawQuery = ""
	u.Fragment = ""
	return l.with("instance", u.String())
}

// WithFields returns a Logger with additional fields, added in key order.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]interface{}, 0, len(fields)*2)
	for _, k := range keys {
		args = append(args, k, fields[k])
	}
	return l.with(args...)
}

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error {
	return l.base.Sync()
}
