package logger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/term"
)

const (
	LogLevelError = 1
	LogLevelWarn  = 2
	LogLevelInfo  = 3
	LogLevelDebug = 4
)

var (
	globalLogLevel = LogLevelInfo
	logLevelMutex  sync.RWMutex

	tagFilter      []string
	tagFilterMutex sync.RWMutex

	// stdout carries the stdio MCP transport, so every log line goes to stderr.
	logFile      *os.File
	logFileMutex sync.Mutex
	logWriter    io.Writer = os.Stderr
)

// SetLogLevel sets the global log level
func SetLogLevel(level int) {
	logLevelMutex.Lock()
	defer logLevelMutex.Unlock()
	if level >= LogLevelError && level <= LogLevelDebug {
		globalLogLevel = level
		zerolog.SetGlobalLevel(convertLogLevel(level))
	}
}

// GetLogLevel returns the current global log level
func GetLogLevel() int {
	logLevelMutex.RLock()
	defer logLevelMutex.RUnlock()
	return globalLogLevel
}

// SetTagFilter sets the tag filter from a comma-separated string.
// Entries prefixed with "-" exclude a tag and its sub-tags.
func SetTagFilter(filterStr string) {
	tagFilterMutex.Lock()
	defer tagFilterMutex.Unlock()

	if filterStr == "" {
		tagFilter = nil
		return
	}

	tags := strings.Split(filterStr, ",")
	tagFilter = make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag != "" {
			tagFilter = append(tagFilter, tag)
		}
	}
}

func shouldLogTag(tag string) bool {
	tagFilterMutex.RLock()
	defer tagFilterMutex.RUnlock()

	if len(tagFilter) == 0 {
		return true
	}

	for _, filterTag := range tagFilter {
		if excludeTag, ok := strings.CutPrefix(filterTag, "-"); ok {
			if tag == excludeTag || strings.HasPrefix(tag, excludeTag+":") {
				return false
			}
		}
	}

	hasInclusion := false
	for _, filterTag := range tagFilter {
		if strings.HasPrefix(filterTag, "-") {
			continue
		}
		hasInclusion = true
		if tag == filterTag || strings.HasPrefix(tag, filterTag+":") {
			return true
		}
	}
	return !hasInclusion
}

// SetLogFile mirrors logs into a file under the temp dir and returns its path.
func SetLogFile() (string, error) {
	logFileMutex.Lock()
	defer logFileMutex.Unlock()

	logDir := filepath.Join(os.TempDir(), ".codemode", "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return "", err
	}

	suffix := make([]byte, 4)
	_, _ = rand.Read(suffix)
	filePath := filepath.Join(logDir, "codemode-"+hex.EncodeToString(suffix)+".log")

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", err
	}

	logFile = file
	logWriter = io.MultiWriter(os.Stderr, file)
	return filePath, nil
}

// CloseLogFile closes the log file if it's open
func CloseLogFile() error {
	logFileMutex.Lock()
	defer logFileMutex.Unlock()

	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	logWriter = os.Stderr
	return err
}

// Logger is a tagged, leveled logger backed by zerolog.
type Logger struct {
	tag      string
	logger   zerolog.Logger
	disabled bool
}

// New creates a new logger instance with a tag
func New(tag string) *Logger {
	if !shouldLogTag(tag) {
		return &Logger{tag: tag, logger: zerolog.Nop(), disabled: true}
	}

	logFileMutex.Lock()
	out := logWriter
	logFileMutex.Unlock()

	if isInteractive() {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "2006-01-02T15:04:05.000Z"}
	}

	return &Logger{
		tag:    tag,
		logger: zerolog.New(out).With().Str("tag", tag).Timestamp().Logger(),
	}
}

func isInteractive() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}

func convertLogLevel(level int) zerolog.Level {
	switch level {
	case LogLevelError:
		return zerolog.ErrorLevel
	case LogLevelWarn:
		return zerolog.WarnLevel
	case LogLevelDebug:
		return zerolog.DebugLevel
	default:
		return zerolog.InfoLevel
	}
}

func (l *Logger) enabled(level int) bool {
	if l.disabled {
		return false
	}
	return level <= GetLogLevel()
}

// Tag returns the logger tag.
func (l *Logger) Tag() string {
	return l.tag
}

// Error logs at ERROR level
func (l *Logger) Error(message string) {
	if l.enabled(LogLevelError) {
		l.logger.Error().Msg(message)
	}
}

// Errorf logs at ERROR level and returns the formatted error tagged with this
// logger's tag, so the top-level boundary can report it under the same tag.
func (l *Logger) Errorf(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	if l.enabled(LogLevelDebug) {
		l.logger.Debug().Msg(err.Error())
	}
	return WithTag(l.tag, err)
}

// Warn logs at WARN level
func (l *Logger) Warn(message string) {
	if l.enabled(LogLevelWarn) {
		l.logger.Warn().Msg(message)
	}
}

// Warnf logs at WARN level with formatting
func (l *Logger) Warnf(format string, args ...any) {
	if l.enabled(LogLevelWarn) {
		l.logger.Warn().Msgf(format, args...)
	}
}

// Info logs at INFO level
func (l *Logger) Info(message string) {
	if l.enabled(LogLevelInfo) {
		l.logger.Info().Msg(message)
	}
}

// Infof logs at INFO level with formatting
func (l *Logger) Infof(format string, args ...any) {
	if l.enabled(LogLevelInfo) {
		l.logger.Info().Msgf(format, args...)
	}
}

// InfofCtx logs at INFO level with attributes and the active trace/span ids.
func (l *Logger) InfofCtx(ctx context.Context, attrs map[string]any, format string, args ...any) {
	if !l.enabled(LogLevelInfo) {
		return
	}
	l.withContext(l.logger.Info(), ctx, attrs).Msgf(format, args...)
}

// WarnfCtx logs at WARN level with attributes and the active trace/span ids.
func (l *Logger) WarnfCtx(ctx context.Context, attrs map[string]any, format string, args ...any) {
	if !l.enabled(LogLevelWarn) {
		return
	}
	l.withContext(l.logger.Warn(), ctx, attrs).Msgf(format, args...)
}

// ErrorfCtx logs at ERROR level with attributes and the active trace/span ids.
func (l *Logger) ErrorfCtx(ctx context.Context, attrs map[string]any, format string, args ...any) {
	if !l.enabled(LogLevelError) {
		return
	}
	l.withContext(l.logger.Error(), ctx, attrs).Msgf(format, args...)
}

// Success logs at INFO level regardless of the configured level.
func (l *Logger) Success(message string) {
	if l.disabled {
		return
	}
	l.logger.WithLevel(zerolog.InfoLevel).Msg(message)
}

// Successf logs at INFO level regardless of the configured level.
func (l *Logger) Successf(format string, args ...any) {
	if l.disabled {
		return
	}
	l.logger.WithLevel(zerolog.InfoLevel).Msgf(format, args...)
}

// Debug logs at DEBUG level
func (l *Logger) Debug(message string) {
	if l.enabled(LogLevelDebug) {
		l.logger.Debug().Msg(message)
	}
}

// Debugf logs at DEBUG level with formatting
func (l *Logger) Debugf(format string, args ...any) {
	if l.enabled(LogLevelDebug) {
		l.logger.Debug().Msgf(format, args...)
	}
}

// PrintError logs an error under a title
func (l *Logger) PrintError(title string, err error) {
	if err == nil {
		return
	}
	l.Error(fmt.Sprintf("%s: %v", title, err))
}

func (l *Logger) withContext(event *zerolog.Event, ctx context.Context, attrs map[string]any) *zerolog.Event {
	if ctx != nil {
		if spanCtx := trace.SpanContextFromContext(ctx); spanCtx.IsValid() {
			event = event.Str("trace_id", spanCtx.TraceID().String()).Str("span_id", spanCtx.SpanID().String())
		}
	}
	keys := make([]string, 0, len(attrs))
	for key := range attrs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		event = event.Interface(key, RedactValue(key, attrs[key]))
	}
	return event
}

var secretKeySubstrings = []string{
	"password",
	"secret",
	"token",
	"api_key",
	"apikey",
	"authorization",
	"credential",
}

// RedactValue masks values for known-sensitive attribute keys.
func RedactValue(key string, value any) any {
	lower := strings.ToLower(key)
	for _, needle := range secretKeySubstrings {
		if strings.Contains(lower, needle) {
			return "[REDACTED]"
		}
	}
	return value
}
