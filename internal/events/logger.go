package events

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/TheMichaelB/safe/internal/config"
)

// LogLevel represents logging severity.
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// redacted replaces values of fields whose names suggest secret material.
const redacted = "[REDACTED]"

var sensitiveFields = []string{"password", "passphrase", "secret", "plaintext"}

// Logger provides structured logging.
type Logger struct {
	mu       *sync.Mutex
	level    LogLevel
	format   string
	output   io.Writer
	colored  bool
	fields   map[string]interface{}
	hostname string
}

// NewLogger creates a logger from config. Without a log file, entries go to
// stderr so command output on stdout stays machine readable.
func NewLogger(cfg *config.LogConfig) (*Logger, error) {
	level := parseLevel(cfg.Level)

	var output io.Writer = os.Stderr
	colored := cfg.Color && !color.NoColor
	if cfg.File != "" {
		file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		output = file
		colored = false
	}

	hostname, _ := os.Hostname()

	return &Logger{
		mu:       &sync.Mutex{},
		level:    level,
		format:   cfg.Format,
		output:   output,
		colored:  colored,
		fields:   make(map[string]interface{}),
		hostname: hostname,
	}, nil
}

// NewTestLogger creates a logger for testing.
func NewTestLogger(level LogLevel, format string, output io.Writer) *Logger {
	return &Logger{
		mu:       &sync.Mutex{},
		level:    level,
		format:   format,
		output:   output,
		fields:   make(map[string]interface{}),
		hostname: "test-host",
	}
}

// WithField returns a logger with an additional field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

// WithFields returns a logger with additional fields.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	newFields := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		newFields[k] = v
	}
	for k, v := range fields {
		if isSensitive(k) {
			v = redacted
		}
		newFields[k] = v
	}

	return &Logger{
		mu:       l.lock(),
		level:    l.level,
		format:   l.format,
		output:   l.output,
		colored:  l.colored,
		fields:   newFields,
		hostname: l.hostname,
	}
}

// WithError adds an error field.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.WithField("error", err.Error())
}

// Enabled reports whether messages at level would be written.
func (l *Logger) Enabled(level LogLevel) bool {
	return level >= l.level
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string) {
	l.log(DebugLevel, msg)
}

// Info logs at info level.
func (l *Logger) Info(msg string) {
	l.log(InfoLevel, msg)
}

// Warn logs at warn level.
func (l *Logger) Warn(msg string) {
	l.log(WarnLevel, msg)
}

// Error logs at error level.
func (l *Logger) Error(msg string) {
	l.log(ErrorLevel, msg)
}

// lock returns the mutex shared by a logger and its derived loggers so
// that entries written to the same output never interleave.
func (l *Logger) lock() *sync.Mutex {
	if l.mu == nil {
		l.mu = &sync.Mutex{}
	}
	return l.mu
}

// log writes a log entry.
func (l *Logger) log(level LogLevel, msg string) {
	if level < l.level || l.output == nil {
		return
	}

	entry := l.buildEntry(level, msg)

	mu := l.lock()
	mu.Lock()
	defer mu.Unlock()

	if l.format == "json" {
		l.writeJSON(entry)
	} else {
		l.writeText(entry)
	}
}

// buildEntry creates a log entry.
func (l *Logger) buildEntry(level LogLevel, msg string) map[string]interface{} {
	// Get caller info
	_, file, line, _ := runtime.Caller(3)
	if idx := strings.LastIndex(file, "/"); idx >= 0 {
		file = file[idx+1:]
	}

	entry := map[string]interface{}{
		"time":     time.Now().UTC().Format(time.RFC3339Nano),
		"level":    levelString(level),
		"msg":      msg,
		"hostname": l.hostname,
		"caller":   fmt.Sprintf("%s:%d", file, line),
	}

	// Add custom fields
	for k, v := range l.fields {
		entry[k] = v
	}

	return entry
}

// writeJSON outputs one JSON object per line.
func (l *Logger) writeJSON(entry map[string]interface{}) {
	for k, v := range entry {
		switch val := v.(type) {
		case string, bool, int, int32, int64, uint8, uint32, uint64, float64, nil:
		case error:
			entry[k] = val.Error()
		case fmt.Stringer:
			entry[k] = val.String()
		default:
			entry[k] = fmt.Sprintf("%v", val)
		}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	_, _ = l.output.Write(append(data, '\n'))
}

// writeText outputs human-readable format.
func (l *Logger) writeText(entry map[string]interface{}) {
	levelStr := strings.ToUpper(entry["level"].(string))

	label := "[" + levelStr + "]"
	if l.colored {
		label = levelColor(levelStr).Sprint(label)
	}

	// Format: TIME [LEVEL] Message key=value key=value
	fmt.Fprintf(l.output, "%s %s %s", entry["time"], label, entry["msg"])

	keys := make([]string, 0, len(entry))
	for k := range entry {
		if k == "time" || k == "level" || k == "msg" || k == "hostname" || k == "caller" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		fmt.Fprintf(l.output, " %s=%v", k, entry[k])
	}

	fmt.Fprintln(l.output)
}

// Helper functions

func levelColor(level string) *color.Color {
	var c *color.Color
	switch level {
	case "DEBUG":
		c = color.New(color.FgCyan)
	case "WARN":
		c = color.New(color.FgYellow)
	case "ERROR":
		c = color.New(color.FgRed)
	default:
		c = color.New(color.FgGreen)
	}
	c.EnableColor()
	return c
}

func isSensitive(field string) bool {
	lower := strings.ToLower(field)
	if lower == "key" || strings.HasSuffix(lower, "_key") {
		return true
	}
	for _, s := range sensitiveFields {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

func parseLevel(s string) LogLevel {
	switch strings.ToLower(s) {
	case "debug":
		return DebugLevel
	case "warn":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

func levelString(l LogLevel) string {
	switch l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	default:
		return "unknown"
	}
}
