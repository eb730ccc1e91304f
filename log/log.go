// Package log provides a thin structured-logging facade used across the
// whole module, backed by zerolog. It mirrors the small, level-based API the
// rest of the codebase is written against: Infof/Infow, Debugf/Debugw,
// Warnf/Warnw, Errorf/Errorw, Fatalf, plus Init and Level for bootstrapping
// and for the request-logging middleware in package api.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Log levels accepted by Init, mirroring zerolog's own names.
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
	LogLevelFatal = "fatal"
)

// panicOnInvalidChars makes Debugf/Infof/etc. panic when the formatted
// message contains non-ASCII bytes (>= 0x80). It exists only for tests; anyone
// shipping a handcrafted byte slice into a log line wants to know loudly.
var panicOnInvalidChars = strings.ToLower(os.Getenv("LOG_PANIC_ON_INVALID_CHARS")) == "true"

var (
	logMu       sync.Mutex
	logger      zerolog.Logger
	level       atomic.Value // string
	initialized atomic.Bool
)

// logTestWriterName is the sentinel output name tests use to redirect output
// at logTestWriter instead of stdout/stderr.
const logTestWriterName = "test"

// logTestWriter is swapped out by tests (e.g. to io.Discard for benchmarks).
var logTestWriter io.Writer = os.Stderr

func init() {
	level.Store(LogLevelInfo)
	Init(LogLevelInfo, "stderr", nil)
}

// Init (re)configures the global logger. output is one of "stdout",
// "stderr", "test" (writes to logTestWriter) or a file path. errorWriter, if
// non-nil, additionally receives a copy of every record; it is not filtered
// by level.
func Init(lvl, output string, errorWriter io.Writer) {
	logMu.Lock()
	defer logMu.Unlock()

	var w io.Writer
	switch output {
	case "stdout":
		w = os.Stdout
	case "stderr", "":
		w = os.Stderr
	case logTestWriterName:
		w = logTestWriter
	default:
		f, err := os.OpenFile(output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			w = os.Stderr
		} else {
			w = f
		}
	}
	if errorWriter != nil {
		w = zerolog.MultiLevelWriter(w, errorWriter)
	}

	zl := zerolog.New(w).With().Timestamp().Logger()
	zlvl, err := zerolog.ParseLevel(strings.ToLower(lvl))
	if err != nil {
		zlvl = zerolog.InfoLevel
	}
	logger = zl.Level(zlvl)
	level.Store(strings.ToLower(lvl))
	initialized.Store(true)
}

// Level returns the currently configured log level.
func Level() string {
	if v := level.Load(); v != nil {
		return v.(string)
	}
	return LogLevelInfo
}

func checkChars(s string) {
	if !panicOnInvalidChars {
		return
	}
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			panic(fmt.Sprintf("log message contains invalid (non-ASCII) byte at offset %d: %q", i, s))
		}
	}
}

// Debugf logs a formatted message at debug level.
func Debugf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	checkChars(msg)
	logger.Debug().Msg(msg)
}

// Infof logs a formatted message at info level.
func Infof(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	checkChars(msg)
	logger.Info().Msg(msg)
}

// Warnf logs a formatted message at warn level.
func Warnf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	checkChars(msg)
	logger.Warn().Msg(msg)
}

// Errorf logs a formatted message at error level.
func Errorf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	checkChars(msg)
	logger.Error().Msg(msg)
}

// Fatalf logs a formatted message at fatal level and exits the process.
func Fatalf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	checkChars(msg)
	logger.Fatal().Msg(msg)
}

// Warn logs err at warn level.
func Warn(err error) {
	logger.Warn().Msg(err.Error())
}

// Error logs err at error level.
func Error(err error) {
	logger.Error().Msg(err.Error())
}

func withFields(e *zerolog.Event, kv []any) *zerolog.Event {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kv[i])
		}
		e = e.Interface(key, kv[i+1])
	}
	return e
}

// Debugw logs msg at debug level with structured key/value pairs.
func Debugw(msg string, keyvals ...any) {
	checkChars(msg)
	withFields(logger.Debug(), keyvals).Msg(msg)
}

// Infow logs msg at info level with structured key/value pairs.
func Infow(msg string, keyvals ...any) {
	checkChars(msg)
	withFields(logger.Info(), keyvals).Msg(msg)
}

// Warnw logs msg at warn level with structured key/value pairs.
func Warnw(msg string, keyvals ...any) {
	checkChars(msg)
	withFields(logger.Warn(), keyvals).Msg(msg)
}

// Errorw logs err alongside msg and structured key/value pairs at error level.
func Errorw(err error, msg string, keyvals ...any) {
	checkChars(msg)
	e := logger.Error()
	if err != nil {
		e = e.Err(err)
	}
	withFields(e, keyvals).Msg(msg)
}
