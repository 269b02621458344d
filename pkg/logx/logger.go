package logx

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/panics"
)

// Record is one log call. It is built once and handed to every subscriber.
type Record struct {
	Time    time.Time
	Label   string
	Level   Level
	Message string
}

// Subscriber receives every record a Logger emits.
type Subscriber interface {
	Handle(l *Logger, r Record)
}

// SubscriberFunc adapts a plain function to Subscriber.
type SubscriberFunc func(l *Logger, r Record)

func (f SubscriberFunc) Handle(l *Logger, r Record) { f(l, r) }

// Options are the thresholds a Logger carries for its subscribers.
type Options struct {
	MinConsoleLevel Level
	MinFileLevel    Level
	// MaxFileSize is the rotation threshold in bytes. 0 disables rotation.
	MaxFileSize int64
}

// DefaultOptions matches the stock sink policy: info on the console,
// everything in the file, 10 MiB files.
func DefaultOptions() Options {
	return Options{
		MinConsoleLevel: LevelInfo,
		MinFileLevel:    LevelSilly,
		MaxFileSize:     10 << 20,
	}
}

// Logger dispatches records to its subscribers.
//
// It does no filtering and no I/O of its own. The thresholds are only read
// by subscribers. A nil *Logger is a valid no-op logger.
type Logger struct {
	label string

	minConsole  atomic.Int32
	minFile     atomic.Int32
	maxFileSize atomic.Int64

	mu   sync.RWMutex
	subs []Subscriber

	now func() time.Time
}

// New returns a Logger with no subscribers.
func New(label string, opt Options) *Logger {
	l := &Logger{label: label, now: time.Now}
	l.minConsole.Store(int32(opt.MinConsoleLevel.normalize()))
	l.minFile.Store(int32(opt.MinFileLevel.normalize()))
	l.maxFileSize.Store(opt.MaxFileSize)
	return l
}

// Nop returns a logger that has nowhere to write.
func Nop() *Logger { return New("", DefaultOptions()) }

func (l *Logger) Label() string {
	if l == nil {
		return ""
	}
	return l.label
}

// MinConsoleLevel of a nil logger is error, so nothing but errors passes.
func (l *Logger) MinConsoleLevel() Level {
	if l == nil {
		return LevelError
	}
	return Level(l.minConsole.Load())
}

func (l *Logger) MinFileLevel() Level {
	if l == nil {
		return LevelError
	}
	return Level(l.minFile.Load())
}

func (l *Logger) MaxFileSize() int64 {
	if l == nil {
		return 0
	}
	return l.maxFileSize.Load()
}

func (l *Logger) SetMinConsoleLevel(lv Level) {
	if l != nil {
		l.minConsole.Store(int32(lv.normalize()))
	}
}

func (l *Logger) SetMinFileLevel(lv Level) {
	if l != nil {
		l.minFile.Store(int32(lv.normalize()))
	}
}

func (l *Logger) SetMaxFileSize(n int64) {
	if l != nil {
		l.maxFileSize.Store(n)
	}
}

// Subscribe appends s to the subscriber list. Subscribers stay attached for
// the life of the Logger.
func (l *Logger) Subscribe(s Subscriber) {
	if l == nil || s == nil {
		return
	}
	l.mu.Lock()
	l.subs = append(l.subs, s)
	l.mu.Unlock()
}

// On subscribes a function that only cares about the record.
func (l *Logger) On(fn func(Record)) {
	if fn == nil {
		return
	}
	l.Subscribe(SubscriberFunc(func(_ *Logger, r Record) { fn(r) }))
}

// Log builds a record and broadcasts it synchronously. It never fails: a
// panicking subscriber is reported on stderr and the remaining subscribers
// still run.
func (l *Logger) Log(level Level, msg string) {
	if l == nil {
		return
	}
	r := Record{
		Time:    l.now(),
		Label:   l.label,
		Level:   level.normalize(),
		Message: msg,
	}

	l.mu.RLock()
	subs := l.subs
	l.mu.RUnlock()

	for _, s := range subs {
		var pc panics.Catcher
		pc.Try(func() { s.Handle(l, r) })
		if rec := pc.Recovered(); rec != nil {
			fmt.Fprintf(Stderr(), "logx: subscriber panicked on %q: %v\n", l.label, rec.Value)
		}
	}
}

func (l *Logger) Logf(level Level, format string, args ...any) {
	if l == nil {
		return
	}
	l.Log(level, fmt.Sprintf(format, args...))
}

func (l *Logger) Error(msg string)   { l.Log(LevelError, msg) }
func (l *Logger) Warn(msg string)    { l.Log(LevelWarn, msg) }
func (l *Logger) Info(msg string)    { l.Log(LevelInfo, msg) }
func (l *Logger) Verbose(msg string) { l.Log(LevelVerbose, msg) }
func (l *Logger) Debug(msg string)   { l.Log(LevelDebug, msg) }
func (l *Logger) Silly(msg string)   { l.Log(LevelSilly, msg) }

func (l *Logger) Errorf(format string, args ...any)   { l.Logf(LevelError, format, args...) }
func (l *Logger) Warnf(format string, args ...any)    { l.Logf(LevelWarn, format, args...) }
func (l *Logger) Infof(format string, args ...any)    { l.Logf(LevelInfo, format, args...) }
func (l *Logger) Verbosef(format string, args ...any) { l.Logf(LevelVerbose, format, args...) }
func (l *Logger) Debugf(format string, args ...any)   { l.Logf(LevelDebug, format, args...) }
func (l *Logger) Sillyf(format string, args ...any)   { l.Logf(LevelSilly, format, args...) }

// Stdout is the default console writer.
func Stdout() io.Writer { return os.Stdout }

// Stderr is where sinks report their own failures.
func Stderr() io.Writer { return os.Stderr }
