package logx

import (
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"
)

// Config is the process-wide logging setup, built once at startup.
type Config struct {
	// Dir holds one file per logger. Empty disables file sinks.
	Dir          string
	ConsoleLevel Level
	FileLevel    Level
	MaxFileSize  int64
	Format       Format
	NoColor      bool
	// Console may be nil for the default stdout.
	Console io.Writer
}

// Service hands out loggers wired to the standard sinks and keeps track of
// them so levels can be changed and files closed in one place.
type Service struct {
	mu      sync.Mutex
	cfg     Config
	console *ConsoleSink
	loggers []*Logger
	files   []*FileSink
}

func NewService(cfg Config) *Service {
	return &Service{
		cfg:     cfg,
		console: NewConsoleSink(cfg.Console, cfg.NoColor),
	}
}

// Logger returns a new logger labelled label, writing to the console and to
// <Dir>/<file>. An empty file name skips the file sink.
func (s *Service) Logger(label, file string, rotation Rotation) *Logger {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := New(label, Options{
		MinConsoleLevel: s.cfg.ConsoleLevel,
		MinFileLevel:    s.cfg.FileLevel,
		MaxFileSize:     s.cfg.MaxFileSize,
	})
	l.Subscribe(s.console)

	dir := strings.TrimSpace(s.cfg.Dir)
	if dir != "" && strings.TrimSpace(file) != "" {
		fs := NewFileSink(filepath.Join(dir, file), rotation, s.cfg.Format)
		l.Subscribe(fs)
		s.files = append(s.files, fs)
	}
	s.loggers = append(s.loggers, l)
	return l
}

// SetConsoleLevel changes the console threshold of every logger created so
// far and of those created later.
func (s *Service) SetConsoleLevel(lv Level) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.ConsoleLevel = lv
	for _, l := range s.loggers {
		l.SetMinConsoleLevel(lv)
	}
}

func (s *Service) SetFileLevel(lv Level) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.FileLevel = lv
	for _, l := range s.loggers {
		l.SetMinFileLevel(lv)
	}
}

func (s *Service) SetMaxFileSize(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.MaxFileSize = n
	for _, l := range s.loggers {
		l.SetMaxFileSize(n)
	}
}

func (s *Service) ConsoleLevel() Level {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.ConsoleLevel
}

// Close closes every file sink. Loggers stay usable; their next file write
// reopens the file.
func (s *Service) Close() error {
	s.mu.Lock()
	files := append([]*FileSink(nil), s.files...)
	s.mu.Unlock()

	var errs []error
	for _, f := range files {
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
