package logx

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Rotation selects what happens to a full log file.
type Rotation int

const (
	// RotateBackup renames the full file to <stem>.bak<ext>, replacing any
	// previous backup.
	RotateBackup Rotation = iota
	// RotateDelete removes the full file.
	RotateDelete
)

func ParseRotation(s string) Rotation {
	if strings.EqualFold(strings.TrimSpace(s), "delete") {
		return RotateDelete
	}
	return RotateBackup
}

func (r Rotation) String() string {
	if r == RotateDelete {
		return "delete"
	}
	return "backup"
}

// Format is the on-disk line format of a FileSink.
type Format int

const (
	// FormatText writes "<timestamp> [<label>] <level>: <message>".
	FormatText Format = iota
	// FormatJSON writes one zerolog JSON object per line.
	FormatJSON
)

func ParseFormat(s string) Format {
	if strings.EqualFold(strings.TrimSpace(s), "json") {
		return FormatJSON
	}
	return FormatText
}

// FileSink appends records at or above the logger's file threshold to one
// file. Before every write, a file at or above Logger.MaxFileSize is rotated.
type FileSink struct {
	path     string
	rotation Rotation
	format   Format

	mu      sync.Mutex
	f       *os.File
	lastErr error
	report  rate.Sometimes
}

func NewFileSink(path string, rotation Rotation, format Format) *FileSink {
	return &FileSink{
		path:     path,
		rotation: rotation,
		format:   format,
		report:   rate.Sometimes{Interval: 5 * time.Second},
	}
}

func (s *FileSink) Path() string { return s.path }

// BackupPath is where RotateBackup moves a full file.
func (s *FileSink) BackupPath() string { return backupPath(s.path) }

func backupPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".bak" + ext
}

func (s *FileSink) Handle(l *Logger, r Record) {
	if !r.Level.Enabled(l.MinFileLevel()) {
		return
	}
	line := s.encode(r)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(line, l.MaxFileSize()); err != nil {
		s.lastErr = err
		s.report.Do(func() {
			fmt.Fprintf(Stderr(), "logx: write %q failed: %v\n", s.path, err)
		})
	}
}

func (s *FileSink) encode(r Record) []byte {
	if s.format == FormatJSON {
		var buf bytes.Buffer
		zl := zerolog.New(&buf)
		zl.Log().
			Str(zerolog.TimestampFieldName, r.Time.Format(time.RFC3339Nano)).
			Str(zerolog.LevelFieldName, r.Level.String()).
			Str(labelFieldName, r.Label).
			Msg(r.Message)
		return buf.Bytes()
	}
	return []byte(FormatLine(r))
}

// FormatLine renders a record in the plain text file format, newline included.
func FormatLine(r Record) string {
	return fmt.Sprintf("%s [%s] %s: %s\n", r.Time.Format(time.RFC3339Nano), r.Label, r.Level, r.Message)
}

func (s *FileSink) write(line []byte, maxSize int64) error {
	if err := s.rotateIfFull(maxSize); err != nil {
		return err
	}
	if s.f == nil {
		if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
			return err
		}
		f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		s.f = f
	}
	_, err := s.f.Write(line)
	return err
}

func (s *FileSink) rotateIfFull(maxSize int64) error {
	if maxSize <= 0 {
		return nil
	}
	fi, err := os.Stat(s.path)
	if errors.Is(err, os.ErrNotExist) {
		// Removed or moved from outside; reopen.
		s.closeLocked()
		return nil
	}
	if err != nil {
		return err
	}
	if fi.Size() < maxSize {
		return nil
	}

	s.closeLocked()
	switch s.rotation {
	case RotateDelete:
		if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	default:
		bak := backupPath(s.path)
		if err := os.Remove(bak); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		if err := os.Rename(s.path, bak); err != nil {
			return err
		}
	}
	return nil
}

func (s *FileSink) closeLocked() {
	if s.f != nil {
		_ = s.f.Close()
		s.f = nil
	}
}

// Err returns the most recent write error, if any.
func (s *FileSink) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
