package logx

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFileLogger(t *testing.T, maxSize int64, rotation Rotation, format Format) (*Logger, *FileSink) {
	t.Helper()
	l := New("TASK qwant", Options{MinConsoleLevel: LevelError, MinFileLevel: LevelSilly, MaxFileSize: maxSize})
	fs := NewFileSink(filepath.Join(t.TempDir(), "qwant.log"), rotation, format)
	l.Subscribe(fs)
	t.Cleanup(func() { _ = fs.Close() })
	return l, fs
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func TestFormatLine(t *testing.T) {
	t.Parallel()
	r := Record{
		Time:    time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC),
		Label:   "APP",
		Level:   LevelError,
		Message: "boom",
	}
	assert.Equal(t, "2024-03-04T05:06:07Z [APP] error: boom\n", FormatLine(r))
}

// Writing past the threshold does not rotate by itself; the next write does.
func TestFileSinkRotatesBeforeNextWrite(t *testing.T) {
	t.Parallel()
	l, fs := newFileLogger(t, 100, RotateBackup, FormatText)

	first := strings.Repeat("a", 120)
	l.Info(first)
	assert.Contains(t, readFile(t, fs.Path()), first)
	_, err := os.Stat(fs.BackupPath())
	assert.ErrorIs(t, err, os.ErrNotExist)

	l.Info("second")
	current := readFile(t, fs.Path())
	assert.NotContains(t, current, first)
	assert.Contains(t, current, "second")
	assert.Contains(t, readFile(t, fs.BackupPath()), first)
}

func TestFileSinkBackupKeepsOneGeneration(t *testing.T) {
	t.Parallel()
	l, fs := newFileLogger(t, 10, RotateBackup, FormatText)

	l.Info("gen-1")
	l.Info("gen-2")
	l.Info("gen-3")

	assert.Contains(t, readFile(t, fs.Path()), "gen-3")
	bak := readFile(t, fs.BackupPath())
	assert.Contains(t, bak, "gen-2")
	assert.NotContains(t, bak, "gen-1")

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(fs.Path()), "*"))
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestFileSinkDeleteRotation(t *testing.T) {
	t.Parallel()
	l, fs := newFileLogger(t, 50, RotateDelete, FormatText)

	l.Info(strings.Repeat("x", 60))
	l.Info("fresh")

	assert.NotContains(t, readFile(t, fs.Path()), "xxxx")
	_, err := os.Stat(fs.BackupPath())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFileSinkBelowThresholdAppends(t *testing.T) {
	t.Parallel()
	l, fs := newFileLogger(t, 1<<20, RotateBackup, FormatText)
	l.Info("one")
	l.Info("two")
	lines := strings.Split(strings.TrimSpace(readFile(t, fs.Path())), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[0], "[TASK qwant] info: one"))
	assert.True(t, strings.HasSuffix(lines[1], "[TASK qwant] info: two"))
}

func TestFileSinkFiltersOnFileLevel(t *testing.T) {
	t.Parallel()
	l, fs := newFileLogger(t, 0, RotateBackup, FormatText)
	l.SetMinFileLevel(LevelInfo)
	l.Debug("hidden")
	l.Info("shown")
	got := readFile(t, fs.Path())
	assert.NotContains(t, got, "hidden")
	assert.Contains(t, got, "shown")
}

func TestFileSinkJSON(t *testing.T) {
	t.Parallel()
	l, fs := newFileLogger(t, 0, RotateBackup, FormatJSON)
	l.Verbose("<console.log> Finished")

	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(readFile(t, fs.Path()))), &m))
	assert.Equal(t, "verbose", m["level"])
	assert.Equal(t, "TASK qwant", m["label"])
	assert.Equal(t, "<console.log> Finished", m["message"])
}

func TestFileSinkWriteErrorIsNotPropagated(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	// A regular file where the log directory should be.
	blocker := filepath.Join(dir, "logs")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	l := New("APP", DefaultOptions())
	fs := NewFileSink(filepath.Join(blocker, "application.log"), RotateDelete, FormatText)
	l.Subscribe(fs)

	assert.NotPanics(t, func() { l.Error("cannot land") })
	assert.Error(t, fs.Err())
}

func TestBackupPath(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "logs/google.bak.log", backupPath("logs/google.log"))
	assert.Equal(t, "logs/noext.bak", backupPath("logs/noext"))
}

func TestParseRotationAndFormat(t *testing.T) {
	t.Parallel()
	assert.Equal(t, RotateDelete, ParseRotation("DELETE"))
	assert.Equal(t, RotateBackup, ParseRotation(""))
	assert.Equal(t, FormatJSON, ParseFormat("json"))
	assert.Equal(t, FormatText, ParseFormat("anything"))
}
