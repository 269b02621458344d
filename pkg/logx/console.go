package logx

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
)

const consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"

const labelFieldName = "label"

// ConsoleSink prints records at or above the logger's console threshold.
//
// Format:
//
//	2006-01-02T15:04:05.000Z07:00 [LABEL] level: message
type ConsoleSink struct {
	mu sync.Mutex
	zl zerolog.Logger
}

// NewConsoleSink writes to w (stdout when nil). noColor disables level
// colors regardless of the terminal.
func NewConsoleSink(w io.Writer, noColor bool) *ConsoleSink {
	if w == nil {
		w = Stdout()
	}
	palette := newPalette(noColor)
	cw := zerolog.ConsoleWriter{
		Out: w,
		// Colors come from the palette; zerolog's own would double up.
		NoColor:         true,
		PartsOrder:      []string{zerolog.TimestampFieldName, labelFieldName, zerolog.LevelFieldName, zerolog.MessageFieldName},
		FieldsExclude:   []string{labelFieldName},
		FormatTimestamp: func(i any) string { return fmt.Sprint(i) },
		FormatFieldValue: func(i any) string {
			return "[" + fmt.Sprint(i) + "]"
		},
		FormatLevel: func(i any) string {
			name, _ := i.(string)
			return palette.paint(LevelNamed(name), name+":")
		},
		FormatMessage: func(i any) string {
			if i == nil {
				return ""
			}
			return fmt.Sprint(i)
		},
	}
	return &ConsoleSink{zl: zerolog.New(cw)}
}

func (s *ConsoleSink) Handle(l *Logger, r Record) {
	if !r.Level.Enabled(l.MinConsoleLevel()) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zl.Log().
		Str(zerolog.TimestampFieldName, r.Time.Format(consoleTimeFormat)).
		Str(labelFieldName, r.Label).
		Str(zerolog.LevelFieldName, r.Level.String()).
		Msg(r.Message)
}

type palette struct {
	byLevel map[Level]*color.Color
}

func newPalette(noColor bool) palette {
	p := palette{byLevel: map[Level]*color.Color{
		LevelError:   color.New(color.FgRed),
		LevelWarn:    color.New(color.FgYellow),
		LevelVerbose: color.New(color.FgMagenta),
		LevelDebug:   color.New(color.FgBlue),
		LevelSilly:   color.New(color.FgHiYellow),
	}}
	if noColor {
		for _, c := range p.byLevel {
			c.DisableColor()
		}
	}
	return p
}

func (p palette) paint(l Level, s string) string {
	c, ok := p.byLevel[l]
	if !ok {
		return s
	}
	return c.Sprint(s)
}
