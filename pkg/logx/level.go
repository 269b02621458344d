package logx

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidLevelType is returned by ParseLevel for values that are neither
// numbers nor strings.
var ErrInvalidLevelType = errors.New("log level must be a string or a number")

// Level is a log severity. Lower values are more severe.
type Level int

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelVerbose
	LevelDebug
	LevelSilly
)

var levelNames = [...]string{"error", "warn", "info", "verbose", "debug", "silly"}

// LevelOf maps a numeric severity to a Level. Anything outside 0..5 is info.
func LevelOf(n int) Level {
	if n < int(LevelError) || n > int(LevelSilly) {
		return LevelInfo
	}
	return Level(n)
}

// LevelNamed maps a canonical level name to a Level. Unknown names are info.
func LevelNamed(s string) Level {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range levelNames {
		if s == name {
			return Level(i)
		}
	}
	return LevelInfo
}

// ParseLevel builds a Level from a dynamically typed value, the way levels
// arrive from flags and decoded config. Numbers go through LevelOf (floats
// must be integral), strings through LevelNamed.
func ParseLevel(v any) (Level, error) {
	switch x := v.(type) {
	case Level:
		return x.normalize(), nil
	case string:
		return LevelNamed(x), nil
	case int:
		return LevelOf(x), nil
	case int8:
		return LevelOf(int(x)), nil
	case int16:
		return LevelOf(int(x)), nil
	case int32:
		return LevelOf(int(x)), nil
	case int64:
		return levelOfInt64(x), nil
	case uint:
		return levelOfUint64(uint64(x)), nil
	case uint8:
		return LevelOf(int(x)), nil
	case uint16:
		return LevelOf(int(x)), nil
	case uint32:
		return levelOfUint64(uint64(x)), nil
	case uint64:
		return levelOfUint64(x), nil
	case float32:
		return levelOfFloat(float64(x)), nil
	case float64:
		return levelOfFloat(x), nil
	default:
		return LevelInfo, fmt.Errorf("%w: got %T", ErrInvalidLevelType, v)
	}
}

func levelOfInt64(n int64) Level {
	if n < 0 || n > int64(LevelSilly) {
		return LevelInfo
	}
	return Level(n)
}

func levelOfUint64(n uint64) Level {
	if n > uint64(LevelSilly) {
		return LevelInfo
	}
	return Level(n)
}

func levelOfFloat(f float64) Level {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return LevelInfo
	}
	return levelOfInt64(int64(f))
}

func (l Level) normalize() Level { return LevelOf(int(l)) }

// String returns the canonical level name.
func (l Level) String() string { return levelNames[l.normalize()] }

// Enabled reports whether a record at l passes a threshold, i.e. whether l
// is at least as severe as threshold.
func (l Level) Enabled(threshold Level) bool {
	return l.normalize() <= threshold.normalize()
}

func (l Level) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

// UnmarshalText accepts a level name or a numeric severity. It never fails:
// unknown input degrades to info.
func (l *Level) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	if n, err := strconv.Atoi(s); err == nil {
		*l = LevelOf(n)
		return nil
	}
	*l = LevelNamed(s)
	return nil
}
