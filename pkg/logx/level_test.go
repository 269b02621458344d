package logx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelRoundTrip(t *testing.T) {
	t.Parallel()
	for n := 0; n <= 5; n++ {
		name := LevelOf(n).String()
		assert.Equal(t, n, int(LevelNamed(name)), "level %d via %q", n, name)
	}
}

func TestLevelInvalidDegradesToInfo(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   any
	}{
		{name: "negative", in: -1},
		{name: "too large", in: 6},
		{name: "int64 overflow", in: int64(1 << 40)},
		{name: "uint too large", in: uint64(99)},
		{name: "fraction", in: 2.5},
		{name: "float out of range", in: float32(7)},
		{name: "unknown name", in: "loud"},
		{name: "empty name", in: ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseLevel(tt.in)
			require.NoError(t, err)
			assert.Equal(t, LevelInfo, got)
		})
	}
}

func TestParseLevelAccepted(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   any
		want Level
	}{
		{in: 0, want: LevelError},
		{in: uint8(1), want: LevelWarn},
		{in: 3.0, want: LevelVerbose},
		{in: "DEBUG", want: LevelDebug},
		{in: " silly ", want: LevelSilly},
		{in: LevelWarn, want: LevelWarn},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "ParseLevel(%#v)", tt.in)
	}
}

func TestParseLevelRejectsOtherTypes(t *testing.T) {
	t.Parallel()
	for _, in := range []any{nil, true, []string{"info"}, struct{}{}} {
		_, err := ParseLevel(in)
		assert.ErrorIs(t, err, ErrInvalidLevelType, "ParseLevel(%#v)", in)
	}
}

func TestLevelEnabled(t *testing.T) {
	t.Parallel()
	assert.True(t, LevelError.Enabled(LevelWarn))
	assert.True(t, LevelWarn.Enabled(LevelWarn))
	assert.False(t, LevelDebug.Enabled(LevelWarn))
	assert.True(t, LevelDebug.Enabled(LevelSilly))
}

func TestLevelUnmarshalText(t *testing.T) {
	t.Parallel()
	var l Level
	require.NoError(t, l.UnmarshalText([]byte("verbose")))
	assert.Equal(t, LevelVerbose, l)
	require.NoError(t, l.UnmarshalText([]byte("4")))
	assert.Equal(t, LevelDebug, l)
	require.NoError(t, l.UnmarshalText([]byte(" 0 ")))
	assert.Equal(t, LevelError, l)
	require.NoError(t, l.UnmarshalText([]byte("12")))
	assert.Equal(t, LevelInfo, l)
	require.NoError(t, l.UnmarshalText([]byte("nope")))
	assert.Equal(t, LevelInfo, l)

	b, err := LevelSilly.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "silly", string(b))
}
