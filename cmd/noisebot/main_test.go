package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeVerbose(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"bare at end", []string{"-l", "-v"}, []string{"-l", "--verbose=verbose"}},
		{"bare before flag", []string{"--verbose", "-c", "x.yaml"}, []string{"--verbose=verbose", "-c", "x.yaml"}},
		{"with level", []string{"-v", "debug", "-l"}, []string{"--verbose=debug", "-l"}},
		{"long with equals", []string{"--verbose=silly"}, []string{"--verbose=silly"}},
		{"absent", []string{"-d"}, []string{"-d"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, normalizeVerbose(tt.in))
		})
	}
}
