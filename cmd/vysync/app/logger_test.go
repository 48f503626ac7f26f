package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetermineLogLevelPrecedence(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		want   string
	}{
		{"default", Config{}, "info"},
		{"verbose", Config{Verbose: true}, "debug"},
		{"quiet", Config{Quiet: true}, "warn"},
		{"both flags prefer quiet", Config{Verbose: true, Quiet: true}, "warn"},
		{"explicit level wins", Config{Verbose: true, LogLevel: "error"}, "error"},
		{"invalid level falls back", Config{LogLevel: "loud"}, "info"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, determineLogLevel(&tt.config))
		})
	}
}

func TestUpdateFromFlags(t *testing.T) {
	c := Config{LogLevel: "info"}

	c.UpdateFromFlags(true, false, "")
	assert.True(t, c.Verbose)
	assert.Equal(t, "info", c.LogLevel, "empty flag keeps the env value")

	c.UpdateFromFlags(false, false, "debug")
	assert.Equal(t, "debug", c.LogLevel)
}
