package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		raw  string
		want zerolog.Level
		ok   bool
	}{
		{"", zerolog.InfoLevel, false},
		{"trace", zerolog.TraceLevel, true},
		{" DEBUG ", zerolog.DebugLevel, true},
		{"warning", zerolog.WarnLevel, true},
		{"error", zerolog.ErrorLevel, true},
		{"off", zerolog.Disabled, true},
		{"loud", zerolog.InfoLevel, false},
	}
	for _, tc := range cases {
		got, ok := parseLevel(tc.raw)
		assert.Equal(t, tc.ok, ok, "raw=%q", tc.raw)
		assert.Equal(t, tc.want, got, "raw=%q", tc.raw)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	env := map[string]string{
		EnvLogLevel:     "warn",
		EnvLogTimestamp: "true",
		EnvLogNoColor:   "not-a-bool",
		EnvLogJSON:      "1",
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	cfg := defaultConfig(ProfileTest)
	applyEnvOverrides(&cfg, lookup)

	assert.Equal(t, zerolog.WarnLevel, cfg.Level)
	assert.True(t, cfg.Timestamp)
	assert.True(t, cfg.NoColor, "unparsable value keeps the profile default")
	assert.True(t, cfg.JSON)
}

func TestNewJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Config{Level: zerolog.InfoLevel, JSON: true})

	logger.Debug().Msg("dropped")
	logger.Info().Str("command", "ls").Msg("gate_decision")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "gate_decision", line["message"])
	assert.Equal(t, "ls", line["command"])
	assert.NotContains(t, line, "time")
}
