package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		name  string
		level string
		want  zerolog.Level
	}{
		{"debug", "debug", zerolog.DebugLevel},
		{"warn upper", "WARN", zerolog.WarnLevel},
		{"default", "", zerolog.InfoLevel},
		{"garbage", "loud", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := NewWithWriter(tt.level, "prod", &bytes.Buffer{})
			assert.Equal(t, tt.want, logger.GetLevel())
		})
	}
}

func TestProdWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter("info", "prod", &buf)

	logger.Info().Str("appointment_id", "a-1").Msg("appointment confirmed")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "appointment confirmed", line["message"])
	assert.Equal(t, "a-1", line["appointment_id"])
	assert.Contains(t, line, "time")
}
