package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"sessionbook/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testApp = config.AppConfig{Name: "sessionbook", Environment: "test", Version: "1.2.3"}

func TestNewOutputs(t *testing.T) {
	tests := []struct {
		name       string
		cfg        config.LoggingConfig
		wantCloser bool
		wantErr    bool
	}{
		{name: "Default", cfg: config.LoggingConfig{}},
		{name: "Stdout", cfg: config.LoggingConfig{Output: "STDOUT"}},
		{name: "Stderr", cfg: config.LoggingConfig{Output: "stderr", Format: "console"}},
		{name: "FileMissingPath", cfg: config.LoggingConfig{Output: "file"}, wantErr: true},
		{name: "Unknown", cfg: config.LoggingConfig{Output: "syslog"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, closer, err := New(tt.cfg, testApp)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, logger)
			assert.Equal(t, tt.wantCloser, closer != nil)
		})
	}
}

func TestNewFileOutputCreatesDirectory(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "nested", "sessionbook.log")
	logger, closer, err := New(config.LoggingConfig{Output: "file", FilePath: logPath}, testApp)
	require.NoError(t, err)
	require.NotNil(t, closer)

	logger.Info().Msg("written")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"written"`)
}

func TestBaseFields(t *testing.T) {
	var buf bytes.Buffer
	Component(NewWithWriter(&buf, config.LoggingConfig{}, testApp), "booking").Info().Msg("hello")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "sessionbook", entry["app"])
	assert.Equal(t, "test", entry["env"])
	assert.Equal(t, "1.2.3", entry["version"])
	assert.Equal(t, "booking", entry["component"])
	assert.Contains(t, entry, "time")

	buf.Reset()
	NewWithWriter(&buf, config.LoggingConfig{}, config.AppConfig{Name: "bare"}).Info().Msg("hello")
	assert.NotContains(t, buf.String(), `"env"`)
	assert.NotContains(t, buf.String(), `"version"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel(" DEBUG "))
	assert.Equal(t, zerolog.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("loud"))

	var buf bytes.Buffer
	logger := NewWithWriter(&buf, config.LoggingConfig{Level: "warn"}, testApp)
	logger.Info().Msg("dropped")
	assert.Zero(t, buf.Len())
	logger.Warn().Msg("kept")
	assert.Contains(t, buf.String(), "kept")
}
