package cllog

import (
	"path/filepath"
	"testing"

	"trackapi/internal/models/clconfig"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.TraceLevel, ParseLevel("trace"))
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, zerolog.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("nimportequoi"))
}

func TestExtractLevelFromJSON(t *testing.T) {
	assert.Equal(t, "warn", extractLevelFromJSON(`{"level":"warn","message":"x"}`))
	assert.Equal(t, "", extractLevelFromJSON(`{"message":"x"}`))
	assert.Equal(t, "", extractLevelFromJSON(`{"level":"warn`))
}

func TestBuildWriters(t *testing.T) {
	writers, err := buildWriters(clconfig.LoggerConfig{}, true)
	require.NoError(t, err)
	assert.Len(t, writers, 1)

	writers, err = buildWriters(clconfig.LoggerConfig{
		File: clconfig.LoggerFileConfig{Enable: true, Path: filepath.Join(t.TempDir(), "logs", "trackapi.log")},
	}, false)
	require.NoError(t, err)
	assert.Len(t, writers, 2)

	_, err = buildWriters(clconfig.LoggerConfig{File: clconfig.LoggerFileConfig{Enable: true}}, true)
	assert.Error(t, err)
}
