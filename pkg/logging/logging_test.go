package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WhileEndless/go-docwire/pkg/config"
)

func TestBuildJSON(t *testing.T) {
	var buf bytes.Buffer
	log := build(&buf, "json", zerolog.InfoLevel, true)

	log.Debug().Msg("hidden")
	log.Info().Str("id", "raft").Msg("stored")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"level":"info"`)
	assert.Contains(t, out, `"id":"raft"`)
	assert.Contains(t, out, `"message":"stored"`)
}

func TestBuildConsole(t *testing.T) {
	var buf bytes.Buffer
	log := build(&buf, "console", zerolog.DebugLevel, true)

	log.Debug().Str("phase", "connecting").Msg("phase change")

	out := buf.String()
	assert.Contains(t, out, "DBG")
	assert.Contains(t, out, "phase change")
	assert.Contains(t, out, "phase=connecting")
	assert.False(t, strings.HasPrefix(out, "{"))
}

func TestNewFileTarget(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docwire.log")
	log, closer, err := New(config.LoggingConfig{Level: "warn", Format: "json", Target: path})
	require.NoError(t, err)

	log.Info().Msg("dropped")
	log.Warn().Msg("kept")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "dropped")
	assert.Contains(t, string(data), "kept")
}

func TestNewErrors(t *testing.T) {
	_, _, err := New(config.LoggingConfig{Level: "loud"})
	assert.Error(t, err)

	_, _, err = New(config.LoggingConfig{Level: "info", Target: filepath.Join(t.TempDir(), "missing", "x.log")})
	assert.Error(t, err)
}

func TestNewStandardStreams(t *testing.T) {
	for _, target := range []string{"stdout", "stderr"} {
		_, closer, err := New(config.LoggingConfig{Level: "info", Format: "console", Target: target})
		require.NoError(t, err)
		assert.NoError(t, closer.Close())
	}
}
