package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlogLogger_JSONOutput(t *testing.T) {
	t.Setenv("ENV", "")

	var buf bytes.Buffer
	l := NewSlog(InfoLevel, WithOutput(&buf))

	l.Debug("hidden")
	l.Info("stage connected", "port", "/dev/ttyUSB0")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &rec))
	assert.Equal(t, "stage connected", rec["msg"])
	assert.Equal(t, "/dev/ttyUSB0", rec["port"])
	assert.Contains(t, rec, "ts")
}

func TestSlogLogger_SetLevel(t *testing.T) {
	t.Setenv("ENV", "")

	var buf bytes.Buffer
	l := NewSlog(ErrorLevel, WithOutput(&buf))
	assert.Equal(t, ErrorLevel, l.Level())

	l.Warn("dropped")
	assert.Zero(t, buf.Len())

	l.SetLevel(DebugLevel)
	assert.Equal(t, DebugLevel, l.Level())
	l.Debug("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestSlogLogger_WithSharesLevel(t *testing.T) {
	t.Setenv("ENV", "")

	var buf bytes.Buffer
	parent := NewSlog(InfoLevel, WithOutput(&buf))
	child := parent.With("component", "engine")

	parent.SetLevel(WarnLevel)
	child.Info("dropped")
	assert.Zero(t, buf.Len())

	child.Warn("retry")
	assert.Contains(t, buf.String(), `"component":"engine"`)
}

func TestSlogLogger_Console(t *testing.T) {
	var buf bytes.Buffer
	l := NewSlog(InfoLevel, WithOutput(&buf), WithConsole())
	l.Info("console line", "x", 10)

	assert.Contains(t, buf.String(), "console line")
	assert.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
}

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   DebugLevel,
		"INFO":    InfoLevel,
		"warn":    WarnLevel,
		"warning": WarnLevel,
		" error ": ErrorLevel,
		"fatal":   FatalLevel,
		"bogus":   InfoLevel,
	}

	for name, want := range tests {
		assert.Equal(t, want, ParseLevel(name), name)
	}
}

func TestMockLogger_Messages(t *testing.T) {
	m := NewMockLogger().AllowAll()

	m.Warn("first", "k", 1)
	m.Info("other")
	m.Warn("second")

	assert.Equal(t, []string{"first", "second"}, m.Messages("Warn"))
	m.AssertCalled(t, "Info", "other", []any(nil))
}
