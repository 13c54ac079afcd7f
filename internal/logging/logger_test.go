package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}
	return out
}

func TestJSONOutputCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LevelInfo, FormatJSON)
	logger.SetOutput(&buf)

	logger.WithField("stage", "referrals").WithFields(map[string]interface{}{"rows": 1000}).Info("stage complete")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "stage complete", entries[0]["message"])
	assert.Equal(t, "info", entries[0]["level"])
	assert.Equal(t, "referrals", entries[0]["stage"])
	assert.Equal(t, float64(1000), entries[0]["rows"])
	assert.NotEmpty(t, entries[0]["timestamp"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LevelWarn, FormatJSON)
	logger.SetOutput(&buf)

	logger.Debug("hidden")
	logger.Info("hidden")
	logger.Warn("shown")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "shown", entries[0]["message"])

	buf.Reset()
	logger.SetLevel(LevelDebug)
	logger.Debugf("now %s", "visible")
	entries = decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "now visible", entries[0]["message"])
}

func TestWithFieldDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := NewLogger(LevelInfo, FormatJSON)
	parent.SetOutput(&buf)

	_ = parent.WithField("child", true)
	parent.Info("parent")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	_, has := entries[0]["child"]
	assert.False(t, has)
}

func TestErrorIncludesCaller(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LevelInfo, FormatJSON)
	logger.SetOutput(&buf)

	logger.ErrorWithErr("sink failed", assert.AnError)

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, assert.AnError.Error(), entries[0]["error"])
	assert.NotEmpty(t, entries[0]["caller"])
}

func TestInfoOmitsCaller(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LevelDebug, FormatJSON)
	logger.SetOutput(&buf)

	logger.Info("info")
	logger.Warn("warn")
	logger.Errorf("error %d", 1)

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 3)
	assert.NotContains(t, entries[0], "caller")
	assert.NotContains(t, entries[1], "caller")
	assert.Contains(t, entries[2]["caller"], "logger_test.go")
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LevelInfo, FormatText)
	logger.SetOutput(&buf)

	logger.Info("hello")
	assert.Contains(t, buf.String(), "INFO")
	assert.Contains(t, buf.String(), "hello")
}

func TestContextLogger(t *testing.T) {
	logger := NewNopLogger()
	ctx := WithLogger(context.Background(), logger)
	assert.Same(t, logger, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}

func TestParse(t *testing.T) {
	assert.Equal(t, LevelWarn, ParseLogLevel("warning"))
	assert.Equal(t, LevelInfo, ParseLogLevel("bogus"))
	assert.Equal(t, FormatText, ParseLogFormat("text"))
	assert.Equal(t, FormatJSON, ParseLogFormat("bogus"))
}
