package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	Configure("warn", false, &buf)
	t.Cleanup(func() { Configure("", false, nil) })

	Info("dropped %d", 1)
	Warn("kept %s", "warning")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "kept warning", entry["message"])
	assert.Equal(t, "campusmarket", entry["service"])
}
