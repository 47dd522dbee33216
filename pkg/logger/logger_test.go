package logger

import (
	"bytes"
	"encoding/json"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for input, want := range map[string]Level{
		"debug":  DebugLevel,
		"INFO":   InfoLevel,
		"":       InfoLevel,
		"notice": NoticeLevel,
		"error":  ErrorLevel,
	} {
		got, err := ParseLevel(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestStdLoggerFiltersAndPrefixes(t *testing.T) {
	var buf bytes.Buffer
	l := NewStdLogger(false, NoticeLevel)
	l.output = log.New(&buf, "", 0)

	l.Info("hidden %d", 1)
	l.NoticeWithChain(84532, "committed %s", "abc")
	l.Error("failed")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[NOTICE] [BASE-SEPOLIA] committed abc")
	assert.Contains(t, out, "[ERROR]  failed")
}

func TestLogrusLoggerChainField(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogrusLogger(&buf, DebugLevel)

	l.InfoWithChain(8453, "settled %s", "intent-1")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "settled intent-1", entry["msg"])
	assert.Equal(t, float64(8453), entry["chain_id"])
	assert.Equal(t, "BASE", entry["chain"])
	assert.Equal(t, "info", entry["level"])
}

func TestChainName(t *testing.T) {
	assert.Equal(t, "BASE-SEPOLIA", ChainName(84532))
	assert.Equal(t, "42", ChainName(42))
}
