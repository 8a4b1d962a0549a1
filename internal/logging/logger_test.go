package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerIsCachedPerComponent(t *testing.T) {
	a := NewLogger("broker")
	b := NewLogger("broker")
	c := NewLogger("watcher")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, "broker", a.Data["component"])
}

func TestConfigureJSON(t *testing.T) {
	t.Setenv("LIVEDOC_LOG_LEVEL", "")
	var buf bytes.Buffer
	Configure(Options{Level: "debug", Format: "json", Output: &buf})
	t.Cleanup(func() { Configure(Options{}) })

	NewLogger("test-json").WithField("path", "doc.md").Debug("changed")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "changed", line["msg"])
	assert.Equal(t, "test-json", line["component"])
	assert.Equal(t, "doc.md", line["path"])
}

func TestConfigureLevel(t *testing.T) {
	testCases := []struct {
		name  string
		level string
		env   string
		want  logrus.Level
	}{
		{"explicit", "warn", "", logrus.WarnLevel},
		{"invalid falls back to info", "loud", "", logrus.InfoLevel},
		{"env overrides", "error", "debug", logrus.DebugLevel},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("LIVEDOC_LOG_LEVEL", tc.env)
			Configure(Options{Level: tc.level, Output: &bytes.Buffer{}})
			t.Cleanup(func() { Configure(Options{}) })
			assert.Equal(t, tc.want, base.GetLevel())
		})
	}
}
