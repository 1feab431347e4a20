package logging

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{"DEBUG", logrus.DebugLevel},
		{"warn", logrus.WarnLevel},
		{"warning", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
		{"info", logrus.InfoLevel},
		{"", logrus.InfoLevel},
		{"nonsense", logrus.InfoLevel},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, ParseLevel(tt.input), "level %q", tt.input)
	}
}

func TestNewFormatterByEnvironment(t *testing.T) {
	prod := New("info", "production")
	_, ok := prod.Formatter.(*logrus.JSONFormatter)
	assert.True(t, ok, "production logger should use JSON formatter")

	dev := New("debug", "development")
	_, ok = dev.Formatter.(*logrus.TextFormatter)
	assert.True(t, ok, "development logger should use text formatter")
	assert.Equal(t, logrus.DebugLevel, dev.GetLevel())
}
