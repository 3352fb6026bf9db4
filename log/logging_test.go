// SPDX-License-Identifier: GPL-3.0-or-later
package log

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestGetLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{"DEBUG", logrus.DebugLevel},
		{"warning", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
		{"", logrus.InfoLevel},
		{"bogus", logrus.InfoLevel},
	}
	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			assert.Equal(t, tc.expected, getLevel(tc.input))
		})
	}
}

func TestPrefixLogger(t *testing.T) {
	InitLogging("info")
	buf := &bytes.Buffer{}
	SetOutput(buf)

	Logger(LOG_TRANSFER).WithField("source", "a").Info("hello")
	assert.Contains(t, buf.String(), "TR:\t")
	assert.Contains(t, buf.String(), "source=a")

	buf.Reset()
	Logger(LOG_TRANSFER).Debug("hidden")
	assert.Empty(t, buf.String())

	SetLogLevel("debug")
	Logger(LOG_TRANSFER).Debug("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestLoggerUnknownPanics(t *testing.T) {
	InitLogging("info")
	assert.Panics(t, func() { Logger("XX") })
}
