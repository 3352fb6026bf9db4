// SPDX-License-Identifier: GPL-3.0-or-later
package transfer

import (
	"fmt"
	"testing"

	"github.com/CrawX/mailferry/metrics"

	"github.com/stretchr/testify/assert"
)

func TestDryRun(t *testing.T) {
	cfg := &configuration{}
	err := DryRun()(cfg)

	assert.Equal(t, cfg, &configuration{DryRun: true})
	assert.Nil(t, err)
}

func TestMaxMessagesPerCycle(t *testing.T) {
	tests := []struct {
		name          string
		input         int
		expected      *configuration
		expectedError error
	}{
		{"ok", 10, &configuration{MaxMessages: 10}, nil},
		{"zero", 0, nil, fmt.Errorf("MaxMessagesPerCycle must be positive")},
		{"negative", -1, nil, fmt.Errorf("MaxMessagesPerCycle must be positive")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &configuration{}
			err := MaxMessagesPerCycle(tc.input)(cfg)
			if tc.expected != nil {
				assert.Equal(t, tc.expected, cfg)
				assert.Nil(t, err)
			} else {
				assert.Equal(t, tc.expectedError, err)
			}
		})
	}
}

func TestWithMetrics(t *testing.T) {
	m := metrics.NewMetrics()
	cfg := &configuration{}
	assert.NoError(t, WithMetrics(m)(cfg))
	assert.Same(t, m, cfg.Metrics)

	assert.EqualError(t, WithMetrics(nil)(&configuration{}), "Metrics cannot be null")
}
