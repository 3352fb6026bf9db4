// SPDX-License-Identifier: GPL-3.0-or-later
package transfer

import (
	"fmt"

	"github.com/CrawX/mailferry/metrics"
)

type ConfigFunc func(c *configuration) error

// DryRun lists and checks candidates without fetching, appending, deleting or
// writing to the ledger.
func DryRun() ConfigFunc {
	return func(c *configuration) error {
		c.DryRun = true

		return nil
	}
}

// MaxMessagesPerCycle bounds how many messages one cycle transfers. The rest
// are picked up by the next cycle.
func MaxMessagesPerCycle(max int) ConfigFunc {
	return func(c *configuration) error {
		if max <= 0 {
			return fmt.Errorf("MaxMessagesPerCycle must be positive")
		}

		c.MaxMessages = max
		return nil
	}
}

func WithMetrics(m *metrics.Metrics) ConfigFunc {
	return func(c *configuration) error {
		if m == nil {
			return fmt.Errorf("Metrics cannot be null")
		}

		c.Metrics = m
		return nil
	}
}

type configuration struct {
	DryRun bool

	// zero means unbounded
	MaxMessages int

	Metrics *metrics.Metrics
}

func (c *configuration) message(source string, outcome string) {
	if c.Metrics != nil {
		c.Metrics.Message(source, outcome)
	}
}
