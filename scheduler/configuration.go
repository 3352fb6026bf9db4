// SPDX-License-Identifier: GPL-3.0-or-later
package scheduler

import (
	"fmt"
	"time"

	"github.com/CrawX/mailferry/metrics"
)

// Clock is the time source of a Scheduler.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

type ConfigFunc func(c *configuration) error

// Concurrency bounds how many destination groups run at the same time.
func Concurrency(n int) ConfigFunc {
	return func(c *configuration) error {
		if n <= 0 {
			return fmt.Errorf("Concurrency must be positive")
		}

		c.Concurrency = n
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

func WithClock(clock Clock) ConfigFunc {
	return func(c *configuration) error {
		if clock == nil {
			return fmt.Errorf("Clock cannot be null")
		}

		c.Clock = clock
		return nil
	}
}

type configuration struct {
	Concurrency int
	Metrics     *metrics.Metrics
	Clock       Clock
}

func (c *configuration) cycle(source string, duration time.Duration, err error) {
	if c.Metrics != nil {
		c.Metrics.Cycle(source, duration, err)
	}
}
