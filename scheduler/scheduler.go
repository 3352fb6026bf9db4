// SPDX-License-Identifier: GPL-3.0-or-later
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/CrawX/mailferry/config"
	"github.com/CrawX/mailferry/domain"
	"github.com/CrawX/mailferry/imapconnection"
	"github.com/CrawX/mailferry/log"
	"github.com/CrawX/mailferry/pop3connection"
	"github.com/CrawX/mailferry/transfer"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Runner performs one cycle for one source. *transfer.Transferrer is the
// production implementation.
type Runner interface {
	Run(ctx context.Context, job *transfer.Job, dest domain.DestSession) (*transfer.Summary, error)
}

// Source is one scheduled source. Sources with the same DestinationKey share
// a destination session during a tick.
type Source struct {
	Job            *transfer.Job
	Destination    domain.DestinationConnector
	DestinationKey string
	Interval       time.Duration
}

// SourcesFromConfig builds the connectors for every configured source.
func SourcesFromConfig(conf *config.Config) ([]*Source, error) {
	sources := make([]*Source, 0, len(conf.Sources))
	for i := range conf.Sources {
		s := &conf.Sources[i]

		var connector domain.SourceConnector
		switch s.Protocol {
		case domain.ProtocolImap:
			imapSource, err := imapconnection.NewSource(s, conf.Timeout())
			if err != nil {
				return nil, &domain.ConfigError{Err: fmt.Errorf("source %q: %w", s.Name, err)}
			}
			connector = imapSource
		case domain.ProtocolPop3:
			connector = pop3connection.NewSource(s, conf.Timeout())
		default:
			return nil, &domain.ConfigError{Err: fmt.Errorf("source %q: unsupported protocol %q", s.Name, s.Protocol)}
		}

		sources = append(sources, &Source{
			Job: &transfer.Job{
				SourceId:            s.Name,
				Source:              connector,
				DestinationFolder:   s.Destination.Folder,
				DeleteAfterTransfer: s.DeleteAfterTransfer,
			},
			Destination:    imapconnection.NewDestination(&s.Destination, conf.Timeout()),
			DestinationKey: s.Destination.Key(),
			Interval:       s.PollInterval(conf.PollInterval()),
		})
	}
	return sources, nil
}

// Report is the outcome of one tick.
type Report struct {
	Summaries []*transfer.Summary
	// Failed maps the id of every source whose cycle did not complete to the reason.
	Failed map[string]error
}

type Scheduler struct {
	runner  Runner
	sources []*Source

	configuration *configuration

	l *logrus.Logger
}

func NewScheduler(runner Runner, sources []*Source, configFunc ...ConfigFunc) (*Scheduler, error) {
	c := &configuration{
		Concurrency: config.DefaultConcurrency,
		Clock:       realClock{},
	}
	for _, f := range configFunc {
		err := f(c)
		if err != nil {
			return nil, fmt.Errorf("error applying configuration: %w", err)
		}
	}

	return &Scheduler{
		runner:        runner,
		sources:       sources,
		configuration: c,
		l:             log.Logger(log.LOG_SCHEDULER),
	}, nil
}

// RunOnce runs one cycle for every source. The error is either a ledger
// failure or the cancellation of ctx.
func (s *Scheduler) RunOnce(ctx context.Context) (*Report, error) {
	return s.tick(ctx, s.sources)
}

// Run repeats cycles until ctx ends. Every source is due again its interval
// after its previous cycle started; a source whose cycle overran is due
// immediately. Only a ledger failure ends Run with an error.
func (s *Scheduler) Run(ctx context.Context) error {
	clock := s.configuration.Clock
	next := make(map[*Source]time.Time, len(s.sources))
	for _, source := range s.sources {
		next[source] = clock.Now()
	}

	for {
		start := clock.Now()
		due := []*Source{}
		for _, source := range s.sources {
			if !next[source].After(start) {
				due = append(due, source)
				next[source] = start.Add(source.Interval)
			}
		}

		if len(due) > 0 {
			_, err := s.tick(ctx, due)
			if ctx.Err() != nil {
				s.l.Info("Stopping scheduler")
				return nil
			}
			if err != nil {
				return err
			}

			end := clock.Now()
			for _, source := range due {
				if !next[source].After(end) {
					s.l.WithFields(logrus.Fields{
						"source":   source.Job.SourceId,
						"interval": source.Interval,
						"duration": end.Sub(start),
					}).Warn("Cycle took longer than the poll interval, starting next cycle immediately")
				}
			}
		}

		wait := time.Duration(-1)
		for _, source := range s.sources {
			d := next[source].Sub(clock.Now())
			if wait < 0 || d < wait {
				wait = d
			}
		}
		if wait <= 0 {
			continue
		}

		s.l.WithField("wait", wait.Round(time.Second)).Debug("Waiting for next cycle")
		select {
		case <-ctx.Done():
			s.l.Info("Stopping scheduler")
			return nil
		case <-clock.After(wait):
		}
	}
}

// tick runs sources grouped by destination. Groups run in parallel, the sources
// of a group one after another.
func (s *Scheduler) tick(ctx context.Context, sources []*Source) (*Report, error) {
	start := s.configuration.Clock.Now()
	groups := map[string][]*Source{}
	keys := []string{}
	for _, source := range sources {
		if _, ok := groups[source.DestinationKey]; !ok {
			keys = append(keys, source.DestinationKey)
		}
		groups[source.DestinationKey] = append(groups[source.DestinationKey], source)
	}

	report := &Report{Failed: map[string]error{}}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.configuration.Concurrency)
	for _, key := range keys {
		group := groups[key]
		g.Go(func() error {
			return s.runGroup(gctx, key, group, func(source *Source, summary *transfer.Summary, err error) {
				mu.Lock()
				defer mu.Unlock()
				if summary != nil {
					report.Summaries = append(report.Summaries, summary)
				}
				if err != nil {
					report.Failed[source.Job.SourceId] = err
				}
			})
		})
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	s.l.WithFields(logrus.Fields{
		"sources":  len(sources),
		"groups":   len(groups),
		"failed":   len(report.Failed),
		"duration": s.configuration.Clock.Now().Sub(start),
	}).Info("Tick finished")
	return report, err
}

func (s *Scheduler) runGroup(ctx context.Context, key string, group []*Source, done func(*Source, *transfer.Summary, error)) error {
	dest := &lazyDestination{
		connector: group[0].Destination,
		l:         s.l.WithField("destination", key),
	}
	defer func() {
		err := dest.Close()
		if err != nil {
			dest.l.WithError(err).Warn("Could not close destination session")
		}
	}()

	for _, source := range group {
		if ctx.Err() != nil {
			return nil
		}

		l := s.l.WithField("source", source.Job.SourceId)
		start := s.configuration.Clock.Now()
		summary, err := s.runner.Run(ctx, source.Job, dest)
		s.configuration.cycle(source.Job.SourceId, s.configuration.Clock.Now().Sub(start), err)

		switch {
		case err == nil:
			done(source, summary, nil)
		case domain.IsProcessFatal(err):
			l.WithError(err).Error("Ledger failure, stopping")
			done(source, summary, err)
			return err
		case errors.Is(err, context.Canceled) && ctx.Err() != nil:
			done(source, summary, nil)
			return nil
		default:
			l.WithError(err).Error("Source cycle failed")
			done(source, summary, err)
		}
	}
	return nil
}
