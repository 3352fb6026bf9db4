// SPDX-License-Identifier: GPL-3.0-or-later
package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/CrawX/mailferry/domain"
	"github.com/CrawX/mailferry/log"
	"github.com/CrawX/mailferry/mail"
	"github.com/CrawX/mailferry/metrics"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Job is one source as seen by a Transferrer.
type Job struct {
	SourceId            string
	Source              domain.SourceConnector
	DestinationFolder   string
	DeleteAfterTransfer bool
}

// Summary counts what one cycle did with the candidates of a source.
type Summary struct {
	SourceId    string
	Transferred int
	Deleted     int
	Failed      int
	Skipped     int
	// Resumed counts messages transferred earlier whose delete was issued again.
	Resumed int
	Adopted int
}

func (s *Summary) fields() logrus.Fields {
	return logrus.Fields{
		"transferred": s.Transferred,
		"deleted":     s.Deleted,
		"failed":      s.Failed,
		"skipped":     s.Skipped,
		"resumed":     s.Resumed,
		"adopted":     s.Adopted,
	}
}

type Transferrer struct {
	ledger domain.Ledger

	configuration *configuration

	l *logrus.Logger
}

func NewTransferrer(ledger domain.Ledger, configFunc ...ConfigFunc) (*Transferrer, error) {
	config := &configuration{}
	for _, f := range configFunc {
		err := f(config)
		if err != nil {
			return nil, fmt.Errorf("error applying configuration: %w", err)
		}
	}

	return &Transferrer{
		ledger:        ledger,
		configuration: config,
		l:             log.Logger(log.LOG_TRANSFER),
	}, nil
}

// cycle is the state of one pass over one source.
type cycle struct {
	job     *Job
	session domain.SourceSession
	dest    domain.DestSession
	summary *Summary

	// durable is ctx without cancellation. Everything from the append of a
	// message up to its ledger record runs on it.
	durable context.Context

	// transfers attempted, bounded by MaxMessages
	attempts int
	// deletes issued and not yet committed
	staged int
	// messages recorded failed during this cycle, not retried after a reconnect
	failed map[domain.Fingerprint]bool

	l *logrus.Entry
}

// Run performs one cycle over job's source and appends new messages through
// dest. Message level failures are recorded in the ledger and counted in the
// summary. The returned error is a source failure, a destination connection
// failure, a cancellation or a ledger failure; the latter must stop the
// process.
func (t *Transferrer) Run(ctx context.Context, job *Job, dest domain.DestSession) (*Summary, error) {
	l := t.l.WithFields(logrus.Fields{"source": job.SourceId, "cycle": uuid.NewString()})
	start := time.Now()

	session, err := job.Source.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not connect to source: %w", err)
	}

	c := &cycle{
		job:     job,
		session: session,
		dest:    dest,
		summary: &Summary{SourceId: job.SourceId},
		durable: context.WithoutCancel(ctx),
		failed:  map[domain.Fingerprint]bool{},
		l:       l,
	}
	defer func() {
		if c.session == nil {
			return
		}
		err := c.session.Close()
		if err != nil {
			l.WithError(err).Warn("Could not close source session")
		}
	}()

	err = t.run(ctx, c)

	logger := l.WithFields(c.summary.fields()).WithField("duration", time.Since(start))
	if err != nil {
		logger.WithError(err).Warn("Cycle aborted")
	} else {
		logger.Info("Cycle finished")
	}
	return c.summary, err
}

func (t *Transferrer) run(ctx context.Context, c *cycle) error {
	mailbox := c.session.Mailbox()
	untrusted, err := t.untrusted(c, mailbox)
	if err != nil {
		return err
	}

	complete, cycleErr := t.pass(ctx, c, untrusted)
	// one reconnect per cycle
	var dropped *sourceDroppedError
	if errors.As(cycleErr, &dropped) && ctx.Err() == nil {
		mailbox, untrusted, cycleErr = t.reconnect(ctx, c, dropped)
		if cycleErr == nil {
			complete, cycleErr = t.pass(ctx, c, untrusted)
		}
	}

	// Pending deletes are reset by Close, the ledger is not trusted anymore.
	if domain.IsProcessFatal(cycleErr) {
		return cycleErr
	}

	commitErr := t.commit(c)

	if cycleErr == nil && commitErr == nil && complete && untrusted && !t.configuration.DryRun {
		err = t.ledger.SaveFolder(c.durable, c.job.SourceId, mailbox.Name, mailbox.UidValidity)
		if err != nil {
			return err
		}
		c.l.WithFields(logrus.Fields{"folder": mailbox.Name, "uidvalidity": mailbox.UidValidity}).Info("Verified new UIDVALIDITY after complete pass")
	}

	return errors.Join(cycleErr, commitErr)
}

// pass processes the candidates of the current session. complete is false
// when the message limit stopped it early.
func (t *Transferrer) pass(ctx context.Context, c *cycle, untrusted bool) (bool, error) {
	for handle, err := range c.session.ListCandidates(ctx, untrusted) {
		if err != nil {
			return false, fmt.Errorf("could not list candidates: %w", err)
		}
		if ctx.Err() != nil {
			return false, ctx.Err()
		}

		err = t.process(ctx, c, handle)
		if err != nil {
			return false, err
		}

		if t.configuration.MaxMessages > 0 && c.attempts >= t.configuration.MaxMessages {
			c.l.WithField("max", t.configuration.MaxMessages).Info("Reached message limit, continuing next cycle")
			return false, nil
		}
	}
	return true, nil
}

// reconnect replaces a dropped source session. Deletes staged on the dropped
// session are lost; their messages are known as deleted and get staged again
// by the next pass.
func (t *Transferrer) reconnect(ctx context.Context, c *cycle, dropped *sourceDroppedError) (domain.MailboxInfo, bool, error) {
	c.l.WithError(dropped.Err).Warn("Source connection dropped, reconnecting")

	_ = c.session.Close()
	c.session = nil
	c.staged = 0

	session, err := c.job.Source.Connect(ctx)
	if err != nil {
		return domain.MailboxInfo{}, false, fmt.Errorf("could not reconnect to source: %w", err)
	}
	c.session = session

	mailbox := session.Mailbox()
	untrusted, err := t.untrusted(c, mailbox)
	return mailbox, untrusted, err
}

// untrusted reports whether the UIDs of mailbox can no longer be matched
// against the ledger. A folder seen for the first time is recorded right away.
func (t *Transferrer) untrusted(c *cycle, mailbox domain.MailboxInfo) (bool, error) {
	if mailbox.UidValidity == 0 {
		return false, nil
	}

	l := c.l.WithFields(logrus.Fields{"folder": mailbox.Name, "uidvalidity": mailbox.UidValidity})
	known, err := t.ledger.Folder(c.durable, c.job.SourceId, mailbox.Name)
	if err != nil {
		return false, err
	}

	switch {
	case known == nil:
		l.Debug("Folder is a previously unknown folder, recording uid validity")
		if t.configuration.DryRun {
			return false, nil
		}
		return false, t.ledger.SaveFolder(c.durable, c.job.SourceId, mailbox.Name, mailbox.UidValidity)
	case known.UidValidity == mailbox.UidValidity:
		l.Debug("Folder is a known folder and the uid validity hasn't changed")
		return false, nil
	default:
		l.WithField("previous", known.UidValidity).Warn("Folder uid validity has changed, identifying messages by content")
		return true, nil
	}
}

func (t *Transferrer) process(ctx context.Context, c *cycle, handle *domain.MessageHandle) error {
	l := c.l.WithField("fingerprint", handle.Fingerprint)
	if len(handle.Subject) > 0 {
		l = l.WithField("subject", mail.ShortSubject(handle.Subject))
	}

	if c.failed[handle.Fingerprint] {
		l.Debug("Message failed earlier in this cycle, retrying next cycle")
		return nil
	}

	entry, err := t.ledger.Lookup(c.durable, c.job.SourceId, handle.Fingerprint)
	if err != nil {
		return err
	}
	if entry == nil && len(handle.ContentHash) > 0 {
		entry, err = t.adopt(c, handle, l)
		if err != nil {
			return err
		}
	}

	if entry != nil {
		switch entry.Status {
		case domain.StatusAppended:
			if c.job.DeleteAfterTransfer {
				l.Info("Message was transferred but not deleted, resuming delete")
				c.summary.Resumed++
				return t.delete(c, handle, true, l)
			}
			return t.skip(c, l)
		case domain.StatusDeleted:
			if c.job.DeleteAfterTransfer {
				l.Info("Message was deleted but is still present, staging delete again")
				c.summary.Resumed++
				return t.delete(c, handle, false, l)
			}
			return t.skip(c, l)
		case domain.StatusFailed:
			l.WithFields(logrus.Fields{"attempts": entry.Attempts, "reason": entry.Reason}).Info("Retrying failed message")
		case domain.StatusPending:
			l.Warn("Message was in flight when a previous cycle stopped, transferring again")
		}
	}

	return t.transfer(ctx, c, handle, l)
}

func (t *Transferrer) skip(c *cycle, l *logrus.Entry) error {
	l.WithField("reason", "already transferred").Debug("Skipping message")
	c.summary.Skipped++
	t.configuration.message(c.job.SourceId, metrics.OutcomeSkipped)
	return nil
}

// adopt looks for the outcome of the same content under another fingerprint
// and binds it to handle. It returns nil when there is nothing to adopt.
func (t *Transferrer) adopt(c *cycle, handle *domain.MessageHandle, l *logrus.Entry) (*domain.LedgerEntry, error) {
	prior, err := t.ledger.LookupContentHash(c.durable, c.job.SourceId, handle.ContentHash)
	if err != nil {
		return nil, err
	}
	if prior == nil || !prior.Status.Transferred() {
		return nil, nil
	}

	l = l.WithFields(logrus.Fields{"from": prior.Fingerprint, "status": prior.Status})
	if t.configuration.DryRun {
		l.Info("Not adopting previous outcome due to dry-run")
	} else {
		err = t.ledger.Adopt(c.durable, c.job.SourceId, handle.Fingerprint, prior)
		if err != nil {
			return nil, err
		}
		l.Debug("Known by content hash, adopted previous outcome")
	}
	c.summary.Adopted++
	t.configuration.message(c.job.SourceId, metrics.OutcomeAdopted)

	adopted := *prior
	adopted.Fingerprint = handle.Fingerprint
	return &adopted, nil
}

func (t *Transferrer) transfer(ctx context.Context, c *cycle, handle *domain.MessageHandle, l *logrus.Entry) error {
	c.attempts++
	if t.configuration.DryRun {
		l.Info("Not transferring message due to dry-run")
		c.summary.Skipped++
		t.configuration.message(c.job.SourceId, metrics.OutcomeSkipped)
		return nil
	}

	err := t.ledger.RecordPending(c.durable, c.job.SourceId, handle.Fingerprint)
	if err != nil {
		return err
	}

	raw, err := c.session.FetchRaw(ctx, handle)
	if err != nil {
		err = t.fail(c, handle, err, l)
		if domain.IsSessionFatal(err) {
			return &sourceDroppedError{Err: err}
		}
		return err
	}

	ref, err := c.dest.Append(c.durable, c.job.DestinationFolder, raw)
	if err != nil {
		return t.fail(c, handle, err, l)
	}

	err = t.ledger.RecordAppended(c.durable, c.job.SourceId, handle.Fingerprint, mail.ContentHash(raw), ref)
	if err != nil {
		return err
	}
	c.summary.Transferred++
	t.configuration.message(c.job.SourceId, metrics.OutcomeTransferred)
	l.WithFields(logrus.Fields{"ref": ref, "size": len(raw)}).Info("Transferred message")

	if c.job.DeleteAfterTransfer {
		return t.delete(c, handle, true, l)
	}
	return nil
}

// fail records err for handle. Errors that leave a session unusable abort the
// cycle after being recorded.
func (t *Transferrer) fail(c *cycle, handle *domain.MessageHandle, err error, l *logrus.Entry) error {
	recordErr := t.ledger.RecordFailed(c.durable, c.job.SourceId, handle.Fingerprint, err.Error())
	if recordErr != nil {
		return recordErr
	}
	c.failed[handle.Fingerprint] = true
	c.summary.Failed++
	t.configuration.message(c.job.SourceId, metrics.OutcomeFailed)
	l.WithField("reason", err).Warn("Could not transfer message")

	if domain.IsSessionFatal(err) {
		return err
	}
	return nil
}

// delete stages handle for removal at the source. record is false for
// messages the ledger already knows as deleted.
func (t *Transferrer) delete(c *cycle, handle *domain.MessageHandle, record bool, l *logrus.Entry) error {
	if t.configuration.DryRun {
		l.Info("Not deleting message due to dry-run")
		return nil
	}

	err := c.session.Delete(c.durable, handle)
	if err != nil {
		l.WithError(err).Warn("Could not delete transferred message, it stays at the source")
		if domain.IsSessionFatal(err) {
			return &sourceDroppedError{Err: err}
		}
		return nil
	}
	c.staged++

	if !record {
		return nil
	}

	err = t.ledger.RecordDeleted(c.durable, c.job.SourceId, handle.Fingerprint)
	if err != nil {
		return err
	}
	c.summary.Deleted++
	t.configuration.message(c.job.SourceId, metrics.OutcomeDeleted)
	return nil
}

func (t *Transferrer) commit(c *cycle) error {
	if c.staged == 0 {
		return nil
	}

	err := c.session.Commit(c.durable)
	if err != nil {
		c.l.WithError(err).WithField("staged", c.staged).Warn("Could not commit deletes, they are staged again next cycle")
		return fmt.Errorf("could not commit deletes: %w", err)
	}
	c.l.WithField("staged", c.staged).Debug("Committed deletes")
	return nil
}

// sourceDroppedError is a source session that broke while handling one
// message. The cycle continues on a new session.
type sourceDroppedError struct {
	Err error
}

func (e *sourceDroppedError) Error() string { return e.Err.Error() }

func (e *sourceDroppedError) Unwrap() error { return e.Err }
