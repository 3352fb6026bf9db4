// SPDX-License-Identifier: GPL-3.0-or-later
package pop3connection

import (
	"context"
	"crypto/tls"
	"fmt"
	"iter"
	"time"

	"github.com/CrawX/mailferry/config"
	"github.com/CrawX/mailferry/domain"
	"github.com/CrawX/mailferry/log"
	"github.com/CrawX/mailferry/mail"

	"github.com/sirupsen/logrus"
)

// Mailbox is the only folder a POP3 maildrop has.
const Mailbox = "INBOX"

// Source connects to a POP3 maildrop.
type Source struct {
	server  config.Server
	timeout time.Duration
	l       *logrus.Entry
}

var _ domain.SourceConnector = (*Source)(nil)

func NewSource(source *config.Source, timeout time.Duration) *Source {
	return &Source{
		server:  source.Server,
		timeout: timeout,
		l:       log.Logger(log.LOG_POP3).WithField("server", source.Address()),
	}
}

func (s *Source) Connect(ctx context.Context) (domain.SourceSession, error) {
	addr := s.server.Address()
	tlsConfig := &tls.Config{
		ServerName:         s.server.Host,
		InsecureSkipVerify: s.server.TlsSkipVerify,
	}

	var implicitTls *tls.Config
	if s.server.Encryption == config.EncryptionSsl {
		implicitTls = tlsConfig
	}

	c, err := Dial(ctx, addr, implicitTls, s.timeout)
	if err != nil {
		return nil, &domain.ConnectionError{Server: addr, Err: fmt.Errorf("could not dial to pop3: %w", err)}
	}

	if s.server.Encryption == config.EncryptionStartTls {
		err = c.StartTLS(ctx, tlsConfig)
		if err != nil {
			_ = c.Close()
			return nil, &domain.ConnectionError{Server: addr, Err: fmt.Errorf("could not start tls: %w", err)}
		}
	}

	err = c.Auth(ctx, s.server.Username, s.server.Password)
	if err != nil {
		if IsResponseError(err) {
			_ = c.Quit(ctx)
			return nil, &domain.AuthError{Server: addr, User: s.server.Username, Err: err}
		}
		_ = c.Close()
		return nil, &domain.ConnectionError{Server: addr, Err: fmt.Errorf("could not login to pop3: %w", err)}
	}

	s.l.WithField("tls", s.server.Encryption).Debug("Logged in to server")
	return &sourceSession{
		client: c,
		server: addr,
		l:      s.l,
	}, nil
}

type sourceSession struct {
	client *Client
	server string
	// messages marked with DELE in this session
	staged int
	done   bool

	l *logrus.Entry
}

var _ domain.SourceSession = (*sourceSession)(nil)

func (s *sourceSession) Mailbox() domain.MailboxInfo {
	return domain.MailboxInfo{Name: Mailbox}
}

func (s *sourceSession) classify(msg string, err error) error {
	if IsResponseError(err) {
		return fmt.Errorf("%s: %w", msg, err)
	}
	return &domain.ConnectionError{Server: s.server, Err: fmt.Errorf("%s: %w", msg, err)}
}

// ListCandidates announces every message by its UIDL. Servers without UIDL
// get a content hash of each message's header block instead, fetched lazily
// with TOP.
func (s *sourceSession) ListCandidates(ctx context.Context, untrusted bool) iter.Seq2[*domain.MessageHandle, error] {
	return func(yield func(*domain.MessageHandle, error) bool) {
		count, size, err := s.client.Stat(ctx)
		if err != nil {
			yield(nil, s.classify("could not read maildrop size", err))
			return
		}
		s.l.WithFields(logrus.Fields{"count": count, "size": size}).Debug("Maildrop status")
		if count == 0 {
			return
		}

		infos, err := s.client.Uidl(ctx)
		if err == nil {
			s.l.WithField("count", len(infos)).Debug("Listed messages by UIDL")
			for _, info := range infos {
				handle := &domain.MessageHandle{
					Id:          uint32(info.Number),
					Fingerprint: mail.UidlFingerprint(info.Uid),
				}
				if !yield(handle, nil) {
					return
				}
			}
			return
		}
		if !IsResponseError(err) {
			yield(nil, s.classify("could not list unique ids", err))
			return
		}

		s.l.WithError(err).Info("UIDL not supported on server, identifying messages by header hash")
		infos, err = s.client.List(ctx)
		if err != nil {
			yield(nil, s.classify("could not list messages", err))
			return
		}

		for _, info := range infos {
			headers, err := s.client.Top(ctx, info.Number, 0)
			if err != nil {
				if IsResponseError(err) {
					s.l.WithError(err).WithField("number", info.Number).Warn("Could not read headers, skipping message")
					continue
				}
				yield(nil, s.classify("could not read headers", err))
				return
			}

			contentHash := mail.ContentHash(headers)
			handle := &domain.MessageHandle{
				Id:          uint32(info.Number),
				Fingerprint: mail.HashFingerprint(contentHash),
				ContentHash: contentHash,
				Subject:     mail.Subject(headers),
			}
			if !yield(handle, nil) {
				return
			}
		}
	}
}

func (s *sourceSession) FetchRaw(ctx context.Context, handle *domain.MessageHandle) ([]byte, error) {
	raw, err := s.client.Retr(ctx, int(handle.Id))
	if err != nil {
		if IsResponseError(err) {
			return nil, &domain.FetchError{Id: handle.Id, Err: err}
		}
		return nil, s.classify("could not retrieve message", err)
	}
	return raw, nil
}

// Delete marks the message with DELE. It is only removed when Commit ends the
// session with QUIT.
func (s *sourceSession) Delete(ctx context.Context, handle *domain.MessageHandle) error {
	err := s.client.Dele(ctx, int(handle.Id))
	if err != nil {
		return s.classify("could not mark message deleted", err)
	}
	s.staged++
	return nil
}

// Commit sends QUIT, which ends the session, after checking with NOOP that
// the session is still alive.
func (s *sourceSession) Commit(ctx context.Context) error {
	if s.done {
		return nil
	}
	s.done = true

	// A session that died before QUIT has dropped its deletes.
	err := s.client.Noop(ctx)
	if err != nil {
		_ = s.client.Close()
		return s.classify("session lost before commit", err)
	}

	err = s.client.Quit(ctx)
	if err != nil {
		return s.classify("could not commit deletes", err)
	}
	s.l.WithField("deleted", s.staged).Debug("Session committed")
	return nil
}

// Close resets pending deletes unless Commit ran.
func (s *sourceSession) Close() error {
	if s.done {
		return nil
	}
	s.done = true

	ctx := context.Background()
	if s.staged > 0 {
		s.l.WithField("staged", s.staged).Info("Closing without commit, resetting deletes")
	}
	err := s.client.Rset(ctx)
	if err != nil {
		_ = s.client.Close()
		return fmt.Errorf("could not reset session: %w", err)
	}
	return s.client.Quit(ctx)
}
