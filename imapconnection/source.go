// SPDX-License-Identifier: GPL-3.0-or-later
package imapconnection

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/textproto"
	"slices"
	"strings"
	"time"

	"github.com/CrawX/mailferry/config"
	"github.com/CrawX/mailferry/domain"
	"github.com/CrawX/mailferry/log"
	"github.com/CrawX/mailferry/mail"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap-uidplus"
	"github.com/emersion/go-imap/commands"
	"github.com/sirupsen/logrus"
)

// headerBatchSize is how many header identities are fetched per command when
// a folder's UIDs cannot be trusted.
const headerBatchSize = 50

var idHeaderSection = &imap.BodySectionName{
	BodyPartName: imap.BodyPartName{
		Specifier: imap.HeaderSpecifier,
		Fields:    append(slices.Clone(mail.IdHeaders), "Subject"),
	},
	Peek: true,
}

var fullBodySection = &imap.BodySectionName{
	Peek: true,
}

// ParseSearchCriteria parses IMAP SEARCH syntax such as `UNSEEN SINCE
// 1-Jan-2024`, optionally prefixed by `CHARSET <name>`.
func ParseSearchCriteria(raw string) (*imap.SearchCriteria, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) == 0 {
		return imap.NewSearchCriteria(), nil
	}

	r := imap.NewReader(bufio.NewReader(strings.NewReader(raw + "\r\n")))
	fields, err := r.ReadLine()
	if err != nil {
		return nil, fmt.Errorf("could not read search criteria %q: %w", raw, err)
	}

	cmd := &commands.Search{}
	err = cmd.Parse(fields)
	if err != nil {
		return nil, fmt.Errorf("could not parse search criteria %q: %w", raw, err)
	}
	if cmd.Criteria.Header == nil {
		cmd.Criteria.Header = textproto.MIMEHeader{}
	}

	return cmd.Criteria, nil
}

// Source connects to one folder of an IMAP account.
type Source struct {
	server   config.Server
	folder   string
	criteria *imap.SearchCriteria
	timeout  time.Duration
	l        *logrus.Entry
}

var _ domain.SourceConnector = (*Source)(nil)

func NewSource(source *config.Source, timeout time.Duration) (*Source, error) {
	criteria, err := ParseSearchCriteria(source.SearchCriteria)
	if err != nil {
		return nil, err
	}

	return &Source{
		server:   source.Server,
		folder:   source.Folder,
		criteria: criteria,
		timeout:  timeout,
		l: log.Logger(log.LOG_IMAP).WithFields(logrus.Fields{
			"server": source.Address(),
			"folder": source.Folder,
		}),
	}, nil
}

func (s *Source) Connect(ctx context.Context) (domain.SourceSession, error) {
	conn, err := connect(ctx, &s.server, s.timeout, s.l)
	if err != nil {
		return nil, err
	}

	session, err := s.open(ctx, conn)
	if err != nil {
		_ = conn.logout()
		return nil, err
	}

	return session, nil
}

func (s *Source) open(ctx context.Context, conn *imapConn) (*sourceSession, error) {
	uidPlusClient := uidplus.NewClient(conn.Client)

	var uidPlusSupported bool
	err := conn.run(ctx, func() (err error) {
		uidPlusSupported, err = uidPlusClient.SupportUidPlus()
		return err
	})
	if err != nil {
		return nil, conn.classify("could not check for UIDPLUS support", err)
	}

	var status *imap.MailboxStatus
	err = conn.run(ctx, func() (err error) {
		status, err = conn.Select(s.folder, false)
		return err
	})
	if err != nil {
		if conn.broken(err) {
			return nil, conn.classify("could not select folder", err)
		}
		return nil, &domain.ConnectionError{Server: conn.server, Err: fmt.Errorf("could not select folder %s: %w", s.folder, err)}
	}

	session := &sourceSession{
		conn:     conn,
		criteria: s.criteria,
		mailbox: domain.MailboxInfo{
			Name:        s.folder,
			UidValidity: status.UidValidity,
		},
		l: s.l.WithField("uidvalidity", status.UidValidity),
	}

	if uidPlusSupported {
		session.l.Debug("UIDPLUS supported on server, using UID expunge")
		session.mailDeleter = &uidPlusDeleter{imapConn: uidPlusClient}
	} else {
		session.l.Info("UIDPLUS not supported on server, falling back to flag&expunge")
		session.mailDeleter = &compatibilityDeleter{imapConn: conn.Client}
	}

	session.l.WithField("messages", status.Messages).Debug("Selected folder")
	return session, nil
}

type sourceSession struct {
	conn        *imapConn
	mailDeleter deleter
	criteria    *imap.SearchCriteria
	mailbox     domain.MailboxInfo

	staged []uint32

	l *logrus.Entry
}

var _ domain.SourceSession = (*sourceSession)(nil)

func (s *sourceSession) Mailbox() domain.MailboxInfo {
	return s.mailbox
}

// ListCandidates searches once and then walks the result in ascending UID
// order. Header identities are fetched batch by batch as the consumer advances.
func (s *sourceSession) ListCandidates(ctx context.Context, untrusted bool) iter.Seq2[*domain.MessageHandle, error] {
	return func(yield func(*domain.MessageHandle, error) bool) {
		var uids []uint32
		err := s.conn.run(ctx, func() (err error) {
			uids, err = s.conn.UidSearch(s.criteria)
			return err
		})
		if err != nil {
			yield(nil, s.conn.classify("could not search folder", err))
			return
		}
		slices.Sort(uids)
		s.l.WithField("count", len(uids)).Debug("Found candidates")

		for batch := range slices.Chunk(uids, headerBatchSize) {
			var identities map[uint32]*identity
			if untrusted {
				identities, err = s.identities(ctx, batch)
				if err != nil {
					yield(nil, err)
					return
				}
			}

			for _, uid := range batch {
				handle := &domain.MessageHandle{
					Id:          uid,
					Fingerprint: mail.ImapFingerprint(s.mailbox.UidValidity, uid),
				}
				if id, ok := identities[uid]; ok {
					handle.ContentHash = id.contentHash
					handle.Subject = id.subject
				}

				if !yield(handle, nil) {
					return
				}
			}
		}
	}
}

type identity struct {
	contentHash string
	subject     string
}

// identities returns the content hash of every uid still present. Messages
// without id headers are hashed over their full content.
func (s *sourceSession) identities(ctx context.Context, uids []uint32) (map[uint32]*identity, error) {
	headers, err := s.fetch(ctx, uids, idHeaderSection)
	if err != nil {
		return nil, err
	}

	result := map[uint32]*identity{}
	headerless := []uint32{}
	for uid, raw := range headers {
		subject, mailIdHash, err := mail.MailHeaderInfos(raw)
		if errors.Is(err, mail.ErrNoIdHeaders) {
			headerless = append(headerless, uid)
			continue
		}
		if err != nil {
			s.l.WithError(err).WithField("uid", uid).Warn("Could not parse header identity")
			headerless = append(headerless, uid)
			continue
		}
		result[uid] = &identity{contentHash: mailIdHash, subject: subject}
	}

	if len(headerless) > 0 {
		full, err := s.fetch(ctx, headerless, fullBodySection)
		if err != nil {
			return nil, err
		}
		for uid, raw := range full {
			result[uid] = &identity{contentHash: mail.ContentHash(raw), subject: mail.Subject(raw)}
		}
	}

	return result, nil
}

func (s *sourceSession) fetch(ctx context.Context, uids []uint32, section *imap.BodySectionName) (map[uint32][]byte, error) {
	seqset := &imap.SeqSet{}
	seqset.AddNum(uids...)
	fetchItems := []imap.FetchItem{imap.FetchUid, section.FetchItem()}

	result := map[uint32][]byte{}
	var readErr error
	err := s.conn.run(ctx, func() error {
		messages := make(chan *imap.Message, 10)
		done := make(chan error, 1)
		go func() {
			done <- s.conn.UidFetch(seqset, fetchItems, messages)
		}()

		for msg := range messages {
			r := msg.GetBody(section)
			if r == nil {
				continue
			}
			raw, err := io.ReadAll(r)
			if err != nil {
				readErr = err
				continue
			}
			result[msg.Uid] = raw
		}

		return <-done
	})
	if err != nil {
		return nil, s.conn.classify("could not fetch mails", err)
	}
	if readErr != nil {
		return nil, fmt.Errorf("could not read mail body: %w", readErr)
	}

	return result, nil
}

func (s *sourceSession) FetchRaw(ctx context.Context, handle *domain.MessageHandle) ([]byte, error) {
	mails, err := s.fetch(ctx, []uint32{handle.Id}, fullBodySection)
	if err != nil {
		if domain.IsSessionFatal(err) {
			return nil, err
		}
		return nil, &domain.FetchError{Id: handle.Id, Err: err}
	}

	raw, ok := mails[handle.Id]
	if !ok {
		return nil, &domain.FetchError{Id: handle.Id, Err: errors.New("message no longer exists")}
	}

	return raw, nil
}

// Delete flags the message \Deleted. It is removed by Commit.
func (s *sourceSession) Delete(ctx context.Context, handle *domain.MessageHandle) error {
	seqset := &imap.SeqSet{}
	seqset.AddNum(handle.Id)

	err := s.conn.run(ctx, func() error {
		return s.conn.UidStore(seqset, imap.FormatFlagsOp(imap.AddFlags, true), []interface{}{imap.DeletedFlag}, nil)
	})
	if err != nil {
		return s.conn.classify("could not set delete flag", err)
	}

	s.staged = append(s.staged, handle.Id)
	return nil
}

// Commit expunges the staged messages. Without UIDPLUS the folder is only
// expunged when no other message carries \Deleted, otherwise the staged
// messages stay flagged until a later cycle finds the folder clean.
func (s *sourceSession) Commit(ctx context.Context) error {
	if len(s.staged) == 0 {
		return nil
	}

	var expunged int
	err := s.conn.run(ctx, func() (err error) {
		expunged, err = s.mailDeleter.commit(s.staged)
		return err
	})
	if errors.Is(err, ErrForeignDeletedItems) {
		s.l.WithField("staged", len(s.staged)).Warn("Not expunging, folder has messages flagged deleted by someone else")
		s.staged = nil
		return nil
	}
	if err != nil {
		return s.conn.classify("could not commit deletes", err)
	}

	logger := s.l.WithFields(logrus.Fields{"staged": len(s.staged), "expunged": expunged})
	if expunged != len(s.staged) {
		logger.Warn("Unexpected number of expunges")
	} else {
		logger.Debug("Expunged messages")
	}
	s.staged = nil
	return nil
}

func (s *sourceSession) Close() error {
	if len(s.staged) > 0 {
		s.l.WithField("staged", len(s.staged)).Info("Closing without commit, messages stay flagged deleted")
	}
	return s.conn.logout()
}
