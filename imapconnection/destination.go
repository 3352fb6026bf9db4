// SPDX-License-Identifier: GPL-3.0-or-later
package imapconnection

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/CrawX/mailferry/config"
	"github.com/CrawX/mailferry/domain"
	"github.com/CrawX/mailferry/log"
	"github.com/CrawX/mailferry/mail"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap-uidplus"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Destination appends to folders of one IMAP account.
type Destination struct {
	server  config.Server
	timeout time.Duration
	l       *logrus.Entry
}

var _ domain.DestinationConnector = (*Destination)(nil)

func NewDestination(destination *config.Destination, timeout time.Duration) *Destination {
	return &Destination{
		server:  destination.Server,
		timeout: timeout,
		l:       log.Logger(log.LOG_IMAP).WithField("server", destination.Address()),
	}
}

func (d *Destination) Connect(ctx context.Context) (domain.DestSession, error) {
	conn, err := connect(ctx, &d.server, d.timeout, d.l)
	if err != nil {
		return nil, err
	}

	uidPlusClient := uidplus.NewClient(conn.Client)
	var uidPlusSupported bool
	err = conn.run(ctx, func() (err error) {
		uidPlusSupported, err = uidPlusClient.SupportUidPlus()
		return err
	})
	if err != nil {
		_ = conn.logout()
		return nil, conn.classify("could not check for UIDPLUS support", err)
	}

	session := &destSession{
		conn:    conn,
		folders: map[string]bool{},
		l:       d.l,
	}
	if uidPlusSupported {
		d.l.Debug("UIDPLUS supported on server, using APPENDUID references")
		session.appender = uidPlusClient
	} else {
		d.l.Debug("UIDPLUS not supported on server, using synthetic references")
	}

	return session, nil
}

type uidAppender interface {
	Append(mbox string, flags []string, date time.Time, msg imap.Literal) (validity, uid uint32, err error)
}

type destSession struct {
	conn     *imapConn
	appender uidAppender
	// folders known to exist
	folders map[string]bool

	l *logrus.Entry
}

var _ domain.DestSession = (*destSession)(nil)

func (d *destSession) Append(ctx context.Context, folder string, rawMail []byte) (domain.AppendRef, error) {
	err := d.ensureFolder(ctx, folder)
	if err != nil {
		return "", err
	}

	date := mail.Date(rawMail)
	var validity, uid uint32
	err = d.conn.run(ctx, func() (err error) {
		if d.appender != nil {
			validity, uid, err = d.appender.Append(folder, nil, date, bytes.NewReader(rawMail))
			return err
		}
		return d.conn.Append(folder, nil, date, bytes.NewReader(rawMail))
	})
	if err != nil {
		if d.conn.broken(err) {
			return "", d.conn.classify("could not append", err)
		}
		return "", &domain.AppendError{Folder: folder, Err: err}
	}

	var ref domain.AppendRef
	if uid != 0 {
		ref = domain.AppendRef(fmt.Sprintf("%s;UIDVALIDITY=%d;UID=%d", folder, validity, uid))
	} else {
		ref = domain.AppendRef(fmt.Sprintf("%s;REF=%s", folder, uuid.NewString()))
	}

	d.l.WithFields(logrus.Fields{"folder": folder, "ref": ref, "size": len(rawMail)}).Trace("Appended message")
	return ref, nil
}

// ensureFolder creates folder unless it exists. A concurrent create by
// someone else is fine.
func (d *destSession) ensureFolder(ctx context.Context, folder string) error {
	if d.folders[folder] {
		return nil
	}

	exists := func() bool {
		err := d.conn.run(ctx, func() error {
			_, err := d.conn.Status(folder, []imap.StatusItem{imap.StatusMessages})
			return err
		})
		return err == nil
	}

	if !exists() {
		err := d.conn.run(ctx, func() error { return d.conn.Create(folder) })
		switch {
		case err == nil:
			d.l.WithField("folder", folder).Info("Created folder")
		case d.conn.broken(err):
			return d.conn.classify("could not create folder", err)
		case strings.Contains(strings.ToUpper(err.Error()), "ALREADYEXISTS") || exists():
			d.l.WithField("folder", folder).Debug("Folder was created concurrently")
		default:
			return &domain.AppendError{Folder: folder, Err: fmt.Errorf("could not create folder: %w", err)}
		}
	}

	d.folders[folder] = true
	return nil
}

func (d *destSession) Close() error {
	return d.conn.logout()
}
