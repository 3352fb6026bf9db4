// SPDX-License-Identifier: GPL-3.0-or-later
package scheduler

import (
	"context"

	"github.com/CrawX/mailferry/domain"

	"github.com/sirupsen/logrus"
)

// lazyDestination is the destination session shared by the sources of one
// group during a tick. It connects on the first append and again after the
// session broke.
type lazyDestination struct {
	connector domain.DestinationConnector
	session   domain.DestSession

	l *logrus.Entry
}

var _ domain.DestSession = (*lazyDestination)(nil)

func (d *lazyDestination) Append(ctx context.Context, folder string, rawMail []byte) (domain.AppendRef, error) {
	if d.session == nil {
		session, err := d.connector.Connect(ctx)
		if err != nil {
			return "", err
		}
		d.l.Debug("Connected to destination")
		d.session = session
	}

	ref, err := d.session.Append(ctx, folder, rawMail)
	if domain.IsSessionFatal(err) {
		d.l.WithError(err).Info("Destination session broke, reconnecting on next append")
		_ = d.session.Close()
		d.session = nil
	}
	return ref, err
}

func (d *lazyDestination) Close() error {
	if d.session == nil {
		return nil
	}
	err := d.session.Close()
	d.session = nil
	return err
}
