// SPDX-License-Identifier: GPL-3.0-or-later
package imapconnection

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/CrawX/mailferry/config"
	"github.com/CrawX/mailferry/domain"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap-compress"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/charset"
	"github.com/sirupsen/logrus"
)

func init() {
	imap.CharsetReader = charset.Reader
}

// imapConn is a logged in client plus the raw socket underneath it. go-imap
// leaves the command deadline armed after a command finishes, which would
// kill an idle connection; run clears it again.
type imapConn struct {
	*client.Client
	raw    net.Conn
	server string
	l      *logrus.Entry
}

// connect dials server according to its encryption mode and logs in. Socket and
// TLS failures are domain.ConnectionError, a rejected login is domain.AuthError.
func connect(ctx context.Context, server *config.Server, timeout time.Duration, l *logrus.Entry) (*imapConn, error) {
	addr := server.Address()
	connErr := func(format string, err error) error {
		return &domain.ConnectionError{Server: addr, Err: fmt.Errorf(format, err)}
	}

	dialer := &net.Dialer{Timeout: timeout}
	raw, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, connErr("could not dial to imap: %w", err)
	}

	tlsConfig := &tls.Config{
		ServerName:         server.Host,
		InsecureSkipVerify: server.TlsSkipVerify,
	}
	if server.Encryption == config.EncryptionSsl {
		raw = tls.Client(raw, tlsConfig)
	}

	// go-imap reads the greeting before we get the client back, bound it here.
	if timeout > 0 {
		_ = raw.SetDeadline(time.Now().Add(timeout))
	}
	c, err := client.New(raw)
	if err != nil {
		_ = raw.Close()
		return nil, connErr("could not read greeting: %w", err)
	}
	c.ErrorLog = l
	c.Timeout = timeout

	conn := &imapConn{
		Client: c,
		raw:    raw,
		server: addr,
		l:      l,
	}

	if server.Encryption == config.EncryptionStartTls {
		err = conn.run(ctx, func() error { return c.StartTLS(tlsConfig) })
		if err != nil {
			_ = c.Terminate()
			return nil, connErr("could not start tls: %w", err)
		}
	}

	err = conn.run(ctx, func() error { return c.Login(server.Username, server.Password) })
	if err != nil {
		if conn.broken(err) {
			_ = c.Terminate()
			return nil, connErr("could not login to imap: %w", err)
		}
		_ = c.Logout()
		return nil, &domain.AuthError{Server: addr, User: server.Username, Err: err}
	}

	if server.Compress {
		conn.compress(ctx)
	}

	l.WithField("tls", server.Encryption).Debug("Logged in to server")
	return conn, nil
}

func (c *imapConn) compress(ctx context.Context) {
	compressClient := compress.NewClient(c.Client)
	supported, err := compressClient.SupportCompress(compress.Deflate)
	if err != nil {
		c.l.WithError(err).Warn("Could not check for COMPRESS support")
		return
	}
	if !supported {
		c.l.Info("COMPRESS=DEFLATE not supported on server, continuing uncompressed")
		return
	}

	err = c.run(ctx, func() error { return compressClient.Compress(compress.Deflate) })
	if err != nil {
		c.l.WithError(err).Warn("Could not enable compression")
		return
	}
	c.l.Debug("Enabled COMPRESS=DEFLATE")
}

// run executes one IMAP command. A cancelled ctx aborts the command by
// expiring the socket deadline, which leaves the connection unusable.
func (c *imapConn) run(ctx context.Context, command func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	stop := context.AfterFunc(ctx, func() {
		_ = c.raw.SetDeadline(time.Now())
	})
	err := command()
	if stop() {
		_ = c.raw.SetDeadline(time.Time{})
	}
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	return err
}

// broken reports whether err came from a connection that can no longer be used.
func (c *imapConn) broken(err error) bool {
	select {
	case <-c.LoggedOut():
		return true
	default:
	}

	var netErr net.Error
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.As(err, &netErr)
}

// classify turns err into a domain.ConnectionError when the connection broke
// and wraps it with msg otherwise.
func (c *imapConn) classify(msg string, err error) error {
	if c.broken(err) {
		return &domain.ConnectionError{Server: c.server, Err: fmt.Errorf("%s: %w", msg, err)}
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func (c *imapConn) logout() error {
	select {
	case <-c.LoggedOut():
		return nil
	default:
	}

	err := c.Logout()
	if err != nil && !errors.Is(err, client.ErrAlreadyLoggedOut) {
		_ = c.Terminate()
		return fmt.Errorf("could not logout: %w", err)
	}
	return nil
}
