// SPDX-License-Identifier: GPL-3.0-or-later
package pop3connection

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"time"
)

// ResponseError is a -ERR answer. The connection stays usable.
type ResponseError struct {
	Command string
	Message string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s rejected: %s", e.Command, e.Message)
}

// Client speaks POP3 (RFC 1939) plus STLS (RFC 2595) over one connection.
// It is not safe for concurrent use.
type Client struct {
	raw     net.Conn
	text    *textproto.Conn
	timeout time.Duration
}

// MessageInfo is one line of a LIST or UIDL answer.
type MessageInfo struct {
	Number int
	Size   int
	Uid    string
}

// Dial connects to addr and reads the greeting. With tlsConfig set the
// connection is TLS from the start.
func Dial(ctx context.Context, addr string, tlsConfig *tls.Config, timeout time.Duration) (*Client, error) {
	dialer := &net.Dialer{Timeout: timeout}
	raw, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	if tlsConfig != nil {
		tlsConn := tls.Client(raw, tlsConfig)
		err = handshake(ctx, tlsConn, timeout)
		if err != nil {
			_ = raw.Close()
			return nil, err
		}
		raw = tlsConn
	}

	c := NewClient(raw, timeout)
	_, err = c.response(ctx, "greeting")
	if err != nil {
		_ = c.Close()
		return nil, err
	}

	return c, nil
}

// NewClient wraps an established connection whose greeting has not been read.
func NewClient(conn net.Conn, timeout time.Duration) *Client {
	return &Client{
		raw:     conn,
		text:    textproto.NewConn(conn),
		timeout: timeout,
	}
}

func handshake(ctx context.Context, conn *tls.Conn, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return conn.HandshakeContext(ctx)
}

// StartTLS upgrades the connection with STLS.
func (c *Client) StartTLS(ctx context.Context, tlsConfig *tls.Config) error {
	_, err := c.cmd(ctx, "STLS")
	if err != nil {
		return err
	}

	tlsConn := tls.Client(c.raw, tlsConfig)
	err = handshake(ctx, tlsConn, c.timeout)
	if err != nil {
		return err
	}

	c.raw = tlsConn
	c.text = textproto.NewConn(tlsConn)
	return nil
}

func (c *Client) Auth(ctx context.Context, user string, password string) error {
	_, err := c.cmd(ctx, "USER %s", user)
	if err != nil {
		return err
	}

	_, err = c.cmdNamed(ctx, "PASS", "PASS %s", password)
	return err
}

// Stat returns the message count and the maildrop size in octets.
func (c *Client) Stat(ctx context.Context) (int, int, error) {
	line, err := c.cmd(ctx, "STAT")
	if err != nil {
		return 0, 0, err
	}

	var count, size int
	_, err = fmt.Sscanf(line, "%d %d", &count, &size)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed STAT answer %q: %w", line, err)
	}
	return count, size, nil
}

// List returns number and size of every message not marked deleted.
func (c *Client) List(ctx context.Context) ([]MessageInfo, error) {
	lines, err := c.multiline(ctx, "LIST")
	if err != nil {
		return nil, err
	}

	infos := make([]MessageInfo, 0, len(lines))
	for _, line := range lines {
		var info MessageInfo
		_, err = fmt.Sscanf(line, "%d %d", &info.Number, &info.Size)
		if err != nil {
			return nil, fmt.Errorf("malformed LIST line %q: %w", line, err)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// Uidl returns the unique id of every message not marked deleted. Servers
// without UIDL answer with a *ResponseError.
func (c *Client) Uidl(ctx context.Context) ([]MessageInfo, error) {
	lines, err := c.multiline(ctx, "UIDL")
	if err != nil {
		return nil, err
	}

	infos := make([]MessageInfo, 0, len(lines))
	for _, line := range lines {
		number, uid, found := strings.Cut(strings.TrimSpace(line), " ")
		n, err := strconv.Atoi(number)
		if !found || err != nil || len(strings.TrimSpace(uid)) == 0 {
			return nil, fmt.Errorf("malformed UIDL line %q", line)
		}
		infos = append(infos, MessageInfo{Number: n, Uid: strings.TrimSpace(uid)})
	}
	return infos, nil
}

// Top returns the header block and the first lines of the body of message n.
func (c *Client) Top(ctx context.Context, n int, lines int) ([]byte, error) {
	return c.multilineBytes(ctx, "TOP", "TOP %d %d", n, lines)
}

// Retr returns message n with CRLF line endings and dot-stuffing removed.
func (c *Client) Retr(ctx context.Context, n int) ([]byte, error) {
	return c.multilineBytes(ctx, "RETR", "RETR %d", n)
}

// Dele marks message n deleted. The server removes it on Quit.
func (c *Client) Dele(ctx context.Context, n int) error {
	_, err := c.cmd(ctx, "DELE %d", n)
	return err
}

// Rset unmarks all messages marked deleted.
func (c *Client) Rset(ctx context.Context) error {
	_, err := c.cmd(ctx, "RSET")
	return err
}

func (c *Client) Noop(ctx context.Context) error {
	_, err := c.cmd(ctx, "NOOP")
	return err
}

// Quit ends the session and lets the server remove messages marked deleted.
// The connection is closed in any case.
func (c *Client) Quit(ctx context.Context) error {
	_, err := c.cmd(ctx, "QUIT")
	closeErr := c.Close()
	if err != nil {
		return err
	}
	return closeErr
}

func (c *Client) Close() error {
	return c.text.Close()
}

// exchange arms the deadline for one command and aborts it when ctx ends.
func (c *Client) exchange(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if c.timeout > 0 {
		_ = c.raw.SetDeadline(time.Now().Add(c.timeout))
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.raw.SetDeadline(time.Now())
	})
	err := fn()
	if stop() {
		_ = c.raw.SetDeadline(time.Time{})
	}
	if err != nil && ctx.Err() != nil {
		return fmt.Errorf("%w: %w", ctx.Err(), err)
	}
	return err
}

func commandName(format string) string {
	name, _, _ := strings.Cut(format, " ")
	return name
}

func (c *Client) cmd(ctx context.Context, format string, args ...any) (string, error) {
	return c.cmdNamed(ctx, commandName(format), format, args...)
}

// cmdNamed sends one command and reads its status line. name is used in
// errors so that arguments such as passwords are never logged.
func (c *Client) cmdNamed(ctx context.Context, name string, format string, args ...any) (string, error) {
	var line string
	err := c.exchange(ctx, func() error {
		err := c.text.PrintfLine(format, args...)
		if err != nil {
			return err
		}
		line, err = c.readStatus(name)
		return err
	})
	return line, err
}

func (c *Client) response(ctx context.Context, name string) (string, error) {
	var line string
	err := c.exchange(ctx, func() (err error) {
		line, err = c.readStatus(name)
		return err
	})
	return line, err
}

func (c *Client) readStatus(name string) (string, error) {
	line, err := c.text.ReadLine()
	if err != nil {
		return "", err
	}

	switch {
	case strings.HasPrefix(line, "+OK"):
		return strings.TrimSpace(strings.TrimPrefix(line, "+OK")), nil
	case strings.HasPrefix(line, "-ERR"):
		return "", &ResponseError{Command: name, Message: strings.TrimSpace(strings.TrimPrefix(line, "-ERR"))}
	default:
		return "", textproto.ProtocolError(fmt.Sprintf("unexpected answer to %s: %q", name, line))
	}
}

func (c *Client) multiline(ctx context.Context, format string, args ...any) ([]string, error) {
	name := commandName(format)
	var lines []string
	err := c.exchange(ctx, func() error {
		err := c.text.PrintfLine(format, args...)
		if err != nil {
			return err
		}
		_, err = c.readStatus(name)
		if err != nil {
			return err
		}
		lines, err = c.text.ReadDotLines()
		return err
	})
	return lines, err
}

func (c *Client) multilineBytes(ctx context.Context, name string, format string, args ...any) ([]byte, error) {
	var raw []byte
	err := c.exchange(ctx, func() error {
		err := c.text.PrintfLine(format, args...)
		if err != nil {
			return err
		}
		_, err = c.readStatus(name)
		if err != nil {
			return err
		}
		raw, err = io.ReadAll(c.text.DotReader())
		return err
	})
	if err != nil {
		return nil, err
	}

	// DotReader turns CRLF into LF.
	return bytes.ReplaceAll(raw, []byte("\n"), []byte("\r\n")), nil
}

// IsResponseError reports whether err is a -ERR answer rather than a
// transport failure.
func IsResponseError(err error) bool {
	var respErr *ResponseError
	return errors.As(err, &respErr)
}
