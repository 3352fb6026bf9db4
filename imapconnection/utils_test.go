// SPDX-License-Identifier: GPL-3.0-or-later
package imapconnection

import (
	"fmt"
	"io"
	stdlog "log"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/CrawX/mailferry/config"

	"github.com/emersion/go-imap/backend/memory"
	"github.com/emersion/go-imap/server"
	"github.com/stretchr/testify/require"
)

func u32(val int) uint32 {
	return uint32(val)
}

func u32a(val ...int) []uint32 {
	a := []uint32{}
	for _, v := range val {
		a = append(a, u32(v))
	}

	return a
}

func testMail(n int) []byte {
	return []byte(fmt.Sprintf("From: sender@example.org\r\n"+
		"To: receiver@example.org\r\n"+
		"Subject: Message %d\r\n"+
		"Date: Wed, 11 May 2016 14:31:59 +0000\r\n"+
		"Message-ID: <%d@example.org>\r\n"+
		"Content-Type: text/plain\r\n"+
		"\r\n"+
		"Body of message %d\r\n", n, n, n))
}

// startServer runs an in-memory IMAP server holding the user
// "username"/"password" whose INBOX contains one seen message with UID 6.
func startServer(t *testing.T) (*memory.Backend, *config.Server) {
	t.Helper()

	be := memory.New()
	s := server.New(be)
	s.AllowInsecureAuth = true
	s.ErrorLog = stdlog.New(io.Discard, "", 0)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		_ = s.Serve(listener)
	}()
	t.Cleanup(func() { _ = s.Close() })

	_, port, err := net.SplitHostPort(listener.Addr().String())
	require.NoError(t, err)
	portNum, err := strconv.Atoi(port)
	require.NoError(t, err)

	return be, &config.Server{
		Host:       "127.0.0.1",
		Port:       portNum,
		Encryption: config.EncryptionNone,
		Username:   "username",
		Password:   "password",
	}
}

func mailbox(t *testing.T, be *memory.Backend, name string) *memory.Mailbox {
	t.Helper()

	user, err := be.Login(nil, "username", "password")
	require.NoError(t, err)
	mbox, err := user.GetMailbox(name)
	require.NoError(t, err)
	return mbox.(*memory.Mailbox)
}

func seed(t *testing.T, be *memory.Backend, name string, uid uint32, body []byte, flags ...string) {
	t.Helper()

	mbox := mailbox(t, be, name)
	mbox.Messages = append(mbox.Messages, &memory.Message{
		Uid:   uid,
		Date:  time.Now(),
		Flags: flags,
		Size:  uint32(len(body)),
		Body:  body,
	})
}

func uids(mbox *memory.Mailbox) []uint32 {
	result := []uint32{}
	for _, m := range mbox.Messages {
		result = append(result, m.Uid)
	}
	return result
}
