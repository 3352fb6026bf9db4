// SPDX-License-Identifier: GPL-3.0-or-later
package pop3connection

import (
	"bytes"
	"fmt"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/CrawX/mailferry/config"

	"github.com/stretchr/testify/require"
)

type testMessage struct {
	uid  string
	body []byte
}

// testMaildrop is a scripted POP3 server for one user.
type testMaildrop struct {
	mu       sync.Mutex
	messages []*testMessage
	commands []string

	noUidl     bool
	dropOnRetr int
}

func startMaildrop(t *testing.T, messages ...*testMessage) (*testMaildrop, *config.Server) {
	t.Helper()

	m := &testMaildrop{messages: messages}
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go m.serve(conn)
		}
	}()

	return m, &config.Server{
		Host:       "127.0.0.1",
		Port:       listener.Addr().(*net.TCPAddr).Port,
		Encryption: config.EncryptionNone,
		Username:   "user",
		Password:   "secret",
	}
}

func (m *testMaildrop) uids() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	uids := []string{}
	for _, msg := range m.messages {
		uids = append(uids, msg.uid)
	}
	return uids
}

func (m *testMaildrop) received() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.commands...)
}

func (m *testMaildrop) serve(conn net.Conn) {
	defer conn.Close()
	text := textproto.NewConn(conn)
	ok := func(format string, args ...any) { _ = text.PrintfLine("+OK "+format, args...) }
	fail := func(msg string) { _ = text.PrintfLine("-ERR %s", msg) }

	ok("test maildrop ready")

	var user string
	var snapshot []*testMessage
	marked := map[int]bool{}

	message := func(arg string) (int, *testMessage) {
		n, err := strconv.Atoi(strings.Fields(arg + " x")[0])
		if err != nil || n < 1 || n > len(snapshot) || marked[n] {
			return 0, nil
		}
		return n, snapshot[n-1]
	}

	for {
		line, err := text.ReadLine()
		if err != nil {
			return
		}
		cmd, arg, _ := strings.Cut(line, " ")
		cmd = strings.ToUpper(cmd)

		m.mu.Lock()
		m.commands = append(m.commands, cmd)
		noUidl, dropOnRetr := m.noUidl, m.dropOnRetr
		m.mu.Unlock()

		if snapshot == nil && cmd != "USER" && cmd != "PASS" && cmd != "QUIT" {
			fail("not authenticated")
			continue
		}

		switch cmd {
		case "USER":
			user = arg
			ok("send password")
		case "PASS":
			if user != "user" || arg != "secret" {
				fail("invalid credentials")
				continue
			}
			m.mu.Lock()
			snapshot = append([]*testMessage{}, m.messages...)
			m.mu.Unlock()
			ok("logged in")
		case "STAT":
			ok("%d %d", len(snapshot)-len(marked), 0)
		case "LIST":
			ok("scan listing follows")
			w := text.DotWriter()
			for i, msg := range snapshot {
				if !marked[i+1] {
					fmt.Fprintf(w, "%d %d\r\n", i+1, len(msg.body))
				}
			}
			_ = w.Close()
		case "UIDL":
			if noUidl {
				fail("command not supported")
				continue
			}
			ok("unique-id listing follows")
			w := text.DotWriter()
			for i, msg := range snapshot {
				if !marked[i+1] {
					fmt.Fprintf(w, "%d %s\r\n", i+1, msg.uid)
				}
			}
			_ = w.Close()
		case "TOP":
			_, msg := message(arg)
			if msg == nil {
				fail("no such message")
				continue
			}
			header, _, _ := bytes.Cut(msg.body, []byte("\r\n\r\n"))
			ok("top of message follows")
			w := text.DotWriter()
			_, _ = w.Write(append(header, []byte("\r\n\r\n")...))
			_ = w.Close()
		case "RETR":
			n, msg := message(arg)
			if msg == nil {
				fail("no such message")
				continue
			}
			if n == dropOnRetr {
				return
			}
			ok("%d octets", len(msg.body))
			w := text.DotWriter()
			_, _ = w.Write(msg.body)
			_ = w.Close()
		case "DELE":
			n, msg := message(arg)
			if msg == nil {
				fail("no such message")
				continue
			}
			marked[n] = true
			ok("message %d deleted", n)
		case "RSET":
			marked = map[int]bool{}
			ok("maildrop reset")
		case "NOOP":
			ok("")
		case "QUIT":
			if len(marked) > 0 {
				m.mu.Lock()
				kept := []*testMessage{}
				for _, msg := range m.messages {
					remove := false
					for n := range marked {
						if snapshot[n-1] == msg {
							remove = true
						}
					}
					if !remove {
						kept = append(kept, msg)
					}
				}
				m.messages = kept
				m.mu.Unlock()
			}
			ok("bye")
			return
		default:
			fail("unknown command")
		}
	}
}
