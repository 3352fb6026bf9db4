// SPDX-License-Identifier: GPL-3.0-or-later
package domain

//go:generate mockgen -destination=mocks/source.go -package=mocks . SourceConnector,SourceSession,DestinationConnector,DestSession
import (
	"context"
	"iter"
)

type Protocol string

const (
	ProtocolImap = Protocol("imap")
	ProtocolPop3 = Protocol("pop3")
)

// Fingerprint identifies a source message across listings. The prefix names
// the identity kind: "imap:<uidvalidity>:<uid>", "uidl:<id>" or "hash:<sha256>".
type Fingerprint string

// MessageHandle is a message announced by ListCandidates. Id is the IMAP UID
// or the POP3 message number and is only meaningful within its session.
type MessageHandle struct {
	Id          uint32
	Fingerprint Fingerprint
	// ContentHash is set when the listing was asked for header identities,
	// i.e. when the folder's UIDs cannot be trusted.
	ContentHash string
	Subject     string
}

// MailboxInfo describes what a source session has opened. UidValidity is zero
// for protocols without one.
type MailboxInfo struct {
	Name        string
	UidValidity uint32
}

type SourceConnector interface {
	Connect(ctx context.Context) (SourceSession, error)
}

type SourceSession interface {
	Mailbox() MailboxInfo
	ListCandidates(ctx context.Context, untrusted bool) iter.Seq2[*MessageHandle, error]
	FetchRaw(ctx context.Context, handle *MessageHandle) ([]byte, error)
	Delete(ctx context.Context, handle *MessageHandle) error
	Commit(ctx context.Context) error
	Close() error
}

// AppendRef is the destination's identity for an appended message.
type AppendRef string

type DestinationConnector interface {
	Connect(ctx context.Context) (DestSession, error)
}

type DestSession interface {
	Append(ctx context.Context, folder string, rawMail []byte) (AppendRef, error)
	Close() error
}
