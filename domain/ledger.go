// SPDX-License-Identifier: GPL-3.0-or-later
package domain

//go:generate mockgen -destination=mocks/ledger.go -package=mocks . Ledger
import (
	"context"
	"errors"
	"time"
)

type Status string

const (
	StatusPending  = Status("pending")
	StatusAppended = Status("appended")
	StatusDeleted  = Status("deleted")
	StatusFailed   = Status("failed")
)

// Transferred reports whether the message reached the destination. Only these
// states skip a message in later cycles.
func (s Status) Transferred() bool {
	return s == StatusAppended || s == StatusDeleted
}

var ErrInvalidTransition = errors.New("invalid ledger status transition")

type LedgerEntry struct {
	SourceId    string
	Fingerprint Fingerprint
	Status      Status
	AppendRef   AppendRef
	ContentHash string
	Reason      string
	Attempts    int
	UpdatedAt   time.Time
}

type FolderState struct {
	SourceId    string
	Name        string
	UidValidity uint32
}

type SourceStats struct {
	SourceId string
	Pending  int
	Appended int
	Deleted  int
	Failed   int
}

type Ledger interface {
	Close() error

	// Lookup returns nil when no entry exists.
	Lookup(ctx context.Context, sourceId string, fingerprint Fingerprint) (*LedgerEntry, error)
	// LookupContentHash returns the most advanced entry carrying contentHash, or nil.
	LookupContentHash(ctx context.Context, sourceId string, contentHash string) (*LedgerEntry, error)

	RecordPending(ctx context.Context, sourceId string, fingerprint Fingerprint) error
	RecordAppended(ctx context.Context, sourceId string, fingerprint Fingerprint, contentHash string, ref AppendRef) error
	RecordDeleted(ctx context.Context, sourceId string, fingerprint Fingerprint) error
	RecordFailed(ctx context.Context, sourceId string, fingerprint Fingerprint, reason string) error
	// Adopt binds fingerprint to the outcome already recorded for from.
	Adopt(ctx context.Context, sourceId string, fingerprint Fingerprint, from *LedgerEntry) error

	Folder(ctx context.Context, sourceId string, folder string) (*FolderState, error)
	SaveFolder(ctx context.Context, sourceId string, folder string, uidValidity uint32) error

	Stats(ctx context.Context) ([]*SourceStats, error)
	ForgetSource(ctx context.Context, sourceId string) (int64, error)
}
