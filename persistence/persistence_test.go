// SPDX-License-Identifier: GPL-3.0-or-later
package persistence

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/CrawX/mailferry/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const source = "imap://user@example.com:993/INBOX"

func openLedger(t *testing.T, path string) *Persistence {
	t.Helper()
	p, err := NewPersistence(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func newLedger(t *testing.T) *Persistence {
	t.Helper()
	p, err := InitPersistence(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestLookupAbsent(t *testing.T) {
	p := newLedger(t)

	entry, err := p.Lookup(context.Background(), source, "imap:1:1")
	assert.NoError(t, err)
	assert.Nil(t, entry)

	entry, err = p.LookupContentHash(context.Background(), source, "abc")
	assert.NoError(t, err)
	assert.Nil(t, entry)

	entry, err = p.LookupContentHash(context.Background(), source, "")
	assert.NoError(t, err)
	assert.Nil(t, entry)
}

func TestForwardTransitions(t *testing.T) {
	ctx := context.Background()
	p := newLedger(t)
	fp := domain.Fingerprint("imap:1:7")

	require.NoError(t, p.RecordPending(ctx, source, fp))
	entry, err := p.Lookup(ctx, source, fp)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, domain.StatusPending, entry.Status)
	assert.Equal(t, 1, entry.Attempts)
	assert.Equal(t, source, entry.SourceId)
	assert.False(t, entry.UpdatedAt.IsZero())

	require.NoError(t, p.RecordAppended(ctx, source, fp, "hash7", "INBOX;REF=1"))
	entry, err = p.Lookup(ctx, source, fp)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAppended, entry.Status)
	assert.Equal(t, domain.AppendRef("INBOX;REF=1"), entry.AppendRef)
	assert.Equal(t, "hash7", entry.ContentHash)

	require.NoError(t, p.RecordDeleted(ctx, source, fp))
	entry, err = p.Lookup(ctx, source, fp)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDeleted, entry.Status)
	assert.Equal(t, domain.AppendRef("INBOX;REF=1"), entry.AppendRef)

	// deleted stays deleted
	assert.NoError(t, p.RecordDeleted(ctx, source, fp))
}

func TestRecordPendingDoesNotRegress(t *testing.T) {
	ctx := context.Background()
	p := newLedger(t)
	fp := domain.Fingerprint("uidl:abc")

	require.NoError(t, p.RecordPending(ctx, source, fp))
	require.NoError(t, p.RecordPending(ctx, source, fp))
	require.NoError(t, p.RecordAppended(ctx, source, fp, "", "INBOX;REF=2"))
	require.NoError(t, p.RecordPending(ctx, source, fp))

	entry, err := p.Lookup(ctx, source, fp)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAppended, entry.Status)
	assert.Equal(t, 1, entry.Attempts)
}

func TestFailedRetry(t *testing.T) {
	ctx := context.Background()
	p := newLedger(t)
	fp := domain.Fingerprint("uidl:retry")

	require.NoError(t, p.RecordPending(ctx, source, fp))
	require.NoError(t, p.RecordFailed(ctx, source, fp, "connection reset"))

	entry, err := p.Lookup(ctx, source, fp)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, entry.Status)
	assert.Equal(t, "connection reset", entry.Reason)

	require.NoError(t, p.RecordPending(ctx, source, fp))
	entry, err = p.Lookup(ctx, source, fp)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, entry.Status)
	assert.Equal(t, 2, entry.Attempts)

	require.NoError(t, p.RecordAppended(ctx, source, fp, "", "INBOX;REF=3"))
	entry, err = p.Lookup(ctx, source, fp)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAppended, entry.Status)
	assert.Empty(t, entry.Reason)
}

func TestInvalidTransitions(t *testing.T) {
	ctx := context.Background()
	p := newLedger(t)

	appended := domain.Fingerprint("imap:1:1")
	require.NoError(t, p.RecordPending(ctx, source, appended))
	require.NoError(t, p.RecordAppended(ctx, source, appended, "", "ref"))

	pending := domain.Fingerprint("imap:1:2")
	require.NoError(t, p.RecordPending(ctx, source, pending))

	tests := []struct {
		name string
		call func() error
	}{
		{"append twice", func() error { return p.RecordAppended(ctx, source, appended, "", "other") }},
		{"fail after append", func() error { return p.RecordFailed(ctx, source, appended, "late") }},
		{"delete pending", func() error { return p.RecordDeleted(ctx, source, pending) }},
		{"delete absent", func() error { return p.RecordDeleted(ctx, source, "imap:1:99") }},
		{"adopt onto appended", func() error {
			return p.Adopt(ctx, source, appended, &domain.LedgerEntry{Status: domain.StatusDeleted})
		}},
		{"adopt pending", func() error {
			return p.Adopt(ctx, source, "imap:2:2", &domain.LedgerEntry{Status: domain.StatusPending})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			assert.ErrorIs(t, err, domain.ErrInvalidTransition)
			var ledgerErr *domain.LedgerError
			assert.ErrorAs(t, err, &ledgerErr)
		})
	}

	entry, err := p.Lookup(ctx, source, appended)
	require.NoError(t, err)
	assert.Equal(t, domain.AppendRef("ref"), entry.AppendRef)
}

func TestSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "state.db")

	p, err := InitPersistence(path)
	require.NoError(t, err)
	require.NoError(t, p.RecordPending(ctx, source, "uidl:1"))
	require.NoError(t, p.RecordAppended(ctx, source, "uidl:1", "h1", "INBOX;REF=a"))
	require.NoError(t, p.SaveFolder(ctx, source, "INBOX", 42))
	require.NoError(t, p.Close())

	p = openLedger(t, path)
	entry, err := p.Lookup(ctx, source, "uidl:1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, domain.StatusAppended, entry.Status)

	folder, err := p.Folder(ctx, source, "INBOX")
	require.NoError(t, err)
	assert.Equal(t, &domain.FolderState{SourceId: source, Name: "INBOX", UidValidity: 42}, folder)
}

func TestCorruptLedger(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.db")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))

	garbage := filepath.Join(dir, "garbage.db")
	content := []byte{}
	for i := 0; i < 64; i++ {
		content = append(content, []byte("this is certainly not a sqlite database ")...)
	}
	require.NoError(t, os.WriteFile(garbage, content, 0o600))

	for _, path := range []string{empty, garbage, dir} {
		t.Run(filepath.Base(path), func(t *testing.T) {
			p, err := NewPersistence(path)
			assert.Nil(t, p)
			var corrupt *domain.LedgerCorruptError
			require.ErrorAs(t, err, &corrupt)
			assert.Equal(t, path, corrupt.Path)
			assert.True(t, domain.IsProcessFatal(err))
		})
	}

	// the file is never reset
	raw, err := os.ReadFile(garbage)
	require.NoError(t, err)
	assert.Equal(t, content, raw)
}

func TestMissingLedger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	p, err := NewPersistence(path)
	assert.Nil(t, p)
	var corrupt *domain.LedgerCorruptError
	require.ErrorAs(t, err, &corrupt)
	assert.ErrorIs(t, err, ErrLedgerMissing)
	assert.True(t, domain.IsProcessFatal(err))
	assert.NoFileExists(t, path)
}

func TestLostLedgerIsNotRecreated(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	p, err := InitPersistence(path)
	require.NoError(t, err)
	require.NoError(t, p.RecordPending(ctx, source, "uidl:1"))
	require.NoError(t, p.RecordAppended(ctx, source, "uidl:1", "h1", "INBOX;REF=a"))
	require.NoError(t, p.Close())

	for _, suffix := range []string{"", "-wal", "-shm"} {
		_ = os.Remove(path + suffix)
	}

	p, err = NewPersistence(path)
	assert.Nil(t, p)
	assert.ErrorIs(t, err, ErrLedgerMissing)
	assert.NoFileExists(t, path)
}

func TestOrphanedJournalRefusesCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	require.NoError(t, os.WriteFile(path+"-wal", []byte("frames of a lost ledger"), 0o600))

	for name, openFunc := range map[string]func(string) (*Persistence, error){
		"open": NewPersistence,
		"init": InitPersistence,
	} {
		t.Run(name, func(t *testing.T) {
			p, err := openFunc(path)
			assert.Nil(t, p)
			var corrupt *domain.LedgerCorruptError
			require.ErrorAs(t, err, &corrupt)
			assert.Contains(t, corrupt.Reason, "state.db-wal")
			assert.NoFileExists(t, path)
		})
	}
}

func TestInitKeepsExistingLedger(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	p, err := InitPersistence(path)
	require.NoError(t, err)
	require.NoError(t, p.RecordPending(ctx, source, "uidl:1"))
	require.NoError(t, p.Close())

	p, err = InitPersistence(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	entry, err := p.Lookup(ctx, source, "uidl:1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, domain.StatusPending, entry.Status)
}

func TestContentHashAdoption(t *testing.T) {
	ctx := context.Background()
	p := newLedger(t)

	require.NoError(t, p.RecordPending(ctx, source, "imap:1:10"))
	require.NoError(t, p.RecordFailed(ctx, source, "imap:1:10", "boom"))
	require.NoError(t, p.RecordPending(ctx, source, "imap:1:11"))
	require.NoError(t, p.RecordAppended(ctx, source, "imap:1:11", "samehash", "Archive;UIDVALIDITY=5;UID=3"))
	require.NoError(t, p.RecordDeleted(ctx, source, "imap:1:11"))

	found, err := p.LookupContentHash(ctx, source, "samehash")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, domain.Fingerprint("imap:1:11"), found.Fingerprint)

	found2, err := p.LookupContentHash(ctx, "other", "samehash")
	require.NoError(t, err)
	assert.Nil(t, found2)

	// a pending entry for the new fingerprint may be overwritten
	require.NoError(t, p.RecordPending(ctx, source, "imap:2:1"))
	require.NoError(t, p.Adopt(ctx, source, "imap:2:1", found))

	entry, err := p.Lookup(ctx, source, "imap:2:1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDeleted, entry.Status)
	assert.Equal(t, domain.AppendRef("Archive;UIDVALIDITY=5;UID=3"), entry.AppendRef)
	assert.Equal(t, "samehash", entry.ContentHash)
}

func TestFolders(t *testing.T) {
	ctx := context.Background()
	p := newLedger(t)

	folder, err := p.Folder(ctx, source, "INBOX")
	require.NoError(t, err)
	assert.Nil(t, folder)

	require.NoError(t, p.SaveFolder(ctx, source, "INBOX", 1))
	require.NoError(t, p.SaveFolder(ctx, source, "INBOX", 2))
	require.NoError(t, p.SaveFolder(ctx, "other", "INBOX", 9))

	folder, err = p.Folder(ctx, source, "INBOX")
	require.NoError(t, err)
	assert.Equal(t, uint32(2), folder.UidValidity)
}

func TestStatsAndForget(t *testing.T) {
	ctx := context.Background()
	p := newLedger(t)

	require.NoError(t, p.RecordPending(ctx, "a", "uidl:1"))
	require.NoError(t, p.RecordPending(ctx, "a", "uidl:2"))
	require.NoError(t, p.RecordAppended(ctx, "a", "uidl:2", "", "r"))
	require.NoError(t, p.RecordPending(ctx, "a", "uidl:3"))
	require.NoError(t, p.RecordAppended(ctx, "a", "uidl:3", "", "r"))
	require.NoError(t, p.RecordDeleted(ctx, "a", "uidl:3"))
	require.NoError(t, p.RecordFailed(ctx, "b", "uidl:1", "x"))
	require.NoError(t, p.SaveFolder(ctx, "b", "INBOX", 3))

	stats, err := p.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, []*domain.SourceStats{
		{SourceId: "a", Pending: 1, Appended: 1, Deleted: 1},
		{SourceId: "b", Failed: 1},
	}, stats)

	removed, err := p.ForgetSource(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	folder, err := p.Folder(ctx, "b", "INBOX")
	require.NoError(t, err)
	assert.Nil(t, folder)

	stats, err = p.Stats(ctx)
	require.NoError(t, err)
	assert.Len(t, stats, 1)
}

func TestConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	p := newLedger(t)

	var wg sync.WaitGroup
	errs := make(chan error, 4*25)
	for s := 0; s < 4; s++ {
		wg.Add(1)
		go func(s int) {
			defer wg.Done()
			sourceId := fmt.Sprintf("source-%d", s)
			for i := 0; i < 25; i++ {
				fp := domain.Fingerprint(fmt.Sprintf("uidl:%d", i))
				err := p.RecordPending(ctx, sourceId, fp)
				if err == nil {
					err = p.RecordAppended(ctx, sourceId, fp, "", "ref")
				}
				if err != nil {
					errs <- err
				}
			}
		}(s)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}

	stats, err := p.Stats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 4)
	for _, s := range stats {
		assert.Equal(t, 25, s.Appended)
	}
}

func TestLedgerErrorIsFatal(t *testing.T) {
	p := newLedger(t)
	require.NoError(t, p.db.Close())

	err := p.RecordPending(context.Background(), source, "uidl:1")
	var ledgerErr *domain.LedgerError
	assert.True(t, errors.As(err, &ledgerErr))
	assert.True(t, domain.IsProcessFatal(err))
}
