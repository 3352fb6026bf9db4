// SPDX-License-Identifier: GPL-3.0-or-later
package persistence

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/CrawX/mailferry/domain"
	"github.com/CrawX/mailferry/log"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/rubenv/sql-migrate"
	"github.com/sirupsen/logrus"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Persistence is the dedup ledger. Every write is a single autocommitted
// statement, so with synchronous=FULL it is on disk when the call returns.
type Persistence struct {
	db   *sqlx.DB
	path string
	l    *logrus.Logger
	now  func() time.Time
}

var _ domain.Ledger = (*Persistence)(nil)

type dbEntry struct {
	Source      string
	Fingerprint string
	Status      string
	AppendRef   string
	ContentHash string
	Reason      string
	Attempts    int
	UpdatedAt   time.Time
}

func (e *dbEntry) toDomain() *domain.LedgerEntry {
	return &domain.LedgerEntry{
		SourceId:    e.Source,
		Fingerprint: domain.Fingerprint(e.Fingerprint),
		Status:      domain.Status(e.Status),
		AppendRef:   domain.AppendRef(e.AppendRef),
		ContentHash: e.ContentHash,
		Reason:      e.Reason,
		Attempts:    e.Attempts,
		UpdatedAt:   e.UpdatedAt,
	}
}

const entryColumns = `source, fingerprint, status, appendref, contenthash, reason, attempts, updatedat`

// ErrLedgerMissing is the reason of the LedgerCorruptError NewPersistence
// returns for a ledger file that does not exist.
var ErrLedgerMissing = errors.New("ledger does not exist, create it with init")

// NewPersistence opens the existing ledger at path. A missing file, or one that
// exists but is empty, unreadable or fails the integrity check, is reported as
// domain.LedgerCorruptError and left untouched.
func NewPersistence(path string) (*Persistence, error) {
	return open(path, false)
}

// InitPersistence opens the ledger at path and creates it when it does not
// exist yet. Creation is refused when journal files of a lost ledger remain.
func InitPersistence(path string) (*Persistence, error) {
	return open(path, true)
}

func open(path string, create bool) (*Persistence, error) {
	l := log.Logger(log.LOG_PERSISTENCE)

	existing := true
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		for _, suffix := range []string{"-wal", "-shm", "-journal"} {
			if _, err := os.Stat(path + suffix); err == nil {
				return nil, &domain.LedgerCorruptError{Path: path, Reason: "ledger missing but " + filepath.Base(path+suffix) + " exists"}
			}
		}
		if !create {
			return nil, &domain.LedgerCorruptError{Path: path, Reason: "ledger missing", Err: ErrLedgerMissing}
		}

		existing = false
		l.WithField("file", path).Info("Creating new ledger")
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, &domain.LedgerError{Op: "create directory", Err: err}
			}
		}
	case err != nil:
		return nil, &domain.LedgerError{Op: "stat", Err: err}
	case info.IsDir():
		return nil, &domain.LedgerCorruptError{Path: path, Reason: "path is a directory"}
	case info.Size() == 0:
		return nil, &domain.LedgerCorruptError{Path: path, Reason: "file is empty"}
	}

	// Pragmas go into the DSN so a reopened pool connection gets them too.
	db, err := sqlx.Connect("sqlite3", path+"?_journal_mode=WAL&_synchronous=FULL&_busy_timeout=5000")
	if err != nil {
		return nil, classify(path, "open", err)
	}
	db.SetMaxOpenConns(1)

	p := &Persistence{
		db:   db,
		path: path,
		l:    l,
		now:  func() time.Time { return time.Now().UTC() },
	}

	err = p.init(existing)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	l.WithField("file", path).Info("Connected")
	return p, nil
}

func (p *Persistence) init(existing bool) error {
	var mode string
	err := p.db.Get(&mode, `PRAGMA journal_mode`)
	if err != nil {
		return p.classify("query journal mode", err)
	}
	p.l.WithField("mode", mode).Trace("Journal mode")

	if existing {
		var result string
		err = p.db.Get(&result, `PRAGMA quick_check`)
		if err != nil {
			return p.classify("integrity check", err)
		}
		if result != "ok" {
			return &domain.LedgerCorruptError{Path: p.path, Reason: "integrity check failed: " + result}
		}
	}

	migrationSource := &migrate.EmbedFileSystemMigrationSource{
		FileSystem: migrations,
		Root:       "migrations",
	}
	appliedMigrations, err := migrate.Exec(p.db.DB, "sqlite3", migrationSource, migrate.Up)
	if err != nil {
		return p.classify("migrate", err)
	}
	p.l.WithField("migrations", appliedMigrations).Debug("Executed migrations")

	return nil
}

func classify(path string, op string, err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) &&
		(sqliteErr.Code == sqlite3.ErrNotADB || sqliteErr.Code == sqlite3.ErrCorrupt) {
		return &domain.LedgerCorruptError{Path: path, Reason: op + " failed", Err: err}
	}
	return &domain.LedgerError{Op: op, Err: err}
}

func (p *Persistence) classify(op string, err error) error {
	return classify(p.path, op, err)
}

func (p *Persistence) Close() error {
	err := p.db.Close()
	if err != nil {
		return fmt.Errorf("could not close db: %w", err)
	}
	p.l.Info("Disconnected")
	return nil
}

func (p *Persistence) Lookup(ctx context.Context, sourceId string, fingerprint domain.Fingerprint) (*domain.LedgerEntry, error) {
	entry := dbEntry{}
	err := p.db.GetContext(
		ctx,
		&entry,
		`SELECT `+entryColumns+` FROM entries WHERE source = ? AND fingerprint = ?`,
		sourceId,
		string(fingerprint),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, p.classify("lookup", err)
	}

	return entry.toDomain(), nil
}

func (p *Persistence) LookupContentHash(ctx context.Context, sourceId string, contentHash string) (*domain.LedgerEntry, error) {
	if len(contentHash) == 0 {
		return nil, nil
	}

	entry := dbEntry{}
	err := p.db.GetContext(
		ctx,
		&entry,
		`SELECT `+entryColumns+` FROM entries WHERE source = ? AND contenthash = ?
		ORDER BY CASE status WHEN 'deleted' THEN 0 WHEN 'appended' THEN 1 ELSE 2 END, updatedat DESC
		LIMIT 1`,
		sourceId,
		contentHash,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, p.classify("lookup content hash", err)
	}

	return entry.toDomain(), nil
}

// RecordPending creates the entry or moves a failed one back to pending.
// Entries that are already pending or further along are left alone.
func (p *Persistence) RecordPending(ctx context.Context, sourceId string, fingerprint domain.Fingerprint) error {
	_, err := p.db.ExecContext(
		ctx,
		`INSERT INTO entries (source, fingerprint, status, attempts, updatedat) VALUES (?, ?, 'pending', 1, ?)
		ON CONFLICT (source, fingerprint) DO UPDATE
		SET status = 'pending', attempts = attempts + 1, updatedat = excluded.updatedat
		WHERE status = 'failed'`,
		sourceId,
		string(fingerprint),
		p.now(),
	)
	if err != nil {
		return p.classify("record pending", err)
	}

	p.l.WithFields(logrus.Fields{"source": sourceId, "fingerprint": fingerprint}).Trace("Recorded pending")
	return nil
}

func (p *Persistence) RecordAppended(ctx context.Context, sourceId string, fingerprint domain.Fingerprint, contentHash string, ref domain.AppendRef) error {
	result, err := p.db.ExecContext(
		ctx,
		`INSERT INTO entries (source, fingerprint, status, appendref, contenthash, attempts, updatedat)
		VALUES (?, ?, 'appended', ?, ?, 1, ?)
		ON CONFLICT (source, fingerprint) DO UPDATE
		SET status = 'appended', appendref = excluded.appendref, contenthash = excluded.contenthash,
			reason = '', updatedat = excluded.updatedat
		WHERE status IN ('pending', 'failed')`,
		sourceId,
		string(fingerprint),
		string(ref),
		contentHash,
		p.now(),
	)
	err = p.expectChange("record appended", fingerprint, domain.StatusAppended, result, err)
	if err != nil {
		return err
	}

	p.l.WithFields(logrus.Fields{"source": sourceId, "fingerprint": fingerprint, "ref": ref}).Debug("Recorded appended")
	return nil
}

// RecordDeleted is idempotent for entries that are already deleted.
func (p *Persistence) RecordDeleted(ctx context.Context, sourceId string, fingerprint domain.Fingerprint) error {
	result, err := p.db.ExecContext(
		ctx,
		`UPDATE entries SET status = 'deleted', updatedat = ?
		WHERE source = ? AND fingerprint = ? AND status IN ('appended', 'deleted')`,
		p.now(),
		sourceId,
		string(fingerprint),
	)
	err = p.expectChange("record deleted", fingerprint, domain.StatusDeleted, result, err)
	if err != nil {
		return err
	}

	p.l.WithFields(logrus.Fields{"source": sourceId, "fingerprint": fingerprint}).Debug("Recorded deleted")
	return nil
}

func (p *Persistence) RecordFailed(ctx context.Context, sourceId string, fingerprint domain.Fingerprint, reason string) error {
	result, err := p.db.ExecContext(
		ctx,
		`INSERT INTO entries (source, fingerprint, status, reason, attempts, updatedat) VALUES (?, ?, 'failed', ?, 1, ?)
		ON CONFLICT (source, fingerprint) DO UPDATE
		SET status = 'failed', reason = excluded.reason, updatedat = excluded.updatedat
		WHERE status IN ('pending', 'failed')`,
		sourceId,
		string(fingerprint),
		reason,
		p.now(),
	)
	err = p.expectChange("record failed", fingerprint, domain.StatusFailed, result, err)
	if err != nil {
		return err
	}

	p.l.WithFields(logrus.Fields{"source": sourceId, "fingerprint": fingerprint, "reason": reason}).Debug("Recorded failed")
	return nil
}

// Adopt copies the outcome of from onto fingerprint. It is used when a
// message is recognized by content after its identifier changed.
func (p *Persistence) Adopt(ctx context.Context, sourceId string, fingerprint domain.Fingerprint, from *domain.LedgerEntry) error {
	if from == nil || !from.Status.Transferred() {
		return &domain.LedgerError{
			Op:  "adopt",
			Err: fmt.Errorf("%s: only transferred entries can be adopted: %w", fingerprint, domain.ErrInvalidTransition),
		}
	}

	result, err := p.db.ExecContext(
		ctx,
		`INSERT INTO entries (source, fingerprint, status, appendref, contenthash, attempts, updatedat)
		VALUES (?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT (source, fingerprint) DO UPDATE
		SET status = excluded.status, appendref = excluded.appendref, contenthash = excluded.contenthash,
			reason = '', updatedat = excluded.updatedat
		WHERE status IN ('pending', 'failed')`,
		sourceId,
		string(fingerprint),
		string(from.Status),
		string(from.AppendRef),
		from.ContentHash,
		p.now(),
	)
	err = p.expectChange("adopt", fingerprint, from.Status, result, err)
	if err != nil {
		return err
	}

	p.l.WithFields(logrus.Fields{
		"source":      sourceId,
		"fingerprint": fingerprint,
		"from":        from.Fingerprint,
	}).Info("Adopted previous outcome")
	return nil
}

func (p *Persistence) expectChange(op string, fingerprint domain.Fingerprint, to domain.Status, result sql.Result, err error) error {
	if err != nil {
		return p.classify(op, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return p.classify(op, fmt.Errorf("could not get num of affected rows: %w", err))
	}
	if affected != 1 {
		return &domain.LedgerError{
			Op:  op,
			Err: fmt.Errorf("%s to %s: %w", fingerprint, to, domain.ErrInvalidTransition),
		}
	}

	return nil
}

func (p *Persistence) Folder(ctx context.Context, sourceId string, folder string) (*domain.FolderState, error) {
	dbFolder := struct {
		Name        string
		UidValidity uint32
	}{}

	err := p.db.GetContext(
		ctx,
		&dbFolder,
		`SELECT name, uidvalidity FROM folders WHERE source = ? AND name = ?`,
		sourceId,
		folder,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, p.classify("query folder", err)
	}

	return &domain.FolderState{
		SourceId:    sourceId,
		Name:        dbFolder.Name,
		UidValidity: dbFolder.UidValidity,
	}, nil
}

func (p *Persistence) SaveFolder(ctx context.Context, sourceId string, folder string, uidValidity uint32) error {
	_, err := p.db.ExecContext(
		ctx,
		"INSERT OR REPLACE INTO folders (source, name, uidvalidity) VALUES (?, ?, ?)",
		sourceId,
		folder,
		uidValidity,
	)
	if err != nil {
		return p.classify("save folder", err)
	}

	p.l.WithFields(logrus.Fields{"source": sourceId, "folder": folder, "uidvalidity": uidValidity}).Info("Persisted folder")
	return nil
}

func (p *Persistence) Stats(ctx context.Context) ([]*domain.SourceStats, error) {
	rows := []struct {
		Source string
		Status string
		Count  int
	}{}

	err := p.db.SelectContext(
		ctx,
		&rows,
		`SELECT source, status, COUNT(*) AS count FROM entries GROUP BY source, status ORDER BY source`,
	)
	if err != nil {
		return nil, p.classify("stats", err)
	}

	stats := []*domain.SourceStats{}
	var current *domain.SourceStats
	for _, row := range rows {
		if current == nil || current.SourceId != row.Source {
			current = &domain.SourceStats{SourceId: row.Source}
			stats = append(stats, current)
		}
		switch domain.Status(row.Status) {
		case domain.StatusPending:
			current.Pending = row.Count
		case domain.StatusAppended:
			current.Appended = row.Count
		case domain.StatusDeleted:
			current.Deleted = row.Count
		case domain.StatusFailed:
			current.Failed = row.Count
		}
	}

	return stats, nil
}

// ForgetSource drops all entries and folder state of sourceId and returns the
// number of entries removed.
func (p *Persistence) ForgetSource(ctx context.Context, sourceId string) (int64, error) {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, p.classify("forget source", fmt.Errorf("could not start transaction: %w", err))
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE source = ?`, sourceId)
	if err != nil {
		return 0, p.classify("forget source", txEnd(tx, fmt.Errorf("could not delete entries: %w", err)))
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, p.classify("forget source", txEnd(tx, fmt.Errorf("could not get num of affected rows: %w", err)))
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM folders WHERE source = ?`, sourceId)
	if err != nil {
		return 0, p.classify("forget source", txEnd(tx, fmt.Errorf("could not delete folders: %w", err)))
	}

	err = txEnd(tx, nil)
	if err != nil {
		return 0, p.classify("forget source", err)
	}

	p.l.WithFields(logrus.Fields{"source": sourceId, "entries": removed}).Info("Forgot source")
	return removed, nil
}

func txEnd(tx *sqlx.Tx, err error) error {
	if err == nil {
		err = tx.Commit()
		if err != nil {
			return fmt.Errorf("could not commit tx: %w", err)
		}
	} else {
		rollbackErr := tx.Rollback()
		if rollbackErr != nil {
			errStr := err.Error()
			return fmt.Errorf("%s, could not rollback tx: %w", errStr, rollbackErr)
		} else {
			return err
		}
	}

	return nil
}
