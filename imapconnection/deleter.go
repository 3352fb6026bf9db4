// SPDX-License-Identifier: GPL-3.0-or-later
package imapconnection

//go:generate mockgen -destination=deleter_mocks_test.go -package=imapconnection -source deleter.go
import (
	"errors"
	"fmt"

	"github.com/emersion/go-imap"
)

// deleter removes messages that were already flagged \Deleted by the session.
type deleter interface {
	commit(uids []uint32) (int, error)
}

type uidExpunger interface {
	UidExpunge(seqSet *imap.SeqSet, ch chan uint32) error
}

type uidPlusDeleter struct {
	imapConn uidExpunger
}

func (u *uidPlusDeleter) commit(uids []uint32) (int, error) {
	seqset := &imap.SeqSet{}
	seqset.AddNum(uids...)

	return drainExpunge(func(ch chan uint32) error {
		return u.imapConn.UidExpunge(seqset, ch)
	})
}

type deletedSearcherAndExpunger interface {
	Expunge(ch chan uint32) error
	UidSearch(criteria *imap.SearchCriteria) (uids []uint32, err error)
}

type compatibilityDeleter struct {
	imapConn deletedSearcherAndExpunger
}

var ErrForeignDeletedItems = errors.New("folder has other items with delete flag set")

func (c *compatibilityDeleter) commit(uids []uint32) (int, error) {
	notDeleteReadyReason, err := c.deleteReady(uids)
	if err != nil {
		return 0, fmt.Errorf("could not check for delete readiness: %w", err)
	}

	if notDeleteReadyReason != nil {
		return 0, fmt.Errorf("folder is not ready for delete: %w", notDeleteReadyReason)
	}

	return drainExpunge(c.imapConn.Expunge)
}

// deleteReady checks that a plain EXPUNGE removes nothing but staged. It is
// only ready when every message carrying \Deleted was flagged by us.
func (c *compatibilityDeleter) deleteReady(staged []uint32) (error, error) {
	criteria := imap.NewSearchCriteria()
	criteria.WithFlags = []string{imap.DeletedFlag}
	ids, err := c.imapConn.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("could not search for deleted in folder: %w", err)
	}

	own := make(map[uint32]bool, len(staged))
	for _, uid := range staged {
		own[uid] = true
	}
	for _, uid := range ids {
		if !own[uid] {
			return ErrForeignDeletedItems, nil
		}
	}

	return nil, nil
}

func drainExpunge(expunge func(ch chan uint32) error) (int, error) {
	out := make(chan uint32)
	done := make(chan error, 1)
	go func() {
		done <- expunge(out)
	}()

	expunged := 0
	for range out {
		expunged++
	}

	err := <-done
	if err != nil {
		return expunged, fmt.Errorf("could not expunge mails: %w", err)
	}

	return expunged, nil
}
