// SPDX-License-Identifier: GPL-3.0-or-later
package domain

import (
	"errors"
	"fmt"
)

// ConnectionError is a socket, TLS or protocol-level failure of a session.
type ConnectionError struct {
	Server string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to %s failed: %v", e.Server, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// AuthError is a credential rejection.
type AuthError struct {
	Server string
	User   string
	Err    error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication of %s at %s failed: %v", e.User, e.Server, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// FetchError means a listed message could not be retrieved.
type FetchError struct {
	Id  uint32
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("could not fetch message %d: %v", e.Id, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// AppendError is a destination rejection of a single message.
type AppendError struct {
	Folder string
	Err    error
}

func (e *AppendError) Error() string {
	return fmt.Sprintf("could not append to %s: %v", e.Folder, e.Err)
}

func (e *AppendError) Unwrap() error { return e.Err }

// LedgerError is any failure of the ledger storage. It terminates the process.
type LedgerError struct {
	Op  string
	Err error
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("ledger %s: %v", e.Op, e.Err)
}

func (e *LedgerError) Unwrap() error { return e.Err }

// LedgerCorruptError means the ledger file cannot be trusted. The ledger is
// never reset in that case.
type LedgerCorruptError struct {
	Path   string
	Reason string
	Err    error
}

func (e *LedgerCorruptError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ledger %s is corrupt: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("ledger %s is corrupt: %s", e.Path, e.Reason)
}

func (e *LedgerCorruptError) Unwrap() error { return e.Err }

type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %v", e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// IsProcessFatal reports whether err must stop the whole process.
func IsProcessFatal(err error) bool {
	var ledgerErr *LedgerError
	var corruptErr *LedgerCorruptError
	var configErr *ConfigError
	return errors.As(err, &ledgerErr) || errors.As(err, &corruptErr) || errors.As(err, &configErr)
}

// IsSessionFatal reports whether err leaves the session it came from unusable.
func IsSessionFatal(err error) bool {
	var connErr *ConnectionError
	var authErr *AuthError
	return errors.As(err, &connErr) || errors.As(err, &authErr)
}
