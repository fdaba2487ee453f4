package lock

import (
	"errors"
	"fmt"
)

var (
	// ErrTxnAborted is returned by LockShared/LockExclusive/Upgrade when
	// called on a transaction that is already ABORTED.
	ErrTxnAborted = errors.New("lock: transaction is aborted")

	// ErrLockNotHeld is returned by Upgrade when the calling transaction
	// does not already hold a shared lock on the row it is trying to
	// upgrade to exclusive.
	ErrLockNotHeld = errors.New("lock: no shared lock held to upgrade")

	// ErrUpgradeConflict is returned by Upgrade when another transaction
	// is already mid-upgrade on the same row (lock_manager.cpp's
	// upgrading flag, one upgrade in flight per LockRequestQueue).
	ErrUpgradeConflict = errors.New("lock: another upgrade is already in progress on this row")
)

// DeadlockError is returned to a blocked LockShared/LockExclusive/Upgrade
// caller when the background detector aborts its transaction while it
// waits, per spec §7's Deadlock error case. VictimTxnID is always the
// caller's own transaction id: a blocked call returns this error only
// after it observes its own transaction in the ABORTED state.
type DeadlockError struct {
	VictimTxnID uint64
}

func (e *DeadlockError) Error() string {
	return fmt.Sprintf("lock: deadlock detected, transaction %d aborted", e.VictimTxnID)
}

func (e *DeadlockError) Is(target error) bool {
	_, ok := target.(*DeadlockError)
	return ok
}
