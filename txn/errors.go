package txn

import "errors"

var (
	// ErrAlreadyAborted is returned by Commit when the transaction has
	// already been aborted.
	ErrAlreadyAborted = errors.New("txn: transaction already aborted")

	// ErrAlreadyCommitted is returned by Abort when the transaction has
	// already been committed.
	ErrAlreadyCommitted = errors.New("txn: transaction already committed")
)
