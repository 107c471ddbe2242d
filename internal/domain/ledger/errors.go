package ledger

import "errors"

var (
	// ErrDuplicateTransaction is returned when (provider, external_trans_id) already exists
	ErrDuplicateTransaction = errors.New("duplicate transaction")

	// ErrUserNotFound is returned when the balance holder doesn't exist
	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidCommit is returned when a commit is missing required parts
	ErrInvalidCommit = errors.New("invalid commit")
)
