package ownership

import "errors"

var (
	// ErrAlreadyOwned flags a direct acquire on a contested symbol. Contested
	// symbols must go through arbitration; hitting this is a caller bug, not
	// a normal runtime outcome.
	ErrAlreadyOwned = errors.New("symbol already has an exclusive owner")

	// ErrStaleOwner means the owner read before the decision no longer
	// matched at write time.
	ErrStaleOwner = errors.New("exclusive owner changed since read")

	// ErrConflictRetry tells the caller to re-run the whole arbitration
	// against the new state.
	ErrConflictRetry = errors.New("concurrent ownership change, re-arbitrate")

	ErrNotOwner = errors.New("caller is not the exclusive owner")
)
