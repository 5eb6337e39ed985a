package blocktree

import "errors"

var (
	_ error = (*RejectionError)(nil)

	// ErrDuplicateBlock signals that a block is already part of the tree.
	ErrDuplicateBlock = newRejectionError("duplicate block")
	// ErrOverspend signals that a block spends more than one of its senders owns
	// on the chain it extends.
	ErrOverspend = newRejectionError("block overspends sender balance")
	// ErrInvalidBlock signals that a block is malformed, e.g. its height does not
	// follow its parent or its coinbase mints the wrong amount.
	ErrInvalidBlock = newRejectionError("malformed block")

	// ErrUnknownParent signals that a block was cached until its parent is
	// known. It is not a permanent rejection.
	//
	// See: BlockTree.AddCachedChild
	ErrUnknownParent = errors.New("unknown parent")
	// ErrHeightNotImproved signals that a block does not extend the tree beyond
	// the current chain, and so was not adopted.
	ErrHeightNotImproved = errors.New("height not improved")
	// ErrUnknownBlock signals that a block is not indexed by the tree.
	ErrUnknownBlock = errors.New("unknown block")
)

// RejectionError signals that a block has been permanently rejected by a tree.
// Receiving the same block again yields the same outcome.
type RejectionError struct{ message string }

func newRejectionError(message string) RejectionError {
	return RejectionError{message: message}
}

func (e RejectionError) Error() string { return e.message }
