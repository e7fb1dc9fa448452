package files

import "errors"

var (
	// ErrNotFound covers nonexistent, unowned and unpaid orders alike, so a
	// caller cannot probe order existence or payment state.
	ErrNotFound = errors.New("files: not found")
	// ErrForbidden marks a file outside the order's line items. It may be
	// distinguishable: the caller already proved ownership of a paid order.
	ErrForbidden     = errors.New("files: forbidden")
	ErrSigningFailed = errors.New("files: signing failed")
)
