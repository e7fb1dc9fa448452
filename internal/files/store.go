package files

import "context"

// Store exposes the read-only commerce lookups and the append-only access log
// this core needs. Catalog and order mutation live elsewhere.
type Store interface {
	// FindPaidOrder performs the combined ownership+payment lookup: the order
	// must exist, belong to userID and be PAID, or ErrNotFound is returned.
	FindPaidOrder(ctx context.Context, orderID, userID string) (*Order, error)
	FilesForOrder(ctx context.Context, orderID string) ([]FileMeta, error)
	FindFile(ctx context.Context, fileID string) (*File, error)
	// FileInOrder reports whether the file's product is among the order's
	// line items.
	FileInOrder(ctx context.Context, orderID, fileID string) (bool, error)
	InsertAccessLog(ctx context.Context, row *AccessLog) error
}
