package files

import "time"

// OrderStatus mirrors the commerce subsystem's order states. Only PAID grants
// file access.
type OrderStatus string

const (
	StatusPending OrderStatus = "PENDING"
	StatusPaid    OrderStatus = "PAID"
	StatusFailed  OrderStatus = "FAILED"
)

// Order is a read-only projection of a purchase. This core never mutates it.
type Order struct {
	ID        string
	UserID    string
	Status    OrderStatus
	CreatedAt time.Time
}

// File is a deliverable digital asset belonging to exactly one product.
type File struct {
	ID          string
	ProductID   string
	Name        string
	ContentType string
	ObjectKey   string
}

// FileMeta is what listing exposes to callers. It never carries a URL.
type FileMeta struct {
	ID          string `json:"file_id"`
	Name        string `json:"file_name"`
	ContentType string `json:"file_type"`
}

// AccessLog is the append-only delivery audit row, written only after a signed
// reference was successfully minted.
type AccessLog struct {
	ID         string
	UserID     string
	OrderID    string
	FileID     string
	ClientIP   string
	OccurredAt time.Time
}

// Link is a minted time-limited download reference.
type Link struct {
	URL       string
	ExpiresIn int // seconds
}
