package files

import (
	"context"
	"errors"
	"time"

	"vendora.dev/internal/audit"
	"vendora.dev/internal/auth"
	"vendora.dev/internal/ids"
	"vendora.dev/internal/obs"
)

// MaxLinkTTL is the hard ceiling on signed-reference validity.
const MaxLinkTTL = 300 * time.Second

// Service proves ownership and payment before minting time-limited download
// references. It is reachable only by customers; callers are pre-filtered but
// the role is re-checked here as defense in depth.
type Service struct {
	store    Store
	signer   Signer
	recorder *audit.Recorder
	now      func() time.Time
	linkTTL  time.Duration
}

// Option configures Service behavior.
type Option func(*Service)

// WithLinkTTL sets the signed-reference lifetime, capped at MaxLinkTTL.
func WithLinkTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 && ttl <= MaxLinkTTL {
			s.linkTTL = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the file access service.
func NewService(store Store, signer Signer, recorder *audit.Recorder, opts ...Option) *Service {
	s := &Service{
		store:    store,
		signer:   signer,
		recorder: recorder,
		now:      time.Now,
		linkTTL:  MaxLinkTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListFiles returns metadata for the deliverables of a paid order owned by the
// caller. The response never includes URLs.
func (s *Service) ListFiles(ctx context.Context, id auth.Identity, orderID string) ([]FileMeta, error) {
	if err := s.authorizeOrder(ctx, id, orderID); err != nil {
		return nil, err
	}
	metas, err := s.store.FilesForOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if metas == nil {
		metas = []FileMeta{}
	}
	return metas, nil
}

// DownloadLink mints a signed reference for one file of a paid order. The
// access-log row is written only after the mint succeeds, and a failure to
// write it never surfaces to the caller.
func (s *Service) DownloadLink(ctx context.Context, id auth.Identity, orderID, fileID, clientIP string) (*Link, error) {
	if err := s.authorizeOrder(ctx, id, orderID); err != nil {
		obs.DownloadLinks.WithLabelValues("not_found").Inc()
		return nil, err
	}

	file, err := s.store.FindFile(ctx, fileID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			obs.DownloadLinks.WithLabelValues("not_found").Inc()
		}
		return nil, err
	}
	ok, err := s.store.FileInOrder(ctx, orderID, fileID)
	if err != nil {
		return nil, err
	}
	if !ok {
		obs.DownloadLinks.WithLabelValues("forbidden").Inc()
		return nil, ErrForbidden
	}

	url, err := s.signer.SignedURL(ctx, file.ObjectKey, s.linkTTL)
	if err != nil {
		obs.DownloadLinks.WithLabelValues("signing_failed").Inc()
		obs.LogError("download reference signing failed", map[string]any{
			"order_id": orderID,
			"file_id":  fileID,
			"error":    err.Error(),
		})
		return nil, ErrSigningFailed
	}

	row := &AccessLog{
		ID:         ids.New(),
		UserID:     id.UserID,
		OrderID:    orderID,
		FileID:     fileID,
		ClientIP:   clientIP,
		OccurredAt: s.now().UTC(),
	}
	if err := s.store.InsertAccessLog(ctx, row); err != nil {
		obs.LogError("file access log write failed", map[string]any{
			"order_id": orderID,
			"file_id":  fileID,
			"error":    err.Error(),
		})
	}
	s.recorder.Record(audit.Entry{
		Action:   audit.ActionFileLinkIssued,
		ActorID:  id.UserID,
		ClientIP: clientIP,
		Metadata: map[string]string{"order_id": orderID, "file_id": fileID},
	})
	obs.DownloadLinks.WithLabelValues("issued").Inc()

	return &Link{URL: url, ExpiresIn: int(s.linkTTL / time.Second)}, nil
}

// authorizeOrder performs the combined ownership+payment check. Any miss is
// ErrNotFound, indistinguishable from a nonexistent order.
func (s *Service) authorizeOrder(ctx context.Context, id auth.Identity, orderID string) error {
	if id.Role != auth.RoleCustomer {
		return ErrNotFound
	}
	if _, err := s.store.FindPaidOrder(ctx, orderID, id.UserID); err != nil {
		return err
	}
	return nil
}
