package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"vendora.dev/internal/ids"
	"vendora.dev/internal/obs"
)

// Store appends immutable audit entries.
type Store interface {
	Append(ctx context.Context, entry *Entry) error
}

const defaultBuffer = 256

// Recorder writes audit entries without blocking the operation it observes.
// Entries flow through a buffered channel to a background writer; when the
// buffer is full the entry is dropped and counted rather than stalling the
// request path.
type Recorder struct {
	store Store
	now   func() time.Time

	ch        chan *Entry
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closeOnce sync.Once
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithBuffer overrides the channel buffer size.
func WithBuffer(n int) RecorderOption {
	return func(r *Recorder) {
		if n > 0 {
			r.ch = make(chan *Entry, n)
		}
	}
}

// WithRecorderClock overrides the time source (useful for tests).
func WithRecorderClock(fn func() time.Time) RecorderOption {
	return func(r *Recorder) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewRecorder starts the background writer.
func NewRecorder(store Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		store: store,
		now:   time.Now,
		ch:    make(chan *Entry, defaultBuffer),
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.wg.Add(1)
	go r.run()
	return r
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for {
		select {
		case entry := <-r.ch:
			r.append(entry)
		case <-r.done:
			for {
				select {
				case entry := <-r.ch:
					r.append(entry)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) append(entry *Entry) {
	if err := r.store.Append(context.Background(), entry); err != nil {
		obs.LogError("audit append failed", map[string]any{
			"action": string(entry.Action),
			"error":  err.Error(),
		})
	}
}

// Record enqueues an audit entry. It never blocks and never fails the caller.
func (r *Recorder) Record(entry Entry) {
	if r == nil {
		return
	}
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = r.now().UTC()
	}
	select {
	case r.ch <- &entry:
	case <-r.done:
	default:
		r.dropped.Add(1)
	}
}

// Dropped returns how many entries were discarded due to a full buffer.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Close drains buffered entries and stops the writer.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
		r.wg.Wait()
	})
}
