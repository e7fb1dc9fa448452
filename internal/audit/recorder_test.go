package audit

import (
	"context"
	"sync"
	"testing"
	"time"
)

type memSink struct {
	mu      sync.Mutex
	entries []*Entry
	block   chan struct{}
}

func (m *memSink) Append(ctx context.Context, entry *Entry) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memSink) all() []*Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

func TestRecorderDrainsOnClose(t *testing.T) {
	sink := &memSink{}
	rec := NewRecorder(sink)

	for i := 0; i < 10; i++ {
		rec.Record(Entry{Action: ActionLogin, ActorID: "u1", ClientIP: "10.0.0.1"})
	}
	rec.Close()

	entries := sink.all()
	if len(entries) != 10 {
		t.Fatalf("expected 10 entries after drain, got %d", len(entries))
	}
	for _, e := range entries {
		if e.ID == "" || e.OccurredAt.IsZero() {
			t.Fatalf("entry missing id or timestamp: %+v", e)
		}
	}
}

func TestRecorderNeverBlocksWhenFull(t *testing.T) {
	sink := &memSink{block: make(chan struct{})}
	rec := NewRecorder(sink, WithBuffer(1))

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			rec.Record(Entry{Action: ActionLoginFailed})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on a full buffer")
	}
	close(sink.block)
	rec.Close()

	if rec.Dropped() == 0 {
		t.Fatal("expected dropped entries with a saturated buffer")
	}
}

func TestRecorderStampsClock(t *testing.T) {
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	sink := &memSink{}
	rec := NewRecorder(sink, WithRecorderClock(func() time.Time { return fixed }))

	rec.Record(Entry{Action: ActionPasswordResetSuccess, ActorID: "u2"})
	rec.Close()

	entries := sink.all()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if !entries[0].OccurredAt.Equal(fixed) {
		t.Fatalf("expected stamped time %v, got %v", fixed, entries[0].OccurredAt)
	}
}
