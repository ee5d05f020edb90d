package catalog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"advancebot/internal/core"
)

type fakeSource struct {
	mu      sync.Mutex
	calls   int32
	entries []core.ReferenceEntry
	err     error
	block   chan struct{}
}

func (f *fakeSource) Entries(ctx context.Context) ([]core.ReferenceEntry, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]core.ReferenceEntry(nil), f.entries...), nil
}

func (f *fakeSource) set(entries []core.ReferenceEntry, err error) {
	f.mu.Lock()
	f.entries = entries
	f.err = err
	f.mu.Unlock()
}

func one() []core.ReferenceEntry {
	return []core.ReferenceEntry{{Direction: core.Out, Category: "Transport", Type: "Taxi", Active: true}}
}

func TestEntriesCachesWithinTTL(t *testing.T) {
	src := &fakeSource{entries: one()}
	c := New(src, time.Minute)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		got, err := c.Entries(ctx)
		if err != nil || len(got) != 1 {
			t.Fatalf("entries: %v err=%v", got, err)
		}
	}
	if n := atomic.LoadInt32(&src.calls); n != 1 {
		t.Fatalf("expected a single backend read, got %d", n)
	}
}

func TestEntriesRefreshAfterTTL(t *testing.T) {
	src := &fakeSource{entries: one()}
	c := New(src, 10*time.Millisecond)
	ctx := context.Background()

	c.Entries(ctx)
	time.Sleep(25 * time.Millisecond)
	src.set([]core.ReferenceEntry{
		{Direction: core.Out, Category: "Transport", Type: "Taxi", Active: true},
		{Direction: core.In, Category: "Advance", Type: "Cash", Active: true},
	}, nil)

	got, err := c.Entries(ctx)
	if err != nil || len(got) != 2 {
		t.Fatalf("expected refreshed entries, got %v err=%v", got, err)
	}
	if n := atomic.LoadInt32(&src.calls); n != 2 {
		t.Fatalf("expected 2 backend reads, got %d", n)
	}
}

func TestEntriesServesStaleOnRefreshFailure(t *testing.T) {
	src := &fakeSource{entries: one()}
	c := New(src, 10*time.Millisecond)
	ctx := context.Background()

	c.Entries(ctx)
	time.Sleep(25 * time.Millisecond)
	src.set(nil, errors.New("backend down"))

	got, err := c.Entries(ctx)
	if err != nil || len(got) != 1 {
		t.Fatalf("stale snapshot expected, got %v err=%v", got, err)
	}
}

func TestEntriesErrorWithoutSnapshot(t *testing.T) {
	src := &fakeSource{err: errors.New("backend down")}
	c := New(src, time.Minute)
	if _, err := c.Entries(context.Background()); err == nil {
		t.Fatalf("expected error with no snapshot to fall back on")
	}
}

func TestInvalidateForcesRefetch(t *testing.T) {
	src := &fakeSource{entries: one()}
	c := New(src, time.Minute)
	ctx := context.Background()

	c.Entries(ctx)
	c.Invalidate()
	c.Entries(ctx)
	if n := atomic.LoadInt32(&src.calls); n != 2 {
		t.Fatalf("expected refetch after invalidate, got %d reads", n)
	}
}

func TestConcurrentReadsShareOneFetch(t *testing.T) {
	src := &fakeSource{entries: one(), block: make(chan struct{})}
	c := New(src, time.Minute)
	ctx := context.Background()

	const readers = 10
	var wg sync.WaitGroup
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Entries(ctx); err != nil {
				t.Errorf("entries: %v", err)
			}
		}()
	}
	// Give the readers time to pile up on the in-flight fetch.
	time.Sleep(20 * time.Millisecond)
	close(src.block)
	wg.Wait()

	if n := atomic.LoadInt32(&src.calls); n != 1 {
		t.Fatalf("expected a single shared fetch, got %d", n)
	}
}
