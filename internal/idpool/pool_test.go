package idpool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeBlock is a trivial contiguous IDBlock for tests.
type fakeBlock struct {
	start uint64
	count uint64
}

func (b *fakeBlock) NumIDs() uint64       { return b.count }
func (b *fakeBlock) ID(index uint64) uint64 { return b.start + index }

// fakeAuthority hands out sequential fixed-size blocks, optionally
// delaying or failing on demand.
type fakeAuthority struct {
	mu             sync.Mutex
	blockSize      uint64
	next           uint64
	delay          time.Duration
	failNext       error
	exhaustAfter   int
	calls          int
	interruptible  bool
}

func (a *fakeAuthority) GetIDBlock(ctx context.Context, partition, namespace int) (IDBlock, error) {
	a.mu.Lock()
	a.calls++
	calls := a.calls
	delay := a.delay
	a.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failNext != nil {
		err := a.failNext
		a.failNext = nil
		return nil, err
	}
	if a.exhaustAfter > 0 && calls > a.exhaustAfter {
		return nil, ErrPoolExhausted
	}
	b := &fakeBlock{start: a.next, count: a.blockSize}
	a.next += a.blockSize
	return b, nil
}

func (a *fakeAuthority) SupportsInterruption() bool { return a.interruptible }

func newTestPool(t *testing.T, authority IDAuthority, upperBound uint64) *Pool {
	t.Helper()
	p, err := New(authority, 0, 0, upperBound, 200*time.Millisecond, 0.5)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestNextIDSequential(t *testing.T) {
	a := &fakeAuthority{blockSize: 10, interruptible: true}
	p := newTestPool(t, a, 1<<62)
	defer p.Close()

	for i := uint64(0); i < 25; i++ {
		id, err := p.NextID(context.Background())
		if err != nil {
			t.Fatalf("NextID(%d): %v", i, err)
		}
		if id != i {
			t.Fatalf("NextID(%d) = %d, want %d", i, id, i)
		}
	}
}

func TestNextIDRespectsUpperBound(t *testing.T) {
	a := &fakeAuthority{blockSize: 10, interruptible: true}
	p := newTestPool(t, a, 5)
	defer p.Close()

	for i := uint64(0); i < 5; i++ {
		if _, err := p.NextID(context.Background()); err != nil {
			t.Fatalf("NextID(%d): %v", i, err)
		}
	}
	if _, err := p.NextID(context.Background()); !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("NextID at upper bound: got %v, want ErrPoolExhausted", err)
	}
}

func TestPoolExhaustionIsPermanent(t *testing.T) {
	a := &fakeAuthority{blockSize: 2, exhaustAfter: 1, interruptible: true}
	p := newTestPool(t, a, 1<<62)
	defer p.Close()

	// Drain the first (and only) real block.
	if _, err := p.NextID(context.Background()); err != nil {
		t.Fatalf("first NextID: %v", err)
	}
	if _, err := p.NextID(context.Background()); err != nil {
		t.Fatalf("second NextID: %v", err)
	}
	if _, err := p.NextID(context.Background()); !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("NextID after drain: got %v, want ErrPoolExhausted", err)
	}
	// Must stay exhausted, not retry the authority.
	if _, err := p.NextID(context.Background()); !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("NextID still: got %v, want ErrPoolExhausted", err)
	}
}

func TestNextIDInterruptedByContext(t *testing.T) {
	// The fetch (100ms) outlasts the caller's context (20ms) but fits
	// within the pool's renew timeout (200ms), so the follow-up call can
	// pick up the same outstanding fetch.
	a := &fakeAuthority{blockSize: 10, delay: 100 * time.Millisecond, interruptible: true}
	p := newTestPool(t, a, 1<<62)
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := p.NextID(ctx); !errors.Is(err, ErrInterrupted) {
		t.Fatalf("NextID with short ctx: got %v, want ErrInterrupted", err)
	}

	// Pool must remain usable afterwards.
	if _, err := p.NextID(context.Background()); err != nil {
		t.Fatalf("NextID after interruption: %v", err)
	}
}

func TestNextIDTimeoutThenRecover(t *testing.T) {
	a := &fakeAuthority{blockSize: 4, delay: 500 * time.Millisecond, interruptible: false}
	p, err := New(a, 0, 0, 1<<62, 30*time.Millisecond, 0.5)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	if _, err := p.NextID(context.Background()); !errors.Is(err, ErrPoolTimeout) {
		t.Fatalf("first NextID: got %v, want ErrPoolTimeout", err)
	}
	// The timed-out fetch stays parked until Close. Once the authority
	// answers within the renew timeout again, a later call fetches a
	// fresh block and the pool recovers.
	a.mu.Lock()
	a.delay = 0
	a.mu.Unlock()
	time.Sleep(600 * time.Millisecond)
	if _, err := p.NextID(context.Background()); err != nil {
		t.Fatalf("NextID after recovery: %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	a := &fakeAuthority{blockSize: 10, interruptible: true}
	p := newTestPool(t, a, 1<<62)

	if err := p.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := p.NextID(context.Background()); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("NextID after Close: got %v, want ErrPoolClosed", err)
	}
}

func TestNewValidatesArguments(t *testing.T) {
	a := &fakeAuthority{blockSize: 10, interruptible: true}
	cases := []struct {
		name                   string
		upperBound             uint64
		partition, namespace   int
		renewTimeout           time.Duration
		renewBufferPercentage  float64
	}{
		{"zero upper bound", 0, 0, 0, time.Second, 0.5},
		{"negative partition", 10, -1, 0, time.Second, 0.5},
		{"negative namespace", 10, 0, -1, time.Second, 0.5},
		{"zero renew timeout", 10, 0, 0, 0, 0.5},
		{"zero buffer percentage", 10, 0, 0, time.Second, 0},
		{"buffer percentage too large", 10, 0, 0, time.Second, 1.5},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := New(a, c.partition, c.namespace, c.upperBound, c.renewTimeout, c.renewBufferPercentage); err == nil {
				t.Fatalf("New(%s): expected error", c.name)
			}
		})
	}
}
