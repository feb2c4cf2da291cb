package relay

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// DefaultCapacity is the queue size used when none is configured.
const DefaultCapacity = 32

var (
	// ErrSinkClosed is returned to a producer whose text can no longer be
	// delivered, either because its handle was closed or the consumer left.
	ErrSinkClosed = errors.New("sink closed")

	// ErrRelayClosed is returned by Recv once the relay will never yield
	// another item.
	ErrRelayClosed = errors.New("relay closed")
)

// Sink is the write side of an event channel. Orchestrators accept a Sink
// and treat a nil Sink as "no output configured".
type Sink interface {
	Send(ctx context.Context, text string) error
}

// Relay is a bounded multi-producer, single-consumer queue of text events.
type Relay struct {
	items chan string

	// sendMu guards closing items against in-flight sends. Senders hold the
	// read lock for the duration of a (possibly blocking) send.
	sendMu sync.RWMutex
	closed atomic.Bool

	countMu sync.Mutex
	senders int

	gone     chan struct{}
	goneOnce sync.Once
}

// New creates a relay with the given capacity and returns it together with
// its first producer handle. A capacity below one falls back to
// DefaultCapacity.
func New(capacity int) (*Relay, *Sender) {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	r := &Relay{
		items:   make(chan string, capacity),
		gone:    make(chan struct{}),
		senders: 1,
	}
	return r, &Sender{relay: r}
}

// Recv returns the next item in FIFO order, blocking until one is available.
// It returns ErrRelayClosed when the queue is closed and drained or the
// receiver has been closed.
func (r *Relay) Recv(ctx context.Context) (string, error) {
	select {
	case <-r.gone:
		return "", ErrRelayClosed
	default:
	}

	select {
	case text, ok := <-r.items:
		if !ok {
			return "", ErrRelayClosed
		}
		return text, nil
	case <-r.gone:
		return "", ErrRelayClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// CloseReceiver disconnects the consumer. Pending and future sends fail with
// ErrSinkClosed. It is safe to call more than once.
func (r *Relay) CloseReceiver() {
	r.goneOnce.Do(func() { close(r.gone) })
}

// IsClosed reports whether every Sender has been closed.
func (r *Relay) IsClosed() bool {
	return r.closed.Load()
}

// IsTerminated reports whether the relay will never yield another item:
// either it is closed and empty, or the receiver has been closed.
func (r *Relay) IsTerminated() bool {
	select {
	case <-r.gone:
		return true
	default:
	}
	return r.closed.Load() && len(r.items) == 0
}

// Len returns the number of queued items.
func (r *Relay) Len() int { return len(r.items) }

// Cap returns the queue capacity.
func (r *Relay) Cap() int { return cap(r.items) }

func (r *Relay) release() {
	r.countMu.Lock()
	r.senders--
	last := r.senders == 0
	r.countMu.Unlock()

	if !last {
		return
	}

	r.sendMu.Lock()
	r.closed.Store(true)
	close(r.items)
	r.sendMu.Unlock()
}

// Sender is a producer handle. Handles are independent: closing one does not
// affect the others, and the relay closes when the last one is closed.
type Sender struct {
	relay  *Relay
	closed atomic.Bool
}

// Send enqueues text, suspending while the queue is full. It fails with
// ErrSinkClosed if the handle is closed or the consumer has gone away, and
// with the context's error if ctx ends first.
func (s *Sender) Send(ctx context.Context, text string) error {
	if s.closed.Load() {
		return ErrSinkClosed
	}

	r := s.relay
	r.sendMu.RLock()
	defer r.sendMu.RUnlock()

	if r.closed.Load() {
		return ErrSinkClosed
	}

	select {
	case <-r.gone:
		return ErrSinkClosed
	default:
	}

	select {
	case r.items <- text:
		return nil
	case <-r.gone:
		return ErrSinkClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Clone returns a new independent handle to the same relay.
func (s *Sender) Clone() (*Sender, error) {
	if s.closed.Load() {
		return nil, ErrSinkClosed
	}

	r := s.relay
	r.countMu.Lock()
	defer r.countMu.Unlock()
	if r.senders == 0 {
		return nil, ErrRelayClosed
	}
	r.senders++
	return &Sender{relay: r}, nil
}

// Close releases the handle. Closing an already closed handle is a no-op.
func (s *Sender) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.relay.release()
}
