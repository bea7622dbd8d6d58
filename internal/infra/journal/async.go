// Package journal decouples funnel event persistence from the request path.
package journal

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/avalia-ganha/avalia/internal/domain"
	"github.com/avalia-ganha/avalia/internal/infra/metrics"
)

// Defaults for NewAsync.
const (
	DefaultQueueSize    = 4096
	DefaultWriteTimeout = 5 * time.Second
)

var (
	ErrQueueFull = errors.New("journal queue full")
	ErrClosed    = errors.New("journal closed")
)

type opKind string

const (
	opOpen   opKind = "open_session"
	opRecord opKind = "record"
	opClose  opKind = "close_session"
)

type op struct {
	kind     opKind
	session  string
	tasks    int
	finished bool
	event    domain.Event
	flushed  chan struct{} // set on flush markers only
}

// Async queues writes for a single background writer. Writes keep their
// order; a full queue drops the write instead of blocking the caller.
type Async struct {
	next    domain.Journal
	timeout time.Duration
	queue   chan op
	done    chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewAsync starts the writer for next. Non-positive arguments use the defaults.
func NewAsync(next domain.Journal, size int, timeout time.Duration) *Async {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if timeout <= 0 {
		timeout = DefaultWriteTimeout
	}
	a := &Async{
		next:    next,
		timeout: timeout,
		queue:   make(chan op, size),
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

// Unwrap returns the journal the writer feeds.
func (a *Async) Unwrap() domain.Journal { return a.next }

// OpenSession queues a session row.
func (a *Async) OpenSession(_ context.Context, id string, tasks int) error {
	return a.enqueue(op{kind: opOpen, session: id, tasks: tasks})
}

// Record queues an event.
func (a *Async) Record(_ context.Context, e domain.Event) error {
	return a.enqueue(op{kind: opRecord, session: e.SessionID, event: e})
}

// CloseSession queues the end of a session after its pending events.
func (a *Async) CloseSession(_ context.Context, id string, finished bool) error {
	return a.enqueue(op{kind: opClose, session: id, finished: finished})
}

// Ping checks the underlying journal directly.
func (a *Async) Ping(ctx context.Context) error { return a.next.Ping(ctx) }

// Len returns the number of queued writes.
func (a *Async) Len() int { return len(a.queue) }

// Flush blocks until every write queued before the call has been applied.
func (a *Async) Flush(ctx context.Context) error {
	marker := make(chan struct{})

	a.mu.RLock()
	if a.closed {
		a.mu.RUnlock()
		return ErrClosed
	}
	select {
	case a.queue <- op{flushed: marker}:
		a.mu.RUnlock()
	case <-ctx.Done():
		a.mu.RUnlock()
		return ctx.Err()
	}

	select {
	case <-marker:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains the queue, then closes the underlying journal.
func (a *Async) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	<-a.done
	return a.next.Close()
}

func (a *Async) enqueue(o op) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	select {
	case a.queue <- o:
		return nil
	default:
		metrics.JournalDropped.Inc()
		return ErrQueueFull
	}
}

func (a *Async) run() {
	defer close(a.done)
	for o := range a.queue {
		if o.flushed != nil {
			close(o.flushed)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		err := a.apply(ctx, o)
		cancel()
		if err != nil {
			metrics.JournalErrors.Inc()
			log.Printf("[journal] %s for session %s failed (ignored): %v", o.kind, o.session, err)
		}
	}
}

func (a *Async) apply(ctx context.Context, o op) error {
	switch o.kind {
	case opOpen:
		return a.next.OpenSession(ctx, o.session, o.tasks)
	case opClose:
		return a.next.CloseSession(ctx, o.session, o.finished)
	default:
		return a.next.Record(ctx, o.event)
	}
}

var _ domain.Journal = (*Async)(nil)
