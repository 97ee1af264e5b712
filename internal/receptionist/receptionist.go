// Package receptionist drains each newly-online identity's mailbox into
// its bound handler. The GuestQueue is a blocking bounded FIFO; the
// worker is a single background goroutine rather than a thread-plus-
// sleep polling loop.
package receptionist

import (
	"context"
	"log/slog"
	"time"

	"github.com/dimchat/station/internal/id"
	"github.com/dimchat/station/internal/mailbox"
	"github.com/dimchat/station/internal/session"
)

// backoff is the delay before re-enqueueing an identity whose push
// failed mid-drain.
const backoff = 1 * time.Second

// popTimeout bounds how long Pop blocks before looping to re-check
// ctx.Done(), so shutdown drains cleanly instead of blocking forever.
const popTimeout = 1 * time.Second

// GuestQueue is a thread-safe FIFO of identities that have just become
// online. A buffered channel gives blocking-bounded-queue semantics
// with no busy-wait.
type GuestQueue struct {
	ch chan id.ID
}

// NewGuestQueue returns a GuestQueue with the given capacity.
func NewGuestQueue(capacity int) *GuestQueue {
	return &GuestQueue{ch: make(chan id.ID, capacity)}
}

// Push enqueues identity. Blocks if the queue is full; callers (the
// handshake machine) are expected to size capacity generously since
// this is an in-memory hint, not a durability boundary.
func (q *GuestQueue) Push(identity id.ID) {
	q.ch <- identity
}

// pop blocks up to popTimeout for an identity, returning ok=false on
// timeout so the worker loop can re-check shutdown.
func (q *GuestQueue) pop(ctx context.Context) (id.ID, bool) {
	select {
	case identity := <-q.ch:
		return identity, true
	case <-time.After(popTimeout):
		return id.ID{}, false
	case <-ctx.Done():
		return id.ID{}, false
	}
}

// Registry is the subset of session.Registry the worker needs.
type Registry interface {
	HandlerFor(identity id.ID) session.Handler
}

// Worker is the single background receptionist goroutine.
type Worker struct {
	queue    *GuestQueue
	registry Registry
	store    *mailbox.Store
	logger   *slog.Logger
}

// NewWorker returns a Worker. logger may be nil (defaults to slog.Default()).
func NewWorker(queue *GuestQueue, registry Registry, store *mailbox.Store, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{queue: queue, registry: registry, store: store, logger: logger}
}

// Run loops until ctx is cancelled. It holds no registry or mailbox
// locks during socket I/O.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		identity, ok := w.queue.pop(ctx)
		if !ok {
			continue
		}
		w.drainOne(ctx, identity)
	}
}

// drainOne pushes identity's mailbox into its bound handler. On the
// first push failure it stops and re-enqueues identity after backoff.
// On a full successful drain it truncates the mailbox.
func (w *Worker) drainOne(ctx context.Context, identity id.ID) {
	h := w.registry.HandlerFor(identity)
	if h == nil {
		// Guest already left; discard.
		return
	}

	records, offset, err := w.store.Drain(identity)
	if err != nil {
		w.logger.Error("receptionist: drain failed", "identity", identity.String(), "error", err.Error())
		return
	}
	if len(records) == 0 {
		return
	}

	for _, rec := range records {
		if err := h.Push(rec); err != nil {
			w.logger.Warn("receptionist: push failed, re-enqueueing",
				"identity", identity.String(), "error", err.Error())
			go w.reenqueueAfterBackoff(ctx, identity)
			return
		}
	}

	if err := w.store.Ack(identity, offset); err != nil {
		w.logger.Error("receptionist: ack failed", "identity", identity.String(), "error", err.Error())
	}
}

func (w *Worker) reenqueueAfterBackoff(ctx context.Context, identity id.ID) {
	select {
	case <-time.After(backoff):
	case <-ctx.Done():
		return
	}
	select {
	case w.queue.ch <- identity:
	case <-ctx.Done():
	}
}
