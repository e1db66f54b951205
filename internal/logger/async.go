package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Closer flushes and stops a logging pipeline on shutdown.
type Closer interface {
	Close()
}

type nopCloser struct{}

func (nopCloser) Close() {}

// queue is the buffered pipeline shared by an AsyncHandler and all of its
// WithAttrs/WithGroup clones: one channel, one drain goroutine, one drop
// counter.
type queue struct {
	ch      chan entry
	done    chan struct{}
	once    sync.Once
	dropped atomic.Int64
}

// entry pins the record to the handler clone that enqueued it, so clones
// keep their own attrs and groups.
type entry struct {
	h   slog.Handler
	rec slog.Record
}

// AsyncHandler decouples log emission from I/O: Handle enqueues and returns
// immediately, a single background goroutine writes in order. When the
// buffer is full the record is dropped rather than blocking the caller; the
// heartbeat loop must never stall on a slow stdout.
type AsyncHandler struct {
	inner slog.Handler
	q     *queue
}

// NewAsyncHandler wraps inner with a buffer of the given capacity.
func NewAsyncHandler(inner slog.Handler, capacity int) *AsyncHandler {
	q := &queue{
		ch:   make(chan entry, capacity),
		done: make(chan struct{}),
	}
	go func() {
		defer close(q.done)
		for e := range q.ch {
			_ = e.h.Handle(context.Background(), e.rec)
		}
	}()
	return &AsyncHandler{inner: inner, q: q}
}

// Enabled delegates to the inner handler.
func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle enqueues the record, dropping it when the buffer is full.
func (h *AsyncHandler) Handle(_ context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	select {
	case h.q.ch <- entry{h: h.inner, rec: rec}:
	default:
		h.q.dropped.Add(1)
	}
	return nil
}

// WithAttrs returns a clone feeding the same queue.
func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithAttrs(attrs), q: h.q}
}

// WithGroup returns a clone feeding the same queue.
func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithGroup(name), q: h.q}
}

// DroppedCount reports how many records were discarded on a full buffer.
func (h *AsyncHandler) DroppedCount() int64 {
	return h.q.dropped.Load()
}

// Close drains the buffer and stops the writer. Safe to call once per
// pipeline regardless of how many clones exist.
func (h *AsyncHandler) Close() {
	h.q.once.Do(func() {
		close(h.q.ch)
	})
	<-h.q.done
}
