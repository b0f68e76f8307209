package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	defaultQueueSize   = 256
	defaultMaxAttempts = 3
	defaultBackoff     = 200 * time.Millisecond
)

// Op is one outbound persistence write.
type Op struct {
	UserID string
	Name   string
	Do     func(ctx context.Context) error
}

// Writer drains persistence writes off the tick path. Each op is retried a
// bounded number of times and dropped with an error log when it keeps
// failing. Enqueue never blocks.
type Writer struct {
	mu          sync.RWMutex
	queue       chan Op
	logger      *slog.Logger
	maxAttempts uint64
	backoff     time.Duration
	cancel      context.CancelFunc
	done        chan struct{}
	closed      bool
}

type WriterOption func(*Writer)

// WithRetry sets the total attempts per op and the base backoff.
func WithRetry(attempts int, base time.Duration) WriterOption {
	return func(w *Writer) {
		if attempts > 0 {
			w.maxAttempts = uint64(attempts)
		}
		if base > 0 {
			w.backoff = base
		}
	}
}

func WithQueueSize(n int) WriterOption {
	return func(w *Writer) {
		if n > 0 {
			w.queue = make(chan Op, n)
		}
	}
}

func NewWriter(logger *slog.Logger, opts ...WriterOption) *Writer {
	w := &Writer{
		queue:       make(chan Op, defaultQueueSize),
		logger:      logger,
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultBackoff,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins draining the queue.
func (w *Writer) Start(ctx context.Context) {
	w.mu.Lock()
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	w.mu.Unlock()

	go func() {
		defer close(w.done)
		for op := range w.queue {
			w.run(ctx, op)
		}
	}()
}

// Stop closes the queue, waits for queued ops to finish, then cancels any
// remaining retries.
func (w *Writer) Stop() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.queue)
	cancel := w.cancel
	done := w.done
	w.mu.Unlock()

	if done != nil {
		<-done
	}
	if cancel != nil {
		cancel()
	}
}

// Enqueue schedules op. It reports false when the op was dropped because
// the queue is full or the writer is stopped.
func (w *Writer) Enqueue(op Op) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		w.logger.Warn("persistence write dropped: writer stopped", "user_id", op.UserID, "op", op.Name)
		return false
	}
	select {
	case w.queue <- op:
		return true
	default:
		w.logger.Error("persistence write dropped: queue full", "user_id", op.UserID, "op", op.Name)
		return false
	}
}

// Flush waits until every op enqueued before the call has run.
func (w *Writer) Flush(ctx context.Context) error {
	done := make(chan struct{})
	if !w.Enqueue(Op{Name: "flush", Do: func(context.Context) error {
		close(done)
		return nil
	}}) {
		return errors.New("flush: writer unavailable")
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Writer) run(ctx context.Context, op Op) {
	b := retry.WithMaxRetries(w.maxAttempts-1, retry.NewExponential(w.backoff))

	attempt := 0
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		if err := op.Do(ctx); err != nil {
			w.logger.Warn("persistence write failed", "user_id", op.UserID, "op", op.Name, "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		w.logger.Error("persistence failure", "user_id", op.UserID, "op", op.Name, "attempts", attempt, "error", err)
	}
}
