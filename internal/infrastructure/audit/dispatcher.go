package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/relayos/knowledge-core/internal/core/domain"
	"github.com/relayos/knowledge-core/internal/core/ports"
)

const defaultWriteTimeout = 3 * time.Second

// Writer is a named destination; the name only shows up in logs.
type Writer struct {
	Name   string
	Writer ports.AuditWriter
}

// Dispatcher implements ports.AuditSink. Every event is written to every
// destination on its own goroutine; failures are logged and dropped.
type Dispatcher struct {
	writers []Writer
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

type Options struct {
	WriteTimeout time.Duration
	Logger       *slog.Logger
	Now          func() time.Time
}

func NewDispatcher(writers []Writer, options Options) *Dispatcher {
	timeout := options.WriteTimeout
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := options.Now
	if now == nil {
		now = time.Now
	}
	active := make([]Writer, 0, len(writers))
	for _, w := range writers {
		if w.Writer != nil {
			active = append(active, w)
		}
	}
	return &Dispatcher{writers: active, timeout: timeout, logger: logger, now: now}
}

func (d *Dispatcher) Log(ctx context.Context, event domain.AuditEvent) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logger.Warn("audit_event_dropped", "event_type", event.EventType, "reason", "dispatcher closed")
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = d.now().UTC()
	}

	// Writes must outlive the request that produced the event.
	base := context.WithoutCancel(ctx)
	for _, w := range d.writers {
		d.wg.Add(1)
		go d.write(base, w, event)
	}
}

func (d *Dispatcher) write(ctx context.Context, w Writer, event domain.AuditEvent) {
	defer d.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("audit_writer_panic", "writer", w.Name, "event_type", event.EventType, "panic", fmt.Sprint(r))
		}
	}()

	writeCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if err := w.Writer.WriteAuditEvent(writeCtx, event); err != nil {
		d.logger.Warn("audit_write_failed", "writer", w.Name, "event_type", event.EventType, "error", err)
	}
}

// Close stops accepting events and waits for in-flight writes or ctx.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain audit dispatcher: %w", ctx.Err())
	}
}
