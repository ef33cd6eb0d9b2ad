package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pkordes/trip-scheduler/internal/metrics"
)

// DispatcherConfig sizes the detached notification queue.
type DispatcherConfig struct {
	Workers   int           // default 2
	QueueSize int           // default 128
	Timeout   time.Duration // per task, default 10s
}

// Dispatcher runs notification tasks detached from the request that queued
// them. Enqueue never blocks: when the queue is full or the dispatcher is
// shut down the event is dropped and logged. Task errors are logged,
// counted, and published on Errors for anyone listening.
type Dispatcher struct {
	handler Handler
	cfg     DispatcherConfig
	log     *slog.Logger

	queue chan Event
	errs  chan error
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher constructs a Dispatcher and starts its workers.
func NewDispatcher(h Handler, cfg DispatcherConfig, log *slog.Logger) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 128
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	d := &Dispatcher{
		handler: h,
		cfg:     cfg,
		log:     log,
		queue:   make(chan Event, cfg.QueueSize),
		errs:    make(chan error, cfg.QueueSize),
	}
	for range cfg.Workers {
		d.wg.Add(1)
		go d.work()
	}
	return d
}

// Enqueue schedules ev for delivery and returns immediately.
func (d *Dispatcher) Enqueue(ev Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(ev, "dispatcher closed")
		return
	}
	select {
	case d.queue <- ev:
	default:
		d.drop(ev, "queue full")
	}
}

// Errors exposes task failures. The channel is buffered and lossy: when
// nobody reads it, newer errors are discarded.
func (d *Dispatcher) Errors() <-chan error { return d.errs }

// Shutdown stops accepting events and waits for queued tasks to finish or
// for ctx to expire, whichever comes first. Tasks still queued when ctx
// expires are abandoned.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
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
		return ctx.Err()
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for ev := range d.queue {
		d.run(ev)
	}
}

func (d *Dispatcher) run(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.Timeout)
	defer cancel()

	err := d.handler.Notify(ctx, ev)
	if err == nil {
		metrics.NotificationTasks.WithLabelValues("ok").Inc()
		return
	}

	metrics.NotificationTasks.WithLabelValues("failed").Inc()
	d.log.Error("notification fan-out failed",
		"schedule_id", ev.Schedule.ID,
		"template", ev.Template,
		"error", err,
	)
	select {
	case d.errs <- err:
	default:
	}
}

func (d *Dispatcher) drop(ev Event, reason string) {
	metrics.NotificationTasks.WithLabelValues("dropped").Inc()
	d.log.Warn("notification dropped",
		"schedule_id", ev.Schedule.ID,
		"template", ev.Template,
		"reason", reason,
	)
}
