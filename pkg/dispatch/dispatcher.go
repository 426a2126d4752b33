package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openclinic/fhirsub/pkg/log"
	"github.com/openclinic/fhirsub/pkg/resource"
)

// Dispatcher errors.
var (
	ErrQueueFull         = errors.New("dispatch queue full")
	ErrDispatcherStopped = errors.New("dispatcher stopped")
)

// Dispatcher processes change events on a single worker.
type Dispatcher struct {
	config Config
	logger *slog.Logger
	plog   log.Logger

	queue chan resource.Event

	// mu orders producers against Stop: producers hold the read lock while
	// enqueueing so Stop can wait for them before draining.
	mu       sync.RWMutex
	stopped  bool
	intake   chan struct{} // closed when intake stops
	drain    chan struct{} // closed when the worker should drain and exit
	stopOnce sync.Once

	ctx    context.Context
	cancel context.CancelFunc

	running atomic.Bool
	done    chan struct{}

	// worker-only state
	refreshedOnce bool

	processed    atomic.Uint64
	dropped      atomic.Uint64
	delivered    atomic.Uint64
	denied       atomic.Uint64
	sendFailures atomic.Uint64
	refreshes    atomic.Uint64
	abandoned    atomic.Uint64
}

// New creates a dispatcher. Call Start to begin processing; events enqueued
// before Start wait in the queue.
func New(cfg Config) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = DefaultShutdownGrace
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	plog := cfg.ProtocolLogger
	if plog == nil {
		plog = log.NoopLogger{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		config: cfg,
		logger: logger,
		plog:   plog,
		queue:  make(chan resource.Event, cfg.QueueSize),
		intake: make(chan struct{}),
		drain:  make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Start launches the worker. Repeated calls are no-ops.
func (d *Dispatcher) Start() {
	if d.running.Swap(true) {
		return
	}
	go d.run()
}

// HandleEvent enqueues ev and reports whether it was accepted. It never
// fails the caller otherwise.
func (d *Dispatcher) HandleEvent(ev resource.Event) bool {
	return d.Enqueue(ev) == nil
}

// HandleEvents enqueues events in order and returns how many were accepted.
func (d *Dispatcher) HandleEvents(events []resource.Event) int {
	n := 0
	for _, ev := range events {
		if d.HandleEvent(ev) {
			n++
		}
	}
	return n
}

// Publish implements store.Publisher.
func (d *Dispatcher) Publish(ev resource.Event) {
	d.HandleEvent(ev)
}

// Enqueue adds ev to the queue. It returns ErrDispatcherStopped after Stop
// and ErrQueueFull when the queue is full under OverflowDrop.
func (d *Dispatcher) Enqueue(ev resource.Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.stopped {
		return ErrDispatcherStopped
	}

	if d.config.Overflow == OverflowBlock {
		select {
		case d.queue <- ev:
			return nil
		case <-d.intake:
			return ErrDispatcherStopped
		}
	}

	select {
	case d.queue <- ev:
		return nil
	default:
		n := d.dropped.Add(1)
		d.logger.Warn("dispatch queue full, dropping event",
			"resource", ev.Reference().String(),
			"operation", ev.Operation.String(),
			"queue_size", d.config.QueueSize,
			"dropped_total", n)
		return ErrQueueFull
	}
}

// Stop stops intake, waits up to ShutdownGrace for queued events, then
// abandons the rest. It reports whether the queue drained in time. Without
// a prior Start every queued event is abandoned.
func (d *Dispatcher) Stop() bool {
	clean := true
	d.stopOnce.Do(func() {
		close(d.intake)

		d.mu.Lock()
		d.stopped = true
		d.mu.Unlock()

		close(d.drain)

		if !d.running.Load() {
			d.cancel()
			if pending := len(d.queue); pending > 0 {
				clean = false
				d.abandoned.Add(uint64(pending))
				d.logger.Warn("dispatcher stopped before start, abandoning queued events",
					"pending", pending)
			}
			return
		}

		timer := time.NewTimer(d.config.ShutdownGrace)
		defer timer.Stop()

		select {
		case <-d.done:
		case <-timer.C:
			clean = false
			pending := len(d.queue)
			d.cancel()
			<-d.done
			d.logger.Warn("dispatcher stop forced, abandoning queued events",
				"pending", pending,
				"grace", d.config.ShutdownGrace)
		}
		d.cancel()
	})
	return clean
}

// QueueDepth returns the number of queued events.
func (d *Dispatcher) QueueDepth() int {
	return len(d.queue)
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		select {
		case <-d.drain:
			d.drainQueue()
			return
		default:
		}

		select {
		case ev := <-d.queue:
			d.process(ev)
		case <-d.drain:
			d.drainQueue()
			return
		}
	}
}

func (d *Dispatcher) drainQueue() {
	for {
		if d.ctx.Err() != nil {
			d.abandoned.Add(uint64(len(d.queue)))
			return
		}
		select {
		case ev := <-d.queue:
			d.process(ev)
		default:
			return
		}
	}
}

// Stats counts dispatcher activity.
type Stats struct {
	Processed    uint64
	Dropped      uint64
	Delivered    uint64
	Denied       uint64
	SendFailures uint64
	Refreshes    uint64
	Abandoned    uint64
	QueueDepth   int
}

// Stats returns a snapshot of the counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Processed:    d.processed.Load(),
		Dropped:      d.dropped.Load(),
		Delivered:    d.delivered.Load(),
		Denied:       d.denied.Load(),
		SendFailures: d.sendFailures.Load(),
		Refreshes:    d.refreshes.Load(),
		Abandoned:    d.abandoned.Load(),
		QueueDepth:   len(d.queue),
	}
}
