package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DropReason says why an event never reached the sink.
type DropReason string

const (
	DropBufferFull DropReason = "buffer_full"
	DropCanceled   DropReason = "canceled"
	DropSinkPanic  DropReason = "sink_panic"
)

// Config controls dispatcher buffering.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull counts and discards events when the buffer is full instead
	// of blocking the caller.
	DropIfFull bool

	// DeliverTimeout bounds the context handed to each Sink.Emit call.
	// Zero means no deadline.
	DeliverTimeout time.Duration
	// OnDrop is called for every discarded event, from the goroutine that
	// discarded it.
	OnDrop         func(Event, DropReason)
}

// Dispatcher relays events to a sink through a bounded queue drained by one
// worker goroutine. A nil *Dispatcher is valid and discards everything.
type Dispatcher struct {
	sink    Sink
	queue   chan Event
	block   bool
	timeout time.Duration
	onDrop  func(Event, DropReason)

	stop     context.Context
	shutdown context.CancelFunc
	exited   chan struct{}
	once     sync.Once

	accepting atomic.Bool
	dropped   atomic.Uint64
	delivered atomic.Uint64
}

// NewDispatcher starts a dispatcher, or returns nil when cfg is disabled.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = 1
	}
	onDrop := cfg.OnDrop
	if onDrop == nil {
		onDrop = func(Event, DropReason) {}
	}

	stop, shutdown := context.WithCancel(context.Background())
	d := &Dispatcher{
		sink:     sink,
		queue:    make(chan Event, size),
		block:    !cfg.DropIfFull,
		timeout:  cfg.DeliverTimeout,
		onDrop:   onDrop,
		stop:     stop,
		shutdown: shutdown,
		exited:   make(chan struct{}),
	}
	d.accepting.Store(true)
	go d.worker()
	return d
}

// Emit queues event. With DropIfFull it never blocks; otherwise it waits for
// queue space, ctx cancellation or Close.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || !d.accepting.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if !d.block {
		select {
		case d.queue <- event:
		case <-d.stop.Done():
		default:
			d.drop(event, DropBufferFull)
		}
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.drop(event, DropCanceled)
	case <-d.stop.Done():
	}
}

func (d *Dispatcher) worker() {
	defer close(d.exited)
	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		case <-d.stop.Done():
			// Events accepted before Close still go out.
			for {
				select {
				case event := <-d.queue:
					d.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(event Event) {
	ctx := context.Background()
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			d.drop(event, DropSinkPanic)
		}
	}()
	d.sink.Emit(ctx, event)
	d.delivered.Add(1)
}

func (d *Dispatcher) drop(event Event, reason DropReason) {
	d.dropped.Add(1)
	d.onDrop(event, reason)
}

// Close stops accepting events, flushes the queue and waits for the worker.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.once.Do(func() {
		d.accepting.Store(false)
		d.shutdown()
		<-d.exited
	})
}

// Dropped counts events discarded for any DropReason.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Delivered counts events the sink returned from.
func (d *Dispatcher) Delivered() uint64 {
	if d == nil {
		return 0
	}
	return d.delivered.Load()
}
