// Package transport delivers committed trial packets to external sinks.
//
// Delivery is best effort: packets are queued, sent once to every sink and
// dropped on failure. Nothing is retried.
package transport

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"

	"github.com/ayusman/thumbtrial/internal/trial"
)

// DefaultQueueSize is the number of packets buffered before new ones are dropped.
const DefaultQueueSize = 64

// ErrClosed is returned when enqueueing on a closed dispatcher.
var ErrClosed = errors.New("dispatcher closed")

// Sink sends one packet to an external collector.
type Sink interface {
	Name() string
	Send(ctx context.Context, p trial.Packet) error
}

// Dispatcher fans packets out to sinks from a single background worker so
// the frame loop never blocks on the network.
type Dispatcher struct {
	sinks []Sink
	queue chan trial.Packet

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.RWMutex
	closed bool

	sent    atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

// Stats reports delivery counters.
type Stats struct {
	Sent    uint64 `json:"sent"`
	Dropped uint64 `json:"dropped"`
	Failed  uint64 `json:"failed"`
}

// NewDispatcher starts a dispatcher with a queue of the given size.
func NewDispatcher(size int, sinks ...Sink) *Dispatcher {
	if size <= 0 {
		size = DefaultQueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		sinks:  sinks,
		queue:  make(chan trial.Packet, size),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

// Enqueue queues p for delivery. A full queue drops the packet.
func (d *Dispatcher) Enqueue(p trial.Packet) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	if len(d.sinks) == 0 {
		return nil
	}

	select {
	case d.queue <- p:
	default:
		d.dropped.Add(1)
		log.Printf("Transport queue full, dropping trial %d", p.Trial)
	}
	return nil
}

// Stats returns the current delivery counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Sent:    d.sent.Load(),
		Dropped: d.dropped.Load(),
		Failed:  d.failed.Load(),
	}
}

// Close stops the worker and cancels any in-flight send. Queued packets
// that have not been sent are abandoned.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.cancel()
	close(d.queue)
	d.mu.Unlock()

	<-d.done
	return nil
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for p := range d.queue {
		if d.ctx.Err() != nil {
			continue
		}
		for _, s := range d.sinks {
			if err := s.Send(d.ctx, p); err != nil {
				d.failed.Add(1)
				log.Printf("Failed to deliver trial %d to %s: %v", p.Trial, s.Name(), err)
				continue
			}
			d.sent.Add(1)
		}
	}
}
