// Package dispatcher fans events out to subscribers.
//
// Publishing never blocks: each subscriber owns a buffered channel, and events destined for a
// subscriber whose buffer is full are dropped. Subscribers that need a consistent view should
// re-read state after receiving an event rather than rely on receiving every event.
package dispatcher

import (
	"sync"

	"github.com/covoit/carpool-sdk/internal/log"
)

var receiverBufferSize = 16

// Dispatcher delivers events of type E to every open Receiver.
type Dispatcher[E any] struct {
	name      string
	mu        sync.Mutex
	receivers map[*receiver[E]]bool
	closed    bool
}

// New creates a Dispatcher. The name is used only in log messages.
func New[E any](name string) *Dispatcher[E] {
	return &Dispatcher[E]{
		name:      name,
		receivers: make(map[*receiver[E]]bool),
	}
}

// Subscribe returns a Receiver for events published after this call returns. Subscribing to a
// closed Dispatcher returns a Receiver whose channel is already closed.
func (d *Dispatcher[E]) Subscribe() Receiver[E] {
	r := &receiver[E]{
		ch:         make(chan E, receiverBufferSize),
		dispatcher: d,
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		close(r.ch)
		r.dispatcher = nil
		return r
	}
	d.receivers[r] = true
	return r
}

// Publish sends event to all receivers without blocking.
func (d *Dispatcher[E]) Publish(event E) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for r := range d.receivers {
		select {
		case r.ch <- event:
		default:
			log.Warning("[%s] Subscriber buffer full, dropping event", d.name)
		}
	}
}

// Len returns the number of open receivers.
func (d *Dispatcher[E]) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.receivers)
}

// Close closes all receivers. Subsequent calls to Publish are no-ops.
func (d *Dispatcher[E]) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	for r := range d.receivers {
		close(r.ch)
		delete(d.receivers, r)
	}
}

func (d *Dispatcher[E]) closeHandler(r *receiver[E]) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.receivers[r] {
		delete(d.receivers, r)
		close(r.ch)
	}
}
