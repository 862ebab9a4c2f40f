// Copyright 2024-2026 Aiku AI

package connector

import (
	"errors"
	"sync"
)

// ErrQueueClosed is returned by Send once the queue no longer accepts events,
// either because the bridge is shutting down or because the worker is gone.
var ErrQueueClosed = errors.New("event queue closed")

// eventSender is the producer side of the queue. The Discord handlers only
// ever see this interface so tests can capture events without a worker.
type eventSender interface {
	Send(evt ChannelEvent) error
}

// eventReceiver is the consumer side of the queue, owned by the worker.
type eventReceiver interface {
	Receive() (ChannelEvent, bool)
}

// EventQueue is an unbounded FIFO of channel events. Any number of
// goroutines may Send concurrently; exactly one goroutine may Receive.
type EventQueue struct {
	mu             sync.Mutex
	items          []ChannelEvent
	closed         bool
	receiverClosed bool

	// notify holds at most one pending wakeup for the single consumer.
	notify chan struct{}
}

var (
	_ eventSender   = (*EventQueue)(nil)
	_ eventReceiver = (*EventQueue)(nil)
)

// NewEventQueue creates an empty, open queue.
func NewEventQueue() *EventQueue {
	return &EventQueue{notify: make(chan struct{}, 1)}
}

// Send appends evt to the queue. It never blocks.
func (q *EventQueue) Send(evt ChannelEvent) error {
	q.mu.Lock()
	if q.closed || q.receiverClosed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.items = append(q.items, evt)
	q.mu.Unlock()
	q.wake()
	return nil
}

// Receive blocks until an event is available and returns it. The boolean is
// false once the queue is closed and drained, or the receiver was closed.
func (q *EventQueue) Receive() (ChannelEvent, bool) {
	for {
		q.mu.Lock()
		if q.receiverClosed {
			q.mu.Unlock()
			return nil, false
		}
		if len(q.items) > 0 {
			evt := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			q.mu.Unlock()
			return evt, true
		}
		if q.closed {
			q.mu.Unlock()
			return nil, false
		}
		q.mu.Unlock()
		<-q.notify
	}
}

// Close shuts the producer side. Events already queued are still delivered.
func (q *EventQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()
}

// CloseReceiver marks the consumer as gone. Pending events are dropped and
// further sends fail.
func (q *EventQueue) CloseReceiver() {
	q.mu.Lock()
	q.receiverClosed = true
	q.items = nil
	q.mu.Unlock()
	q.wake()
}

// Len returns the number of events waiting to be received.
func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *EventQueue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
