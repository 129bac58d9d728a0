package session

import (
	"context"
	"sync"
)

// MessageKind separates frames from commands in the inbound queue.
type MessageKind int

const (
	KindFrame MessageKind = iota
	KindCommand
)

// Message is one inbound websocket message awaiting processing.
type Message struct {
	Kind MessageKind
	Data []byte
}

// InboundQueue buffers a connection's messages between the socket
// reader and the session worker, preserving arrival order. Backpressure
// policy: when more than maxFrames frames are queued the oldest frame
// is dropped; commands are never dropped.
type InboundQueue struct {
	mutex         sync.Mutex
	notEmpty      *sync.Cond
	items         []Message
	frameCount    int
	maxFrames     int
	droppedFrames int64
	closed        bool
}

func NewInboundQueue(maxFrames int) *InboundQueue {
	if maxFrames < 1 {
		maxFrames = 1
	}
	q := &InboundQueue{maxFrames: maxFrames}
	q.notEmpty = sync.NewCond(&q.mutex)
	return q
}

// Push enqueues a message. Returns false once the queue is closed.
func (q *InboundQueue) Push(msg Message) bool {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if q.closed {
		return false
	}

	if msg.Kind == KindFrame && q.frameCount >= q.maxFrames {
		q.dropOldestFrame()
	}

	q.items = append(q.items, msg)
	if msg.Kind == KindFrame {
		q.frameCount++
	}

	q.notEmpty.Signal()
	return true
}

// Pop blocks until a message is available, the queue is closed, or ctx
// is cancelled. Closing drains nothing: remaining items are discarded.
func (q *InboundQueue) Pop(ctx context.Context) (Message, bool) {
	// Wake the cond waiter on cancellation.
	stop := context.AfterFunc(ctx, func() {
		q.mutex.Lock()
		q.notEmpty.Broadcast()
		q.mutex.Unlock()
	})
	defer stop()

	q.mutex.Lock()
	defer q.mutex.Unlock()

	for len(q.items) == 0 && !q.closed && ctx.Err() == nil {
		q.notEmpty.Wait()
	}

	if q.closed || ctx.Err() != nil {
		return Message{}, false
	}

	msg := q.items[0]
	q.items = q.items[1:]
	if msg.Kind == KindFrame {
		q.frameCount--
	}
	return msg, true
}

// Close wakes all waiters; subsequent pushes and pops fail.
func (q *InboundQueue) Close() {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.notEmpty.Broadcast()
}

func (q *InboundQueue) Len() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return len(q.items)
}

// DroppedFrames reports how many frames backpressure discarded.
func (q *InboundQueue) DroppedFrames() int64 {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return q.droppedFrames
}

// dropOldestFrame removes the oldest queued frame, leaving commands in
// place. Caller must hold q.mutex.
func (q *InboundQueue) dropOldestFrame() {
	for i, item := range q.items {
		if item.Kind == KindFrame {
			q.items = append(q.items[:i], q.items[i+1:]...)
			q.frameCount--
			q.droppedFrames++
			return
		}
	}
}
