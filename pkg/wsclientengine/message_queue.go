package wsclientengine

import (
	"context"
	"sync"
	"time"

	"github.com/eapache/queue"
	"github.com/gbdevw/gowaithook/pkg/wsclientengine/adapters"
)

// A message received from the server
type Message struct {
	// Message type. Always adapters.Text for messages delivered by a connection.
	Type adapters.FrameType
	// Message payload
	Payload []byte
}

// Return the payload as a string
func (msg Message) Text() string {
	return string(msg.Payload)
}

// Unbounded FIFO queue of received messages which can be closed with a terminal error.
//
// Messages pushed before the queue is closed are still delivered: the close error is returned
// once the queue is empty. The queue is meant to be consumed by a single popper.
type MessageQueue struct {
	mu sync.Mutex
	// Buffered messages
	items *queue.Queue
	// Closed and replaced each time the queue state changes
	wake chan struct{}
	// Whether the queue has been closed
	closed bool
	// Error returned by Pop once the queue is closed and empty
	err error
}

// Factory - Return a new, empty queue.
func NewMessageQueue() *MessageQueue {
	return &MessageQueue{
		items: queue.New(),
		wake:  make(chan struct{}),
	}
}

// # Description
//
// Append a message to the queue and wake up a blocked popper.
//
// # Returns
//
// False if the queue is closed and the message has been discarded.
func (q *MessageQueue) Push(msg Message) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items.Add(msg)
	q.broadcast()
	return true
}

// # Description
//
// Close the queue. Blocked and future pops return err once buffered messages have been consumed.
// ErrConnectionClosed is used when err is nil. Only the first call has an effect.
func (q *MessageQueue) CloseWithError(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	if err == nil {
		err = ErrConnectionClosed
	}
	q.closed = true
	q.err = err
	q.broadcast()
}

// # Description
//
// Remove and return the oldest message. Block until a message is available, the queue is
// closed or ctx is done.
//
// # Returns
//
//   - The oldest message if any.
//   - The close error if the queue is closed and empty. It takes precedence over ctx expiry.
//   - TimeoutError if the ctx deadline expires, ctx error if ctx is canceled. The queue is left
//     untouched in that case: a message pushed while ctx expires stays for the next Pop.
func (q *MessageQueue) Pop(ctx context.Context) (Message, error) {
	start := time.Now()
	for {
		q.mu.Lock()
		if q.items.Length() > 0 {
			msg := q.items.Remove().(Message)
			q.mu.Unlock()
			return msg, nil
		}
		if q.closed {
			err := q.err
			q.mu.Unlock()
			return Message{}, err
		}
		wake := q.wake
		q.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			q.mu.Lock()
			closedAndEmpty := q.closed && q.items.Length() == 0
			err := q.err
			q.mu.Unlock()
			if closedAndEmpty {
				return Message{}, err
			}
			return Message{}, waitError(ctx, start)
		}
	}
}

// Number of buffered messages
func (q *MessageQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Length()
}

// Wake up all blocked poppers. Must be called with q.mu held.
func (q *MessageQueue) broadcast() {
	close(q.wake)
	q.wake = make(chan struct{})
}
